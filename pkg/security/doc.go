/*
Package security implements Grove's session and node-trust gate.

Every allocation request passes the gate twice: once for the caller's
session, once per candidate node during placement search. Both checks
are soft and logical; the gate models a discipline callers must respect,
not a cryptographic boundary.

# Architecture

	┌────────────────────── SECURITY GATE ──────────────────────┐
	│                                                           │
	│  Sessions                     Trust ledger                │
	│  ┌─────────────────┐          ┌─────────────────────────┐ │
	│  │ token → Session │          │ (kind,level,node) →     │ │
	│  │ crypto/rand hex │          │   {score, threat, scan} │ │
	│  │ wall-clock TTL  │          │ score 100 at register   │ │
	│  └─────────────────┘          │ decays on RecordEvent   │ │
	│                               │ restored by Rescan      │ │
	│                               └─────────────────────────┘ │
	│                                                           │
	│  ValidateSession ──► ErrSessionExpired (fail fast)        │
	│  ValidateNode    ──► bool (soft exclusion from search)    │
	└───────────────────────────────────────────────────────────┘

# Sessions

IssueSession generates a 32-byte random token and records its creation
time and timeout. A session is valid while now − CreatedAt < Timeout.
Validation always consults the recorded session, so holding a Session
value grants nothing beyond its token: revocation and expiry cannot be
bypassed by editing the copy.

# Node Trust

Every tree node is registered at trust 100 with a fresh scan. A node is
eligible for placement iff its trust exceeds the threshold (default 70)
AND its last scan falls within the freshness window (default 60s).
RecordEvent subtracts a severity-scaled cost (low 5, medium 15, high 35,
critical 100) and bumps the threat level; trust clamps at zero and only
a Rescan restores it. Exclusion is soft: the node keeps its capacity and
its live allocations, it is merely skipped by candidate search.

# Usage

	gate := security.NewGate(security.Config{TrustThreshold: 70})
	gate.RegisterNodes(types.ResourceMemory, depth, branches)

	session, err := gate.IssueSession(5 * time.Minute)
	if err != nil {
		return err
	}
	if err := gate.ValidateSession(session); err != nil {
		// errors.Is(err, types.ErrSessionExpired)
	}

	gate.RecordEvent(types.ResourceMemory, 1, 2, types.SeverityHigh)
	eligible := gate.ValidateNode(types.ResourceMemory, 1, 2) // false
	gate.Rescan(types.ResourceMemory, 1, 2)                   // eligible again

# Thread Safety

The gate carries its own RWMutex and is safe for concurrent use. It is
deliberately independent of the allocator's big lock so that expired
sessions are rejected without ever touching the trees.

# Integration Points

  - pkg/placement: calls ValidateNode while enumerating candidates
  - pkg/allocator: validates sessions at the API boundary, forwards
    security events, runs the rescan ticker via the daemon
  - pkg/types: Severity grades and ErrSessionExpired
*/
package security
