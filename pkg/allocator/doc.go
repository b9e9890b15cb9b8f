/*
Package allocator is Grove's public facade and lifecycle manager.

It owns the two capacity trees and composes the other packages into the
library surface a workload submitter calls: allocate, release,
rebalance, snapshot, shutdown. Everything else in Grove is internal
machinery behind this API.

# Architecture

	           caller (workload submitter)
	                      │
	     AllocateMemory / AllocateCompute / Release
	                      │
	        ┌─────────────▼──────────────┐
	        │         Allocator          │
	        │  gate.ValidateSession ──── │──► fail fast, no lock
	        │  ┌───────── mu ─────────┐  │
	        │  │ placement.Engine     │  │
	        │  │ balance.Balancer     │  │
	        │  │ tree snapshots       │  │
	        │  │ emergency cleanup    │  │
	        │  └──────────────────────┘  │
	        │  events.Broker (post-lock) │
	        └────────────────────────────┘

# Locking Discipline

One mutex serializes every mutating operation and the metrics snapshot.
Go has no re-entrant lock, so the rule is structural: the lock is taken
only at this facade, and the engine, balancer, and trees never lock.
Search visits at most depth × branches nodes, so hold time is bounded.
Session validation runs before the lock (the gate has its own), and
events publish after it, so neither can stretch the critical section.

Each allocate/release pair is atomic with respect to the utilization it
touches; no cross-request ordering is promised.

# Lifecycle

New validates the whole Config, builds both trees, seeds the trust
ledger at full trust, and starts the broker. Shutdown is the explicit,
deterministic teardown: exactly once, it sweeps every allocation record
off both trees, zeroes utilization and load, marks the allocator
closed, and stops the broker. The sweep runs under the same lock as
normal operations and is guarded by recover — best-effort over
corrupted state, never a panic. After Shutdown every mutating call
returns ErrClosed; Metrics still works and reports the swept state.

The library installs no process-exit hooks. The grove daemon wires
SIGINT/SIGTERM to Shutdown as a safety net; library callers defer it.

# Snapshot Math

	BalanceScore = 1 / (1 + Var(memory utilizations) + Var(compute loads))

clamped to [0, 1]; population variance and means come from gonum. A
perfectly even spread scores 1; hot spots push it toward 0.

# Usage

	alloc, err := allocator.New(allocator.Config{
		Depth:        3,
		Branches:     4,
		TotalMemory:  1 << 30,
		TotalCompute: 1000,
	})
	if err != nil {
		return err
	}
	defer alloc.Shutdown()

	session, err := alloc.IssueSession()
	if err != nil {
		return err
	}
	handle, err := alloc.AllocateMemory(4096, 2, session)
	if err != nil {
		return err
	}
	defer alloc.Release(handle)

# Integration Points

  - pkg/tree, pkg/placement, pkg/balance, pkg/security: composed here
  - pkg/events: the broker, published to after the lock is released
  - pkg/metrics: counters inline, gauges via the Collector polling
    Metrics
  - cmd/grove: daemon and bench harness over this API
*/
package allocator
