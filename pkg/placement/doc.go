/*
Package placement implements Grove's allocation search and commit engine.

The engine answers one question: given a request, which node(s) take it?
Memory requests bind to a single best-fitting node; compute requests are
striped across many. Both paths consult the security gate per node, so
distrusted nodes are invisible to search without leaving the tree.

# Memory Placement

	for each (level, node) in memory tree:
	    skip if gate rejects the node
	    available = capacity × (1 − utilization)
	    candidate if available ≥ size AND priorityFloor ≥ priority
	sort candidates by (score desc, level desc)
	commit top candidate, return Handle

The score is the spare capacity, optionally multiplied by the node's
balance weight in closed-loop mode. The depth tie-break is deliberate:
priority floors rise with depth (floor = level+1), so high-priority
requests can only land deep, and among equal scores the deeper slice
wins. Search visits exactly depth × branches nodes, so lock hold time
under the allocator's mutex is bounded and predictable.

Commit appends an Allocation record carrying the reserved fraction
(size/capacity) computed once. Release subtracts exactly that fraction,
so utilization round-trips to zero without floating-point drift.

# Compute Striping

Compute complexity is not bound to one owner node. Striping walks
eligible nodes in level-major order (efficiency-descending when the
loop is closed) and assigns min(remaining, nodeUnits) to each, raising
its load ratio. Load is unbounded and never gates admission; it exists
for the balancer.

Strict mode, the default, pre-checks the request against the eligible
tree capacity and fails whole with ErrInsufficientCapacity, committing
nothing. DropExcess restores the lenient behavior where leftover units
beyond tree capacity are silently dropped after a full stripe.

# Release

A handle names its node by structured (Level, Node) coordinates; the
path string is never parsed. Release requires a live record with the
handle's ID and owner. A second release, a foreign owner, or an
out-of-range coordinate all fail with ErrUnknownHandle, by contract:
double frees must surface, not silently succeed.

# Thread Safety

The engine holds no lock. pkg/allocator owns it behind the allocator-
wide mutex and is its only caller.

# Integration Points

  - pkg/tree: the node structures searched and mutated
  - pkg/security: the NodeGate implementation
  - pkg/balance: produces Weight and Efficiency consumed in closed-loop
  - pkg/allocator: serializes calls, validates sessions first
*/
package placement
