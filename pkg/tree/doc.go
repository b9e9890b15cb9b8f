/*
Package tree builds Grove's fixed-shape capacity trees.

A capacity tree partitions one bounded resource pool (memory or compute)
into depth × branches nodes. Each level splits the pool geometrically:
a node at level l holds total/branches^(l+1) units, so deeper levels hold
exponentially smaller slices. The shape is fixed at construction; only
node contents (allocations, utilization, load, efficiency) mutate.

# Architecture

	┌──────────────── CAPACITY TREE (depth=3, branches=4) ───────────────┐
	│                                                                    │
	│  Level 0   [N0: T/4]   [N1: T/4]   [N2: T/4]   [N3: T/4]           │
	│            floor=1     floor=1     floor=1     floor=1             │
	│                                                                    │
	│  Level 1   [N0: T/16]  [N1: T/16]  [N2: T/16]  [N3: T/16]          │
	│            floor=2     floor=2     floor=2     floor=2             │
	│                                                                    │
	│  Level 2   [N0: T/64]  [N1: T/64]  [N2: T/64]  [N3: T/64]          │
	│            floor=3     floor=3     floor=3     floor=3             │
	│                                                                    │
	│  Self-similar rule: every level applies the same split.            │
	│  Sum per level never exceeds T (integer division floors).          │
	└────────────────────────────────────────────────────────────────────┘

Two parallel trees are built from the same Config shape:

  - MemoryTree: nodes admit bounded reservations. Utilization stays in
    [0, 1]; a node's spare capacity is Capacity × (1 − Utilization).
  - ComputeTree: nodes accept striped work spans. Load is an unbounded
    ratio used only for balancing, never for admission.

# Core Components

Config:
  - Depth ∈ [3, 8], Branches ∈ [2, 16], Total > 0
  - Scale: optional per-level multiplier (ScaleDouble = ×2^level)
  - MaxPerNode: hard per-node ceiling applied after scaling
  - PathSuffix: unpredictable 8-hex-char suffix on every node path

MemoryNode:
  - Capacity, Utilization, ordered Allocations
  - PriorityFloor = level+1: deeper nodes admit higher priorities
  - Weight: balance nudge consulted by closed-loop placement

ComputeNode:
  - Units, Load, Assigned spans
  - Efficiency ∈ [0.5, 1.5]: the balancer's preference signal

# Level Scaling

ScaleDouble multiplies the nominal slice by 2^level before the ceiling
is applied. With branches=2 the doubling exactly cancels the geometric
split and every level holds equal slices; with more branches it softens
the decay so deep, high-floor nodes stay attractive to the placement
engine's depth tie-break. MaxPerNode caps the result so scaling can
never mint capacity past a configured per-node bound.

# Usage

Building the trees:

	mem, err := tree.BuildMemory(tree.Config{
		Depth:    3,
		Branches: 4,
		Total:    1024,
	})
	if err != nil {
		return err
	}
	comp, err := tree.BuildCompute(tree.Config{
		Depth:    3,
		Branches: 4,
		Total:    1000,
	})

Inspecting a node:

	node := mem.Node(2, 5)
	if node != nil {
		fmt.Println(node.Path.String(), node.Available())
	}

Feeding the snapshot math:

	meanUtil := stat.Mean(mem.Utilizations(), nil)
	loadVar := stat.PopVariance(comp.Loads(), nil)

# Invariants

  - Per-level capacity sum never exceeds Total (before scaling).
  - Shape is immutable: Build is the only function that creates nodes.
  - Reset clears allocation state only; capacities, floors, weights,
    and efficiencies survive.
  - Path (Kind, Level, Node) uniquely identifies a node; the optional
    suffix adds unpredictability, not identity.

# Thread Safety

Trees are NOT safe for concurrent use. The allocator owns both trees
behind a single mutex and is the only package that touches them after
construction. Build itself is safe to call from any goroutine.

# Integration Points

  - pkg/placement: walks Levels, commits allocations and spans
  - pkg/balance: adjusts Efficiency and Weight
  - pkg/allocator: owns the trees, drives Reset on shutdown
  - pkg/security: tracks per-node trust keyed by (kind, level, node)

# See Also

  - pkg/placement for the candidate search over these nodes
  - pkg/balance for the efficiency feedback loop
  - pkg/types for Path and ResourceKind
*/
package tree
