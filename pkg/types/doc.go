/*
Package types defines the core data structures used throughout Grove.

This package contains the fundamental types shared by every other package:
resource kinds, tree coordinates, allocation handles, security severities,
and metric snapshots. It also defines the sentinel errors that form Grove's
error taxonomy. Keeping these in a leaf package avoids import cycles between
the tree, placement, security, and allocator packages.

# Architecture

The types package is the foundation of Grove's data model. It defines:

  - Resource kinds (memory, compute)
  - Tree coordinates (Path: kind, level, node)
  - Allocation handles (opaque claim records)
  - Security event severities
  - Metric snapshots (utilization, efficiency, balance)
  - Sentinel errors for the public API

All types are designed to be:
  - Serializable (JSON for the audit journal)
  - Immutable after construction (handles are value types)
  - Self-documenting (clear field names and comments)
  - Comparable where useful (Path is a valid map key without its suffix)

# Core Types

Resource Identity:
  - ResourceKind: Memory or compute, typed string constant
  - Path: Position of a node within one of the capacity trees
  - Handle: Opaque record returned by every successful allocation

Security:
  - Severity: Low, medium, high, critical event grades

Observability:
  - Snapshot: Point-in-time utilization and balance figures

# Usage

Reading a handle returned by the allocator:

	handle, err := alloc.AllocateMemory(64, 2, session)
	if err != nil {
		return err
	}
	fmt.Println(handle.Path.String()) // "L2N5-a3f9c2d1"
	fmt.Println(handle.Units)         // 64

Collecting the paths from a striped compute allocation:

	handles, err := alloc.AllocateCompute(2500, session)
	if err != nil {
		return err
	}
	for _, p := range types.Paths(handles) {
		fmt.Println(p.String()) // "C0N0", "C0N1", ...
	}

Matching sentinel errors:

	_, err := alloc.AllocateMemory(1<<40, 1, session)
	if errors.Is(err, types.ErrInsufficientCapacity) {
		// back off and retry later
	}

# Error Taxonomy

Every error returned by the public allocator API wraps exactly one of the
sentinels defined in errors.go:

  - ErrInvalidConfig: construction-time rejection, not recoverable
  - ErrSessionExpired: caller must obtain a fresh session
  - ErrInsufficientCapacity: transient, retry after Release or Rebalance
  - ErrUnknownHandle: release of a foreign or already-released handle
  - ErrClosed: allocator has been shut down

Callers are expected to match with errors.Is rather than string
comparison. Wrapped messages add context (sizes, priorities, token
prefixes) but the sentinel identity is the contract.

# Path Encoding

Path.String renders a compact coordinate: the kind prefix ("L" for memory
levels, "C" for compute), the level index, "N", and the node index.
A non-empty Suffix is appended after a dash:

	L2N5            memory tree, level 2, node 5
	C1N3            compute tree, level 1, node 3
	L0N0-9f2ac81b   memory root child with allocation suffix

The suffix is assigned at tree construction when path hashing is enabled.
It makes node identifiers unpredictable, so a caller cannot guess the
path of a node it was never granted. Level and Node alone identify the
physical node; the suffix is identity camouflage, not addressing.

# Integration Points

This package is imported by:

  - pkg/tree: node coordinates and capacity math
  - pkg/security: severities and session errors
  - pkg/placement: handles and placement errors
  - pkg/allocator: the public API surface re-exports these types
  - pkg/journal: JSON serialization of handles into the audit log
  - pkg/events: event payloads carry handles and paths

# Thread Safety

All types in this package are plain data. Handles and Paths are value
types safe to copy across goroutines. Synchronization is the allocator's
responsibility, not the data model's.
*/
package types
