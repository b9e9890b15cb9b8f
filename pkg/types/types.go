package types

import (
	"fmt"
	"time"
)

// ResourceKind identifies which capacity tree a path or handle refers to.
type ResourceKind string

const (
	ResourceMemory  ResourceKind = "memory"
	ResourceCompute ResourceKind = "compute"
)

// Path identifies a single node inside a capacity tree. Level and Node are
// carried directly so callers never recover them by parsing the rendered
// string form.
type Path struct {
	Kind   ResourceKind
	Level  int
	Node   int
	Suffix string // unpredictable hex suffix, empty unless path hashing is enabled
}

// String renders the canonical path form, e.g. "L2N5" for memory nodes and
// "C1N3" for compute nodes, with "-<suffix>" appended when hashing is on.
func (p Path) String() string {
	prefix := "L"
	if p.Kind == ResourceCompute {
		prefix = "C"
	}
	if p.Suffix == "" {
		return fmt.Sprintf("%s%dN%d", prefix, p.Level, p.Node)
	}
	return fmt.Sprintf("%s%dN%d-%s", prefix, p.Level, p.Node, p.Suffix)
}

// Handle is the receipt returned for a committed allocation. It is the only
// way to later release or query that allocation. A memory allocation yields
// one handle; a compute allocation yields one handle per striped span, in
// stripe order.
type Handle struct {
	ID        string // unique allocation identifier
	Resource  ResourceKind
	Path      Path
	Level     int
	Node      int
	Units     uint64 // size for memory, span units for compute
	OwnerID   string
	CreatedAt time.Time
}

// Paths extracts the ordered path list from a slice of handles, matching the
// path-list form of a compute grant.
func Paths(handles []Handle) []Path {
	paths := make([]Path, len(handles))
	for i, h := range handles {
		paths[i] = h.Path
	}
	return paths
}

// Severity grades a security event. Higher severities cost more trust.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Snapshot is a read-only view of allocator-wide load, taken atomically
// under the allocator lock.
type Snapshot struct {
	// MemoryUtilization is the mean utilization across all memory nodes.
	MemoryUtilization float64
	// ComputeUtilization is the mean load ratio across all compute nodes.
	// Unlike memory utilization it may exceed 1.0.
	ComputeUtilization float64
	// Efficiency is the mean efficiency across all compute nodes, in [0.5, 1.5].
	Efficiency float64
	// BalanceScore is 1/(1+Var(memory)+Var(compute)), clamped to [0, 1].
	// Higher means load is spread more evenly across the trees.
	BalanceScore float64
	// LiveAllocations counts currently held handles across both trees.
	LiveAllocations int
	// TakenAt records when the snapshot was captured.
	TakenAt time.Time
}
