package tree

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/verdantlabs/grove/pkg/types"
)

// Shape bounds enforced at construction.
const (
	MinDepth    = 3
	MaxDepth    = 8
	MinBranches = 2
	MaxBranches = 16
)

// LevelScale selects how nominal per-node capacity changes with depth.
type LevelScale string

const (
	// ScaleNone divides capacity geometrically with no correction.
	ScaleNone LevelScale = "none"
	// ScaleDouble multiplies the nominal slice by 2^level, rewarding
	// depth-seeking placements. Combine with MaxPerNode to cap it.
	ScaleDouble LevelScale = "double"
)

// Config describes the shape and sizing of one capacity tree.
type Config struct {
	// Depth is the number of levels, within [MinDepth, MaxDepth].
	Depth int
	// Branches is the number of nodes per level, within [MinBranches, MaxBranches].
	Branches int
	// Total is the pool being partitioned, in capacity units. Must be positive.
	Total uint64
	// Scale applies an optional per-level multiplier before clamping.
	Scale LevelScale
	// MaxPerNode caps any single node's capacity. Zero means no ceiling.
	MaxPerNode uint64
	// PathSuffix appends an unpredictable hex suffix to every node path.
	PathSuffix bool
}

// Validate checks the config against the shape bounds.
func (c Config) Validate() error {
	if c.Depth < MinDepth || c.Depth > MaxDepth {
		return fmt.Errorf("%w: depth %d outside [%d, %d]", types.ErrInvalidConfig, c.Depth, MinDepth, MaxDepth)
	}
	if c.Branches < MinBranches || c.Branches > MaxBranches {
		return fmt.Errorf("%w: branches %d outside [%d, %d]", types.ErrInvalidConfig, c.Branches, MinBranches, MaxBranches)
	}
	if c.Total == 0 {
		return fmt.Errorf("%w: total capacity must be positive", types.ErrInvalidConfig)
	}
	switch c.Scale {
	case "", ScaleNone, ScaleDouble:
	default:
		return fmt.Errorf("%w: unknown level scale %q", types.ErrInvalidConfig, c.Scale)
	}
	return nil
}

// Allocation is one live memory reservation recorded on a node.
type Allocation struct {
	ID string
	// Size is the requested size in capacity units.
	Size uint64
	// ReservedFraction is size/capacity at commit time. Release subtracts
	// exactly this amount, so utilization round-trips without drift.
	ReservedFraction float64
	OwnerID          string
	CreatedAt        time.Time
}

// MemoryNode holds one slice of the memory pool.
type MemoryNode struct {
	Path     types.Path
	Capacity uint64
	// Utilization is the committed fraction of Capacity, always in [0, 1].
	Utilization float64
	// PriorityFloor is the highest request priority this node admits.
	// Deeper levels carry higher floors.
	PriorityFloor int
	// Weight is the balance nudge applied to placement scoring in
	// closed-loop mode. Starts at 1.0, clamped to [0.5, 1.5].
	Weight      float64
	Allocations []Allocation
}

// Available returns the uncommitted capacity in units.
func (n *MemoryNode) Available() float64 {
	return float64(n.Capacity) * (1 - n.Utilization)
}

// Span is one striped compute assignment recorded on a node.
type Span struct {
	ID    string
	Units uint64
	// LoadFraction is units/nodeUnits at commit time. Release subtracts
	// exactly this amount.
	LoadFraction float64
	OwnerID      string
	CreatedAt    time.Time
}

// ComputeNode holds one slice of the compute pool.
type ComputeNode struct {
	Path  types.Path
	Units uint64
	// Load is the committed work ratio. Unlike memory utilization it is
	// unbounded: striping admits work regardless of current load, and the
	// ratio only steers balancing.
	Load float64
	// Efficiency is the balancer's preference signal, in [0.5, 1.5].
	Efficiency float64
	Assigned   []Span
}

// MemoryTree is the fixed-shape memory capacity tree. The shape and
// per-node capacities never change after construction; node contents do.
// The tree is not safe for concurrent use; the owning allocator
// serializes access.
type MemoryTree struct {
	Depth    int
	Branches int
	// Total is the configured pool size.
	Total uint64
	// Capacity is the sum of all per-node capacities after scaling and
	// clamping. At most Total per level before scaling.
	Capacity uint64
	Levels   [][]*MemoryNode
}

// ComputeTree is the fixed-shape compute capacity tree.
type ComputeTree struct {
	Depth    int
	Branches int
	Total    uint64
	// Units is the sum of all per-node units, the most a single striped
	// request can be granted.
	Units  uint64
	Levels [][]*ComputeNode
}

// BuildMemory constructs the memory tree: Depth levels of Branches nodes,
// each node at level l holding Total/Branches^(l+1) units before scaling.
// Deeper nodes carry higher priority floors (level+1).
func BuildMemory(cfg Config) (*MemoryTree, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	t := &MemoryTree{
		Depth:    cfg.Depth,
		Branches: cfg.Branches,
		Total:    cfg.Total,
		Levels:   make([][]*MemoryNode, cfg.Depth),
	}
	for level := 0; level < cfg.Depth; level++ {
		capacity := nodeCapacity(cfg, level)
		row := make([]*MemoryNode, cfg.Branches)
		for node := 0; node < cfg.Branches; node++ {
			path, err := newPath(types.ResourceMemory, level, node, cfg.PathSuffix)
			if err != nil {
				return nil, err
			}
			row[node] = &MemoryNode{
				Path:          path,
				Capacity:      capacity,
				PriorityFloor: level + 1,
				Weight:        1.0,
			}
			t.Capacity += capacity
		}
		t.Levels[level] = row
	}
	return t, nil
}

// BuildCompute constructs the compute tree with the same shape rule.
// Compute nodes have no priority floor and start at efficiency 1.0.
func BuildCompute(cfg Config) (*ComputeTree, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	t := &ComputeTree{
		Depth:    cfg.Depth,
		Branches: cfg.Branches,
		Total:    cfg.Total,
		Levels:   make([][]*ComputeNode, cfg.Depth),
	}
	for level := 0; level < cfg.Depth; level++ {
		units := nodeCapacity(cfg, level)
		row := make([]*ComputeNode, cfg.Branches)
		for node := 0; node < cfg.Branches; node++ {
			path, err := newPath(types.ResourceCompute, level, node, cfg.PathSuffix)
			if err != nil {
				return nil, err
			}
			row[node] = &ComputeNode{
				Path:       path,
				Units:      units,
				Efficiency: 1.0,
			}
			t.Units += units
		}
		t.Levels[level] = row
	}
	return t, nil
}

// Node returns the memory node at (level, index), or nil when out of range.
func (t *MemoryTree) Node(level, index int) *MemoryNode {
	if level < 0 || level >= len(t.Levels) {
		return nil
	}
	row := t.Levels[level]
	if index < 0 || index >= len(row) {
		return nil
	}
	return row[index]
}

// Node returns the compute node at (level, index), or nil when out of range.
func (t *ComputeTree) Node(level, index int) *ComputeNode {
	if level < 0 || level >= len(t.Levels) {
		return nil
	}
	row := t.Levels[level]
	if index < 0 || index >= len(row) {
		return nil
	}
	return row[index]
}

// Reset drops every allocation record and zeroes utilization on all nodes.
// Shape, capacities, priority floors, and balance weights are preserved.
func (t *MemoryTree) Reset() {
	for _, row := range t.Levels {
		for _, n := range row {
			n.Allocations = nil
			n.Utilization = 0
		}
	}
}

// Reset drops every span record and zeroes load on all nodes. Efficiency
// values survive; they are balancer state, not allocation state.
func (t *ComputeTree) Reset() {
	for _, row := range t.Levels {
		for _, n := range row {
			n.Assigned = nil
			n.Load = 0
		}
	}
}

// Utilizations returns every node's utilization in level-major order.
func (t *MemoryTree) Utilizations() []float64 {
	out := make([]float64, 0, t.Depth*t.Branches)
	for _, row := range t.Levels {
		for _, n := range row {
			out = append(out, n.Utilization)
		}
	}
	return out
}

// Loads returns every node's load ratio in level-major order.
func (t *ComputeTree) Loads() []float64 {
	out := make([]float64, 0, t.Depth*t.Branches)
	for _, row := range t.Levels {
		for _, n := range row {
			out = append(out, n.Load)
		}
	}
	return out
}

// Efficiencies returns every node's efficiency in level-major order.
func (t *ComputeTree) Efficiencies() []float64 {
	out := make([]float64, 0, t.Depth*t.Branches)
	for _, row := range t.Levels {
		for _, n := range row {
			out = append(out, n.Efficiency)
		}
	}
	return out
}

// nodeCapacity computes one node's capacity at the given level: the
// geometric slice Total/Branches^(level+1), scaled, then clamped.
func nodeCapacity(cfg Config, level int) uint64 {
	divisor := pow(uint64(cfg.Branches), level+1)
	capacity := cfg.Total / divisor
	if cfg.Scale == ScaleDouble {
		capacity <<= uint(level)
	}
	if cfg.MaxPerNode > 0 && capacity > cfg.MaxPerNode {
		capacity = cfg.MaxPerNode
	}
	return capacity
}

func pow(base uint64, exp int) uint64 {
	result := uint64(1)
	for i := 0; i < exp; i++ {
		result *= base
	}
	return result
}

// newPath builds the node's path, appending an 8-hex-char crypto/rand
// suffix when hashing is enabled.
func newPath(kind types.ResourceKind, level, node int, suffix bool) (types.Path, error) {
	p := types.Path{Kind: kind, Level: level, Node: node}
	if !suffix {
		return p, nil
	}
	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		return types.Path{}, fmt.Errorf("failed to generate path suffix: %w", err)
	}
	p.Suffix = hex.EncodeToString(buf)
	return p, nil
}
