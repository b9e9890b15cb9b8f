package placement

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/verdantlabs/grove/pkg/log"
	"github.com/verdantlabs/grove/pkg/tree"
	"github.com/verdantlabs/grove/pkg/types"
)

// NodeGate filters candidate nodes during search. Implemented by
// security.Gate; a test double can stand in.
type NodeGate interface {
	ValidateNode(kind types.ResourceKind, level, node int) bool
}

// Config selects the engine's optional behaviors.
type Config struct {
	// ClosedLoop makes the balancer's signals steer placement: memory
	// candidates are scored by weighted available capacity, and compute
	// striping visits nodes in efficiency-descending order. When false
	// the signals are tracked and exported but never consulted.
	ClosedLoop bool
	// DropExcess restores lenient compute striping: complexity beyond
	// total tree capacity is silently under-assigned instead of failing
	// with ErrInsufficientCapacity.
	DropExcess bool
}

// Engine searches the capacity trees and commits allocations. It holds
// no lock of its own; the owning allocator serializes all calls.
type Engine struct {
	cfg     Config
	memory  *tree.MemoryTree
	compute *tree.ComputeTree
	gate    NodeGate
}

// NewEngine creates an engine over the two trees.
func NewEngine(cfg Config, memory *tree.MemoryTree, compute *tree.ComputeTree, gate NodeGate) *Engine {
	return &Engine{
		cfg:     cfg,
		memory:  memory,
		compute: compute,
		gate:    gate,
	}
}

// candidate is one qualifying memory node during search.
type candidate struct {
	node      *tree.MemoryNode
	level     int
	index     int
	available float64
	score     float64
}

// AllocateMemory finds the best-fitting memory node and commits the
// reservation. Candidates need spare capacity ≥ size and a priority
// floor ≥ the request priority; the winner has the highest (weighted)
// available capacity, deeper level breaking ties.
func (e *Engine) AllocateMemory(size uint64, priority int, owner string) (types.Handle, error) {
	if size == 0 {
		return types.Handle{}, fmt.Errorf("%w: allocation size must be positive", types.ErrInvalidConfig)
	}
	if priority < 1 {
		return types.Handle{}, fmt.Errorf("%w: priority must be at least 1", types.ErrInvalidConfig)
	}

	var candidates []candidate
	for level, row := range e.memory.Levels {
		for index, node := range row {
			if !e.gate.ValidateNode(types.ResourceMemory, level, index) {
				continue
			}
			available := node.Available()
			if available < float64(size) || node.PriorityFloor < priority {
				continue
			}
			score := available
			if e.cfg.ClosedLoop {
				score *= node.Weight
			}
			candidates = append(candidates, candidate{
				node:      node,
				level:     level,
				index:     index,
				available: available,
				score:     score,
			})
		}
	}
	if len(candidates) == 0 {
		return types.Handle{}, fmt.Errorf("%w: no node fits size %d at priority %d",
			types.ErrInsufficientCapacity, size, priority)
	}

	// Highest score wins; deeper level breaks ties so detail-oriented
	// high-priority work sinks toward the fine-grained slices.
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].level > candidates[j].level
	})

	best := candidates[0]
	fraction := float64(size) / float64(best.node.Capacity)
	now := time.Now()
	alloc := tree.Allocation{
		ID:               uuid.New().String(),
		Size:             size,
		ReservedFraction: fraction,
		OwnerID:          owner,
		CreatedAt:        now,
	}
	best.node.Allocations = append(best.node.Allocations, alloc)
	best.node.Utilization += fraction

	logger := log.WithComponent("placement")
	logger.Debug().
		Str("path", best.node.Path.String()).
		Uint64("size", size).
		Int("priority", priority).
		Float64("utilization", best.node.Utilization).
		Msg("memory allocation committed")

	return types.Handle{
		ID:        alloc.ID,
		Resource:  types.ResourceMemory,
		Path:      best.node.Path,
		Level:     best.level,
		Node:      best.index,
		Units:     size,
		OwnerID:   owner,
		CreatedAt: now,
	}, nil
}

// stripeTarget is one compute node in striping order.
type stripeTarget struct {
	node  *tree.ComputeNode
	level int
	index int
}

// AllocateCompute stripes complexity units across compute nodes, each
// absorbing up to its full capacity, and returns one handle per span in
// stripe order. In strict mode (the default) a request exceeding the
// eligible tree capacity fails whole with ErrInsufficientCapacity and
// commits nothing; DropExcess restores lenient under-assignment.
func (e *Engine) AllocateCompute(units uint64, owner string) ([]types.Handle, error) {
	if units == 0 {
		return nil, fmt.Errorf("%w: complexity units must be positive", types.ErrInvalidConfig)
	}

	targets := e.stripeOrder()
	if !e.cfg.DropExcess {
		var capacity uint64
		for _, t := range targets {
			capacity += t.node.Units
		}
		if units > capacity {
			return nil, fmt.Errorf("%w: %d complexity units exceed eligible tree capacity %d",
				types.ErrInsufficientCapacity, units, capacity)
		}
	}

	var handles []types.Handle
	remaining := units
	now := time.Now()
	for _, t := range targets {
		if remaining == 0 {
			break
		}
		if t.node.Units == 0 {
			continue
		}
		assigned := remaining
		if assigned > t.node.Units {
			assigned = t.node.Units
		}
		fraction := float64(assigned) / float64(t.node.Units)
		span := tree.Span{
			ID:           uuid.New().String(),
			Units:        assigned,
			LoadFraction: fraction,
			OwnerID:      owner,
			CreatedAt:    now,
		}
		t.node.Assigned = append(t.node.Assigned, span)
		t.node.Load += fraction
		remaining -= assigned

		handles = append(handles, types.Handle{
			ID:        span.ID,
			Resource:  types.ResourceCompute,
			Path:      t.node.Path,
			Level:     t.level,
			Node:      t.index,
			Units:     assigned,
			OwnerID:   owner,
			CreatedAt: now,
		})
	}

	if len(handles) == 0 {
		return nil, fmt.Errorf("%w: no eligible compute node", types.ErrInsufficientCapacity)
	}

	logger := log.WithComponent("placement")
	logger.Debug().
		Uint64("units", units).
		Uint64("dropped", remaining).
		Int("spans", len(handles)).
		Msg("compute striping committed")

	return handles, nil
}

// stripeOrder returns eligible compute nodes in level-major order, or in
// efficiency-descending order when the loop is closed.
func (e *Engine) stripeOrder() []stripeTarget {
	var targets []stripeTarget
	for level, row := range e.compute.Levels {
		for index, node := range row {
			if !e.gate.ValidateNode(types.ResourceCompute, level, index) {
				continue
			}
			targets = append(targets, stripeTarget{node: node, level: level, index: index})
		}
	}
	if e.cfg.ClosedLoop {
		sort.SliceStable(targets, func(i, j int) bool {
			return targets[i].node.Efficiency > targets[j].node.Efficiency
		})
	}
	return targets
}

// Release returns a committed allocation to its node. The handle must
// name a live record with a matching owner; anything else, including a
// second release of the same handle, fails with ErrUnknownHandle.
func (e *Engine) Release(h types.Handle) error {
	switch h.Resource {
	case types.ResourceMemory:
		return e.releaseMemory(h)
	case types.ResourceCompute:
		return e.releaseCompute(h)
	default:
		return fmt.Errorf("%w: unknown resource kind %q", types.ErrUnknownHandle, h.Resource)
	}
}

func (e *Engine) releaseMemory(h types.Handle) error {
	node := e.memory.Node(h.Level, h.Node)
	if node == nil {
		return fmt.Errorf("%w: no memory node at level %d index %d", types.ErrUnknownHandle, h.Level, h.Node)
	}
	for i, alloc := range node.Allocations {
		if alloc.ID != h.ID {
			continue
		}
		if alloc.OwnerID != h.OwnerID {
			return fmt.Errorf("%w: owner mismatch on %s", types.ErrUnknownHandle, h.ID)
		}
		node.Allocations = append(node.Allocations[:i], node.Allocations[i+1:]...)
		node.Utilization -= alloc.ReservedFraction
		if node.Utilization < 0 {
			node.Utilization = 0
		}
		logger := log.WithComponent("placement")
		logger.Debug().
			Str("path", node.Path.String()).
			Uint64("size", alloc.Size).
			Float64("utilization", node.Utilization).
			Msg("memory allocation released")
		return nil
	}
	return fmt.Errorf("%w: no live allocation %s on %s", types.ErrUnknownHandle, h.ID, node.Path.String())
}

func (e *Engine) releaseCompute(h types.Handle) error {
	node := e.compute.Node(h.Level, h.Node)
	if node == nil {
		return fmt.Errorf("%w: no compute node at level %d index %d", types.ErrUnknownHandle, h.Level, h.Node)
	}
	for i, span := range node.Assigned {
		if span.ID != h.ID {
			continue
		}
		if span.OwnerID != h.OwnerID {
			return fmt.Errorf("%w: owner mismatch on %s", types.ErrUnknownHandle, h.ID)
		}
		node.Assigned = append(node.Assigned[:i], node.Assigned[i+1:]...)
		node.Load -= span.LoadFraction
		if node.Load < 0 {
			node.Load = 0
		}
		return nil
	}
	return fmt.Errorf("%w: no live span %s on %s", types.ErrUnknownHandle, h.ID, node.Path.String())
}

// LiveAllocations counts committed records across both trees.
func (e *Engine) LiveAllocations() int {
	count := 0
	for _, row := range e.memory.Levels {
		for _, node := range row {
			count += len(node.Allocations)
		}
	}
	for _, row := range e.compute.Levels {
		for _, node := range row {
			count += len(node.Assigned)
		}
	}
	return count
}
