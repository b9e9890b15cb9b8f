package balance

import (
	"gonum.org/v1/gonum/stat"

	"github.com/verdantlabs/grove/pkg/log"
	"github.com/verdantlabs/grove/pkg/tree"
)

// Feedback bounds and nudge factors. Efficiency and weight both live in
// [Min, Max]; overloaded nodes are penalized, underloaded ones rewarded.
const (
	Min = 0.5
	Max = 1.5

	Penalty = 0.95
	Reward  = 1.05

	// HighWater and LowWater bracket the mean: a compute node above
	// 1.2× the mean load is hot, below 0.8× is cold.
	HighWater = 1.2
	LowWater  = 0.8
)

// Balancer recomputes per-node feedback signals from observed load.
// It holds no lock; the owning allocator serializes Rebalance against
// allocation traffic.
type Balancer struct {
	memory  *tree.MemoryTree
	compute *tree.ComputeTree
}

// New creates a balancer over the two trees.
func New(memory *tree.MemoryTree, compute *tree.ComputeTree) *Balancer {
	return &Balancer{memory: memory, compute: compute}
}

// Rebalance runs one feedback pass over both trees. Best-effort, no
// failure mode: with no load everything drifts back toward neutral.
func (b *Balancer) Rebalance() {
	b.rebalanceCompute()
	b.rebalanceMemory()
}

// rebalanceCompute compares every node's load against the tree-wide
// mean and nudges its efficiency: hot nodes lose future preference,
// cold nodes gain it.
func (b *Balancer) rebalanceCompute() {
	loads := b.compute.Loads()
	if len(loads) == 0 {
		return
	}
	mean := stat.Mean(loads, nil)
	if mean == 0 {
		return
	}

	for _, row := range b.compute.Levels {
		for _, node := range row {
			switch {
			case node.Load > HighWater*mean:
				node.Efficiency = clamp(node.Efficiency * Penalty)
			case node.Load < LowWater*mean:
				node.Efficiency = clamp(node.Efficiency * Reward)
			}
		}
	}

	logger := log.WithComponent("balance")
	logger.Debug().
		Float64("mean_load", mean).
		Msg("compute efficiency pass complete")
}

// rebalanceMemory is the self-similarity pass: each parent level is
// compared against the mean utilization of the level below it. Parents
// whose children run hotter gain weight so future placements favor
// them and drain slack downward; parents over cooler children shed it.
func (b *Balancer) rebalanceMemory() {
	for level := 0; level < len(b.memory.Levels)-1; level++ {
		children := b.memory.Levels[level+1]
		childUtils := make([]float64, len(children))
		for i, c := range children {
			childUtils[i] = c.Utilization
		}
		childMean := stat.Mean(childUtils, nil)

		for _, parent := range b.memory.Levels[level] {
			switch {
			case childMean > parent.Utilization:
				parent.Weight = clamp(parent.Weight * Reward)
			case childMean < parent.Utilization:
				parent.Weight = clamp(parent.Weight * Penalty)
			}
		}
	}
}

func clamp(v float64) float64 {
	if v < Min {
		return Min
	}
	if v > Max {
		return Max
	}
	return v
}
