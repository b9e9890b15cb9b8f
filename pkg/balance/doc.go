/*
Package balance implements Grove's self-similar load-balancing feedback.

Rebalance is a pure feedback pass: it reads observed load off both trees
and adjusts per-node preference signals. It takes no input, returns no
error, and mutates nothing an allocation depends on for correctness —
the signals only steer future placement, and only when the allocator is
configured closed-loop.

# Compute Feedback

	mean = mean(load across all compute nodes)
	load > 1.2 × mean  →  efficiency ×= 0.95   (hot, diminish)
	load < 0.8 × mean  →  efficiency ×= 1.05   (cold, prefer)
	clamp to [0.5, 1.5]

Nodes inside the band hold steady, so a uniformly loaded tree is a
fixed point. An idle tree (mean 0) is left untouched entirely.

# Memory Self-Similarity

The memory pass applies the same comparison recursively down the tree:
each level's nodes are judged against the mean utilization of the level
below. Parents whose children run hotter gain placement weight, pulling
future allocations up where slack lives; parents hovering over cooler
children shed weight. The same nudge factors and clamp bounds apply,
which is the point — one partitioning rule, one balancing rule, every
level.

# Open Loop vs Closed Loop

Whether these signals feed back into placement is the allocator's
ClosedLoop config, not the balancer's concern. Open loop (default),
the signals are still computed and exported through Metrics and
Prometheus — observable, not steering. See pkg/placement for how the
closed loop consumes Weight and Efficiency.

# Scheduling

The balancer runs no timer of its own. The grove daemon owns a
rebalance ticker and calls Allocator.Rebalance, which serializes this
pass under the allocator-wide lock.

# Integration Points

  - pkg/tree: Efficiency and Weight fields on the node structures
  - pkg/placement: consumes the signals in closed-loop mode
  - pkg/allocator: exposes Rebalance and snapshots mean efficiency
*/
package balance
