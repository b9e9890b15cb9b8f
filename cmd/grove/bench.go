package main

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"

	"github.com/verdantlabs/grove/pkg/allocator"
	"github.com/verdantlabs/grove/pkg/log"
	"github.com/verdantlabs/grove/pkg/types"
)

var benchCmd = &cobra.Command{
	Use:   "bench",
	Short: "Drive the allocator under concurrent load",
	Long: `Run a concurrent load harness against an in-process allocator and
print the outcome counts and final snapshot. Every caller allocates,
optionally stripes compute work, and releases what it was granted.

Examples:
  # 20 callers, 50 memory allocations each
  grove bench --callers 20 --allocs 50 --size 64

  # Add a compute stripe per caller and keep allocations held
  grove bench --callers 8 --allocs 100 --compute 500 --no-release`,
	RunE: runBench,
}

func init() {
	benchCmd.Flags().Int("callers", 20, "Concurrent caller goroutines")
	benchCmd.Flags().Int("allocs", 50, "Memory allocations per caller")
	benchCmd.Flags().Uint64("size", 64, "Size of each memory allocation")
	benchCmd.Flags().Int("priority", 1, "Priority of each allocation")
	benchCmd.Flags().Uint64("compute", 0, "Compute units striped per caller (0 = none)")
	benchCmd.Flags().Int("depth", 4, "Tree depth")
	benchCmd.Flags().Int("branches", 4, "Nodes per level")
	benchCmd.Flags().Uint64("memory", 1<<30, "Total memory pool")
	benchCmd.Flags().Uint64("compute-pool", 100000, "Total compute pool")
	benchCmd.Flags().Bool("no-release", false, "Hold allocations until shutdown")

	rootCmd.AddCommand(benchCmd)
}

func runBench(cmd *cobra.Command, args []string) error {
	callers, _ := cmd.Flags().GetInt("callers")
	allocs, _ := cmd.Flags().GetInt("allocs")
	size, _ := cmd.Flags().GetUint64("size")
	priority, _ := cmd.Flags().GetInt("priority")
	computeUnits, _ := cmd.Flags().GetUint64("compute")
	depth, _ := cmd.Flags().GetInt("depth")
	branches, _ := cmd.Flags().GetInt("branches")
	totalMemory, _ := cmd.Flags().GetUint64("memory")
	totalCompute, _ := cmd.Flags().GetUint64("compute-pool")
	noRelease, _ := cmd.Flags().GetBool("no-release")

	log.Init(log.Config{Level: log.WarnLevel})

	alloc, err := allocator.New(allocator.Config{
		Depth:        depth,
		Branches:     branches,
		TotalMemory:  totalMemory,
		TotalCompute: totalCompute,
	})
	if err != nil {
		return fmt.Errorf("failed to create allocator: %w", err)
	}
	defer alloc.Shutdown()

	var committed, exhausted, failed atomic.Uint64

	start := time.Now()
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			session, err := alloc.IssueSession()
			if err != nil {
				failed.Add(1)
				return
			}

			var handles []types.Handle
			for j := 0; j < allocs; j++ {
				h, err := alloc.AllocateMemory(size, priority, session)
				switch {
				case err == nil:
					committed.Add(1)
					handles = append(handles, h)
				case errors.Is(err, types.ErrInsufficientCapacity):
					exhausted.Add(1)
				default:
					failed.Add(1)
				}
			}

			if computeUnits > 0 {
				spans, err := alloc.AllocateCompute(computeUnits, session)
				switch {
				case err == nil:
					committed.Add(1)
					handles = append(handles, spans...)
				case errors.Is(err, types.ErrInsufficientCapacity):
					exhausted.Add(1)
				default:
					failed.Add(1)
				}
			}

			if !noRelease {
				for _, h := range handles {
					if err := alloc.Release(h); err != nil {
						failed.Add(1)
					}
				}
			}
		}()
	}
	wg.Wait()
	elapsed := time.Since(start)

	snap := alloc.Metrics()

	fmt.Printf("Callers:             %d\n", callers)
	fmt.Printf("Elapsed:             %s\n", elapsed.Round(time.Millisecond))
	fmt.Printf("Committed:           %d\n", committed.Load())
	fmt.Printf("Capacity exhausted:  %d\n", exhausted.Load())
	fmt.Printf("Failed:              %d\n", failed.Load())
	fmt.Println()
	fmt.Printf("Memory utilization:  %.4f\n", snap.MemoryUtilization)
	fmt.Printf("Compute utilization: %.4f\n", snap.ComputeUtilization)
	fmt.Printf("Efficiency:          %.4f\n", snap.Efficiency)
	fmt.Printf("Balance score:       %.4f\n", snap.BalanceScore)
	fmt.Printf("Live allocations:    %d\n", snap.LiveAllocations)
	return nil
}
