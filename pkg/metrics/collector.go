package metrics

import (
	"time"

	"github.com/verdantlabs/grove/pkg/types"
)

// Source is anything that can produce a point-in-time snapshot. The
// allocator implements it.
type Source interface {
	Metrics() types.Snapshot
}

// Collector periodically snapshots the source and exports the figures
// as Prometheus gauges.
type Collector struct {
	source   Source
	interval time.Duration
	stopCh   chan struct{}
}

// NewCollector creates a collector polling the source at the given
// interval (15s when zero).
func NewCollector(source Source, interval time.Duration) *Collector {
	if interval == 0 {
		interval = 15 * time.Second
	}
	return &Collector{
		source:   source,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start begins collecting metrics
func (c *Collector) Start() {
	ticker := time.NewTicker(c.interval)
	go func() {
		// Collect immediately on start
		c.collect()

		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	snap := c.source.Metrics()

	MemoryUtilization.Set(snap.MemoryUtilization)
	ComputeUtilization.Set(snap.ComputeUtilization)
	Efficiency.Set(snap.Efficiency)
	BalanceScore.Set(snap.BalanceScore)
	LiveAllocations.Set(float64(snap.LiveAllocations))
}
