/*
Package metrics exports Grove's Prometheus instrumentation and the
daemon's health endpoints.

Two kinds of signal live here. Counters and histograms are incremented
inline by the allocator as requests flow (allocations by outcome,
releases, latency, security events). Gauges are fed by a Collector that
polls Allocator.Metrics on a ticker and mirrors the snapshot: mean
memory utilization, mean compute load, mean efficiency, balance score,
live handle count.

# Metric Catalog

	grove_allocations_total{resource,outcome}   counter
	grove_releases_total{resource,outcome}      counter
	grove_allocation_duration_seconds{resource} histogram
	grove_live_allocations                      gauge
	grove_memory_utilization                    gauge
	grove_compute_utilization                   gauge
	grove_compute_efficiency                    gauge
	grove_balance_score                         gauge
	grove_sessions_issued_total                 counter
	grove_security_events_total{severity}       counter
	grove_rescans_total                         counter
	grove_rebalance_passes_total                counter
	grove_emergency_cleanups_total              counter

Outcome labels are the Outcome* constants; each maps onto one sentinel
in Grove's error taxonomy plus "committed"/"released" for success.

# Usage

Wiring the collector in the daemon:

	collector := metrics.NewCollector(alloc, 15*time.Second)
	collector.Start()
	defer collector.Stop()

	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/healthz", metrics.HealthHandler())
	mux.HandleFunc("/readyz", metrics.ReadyHandler())

Timing an operation:

	timer := metrics.NewTimer()
	handle, err := alloc.AllocateMemory(size, priority, session)
	timer.ObserveDurationVec(metrics.AllocationLatency, "memory")

# Health Endpoints

The health registry tracks named components (RegisterComponent /
UpdateComponent). /healthz reports unhealthy if any component is down;
/readyz additionally requires the critical components ("allocator",
"broker") to be registered and healthy, so the daemon reports not-ready
during startup and after shutdown.

# Integration Points

  - pkg/allocator: increments counters, implements the Source snapshot
  - cmd/grove: mounts the HTTP handlers and owns the collector ticker
*/
package metrics
