package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Allocation metrics
	AllocationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "grove_allocations_total",
			Help: "Total number of allocation requests by resource and outcome",
		},
		[]string{"resource", "outcome"},
	)

	ReleasesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "grove_releases_total",
			Help: "Total number of release calls by resource and outcome",
		},
		[]string{"resource", "outcome"},
	)

	AllocationLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "grove_allocation_duration_seconds",
			Help:    "Allocation request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"resource"},
	)

	LiveAllocations = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "grove_live_allocations",
			Help: "Currently held allocation handles across both trees",
		},
	)

	// Tree utilization metrics
	MemoryUtilization = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "grove_memory_utilization",
			Help: "Mean utilization across all memory nodes",
		},
	)

	ComputeUtilization = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "grove_compute_utilization",
			Help: "Mean load ratio across all compute nodes",
		},
	)

	Efficiency = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "grove_compute_efficiency",
			Help: "Mean compute-node efficiency signal",
		},
	)

	BalanceScore = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "grove_balance_score",
			Help: "Tree balance score in [0,1], higher is better balanced",
		},
	)

	// Security metrics
	SessionsIssued = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "grove_sessions_issued_total",
			Help: "Total number of sessions issued by the security gate",
		},
	)

	SecurityEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "grove_security_events_total",
			Help: "Total number of recorded security events by severity",
		},
		[]string{"severity"},
	)

	RescansTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "grove_rescans_total",
			Help: "Total number of node trust rescans",
		},
	)

	// Lifecycle metrics
	RebalancePasses = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "grove_rebalance_passes_total",
			Help: "Total number of balancer feedback passes",
		},
	)

	EmergencyCleanups = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "grove_emergency_cleanups_total",
			Help: "Total number of emergency cleanup sweeps",
		},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(AllocationsTotal)
	prometheus.MustRegister(ReleasesTotal)
	prometheus.MustRegister(AllocationLatency)
	prometheus.MustRegister(LiveAllocations)
	prometheus.MustRegister(MemoryUtilization)
	prometheus.MustRegister(ComputeUtilization)
	prometheus.MustRegister(Efficiency)
	prometheus.MustRegister(BalanceScore)
	prometheus.MustRegister(SessionsIssued)
	prometheus.MustRegister(SecurityEventsTotal)
	prometheus.MustRegister(RescansTotal)
	prometheus.MustRegister(RebalancePasses)
	prometheus.MustRegister(EmergencyCleanups)
}

// Outcome labels used with AllocationsTotal and ReleasesTotal.
const (
	OutcomeCommitted    = "committed"
	OutcomeInsufficient = "insufficient_capacity"
	OutcomeExpired      = "session_expired"
	OutcomeUnknown      = "unknown_handle"
	OutcomeInvalid      = "invalid_request"
	OutcomeClosed       = "closed"
	OutcomeReleased     = "released"
)

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
