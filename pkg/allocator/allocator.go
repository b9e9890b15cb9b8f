package allocator

import (
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/verdantlabs/grove/pkg/balance"
	"github.com/verdantlabs/grove/pkg/events"
	"github.com/verdantlabs/grove/pkg/log"
	"github.com/verdantlabs/grove/pkg/metrics"
	"github.com/verdantlabs/grove/pkg/placement"
	"github.com/verdantlabs/grove/pkg/security"
	"github.com/verdantlabs/grove/pkg/tree"
	"github.com/verdantlabs/grove/pkg/types"
)

// Config carries every construction-time parameter. All validation
// happens in New; a running allocator is never reconfigured.
type Config struct {
	// Depth and Branches fix both trees' shape, within tree bounds.
	Depth    int
	Branches int
	// TotalMemory and TotalCompute are the two pools, in capacity units.
	TotalMemory  uint64
	TotalCompute uint64
	// MaxPerNode caps any single node's slice after scaling. Zero = none.
	MaxPerNode uint64
	// Scale selects the per-level capacity multiplier.
	Scale tree.LevelScale
	// PathSuffix enables unpredictable path hashing on node identifiers.
	PathSuffix bool
	// SessionTimeout is the default lifetime of issued sessions.
	SessionTimeout time.Duration
	// TrustThreshold and ScanWindow tune the security gate.
	TrustThreshold float64
	ScanWindow     time.Duration
	// ClosedLoop feeds balancer signals back into placement scoring.
	// Default off: signals are tracked and exported only.
	ClosedLoop bool
	// DropExcess restores lenient compute striping instead of strict
	// whole-request capacity checks.
	DropExcess bool
}

// Validate checks every field against its bounds.
func (c Config) Validate() error {
	if err := (tree.Config{Depth: c.Depth, Branches: c.Branches, Total: c.TotalMemory, Scale: c.Scale}).Validate(); err != nil {
		return err
	}
	if c.TotalCompute == 0 {
		return fmt.Errorf("%w: total compute must be positive", types.ErrInvalidConfig)
	}
	if c.TrustThreshold < 0 || c.TrustThreshold >= security.MaxTrust {
		return fmt.Errorf("%w: trust threshold %.1f outside [0, %.0f)", types.ErrInvalidConfig, c.TrustThreshold, security.MaxTrust)
	}
	if c.SessionTimeout < 0 {
		return fmt.Errorf("%w: negative session timeout", types.ErrInvalidConfig)
	}
	if c.ScanWindow < 0 {
		return fmt.Errorf("%w: negative scan window", types.ErrInvalidConfig)
	}
	return nil
}

// Allocator is the public facade over the capacity trees, placement
// engine, security gate, and balancer. A single mutex serializes every
// mutating operation and the metrics snapshot; the trees are small, so
// lock hold time is bounded by depth × branches node visits.
type Allocator struct {
	cfg Config

	mu     sync.Mutex
	closed bool

	memory  *tree.MemoryTree
	compute *tree.ComputeTree
	gate    *security.Gate
	engine  *placement.Engine
	bal     *balance.Balancer
	broker  *events.Broker

	shutdownOnce sync.Once
}

// New builds both trees, seeds the trust ledger, and starts the event
// broker. The returned allocator is ready for concurrent use.
func New(cfg Config) (*Allocator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	memory, err := tree.BuildMemory(tree.Config{
		Depth:      cfg.Depth,
		Branches:   cfg.Branches,
		Total:      cfg.TotalMemory,
		Scale:      cfg.Scale,
		MaxPerNode: cfg.MaxPerNode,
		PathSuffix: cfg.PathSuffix,
	})
	if err != nil {
		return nil, err
	}
	compute, err := tree.BuildCompute(tree.Config{
		Depth:      cfg.Depth,
		Branches:   cfg.Branches,
		Total:      cfg.TotalCompute,
		Scale:      cfg.Scale,
		MaxPerNode: cfg.MaxPerNode,
		PathSuffix: cfg.PathSuffix,
	})
	if err != nil {
		return nil, err
	}

	gate := security.NewGate(security.Config{
		TrustThreshold: cfg.TrustThreshold,
		ScanWindow:     cfg.ScanWindow,
		SessionTimeout: cfg.SessionTimeout,
	})
	gate.RegisterNodes(types.ResourceMemory, cfg.Depth, cfg.Branches)
	gate.RegisterNodes(types.ResourceCompute, cfg.Depth, cfg.Branches)

	broker := events.NewBroker()
	broker.Start()

	a := &Allocator{
		cfg:     cfg,
		memory:  memory,
		compute: compute,
		gate:    gate,
		engine: placement.NewEngine(placement.Config{
			ClosedLoop: cfg.ClosedLoop,
			DropExcess: cfg.DropExcess,
		}, memory, compute, gate),
		bal:    balance.New(memory, compute),
		broker: broker,
	}

	logger := log.WithComponent("allocator")
	logger.Info().
		Int("depth", cfg.Depth).
		Int("branches", cfg.Branches).
		Uint64("total_memory", cfg.TotalMemory).
		Uint64("total_compute", cfg.TotalCompute).
		Bool("closed_loop", cfg.ClosedLoop).
		Msg("allocator initialized")

	return a, nil
}

// Broker exposes the event stream for subscribers (journal, daemon).
func (a *Allocator) Broker() *events.Broker {
	return a.broker
}

// ownerID derives the requester identity recorded on allocations from
// the session token. Only a short prefix, matching what gets logged.
func ownerID(s security.Session) string {
	if len(s.Token) >= 8 {
		return s.Token[:8]
	}
	return "anonymous"
}

// IssueSession mints a session with the configured default timeout.
func (a *Allocator) IssueSession() (security.Session, error) {
	if err := a.checkOpen(); err != nil {
		return security.Session{}, err
	}
	s, err := a.gate.IssueSession(0)
	if err != nil {
		return security.Session{}, err
	}
	metrics.SessionsIssued.Inc()
	a.broker.Publish(&events.Event{
		Type:  events.EventSessionIssued,
		Owner: ownerID(s),
	})
	return s, nil
}

// AllocateMemory validates the session, searches the memory tree for
// the best-fitting node, and commits the reservation.
func (a *Allocator) AllocateMemory(size uint64, priority int, session security.Session) (types.Handle, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.AllocationLatency, string(types.ResourceMemory))

	// Session expiry fails fast, before the tree lock is ever taken.
	if err := a.gate.ValidateSession(session); err != nil {
		metrics.AllocationsTotal.WithLabelValues(string(types.ResourceMemory), metrics.OutcomeExpired).Inc()
		a.broker.Publish(&events.Event{Type: events.EventSessionExpired, Owner: ownerID(session)})
		return types.Handle{}, err
	}

	// The closed check shares the engine's critical section so nothing
	// can commit onto trees the cleanup sweep already cleared.
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		metrics.AllocationsTotal.WithLabelValues(string(types.ResourceMemory), metrics.OutcomeClosed).Inc()
		return types.Handle{}, types.ErrClosed
	}
	handle, err := a.engine.AllocateMemory(size, priority, ownerID(session))
	a.mu.Unlock()

	if err != nil {
		metrics.AllocationsTotal.WithLabelValues(string(types.ResourceMemory), outcomeOf(err)).Inc()
		return types.Handle{}, err
	}

	metrics.AllocationsTotal.WithLabelValues(string(types.ResourceMemory), metrics.OutcomeCommitted).Inc()
	a.broker.Publish(&events.Event{
		Type:     events.EventAllocationCommitted,
		Resource: types.ResourceMemory,
		Path:     handle.Path.String(),
		Owner:    handle.OwnerID,
		Metadata: map[string]string{
			"size":     strconv.FormatUint(size, 10),
			"priority": strconv.Itoa(priority),
		},
	})
	return handle, nil
}

// AllocateCompute validates the session and stripes complexity units
// across the compute tree, returning one handle per span.
func (a *Allocator) AllocateCompute(units uint64, session security.Session) ([]types.Handle, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.AllocationLatency, string(types.ResourceCompute))

	if err := a.gate.ValidateSession(session); err != nil {
		metrics.AllocationsTotal.WithLabelValues(string(types.ResourceCompute), metrics.OutcomeExpired).Inc()
		a.broker.Publish(&events.Event{Type: events.EventSessionExpired, Owner: ownerID(session)})
		return nil, err
	}

	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		metrics.AllocationsTotal.WithLabelValues(string(types.ResourceCompute), metrics.OutcomeClosed).Inc()
		return nil, types.ErrClosed
	}
	handles, err := a.engine.AllocateCompute(units, ownerID(session))
	a.mu.Unlock()

	if err != nil {
		metrics.AllocationsTotal.WithLabelValues(string(types.ResourceCompute), outcomeOf(err)).Inc()
		return nil, err
	}

	metrics.AllocationsTotal.WithLabelValues(string(types.ResourceCompute), metrics.OutcomeCommitted).Inc()
	a.broker.Publish(&events.Event{
		Type:     events.EventComputeStriped,
		Resource: types.ResourceCompute,
		Owner:    ownerID(session),
		Metadata: map[string]string{
			"units": strconv.FormatUint(units, 10),
			"spans": strconv.Itoa(len(handles)),
		},
	})
	return handles, nil
}

// Release returns a handle's reservation to its node. Double releases
// and foreign handles fail with ErrUnknownHandle.
func (a *Allocator) Release(handle types.Handle) error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		metrics.ReleasesTotal.WithLabelValues(string(handle.Resource), metrics.OutcomeClosed).Inc()
		return types.ErrClosed
	}
	err := a.engine.Release(handle)
	a.mu.Unlock()

	if err != nil {
		metrics.ReleasesTotal.WithLabelValues(string(handle.Resource), metrics.OutcomeUnknown).Inc()
		return err
	}

	metrics.ReleasesTotal.WithLabelValues(string(handle.Resource), metrics.OutcomeReleased).Inc()
	a.broker.Publish(&events.Event{
		Type:     events.EventAllocationReleased,
		Resource: handle.Resource,
		Path:     handle.Path.String(),
		Owner:    handle.OwnerID,
	})
	return nil
}

// Rebalance runs one balancer feedback pass. Best-effort: it has no
// failure mode and is a no-op on a closed allocator.
func (a *Allocator) Rebalance() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.bal.Rebalance()
	a.mu.Unlock()

	metrics.RebalancePasses.Inc()
	a.broker.Publish(&events.Event{Type: events.EventRebalanced})
}

// RecordSecurityEvent lowers a node's trust. Placement skips the node
// once it falls below the threshold, until a rescan restores it.
func (a *Allocator) RecordSecurityEvent(kind types.ResourceKind, level, node int, severity types.Severity) {
	a.gate.RecordEvent(kind, level, node, severity)
	metrics.SecurityEventsTotal.WithLabelValues(string(severity)).Inc()
	a.broker.Publish(&events.Event{
		Type:     events.EventSecurityIncident,
		Resource: kind,
		Metadata: map[string]string{
			"level":    strconv.Itoa(level),
			"node":     strconv.Itoa(node),
			"severity": string(severity),
		},
	})
}

// Rescan restores one node's trust and scan freshness.
func (a *Allocator) Rescan(kind types.ResourceKind, level, node int) {
	a.gate.Rescan(kind, level, node)
	metrics.RescansTotal.Inc()
	a.broker.Publish(&events.Event{
		Type:     events.EventSecurityRescan,
		Resource: kind,
		Metadata: map[string]string{"level": strconv.Itoa(level), "node": strconv.Itoa(node)},
	})
}

// RescanAll rescans every node in both trees.
func (a *Allocator) RescanAll() {
	a.gate.RescanAll()
	metrics.RescansTotal.Inc()
	a.broker.Publish(&events.Event{Type: events.EventSecurityRescan})
}

// CleanupExpiredSessions sweeps dead sessions out of the gate. The
// daemon calls this on a ticker.
func (a *Allocator) CleanupExpiredSessions() int {
	return a.gate.CleanupExpiredSessions()
}

// Metrics captures a consistent snapshot under the allocator lock.
// Valid on a closed allocator too, where it reports the swept state.
func (a *Allocator) Metrics() types.Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	memUtils := a.memory.Utilizations()
	loads := a.compute.Loads()

	memVar := stat.PopVariance(memUtils, nil)
	loadVar := stat.PopVariance(loads, nil)
	score := 1 / (1 + memVar + loadVar)
	if score > 1 {
		score = 1
	}
	if score < 0 {
		score = 0
	}

	return types.Snapshot{
		MemoryUtilization:  stat.Mean(memUtils, nil),
		ComputeUtilization: stat.Mean(loads, nil),
		Efficiency:         stat.Mean(a.compute.Efficiencies(), nil),
		BalanceScore:       score,
		LiveAllocations:    a.engine.LiveAllocations(),
		TakenAt:            time.Now(),
	}
}

// Shutdown runs the emergency cleanup exactly once and closes the
// allocator. Idempotent, deterministic, and safe concurrently with
// in-flight allocations: everything serializes on the allocator lock.
func (a *Allocator) Shutdown() {
	a.shutdownOnce.Do(func() {
		a.mu.Lock()
		a.emergencyCleanup()
		a.closed = true
		a.mu.Unlock()

		metrics.EmergencyCleanups.Inc()
		a.broker.Publish(&events.Event{Type: events.EventShutdown})
		a.broker.Stop()

		logger := log.WithComponent("allocator")
		logger.Info().Msg("allocator shut down, all allocations released")
	})
}

// emergencyCleanup clears every allocation record and zeroes all
// utilization and load. Called under the lock. Best-effort by contract:
// it must finish even over partially corrupted state and never panic.
func (a *Allocator) emergencyCleanup() {
	defer func() {
		if r := recover(); r != nil {
			logger := log.WithComponent("allocator")
			logger.Error().
				Interface("panic", r).
				Msg("emergency cleanup recovered mid-sweep")
		}
	}()

	a.memory.Reset()
	a.compute.Reset()
	metrics.LiveAllocations.Set(0)
}

// checkOpen returns ErrClosed after Shutdown.
func (a *Allocator) checkOpen() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return types.ErrClosed
	}
	return nil
}

// outcomeOf maps an allocation error onto its metrics label.
func outcomeOf(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeCommitted
	case errors.Is(err, types.ErrInsufficientCapacity):
		return metrics.OutcomeInsufficient
	case errors.Is(err, types.ErrInvalidConfig):
		return metrics.OutcomeInvalid
	case errors.Is(err, types.ErrSessionExpired):
		return metrics.OutcomeExpired
	case errors.Is(err, types.ErrUnknownHandle):
		return metrics.OutcomeUnknown
	default:
		return "error"
	}
}
