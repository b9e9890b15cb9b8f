package allocator

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verdantlabs/grove/pkg/types"
)

func testConfig() Config {
	return Config{
		Depth:        3,
		Branches:     4,
		TotalMemory:  1024,
		TotalCompute: 1000,
	}
}

func newTestAllocator(t *testing.T, cfg Config) *Allocator {
	t.Helper()
	a, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(a.Shutdown)
	return a
}

// TestConfigValidation tests construction-time parameter bounds
func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"depth too small", func(c *Config) { c.Depth = 2 }},
		{"depth too large", func(c *Config) { c.Depth = 9 }},
		{"branches too small", func(c *Config) { c.Branches = 1 }},
		{"branches too large", func(c *Config) { c.Branches = 17 }},
		{"zero memory", func(c *Config) { c.TotalMemory = 0 }},
		{"zero compute", func(c *Config) { c.TotalCompute = 0 }},
		{"negative trust threshold", func(c *Config) { c.TrustThreshold = -1 }},
		{"trust threshold at max", func(c *Config) { c.TrustThreshold = 100 }},
		{"negative session timeout", func(c *Config) { c.SessionTimeout = -time.Second }},
		{"negative scan window", func(c *Config) { c.ScanWindow = -time.Second }},
		{"unknown scale", func(c *Config) { c.Scale = "triple" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(&cfg)
			_, err := New(cfg)
			assert.ErrorIs(t, err, types.ErrInvalidConfig)
		})
	}
}

// TestAllocateScenario tests the canonical small-allocation scenario
func TestAllocateScenario(t *testing.T) {
	a := newTestAllocator(t, testConfig())

	session, err := a.IssueSession()
	require.NoError(t, err)

	// The first small allocation must land where spare capacity is
	// largest: a level-0 node holding 1024/4 = 256 units.
	h, err := a.AllocateMemory(10, 1, session)
	require.NoError(t, err)
	assert.Equal(t, 0, h.Level)
	assert.Equal(t, uint64(256), a.memory.Node(h.Level, h.Node).Capacity)

	// An impossible request fails with the capacity sentinel.
	_, err = a.AllocateMemory(100000, 1, session)
	assert.ErrorIs(t, err, types.ErrInsufficientCapacity)
}

// TestExpiredSessionRejectedDespiteCapacity tests fail-fast gating
func TestExpiredSessionRejectedDespiteCapacity(t *testing.T) {
	a := newTestAllocator(t, testConfig())

	clock := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	a.gate.SetClock(func() time.Time { return clock })

	session, err := a.IssueSession()
	require.NoError(t, err)

	_, err = a.AllocateMemory(10, 1, session)
	require.NoError(t, err)

	clock = clock.Add(6 * time.Minute) // past the 5 minute default

	_, err = a.AllocateMemory(10, 1, session)
	assert.ErrorIs(t, err, types.ErrSessionExpired)
	_, err = a.AllocateCompute(10, session)
	assert.ErrorIs(t, err, types.ErrSessionExpired)

	// A fresh session works again; the tree was untouched by the
	// rejected calls.
	fresh, err := a.IssueSession()
	require.NoError(t, err)
	_, err = a.AllocateMemory(10, 1, fresh)
	assert.NoError(t, err)
}

// TestDistrustedNodeNeverSelected tests soft exclusion end to end
func TestDistrustedNodeNeverSelected(t *testing.T) {
	a := newTestAllocator(t, testConfig())

	session, err := a.IssueSession()
	require.NoError(t, err)

	// Push every level-0 node below the trust threshold.
	for node := 0; node < 4; node++ {
		a.RecordSecurityEvent(types.ResourceMemory, 0, node, types.SeverityCritical)
	}

	for i := 0; i < 8; i++ {
		h, err := a.AllocateMemory(5, 1, session)
		require.NoError(t, err)
		assert.NotEqual(t, 0, h.Level, "placement selected a distrusted node")
	}

	// Rescan restores eligibility and level 0 wins again on capacity.
	a.Rescan(types.ResourceMemory, 0, 2)
	h, err := a.AllocateMemory(5, 1, session)
	require.NoError(t, err)
	assert.Equal(t, 0, h.Level)
	assert.Equal(t, 2, h.Node)
}

// TestReleaseDoubleFree tests the UnknownHandle contract at the facade
func TestReleaseDoubleFree(t *testing.T) {
	a := newTestAllocator(t, testConfig())

	session, err := a.IssueSession()
	require.NoError(t, err)

	h, err := a.AllocateMemory(64, 1, session)
	require.NoError(t, err)

	require.NoError(t, a.Release(h))
	assert.ErrorIs(t, a.Release(h), types.ErrUnknownHandle)
}

// TestComputeStripeAndRelease tests the striped grant surface
func TestComputeStripeAndRelease(t *testing.T) {
	a := newTestAllocator(t, testConfig())

	session, err := a.IssueSession()
	require.NoError(t, err)

	handles, err := a.AllocateCompute(600, session)
	require.NoError(t, err)
	require.Len(t, handles, 3)
	assert.Equal(t, "C0N0", handles[0].Path.String())

	snap := a.Metrics()
	assert.Equal(t, 3, snap.LiveAllocations)
	assert.Positive(t, snap.ComputeUtilization)

	for _, h := range handles {
		require.NoError(t, a.Release(h))
	}
	snap = a.Metrics()
	assert.Zero(t, snap.LiveAllocations)
	assert.Zero(t, snap.ComputeUtilization)
}

// TestComputeStrictOverflow tests the strict whole-request failure
func TestComputeStrictOverflow(t *testing.T) {
	a := newTestAllocator(t, testConfig())

	session, err := a.IssueSession()
	require.NoError(t, err)

	_, err = a.AllocateCompute(1<<40, session)
	assert.ErrorIs(t, err, types.ErrInsufficientCapacity)
	assert.Zero(t, a.Metrics().ComputeUtilization)

	// Lenient mode under-assigns instead.
	lenient := testConfig()
	lenient.DropExcess = true
	b := newTestAllocator(t, lenient)
	bs, err := b.IssueSession()
	require.NoError(t, err)
	handles, err := b.AllocateCompute(1<<40, bs)
	require.NoError(t, err)
	var assigned uint64
	for _, h := range handles {
		assigned += h.Units
	}
	assert.Equal(t, b.compute.Units, assigned)
}

// TestMetricsSnapshot tests snapshot math on a known state
func TestMetricsSnapshot(t *testing.T) {
	a := newTestAllocator(t, testConfig())

	// Idle allocator: everything zero, perfectly balanced.
	snap := a.Metrics()
	assert.Zero(t, snap.MemoryUtilization)
	assert.Zero(t, snap.ComputeUtilization)
	assert.Equal(t, 1.0, snap.Efficiency)
	assert.Equal(t, 1.0, snap.BalanceScore)
	assert.False(t, snap.TakenAt.IsZero())

	session, err := a.IssueSession()
	require.NoError(t, err)
	_, err = a.AllocateMemory(128, 1, session)
	require.NoError(t, err)

	// One node at 0.5 utilization skews the spread; the balance score
	// drops below the idle optimum.
	snap = a.Metrics()
	assert.InDelta(t, 0.5/12, snap.MemoryUtilization, 1e-9)
	assert.Less(t, snap.BalanceScore, 1.0)
	assert.Equal(t, 1, snap.LiveAllocations)
}

// TestRebalanceFeedsMetrics tests the balancer through the facade
func TestRebalanceFeedsMetrics(t *testing.T) {
	a := newTestAllocator(t, testConfig())

	session, err := a.IssueSession()
	require.NoError(t, err)

	// Load one compute node hot, then rebalance: mean efficiency moves
	// away from neutral as cold nodes are rewarded.
	_, err = a.AllocateCompute(250, session)
	require.NoError(t, err)

	a.Rebalance()
	snap := a.Metrics()
	assert.NotEqual(t, 1.0, snap.Efficiency)
}

// TestConcurrentAllocationAccounting tests the no-lost-update property
func TestConcurrentAllocationAccounting(t *testing.T) {
	cfg := testConfig()
	cfg.TotalMemory = 2000
	a := newTestAllocator(t, cfg)

	session, err := a.IssueSession()
	require.NoError(t, err)

	const callers = 20
	const perCaller = 50

	var wg sync.WaitGroup
	errCh := make(chan error, callers*perCaller)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perCaller; j++ {
				if _, err := a.AllocateMemory(1, 1, session); err != nil {
					errCh <- err
				}
			}
		}()
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		t.Fatalf("concurrent allocation failed: %v", err)
	}

	// Exactly 1000 units committed: no lost or duplicated updates.
	var committed uint64
	for _, row := range a.memory.Levels {
		for _, node := range row {
			for _, alloc := range node.Allocations {
				committed += alloc.Size
			}
		}
	}
	assert.Equal(t, uint64(callers*perCaller), committed)
	assert.Equal(t, callers*perCaller, a.Metrics().LiveAllocations)
}

// TestShutdownReleasesEverything tests deterministic cleanup
func TestShutdownReleasesEverything(t *testing.T) {
	a := newTestAllocator(t, testConfig())

	session, err := a.IssueSession()
	require.NoError(t, err)
	_, err = a.AllocateMemory(100, 1, session)
	require.NoError(t, err)
	_, err = a.AllocateCompute(400, session)
	require.NoError(t, err)

	a.Shutdown()

	snap := a.Metrics()
	assert.Zero(t, snap.MemoryUtilization)
	assert.Zero(t, snap.ComputeUtilization)
	assert.Zero(t, snap.LiveAllocations)

	// Every subsequent mutating call reports the closed allocator.
	_, err = a.AllocateMemory(1, 1, session)
	assert.ErrorIs(t, err, types.ErrClosed)
	_, err = a.AllocateCompute(1, session)
	assert.ErrorIs(t, err, types.ErrClosed)
	assert.ErrorIs(t, a.Release(types.Handle{Resource: types.ResourceMemory}), types.ErrClosed)
	_, err = a.IssueSession()
	assert.ErrorIs(t, err, types.ErrClosed)

	// Idempotent, and Rebalance degrades to a no-op.
	a.Shutdown()
	a.Rebalance()
}

// TestShutdownConcurrentWithAllocations tests the emergency sweep under fire
func TestShutdownConcurrentWithAllocations(t *testing.T) {
	a := newTestAllocator(t, testConfig())

	session, err := a.IssueSession()
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				h, err := a.AllocateMemory(1, 1, session)
				if err != nil {
					return // closed mid-flight, expected
				}
				// Some releases race the sweep too; both outcomes are
				// legal, corruption is not.
				if j%2 == 0 {
					_ = a.Release(h)
				}
			}
		}()
	}

	a.Shutdown()
	wg.Wait()

	snap := a.Metrics()
	assert.Zero(t, snap.MemoryUtilization)
	assert.Zero(t, snap.LiveAllocations)
}

// TestSessionCleanupSweep tests the expired-session sweep surface
func TestSessionCleanupSweep(t *testing.T) {
	a := newTestAllocator(t, testConfig())

	clock := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	a.gate.SetClock(func() time.Time { return clock })

	_, err := a.IssueSession()
	require.NoError(t, err)
	_, err = a.IssueSession()
	require.NoError(t, err)

	clock = clock.Add(10 * time.Minute)
	assert.Equal(t, 2, a.CleanupExpiredSessions())
	assert.Zero(t, a.CleanupExpiredSessions())
}

// TestClosedLoopSteering tests that the config flag reaches placement
func TestClosedLoopSteering(t *testing.T) {
	cfg := testConfig()
	cfg.ClosedLoop = true
	a := newTestAllocator(t, cfg)

	session, err := a.IssueSession()
	require.NoError(t, err)

	a.memory.Node(0, 3).Weight = 1.5
	h, err := a.AllocateMemory(10, 1, session)
	require.NoError(t, err)
	assert.Equal(t, 0, h.Level)
	assert.Equal(t, 3, h.Node)
}
