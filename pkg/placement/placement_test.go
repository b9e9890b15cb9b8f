package placement

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verdantlabs/grove/pkg/tree"
	"github.com/verdantlabs/grove/pkg/types"
)

// openGate admits every node.
type openGate struct{}

func (openGate) ValidateNode(types.ResourceKind, int, int) bool { return true }

// denyGate excludes specific (kind, level, node) coordinates.
type denyGate struct {
	denied map[string]bool
}

func (g denyGate) ValidateNode(kind types.ResourceKind, level, node int) bool {
	return !g.denied[fmt.Sprintf("%s/%d/%d", kind, level, node)]
}

func deny(coords ...string) denyGate {
	g := denyGate{denied: make(map[string]bool)}
	for _, c := range coords {
		g.denied[c] = true
	}
	return g
}

func newTestEngine(t *testing.T, cfg Config, gate NodeGate) (*Engine, *tree.MemoryTree, *tree.ComputeTree) {
	t.Helper()
	mem, err := tree.BuildMemory(tree.Config{Depth: 3, Branches: 4, Total: 1024})
	require.NoError(t, err)
	comp, err := tree.BuildCompute(tree.Config{Depth: 3, Branches: 4, Total: 1000})
	require.NoError(t, err)
	return NewEngine(cfg, mem, comp, gate), mem, comp
}

// TestAllocateMemoryPrefersLargestAvailable tests candidate scoring
func TestAllocateMemoryPrefersLargestAvailable(t *testing.T) {
	e, mem, _ := newTestEngine(t, Config{}, openGate{})

	// All level-0 nodes hold 256; everything deeper holds less. The
	// first allocation must land on a level-0 node.
	h, err := e.AllocateMemory(10, 1, "owner-a")
	require.NoError(t, err)
	assert.Equal(t, 0, h.Level)
	assert.Equal(t, types.ResourceMemory, h.Resource)
	assert.Equal(t, uint64(10), h.Units)

	node := mem.Node(h.Level, h.Node)
	assert.InDelta(t, 10.0/256.0, node.Utilization, 1e-9)
	require.Len(t, node.Allocations, 1)
	assert.Equal(t, h.ID, node.Allocations[0].ID)

	// Its spare capacity dropped below the siblings', so the next
	// allocation lands on a different level-0 node.
	h2, err := e.AllocateMemory(10, 1, "owner-a")
	require.NoError(t, err)
	assert.Equal(t, 0, h2.Level)
	assert.NotEqual(t, h.Node, h2.Node)
}

// TestAllocateMemoryDepthTieBreak tests that equal scores prefer depth
func TestAllocateMemoryDepthTieBreak(t *testing.T) {
	e, mem, _ := newTestEngine(t, Config{}, openGate{})

	// Fill level 0 and level 1 so their spare capacity matches level 2
	// exactly: 16 units everywhere.
	for level := 0; level < 2; level++ {
		for idx := 0; idx < 4; idx++ {
			node := mem.Node(level, idx)
			node.Utilization = 1 - 16.0/float64(node.Capacity)
		}
	}

	h, err := e.AllocateMemory(16, 1, "owner-a")
	require.NoError(t, err)
	assert.Equal(t, 2, h.Level)
}

// TestAllocateMemoryPriorityFloor tests that high priority sinks deep
func TestAllocateMemoryPriorityFloor(t *testing.T) {
	e, _, _ := newTestEngine(t, Config{}, openGate{})

	// Floors are level+1, so priority 3 only fits level 2.
	h, err := e.AllocateMemory(10, 3, "owner-a")
	require.NoError(t, err)
	assert.Equal(t, 2, h.Level)

	// Priority beyond the deepest floor can never place.
	_, err = e.AllocateMemory(10, 4, "owner-a")
	assert.ErrorIs(t, err, types.ErrInsufficientCapacity)
}

// TestAllocateMemoryInsufficientCapacity tests oversized requests
func TestAllocateMemoryInsufficientCapacity(t *testing.T) {
	e, _, _ := newTestEngine(t, Config{}, openGate{})

	_, err := e.AllocateMemory(100000, 1, "owner-a")
	assert.ErrorIs(t, err, types.ErrInsufficientCapacity)
}

// TestAllocateMemoryBadArguments tests zero size and priority
func TestAllocateMemoryBadArguments(t *testing.T) {
	e, _, _ := newTestEngine(t, Config{}, openGate{})

	_, err := e.AllocateMemory(0, 1, "owner-a")
	assert.ErrorIs(t, err, types.ErrInvalidConfig)

	_, err = e.AllocateMemory(10, 0, "owner-a")
	assert.ErrorIs(t, err, types.ErrInvalidConfig)
}

// TestAllocateMemorySkipsGatedNodes tests soft exclusion
func TestAllocateMemorySkipsGatedNodes(t *testing.T) {
	gate := deny(
		"memory/0/0", "memory/0/1", "memory/0/2", "memory/0/3",
	)
	e, _, _ := newTestEngine(t, Config{}, gate)

	// Level 0 is fully excluded; placement falls to level 1.
	h, err := e.AllocateMemory(10, 1, "owner-a")
	require.NoError(t, err)
	assert.Equal(t, 1, h.Level)
}

// TestClosedLoopWeightSteering tests weighted scoring
func TestClosedLoopWeightSteering(t *testing.T) {
	e, mem, _ := newTestEngine(t, Config{ClosedLoop: true}, openGate{})

	// All level-0 nodes are equal except N2, whose weight boosts its
	// score past its siblings.
	mem.Node(0, 2).Weight = 1.5
	h, err := e.AllocateMemory(10, 1, "owner-a")
	require.NoError(t, err)
	assert.Equal(t, 0, h.Level)
	assert.Equal(t, 2, h.Node)

	// Metrics-only mode ignores the weight: stable sort keeps N0 first.
	e2, mem2, _ := newTestEngine(t, Config{}, openGate{})
	mem2.Node(0, 2).Weight = 1.5
	h2, err := e2.AllocateMemory(10, 1, "owner-a")
	require.NoError(t, err)
	assert.Equal(t, 0, h2.Node)
}

// TestReleaseMemoryRoundTrip tests exact utilization restore
func TestReleaseMemoryRoundTrip(t *testing.T) {
	e, mem, _ := newTestEngine(t, Config{}, openGate{})

	h, err := e.AllocateMemory(64, 1, "owner-a")
	require.NoError(t, err)
	node := mem.Node(h.Level, h.Node)
	require.Positive(t, node.Utilization)

	require.NoError(t, e.Release(h))
	assert.Zero(t, node.Utilization)
	assert.Empty(t, node.Allocations)
}

// TestReleaseMemoryDoubleFree tests that the second release fails
func TestReleaseMemoryDoubleFree(t *testing.T) {
	e, _, _ := newTestEngine(t, Config{}, openGate{})

	h, err := e.AllocateMemory(64, 1, "owner-a")
	require.NoError(t, err)

	require.NoError(t, e.Release(h))
	assert.ErrorIs(t, e.Release(h), types.ErrUnknownHandle)
}

// TestReleaseMemoryOwnerMismatch tests foreign-handle rejection
func TestReleaseMemoryOwnerMismatch(t *testing.T) {
	e, mem, _ := newTestEngine(t, Config{}, openGate{})

	h, err := e.AllocateMemory(64, 1, "owner-a")
	require.NoError(t, err)

	stolen := h
	stolen.OwnerID = "owner-b"
	assert.ErrorIs(t, e.Release(stolen), types.ErrUnknownHandle)

	// The allocation is still live and releasable by its owner.
	node := mem.Node(h.Level, h.Node)
	assert.Len(t, node.Allocations, 1)
	assert.NoError(t, e.Release(h))
}

// TestReleaseCorruptedHandle tests out-of-range and unknown handles
func TestReleaseCorruptedHandle(t *testing.T) {
	e, _, _ := newTestEngine(t, Config{}, openGate{})

	assert.ErrorIs(t, e.Release(types.Handle{Resource: types.ResourceMemory, Level: 9, Node: 9}), types.ErrUnknownHandle)
	assert.ErrorIs(t, e.Release(types.Handle{Resource: types.ResourceMemory, ID: "nope"}), types.ErrUnknownHandle)
	assert.ErrorIs(t, e.Release(types.Handle{Resource: "disk"}), types.ErrUnknownHandle)
}

// TestAllocateComputeStriping tests level-major span assignment
func TestAllocateComputeStriping(t *testing.T) {
	e, _, comp := newTestEngine(t, Config{}, openGate{})

	// Level 0 nodes hold 250 each; 600 units span three of them.
	handles, err := e.AllocateCompute(600, "owner-a")
	require.NoError(t, err)
	require.Len(t, handles, 3)

	assert.Equal(t, uint64(250), handles[0].Units)
	assert.Equal(t, uint64(250), handles[1].Units)
	assert.Equal(t, uint64(100), handles[2].Units)
	for i, h := range handles {
		assert.Equal(t, 0, h.Level)
		assert.Equal(t, i, h.Node)
		assert.Equal(t, types.ResourceCompute, h.Resource)
	}

	assert.Equal(t, 1.0, comp.Node(0, 0).Load)
	assert.Equal(t, 1.0, comp.Node(0, 1).Load)
	assert.InDelta(t, 0.4, comp.Node(0, 2).Load, 1e-9)
	assert.Zero(t, comp.Node(0, 3).Load)

	paths := types.Paths(handles)
	assert.Equal(t, "C0N0", paths[0].String())
	assert.Equal(t, "C0N2", paths[2].String())
}

// TestAllocateComputeStrictOverflow tests whole-request failure
func TestAllocateComputeStrictOverflow(t *testing.T) {
	e, _, comp := newTestEngine(t, Config{}, openGate{})

	// Tree capacity is 4×(250+62+15) = 1308.
	_, err := e.AllocateCompute(comp.Units+1, "owner-a")
	assert.ErrorIs(t, err, types.ErrInsufficientCapacity)

	// Nothing was committed.
	for _, load := range comp.Loads() {
		assert.Zero(t, load)
	}

	// Exactly the capacity still fits.
	handles, err := e.AllocateCompute(comp.Units, "owner-a")
	require.NoError(t, err)
	assert.Len(t, handles, 12)
}

// TestAllocateComputeDropExcess tests the lenient original behavior
func TestAllocateComputeDropExcess(t *testing.T) {
	e, _, comp := newTestEngine(t, Config{DropExcess: true}, openGate{})

	handles, err := e.AllocateCompute(comp.Units+5000, "owner-a")
	require.NoError(t, err)
	assert.Len(t, handles, 12)

	var assigned uint64
	for _, h := range handles {
		assigned += h.Units
	}
	assert.Equal(t, comp.Units, assigned)
}

// TestAllocateComputeGateExclusion tests that striping skips distrusted nodes
func TestAllocateComputeGateExclusion(t *testing.T) {
	gate := deny("compute/0/0")
	e, _, comp := newTestEngine(t, Config{}, gate)

	handles, err := e.AllocateCompute(250, "owner-a")
	require.NoError(t, err)
	require.Len(t, handles, 1)
	assert.Equal(t, 1, handles[0].Node)
	assert.Zero(t, comp.Node(0, 0).Load)
}

// TestAllocateComputeClosedLoopOrder tests efficiency-steered striping
func TestAllocateComputeClosedLoopOrder(t *testing.T) {
	e, _, comp := newTestEngine(t, Config{ClosedLoop: true}, openGate{})

	comp.Node(1, 3).Efficiency = 1.4
	handles, err := e.AllocateCompute(50, "owner-a")
	require.NoError(t, err)
	require.Len(t, handles, 1)
	assert.Equal(t, 1, handles[0].Level)
	assert.Equal(t, 3, handles[0].Node)
}

// TestReleaseCompute tests span release and double free
func TestReleaseCompute(t *testing.T) {
	e, _, comp := newTestEngine(t, Config{}, openGate{})

	handles, err := e.AllocateCompute(300, "owner-a")
	require.NoError(t, err)
	require.Len(t, handles, 2)

	require.NoError(t, e.Release(handles[0]))
	assert.Zero(t, comp.Node(0, 0).Load)
	assert.ErrorIs(t, e.Release(handles[0]), types.ErrUnknownHandle)

	require.NoError(t, e.Release(handles[1]))
	for _, load := range comp.Loads() {
		assert.Zero(t, load)
	}
}

// TestLiveAllocations tests the combined live-record count
func TestLiveAllocations(t *testing.T) {
	e, _, _ := newTestEngine(t, Config{}, openGate{})
	assert.Zero(t, e.LiveAllocations())

	h, err := e.AllocateMemory(10, 1, "owner-a")
	require.NoError(t, err)
	spans, err := e.AllocateCompute(300, "owner-a")
	require.NoError(t, err)
	assert.Equal(t, 1+len(spans), e.LiveAllocations())

	require.NoError(t, e.Release(h))
	assert.Equal(t, len(spans), e.LiveAllocations())
}

// TestUtilizationNeverExceedsBounds tests repeated fill and drain
func TestUtilizationNeverExceedsBounds(t *testing.T) {
	e, mem, _ := newTestEngine(t, Config{}, openGate{})

	var handles []types.Handle
	for {
		h, err := e.AllocateMemory(16, 1, "owner-a")
		if err != nil {
			assert.ErrorIs(t, err, types.ErrInsufficientCapacity)
			break
		}
		handles = append(handles, h)
		for _, u := range mem.Utilizations() {
			assert.GreaterOrEqual(t, u, 0.0)
			assert.LessOrEqual(t, u, 1.0+1e-9)
		}
	}
	require.NotEmpty(t, handles)

	for _, h := range handles {
		require.NoError(t, e.Release(h))
	}
	for _, u := range mem.Utilizations() {
		assert.InDelta(t, 0.0, u, 1e-9)
	}
}
