package terrain

import (
	"testing"

	"github.com/gekko3d/planets/planetrt/rt/core"
	"github.com/gekko3d/planets/planetrt/rt/databuffer"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPackItem(t *testing.T) {
	packed := PackItem(core.ZNeg, 255, databuffer.MaxSlots-1)
	o, off, slot := UnpackItem(packed)
	assert.Equal(t, core.ZNeg, o)
	assert.Equal(t, 255, off)
	assert.Equal(t, databuffer.Slot(databuffer.MaxSlots-1), slot)

	o, off, slot = UnpackItem(PackItem(core.XPos, 3, 17))
	assert.Equal(t, core.XPos, o)
	assert.Equal(t, 3, off)
	assert.Equal(t, databuffer.Slot(17), slot)
}

func queueN(t *testing.T, p *Planet, n int) []PatchID {
	t.Helper()
	// Six roots plus the children of the first root.
	first := p.allocChildren(0)
	ids := []PatchID{0, 1, 2, 3, 4, 5, first, first + 1, first + 2, first + 3}
	require.LessOrEqual(t, n, len(ids))
	for _, id := range ids[:n] {
		p.enqueue(id)
	}
	return ids[:n]
}

func TestStatsReadbackSchedule(t *testing.T) {
	var gen *recordingGenerator
	p, _ := newTestPlanet(t, testPlanetOptions{
		statsPatches:    4,
		patchesPerBatch: 2,
		generator: func(c *databuffer.PatchConstants, stats int) Generator {
			gen = &recordingGenerator{CPUGenerator: NewCPUGenerator(DefaultRidgedParams(), c, stats)}
			return gen
		},
	})
	ids := queueN(t, p, 7)

	n, allRun := p.RunSomeComputeItems(10)
	assert.Equal(t, 4, n)
	assert.True(t, allRun)
	assert.Equal(t, 2, gen.clears)
	assert.Equal(t, []int{4, 3}, gen.reads)
	assert.Equal(t, [][]int{{0, 1}, {2, 3}, {0, 1}, {2}}, gen.offsets)

	for _, id := range ids {
		patch := p.Patch(id)
		assert.True(t, patch.Populated)
		assert.False(t, patch.Queued)
		assert.NotEqual(t, databuffer.NoSlot, patch.Slot)
		assert.LessOrEqual(t, patch.MinAltitude, patch.MaxAltitude)
		assert.InDelta(t, 0.5*(patch.MinAltitude+patch.MaxAltitude), patch.AverageAltitude, 1e-6)
	}
	assert.Equal(t, uint8(0b0001), p.Patch(0).NumChildrenPopulated)
}

func TestRunSomeStopsAtBatchLimit(t *testing.T) {
	var gen *recordingGenerator
	p, buf := newTestPlanet(t, testPlanetOptions{
		statsPatches:    4,
		patchesPerBatch: 2,
		generator: func(c *databuffer.PatchConstants, stats int) Generator {
			gen = &recordingGenerator{CPUGenerator: NewCPUGenerator(DefaultRidgedParams(), c, stats)}
			return gen
		},
	})
	queueN(t, p, 7)

	n, allRun := p.RunSomeComputeItems(1)
	assert.Equal(t, 1, n)
	assert.False(t, allRun)
	assert.Equal(t, []int{2}, gen.reads)
	assert.Equal(t, 5, p.QueueLen())
	assert.Equal(t, 2, buf.Occupied())

	n, allRun = p.RunSomeComputeItems(0)
	assert.Equal(t, 0, n)
	assert.False(t, allRun)

	assert.Equal(t, 3, p.RunAllComputeItems())
	n, allRun = p.RunSomeComputeItems(0)
	assert.Equal(t, 0, n)
	assert.True(t, allRun)
}

func TestComputeBuildsItemsFromHash(t *testing.T) {
	var items []PatchItem
	p, _ := newTestPlanet(t, testPlanetOptions{
		generator: func(c *databuffer.PatchConstants, stats int) Generator {
			return &itemCapture{CPUGenerator: NewCPUGenerator(DefaultRidgedParams(), c, stats), items: &items}
		},
	})
	first := p.allocChildren(PatchID(core.ZPos))
	p.enqueue(first + 3)
	p.RunAllComputeItems()

	require.Len(t, items, 1)
	h := p.Patch(first + 3).Hash
	step := h.Size() / 4
	o, _, slot := UnpackItem(items[0].Packed)
	assert.Equal(t, core.ZPos, o)
	assert.Equal(t, p.Patch(first+3).Slot, slot)
	assert.Equal(t, float32(step), items[0].StepSize)
	assert.Equal(t, float32(h.Dim0()-step), items[0].Dim0Start)
	assert.Equal(t, float32(h.Dim1()-step), items[0].Dim1Start)
}

type itemCapture struct {
	*CPUGenerator
	items *[]PatchItem
}

func (g *itemCapture) Dispatch(items []PatchItem) error {
	*g.items = append(*g.items, items...)
	return g.CPUGenerator.Dispatch(items)
}

func TestArenaExhaustionIsFatal(t *testing.T) {
	p, _ := newTestPlanet(t, testPlanetOptions{slots: 3})
	p.Traverse(viewFrom(mgl32.Vec3{0, 0, 10}), Tunables{MaxPatchLevel: 1, Level1Distance: 1}, nil)
	assert.Panics(t, func() { p.RunAllComputeItems() })
}
