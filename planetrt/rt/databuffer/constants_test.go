package databuffer

import (
	"math"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultPatchConstants(t *testing.T) {
	c := DefaultPatchConstants()
	assert.Equal(t, 32, c.VisiblePolygons)
	assert.Equal(t, 33, c.VerticesPerSide)
	assert.Equal(t, 1089, c.VisibleVertices)
	assert.Equal(t, 1089, c.TotalVertices)
	assert.Equal(t, 1089*32, c.TotalSizeBytes)
	assert.Equal(t, 1, c.PatchesPerBatch)
	require.Equal(t, 32*32*6, c.IndexCount())
	assert.Equal(t, []uint32{0, 1, 33, 33, 1, 34}, c.Indexes[:6])
	assert.Equal(t, []uint32{1, 2, 34, 34, 2, 35}, c.Indexes[6:12])

	for _, idx := range c.Indexes {
		assert.Less(t, int(idx), c.TotalVertices)
	}
}

func TestPatchConstantsPanicOnZero(t *testing.T) {
	assert.Panics(t, func() { NewPatchConstants(0, 1) })
	assert.Panics(t, func() { NewPatchConstants(4, 0) })
}

func TestStepSize(t *testing.T) {
	c := NewPatchConstants(4, 1)
	assert.Equal(t, 0.5, c.StepSize(2))
}

func TestSortableFloatsOrder(t *testing.T) {
	values := []float32{
		-math.MaxFloat32, -1e10, -2.5, -1, -1e-20, 0, 1e-20, 0.5, 1, 1.01, 3e8, math.MaxFloat32,
	}
	sortable := make([]uint32, len(values))
	for i, v := range values {
		sortable[i] = FloatToSortable(v)
		assert.Equal(t, v, SortableToFloat(sortable[i]))
	}
	assert.True(t, sort.SliceIsSorted(sortable, func(i, j int) bool { return sortable[i] < sortable[j] }))
}

func TestClearedStatsAndReduce(t *testing.T) {
	stats := ClearedStats(3)
	for _, s := range stats {
		_, _, _, ok := s.Decode()
		assert.False(t, ok)
	}

	s := stats[0]
	s.Reduce(0.99, true)
	s.Reduce(1.02, false)
	s.Reduce(1.0, false)
	minAlt, maxAlt, submerged, ok := s.Decode()
	require.True(t, ok)
	assert.Equal(t, float32(0.99), minAlt)
	assert.Equal(t, float32(1.02), maxAlt)
	assert.Equal(t, uint32(1), submerged)
}

func TestStatsEncoding(t *testing.T) {
	stats := ClearedStats(2)
	stats[1].Reduce(-3, true)
	data := EncodeStats(stats)
	require.Len(t, data, 2*StatsSize)

	decoded, err := DecodeStats(data)
	require.NoError(t, err)
	assert.Equal(t, stats, decoded)

	_, err = DecodeStats(data[:5])
	assert.Error(t, err)
}
