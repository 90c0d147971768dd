package databuffer

import (
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/gekko3d/planets"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeOwner struct {
	mu      sync.Mutex
	accept  bool
	evicted []PatchRef
}

func (o *fakeOwner) EvictPatch(patch PatchRef, slot Slot) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.accept {
		return false
	}
	o.evicted = append(o.evicted, patch)
	return true
}

func (o *fakeOwner) count() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.evicted)
}

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func newTestBuffer(t *testing.T, slots int, clock planets.Clock) *Buffer {
	t.Helper()
	c := NewPatchConstants(4, 1)
	b, err := New(Config{
		BufferSizeBytes:    int64(slots * c.TotalSizeBytes),
		StatsBufferPatches: 4,
		StaleAfter:         5 * time.Second,
		SweepInterval:      5 * time.Millisecond,
	}, c, clock, nil)
	require.NoError(t, err)
	return b
}

func TestNewRejectsBadConfig(t *testing.T) {
	c := DefaultPatchConstants()
	_, err := New(Config{BufferSizeBytes: 10, StatsBufferPatches: 1}, c, nil, nil)
	assert.ErrorIs(t, err, ErrBadConfig)

	_, err = New(Config{BufferSizeBytes: 1 << 28, StatsBufferPatches: 257}, c, nil, nil)
	assert.ErrorIs(t, err, ErrBadConfig)

	_, err = New(Config{BufferSizeBytes: 1 << 28, StatsBufferPatches: 4}, NewPatchConstants(32, 8), nil, nil)
	assert.ErrorIs(t, err, ErrBadConfig)

	b, err := New(Config{BufferSizeBytes: 256 << 20, StatsBufferPatches: 256}, c, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, (256<<20)/c.TotalSizeBytes, b.Capacity())
}

func TestAllocateUntilFull(t *testing.T) {
	b := newTestBuffer(t, 4, nil)
	owner := b.RegisterOwner(&fakeOwner{})

	for i := 0; i < 4; i++ {
		slot, err := b.Allocate(owner, PatchRef(i))
		require.NoError(t, err)
		assert.Equal(t, Slot(i), slot)
	}
	_, err := b.Allocate(owner, 99)
	assert.ErrorIs(t, err, ErrArenaFull)

	b.Free(2)
	slot, err := b.Allocate(owner, 5)
	require.NoError(t, err)
	assert.Equal(t, Slot(2), slot)

	gotOwner, patch, err := b.Lookup(2)
	require.NoError(t, err)
	assert.Equal(t, owner, gotOwner)
	assert.Equal(t, PatchRef(5), patch)
}

func TestFreeTwicePanics(t *testing.T) {
	b := newTestBuffer(t, 2, nil)
	owner := b.RegisterOwner(&fakeOwner{})
	slot, err := b.Allocate(owner, 1)
	require.NoError(t, err)
	b.Free(slot)
	assert.Panics(t, func() { b.Free(slot) })
	assert.Panics(t, func() { b.Free(7) })

	_, _, err = b.Lookup(slot)
	assert.ErrorIs(t, err, ErrStaleSlot)
}

func TestAllocateUnknownOwner(t *testing.T) {
	b := newTestBuffer(t, 2, nil)
	_, err := b.Allocate(42, 1)
	assert.Error(t, err)
}

func TestSlotPartitionInvariant(t *testing.T) {
	const capacity = 16
	b := newTestBuffer(t, capacity, nil)
	owner := b.RegisterOwner(&fakeOwner{})
	rng := rand.New(rand.NewSource(11))

	held := map[Slot]bool{}
	for i := 0; i < 2000; i++ {
		if rng.Intn(2) == 0 {
			slot, err := b.Allocate(owner, PatchRef(i))
			if len(held) == capacity {
				require.ErrorIs(t, err, ErrArenaFull)
				continue
			}
			require.NoError(t, err)
			require.False(t, held[slot], "slot %d handed out twice", slot)
			held[slot] = true
		} else {
			for s := range held {
				b.Free(s)
				delete(held, s)
				break
			}
		}
		occ := b.Snapshot()
		require.Equal(t, capacity, occ.Occupied+occ.Free)
		require.Equal(t, len(held), occ.Occupied)
		require.Equal(t, len(held), b.OwnerSlots(owner))
	}
}

func TestUnregisterOwnerFreesSlots(t *testing.T) {
	b := newTestBuffer(t, 4, nil)
	a := b.RegisterOwner(&fakeOwner{})
	c := b.RegisterOwner(&fakeOwner{})
	for i := 0; i < 3; i++ {
		_, err := b.Allocate(a, PatchRef(i))
		require.NoError(t, err)
	}
	_, err := b.Allocate(c, 0)
	require.NoError(t, err)

	assert.Equal(t, 3, b.UnregisterOwner(a))
	assert.Equal(t, 1, b.Occupied())
	assert.Equal(t, 0, b.UnregisterOwner(a))
}

func TestSlotOffsets(t *testing.T) {
	b := newTestBuffer(t, 4, nil)
	c := b.Constants()
	assert.Equal(t, uint64(2*c.TotalSizeBytes), b.VertexOffset(2))
	assert.Equal(t, int32(3*c.TotalVertices), b.BaseVertex(3))
	assert.Equal(t, uint64(4*c.TotalSizeBytes), b.SizeBytes())
}
