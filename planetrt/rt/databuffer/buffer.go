package databuffer

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gekko3d/planets"
	"github.com/google/uuid"
)

// Slot indexes one patch-sized region of the shared vertex buffer.
type Slot int32

const NoSlot Slot = -1

// OwnerID identifies a registered owner (one per planet).
type OwnerID int32

// PatchRef is opaque to the arena; owners use it to find their patch.
type PatchRef int32

// Owner is notified on the main thread when one of its slots is evicted. It
// returns false if the patch can no longer be evicted, in which case the
// slot is kept.
type Owner interface {
	EvictPatch(patch PatchRef, slot Slot) bool
}

const (
	// MaxSlots is limited by the 21 slot bits of a packed compute item.
	MaxSlots = 1 << 21
	// MaxStatsPatches is limited by the 8 stats offset bits.
	MaxStatsPatches = 1 << 8
)

var (
	ErrArenaFull  = errors.New("patch data buffer is full")
	ErrStaleSlot  = errors.New("slot is not allocated")
	ErrBadConfig  = errors.New("invalid patch data buffer config")
	ErrNoSuchSlot = errors.New("slot out of range")
)

type Config struct {
	BufferSizeBytes    int64
	StatsBufferPatches int
	StaleAfter         time.Duration
	SweepInterval      time.Duration
}

func ConfigFrom(c planets.ArenaConfig) Config {
	return Config{
		BufferSizeBytes:    c.BufferSizeBytes,
		StatsBufferPatches: c.StatsBufferPatches,
		StaleAfter:         c.StaleAfter.Std(),
		SweepInterval:      c.SweepInterval.Std(),
	}
}

type ownerEntry struct {
	owner     Owner
	key       uuid.UUID
	slots     int
	evictions uint64
}

// OwnerStats describes one registered owner. Key is stable for the owner's
// lifetime and labels it in logs.
type OwnerStats struct {
	Key       uuid.UUID
	Slots     int
	Evictions uint64
}

// Occupancy is a consistent view of the arena's slot partition.
type Occupancy struct {
	Capacity  int
	Occupied  int
	Free      int
	Evictions uint64
}

// Buffer is the slot arena behind the shared patch vertex buffer. The main
// thread allocates and frees; the sweeper goroutine only reads under mu.
type Buffer struct {
	mu sync.Mutex

	cfg       Config
	constants *PatchConstants
	clock     planets.Clock
	logger    planets.Logger

	capacity int
	free     []Slot // stack, top at the end

	used        []bool
	patches     []PatchRef
	owners      []OwnerID
	generations []uint32
	lastDrawn   []time.Time

	ownerTable map[OwnerID]*ownerEntry
	nextOwner  OwnerID
	evictions  uint64

	requests chan []EvictionRequest
}

func New(cfg Config, constants *PatchConstants, clock planets.Clock, logger planets.Logger) (*Buffer, error) {
	if constants == nil {
		return nil, fmt.Errorf("%w: missing patch constants", ErrBadConfig)
	}
	capacity := int(cfg.BufferSizeBytes / int64(constants.TotalSizeBytes))
	switch {
	case capacity <= 0:
		return nil, fmt.Errorf("%w: %d bytes holds no %d byte patch", ErrBadConfig, cfg.BufferSizeBytes, constants.TotalSizeBytes)
	case capacity > MaxSlots:
		return nil, fmt.Errorf("%w: %d slots exceeds %d", ErrBadConfig, capacity, MaxSlots)
	case cfg.StatsBufferPatches <= 0 || cfg.StatsBufferPatches > MaxStatsPatches:
		return nil, fmt.Errorf("%w: stats buffer of %d patches outside [1,%d]", ErrBadConfig, cfg.StatsBufferPatches, MaxStatsPatches)
	case constants.PatchesPerBatch > cfg.StatsBufferPatches:
		return nil, fmt.Errorf("%w: batch of %d patches exceeds stats buffer of %d", ErrBadConfig, constants.PatchesPerBatch, cfg.StatsBufferPatches)
	}

	b := &Buffer{
		cfg:         cfg,
		constants:   constants,
		clock:       planets.ClockOrSystem(clock),
		logger:      planets.LoggerOrNop(logger),
		capacity:    capacity,
		free:        make([]Slot, capacity),
		used:        make([]bool, capacity),
		patches:     make([]PatchRef, capacity),
		owners:      make([]OwnerID, capacity),
		generations: make([]uint32, capacity),
		lastDrawn:   make([]time.Time, capacity),
		ownerTable:  make(map[OwnerID]*ownerEntry),
		requests:    make(chan []EvictionRequest, 1),
	}
	// Slot 0 ends up on top of the stack.
	for i := range b.free {
		b.free[i] = Slot(capacity - 1 - i)
	}
	b.logger.Infof("patch data buffer: %d slots of %d bytes (%.1f MB)",
		capacity, constants.TotalSizeBytes, float64(cfg.BufferSizeBytes)/(1<<20))
	return b, nil
}

func (b *Buffer) Constants() *PatchConstants { return b.constants }
func (b *Buffer) Config() Config             { return b.cfg }

func (b *Buffer) RegisterOwner(owner Owner) OwnerID {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextOwner
	b.nextOwner++
	e := &ownerEntry{owner: owner, key: uuid.New()}
	b.ownerTable[id] = e
	b.logger.Debugf("registered owner %d (%s)", id, e.key)
	return id
}

// UnregisterOwner frees every slot the owner holds and returns how many.
func (b *Buffer) UnregisterOwner(id OwnerID) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.ownerTable[id]
	if !ok {
		return 0
	}
	freed := 0
	for i := 0; i < b.capacity; i++ {
		if b.used[i] && b.owners[i] == id {
			b.freeLocked(Slot(i))
			freed++
		}
	}
	delete(b.ownerTable, id)
	b.logger.Debugf("unregistered owner %d (%s), freed %d slots", id, e.key, freed)
	return freed
}

// Allocate pops a slot off the free stack for patch. The slot counts as
// drawn now, so a fresh patch is not stale before it has had a frame.
func (b *Buffer) Allocate(owner OwnerID, patch PatchRef) (Slot, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.ownerTable[owner]
	if !ok {
		return NoSlot, fmt.Errorf("allocate for unknown owner %d", owner)
	}
	n := len(b.free)
	if n == 0 {
		return NoSlot, ErrArenaFull
	}
	slot := b.free[n-1]
	b.free = b.free[:n-1]

	b.used[slot] = true
	b.patches[slot] = patch
	b.owners[slot] = owner
	b.generations[slot]++
	b.lastDrawn[slot] = b.clock.Now()
	e.slots++
	return slot, nil
}

// Free returns slot to the free stack. Freeing a free slot panics.
func (b *Buffer) Free(slot Slot) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.freeLocked(slot)
}

func (b *Buffer) freeLocked(slot Slot) {
	if slot < 0 || int(slot) >= b.capacity {
		panic(fmt.Errorf("%w: %d", ErrNoSuchSlot, slot))
	}
	if !b.used[slot] {
		panic(fmt.Errorf("%w: double free of %d", ErrStaleSlot, slot))
	}
	if e, ok := b.ownerTable[b.owners[slot]]; ok {
		e.slots--
	}
	b.used[slot] = false
	b.patches[slot] = 0
	b.owners[slot] = 0
	b.generations[slot]++
	b.free = append(b.free, slot)
}

// MarkDrawn records t as the last draw time of every slot.
func (b *Buffer) MarkDrawn(slots []Slot, t time.Time) {
	if len(slots) == 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, s := range slots {
		if s >= 0 && int(s) < b.capacity && b.used[s] {
			b.lastDrawn[s] = t
		}
	}
}

// Lookup returns the owner and patch held by slot.
func (b *Buffer) Lookup(slot Slot) (OwnerID, PatchRef, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if slot < 0 || int(slot) >= b.capacity {
		return 0, 0, fmt.Errorf("%w: %d", ErrNoSuchSlot, slot)
	}
	if !b.used[slot] {
		return 0, 0, fmt.Errorf("%w: %d", ErrStaleSlot, slot)
	}
	return b.owners[slot], b.patches[slot], nil
}

func (b *Buffer) Capacity() int { return b.capacity }

func (b *Buffer) Occupied() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.capacity - len(b.free)
}

func (b *Buffer) FreeCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.free)
}

// Owner returns the stats of a registered owner.
func (b *Buffer) Owner(id OwnerID) (OwnerStats, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.ownerTable[id]
	if !ok {
		return OwnerStats{}, false
	}
	return OwnerStats{Key: e.key, Slots: e.slots, Evictions: e.evictions}, true
}

// OwnerSlots is the number of slots held by owner.
func (b *Buffer) OwnerSlots(owner OwnerID) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if e, ok := b.ownerTable[owner]; ok {
		return e.slots
	}
	return 0
}

func (b *Buffer) Snapshot() Occupancy {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Occupancy{
		Capacity:  b.capacity,
		Occupied:  b.capacity - len(b.free),
		Free:      len(b.free),
		Evictions: b.evictions,
	}
}

// VertexOffset is the byte offset of slot in the vertex buffer.
func (b *Buffer) VertexOffset(slot Slot) uint64 {
	return uint64(slot) * uint64(b.constants.TotalSizeBytes)
}

// BaseVertex is the first vertex index of slot.
func (b *Buffer) BaseVertex(slot Slot) int32 {
	return int32(slot) * int32(b.constants.TotalVertices)
}

func (b *Buffer) SizeBytes() uint64 {
	return uint64(b.capacity) * uint64(b.constants.TotalSizeBytes)
}
