package databuffer

import (
	"context"
	"sync"
	"time"
)

// EvictionRequest names a slot the sweeper found stale. It is only a
// suggestion: the main thread re-checks it before anything is freed.
type EvictionRequest struct {
	Slot       Slot
	Generation uint32
	Owner      OwnerID
	Patch      PatchRef
}

// SweepNow scans the arena for slots not drawn within StaleAfter.
func (b *Buffer) SweepNow() []EvictionRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	cutoff := b.clock.Now().Add(-b.cfg.StaleAfter)
	var reqs []EvictionRequest
	for i := 0; i < b.capacity; i++ {
		if b.used[i] && b.lastDrawn[i].Before(cutoff) {
			reqs = append(reqs, EvictionRequest{
				Slot:       Slot(i),
				Generation: b.generations[i],
				Owner:      b.owners[i],
				Patch:      b.patches[i],
			})
		}
	}
	return reqs
}

// publish hands reqs to the main thread, replacing a batch it has not
// picked up yet.
func (b *Buffer) publish(reqs []EvictionRequest) {
	for {
		select {
		case b.requests <- reqs:
			return
		default:
		}
		select {
		case <-b.requests:
		default:
		}
	}
}

// ApplyEvictions applies the latest batch from the sweeper, if any. Main
// thread only.
func (b *Buffer) ApplyEvictions() int {
	select {
	case reqs := <-b.requests:
		return b.Apply(reqs)
	default:
		return 0
	}
}

// Apply evicts every request that is still valid: same generation, still
// stale, and accepted by its owner. Main thread only.
func (b *Buffer) Apply(reqs []EvictionRequest) int {
	evicted := 0
	perOwner := make(map[OwnerID]int)
	for _, r := range reqs {
		owner, ok := b.validate(r)
		if !ok {
			continue
		}
		if !owner.EvictPatch(r.Patch, r.Slot) {
			continue
		}
		b.mu.Lock()
		b.freeLocked(r.Slot)
		b.evictions++
		if e, ok := b.ownerTable[r.Owner]; ok {
			e.evictions++
		}
		b.mu.Unlock()
		perOwner[r.Owner]++
		evicted++
	}
	if evicted > 0 && b.logger.DebugEnabled() {
		for id, n := range perOwner {
			if st, ok := b.Owner(id); ok {
				b.logger.Debugf("owner %s: evicted %d stale patches, %d slots left", st.Key, n, st.Slots)
			}
		}
		b.logger.Debugf("evicted %d of %d stale patches", evicted, len(reqs))
	}
	return evicted
}

func (b *Buffer) validate(r EvictionRequest) (Owner, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := r.Slot
	if s < 0 || int(s) >= b.capacity || !b.used[s] {
		return nil, false
	}
	if b.generations[s] != r.Generation || b.owners[s] != r.Owner || b.patches[s] != r.Patch {
		return nil, false
	}
	if !b.lastDrawn[s].Before(b.clock.Now().Add(-b.cfg.StaleAfter)) {
		return nil, false
	}
	e, ok := b.ownerTable[r.Owner]
	if !ok {
		return nil, false
	}
	return e.owner, true
}

// Sweeper periodically scans the arena on its own goroutine.
type Sweeper struct {
	buf    *Buffer
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// StartSweeper runs a sweep every SweepInterval until ctx is done or Stop is
// called. Results are picked up with ApplyEvictions.
func (b *Buffer) StartSweeper(ctx context.Context) *Sweeper {
	ctx, cancel := context.WithCancel(ctx)
	s := &Sweeper{buf: b, cancel: cancel}
	interval := b.cfg.SweepInterval
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if reqs := b.SweepNow(); len(reqs) > 0 {
					b.publish(reqs)
				}
			}
		}
	}()
	b.logger.Debugf("sweeper started, interval %v, stale after %v", interval, b.cfg.StaleAfter)
	return s
}

func (s *Sweeper) Stop() {
	s.cancel()
	s.wg.Wait()
}
