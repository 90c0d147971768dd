package terrain

import (
	"fmt"

	"github.com/gekko3d/planets/planetrt/rt/databuffer"
)

// RunAllComputeItems generates every queued patch.
func (p *Planet) RunAllComputeItems() int {
	n, _ := p.RunSomeComputeItems(len(p.queue))
	return n
}

// RunSomeComputeItems generates up to maxBatches batches from the head of
// the queue. Each popped patch is marked populated and given a slot before
// its batch is dispatched; altitude stats are read back whenever the stats
// scratch buffer is about to overflow and after the last batch.
func (p *Planet) RunSomeComputeItems(maxBatches int) (int, bool) {
	if maxBatches <= 0 || len(p.queue) == 0 {
		return 0, len(p.queue) == 0
	}

	perBatch := p.constants.PatchesPerBatch
	statsCap := p.buffer.Config().StatsBufferPatches
	p.must(p.generator.ClearStats(), "clear stats")

	calculated := make([]PatchID, 0, statsCap)
	items := make([]PatchItem, 0, perBatch)
	statsOffset := 0

	batch := 0
	for ; len(p.queue) > 0 && batch < maxBatches; batch++ {
		items = items[:0]
		for n := 0; n < perBatch && len(p.queue) > 0; n++ {
			id := p.queue[0]
			p.queue = p.queue[1:]
			items = append(items, p.populate(id, statsOffset))
			calculated = append(calculated, id)
			statsOffset++
		}
		p.must(p.generator.Dispatch(items), "dispatch")

		nextBatch := 0
		if batch < maxBatches-1 {
			nextBatch = min(len(p.queue), perBatch)
		}
		if nextBatch == 0 || nextBatch > statsCap-statsOffset {
			stats, err := p.generator.ReadStats(len(calculated))
			p.must(err, "read stats")
			p.applyStats(calculated, stats)
			if nextBatch > 0 {
				statsOffset = 0
				calculated = calculated[:0]
				p.must(p.generator.ClearStats(), "clear stats")
			}
		}
	}
	if len(p.queue) == 0 {
		p.queue = nil
	}
	return batch, len(p.queue) == 0
}

// populate takes a slot for id and builds its generator item.
func (p *Planet) populate(id PatchID, statsOffset int) PatchItem {
	slot, err := p.buffer.Allocate(p.owner, databuffer.PatchRef(id))
	p.must(err, "allocate slot")

	patch := &p.patches[id]
	patch.Queued = false
	patch.Populated = true
	patch.Slot = slot
	if patch.Parent != NoPatch {
		p.patches[patch.Parent].NumChildrenPopulated |= 1 << patch.ChildIndex
	}

	h := patch.Hash
	step := p.constants.StepSize(h.Size())
	return PatchItem{
		Packed:    PackItem(h.Orientation(), statsOffset, slot),
		StepSize:  float32(step),
		Dim0Start: float32(h.Dim0() - step),
		Dim1Start: float32(h.Dim1() - step),
	}
}

func (p *Planet) applyStats(ids []PatchID, stats []databuffer.Stats) {
	for i, id := range ids {
		patch := &p.patches[id]
		minAlt, maxAlt, submerged, ok := stats[i].Decode()
		if !ok {
			p.logger.Warnf("no stats for %s, keeping default altitudes", patch.Hash)
			continue
		}
		patch.SetAltitudes(minAlt, maxAlt)
		patch.NumSubmerged = submerged
	}
}

// must treats generator and arena failures as fatal; a half-populated patch
// cannot be recovered.
func (p *Planet) must(err error, what string) {
	if err == nil {
		return
	}
	p.logger.Errorf("%s failed: %v", what, err)
	panic(fmt.Errorf("planet %s: %s: %w", p.name, what, err))
}
