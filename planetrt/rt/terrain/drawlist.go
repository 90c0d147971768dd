package terrain

import "github.com/gekko3d/planets/planetrt/rt/databuffer"

// DrawItem is one indexed draw of a patch's slot.
type DrawItem struct {
	BaseVertex int32
	IndexCount uint32
	Patch      PatchID
}

// DrawList is a planet's output for one frame. Patches lists every drawn
// patch; Terrain and Water are the subsets with land and with water.
type DrawList struct {
	Terrain []DrawItem
	Water   []DrawItem
	Patches []PatchID
}

func (d *DrawList) Len() int { return len(d.Patches) }

func (p *Planet) buildDrawList(ids []PatchID) DrawList {
	dl := DrawList{Patches: ids}
	if len(ids) == 0 {
		return dl
	}
	indexCount := uint32(p.constants.IndexCount())
	visible := uint32(p.constants.VisibleVertices)
	slots := make([]databuffer.Slot, 0, len(ids))

	for _, id := range ids {
		patch := &p.patches[id]
		item := DrawItem{
			BaseVertex: p.buffer.BaseVertex(patch.Slot),
			IndexCount: indexCount,
			Patch:      id,
		}
		if !p.water || patch.NumSubmerged < visible {
			dl.Terrain = append(dl.Terrain, item)
		}
		if p.water && patch.NumSubmerged > 0 {
			dl.Water = append(dl.Water, item)
		}
		slots = append(slots, patch.Slot)
	}
	p.buffer.MarkDrawn(slots, p.clock.Now())
	return dl
}
