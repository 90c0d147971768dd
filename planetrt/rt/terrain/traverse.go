package terrain

import (
	"github.com/gekko3d/planets/planetrt/rt/compute"
	"github.com/gekko3d/planets/planetrt/rt/core"
	"github.com/go-gl/mathgl/mgl32"
)

// Tunables are the traversal settings that may change between frames.
type Tunables struct {
	MaxPatchLevel  int
	Level1Distance float32
}

// clamped limits MaxPatchLevel to the levels a patch hash can address.
func (t Tunables) clamped() Tunables {
	t.MaxPatchLevel = min(max(t.MaxPatchLevel, 0), core.MaxLevel)
	return t
}

// View is the camera as seen from the planet: position in planet-local
// units where the sea-level sphere has radius 1, and the frustum of the
// model-view-projection matrix in the same space.
type View struct {
	CameraPos mgl32.Vec3
	Frustum   core.Frustum
}

func NewView(cameraPos mgl32.Vec3, mvp mgl32.Mat4) View {
	return View{CameraPos: cameraPos, Frustum: core.ExtractFrustum(mvp)}
}

// ClientRegistry is where a planet registers itself once it has compute work.
type ClientRegistry interface {
	AddClient(c compute.Client)
}

type TraversalStats struct {
	Traversed    int
	Discarded    int
	TerrainDrawn int
	WaterDrawn   int
	Queued       int
	LowestLevel  int
	HighestLevel int
	NumPatches   int
	// Altitude and GroundAltitude are above sea level in planet radii.
	Altitude       float32
	GroundAltitude float32
}

type traversalItem struct {
	id          PatchID
	parentDrawn bool
}

// Traverse walks the quadtree breadth first from the six roots, choosing the
// patches to draw for view and queueing unpopulated ones for generation.
// Populated patches stand in for children that are not ready yet.
func (p *Planet) Traverse(view View, t Tunables, registry ClientRegistry) (DrawList, TraversalStats) {
	t = t.clamped()
	oldQueueLen := len(p.queue)
	path := core.CameraPatchPath(view.CameraPos)
	maxDist2 := view.CameraPos.Dot(view.CameraPos) - 1

	stats := TraversalStats{
		LowestLevel:  -1,
		HighestLevel: -1,
		Altitude:     view.CameraPos.Len() - 1,
	}
	for _, h := range path {
		id, ok := p.patchMap[h]
		if !ok {
			break
		}
		if pt := &p.patches[id]; pt.Populated {
			stats.GroundAltitude = pt.AverageAltitude - 1
		}
	}

	work := make([]traversalItem, 0, 256)
	for i := range core.NumOrientations {
		work = append(work, traversalItem{id: PatchID(i)})
	}
	var draw []PatchID

	for next := 0; next < len(work); next++ {
		item := work[next]
		stats.Traversed++

		patch := &p.patches[item.id]
		level := patch.Level()
		desired := DesiredLevel(t.Level1Distance, patch.Dist2(view.CameraPos), t.MaxPatchLevel)

		if desired <= level || level >= t.MaxPatchLevel {
			if patch.Populated {
				if stats.LowestLevel < 0 || level < stats.LowestLevel {
					stats.LowestLevel = level
				}
				stats.HighestLevel = max(stats.HighestLevel, level)
				if !item.parentDrawn {
					draw = append(draw, item.id)
				}
			} else {
				p.enqueue(item.id)
			}
			// The camera moved away before these children were generated.
			p.pruneChildren(item.id)
			continue
		}

		if patch.Children == NoPatch {
			p.allocChildren(item.id)
			// The slab may have grown.
			patch = &p.patches[item.id]
		}

		var visible uint8
		for i := PatchID(0); i < 4; i++ {
			child := &p.patches[patch.Children+i]
			if p.childVisible(child, path[level+1], &view, maxDist2) {
				visible |= 1 << i
			} else {
				stats.Discarded++
			}
		}

		parentDrawn := item.parentDrawn
		if !item.parentDrawn && patch.Populated && visible&^patch.NumChildrenPopulated != 0 {
			// Draw this patch until its visible children are ready.
			draw = append(draw, item.id)
			parentDrawn = true
		} else if !patch.Populated {
			p.enqueue(item.id)
		}
		for i := PatchID(0); i < 4; i++ {
			if visible&(1<<i) != 0 {
				work = append(work, traversalItem{id: patch.Children + i, parentDrawn: parentDrawn})
			}
		}
	}

	if len(p.queue) > 0 && oldQueueLen == 0 && registry != nil {
		registry.AddClient(p)
	}

	dl := p.buildDrawList(draw)
	stats.TerrainDrawn = len(dl.Terrain)
	stats.WaterDrawn = len(dl.Water)
	stats.Queued = len(p.queue)
	stats.NumPatches = len(p.patchMap)
	p.stats = stats
	return dl, stats
}

// childVisible is false when the child is beyond the horizon on all four
// edges (and does not hold the camera), or outside the frustum.
func (p *Planet) childVisible(child *Patch, cameraPatch core.PatchHash, view *View, maxDist2 float32) bool {
	b := &child.Bounds
	cam := view.CameraPos
	beyondHorizon := child.Hash != cameraPatch &&
		core.Dist2PointToSegment(cam, b.Corner00, b.Corner01) > maxDist2 &&
		core.Dist2PointToSegment(cam, b.Corner00, b.Corner10) > maxDist2 &&
		core.Dist2PointToSegment(cam, b.Corner11, b.Corner01) > maxDist2 &&
		core.Dist2PointToSegment(cam, b.Corner11, b.Corner10) > maxDist2
	return !beyondHorizon && !view.Frustum.SphereOutside(b.Center, b.Radius)
}

// enqueue adds id to the compute queue unless it is already waiting.
func (p *Planet) enqueue(id PatchID) {
	patch := &p.patches[id]
	if patch.Queued || patch.Populated {
		return
	}
	patch.Queued = true
	p.queue = append(p.queue, id)
}
