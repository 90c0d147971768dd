package terrain

import (
	"github.com/chewxy/math32"
	"github.com/gekko3d/planets/planetrt/rt/core"
	"github.com/gekko3d/planets/planetrt/rt/databuffer"
	"github.com/go-gl/mathgl/mgl32"
)

// PatchID indexes a planet's patch slab.
type PatchID int32

const NoPatch PatchID = -1

// Patch is one quadtree node. Children are allocated as a block of four
// consecutive IDs; Children holds the first.
type Patch struct {
	Hash       core.PatchHash
	ChildIndex int
	Parent     PatchID
	Children   PatchID
	Bounds     core.BoundingVectors

	Slot      databuffer.Slot
	Populated bool
	Queued    bool

	// NumChildrenPopulated is a bitmask, bit i set when child i is populated.
	NumChildrenPopulated uint8

	MinAltitude     float32
	MaxAltitude     float32
	AverageAltitude float32
	NumSubmerged    uint32
}

func newPatch(hash core.PatchHash, childIndex int, parent PatchID) Patch {
	return Patch{
		Hash:            hash,
		ChildIndex:      childIndex,
		Parent:          parent,
		Children:        NoPatch,
		Bounds:          hash.BoundingVectors(),
		Slot:            databuffer.NoSlot,
		MinAltitude:     1,
		MaxAltitude:     1,
		AverageAltitude: 1,
	}
}

// SetAltitudes records the generated altitude range and tightens the
// bounding sphere to it.
func (p *Patch) SetAltitudes(minAltitude, maxAltitude float32) {
	p.MinAltitude = minAltitude
	p.MaxAltitude = maxAltitude
	p.AverageAltitude = 0.5 * (minAltitude + maxAltitude)
	p.Bounds = p.Bounds.WithAltitudes(float32(p.Hash.Size()), minAltitude, maxAltitude)
}

func (p *Patch) Level() int { return p.Hash.Level() }

// Dist2 is the squared distance from pos to the patch center.
func (p *Patch) Dist2(pos mgl32.Vec3) float32 {
	d := pos.Sub(p.Bounds.Center)
	return d.Dot(d)
}

// DesiredLevel is floor(log2(L^2/d^2)/2) clamped to [0, maxLevel], the level
// at which a patch at squared distance dist2 should be drawn.
func DesiredLevel(level1Distance, dist2 float32, maxLevel int) int {
	if dist2 <= 0 {
		return maxLevel
	}
	l := math32.Floor(math32.Log2(level1Distance*level1Distance/dist2) / 2)
	switch {
	case l <= 0 || math32.IsNaN(l):
		return 0
	case l >= float32(maxLevel):
		return maxLevel
	}
	return int(l)
}
