package core

import (
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

// BoundingVectors are the unit-sphere projections of a patch's center and
// corners plus a bounding sphere radius around the center.
type BoundingVectors struct {
	Center   mgl32.Vec3
	Corner00 mgl32.Vec3
	Corner01 mgl32.Vec3
	Corner10 mgl32.Vec3
	Corner11 mgl32.Vec3
	Radius   float32
}

// FaceToSphere maps face coordinates onto the unit sphere.
func FaceToSphere(o Orientation, dim0, dim1 float32) mgl32.Vec3 {
	var v mgl32.Vec3
	switch o {
	case XNeg:
		v = mgl32.Vec3{-1, dim1, dim0}
	case XPos:
		v = mgl32.Vec3{1, dim1, -dim0}
	case YNeg:
		v = mgl32.Vec3{dim0, -1, dim1}
	case YPos:
		v = mgl32.Vec3{dim0, 1, -dim1}
	case ZNeg:
		v = mgl32.Vec3{-dim0, dim1, -1}
	case ZPos:
		v = mgl32.Vec3{dim0, dim1, 1}
	default:
		panic("unknown orientation " + o.String())
	}
	return v.Normalize()
}

// BoundingVectors derives the bounds from the hash alone. The radius assumes
// flat terrain until altitudes are known; see WithAltitudes.
func (h PatchHash) BoundingVectors() BoundingVectors {
	o := h.Orientation()
	d0 := float32(h.Dim0())
	d1 := float32(h.Dim1())
	s := float32(h.Size())
	return BoundingVectors{
		Center:   FaceToSphere(o, d0+s/2, d1+s/2),
		Corner00: FaceToSphere(o, d0, d1),
		Corner01: FaceToSphere(o, d0, d1+s),
		Corner10: FaceToSphere(o, d0+s, d1),
		Corner11: FaceToSphere(o, d0+s, d1+s),
		Radius:   math32.Sqrt2 * s,
	}
}

// WithAltitudes tightens the radius once the generated terrain's altitude
// range is known. Altitudes are in planet radii, 1 being the sea-level sphere.
func (b BoundingVectors) WithAltitudes(size, minAltitude, maxAltitude float32) BoundingVectors {
	maxDist := math32.Max(math32.Abs(1-minAltitude), math32.Abs(1-maxAltitude))
	b.Radius = math32.Sqrt(2*size*size + maxDist*maxDist)
	return b
}

// Dist2PointToSegment is the squared distance from p to the segment ab.
func Dist2PointToSegment(p, a, b mgl32.Vec3) float32 {
	ab := b.Sub(a)
	l2 := ab.Dot(ab)
	if l2 == 0 {
		d := p.Sub(a)
		return d.Dot(d)
	}
	t := p.Sub(a).Dot(ab) / l2
	t = mgl32.Clamp(t, 0, 1)
	d := p.Sub(a.Add(ab.Mul(t)))
	return d.Dot(d)
}

// maxFaceDim is the largest coordinate MakePatchHash accepts.
const maxFaceDim = 1 - 1.0/dimScale

// PatchPosition projects a planet-local position onto the cube and returns
// the face and face coordinates it lies over, plus its distance from the
// planet center. It is the inverse of FaceToSphere. The origin maps to the
// center of ZPos.
func PatchPosition(p mgl32.Vec3) (o Orientation, dim0, dim1 float64, altitude float32) {
	altitude = p.Len()
	ax, ay, az := math32.Abs(p[0]), math32.Abs(p[1]), math32.Abs(p[2])

	switch {
	case altitude == 0:
		return ZPos, 0, 0, 0
	case ax >= ay && ax >= az:
		c := p.Mul(1 / ax)
		if p[0] < 0 {
			o, dim0, dim1 = XNeg, float64(c[2]), float64(c[1])
		} else {
			o, dim0, dim1 = XPos, float64(-c[2]), float64(c[1])
		}
	case ay >= az:
		c := p.Mul(1 / ay)
		if p[1] < 0 {
			o, dim0, dim1 = YNeg, float64(c[0]), float64(c[2])
		} else {
			o, dim0, dim1 = YPos, float64(c[0]), float64(-c[2])
		}
	default:
		c := p.Mul(1 / az)
		if p[2] < 0 {
			o, dim0, dim1 = ZNeg, float64(-c[0]), float64(c[1])
		} else {
			o, dim0, dim1 = ZPos, float64(c[0]), float64(c[1])
		}
	}
	return o, clampFaceDim(dim0), clampFaceDim(dim1), altitude
}

func clampFaceDim(d float64) float64 {
	if d < -1 {
		return -1
	}
	if d > maxFaceDim {
		return maxFaceDim
	}
	return d
}

// CameraPatchPath returns, for every level, the hash of the patch the camera
// is over.
func CameraPatchPath(cameraPos mgl32.Vec3) [MaxLevel + 1]PatchHash {
	var path [MaxLevel + 1]PatchHash
	o, d0, d1, _ := PatchPosition(cameraPos)
	for level := 0; level <= MaxLevel; level++ {
		path[level] = MakePatchHash(o, level, d0, d1)
	}
	return path
}
