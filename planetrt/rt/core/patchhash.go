package core

import (
	"fmt"
)

// Orientation is the cube face a patch lies on.
type Orientation uint8

const (
	XNeg Orientation = iota
	XPos
	YNeg
	YPos
	ZNeg
	ZPos
)

const NumOrientations = 6

var orientationNames = [NumOrientations]string{"X-", "X+", "Y-", "Y+", "Z-", "Z+"}

func (o Orientation) String() string {
	if int(o) < NumOrientations {
		return orientationNames[o]
	}
	return fmt.Sprintf("Orientation(%d)", uint8(o))
}

// PatchHash packs a quadtree node into 64 bits:
//
//	63..61 orientation
//	60..56 level
//	55..28 dim0, fixed point (d+1)*2^27 truncated to the level's precision
//	27..0  dim1, same encoding
//
// Hashes order first by face, then by level, then by position.
type PatchHash uint64

const (
	orientationShift = 61
	levelShift       = 56
	dim0Shift        = 28

	orientationBits uint64 = 0xe000000000000000
	levelBits       uint64 = 0x1f00000000000000
	dim0Bits        uint64 = 0x00fffffff0000000
	dim1Bits        uint64 = 0x000000000fffffff

	DimBits  = 28
	DimMax   = 1 << DimBits
	MaxLevel = DimBits - 1

	dimScale = 1 << 27
)

// ChildPosition is a one-hot quadrant mask, usable directly against a
// populated-children bitmask.
type ChildPosition uint8

const (
	Dim0LoDim1Lo ChildPosition = 1 << iota
	Dim0HiDim1Lo
	Dim0LoDim1Hi
	Dim0HiDim1Hi
)

// Index is the child's slot in a block of four: (lo,lo)(hi,lo)(lo,hi)(hi,hi).
func (c ChildPosition) Index() int {
	switch c {
	case Dim0LoDim1Lo:
		return 0
	case Dim0HiDim1Lo:
		return 1
	case Dim0LoDim1Hi:
		return 2
	case Dim0HiDim1Hi:
		return 3
	}
	panic(fmt.Sprintf("invalid child position %d", uint8(c)))
}

func dimLevelMask(level int) uint64 {
	return ^uint64((1<<(DimBits-level))-1) & (DimMax - 1)
}

func quantizeDim(d float64, level int) uint64 {
	if !(d >= -1 && d < 1) {
		panic(fmt.Sprintf("patch coordinate %g outside [-1,1)", d))
	}
	return uint64((d+1)*dimScale) & dimLevelMask(level)
}

func dequantizeDim(bits uint64) float64 {
	return float64(bits)/dimScale - 1
}

// MakePatchHash panics on level >= 28 or coordinates outside [-1,1); both are
// programming errors.
func MakePatchHash(o Orientation, level int, dim0, dim1 float64) PatchHash {
	if int(o) >= NumOrientations {
		panic(fmt.Sprintf("invalid orientation %d", uint8(o)))
	}
	if level < 0 || level > MaxLevel {
		panic(fmt.Sprintf("patch level %d outside [0,%d]", level, MaxLevel))
	}
	return PatchHash(uint64(o)<<orientationShift |
		uint64(level)<<levelShift |
		quantizeDim(dim0, level)<<dim0Shift |
		quantizeDim(dim1, level))
}

// RootHashes returns the six level 0 patches, one per face.
func RootHashes() [NumOrientations]PatchHash {
	var roots [NumOrientations]PatchHash
	for o := range roots {
		roots[o] = PatchHash(uint64(o) << orientationShift)
	}
	return roots
}

func (h PatchHash) Orientation() Orientation {
	return Orientation((uint64(h) & orientationBits) >> orientationShift)
}

func (h PatchHash) Level() int {
	return int((uint64(h) & levelBits) >> levelShift)
}

// Size is the patch edge length in face coordinates.
func (h PatchHash) Size() float64 {
	return 2 / float64(uint64(1)<<h.Level())
}

func (h PatchHash) Dim0() float64 {
	return dequantizeDim((uint64(h) & dim0Bits) >> dim0Shift)
}

func (h PatchHash) Dim1() float64 {
	return dequantizeDim(uint64(h) & dim1Bits)
}

// Parent returns the enclosing patch one level up and which quadrant of it h
// occupies. Panics on a root patch.
func (h PatchHash) Parent() (PatchHash, ChildPosition) {
	level := h.Level()
	if level == 0 {
		panic("root patch has no parent")
	}
	hi0 := uint64(h)&(1<<(levelShift-level)) != 0
	hi1 := uint64(h)&(1<<(DimBits-level)) != 0

	var pos ChildPosition
	switch {
	case !hi0 && !hi1:
		pos = Dim0LoDim1Lo
	case hi0 && !hi1:
		pos = Dim0HiDim1Lo
	case !hi0 && hi1:
		pos = Dim0LoDim1Hi
	default:
		pos = Dim0HiDim1Hi
	}

	mask := dimLevelMask(level - 1)
	d0 := (uint64(h) & dim0Bits) >> dim0Shift & mask
	d1 := uint64(h) & dim1Bits & mask
	parent := uint64(h)&orientationBits | uint64(level-1)<<levelShift | d0<<dim0Shift | d1
	return PatchHash(parent), pos
}

// Child returns quadrant i (0..3) one level down. Panics at MaxLevel.
func (h PatchHash) Child(i int) PatchHash {
	level := h.Level()
	if level >= MaxLevel {
		panic(fmt.Sprintf("patch at level %d cannot be split", level))
	}
	if i < 0 || i > 3 {
		panic(fmt.Sprintf("invalid child index %d", i))
	}
	half := uint64(1) << (DimBits - 1 - level)
	v := uint64(h)&^levelBits | uint64(level+1)<<levelShift
	if i&1 != 0 {
		v += half << dim0Shift
	}
	if i&2 != 0 {
		v += half
	}
	return PatchHash(v)
}

func (h PatchHash) Children() [4]PatchHash {
	return [4]PatchHash{h.Child(0), h.Child(1), h.Child(2), h.Child(3)}
}

func (h PatchHash) String() string {
	return fmt.Sprintf("PatchHash(%s L%d %.6f,%.6f)", h.Orientation(), h.Level(), h.Dim0(), h.Dim1())
}
