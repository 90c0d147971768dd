package core

import (
	"math/rand"
	"testing"

	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func vecInDelta(t *testing.T, want, got mgl32.Vec3, delta float32) {
	t.Helper()
	assert.Truef(t, want.ApproxEqualThreshold(got, delta), "want %v got %v", want, got)
}

func TestFaceToSphereCenters(t *testing.T) {
	tests := []struct {
		o    Orientation
		want mgl32.Vec3
	}{
		{XNeg, mgl32.Vec3{-1, 0, 0}},
		{XPos, mgl32.Vec3{1, 0, 0}},
		{YNeg, mgl32.Vec3{0, -1, 0}},
		{YPos, mgl32.Vec3{0, 1, 0}},
		{ZNeg, mgl32.Vec3{0, 0, -1}},
		{ZPos, mgl32.Vec3{0, 0, 1}},
	}
	for _, tc := range tests {
		t.Run(tc.o.String(), func(t *testing.T) {
			vecInDelta(t, tc.want, FaceToSphere(tc.o, 0, 0), 1e-6)
			assert.InDelta(t, 1.0, FaceToSphere(tc.o, 0.7, -0.3).Len(), 1e-6)
		})
	}
}

func TestFaceEdgesMeet(t *testing.T) {
	// The dim0=+1 edge of ZPos is the X+ side of the cube, which is the
	// dim0=-1 edge of XPos.
	vecInDelta(t, FaceToSphere(ZPos, 1, 0.25), FaceToSphere(XPos, -1, 0.25), 1e-6)
	vecInDelta(t, FaceToSphere(ZPos, 0.25, 1), FaceToSphere(YPos, 0.25, -1), 1e-6)
}

func TestRootBoundingVectors(t *testing.T) {
	b := RootHashes()[ZPos].BoundingVectors()
	vecInDelta(t, mgl32.Vec3{0, 0, 1}, b.Center, 1e-6)
	vecInDelta(t, mgl32.Vec3{-1, -1, 1}.Normalize(), b.Corner00, 1e-6)
	vecInDelta(t, mgl32.Vec3{-1, 1, 1}.Normalize(), b.Corner01, 1e-6)
	vecInDelta(t, mgl32.Vec3{1, -1, 1}.Normalize(), b.Corner10, 1e-6)
	vecInDelta(t, mgl32.Vec3{1, 1, 1}.Normalize(), b.Corner11, 1e-6)
	assert.InDelta(t, 2*math32.Sqrt2, b.Radius, 1e-6)
}

func TestWithAltitudes(t *testing.T) {
	h := MakePatchHash(XPos, 4, 0, 0)
	size := float32(h.Size())
	b := h.BoundingVectors().WithAltitudes(size, 0.98, 1.01)
	assert.InDelta(t, math32.Sqrt(2*size*size+0.02*0.02), b.Radius, 1e-6)

	flat := h.BoundingVectors().WithAltitudes(size, 1, 1)
	assert.InDelta(t, math32.Sqrt2*size, flat.Radius, 1e-6)
}

func TestPatchPositionInvertsFaceToSphere(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	for i := 0; i < 1000; i++ {
		o := Orientation(rng.Intn(NumOrientations))
		d0 := rng.Float32()*1.9 - 0.95
		d1 := rng.Float32()*1.9 - 0.95
		p := FaceToSphere(o, d0, d1).Mul(3)

		gotO, gotD0, gotD1, alt := PatchPosition(p)
		require.Equal(t, o, gotO)
		assert.InDelta(t, d0, gotD0, 1e-5)
		assert.InDelta(t, d1, gotD1, 1e-5)
		assert.InDelta(t, 3, alt, 1e-5)
	}
}

func TestPatchPositionEdges(t *testing.T) {
	o, d0, d1, alt := PatchPosition(mgl32.Vec3{})
	assert.Equal(t, ZPos, o)
	assert.Equal(t, 0.0, d0)
	assert.Equal(t, 0.0, d1)
	assert.Equal(t, float32(0), alt)

	// A cube corner lands on the face boundary and must still hash.
	o, d0, d1, _ = PatchPosition(mgl32.Vec3{1, 1, 1})
	assert.NotPanics(t, func() { MakePatchHash(o, MaxLevel, d0, d1) })
}

func TestCameraPatchPath(t *testing.T) {
	cam := mgl32.Vec3{0.2, 0.1, 2}
	path := CameraPatchPath(cam)
	for level := 1; level <= MaxLevel; level++ {
		parent, _ := path[level].Parent()
		assert.Equal(t, path[level-1], parent, "level %d", level)
	}
	assert.Equal(t, RootHashes()[ZPos], path[0])
}

func TestDist2PointToSegment(t *testing.T) {
	a := mgl32.Vec3{0, 0, 0}
	b := mgl32.Vec3{2, 0, 0}
	assert.InDelta(t, 1, Dist2PointToSegment(mgl32.Vec3{1, 1, 0}, a, b), 1e-6)
	assert.InDelta(t, 2, Dist2PointToSegment(mgl32.Vec3{-1, 1, 0}, a, b), 1e-6)
	assert.InDelta(t, 5, Dist2PointToSegment(mgl32.Vec3{3, 2, 0}, a, b), 1e-6)
	assert.InDelta(t, 9, Dist2PointToSegment(mgl32.Vec3{0, 3, 0}, a, a), 1e-6)
}
