package core

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/go-gl/mathgl/mgl64"
)

// CameraState is the free-fly camera driven by input. Positions are in
// world units and kept in float64 so a camera can sit on a planet an AU
// away from the origin.
type CameraState struct {
	Position    mgl64.Vec3
	Yaw         float64
	Pitch       float64
	Speed       float64
	Sensitivity float64
}

func NewCameraState() *CameraState {
	return &CameraState{
		Position:    mgl64.Vec3{0, 0, 3},
		Speed:       1.0,
		Sensitivity: 0.003,
	}
}

func (c *CameraState) GetForward() mgl64.Vec3 {
	// Y-up: yaw around Y, pitch towards Y
	return mgl64.Vec3{
		math.Cos(c.Pitch) * math.Sin(c.Yaw),
		math.Sin(c.Pitch),
		-math.Cos(c.Pitch) * math.Cos(c.Yaw),
	}
}

func (c *CameraState) GetRight() mgl64.Vec3 {
	return mgl64.Vec3{math.Cos(c.Yaw), 0, math.Sin(c.Yaw)}
}

// LookAt points the camera at target.
func (c *CameraState) LookAt(target mgl64.Vec3) {
	dir := target.Sub(c.Position)
	if dir.Len() == 0 {
		return
	}
	dir = dir.Normalize()
	c.Pitch = math.Asin(mgl64.Clamp(dir[1], -1, 1))
	c.Yaw = math.Atan2(dir[0], -dir[2])
}

func (c *CameraState) ClampPitch() {
	const limit = math.Pi/2 - 0.01
	c.Pitch = mgl64.Clamp(c.Pitch, -limit, limit)
}

// Move translates by local (right, up, forward) amounts scaled by Speed.
func (c *CameraState) Move(local mgl64.Vec3, dt float64) {
	step := c.Speed * dt
	c.Position = c.Position.
		Add(c.GetRight().Mul(local[0] * step)).
		Add(mgl64.Vec3{0, local[1] * step, 0}).
		Add(c.GetForward().Mul(local[2] * step))
}

// GetViewMatrix looks from the origin; callers translate positions relative
// to the camera first so that float32 precision is spent near the eye.
func (c *CameraState) GetViewMatrix() mgl64.Mat4 {
	forward := c.GetForward()
	return mgl64.LookAtV(mgl64.Vec3{}, forward, mgl64.Vec3{0, 1, 0})
}

// Frustum holds six normalized planes (Left, Right, Bottom, Top, Near, Far)
// with normals pointing inwards. A plane is Ax + By + Cz + D = 0.
type Frustum [6]mgl32.Vec4

// ExtractFrustum extracts the 6 planes of the frustum from a model-view-projection matrix.
// Planes are expressed in the matrix's model space.
func ExtractFrustum(vp mgl32.Mat4) Frustum {
	var planes Frustum

	row := func(r int) mgl32.Vec4 {
		return mgl32.Vec4{vp.At(r, 0), vp.At(r, 1), vp.At(r, 2), vp.At(r, 3)}
	}
	r0, r1, r2, r3 := row(0), row(1), row(2), row(3)

	planes[0] = r3.Add(r0) // Left
	planes[1] = r3.Sub(r0) // Right
	planes[2] = r3.Add(r1) // Bottom
	planes[3] = r3.Sub(r1) // Top
	planes[4] = r3.Add(r2) // Near (OpenGL-style -1..1)
	planes[5] = r3.Sub(r2) // Far

	for i := range planes {
		length := planes[i].Vec3().Len()
		if length > 0 {
			planes[i] = planes[i].Mul(1.0 / length)
		}
	}

	return planes
}

// SphereOutside reports whether the sphere lies entirely behind any plane.
func (f *Frustum) SphereOutside(center mgl32.Vec3, radius float32) bool {
	c := center.Vec4(1)
	for i := range f {
		if f[i].Dot(c) <= -radius {
			return true
		}
	}
	return false
}
