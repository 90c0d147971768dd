package scene

import (
	"github.com/gekko3d/planets/planetrt/rt/core"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/google/uuid"
)

// Camera rides on a Relative position. Direction and Up are in the frame of
// that position's parent, so a camera parented to a rotating planet turns
// with it.
type Camera struct {
	Name      string
	ID        uuid.UUID
	FovY      float64 // degrees
	ZNear     float64
	ZFar      float64
	Position  *Relative
	Direction mgl64.Vec3
	Up        mgl64.Vec3
	LookSpeed float64
	MoveSpeed float64
}

func (c *Camera) Update(t float64) {
	c.Position.Update(t)
}

// AbsPosition is the eye in world space.
func (c *Camera) AbsPosition() mgl64.Vec3 {
	return Translation(c.Position.Matrix())
}

func (c *Camera) Projection(aspect float64) mgl64.Mat4 {
	return mgl64.Perspective(mgl64.DegToRad(c.FovY), aspect, c.ZNear, c.ZFar)
}

func (c *Camera) View() mgl64.Mat4 {
	m := c.Position.Matrix()
	dir := m.Mul4x1(c.Direction.Vec4(0)).Vec3()
	up := m.Mul4x1(c.Up.Vec4(0)).Vec3()
	eye := c.AbsPosition()
	return mgl64.LookAtV(eye, eye.Add(dir), up)
}

func (c *Camera) ViewProjection(aspect float64) mgl64.Mat4 {
	return c.Projection(aspect).Mul4(c.View())
}

// State returns a free-fly controller positioned and oriented like c.
func (c *Camera) State() *core.CameraState {
	s := core.NewCameraState()
	s.Position = c.Position.Value
	s.Speed = c.MoveSpeed
	s.Sensitivity = c.LookSpeed
	s.LookAt(c.Position.Value.Add(c.Direction))
	return s
}

// ApplyState copies a free-fly controller back onto the camera.
func (c *Camera) ApplyState(s *core.CameraState) {
	c.Position.Value = s.Position
	c.Direction = s.GetForward()
	c.Up = mgl64.Vec3{0, 1, 0}
	c.MoveSpeed = s.Speed
	// Force recomputation at the current time.
	c.Position.valid = false
}
