package scene

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// Position is a node transform in world units. Update is memoized per world
// time, so a parent shared by several children is evaluated once.
type Position interface {
	Update(t float64)
	Matrix() mgl64.Mat4
}

// Translation extracts the world position from a transform.
func Translation(m mgl64.Mat4) mgl64.Vec3 {
	return m.Col(3).Vec3()
}

type memo struct {
	valid  bool
	at     float64
	matrix mgl64.Mat4
}

// due marks the memo current for t and reports whether it needed updating.
func (m *memo) due(t float64) bool {
	if m.valid && m.at == t {
		return false
	}
	m.valid = true
	m.at = t
	return true
}

func (m *memo) Matrix() mgl64.Mat4 { return m.matrix }

// Absolute is a fixed point in world space.
type Absolute struct {
	memo
	Value mgl64.Vec3
}

func NewAbsolute(v mgl64.Vec3) *Absolute {
	return &Absolute{memo: memo{matrix: mgl64.Translate3D(v[0], v[1], v[2])}, Value: v}
}

// NewOrigin is the world origin.
func NewOrigin() *Absolute { return NewAbsolute(mgl64.Vec3{}) }

func (a *Absolute) Update(t float64) {
	if a.due(t) {
		a.matrix = mgl64.Translate3D(a.Value[0], a.Value[1], a.Value[2])
	}
}

// parented is embedded by positions that hang off another node, either
// given directly or named and resolved once the scene is built.
type parented struct {
	ParentName string
	Parent     Position
}

func (p *parented) parentMatrix(t float64) mgl64.Mat4 {
	if p.Parent == nil {
		return mgl64.Ident4()
	}
	p.Parent.Update(t)
	return p.Parent.Matrix()
}

func (p *parented) unresolved() (string, bool) {
	return p.ParentName, p.Parent == nil && p.ParentName != ""
}

func (p *parented) setParent(parent Position) { p.Parent = parent }

// Relative is a fixed offset in its parent's frame. The camera rides on one.
type Relative struct {
	memo
	parented
	Value mgl64.Vec3
}

func NewRelative(v mgl64.Vec3, parent Position) *Relative {
	return &Relative{Value: v, parented: parented{Parent: parent}}
}

func (r *Relative) Update(t float64) {
	if r.due(t) {
		r.matrix = r.parentMatrix(t).Mul4(mgl64.Translate3D(r.Value[0], r.Value[1], r.Value[2]))
	}
}

// Rotation spins its parent's frame around Axis at AngularVelocity rad/s.
type Rotation struct {
	memo
	parented
	AngularVelocity float64
	Axis            mgl64.Vec3
}

func NewRotation(angularVelocity float64, axis mgl64.Vec3, parent Position) *Rotation {
	return &Rotation{AngularVelocity: angularVelocity, Axis: axis, parented: parented{Parent: parent}}
}

func (r *Rotation) Update(t float64) {
	if !r.due(t) {
		return
	}
	parent := r.parentMatrix(t)
	if r.Axis.Len() == 0 {
		r.matrix = parent
		return
	}
	r.matrix = parent.Mul4(mgl64.HomogRotate3D(r.AngularVelocity*t, r.Axis.Normalize()))
}

// CircularOrbit circles its parent in the parent's XZ plane.
type CircularOrbit struct {
	memo
	parented
	Radius          float64
	AngularVelocity float64
}

func NewCircularOrbit(radius, angularVelocity float64, parent Position) *CircularOrbit {
	return &CircularOrbit{Radius: radius, AngularVelocity: angularVelocity, parented: parented{Parent: parent}}
}

func (o *CircularOrbit) Update(t float64) {
	if !o.due(t) {
		return
	}
	a := o.AngularVelocity * t
	o.matrix = o.parentMatrix(t).Mul4(mgl64.Translate3D(math.Cos(a)*o.Radius, 0, math.Sin(a)*o.Radius))
}

// resolvable is implemented by positions that may name their parent.
type resolvable interface {
	unresolved() (string, bool)
	setParent(Position)
}

var (
	_ resolvable = (*Relative)(nil)
	_ resolvable = (*Rotation)(nil)
	_ resolvable = (*CircularOrbit)(nil)
)
