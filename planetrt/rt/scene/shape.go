package scene

import (
	"math"

	"github.com/gekko3d/planets"
	"github.com/gekko3d/planets/planetrt/rt/terrain"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/google/uuid"
)

// AtmosphereScale is the outer atmosphere radius relative to the planet.
const AtmosphereScale = 1.025

// Shape is anything placed in the scene.
type Shape interface {
	Name() string
	ID() uuid.UUID
	Position() Position
	// UpdateGeneral updates state that does not depend on the camera. The
	// scene updates Position beforehand.
	UpdateGeneral(clock *planets.WorldClock)
	// MinMaxDrawDist is the distance range the shape covers from cameraPos.
	// Shapes are drawn far to near by the first value.
	MinMaxDrawDist(cameraPos mgl64.Vec3) (near, far float64)
}

type LightSource interface {
	LightPosition() mgl64.Vec3
	LightColour() mgl32.Vec3
}

type node struct {
	name     string
	id       uuid.UUID
	position Position
}

func (n *node) Name() string       { return n.name }
func (n *node) ID() uuid.UUID      { return n.id }
func (n *node) Position() Position { return n.position }
func (n *node) center() mgl64.Vec3 { return Translation(n.position.Matrix()) }

// PlanetShape places a terrain planet in the scene.
type PlanetShape struct {
	node
	Planet *terrain.Planet
	Radius float64
	// AtmosphereRadius is zero for planets without an atmosphere.
	AtmosphereRadius float64
}

func NewPlanetShape(name string, position Position, planet *terrain.Planet, atmosphere bool) *PlanetShape {
	s := &PlanetShape{
		node:   node{name: name, id: uuid.New(), position: position},
		Planet: planet,
		Radius: planet.Radius(),
	}
	if atmosphere {
		s.AtmosphereRadius = s.Radius * AtmosphereScale
	}
	return s
}

func (s *PlanetShape) UpdateGeneral(clock *planets.WorldClock) {}

func (s *PlanetShape) outerRadius() float64 {
	if s.AtmosphereRadius > 0 {
		return s.AtmosphereRadius
	}
	return s.Radius
}

// MinMaxDrawDist runs from the top of the atmosphere to the horizon plus the
// deepest view through the sky beyond it.
func (s *PlanetShape) MinMaxDrawDist(cameraPos mgl64.Vec3) (near, far float64) {
	d := cameraPos.Sub(s.center()).Len()
	outer := s.outerRadius()
	horizon := math.Sqrt(math.Max(d*d-s.Radius*s.Radius, 0))
	beyond := math.Sqrt(outer*outer - s.Radius*s.Radius)
	return math.Max(d-outer, 0), horizon + beyond
}

// Model is the planet transform scaled so that sea level has radius 1.
func (s *PlanetShape) Model() mgl64.Mat4 {
	return s.position.Matrix().Mul4(mgl64.Scale3D(s.Radius, s.Radius, s.Radius))
}

// LocalCamera is the camera position in planet-local units.
func (s *PlanetShape) LocalCamera(cameraPos mgl64.Vec3) mgl32.Vec3 {
	p := s.Model().Inv().Mul4x1(cameraPos.Vec4(1))
	return mgl32.Vec3{float32(p[0]), float32(p[1]), float32(p[2])}
}

// View is what the planet needs to traverse for a camera.
func (s *PlanetShape) View(cameraPos mgl64.Vec3, viewProj mgl64.Mat4) terrain.View {
	return terrain.NewView(s.LocalCamera(cameraPos), Mat4f(viewProj.Mul4(s.Model())))
}

// Star is a light source.
type Star struct {
	node
	Colour mgl32.Vec3
}

func NewStar(name string, position Position, colour mgl32.Vec3) *Star {
	return &Star{node: node{name: name, id: uuid.New(), position: position}, Colour: colour}
}

func (s *Star) UpdateGeneral(clock *planets.WorldClock) {}

func (s *Star) MinMaxDrawDist(cameraPos mgl64.Vec3) (near, far float64) {
	return cameraPos.Sub(s.center()).Len(), 0
}

func (s *Star) LightPosition() mgl64.Vec3 { return s.center() }
func (s *Star) LightColour() mgl32.Vec3   { return s.Colour }

// Mat4f narrows a matrix for upload or float32 geometry.
func Mat4f(m mgl64.Mat4) mgl32.Mat4 {
	var out mgl32.Mat4
	for i := range m {
		out[i] = float32(m[i])
	}
	return out
}

var (
	_ Shape       = (*PlanetShape)(nil)
	_ Shape       = (*Star)(nil)
	_ LightSource = (*Star)(nil)
)
