package scene

import (
	"errors"
	"fmt"
	"slices"

	"github.com/gekko3d/planets"
	"github.com/gekko3d/planets/planetrt/rt/terrain"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/google/uuid"
)

var (
	ErrUnresolvedParent = errors.New("unresolved parent")
	ErrTooManyLights    = errors.New("more than one light source")
)

// PlanetFactory builds the terrain planet for a planet shape.
type PlanetFactory func(desc PlanetDesc) (*terrain.Planet, error)

type Scene struct {
	Name    string
	ID      uuid.UUID
	Shapes  []Shape
	Cameras []*Camera
	Light   LightSource

	logger planets.Logger
}

// Build turns a description into a live scene, creating planets through
// factory and resolving parent names against shape names.
func Build(desc *Description, factory PlanetFactory, logger planets.Logger) (*Scene, error) {
	if err := desc.Validate(); err != nil {
		return nil, err
	}
	s := &Scene{
		Name:   desc.Name,
		ID:     uuid.New(),
		logger: planets.LoggerOrNop(logger),
	}

	var pending []resolvable
	var lights int
	for _, sd := range desc.Shapes {
		pos, err := sd.Position.build(&pending)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("shape %q: %w", sd.Name, err)
		}
		switch sd.Type {
		case ShapePlanet:
			params := terrain.DefaultRidgedParams()
			if sd.Terrain != nil {
				params = *sd.Terrain
			}
			planet, err := factory(PlanetDesc{
				Name:       sd.Name,
				Radius:     sd.Radius,
				Water:      sd.Water,
				Atmosphere: sd.Atmosphere,
				Terrain:    params,
			})
			if err != nil {
				s.Close()
				return nil, fmt.Errorf("failed to create planet %q: %w", sd.Name, err)
			}
			s.Shapes = append(s.Shapes, NewPlanetShape(sd.Name, pos, planet, sd.Atmosphere))
		case ShapeStar:
			star := NewStar(sd.Name, pos, mgl32.Vec3(sd.Colour))
			s.Shapes = append(s.Shapes, star)
			s.Light = star
			lights++
		}
	}
	if lights > 1 {
		s.Close()
		return nil, fmt.Errorf("scene %q: %w", desc.Name, ErrTooManyLights)
	}

	for _, cd := range desc.Cameras {
		pos, err := cd.Position.build(&pending)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("camera %q: %w", cd.Name, err)
		}
		dir, up := mgl64.Vec3(cd.Direction), mgl64.Vec3(cd.Up)
		if dir.Len() == 0 {
			dir = mgl64.Vec3{0, 0, -1}
		}
		if up.Len() == 0 {
			up = mgl64.Vec3{0, 1, 0}
		}
		s.Cameras = append(s.Cameras, &Camera{
			Name:      cd.Name,
			ID:        uuid.New(),
			FovY:      cd.FovY,
			ZNear:     cd.ZNear,
			ZFar:      cd.ZFar,
			Position:  pos.(*Relative),
			Direction: dir,
			Up:        up,
			LookSpeed: cd.LookSpeed,
			MoveSpeed: cd.MoveSpeed,
		})
	}

	for _, r := range pending {
		name, _ := r.unresolved()
		shape := s.FindShape(name)
		if shape == nil {
			s.Close()
			return nil, fmt.Errorf("can't find shape %q: %w", name, ErrUnresolvedParent)
		}
		r.setParent(shape.Position())
	}

	s.logger.Infof("scene %q (%s): %d shapes, %d cameras", s.Name, s.ID, len(s.Shapes), len(s.Cameras))
	return s, nil
}

func (s *Scene) FindShape(name string) Shape {
	for _, shape := range s.Shapes {
		if shape.Name() == name {
			return shape
		}
	}
	return nil
}

func (s *Scene) Camera(name string) *Camera {
	for _, c := range s.Cameras {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func (s *Scene) Planets() []*PlanetShape {
	var out []*PlanetShape
	for _, shape := range s.Shapes {
		if p, ok := shape.(*PlanetShape); ok {
			out = append(out, p)
		}
	}
	return out
}

// Update moves everything to the clock's time: positions first, then
// cameras, then per-shape state.
func (s *Scene) Update(clock *planets.WorldClock) {
	for _, shape := range s.Shapes {
		shape.Position().Update(clock.T)
	}
	for _, c := range s.Cameras {
		c.Update(clock.T)
	}
	for _, shape := range s.Shapes {
		shape.UpdateGeneral(clock)
	}
}

// ShapesFarToNear orders shapes by descending near distance so that closer
// translucent atmospheres draw over distant planets.
func (s *Scene) ShapesFarToNear(cameraPos mgl64.Vec3) []Shape {
	type entry struct {
		shape Shape
		near  float64
	}
	entries := make([]entry, len(s.Shapes))
	for i, shape := range s.Shapes {
		near, _ := shape.MinMaxDrawDist(cameraPos)
		entries[i] = entry{shape, near}
	}
	slices.SortStableFunc(entries, func(a, b entry) int {
		switch {
		case a.near > b.near:
			return -1
		case a.near < b.near:
			return 1
		}
		return 0
	})
	out := make([]Shape, len(entries))
	for i, e := range entries {
		out[i] = e.shape
	}
	return out
}

// Close releases every planet's arena slots.
func (s *Scene) Close() {
	for _, p := range s.Planets() {
		p.Planet.Close()
	}
}
