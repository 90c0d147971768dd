package scene

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"github.com/gekko3d/planets/planetrt/rt/terrain"
	"gopkg.in/yaml.v3"
)

// Description is the on-disk form of a scene.
type Description struct {
	Name    string       `yaml:"name"`
	Cameras []CameraDesc `yaml:"cameras"`
	Shapes  []ShapeDesc  `yaml:"shapes"`
}

type CameraDesc struct {
	Name      string       `yaml:"name"`
	FovY      float64      `yaml:"fov_y"`
	ZNear     float64      `yaml:"z_near"`
	ZFar      float64      `yaml:"z_far"`
	Position  PositionDesc `yaml:"position"`
	Direction [3]float64   `yaml:"direction"`
	Up        [3]float64   `yaml:"up"`
	LookSpeed float64      `yaml:"look_speed"`
	MoveSpeed float64      `yaml:"move_speed"`
}

const (
	ShapePlanet = "planet"
	ShapeStar   = "star"
)

type ShapeDesc struct {
	Type     string       `yaml:"type"`
	Name     string       `yaml:"name"`
	Position PositionDesc `yaml:"position"`

	// Planet
	Radius     float64               `yaml:"radius,omitempty"`
	Water      bool                  `yaml:"water,omitempty"`
	Atmosphere bool                  `yaml:"atmosphere,omitempty"`
	Terrain    *terrain.RidgedParams `yaml:"terrain,omitempty"`

	// Star
	Colour [3]float32 `yaml:"colour,omitempty"`
}

const (
	PositionAbsolute      = "absolute"
	PositionOrigin        = "origin"
	PositionRelative      = "relative"
	PositionRotation      = "rotation"
	PositionCircularOrbit = "circular_orbit"
)

// PositionDesc names its parent by shape name or nests it inline.
type PositionDesc struct {
	Type            string        `yaml:"type"`
	Value           [3]float64    `yaml:"value,omitempty"`
	ParentName      string        `yaml:"parent_name,omitempty"`
	Parent          *PositionDesc `yaml:"parent,omitempty"`
	AngularVelocity float64       `yaml:"angular_velocity,omitempty"`
	Axis            [3]float64    `yaml:"axis,omitempty"`
	Radius          float64       `yaml:"radius,omitempty"`
}

// PlanetDesc is what a PlanetFactory gets to build a planet from.
type PlanetDesc struct {
	Name       string
	Radius     float64
	Water      bool
	Atmosphere bool
	Terrain    terrain.RidgedParams
}

var ErrInvalidScene = errors.New("invalid scene")

func Load(path string) (*Description, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scene file: %w", err)
	}
	desc, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return desc, nil
}

// Parse decodes a scene, rejecting unknown keys.
func Parse(data []byte) (*Description, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var desc Description
	if err := dec.Decode(&desc); err != nil {
		return nil, fmt.Errorf("failed to decode scene: %w", err)
	}
	if err := desc.Validate(); err != nil {
		return nil, err
	}
	return &desc, nil
}

func (d *Description) Validate() error {
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}
	if d.Name == "" {
		fail("scene has no name")
	}
	if len(d.Cameras) == 0 {
		fail("scene %q has no cameras", d.Name)
	}
	names := make(map[string]bool, len(d.Shapes))
	for i, s := range d.Shapes {
		if s.Name == "" {
			fail("shape %d has no name", i)
		} else if names[s.Name] {
			fail("duplicate shape %q", s.Name)
		}
		names[s.Name] = true

		switch s.Type {
		case ShapePlanet:
			if s.Radius <= 0 {
				fail("planet %q radius %g must be positive", s.Name, s.Radius)
			}
		case ShapeStar:
		default:
			fail("shape %q has unknown type %q", s.Name, s.Type)
		}
		if err := s.Position.validate(); err != nil {
			fail("shape %q: %v", s.Name, err)
		}
	}
	for _, c := range d.Cameras {
		if c.Position.Type != PositionRelative {
			fail("camera %q position must be relative, got %q", c.Name, c.Position.Type)
		}
		if c.ZNear <= 0 || c.ZFar <= c.ZNear {
			fail("camera %q depth range [%g,%g] is invalid", c.Name, c.ZNear, c.ZFar)
		}
		if c.FovY <= 0 || c.FovY >= 180 {
			fail("camera %q fov_y %g outside (0,180)", c.Name, c.FovY)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidScene, errors.Join(errs...))
	}
	return nil
}

func (p *PositionDesc) validate() error {
	switch p.Type {
	case PositionAbsolute, PositionOrigin:
		return nil
	case PositionRelative, PositionRotation, PositionCircularOrbit:
	default:
		return fmt.Errorf("unknown position type %q", p.Type)
	}
	if p.Parent != nil {
		if p.ParentName != "" {
			return errors.New("position has both parent and parent_name")
		}
		return p.Parent.validate()
	}
	return nil
}

// build creates the position chain; positions naming a parent are added to
// pending for resolution once every shape exists.
func (p PositionDesc) build(pending *[]resolvable) (Position, error) {
	var parent Position
	if p.Parent != nil {
		var err error
		if parent, err = p.Parent.build(pending); err != nil {
			return nil, err
		}
	}
	var pos Position
	switch p.Type {
	case PositionAbsolute:
		return NewAbsolute(p.Value), nil
	case PositionOrigin:
		return NewOrigin(), nil
	case PositionRelative:
		r := NewRelative(p.Value, parent)
		r.ParentName = p.ParentName
		pos = r
	case PositionRotation:
		r := NewRotation(p.AngularVelocity, p.Axis, parent)
		r.ParentName = p.ParentName
		pos = r
	case PositionCircularOrbit:
		o := NewCircularOrbit(p.Radius, p.AngularVelocity, parent)
		o.ParentName = p.ParentName
		pos = o
	default:
		return nil, fmt.Errorf("unknown position type %q", p.Type)
	}
	if p.ParentName != "" {
		*pending = append(*pending, pos.(resolvable))
	}
	return pos, nil
}
