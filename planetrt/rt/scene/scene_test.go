package scene

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gekko3d/planets"
	"github.com/gekko3d/planets/planetrt/rt/databuffer"
	"github.com/gekko3d/planets/planetrt/rt/terrain"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const solarYAML = `
name: Solar
cameras:
  - name: main
    fov_y: 60
    z_near: 0.001
    z_far: 1000
    position:
      type: relative
      value: [0, 0, 3]
      parent_name: Earth
    direction: [0, 0, -1]
    up: [0, 1, 0]
    look_speed: 0.003
    move_speed: 0.5
shapes:
  - type: star
    name: Sun
    colour: [1, 0.9, 0.8]
    position:
      type: origin
  - type: planet
    name: Earth
    radius: 1
    water: true
    atmosphere: true
    terrain:
      seed: 7
      octaves: 4
    position:
      type: rotation
      angular_velocity: 0.1
      axis: [0, 1, 0]
      parent:
        type: circular_orbit
        radius: 100
        angular_velocity: 0.01
        parent_name: Sun
  - type: planet
    name: Moon
    radius: 0.25
    position:
      type: circular_orbit
      radius: 10
      angular_velocity: 0.5
      parent_name: Earth
`

type factoryCall struct {
	descs []PlanetDesc
}

func (f *factoryCall) factory(t *testing.T) PlanetFactory {
	c := databuffer.NewPatchConstants(4, 1)
	buf, err := databuffer.New(databuffer.Config{
		BufferSizeBytes:    int64(64 * c.TotalSizeBytes),
		StatsBufferPatches: 4,
		StaleAfter:         5 * time.Second,
		SweepInterval:      time.Second,
	}, c, nil, nil)
	require.NoError(t, err)
	return func(desc PlanetDesc) (*terrain.Planet, error) {
		f.descs = append(f.descs, desc)
		return terrain.NewPlanet(terrain.PlanetOptions{
			Name:      desc.Name,
			Radius:    desc.Radius,
			Water:     desc.Water,
			Generator: terrain.NewCPUGenerator(desc.Terrain, c, 4),
			Buffer:    buf,
		})
	}
}

func buildSolar(t *testing.T) (*Scene, *factoryCall) {
	t.Helper()
	desc, err := Parse([]byte(solarYAML))
	require.NoError(t, err)
	calls := &factoryCall{}
	s, err := Build(desc, calls.factory(t), nil)
	require.NoError(t, err)
	return s, calls
}

func TestBuildScene(t *testing.T) {
	s, calls := buildSolar(t)
	defer s.Close()

	assert.Equal(t, "Solar", s.Name)
	require.Len(t, s.Shapes, 3)
	require.Len(t, s.Planets(), 2)
	require.Len(t, calls.descs, 2)

	earth := calls.descs[0]
	assert.Equal(t, "Earth", earth.Name)
	assert.True(t, earth.Water)
	assert.True(t, earth.Atmosphere)
	assert.Equal(t, uint32(7), earth.Terrain.Seed)
	assert.Equal(t, 4, earth.Terrain.Octaves)
	// Keys left out keep their defaults.
	assert.Equal(t, terrain.DefaultRidgedParams().Lacunarity, earth.Terrain.Lacunarity)
	assert.Equal(t, terrain.DefaultRidgedParams(), calls.descs[1].Terrain)

	sun, ok := s.FindShape("Sun").(*Star)
	require.True(t, ok)
	assert.Same(t, sun, s.Light)
	assert.Nil(t, s.FindShape("Pluto"))

	ps := s.FindShape("Earth").(*PlanetShape)
	assert.InDelta(t, 1.025, ps.AtmosphereRadius, 1e-12)
	assert.Zero(t, s.FindShape("Moon").(*PlanetShape).AtmosphereRadius)

	ids := map[string]bool{s.ID.String(): true}
	for _, shape := range s.Shapes {
		ids[shape.ID().String()] = true
	}
	assert.Len(t, ids, 4)
	require.NotNil(t, s.Camera("main"))
}

func TestSceneUpdateResolvesParents(t *testing.T) {
	s, _ := buildSolar(t)
	defer s.Close()

	clock := planets.NewWorldClock(1, 0)
	s.Update(clock)

	earth := Translation(s.FindShape("Earth").Position().Matrix())
	assertVec(t, mgl64.Vec3{100, 0, 0}, earth)
	moon := Translation(s.FindShape("Moon").Position().Matrix())
	assertVec(t, mgl64.Vec3{110, 0, 0}, moon)

	cam := s.Camera("main")
	assertVec(t, mgl64.Vec3{100, 0, 3}, cam.AbsPosition())

	clock.Tick(10 * time.Second)
	s.Update(clock)
	moved := Translation(s.FindShape("Earth").Position().Matrix())
	assert.Greater(t, moved.Sub(earth).Len(), 1.0)
	// The camera stays 3 units from the spinning Earth.
	assert.InDelta(t, 3, cam.AbsPosition().Sub(moved).Len(), 1e-9)
}

func TestShapesFarToNear(t *testing.T) {
	s, _ := buildSolar(t)
	defer s.Close()
	s.Update(planets.NewWorldClock(1, 0))

	order := s.ShapesFarToNear(mgl64.Vec3{100, 0, 3})
	var names []string
	for _, shape := range order {
		names = append(names, shape.Name())
	}
	assert.Equal(t, []string{"Sun", "Moon", "Earth"}, names)
}

func TestPlanetDrawDistances(t *testing.T) {
	s, _ := buildSolar(t)
	defer s.Close()
	s.Update(planets.NewWorldClock(1, 0))
	earth := s.FindShape("Earth").(*PlanetShape)

	near, far := earth.MinMaxDrawDist(mgl64.Vec3{102, 0, 0})
	assert.InDelta(t, 2-1.025, near, 1e-9)
	assert.Greater(t, far, near)

	near, _ = earth.MinMaxDrawDist(mgl64.Vec3{100.5, 0, 0})
	assert.Zero(t, near)
}

func TestPlanetLocalView(t *testing.T) {
	s, _ := buildSolar(t)
	defer s.Close()
	s.Update(planets.NewWorldClock(1, 0))
	moon := s.FindShape("Moon").(*PlanetShape)

	// The moon sits at (110,0,0) with radius 0.25.
	local := moon.LocalCamera(mgl64.Vec3{110, 0, 0.5})
	assert.InDelta(t, 0, local[0], 1e-5)
	assert.InDelta(t, 2, local[2], 1e-5)

	cam := s.Camera("main")
	view := moon.View(mgl64.Vec3{110, 0, 0.5}, cam.ViewProjection(1))
	assert.InDelta(t, 2, view.CameraPos.Len(), 1e-5)
}

func TestCameraMatrices(t *testing.T) {
	c := &Camera{
		FovY: 90, ZNear: 0.1, ZFar: 10,
		Position:  NewRelative(mgl64.Vec3{0, 0, 5}, nil),
		Direction: mgl64.Vec3{0, 0, -1},
		Up:        mgl64.Vec3{0, 1, 0},
		LookSpeed: 0.01,
		MoveSpeed: 2,
	}
	c.Update(0)
	// The origin is straight ahead.
	clip := c.ViewProjection(1).Mul4x1(mgl64.Vec4{0, 0, 0, 1})
	assert.InDelta(t, 0, clip[0]/clip[3], 1e-9)
	assert.InDelta(t, 0, clip[1]/clip[3], 1e-9)

	st := c.State()
	assertVec(t, mgl64.Vec3{0, 0, -1}, st.GetForward())
	st.Move(mgl64.Vec3{0, 0, 1}, 1)
	c.ApplyState(st)
	c.Update(0)
	assertVec(t, mgl64.Vec3{0, 0, 3}, c.AbsPosition())
}

func TestBuildErrors(t *testing.T) {
	cases := map[string]struct {
		yaml string
		err  error
	}{
		"unknown parent": {
			yaml: `
name: s
cameras: [{name: c, fov_y: 60, z_near: 1, z_far: 2, position: {type: relative, parent_name: Nowhere}}]
shapes: [{type: star, name: Sun, position: {type: origin}}]
`,
			err: ErrUnresolvedParent,
		},
		"two stars": {
			yaml: `
name: s
cameras: [{name: c, fov_y: 60, z_near: 1, z_far: 2, position: {type: relative}}]
shapes:
  - {type: star, name: A, position: {type: origin}}
  - {type: star, name: B, position: {type: origin}}
`,
			err: ErrTooManyLights,
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			desc, err := Parse([]byte(tc.yaml))
			require.NoError(t, err)
			_, err = Build(desc, (&factoryCall{}).factory(t), nil)
			assert.ErrorIs(t, err, tc.err)
		})
	}
}

func TestParseErrors(t *testing.T) {
	cases := map[string]string{
		"unknown key": `
name: s
colour: red
cameras: [{name: c, fov_y: 60, z_near: 1, z_far: 2, position: {type: relative}}]
`,
		"absolute camera": `
name: s
cameras: [{name: c, fov_y: 60, z_near: 1, z_far: 2, position: {type: absolute}}]
`,
		"bad position": `
name: s
cameras: [{name: c, fov_y: 60, z_near: 1, z_far: 2, position: {type: relative}}]
shapes: [{type: star, name: Sun, position: {type: spiral}}]
`,
		"duplicate names": `
name: s
cameras: [{name: c, fov_y: 60, z_near: 1, z_far: 2, position: {type: relative}}]
shapes:
  - {type: star, name: Sun, position: {type: origin}}
  - {type: planet, name: Sun, radius: 1, position: {type: origin}}
`,
		"no radius": `
name: s
cameras: [{name: c, fov_y: 60, z_near: 1, z_far: 2, position: {type: relative}}]
shapes: [{type: planet, name: P, position: {type: origin}}]
`,
		"no cameras": `
name: s
`,
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scene.yaml")
	require.NoError(t, os.WriteFile(path, []byte(solarYAML), 0o644))
	desc, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, desc.Shapes, 3)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
