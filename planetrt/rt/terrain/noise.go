package terrain

import (
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
	"gopkg.in/yaml.v3"
)

// RidgedParams configures the ridged multifractal terrain. Altitudes come
// out in planet radii around 1.
type RidgedParams struct {
	Seed       uint32  `yaml:"seed"`
	Lacunarity float32 `yaml:"lacunarity"`
	Gain       float32 `yaml:"gain"`
	Offset     float32 `yaml:"offset"`
	Octaves    int     `yaml:"octaves"`
	Scale      float32 `yaml:"scale"`
	Bias       float32 `yaml:"bias"`
	// Frequency of the first octave on the unit sphere.
	Frequency float32 `yaml:"frequency"`
}

func DefaultRidgedParams() RidgedParams {
	return RidgedParams{
		Seed:       1,
		Lacunarity: 2,
		Gain:       2,
		Offset:     1,
		Octaves:    8,
		Scale:      0.02,
		Bias:       -0.3,
		Frequency:  2,
	}
}

// The hash and lattice functions are mirrored in terrain_gen.wgsl; keep them
// on 32-bit integers so both produce identical values.

func hash3(x, y, z int32, seed uint32) uint32 {
	h := seed ^ uint32(x)*0x8da6b343 ^ uint32(y)*0xd8163841 ^ uint32(z)*0xcb1ab31f
	h = (h ^ h>>16) * 0x7feb352d
	h = (h ^ h>>15) * 0x846ca68b
	return h ^ h>>16
}

func lattice(x, y, z int32, seed uint32) float32 {
	return float32(hash3(x, y, z, seed)) / 4294967295.0
}

func fade(t float32) float32 {
	return t * t * t * (t*(t*6-15) + 10)
}

func lerp(a, b, t float32) float32 {
	return a + t*(b-a)
}

// valueNoise3D is smooth lattice noise in [0,1].
func valueNoise3D(p mgl32.Vec3, seed uint32) float32 {
	x0 := math32.Floor(p[0])
	y0 := math32.Floor(p[1])
	z0 := math32.Floor(p[2])
	ix, iy, iz := int32(x0), int32(y0), int32(z0)

	fx := fade(p[0] - x0)
	fy := fade(p[1] - y0)
	fz := fade(p[2] - z0)

	v000 := lattice(ix, iy, iz, seed)
	v100 := lattice(ix+1, iy, iz, seed)
	v010 := lattice(ix, iy+1, iz, seed)
	v110 := lattice(ix+1, iy+1, iz, seed)
	v001 := lattice(ix, iy, iz+1, seed)
	v101 := lattice(ix+1, iy, iz+1, seed)
	v011 := lattice(ix, iy+1, iz+1, seed)
	v111 := lattice(ix+1, iy+1, iz+1, seed)

	x00 := lerp(v000, v100, fx)
	x10 := lerp(v010, v110, fx)
	x01 := lerp(v001, v101, fx)
	x11 := lerp(v011, v111, fx)
	return lerp(lerp(x00, x10, fy), lerp(x01, x11, fy), fz)
}

// Ridged evaluates the multifractal at a point on the unit sphere.
func (r RidgedParams) Ridged(dir mgl32.Vec3) float32 {
	p := dir.Mul(r.Frequency)
	signal := r.Offset - math32.Abs(valueNoise3D(p, r.Seed)*2-1)
	signal *= signal
	result := signal
	weight := float32(1)
	amplitude := float32(1)
	for i := 1; i < r.Octaves; i++ {
		p = p.Mul(r.Lacunarity)
		amplitude /= r.Lacunarity
		weight = mgl32.Clamp(signal*r.Gain, 0, 1)
		signal = r.Offset - math32.Abs(valueNoise3D(p, r.Seed+uint32(i))*2-1)
		signal *= signal * weight
		result += signal * amplitude
	}
	return result
}

// Altitude is the terrain height at dir, 1 being sea level.
func (r RidgedParams) Altitude(dir mgl32.Vec3) float32 {
	return 1 + r.Scale*(r.Ridged(dir)+r.Bias)
}

// UnmarshalYAML fills keys missing from the document with the defaults.
func (r *RidgedParams) UnmarshalYAML(n *yaml.Node) error {
	type plain RidgedParams
	p := plain(DefaultRidgedParams())
	if err := n.Decode(&p); err != nil {
		return err
	}
	*r = RidgedParams(p)
	return nil
}
