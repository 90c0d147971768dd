package terrain

import (
	"fmt"
	"math"

	"github.com/gekko3d/planets/planetrt/rt/core"
	"github.com/gekko3d/planets/planetrt/rt/databuffer"
	"github.com/go-gl/mathgl/mgl32"
)

// Vertex is the layout of one generated vertex in the arena: xyz position
// with a packed normal in w, then an rgba colour.
type Vertex struct {
	PositionNormal mgl32.Vec4
	Colour         mgl32.Vec4
}

// PackNormal stores a unit normal as three signed 10 bit fields.
func PackNormal(n mgl32.Vec3) uint32 {
	enc := func(v float32) uint32 {
		return uint32(int32(mgl32.Clamp(v, -1, 1)*511)) & 0x3ff
	}
	return enc(n[0]) | enc(n[1])<<10 | enc(n[2])<<20
}

func UnpackNormal(u uint32) mgl32.Vec3 {
	dec := func(bits uint32) float32 {
		v := int32(bits<<22) >> 22
		return float32(v) / 511
	}
	return mgl32.Vec3{dec(u & 0x3ff), dec(u >> 10 & 0x3ff), dec(u >> 20 & 0x3ff)}
}

// CPUGenerator is the reference Generator. It produces the same vertices and
// stats as terrain_gen.wgsl and backs headless runs and tests.
type CPUGenerator struct {
	params    RidgedParams
	constants *databuffer.PatchConstants
	stats     []databuffer.Stats
	vertices  map[databuffer.Slot][]Vertex

	grid       []mgl32.Vec3
	Dispatches int
}

func NewCPUGenerator(params RidgedParams, constants *databuffer.PatchConstants, statsPatches int) *CPUGenerator {
	vps := constants.VerticesPerSide + 2
	return &CPUGenerator{
		params:    params,
		constants: constants,
		stats:     databuffer.ClearedStats(statsPatches),
		vertices:  make(map[databuffer.Slot][]Vertex),
		grid:      make([]mgl32.Vec3, vps*vps),
	}
}

func (g *CPUGenerator) ClearStats() error {
	copy(g.stats, databuffer.ClearedStats(len(g.stats)))
	return nil
}

func (g *CPUGenerator) Dispatch(items []PatchItem) error {
	for _, item := range items {
		o, statsOffset, slot := UnpackItem(item.Packed)
		if statsOffset >= len(g.stats) {
			return fmt.Errorf("stats offset %d outside scratch of %d", statsOffset, len(g.stats))
		}
		g.generate(item, o, slot, &g.stats[statsOffset])
	}
	g.Dispatches++
	return nil
}

func (g *CPUGenerator) generate(item PatchItem, o core.Orientation, slot databuffer.Slot, stats *databuffer.Stats) {
	vps := g.constants.VerticesPerSide
	side := vps + 2

	// Positions including a one vertex border for normals.
	for j := 0; j < side; j++ {
		d1 := item.Dim1Start + float32(j)*item.StepSize
		for i := 0; i < side; i++ {
			d0 := item.Dim0Start + float32(i)*item.StepSize
			dir := core.FaceToSphere(o, d0, d1)
			g.grid[j*side+i] = dir.Mul(g.params.Altitude(dir))
		}
	}

	verts, ok := g.vertices[slot]
	if !ok {
		verts = make([]Vertex, g.constants.TotalVertices)
		g.vertices[slot] = verts
	}
	for j := 0; j < vps; j++ {
		for i := 0; i < vps; i++ {
			c := (j+1)*side + i + 1
			pos := g.grid[c]
			dx := g.grid[c+1].Sub(g.grid[c-1])
			dy := g.grid[c+side].Sub(g.grid[c-side])
			n := dx.Cross(dy)
			if n.Dot(pos) < 0 {
				n = n.Mul(-1)
			}
			if l := n.Len(); l > 0 {
				n = n.Mul(1 / l)
			}

			altitude := pos.Len()
			submerged := altitude < 1
			stats.Reduce(altitude, submerged)
			verts[j*vps+i] = Vertex{
				PositionNormal: pos.Vec4(math.Float32frombits(PackNormal(n))),
				Colour:         altitudeColour(altitude, g.params.Scale),
			}
		}
	}
}

// altitudeColour shades from sand at sea level through grass and rock to
// snow at the top of the range.
func altitudeColour(altitude, scale float32) mgl32.Vec4 {
	if scale <= 0 {
		return mgl32.Vec4{0.4, 0.5, 0.3, 1}
	}
	h := mgl32.Clamp((altitude-1)/scale, -1, 1)
	switch {
	case h < 0:
		return mgl32.Vec4{0.76, 0.70, 0.50, 1}
	case h < 0.3:
		return mgl32.Vec4{0.25, 0.45, 0.18, 1}
	case h < 0.7:
		return mgl32.Vec4{0.45, 0.40, 0.35, 1}
	}
	return mgl32.Vec4{0.95, 0.95, 0.97, 1}
}

func (g *CPUGenerator) ReadStats(n int) ([]databuffer.Stats, error) {
	if n > len(g.stats) {
		return nil, fmt.Errorf("read %d stats from scratch of %d", n, len(g.stats))
	}
	out := make([]databuffer.Stats, n)
	copy(out, g.stats[:n])
	return out, nil
}

func (g *CPUGenerator) Finish() error { return nil }

// Vertices returns the generated vertices of slot, or nil if it was never
// generated.
func (g *CPUGenerator) Vertices(slot databuffer.Slot) []Vertex {
	return g.vertices[slot]
}
