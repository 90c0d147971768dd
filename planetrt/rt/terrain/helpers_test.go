package terrain

import (
	"testing"
	"time"

	"github.com/gekko3d/planets"
	"github.com/gekko3d/planets/planetrt/rt/compute"
	"github.com/gekko3d/planets/planetrt/rt/databuffer"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

type fakeRegistry struct {
	added []compute.Client
}

func (r *fakeRegistry) AddClient(c compute.Client) {
	r.added = append(r.added, c)
}

// recordingGenerator counts the calls the compute client makes.
type recordingGenerator struct {
	*CPUGenerator
	clears  int
	reads   []int
	offsets [][]int
}

func (g *recordingGenerator) ClearStats() error {
	g.clears++
	return g.CPUGenerator.ClearStats()
}

func (g *recordingGenerator) Dispatch(items []PatchItem) error {
	var offs []int
	for _, it := range items {
		_, off, _ := UnpackItem(it.Packed)
		offs = append(offs, off)
	}
	g.offsets = append(g.offsets, offs)
	return g.CPUGenerator.Dispatch(items)
}

func (g *recordingGenerator) ReadStats(n int) ([]databuffer.Stats, error) {
	g.reads = append(g.reads, n)
	return g.CPUGenerator.ReadStats(n)
}

type testPlanetOptions struct {
	slots           int
	statsPatches    int
	patchesPerBatch int
	water           bool
	clock           planets.Clock
	generator       func(c *databuffer.PatchConstants, stats int) Generator
}

func newTestPlanet(t *testing.T, o testPlanetOptions) (*Planet, *databuffer.Buffer) {
	t.Helper()
	if o.slots == 0 {
		o.slots = 4096
	}
	if o.statsPatches == 0 {
		o.statsPatches = 4
	}
	if o.patchesPerBatch == 0 {
		o.patchesPerBatch = 1
	}
	c := databuffer.NewPatchConstants(4, o.patchesPerBatch)
	buf, err := databuffer.New(databuffer.Config{
		BufferSizeBytes:    int64(o.slots * c.TotalSizeBytes),
		StatsBufferPatches: o.statsPatches,
		StaleAfter:         5 * time.Second,
		SweepInterval:      5 * time.Millisecond,
	}, c, o.clock, nil)
	require.NoError(t, err)

	var gen Generator
	if o.generator != nil {
		gen = o.generator(c, o.statsPatches)
	} else {
		gen = NewCPUGenerator(DefaultRidgedParams(), c, o.statsPatches)
	}
	p, err := NewPlanet(PlanetOptions{
		Name:      "test",
		Radius:    100,
		Water:     o.water,
		Generator: gen,
		Buffer:    buf,
		Clock:     o.clock,
	})
	require.NoError(t, err)
	return p, buf
}

// viewFrom looks from eye at the planet center.
func viewFrom(eye mgl32.Vec3) View {
	proj := mgl32.Perspective(mgl32.DegToRad(60), 1, 0.0001, 100)
	up := mgl32.Vec3{0, 1, 0}
	if eye.Normalize().Cross(up).Len() < 1e-3 {
		up = mgl32.Vec3{0, 0, 1}
	}
	view := mgl32.LookAtV(eye, mgl32.Vec3{}, up)
	return NewView(eye, proj.Mul4(view))
}

var nearTunables = Tunables{MaxPatchLevel: 6, Level1Distance: 8}

// settle alternates traversal and full generation until nothing new is
// queued.
func settle(t *testing.T, p *Planet, view View, tun Tunables) DrawList {
	t.Helper()
	reg := &fakeRegistry{}
	for i := 0; i < 10; i++ {
		dl, _ := p.Traverse(view, tun, reg)
		if p.QueueLen() == 0 {
			return dl
		}
		p.RunAllComputeItems()
	}
	t.Fatal("traversal did not settle")
	return DrawList{}
}
