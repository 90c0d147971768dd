package app

import (
	"context"
	"fmt"
	"time"

	"github.com/gekko3d/planets"
	"github.com/gekko3d/planets/planetrt/rt/compute"
	"github.com/gekko3d/planets/planetrt/rt/databuffer"
	"github.com/gekko3d/planets/planetrt/rt/scene"
	"github.com/gekko3d/planets/planetrt/rt/telemetry"
	"github.com/gekko3d/planets/planetrt/rt/terrain"
	"github.com/prometheus/client_golang/prometheus"
)

// GeneratorFactory creates the terrain generator for one planet. It runs
// after the arena exists so GPU generators can wrap it.
type GeneratorFactory func(desc scene.PlanetDesc, buf *databuffer.Buffer) (terrain.Generator, error)

// CPUGenerators builds reference CPU generators.
func CPUGenerators(desc scene.PlanetDesc, buf *databuffer.Buffer) (terrain.Generator, error) {
	return terrain.NewCPUGenerator(desc.Terrain, buf.Constants(), buf.Config().StatsBufferPatches), nil
}

// FramePublisher receives every frame's statistics.
type FramePublisher interface {
	Publish(fs telemetry.FrameStats)
}

type EngineOptions struct {
	Config     planets.Config
	Scene      *scene.Description
	Generators GeneratorFactory
	// Syncer makes compute timings cover GPU execution.
	Syncer   compute.Syncer
	Clock    planets.Clock
	Registry *prometheus.Registry
	// Tunables delivers hot-reloaded settings, usually Watcher.Updates().
	Tunables  <-chan planets.Tunables
	Publisher FramePublisher
	Logger    planets.Logger
}

// PlanetDraw is one planet's output for a frame.
type PlanetDraw struct {
	Shape *scene.PlanetShape
	List  terrain.DrawList
	Stats terrain.TraversalStats
}

// Engine runs the GPU-agnostic part of a frame: scene animation, eviction,
// traversal and compute scheduling.
type Engine struct {
	Config     planets.Config
	Tunables   planets.Tunables
	Scene      *scene.Scene
	Camera     *scene.Camera
	Buffer     *databuffer.Buffer
	Queue      *compute.Queue
	WorldClock *planets.WorldClock
	Metrics    *telemetry.Metrics
	Registry   *prometheus.Registry
	Profiler   *Profiler

	clock     planets.Clock
	logger    planets.Logger
	tunables  <-chan planets.Tunables
	publisher FramePublisher
	sweeper   *databuffer.Sweeper

	frame     uint64
	lastFrame time.Time
	lastStats telemetry.FrameStats
}

func NewEngine(opts EngineOptions) (*Engine, error) {
	cfg := opts.Config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if opts.Scene == nil {
		return nil, fmt.Errorf("%w: no scene", planets.ErrInvalidConfig)
	}
	generators := opts.Generators
	if generators == nil {
		generators = CPUGenerators
	}
	registry := opts.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	clock := planets.ClockOrSystem(opts.Clock)
	logger := planets.LoggerOrNop(opts.Logger)

	constants := databuffer.NewPatchConstants(cfg.Arena.VisiblePolygons, cfg.Arena.PatchesPerBatch)
	buf, err := databuffer.New(databuffer.ConfigFrom(cfg.Arena), constants, clock, planets.Sub(logger, "arena"))
	if err != nil {
		return nil, err
	}

	numPlanets := 0
	for _, sd := range opts.Scene.Shapes {
		if sd.Type == scene.ShapePlanet {
			numPlanets++
		}
	}
	if need := numPlanets * 6; buf.Capacity() < need {
		return nil, fmt.Errorf("%w: arena holds %d patches, %d planets need %d for their roots",
			planets.ErrInvalidConfig, buf.Capacity(), numPlanets, need)
	}

	metrics := telemetry.NewMetrics(registry)
	queue := compute.NewQueue(compute.Options{
		Clock:    clock,
		Syncer:   opts.Syncer,
		Recorder: metrics,
		Logger:   planets.Sub(logger, "compute"),
	})

	planetLogger := planets.Sub(logger, "planet")
	factory := func(pd scene.PlanetDesc) (*terrain.Planet, error) {
		gen, err := generators(pd, buf)
		if err != nil {
			return nil, err
		}
		return terrain.NewPlanet(terrain.PlanetOptions{
			Name:      pd.Name,
			Radius:    pd.Radius,
			Water:     pd.Water,
			Generator: gen,
			Buffer:    buf,
			Logger:    planetLogger,
			Clock:     clock,
		})
	}
	sc, err := scene.Build(opts.Scene, factory, planets.Sub(logger, "scene"))
	if err != nil {
		return nil, err
	}

	e := &Engine{
		Config:     cfg,
		Tunables:   cfg.Tunables(),
		Scene:      sc,
		Camera:     sc.Cameras[0],
		Buffer:     buf,
		Queue:      queue,
		WorldClock: planets.NewWorldClock(cfg.Clock.Multiplier, cfg.Clock.Start),
		Metrics:    metrics,
		Registry:   registry,
		Profiler:   NewProfiler(clock),
		clock:      clock,
		logger:     logger,
		tunables:   opts.Tunables,
		publisher:  opts.Publisher,
	}
	logger.Infof("engine ready: %d patch slots of %d bytes, %d planets", buf.Capacity(), constants.TotalSizeBytes, numPlanets)
	return e, nil
}

// Start runs the background cleanup sweeper until ctx is done or Close.
func (e *Engine) Start(ctx context.Context) {
	if e.sweeper == nil {
		e.sweeper = e.Buffer.StartSweeper(ctx)
	}
}

func (e *Engine) Close() {
	if e.sweeper != nil {
		e.sweeper.Stop()
		e.sweeper = nil
	}
	e.Scene.Close()
}

func (e *Engine) FrameCount() uint64 { return e.frame }

func (e *Engine) Clock() planets.Clock { return e.clock }

func (e *Engine) LastStats() telemetry.FrameStats { return e.lastStats }

func (e *Engine) applyTunables() {
	if e.tunables == nil {
		return
	}
	select {
	case t := <-e.tunables:
		if t != e.Tunables {
			e.logger.Infof("tunables reloaded: max level %d, level 1 distance %g, %d fps",
				t.MaxPatchLevel, t.Level1Distance, t.DesiredFPS)
		}
		e.Tunables = t
		e.logger.SetDebug(t.Debug)
	default:
	}
}

func (e *Engine) terrainTunables() terrain.Tunables {
	return terrain.Tunables{
		MaxPatchLevel:  e.Tunables.MaxPatchLevel,
		Level1Distance: e.Tunables.Level1Distance,
	}
}

// Frame runs one frame for a viewport of the given aspect ratio and returns
// the draw lists of every planet, farthest first.
func (e *Engine) Frame(frameStart time.Time, aspect float64) []PlanetDraw {
	p := e.Profiler
	p.Reset()

	e.applyTunables()

	p.BeginScope("Scene")
	var realDt time.Duration
	if e.frame > 0 {
		realDt = frameStart.Sub(e.lastFrame)
	}
	e.lastFrame = frameStart
	e.WorldClock.Tick(realDt)
	e.Scene.Update(e.WorldClock)
	p.EndScope("Scene")

	p.BeginScope("Evict")
	evicted := e.Buffer.ApplyEvictions()
	p.EndScope("Evict")

	p.BeginScope("Traverse")
	eye := e.Camera.AbsPosition()
	viewProj := e.Camera.ViewProjection(aspect)
	tunables := e.terrainTunables()
	var draws []PlanetDraw
	for _, shape := range e.Scene.ShapesFarToNear(eye) {
		ps, ok := shape.(*scene.PlanetShape)
		if !ok {
			continue
		}
		dl, stats := ps.Planet.Traverse(ps.View(eye, viewProj), tunables, e.Queue)
		draws = append(draws, PlanetDraw{Shape: ps, List: dl, Stats: stats})
	}
	p.EndScope("Traverse")

	p.BeginScope("Compute")
	var batches int
	if e.frame == 0 {
		batches = e.Queue.RunAll()
	} else {
		batches = e.Queue.RunUntil(frameStart.Add(e.Tunables.FrameBudget()))
	}
	p.EndScope("Compute")

	fs := e.frameStats(frameStart, draws, batches, evicted)
	e.Metrics.ObserveFrame(fs)
	if e.publisher != nil {
		e.publisher.Publish(fs)
	}
	p.SetCount("patches", fs.SlotsOccupied)
	p.SetCount("batches", batches)
	p.SetCount("evicted", evicted)
	e.lastStats = fs
	e.frame++

	if e.logger.DebugEnabled() {
		e.logger.Debugf("%s", fs)
	}
	return draws
}

func (e *Engine) frameStats(frameStart time.Time, draws []PlanetDraw, batches, evicted int) telemetry.FrameStats {
	occ := e.Buffer.Snapshot()
	fs := telemetry.FrameStats{
		Frame:         e.frame,
		WorldTime:     e.WorldClock.T,
		FrameMillis:   float64(e.clock.Now().Sub(frameStart).Microseconds()) / 1000,
		Batches:       batches,
		SlotsCapacity: occ.Capacity,
		SlotsOccupied: occ.Occupied,
		Evicted:       evicted,
	}
	for _, d := range draws {
		fs.Planets = append(fs.Planets, telemetry.PlanetStats{
			Name:    d.Shape.Name(),
			Patches: d.Stats.NumPatches,
			Queued:  d.Shape.Planet.QueueLen(),
			Drawn:   d.List.Len(),
			Terrain: len(d.List.Terrain),
			Water:   len(d.List.Water),
			Culled:  d.Stats.Discarded,
		})
	}
	return fs
}
