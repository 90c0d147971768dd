package app

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/gekko3d/planets"
	"github.com/gekko3d/planets/planetrt/rt/scene"
	"github.com/gekko3d/planets/planetrt/rt/telemetry"
	"github.com/gekko3d/planets/planetrt/rt/terrain"
	"github.com/go-gl/mathgl/mgl64"
)

type HeadlessOptions struct {
	Frames int
	// FrameInterval advances Clock between frames when it is a ManualClock.
	FrameInterval time.Duration
	Clock         *planets.ManualClock
	// The camera descends geometrically from StartAltitude to EndAltitude,
	// both in planet radii above sea level.
	StartAltitude float64
	EndAltitude   float64
	Aspect        float64
	// Coverage, when set, receives a BMP of the last frame's LOD coverage.
	Coverage     string
	CoverageSize int
}

func DefaultHeadlessOptions() HeadlessOptions {
	return HeadlessOptions{
		Frames:        120,
		FrameInterval: time.Second / 60,
		StartAltitude: 3,
		EndAltitude:   0.001,
		Aspect:        16.0 / 9.0,
		CoverageSize:  256,
	}
}

var ErrNoDescentTarget = errors.New("camera is not parented to a planet")

// descentTarget is the planet the camera hangs off.
func descentTarget(e *Engine) (*scene.PlanetShape, error) {
	name := e.Camera.Position.ParentName
	if ps, ok := e.Scene.FindShape(name).(*scene.PlanetShape); ok {
		return ps, nil
	}
	return nil, fmt.Errorf("camera %q parent %q: %w", e.Camera.Name, name, ErrNoDescentTarget)
}

// DescentAltitude is the scripted altitude for frame i of n.
func DescentAltitude(i, n int, start, end float64) float64 {
	if n <= 1 {
		return end
	}
	return start * math.Pow(end/start, float64(i)/float64(n-1))
}

// placeCamera puts the camera above the target, looking at its centre.
func placeCamera(cam *scene.Camera, radius, altitude float64) {
	dir := mgl64.Vec3{0.3, 0.4, 1}.Normalize()
	s := cam.State()
	s.Position = dir.Mul(radius * (1 + altitude))
	s.LookAt(mgl64.Vec3{})
	cam.ApplyState(s)
}

// RunHeadless flies the camera down towards its planet for opts.Frames
// frames without a window and returns the last frame's statistics.
func RunHeadless(ctx context.Context, e *Engine, opts HeadlessOptions) (telemetry.FrameStats, error) {
	target, err := descentTarget(e)
	if err != nil {
		return telemetry.FrameStats{}, err
	}
	if opts.Aspect <= 0 {
		opts.Aspect = 1
	}

	var last []PlanetDraw
	for i := 0; i < opts.Frames; i++ {
		if err := ctx.Err(); err != nil {
			return e.LastStats(), err
		}
		placeCamera(e.Camera, target.Radius, DescentAltitude(i, opts.Frames, opts.StartAltitude, opts.EndAltitude))
		last = e.Frame(e.clock.Now(), opts.Aspect)
		if opts.Clock != nil {
			opts.Clock.Advance(opts.FrameInterval)
		}
	}
	stats := e.LastStats()
	e.logger.Infof("headless run done: %s", stats)
	e.logger.Debugf("%s", e.Profiler.GetStatsString())

	if opts.Coverage != "" {
		if err := writeCoverage(opts.Coverage, target, last, opts.CoverageSize); err != nil {
			return stats, err
		}
		e.logger.Infof("wrote LOD coverage to %s", opts.Coverage)
	}
	return stats, nil
}

func writeCoverage(path string, target *scene.PlanetShape, draws []PlanetDraw, size int) error {
	var dl terrain.DrawList
	for _, d := range draws {
		if d.Shape == target {
			dl = d.List
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create coverage file: %w", err)
	}
	defer f.Close()
	if err := terrain.WriteCoverage(f, target.Planet.CoverageImage(dl, max(size, 16))); err != nil {
		return fmt.Errorf("failed to encode coverage: %w", err)
	}
	return f.Close()
}
