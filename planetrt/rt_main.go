package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"time"

	"github.com/gekko3d/planets"
	"github.com/gekko3d/planets/planetrt/rt/app"
	"github.com/gekko3d/planets/planetrt/rt/scene"
	"github.com/gekko3d/planets/planetrt/rt/telemetry"
	"github.com/gekko3d/planets/planetrt/rt/viewer"
	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	runtime.LockOSThread()
}

func main() {
	configPath := flag.String("config", "planets.toml", "Engine config file (TOML)")
	scenePath := flag.String("scene", "", "Scene description (YAML), overrides the config's scene")
	debug := flag.Bool("debug", false, "Enable debug logging")
	headless := flag.Bool("headless", false, "Run without a window using the CPU terrain generator")
	frames := flag.Int("frames", 120, "Frames to run in headless mode")
	coverage := flag.String("coverage", "", "Write a BMP of the final LOD coverage (headless mode)")
	flag.Parse()

	logger := planets.NewDefaultLogger("planets", *debug)

	cfg := planets.DefaultConfig()
	configFound := true
	if loaded, err := planets.LoadConfig(*configPath); err == nil {
		cfg = loaded
	} else if errors.Is(err, os.ErrNotExist) {
		configFound = false
		logger.Warnf("no config at %s, using defaults", *configPath)
	} else {
		logger.Errorf("%v", err)
		os.Exit(1)
	}
	if cfg.Debug {
		logger.SetDebug(true)
	}

	path := *scenePath
	if path == "" {
		path = cfg.Scene
		if !filepath.IsAbs(path) {
			path = filepath.Join(filepath.Dir(*configPath), path)
		}
	}
	desc, err := scene.Load(path)
	if err != nil {
		logger.Errorf("%v", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	opts := app.EngineOptions{
		Config:   cfg,
		Scene:    desc,
		Registry: prometheus.NewRegistry(),
		Logger:   logger,
	}

	if configFound {
		watcher, err := planets.NewWatcher(*configPath, logger.Named("config"))
		if err != nil {
			logger.Warnf("config hot reload disabled: %v", err)
		} else {
			watcher.Start(ctx)
			defer watcher.Close()
			opts.Tunables = watcher.Updates()
		}
	}

	if cfg.Telemetry.ListenAddr != "" {
		server := telemetry.NewServer(opts.Registry, logger.Named("telemetry"))
		if err := server.Start(cfg.Telemetry.ListenAddr); err != nil {
			logger.Errorf("telemetry: %v", err)
			os.Exit(1)
		}
		defer func() {
			shutdown, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			server.Close(shutdown)
		}()
		opts.Publisher = server
	}

	if *headless {
		if err := runHeadless(ctx, opts, *frames, *coverage); err != nil {
			logger.Errorf("%v", err)
			os.Exit(1)
		}
		return
	}
	if err := runWindow(ctx, opts); err != nil {
		logger.Errorf("%v", err)
		os.Exit(1)
	}
}

func runHeadless(ctx context.Context, opts app.EngineOptions, frames int, coverage string) error {
	clock := planets.NewManualClock(time.Now())
	opts.Clock = clock
	opts.Generators = app.CPUGenerators

	engine, err := app.NewEngine(opts)
	if err != nil {
		return err
	}
	defer engine.Close()
	engine.Start(ctx)

	h := app.DefaultHeadlessOptions()
	h.Frames = frames
	h.FrameInterval = engine.Tunables.FrameBudget()
	h.Clock = clock
	h.Coverage = coverage
	h.Aspect = float64(opts.Config.ResX) / float64(opts.Config.ResY)
	_, err = app.RunHeadless(ctx, engine, h)
	return err
}

func runWindow(ctx context.Context, opts app.EngineOptions) error {
	if err := glfw.Init(); err != nil {
		return err
	}
	defer glfw.Terminate()

	cfg := opts.Config
	var monitor *glfw.Monitor
	if cfg.FullScreen {
		monitor = glfw.GetPrimaryMonitor()
	}
	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI)
	window, err := glfw.CreateWindow(cfg.ResX, cfg.ResY, cfg.Name, monitor, nil)
	if err != nil {
		return err
	}
	defer window.Destroy()

	application := viewer.NewApp(window, opts)
	defer application.Release()
	if err := application.Init(ctx); err != nil {
		return err
	}

	window.SetFramebufferSizeCallback(func(w *glfw.Window, width, height int) {
		application.Resize(width, height)
	})
	window.SetCursorPosCallback(func(w *glfw.Window, xpos, ypos float64) {
		application.MouseMoved(xpos, ypos)
	})
	window.SetKeyCallback(func(w *glfw.Window, key glfw.Key, scancode int, action glfw.Action, mods glfw.ModifierKey) {
		if action != glfw.Press {
			return
		}
		switch key {
		case glfw.KeyTab:
			application.ToggleMouse()
		case glfw.KeyEscape:
			w.SetShouldClose(true)
		}
	})

	for !window.ShouldClose() && ctx.Err() == nil {
		glfw.PollEvents()
		application.Update()
		application.Render()
	}
	return nil
}
