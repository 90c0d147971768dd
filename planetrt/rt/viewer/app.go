package viewer

import (
	"context"
	"fmt"
	"math"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/cogentcore/webgpu/wgpuglfw"
	"github.com/gekko3d/planets"
	"github.com/gekko3d/planets/planetrt/rt/app"
	"github.com/gekko3d/planets/planetrt/rt/core"
	"github.com/gekko3d/planets/planetrt/rt/databuffer"
	"github.com/gekko3d/planets/planetrt/rt/gpu"
	"github.com/gekko3d/planets/planetrt/rt/scene"
	"github.com/gekko3d/planets/planetrt/rt/terrain"
	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/go-gl/mathgl/mgl64"
)

// App is the windowed renderer: a glfw window with a WebGPU surface, the
// engine generating terrain on the GPU, and a free-fly camera.
type App struct {
	Window   *glfw.Window
	Instance *wgpu.Instance
	Adapter  *wgpu.Adapter
	Device   *wgpu.Device
	Queue    *wgpu.Queue
	Surface  *wgpu.Surface
	Config   *wgpu.SurfaceConfiguration

	DepthTexture *wgpu.Texture
	DepthView    *wgpu.TextureView

	Engine   *app.Engine
	Buffers  *gpu.PatchBuffers
	Renderer *gpu.TerrainRenderer
	computes []*gpu.TerrainCompute

	EngineOptions app.EngineOptions
	Camera        *core.CameraState
	MouseCaptured bool

	logger         planets.Logger
	lastTime       float64
	lastMouseX     float64
	lastMouseY     float64
	mouseValid     bool
	frameCount     int
	fpsTime        float64
	draws          []app.PlanetDraw
	lastUpdateTime float64
}

func NewApp(window *glfw.Window, opts app.EngineOptions) *App {
	return &App{
		Window:        window,
		EngineOptions: opts,
		logger:        planets.LoggerOrNop(opts.Logger),
	}
}

func (a *App) Init(ctx context.Context) error {
	a.Instance = wgpu.CreateInstance(nil)
	a.Surface = a.Instance.CreateSurface(wgpuglfw.GetSurfaceDescriptor(a.Window))

	adapter, err := a.Instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		CompatibleSurface: a.Surface,
		PowerPreference:   wgpu.PowerPreferenceHighPerformance,
	})
	if err != nil {
		return fmt.Errorf("failed to get adapter: %w", err)
	}
	a.Adapter = adapter

	a.Device, err = adapter.RequestDevice(nil)
	if err != nil {
		return fmt.Errorf("failed to get device: %w", err)
	}
	a.Queue = a.Device.GetQueue()

	width, height := a.Window.GetFramebufferSize()
	caps := a.Surface.GetCapabilities(adapter)
	format := caps.Formats[0]
	a.Config = &wgpu.SurfaceConfiguration{
		Usage:       wgpu.TextureUsageRenderAttachment,
		Format:      format,
		Width:       uint32(width),
		Height:      uint32(height),
		PresentMode: wgpu.PresentModeFifo,
		AlphaMode:   caps.AlphaModes[0],
	}
	a.Surface.Configure(adapter, a.Device, a.Config)
	if err := a.setupDepth(width, height); err != nil {
		return err
	}

	opts := a.EngineOptions
	opts.Generators = a.gpuGenerators
	opts.Syncer = gpu.DeviceSyncer{Device: a.Device}
	a.Engine, err = app.NewEngine(opts)
	if err != nil {
		return err
	}
	if a.Buffers == nil {
		// A scene without planets still needs buffers for the renderer.
		if a.Buffers, err = gpu.NewPatchBuffers(a.Device, a.Engine.Buffer); err != nil {
			return err
		}
	}
	a.Renderer, err = gpu.NewTerrainRenderer(a.Device, a.Buffers, format)
	if err != nil {
		return err
	}

	a.Camera = a.Engine.Camera.State()
	a.Engine.Start(ctx)
	a.lastTime = glfw.GetTime()
	return nil
}

// gpuGenerators creates a compute generator per planet over one set of
// patch buffers shared by the whole arena.
func (a *App) gpuGenerators(desc scene.PlanetDesc, buf *databuffer.Buffer) (terrain.Generator, error) {
	if a.Buffers == nil {
		b, err := gpu.NewPatchBuffers(a.Device, buf)
		if err != nil {
			return nil, err
		}
		a.Buffers = b
	}
	tc, err := gpu.NewTerrainCompute(a.Device, a.Buffers, buf.Constants(), desc.Terrain, planets.Sub(a.logger, "gen/"+desc.Name))
	if err != nil {
		return nil, err
	}
	a.computes = append(a.computes, tc)
	return tc, nil
}

func (a *App) setupDepth(w, h int) error {
	if a.DepthView != nil {
		a.DepthView.Release()
	}
	if a.DepthTexture != nil {
		a.DepthTexture.Release()
	}
	var err error
	a.DepthTexture, err = a.Device.CreateTexture(&wgpu.TextureDescriptor{
		Label:         "Depth Tex",
		Size:          wgpu.Extent3D{Width: uint32(w), Height: uint32(h), DepthOrArrayLayers: 1},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     wgpu.TextureDimension2D,
		Format:        gpu.DepthFormat,
		Usage:         wgpu.TextureUsageRenderAttachment,
	})
	if err != nil {
		return fmt.Errorf("failed to create depth texture: %w", err)
	}
	a.DepthView, err = a.DepthTexture.CreateView(nil)
	if err != nil {
		return fmt.Errorf("failed to create depth view: %w", err)
	}
	return nil
}

func (a *App) Resize(w, h int) {
	if w > 0 && h > 0 {
		a.Config.Width = uint32(w)
		a.Config.Height = uint32(h)
		a.Surface.Configure(a.Adapter, a.Device, a.Config)
		if err := a.setupDepth(w, h); err != nil {
			a.logger.Errorf("resize: %v", err)
		}
	}
}

func (a *App) aspect() float64 {
	if a.Config.Height == 0 {
		return 1
	}
	return float64(a.Config.Width) / float64(a.Config.Height)
}

// ToggleMouse captures or releases the cursor for mouse look.
func (a *App) ToggleMouse() {
	a.MouseCaptured = !a.MouseCaptured
	a.mouseValid = false
	if a.MouseCaptured {
		a.Window.SetInputMode(glfw.CursorMode, glfw.CursorDisabled)
	} else {
		a.Window.SetInputMode(glfw.CursorMode, glfw.CursorNormal)
	}
}

// MouseMoved turns the camera while the mouse is captured.
func (a *App) MouseMoved(x, y float64) {
	if a.MouseCaptured && a.mouseValid {
		a.Camera.Yaw += (x - a.lastMouseX) * a.Camera.Sensitivity
		a.Camera.Pitch -= (y - a.lastMouseY) * a.Camera.Sensitivity
		a.Camera.ClampPitch()
	}
	a.lastMouseX, a.lastMouseY = x, y
	a.mouseValid = true
}

// flySpeed slows the camera down near the ground of the planet it rides on.
func (a *App) flySpeed() float64 {
	for _, d := range a.draws {
		if d.Shape.Name() == a.Engine.Camera.Position.ParentName {
			alt := math.Max(float64(d.Stats.Altitude-d.Stats.GroundAltitude), 1e-5)
			return d.Shape.Radius * alt
		}
	}
	return 1
}

func (a *App) handleKeys(dt float64) {
	var move mgl64.Vec3
	keys := []struct {
		key  glfw.Key
		axis int
		sign float64
	}{
		{glfw.KeyD, 0, 1}, {glfw.KeyA, 0, -1},
		{glfw.KeySpace, 1, 1}, {glfw.KeyLeftControl, 1, -1},
		{glfw.KeyW, 2, 1}, {glfw.KeyS, 2, -1},
	}
	for _, k := range keys {
		if a.Window.GetKey(k.key) == glfw.Press {
			move[k.axis] += k.sign
		}
	}
	if move.Len() == 0 {
		return
	}
	a.Camera.Move(move, dt*a.flySpeed())
}

// Update applies input and runs the engine's frame.
func (a *App) Update() {
	now := glfw.GetTime()
	dt := now - a.lastTime
	a.lastTime = now

	a.handleKeys(dt)
	a.Engine.Camera.ApplyState(a.Camera)
	a.draws = a.Engine.Frame(a.Engine.Clock().Now(), a.aspect())
}

func (a *App) Render() {
	nextTexture, err := a.Surface.GetCurrentTexture()
	if err != nil {
		a.logger.Errorf("GetCurrentTexture failed: %v", err)
		return
	}
	defer nextTexture.Release()

	view, err := nextTexture.CreateView(nil)
	if err != nil {
		a.logger.Errorf("CreateView failed: %v", err)
		return
	}
	defer view.Release()

	encoder, err := a.Device.CreateCommandEncoder(nil)
	if err != nil {
		a.logger.Errorf("CreateCommandEncoder failed: %v", err)
		return
	}

	cc := a.Engine.Config.ClearColour
	pass := encoder.BeginRenderPass(&wgpu.RenderPassDescriptor{
		ColorAttachments: []wgpu.RenderPassColorAttachment{{
			View:       view,
			LoadOp:     wgpu.LoadOpClear,
			StoreOp:    wgpu.StoreOpStore,
			ClearValue: wgpu.Color{R: float64(cc[0]), G: float64(cc[1]), B: float64(cc[2]), A: float64(cc[3])},
		}},
		DepthStencilAttachment: &wgpu.RenderPassDepthStencilAttachment{
			View:            a.DepthView,
			DepthLoadOp:     wgpu.LoadOpClear,
			DepthStoreOp:    wgpu.StoreOpDiscard,
			DepthClearValue: 1.0,
		},
	})

	cam := a.Engine.Camera
	eye := cam.AbsPosition()
	viewM := cam.View()
	proj := cam.Projection(a.aspect())
	for _, d := range a.draws {
		u := gpu.NewPlanetUniforms(d.Shape, eye, viewM, proj, a.Engine.Scene.Light)
		if err := a.Renderer.Draw(pass, d.Shape.Planet, u, d.List); err != nil {
			a.logger.Errorf("draw %s: %v", d.Shape.Name(), err)
		}
	}

	if err := pass.End(); err != nil {
		a.logger.Errorf("render pass End failed: %v", err)
	}
	cmd, err := encoder.Finish(nil)
	if err != nil {
		a.logger.Errorf("encoder Finish failed: %v", err)
		return
	}
	a.Queue.Submit(cmd)
	a.Surface.Present()

	a.updateTitle()
}

func (a *App) updateTitle() {
	now := glfw.GetTime()
	if a.lastUpdateTime > 0 {
		a.frameCount++
		a.fpsTime += now - a.lastUpdateTime
		if a.fpsTime >= 1.0 {
			fps := float64(a.frameCount) / a.fpsTime
			a.frameCount = 0
			a.fpsTime = 0
			fs := a.Engine.LastStats()
			a.Window.SetTitle(fmt.Sprintf("%s - %.1f fps, %d/%d patches",
				a.Engine.Config.Name, fps, fs.SlotsOccupied, fs.SlotsCapacity))
			if a.Engine.Tunables.Debug {
				a.logger.Debugf("%s", a.Engine.Profiler.GetStatsString())
			}
		}
	}
	a.lastUpdateTime = now
}

func (a *App) Release() {
	if a.Engine != nil {
		a.Engine.Close()
	}
	for _, tc := range a.computes {
		tc.Release()
	}
	if a.Renderer != nil {
		a.Renderer.Release()
	}
	if a.Buffers != nil {
		a.Buffers.Release()
	}
	if a.DepthView != nil {
		a.DepthView.Release()
	}
	if a.DepthTexture != nil {
		a.DepthTexture.Release()
	}
	if a.Device != nil {
		a.Device.Release()
	}
	if a.Surface != nil {
		a.Surface.Release()
	}
	if a.Instance != nil {
		a.Instance.Release()
	}
}
