package gpu

import (
	"fmt"
	"unsafe"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/gekko3d/planets/planetrt/rt/databuffer"
	"github.com/gekko3d/planets/planetrt/rt/shaders"
	"github.com/gekko3d/planets/planetrt/rt/terrain"
	"github.com/go-gl/mathgl/mgl32"
)

const DepthFormat = wgpu.TextureFormatDepth24Plus

// PlanetUniforms matches PlanetUniforms in terrain.wgsl and water.wgsl.
type PlanetUniforms struct {
	MVP         mgl32.Mat4
	ModelView   mgl32.Mat4
	LightDir    mgl32.Vec4
	LightColour mgl32.Vec4
	// Camera is the planet-local camera position with its altitude in w.
	Camera mgl32.Vec4
}

type planetBinding struct {
	uniforms  *wgpu.Buffer
	bindGroup *wgpu.BindGroup
}

// TerrainRenderer draws planets' draw lists out of the shared vertex arena.
type TerrainRenderer struct {
	Device  *wgpu.Device
	Buffers *PatchBuffers

	TerrainPipeline *wgpu.RenderPipeline
	WaterPipeline   *wgpu.RenderPipeline

	uniformLayout  *wgpu.BindGroupLayout
	pipelineLayout *wgpu.PipelineLayout

	bindings map[*terrain.Planet]*planetBinding
}

func patchVertexLayout() []wgpu.VertexBufferLayout {
	return []wgpu.VertexBufferLayout{
		{
			ArrayStride: databuffer.VertexSize,
			StepMode:    wgpu.VertexStepModeVertex,
			Attributes: []wgpu.VertexAttribute{
				{Format: wgpu.VertexFormatFloat32x4, Offset: 0, ShaderLocation: 0},
				{Format: wgpu.VertexFormatFloat32x4, Offset: 16, ShaderLocation: 1},
			},
		},
	}
}

func NewTerrainRenderer(device *wgpu.Device, buffers *PatchBuffers, format wgpu.TextureFormat) (*TerrainRenderer, error) {
	r := &TerrainRenderer{
		Device:   device,
		Buffers:  buffers,
		bindings: make(map[*terrain.Planet]*planetBinding),
	}

	var err error
	// Terrain and water share group 0 so one bind group serves both.
	r.uniformLayout, err = device.CreateBindGroupLayout(&wgpu.BindGroupLayoutDescriptor{
		Label: "PlanetUniformsBGL",
		Entries: []wgpu.BindGroupLayoutEntry{
			{
				Binding:    0,
				Visibility: wgpu.ShaderStageVertex | wgpu.ShaderStageFragment,
				Buffer: wgpu.BufferBindingLayout{
					Type:           wgpu.BufferBindingTypeUniform,
					MinBindingSize: uint64(unsafe.Sizeof(PlanetUniforms{})),
				},
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create planet uniforms layout: %w", err)
	}
	r.pipelineLayout, err = device.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		Label:            "PlanetPipelineLayout",
		BindGroupLayouts: []*wgpu.BindGroupLayout{r.uniformLayout},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create planet pipeline layout: %w", err)
	}

	r.TerrainPipeline, err = createPatchPipeline(device, r.pipelineLayout, "Terrain", shaders.TerrainWGSL, format, nil, true)
	if err != nil {
		return nil, err
	}
	r.WaterPipeline, err = createPatchPipeline(device, r.pipelineLayout, "Water", shaders.WaterWGSL, format, &wgpu.BlendState{
		Color: wgpu.BlendComponent{
			Operation: wgpu.BlendOperationAdd,
			SrcFactor: wgpu.BlendFactorSrcAlpha,
			DstFactor: wgpu.BlendFactorOneMinusSrcAlpha,
		},
		Alpha: wgpu.BlendComponent{
			Operation: wgpu.BlendOperationAdd,
			SrcFactor: wgpu.BlendFactorOne,
			DstFactor: wgpu.BlendFactorOneMinusSrcAlpha,
		},
	}, false)
	if err != nil {
		r.TerrainPipeline.Release()
		return nil, err
	}
	return r, nil
}

func createPatchPipeline(device *wgpu.Device, layout *wgpu.PipelineLayout, name, code string, format wgpu.TextureFormat, blend *wgpu.BlendState, depthWrite bool) (*wgpu.RenderPipeline, error) {
	module, err := device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label:          name + "Shader",
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{Code: code},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create %s shader: %w", name, err)
	}
	defer module.Release()

	pipeline, err := device.CreateRenderPipeline(&wgpu.RenderPipelineDescriptor{
		Label:  name + "Pipeline",
		Layout: layout,
		Vertex: wgpu.VertexState{
			Module:     module,
			EntryPoint: "vs_main",
			Buffers:    patchVertexLayout(),
		},
		Fragment: &wgpu.FragmentState{
			Module:     module,
			EntryPoint: "fs_main",
			Targets: []wgpu.ColorTargetState{
				{
					Format:    format,
					Blend:     blend,
					WriteMask: wgpu.ColorWriteMaskAll,
				},
			},
		},
		Primitive: wgpu.PrimitiveState{
			Topology:  wgpu.PrimitiveTopologyTriangleList,
			FrontFace: wgpu.FrontFaceCCW,
			CullMode:  wgpu.CullModeBack,
		},
		DepthStencil: &wgpu.DepthStencilState{
			Format:            DepthFormat,
			DepthWriteEnabled: depthWrite,
			DepthCompare:      wgpu.CompareFunctionLess,
			StencilFront:      wgpu.StencilFaceState{Compare: wgpu.CompareFunctionAlways},
			StencilBack:       wgpu.StencilFaceState{Compare: wgpu.CompareFunctionAlways},
		},
		Multisample: wgpu.MultisampleState{
			Count: 1,
			Mask:  0xFFFFFFFF,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create %s pipeline: %w", name, err)
	}
	return pipeline, nil
}

func (r *TerrainRenderer) binding(planet *terrain.Planet) (*planetBinding, error) {
	if b, ok := r.bindings[planet]; ok {
		return b, nil
	}
	buf, err := r.Device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "PlanetUniforms/" + planet.Name(),
		Size:  uint64(unsafe.Sizeof(PlanetUniforms{})),
		Usage: wgpu.BufferUsageUniform | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create uniforms for %s: %w", planet.Name(), err)
	}
	bg, err := r.Device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:  "PlanetBG/" + planet.Name(),
		Layout: r.uniformLayout,
		Entries: []wgpu.BindGroupEntry{
			{Binding: 0, Buffer: buf, Size: wgpu.WholeSize},
		},
	})
	if err != nil {
		buf.Release()
		return nil, fmt.Errorf("failed to create bind group for %s: %w", planet.Name(), err)
	}
	b := &planetBinding{uniforms: buf, bindGroup: bg}
	r.bindings[planet] = b
	return b, nil
}

// Draw records a planet's terrain and then its water into pass. WebGPU has
// no multi-draw, so each patch is its own DrawIndexed.
func (r *TerrainRenderer) Draw(pass *wgpu.RenderPassEncoder, planet *terrain.Planet, u PlanetUniforms, dl terrain.DrawList) error {
	if dl.Len() == 0 {
		return nil
	}
	b, err := r.binding(planet)
	if err != nil {
		return err
	}
	if err := r.Device.GetQueue().WriteBuffer(b.uniforms, 0, unsafe.Slice((*byte)(unsafe.Pointer(&u)), unsafe.Sizeof(u))); err != nil {
		return fmt.Errorf("failed to upload uniforms for %s: %w", planet.Name(), err)
	}

	pass.SetVertexBuffer(0, r.Buffers.Vertices, 0, wgpu.WholeSize)
	pass.SetIndexBuffer(r.Buffers.Indices, wgpu.IndexFormatUint32, 0, wgpu.WholeSize)

	pass.SetPipeline(r.TerrainPipeline)
	pass.SetBindGroup(0, b.bindGroup, nil)
	for _, item := range dl.Terrain {
		pass.DrawIndexed(item.IndexCount, 1, 0, item.BaseVertex, 0)
	}
	if len(dl.Water) > 0 {
		pass.SetPipeline(r.WaterPipeline)
		pass.SetBindGroup(0, b.bindGroup, nil)
		for _, item := range dl.Water {
			pass.DrawIndexed(item.IndexCount, 1, 0, item.BaseVertex, 0)
		}
	}
	return nil
}

// Forget drops the uniforms of a planet that left the scene.
func (r *TerrainRenderer) Forget(planet *terrain.Planet) {
	if b, ok := r.bindings[planet]; ok {
		b.bindGroup.Release()
		b.uniforms.Release()
		delete(r.bindings, planet)
	}
}

func (r *TerrainRenderer) Release() {
	for p := range r.bindings {
		r.Forget(p)
	}
	r.TerrainPipeline.Release()
	r.WaterPipeline.Release()
	r.pipelineLayout.Release()
	r.uniformLayout.Release()
}
