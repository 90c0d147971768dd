package gpu

import (
	"errors"
	"fmt"
	"unsafe"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/gekko3d/planets"
	"github.com/gekko3d/planets/planetrt/rt/databuffer"
	"github.com/gekko3d/planets/planetrt/rt/shaders"
	"github.com/gekko3d/planets/planetrt/rt/terrain"
)

const generatorWorkgroupSize = 64

// GenParams matches GenParams in terrain_gen.wgsl.
type GenParams struct {
	Seed            uint32
	Octaves         uint32
	VerticesPerSide uint32
	TotalVertices   uint32
	Lacunarity      float32
	Gain            float32
	Offset          float32
	Scale           float32
	Bias            float32
	Frequency       float32
	_               [2]uint32
}

func NewGenParams(p terrain.RidgedParams, c *databuffer.PatchConstants) GenParams {
	return GenParams{
		Seed:            p.Seed,
		Octaves:         uint32(max(p.Octaves, 1)),
		VerticesPerSide: uint32(c.VerticesPerSide),
		TotalVertices:   uint32(c.TotalVertices),
		Lacunarity:      p.Lacunarity,
		Gain:            p.Gain,
		Offset:          p.Offset,
		Scale:           p.Scale,
		Bias:            p.Bias,
		Frequency:       p.Frequency,
	}
}

// Workgroups is the dispatch size for a batch: one invocation per vertex
// along x, one row of workgroups per patch along y.
func Workgroups(c *databuffer.PatchConstants, items int) (x, y uint32) {
	return uint32((c.TotalVertices + generatorWorkgroupSize - 1) / generatorWorkgroupSize), uint32(items)
}

// TerrainCompute generates patches on the GPU for one planet. Planets
// sharing an arena share its PatchBuffers.
type TerrainCompute struct {
	device    *wgpu.Device
	queue     *wgpu.Queue
	buffers   *PatchBuffers
	constants *databuffer.PatchConstants
	logger    planets.Logger

	pipeline  *wgpu.ComputePipeline
	params    *wgpu.Buffer
	items     *wgpu.Buffer
	bindGroup *wgpu.BindGroup
}

func NewTerrainCompute(device *wgpu.Device, buffers *PatchBuffers, constants *databuffer.PatchConstants, params terrain.RidgedParams, logger planets.Logger) (*TerrainCompute, error) {
	tc := &TerrainCompute{
		device:    device,
		queue:     device.GetQueue(),
		buffers:   buffers,
		constants: constants,
		logger:    planets.LoggerOrNop(logger),
	}

	module, err := device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label:          "TerrainGenShader",
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{Code: shaders.TerrainGenWGSL},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create terrain generator shader: %w", err)
	}
	defer module.Release()

	tc.pipeline, err = device.CreateComputePipeline(&wgpu.ComputePipelineDescriptor{
		Label: "TerrainGenPipeline",
		Compute: wgpu.ProgrammableStageDescriptor{
			Module:     module,
			EntryPoint: "main",
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create terrain generator pipeline: %w", err)
	}

	gp := NewGenParams(params, constants)
	tc.params, err = device.CreateBufferInit(&wgpu.BufferInitDescriptor{
		Label:    "TerrainGenParams",
		Contents: unsafe.Slice((*byte)(unsafe.Pointer(&gp)), unsafe.Sizeof(gp)),
		Usage:    wgpu.BufferUsageUniform | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		tc.Release()
		return nil, fmt.Errorf("failed to create generator params: %w", err)
	}

	tc.items, err = device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "TerrainGenItems",
		Size:  uint64(constants.PatchesPerBatch * terrain.PatchItemSize),
		Usage: wgpu.BufferUsageStorage | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		tc.Release()
		return nil, fmt.Errorf("failed to create generator items: %w", err)
	}

	tc.bindGroup, err = device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:  "TerrainGenBG",
		Layout: tc.pipeline.GetBindGroupLayout(0),
		Entries: []wgpu.BindGroupEntry{
			{Binding: 0, Buffer: tc.params, Size: wgpu.WholeSize},
			{Binding: 1, Buffer: tc.items, Size: wgpu.WholeSize},
			{Binding: 2, Buffer: buffers.Vertices, Size: wgpu.WholeSize},
			{Binding: 3, Buffer: buffers.Stats, Size: wgpu.WholeSize},
		},
	})
	if err != nil {
		tc.Release()
		return nil, fmt.Errorf("failed to create generator bind group: %w", err)
	}
	x, _ := Workgroups(constants, 1)
	tc.logger.Debugf("terrain generator: %d vertices per patch, %d workgroups per patch", constants.TotalVertices, x)
	return tc, nil
}

func (tc *TerrainCompute) ClearStats() error {
	cleared := databuffer.EncodeStats(databuffer.ClearedStats(tc.buffers.StatsPatches))
	return tc.queue.WriteBuffer(tc.buffers.Stats, 0, cleared)
}

func (tc *TerrainCompute) Dispatch(items []terrain.PatchItem) error {
	if len(items) == 0 {
		return nil
	}
	if len(items) > tc.constants.PatchesPerBatch {
		return fmt.Errorf("batch of %d patches exceeds %d", len(items), tc.constants.PatchesPerBatch)
	}
	if err := tc.queue.WriteBuffer(tc.items, 0, asBytes(items)); err != nil {
		return fmt.Errorf("failed to upload patch items: %w", err)
	}

	encoder, err := tc.device.CreateCommandEncoder(nil)
	if err != nil {
		return err
	}
	pass := encoder.BeginComputePass(nil)
	pass.SetPipeline(tc.pipeline)
	pass.SetBindGroup(0, tc.bindGroup, nil)
	x, y := Workgroups(tc.constants, len(items))
	pass.DispatchWorkgroups(x, y, 1)
	pass.End()

	cmd, err := encoder.Finish(nil)
	if err != nil {
		return err
	}
	tc.queue.Submit(cmd)
	return nil
}

// ReadStats copies the first n stats to the readback buffer and waits for
// them.
func (tc *TerrainCompute) ReadStats(n int) ([]databuffer.Stats, error) {
	if n > tc.buffers.StatsPatches {
		return nil, fmt.Errorf("read %d stats from scratch of %d", n, tc.buffers.StatsPatches)
	}
	size := uint64(n * databuffer.StatsSize)

	encoder, err := tc.device.CreateCommandEncoder(nil)
	if err != nil {
		return nil, err
	}
	encoder.CopyBufferToBuffer(tc.buffers.Stats, 0, tc.buffers.StatsReadback, 0, size)
	cmd, err := encoder.Finish(nil)
	if err != nil {
		return nil, err
	}
	tc.queue.Submit(cmd)

	var status wgpu.BufferMapAsyncStatus
	err = tc.buffers.StatsReadback.MapAsync(wgpu.MapModeRead, 0, size, func(s wgpu.BufferMapAsyncStatus) {
		status = s
	})
	if err != nil {
		return nil, fmt.Errorf("failed to map stats: %w", err)
	}
	tc.device.Poll(true, nil)
	if status != wgpu.BufferMapAsyncStatusSuccess {
		return nil, errors.New("stats buffer map was not successful")
	}
	defer tc.buffers.StatsReadback.Unmap()

	data := tc.buffers.StatsReadback.GetMappedRange(0, uint(size))
	return databuffer.DecodeStats(data)
}

// Finish blocks until the device has drained its queue.
func (tc *TerrainCompute) Finish() error {
	tc.device.Poll(true, nil)
	return nil
}

func (tc *TerrainCompute) Release() {
	if tc.bindGroup != nil {
		tc.bindGroup.Release()
	}
	if tc.items != nil {
		tc.items.Release()
	}
	if tc.params != nil {
		tc.params.Release()
	}
	if tc.pipeline != nil {
		tc.pipeline.Release()
	}
}

// DeviceSyncer drains the device between compute clients.
type DeviceSyncer struct {
	Device *wgpu.Device
}

func (s DeviceSyncer) Finish() error {
	s.Device.Poll(true, nil)
	return nil
}

var _ terrain.Generator = (*TerrainCompute)(nil)
