package gpu

import (
	"fmt"
	"unsafe"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/gekko3d/planets/planetrt/rt/databuffer"
)

// PatchBuffers are the GPU side of a patch data buffer: the vertex arena
// every planet draws from, the shared index pattern and the stats scratch
// with its readback copy.
type PatchBuffers struct {
	Device *wgpu.Device

	Vertices      *wgpu.Buffer
	Indices       *wgpu.Buffer
	Stats         *wgpu.Buffer
	StatsReadback *wgpu.Buffer

	IndexCount   uint32
	StatsPatches int
}

func NewPatchBuffers(device *wgpu.Device, arena *databuffer.Buffer) (*PatchBuffers, error) {
	c := arena.Constants()
	b := &PatchBuffers{
		Device:       device,
		IndexCount:   uint32(c.IndexCount()),
		StatsPatches: arena.Config().StatsBufferPatches,
	}

	var err error
	b.Vertices, err = device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "PatchVertexArena",
		Size:  arena.SizeBytes(),
		Usage: wgpu.BufferUsageStorage | wgpu.BufferUsageVertex,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create vertex arena: %w", err)
	}

	b.Indices, err = device.CreateBufferInit(&wgpu.BufferInitDescriptor{
		Label:    "PatchIndices",
		Contents: wgpu.ToBytes(c.Indexes),
		Usage:    wgpu.BufferUsageIndex,
	})
	if err != nil {
		b.Release()
		return nil, fmt.Errorf("failed to create patch indices: %w", err)
	}

	statsSize := uint64(b.StatsPatches * databuffer.StatsSize)
	b.Stats, err = device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "PatchStats",
		Size:  statsSize,
		Usage: wgpu.BufferUsageStorage | wgpu.BufferUsageCopySrc | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		b.Release()
		return nil, fmt.Errorf("failed to create stats buffer: %w", err)
	}

	b.StatsReadback, err = device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "PatchStatsReadback",
		Size:  statsSize,
		Usage: wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		b.Release()
		return nil, fmt.Errorf("failed to create stats readback buffer: %w", err)
	}
	return b, nil
}

func (b *PatchBuffers) Release() {
	for _, buf := range []*wgpu.Buffer{b.Vertices, b.Indices, b.Stats, b.StatsReadback} {
		if buf != nil {
			buf.Release()
		}
	}
	b.Vertices, b.Indices, b.Stats, b.StatsReadback = nil, nil, nil, nil
}

// asBytes views a slice of plain structs as bytes for upload.
func asBytes[T any](s []T) []byte {
	if len(s) == 0 {
		return nil
	}
	var zero T
	return unsafe.Slice((*byte)(unsafe.Pointer(&s[0])), len(s)*int(unsafe.Sizeof(zero)))
}
