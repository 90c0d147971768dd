package databuffer

import "fmt"

// VertexSize is one generated vertex: vec4 position+normal, vec4 colour.
const VertexSize = 32

// PatchConstants describes the fixed geometry every patch shares.
type PatchConstants struct {
	VisiblePolygons int
	VerticesPerSide int
	VisibleVertices int
	TotalVertices   int
	VertexSize      int
	TotalSizeBytes  int
	PatchesPerBatch int

	// Indexes is the triangle list for one patch, relative to its first vertex.
	Indexes []uint32
}

func NewPatchConstants(visiblePolygons, patchesPerBatch int) *PatchConstants {
	if visiblePolygons <= 0 || patchesPerBatch <= 0 {
		panic(fmt.Sprintf("invalid patch constants: %d polygons, %d patches per batch", visiblePolygons, patchesPerBatch))
	}
	vps := visiblePolygons + 1
	total := vps * vps
	return &PatchConstants{
		VisiblePolygons: visiblePolygons,
		VerticesPerSide: vps,
		VisibleVertices: total,
		TotalVertices:   total,
		VertexSize:      VertexSize,
		TotalSizeBytes:  total * VertexSize,
		PatchesPerBatch: patchesPerBatch,
		Indexes:         makeIndexes(visiblePolygons, vps),
	}
}

func DefaultPatchConstants() *PatchConstants {
	return NewPatchConstants(32, 1)
}

func makeIndexes(visiblePolygons, verticesPerSide int) []uint32 {
	indexes := make([]uint32, 0, visiblePolygons*visiblePolygons*6)
	vps := uint32(verticesPerSide)
	for y := 0; y < visiblePolygons; y++ {
		for x := 0; x < visiblePolygons; x++ {
			s := uint32(y*verticesPerSide + x)
			indexes = append(indexes,
				s, s+1, s+vps,
				s+vps, s+1, s+vps+1,
			)
		}
	}
	return indexes
}

func (c *PatchConstants) IndexCount() int {
	return len(c.Indexes)
}

// StepSize is the distance in face coordinates between adjacent vertices of
// a patch of the given size.
func (c *PatchConstants) StepSize(patchSize float64) float64 {
	return patchSize / float64(c.VisiblePolygons)
}
