package terrain

import (
	"github.com/gekko3d/planets/planetrt/rt/core"
	"github.com/gekko3d/planets/planetrt/rt/databuffer"
)

// PatchItem describes one patch to generate. It matches the vec4 the
// generator shader reads per workgroup row.
type PatchItem struct {
	Packed    uint32
	StepSize  float32
	Dim0Start float32
	Dim1Start float32
}

// PatchItemSize is the byte size of a PatchItem.
const PatchItemSize = 16

const (
	itemOrientationShift = 29
	itemStatsShift       = 21
	itemSlotMask         = 1<<itemStatsShift - 1
	itemStatsMask        = 1<<(itemOrientationShift-itemStatsShift) - 1
)

// PackItem packs orientation (3 bits), stats offset (8 bits) and slot
// (21 bits) into one word.
func PackItem(o core.Orientation, statsOffset int, slot databuffer.Slot) uint32 {
	return uint32(o)<<itemOrientationShift | uint32(statsOffset)<<itemStatsShift | uint32(slot)
}

func UnpackItem(packed uint32) (core.Orientation, int, databuffer.Slot) {
	return core.Orientation(packed >> itemOrientationShift),
		int(packed >> itemStatsShift & itemStatsMask),
		databuffer.Slot(packed & itemSlotMask)
}

// Generator fills arena slots with patch geometry and reduces each patch's
// altitude range into a stats scratch buffer.
//
// Vertex (i, j) of a patch lies at face coordinates
// (Dim0Start + (i+1)*StepSize, Dim1Start + (j+1)*StepSize) for i, j in
// [0, VerticesPerSide). Dim0Start is one step before the patch origin so
// that normals can be taken from neighbours outside the patch.
type Generator interface {
	// ClearStats resets the scratch buffer to the "no data" sentinel.
	ClearStats() error
	// Dispatch generates every item; stats land at each item's offset.
	Dispatch(items []PatchItem) error
	// ReadStats returns the first n stats records.
	ReadStats(n int) ([]databuffer.Stats, error)
	// Finish blocks until dispatched work has completed.
	Finish() error
}
