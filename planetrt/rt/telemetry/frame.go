package telemetry

import (
	"fmt"
	"strings"
)

type PlanetStats struct {
	Name    string `json:"name"`
	Patches int    `json:"patches"`
	Queued  int    `json:"queued"`
	Drawn   int    `json:"drawn"`
	Terrain int    `json:"terrain"`
	Water   int    `json:"water"`
	Culled  int    `json:"culled"`
}

// FrameStats is what one engine frame reports to metrics and viewers.
type FrameStats struct {
	Frame         uint64        `json:"frame"`
	WorldTime     float64       `json:"world_time"`
	FrameMillis   float64       `json:"frame_ms"`
	Batches       int           `json:"batches"`
	SlotsCapacity int           `json:"slots_capacity"`
	SlotsOccupied int           `json:"slots_occupied"`
	Evicted       int           `json:"evicted"`
	Planets       []PlanetStats `json:"planets"`
}

func (fs FrameStats) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "frame %d t=%.2f %.2fms batches=%d slots=%d/%d evicted=%d",
		fs.Frame, fs.WorldTime, fs.FrameMillis, fs.Batches, fs.SlotsOccupied, fs.SlotsCapacity, fs.Evicted)
	for _, p := range fs.Planets {
		fmt.Fprintf(&sb, " | %s patches=%d queued=%d drawn=%d", p.Name, p.Patches, p.Queued, p.Drawn)
	}
	return sb.String()
}
