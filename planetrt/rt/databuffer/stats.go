package databuffer

import (
	"encoding/binary"
	"fmt"
	"math"
)

// StatsSize is the byte size of one Stats record (a uvec4 on the GPU).
const StatsSize = 16

// Stats is the per-patch reduction written by the terrain generator.
// Altitudes are stored as sortable uints so the generator can use atomic
// integer min/max.
type Stats struct {
	MinSortable uint32
	MaxSortable uint32
	Submerged   uint32
	_           uint32
}

// FloatToSortable maps a float to a uint whose unsigned order matches the
// float order.
func FloatToSortable(f float32) uint32 {
	u := math.Float32bits(f)
	return u ^ (-(u >> 31) | 0x80000000)
}

func SortableToFloat(u uint32) float32 {
	return math.Float32frombits(u ^ (((u >> 31) - 1) | 0x80000000))
}

var (
	sentinelMin = FloatToSortable(math.MaxFloat32)
	sentinelMax = FloatToSortable(-math.MaxFloat32)
)

// ClearedStats returns n records in the state the generator reduces into.
func ClearedStats(n int) []Stats {
	s := make([]Stats, n)
	for i := range s {
		s[i] = Stats{MinSortable: sentinelMin, MaxSortable: sentinelMax}
	}
	return s
}

// Decode returns ok=false when no vertex was reduced into s.
func (s Stats) Decode() (minAltitude, maxAltitude float32, submerged uint32, ok bool) {
	if s.MinSortable > s.MaxSortable {
		return 0, 0, 0, false
	}
	return SortableToFloat(s.MinSortable), SortableToFloat(s.MaxSortable), s.Submerged, true
}

// Reduce folds one vertex altitude into s.
func (s *Stats) Reduce(altitude float32, submerged bool) {
	u := FloatToSortable(altitude)
	if u < s.MinSortable {
		s.MinSortable = u
	}
	if u > s.MaxSortable {
		s.MaxSortable = u
	}
	if submerged {
		s.Submerged++
	}
}

func EncodeStats(stats []Stats) []byte {
	data := make([]byte, len(stats)*StatsSize)
	for i, s := range stats {
		o := i * StatsSize
		binary.LittleEndian.PutUint32(data[o:o+4], s.MinSortable)
		binary.LittleEndian.PutUint32(data[o+4:o+8], s.MaxSortable)
		binary.LittleEndian.PutUint32(data[o+8:o+12], s.Submerged)
	}
	return data
}

func DecodeStats(data []byte) ([]Stats, error) {
	if len(data)%StatsSize != 0 {
		return nil, fmt.Errorf("stats data length %d is not a multiple of %d", len(data), StatsSize)
	}
	stats := make([]Stats, len(data)/StatsSize)
	for i := range stats {
		o := i * StatsSize
		stats[i] = Stats{
			MinSortable: binary.LittleEndian.Uint32(data[o : o+4]),
			MaxSortable: binary.LittleEndian.Uint32(data[o+4 : o+8]),
			Submerged:   binary.LittleEndian.Uint32(data[o+8 : o+12]),
		}
	}
	return stats, nil
}
