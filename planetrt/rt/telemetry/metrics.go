package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	clientLabel = "client"
	planetLabel = "planet"
	kindLabel   = "kind"
)

// Metrics exports arena, compute and traversal state. It implements
// compute.Recorder.
type Metrics struct {
	arenaCapacity prometheus.Gauge
	arenaOccupied prometheus.Gauge
	evictions     prometheus.Counter
	batchSeconds  *prometheus.HistogramVec
	batches       *prometheus.CounterVec
	patches       *prometheus.GaugeVec
	patchQueue    *prometheus.GaugeVec
	patchesDrawn  *prometheus.GaugeVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		arenaCapacity: f.NewGauge(prometheus.GaugeOpts{
			Name: "planets_arena_slots_capacity",
			Help: "The number of patch slots in the vertex arena.",
		}),
		arenaOccupied: f.NewGauge(prometheus.GaugeOpts{
			Name: "planets_arena_slots_occupied",
			Help: "The number of patch slots holding generated vertices.",
		}),
		evictions: f.NewCounter(prometheus.CounterOpts{
			Name: "planets_arena_evictions_total",
			Help: "The number of patches evicted from the arena.",
		}),
		batchSeconds: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "planets_compute_batch_seconds",
			Help:    "The average time of one compute batch within a client run.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 14),
		}, []string{clientLabel}),
		batches: f.NewCounterVec(prometheus.CounterOpts{
			Name: "planets_compute_batches_total",
			Help: "The number of compute batches run.",
		}, []string{clientLabel}),
		patches: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "planets_patches",
			Help: "The number of patches in a planet's quadtree.",
		}, []string{planetLabel}),
		patchQueue: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "planets_patch_queue",
			Help: "The number of patches waiting for generation.",
		}, []string{planetLabel}),
		patchesDrawn: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "planets_patches_drawn",
			Help: "The number of patches drawn in the last frame.",
		}, []string{planetLabel, kindLabel}),
	}
}

func (m *Metrics) ComputeRun(client string, batches int, d time.Duration) {
	if batches <= 0 {
		return
	}
	m.batches.WithLabelValues(client).Add(float64(batches))
	m.batchSeconds.WithLabelValues(client).Observe(d.Seconds() / float64(batches))
}

// ObserveFrame copies a frame's statistics into the gauges and counters.
func (m *Metrics) ObserveFrame(fs FrameStats) {
	m.arenaCapacity.Set(float64(fs.SlotsCapacity))
	m.arenaOccupied.Set(float64(fs.SlotsOccupied))
	if fs.Evicted > 0 {
		m.evictions.Add(float64(fs.Evicted))
	}
	for _, p := range fs.Planets {
		m.patches.WithLabelValues(p.Name).Set(float64(p.Patches))
		m.patchQueue.WithLabelValues(p.Name).Set(float64(p.Queued))
		m.patchesDrawn.WithLabelValues(p.Name, "terrain").Set(float64(p.Terrain))
		m.patchesDrawn.WithLabelValues(p.Name, "water").Set(float64(p.Water))
	}
}
