package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Skip reasons reported on the frames_skipped_total counter.
const (
	SkipReconfigured = "reconfigured"
	SkipTimeout      = "timeout"
)

// Metrics exports the frame loop over Prometheus. A nil *Metrics ignores
// every observation.
type Metrics struct {
	registry *prometheus.Registry

	FramesRendered prometheus.Counter
	FramesSkipped  *prometheus.CounterVec
	FrameNumber    prometheus.Gauge
	Agents         prometheus.Gauge
	FrameSeconds   prometheus.Histogram

	TrailMean     prometheus.Gauge
	TrailCoverage prometheus.Gauge
}

// NewMetrics registers the simulation metrics on a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		FramesRendered: factory.NewCounter(prometheus.CounterOpts{
			Name: "slime_frames_rendered_total",
			Help: "Frames submitted and presented",
		}),
		FramesSkipped: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "slime_frames_skipped_total",
				Help: "Frames skipped because no surface texture was available, by reason",
			},
			[]string{"reason"},
		),
		FrameNumber: factory.NewGauge(prometheus.GaugeOpts{
			Name: "slime_frame_number",
			Help: "Current value of the simulation frame counter",
		}),
		Agents: factory.NewGauge(prometheus.GaugeOpts{
			Name: "slime_agents",
			Help: "Number of simulated agents",
		}),
		FrameSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "slime_frame_seconds",
			Help:    "Time spent producing one frame",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
		}),
		TrailMean: factory.NewGauge(prometheus.GaugeOpts{
			Name: "slime_trail_mean_intensity",
			Help: "Mean trail intensity at the last field sample",
		}),
		TrailCoverage: factory.NewGauge(prometheus.GaugeOpts{
			Name: "slime_trail_coverage",
			Help: "Fraction of trail texels above the coverage threshold at the last field sample",
		}),
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveFrame records one presented frame.
func (m *Metrics) ObserveFrame(frame uint64, seconds float64) {
	if m == nil {
		return
	}
	m.FramesRendered.Inc()
	m.FrameNumber.Set(float64(frame))
	m.FrameSeconds.Observe(seconds)
}

// ObserveSkip records a skipped frame.
func (m *Metrics) ObserveSkip(frame uint64, reason string) {
	if m == nil {
		return
	}
	m.FramesSkipped.WithLabelValues(reason).Inc()
	m.FrameNumber.Set(float64(frame))
}

// ObserveField records a trail map summary.
func (m *Metrics) ObserveField(s FieldStats) {
	if m == nil {
		return
	}
	m.TrailMean.Set(s.MeanIntensity)
	m.TrailCoverage.Set(s.Coverage)
}

// SetAgents records the agent count.
func (m *Metrics) SetAgents(n uint32) {
	if m == nil {
		return
	}
	m.Agents.Set(float64(n))
}
