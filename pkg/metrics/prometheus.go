package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	domrepo "FinCoord/internal/domain/repository"
)

var _ domrepo.Metrics = (*Recorder)(nil)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	coordinations *prometheus.CounterVec
	conflicts     *prometheus.CounterVec
	resolutions   *prometheus.CounterVec
	effectiveness *prometheus.HistogramVec
	activeEvents  prometheus.Gauge
	errorsTotal   *prometheus.CounterVec
	latency       *prometheus.HistogramVec

	sinkDeliveries  *prometheus.CounterVec
	pipelineBuffer  prometheus.Gauge
	pipelineDropped prometheus.Counter
}

// New creates a recorder registered on the default Prometheus registry.
func New() *Recorder {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a recorder registered on reg.
func NewWithRegistry(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		coordinations: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fincoord_coordinations_total",
				Help: "Total number of coordination requests by mode and outcome",
			},
			[]string{"mode", "outcome"},
		),
		conflicts: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fincoord_conflicts_total",
				Help: "Total number of detected conflicts by type",
			},
			[]string{"type"},
		),
		resolutions: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fincoord_resolutions_total",
				Help: "Resolution attempts by strategy and result",
			},
			[]string{"strategy", "resolved"},
		),
		effectiveness: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fincoord_coordination_effectiveness",
				Help:    "Coordination effectiveness score in [0,1]",
				Buckets: prometheus.LinearBuckets(0, 0.1, 11),
			},
			[]string{"mode"},
		),
		activeEvents: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "fincoord_active_events",
				Help: "Number of events held in the coordination store",
			},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fincoord_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fincoord_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		sinkDeliveries: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fincoord_sink_deliveries_total",
				Help: "Result deliveries per sink and status",
			},
			[]string{"sink", "status"},
		),
		pipelineBuffer: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "fincoord_pipeline_buffered",
				Help: "Results waiting in the delivery pipeline",
			},
		),
		pipelineDropped: f.NewCounter(
			prometheus.CounterOpts{
				Name: "fincoord_pipeline_dropped_total",
				Help: "Results dropped because the pipeline buffer was full",
			},
		),
	}
}

func (r *Recorder) RecordCoordination(mode, outcome string) {
	r.coordinations.WithLabelValues(mode, outcome).Inc()
}

func (r *Recorder) RecordConflict(conflictType string) {
	r.conflicts.WithLabelValues(conflictType).Inc()
}

func (r *Recorder) RecordResolution(strategy string, resolved bool) {
	label := "false"
	if resolved {
		label = "true"
	}
	r.resolutions.WithLabelValues(strategy, label).Inc()
}

func (r *Recorder) RecordEffectiveness(mode string, value float64) {
	r.effectiveness.WithLabelValues(mode).Observe(value)
}

func (r *Recorder) SetActiveEvents(n int) {
	r.activeEvents.Set(float64(n))
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

// RecordSinkDelivery counts a delivery attempt outcome for a result sink.
func (r *Recorder) RecordSinkDelivery(sink string, ok bool) {
	status := "ok"
	if !ok {
		status = "error"
	}
	r.sinkDeliveries.WithLabelValues(sink, status).Inc()
}

func (r *Recorder) SetPipelineBuffered(n int) {
	r.pipelineBuffer.Set(float64(n))
}

func (r *Recorder) RecordPipelineDrop() {
	r.pipelineDropped.Inc()
}

var _ domrepo.PipelineMetrics = (*Recorder)(nil)
