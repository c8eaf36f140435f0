package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the pipeline's Prometheus collectors.
type Metrics struct {
	Runs          *prometheus.CounterVec
	StepDuration  *prometheus.HistogramVec
	Notifications *prometheus.CounterVec
	InFlight      prometheus.Gauge
}

// NewMetrics registers the collectors with reg. A nil reg leaves them
// unregistered, which tests use to avoid global state.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Runs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vinreport",
			Name:      "pipeline_runs_total",
			Help:      "Report runs by terminal state.",
		}, []string{"state"}),
		StepDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "vinreport",
			Name:      "pipeline_step_duration_seconds",
			Help:      "Duration of each pipeline step.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"step", "result"}),
		Notifications: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vinreport",
			Name:      "notifications_total",
			Help:      "Email deliveries by result.",
		}, []string{"result"}),
		InFlight: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "vinreport",
			Name:      "pipeline_runs_in_flight",
			Help:      "Report runs currently executing.",
		}),
	}
}
