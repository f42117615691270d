package usecase

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "ecoclassify"

// Metrics exposes Prometheus collectors for the classification pipeline.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	stageDuration *prometheus.HistogramVec
	stageFailures *prometheus.CounterVec
	stageRetries  *prometheus.CounterVec
	results       *prometheus.CounterVec
	inFlight      prometheus.Gauge
}

// NewMetrics registers the pipeline collectors on reg. Tests should pass a
// fresh prometheus.NewRegistry().
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		stageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: "pipeline",
				Name:      "stage_duration_seconds",
				Help:      "Duration spent in each pipeline stage.",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 40, 60},
			},
			[]string{"stage", "status"},
		),
		stageFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "pipeline",
				Name:      "stage_failures_total",
				Help:      "Stage executions that failed, by error kind.",
			},
			[]string{"stage", "reason"},
		),
		stageRetries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "pipeline",
				Name:      "stage_retries_total",
				Help:      "Number of times a stage execution was retried.",
			},
			[]string{"stage"},
		),
		results: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "pipeline",
				Name:      "results_total",
				Help:      "Classification results by category and severity level.",
			},
			[]string{"category", "severity_level"},
		),
		inFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: "pipeline",
				Name:      "requests_in_flight",
				Help:      "Classification requests currently being processed.",
			},
		),
	}

	if reg == nil {
		return m, nil
	}
	for _, collector := range []prometheus.Collector{m.stageDuration, m.stageFailures, m.stageRetries, m.results, m.inFlight} {
		if err := reg.Register(collector); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) observeStage(stage, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage, status).Observe(duration.Seconds())
}

func (m *Metrics) incFailure(stage, reason string) {
	if m == nil {
		return
	}
	m.stageFailures.WithLabelValues(stage, reason).Inc()
}

func (m *Metrics) incRetry(stage string) {
	if m == nil {
		return
	}
	m.stageRetries.WithLabelValues(stage).Inc()
}

func (m *Metrics) incResult(category, level string) {
	if m == nil {
		return
	}
	m.results.WithLabelValues(category, level).Inc()
}

func (m *Metrics) trackInFlight() func() {
	if m == nil {
		return func() {}
	}
	m.inFlight.Inc()
	return m.inFlight.Dec
}
