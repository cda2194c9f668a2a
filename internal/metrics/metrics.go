package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "inventavault"

// Metrics is safe to use through a nil pointer; every observation is then a no-op.
type Metrics struct {
	LookupsTotal   *prometheus.CounterVec
	LookupDuration *prometheus.HistogramVec
	StageDuration  *prometheus.HistogramVec
	StageErrors    *prometheus.CounterVec
	ResultSetSize  prometheus.Histogram
	HTTPRequests   *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		LookupsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "source_lookups_total",
				Help:      "Prior-art source lookups by source and outcome",
			},
			[]string{"source", "outcome"},
		),
		LookupDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "source_lookup_duration_seconds",
				Help:      "Prior-art source lookup latency",
				Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"source"},
		),
		StageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "stage_duration_seconds",
				Help:      "Pipeline stage entry action latency",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"stage", "status"},
		),
		StageErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "stage_errors_total",
				Help:      "Pipeline stages that ended in error",
			},
			[]string{"stage"},
		),
		ResultSetSize: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "prior_art_results",
				Help:      "References kept per research run",
				Buckets:   []float64{0, 1, 2, 5, 10, 20},
			},
		),
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "API requests by route and status code",
			},
			[]string{"route", "code"},
		),
	}
	if reg != nil {
		reg.MustRegister(m.LookupsTotal, m.LookupDuration, m.StageDuration, m.StageErrors, m.ResultSetSize, m.HTTPRequests)
	}
	return m
}

func (m *Metrics) ObserveLookup(source, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.LookupsTotal.WithLabelValues(source, outcome).Inc()
	m.LookupDuration.WithLabelValues(source).Observe(d.Seconds())
}

func (m *Metrics) ObserveStage(stage, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.StageDuration.WithLabelValues(stage, status).Observe(d.Seconds())
	if status == "error" {
		m.StageErrors.WithLabelValues(stage).Inc()
	}
}

func (m *Metrics) ObserveResults(n int) {
	if m == nil {
		return
	}
	m.ResultSetSize.Observe(float64(n))
}

func (m *Metrics) ObserveRequest(route, code string) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(route, code).Inc()
}
