// Package metrics provides Prometheus metrics for rentcase
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"rentcase/internal/domain"
)

// Metrics holds all Prometheus metrics for rentcase
type Metrics struct {
	registry *prometheus.Registry

	QueriesTotal    *prometheus.CounterVec
	RetrievalTotal  *prometheus.CounterVec
	PhaseDuration   *prometheus.HistogramVec
	SnapshotRecords prometheus.Gauge
	InFlight        prometheus.Gauge
}

// NewMetrics creates all metrics on a dedicated registry
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		QueriesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rentcase_queries_total",
				Help: "Total number of queries by outcome",
			},
			[]string{"outcome"},
		),
		RetrievalTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rentcase_retrieval_total",
				Help: "Total number of retrievals by status",
			},
			[]string{"status"},
		),
		PhaseDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "rentcase_phase_duration_seconds",
				Help:    "Time from query start to the end of each phase",
				Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"phase"},
		),
		SnapshotRecords: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "rentcase_snapshot_records",
				Help: "Number of cases in the loaded snapshot",
			},
		),
		InFlight: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "rentcase_queries_in_flight",
				Help: "Number of queries currently being processed",
			},
		),
	}
}

// Registry returns the registry the metrics are registered on
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Observe records a query lifecycle event
func (m *Metrics) Observe(e domain.QueryEvent) {
	switch e.Kind {
	case domain.EventChatStart:
		m.InFlight.Inc()
	case domain.EventRetrievalSuccess:
		m.RetrievalTotal.WithLabelValues("ok").Inc()
		m.PhaseDuration.WithLabelValues(string(e.Phase)).Observe(e.Duration.Seconds())
	case domain.EventRetrievalDegraded:
		m.RetrievalTotal.WithLabelValues("degraded").Inc()
		m.PhaseDuration.WithLabelValues(string(e.Phase)).Observe(e.Duration.Seconds())
	case domain.EventRetrievalError:
		m.RetrievalTotal.WithLabelValues("error").Inc()
	}

	if e.Phase.Terminal() {
		m.InFlight.Dec()
		outcome := "completed"
		if e.Phase == domain.PhaseFailed {
			outcome = "failed"
			if e.Kind == domain.EventInvalidInput {
				outcome = "invalid"
			}
		}
		m.QueriesTotal.WithLabelValues(outcome).Inc()
		m.PhaseDuration.WithLabelValues(string(e.Phase)).Observe(e.Duration.Seconds())
	}
}

// SetSnapshotRecords updates the snapshot size gauge
func (m *Metrics) SetSnapshotRecords(n int) {
	m.SnapshotRecords.Set(float64(n))
}
