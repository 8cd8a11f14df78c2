// Package metrics exposes Prometheus collectors for analyzer runs, seals,
// verifications and ledger operations.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Namespace prefixes every metric name.
const Namespace = "verum"

// Metrics holds all Verum collectors. A nil *Metrics is valid and records
// nothing, so callers never need to guard.
type Metrics struct {
	registry *prometheus.Registry

	// Counters
	AnalysesTotal      *prometheus.CounterVec
	RunsTotal          *prometheus.CounterVec
	SealsTotal         *prometheus.CounterVec
	VerificationsTotal *prometheus.CounterVec
	LedgerOpsTotal     *prometheus.CounterVec

	// Gauges
	InFlight      prometheus.Gauge
	LedgerRecords prometheus.Gauge

	// Histograms
	AnalysisDuration *prometheus.HistogramVec
	RunDuration      prometheus.Histogram
	TamperingScore   *prometheus.HistogramVec
}

// New creates and registers all collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		AnalysesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "analyses_total",
			Help:      "Total number of medium analyses by outcome status",
		}, []string{"medium", "status"}),
		RunsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "runs_total",
			Help:      "Total number of fused analysis runs by likelihood",
		}, []string{"likelihood"}),
		SealsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "seals_total",
			Help:      "Total number of integrity seals created",
		}, []string{"status"}),
		VerificationsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "verifications_total",
			Help:      "Total number of seal verifications by result",
		}, []string{"result"}),
		LedgerOpsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "ledger_operations_total",
			Help:      "Total number of ledger operations",
		}, []string{"operation", "status"}),

		InFlight: f.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "analyses_in_flight",
			Help:      "Number of medium analyses currently running",
		}),
		LedgerRecords: f.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "ledger_records",
			Help:      "Number of seals recorded in the ledger",
		}),

		AnalysisDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "analysis_duration_seconds",
			Help:      "Duration of a single medium analysis",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
		}, []string{"medium"}),
		RunDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of a fused analysis run",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
		}),
		TamperingScore: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "tampering_score",
			Help:      "Distribution of per-medium tampering scores",
			Buckets:   prometheus.LinearBuckets(0.1, 0.1, 10),
		}, []string{"medium"}),
	}
}

// Registry returns the registry the collectors are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler returns an HTTP handler serving the registry in exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// AnalysisStarted records an analysis entering flight.
func (m *Metrics) AnalysisStarted() {
	if m == nil {
		return
	}
	m.InFlight.Inc()
}

// RecordAnalysis records a finished medium analysis.
func (m *Metrics) RecordAnalysis(medium, status string, score float64, d time.Duration) {
	if m == nil {
		return
	}
	m.InFlight.Dec()
	m.AnalysesTotal.WithLabelValues(medium, status).Inc()
	m.AnalysisDuration.WithLabelValues(medium).Observe(d.Seconds())
	m.TamperingScore.WithLabelValues(medium).Observe(score)
}

// RecordRun records a fused run.
func (m *Metrics) RecordRun(likelihood string, d time.Duration) {
	if m == nil {
		return
	}
	m.RunsTotal.WithLabelValues(likelihood).Inc()
	m.RunDuration.Observe(d.Seconds())
}

// RecordSeal records a seal attempt.
func (m *Metrics) RecordSeal(err error) {
	if m == nil {
		return
	}
	m.SealsTotal.WithLabelValues(status(err)).Inc()
}

// RecordVerification records a verification outcome.
func (m *Metrics) RecordVerification(valid bool) {
	if m == nil {
		return
	}
	result := "invalid"
	if valid {
		result = "valid"
	}
	m.VerificationsTotal.WithLabelValues(result).Inc()
}

// RecordLedgerOp records a ledger operation.
func (m *Metrics) RecordLedgerOp(op string, err error) {
	if m == nil {
		return
	}
	m.LedgerOpsTotal.WithLabelValues(op, status(err)).Inc()
}

// SetLedgerRecords sets the number of ledger records.
func (m *Metrics) SetLedgerRecords(n int64) {
	if m == nil {
		return
	}
	m.LedgerRecords.Set(float64(n))
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
