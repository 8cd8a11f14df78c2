package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordAnalysis(t *testing.T) {
	m := New()
	m.AnalysisStarted()
	m.AnalysisStarted()
	assert.Equal(t, 2.0, testutil.ToFloat64(m.InFlight))

	m.RecordAnalysis("image", "analyzed", 0.42, 10*time.Millisecond)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.InFlight))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AnalysesTotal.WithLabelValues("image", "analyzed")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.AnalysisDuration))
}

func TestRecordSealAndVerification(t *testing.T) {
	m := New()
	m.RecordSeal(nil)
	m.RecordSeal(errors.New("entropy"))
	m.RecordVerification(true)
	m.RecordVerification(false)
	m.RecordVerification(false)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.SealsTotal.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SealsTotal.WithLabelValues("error")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.VerificationsTotal.WithLabelValues("invalid")))
}

func TestLedgerMetrics(t *testing.T) {
	m := New()
	m.RecordLedgerOp("insert", nil)
	m.SetLedgerRecords(7)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LedgerOpsTotal.WithLabelValues("insert", "ok")))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.LedgerRecords))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.AnalysisStarted()
		m.RecordAnalysis("audio", "empty", 0, time.Second)
		m.RecordRun("LOW", time.Second)
		m.RecordSeal(nil)
		m.RecordVerification(true)
		m.RecordLedgerOp("get", nil)
		m.SetLedgerRecords(1)
	})
	assert.Nil(t, m.Registry())
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New()
	m.RecordRun("VERY_HIGH", 2*time.Second)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `verum_runs_total{likelihood="VERY_HIGH"} 1`), body)
	assert.Contains(t, body, "verum_run_duration_seconds_count 1")
}

func TestRegistriesAreIndependent(t *testing.T) {
	a, b := New(), New()
	a.RecordSeal(nil)
	assert.Equal(t, 1.0, testutil.ToFloat64(a.SealsTotal.WithLabelValues("ok")))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.SealsTotal.WithLabelValues("ok")))
}
