package service

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsServiceSnapshot(t *testing.T) {
	m := NewMetricsService()
	m.ObserveHTTPRequest(http.MethodGet, "/books", http.StatusOK, 10*time.Millisecond)
	m.ObserveHTTPRequest(http.MethodGet, "/books", http.StatusOK, 20*time.Millisecond)
	m.ObserveHTTPRequest(http.MethodPost, "/loans", http.StatusInternalServerError, 40*time.Millisecond)
	m.ObserveHTTPRequest(http.MethodPost, "/loans", http.StatusConflict, 30*time.Millisecond)
	m.RecordCacheOperation(true, time.Millisecond)
	m.RecordCacheOperation(false, time.Millisecond)
	m.RecordCacheOperation(true, time.Millisecond)
	m.RecordLoanOperation(LoanOpCreate, true)
	m.RecordLoanOperation(LoanOpCreate, false)
	m.RecordLoanOperation(LoanOpReturn, true)
	m.RecordLoanOperation(LoanOpExtend, true)
	m.TrackPendingEvents(func() int { return 7 })

	snapshot := m.Snapshot()
	assert.EqualValues(t, 4, snapshot.RequestCount)
	assert.InDelta(t, 0.25, snapshot.ErrorRate, 0.0001)
	assert.InDelta(t, 40.0, snapshot.P95Latency, 0.0001)
	assert.InDelta(t, 2.0/3.0, snapshot.CacheHitRatio, 0.0001)
	assert.EqualValues(t, 1, snapshot.LoansCreated)
	assert.EqualValues(t, 1, snapshot.LoansRejected)
	assert.EqualValues(t, 1, snapshot.LoansReturned)
	assert.EqualValues(t, 1, snapshot.LoansExtended)
	assert.Equal(t, 7, snapshot.EventsPending)
}

func TestMetricsServiceHandlerExposesCollectors(t *testing.T) {
	m := NewMetricsService()
	m.RecordLoanOperation(LoanOpReturn, true)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `booknova_loan_operations_total{operation="return",outcome="success"} 1`)
	assert.Contains(t, rec.Body.String(), "booknova_goroutines")
}

func TestMetricsServiceNilSafe(t *testing.T) {
	var m *MetricsService
	assert.NotPanics(t, func() {
		m.ObserveHTTPRequest(http.MethodGet, "/", http.StatusOK, time.Millisecond)
		m.RecordCacheOperation(true, time.Millisecond)
		m.ObserveCacheWrite(time.Millisecond)
		m.RecordLoanOperation(LoanOpCreate, true)
		m.TrackPendingEvents(func() int { return 1 })
		_ = m.Snapshot()
	})

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
