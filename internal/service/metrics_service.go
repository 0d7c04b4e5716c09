package service

import (
	"net/http"
	"runtime"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/booknova-api/internal/models"
)

// Loan operations counted by RecordLoanOperation.
const (
	LoanOpCreate = "create"
	LoanOpReturn = "return"
	LoanOpExtend = "extend"
)

const latencyWindow = 512

// MetricsService owns the Prometheus registry and keeps a few running totals
// for the JSON summary endpoint.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheLatency    prometheus.Observer
	cacheWrite      prometheus.Observer
	cacheHitRatio   prometheus.Gauge
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter
	loanOps         *prometheus.CounterVec
	pendingEvents   func() int

	startedAt time.Time

	cacheHitCount  uint64
	cacheMissCount uint64
	requestCount   uint64
	errorCount     uint64
	loansCreated   int64
	loansReturned  int64
	loansExtended  int64
	loansRejected  int64

	mu        sync.Mutex
	latencies []float64
	next      int
}

// NewMetricsService registers the collectors on a fresh registry.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "booknova",
		Name:      "http_request_duration_seconds",
		Help:      "Duration of HTTP requests in seconds",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "booknova",
		Name:      "http_requests_total",
		Help:      "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	cacheLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "booknova",
		Name:      "cache_read_seconds",
		Help:      "Latency of catalogue cache reads",
		Buckets:   prometheus.DefBuckets,
	})

	cacheWrite := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "booknova",
		Name:      "cache_write_seconds",
		Help:      "Latency of catalogue cache writes",
		Buckets:   prometheus.DefBuckets,
	})

	cacheHitRatio := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "booknova",
		Name:      "cache_hit_ratio",
		Help:      "Ratio of cache hits to total cache lookups",
	})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "booknova",
		Name:      "cache_hits_total",
		Help:      "Total cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "booknova",
		Name:      "cache_misses_total",
		Help:      "Total cache misses",
	})

	loanOps := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "booknova",
		Name:      "loan_operations_total",
		Help:      "Loan lifecycle operations by outcome",
	}, []string{"operation", "outcome"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "booknova",
		Name:      "goroutines",
		Help:      "Number of running goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheLatency, cacheWrite, cacheHitRatio, cacheHits, cacheMisses, loanOps, goroutines)

	return &MetricsService{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		cacheLatency:    cacheLatency,
		cacheWrite:      cacheWrite,
		cacheHitRatio:   cacheHitRatio,
		cacheHits:       cacheHits,
		cacheMisses:     cacheMisses,
		loanOps:         loanOps,
		startedAt:       time.Now(),
		latencies:       make([]float64, 0, latencyWindow),
	}
}

// Handler exposes the Prometheus scrape endpoint.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// TrackPendingEvents registers a gauge over the event queue backlog.
func (m *MetricsService) TrackPendingEvents(pending func() int) {
	if m == nil || pending == nil {
		return
	}
	m.pendingEvents = pending
	m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "booknova",
		Name:      "events_pending",
		Help:      "Domain events waiting to be published",
	}, func() float64 {
		return float64(pending())
	}))
}

// ObserveHTTPRequest records one served request.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := strconv.Itoa(status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
	atomic.AddUint64(&m.requestCount, 1)
	if status >= http.StatusInternalServerError {
		atomic.AddUint64(&m.errorCount, 1)
	}

	ms := float64(duration) / float64(time.Millisecond)
	m.mu.Lock()
	if len(m.latencies) < latencyWindow {
		m.latencies = append(m.latencies, ms)
	} else {
		m.latencies[m.next] = ms
	}
	m.next = (m.next + 1) % latencyWindow
	m.mu.Unlock()
}

// RecordCacheOperation records a cache lookup and refreshes the hit ratio.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.Observe(duration.Seconds())
	if hit {
		m.cacheHits.Inc()
		atomic.AddUint64(&m.cacheHitCount, 1)
	} else {
		m.cacheMisses.Inc()
		atomic.AddUint64(&m.cacheMissCount, 1)
	}
	m.cacheHitRatio.Set(m.hitRatio())
}

// ObserveCacheWrite tracks cache write latency.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// RecordLoanOperation counts a loan create, return or extend attempt.
func (m *MetricsService) RecordLoanOperation(operation string, ok bool) {
	if m == nil {
		return
	}
	outcome := "success"
	if !ok {
		outcome = "rejected"
		if operation == LoanOpCreate {
			atomic.AddInt64(&m.loansRejected, 1)
		}
	} else {
		switch operation {
		case LoanOpCreate:
			atomic.AddInt64(&m.loansCreated, 1)
		case LoanOpReturn:
			atomic.AddInt64(&m.loansReturned, 1)
		case LoanOpExtend:
			atomic.AddInt64(&m.loansExtended, 1)
		}
	}
	m.loanOps.WithLabelValues(operation, outcome).Inc()
}

// Snapshot summarises the counters for the JSON metrics endpoint.
func (m *MetricsService) Snapshot() models.SystemMetrics {
	if m == nil {
		return models.SystemMetrics{Timestamp: time.Now().UTC()}
	}
	requests := atomic.LoadUint64(&m.requestCount)
	var errorRate float64
	if requests > 0 {
		errorRate = float64(atomic.LoadUint64(&m.errorCount)) / float64(requests)
	}

	snapshot := models.SystemMetrics{
		Uptime:        time.Since(m.startedAt).Round(time.Second),
		RequestCount:  int64(requests),
		ErrorRate:     errorRate,
		P95Latency:    m.p95(),
		CacheHitRatio: m.hitRatio(),
		LoansCreated:  atomic.LoadInt64(&m.loansCreated),
		LoansReturned: atomic.LoadInt64(&m.loansReturned),
		LoansExtended: atomic.LoadInt64(&m.loansExtended),
		LoansRejected: atomic.LoadInt64(&m.loansRejected),
		GoRoutines:    runtime.NumGoroutine(),
		Timestamp:     time.Now().UTC(),
	}
	if m.pendingEvents != nil {
		snapshot.EventsPending = m.pendingEvents()
	}
	return snapshot
}

func (m *MetricsService) hitRatio() float64 {
	hits := atomic.LoadUint64(&m.cacheHitCount)
	total := hits + atomic.LoadUint64(&m.cacheMissCount)
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total)
}

func (m *MetricsService) p95() float64 {
	m.mu.Lock()
	samples := append([]float64(nil), m.latencies...)
	m.mu.Unlock()
	if len(samples) == 0 {
		return 0
	}
	sort.Float64s(samples)
	idx := int(float64(len(samples))*0.95+0.5) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(samples) {
		idx = len(samples) - 1
	}
	return samples[idx]
}
