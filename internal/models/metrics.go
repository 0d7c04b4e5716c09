package models

import "time"

// SystemMetrics is the JSON snapshot served at /metrics/summary.
type SystemMetrics struct {
	Uptime        time.Duration `json:"uptime"`
	RequestCount  int64         `json:"request_count"`
	ErrorRate     float64       `json:"error_rate"`
	P95Latency    float64       `json:"p95_latency_ms"`
	CacheHitRatio float64       `json:"cache_hit_ratio"`
	LoansCreated  int64         `json:"loans_created"`
	LoansReturned int64         `json:"loans_returned"`
	LoansExtended int64         `json:"loans_extended"`
	LoansRejected int64         `json:"loans_rejected"`
	EventsPending int           `json:"events_pending"`
	GoRoutines    int           `json:"goroutines"`
	Timestamp     time.Time     `json:"timestamp"`
}
