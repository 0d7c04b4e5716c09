package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

type failingCache struct{}

func (failingCache) Get(ctx context.Context, key string, dest interface{}) error {
	return errors.New("connection refused")
}

func (failingCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	return errors.New("connection refused")
}

func (failingCache) DeleteByPattern(ctx context.Context, pattern string) error {
	return errors.New("connection refused")
}

func TestCacheServiceRoundTrip(t *testing.T) {
	backend := newMemoryCache()
	svc := NewCacheService(backend, nil, 0, zap.NewNop(), true)
	ctx := context.Background()

	var out map[string]int
	assert.False(t, svc.Get(ctx, "k", &out))

	svc.Set(ctx, "k", map[string]int{"stock": 3}, 0)
	assert.True(t, svc.Get(ctx, "k", &out))
	assert.Equal(t, 3, out["stock"])

	svc.Invalidate(ctx, "k*")
	assert.False(t, svc.Get(ctx, "k", &out))
}

func TestCacheServiceDisabled(t *testing.T) {
	backend := newMemoryCache()
	svc := NewCacheService(backend, nil, time.Minute, zap.NewNop(), false)

	svc.Set(context.Background(), "k", 1, 0)
	assert.Empty(t, backend.entries)
	assert.False(t, svc.Enabled())

	var nilSvc *CacheService
	var out int
	assert.False(t, nilSvc.Get(context.Background(), "k", &out))
	assert.NotPanics(t, func() { nilSvc.Invalidate(context.Background(), "*") })
}

func TestCacheServiceBackendErrorsAreMisses(t *testing.T) {
	metrics := NewMetricsService()
	svc := NewCacheService(failingCache{}, metrics, time.Minute, zap.NewNop(), true)

	var out int
	assert.False(t, svc.Get(context.Background(), "k", &out))
	assert.NotPanics(t, func() {
		svc.Set(context.Background(), "k", 1, 0)
		svc.Invalidate(context.Background(), "*")
	})
	assert.Zero(t, metrics.Snapshot().CacheHitRatio)
}
