package cache

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/booknova-api/pkg/config"
)

// KeyPrefix namespaces every key written by the service.
const KeyPrefix = "booknova"

// NewRedis dials Redis and verifies the connection. It returns a nil client
// when Redis is disabled so callers can fall back to uncached reads.
func NewRedis(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return client, nil
}

// Key joins parts into a namespaced cache key, e.g. booknova:books:list.
func Key(parts ...string) string {
	return KeyPrefix + ":" + strings.Join(parts, ":")
}
