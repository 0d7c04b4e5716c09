package cache

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/booknova-api/pkg/config"
)

func TestKey(t *testing.T) {
	assert.Equal(t, "booknova:books:list:page=1", Key("books", "list", "page=1"))
	assert.Equal(t, "booknova:", Key())
}

func TestNewRedisDisabled(t *testing.T) {
	client, err := NewRedis(context.Background(), config.RedisConfig{Enabled: false})
	require.NoError(t, err)
	assert.Nil(t, client)
}
