package cache

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/andresuchdata/triggerstore/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisRegistry(t *testing.T, mr *miniredis.Miniredis, ttlSeconds int) ContainerRegistry {
	t.Helper()
	registry, err := NewContainerRegistry(config.CacheConfig{
		Enabled:             true,
		RedisURL:            "redis://" + mr.Addr(),
		ContainerTTLSeconds: ttlSeconds,
	}, "Acct")
	require.NoError(t, err)
	require.IsType(t, &redisContainerRegistry{}, registry)
	t.Cleanup(func() { _ = registry.(io.Closer).Close() })
	return registry
}

func TestRedisContainerRegistrySharedBetweenReplicas(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	first := newRedisRegistry(t, mr, 120)
	second := newRedisRegistry(t, mr, 120)

	ok, err := second.Contains(ctx, "inputs")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, first.Add(ctx, "Inputs"))

	ok, err = second.Contains(ctx, "INPUTS")
	require.NoError(t, err)
	assert.True(t, ok)

	key := containerSetKey("acct")
	members, err := mr.Members(key)
	require.NoError(t, err)
	assert.Equal(t, []string{"inputs"}, members)
	assert.Equal(t, 2*time.Minute, mr.TTL(key))
}

func TestRedisContainerRegistryDefaultTTL(t *testing.T) {
	mr := miniredis.RunT(t)
	registry := newRedisRegistry(t, mr, 0)

	require.NoError(t, registry.Add(context.Background(), "inputs"))
	assert.Equal(t, defaultContainerTTL, mr.TTL(containerSetKey("acct")))
}

func TestRedisContainerRegistryLocalSetFirst(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	writer := newRedisRegistry(t, mr, 60)
	reader := newRedisRegistry(t, mr, 60)
	require.NoError(t, writer.Add(ctx, "inputs"))

	ok, err := reader.Contains(ctx, "inputs")
	require.NoError(t, err)
	require.True(t, ok)

	mr.SetError("ERR server unavailable")

	for _, registry := range []ContainerRegistry{writer, reader} {
		ok, err := registry.Contains(ctx, "inputs")
		require.NoError(t, err)
		assert.True(t, ok)
	}

	_, err = reader.Contains(ctx, "outputs")
	assert.Error(t, err)
	assert.Error(t, reader.Add(ctx, "outputs"))

	mr.SetError("")
	ok, err = reader.Contains(ctx, "outputs")
	require.NoError(t, err)
	assert.True(t, ok, "a failed remote add still records the name locally")
}

func TestRedisContainerRegistryClose(t *testing.T) {
	mr := miniredis.RunT(t)
	registry, err := NewContainerRegistry(config.CacheConfig{Enabled: true, RedisURL: "redis://" + mr.Addr()}, "acct")
	require.NoError(t, err)

	closer, ok := registry.(io.Closer)
	require.True(t, ok)
	require.NoError(t, closer.Close())

	_, err = registry.Contains(context.Background(), "inputs")
	assert.Error(t, err)
}

func TestNewContainerRegistryUnreachableRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := NewContainerRegistry(config.CacheConfig{Enabled: true, RedisURL: "redis://" + addr}, "acct")
	assert.Error(t, err)
}
