package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*RedisClient, *miniredis.Miniredis) {
	t.Helper()

	server := miniredis.RunT(t)
	client, err := NewRedisClient(RedisConfig{Address: server.Addr(), Timeout: time.Second})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = client.Close()
	})
	return client, server
}

func TestNewRedisClientRequiresAddress(t *testing.T) {
	_, err := NewRedisClient(RedisConfig{})
	require.Error(t, err)
}

func TestRedisClientSetGetDelete(t *testing.T) {
	client, server := newTestRedis(t)
	ctx := context.Background()

	require.NoError(t, client.Set(ctx, "notifications:unread:u1", []byte("2"), 30*time.Second))
	require.True(t, server.Exists(KeyPrefix+"notifications:unread:u1"))

	value, ok, err := client.Get(ctx, "notifications:unread:u1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("2"), value)

	require.NoError(t, client.Delete(ctx, "notifications:unread:u1"))
	_, ok, err = client.Get(ctx, "notifications:unread:u1")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestRedisClientIncrementWithTTL(t *testing.T) {
	client, server := newTestRedis(t)
	ctx := context.Background()

	count, ttl, err := client.IncrementWithTTL(ctx, "ratelimit:ip", time.Minute)
	require.NoError(t, err)
	require.EqualValues(t, 1, count)
	require.Equal(t, time.Minute, ttl)

	count, ttl, err = client.IncrementWithTTL(ctx, "ratelimit:ip", time.Minute)
	require.NoError(t, err)
	require.EqualValues(t, 2, count)
	require.Greater(t, ttl, time.Duration(0))

	server.FastForward(2 * time.Minute)
	count, _, err = client.IncrementWithTTL(ctx, "ratelimit:ip", time.Minute)
	require.NoError(t, err)
	require.EqualValues(t, 1, count)
}

func TestRedisClientPing(t *testing.T) {
	client, server := newTestRedis(t)
	require.NoError(t, client.Ping(context.Background()))

	server.Close()
	require.Error(t, client.Ping(context.Background()))
}
