package redis

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/edefter-tracker/internal/domain/deadline"
	"github.com/turtacn/edefter-tracker/pkg/errors"
)

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client, err := NewClient(&RedisConfig{Addr: mr.Addr()}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client, mr
}

// ─────────────────────────────────────────────────────────────────────────────
// Client
// ─────────────────────────────────────────────────────────────────────────────

func TestNewClient_Success(t *testing.T) {
	client, _ := newTestClient(t)
	assert.NoError(t, client.Ping(context.Background()))
}

func TestNewClient_ConnectionFailed(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	client, err := NewClient(&RedisConfig{Addr: addr, DialTimeout: 200 * time.Millisecond, MaxRetries: -1}, nil)
	assert.Error(t, err)
	assert.Nil(t, client)
	assert.True(t, errors.IsCode(err, errors.ErrCodeCacheError))
}

func TestClient_ClosedRejectsCommands(t *testing.T) {
	client, _ := newTestClient(t)
	require.NoError(t, client.Close())
	require.NoError(t, client.Close(), "second close is a no-op")

	ctx := context.Background()
	assert.ErrorIs(t, client.Ping(ctx), ErrClientClosed)
	assert.ErrorIs(t, client.Get(ctx, "k").Err(), ErrClientClosed)
	assert.ErrorIs(t, client.Set(ctx, "k", "v", 0).Err(), ErrClientClosed)
	assert.ErrorIs(t, client.SetNX(ctx, "k", "v", 0).Err(), ErrClientClosed)
	assert.ErrorIs(t, client.Del(ctx, "k").Err(), ErrClientClosed)
	assert.ErrorIs(t, client.Exists(ctx, "k").Err(), ErrClientClosed)
	assert.ErrorIs(t, client.Scan(ctx, 0, "*", 10).Err(), ErrClientClosed)
}

// ─────────────────────────────────────────────────────────────────────────────
// Cache
// ─────────────────────────────────────────────────────────────────────────────

type dashboard struct {
	Total   int `json:"total"`
	Overdue int `json:"overdue"`
}

func TestCache_SetGetDelete(t *testing.T) {
	client, mr := newTestClient(t)
	cache := NewRedisCache(client, nil, WithPrefix("test:"), WithDefaultTTL(time.Minute))
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "dash", dashboard{Total: 4, Overdue: 1}, 0))
	assert.True(t, mr.Exists("test:dash"))
	ttl := mr.TTL("test:dash")
	assert.InDelta(t, float64(time.Minute), float64(ttl), float64(7*time.Second))

	var got dashboard
	require.NoError(t, cache.Get(ctx, "dash", &got))
	assert.Equal(t, dashboard{Total: 4, Overdue: 1}, got)

	ok, err := cache.Exists(ctx, "dash")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, cache.Delete(ctx, "dash"))
	assert.ErrorIs(t, cache.Get(ctx, "dash", &got), ErrCacheMiss)
	require.NoError(t, cache.Delete(ctx))
}

func TestCache_GetOrSetLoadsOnce(t *testing.T) {
	client, _ := newTestClient(t)
	cache := NewRedisCache(client, nil)
	ctx := context.Background()

	var calls int32
	loader := func(context.Context) (interface{}, error) {
		atomic.AddInt32(&calls, 1)
		return dashboard{Total: 2}, nil
	}

	var first, second dashboard
	require.NoError(t, cache.GetOrSet(ctx, "dash", &first, time.Minute, loader))
	require.NoError(t, cache.GetOrSet(ctx, "dash", &second, time.Minute, loader))

	assert.Equal(t, dashboard{Total: 2}, first)
	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestCache_GetOrSetPropagatesLoaderError(t *testing.T) {
	client, _ := newTestClient(t)
	cache := NewRedisCache(client, nil)

	var dest dashboard
	err := cache.GetOrSet(context.Background(), "dash", &dest, time.Minute, func(context.Context) (interface{}, error) {
		return nil, errors.Internal("store offline")
	})
	assert.Error(t, err)
}

func TestCache_DeleteByPrefix(t *testing.T) {
	client, mr := newTestClient(t)
	cache := NewRedisCache(client, nil, WithPrefix("p:"))
	ctx := context.Background()

	for _, k := range []string{"deadlines:all", "deadlines:overdue", "dashboard"} {
		require.NoError(t, cache.Set(ctx, k, 1, time.Minute))
	}
	n, err := cache.DeleteByPrefix(ctx, "deadlines:")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.True(t, mr.Exists("p:dashboard"))
}

// ─────────────────────────────────────────────────────────────────────────────
// Lock
// ─────────────────────────────────────────────────────────────────────────────

func TestLockFactory_TryLock(t *testing.T) {
	client, mr := newTestClient(t)
	locks := NewLockFactory(client, "edefter:", nil)
	ctx := context.Background()

	release, ok, err := locks.TryLock(ctx, "notify-check", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, mr.Exists("edefter:lock:notify-check"))

	_, ok, err = locks.TryLock(ctx, "notify-check", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, release(ctx))
	assert.False(t, mr.Exists("edefter:lock:notify-check"))
	assert.ErrorIs(t, release(ctx), ErrLockNotHeld)

	_, ok, err = locks.TryLock(ctx, "notify-check", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

// ─────────────────────────────────────────────────────────────────────────────
// Sent-alert registry
// ─────────────────────────────────────────────────────────────────────────────

func TestSentAlertRegistry(t *testing.T) {
	client, mr := newTestClient(t)
	reg := NewSentAlertRegistry(client, "edefter:")
	ctx := context.Background()
	day := deadline.Date{Year: 2025, Month: time.June, Day: 9}

	sent, err := reg.WasSent(ctx, day, 3)
	require.NoError(t, err)
	assert.False(t, sent)

	require.NoError(t, reg.MarkSent(ctx, day, 3))
	sent, err = reg.WasSent(ctx, day, 3)
	require.NoError(t, err)
	assert.True(t, sent)
	assert.Equal(t, SentAlertTTL, mr.TTL("edefter:sent:2025-06-09:3"))

	mr.FastForward(SentAlertTTL + time.Second)
	sent, err = reg.WasSent(ctx, day, 3)
	require.NoError(t, err)
	assert.False(t, sent)
}
