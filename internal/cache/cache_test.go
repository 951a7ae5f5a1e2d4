package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cito-data/test-engine/internal/ports"
)

func newTestCache(t *testing.T) *HistoryCache {
	t.Helper()
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	return NewHistoryCache(Config{Client: client, Logger: zap.NewNop(), TTL: time.Minute})
}

func TestGetMissReturnsNilWithoutError(t *testing.T) {
	c := newTestCache(t)
	points, err := c.Get(context.Background(), "tenant-1", "suite-1")
	require.NoError(t, err)
	require.Nil(t, points)
}

func TestSetThenGetRoundTrips(t *testing.T) {
	c := newTestCache(t)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	points := []ports.HistoryPoint{{ExecutedOn: now, Value: 42}}

	require.NoError(t, c.Set(context.Background(), "tenant-1", "suite-1", points))

	got, err := c.Get(context.Background(), "tenant-1", "suite-1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, 42.0, got[0].Value)
	require.True(t, got[0].ExecutedOn.Equal(now))
}

func TestInvalidateDropsCachedPage(t *testing.T) {
	c := newTestCache(t)
	points := []ports.HistoryPoint{{ExecutedOn: time.Now(), Value: 1}}
	require.NoError(t, c.Set(context.Background(), "tenant-1", "suite-1", points))

	require.NoError(t, c.Invalidate(context.Background(), "tenant-1", "suite-1"))

	got, err := c.Get(context.Background(), "tenant-1", "suite-1")
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestKeysAreScopedByTenantAndSuite(t *testing.T) {
	c := newTestCache(t)
	require.NoError(t, c.Set(context.Background(), "tenant-1", "suite-1", []ports.HistoryPoint{{Value: 1}}))

	got, err := c.Get(context.Background(), "tenant-2", "suite-1")
	require.NoError(t, err)
	require.Nil(t, got)
}
