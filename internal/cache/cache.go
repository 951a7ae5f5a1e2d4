// Package cache provides Redis-backed caching for a test suite's recent
// execution history.
//
// The executor reads the history page through this cache on every
// quantitative or custom run and drops the entry again once that run has
// recorded its new history point. A cached page is therefore served only to
// a run that starts before the previous run of the same test suite has
// recorded its point, or that follows a run which failed before recording
// one; a run that follows a completed run always reads from Mongo.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/cito-data/test-engine/internal/ports"
)

// HistoryCache caches a tenant/test-suite's history page.
type HistoryCache struct {
	client *redis.Client
	logger *zap.Logger
	ttl    time.Duration
}

// Config holds cache configuration.
type Config struct {
	Client *redis.Client
	Logger *zap.Logger
	TTL    time.Duration
}

// NewHistoryCache creates a new history cache.
func NewHistoryCache(cfg Config) *HistoryCache {
	return &HistoryCache{
		client: cfg.Client,
		logger: cfg.Logger,
		ttl:    cfg.TTL,
	}
}

// Get retrieves a cached history page, returning (nil, nil) on a cache miss.
func (c *HistoryCache) Get(ctx context.Context, tenantID, testSuiteID string) ([]ports.HistoryPoint, error) {
	key := c.key(tenantID, testSuiteID)

	data, err := c.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var points []ports.HistoryPoint
	if err := json.Unmarshal([]byte(data), &points); err != nil {
		return nil, fmt.Errorf("unmarshal history page: %w", err)
	}
	return points, nil
}

// Set stores a history page, overwriting the suite's prior entry.
func (c *HistoryCache) Set(ctx context.Context, tenantID, testSuiteID string, points []ports.HistoryPoint) error {
	key := c.key(tenantID, testSuiteID)

	data, err := json.Marshal(points)
	if err != nil {
		return fmt.Errorf("marshal history page: %w", err)
	}
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Invalidate drops the cached page for a test suite, called after a new
// execution is recorded so the next run observes fresh history.
func (c *HistoryCache) Invalidate(ctx context.Context, tenantID, testSuiteID string) error {
	if err := c.client.Del(ctx, c.key(tenantID, testSuiteID)).Err(); err != nil {
		c.logger.Warn("failed to invalidate history cache entry",
			zap.String("tenant_id", tenantID),
			zap.String("test_suite_id", testSuiteID),
			zap.Error(err),
		)
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

func (c *HistoryCache) key(tenantID, testSuiteID string) string {
	return fmt.Sprintf("test-engine:history:%s:%s", tenantID, testSuiteID)
}
