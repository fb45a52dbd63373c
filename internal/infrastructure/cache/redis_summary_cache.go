package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	appbilling "github.com/ecoapi/backend/internal/application/billing"
)

const summaryKeyPrefix = "overage:summary:"

// RedisSummaryCache caches overage summaries in Redis so all API instances
// share one cache. Failures degrade to cache misses; the summary service
// recomputes from the database.
type RedisSummaryCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisSummaryCache creates a Redis-backed summary cache
func NewRedisSummaryCache(client *redis.Client, ttl time.Duration, logger *zap.Logger) *RedisSummaryCache {
	if ttl <= 0 {
		ttl = 60 * time.Second
	}
	return &RedisSummaryCache{client: client, ttl: ttl, logger: logger}
}

// Get returns the cached summary for the customer if present
func (c *RedisSummaryCache) Get(ctx context.Context, customerID string) (*appbilling.OverageSummary, bool) {
	data, err := c.client.Get(ctx, summaryKeyPrefix+customerID).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Debug("summary cache read failed", zap.String("customer_id", customerID), zap.Error(err))
		}
		return nil, false
	}

	var summary appbilling.OverageSummary
	if err := json.Unmarshal(data, &summary); err != nil {
		c.logger.Warn("summary cache entry corrupt, dropping",
			zap.String("customer_id", customerID), zap.Error(err))
		c.client.Del(ctx, summaryKeyPrefix+customerID)
		return nil, false
	}
	return &summary, true
}

// Set stores the summary with the configured TTL, best effort
func (c *RedisSummaryCache) Set(ctx context.Context, customerID string, summary *appbilling.OverageSummary) {
	data, err := json.Marshal(summary)
	if err != nil {
		c.logger.Warn("summary cache encode failed", zap.String("customer_id", customerID), zap.Error(err))
		return
	}
	if err := c.client.Set(ctx, summaryKeyPrefix+customerID, data, c.ttl).Err(); err != nil {
		c.logger.Debug("summary cache write failed", zap.String("customer_id", customerID), zap.Error(err))
	}
}

// Invalidate removes the customer's cached summary
func (c *RedisSummaryCache) Invalidate(ctx context.Context, customerID string) {
	if err := c.client.Del(ctx, summaryKeyPrefix+customerID).Err(); err != nil {
		c.logger.Debug("summary cache invalidate failed", zap.String("customer_id", customerID), zap.Error(err))
	}
}
