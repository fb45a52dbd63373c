package cache

import (
	"context"
	"sync"
	"time"

	appbilling "github.com/ecoapi/backend/internal/application/billing"
)

type summaryEntry struct {
	summary   *appbilling.OverageSummary
	expiresAt time.Time
}

// InMemorySummaryCache is a bounded in-process TTL cache for overage
// summaries. Suitable for single-instance deployments and tests; multi
// instance deployments should use the Redis implementation so invalidation
// is shared.
type InMemorySummaryCache struct {
	mu      sync.RWMutex
	entries map[string]summaryEntry
	ttl     time.Duration
	maxSize int
	now     func() time.Time
}

// NewInMemorySummaryCache creates a cache holding at most maxSize entries,
// each valid for ttl.
func NewInMemorySummaryCache(ttl time.Duration, maxSize int) *InMemorySummaryCache {
	if ttl <= 0 {
		ttl = 60 * time.Second
	}
	if maxSize <= 0 {
		maxSize = 10000
	}
	return &InMemorySummaryCache{
		entries: make(map[string]summaryEntry),
		ttl:     ttl,
		maxSize: maxSize,
		now:     time.Now,
	}
}

// Get returns the cached summary for the customer if present and fresh
func (c *InMemorySummaryCache) Get(_ context.Context, customerID string) (*appbilling.OverageSummary, bool) {
	c.mu.RLock()
	entry, ok := c.entries[customerID]
	c.mu.RUnlock()

	if !ok {
		return nil, false
	}
	if c.now().After(entry.expiresAt) {
		c.mu.Lock()
		delete(c.entries, customerID)
		c.mu.Unlock()
		return nil, false
	}
	return entry.summary, true
}

// Set stores the summary for the customer. When the cache is full, expired
// entries are evicted first; if none are expired the oldest entries are
// dropped to make room.
func (c *InMemorySummaryCache) Set(_ context.Context, customerID string, summary *appbilling.OverageSummary) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[customerID]; !exists && len(c.entries) >= c.maxSize {
		c.evictLocked()
	}
	c.entries[customerID] = summaryEntry{
		summary:   summary,
		expiresAt: c.now().Add(c.ttl),
	}
}

// Invalidate removes the customer's cached summary
func (c *InMemorySummaryCache) Invalidate(_ context.Context, customerID string) {
	c.mu.Lock()
	delete(c.entries, customerID)
	c.mu.Unlock()
}

// evictLocked frees space while holding the write lock. Expired entries go
// first, then the entries closest to expiry.
func (c *InMemorySummaryCache) evictLocked() {
	now := c.now()
	for key, entry := range c.entries {
		if now.After(entry.expiresAt) {
			delete(c.entries, key)
		}
	}
	for len(c.entries) >= c.maxSize {
		var oldestKey string
		var oldestExpiry time.Time
		for key, entry := range c.entries {
			if oldestKey == "" || entry.expiresAt.Before(oldestExpiry) {
				oldestKey = key
				oldestExpiry = entry.expiresAt
			}
		}
		delete(c.entries, oldestKey)
	}
}
