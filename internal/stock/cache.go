package stock

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// SummaryCache is a read-through cache for replayed summaries. Entries are
// versioned per product: invalidation bumps the version instead of scanning
// for every dated key, because appending a back-dated transaction changes
// summaries for all later dates at once.
type SummaryCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewSummaryCache constructs the cache.
func NewSummaryCache(client *redis.Client, ttl time.Duration) *SummaryCache {
	return &SummaryCache{client: client, ttl: ttl}
}

// Get returns a cached summary when present.
func (c *SummaryCache) Get(ctx context.Context, productID int64, asOf time.Time) (Summary, bool) {
	if c == nil || c.client == nil {
		return Summary{}, false
	}
	payload, err := c.client.Get(ctx, c.summaryKey(ctx, productID, asOf)).Bytes()
	if err != nil {
		return Summary{}, false
	}
	var s Summary
	if err := json.Unmarshal(payload, &s); err != nil {
		return Summary{}, false
	}
	return s, true
}

// Set stores a summary under the product's current version.
func (c *SummaryCache) Set(ctx context.Context, productID int64, asOf time.Time, s Summary) {
	if c == nil || c.client == nil {
		return
	}
	payload, err := json.Marshal(s)
	if err != nil {
		return
	}
	c.client.Set(ctx, c.summaryKey(ctx, productID, asOf), payload, c.ttl)
}

// Invalidate drops every cached summary for the product.
func (c *SummaryCache) Invalidate(ctx context.Context, productID int64) {
	if c == nil || c.client == nil {
		return
	}
	c.client.Incr(ctx, versionKey(productID))
}

func (c *SummaryCache) summaryKey(ctx context.Context, productID int64, asOf time.Time) string {
	ver, err := c.client.Get(ctx, versionKey(productID)).Int64()
	if err != nil {
		ver = 0
	}
	return fmt.Sprintf("stock:summary:%d:%d:%s", productID, ver, asOf.UTC().Format("2006-01-02"))
}

func versionKey(productID int64) string {
	return fmt.Sprintf("stock:summary_version:%d", productID)
}
