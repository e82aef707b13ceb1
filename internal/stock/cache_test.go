package stock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) *SummaryCache {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewSummaryCache(client, time.Minute)
}

func TestSummaryCacheRoundTrip(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()
	asOf := time.Date(2026, 5, 10, 0, 0, 0, 0, time.UTC)

	_, ok := cache.Get(ctx, 1, asOf)
	require.False(t, ok)

	want := Summary{Opening: 10, Purchases: 5, Sales: 3, Closing: 12}
	cache.Set(ctx, 1, asOf, want)

	got, ok := cache.Get(ctx, 1, asOf)
	require.True(t, ok)
	require.Equal(t, want, got)
}

func TestSummaryCacheInvalidateDropsAllDates(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()
	may10 := time.Date(2026, 5, 10, 0, 0, 0, 0, time.UTC)
	may11 := time.Date(2026, 5, 11, 0, 0, 0, 0, time.UTC)

	cache.Set(ctx, 1, may10, Summary{Closing: 1})
	cache.Set(ctx, 1, may11, Summary{Closing: 2})
	cache.Set(ctx, 2, may10, Summary{Closing: 3})

	cache.Invalidate(ctx, 1)

	_, ok := cache.Get(ctx, 1, may10)
	require.False(t, ok)
	_, ok = cache.Get(ctx, 1, may11)
	require.False(t, ok)

	// Other products keep their entries.
	got, ok := cache.Get(ctx, 2, may10)
	require.True(t, ok)
	require.Equal(t, int64(3), got.Closing)
}

func TestSummaryCacheNilSafe(t *testing.T) {
	var cache *SummaryCache
	_, ok := cache.Get(context.Background(), 1, time.Now())
	require.False(t, ok)
	cache.Set(context.Background(), 1, time.Now(), Summary{})
	cache.Invalidate(context.Background(), 1)
}
