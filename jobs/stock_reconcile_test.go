package jobs

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/medirep/medirep/internal/stock"
)

type fakeEngine struct {
	mu         sync.Mutex
	logs       map[int64][]stock.Transaction
	cached     map[int64]int64
	recomputed []int64
	failFetch  bool
}

func (f *fakeEngine) Transactions(ctx context.Context, productID int64, asOf time.Time) ([]stock.Transaction, error) {
	if f.failFetch {
		return nil, errors.New("connection refused")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.logs[productID], nil
}

func (f *fakeEngine) CurrentStock(ctx context.Context, productID int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cached[productID], nil
}

func (f *fakeEngine) RecalculateProduct(ctx context.Context, productID int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cached[productID] = stock.Summarize(f.logs[productID]).Closing
	f.recomputed = append(f.recomputed, productID)
	return f.cached[productID], nil
}

func movement(txType stock.TransactionType, qty int64) stock.Transaction {
	return stock.Transaction{Type: txType, Quantity: qty}
}

type fixedProducts []int64

func (p fixedProducts) ListProductIDs(ctx context.Context) ([]int64, error) {
	return p, nil
}

type divergenceCounter struct {
	mu    sync.Mutex
	count int
}

func (c *divergenceCounter) CountStockDivergence() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.count++
}

func TestReconcileRepairsDivergence(t *testing.T) {
	engine := &fakeEngine{
		logs: map[int64][]stock.Transaction{
			1: {movement(stock.TypePurchase, 40)},
			2: {movement(stock.TypePurchase, 12), movement(stock.TypeSale, 2)},
			3: {movement(stock.TypePurchase, 7)},
		},
		cached: map[int64]int64{1: 40, 2: 12, 3: 7},
	}
	counter := &divergenceCounter{}
	r := NewStockReconciler(engine, fixedProducts{1, 2, 3}, counter, slog.Default())

	require.NoError(t, r.Run(context.Background()))
	require.Equal(t, []int64{2}, engine.recomputed)
	require.EqualValues(t, 10, engine.cached[2])
	require.Equal(t, 1, counter.count)
}

func TestReconcileCleanCacheTouchesNothing(t *testing.T) {
	engine := &fakeEngine{
		logs:   map[int64][]stock.Transaction{1: {movement(stock.TypePurchase, 5)}},
		cached: map[int64]int64{1: 5},
	}
	counter := &divergenceCounter{}
	r := NewStockReconciler(engine, fixedProducts{1}, counter, slog.Default())

	require.NoError(t, r.Run(context.Background()))
	require.Empty(t, engine.recomputed)
	require.Zero(t, counter.count)
}

// The audit replays the raw log itself; it never consults the summary path,
// so a stale redis summary cannot mask drift in current_stock.
func TestReconcileDerivesFromTheRawLog(t *testing.T) {
	engine := &fakeEngine{
		logs: map[int64][]stock.Transaction{
			1: {
				movement(stock.TypePurchase, 40),
				movement(stock.TypeSale, 15),
			},
		},
		// 40 is what a summary cached before the sale would still report.
		cached: map[int64]int64{1: 40},
	}
	counter := &divergenceCounter{}
	r := NewStockReconciler(engine, fixedProducts{1}, counter, slog.Default())

	require.NoError(t, r.Run(context.Background()))
	require.Equal(t, []int64{1}, engine.recomputed)
	require.EqualValues(t, 25, engine.cached[1])
	require.Equal(t, 1, counter.count)
}

func TestReconcilePropagatesFetchFailure(t *testing.T) {
	engine := &fakeEngine{failFetch: true, logs: map[int64][]stock.Transaction{}, cached: map[int64]int64{}}
	r := NewStockReconciler(engine, fixedProducts{1}, nil, slog.Default())

	require.Error(t, r.Run(context.Background()))
}
