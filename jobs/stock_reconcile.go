package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/medirep/medirep/internal/stock"
)

const reconcileConcurrency = 4

// StockEngine is the slice of the stock service the reconciler drives. It
// reads the raw log through Transactions rather than the summary path: the
// summary is served from the redis read-through cache, and a stale cache
// entry is exactly the kind of fault this job exists to catch.
type StockEngine interface {
	Transactions(ctx context.Context, productID int64, asOf time.Time) ([]stock.Transaction, error)
	CurrentStock(ctx context.Context, productID int64) (int64, error)
	RecalculateProduct(ctx context.Context, productID int64) (int64, error)
}

// ProductLister enumerates products eligible for reconciliation.
type ProductLister interface {
	ListProductIDs(ctx context.Context) ([]int64, error)
}

// DivergenceCounter observes cache rows that drifted from the log.
type DivergenceCounter interface {
	CountStockDivergence()
}

// StockReconciler replays every product's transaction log and compares the
// derived closing stock against the cached current_stock. Drift means some
// multi-step write failed halfway; the reconciler repairs it and counts it.
type StockReconciler struct {
	engine   StockEngine
	products ProductLister
	metrics  DivergenceCounter
	logger   *slog.Logger
	now      func() time.Time
}

// NewStockReconciler builds StockReconciler.
func NewStockReconciler(engine StockEngine, products ProductLister, metrics DivergenceCounter, logger *slog.Logger) *StockReconciler {
	return &StockReconciler{engine: engine, products: products, metrics: metrics, logger: logger, now: time.Now}
}

// WithNow overrides the clock, used by tests.
func (r *StockReconciler) WithNow(now func() time.Time) {
	if now != nil {
		r.now = now
	}
}

// Run reconciles all products, fanning out across a bounded worker group.
func (r *StockReconciler) Run(ctx context.Context) error {
	ids, err := r.products.ListProductIDs(ctx)
	if err != nil {
		return err
	}
	asOf := r.today()

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(reconcileConcurrency)
	for _, id := range ids {
		productID := id
		g.Go(func() error {
			return r.reconcile(ctx, productID, asOf)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	r.logger.Info("stock reconcile finished", slog.Int("products", len(ids)))
	return nil
}

// Handle adapts Run to the asynq handler signature.
func (r *StockReconciler) Handle(ctx context.Context, _ *asynq.Task) error {
	return r.Run(ctx)
}

func (r *StockReconciler) reconcile(ctx context.Context, productID int64, asOf time.Time) error {
	txs, err := r.engine.Transactions(ctx, productID, asOf)
	if err != nil {
		return err
	}
	summary := stock.Summarize(txs)
	cached, err := r.engine.CurrentStock(ctx, productID)
	if err != nil {
		return err
	}
	if cached == summary.Closing {
		return nil
	}
	if r.metrics != nil {
		r.metrics.CountStockDivergence()
	}
	r.logger.Warn("stock cache diverged from log",
		slog.Int64("product_id", productID),
		slog.Int64("cached", cached),
		slog.Int64("derived", summary.Closing))
	repaired, err := r.engine.RecalculateProduct(ctx, productID)
	if err != nil {
		return err
	}
	r.logger.Info("stock cache repaired",
		slog.Int64("product_id", productID),
		slog.Int64("current_stock", repaired))
	return nil
}

func (r *StockReconciler) today() time.Time {
	now := r.now().UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}
