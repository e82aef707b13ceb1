package stock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/medirep/medirep/internal/shared"
)

type memoryRepo struct {
	txs      []Transaction
	stock    map[int64]int64
	nextID   int64
	clock    time.Time
	failList bool
}

type memoryTx struct {
	repo *memoryRepo
}

func newMemoryRepo(productIDs ...int64) *memoryRepo {
	repo := &memoryRepo{stock: make(map[int64]int64), clock: time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)}
	for _, id := range productIDs {
		repo.stock[id] = 0
	}
	return repo
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, &memoryTx{repo: r})
}

func (r *memoryRepo) ListTransactions(ctx context.Context, productID int64, asOf time.Time) ([]Transaction, error) {
	if r.failList {
		return nil, errors.New("connection refused")
	}
	var out []Transaction
	for _, tx := range r.txs {
		if tx.ProductID == productID && !tx.TxDate.After(asOf) {
			out = append(out, tx)
		}
	}
	SortTransactions(out)
	return out, nil
}

func (r *memoryRepo) GetCurrentStock(ctx context.Context, productID int64) (int64, error) {
	qty, ok := r.stock[productID]
	if !ok {
		return 0, ErrProductNotFound
	}
	return qty, nil
}

func (t *memoryTx) InsertTransaction(ctx context.Context, tx Transaction) (Transaction, error) {
	t.repo.nextID++
	t.repo.clock = t.repo.clock.Add(time.Second)
	tx.ID = t.repo.nextID
	tx.CreatedAt = t.repo.clock
	t.repo.txs = append(t.repo.txs, tx)
	return tx, nil
}

func (t *memoryTx) ListTransactions(ctx context.Context, productID int64, asOf time.Time) ([]Transaction, error) {
	return t.repo.ListTransactions(ctx, productID, asOf)
}

func (t *memoryTx) GetCurrentStockForUpdate(ctx context.Context, productID int64) (int64, error) {
	return t.repo.GetCurrentStock(ctx, productID)
}

func (t *memoryTx) UpdateCurrentStock(ctx context.Context, productID, qty int64) error {
	if _, ok := t.repo.stock[productID]; !ok {
		return ErrProductNotFound
	}
	t.repo.stock[productID] = qty
	return nil
}

type conflictingIdem struct {
	keys map[string]bool
}

func (i *conflictingIdem) CheckAndInsert(ctx context.Context, key, module string) error {
	if i.keys == nil {
		i.keys = make(map[string]bool)
	}
	if i.keys[key] {
		return shared.ErrIdempotencyConflict
	}
	i.keys[key] = true
	return nil
}

func (i *conflictingIdem) Delete(ctx context.Context, key string) error {
	delete(i.keys, key)
	return nil
}

func fixedClock() time.Time {
	return time.Date(2026, 5, 10, 15, 0, 0, 0, time.UTC)
}

func newTestService(repo *memoryRepo) *Service {
	svc := NewService(repo, nil, nil, nil)
	svc.WithNow(fixedClock)
	return svc
}

func TestAddPurchaseUpdatesCurrentStock(t *testing.T) {
	repo := newMemoryRepo(1)
	svc := newTestService(repo)
	ctx := context.Background()

	tx, err := svc.AddPurchase(ctx, AddPurchaseInput{ProductID: 1, Quantity: 10, Note: "restock"})
	require.NoError(t, err)
	require.Equal(t, TypePurchase, tx.Type)
	require.Equal(t, int64(10), repo.stock[1])

	_, err = svc.AddPurchase(ctx, AddPurchaseInput{ProductID: 1, Quantity: 0})
	require.ErrorIs(t, err, ErrInvalidQuantity)

	_, err = svc.AddPurchase(ctx, AddPurchaseInput{ProductID: 1, Quantity: -3})
	require.ErrorIs(t, err, ErrInvalidQuantity)
}

func TestSetLevelAppendsSignedDifference(t *testing.T) {
	repo := newMemoryRepo(1)
	svc := newTestService(repo)
	ctx := context.Background()

	_, err := svc.Append(ctx, Transaction{ProductID: 1, Type: TypeOpening, Quantity: 100})
	require.NoError(t, err)
	require.Equal(t, int64(100), repo.stock[1])

	require.NoError(t, svc.SetLevel(ctx, SetLevelInput{ProductID: 1, Quantity: 120}))
	require.Equal(t, int64(120), repo.stock[1])
	last := repo.txs[len(repo.txs)-1]
	require.Equal(t, TypeAdjustment, last.Type)
	require.Equal(t, int64(20), last.Quantity)
	require.Contains(t, last.Note, "from 100 to 120")

	require.NoError(t, svc.SetLevel(ctx, SetLevelInput{ProductID: 1, Quantity: 90}))
	require.Equal(t, int64(90), repo.stock[1])
	last = repo.txs[len(repo.txs)-1]
	require.Equal(t, int64(-30), last.Quantity)

	// Setting the current level is a no-op.
	count := len(repo.txs)
	require.NoError(t, svc.SetLevel(ctx, SetLevelInput{ProductID: 1, Quantity: 90}))
	require.Len(t, repo.txs, count)
}

func TestVisitEditNetsOutToDirectCreate(t *testing.T) {
	visitDate := time.Date(2026, 5, 8, 0, 0, 0, 0, time.UTC)

	// Create with qty=3, then edit to qty=5.
	edited := newMemoryRepo(1)
	svc := newTestService(edited)
	ctx := context.Background()

	_, err := svc.Append(ctx, Transaction{ProductID: 1, Type: TypeOpening, Quantity: 100})
	require.NoError(t, err)

	require.NoError(t, svc.ApplyVisitSales(ctx, VisitSalesInput{
		TxDate: visitDate, Ref: "visit-1",
		Lines: []SaleLine{{ProductID: 1, Quantity: 3}},
	}))
	require.Equal(t, int64(97), edited.stock[1])

	require.NoError(t, svc.ReplaceVisitSales(ctx, ReplaceVisitSalesInput{
		TxDate: visitDate, Ref: "visit-1",
		OldLines: []SaleLine{{ProductID: 1, Quantity: 3}},
		NewLines: []SaleLine{{ProductID: 1, Quantity: 5}},
	}))
	require.Equal(t, int64(95), edited.stock[1])

	// Create directly with qty=5.
	direct := newMemoryRepo(1)
	svc = newTestService(direct)
	_, err = svc.Append(ctx, Transaction{ProductID: 1, Type: TypeOpening, Quantity: 100})
	require.NoError(t, err)
	require.NoError(t, svc.ApplyVisitSales(ctx, VisitSalesInput{
		TxDate: visitDate, Ref: "visit-2",
		Lines: []SaleLine{{ProductID: 1, Quantity: 5}},
	}))
	require.Equal(t, direct.stock[1], edited.stock[1])
}

func TestReverseVisitSalesRestoresStock(t *testing.T) {
	repo := newMemoryRepo(1)
	svc := newTestService(repo)
	ctx := context.Background()
	visitDate := time.Date(2026, 5, 8, 0, 0, 0, 0, time.UTC)

	_, err := svc.Append(ctx, Transaction{ProductID: 1, Type: TypeOpening, Quantity: 100})
	require.NoError(t, err)

	require.NoError(t, svc.ApplyVisitSales(ctx, VisitSalesInput{
		TxDate: visitDate, Ref: "visit-1",
		Lines: []SaleLine{{ProductID: 1, Quantity: 3}},
	}))
	require.Equal(t, int64(97), repo.stock[1])

	require.NoError(t, svc.ReverseVisitSales(ctx, VisitSalesInput{
		TxDate: visitDate, Ref: "visit-1",
		Lines: []SaleLine{{ProductID: 1, Quantity: 3}},
	}))
	require.Equal(t, int64(100), repo.stock[1])
}

func TestSummaryAsOfPropagatesFetchFailure(t *testing.T) {
	repo := newMemoryRepo(1)
	repo.failList = true
	svc := newTestService(repo)

	_, err := svc.SummaryAsOf(context.Background(), 1, fixedClock())
	require.ErrorIs(t, err, shared.ErrFetchFailed)
}

func TestSummaryAsOfHonorsDate(t *testing.T) {
	repo := newMemoryRepo(1)
	svc := newTestService(repo)
	ctx := context.Background()

	_, err := svc.Append(ctx, Transaction{ProductID: 1, Type: TypeOpening, Quantity: 50, TxDate: day(1)})
	require.NoError(t, err)
	require.NoError(t, svc.ApplyVisitSales(ctx, VisitSalesInput{
		TxDate: day(5), Ref: "visit-1",
		Lines: []SaleLine{{ProductID: 1, Quantity: 10}},
	}))

	before, err := svc.SummaryAsOf(ctx, 1, day(3))
	require.NoError(t, err)
	require.Equal(t, int64(50), before.Closing)

	after, err := svc.SummaryAsOf(ctx, 1, day(5))
	require.NoError(t, err)
	require.Equal(t, int64(40), after.Closing)
}

func TestVisitSalesIdempotencyKeyBlocksReplay(t *testing.T) {
	repo := newMemoryRepo(1)
	idem := &conflictingIdem{}
	svc := NewService(repo, nil, idem, nil)
	svc.WithNow(fixedClock)
	ctx := context.Background()

	input := VisitSalesInput{
		TxDate: day(8), Ref: "visit-1", OpKey: "visit-sale:visit-1",
		Lines: []SaleLine{{ProductID: 1, Quantity: 2}},
	}
	require.NoError(t, svc.ApplyVisitSales(ctx, input))
	count := len(repo.txs)

	err := svc.ApplyVisitSales(ctx, input)
	require.ErrorIs(t, err, shared.ErrIdempotencyConflict)
	require.Len(t, repo.txs, count)
}

func TestRecalculateProductRepairsDivergence(t *testing.T) {
	repo := newMemoryRepo(1)
	svc := newTestService(repo)
	ctx := context.Background()

	_, err := svc.Append(ctx, Transaction{ProductID: 1, Type: TypeOpening, Quantity: 30})
	require.NoError(t, err)

	// Simulate a cache that drifted from the log.
	repo.stock[1] = 999

	closing, err := svc.RecalculateProduct(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, int64(30), closing)
	require.Equal(t, int64(30), repo.stock[1])
}
