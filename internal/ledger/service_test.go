package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/medirep/medirep/internal/shared"
)

type memoryRepo struct {
	entries   []Entry
	nextID    int64
	clock     time.Time
	failList  bool
	conflicts int
}

type memoryTx struct {
	repo *memoryRepo
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{clock: time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, &memoryTx{repo: r})
}

func (r *memoryRepo) ListEntries(ctx context.Context, contactID int64) ([]Entry, error) {
	if r.failList {
		return nil, errors.New("connection refused")
	}
	var out []Entry
	for _, e := range r.entries {
		if e.ContactID == contactID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (t *memoryTx) LastInvoiceNumber(ctx context.Context, prefix string) (string, error) {
	last := ""
	for _, e := range t.repo.entries {
		if strings.HasPrefix(e.InvoiceNumber, prefix+"-") && e.InvoiceNumber > last {
			last = e.InvoiceNumber
		}
	}
	return last, nil
}

func (t *memoryTx) InsertEntry(ctx context.Context, entry Entry) (Entry, error) {
	if t.repo.conflicts > 0 {
		t.repo.conflicts--
		return Entry{}, ErrDuplicateInvoice
	}
	for _, e := range t.repo.entries {
		if e.InvoiceNumber == entry.InvoiceNumber {
			return Entry{}, ErrDuplicateInvoice
		}
	}
	t.repo.nextID++
	t.repo.clock = t.repo.clock.Add(time.Second)
	entry.ID = t.repo.nextID
	entry.CreatedAt = t.repo.clock
	t.repo.entries = append(t.repo.entries, entry)
	return entry, nil
}

type fallbackCounter struct {
	count int
}

func (c *fallbackCounter) CountInvoiceFallback() { c.count++ }

func fixedClock() time.Time {
	return time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)
}

func newTestService(repo *memoryRepo) (*Service, *fallbackCounter) {
	metrics := &fallbackCounter{}
	svc := NewService(repo, nil, metrics)
	svc.WithNow(fixedClock)
	svc.WithSleep(func(time.Duration) {})
	return svc, metrics
}

func TestSequentialInvoiceAllocation(t *testing.T) {
	repo := newMemoryRepo()
	svc, _ := newTestService(repo)

	var numbers []string
	for i := 0; i < 5; i++ {
		entry, err := svc.RecordPayment(context.Background(), PaymentInput{
			ContactID: 7,
			Amount:    decimal.NewFromInt(100),
		})
		require.NoError(t, err)
		numbers = append(numbers, entry.InvoiceNumber)
	}

	for i, n := range numbers {
		require.Equal(t, fmt.Sprintf("INV-2026-05-%04d", i+1), n)
		require.True(t, IsSequentialInvoiceNumber(n))
		if i > 0 {
			require.Greater(t, n, numbers[i-1])
		}
	}
}

func TestDuplicateInvoiceTriggersRetry(t *testing.T) {
	repo := newMemoryRepo()
	repo.conflicts = 1
	svc, metrics := newTestService(repo)

	var slept []time.Duration
	svc.WithSleep(func(d time.Duration) { slept = append(slept, d) })

	entry, err := svc.RecordPayment(context.Background(), PaymentInput{
		ContactID: 7,
		Amount:    decimal.NewFromInt(50),
	})
	require.NoError(t, err)
	require.Equal(t, "INV-2026-05-0001", entry.InvoiceNumber)
	require.Equal(t, []time.Duration{100 * time.Millisecond}, slept)
	require.Zero(t, metrics.count)
}

func TestFallbackAfterExhaustedRetries(t *testing.T) {
	repo := newMemoryRepo()
	repo.conflicts = allocationAttempts
	svc, metrics := newTestService(repo)

	entry, err := svc.RecordPayment(context.Background(), PaymentInput{
		ContactID: 7,
		Amount:    decimal.NewFromInt(50),
	})
	require.NoError(t, err)
	require.False(t, IsSequentialInvoiceNumber(entry.InvoiceNumber))
	require.True(t, strings.HasPrefix(entry.InvoiceNumber, "INV-"))
	require.Equal(t, 1, metrics.count)
}

func TestFailedFallbackInsertIsNotCounted(t *testing.T) {
	repo := newMemoryRepo()
	// One more conflict than the allocator retries, so the fallback insert
	// itself fails too.
	repo.conflicts = allocationAttempts + 1
	svc, metrics := newTestService(repo)

	_, err := svc.RecordPayment(context.Background(), PaymentInput{
		ContactID: 7,
		Amount:    decimal.NewFromInt(50),
	})
	require.Error(t, err)
	require.Zero(t, metrics.count)
}

func TestFallbackNumbersNeverFeedTheCounter(t *testing.T) {
	repo := newMemoryRepo()
	repo.conflicts = allocationAttempts
	svc, _ := newTestService(repo)

	_, err := svc.RecordPayment(context.Background(), PaymentInput{ContactID: 7, Amount: decimal.NewFromInt(10)})
	require.NoError(t, err)

	entry, err := svc.RecordPayment(context.Background(), PaymentInput{ContactID: 7, Amount: decimal.NewFromInt(10)})
	require.NoError(t, err)
	require.Equal(t, "INV-2026-05-0001", entry.InvoiceNumber)
}

func TestRecordPaymentValidation(t *testing.T) {
	repo := newMemoryRepo()
	svc, _ := newTestService(repo)

	_, err := svc.RecordPayment(context.Background(), PaymentInput{Amount: decimal.NewFromInt(10)})
	require.ErrorIs(t, err, ErrContactRequired)

	_, err = svc.RecordPayment(context.Background(), PaymentInput{ContactID: 7, Amount: decimal.Zero})
	require.ErrorIs(t, err, ErrInvalidAmount)

	_, err = svc.RecordAdjustment(context.Background(), AdjustmentInput{ContactID: 7, Amount: decimal.NewFromInt(-5), Reason: "typo"})
	require.ErrorIs(t, err, ErrInvalidAmount)
}

func TestRecordAdjustmentSides(t *testing.T) {
	repo := newMemoryRepo()
	svc, _ := newTestService(repo)

	debit, err := svc.RecordAdjustment(context.Background(), AdjustmentInput{
		ContactID: 7,
		Amount:    decimal.NewFromInt(40),
		Reason:    "undercharged visit",
		IsDebit:   true,
	})
	require.NoError(t, err)
	require.True(t, debit.Debit.Equal(decimal.NewFromInt(40)))
	require.True(t, debit.Credit.IsZero())

	credit, err := svc.RecordAdjustment(context.Background(), AdjustmentInput{
		ContactID: 7,
		Amount:    decimal.NewFromInt(15),
		Reason:    "goodwill discount",
	})
	require.NoError(t, err)
	require.True(t, credit.Credit.Equal(decimal.NewFromInt(15)))
	require.True(t, credit.Debit.IsZero())
}

// Deleting a charged visit after a partial payment leaves the contact in
// credit by the payment amount: the original debit stays on the books and the
// deletion appends a compensating credit.
func TestDeletedVisitLeavesNegativeBalance(t *testing.T) {
	repo := newMemoryRepo()
	svc, _ := newTestService(repo)
	ctx := context.Background()

	_, err := svc.RecordVisitCharge(ctx, VisitChargeInput{
		ContactID: 7,
		VisitCode: "a2f1c640-1111-4e36-9c1a-0d5c1de6b001",
		Amount:    decimal.NewFromInt(500),
	})
	require.NoError(t, err)

	balance, err := svc.ContactBalance(ctx, 7)
	require.NoError(t, err)
	require.True(t, balance.Equal(decimal.NewFromInt(500)))

	_, err = svc.RecordPayment(ctx, PaymentInput{ContactID: 7, Amount: decimal.NewFromInt(200)})
	require.NoError(t, err)

	balance, err = svc.ContactBalance(ctx, 7)
	require.NoError(t, err)
	require.True(t, balance.Equal(decimal.NewFromInt(300)))

	_, err = svc.ReverseDeletedVisitCharge(ctx, VisitChargeInput{
		ContactID: 7,
		Amount:    decimal.NewFromInt(500),
	})
	require.NoError(t, err)

	balance, err = svc.ContactBalance(ctx, 7)
	require.NoError(t, err)
	require.True(t, balance.Equal(decimal.NewFromInt(-200)))
}

func TestEditedVisitChargeNetsToNewTotal(t *testing.T) {
	repo := newMemoryRepo()
	svc, _ := newTestService(repo)
	ctx := context.Background()
	code := "a2f1c640-2222-4e36-9c1a-0d5c1de6b002"

	_, err := svc.RecordVisitCharge(ctx, VisitChargeInput{ContactID: 9, VisitCode: code, Amount: decimal.NewFromInt(320)})
	require.NoError(t, err)
	_, err = svc.ReverseVisitCharge(ctx, VisitChargeInput{ContactID: 9, VisitCode: code, Amount: decimal.NewFromInt(320)})
	require.NoError(t, err)
	_, err = svc.RecordVisitCharge(ctx, VisitChargeInput{ContactID: 9, VisitCode: code, Amount: decimal.NewFromInt(275)})
	require.NoError(t, err)

	balance, err := svc.ContactBalance(ctx, 9)
	require.NoError(t, err)
	require.True(t, balance.Equal(decimal.NewFromInt(275)))

	statement, err := svc.Statement(ctx, 9)
	require.NoError(t, err)
	require.Len(t, statement, 3)
}

func TestStatementPropagatesFetchFailure(t *testing.T) {
	repo := newMemoryRepo()
	repo.failList = true
	svc, _ := newTestService(repo)

	_, err := svc.Statement(context.Background(), 7)
	require.ErrorIs(t, err, shared.ErrFetchFailed)

	_, err = svc.ContactBalance(context.Background(), 7)
	require.ErrorIs(t, err, shared.ErrFetchFailed)
}

func TestEmptyStatementBalanceIsZero(t *testing.T) {
	repo := newMemoryRepo()
	svc, _ := newTestService(repo)

	balance, err := svc.ContactBalance(context.Background(), 42)
	require.NoError(t, err)
	require.True(t, balance.IsZero())
}
