package jobs

import (
	"context"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/shopspring/decimal"
)

// LedgerStore is the slice of the ledger the integrity scan reads.
type LedgerStore interface {
	ListContactIDs(ctx context.Context) ([]int64, error)
	FindDuplicateInvoiceNumbers(ctx context.Context) ([]string, error)
}

// BalanceReader recomputes one contact's balance from its entries.
type BalanceReader interface {
	ContactBalance(ctx context.Context, contactID int64) (decimal.Decimal, error)
}

// LedgerIntegrity verifies the two ledger invariants that cannot break
// silently elsewhere: invoice-number uniqueness (pre-constraint rows) and
// recomputability of every contact's balance.
type LedgerIntegrity struct {
	store   LedgerStore
	balance BalanceReader
	logger  *slog.Logger
}

// NewLedgerIntegrity builds LedgerIntegrity.
func NewLedgerIntegrity(store LedgerStore, balance BalanceReader, logger *slog.Logger) *LedgerIntegrity {
	return &LedgerIntegrity{store: store, balance: balance, logger: logger}
}

// Run executes the full scan.
func (l *LedgerIntegrity) Run(ctx context.Context) error {
	duplicates, err := l.store.FindDuplicateInvoiceNumbers(ctx)
	if err != nil {
		return err
	}
	for _, number := range duplicates {
		l.logger.Error("duplicate invoice number on the books", slog.String("invoice_number", number))
	}

	ids, err := l.store.ListContactIDs(ctx)
	if err != nil {
		return err
	}
	overpaid := 0
	for _, contactID := range ids {
		balance, err := l.balance.ContactBalance(ctx, contactID)
		if err != nil {
			return err
		}
		if balance.IsNegative() {
			overpaid++
			l.logger.Info("contact in credit",
				slog.Int64("contact_id", contactID),
				slog.String("balance", balance.String()))
		}
	}
	l.logger.Info("ledger integrity scan finished",
		slog.Int("contacts", len(ids)),
		slog.Int("duplicate_invoices", len(duplicates)),
		slog.Int("contacts_in_credit", overpaid))
	return nil
}

// Handle adapts Run to the asynq handler signature.
func (l *LedgerIntegrity) Handle(ctx context.Context, _ *asynq.Task) error {
	return l.Run(ctx)
}
