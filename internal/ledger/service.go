package ledger

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/medirep/medirep/internal/shared"
)

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	ListEntries(ctx context.Context, contactID int64) ([]Entry, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// MetricsPort observes fallback invoice allocations.
type MetricsPort interface {
	CountInvoiceFallback()
}

// Service maintains the append-mostly financial ledger: it allocates invoice
// numbers, appends entries and derives running balances.
type Service struct {
	repo    RepositoryPort
	audit   AuditPort
	metrics MetricsPort
	now     func() time.Time
	rng     *rand.Rand
	sleep   func(time.Duration)
	printer *message.Printer
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort, metrics MetricsPort) *Service {
	return &Service{
		repo:    repo,
		audit:   audit,
		metrics: metrics,
		now:     time.Now,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
		sleep:   time.Sleep,
		printer: message.NewPrinter(language.English),
	}
}

// WithNow overrides the clock, used by tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// WithSleep overrides the retry backoff sleeper, used by tests.
func (s *Service) WithSleep(sleep func(time.Duration)) {
	if sleep != nil {
		s.sleep = sleep
	}
}

// RecordPayment appends a credit entry for a standalone cash payment.
func (s *Service) RecordPayment(ctx context.Context, input PaymentInput) (Entry, error) {
	if input.ContactID == 0 {
		return Entry{}, ErrContactRequired
	}
	if !input.Amount.IsPositive() {
		return Entry{}, ErrInvalidAmount
	}
	description := input.Description
	if description == "" {
		description = s.printer.Sprintf("Payment of %.2f received", input.Amount.InexactFloat64())
		if input.Method != "" {
			description += " via " + input.Method
		}
	}
	entry, err := s.appendEntry(ctx, Entry{
		ContactID:   input.ContactID,
		EntryDate:   s.entryDate(input.EntryDate),
		Source:      SourceCash,
		Credit:      input.Amount,
		Debit:       decimal.Zero,
		Description: description,
	})
	if err != nil {
		return Entry{}, err
	}
	s.record(ctx, input.ActorID, "ledger.payment", entry)
	return entry, nil
}

// RecordAdjustment appends a one-sided correction entry.
func (s *Service) RecordAdjustment(ctx context.Context, input AdjustmentInput) (Entry, error) {
	if input.ContactID == 0 {
		return Entry{}, ErrContactRequired
	}
	if !input.Amount.IsPositive() {
		return Entry{}, ErrInvalidAmount
	}
	entry := Entry{
		ContactID:   input.ContactID,
		EntryDate:   s.entryDate(input.EntryDate),
		Source:      SourceCash,
		Debit:       decimal.Zero,
		Credit:      decimal.Zero,
		Description: input.Reason,
	}
	if input.IsDebit {
		entry.Debit = input.Amount
	} else {
		entry.Credit = input.Amount
	}
	inserted, err := s.appendEntry(ctx, entry)
	if err != nil {
		return Entry{}, err
	}
	s.record(ctx, input.ActorID, "ledger.adjustment", inserted)
	return inserted, nil
}

// VisitChargeInput carries a visit's sale total into the ledger.
type VisitChargeInput struct {
	ContactID int64
	VisitCode string
	EntryDate time.Time
	Amount    decimal.Decimal
	ActorID   int64
}

// RecordVisitCharge appends the debit entry for a visit's sale total.
func (s *Service) RecordVisitCharge(ctx context.Context, input VisitChargeInput) (Entry, error) {
	if input.ContactID == 0 {
		return Entry{}, ErrContactRequired
	}
	if !input.Amount.IsPositive() {
		return Entry{}, ErrInvalidAmount
	}
	entry, err := s.appendEntry(ctx, Entry{
		ContactID:   input.ContactID,
		EntryDate:   s.entryDate(input.EntryDate),
		Source:      SourceVisit,
		SourceID:    input.VisitCode,
		Debit:       input.Amount,
		Credit:      decimal.Zero,
		Description: "Sale during visit",
	})
	if err != nil {
		return Entry{}, err
	}
	s.record(ctx, input.ActorID, "ledger.visit_charge", entry)
	return entry, nil
}

// ReverseVisitCharge appends the credit entry cancelling a visit's prior
// charge, used when the visit is edited.
func (s *Service) ReverseVisitCharge(ctx context.Context, input VisitChargeInput) (Entry, error) {
	if input.ContactID == 0 {
		return Entry{}, ErrContactRequired
	}
	if !input.Amount.IsPositive() {
		return Entry{}, ErrInvalidAmount
	}
	entry, err := s.appendEntry(ctx, Entry{
		ContactID:   input.ContactID,
		EntryDate:   s.entryDate(input.EntryDate),
		Source:      SourceVisit,
		SourceID:    input.VisitCode,
		Debit:       decimal.Zero,
		Credit:      input.Amount,
		Description: "Reversal of visit sale",
	})
	if err != nil {
		return Entry{}, err
	}
	s.record(ctx, input.ActorID, "ledger.visit_reversal", entry)
	return entry, nil
}

// ReverseDeletedVisitCharge appends the credit reversal for a visit that no
// longer exists; the entry carries no source link.
func (s *Service) ReverseDeletedVisitCharge(ctx context.Context, input VisitChargeInput) (Entry, error) {
	if input.ContactID == 0 {
		return Entry{}, ErrContactRequired
	}
	if !input.Amount.IsPositive() {
		return Entry{}, ErrInvalidAmount
	}
	entry, err := s.appendEntry(ctx, Entry{
		ContactID:   input.ContactID,
		EntryDate:   s.entryDate(input.EntryDate),
		Source:      SourceCash,
		Debit:       decimal.Zero,
		Credit:      input.Amount,
		Description: "Reversal for deleted visit",
	})
	if err != nil {
		return Entry{}, err
	}
	s.record(ctx, input.ActorID, "ledger.visit_delete_reversal", entry)
	return entry, nil
}

// Statement returns the contact's entries with running balances attached.
func (s *Service) Statement(ctx context.Context, contactID int64) ([]EntryWithBalance, error) {
	if contactID == 0 {
		return nil, ErrContactRequired
	}
	entries, err := s.repo.ListEntries(ctx, contactID)
	if err != nil {
		return nil, errors.Join(shared.ErrFetchFailed, err)
	}
	return RunningBalance(entries, contactID), nil
}

// ContactBalance returns the contact's current balance.
func (s *Service) ContactBalance(ctx context.Context, contactID int64) (decimal.Decimal, error) {
	statement, err := s.Statement(ctx, contactID)
	if err != nil {
		return decimal.Zero, err
	}
	if len(statement) == 0 {
		return decimal.Zero, nil
	}
	return statement[len(statement)-1].RunningBalance, nil
}

// appendEntry allocates an invoice number and inserts the entry. The read of
// the month's last number and the insert share a transaction; a collision
// surfaces as a unique violation and triggers a re-read with linear backoff.
// After three collisions the allocator falls back to the timestamp form.
func (s *Service) appendEntry(ctx context.Context, entry Entry) (Entry, error) {
	prefix := MonthPrefix(s.now())
	var inserted Entry
	for attempt := 1; attempt <= allocationAttempts; attempt++ {
		err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			last, err := tx.LastInvoiceNumber(ctx, prefix)
			if err != nil {
				return err
			}
			entry.InvoiceNumber = NextInvoiceNumber(prefix, last)
			inserted, err = tx.InsertEntry(ctx, entry)
			return err
		})
		if err == nil {
			return inserted, nil
		}
		if !errors.Is(err, ErrDuplicateInvoice) {
			return Entry{}, err
		}
		s.sleep(allocationBackoff * time.Duration(attempt))
	}

	entry.InvoiceNumber = FallbackInvoiceNumber(s.now(), s.rng)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		inserted, err = tx.InsertEntry(ctx, entry)
		return err
	})
	if err != nil {
		return Entry{}, err
	}
	// Counted only once the fallback row is committed; a failed insert is an
	// error, not a fallback allocation.
	if s.metrics != nil {
		s.metrics.CountInvoiceFallback()
	}
	return inserted, nil
}

func (s *Service) entryDate(date time.Time) time.Time {
	if date.IsZero() {
		date = s.now()
	}
	d := date.UTC()
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
}

func (s *Service) record(ctx context.Context, actorID int64, action string, entry Entry) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "ledger_entry",
		EntityID: fmt.Sprintf("%d", entry.ID),
		Meta: map[string]any{
			"contact_id":     entry.ContactID,
			"invoice_number": entry.InvoiceNumber,
			"debit":          entry.Debit.String(),
			"credit":         entry.Credit.String(),
		},
	})
}
