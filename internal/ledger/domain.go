package ledger

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/medirep/medirep/internal/shared"
)

// SourceType categorises the origin of a ledger entry.
type SourceType string

const (
	// SourceVisit marks entries generated from a visit's sales.
	SourceVisit SourceType = "visit"
	// SourceCash marks standalone payments and adjustments.
	SourceCash SourceType = "cash"
)

// Entry is one immutable row of a contact's financial ledger. Exactly one of
// Debit/Credit is non-zero by convention: debits record money the contact
// owes the business, credits record money received or credited back.
type Entry struct {
	ID        int64      `json:"id"`
	ContactID int64      `json:"contact_id"`
	EntryDate time.Time  `json:"entry_date"`
	CreatedAt time.Time  `json:"created_at"`
	Source    SourceType `json:"source_type"`
	// SourceID links visit entries back to the visit's public code; empty for
	// cash entries and for reversals of deleted visits.
	SourceID      string          `json:"source_id,omitempty"`
	Debit         decimal.Decimal `json:"debit"`
	Credit        decimal.Decimal `json:"credit"`
	InvoiceNumber string          `json:"invoice_number"`
	Description   string          `json:"description,omitempty"`
}

// ChronoKey returns the balance ordering key for the entry.
func (e Entry) ChronoKey() shared.ChronoKey {
	return shared.NewChronoKey(e.EntryDate, e.CreatedAt)
}

// Valid reports whether the entry participates in balance computation.
// Entries carrying a negative side are malformed and are skipped.
func (e Entry) Valid() bool {
	return !e.Debit.IsNegative() && !e.Credit.IsNegative()
}

// EntryWithBalance decorates an entry with its cumulative running balance.
type EntryWithBalance struct {
	Entry
	RunningBalance decimal.Decimal `json:"running_balance"`
}

// PaymentInput describes a standalone cash payment from a contact.
type PaymentInput struct {
	ContactID   int64
	Amount      decimal.Decimal
	EntryDate   time.Time
	Method      string
	Description string
	ActorID     int64
}

// AdjustmentInput describes a standalone balance correction.
type AdjustmentInput struct {
	ContactID int64
	Amount    decimal.Decimal
	EntryDate time.Time
	Reason    string
	IsDebit   bool
	ActorID   int64
}

var (
	// ErrContactRequired indicates a missing account-holder reference.
	ErrContactRequired = errors.New("ledger: contact required")
	// ErrInvalidAmount indicates a non-positive amount.
	ErrInvalidAmount = errors.New("ledger: amount must be positive")
	// ErrDuplicateInvoice indicates the allocated invoice number collided
	// with a concurrent allocation.
	ErrDuplicateInvoice = errors.New("ledger: duplicate invoice number")
)
