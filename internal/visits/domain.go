package visits

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Line is one product sold during a visit.
type Line struct {
	ID        int64           `json:"id"`
	VisitID   int64           `json:"visit_id"`
	ProductID int64           `json:"product_id"`
	Quantity  int64           `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Amount    decimal.Decimal `json:"amount"`
}

// Visit is one field call on a contact. Code is the stable public reference
// that stock transactions and ledger entries point back to. When a visit is
// deleted its ledger rows stay on the books with the link nulled out.
type Visit struct {
	ID        int64           `json:"id"`
	Code      uuid.UUID       `json:"code"`
	ContactID int64           `json:"contact_id"`
	VisitDate time.Time       `json:"visit_date"`
	Notes     string          `json:"notes,omitempty"`
	Total     decimal.Decimal `json:"total"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
	Lines     []Line          `json:"lines"`
}

// LineInput is one requested sale line; Amount is derived, never accepted.
type LineInput struct {
	ProductID int64
	Quantity  int64
	UnitPrice decimal.Decimal
}

// CreateInput carries fields for a new visit.
type CreateInput struct {
	ContactID int64
	VisitDate time.Time
	Notes     string
	Lines     []LineInput
	OpKey     string
	ActorID   int64
}

// UpdateInput carries the full replacement state for an edited visit.
type UpdateInput struct {
	VisitDate time.Time
	Notes     string
	Lines     []LineInput
	OpKey     string
	ActorID   int64
}

// ListFilter narrows visit listings.
type ListFilter struct {
	ContactID int64
	From      time.Time
	To        time.Time
	Page      int
	PerPage   int
}

var (
	// ErrVisitNotFound indicates a missing visit.
	ErrVisitNotFound = errors.New("visits: visit not found")
	// ErrContactRequired indicates a missing contact reference.
	ErrContactRequired = errors.New("visits: contact required")
	// ErrInvalidLine indicates a sale line with no product or a non-positive
	// quantity or price.
	ErrInvalidLine = errors.New("visits: invalid sale line")
)
