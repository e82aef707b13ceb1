package stock

import (
	"errors"
	"time"

	"github.com/medirep/medirep/internal/shared"
)

// TransactionType enumerates supported stock movements.
type TransactionType string

const (
	// TypeOpening records the initial stock level of a product.
	TypeOpening TransactionType = "opening"
	// TypePurchase represents replenishment from a supplier.
	TypePurchase TransactionType = "purchase"
	// TypeSale represents stock sold during a visit; stored negative.
	TypeSale TransactionType = "sale"
	// TypeAdjustment represents a manual correction; signed.
	TypeAdjustment TransactionType = "adjustment"
	// TypeSaleReversal undoes a prior sale; stored positive.
	TypeSaleReversal TransactionType = "sale_reversal"
)

// Transaction is one immutable row of the append-only stock log. Corrections
// are made by appending offsetting rows, never by editing prior ones.
type Transaction struct {
	ID        int64           `json:"id"`
	ProductID int64           `json:"product_id"`
	Type      TransactionType `json:"transaction_type"`
	// Quantity is signed: positive increases stock, negative decreases it.
	// Sales are stored negative, reversals positive.
	Quantity int64 `json:"quantity"`
	// TxDate is the calendar date the movement is attributed to; it may
	// differ from CreatedAt, which only breaks ties within a date.
	TxDate    time.Time `json:"transaction_date"`
	CreatedAt time.Time `json:"created_at"`
	RefType   string    `json:"reference_type,omitempty"`
	RefID     string    `json:"reference_id,omitempty"`
	Note      string    `json:"note,omitempty"`
}

// ChronoKey returns the replay ordering key for the transaction.
func (t Transaction) ChronoKey() shared.ChronoKey {
	return shared.NewChronoKey(t.TxDate, t.CreatedAt)
}

// Summary is the point-in-time result of replaying a product's log.
type Summary struct {
	Opening   int64 `json:"opening_stock"`
	Purchases int64 `json:"purchases"`
	Sales     int64 `json:"sales"`
	Closing   int64 `json:"closing_stock"`
}

// SaleLine is one product/quantity pair of a visit's sales.
type SaleLine struct {
	ProductID int64
	Quantity  int64
}

// AddPurchaseInput describes a manual stock addition.
type AddPurchaseInput struct {
	ProductID int64
	Quantity  int64
	Note      string
	ActorID   int64
}

// SetLevelInput describes a manual stock correction to an absolute level.
type SetLevelInput struct {
	ProductID int64
	Quantity  int64
	Note      string
	ActorID   int64
}

var (
	// ErrInvalidQuantity indicates a non-positive quantity where a positive
	// one is required.
	ErrInvalidQuantity = errors.New("stock: quantity must be a positive integer")
	// ErrProductRequired indicates a missing product reference.
	ErrProductRequired = errors.New("stock: product required")
	// ErrUnknownType indicates a transaction type outside the known set.
	ErrUnknownType = errors.New("stock: unknown transaction type")
)

// KnownType reports whether t is one of the replayable transaction types.
func KnownType(t TransactionType) bool {
	switch t {
	case TypeOpening, TypePurchase, TypeSale, TypeAdjustment, TypeSaleReversal:
		return true
	}
	return false
}
