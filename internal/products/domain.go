package products

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Product is a catalogue item. CurrentStock mirrors the stock ledger and is
// owned by the stock engine; product CRUD never touches it.
type Product struct {
	ID           int64           `json:"id"`
	Name         string          `json:"name"`
	SKU          string          `json:"sku,omitempty"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	CurrentStock int64           `json:"current_stock"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// CreateInput carries fields for a new product.
type CreateInput struct {
	Name      string
	SKU       string
	UnitPrice decimal.Decimal
	ActorID   int64
}

// UpdateInput carries mutable catalogue fields.
type UpdateInput struct {
	Name      string
	SKU       string
	UnitPrice decimal.Decimal
	ActorID   int64
}

// ListFilter narrows product listings.
type ListFilter struct {
	Search  string
	Page    int
	PerPage int
}

var (
	// ErrProductNotFound indicates a missing product.
	ErrProductNotFound = errors.New("products: product not found")
	// ErrNameRequired indicates a blank product name.
	ErrNameRequired = errors.New("products: name required")
	// ErrInvalidPrice indicates a negative unit price.
	ErrInvalidPrice = errors.New("products: unit price must not be negative")
	// ErrProductReferenced indicates the product still has stock or visit rows.
	ErrProductReferenced = errors.New("products: product is referenced by transactions")
)
