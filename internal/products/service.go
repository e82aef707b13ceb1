package products

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/medirep/medirep/internal/shared"
)

// RepositoryPort abstracts product storage for the service.
type RepositoryPort interface {
	Insert(ctx context.Context, p Product) (Product, error)
	Get(ctx context.Context, id int64) (Product, error)
	Update(ctx context.Context, p Product) (Product, error)
	Delete(ctx context.Context, id int64) error
	List(ctx context.Context, filter ListFilter) ([]Product, int, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service owns the product catalogue. It never writes current_stock; stock
// mutation is the stock engine's job.
type Service struct {
	repo  RepositoryPort
	audit AuditPort
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit}
}

// Create validates and stores a new product.
func (s *Service) Create(ctx context.Context, input CreateInput) (Product, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return Product{}, ErrNameRequired
	}
	if input.UnitPrice.IsNegative() {
		return Product{}, ErrInvalidPrice
	}
	product, err := s.repo.Insert(ctx, Product{
		Name:      name,
		SKU:       strings.TrimSpace(input.SKU),
		UnitPrice: input.UnitPrice,
	})
	if err != nil {
		return Product{}, err
	}
	s.record(ctx, input.ActorID, "products.create", product)
	return product, nil
}

// Get returns one product.
func (s *Service) Get(ctx context.Context, id int64) (Product, error) {
	return s.repo.Get(ctx, id)
}

// Update rewrites catalogue fields for an existing product.
func (s *Service) Update(ctx context.Context, id int64, input UpdateInput) (Product, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return Product{}, ErrNameRequired
	}
	if input.UnitPrice.IsNegative() {
		return Product{}, ErrInvalidPrice
	}
	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return Product{}, err
	}
	current.Name = name
	current.SKU = strings.TrimSpace(input.SKU)
	current.UnitPrice = input.UnitPrice
	updated, err := s.repo.Update(ctx, current)
	if err != nil {
		return Product{}, err
	}
	s.record(ctx, input.ActorID, "products.update", updated)
	return updated, nil
}

// Delete removes the product when nothing references it.
func (s *Service) Delete(ctx context.Context, id int64, actorID int64) error {
	product, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.record(ctx, actorID, "products.delete", product)
	return nil
}

// List returns a page of products with pagination metadata.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Product, shared.Pagination, error) {
	items, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, shared.Pagination{}, errors.Join(shared.ErrFetchFailed, err)
	}
	return items, shared.NewPagination(filter.Page, filter.PerPage, total), nil
}

func (s *Service) record(ctx context.Context, actorID int64, action string, product Product) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "product",
		EntityID: fmt.Sprintf("%d", product.ID),
		Meta:     map[string]any{"name": product.Name, "sku": product.SKU},
	})
}
