package products

import (
	"context"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type memoryRepo struct {
	products   map[int64]Product
	nextID     int64
	referenced map[int64]bool
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{products: make(map[int64]Product), referenced: make(map[int64]bool)}
}

func (r *memoryRepo) Insert(ctx context.Context, p Product) (Product, error) {
	r.nextID++
	p.ID = r.nextID
	p.CreatedAt = time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	p.UpdatedAt = p.CreatedAt
	r.products[p.ID] = p
	return p, nil
}

func (r *memoryRepo) Get(ctx context.Context, id int64) (Product, error) {
	p, ok := r.products[id]
	if !ok {
		return Product{}, ErrProductNotFound
	}
	return p, nil
}

func (r *memoryRepo) Update(ctx context.Context, p Product) (Product, error) {
	if _, ok := r.products[p.ID]; !ok {
		return Product{}, ErrProductNotFound
	}
	r.products[p.ID] = p
	return p, nil
}

func (r *memoryRepo) Delete(ctx context.Context, id int64) error {
	if _, ok := r.products[id]; !ok {
		return ErrProductNotFound
	}
	if r.referenced[id] {
		return ErrProductReferenced
	}
	delete(r.products, id)
	return nil
}

func (r *memoryRepo) List(ctx context.Context, filter ListFilter) ([]Product, int, error) {
	var all []Product
	for _, p := range r.products {
		if filter.Search != "" && !strings.Contains(strings.ToLower(p.Name), strings.ToLower(filter.Search)) {
			continue
		}
		all = append(all, p)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Name < all[j].Name })
	return all, len(all), nil
}

func TestCreateValidatesInput(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil)

	_, err := svc.Create(context.Background(), CreateInput{Name: " "})
	require.ErrorIs(t, err, ErrNameRequired)

	_, err = svc.Create(context.Background(), CreateInput{Name: "Paracetamol 500", UnitPrice: decimal.NewFromInt(-1)})
	require.ErrorIs(t, err, ErrInvalidPrice)
}

func TestCreateStartsWithZeroStock(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil)

	product, err := svc.Create(context.Background(), CreateInput{
		Name:      "Paracetamol 500",
		SKU:       "PARA-500",
		UnitPrice: decimal.NewFromFloat(12.50),
	})
	require.NoError(t, err)
	require.Zero(t, product.CurrentStock)
	require.True(t, product.UnitPrice.Equal(decimal.NewFromFloat(12.50)))
}

func TestUpdateNeverTouchesStock(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()

	product, err := svc.Create(ctx, CreateInput{Name: "Paracetamol 500", UnitPrice: decimal.NewFromInt(10)})
	require.NoError(t, err)

	// Simulate the stock engine having replayed the log.
	p := repo.products[product.ID]
	p.CurrentStock = 40
	repo.products[product.ID] = p

	updated, err := svc.Update(ctx, product.ID, UpdateInput{Name: "Paracetamol 650", UnitPrice: decimal.NewFromInt(14)})
	require.NoError(t, err)
	require.Equal(t, "Paracetamol 650", updated.Name)
	require.EqualValues(t, 40, updated.CurrentStock)
}

func TestDeleteReferencedProduct(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()

	product, err := svc.Create(ctx, CreateInput{Name: "Paracetamol 500"})
	require.NoError(t, err)
	repo.referenced[product.ID] = true

	require.ErrorIs(t, svc.Delete(ctx, product.ID, 0), ErrProductReferenced)
}

func TestListSearch(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateInput{Name: "Paracetamol 500"})
	require.NoError(t, err)
	_, err = svc.Create(ctx, CreateInput{Name: "Amoxicillin 250"})
	require.NoError(t, err)

	items, pagination, err := svc.List(ctx, ListFilter{Search: "amox"})
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, "Amoxicillin 250", items[0].Name)
	require.Equal(t, 1, pagination.Total)
}
