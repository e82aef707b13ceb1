package contacts

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/medirep/medirep/internal/shared"
)

// RepositoryPort abstracts contact storage for the service.
type RepositoryPort interface {
	Insert(ctx context.Context, c Contact) (Contact, error)
	Get(ctx context.Context, id int64) (Contact, error)
	Update(ctx context.Context, c Contact) (Contact, error)
	Delete(ctx context.Context, id int64) error
	List(ctx context.Context, filter ListFilter) ([]Contact, int, error)
}

// BalancePort exposes the ledger's balance lookup so contact views can show
// what each account holder owes.
type BalancePort interface {
	ContactBalance(ctx context.Context, contactID int64) (decimal.Decimal, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service owns the contact directory.
type Service struct {
	repo    RepositoryPort
	balance BalancePort
	audit   AuditPort
}

// NewService builds Service.
func NewService(repo RepositoryPort, balance BalancePort, audit AuditPort) *Service {
	return &Service{repo: repo, balance: balance, audit: audit}
}

// ContactWithBalance decorates a contact with its current ledger balance.
type ContactWithBalance struct {
	Contact
	Balance decimal.Decimal `json:"balance"`
}

// Create validates and stores a new contact.
func (s *Service) Create(ctx context.Context, input CreateInput) (Contact, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return Contact{}, ErrNameRequired
	}
	if !input.Type.Known() {
		return Contact{}, fmt.Errorf("%w: %q", ErrUnknownType, input.Type)
	}
	contact, err := s.repo.Insert(ctx, Contact{
		Name:    name,
		Type:    input.Type,
		Phone:   strings.TrimSpace(input.Phone),
		Address: strings.TrimSpace(input.Address),
	})
	if err != nil {
		return Contact{}, err
	}
	s.record(ctx, input.ActorID, "contacts.create", contact)
	return contact, nil
}

// Get returns one contact.
func (s *Service) Get(ctx context.Context, id int64) (Contact, error) {
	return s.repo.Get(ctx, id)
}

// GetWithBalance returns the contact alongside its ledger balance.
func (s *Service) GetWithBalance(ctx context.Context, id int64) (ContactWithBalance, error) {
	contact, err := s.repo.Get(ctx, id)
	if err != nil {
		return ContactWithBalance{}, err
	}
	out := ContactWithBalance{Contact: contact, Balance: decimal.Zero}
	if s.balance != nil {
		balance, err := s.balance.ContactBalance(ctx, id)
		if err != nil {
			return ContactWithBalance{}, errors.Join(shared.ErrFetchFailed, err)
		}
		out.Balance = balance
	}
	return out, nil
}

// Update validates and rewrites an existing contact.
func (s *Service) Update(ctx context.Context, id int64, input UpdateInput) (Contact, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return Contact{}, ErrNameRequired
	}
	if !input.Type.Known() {
		return Contact{}, fmt.Errorf("%w: %q", ErrUnknownType, input.Type)
	}
	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return Contact{}, err
	}
	current.Name = name
	current.Type = input.Type
	current.Phone = strings.TrimSpace(input.Phone)
	current.Address = strings.TrimSpace(input.Address)
	updated, err := s.repo.Update(ctx, current)
	if err != nil {
		return Contact{}, err
	}
	s.record(ctx, input.ActorID, "contacts.update", updated)
	return updated, nil
}

// Delete removes the contact from the directory.
func (s *Service) Delete(ctx context.Context, id int64, actorID int64) error {
	contact, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.record(ctx, actorID, "contacts.delete", contact)
	return nil
}

// List returns a page of contacts with pagination metadata.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Contact, shared.Pagination, error) {
	if filter.Type != "" && !filter.Type.Known() {
		return nil, shared.Pagination{}, fmt.Errorf("%w: %q", ErrUnknownType, filter.Type)
	}
	items, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, shared.Pagination{}, errors.Join(shared.ErrFetchFailed, err)
	}
	return items, shared.NewPagination(filter.Page, filter.PerPage, total), nil
}

func (s *Service) record(ctx context.Context, actorID int64, action string, contact Contact) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "contact",
		EntityID: fmt.Sprintf("%d", contact.ID),
		Meta:     map[string]any{"name": contact.Name, "contact_type": string(contact.Type)},
	})
}
