package visits

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/medirep/medirep/internal/ledger"
	"github.com/medirep/medirep/internal/shared"
	"github.com/medirep/medirep/internal/stock"
)

// RepositoryPort abstracts visit storage for the service.
type RepositoryPort interface {
	Insert(ctx context.Context, v Visit) (Visit, error)
	Update(ctx context.Context, v Visit) (Visit, error)
	Delete(ctx context.Context, id int64) error
	Get(ctx context.Context, id int64) (Visit, error)
	List(ctx context.Context, filter ListFilter) ([]Visit, int, error)
}

// StockPort is the slice of the stock engine visits drive.
type StockPort interface {
	ApplyVisitSales(ctx context.Context, input stock.VisitSalesInput) error
	ReverseVisitSales(ctx context.Context, input stock.VisitSalesInput) error
	ReplaceVisitSales(ctx context.Context, input stock.ReplaceVisitSalesInput) error
}

// LedgerPort is the slice of the account ledger visits drive.
type LedgerPort interface {
	RecordVisitCharge(ctx context.Context, input ledger.VisitChargeInput) (ledger.Entry, error)
	ReverseVisitCharge(ctx context.Context, input ledger.VisitChargeInput) (ledger.Entry, error)
	ReverseDeletedVisitCharge(ctx context.Context, input ledger.VisitChargeInput) (ledger.Entry, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service orchestrates visit CRUD across the visit table, the stock ledger
// and the account ledger. The three writes are sequential; each engine call
// is atomic on its own and the nightly reconcile job repairs a stock cache
// left behind by a mid-sequence failure.
type Service struct {
	repo   RepositoryPort
	stock  StockPort
	ledger LedgerPort
	audit  AuditPort
	now    func() time.Time
}

// NewService builds Service.
func NewService(repo RepositoryPort, stockPort StockPort, ledgerPort LedgerPort, audit AuditPort) *Service {
	return &Service{repo: repo, stock: stockPort, ledger: ledgerPort, audit: audit, now: time.Now}
}

// WithNow overrides the clock, used by tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Create stores the visit, appends its sales to the stock log and debits the
// contact for the total.
func (s *Service) Create(ctx context.Context, input CreateInput) (Visit, error) {
	if input.ContactID == 0 {
		return Visit{}, ErrContactRequired
	}
	lines, total, err := buildLines(input.Lines)
	if err != nil {
		return Visit{}, err
	}
	visit := Visit{
		Code:      uuid.New(),
		ContactID: input.ContactID,
		VisitDate: s.visitDate(input.VisitDate),
		Notes:     input.Notes,
		Total:     total,
		Lines:     lines,
	}
	visit, err = s.repo.Insert(ctx, visit)
	if err != nil {
		return Visit{}, err
	}
	if len(lines) > 0 {
		if err := s.stock.ApplyVisitSales(ctx, stock.VisitSalesInput{
			TxDate: visit.VisitDate,
			Ref:    visit.Code.String(),
			Lines:  saleLines(lines),
			OpKey:  opKey(input.OpKey, "stock"),
		}); err != nil {
			return Visit{}, fmt.Errorf("visit %s stored but stock update failed: %w", visit.Code, err)
		}
	}
	if total.IsPositive() {
		if _, err := s.ledger.RecordVisitCharge(ctx, ledger.VisitChargeInput{
			ContactID: visit.ContactID,
			VisitCode: visit.Code.String(),
			EntryDate: visit.VisitDate,
			Amount:    total,
			ActorID:   input.ActorID,
		}); err != nil {
			return Visit{}, fmt.Errorf("visit %s stored but ledger charge failed: %w", visit.Code, err)
		}
	}
	s.record(ctx, input.ActorID, "visits.create", visit)
	return visit, nil
}

// Update replaces the visit's state and runs the reverse-then-reapply
// protocol against both engines: old sale lines are reversed and the new set
// applied, the old charge is credited back and the new total debited. All
// resulting rows carry the new visit date.
func (s *Service) Update(ctx context.Context, id int64, input UpdateInput) (Visit, error) {
	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return Visit{}, err
	}
	lines, total, err := buildLines(input.Lines)
	if err != nil {
		return Visit{}, err
	}
	updated := current
	updated.VisitDate = s.visitDate(input.VisitDate)
	updated.Notes = input.Notes
	updated.Total = total
	updated.Lines = lines

	updated, err = s.repo.Update(ctx, updated)
	if err != nil {
		return Visit{}, err
	}
	if len(current.Lines) > 0 || len(lines) > 0 {
		if err := s.stock.ReplaceVisitSales(ctx, stock.ReplaceVisitSalesInput{
			TxDate:   updated.VisitDate,
			Ref:      updated.Code.String(),
			OldLines: saleLines(current.Lines),
			NewLines: saleLines(lines),
			OpKey:    opKey(input.OpKey, "stock"),
		}); err != nil {
			return Visit{}, fmt.Errorf("visit %s updated but stock replace failed: %w", updated.Code, err)
		}
	}
	if current.Total.IsPositive() {
		if _, err := s.ledger.ReverseVisitCharge(ctx, ledger.VisitChargeInput{
			ContactID: updated.ContactID,
			VisitCode: updated.Code.String(),
			EntryDate: updated.VisitDate,
			Amount:    current.Total,
			ActorID:   input.ActorID,
		}); err != nil {
			return Visit{}, fmt.Errorf("visit %s updated but ledger reversal failed: %w", updated.Code, err)
		}
	}
	if total.IsPositive() {
		if _, err := s.ledger.RecordVisitCharge(ctx, ledger.VisitChargeInput{
			ContactID: updated.ContactID,
			VisitCode: updated.Code.String(),
			EntryDate: updated.VisitDate,
			Amount:    total,
			ActorID:   input.ActorID,
		}); err != nil {
			return Visit{}, fmt.Errorf("visit %s updated but ledger charge failed: %w", updated.Code, err)
		}
	}
	s.record(ctx, input.ActorID, "visits.update", updated)
	return updated, nil
}

// Delete reverses the visit's sales in the stock log, removes the visit row
// and credits the contact back. The reversals are dated today, not the visit
// date; the original rows stay untouched.
func (s *Service) Delete(ctx context.Context, id int64, opKeyStr string, actorID int64) error {
	visit, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	today := s.visitDate(time.Time{})
	if len(visit.Lines) > 0 {
		if err := s.stock.ReverseVisitSales(ctx, stock.VisitSalesInput{
			TxDate: today,
			Ref:    visit.Code.String(),
			Lines:  saleLines(visit.Lines),
			OpKey:  opKey(opKeyStr, "stock"),
		}); err != nil {
			return fmt.Errorf("visit %s stock reversal failed: %w", visit.Code, err)
		}
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	if visit.Total.IsPositive() {
		if _, err := s.ledger.ReverseDeletedVisitCharge(ctx, ledger.VisitChargeInput{
			ContactID: visit.ContactID,
			EntryDate: today,
			Amount:    visit.Total,
			ActorID:   actorID,
		}); err != nil {
			return fmt.Errorf("visit %s deleted but ledger reversal failed: %w", visit.Code, err)
		}
	}
	s.record(ctx, actorID, "visits.delete", visit)
	return nil
}

// Get returns one visit with its lines.
func (s *Service) Get(ctx context.Context, id int64) (Visit, error) {
	return s.repo.Get(ctx, id)
}

// List returns a page of visits with pagination metadata.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Visit, shared.Pagination, error) {
	items, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, shared.Pagination{}, errors.Join(shared.ErrFetchFailed, err)
	}
	return items, shared.NewPagination(filter.Page, filter.PerPage, total), nil
}

func buildLines(inputs []LineInput) ([]Line, decimal.Decimal, error) {
	lines := make([]Line, 0, len(inputs))
	total := decimal.Zero
	for _, in := range inputs {
		if in.ProductID == 0 || in.Quantity <= 0 || in.UnitPrice.IsNegative() {
			return nil, decimal.Zero, ErrInvalidLine
		}
		amount := in.UnitPrice.Mul(decimal.NewFromInt(in.Quantity))
		lines = append(lines, Line{
			ProductID: in.ProductID,
			Quantity:  in.Quantity,
			UnitPrice: in.UnitPrice,
			Amount:    amount,
		})
		total = total.Add(amount)
	}
	return lines, total, nil
}

func saleLines(lines []Line) []stock.SaleLine {
	out := make([]stock.SaleLine, 0, len(lines))
	for _, l := range lines {
		out = append(out, stock.SaleLine{ProductID: l.ProductID, Quantity: l.Quantity})
	}
	return out
}

// opKey scopes a caller-supplied idempotency key per engine so the stock and
// ledger legs of one operation don't collide on the same row.
func opKey(key, scope string) string {
	if key == "" {
		return ""
	}
	return key + ":" + scope
}

func (s *Service) visitDate(date time.Time) time.Time {
	if date.IsZero() {
		date = s.now()
	}
	d := date.UTC()
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
}

func (s *Service) record(ctx context.Context, actorID int64, action string, visit Visit) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "visit",
		EntityID: visit.Code.String(),
		Meta: map[string]any{
			"contact_id": visit.ContactID,
			"total":      visit.Total.String(),
			"lines":      len(visit.Lines),
		},
	})
}
