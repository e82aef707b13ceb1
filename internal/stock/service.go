package stock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/medirep/medirep/internal/shared"
)

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	ListTransactions(ctx context.Context, productID int64, asOf time.Time) ([]Transaction, error)
	GetCurrentStock(ctx context.Context, productID int64) (int64, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// CachePort abstracts the summary cache.
type CachePort interface {
	Get(ctx context.Context, productID int64, asOf time.Time) (Summary, bool)
	Set(ctx context.Context, productID int64, asOf time.Time, s Summary)
	Invalidate(ctx context.Context, productID int64)
}

// IdempotencyPort guards visit-driven movements against double application.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// Service owns the stock log and the cached current_stock figure. Every
// mutation entry point appends to the log and recomputes the cache inside one
// transaction, so the cache is always a pure function of the log.
type Service struct {
	repo    RepositoryPort
	audit   AuditPort
	cache   CachePort
	idem    IdempotencyPort
	now     func() time.Time
	printer *message.Printer
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort, idem IdempotencyPort, cache CachePort) *Service {
	return &Service{
		repo:    repo,
		audit:   audit,
		cache:   cache,
		idem:    idem,
		now:     time.Now,
		printer: message.NewPrinter(language.English),
	}
}

// WithNow overrides the clock, used by tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// SummaryAsOf replays the product's log up to and including asOf. A store
// failure propagates as shared.ErrFetchFailed; an all-zero summary therefore
// always means "no movements", never "could not read".
func (s *Service) SummaryAsOf(ctx context.Context, productID int64, asOf time.Time) (Summary, error) {
	if productID == 0 {
		return Summary{}, ErrProductRequired
	}
	if s.cache != nil {
		if cached, ok := s.cache.Get(ctx, productID, asOf); ok {
			return cached, nil
		}
	}
	txs, err := s.repo.ListTransactions(ctx, productID, asOf)
	if err != nil {
		return Summary{}, errors.Join(shared.ErrFetchFailed, err)
	}
	summary := Summarize(txs)
	if s.cache != nil {
		s.cache.Set(ctx, productID, asOf, summary)
	}
	return summary, nil
}

// Transactions lists the product's log up to and including asOf, in replay
// order.
func (s *Service) Transactions(ctx context.Context, productID int64, asOf time.Time) ([]Transaction, error) {
	if productID == 0 {
		return nil, ErrProductRequired
	}
	txs, err := s.repo.ListTransactions(ctx, productID, asOf)
	if err != nil {
		return nil, errors.Join(shared.ErrFetchFailed, err)
	}
	return txs, nil
}

// CurrentStock reads the cached stock figure. The cache is valid only
// immediately after a recompute with no intervening appends; audits that need
// certainty should replay via SummaryAsOf.
func (s *Service) CurrentStock(ctx context.Context, productID int64) (int64, error) {
	return s.repo.GetCurrentStock(ctx, productID)
}

// Append inserts one immutable transaction and synchronises the cache.
func (s *Service) Append(ctx context.Context, tx Transaction) (Transaction, error) {
	if tx.ProductID == 0 {
		return Transaction{}, ErrProductRequired
	}
	if !KnownType(tx.Type) {
		return Transaction{}, fmt.Errorf("%w: %q", ErrUnknownType, tx.Type)
	}
	if tx.TxDate.IsZero() {
		tx.TxDate = s.today()
	}
	inserted := tx
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo TxRepository) error {
		var err error
		inserted, err = repo.InsertTransaction(ctx, tx)
		if err != nil {
			return err
		}
		return s.recompute(ctx, repo, tx.ProductID)
	})
	if err != nil {
		return Transaction{}, err
	}
	s.invalidate(ctx, tx.ProductID)
	s.record(ctx, "stock.append", inserted)
	return inserted, nil
}

// RecalculateProduct replays the log as of today and rewrites current_stock.
// It is the recovery path for any divergence between log and cache.
func (s *Service) RecalculateProduct(ctx context.Context, productID int64) (int64, error) {
	if productID == 0 {
		return 0, ErrProductRequired
	}
	var closing int64
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo TxRepository) error {
		txs, err := repo.ListTransactions(ctx, productID, s.today())
		if err != nil {
			return err
		}
		closing = Summarize(txs).Closing
		return repo.UpdateCurrentStock(ctx, productID, closing)
	})
	if err != nil {
		return 0, err
	}
	s.invalidate(ctx, productID)
	return closing, nil
}

// AddPurchase records replenishment dated today.
func (s *Service) AddPurchase(ctx context.Context, input AddPurchaseInput) (Transaction, error) {
	if input.Quantity <= 0 {
		return Transaction{}, ErrInvalidQuantity
	}
	return s.Append(ctx, Transaction{
		ProductID: input.ProductID,
		Type:      TypePurchase,
		Quantity:  input.Quantity,
		TxDate:    s.today(),
		RefType:   "manual",
		Note:      input.Note,
	})
}

// SetLevel corrects a product's stock to an absolute level by appending one
// signed adjustment for the difference. Setting the current level is a no-op.
func (s *Service) SetLevel(ctx context.Context, input SetLevelInput) error {
	if input.ProductID == 0 {
		return ErrProductRequired
	}
	if input.Quantity < 0 {
		return ErrInvalidQuantity
	}
	changed := false
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo TxRepository) error {
		current, err := repo.GetCurrentStockForUpdate(ctx, input.ProductID)
		if err != nil {
			return err
		}
		difference := input.Quantity - current
		if difference == 0 {
			return nil
		}
		note := s.printer.Sprintf("Stock corrected from %d to %d", current, input.Quantity)
		if input.Note != "" {
			note = note + ": " + input.Note
		}
		if _, err := repo.InsertTransaction(ctx, Transaction{
			ProductID: input.ProductID,
			Type:      TypeAdjustment,
			Quantity:  difference,
			TxDate:    s.today(),
			RefType:   "manual",
			Note:      note,
		}); err != nil {
			return err
		}
		changed = true
		return s.recompute(ctx, repo, input.ProductID)
	})
	if err != nil {
		return err
	}
	if changed {
		s.invalidate(ctx, input.ProductID)
		s.record(ctx, "stock.set_level", Transaction{ProductID: input.ProductID, Quantity: input.Quantity})
	}
	return nil
}

// VisitSalesInput carries a visit's sale lines into the stock log.
type VisitSalesInput struct {
	TxDate time.Time
	Ref    string
	Lines  []SaleLine
	OpKey  string
}

// ApplyVisitSales appends one sale per line, dated to the visit date, and
// recomputes every affected product.
func (s *Service) ApplyVisitSales(ctx context.Context, input VisitSalesInput) error {
	return s.applyLines(ctx, input, TypeSale, -1)
}

// ReverseVisitSales appends one sale_reversal per original line. Reversals
// undo prior sales in the replay; the sale rows themselves are never touched.
func (s *Service) ReverseVisitSales(ctx context.Context, input VisitSalesInput) error {
	return s.applyLines(ctx, input, TypeSaleReversal, 1)
}

// ReplaceVisitSalesInput describes a visit edit: reverse the old lines, apply
// the new set, all attributed to the (possibly changed) visit date.
type ReplaceVisitSalesInput struct {
	TxDate   time.Time
	Ref      string
	OldLines []SaleLine
	NewLines []SaleLine
	OpKey    string
}

// ReplaceVisitSales executes the reverse-then-reapply protocol in a single
// transaction and recomputes the union of affected products.
func (s *Service) ReplaceVisitSales(ctx context.Context, input ReplaceVisitSalesInput) error {
	for _, line := range append(append([]SaleLine{}, input.OldLines...), input.NewLines...) {
		if line.ProductID == 0 {
			return ErrProductRequired
		}
		if line.Quantity <= 0 {
			return ErrInvalidQuantity
		}
	}
	insertedKey, err := s.claimKey(ctx, input.OpKey)
	if err != nil {
		return err
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, repo TxRepository) error {
		for _, line := range input.OldLines {
			if _, err := repo.InsertTransaction(ctx, Transaction{
				ProductID: line.ProductID,
				Type:      TypeSaleReversal,
				Quantity:  line.Quantity,
				TxDate:    input.TxDate,
				RefType:   "visit_edit",
				RefID:     input.Ref,
			}); err != nil {
				return err
			}
		}
		for _, line := range input.NewLines {
			if _, err := repo.InsertTransaction(ctx, Transaction{
				ProductID: line.ProductID,
				Type:      TypeSale,
				Quantity:  -line.Quantity,
				TxDate:    input.TxDate,
				RefType:   "visit",
				RefID:     input.Ref,
			}); err != nil {
				return err
			}
		}
		for _, productID := range affectedProducts(input.OldLines, input.NewLines) {
			if err := s.recompute(ctx, repo, productID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		s.releaseKey(ctx, insertedKey, input.OpKey)
		return err
	}
	for _, productID := range affectedProducts(input.OldLines, input.NewLines) {
		s.invalidate(ctx, productID)
	}
	return nil
}

func (s *Service) applyLines(ctx context.Context, input VisitSalesInput, txType TransactionType, sign int64) error {
	for _, line := range input.Lines {
		if line.ProductID == 0 {
			return ErrProductRequired
		}
		if line.Quantity <= 0 {
			return ErrInvalidQuantity
		}
	}
	insertedKey, err := s.claimKey(ctx, input.OpKey)
	if err != nil {
		return err
	}
	refType := "visit"
	if txType == TypeSaleReversal {
		refType = "visit_delete"
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, repo TxRepository) error {
		for _, line := range input.Lines {
			if _, err := repo.InsertTransaction(ctx, Transaction{
				ProductID: line.ProductID,
				Type:      txType,
				Quantity:  sign * line.Quantity,
				TxDate:    input.TxDate,
				RefType:   refType,
				RefID:     input.Ref,
			}); err != nil {
				return err
			}
		}
		for _, productID := range affectedProducts(input.Lines, nil) {
			if err := s.recompute(ctx, repo, productID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		s.releaseKey(ctx, insertedKey, input.OpKey)
		return err
	}
	for _, productID := range affectedProducts(input.Lines, nil) {
		s.invalidate(ctx, productID)
	}
	return nil
}

func (s *Service) recompute(ctx context.Context, repo TxRepository, productID int64) error {
	txs, err := repo.ListTransactions(ctx, productID, s.today())
	if err != nil {
		return err
	}
	return repo.UpdateCurrentStock(ctx, productID, Summarize(txs).Closing)
}

func (s *Service) claimKey(ctx context.Context, key string) (bool, error) {
	if key == "" || s.idem == nil {
		return false, nil
	}
	if err := s.idem.CheckAndInsert(ctx, key, "stock"); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Service) releaseKey(ctx context.Context, inserted bool, key string) {
	if inserted {
		_ = s.idem.Delete(ctx, key)
	}
}

func (s *Service) invalidate(ctx context.Context, productID int64) {
	if s.cache != nil {
		s.cache.Invalidate(ctx, productID)
	}
}

func (s *Service) record(ctx context.Context, action string, tx Transaction) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		Action:   action,
		Entity:   "stock_transaction",
		EntityID: fmt.Sprintf("%d:%d", tx.ProductID, tx.ID),
		Meta: map[string]any{
			"product_id": tx.ProductID,
			"type":       string(tx.Type),
			"quantity":   tx.Quantity,
			"note":       tx.Note,
		},
	})
}

func (s *Service) today() time.Time {
	now := s.now().UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}

func affectedProducts(a, b []SaleLine) []int64 {
	seen := make(map[int64]struct{}, len(a)+len(b))
	var ids []int64
	for _, line := range append(append([]SaleLine{}, a...), b...) {
		if _, ok := seen[line.ProductID]; ok {
			continue
		}
		seen[line.ProductID] = struct{}{}
		ids = append(ids, line.ProductID)
	}
	return ids
}
