package stock

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medirep/medirep/internal/platform/db"
)

// Repository persists the stock log in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations used by the service. Appends
// and the cache recompute run inside one transaction so the cached
// current_stock can never observe a half-applied movement.
type TxRepository interface {
	InsertTransaction(ctx context.Context, tx Transaction) (Transaction, error)
	ListTransactions(ctx context.Context, productID int64, asOf time.Time) ([]Transaction, error)
	GetCurrentStockForUpdate(ctx context.Context, productID int64) (int64, error)
	UpdateCurrentStock(ctx context.Context, productID, qty int64) error
}

// ErrProductNotFound indicates a missing product row.
var ErrProductNotFound = errors.New("stock: product not found")

type txRepository struct {
	tx pgx.Tx
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("stock repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

const listTransactionsSQL = `SELECT id, product_id, tx_type, quantity, tx_date, created_at, ref_type, COALESCE(ref_id, ''), note
FROM stock_transactions
WHERE product_id=$1 AND tx_date <= $2
ORDER BY tx_date ASC, created_at ASC, id ASC`

// ListTransactions returns the product's log up to and including asOf, in
// replay order.
func (r *Repository) ListTransactions(ctx context.Context, productID int64, asOf time.Time) ([]Transaction, error) {
	if r == nil {
		return nil, errors.New("stock repository not initialised")
	}
	rows, err := r.pool.Query(ctx, listTransactionsSQL, productID, asOf)
	if err != nil {
		return nil, err
	}
	return scanTransactions(rows)
}

// ListProductIDs returns every product id present in the catalogue.
func (r *Repository) ListProductIDs(ctx context.Context) ([]int64, error) {
	if r == nil {
		return nil, errors.New("stock repository not initialised")
	}
	rows, err := r.pool.Query(ctx, `SELECT id FROM products ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// GetCurrentStock reads the cached stock figure outside a transaction.
func (r *Repository) GetCurrentStock(ctx context.Context, productID int64) (int64, error) {
	var qty int64
	err := r.pool.QueryRow(ctx, `SELECT current_stock FROM products WHERE id=$1`, productID).Scan(&qty)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrProductNotFound
	}
	return qty, err
}

func (t *txRepository) InsertTransaction(ctx context.Context, tx Transaction) (Transaction, error) {
	row := t.tx.QueryRow(ctx, `INSERT INTO stock_transactions (product_id, tx_type, quantity, tx_date, ref_type, ref_id, note)
VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7)
RETURNING id, created_at`,
		tx.ProductID, string(tx.Type), tx.Quantity, tx.TxDate, tx.RefType, tx.RefID, tx.Note)
	if err := row.Scan(&tx.ID, &tx.CreatedAt); err != nil {
		return Transaction{}, err
	}
	return tx, nil
}

func (t *txRepository) ListTransactions(ctx context.Context, productID int64, asOf time.Time) ([]Transaction, error) {
	rows, err := t.tx.Query(ctx, listTransactionsSQL, productID, asOf)
	if err != nil {
		return nil, err
	}
	return scanTransactions(rows)
}

func (t *txRepository) GetCurrentStockForUpdate(ctx context.Context, productID int64) (int64, error) {
	var qty int64
	err := t.tx.QueryRow(ctx, `SELECT current_stock FROM products WHERE id=$1 FOR UPDATE`, productID).Scan(&qty)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrProductNotFound
	}
	return qty, err
}

func (t *txRepository) UpdateCurrentStock(ctx context.Context, productID, qty int64) error {
	tag, err := t.tx.Exec(ctx, `UPDATE products SET current_stock=$2, updated_at=NOW() WHERE id=$1`, productID, qty)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrProductNotFound
	}
	return nil
}

func scanTransactions(rows pgx.Rows) ([]Transaction, error) {
	defer rows.Close()
	txs := []Transaction{}
	for rows.Next() {
		var tx Transaction
		var txType string
		if err := rows.Scan(&tx.ID, &tx.ProductID, &txType, &tx.Quantity, &tx.TxDate, &tx.CreatedAt, &tx.RefType, &tx.RefID, &tx.Note); err != nil {
			return nil, err
		}
		tx.Type = TransactionType(txType)
		txs = append(txs, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return txs, nil
}
