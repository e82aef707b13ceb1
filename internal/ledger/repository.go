package ledger

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/medirep/medirep/internal/platform/db"
)

// Repository persists ledger entries in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations used by the service. Reading
// the last invoice number and inserting the entry share a transaction so the
// unique index is the only arbiter under concurrency.
type TxRepository interface {
	LastInvoiceNumber(ctx context.Context, prefix string) (string, error)
	InsertEntry(ctx context.Context, entry Entry) (Entry, error)
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("ledger repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

// ListEntries returns every entry for the contact. Ordering is left to
// RunningBalance, which owns the chronological contract.
func (r *Repository) ListEntries(ctx context.Context, contactID int64) ([]Entry, error) {
	if r == nil {
		return nil, errors.New("ledger repository not initialised")
	}
	rows, err := r.pool.Query(ctx, `SELECT id, contact_id, entry_date, created_at, source_type, COALESCE(source_id::text, ''), debit, credit, invoice_number, COALESCE(description, '')
FROM ledger_entries
WHERE contact_id=$1`, contactID)
	if err != nil {
		return nil, err
	}
	return scanEntries(rows)
}

// ListContactIDs returns every contact id with at least one ledger entry.
func (r *Repository) ListContactIDs(ctx context.Context) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT DISTINCT contact_id FROM ledger_entries ORDER BY contact_id`)
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

// FindDuplicateInvoiceNumbers surfaces invoice numbers used more than once.
// The unique index makes this impossible going forward; the scan exists to
// catch rows imported from before the constraint.
func (r *Repository) FindDuplicateInvoiceNumbers(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT invoice_number FROM ledger_entries GROUP BY invoice_number HAVING COUNT(*) > 1`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var numbers []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		numbers = append(numbers, n)
	}
	return numbers, rows.Err()
}

func (t *txRepository) LastInvoiceNumber(ctx context.Context, prefix string) (string, error) {
	var last string
	err := t.tx.QueryRow(ctx, `SELECT invoice_number FROM ledger_entries
WHERE invoice_number LIKE $1 || '-%'
ORDER BY invoice_number DESC
LIMIT 1`, prefix).Scan(&last)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	return last, err
}

func (t *txRepository) InsertEntry(ctx context.Context, entry Entry) (Entry, error) {
	row := t.tx.QueryRow(ctx, `INSERT INTO ledger_entries (contact_id, entry_date, source_type, source_id, debit, credit, invoice_number, description)
VALUES ($1, $2, $3, NULLIF($4, '')::uuid, $5, $6, $7, NULLIF($8, ''))
RETURNING id, created_at`,
		entry.ContactID, entry.EntryDate, string(entry.Source), entry.SourceID,
		entry.Debit, entry.Credit, entry.InvoiceNumber, entry.Description)
	if err := row.Scan(&entry.ID, &entry.CreatedAt); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == "ledger_entries_invoice_number_key" {
			return Entry{}, ErrDuplicateInvoice
		}
		return Entry{}, err
	}
	return entry, nil
}

func scanEntries(rows pgx.Rows) ([]Entry, error) {
	defer rows.Close()
	entries := []Entry{}
	for rows.Next() {
		var e Entry
		var source string
		var debit, credit decimal.Decimal
		if err := rows.Scan(&e.ID, &e.ContactID, &e.EntryDate, &e.CreatedAt, &source, &e.SourceID, &debit, &credit, &e.InvoiceNumber, &e.Description); err != nil {
			return nil, err
		}
		e.Source = SourceType(source)
		e.Debit = debit
		e.Credit = credit
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}
