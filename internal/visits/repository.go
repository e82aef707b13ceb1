package visits

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists visits and their lines in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Insert stores the visit and its lines in one transaction.
func (r *Repository) Insert(ctx context.Context, v Visit) (Visit, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return Visit{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	row := tx.QueryRow(ctx, `INSERT INTO visits (code, contact_id, visit_date, notes, total)
VALUES ($1, $2, $3, NULLIF($4, ''), $5)
RETURNING id, created_at, updated_at`, v.Code, v.ContactID, v.VisitDate, v.Notes, v.Total)
	if err := row.Scan(&v.ID, &v.CreatedAt, &v.UpdatedAt); err != nil {
		return Visit{}, err
	}
	lines, err := insertLines(ctx, tx, v.ID, v.Lines)
	if err != nil {
		return Visit{}, err
	}
	v.Lines = lines
	if err := tx.Commit(ctx); err != nil {
		return Visit{}, err
	}
	return v, nil
}

// Update rewrites the visit row and replaces its lines in one transaction.
func (r *Repository) Update(ctx context.Context, v Visit) (Visit, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return Visit{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	row := tx.QueryRow(ctx, `UPDATE visits
SET visit_date=$2, notes=NULLIF($3, ''), total=$4, updated_at=NOW()
WHERE id=$1
RETURNING updated_at`, v.ID, v.VisitDate, v.Notes, v.Total)
	if err := row.Scan(&v.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Visit{}, ErrVisitNotFound
		}
		return Visit{}, err
	}
	if _, err := tx.Exec(ctx, `DELETE FROM visit_lines WHERE visit_id=$1`, v.ID); err != nil {
		return Visit{}, err
	}
	lines, err := insertLines(ctx, tx, v.ID, v.Lines)
	if err != nil {
		return Visit{}, err
	}
	v.Lines = lines
	if err := tx.Commit(ctx); err != nil {
		return Visit{}, err
	}
	return v, nil
}

// Delete removes the visit; lines cascade and ledger source links are nulled
// by the schema's foreign keys.
func (r *Repository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM visits WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrVisitNotFound
	}
	return nil
}

// Get returns one visit with its lines.
func (r *Repository) Get(ctx context.Context, id int64) (Visit, error) {
	row := r.pool.QueryRow(ctx, `SELECT id, code, contact_id, visit_date, COALESCE(notes, ''), total, created_at, updated_at
FROM visits WHERE id=$1`, id)
	v, err := scanVisit(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Visit{}, ErrVisitNotFound
	}
	if err != nil {
		return Visit{}, err
	}
	lines, err := r.linesFor(ctx, v.ID)
	if err != nil {
		return Visit{}, err
	}
	v.Lines = lines
	return v, nil
}

// List returns a filtered page of visits, most recent first, without lines.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]Visit, int, error) {
	where := []string{"1=1"}
	args := []any{}
	if filter.ContactID != 0 {
		args = append(args, filter.ContactID)
		where = append(where, "contact_id=$"+strconv.Itoa(len(args)))
	}
	if !filter.From.IsZero() {
		args = append(args, filter.From)
		where = append(where, "visit_date >= $"+strconv.Itoa(len(args)))
	}
	if !filter.To.IsZero() {
		args = append(args, filter.To)
		where = append(where, "visit_date <= $"+strconv.Itoa(len(args)))
	}
	cond := strings.Join(where, " AND ")

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM visits WHERE `+cond, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	perPage := filter.PerPage
	if perPage <= 0 {
		perPage = 20
	}
	page := filter.Page
	if page <= 0 {
		page = 1
	}
	args = append(args, perPage, (page-1)*perPage)
	query := `SELECT id, code, contact_id, visit_date, COALESCE(notes, ''), total, created_at, updated_at
FROM visits WHERE ` + cond + ` ORDER BY visit_date DESC, created_at DESC LIMIT $` +
		strconv.Itoa(len(args)-1) + ` OFFSET $` + strconv.Itoa(len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := []Visit{}
	for rows.Next() {
		v, err := scanVisit(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, v)
	}
	return out, total, rows.Err()
}

func (r *Repository) linesFor(ctx context.Context, visitID int64) ([]Line, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, visit_id, product_id, quantity, unit_price, amount
FROM visit_lines WHERE visit_id=$1 ORDER BY id`, visitID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	lines := []Line{}
	for rows.Next() {
		var l Line
		if err := rows.Scan(&l.ID, &l.VisitID, &l.ProductID, &l.Quantity, &l.UnitPrice, &l.Amount); err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

func insertLines(ctx context.Context, tx pgx.Tx, visitID int64, lines []Line) ([]Line, error) {
	out := make([]Line, 0, len(lines))
	for _, l := range lines {
		l.VisitID = visitID
		row := tx.QueryRow(ctx, `INSERT INTO visit_lines (visit_id, product_id, quantity, unit_price, amount)
VALUES ($1, $2, $3, $4, $5)
RETURNING id`, visitID, l.ProductID, l.Quantity, l.UnitPrice, l.Amount)
		if err := row.Scan(&l.ID); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, nil
}

func scanVisit(row pgx.Row) (Visit, error) {
	var v Visit
	if err := row.Scan(&v.ID, &v.Code, &v.ContactID, &v.VisitDate, &v.Notes, &v.Total, &v.CreatedAt, &v.UpdatedAt); err != nil {
		return Visit{}, err
	}
	return v, nil
}
