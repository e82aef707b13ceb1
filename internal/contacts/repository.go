package contacts

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists contacts in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const contactColumns = `id, name, contact_type, COALESCE(phone, ''), COALESCE(address, ''), created_at, updated_at`

// Insert stores a new contact and returns it with generated fields.
func (r *Repository) Insert(ctx context.Context, c Contact) (Contact, error) {
	row := r.pool.QueryRow(ctx, `INSERT INTO contacts (name, contact_type, phone, address)
VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''))
RETURNING id, created_at, updated_at`, c.Name, string(c.Type), c.Phone, c.Address)
	if err := row.Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return Contact{}, err
	}
	return c, nil
}

// Get returns one contact by id.
func (r *Repository) Get(ctx context.Context, id int64) (Contact, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+contactColumns+` FROM contacts WHERE id=$1`, id)
	c, err := scanContact(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Contact{}, ErrContactNotFound
	}
	return c, err
}

// Update rewrites the contact's mutable fields.
func (r *Repository) Update(ctx context.Context, c Contact) (Contact, error) {
	row := r.pool.QueryRow(ctx, `UPDATE contacts
SET name=$2, contact_type=$3, phone=NULLIF($4, ''), address=NULLIF($5, ''), updated_at=NOW()
WHERE id=$1
RETURNING updated_at`, c.ID, c.Name, string(c.Type), c.Phone, c.Address)
	if err := row.Scan(&c.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Contact{}, ErrContactNotFound
		}
		return Contact{}, err
	}
	return c, nil
}

// Delete removes the contact. Visit and ledger rows survive it: visits keep
// their contact_id for history, ledger source links are independent.
func (r *Repository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM contacts WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrContactNotFound
	}
	return nil
}

// List returns a filtered page of contacts plus the unpaged total.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]Contact, int, error) {
	where := []string{"1=1"}
	args := []any{}
	if filter.Type != "" {
		args = append(args, string(filter.Type))
		where = append(where, "contact_type=$"+strconv.Itoa(len(args)))
	}
	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		where = append(where, "name ILIKE $"+strconv.Itoa(len(args)))
	}
	cond := strings.Join(where, " AND ")

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM contacts WHERE `+cond, args...).Scan(&total); err != nil {
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
	query := `SELECT ` + contactColumns + ` FROM contacts WHERE ` + cond +
		` ORDER BY name ASC LIMIT $` + strconv.Itoa(len(args)-1) + ` OFFSET $` + strconv.Itoa(len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := []Contact{}
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, c)
	}
	return out, total, rows.Err()
}

func scanContact(row pgx.Row) (Contact, error) {
	var c Contact
	var typ string
	if err := row.Scan(&c.ID, &c.Name, &typ, &c.Phone, &c.Address, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return Contact{}, err
	}
	c.Type = ContactType(typ)
	return c, nil
}
