package vocabulary

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/DinoHorvat96/Raman-Medical-Research/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

const uniqueViolation = "23505"

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const (
	codeCols       = `id, code, description, COALESCE(category, ''), active, created_at, updated_at`
	medicationCols = `id, trade_name, generic_name, COALESCE(medication_type, ''), active, created_at, updated_at`
)

func columns(c Category) string {
	if c == CategoryMedication {
		return medicationCols
	}
	return codeCols
}

func orderBy(c Category) string {
	if c == CategoryMedication {
		return "generic_name, trade_name"
	}
	return "code"
}

func scanEntry(c Category, row pgx.Row) (*Entry, error) {
	var e Entry
	var err error
	if c == CategoryMedication {
		err = row.Scan(&e.ID, &e.TradeName, &e.GenericName, &e.MedicationType, &e.Active, &e.CreatedAt, &e.UpdatedAt)
	} else {
		err = row.Scan(&e.ID, &e.Code, &e.Description, &e.Group, &e.Active, &e.CreatedAt, &e.UpdatedAt)
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return &e, err
}

func (r *repoPG) List(ctx context.Context, c Category, activeOnly bool) ([]*Entry, error) {
	q := `SELECT ` + columns(c) + ` FROM ` + c.table()
	if activeOnly {
		q += ` WHERE active = TRUE`
	}
	q += ` ORDER BY ` + orderBy(c)

	rows, err := r.conn(ctx).Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", c, err)
	}
	defer rows.Close()
	var items []*Entry
	for rows.Next() {
		e, err := scanEntry(c, rows)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", c, err)
		}
		items = append(items, e)
	}
	return items, rows.Err()
}

func (r *repoPG) GetByID(ctx context.Context, c Category, id int) (*Entry, error) {
	return scanEntry(c, r.conn(ctx).QueryRow(ctx,
		`SELECT `+columns(c)+` FROM `+c.table()+` WHERE id = $1`, id))
}

func (r *repoPG) Create(ctx context.Context, c Category, e *Entry) error {
	var row pgx.Row
	if c == CategoryMedication {
		row = r.conn(ctx).QueryRow(ctx, `
			INSERT INTO medications (trade_name, generic_name, medication_type, active)
			VALUES ($1, $2, $3, $4)
			RETURNING id, created_at, updated_at`,
			e.TradeName, e.GenericName, e.MedicationType, e.Active)
	} else {
		row = r.conn(ctx).QueryRow(ctx, `
			INSERT INTO `+c.table()+` (code, description, category, active)
			VALUES ($1, $2, $3, $4)
			RETURNING id, created_at, updated_at`,
			e.Code, e.Description, e.Group, e.Active)
	}
	return writeError(c, row.Scan(&e.ID, &e.CreatedAt, &e.UpdatedAt))
}

func (r *repoPG) Update(ctx context.Context, c Category, e *Entry) error {
	var row pgx.Row
	if c == CategoryMedication {
		row = r.conn(ctx).QueryRow(ctx, `
			UPDATE medications
			SET trade_name = $2, generic_name = $3, medication_type = $4, active = $5, updated_at = NOW()
			WHERE id = $1
			RETURNING created_at, updated_at`,
			e.ID, e.TradeName, e.GenericName, e.MedicationType, e.Active)
	} else {
		row = r.conn(ctx).QueryRow(ctx, `
			UPDATE `+c.table()+`
			SET description = $2, category = $3, active = $4, updated_at = NOW()
			WHERE id = $1
			RETURNING code, created_at, updated_at`,
			e.ID, e.Description, e.Group, e.Active)
		return writeError(c, row.Scan(&e.Code, &e.CreatedAt, &e.UpdatedAt))
	}
	return writeError(c, row.Scan(&e.CreatedAt, &e.UpdatedAt))
}

func (r *repoPG) Deactivate(ctx context.Context, c Category, id int) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE `+c.table()+` SET active = FALSE, updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deactivate %s: %w", c, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func writeError(c Category, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return ErrDuplicate
	}
	return fmt.Errorf("write %s: %w", c, err)
}
