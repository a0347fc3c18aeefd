package patient

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

func (r *repoPG) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return db.InTx(ctx, r.pool, fn)
}

func (r *repoPG) MaxID(ctx context.Context) (int, bool, error) {
	var maxID *int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT MAX(patient_id) FROM patients_sensitive`).Scan(&maxID); err != nil {
		return 0, false, fmt.Errorf("max patient id: %w", err)
	}
	if maxID == nil {
		return 0, false, nil
	}
	return *maxID, true, nil
}

func (r *repoPG) Exists(ctx context.Context, id int) (bool, error) {
	var exists bool
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM patients_sensitive WHERE patient_id = $1)`, id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check patient id: %w", err)
	}
	return exists, nil
}

func (r *repoPG) CreateIdentity(ctx context.Context, p *Identity) error {
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO patients_sensitive (patient_id, patient_name, mbo, date_of_birth, date_of_sample_collection)
		VALUES ($1, $2, $3, $4, $5)`,
		p.PatientID, p.Name, p.MBO, p.DateOfBirth, p.CollectedOn)
	return insertError("insert identity", err)
}

func (r *repoPG) CreateStatistical(ctx context.Context, s *Statistical) error {
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO patients_statistical (patient_id, person_hash, age, sex, eye)
		VALUES ($1, $2, $3, $4, $5)`,
		s.PatientID, s.PersonHash, s.Age, s.Sex, s.Eye)
	return insertError("insert statistical record", err)
}

func insertError(op string, err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return ErrIDTaken
	}
	return fmt.Errorf("%s: %w", op, err)
}
