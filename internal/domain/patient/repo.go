package patient

import (
	"context"
	"errors"
)

var (
	ErrInvalid   = errors.New("invalid patient")
	ErrIDTaken   = errors.New("patient id already exists")
	ErrExhausted = errors.New("patient id space exhausted")
)

type Repository interface {
	// MaxID returns the highest patient id in use, and false when there is
	// none.
	MaxID(ctx context.Context) (int, bool, error)
	Exists(ctx context.Context, id int) (bool, error)
	CreateIdentity(ctx context.Context, p *Identity) error
	CreateStatistical(ctx context.Context, s *Statistical) error
	// WithinTx runs fn in one transaction; repository calls made with the
	// ctx passed to fn join it.
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}
