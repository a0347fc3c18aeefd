package vocabulary

import (
	"context"
	"errors"
)

var (
	ErrNotFound  = errors.New("vocabulary entry not found")
	ErrDuplicate = errors.New("vocabulary entry already exists")
)

type Repository interface {
	List(ctx context.Context, c Category, activeOnly bool) ([]*Entry, error)
	GetByID(ctx context.Context, c Category, id int) (*Entry, error)
	Create(ctx context.Context, c Category, e *Entry) error
	Update(ctx context.Context, c Category, e *Entry) error
	// Deactivate clears the active flag. Rows are never deleted because
	// association records keep referencing them.
	Deactivate(ctx context.Context, c Category, id int) error
}
