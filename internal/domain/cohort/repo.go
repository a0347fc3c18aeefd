package cohort

import "context"

// Store is the read side of the relational store used by the engine.
type Store interface {
	// Open pins a connection for the duration of one export.
	Open(ctx context.Context) (Session, error)
	Summary(ctx context.Context) (*Summary, error)
}

// Session issues the read queries of one export over a single connection.
type Session interface {
	Vocabulary(ctx context.Context, c Category) ([]string, error)
	Cohort(ctx context.Context, q CohortQuery) ([]*Patient, error)
	// Associations loads relation r for every id in one query.
	Associations(ctx context.Context, r Relation, ids []int64) (Associations, error)
	Close() error
}
