package patient

import (
	"context"
	"fmt"
)

type Service struct {
	repo  Repository
	floor int
}

// NewService returns a Service that never allocates ids below floor.
func NewService(repo Repository, floor int) *Service {
	if !ValidID(floor) {
		floor = MinID
	}
	return &Service{repo: repo, floor: floor}
}

// NextID returns the id after the highest one in use, but never less than
// the configured floor.
func (s *Service) NextID(ctx context.Context) (int, error) {
	maxID, ok, err := s.repo.MaxID(ctx)
	if err != nil {
		return 0, err
	}
	next := s.floor
	if ok && maxID+1 > next {
		next = maxID + 1
	}
	if next > MaxID {
		return 0, fmt.Errorf("%w: next id would be %d", ErrExhausted, next)
	}
	return next, nil
}

// Available reports whether id is in range and unused.
func (s *Service) Available(ctx context.Context, id int) (bool, error) {
	if !ValidID(id) {
		return false, fmt.Errorf("%w: patient_id must be between %d and %d", ErrInvalid, MinID, MaxID)
	}
	exists, err := s.repo.Exists(ctx, id)
	if err != nil {
		return false, err
	}
	return !exists, nil
}

// Register stores the identity and the derived statistical record in one
// transaction and returns the statistical record.
func (s *Service) Register(ctx context.Context, r *Registration) (*Statistical, error) {
	id, err := r.identity()
	if err != nil {
		return nil, err
	}
	st := &Statistical{
		PatientID:  id.PatientID,
		PersonHash: PersonHash(id.MBO),
		Age:        AgeAt(id.DateOfBirth, id.CollectedOn),
		Sex:        r.Sex,
		Eye:        r.Eye,
	}

	err = s.repo.WithinTx(ctx, func(ctx context.Context) error {
		exists, err := s.repo.Exists(ctx, id.PatientID)
		if err != nil {
			return err
		}
		if exists {
			return fmt.Errorf("%w: %d", ErrIDTaken, id.PatientID)
		}
		if err := s.repo.CreateIdentity(ctx, id); err != nil {
			return err
		}
		return s.repo.CreateStatistical(ctx, st)
	})
	if err != nil {
		return nil, err
	}
	return st, nil
}
