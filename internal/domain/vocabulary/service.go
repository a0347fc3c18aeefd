package vocabulary

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrInvalid marks a validation failure.
var ErrInvalid = errors.New("invalid vocabulary entry")

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) List(ctx context.Context, c Category, activeOnly bool) ([]*Entry, error) {
	return s.repo.List(ctx, c, activeOnly)
}

func (s *Service) Get(ctx context.Context, c Category, id int) (*Entry, error) {
	return s.repo.GetByID(ctx, c, id)
}

func (s *Service) Create(ctx context.Context, c Category, e *Entry) error {
	if err := validate(c, e, true); err != nil {
		return err
	}
	return s.repo.Create(ctx, c, e)
}

// Update replaces the mutable fields of an entry. Codes are immutable since
// association records and export columns are keyed by them.
func (s *Service) Update(ctx context.Context, c Category, e *Entry) error {
	if e.ID <= 0 {
		return fmt.Errorf("%w: id is required", ErrInvalid)
	}
	if err := validate(c, e, false); err != nil {
		return err
	}
	return s.repo.Update(ctx, c, e)
}

func (s *Service) Deactivate(ctx context.Context, c Category, id int) error {
	if id <= 0 {
		return fmt.Errorf("%w: id is required", ErrInvalid)
	}
	return s.repo.Deactivate(ctx, c, id)
}

func validate(c Category, e *Entry, creating bool) error {
	if c == CategoryMedication {
		e.TradeName = strings.TrimSpace(e.TradeName)
		e.GenericName = strings.TrimSpace(e.GenericName)
		if e.TradeName == "" {
			return fmt.Errorf("%w: trade_name is required", ErrInvalid)
		}
		if e.GenericName == "" {
			return fmt.Errorf("%w: generic_name is required", ErrInvalid)
		}
		if e.MedicationType == "" {
			e.MedicationType = MedicationBoth
		}
		if !validMedicationTypes[e.MedicationType] {
			return fmt.Errorf("%w: medication_type must be Ocular, Systemic or Both", ErrInvalid)
		}
		return nil
	}

	if creating {
		e.Code = strings.TrimSpace(e.Code)
		if e.Code == "" {
			return fmt.Errorf("%w: code is required", ErrInvalid)
		}
		if limit := codeLimit(c); len(e.Code) > limit {
			return fmt.Errorf("%w: code exceeds %d characters", ErrInvalid, limit)
		}
	}
	e.Description = strings.TrimSpace(e.Description)
	if e.Description == "" {
		return fmt.Errorf("%w: description is required", ErrInvalid)
	}
	return nil
}

func codeLimit(c Category) int {
	if c == CategorySurgery {
		return 100
	}
	return 20
}
