package cohort

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/DinoHorvat96/Raman-Medical-Research/internal/platform/auth"
	"github.com/DinoHorvat96/Raman-Medical-Research/internal/platform/metrics"
)

// Request is one export invocation.
type Request struct {
	Format  Format
	Mode    ExportMode
	Include Inclusion
	Filters map[string]string
	Role    auth.Role
}

type Service struct {
	store   Store
	metrics *metrics.Registry
	logger  zerolog.Logger
	now     func() time.Time
}

// NewService wires the engine. m may be nil when metrics are disabled.
func NewService(store Store, m *metrics.Registry, logger zerolog.Logger) *Service {
	return &Service{
		store:   store,
		metrics: m,
		logger:  logger.With().Str("component", "cohort").Logger(),
		now:     time.Now,
	}
}

// Export runs the full pipeline: vocabulary resolution, cohort selection,
// batched prefetch, schema construction, row materialization and
// serialization. Nothing is returned unless every step succeeded.
func (s *Service) Export(ctx context.Context, req Request) (*Result, error) {
	if req.Format == "" {
		req.Format = FormatCSV
	}
	start := s.now()
	policy := ResolvePolicy(req.Role, req.Mode)
	exportID := uuid.NewString()

	res, err := s.export(ctx, req, policy)
	elapsed := s.now().Sub(start)

	outcome, patients := "success", 0
	if err != nil {
		outcome = outcomeOf(err)
	} else {
		patients = res.Patients
		res.ExportID = exportID
		res.Duration = elapsed
		res.Filename = Filename(policy.Effective, req.Format, start)
	}
	s.metrics.ObserveExport(string(req.Format), string(policy.Effective), outcome, patients, elapsed)

	if err != nil {
		s.logger.Error().Err(err).
			Str("export_id", exportID).
			Str("format", string(req.Format)).
			Str("mode", string(policy.Effective)).
			Str("outcome", outcome).
			Msg("export failed")
		return nil, err
	}

	s.logger.Info().
		Str("export_id", exportID).
		Str("role", string(req.Role)).
		Str("requested_mode", string(policy.Requested)).
		Str("mode", string(policy.Effective)).
		Bool("downgraded", policy.Downgraded()).
		Str("format", string(req.Format)).
		Int("patients", res.Patients).
		Int("columns", len(res.Columns)).
		Int("bytes", len(res.Body)).
		Dur("duration", elapsed).
		Msg("export completed")
	return res, nil
}

func (s *Service) export(ctx context.Context, req Request, policy Policy) (*Result, error) {
	sess, err := s.store.Open(ctx)
	if err != nil {
		return nil, err
	}
	defer sess.Close()

	vocab, err := resolveVocabulary(ctx, sess, req.Include)
	if err != nil {
		return nil, err
	}

	patients, err := sess.Cohort(ctx, CohortQuery{
		Sensitive:  policy.Sensitive(),
		Conditions: req.Include.Conditions,
		Predicate:  CompileFilters(req.Filters),
	})
	if err != nil {
		return nil, err
	}

	c := &Cohort{Patients: patients, Relations: make(map[Relation]Associations)}
	ids := c.IDs()
	for _, r := range req.Include.Relations() {
		assoc, err := sess.Associations(ctx, r, ids)
		if err != nil {
			return nil, err
		}
		c.Relations[r] = assoc
	}

	schema := BuildSchema(policy, req.Include, vocab)
	rows := Materialize(schema, c)
	header := schema.Names()

	body, err := Render(req.Format, header, rows)
	if err != nil {
		return nil, err
	}

	return &Result{
		ContentType: req.Format.ContentType(),
		Body:        body,
		Policy:      policy,
		Format:      req.Format,
		Patients:    len(patients),
		Columns:     header,
	}, nil
}

// resolveVocabulary loads each needed category once.
func resolveVocabulary(ctx context.Context, sess Session, inc Inclusion) (*Vocabulary, error) {
	v := &Vocabulary{Codes: make(map[Category][]string)}
	for _, c := range inc.Categories() {
		ids, err := sess.Vocabulary(ctx, c)
		if err != nil {
			return nil, err
		}
		v.Codes[c] = ids
	}
	if inc.Medications {
		v.Ingredients = IngredientVocabulary(v.Codes[CategoryMedication])
	}
	return v, nil
}

// ResolvedVocabulary returns the export vocabulary of one category, the
// same identifiers an export would turn into columns.
func (s *Service) ResolvedVocabulary(ctx context.Context, category string) ([]string, error) {
	c, err := ParseCategory(category)
	if err != nil {
		return nil, err
	}
	sess, err := s.store.Open(ctx)
	if err != nil {
		return nil, err
	}
	defer sess.Close()
	return sess.Vocabulary(ctx, c)
}

// ResolvedIngredients returns the atomic-ingredient vocabulary.
func (s *Service) ResolvedIngredients(ctx context.Context) ([]string, error) {
	generics, err := s.ResolvedVocabulary(ctx, string(CategoryMedication))
	if err != nil {
		return nil, err
	}
	return IngredientVocabulary(generics), nil
}

func (s *Service) Summary(ctx context.Context) (*Summary, error) {
	sum, err := s.store.Summary(ctx)
	if err != nil {
		return nil, fmt.Errorf("export summary: %w", err)
	}
	return sum, nil
}

func outcomeOf(err error) string {
	switch {
	case errors.Is(err, ErrStoreUnavailable):
		return "unavailable"
	case errors.Is(err, ErrSpreadsheetWriter):
		return "spreadsheet_error"
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return "canceled"
	}
	return "error"
}
