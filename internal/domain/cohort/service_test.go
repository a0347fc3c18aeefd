package cohort

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/csv"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DinoHorvat96/Raman-Medical-Research/internal/platform/auth"
	"github.com/DinoHorvat96/Raman-Medical-Research/internal/platform/metrics"
)

// =========== Fake Store ===========

type fakeStore struct {
	vocab    map[Category][]string
	patients []*Patient
	assoc    map[Relation]Associations
	summary  *Summary

	openErr   error
	cohortErr error
	// filterScalars makes Cohort honour "oc.<column> = $n" fragments.
	filterScalars bool

	opened     int
	closed     int
	vocabCalls map[Category]int
	assocCalls map[Relation]int
	assocIDs   map[Relation][]int64
	lastQuery  CohortQuery
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		vocab:      make(map[Category][]string),
		assoc:      make(map[Relation]Associations),
		vocabCalls: make(map[Category]int),
		assocCalls: make(map[Relation]int),
		assocIDs:   make(map[Relation][]int64),
	}
}

func (f *fakeStore) Open(_ context.Context) (Session, error) {
	if f.openErr != nil {
		return nil, f.openErr
	}
	f.opened++
	return &fakeSession{store: f}, nil
}

func (f *fakeStore) Summary(_ context.Context) (*Summary, error) {
	if f.openErr != nil {
		return nil, f.openErr
	}
	return f.summary, nil
}

type fakeSession struct{ store *fakeStore }

func (s *fakeSession) Vocabulary(_ context.Context, c Category) ([]string, error) {
	s.store.vocabCalls[c]++
	return s.store.vocab[c], nil
}

func (s *fakeSession) Cohort(_ context.Context, q CohortQuery) ([]*Patient, error) {
	s.store.lastQuery = q
	if s.store.cohortErr != nil {
		return nil, s.store.cohortErr
	}
	if s.store.filterScalars {
		return filterByEquality(s.store.patients, q.Predicate), nil
	}
	return s.store.patients, nil
}

var equalityFragment = regexp.MustCompile(`oc\.(\w+) = \$(\d+)`)

// filterByEquality keeps the patients whose scalar columns match every
// equality fragment of p.
func filterByEquality(patients []*Patient, p Predicate) []*Patient {
	var out []*Patient
	for _, pt := range patients {
		keep := true
		for _, m := range equalityFragment.FindAllStringSubmatch(p.Where, -1) {
			n, _ := strconv.Atoi(m[2])
			want, _ := p.Args[n-1].(string)
			v, ok := scalarOf(pt, m[1])
			if !ok || !v.Valid || v.String != want {
				keep = false
				break
			}
		}
		if keep {
			out = append(out, pt)
		}
	}
	return out
}

func scalarOf(p *Patient, name string) (sql.NullString, bool) {
	for i, col := range ScalarColumns {
		if col == name && i < len(p.Scalars) {
			return p.Scalars[i], true
		}
	}
	return sql.NullString{}, false
}

// withScalars returns a full scalar slice with the named columns set.
func withScalars(values map[string]string) []sql.NullString {
	out := make([]sql.NullString, len(ScalarColumns))
	for i, col := range ScalarColumns {
		if v, ok := values[col]; ok {
			out[i] = ns(v)
		}
	}
	return out
}

func (s *fakeSession) Associations(_ context.Context, r Relation, ids []int64) (Associations, error) {
	s.store.assocCalls[r]++
	s.store.assocIDs[r] = ids
	out := make(Associations)
	for _, id := range ids {
		if a, ok := s.store.assoc[r][id]; ok {
			out[id] = a
		}
	}
	return out, nil
}

func (s *fakeSession) Close() error {
	s.store.closed++
	return nil
}

// =========== Helpers ===========

func seededStore() *fakeStore {
	st := newFakeStore()
	st.vocab[CategoryOcular] = []string{"H35.3", "H40.1"}
	st.vocab[CategorySurgery] = []string{"Phaco"}
	st.vocab[CategorySystemic] = []string{"E11"}
	st.vocab[CategoryMedication] = []string{"dexamethasone; neomycin", "timolol"}

	glaucoma := make([]sql.NullString, len(ScalarColumns))
	glaucoma[7] = ns("1")
	st.patients = []*Patient{
		{ID: 1500, PersonHash: ns("ab12"), Sex: ns("F"), Eye: ns("R"), Age: sql.NullInt64{Int64: 71, Valid: true}, Scalars: glaucoma},
		{ID: 1501, PersonHash: ns("cd34"), Sex: ns("M"), Eye: ns("L"), Scalars: make([]sql.NullString, len(ScalarColumns))},
	}
	st.assoc[RelOcularMeds] = Associations{
		1500: {{Code: "dexamethasone; neomycin", Eye: ns("R"), Days: sql.NullInt64{Int64: 3, Valid: true}}},
	}
	st.assoc[RelOtherConditions] = Associations{
		1501: {{Code: "H40.1", Eye: ns("L")}},
	}
	return st
}

func newTestService(st Store, m *metrics.Registry) *Service {
	return NewService(st, m, zerolog.Nop())
}

func readCSV(t *testing.T, body []byte) [][]string {
	t.Helper()
	records, err := csv.NewReader(bytes.NewReader(body)).ReadAll()
	require.NoError(t, err)
	return records
}

func column(t *testing.T, records [][]string, row int, name string) string {
	t.Helper()
	for i, h := range records[0] {
		if h == name {
			return records[row][i]
		}
	}
	t.Fatalf("column %s not in header", name)
	return ""
}

// =========== Tests ===========

func TestService_ExportFullPipeline(t *testing.T) {
	st := seededStore()
	m := metrics.NewRegistry()
	svc := newTestService(st, m)

	res, err := svc.Export(context.Background(), Request{
		Format:  FormatCSV,
		Mode:    ModeAnonymized,
		Include: includeAll,
		Filters: map[string]string{"filter_glaucoma": "all"},
		Role:    auth.RoleStaff,
	})
	require.NoError(t, err)

	assert.Equal(t, 2, res.Patients)
	assert.Equal(t, "text/csv", res.ContentType)
	assert.NotEmpty(t, res.ExportID)
	assert.True(t, strings.HasPrefix(res.Filename, "raman_export_binary_anonymized_"))
	assert.True(t, strings.HasSuffix(res.Filename, ".csv"))

	records := readCSV(t, res.Body)
	require.Len(t, records, 3)
	assert.Equal(t, res.Columns, records[0])

	assert.Equal(t, "1500", column(t, records, 1, "patient_id"))
	assert.Equal(t, "1", column(t, records, 1, "glaucoma"))
	assert.Equal(t, "1", column(t, records, 1, "takes_dexamethasone"))
	assert.Equal(t, "1", column(t, records, 1, "takes_neomycin"))
	assert.Equal(t, "0", column(t, records, 1, "takes_timolol"))
	assert.Equal(t, "3", column(t, records, 1, "ocular_med_dexamethasone_neomycin_days"))
	assert.Equal(t, "0", column(t, records, 1, "other_ocular_h40_1"))
	assert.Equal(t, "ND", column(t, records, 1, "other_ocular_h40_1_eye"))

	assert.Equal(t, "", column(t, records, 2, "glaucoma"))
	assert.Equal(t, "1", column(t, records, 2, "other_ocular_h40_1"))
	assert.Equal(t, "L", column(t, records, 2, "other_ocular_h40_1_eye"))
	assert.Equal(t, "0", column(t, records, 2, "takes_dexamethasone"))

	assert.Equal(t, float64(1), testutil.ToFloat64(m.ExportsTotal.WithLabelValues("csv", "anonymized", "success")))
}

func TestService_ExportGlaucomaCohort(t *testing.T) {
	st := newFakeStore()
	st.filterScalars = true
	st.patients = []*Patient{
		{ID: 1500, PersonHash: ns("ab12"), Scalars: withScalars(map[string]string{"glaucoma": "1"})},
		{ID: 1501, PersonHash: ns("cd34"), Scalars: withScalars(map[string]string{"glaucoma": "0"})},
	}
	svc := newTestService(st, nil)

	res, err := svc.Export(context.Background(), Request{
		Format:  FormatCSV,
		Mode:    ModeAnonymized,
		Include: Inclusion{Conditions: true},
		Filters: map[string]string{"filter_glaucoma": "1"},
		Role:    auth.RoleStaff,
	})
	require.NoError(t, err)

	assert.Equal(t, 1, res.Patients)
	records := readCSV(t, res.Body)
	require.Len(t, records, 2)
	assert.Equal(t, "1500", column(t, records, 1, "patient_id"))
	assert.Equal(t, "1", column(t, records, 1, "glaucoma"))
}

func TestService_ExportKeepsDeactivatedCodesInUse(t *testing.T) {
	st := newFakeStore()
	// H35.81 is no longer an active reference entry but is still recorded
	// for patient 1500; the resolved vocabulary carries it.
	st.vocab[CategoryOcular] = []string{"H35.81", "H40.1"}
	st.patients = []*Patient{{ID: 1500}, {ID: 1501}}
	st.assoc[RelOtherConditions] = Associations{
		1500: {{Code: "H35.81", Eye: ns("R")}},
	}
	svc := newTestService(st, nil)

	res, err := svc.Export(context.Background(), Request{
		Format:  FormatCSV,
		Mode:    ModeAnonymized,
		Include: Inclusion{OtherConditions: true},
		Role:    auth.RoleStaff,
	})
	require.NoError(t, err)

	records := readCSV(t, res.Body)
	require.Len(t, records, 3)
	assert.Contains(t, records[0], "other_ocular_h35_81")
	assert.Equal(t, "1", column(t, records, 1, "other_ocular_h35_81"))
	assert.Equal(t, "R", column(t, records, 1, "other_ocular_h35_81_eye"))
	assert.Equal(t, "0", column(t, records, 2, "other_ocular_h35_81"))
	assert.Equal(t, "ND", column(t, records, 2, "other_ocular_h35_81_eye"))
}

func TestService_ExportStaffSensitiveIsDowngraded(t *testing.T) {
	st := seededStore()
	svc := newTestService(st, nil)

	res, err := svc.Export(context.Background(), Request{
		Mode:    ModeSensitive,
		Include: Inclusion{Conditions: true},
		Role:    auth.RoleStaff,
	})
	require.NoError(t, err)

	assert.True(t, res.Policy.Downgraded())
	assert.Equal(t, ModeAnonymized, res.Policy.Effective)
	assert.False(t, st.lastQuery.Sensitive)
	assert.True(t, strings.Contains(res.Filename, "_anonymized_"))
	for _, pii := range []string{"patient_name", "mbo", "date_of_birth", "date_of_sample_collection"} {
		assert.NotContains(t, res.Columns, pii)
	}
}

func TestService_ExportAdministratorSensitive(t *testing.T) {
	st := seededStore()
	svc := newTestService(st, nil)

	res, err := svc.Export(context.Background(), Request{Mode: ModeSensitive, Role: auth.RoleAdministrator})
	require.NoError(t, err)
	assert.True(t, st.lastQuery.Sensitive)
	assert.Contains(t, res.Columns, "patient_name")
	assert.Contains(t, res.Filename, "_sensitive_")
}

func TestService_ExportPrefetchesOncePerRelation(t *testing.T) {
	st := seededStore()
	for i := int64(1502); i < 1600; i++ {
		st.patients = append(st.patients, &Patient{ID: i})
	}
	svc := newTestService(st, nil)

	_, err := svc.Export(context.Background(), Request{Include: includeAll, Role: auth.RoleStaff})
	require.NoError(t, err)

	for _, r := range includeAll.Relations() {
		assert.Equal(t, 1, st.assocCalls[r], r.String())
		assert.Len(t, st.assocIDs[r], len(st.patients), r.String())
	}
	for _, c := range Categories {
		assert.Equal(t, 1, st.vocabCalls[c], string(c))
	}
	assert.Equal(t, 1, st.opened)
	assert.Equal(t, 1, st.closed)
}

func TestService_ExportSkipsExcludedSections(t *testing.T) {
	st := seededStore()
	svc := newTestService(st, nil)

	res, err := svc.Export(context.Background(), Request{Include: Inclusion{Surgeries: true}, Role: auth.RoleStaff})
	require.NoError(t, err)

	assert.Empty(t, st.assocCalls[RelOcularMeds])
	assert.Empty(t, st.vocabCalls[CategoryMedication])
	assert.False(t, st.lastQuery.Conditions)
	assert.NotContains(t, res.Columns, "glaucoma")
	assert.Contains(t, res.Columns, "surgery_phaco")
}

func TestService_ExportStableColumns(t *testing.T) {
	st := seededStore()
	svc := newTestService(st, nil)
	req := Request{Include: includeAll, Role: auth.RoleAdministrator, Mode: ModeSensitive}

	first, err := svc.Export(context.Background(), req)
	require.NoError(t, err)
	second, err := svc.Export(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, first.Columns, second.Columns)
	assert.Equal(t, first.Body, second.Body)
}

func TestService_ExportEmptyCohort(t *testing.T) {
	st := seededStore()
	st.patients = nil
	svc := newTestService(st, nil)

	res, err := svc.Export(context.Background(), Request{Include: includeAll, Role: auth.RoleStaff})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Patients)
	records := readCSV(t, res.Body)
	require.Len(t, records, 1)
	assert.Equal(t, res.Columns, records[0])
}

func TestService_ExportExcel(t *testing.T) {
	svc := newTestService(seededStore(), nil)
	res, err := svc.Export(context.Background(), Request{Format: FormatExcel, Role: auth.RoleStaff})
	require.NoError(t, err)
	assert.Equal(t, contentTypeXLSX, res.ContentType)
	assert.True(t, strings.HasSuffix(res.Filename, ".xlsx"))
	assert.True(t, bytes.HasPrefix(res.Body, []byte("PK")))
}

func TestService_ExportStoreUnavailable(t *testing.T) {
	st := newFakeStore()
	st.openErr = fmt.Errorf("open export connection: %w", ErrStoreUnavailable)
	m := metrics.NewRegistry()
	svc := newTestService(st, m)

	res, err := svc.Export(context.Background(), Request{Role: auth.RoleStaff})
	assert.Nil(t, res)
	assert.True(t, errors.Is(err, ErrStoreUnavailable))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.ExportsTotal.WithLabelValues("csv", "anonymized", "unavailable")))
}

func TestService_ExportClosesSessionOnError(t *testing.T) {
	st := seededStore()
	st.cohortErr = errors.New("boom")
	svc := newTestService(st, nil)

	_, err := svc.Export(context.Background(), Request{Role: auth.RoleStaff})
	require.Error(t, err)
	assert.Equal(t, 1, st.closed)
}

func TestService_ResolvedVocabulary(t *testing.T) {
	st := seededStore()
	svc := newTestService(st, nil)

	ids, err := svc.ResolvedVocabulary(context.Background(), "icd10-ocular")
	require.NoError(t, err)
	assert.Equal(t, []string{"H35.3", "H40.1"}, ids)

	_, err = svc.ResolvedVocabulary(context.Background(), "drugs")
	assert.Error(t, err)

	ing, err := svc.ResolvedIngredients(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"dexamethasone", "neomycin", "timolol"}, ing)
}

func TestService_Summary(t *testing.T) {
	st := newFakeStore()
	st.summary = &Summary{TotalPatients: 4, Sex: map[string]int{"M": 1, "F": 3}}
	svc := newTestService(st, nil)

	sum, err := svc.Summary(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, sum.TotalPatients)
}

func TestOutcomeOf(t *testing.T) {
	assert.Equal(t, "unavailable", outcomeOf(fmt.Errorf("x: %w", ErrStoreUnavailable)))
	assert.Equal(t, "spreadsheet_error", outcomeOf(fmt.Errorf("x: %w", ErrSpreadsheetWriter)))
	assert.Equal(t, "canceled", outcomeOf(context.Canceled))
	assert.Equal(t, "error", outcomeOf(errors.New("x")))
}
