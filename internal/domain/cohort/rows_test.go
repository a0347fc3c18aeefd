package cohort

import (
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cell(t *testing.T, s *Schema, row []interface{}, name string) interface{} {
	t.Helper()
	i, ok := s.Index(name)
	require.True(t, ok, "column %s missing", name)
	return row[i]
}

func TestMaterialize_IngredientFlags(t *testing.T) {
	v := testVocabulary()
	s := BuildSchema(anonymized, Inclusion{Medications: true}, v)
	c := &Cohort{
		Patients: []*Patient{{ID: 1500}},
		Relations: map[Relation]Associations{
			RelOcularMeds: {1500: {{
				Code: "dexamethasone; neomycin",
				Eye:  ns("R"),
				Days: sql.NullInt64{Int64: 3, Valid: true},
			}}},
			RelSystemicMeds: {},
		},
	}

	rows := Materialize(s, c)
	require.Len(t, rows, 1)
	row := rows[0]

	assert.Equal(t, int64(1500), cell(t, s, row, "patient_id"))
	assert.Equal(t, 1, cell(t, s, row, "takes_dexamethasone"))
	assert.Equal(t, 1, cell(t, s, row, "takes_neomycin"))
	assert.Equal(t, 0, cell(t, s, row, "takes_timolol"))

	assert.Equal(t, 1, cell(t, s, row, "ocular_med_dexamethasone_neomycin"))
	assert.Equal(t, "R", cell(t, s, row, "ocular_med_dexamethasone_neomycin_eye"))
	assert.Equal(t, int64(3), cell(t, s, row, "ocular_med_dexamethasone_neomycin_days"))

	assert.Equal(t, 0, cell(t, s, row, "ocular_med_timolol"))
	assert.Equal(t, 0, cell(t, s, row, "systemic_med_dexamethasone_neomycin"))
	assert.Equal(t, "ND", cell(t, s, row, "systemic_med_dexamethasone_neomycin_days"))
}

func TestMaterialize_NoAssociationsKeepsDefaults(t *testing.T) {
	v := &Vocabulary{Codes: map[Category][]string{CategoryOcular: {"H35.3", "H40.1"}}}
	s := BuildSchema(anonymized, Inclusion{OtherConditions: true}, v)
	c := &Cohort{
		Patients:  []*Patient{{ID: 1501}},
		Relations: map[Relation]Associations{RelOtherConditions: {}},
	}

	row := Materialize(s, c)[0]
	for _, code := range []string{"h35_3", "h40_1"} {
		assert.Equal(t, 0, cell(t, s, row, "other_ocular_"+code))
		assert.Equal(t, "ND", cell(t, s, row, "other_ocular_"+code+"_eye"))
	}
}

func TestMaterialize_NullAttributesKeepND(t *testing.T) {
	v := &Vocabulary{
		Codes:       map[Category][]string{CategoryMedication: {"timolol"}},
		Ingredients: []string{"timolol"},
	}
	s := BuildSchema(anonymized, Inclusion{Medications: true}, v)
	c := &Cohort{
		Patients: []*Patient{{ID: 7}},
		Relations: map[Relation]Associations{
			RelOcularMeds: {7: {{Code: "timolol"}}},
		},
	}

	row := Materialize(s, c)[0]
	assert.Equal(t, 1, cell(t, s, row, "ocular_med_timolol"))
	assert.Equal(t, "ND", cell(t, s, row, "ocular_med_timolol_eye"))
	assert.Equal(t, "ND", cell(t, s, row, "ocular_med_timolol_days"))
	assert.Equal(t, 1, cell(t, s, row, "takes_timolol"))
}

func TestMaterialize_IngredientsFollowSchema(t *testing.T) {
	v := testVocabulary()
	c := &Cohort{
		Patients: []*Patient{{ID: 1500}},
		Relations: map[Relation]Associations{
			RelOcularMeds: {1500: {{Code: "timolol"}}},
		},
	}

	// Medications excluded: no ingredient columns and nothing overlaid.
	s := BuildSchema(anonymized, Inclusion{}, v)
	row := Materialize(s, c)[0]
	_, ok := s.Index("takes_timolol")
	assert.False(t, ok)
	assert.Len(t, row, s.Len())

	s = BuildSchema(anonymized, Inclusion{Medications: true}, v)
	row = Materialize(s, c)[0]
	assert.Equal(t, 1, cell(t, s, row, "takes_timolol"))
	assert.Equal(t, 0, cell(t, s, row, "takes_dexamethasone"))
}

func TestMaterialize_Scalars(t *testing.T) {
	s := BuildSchema(anonymized, Inclusion{Conditions: true}, &Vocabulary{})
	scalars := make([]sql.NullString, len(ScalarColumns))
	scalars[0] = ns("Phakic")
	for i, name := range ScalarColumns {
		switch name {
		case "glaucoma":
			scalars[i] = ns("POAG")
		case "pvr":
			scalars[i] = ns("0")
		}
	}
	c := &Cohort{Patients: []*Patient{{ID: 1500, Scalars: scalars}}}

	row := Materialize(s, c)[0]
	assert.Equal(t, "Phakic", cell(t, s, row, "lens_status"))
	assert.Equal(t, "POAG", cell(t, s, row, "glaucoma"))
	assert.Equal(t, "0", cell(t, s, row, "pvr"))
	assert.Equal(t, "", cell(t, s, row, "macular_edema"))
}

func TestMaterialize_GateIsAuthoritative(t *testing.T) {
	s := BuildSchema(anonymized, Inclusion{}, &Vocabulary{})
	p := &Patient{
		ID:          1500,
		Name:        ns("Ana Horvat"),
		MBO:         ns("123456789"),
		DateOfBirth: sql.NullTime{Time: time.Date(1950, 1, 2, 0, 0, 0, 0, time.UTC), Valid: true},
		Sex:         ns("F"),
		Eye:         ns("L"),
		PersonHash:  ns("abc"),
		Age:         sql.NullInt64{Int64: 74, Valid: true},
	}

	row := Materialize(s, &Cohort{Patients: []*Patient{p}})[0]
	assert.Equal(t, []interface{}{int64(1500), "abc", "F", "L", int64(74)}, row)
	for _, v := range row {
		assert.NotEqual(t, "Ana Horvat", v)
		assert.NotEqual(t, "123456789", v)
	}
}

func TestMaterialize_SensitiveDates(t *testing.T) {
	s := BuildSchema(sensitive, Inclusion{}, &Vocabulary{})
	p := &Patient{
		ID:          1500,
		DateOfBirth: sql.NullTime{Time: time.Date(1950, 1, 2, 0, 0, 0, 0, time.UTC), Valid: true},
	}
	row := Materialize(s, &Cohort{Patients: []*Patient{p}})[0]
	assert.Equal(t, "1950-01-02", cell(t, s, row, "date_of_birth"))
	assert.Equal(t, "", cell(t, s, row, "date_of_sample_collection"))
	assert.Equal(t, "", cell(t, s, row, "age"))
}

func TestMaterialize_PreservesCohortOrder(t *testing.T) {
	s := BuildSchema(anonymized, Inclusion{}, &Vocabulary{})
	c := &Cohort{Patients: []*Patient{{ID: 3}, {ID: 1}, {ID: 2}}}
	rows := Materialize(s, c)
	require.Len(t, rows, 3)
	assert.Equal(t, int64(3), rows[0][0])
	assert.Equal(t, int64(1), rows[1][0])
	assert.Equal(t, int64(2), rows[2][0])
}

func TestMaterialize_EmptyCohort(t *testing.T) {
	s := BuildSchema(anonymized, includeAll, testVocabulary())
	assert.Empty(t, Materialize(s, &Cohort{}))
}
