package cohort

import "fmt"

// Category selects one reference vocabulary.
type Category string

const (
	CategoryOcular     Category = "icd10-ocular"
	CategorySystemic   Category = "icd10-systemic"
	CategorySurgery    Category = "surgeries"
	CategoryMedication Category = "medications"
)

// Categories lists every vocabulary category in resolution order.
var Categories = []Category{CategoryOcular, CategorySurgery, CategorySystemic, CategoryMedication}

func ParseCategory(s string) (Category, error) {
	for _, c := range Categories {
		if string(c) == s {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown vocabulary category %q", s)
}

// vocabularySQL is the union of active reference entries and every code ever
// recorded against a patient. Ordering is applied in Go so that the column
// order does not depend on the database collation.
var vocabularySQL = map[Category]string{
	CategoryOcular: `SELECT code FROM icd10_ocular_conditions WHERE active = TRUE
		UNION
		SELECT DISTINCT icd10_code FROM other_ocular_conditions`,
	CategorySystemic: `SELECT code FROM icd10_systemic_conditions WHERE active = TRUE
		UNION
		SELECT DISTINCT icd10_code FROM systemic_conditions`,
	CategorySurgery: `SELECT code FROM surgeries WHERE active = TRUE
		UNION
		SELECT DISTINCT surgery_code FROM previous_ocular_surgeries`,
	CategoryMedication: `SELECT generic_name FROM medications WHERE active = TRUE
		UNION
		SELECT DISTINCT generic_name FROM ocular_medications
		UNION
		SELECT DISTINCT generic_name FROM systemic_medications`,
}

// Relation is one repeatable association kind.
type Relation int

const (
	RelOtherConditions Relation = iota
	RelSurgeries
	RelSystemic
	RelOcularMeds
	RelSystemicMeds
)

type relationDef struct {
	table     string
	alias     string
	codeCol   string
	hasEye    bool
	hasDays   bool
	filterKey string
	category  Category
	prefix    string
}

// relations is indexed by Relation.
var relations = [...]relationDef{
	RelOtherConditions: {
		table: "other_ocular_conditions", alias: "ooc", codeCol: "icd10_code",
		hasEye: true, filterKey: "filter_other_ocular_mode",
		category: CategoryOcular, prefix: "other_ocular_",
	},
	RelSurgeries: {
		table: "previous_ocular_surgeries", alias: "pos", codeCol: "surgery_code",
		hasEye: true, filterKey: "filter_surgeries_mode",
		category: CategorySurgery, prefix: "surgery_",
	},
	RelSystemic: {
		table: "systemic_conditions", alias: "sc", codeCol: "icd10_code",
		filterKey: "filter_systemic_mode",
		category: CategorySystemic, prefix: "systemic_",
	},
	RelOcularMeds: {
		table: "ocular_medications", alias: "om", codeCol: "generic_name",
		hasEye: true, hasDays: true, filterKey: "filter_ocular_meds_mode",
		category: CategoryMedication, prefix: "ocular_med_",
	},
	RelSystemicMeds: {
		table: "systemic_medications", alias: "sm", codeCol: "generic_name",
		hasDays: true, filterKey: "filter_systemic_meds_mode",
		category: CategoryMedication, prefix: "systemic_med_",
	},
}

func (r Relation) def() relationDef { return relations[r] }

func (r Relation) String() string { return relations[r].table }

// prefetchSQL selects every association of kind r for a batch of patients.
// Columns are always patient_id, code, eye, days; absent attributes are NULL.
func (r Relation) prefetchSQL() string {
	s := r.def()
	eye, days := "NULL", "NULL"
	if s.hasEye {
		eye = "eye"
	}
	if s.hasDays {
		days = "last_application_days"
	}
	return fmt.Sprintf(`SELECT patient_id, %s, %s, %s FROM %s WHERE patient_id = ANY($1) ORDER BY patient_id, id`,
		s.codeCol, eye, days, s.table)
}
