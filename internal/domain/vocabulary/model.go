package vocabulary

import (
	"fmt"
	"time"
)

// Category names one reference table.
type Category string

const (
	CategoryOcular     Category = "icd10-ocular"
	CategorySystemic   Category = "icd10-systemic"
	CategoryMedication Category = "medications"
	CategorySurgery    Category = "surgeries"
)

var tables = map[Category]string{
	CategoryOcular:     "icd10_ocular_conditions",
	CategorySystemic:   "icd10_systemic_conditions",
	CategoryMedication: "medications",
	CategorySurgery:    "surgeries",
}

func ParseCategory(s string) (Category, error) {
	c := Category(s)
	if _, ok := tables[c]; !ok {
		return "", fmt.Errorf("unknown vocabulary category %q", s)
	}
	return c, nil
}

func (c Category) table() string { return tables[c] }

// Medication types accepted by the medications table.
const (
	MedicationOcular   = "Ocular"
	MedicationSystemic = "Systemic"
	MedicationBoth     = "Both"
)

var validMedicationTypes = map[string]bool{
	MedicationOcular: true, MedicationSystemic: true, MedicationBoth: true,
}

// Entry is one reference vocabulary row. Code entries (ICD-10 and surgeries)
// use Code, Description and Group; medications use the name fields.
type Entry struct {
	ID             int       `json:"id"`
	Code           string    `json:"code,omitempty"`
	Description    string    `json:"description,omitempty"`
	Group          string    `json:"category,omitempty"`
	TradeName      string    `json:"trade_name,omitempty"`
	GenericName    string    `json:"generic_name,omitempty"`
	MedicationType string    `json:"medication_type,omitempty"`
	Active         bool      `json:"active"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Identifier is the value exports turn into a column.
func (e *Entry) Identifier(c Category) string {
	if c == CategoryMedication {
		return e.GenericName
	}
	return e.Code
}
