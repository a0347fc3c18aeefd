package cohort

import (
	"database/sql"
	"time"
)

// Patient is one cohort member as read by the cohort query. Name, MBO and
// DateOfBirth are only populated in sensitive mode.
type Patient struct {
	ID          int64
	Name        sql.NullString
	MBO         sql.NullString
	DateOfBirth sql.NullTime
	CollectedOn sql.NullTime
	Sex         sql.NullString
	Eye         sql.NullString
	PersonHash  sql.NullString
	Age         sql.NullInt64
	// Scalars is aligned with ScalarColumns when conditions were requested.
	Scalars []sql.NullString
}

// Association is one repeatable record. Eye and Days are NULL for kinds that
// do not carry them.
type Association struct {
	Code string
	Eye  sql.NullString
	Days sql.NullInt64
}

// Associations groups prefetched records by patient id.
type Associations map[int64][]Association

// Cohort is the materializer input: members in cohort order and every
// included relation prefetched for them.
type Cohort struct {
	Patients  []*Patient
	Relations map[Relation]Associations
}

// IDs returns the member ids in cohort order.
func (c *Cohort) IDs() []int64 {
	ids := make([]int64, len(c.Patients))
	for i, p := range c.Patients {
		ids[i] = p.ID
	}
	return ids
}

// Summary holds the dashboard statistics shown next to the export form.
type Summary struct {
	TotalPatients   int            `json:"total_patients"`
	Sex             map[string]int `json:"sex"`
	AgeDistribution []AgeBucket    `json:"age_distribution"`
}

type AgeBucket struct {
	Group string `json:"group"`
	Count int    `json:"count"`
}

// CohortQuery is what the store needs to select the cohort.
type CohortQuery struct {
	Sensitive  bool
	Conditions bool
	Predicate  Predicate
}

func formatDate(t sql.NullTime) string {
	if !t.Valid {
		return ""
	}
	return t.Time.Format(dateLayout)
}

// Result is a rendered export.
type Result struct {
	ExportID    string
	Filename    string
	ContentType string
	Body        []byte
	Policy      Policy
	Format      Format
	Patients    int
	Columns     []string
	Duration    time.Duration
}
