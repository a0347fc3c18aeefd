package cohort

import (
	"fmt"
	"strings"
	"time"
)

// Predicate is a compiled cohort filter: a sequence of " AND ..." fragments
// over the ps/pst/oc join plus their positional arguments, and an ORDER BY
// expression.
type Predicate struct {
	Where   string
	Args    []interface{}
	OrderBy string
}

// predicateBuilder accumulates numbered placeholders the same way across
// every fragment so arguments never drift from their $n.
type predicateBuilder struct {
	where string
	args  []interface{}
	idx   int
}

func newPredicateBuilder() *predicateBuilder {
	return &predicateBuilder{idx: 1}
}

// Idx returns the next available parameter index.
func (b *predicateBuilder) Idx() int { return b.idx }

// Add appends a WHERE fragment (without leading "AND").
func (b *predicateBuilder) Add(clause string, args ...interface{}) {
	b.where += " AND " + clause
	b.args = append(b.args, args...)
	b.idx += len(args)
}

// scalarFilter binds a form key to a tri-state column of ocular_conditions.
type scalarFilter struct {
	key    string
	column string
}

var scalarFilters = []scalarFilter{
	{"filter_glaucoma", "oc.glaucoma"},
	{"filter_oht_or_pac", "oc.oht_or_pac"},
	{"filter_diabetic_retinopathy", "oc.diabetic_retinopathy"},
	{"filter_macular_edema", "oc.macular_edema"},
	{"filter_macular_degeneration", "oc.macular_degeneration_dystrophy"},
	{"filter_macular_hole_vmt", "oc.macular_hole_vmt"},
	{"filter_epiretinal_membrane", "oc.epiretinal_membrane"},
	{"filter_pvr", "oc.pvr"},
}

var lensStatuses = map[string]bool{"Phakic": true, "Pseudophakic": true, "Aphakic": true}

// Filter form keys that are not per-column.
const (
	KeyLensStatus = "filter_lens_status"
	KeySearchType = "search_type"
	KeySearchText = "q"
	KeyDateFrom   = "date_from"
	KeyDateTo     = "date_to"
	KeySort       = "sort"
)

const dateLayout = "2006-01-02"

var sortColumns = map[string]string{
	"patient_id":       "ps.patient_id ASC",
	"-patient_id":      "ps.patient_id DESC",
	"collection_date":  "ps.date_of_sample_collection ASC NULLS LAST, ps.patient_id ASC",
	"-collection_date": "ps.date_of_sample_collection DESC NULLS LAST, ps.patient_id ASC",
}

const defaultOrder = "ps.patient_id ASC"

// CompileFilters turns named filter selections into a parameterized
// predicate. Unrecognized keys and values are ignored, which leaves the
// cohort unconstrained on that dimension. Fragments are emitted in a fixed
// order so the SQL text is stable for identical input.
func CompileFilters(form map[string]string) Predicate {
	b := newPredicateBuilder()

	if from, ok := parseDate(form[KeyDateFrom]); ok {
		b.Add(fmt.Sprintf("ps.date_of_sample_collection >= $%d", b.Idx()), from)
	}
	if to, ok := parseDate(form[KeyDateTo]); ok {
		b.Add(fmt.Sprintf("ps.date_of_sample_collection <= $%d", b.Idx()), to)
	}

	for _, f := range scalarFilters {
		compileScalar(b, f.column, form[f.key])
	}
	compileLensStatus(b, form[KeyLensStatus])

	for r := range relations {
		compileRelation(b, Relation(r), form[relations[r].filterKey])
	}

	compileSearch(b, form[KeySearchType], form[KeySearchText])

	order, ok := sortColumns[strings.TrimSpace(form[KeySort])]
	if !ok {
		order = defaultOrder
	}

	return Predicate{Where: b.where, Args: b.args, OrderBy: order}
}

func compileScalar(b *predicateBuilder, col, value string) {
	mode, ok := ParseFilterMode(value)
	if !ok {
		return
	}
	switch mode {
	case FilterNegative, FilterPositive:
		b.Add(fmt.Sprintf("%s = $%d", col, b.Idx()), string(mode))
	case FilterNotDocumented:
		b.Add(fmt.Sprintf("(%s IS NULL OR %s = '%s')", col, col, SentinelNotDocumented))
	case FilterNotNegNotND:
		b.Add(fmt.Sprintf("(%s IS NOT NULL AND %s != '%s' AND %s != '%s')",
			col, col, SentinelNotDocumented, col, SentinelNegative))
	}
}

func compileLensStatus(b *predicateBuilder, value string) {
	switch {
	case value == SentinelNotDocumented:
		b.Add("(oc.lens_status IS NULL OR oc.lens_status = 'ND')")
	case lensStatuses[value]:
		b.Add(fmt.Sprintf("oc.lens_status = $%d", b.Idx()), value)
	}
}

// compileRelation only constrains when the key was submitted with a known
// value; an explicit "all" therefore requires at least one record.
func compileRelation(b *predicateBuilder, r Relation, value string) {
	mode, ok := ParseFilterMode(value)
	if !ok {
		return
	}
	s := r.def()
	exists := fmt.Sprintf("EXISTS (SELECT 1 FROM %s %s WHERE %s.patient_id = ps.patient_id)",
		s.table, s.alias, s.alias)
	if mode.requiresPresence() {
		b.Add(exists)
	} else {
		b.Add("NOT " + exists)
	}
}

func compileSearch(b *predicateBuilder, kind, text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	pattern := "%" + escapeLike(text) + "%"
	switch kind {
	case "name":
		b.Add(fmt.Sprintf("LOWER(ps.patient_name) LIKE LOWER($%d)", b.Idx()), pattern)
	case "mbo":
		b.Add(fmt.Sprintf("ps.mbo LIKE $%d", b.Idx()), pattern)
	default:
		b.Add(fmt.Sprintf("CAST(ps.patient_id AS TEXT) LIKE $%d", b.Idx()), pattern)
	}
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string { return likeEscaper.Replace(s) }

func parseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
