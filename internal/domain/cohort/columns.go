package cohort

// ColumnKind determines a column's default value.
type ColumnKind int

const (
	KindIdentity ColumnKind = iota
	KindScalar
	KindPresence
	KindLaterality
	KindDays
	KindIngredient
)

// Column is one entry of an export schema.
type Column struct {
	Name string
	Kind ColumnKind
}

// Default is the value a column holds before any overlay.
func (c Column) Default() interface{} {
	switch c.Kind {
	case KindLaterality, KindDays:
		return SentinelNotDocumented
	case KindPresence, KindIngredient:
		return 0
	}
	return ""
}

// ScalarColumns are the ocular_conditions attributes, in export order.
var ScalarColumns = []string{
	"lens_status", "locs_iii_no", "locs_iii_nc", "locs_iii_c", "locs_iii_p",
	"iol_type", "etiology_aphakia", "glaucoma", "oht_or_pac", "etiology_glaucoma",
	"steroid_responder", "pxs", "pds", "diabetic_retinopathy", "stage_diabetic_retinopathy",
	"stage_npdr", "stage_pdr", "macular_edema", "etiology_macular_edema",
	"macular_degeneration_dystrophy", "etiology_macular_deg_dyst", "stage_amd",
	"exudation_amd", "stage_other_macular_deg", "exudation_other_macular_deg",
	"macular_hole_vmt", "etiology_mh_vmt", "cause_secondary_mh_vmt",
	"treatment_status_mh_vmt", "epiretinal_membrane", "etiology_erm",
	"cause_secondary_erm", "treatment_status_erm", "retinal_detachment",
	"etiology_rd", "treatment_status_rd", "pvr", "vitreous_haemorrhage_opacification",
	"etiology_vitreous_haemorrhage",
}

// flagColumns are the scalar columns holding tri-state sentinels.
var flagColumns = map[string]bool{
	"glaucoma": true, "oht_or_pac": true, "steroid_responder": true, "pxs": true,
	"pds": true, "diabetic_retinopathy": true, "macular_edema": true,
	"macular_degeneration_dystrophy": true, "exudation_amd": true,
	"exudation_other_macular_deg": true, "macular_hole_vmt": true,
	"epiretinal_membrane": true, "pvr": true,
}

// Inclusion holds the per-request section switches.
type Inclusion struct {
	Conditions      bool
	OtherConditions bool
	Surgeries       bool
	Systemic        bool
	Medications     bool
}

// Relations returns the included association kinds in column order.
func (i Inclusion) Relations() []Relation {
	var out []Relation
	if i.OtherConditions {
		out = append(out, RelOtherConditions)
	}
	if i.Surgeries {
		out = append(out, RelSurgeries)
	}
	if i.Systemic {
		out = append(out, RelSystemic)
	}
	if i.Medications {
		out = append(out, RelOcularMeds, RelSystemicMeds)
	}
	return out
}

// Categories returns the vocabularies the inclusion needs, each once.
func (i Inclusion) Categories() []Category {
	seen := make(map[Category]bool)
	var out []Category
	for _, r := range i.Relations() {
		if c := r.def().category; !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}
	return out
}

// Vocabulary is the resolved identifier set of one export.
type Vocabulary struct {
	Codes       map[Category][]string
	Ingredients []string
}

// Schema is the ordered, deduplicated column list of one export.
type Schema struct {
	cols  []Column
	index map[string]int
	// ingredients drive the takes_* overlay; empty unless medications are
	// included.
	ingredients []string
}

// BuildSchema derives the column list from the gate policy, the inclusion
// switches and the resolved vocabulary. Identical inputs always produce the
// same columns in the same order.
func BuildSchema(p Policy, inc Inclusion, v *Vocabulary) *Schema {
	s := &Schema{index: make(map[string]int)}

	for _, name := range p.identityColumns() {
		s.add(name, KindIdentity)
	}
	if inc.Conditions {
		for _, name := range ScalarColumns {
			s.add(name, KindScalar)
		}
	}
	for _, r := range inc.Relations() {
		def := r.def()
		for _, id := range v.Codes[def.category] {
			base := def.prefix + SanitizeColumnName(id)
			s.add(base, KindPresence)
			if def.hasEye {
				s.add(base+"_eye", KindLaterality)
			}
			if def.hasDays {
				s.add(base+"_days", KindDays)
			}
		}
	}
	if inc.Medications {
		for _, tok := range v.Ingredients {
			s.add(ingredientColumn(tok), KindIngredient)
		}
		s.ingredients = v.Ingredients
	}
	return s
}

func ingredientColumn(tok string) string { return "takes_" + SanitizeColumnName(tok) }

// add keeps the first column of a given name.
func (s *Schema) add(name string, kind ColumnKind) {
	if _, dup := s.index[name]; dup {
		return
	}
	s.index[name] = len(s.cols)
	s.cols = append(s.cols, Column{Name: name, Kind: kind})
}

func (s *Schema) Columns() []Column { return s.cols }

func (s *Schema) Len() int { return len(s.cols) }

// Names returns the header row.
func (s *Schema) Names() []string {
	out := make([]string, len(s.cols))
	for i, c := range s.cols {
		out[i] = c.Name
	}
	return out
}

// Index returns the position of the named column.
func (s *Schema) Index(name string) (int, bool) {
	i, ok := s.index[name]
	return i, ok
}

// newRow returns a row filled with column defaults.
func (s *Schema) newRow() []interface{} {
	row := make([]interface{}, len(s.cols))
	for i, c := range s.cols {
		row[i] = c.Default()
	}
	return row
}
