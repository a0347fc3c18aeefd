package cohort

import "database/sql"

// Materialize fills one row per cohort member against schema. Every cell
// starts at its column default; scalar fields, association flags and
// ingredient flags for the schema's ingredient vocabulary are then overlaid. Identity fields not in the schema are
// never written, so the gate policy baked into the schema is authoritative.
func Materialize(schema *Schema, c *Cohort) [][]interface{} {
	rows := make([][]interface{}, 0, len(c.Patients))
	for _, p := range c.Patients {
		row := schema.newRow()
		set := func(name string, v interface{}) {
			if i, ok := schema.Index(name); ok {
				row[i] = v
			}
		}

		for name, v := range identityValues(p) {
			set(name, v)
		}

		if len(p.Scalars) == len(ScalarColumns) {
			for i, name := range ScalarColumns {
				set(name, scalarValue(name, p.Scalars[i]))
			}
		}

		var generics []string
		for r := RelOtherConditions; r <= RelSystemicMeds; r++ {
			assoc, ok := c.Relations[r]
			if !ok {
				continue
			}
			def := r.def()
			for _, a := range assoc[p.ID] {
				base := def.prefix + SanitizeColumnName(a.Code)
				set(base, 1)
				if def.hasEye && a.Eye.Valid {
					set(base+"_eye", a.Eye.String)
				}
				if def.hasDays && a.Days.Valid {
					set(base+"_days", a.Days.Int64)
				}
				if def.category == CategoryMedication {
					generics = append(generics, a.Code)
				}
			}
		}

		if len(schema.ingredients) > 0 {
			for tok, present := range IngredientFlags(schema.ingredients, generics) {
				if present {
					set(ingredientColumn(tok), 1)
				}
			}
		}

		rows = append(rows, row)
	}
	return rows
}

func identityValues(p *Patient) map[string]interface{} {
	return map[string]interface{}{
		"patient_id":                p.ID,
		"patient_name":              nullString(p.Name),
		"mbo":                       nullString(p.MBO),
		"sex":                       nullString(p.Sex),
		"date_of_birth":             formatDate(p.DateOfBirth),
		"date_of_sample_collection": formatDate(p.CollectedOn),
		"eye":                       nullString(p.Eye),
		"person_hash":               nullString(p.PersonHash),
		"age":                       nullInt(p.Age),
	}
}

func scalarValue(name string, v sql.NullString) interface{} {
	if flagColumns[name] {
		return ParseFlag(v).String()
	}
	return nullString(v)
}

func nullString(v sql.NullString) string {
	if !v.Valid {
		return ""
	}
	return v.String
}

func nullInt(v sql.NullInt64) interface{} {
	if !v.Valid {
		return ""
	}
	return v.Int64
}
