package cohort

import (
	"strings"

	"github.com/DinoHorvat96/Raman-Medical-Research/internal/platform/auth"
)

// ExportMode selects which identity columns an export may carry.
type ExportMode string

const (
	ModeAnonymized ExportMode = "anonymized"
	ModeSensitive  ExportMode = "sensitive"
)

// ParseExportMode maps anything other than "sensitive" to anonymized.
func ParseExportMode(s string) ExportMode {
	if strings.EqualFold(strings.TrimSpace(s), string(ModeSensitive)) {
		return ModeSensitive
	}
	return ModeAnonymized
}

// Policy is the outcome of the anonymization gate for one export.
type Policy struct {
	Role      auth.Role
	Requested ExportMode
	Effective ExportMode
}

// ResolvePolicy grants sensitive mode to administrators only. Any other role
// asking for it is downgraded to anonymized without an error.
func ResolvePolicy(role auth.Role, requested ExportMode) Policy {
	p := Policy{Role: role, Requested: requested, Effective: ModeAnonymized}
	if requested == ModeSensitive && role.IsAdministrator() {
		p.Effective = ModeSensitive
	}
	return p
}

func (p Policy) Sensitive() bool { return p.Effective == ModeSensitive }

// Downgraded reports whether a sensitive request was served anonymized.
func (p Policy) Downgraded() bool { return p.Requested != p.Effective }

var (
	sensitiveIdentityColumns = []string{
		"patient_id", "patient_name", "mbo", "sex", "date_of_birth",
		"date_of_sample_collection", "eye", "person_hash", "age",
	}
	anonymizedIdentityColumns = []string{"patient_id", "person_hash", "sex", "eye", "age"}
)

// identityColumns returns the leading columns allowed under p.
func (p Policy) identityColumns() []string {
	if p.Sensitive() {
		return sensitiveIdentityColumns
	}
	return anonymizedIdentityColumns
}
