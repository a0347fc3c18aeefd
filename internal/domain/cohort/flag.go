package cohort

import "database/sql"

// Sentinel values stored in tri-state clinical columns.
const (
	SentinelNegative      = "0"
	SentinelPositive      = "1"
	SentinelNotDocumented = "ND"
)

type FlagKind int

const (
	FlagUnset FlagKind = iota // SQL NULL
	FlagNegative
	FlagPositive
	FlagNotDocumented
	// FlagPositiveSubtype is any other stored value, e.g. "POAG" in the
	// glaucoma column, or the empty string.
	FlagPositiveSubtype
)

// Flag is a decoded tri-state clinical column.
type Flag struct {
	Kind    FlagKind
	Subtype string
}

// ParseFlag decodes a raw column value. Values are compared verbatim; no
// trimming or case folding is applied so the decoding agrees with the SQL
// predicates built by CompileFilters.
func ParseFlag(raw sql.NullString) Flag {
	if !raw.Valid {
		return Flag{Kind: FlagUnset}
	}
	switch raw.String {
	case SentinelNegative:
		return Flag{Kind: FlagNegative}
	case SentinelPositive:
		return Flag{Kind: FlagPositive}
	case SentinelNotDocumented:
		return Flag{Kind: FlagNotDocumented}
	}
	return Flag{Kind: FlagPositiveSubtype, Subtype: raw.String}
}

// String renders the flag as stored. Unset renders as "".
func (f Flag) String() string {
	switch f.Kind {
	case FlagNegative:
		return SentinelNegative
	case FlagPositive:
		return SentinelPositive
	case FlagNotDocumented:
		return SentinelNotDocumented
	case FlagPositiveSubtype:
		return f.Subtype
	}
	return ""
}

// FilterMode is the value of a scalar or repeatable filter selection.
type FilterMode string

const (
	FilterAll           FilterMode = "all"
	FilterNegative      FilterMode = "0"
	FilterPositive      FilterMode = "1"
	FilterNotDocumented FilterMode = "ND"
	FilterNotNegNotND   FilterMode = "not_0_not_nd"
)

// ParseFilterMode returns the mode for s. Unknown values are reported as not
// ok; callers treat them as FilterAll.
func ParseFilterMode(s string) (FilterMode, bool) {
	switch m := FilterMode(s); m {
	case FilterAll, FilterNegative, FilterPositive, FilterNotDocumented, FilterNotNegNotND:
		return m, true
	}
	return FilterAll, false
}

// Matches is the in-memory form of the scalar predicate for m.
//
// FilterNotNegNotND keeps the stored-string inequality: any non-null
// value other than "0" and "ND" matches, so "1", descriptive subtypes and
// the empty string all pass. Whether the empty string should count as
// positive is pending product clarification.
func (m FilterMode) Matches(f Flag) bool {
	switch m {
	case FilterNegative:
		return f.Kind == FlagNegative
	case FilterPositive:
		return f.Kind == FlagPositive
	case FilterNotDocumented:
		return f.Kind == FlagUnset || f.Kind == FlagNotDocumented
	case FilterNotNegNotND:
		return f.Kind == FlagPositive || f.Kind == FlagPositiveSubtype
	}
	return true
}

// requiresPresence maps a repeatable-category filter onto an existence test.
// "all" and "not_0_not_nd" both mean "has at least one record"; "0" and "ND"
// both mean "has none". A relation row either exists or it does not, so the
// four modes collapse to two.
func (m FilterMode) requiresPresence() bool {
	return m == FilterAll || m == FilterNotNegNotND
}
