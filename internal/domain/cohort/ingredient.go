package cohort

import (
	"sort"
	"strings"
)

// SplitIngredients decomposes a compound generic name such as
// "dexamethasone; neomycin" into normalized active-ingredient tokens.
func SplitIngredients(generic string) []string {
	var out []string
	for _, part := range strings.Split(generic, ";") {
		if tok := strings.ToLower(strings.TrimSpace(part)); tok != "" {
			out = append(out, tok)
		}
	}
	return out
}

// IngredientVocabulary returns the sorted, deduplicated ingredient tokens of
// every generic name given.
func IngredientVocabulary(generics []string) []string {
	seen := make(map[string]struct{})
	for _, g := range generics {
		for _, tok := range SplitIngredients(g) {
			seen[tok] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for tok := range seen {
		out = append(out, tok)
	}
	sort.Strings(out)
	return out
}

// IngredientFlags reports, for every ingredient in vocab, whether any of the
// patient's generic names contains it. Every vocabulary entry is present in
// the result. Tokens outside vocab are ignored.
func IngredientFlags(vocab []string, generics []string) map[string]bool {
	flags := make(map[string]bool, len(vocab))
	for _, tok := range vocab {
		flags[tok] = false
	}
	for _, g := range generics {
		for _, tok := range SplitIngredients(g) {
			if _, ok := flags[tok]; ok {
				flags[tok] = true
			}
		}
	}
	return flags
}
