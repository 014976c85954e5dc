// Package enrich implements contact reconciliation: classifying incoming
// contacts against the stored set, building a reviewable match report,
// validating per-contact actions, and committing the reviewed result.
package enrich

import "strings"

// NormalizeName produces the comparison key for a free-text name: whitespace
// runs collapsed to single spaces, trimmed, lower-cased. Idempotent and total;
// no transliteration or punctuation stripping.
func NormalizeName(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// SplitName splits a display name into first and last components. Everything
// after the first token becomes the last name.
func SplitName(name string) (first, last string) {
	fields := strings.Fields(name)
	switch len(fields) {
	case 0:
		return "", ""
	case 1:
		return fields[0], ""
	default:
		return fields[0], strings.Join(fields[1:], " ")
	}
}
