package enrich

import (
	"strings"

	"github.com/hyperjump/meishi/internal/models"
)

// Classify matches one incoming contact against the full existing set. Rules
// are applied in order and the first existing contact (in enumeration order)
// satisfying the highest-priority rule wins:
//
//  1. exact: normalized incoming name equals normalized "first last"
//  2. exact: first token equals first name and last token equals last name
//  3. partial: last token equals last name
//  4. partial: single-token name equals either first name or last name
//
// Classification depends only on the incoming contact and the existing set,
// never on other contacts in the same batch. Empty names classify as none.
func Classify(incoming *models.IncomingContact, existing []*models.Contact) models.MatchResult {
	name := NormalizeName(incoming.Name())
	if name == "" {
		return models.MatchResult{Type: models.MatchNone}
	}

	for _, e := range existing {
		if name == NormalizeName(e.FullName()) {
			return models.MatchResult{Type: models.MatchExact, Contact: e}
		}
	}

	tokens := strings.Fields(name)
	if len(tokens) >= 2 {
		first, last := tokens[0], tokens[len(tokens)-1]
		for _, e := range existing {
			if first == NormalizeName(e.FirstName) && last == NormalizeName(e.LastName) {
				return models.MatchResult{Type: models.MatchExact, Contact: e}
			}
		}
		for _, e := range existing {
			if last == NormalizeName(e.LastName) {
				return models.MatchResult{Type: models.MatchPartial, Contact: e}
			}
		}
	}

	if len(tokens) == 1 {
		for _, e := range existing {
			if tokens[0] == NormalizeName(e.FirstName) || tokens[0] == NormalizeName(e.LastName) {
				return models.MatchResult{Type: models.MatchPartial, Contact: e}
			}
		}
	}

	return models.MatchResult{Type: models.MatchNone}
}
