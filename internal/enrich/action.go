package enrich

import (
	"fmt"

	"github.com/hyperjump/meishi/internal/models"
)

// InvalidActionError reports a structurally invalid action submission. It is
// raised before any mutation happens; a commit that fails validation applies
// nothing.
type InvalidActionError struct {
	Index  int
	Action models.ContactAction
	Reason string
}

func (e *InvalidActionError) Error() string {
	return fmt.Sprintf("invalid action %q for contact %d: %s", e.Action, e.Index, e.Reason)
}

// ResolveActions validates an action map against a report and returns one
// action per entry, positionally aligned with the report's entries. Indices
// absent from the map default to skip; merge requires a matched contact;
// create and skip are always valid; unknown tags and out-of-range indices are
// rejected.
func ResolveActions(report *models.MatchReport, actions map[int]models.ContactAction) ([]models.ContactAction, error) {
	for idx := range actions {
		if idx < 0 || idx >= len(report.Entries) {
			return nil, &InvalidActionError{Index: idx, Action: actions[idx], Reason: "index out of range"}
		}
	}

	resolved := make([]models.ContactAction, len(report.Entries))
	for _, entry := range report.Entries {
		action, ok := actions[entry.Index]
		if !ok {
			resolved[entry.Index] = models.ActionSkip
			continue
		}
		switch action {
		case models.ActionSkip, models.ActionCreate:
		case models.ActionMerge:
			if entry.MatchType == models.MatchNone || entry.MatchedContactID == nil {
				return nil, &InvalidActionError{Index: entry.Index, Action: action, Reason: "no matched contact to merge into"}
			}
		default:
			return nil, &InvalidActionError{Index: entry.Index, Action: action, Reason: "unknown action"}
		}
		resolved[entry.Index] = action
	}
	return resolved, nil
}
