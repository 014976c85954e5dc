package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// MatchType classifies how an incoming contact relates to the existing set.
type MatchType string

const (
	// MatchExact means the incoming name resolves unambiguously to one contact.
	MatchExact MatchType = "exact"
	// MatchPartial means a plausible but not certain match was found.
	MatchPartial MatchType = "partial"
	// MatchNone means no existing contact matched.
	MatchNone MatchType = "none"
)

// MatchResult pairs one incoming contact with zero or one existing contact.
type MatchResult struct {
	Type    MatchType
	Contact *Contact
}

// ReportEntry is the per-contact record of a match report. The field set is the
// wire contract for review UIs: index, match_type, and matched_contact_id must
// stay stable.
type ReportEntry struct {
	Index                 int       `json:"index"`
	Name                  string    `json:"name"`
	Email                 string    `json:"email,omitempty"`
	Phone                 string    `json:"phone,omitempty"`
	MatchType             MatchType `json:"match_type"`
	MatchedContactID      *int64    `json:"matched_contact_id"`
	MatchedContactName    string    `json:"matched_contact_name,omitempty"`
	MatchedContactCompany string    `json:"matched_contact_company,omitempty"`
}

// MatchReport is the full classification result for one import batch, held in
// session state between upload and confirm/cancel. Incoming carries the parsed
// records so commit does not reparse the staged files.
type MatchReport struct {
	Token      string             `json:"token,omitempty"`
	UserEmail  string             `json:"-"`
	Entries    []*ReportEntry     `json:"contacts"`
	Total      int                `json:"total"`
	Exact      int                `json:"exact_matches"`
	Partial    int                `json:"partial_matches"`
	None       int                `json:"no_matches"`
	StagingRef string             `json:"staging_ref,omitempty"`
	Incoming   []*IncomingContact `json:"-"`
	CreatedAt  time.Time          `json:"created_at"`
}

// ContactAction is a user decision for one report entry.
type ContactAction string

const (
	ActionMerge  ContactAction = "merge"
	ActionCreate ContactAction = "create"
	ActionSkip   ContactAction = "skip"
)

// UnmarshalJSON rejects unknown action tags instead of coercing them.
func (a *ContactAction) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	switch ContactAction(s) {
	case ActionMerge, ActionCreate, ActionSkip:
		*a = ContactAction(s)
		return nil
	default:
		return fmt.Errorf("unknown contact action %q", s)
	}
}

// ItemFailure records one failed item of a commit, identified by report index.
type ItemFailure struct {
	Index  int    `json:"index"`
	Reason string `json:"reason"`
}

// EnrichmentOutcome is the result of committing a match report. A multi-item
// batch always reports per-item failures alongside counts, never a bare
// success flag.
type EnrichmentOutcome struct {
	Merged   int           `json:"merged"`
	Created  int           `json:"created"`
	Skipped  int           `json:"skipped"`
	Failures []ItemFailure `json:"failures"`
}
