package enrich

import (
	"time"

	"github.com/hyperjump/meishi/internal/models"
)

// BuildReport classifies every incoming contact against the existing set and
// aggregates the results. Entry indices are 0-based and equal the incoming
// contact's position in the batch; stagingRef points at the uploaded files so
// the commit step can clean them up later.
func BuildReport(userEmail string, incoming []*models.IncomingContact, existing []*models.Contact, stagingRef string) *models.MatchReport {
	report := &models.MatchReport{
		UserEmail:  userEmail,
		Entries:    make([]*models.ReportEntry, 0, len(incoming)),
		Total:      len(incoming),
		StagingRef: stagingRef,
		Incoming:   incoming,
		CreatedAt:  time.Now(),
	}

	for i, c := range incoming {
		result := Classify(c, existing)

		entry := &models.ReportEntry{
			Index:     i,
			Name:      NormalizeName(c.Name()),
			Email:     c.Email,
			Phone:     c.Phone,
			MatchType: result.Type,
		}
		if result.Contact != nil {
			id := result.Contact.ID
			entry.MatchedContactID = &id
			entry.MatchedContactName = result.Contact.FullName()
			entry.MatchedContactCompany = result.Contact.Company
		}
		report.Entries = append(report.Entries, entry)

		switch result.Type {
		case models.MatchExact:
			report.Exact++
		case models.MatchPartial:
			report.Partial++
		case models.MatchNone:
			report.None++
		}
	}

	return report
}

// DefaultActions proposes the server-side default per entry: merge for exact
// matches, skip for everything else. Clients may override before commit.
func DefaultActions(report *models.MatchReport) map[int]models.ContactAction {
	actions := make(map[int]models.ContactAction, len(report.Entries))
	for _, e := range report.Entries {
		if e.MatchType == models.MatchExact {
			actions[e.Index] = models.ActionMerge
		} else {
			actions[e.Index] = models.ActionSkip
		}
	}
	return actions
}
