package enrich

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hyperjump/meishi/internal/models"
)

// ContactWriter is the subset of the contact store the committer uses.
type ContactWriter interface {
	CreateContact(ctx context.Context, c *models.Contact) error
	GetContact(ctx context.Context, userEmail string, id int64) (*models.Contact, error)
	UpdateContact(ctx context.Context, c *models.Contact) error
}

// CardIndexer refreshes a contact's search-index card after it changes.
type CardIndexer interface {
	IndexContactCard(ctx context.Context, contact *models.Contact) error
}

// StagingCleaner removes the staged upload behind a committed or cancelled
// import.
type StagingCleaner interface {
	Remove(ref string) error
}

// Committer applies a reviewed match report against the contact store and
// search indexes.
type Committer struct {
	store   ContactWriter
	indexer CardIndexer
	staging StagingCleaner
	logger  *zap.Logger
}

func NewCommitter(store ContactWriter, indexer CardIndexer, staging StagingCleaner, logger *zap.Logger) *Committer {
	return &Committer{store: store, indexer: indexer, staging: staging, logger: logger}
}

// Commit validates the action map, then applies the resolved actions
// sequentially in index order. Item-level store failures are recorded in the
// outcome and do not stop the batch. Staged files are removed as a final step
// no matter how the commit went. When overwrite is true, non-empty incoming
// fields replace existing values on merge; when false, only empty fields are
// filled.
func (c *Committer) Commit(ctx context.Context, report *models.MatchReport, actions map[int]models.ContactAction, overwrite bool) (*models.EnrichmentOutcome, error) {
	defer c.cleanup(report)

	resolved, err := ResolveActions(report, actions)
	if err != nil {
		return nil, err
	}

	outcome := &models.EnrichmentOutcome{Failures: []models.ItemFailure{}}
	var changed []*models.Contact

	for _, entry := range report.Entries {
		incoming := report.Incoming[entry.Index]

		switch resolved[entry.Index] {
		case models.ActionSkip:
			outcome.Skipped++

		case models.ActionCreate:
			contact := contactFromIncoming(report.UserEmail, incoming)
			if err := c.store.CreateContact(ctx, contact); err != nil {
				outcome.Failures = append(outcome.Failures, models.ItemFailure{Index: entry.Index, Reason: err.Error()})
				continue
			}
			outcome.Created++
			changed = append(changed, contact)

		case models.ActionMerge:
			// Re-read the target so merges of two incoming records into the
			// same contact apply last-write-wins in index order.
			contact, err := c.store.GetContact(ctx, report.UserEmail, *entry.MatchedContactID)
			if err != nil {
				outcome.Failures = append(outcome.Failures, models.ItemFailure{Index: entry.Index, Reason: err.Error()})
				continue
			}
			mergeFields(contact, incoming, overwrite)
			if err := c.store.UpdateContact(ctx, contact); err != nil {
				outcome.Failures = append(outcome.Failures, models.ItemFailure{Index: entry.Index, Reason: err.Error()})
				continue
			}
			outcome.Merged++
			changed = append(changed, contact)
		}
	}

	c.reindex(ctx, changed)
	return outcome, nil
}

// Cancel discards a pending report. Contact data is never touched; only the
// staged files go away.
func (c *Committer) Cancel(report *models.MatchReport) {
	c.cleanup(report)
}

// reindex refreshes the search cards of created and merged contacts. Index
// failures are logged, not reported as item failures: the store write already
// succeeded and the card can be rebuilt later.
func (c *Committer) reindex(ctx context.Context, contacts []*models.Contact) {
	if c.indexer == nil || len(contacts) == 0 {
		return
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, contact := range contacts {
		contact := contact
		g.Go(func() error {
			if err := c.indexer.IndexContactCard(gctx, contact); err != nil {
				c.logger.Warn("failed to index contact card",
					zap.Int64("contact_id", contact.ID),
					zap.Error(err))
			}
			return nil
		})
	}
	g.Wait()
}

// cleanup removes the staged upload. Best-effort housekeeping: a failure is
// logged and never surfaced as a failure of the enrichment itself.
func (c *Committer) cleanup(report *models.MatchReport) {
	if report.StagingRef == "" {
		return
	}
	if err := c.staging.Remove(report.StagingRef); err != nil {
		c.logger.Warn("failed to remove staged import files",
			zap.String("staging_ref", report.StagingRef),
			zap.Error(err))
	}
}

func contactFromIncoming(userEmail string, in *models.IncomingContact) *models.Contact {
	first, last := in.FirstName, in.LastName
	if first == "" && last == "" {
		first, last = SplitName(in.Name())
	}
	return &models.Contact{
		UserEmail: userEmail,
		FirstName: first,
		LastName:  last,
		Email:     in.Email,
		Phone:     in.Phone,
		Company:   in.Company,
		Position:  in.Position,
		URL:       in.URL,
		Address:   in.Address,
		Birthday:  in.Birthday,
		Notes:     in.Notes,
	}
}

// mergeFields copies incoming fields onto an existing contact. Empty incoming
// values never replace anything; name fields in particular are never
// downgraded to empty.
func mergeFields(dst *models.Contact, in *models.IncomingContact, overwrite bool) {
	first, last := in.FirstName, in.LastName
	if first == "" && last == "" {
		first, last = SplitName(in.Name())
	}
	setField(&dst.FirstName, first, overwrite)
	setField(&dst.LastName, last, overwrite)
	setField(&dst.Email, in.Email, overwrite)
	setField(&dst.Phone, in.Phone, overwrite)
	setField(&dst.Company, in.Company, overwrite)
	setField(&dst.Position, in.Position, overwrite)
	setField(&dst.URL, in.URL, overwrite)
	setField(&dst.Address, in.Address, overwrite)
	setField(&dst.Birthday, in.Birthday, overwrite)
	setField(&dst.Notes, in.Notes, overwrite)
}

func setField(dst *string, src string, overwrite bool) {
	if src == "" {
		return
	}
	if overwrite || *dst == "" {
		*dst = src
	}
}
