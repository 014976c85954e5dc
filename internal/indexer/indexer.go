// Package indexer maintains the search indexes derived from contact data:
// one embedded card per contact in the user's vector namespace, a keyword
// card in the bleve index, and per-contact document namespaces for attached
// files.
package indexer

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/meishi/internal/embedding"
	"github.com/hyperjump/meishi/internal/extract"
	"github.com/hyperjump/meishi/internal/keyword"
	"github.com/hyperjump/meishi/internal/models"
	"github.com/hyperjump/meishi/internal/storage"
	"github.com/hyperjump/meishi/internal/vector"
	"github.com/hyperjump/meishi/pkg/utils"
)

const (
	defaultChunkSize    = 200
	defaultChunkOverlap = 40
)

// UserNamespace is the vector namespace holding a user's contact cards.
func UserNamespace(userEmail string) string {
	return userEmail
}

// PersonNamespace is the vector namespace holding documents attached to one
// contact.
func PersonNamespace(userEmail string, contactID int64) string {
	return fmt.Sprintf("%s_person_%d", userEmail, contactID)
}

// Indexer writes contact cards and attached documents into the vector and
// keyword indexes.
type Indexer struct {
	storage      storage.Storage
	embedder     embedding.Embedder
	vectorIndex  vector.Index
	keywordIndex keyword.Index
	extractor    *extract.Extractor
	chunker      *Chunker
	logger       *zap.Logger
}

func NewIndexer(
	store storage.Storage,
	embedder embedding.Embedder,
	vectorIndex vector.Index,
	keywordIndex keyword.Index,
	logger *zap.Logger,
) *Indexer {
	return &Indexer{
		storage:      store,
		embedder:     embedder,
		vectorIndex:  vectorIndex,
		keywordIndex: keywordIndex,
		extractor:    extract.NewExtractor(),
		chunker:      NewChunker(defaultChunkSize, defaultChunkOverlap),
		logger:       logger,
	}
}

// IndexContactCard replaces a contact's card in both indexes. Called after
// every create or merge so search always reflects the stored fields.
func (idx *Indexer) IndexContactCard(ctx context.Context, contact *models.Contact) error {
	contactID := strconv.FormatInt(contact.ID, 10)
	text := CardText(contact)

	embeddingVec, err := idx.embedder.Embed(ctx, text)
	if err != nil {
		return fmt.Errorf("failed to embed contact card: %w", err)
	}

	ns := UserNamespace(contact.UserEmail)
	if err := idx.vectorIndex.RemoveByOwner(ctx, ns, contactID); err != nil {
		return fmt.Errorf("failed to remove stale card vectors: %w", err)
	}
	entry := &vector.Entry{
		ID:     contactID + "_card",
		Owner:  contactID,
		Text:   text,
		Vector: embeddingVec,
	}
	if err := idx.vectorIndex.Add(ctx, ns, []*vector.Entry{entry}); err != nil {
		return fmt.Errorf("failed to index card vector: %w", err)
	}

	card := &keyword.Card{
		ID:        contactID,
		UserEmail: contact.UserEmail,
		Name:      contact.FullName(),
		Company:   contact.Company,
		Position:  contact.Position,
		Notes:     contact.Notes,
	}
	if err := idx.keywordIndex.Index(ctx, contactID, card); err != nil {
		return fmt.Errorf("failed to index keyword card: %w", err)
	}

	idx.logger.Debug("contact card indexed",
		zap.Int64("contact_id", contact.ID),
		zap.String("namespace", ns))
	return nil
}

// IndexContactFile extracts a document, chunks it, and indexes the chunks
// into the contact's person namespace. The file is also linked to the contact
// in storage so deletes can cascade.
func (idx *Indexer) IndexContactFile(ctx context.Context, contact *models.Contact, path string) error {
	filename := filepath.Base(path)

	text, err := idx.extractor.Extract(path)
	if err != nil {
		return fmt.Errorf("failed to extract %s: %w", filename, err)
	}
	chunks := idx.chunker.Chunk(documentAnchor(contact, filename) + text)
	if len(chunks) == 0 {
		return fmt.Errorf("no indexable content in %s", filename)
	}

	embeddings, err := idx.embedder.EmbedBatch(ctx, chunks)
	if err != nil {
		return fmt.Errorf("failed to embed document chunks: %w", err)
	}

	// Chunks are owned by their source filename so re-uploading or deleting
	// one file leaves the contact's other documents alone.
	entries := make([]*vector.Entry, len(chunks))
	for i, chunk := range chunks {
		entries[i] = &vector.Entry{
			ID:     fmt.Sprintf("%s_%s", filename, uuid.New().String()[:8]),
			Owner:  filename,
			Text:   chunk,
			Vector: embeddings[i],
		}
	}
	ns := PersonNamespace(contact.UserEmail, contact.ID)
	if err := idx.vectorIndex.RemoveByOwner(ctx, ns, filename); err != nil {
		return fmt.Errorf("failed to remove stale document vectors: %w", err)
	}
	if err := idx.vectorIndex.Add(ctx, ns, entries); err != nil {
		return fmt.Errorf("failed to index document vectors: %w", err)
	}

	if err := idx.storage.AddContactFile(ctx, contact.ID, filename); err != nil {
		return fmt.Errorf("failed to link file to contact: %w", err)
	}

	idx.logger.Debug("contact file indexed",
		zap.Int64("contact_id", contact.ID),
		zap.String("file", filename),
		zap.Int("chunks", len(chunks)),
		zap.String("preview", utils.TruncateWords(text, 12)))
	return nil
}

// DeleteContact removes a contact from every index and then from storage:
// keyword card, card vector, and the whole person namespace.
func (idx *Indexer) DeleteContact(ctx context.Context, contact *models.Contact) error {
	contactID := strconv.FormatInt(contact.ID, 10)

	if err := idx.keywordIndex.Delete(ctx, contactID); err != nil {
		return fmt.Errorf("failed to delete keyword card: %w", err)
	}
	if err := idx.vectorIndex.RemoveByOwner(ctx, UserNamespace(contact.UserEmail), contactID); err != nil {
		return fmt.Errorf("failed to delete card vector: %w", err)
	}
	if err := idx.vectorIndex.DeleteNamespace(ctx, PersonNamespace(contact.UserEmail, contact.ID)); err != nil {
		return fmt.Errorf("failed to delete person namespace: %w", err)
	}
	if err := idx.storage.DeleteContact(ctx, contact.UserEmail, contact.ID); err != nil {
		return fmt.Errorf("failed to delete contact: %w", err)
	}
	return nil
}

// DeleteContactFile unlinks one attached file and removes its chunks from the
// contact's person namespace. Returns false when the file was not linked.
func (idx *Indexer) DeleteContactFile(ctx context.Context, contact *models.Contact, filename string) (bool, error) {
	removed, err := idx.storage.RemoveContactFile(ctx, contact.ID, filename)
	if err != nil {
		return false, fmt.Errorf("failed to unlink file: %w", err)
	}
	if !removed {
		return false, nil
	}
	ns := PersonNamespace(contact.UserEmail, contact.ID)
	if err := idx.vectorIndex.RemoveByOwner(ctx, ns, filename); err != nil {
		return true, fmt.Errorf("failed to remove document vectors: %w", err)
	}
	return true, nil
}

// ReindexUser rebuilds every contact card for one user. Used to repopulate
// the indexes after the vector index file is lost or the schema changes.
func (idx *Indexer) ReindexUser(ctx context.Context, userEmail string) (int, error) {
	contacts, err := idx.storage.ListContacts(ctx, userEmail)
	if err != nil {
		return 0, fmt.Errorf("failed to list contacts: %w", err)
	}
	n := 0
	for _, contact := range contacts {
		if err := idx.IndexContactCard(ctx, contact); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}
