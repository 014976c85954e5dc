package indexer

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/hyperjump/meishi/internal/embedding"
	"github.com/hyperjump/meishi/internal/keyword"
	"github.com/hyperjump/meishi/internal/models"
	"github.com/hyperjump/meishi/internal/storage"
	"github.com/hyperjump/meishi/internal/vector"
)

func newTestIndexer(t *testing.T) (*Indexer, storage.Storage, *vector.MemoryIndex, keyword.Index) {
	t.Helper()
	store, err := storage.NewSQLiteStorage(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	vectorIndex, err := vector.NewMemoryIndex(64)
	if err != nil {
		t.Fatalf("failed to create vector index: %v", err)
	}
	keywordIndex, err := keyword.NewMemoryBleveIndex()
	if err != nil {
		t.Fatalf("failed to create keyword index: %v", err)
	}
	t.Cleanup(func() { keywordIndex.Close() })

	idx := NewIndexer(store, embedding.NewMockEmbedder(64), vectorIndex, keywordIndex, zap.NewNop())
	return idx, store, vectorIndex, keywordIndex
}

func TestCardText(t *testing.T) {
	c := &models.Contact{
		FirstName: "John",
		LastName:  "Doe",
		Company:   "Acme Corp",
		Email:     "john@example.com",
	}
	text := CardText(c)
	for _, want := range []string{"--- CONTACT CARD ---", "Name: John Doe", "Company: Acme Corp", "Email: john@example.com"} {
		if !strings.Contains(text, want) {
			t.Errorf("card text missing %q:\n%s", want, text)
		}
	}
	if strings.Contains(text, "Phone:") {
		t.Error("empty fields must be omitted from the card")
	}
}

func TestIndexContactCard(t *testing.T) {
	idx, store, vectorIndex, keywordIndex := newTestIndexer(t)
	ctx := context.Background()

	contact := &models.Contact{UserEmail: "u@x.com", FirstName: "Jane", LastName: "Smith", Company: "Globex"}
	if err := store.CreateContact(ctx, contact); err != nil {
		t.Fatalf("failed to create contact: %v", err)
	}
	if err := idx.IndexContactCard(ctx, contact); err != nil {
		t.Fatalf("IndexContactCard failed: %v", err)
	}

	if vectorIndex.Size() != 1 {
		t.Errorf("expected 1 vector entry, got %d", vectorIndex.Size())
	}
	hits, err := keywordIndex.Search(ctx, "u@x.com", "Globex", 10)
	if err != nil {
		t.Fatalf("keyword search failed: %v", err)
	}
	if len(hits) != 1 {
		t.Errorf("expected keyword hit for company, got %d", len(hits))
	}

	// Reindexing the same contact replaces the card rather than duplicating it.
	contact.Company = "Initech"
	if err := idx.IndexContactCard(ctx, contact); err != nil {
		t.Fatalf("reindex failed: %v", err)
	}
	if vectorIndex.Size() != 1 {
		t.Errorf("expected card to be replaced, size=%d", vectorIndex.Size())
	}
}

func TestIndexContactFile(t *testing.T) {
	idx, store, vectorIndex, _ := newTestIndexer(t)
	ctx := context.Background()

	contact := &models.Contact{UserEmail: "u@x.com", FirstName: "Jane", LastName: "Smith"}
	if err := store.CreateContact(ctx, contact); err != nil {
		t.Fatalf("failed to create contact: %v", err)
	}

	path := filepath.Join(t.TempDir(), "notes.txt")
	if err := os.WriteFile(path, []byte("Met Jane at the conference. Follow up about the Globex deal."), 0644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}
	if err := idx.IndexContactFile(ctx, contact, path); err != nil {
		t.Fatalf("IndexContactFile failed: %v", err)
	}

	ns := PersonNamespace("u@x.com", contact.ID)
	found := false
	for _, n := range vectorIndex.Namespaces() {
		if n == ns {
			found = true
		}
	}
	if !found {
		t.Errorf("person namespace %q not created, have %v", ns, vectorIndex.Namespaces())
	}

	stored, err := store.GetContact(ctx, "u@x.com", contact.ID)
	if err != nil {
		t.Fatalf("failed to reload contact: %v", err)
	}
	if len(stored.Files) != 1 || stored.Files[0] != "notes.txt" {
		t.Errorf("file not linked to contact: %v", stored.Files)
	}
}

func TestDeleteContactFile(t *testing.T) {
	idx, store, vectorIndex, _ := newTestIndexer(t)
	ctx := context.Background()

	contact := &models.Contact{UserEmail: "u@x.com", FirstName: "Jane", LastName: "Smith"}
	if err := store.CreateContact(ctx, contact); err != nil {
		t.Fatalf("failed to create contact: %v", err)
	}
	dir := t.TempDir()
	for _, name := range []string{"resume.txt", "notes.txt"} {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte("content of "+name), 0644); err != nil {
			t.Fatalf("failed to write file: %v", err)
		}
		if err := idx.IndexContactFile(ctx, contact, path); err != nil {
			t.Fatalf("IndexContactFile failed: %v", err)
		}
	}
	sizeBefore := vectorIndex.Size()

	removed, err := idx.DeleteContactFile(ctx, contact, "resume.txt")
	if err != nil {
		t.Fatalf("DeleteContactFile failed: %v", err)
	}
	if !removed {
		t.Fatal("expected file to be removed")
	}
	if vectorIndex.Size() >= sizeBefore {
		t.Errorf("document vectors not removed: before=%d after=%d", sizeBefore, vectorIndex.Size())
	}

	stored, err := store.GetContact(ctx, "u@x.com", contact.ID)
	if err != nil {
		t.Fatalf("failed to reload contact: %v", err)
	}
	if len(stored.Files) != 1 || stored.Files[0] != "notes.txt" {
		t.Errorf("unexpected remaining files: %v", stored.Files)
	}

	removed, err = idx.DeleteContactFile(ctx, contact, "ghost.txt")
	if err != nil {
		t.Fatalf("DeleteContactFile failed: %v", err)
	}
	if removed {
		t.Error("expected false for file that was never linked")
	}
}

func TestDeleteContact(t *testing.T) {
	idx, store, vectorIndex, keywordIndex := newTestIndexer(t)
	ctx := context.Background()

	contact := &models.Contact{UserEmail: "u@x.com", FirstName: "Jane", LastName: "Smith"}
	if err := store.CreateContact(ctx, contact); err != nil {
		t.Fatalf("failed to create contact: %v", err)
	}
	if err := idx.IndexContactCard(ctx, contact); err != nil {
		t.Fatalf("IndexContactCard failed: %v", err)
	}

	if err := idx.DeleteContact(ctx, contact); err != nil {
		t.Fatalf("DeleteContact failed: %v", err)
	}
	if vectorIndex.Size() != 0 {
		t.Errorf("card vector not removed, size=%d", vectorIndex.Size())
	}
	hits, err := keywordIndex.Search(ctx, "u@x.com", "Smith", 10)
	if err != nil {
		t.Fatalf("keyword search failed: %v", err)
	}
	if len(hits) != 0 {
		t.Errorf("keyword card not removed: %v", hits)
	}
	if _, err := store.GetContact(ctx, "u@x.com", contact.ID); err == nil {
		t.Error("contact still present in storage")
	}
}

func TestReindexUser(t *testing.T) {
	idx, store, vectorIndex, _ := newTestIndexer(t)
	ctx := context.Background()

	for _, name := range []string{"Jane", "John", "Mary"} {
		c := &models.Contact{UserEmail: "u@x.com", FirstName: name, LastName: "Smith"}
		if err := store.CreateContact(ctx, c); err != nil {
			t.Fatalf("failed to create contact: %v", err)
		}
	}
	n, err := idx.ReindexUser(ctx, "u@x.com")
	if err != nil {
		t.Fatalf("ReindexUser failed: %v", err)
	}
	if n != 3 {
		t.Errorf("expected 3 reindexed, got %d", n)
	}
	if vectorIndex.Size() != 3 {
		t.Errorf("expected 3 card vectors, got %d", vectorIndex.Size())
	}
}

func TestChunkerOverlap(t *testing.T) {
	c := NewChunker(10, 3)
	words := make([]string, 25)
	for i := range words {
		words[i] = "w"
	}
	chunks := c.Chunk(strings.Join(words, " "))
	if len(chunks) == 0 {
		t.Fatal("expected chunks")
	}
	for i, chunk := range chunks {
		n := len(strings.Fields(chunk))
		if n > 10 {
			t.Errorf("chunk %d has %d words", i, n)
		}
	}
	if c.Chunk("") != nil {
		t.Error("empty text must yield no chunks")
	}
}
