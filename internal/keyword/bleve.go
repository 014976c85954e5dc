// Package keyword provides the Bleve implementation of Index.
package keyword

import (
	"context"
	"fmt"
	"os"

	"github.com/blevesearch/bleve/v2"
	keywordanalyzer "github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	blevequery "github.com/blevesearch/bleve/v2/search/query"
)

// BleveIndex implements Index using Bleve.
type BleveIndex struct {
	index bleve.Index
}

// NewBleveIndex creates or opens a Bleve index at path.
// If the path already exists, the existing index is opened and reused. If you
// change the index mapping in code, remove the index directory to force a full re-index.
func NewBleveIndex(path string) (*BleveIndex, error) {
	im := cardIndexMapping()

	if _, err := os.Stat(path); err == nil {
		index, openErr := bleve.Open(path)
		if openErr != nil {
			return nil, fmt.Errorf("failed to open Bleve index: %w", openErr)
		}
		return &BleveIndex{index: index}, nil
	}

	index, err := bleve.New(path, im)
	if err != nil {
		return nil, fmt.Errorf("failed to create Bleve index: %w", err)
	}
	return &BleveIndex{index: index}, nil
}

func cardIndexMapping() mapping.IndexMapping {
	im := bleve.NewIndexMapping()

	cardMapping := bleve.NewDocumentMapping()
	textFieldMapping := bleve.NewTextFieldMapping()
	// Standard analyzer (lowercase + tokenize, no stemming) so "Kashibhatla"
	// matches exactly what was typed.
	textFieldMapping.Analyzer = standard.Name
	cardMapping.AddFieldMappingsAt("name", textFieldMapping)
	cardMapping.AddFieldMappingsAt("company", textFieldMapping)
	cardMapping.AddFieldMappingsAt("position", textFieldMapping)
	cardMapping.AddFieldMappingsAt("notes", textFieldMapping)

	keywordFieldMapping := bleve.NewTextFieldMapping()
	keywordFieldMapping.Analyzer = keywordanalyzer.Name
	cardMapping.AddFieldMappingsAt("id", keywordFieldMapping)
	cardMapping.AddFieldMappingsAt("user_email", keywordFieldMapping)

	im.AddDocumentMapping("card", cardMapping)
	im.DefaultType = "card"
	im.DefaultMapping = cardMapping
	return im
}

// NewMemoryBleveIndex creates an in-memory Bleve index for tests.
func NewMemoryBleveIndex() (*BleveIndex, error) {
	index, err := bleve.NewMemOnly(cardIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory Bleve index: %w", err)
	}
	return &BleveIndex{index: index}, nil
}

// Index indexes a contact card by id. Re-indexing an existing id replaces it.
func (b *BleveIndex) Index(ctx context.Context, id string, card *Card) error {
	return b.index.Index(id, card)
}

// Delete removes a card by id.
func (b *BleveIndex) Delete(ctx context.Context, id string) error {
	return b.index.Delete(id)
}

// Search runs a match query over card fields, restricted to one user.
func (b *BleveIndex) Search(ctx context.Context, userEmail, query string, limit int) ([]*Result, error) {
	if limit <= 0 {
		limit = 10
	}

	fields := []string{"name", "company", "position", "notes"}
	fieldQueries := make([]blevequery.Query, 0, len(fields))
	for _, field := range fields {
		mq := bleve.NewMatchQuery(query)
		mq.SetField(field)
		fieldQueries = append(fieldQueries, mq)
	}
	contentQuery := bleve.NewDisjunctionQuery(fieldQueries...)

	userQuery := bleve.NewTermQuery(userEmail)
	userQuery.SetField("user_email")

	searchRequest := bleve.NewSearchRequestOptions(
		bleve.NewConjunctionQuery(userQuery, contentQuery), limit, 0, false)
	searchResult, err := b.index.Search(searchRequest)
	if err != nil {
		return nil, fmt.Errorf("keyword search: %w", err)
	}

	results := make([]*Result, 0, len(searchResult.Hits))
	for _, hit := range searchResult.Hits {
		results = append(results, &Result{ID: hit.ID, Score: hit.Score})
	}
	return results, nil
}

// Close closes the underlying index.
func (b *BleveIndex) Close() error {
	return b.index.Close()
}
