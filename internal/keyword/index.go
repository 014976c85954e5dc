// Package keyword provides keyword search over contact cards.
package keyword

import "context"

// Card is the keyword-indexed projection of a contact.
type Card struct {
	ID        string `json:"id"`
	UserEmail string `json:"user_email"`
	Name      string `json:"name"`
	Company   string `json:"company"`
	Position  string `json:"position"`
	Notes     string `json:"notes"`
}

// Result is a single keyword search hit.
type Result struct {
	ID    string
	Score float64
}

// Index defines keyword indexing and search over contact cards.
type Index interface {
	Index(ctx context.Context, id string, card *Card) error
	Delete(ctx context.Context, id string) error
	// Search returns up to limit hits for query, restricted to one user's cards.
	Search(ctx context.Context, userEmail, query string, limit int) ([]*Result, error)
	Close() error
}
