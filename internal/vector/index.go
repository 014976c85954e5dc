// Package vector provides a namespace-partitioned vector index with
// similarity search. Namespaces isolate one user's data (and one contact's
// attached documents) from everyone else's.
package vector

import "context"

// Entry is a single stored vector with its chunk text and an owner key. The
// owner is the removal unit within a namespace: the contact id for card
// entries, the source filename for attached-document chunks.
type Entry struct {
	ID     string
	Owner  string
	Text   string
	Vector []float32
}

// Result is a single vector search hit.
type Result struct {
	ID    string
	Owner string
	Text  string
	Score float64 // inner product; cosine similarity for normalized vectors
}

// Index defines namespaced vector storage and similarity search.
type Index interface {
	Add(ctx context.Context, namespace string, entries []*Entry) error
	Search(ctx context.Context, namespace string, query []float32, k int) ([]*Result, error)
	// RemoveByOwner removes every entry in namespace with the given owner key.
	RemoveByOwner(ctx context.Context, namespace, owner string) error
	// DeleteNamespace drops a namespace and everything in it.
	DeleteNamespace(ctx context.Context, namespace string) error
	Namespaces() []string
	Size() int
	Save(path string) error
	Load(path string) error
	Close() error
}
