// Package storage defines the persistence interface for contacts, attached
// files, and chat history.
package storage

import (
	"context"

	"github.com/hyperjump/meishi/internal/models"
)

// Storage defines contact and chat history persistence operations. All contact
// operations are scoped to one user (identified by email).
type Storage interface {
	// Contact operations. ListContacts returns contacts ordered by id so that
	// match classification enumerates the existing set deterministically.
	CreateContact(ctx context.Context, c *models.Contact) error
	GetContact(ctx context.Context, userEmail string, id int64) (*models.Contact, error)
	UpdateContact(ctx context.Context, c *models.Contact) error
	DeleteContact(ctx context.Context, userEmail string, id int64) error
	DeleteAllContacts(ctx context.Context, userEmail string) (int64, error)
	ListContacts(ctx context.Context, userEmail string) ([]*models.Contact, error)

	// Attached file links (deleted with their contact via cascade).
	AddContactFile(ctx context.Context, contactID int64, filename string) error
	RemoveContactFile(ctx context.Context, contactID int64, filename string) (bool, error)

	// Chat history
	SaveMessage(ctx context.Context, m *models.ChatMessage) error
	GetHistory(ctx context.Context, userEmail string, limit int) ([]*models.ChatMessage, error)
	ClearHistory(ctx context.Context, userEmail string) error

	// Stats
	CountContacts(ctx context.Context) (int64, error)

	Close() error
}
