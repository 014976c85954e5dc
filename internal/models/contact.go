// Package models defines core data structures for contacts, imports, and reconciliation.
package models

import (
	"strings"
	"time"
)

// Contact represents a persisted contact scoped to one user.
type Contact struct {
	ID        int64     `json:"id" db:"id"`
	UserEmail string    `json:"-" db:"user_email"`
	FirstName string    `json:"first_name" db:"first_name"`
	LastName  string    `json:"last_name" db:"last_name"`
	Email     string    `json:"email,omitempty" db:"email"`
	Phone     string    `json:"phone,omitempty" db:"phone"`
	Company   string    `json:"company,omitempty" db:"company"`
	Position  string    `json:"position,omitempty" db:"position"`
	URL       string    `json:"url,omitempty" db:"url"`
	Address   string    `json:"address,omitempty" db:"address"`
	Birthday  string    `json:"birthday,omitempty" db:"birthday"`
	Notes     string    `json:"notes,omitempty" db:"notes"`
	Files     []string  `json:"files,omitempty" db:"-"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// FullName returns "First Last" with empty components omitted.
func (c *Contact) FullName() string {
	return strings.TrimSpace(c.FirstName + " " + c.LastName)
}

// IncomingContact is a contact record extracted from an uploaded file (VCF, CSV,
// XLSX). It exists only for the duration of one import session. FullName is set
// by VCF parsing; FirstName/LastName by CSV/XLSX parsing. At least one of the
// two forms is populated.
type IncomingContact struct {
	FullName  string `json:"full_name,omitempty"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Email     string `json:"email,omitempty"`
	Phone     string `json:"phone,omitempty"`
	Company   string `json:"company,omitempty"`
	Position  string `json:"position,omitempty"`
	URL       string `json:"url,omitempty"`
	Address   string `json:"address,omitempty"`
	Birthday  string `json:"birthday,omitempty"`
	Notes     string `json:"notes,omitempty"`
}

// Name returns the display name: FullName when set, otherwise "First Last".
func (c *IncomingContact) Name() string {
	if c.FullName != "" {
		return c.FullName
	}
	return strings.TrimSpace(c.FirstName + " " + c.LastName)
}

// ChatMessage is one entry in a user's assistant conversation history.
type ChatMessage struct {
	ID        int64     `json:"id" db:"id"`
	UserEmail string    `json:"-" db:"user_email"`
	Role      string    `json:"role" db:"role"`
	Content   string    `json:"content" db:"content"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
