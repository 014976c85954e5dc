// Package storage provides SQLite implementation of the Storage interface.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/meishi/internal/models"
)

// SQLiteStorage implements Storage using SQLite.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS contacts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_email TEXT NOT NULL,
		first_name TEXT NOT NULL DEFAULT '',
		last_name TEXT NOT NULL DEFAULT '',
		email TEXT NOT NULL DEFAULT '',
		phone TEXT NOT NULL DEFAULT '',
		company TEXT NOT NULL DEFAULT '',
		position TEXT NOT NULL DEFAULT '',
		url TEXT NOT NULL DEFAULT '',
		address TEXT NOT NULL DEFAULT '',
		birthday TEXT NOT NULL DEFAULT '',
		notes TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_contacts_user_email ON contacts(user_email);

	CREATE TABLE IF NOT EXISTS contact_files (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		contact_id INTEGER NOT NULL,
		filename TEXT NOT NULL,
		uploaded_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (contact_id) REFERENCES contacts(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_contact_files_contact_id ON contact_files(contact_id);

	CREATE TABLE IF NOT EXISTS chat_messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_email TEXT NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_chat_messages_user_email ON chat_messages(user_email, created_at);
	`
	_, err := db.Exec(schema)
	return err
}

// CreateContact inserts a contact and sets its generated ID.
func (s *SQLiteStorage) CreateContact(ctx context.Context, c *models.Contact) error {
	if c.UserEmail == "" {
		return fmt.Errorf("contact user email is required")
	}
	c.CreatedAt = time.Now()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO contacts (user_email, first_name, last_name, email, phone, company, position, url, address, birthday, notes, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.UserEmail, c.FirstName, c.LastName, c.Email, c.Phone, c.Company, c.Position, c.URL, c.Address, c.Birthday, c.Notes, c.CreatedAt,
	)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	c.ID = id
	return nil
}

// GetContact returns a contact by ID, including attached file names.
func (s *SQLiteStorage) GetContact(ctx context.Context, userEmail string, id int64) (*models.Contact, error) {
	var c models.Contact
	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_email, first_name, last_name, email, phone, company, position, url, address, birthday, notes, created_at
		 FROM contacts WHERE user_email = ? AND id = ?`, userEmail, id,
	).Scan(&c.ID, &c.UserEmail, &c.FirstName, &c.LastName, &c.Email, &c.Phone, &c.Company, &c.Position, &c.URL, &c.Address, &c.Birthday, &c.Notes, &c.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("contact not found: %d", id)
	}
	if err != nil {
		return nil, err
	}

	files, err := s.contactFiles(ctx, c.ID)
	if err != nil {
		return nil, err
	}
	c.Files = files
	return &c, nil
}

// UpdateContact updates an existing contact's fields.
func (s *SQLiteStorage) UpdateContact(ctx context.Context, c *models.Contact) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE contacts SET first_name = ?, last_name = ?, email = ?, phone = ?, company = ?, position = ?, url = ?, address = ?, birthday = ?, notes = ?
		 WHERE user_email = ? AND id = ?`,
		c.FirstName, c.LastName, c.Email, c.Phone, c.Company, c.Position, c.URL, c.Address, c.Birthday, c.Notes,
		c.UserEmail, c.ID,
	)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("contact not found: %d", c.ID)
	}
	return nil
}

// DeleteContact removes a contact; attached file links cascade.
func (s *SQLiteStorage) DeleteContact(ctx context.Context, userEmail string, id int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM contacts WHERE user_email = ? AND id = ?`, userEmail, id)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("contact not found: %d", id)
	}
	return nil
}

// DeleteAllContacts removes every contact for a user and returns the count removed.
func (s *SQLiteStorage) DeleteAllContacts(ctx context.Context, userEmail string) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM contacts WHERE user_email = ?`, userEmail)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// ListContacts returns all contacts for a user ordered by id, with attached file names.
func (s *SQLiteStorage) ListContacts(ctx context.Context, userEmail string) ([]*models.Contact, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_email, first_name, last_name, email, phone, company, position, url, address, birthday, notes, created_at
		 FROM contacts WHERE user_email = ? ORDER BY id`, userEmail)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var contacts []*models.Contact
	for rows.Next() {
		var c models.Contact
		if err := rows.Scan(&c.ID, &c.UserEmail, &c.FirstName, &c.LastName, &c.Email, &c.Phone, &c.Company, &c.Position, &c.URL, &c.Address, &c.Birthday, &c.Notes, &c.CreatedAt); err != nil {
			return nil, err
		}
		contacts = append(contacts, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, c := range contacts {
		files, err := s.contactFiles(ctx, c.ID)
		if err != nil {
			return nil, err
		}
		c.Files = files
	}
	return contacts, nil
}

func (s *SQLiteStorage) contactFiles(ctx context.Context, contactID int64) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT filename FROM contact_files WHERE contact_id = ? ORDER BY id`, contactID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var files []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		files = append(files, name)
	}
	return files, rows.Err()
}

// AddContactFile links a filename to a contact. Duplicate links are ignored.
func (s *SQLiteStorage) AddContactFile(ctx context.Context, contactID int64, filename string) error {
	var exists int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM contact_files WHERE contact_id = ? AND filename = ?`, contactID, filename,
	).Scan(&exists)
	if err != nil {
		return err
	}
	if exists > 0 {
		return nil
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO contact_files (contact_id, filename, uploaded_at) VALUES (?, ?, ?)`,
		contactID, filename, time.Now(),
	)
	return err
}

// RemoveContactFile unlinks a filename from a contact. Returns false when no link existed.
func (s *SQLiteStorage) RemoveContactFile(ctx context.Context, contactID int64, filename string) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM contact_files WHERE contact_id = ? AND filename = ?`, contactID, filename)
	if err != nil {
		return false, err
	}
	n, _ := result.RowsAffected()
	return n > 0, nil
}

// SaveMessage appends a chat message to the user's history.
func (s *SQLiteStorage) SaveMessage(ctx context.Context, m *models.ChatMessage) error {
	m.CreatedAt = time.Now()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO chat_messages (user_email, role, content, created_at) VALUES (?, ?, ?, ?)`,
		m.UserEmail, m.Role, m.Content, m.CreatedAt,
	)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	m.ID = id
	return nil
}

// GetHistory returns the most recent limit messages in chronological order.
// limit <= 0 returns the full history.
func (s *SQLiteStorage) GetHistory(ctx context.Context, userEmail string, limit int) ([]*models.ChatMessage, error) {
	query := `SELECT id, user_email, role, content, created_at FROM chat_messages
		 WHERE user_email = ? ORDER BY id DESC`
	args := []interface{}{userEmail}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []*models.ChatMessage
	for rows.Next() {
		var m models.ChatMessage
		if err := rows.Scan(&m.ID, &m.UserEmail, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, err
		}
		messages = append(messages, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// Reverse into chronological order.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// ClearHistory removes all chat messages for a user.
func (s *SQLiteStorage) ClearHistory(ctx context.Context, userEmail string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM chat_messages WHERE user_email = ?`, userEmail)
	return err
}

// CountContacts returns the total number of contacts across all users.
func (s *SQLiteStorage) CountContacts(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM contacts`).Scan(&count)
	return count, err
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
