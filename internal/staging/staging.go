// Package staging manages temporary on-disk storage for uploaded contact
// files between the import preview and its confirmation.
package staging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Store holds uploaded files in per-import directories under a base path.
// Each import session gets a ref; all of its files live under that ref's
// directory and are removed together when the session ends.
type Store struct {
	baseDir string
}

// NewStore creates the base directory if needed.
func NewStore(baseDir string) (*Store, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create staging directory: %w", err)
	}
	return &Store{baseDir: baseDir}, nil
}

// Create allocates a new staging ref for an import session.
func (s *Store) Create() (string, error) {
	ref := uuid.New().String()
	if err := os.MkdirAll(s.dir(ref), 0755); err != nil {
		return "", fmt.Errorf("failed to create staging area: %w", err)
	}
	return ref, nil
}

// Save writes one uploaded file into the ref's staging area and returns the
// staged path.
func (s *Store) Save(ref, filename string, r io.Reader) (string, error) {
	if err := validateRef(ref); err != nil {
		return "", err
	}
	// Strip any client-supplied directory components.
	name := filepath.Base(filename)
	if name == "." || name == string(filepath.Separator) {
		return "", fmt.Errorf("invalid filename: %q", filename)
	}

	path := filepath.Join(s.dir(ref), name)
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create staged file: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, r); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("failed to write staged file: %w", err)
	}
	return path, nil
}

// List returns the paths of all files staged under ref.
func (s *Store) List(ref string) ([]string, error) {
	if err := validateRef(ref); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(s.dir(ref))
	if err != nil {
		return nil, fmt.Errorf("failed to read staging area: %w", err)
	}
	var paths []string
	for _, e := range entries {
		if !e.IsDir() {
			paths = append(paths, filepath.Join(s.dir(ref), e.Name()))
		}
	}
	return paths, nil
}

// Remove deletes the ref's staging area and everything in it. Removing a ref
// that no longer exists is not an error.
func (s *Store) Remove(ref string) error {
	if err := validateRef(ref); err != nil {
		return err
	}
	if err := os.RemoveAll(s.dir(ref)); err != nil {
		return fmt.Errorf("failed to remove staging area: %w", err)
	}
	return nil
}

func (s *Store) dir(ref string) string {
	return filepath.Join(s.baseDir, ref)
}

// validateRef rejects refs that could escape the base directory.
func validateRef(ref string) error {
	if ref == "" || strings.ContainsAny(ref, "/\\") || strings.Contains(ref, "..") {
		return fmt.Errorf("invalid staging ref: %q", ref)
	}
	return nil
}
