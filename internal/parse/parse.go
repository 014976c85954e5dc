// Package parse extracts IncomingContact records from uploaded contact files
// (VCF, CSV, XLSX). Parsing is tolerant: a malformed record or file is skipped
// rather than failing the whole batch.
package parse

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/hyperjump/meishi/internal/models"
)

// SupportedExtensions lists the contact file formats understood by this package.
var SupportedExtensions = []string{".vcf", ".csv", ".xlsx"}

// IsContactFile reports whether path has a supported contact file extension.
func IsContactFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, s := range SupportedExtensions {
		if ext == s {
			return true
		}
	}
	return false
}

// File parses one contact file by extension.
func File(path string) ([]*models.IncomingContact, error) {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".vcf":
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open VCF: %w", err)
		}
		defer f.Close()
		return VCF(f)
	case ".csv":
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open CSV: %w", err)
		}
		defer f.Close()
		return CSV(f)
	case ".xlsx":
		return XLSX(path)
	default:
		return nil, fmt.Errorf("unsupported contact file format: %s", ext)
	}
}

// Files parses every path, skipping files that fail to parse. Per-file errors
// are logged when a logger is given; the batch never fails as a whole.
func Files(paths []string, logger *zap.Logger) []*models.IncomingContact {
	var contacts []*models.IncomingContact
	for _, path := range paths {
		parsed, err := File(path)
		if err != nil {
			if logger != nil {
				logger.Warn("failed to parse contact file", zap.String("path", path), zap.Error(err))
			}
			continue
		}
		contacts = append(contacts, parsed...)
	}
	return contacts
}
