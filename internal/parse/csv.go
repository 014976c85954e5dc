package parse

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/hyperjump/meishi/internal/models"
)

// Column-name variants seen in exports from common contact managers
// (Google Contacts, Outlook, LinkedIn). Matching is case-insensitive.
var columnVariants = map[string][]string{
	"first_name": {"first name", "firstname", "given name", "first"},
	"last_name":  {"last name", "lastname", "family name", "surname", "last"},
	"full_name":  {"full name", "name", "display name"},
	"email":      {"email", "e-mail", "email address", "e-mail address", "email 1 - value"},
	"phone":      {"phone", "phone number", "mobile", "telephone", "phone 1 - value"},
	"company":    {"company", "organization", "organisation", "employer", "organization name"},
	"position":   {"position", "title", "job title", "role", "organization title"},
	"url":        {"url", "website", "web site", "profile url", "linkedin"},
}

// CSV parses contact rows from r. The delimiter is sniffed from the header
// line and the header row may be preceded by preamble lines, which some
// exporters emit.
func CSV(r io.Reader) ([]*models.IncomingContact, error) {
	br := bufio.NewReader(r)
	delim, err := sniffDelimiter(br)
	if err != nil {
		return nil, err
	}

	cr := csv.NewReader(br)
	cr.Comma = delim
	cr.FieldsPerRecord = -1

	rows, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}

	headerIdx, columns := findHeader(rows)
	if columns == nil {
		return nil, fmt.Errorf("no recognizable header row in csv")
	}

	var contacts []*models.IncomingContact
	for _, row := range rows[headerIdx+1:] {
		c := rowToContact(row, columns)
		if c != nil {
			contacts = append(contacts, c)
		}
	}
	return contacts, nil
}

// sniffDelimiter peeks at the first line and picks the candidate delimiter
// that splits it into the most fields.
func sniffDelimiter(br *bufio.Reader) (rune, error) {
	peek, err := br.Peek(4096)
	if err != nil && err != io.EOF && err != bufio.ErrBufferFull {
		return 0, fmt.Errorf("read csv: %w", err)
	}
	line := string(peek)
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}

	best := ','
	bestCount := 0
	for _, d := range []rune{',', ';', '\t', '|'} {
		if n := strings.Count(line, string(d)); n > bestCount {
			best = d
			bestCount = n
		}
	}
	return best, nil
}

// findHeader scans the first rows for one containing at least two known
// column names and returns its index and the column mapping.
func findHeader(rows [][]string) (int, map[string]int) {
	limit := len(rows)
	if limit > 10 {
		limit = 10
	}
	for i := 0; i < limit; i++ {
		columns := mapColumns(rows[i])
		if len(columns) >= 2 {
			return i, columns
		}
	}
	return 0, nil
}

func mapColumns(header []string) map[string]int {
	columns := make(map[string]int)
	for idx, cell := range header {
		name := strings.ToLower(strings.TrimSpace(cell))
		for field, variants := range columnVariants {
			if _, taken := columns[field]; taken {
				continue
			}
			for _, v := range variants {
				if name == v {
					columns[field] = idx
					break
				}
			}
		}
	}
	return columns
}

func rowToContact(row []string, columns map[string]int) *models.IncomingContact {
	cell := func(field string) string {
		idx, ok := columns[field]
		if !ok || idx >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[idx])
	}

	c := &models.IncomingContact{
		FirstName: cell("first_name"),
		LastName:  cell("last_name"),
		FullName:  cell("full_name"),
		Email:     cell("email"),
		Phone:     cell("phone"),
		Company:   cell("company"),
		Position:  cell("position"),
		URL:       cell("url"),
	}
	if c.Name() == "" {
		return nil
	}
	return c
}
