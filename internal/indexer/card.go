package indexer

import (
	"fmt"
	"strings"

	"github.com/hyperjump/meishi/internal/models"
)

// CardText renders a contact as a compact text card. The card is what gets
// embedded for semantic retrieval, so field labels matter: they give the
// model something to anchor "who works at X" style questions on.
func CardText(c *models.Contact) string {
	var b strings.Builder
	b.WriteString("--- CONTACT CARD ---\n")
	b.WriteString("Name: " + c.FullName() + "\n")
	writeCardField(&b, "Company", c.Company)
	writeCardField(&b, "Position", c.Position)
	writeCardField(&b, "Email", c.Email)
	writeCardField(&b, "Phone", c.Phone)
	writeCardField(&b, "URL", c.URL)
	writeCardField(&b, "Address", c.Address)
	writeCardField(&b, "Birthday", c.Birthday)
	writeCardField(&b, "Notes", c.Notes)
	if len(c.Files) > 0 {
		writeCardField(&b, "Attached files", strings.Join(c.Files, ", "))
	}
	return b.String()
}

func writeCardField(b *strings.Builder, label, value string) {
	if value != "" {
		fmt.Fprintf(b, "%s: %s\n", label, value)
	}
}

// documentAnchor prefixes extracted document text so chunks stay attributable
// to their contact after retrieval.
func documentAnchor(c *models.Contact, filename string) string {
	return fmt.Sprintf("Document %q attached to contact %s:\n", filename, c.FullName())
}
