package extract

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// extractPDF pulls the text out of a PDF attachment (resumes, scanned business
// cards, proposals). PDFs found in the wild are frequently damaged, so an
// unreadable page is skipped rather than losing the whole document; extraction
// only fails when no page yields any text.
func extractPDF(content []byte) (string, error) {
	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("open PDF: %w", err)
	}

	var pages []string
	numPages := r.NumPage()
	for i := 1; i <= numPages; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		if text = strings.TrimSpace(text); text != "" {
			pages = append(pages, text)
		}
	}
	if len(pages) == 0 && numPages > 0 {
		return "", fmt.Errorf("no extractable text in %d-page PDF", numPages)
	}
	return strings.Join(pages, "\n"), nil
}
