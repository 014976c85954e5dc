package extract

import (
	"archive/zip"
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"github.com/lu4p/cat/rtftxt"
)

// textTag matches <w:t>text</w:t> (DOCX) and <text:p>text</text:p> (ODT) nodes
// with any attributes.
var textTag = regexp.MustCompile(`<(?:w:t|text:p)[^>]*>([^<]*)</(?:w:t|text:p)>`)

// docxDocumentXMLPath is the path to the main document body inside a .docx zip.
const docxDocumentXMLPath = "word/document.xml"

// odtContentXMLPath is the path to the document body inside a .odt zip.
const odtContentXMLPath = "content.xml"

// extractDOCX extracts text from .docx or .odt bytes. Both are ZIPs containing
// an XML document body; all text nodes are extracted so content is searchable
// regardless of paragraph or run attributes.
func extractDOCX(content []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("extract document: not a zip: %w", err)
	}

	var docXML []byte
	for _, f := range zr.File {
		if f.Name != docxDocumentXMLPath && f.Name != odtContentXMLPath {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return "", fmt.Errorf("extract document: open %s: %w", f.Name, err)
		}
		var buf bytes.Buffer
		if _, err := buf.ReadFrom(rc); err != nil {
			_ = rc.Close()
			return "", fmt.Errorf("extract document: read %s: %w", f.Name, err)
		}
		_ = rc.Close()
		docXML = buf.Bytes()
		break
	}
	if docXML == nil {
		return "", fmt.Errorf("extract document: no document body found")
	}
	parts := textTag.FindAllStringSubmatch(string(docXML), -1)
	if len(parts) == 0 {
		return "", nil
	}
	var b strings.Builder
	for i, p := range parts {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(strings.TrimSpace(p[1]))
	}
	return strings.TrimSpace(b.String()), nil
}

// extractRTF extracts text from RTF bytes.
func extractRTF(content []byte) (string, error) {
	buf, err := rtftxt.Text(bytes.NewReader(content))
	if err != nil {
		return "", fmt.Errorf("extract RTF: %w", err)
	}
	return strings.TrimSpace(buf.String()), nil
}
