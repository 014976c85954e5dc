package extract

import (
	"strings"
	"unicode/utf8"
)

// extractPlain handles the text formats contacts commonly arrive with (saved
// notes, exported emails, .md bios). Line endings are normalized and invalid
// UTF-8 sequences are replaced so downstream chunking sees clean text.
func extractPlain(content []byte) (string, error) {
	text := string(content)
	if !utf8.Valid(content) {
		text = strings.ToValidUTF8(text, "�")
	}
	return strings.ReplaceAll(text, "\r\n", "\n"), nil
}
