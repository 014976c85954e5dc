package extract

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

// extractExcel flattens a spreadsheet attachment (client lists, event rosters)
// into tab-separated lines, one per row. Empty rows are dropped; sheets are
// separated by a blank line so chunk boundaries tend to fall between them.
func extractExcel(content []byte) (string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return "", fmt.Errorf("open spreadsheet: %w", err)
	}
	defer f.Close()

	var buf strings.Builder
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return "", fmt.Errorf("read sheet %q: %w", sheet, err)
		}
		wrote := false
		for _, row := range rows {
			if rowIsEmpty(row) {
				continue
			}
			buf.WriteString(strings.Join(row, "\t"))
			buf.WriteByte('\n')
			wrote = true
		}
		if wrote {
			buf.WriteByte('\n')
		}
	}
	return strings.TrimSpace(buf.String()), nil
}

func rowIsEmpty(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
