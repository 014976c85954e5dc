package parse

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/hyperjump/meishi/internal/models"
)

// XLSX parses contact rows from the first sheet of an Excel workbook. The
// header row is located the same way as for CSV files.
func XLSX(path string) ([]*models.IncomingContact, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open xlsx: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("xlsx has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read xlsx rows: %w", err)
	}

	headerIdx, columns := findHeader(rows)
	if columns == nil {
		return nil, fmt.Errorf("no recognizable header row in xlsx")
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
