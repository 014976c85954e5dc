package parse

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"
)

func TestCSVParsesRows(t *testing.T) {
	data := `First Name,Last Name,Email Address,Company,Position
John,Doe,john@example.com,Acme Corp,Engineer
Jane,Smith,jane@example.com,Globex,Designer
`
	contacts, err := CSV(strings.NewReader(data))
	if err != nil {
		t.Fatalf("CSV failed: %v", err)
	}
	if len(contacts) != 2 {
		t.Fatalf("expected 2 contacts, got %d", len(contacts))
	}
	if contacts[0].FirstName != "John" || contacts[0].LastName != "Doe" {
		t.Errorf("unexpected first row: %+v", contacts[0])
	}
	if contacts[0].Email != "john@example.com" {
		t.Errorf("unexpected email: %q", contacts[0].Email)
	}
	if contacts[1].Company != "Globex" {
		t.Errorf("unexpected company: %q", contacts[1].Company)
	}
}

func TestCSVLinkedInExportPreamble(t *testing.T) {
	// LinkedIn connection exports carry notes above the header row.
	data := `Notes:,,,,,
"When exporting your connection data, you may be missing some fields.",,,,,
,,,,,
First Name,Last Name,URL,Email Address,Company,Position
Alice,Wonder,https://linkedin.com/in/alice,alice@example.com,Initech,PM
`
	contacts, err := CSV(strings.NewReader(data))
	if err != nil {
		t.Fatalf("CSV failed: %v", err)
	}
	if len(contacts) != 1 {
		t.Fatalf("expected 1 contact, got %d", len(contacts))
	}
	if contacts[0].URL != "https://linkedin.com/in/alice" {
		t.Errorf("unexpected url: %q", contacts[0].URL)
	}
	if contacts[0].Position != "PM" {
		t.Errorf("unexpected position: %q", contacts[0].Position)
	}
}

func TestCSVSemicolonDelimited(t *testing.T) {
	data := "Name;E-Mail;Phone\nJohn Doe;john@example.com;555-0100\n"
	contacts, err := CSV(strings.NewReader(data))
	if err != nil {
		t.Fatalf("CSV failed: %v", err)
	}
	if len(contacts) != 1 {
		t.Fatalf("expected 1 contact, got %d", len(contacts))
	}
	if contacts[0].FullName != "John Doe" {
		t.Errorf("unexpected full name: %q", contacts[0].FullName)
	}
	if contacts[0].Phone != "555-0100" {
		t.Errorf("unexpected phone: %q", contacts[0].Phone)
	}
}

func TestCSVSkipsNamelessRows(t *testing.T) {
	data := "First Name,Last Name,Email\nJohn,Doe,john@example.com\n,,orphan@example.com\n"
	contacts, err := CSV(strings.NewReader(data))
	if err != nil {
		t.Fatalf("CSV failed: %v", err)
	}
	if len(contacts) != 1 {
		t.Fatalf("expected nameless row to be skipped, got %d contacts", len(contacts))
	}
}

func TestCSVNoHeader(t *testing.T) {
	if _, err := CSV(strings.NewReader("foo,bar\n1,2\n")); err == nil {
		t.Error("expected error when no header row is found")
	}
}

func TestXLSXParsesRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "contacts.xlsx")
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	rows := [][]interface{}{
		{"First Name", "Last Name", "Email", "Company"},
		{"John", "Doe", "john@example.com", "Acme Corp"},
		{"Jane", "Smith", "jane@example.com", "Globex"},
	}
	for i, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			t.Fatalf("failed to write row: %v", err)
		}
	}
	if err := f.SaveAs(path); err != nil {
		t.Fatalf("failed to save workbook: %v", err)
	}
	f.Close()

	contacts, err := XLSX(path)
	if err != nil {
		t.Fatalf("XLSX failed: %v", err)
	}
	if len(contacts) != 2 {
		t.Fatalf("expected 2 contacts, got %d", len(contacts))
	}
	if contacts[0].Name() != "John Doe" {
		t.Errorf("unexpected name: %q", contacts[0].Name())
	}
	if contacts[1].Company != "Globex" {
		t.Errorf("unexpected company: %q", contacts[1].Company)
	}
}

func TestIsContactFile(t *testing.T) {
	cases := map[string]bool{
		"contacts.vcf": true,
		"export.CSV":   true,
		"book.xlsx":    true,
		"resume.pdf":   false,
		"notes.txt":    false,
		"no-extension": false,
	}
	for path, want := range cases {
		if got := IsContactFile(path); got != want {
			t.Errorf("IsContactFile(%q) = %v, want %v", path, got, want)
		}
	}
}
