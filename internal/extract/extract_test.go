package extract

import (
	"archive/zip"
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"
)

func TestParseFileType(t *testing.T) {
	tests := []struct {
		ext     string
		want    FileType
		wantErr bool
	}{
		{"pdf", TypePdf, false},
		{".PDF", TypePdf, false},
		{"docx", TypeDocx, false},
		{"doc", TypeDocx, false},
		{"txt", TypeTxt, false},
		{"csv", TypeCsv, false},
		{"xlsx", TypeXlsx, false},
		{"xls", TypeXlsx, false},
		{"exe", 0, true},
		{"", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseFileType(tt.ext)
		if tt.wantErr {
			if !errors.Is(err, ErrUnsupportedFormat) {
				t.Errorf("ParseFileType(%q) error = %v, want ErrUnsupportedFormat", tt.ext, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseFileType(%q) error = %v", tt.ext, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseFileType(%q) = %v, want %v", tt.ext, got, tt.want)
		}
	}
}

func TestExtractTxt(t *testing.T) {
	e := New()

	got, err := e.Extract([]byte("hello world"), TypeTxt)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if got != "hello world" {
		t.Errorf("got %q, want %q", got, "hello world")
	}

	// Empty input is empty output, not an error.
	got, err = e.Extract(nil, TypeTxt)
	if err != nil {
		t.Fatalf("Extract(empty): %v", err)
	}
	if got != "" {
		t.Errorf("got %q, want empty", got)
	}
}

func TestExtractTxtLatin1Fallback(t *testing.T) {
	e := New()
	// 0xE9 is é in Latin-1 and invalid standalone UTF-8.
	got, err := e.Extract([]byte{'c', 'a', 'f', 0xE9}, TypeTxt)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if got != "café" {
		t.Errorf("got %q, want café", got)
	}
}

func TestExtractCsv(t *testing.T) {
	e := New()
	got, err := e.Extract([]byte("name,age\nalice,30\n\nbob,25\n"), TypeCsv)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}

	lines := strings.Split(got, "\n")
	if lines[0] != "Headers: name,age" {
		t.Errorf("header line = %q", lines[0])
	}
	if lines[1] != "Row 1: alice,30" {
		t.Errorf("first row = %q", lines[1])
	}
	// Blank source lines are skipped but row numbering tracks the original file.
	if lines[2] != "Row 3: bob,25" {
		t.Errorf("second row = %q", lines[2])
	}
}

func TestExtractCsvEmpty(t *testing.T) {
	e := New()
	got, err := e.Extract(nil, TypeCsv)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if got != "" {
		t.Errorf("got %q, want empty", got)
	}
}

func buildTestDocx(t *testing.T, paragraphs []string) []byte {
	t.Helper()
	var body strings.Builder
	body.WriteString(`<?xml version="1.0"?><w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>`)
	for _, p := range paragraphs {
		body.WriteString(`<w:p><w:r><w:t>` + p + `</w:t></w:r></w:p>`)
	}
	body.WriteString(`</w:body></w:document>`)

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	f, err := zw.Create("word/document.xml")
	if err != nil {
		t.Fatalf("creating zip entry: %v", err)
	}
	if _, err := f.Write([]byte(body.String())); err != nil {
		t.Fatalf("writing zip entry: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("closing zip: %v", err)
	}
	return buf.Bytes()
}

func TestExtractDocx(t *testing.T) {
	e := New()
	data := buildTestDocx(t, []string{"First paragraph.", "Second paragraph.", "   "})

	got, err := e.Extract(data, TypeDocx)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	want := "First paragraph.\n\nSecond paragraph."
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestExtractDocxMalformed(t *testing.T) {
	e := New()
	if _, err := e.Extract([]byte("not a zip archive"), TypeDocx); !errors.Is(err, ErrExtractionFailed) {
		t.Errorf("error = %v, want ErrExtractionFailed", err)
	}
}

func TestExtractXlsx(t *testing.T) {
	f := excelize.NewFile()
	if err := f.SetSheetRow("Sheet1", "A1", &[]any{"name", "score"}); err != nil {
		t.Fatalf("SetSheetRow: %v", err)
	}
	if err := f.SetSheetRow("Sheet1", "A2", &[]any{"alice", 42}); err != nil {
		t.Fatalf("SetSheetRow: %v", err)
	}
	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		t.Fatalf("writing workbook: %v", err)
	}

	e := New()
	got, err := e.Extract(buf.Bytes(), TypeXlsx)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if !strings.Contains(got, "[Sheet: Sheet1]") {
		t.Errorf("missing sheet marker in %q", got)
	}
	if !strings.Contains(got, "Row 1: name | score") {
		t.Errorf("missing header row in %q", got)
	}
	if !strings.Contains(got, "Row 2: alice | 42") {
		t.Errorf("missing data row in %q", got)
	}
}

func TestExtractPdfMalformed(t *testing.T) {
	e := New()
	if _, err := e.Extract([]byte("definitely not a pdf"), TypePdf); !errors.Is(err, ErrExtractionFailed) {
		t.Errorf("error = %v, want ErrExtractionFailed", err)
	}
}
