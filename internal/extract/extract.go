// Package extract converts raw document bytes into plain text suitable for
// chunking and indexing. Page, sheet, and row markers are injected so
// provenance survives chunking.
package extract

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
	"github.com/xuri/excelize/v2"
)

var (
	// ErrUnsupportedFormat is returned for file types outside the known set.
	ErrUnsupportedFormat = errors.New("unsupported file format")
	// ErrExtractionFailed is returned when the bytes are malformed for the
	// declared type.
	ErrExtractionFailed = errors.New("extraction failed")
)

// FileType is the closed set of document formats the extractor understands.
type FileType int

const (
	TypePdf FileType = iota
	TypeDocx
	TypeTxt
	TypeCsv
	TypeXlsx
)

func (t FileType) String() string {
	switch t {
	case TypePdf:
		return "pdf"
	case TypeDocx:
		return "docx"
	case TypeTxt:
		return "txt"
	case TypeCsv:
		return "csv"
	case TypeXlsx:
		return "xlsx"
	}
	return "unknown"
}

// ParseFileType maps a file extension (with or without leading dot) to a
// FileType. Legacy extensions map to their modern counterparts.
func ParseFileType(ext string) (FileType, error) {
	switch strings.ToLower(strings.TrimPrefix(ext, ".")) {
	case "pdf":
		return TypePdf, nil
	case "docx", "doc":
		return TypeDocx, nil
	case "txt":
		return TypeTxt, nil
	case "csv":
		return TypeCsv, nil
	case "xlsx", "xls":
		return TypeXlsx, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
}

// Extractor is a stateless text extractor. The zero value is ready to use.
type Extractor struct{}

func New() *Extractor {
	return &Extractor{}
}

// Extract returns the plain text of data interpreted as the given type.
func (e *Extractor) Extract(data []byte, fileType FileType) (string, error) {
	switch fileType {
	case TypePdf:
		return extractPdf(data)
	case TypeDocx:
		return extractDocx(data)
	case TypeTxt:
		return decodeText(data), nil
	case TypeCsv:
		return extractCsv(data), nil
	case TypeXlsx:
		return extractXlsx(data)
	default:
		return "", fmt.Errorf("%w: %v", ErrUnsupportedFormat, fileType)
	}
}

func extractPdf(data []byte) (string, error) {
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("%w: parsing pdf: %v", ErrExtractionFailed, err)
	}

	var pages []string
	for i := 1; i <= r.NumPage(); i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("%w: extracting pdf page %d: %v", ErrExtractionFailed, i, err)
		}
		if strings.TrimSpace(text) != "" {
			pages = append(pages, fmt.Sprintf("[Page %d]\n%s", i, text))
		}
	}
	return strings.Join(pages, "\n\n"), nil
}

// docx is a zip archive; the body lives in word/document.xml as runs of
// <w:t> text inside <w:p> paragraphs.
func extractDocx(data []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("%w: opening docx archive: %v", ErrExtractionFailed, err)
	}

	var doc io.ReadCloser
	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			if doc, err = f.Open(); err != nil {
				return "", fmt.Errorf("%w: opening document.xml: %v", ErrExtractionFailed, err)
			}
			break
		}
	}
	if doc == nil {
		return "", fmt.Errorf("%w: docx has no word/document.xml", ErrExtractionFailed)
	}
	defer doc.Close()

	dec := xml.NewDecoder(doc)
	var paragraphs []string
	var para strings.Builder
	inText := false
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("%w: parsing document.xml: %v", ErrExtractionFailed, err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == "t" {
				inText = true
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				if s := strings.TrimSpace(para.String()); s != "" {
					paragraphs = append(paragraphs, s)
				}
				para.Reset()
			}
		case xml.CharData:
			if inText {
				para.Write(t)
			}
		}
	}
	return strings.Join(paragraphs, "\n\n"), nil
}

func extractCsv(data []byte) string {
	text := decodeText(data)
	if text == "" {
		return ""
	}

	lines := strings.Split(text, "\n")
	var out []string
	for i, line := range lines {
		line = strings.TrimRight(line, "\r")
		if i == 0 {
			out = append(out, "Headers: "+line)
			continue
		}
		if strings.TrimSpace(line) != "" {
			out = append(out, fmt.Sprintf("Row %d: %s", i, line))
		}
	}
	return strings.Join(out, "\n")
}

func extractXlsx(data []byte) (string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("%w: opening workbook: %v", ErrExtractionFailed, err)
	}
	defer f.Close()

	var out []string
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return "", fmt.Errorf("%w: reading sheet %q: %v", ErrExtractionFailed, sheet, err)
		}
		out = append(out, fmt.Sprintf("[Sheet: %s]", sheet))
		for i, row := range rows {
			line := strings.Join(row, " | ")
			if strings.TrimSpace(line) != "" {
				out = append(out, fmt.Sprintf("Row %d: %s", i+1, line))
			}
		}
	}
	return strings.Join(out, "\n"), nil
}

// decodeText decodes bytes as UTF-8, falling back to Latin-1 so arbitrary
// byte content never fails.
func decodeText(data []byte) string {
	if utf8.Valid(data) {
		return string(data)
	}
	runes := make([]rune, len(data))
	for i, b := range data {
		runes[i] = rune(b)
	}
	return string(runes)
}
