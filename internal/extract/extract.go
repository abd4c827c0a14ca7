// Package extract turns uploaded bytes into text or tabular rows.
// The filename extension selects the extractor; unknown extensions fall back
// to a plain-text decode (UTF-8, then latin-1 lossy).
package extract

import (
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// Text extracts plain text from a document. PDF pages are prefixed with a
// [[PAGE:n]] marker so the chunker can recover page boundaries; spreadsheet
// rows come back tab-joined, one row per line.
func Text(filename string, data []byte) (string, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return pdfText(data)
	case ".docx":
		return docxText(data)
	case ".pptx":
		return pptxText(data)
	case ".xlsx":
		rows, err := xlsxRows(data)
		if err != nil {
			return "", err
		}
		lines := make([]string, 0, len(rows))
		for _, row := range rows {
			lines = append(lines, strings.Join(row, "\t"))
		}
		return strings.Join(lines, "\n"), nil
	default:
		return decodeText(data), nil
	}
}

// Rows extracts ordered tabular rows from a comma-separated or spreadsheet
// file. Each row is re-serialized in RFC 4180 form so embedded commas and
// quotes round-trip.
func Rows(filename string, data []byte) ([]string, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv":
		return csvRows(data)
	case ".xlsx":
		cells, err := xlsxRows(data)
		if err != nil {
			return nil, err
		}
		return serializeRows(cells), nil
	default:
		return nil, fmt.Errorf("unsupported tabular format: %s", filepath.Ext(filename))
	}
}

// IsTabular reports whether the filename routes to the row extractor.
func IsTabular(filename string) bool {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv", ".xlsx":
		return true
	}
	return false
}

// decodeText decodes as UTF-8 and falls back to latin-1, which never fails.
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
