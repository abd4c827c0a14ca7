package extract

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strings"
)

// csvRows reads a CSV payload and re-serializes each record so downstream
// parsing sees canonical RFC 4180 lines regardless of the source dialect.
func csvRows(data []byte) ([]string, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}
	return serializeRows(records), nil
}

// serializeRows renders each record as a single RFC 4180 line.
func serializeRows(records [][]string) []string {
	rows := make([]string, 0, len(records))
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	for _, record := range records {
		buf.Reset()
		if err := w.Write(record); err != nil {
			continue
		}
		w.Flush()
		rows = append(rows, strings.TrimRight(buf.String(), "\r\n"))
	}
	return rows
}
