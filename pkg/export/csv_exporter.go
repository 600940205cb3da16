package export

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
)

// Dataset defines tabular export content. Rows are keyed by header name
// so callers can build them without caring about column order.
type Dataset struct {
	Headers []string
	Rows    []map[string]string
}

// CSVExporter renders Dataset records into CSV bytes.
type CSVExporter struct{}

// NewCSVExporter builds a CSV exporter.
func NewCSVExporter() *CSVExporter {
	return &CSVExporter{}
}

// Render produces CSV encoded bytes for the dataset. Cells missing from
// a row render as empty columns.
func (e *CSVExporter) Render(data Dataset) ([]byte, error) {
	if len(data.Headers) == 0 {
		return nil, errors.New("dataset has no header row")
	}

	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)
	if err := writer.Write(data.Headers); err != nil {
		return nil, fmt.Errorf("encode header row: %w", err)
	}

	record := make([]string, len(data.Headers))
	for n, row := range data.Rows {
		for i, header := range data.Headers {
			record[i] = row[header]
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("encode row %d: %w", n+1, err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("flush csv output: %w", err)
	}
	return buf.Bytes(), nil
}
