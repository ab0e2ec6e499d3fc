// Package output provides record output formatters.
package output

import (
	"encoding/csv"
	"io"

	"github.com/inodb/cnvx/internal/extract"
)

// CSVWriter writes records as comma-separated values.
type CSVWriter struct {
	w             *csv.Writer
	headerWritten bool
}

// NewCSVWriter creates a new CSV writer.
func NewCSVWriter(w io.Writer) *CSVWriter {
	return &CSVWriter{w: csv.NewWriter(w)}
}

// WriteHeader writes the header line. Only the first call writes.
func (cw *CSVWriter) WriteHeader() error {
	if cw.headerWritten {
		return nil
	}
	cw.headerWritten = true
	return cw.w.Write(extract.Columns)
}

// Write writes a single record.
func (cw *CSVWriter) Write(rec extract.Record) error {
	return cw.w.Write(rec.Fields())
}

// Flush flushes any buffered data to the underlying writer.
func (cw *CSVWriter) Flush() error {
	cw.w.Flush()
	return cw.w.Error()
}
