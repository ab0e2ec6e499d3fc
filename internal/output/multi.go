package output

import (
	"errors"

	"github.com/inodb/cnvx/internal/extract"
)

// MultiWriter fans records out to several writers.
type MultiWriter struct {
	writers []extract.RecordWriter
}

// NewMultiWriter returns a writer that writes to all of ws in order.
func NewMultiWriter(ws ...extract.RecordWriter) *MultiWriter {
	return &MultiWriter{writers: ws}
}

// WriteHeader writes the header on every writer.
func (m *MultiWriter) WriteHeader() error {
	for _, w := range m.writers {
		if err := w.WriteHeader(); err != nil {
			return err
		}
	}
	return nil
}

// Write stops at the first failing writer.
func (m *MultiWriter) Write(rec extract.Record) error {
	for _, w := range m.writers {
		if err := w.Write(rec); err != nil {
			return err
		}
	}
	return nil
}

// Flush flushes every writer and joins their errors.
func (m *MultiWriter) Flush() error {
	var errs []error
	for _, w := range m.writers {
		errs = append(errs, w.Flush())
	}
	return errors.Join(errs...)
}
