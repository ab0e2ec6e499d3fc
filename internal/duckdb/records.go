package duckdb

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"strings"

	"github.com/google/uuid"
	goduckdb "github.com/marcboeker/go-duckdb"

	"github.com/inodb/cnvx/internal/extract"
)

// WriteRecords batch-inserts records under runID using the Appender API.
func (s *Store) WriteRecords(runID string, recs []extract.Record) error {
	if len(recs) == 0 {
		return nil
	}

	conn, err := s.db.Conn(context.Background())
	if err != nil {
		return fmt.Errorf("get connection: %w", err)
	}
	defer conn.Close()

	var appender *goduckdb.Appender
	if err := conn.Raw(func(driverConn any) error {
		var err error
		appender, err = goduckdb.NewAppenderFromConn(driverConn.(driver.Conn), "", "cnv_records")
		return err
	}); err != nil {
		return fmt.Errorf("create appender: %w", err)
	}
	defer appender.Close()

	for _, r := range recs {
		var end, cn any
		if r.End != nil {
			end = *r.End
		}
		if r.CopyNumber != nil {
			cn = int32(*r.CopyNumber)
		}
		if err := appender.AppendRow(
			runID, r.Sample, r.Gene, r.Chromosome, r.Start, end,
			strings.Join(r.Filters, ";"), cn, strings.Join(r.Transcripts, ";"),
		); err != nil {
			return fmt.Errorf("append record: %w", err)
		}
	}

	return appender.Flush()
}

// ClearRecords removes all stored records.
func (s *Store) ClearRecords() error {
	_, err := s.db.Exec("DELETE FROM cnv_records")
	return err
}

// RecordCount returns the number of stored records.
func (s *Store) RecordCount() (int, error) {
	var n int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM cnv_records").Scan(&n); err != nil {
		return 0, fmt.Errorf("count records: %w", err)
	}
	return n, nil
}

// SearchByGene returns the stored records for a gene in insertion order.
// A non-empty sample restricts the search to that sample.
func (s *Store) SearchByGene(gene, sample string) ([]extract.Record, error) {
	query := `SELECT sample, gene, chrom, start_pos, end_pos, filters, copy_number, transcripts
		FROM cnv_records WHERE gene=?`
	args := []any{gene}
	if sample != "" {
		query += " AND sample=?"
		args = append(args, sample)
	}
	query += " ORDER BY rowid"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query by gene: %w", err)
	}
	defer rows.Close()

	var recs []extract.Record
	for rows.Next() {
		var (
			r                    extract.Record
			end                  sql.NullInt64
			cn                   sql.NullInt32
			filters, transcripts string
		)
		if err := rows.Scan(&r.Sample, &r.Gene, &r.Chromosome, &r.Start, &end,
			&filters, &cn, &transcripts); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		if end.Valid {
			v := end.Int64
			r.End = &v
		}
		if cn.Valid {
			v := int(cn.Int32)
			r.CopyNumber = &v
		}
		r.Filters = splitList(filters)
		r.Transcripts = splitList(transcripts)
		recs = append(recs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return recs, nil
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ";")
}

// RecordWriter buffers records and appends them to the store on Flush.
// Each writer tags its records with a fresh run id.
type RecordWriter struct {
	store *Store
	runID string
	buf   []extract.Record
}

// NewRecordWriter creates a writer for one batch run.
func (s *Store) NewRecordWriter() *RecordWriter {
	return &RecordWriter{store: s, runID: uuid.NewString()}
}

// RunID returns the id stored with this writer's records.
func (w *RecordWriter) RunID() string {
	return w.runID
}

// WriteHeader is a no-op; the table schema is the header.
func (w *RecordWriter) WriteHeader() error {
	return nil
}

// Write buffers a record.
func (w *RecordWriter) Write(rec extract.Record) error {
	w.buf = append(w.buf, rec)
	return nil
}

// Flush appends the buffered records.
func (w *RecordWriter) Flush() error {
	if err := w.store.WriteRecords(w.runID, w.buf); err != nil {
		return err
	}
	w.buf = w.buf[:0]
	return nil
}
