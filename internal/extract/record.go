package extract

import (
	"strconv"
	"strings"
)

// Columns is the fixed CSV column order.
var Columns = []string{
	"sample",
	"gene",
	"chromosome",
	"start",
	"end",
	"filters",
	"copyNumber",
	"transcripts",
}

// Record is one flattened (sample, gene, position) row.
type Record struct {
	Sample      string
	Gene        string
	Chromosome  string
	Start       int64
	End         *int64
	Filters     []string
	CopyNumber  *int
	Transcripts []string
}

// Fields renders the record in Columns order. Absent end and copy number
// render as empty strings; lists are joined with ';'.
func (r Record) Fields() []string {
	end := ""
	if r.End != nil {
		end = strconv.FormatInt(*r.End, 10)
	}
	cn := ""
	if r.CopyNumber != nil {
		cn = strconv.Itoa(*r.CopyNumber)
	}
	return []string{
		r.Sample,
		r.Gene,
		r.Chromosome,
		strconv.FormatInt(r.Start, 10),
		end,
		strings.Join(r.Filters, ";"),
		cn,
		strings.Join(r.Transcripts, ";"),
	}
}
