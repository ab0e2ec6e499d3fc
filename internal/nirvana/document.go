// Package nirvana provides the typed schema and reader for gzipped JSON
// variant annotation documents.
package nirvana

// Document is the root object of one annotation file.
type Document struct {
	Header    *Header
	Positions []Position

	// HeaderErr is set when a header was present but unreadable.
	HeaderErr error
}

// Header holds the optional annotation run metadata.
type Header struct {
	Annotator      string   `json:"annotator"`
	GenomeAssembly string   `json:"genomeAssembly"`
	SchemaVersion  int      `json:"schemaVersion"`
	Samples        []string `json:"samples"`
}

// SampleName returns the single sample named in the header, if any.
func (d *Document) SampleName() (string, bool) {
	if d.Header == nil || len(d.Header.Samples) != 1 || d.Header.Samples[0] == "" {
		return "", false
	}
	return d.Header.Samples[0], true
}

// Position is one annotated genomic interval.
type Position struct {
	Chromosome string    `json:"chromosome"`
	Start      int64     `json:"position"`
	End        *int64    `json:"svEnd"`
	Filters    []string  `json:"filters"`
	Samples    []Sample  `json:"samples"`
	Variants   []Variant `json:"variants"`
}

// Sample is the per-sample call at a position.
type Sample struct {
	CopyNumber *int `json:"copyNumber"`
}

// Variant groups the transcripts overlapping one alternate allele.
type Variant struct {
	Transcripts []Transcript `json:"transcripts"`
}

// Transcript is a single transcript annotation.
type Transcript struct {
	HGNC string `json:"hgnc"`
	ID   string `json:"transcript"`
}

// CopyNumber returns the copy number of the first sample entry that
// carries one, and the number of entries that carry one.
func (p *Position) CopyNumber() (cn *int, carriers int) {
	for i := range p.Samples {
		if p.Samples[i].CopyNumber == nil {
			continue
		}
		if cn == nil {
			cn = p.Samples[i].CopyNumber
		}
		carriers++
	}
	return cn, carriers
}
