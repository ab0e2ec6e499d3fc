// Package extract projects annotation documents onto gene-level CNV records.
package extract

import (
	"errors"
	"fmt"
	"iter"

	"go.uber.org/zap"

	"github.com/inodb/cnvx/internal/nirvana"
)

// ErrMultiSample is returned under PolicyReject when a position carries
// copy numbers for more than one sample.
var ErrMultiSample = errors.New("multiple samples carry a copy number")

// MultiSamplePolicy decides how a position with several copy-number
// carrying samples is handled.
type MultiSamplePolicy string

const (
	// PolicyFirst keeps the copy number of the first carrying sample.
	PolicyFirst MultiSamplePolicy = "first"
	// PolicyReject fails the extraction.
	PolicyReject MultiSamplePolicy = "reject"
)

// ParsePolicy validates a policy name. An empty name selects PolicyFirst.
func ParsePolicy(s string) (MultiSamplePolicy, error) {
	switch MultiSamplePolicy(s) {
	case "", PolicyFirst:
		return PolicyFirst, nil
	case PolicyReject:
		return PolicyReject, nil
	}
	return "", fmt.Errorf("unknown multi-sample policy %q (want first or reject)", s)
}

// Extractor selects the positions of a document that hit a gene.
type Extractor struct {
	policy MultiSamplePolicy
	logger *zap.Logger
}

// NewExtractor creates an extractor using PolicyFirst.
func NewExtractor() *Extractor {
	return &Extractor{
		policy: PolicyFirst,
		logger: zap.NewNop(),
	}
}

// SetMultiSamplePolicy configures multi-sample copy number handling.
func (e *Extractor) SetMultiSamplePolicy(p MultiSamplePolicy) {
	e.policy = p
}

// SetLogger sets the logger for warning messages.
func (e *Extractor) SetLogger(l *zap.Logger) {
	e.logger = l
}

// Extract returns the records for gene in doc, in position order.
// The returned sequence holds no state between iterations, so ranging
// over it again yields the same records.
func (e *Extractor) Extract(doc *nirvana.Document, gene, sample string) (iter.Seq[Record], error) {
	if err := e.check(doc); err != nil {
		return nil, err
	}

	return records(doc, gene, sample), nil
}

// ExtractGenes concatenates the records of every gene in the given order.
func (e *Extractor) ExtractGenes(doc *nirvana.Document, genes []string, sample string) (iter.Seq[Record], error) {
	if err := e.check(doc); err != nil {
		return nil, err
	}

	return func(yield func(Record) bool) {
		for _, gene := range genes {
			for rec := range records(doc, gene, sample) {
				if !yield(rec) {
					return
				}
			}
		}
	}, nil
}

// check validates the document structure and the multi-sample policy.
func (e *Extractor) check(doc *nirvana.Document) error {
	if doc == nil || doc.Positions == nil {
		return fmt.Errorf("document has no positions: %w", nirvana.ErrMalformedInput)
	}

	for i := range doc.Positions {
		p := &doc.Positions[i]
		if _, n := p.CopyNumber(); n > 1 {
			if e.policy == PolicyReject {
				return fmt.Errorf("%s:%d: %w", p.Chromosome, p.Start, ErrMultiSample)
			}
			e.logger.Warn("multiple samples carry a copy number, using the first",
				zap.String("chrom", p.Chromosome),
				zap.Int64("pos", p.Start),
				zap.Int("samples", n))
			return nil
		}
	}
	return nil
}

// records yields the projection of every position that hits gene.
func records(doc *nirvana.Document, gene, sample string) iter.Seq[Record] {
	return func(yield func(Record) bool) {
		for i := range doc.Positions {
			rec, ok := project(&doc.Positions[i], gene, sample)
			if !ok {
				continue
			}
			if !yield(rec) {
				return
			}
		}
	}
}

// project builds the record for p if any of its transcripts belong to gene.
func project(p *nirvana.Position, gene, sample string) (Record, bool) {
	var transcripts []string
	var seen map[string]struct{}
	for _, v := range p.Variants {
		for _, t := range v.Transcripts {
			if t.HGNC != gene {
				continue
			}
			if _, dup := seen[t.ID]; dup {
				continue
			}
			if seen == nil {
				seen = make(map[string]struct{})
			}
			seen[t.ID] = struct{}{}
			transcripts = append(transcripts, t.ID)
		}
	}
	if len(transcripts) == 0 {
		return Record{}, false
	}

	cn, _ := p.CopyNumber()
	return Record{
		Sample:      sample,
		Gene:        gene,
		Chromosome:  p.Chromosome,
		Start:       p.Start,
		End:         p.End,
		Filters:     p.Filters,
		CopyNumber:  cn,
		Transcripts: transcripts,
	}, true
}
