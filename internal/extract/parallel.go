package extract

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"runtime"
	"slices"
	"sync"

	"go.uber.org/zap"

	"github.com/inodb/cnvx/internal/nirvana"
	"github.com/inodb/cnvx/internal/sampleid"
)

// Input is one annotation file and the sample it belongs to.
// An empty Sample is resolved from the document header, or failing that
// from the file name.
type Input struct {
	Path   string
	Sample string
}

// WorkItem holds an input file queued for extraction.
type WorkItem struct {
	Seq   int
	Input Input
}

// WorkResult holds the records extracted from a single file.
type WorkResult struct {
	Seq     int
	Input   Input
	Records []Record
	Err     error
}

// RecordWriter defines the interface for writing records.
type RecordWriter interface {
	WriteHeader() error
	Write(rec Record) error
	Flush() error
}

// Summary counts what a batch run did.
type Summary struct {
	Files   int
	Skipped int
	Rows    int
}

// Runner extracts records from a batch of files.
type Runner struct {
	extractor *Extractor
	workers   int
	logger    *zap.Logger
}

// NewRunner creates a runner around the given extractor using one worker.
func NewRunner(e *Extractor) *Runner {
	return &Runner{
		extractor: e,
		workers:   1,
		logger:    zap.NewNop(),
	}
}

// SetWorkers sets the number of files decoded concurrently.
// If n is 0 or negative, runtime.NumCPU() is used.
func (r *Runner) SetWorkers(n int) {
	r.workers = n
}

// SetLogger sets the logger for warning and info messages.
func (r *Runner) SetLogger(l *zap.Logger) {
	r.logger = l
}

// ProcessFile decodes one file and extracts the records of every gene,
// in gene order then position order. The returned Input carries the
// resolved sample id.
func (r *Runner) ProcessFile(in Input, genes []string) (Input, []Record, error) {
	doc, err := nirvana.Open(in.Path)
	if err != nil {
		return in, nil, err
	}

	if doc.HeaderErr != nil {
		r.logger.Warn("ignoring unreadable annotation header",
			zap.String("path", in.Path),
			zap.Error(doc.HeaderErr))
	}
	if in.Sample == "" {
		if name, ok := doc.SampleName(); ok {
			in.Sample = name
		} else {
			in.Sample = sampleid.BaseName(in.Path)
		}
	}
	if h := doc.Header; h != nil {
		r.logger.Debug("annotation header",
			zap.String("path", in.Path),
			zap.String("annotator", h.Annotator),
			zap.String("assembly", h.GenomeAssembly),
			zap.Strings("samples", h.Samples))
	}

	seq, err := r.extractor.ExtractGenes(doc, genes, in.Sample)
	if err != nil {
		return in, nil, fmt.Errorf("extract %s: %w", in.Path, err)
	}
	return in, slices.Collect(seq), nil
}

// ParallelExtract processes work items using a pool of workers.
// Results are sent to the returned channel in arrival order (not sequence order).
// Use OrderedCollect to consume results in sequence-number order.
func (r *Runner) ParallelExtract(items <-chan WorkItem, genes []string) <-chan WorkResult {
	workers := r.workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	results := make(chan WorkResult, 2*workers)

	var wg sync.WaitGroup
	wg.Add(workers)

	for range workers {
		go func() {
			defer wg.Done()
			for item := range items {
				in, recs, err := r.ProcessFile(item.Input, genes)
				results <- WorkResult{
					Seq:     item.Seq,
					Input:   in,
					Records: recs,
					Err:     err,
				}
			}
		}()
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	return results
}

// OrderedCollect hands per-file results to fn in input-file order,
// holding back files that finish early until every earlier file has been
// handed over. A non-nil error from fn stops delivery; the remaining
// results are drained so workers can exit. Blocks until the results
// channel is closed.
func OrderedCollect(results <-chan WorkResult, fn func(WorkResult) error) error {
	held := make(map[int]WorkResult)
	next := 0

	for res := range results {
		held[res.Seq] = res
		for ready, ok := held[next]; ok; ready, ok = held[next] {
			delete(held, next)
			next++
			if err := fn(ready); err != nil {
				discard(results)
				return err
			}
		}
	}

	return nil
}

// discard empties results until its producers close it.
func discard(results <-chan WorkResult) {
	for range results {
	}
}

// Run extracts genes from every input and writes the records to w in
// input order. Files that are missing or malformed are logged and
// skipped. The header is left to the caller; w is flushed on success.
func (r *Runner) Run(ctx context.Context, inputs []Input, genes []string, w RecordWriter) (Summary, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	items := make(chan WorkItem)
	go func() {
		defer close(items)
		for i, in := range inputs {
			select {
			case items <- WorkItem{Seq: i, Input: in}:
			case <-ctx.Done():
				return
			}
		}
	}()

	var sum Summary
	err := OrderedCollect(r.ParallelExtract(items, genes), func(res WorkResult) error {
		if res.Err != nil {
			sum.Skipped++
			r.warnSkipped(res)
			return nil
		}
		sum.Files++
		for _, rec := range res.Records {
			if err := w.Write(rec); err != nil {
				cancel()
				return fmt.Errorf("write record: %w", err)
			}
			sum.Rows++
		}
		r.logger.Debug("processed annotation file",
			zap.String("path", res.Input.Path),
			zap.String("sample", res.Input.Sample),
			zap.Int("rows", len(res.Records)))
		return nil
	})
	if err != nil {
		return sum, err
	}
	if err := ctx.Err(); err != nil {
		return sum, err
	}

	if sum.Files == 0 {
		r.logger.Info("0 annotation files processed")
	}

	return sum, w.Flush()
}

func (r *Runner) warnSkipped(res WorkResult) {
	fields := []zap.Field{
		zap.String("path", res.Input.Path),
		zap.String("sample", res.Input.Sample),
		zap.Error(res.Err),
	}
	switch {
	case errors.Is(res.Err, fs.ErrNotExist):
		r.logger.Warn("annotation file not found, skipping", fields...)
	case errors.Is(res.Err, nirvana.ErrMalformedInput):
		r.logger.Warn("malformed annotation file, skipping", fields...)
	case errors.Is(res.Err, ErrMultiSample):
		r.logger.Warn("multi-sample annotation file rejected, skipping", fields...)
	default:
		r.logger.Warn("cannot process annotation file, skipping", fields...)
	}
}
