package extract

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// memWriter collects records in memory.
type memWriter struct {
	recs    []Record
	flushed int
	failAt  int
}

func (m *memWriter) WriteHeader() error { return nil }

func (m *memWriter) Write(rec Record) error {
	if m.failAt > 0 && len(m.recs)+1 == m.failAt {
		return errors.New("disk full")
	}
	m.recs = append(m.recs, rec)
	return nil
}

func (m *memWriter) Flush() error {
	m.flushed++
	return nil
}

func writeGzipJSON(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	require.NoError(t, err)
	zw := gzip.NewWriter(f)
	_, err = zw.Write([]byte(body))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
	return path
}

// positionJSON renders one CNV position hitting gene with transcript id.
func positionJSON(start int, gene, transcript string) string {
	return fmt.Sprintf(`{"chromosome":"chr1","position":%d,"svEnd":%d,"filters":["PASS"],`+
		`"samples":[{"copyNumber":3}],"variants":[{"transcripts":[{"hgnc":%q,"transcript":%q}]}]}`,
		start, start+1000, gene, transcript)
}

func TestOrderedCollect_OutOfOrder(t *testing.T) {
	results := make(chan WorkResult, 5)
	for _, seq := range []int{3, 1, 0, 4, 2} {
		results <- WorkResult{Seq: seq}
	}
	close(results)

	var got []int
	err := OrderedCollect(results, func(r WorkResult) error {
		got = append(got, r.Seq)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2, 3, 4}, got)
}

func TestOrderedCollect_ErrorStopsAndDrains(t *testing.T) {
	results := make(chan WorkResult, 4)
	for i := range 4 {
		results <- WorkResult{Seq: i}
	}
	close(results)

	calls := 0
	err := OrderedCollect(results, func(r WorkResult) error {
		calls++
		if r.Seq == 1 {
			return errors.New("boom")
		}
		return nil
	})
	require.Error(t, err)
	assert.Equal(t, 2, calls)
	_, open := <-results
	assert.False(t, open)
}

func TestRun_FileThenGeneOrder(t *testing.T) {
	dir := t.TempDir()
	var inputs []Input
	for i := range 20 {
		body := fmt.Sprintf(`{"positions":[%s,%s]}`,
			positionJSON(100, "GUSB", fmt.Sprintf("G%d", i)),
			positionJSON(200, "EGFR", fmt.Sprintf("E%d", i)))
		path := writeGzipJSON(t, dir, fmt.Sprintf("s%02d.json.gz", i), body)
		inputs = append(inputs, Input{Path: path, Sample: fmt.Sprintf("S%02d", i)})
	}

	for _, workers := range []int{1, 4, 0} {
		t.Run(fmt.Sprintf("workers=%d", workers), func(t *testing.T) {
			r := NewRunner(NewExtractor())
			r.SetWorkers(workers)
			w := &memWriter{}

			sum, err := r.Run(context.Background(), inputs, []string{"EGFR", "GUSB"}, w)
			require.NoError(t, err)
			assert.Equal(t, Summary{Files: 20, Rows: 40}, sum)
			assert.Equal(t, 1, w.flushed)

			require.Len(t, w.recs, 40)
			for i := range 20 {
				e, g := w.recs[2*i], w.recs[2*i+1]
				assert.Equal(t, fmt.Sprintf("S%02d", i), e.Sample)
				assert.Equal(t, "EGFR", e.Gene)
				assert.Equal(t, []string{fmt.Sprintf("E%d", i)}, e.Transcripts)
				assert.Equal(t, "GUSB", g.Gene)
				assert.Equal(t, int64(100), g.Start)
			}
		})
	}
}

func TestRun_MissingFileSkipped(t *testing.T) {
	dir := t.TempDir()
	good := writeGzipJSON(t, dir, "good.json.gz",
		fmt.Sprintf(`{"positions":[%s]}`, positionJSON(100, "GUSB", "T1")))
	missing := filepath.Join(dir, "missing.json.gz")

	core, logs := observer.New(zapcore.WarnLevel)
	r := NewRunner(NewExtractor())
	r.SetLogger(zap.New(core))
	w := &memWriter{}

	sum, err := r.Run(context.Background(),
		[]Input{{Path: missing, Sample: "M"}, {Path: good, Sample: "G"}},
		[]string{"GUSB"}, w)
	require.NoError(t, err)
	assert.Equal(t, Summary{Files: 1, Skipped: 1, Rows: 1}, sum)
	require.Len(t, w.recs, 1)
	assert.Equal(t, "G", w.recs[0].Sample)

	warned := logs.FilterMessage("annotation file not found, skipping").All()
	require.Len(t, warned, 1)
	assert.Equal(t, missing, warned[0].ContextMap()["path"])
}

func TestRun_MalformedFileSkipped(t *testing.T) {
	dir := t.TempDir()
	bad := writeGzipJSON(t, dir, "bad.json.gz", `{"header":{}}`)
	good := writeGzipJSON(t, dir, "good.json.gz",
		fmt.Sprintf(`{"positions":[%s]}`, positionJSON(100, "GUSB", "T1")))

	core, logs := observer.New(zapcore.WarnLevel)
	r := NewRunner(NewExtractor())
	r.SetLogger(zap.New(core))
	w := &memWriter{}

	sum, err := r.Run(context.Background(),
		[]Input{{Path: bad, Sample: "B"}, {Path: good, Sample: "G"}},
		[]string{"GUSB"}, w)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Skipped)
	assert.Len(t, w.recs, 1)
	assert.Equal(t, 1, logs.FilterMessage("malformed annotation file, skipping").Len())
}

func TestRun_MultiSampleRejectedSkipped(t *testing.T) {
	dir := t.TempDir()
	path := writeGzipJSON(t, dir, "multi.json.gz", `{"positions":[{"chromosome":"chr1","position":1,`+
		`"samples":[{"copyNumber":1},{"copyNumber":3}],"variants":[{"transcripts":[{"hgnc":"GUSB","transcript":"T1"}]}]}]}`)

	core, logs := observer.New(zapcore.WarnLevel)
	e := NewExtractor()
	e.SetMultiSamplePolicy(PolicyReject)
	r := NewRunner(e)
	r.SetLogger(zap.New(core))
	w := &memWriter{}

	sum, err := r.Run(context.Background(), []Input{{Path: path, Sample: "S"}}, []string{"GUSB"}, w)
	require.NoError(t, err)
	assert.Equal(t, Summary{Skipped: 1}, sum)
	assert.Empty(t, w.recs)
	assert.Equal(t, 1, logs.FilterMessage("multi-sample annotation file rejected, skipping").Len())
}

func TestRun_WriteErrorAborts(t *testing.T) {
	dir := t.TempDir()
	var inputs []Input
	for i := range 5 {
		path := writeGzipJSON(t, dir, fmt.Sprintf("s%d.json.gz", i),
			fmt.Sprintf(`{"positions":[%s]}`, positionJSON(100, "GUSB", "T1")))
		inputs = append(inputs, Input{Path: path, Sample: "S"})
	}

	r := NewRunner(NewExtractor())
	r.SetWorkers(2)
	w := &memWriter{failAt: 3}

	_, err := r.Run(context.Background(), inputs, []string{"GUSB"}, w)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Zero(t, w.flushed)
}

func TestRun_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := NewRunner(NewExtractor())
	w := &memWriter{}
	_, err := r.Run(ctx, []Input{{Path: "a.json.gz"}, {Path: "b.json.gz"}}, []string{"GUSB"}, w)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, w.flushed)
}

func TestRun_SampleFromHeader(t *testing.T) {
	dir := t.TempDir()
	withHeader := writeGzipJSON(t, dir, "run1.json.gz", fmt.Sprintf(
		`{"header":{"annotator":"Nirvana","samples":["LP7-DNA_G07"]},"positions":[%s]}`,
		positionJSON(100, "GUSB", "T1")))
	bare := writeGzipJSON(t, dir, "run2.annotated.json.gz", fmt.Sprintf(
		`{"positions":[%s]}`, positionJSON(100, "GUSB", "T1")))

	r := NewRunner(NewExtractor())
	w := &memWriter{}
	_, err := r.Run(context.Background(),
		[]Input{{Path: withHeader}, {Path: bare}, {Path: withHeader, Sample: "given"}},
		[]string{"GUSB"}, w)
	require.NoError(t, err)

	require.Len(t, w.recs, 3)
	assert.Equal(t, "LP7-DNA_G07", w.recs[0].Sample)
	assert.Equal(t, "run2", w.recs[1].Sample)
	assert.Equal(t, "given", w.recs[2].Sample)
}

func TestRun_UnreadableHeaderNotFatal(t *testing.T) {
	dir := t.TempDir()
	path := writeGzipJSON(t, dir, "s.json.gz", fmt.Sprintf(
		`{"header":{"schemaVersion":"6"},"positions":[%s]}`, positionJSON(100, "GUSB", "T1")))

	core, logs := observer.New(zapcore.WarnLevel)
	r := NewRunner(NewExtractor())
	r.SetLogger(zap.New(core))
	w := &memWriter{}

	sum, err := r.Run(context.Background(), []Input{{Path: path, Sample: "S"}}, []string{"GUSB"}, w)
	require.NoError(t, err)
	assert.Equal(t, Summary{Files: 1, Rows: 1}, sum)
	assert.Equal(t, 1, logs.FilterMessage("ignoring unreadable annotation header").Len())
}

func TestRun_HeaderLoggedAtDebug(t *testing.T) {
	dir := t.TempDir()
	path := writeGzipJSON(t, dir, "s.json.gz",
		`{"header":{"annotator":"Nirvana 3.18","genomeAssembly":"GRCh38","samples":["A"]},"positions":[]}`)

	core, logs := observer.New(zapcore.DebugLevel)
	r := NewRunner(NewExtractor())
	r.SetLogger(zap.New(core))

	_, err := r.Run(context.Background(), []Input{{Path: path}}, []string{"GUSB"}, &memWriter{})
	require.NoError(t, err)

	entries := logs.FilterMessage("annotation header").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "GRCh38", entries[0].ContextMap()["assembly"])
	assert.Equal(t, "Nirvana 3.18", entries[0].ContextMap()["annotator"])
}
