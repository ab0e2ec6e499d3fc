package nirvana

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/goccy/go-json"
	"github.com/klauspost/compress/gzip"
)

// ErrMalformedInput reports content that is not valid (gzipped) JSON or
// lacks the expected root structure.
var ErrMalformedInput = errors.New("malformed input")

// ParseError describes why a document could not be decoded.
type ParseError struct {
	Path    string
	Message string
	Err     error
}

func (e *ParseError) Error() string {
	msg := e.Message
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	if e.Path == "" {
		return "annotation parse error: " + msg
	}
	return fmt.Sprintf("annotation parse error in %s: %s", e.Path, msg)
}

// Unwrap lets errors.Is match ErrMalformedInput.
func (e *ParseError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrMalformedInput, e.Err}
	}
	return []error{ErrMalformedInput}
}

// rawDocument distinguishes a missing positions field from an empty one.
// The header is kept raw so that a malformed header never costs the
// positions.
type rawDocument struct {
	Header    json.RawMessage `json:"header"`
	Positions *[]Position     `json:"positions"`
}

// Open reads and decodes the annotation document at path.
// Both gzipped and plain JSON files are accepted. A missing file yields
// an error matching fs.ErrNotExist.
func Open(path string) (*Document, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open annotation file: %w", err)
	}
	defer file.Close()

	doc, err := Decode(file)
	if err != nil {
		var pe *ParseError
		if errors.As(err, &pe) {
			pe.Path = path
		}
		return nil, err
	}
	return doc, nil
}

// Decode reads a document from r, transparently decompressing gzip input.
func Decode(r io.Reader) (*Document, error) {
	br := bufio.NewReader(r)

	// Check for gzip magic number (0x1f, 0x8b)
	magic, err := br.Peek(2)
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("read annotation header: %w", err)
	}

	var src io.Reader = br
	what := "annotation data"
	if len(magic) == 2 && magic[0] == 0x1f && magic[1] == 0x8b {
		gz, err := gzip.NewReader(br)
		if err != nil {
			return nil, &ParseError{Message: "invalid gzip stream", Err: err}
		}
		defer gz.Close()
		src = gz
		what = "gzip stream"
	}

	// Reading the whole stream first keeps decompression failures apart
	// from JSON syntax errors, and Unmarshal rejects trailing data.
	data, err := io.ReadAll(src)
	if err != nil {
		return nil, &ParseError{Message: "invalid " + what, Err: err}
	}

	var raw rawDocument
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, &ParseError{Message: "invalid JSON", Err: err}
	}
	if raw.Positions == nil {
		return nil, &ParseError{Message: "missing positions array"}
	}

	doc := &Document{Positions: *raw.Positions}
	if doc.Positions == nil {
		doc.Positions = []Position{}
	}
	doc.Header, doc.HeaderErr = parseHeader(raw.Header)
	return doc, nil
}

// parseHeader decodes the optional header. A header that does not fit
// the schema is reported through the returned error and otherwise ignored.
func parseHeader(msg json.RawMessage) (*Header, error) {
	if len(msg) == 0 || string(msg) == "null" {
		return nil, nil
	}
	var h Header
	if err := json.Unmarshal(msg, &h); err != nil {
		return nil, fmt.Errorf("decode header: %w", err)
	}
	return &h, nil
}
