// Package sampleid derives sample identifiers from annotation file names.
package sampleid

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

// DefaultPattern matches Illumina sample/library ids such as LP1234567-DNA_A01.
const DefaultPattern = `LP[0-9]+-DNA_[A-Z][0-9]{2}`

// Deriver extracts a sample id from a file path.
type Deriver struct {
	re *regexp.Regexp
}

// New compiles pattern into a Deriver. An empty pattern selects DefaultPattern.
func New(pattern string) (*Deriver, error) {
	if pattern == "" {
		pattern = DefaultPattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("compile sample pattern: %w", err)
	}
	return &Deriver{re: re}, nil
}

// Match returns the second id in the base name matching the pattern.
// File names of paired runs carry the normal id first and the tumour id
// second. With a single match that id is used; with none ok is false.
func (d *Deriver) Match(path string) (id string, ok bool) {
	ids := d.re.FindAllString(filepath.Base(path), 2)
	switch len(ids) {
	case 2:
		return ids[1], true
	case 1:
		return ids[0], true
	}
	return "", false
}

// Derive is Match falling back to BaseName.
func (d *Deriver) Derive(path string) string {
	if id, ok := d.Match(path); ok {
		return id
	}
	return BaseName(path)
}

// BaseName returns the file name of path without annotation extensions.
func BaseName(path string) string {
	name := filepath.Base(path)
	for _, ext := range []string{".gz", ".json", ".annotated"} {
		name = strings.TrimSuffix(name, ext)
	}
	return name
}
