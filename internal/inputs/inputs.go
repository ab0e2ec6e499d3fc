// Package inputs turns comma-separated command-line lists into genes and files.
package inputs

import (
	"fmt"
	"path/filepath"
	"strings"
)

// SplitList splits a comma-separated list, trimming blanks and dropping
// empty items.
func SplitList(s string) []string {
	var items []string
	for _, item := range strings.Split(s, ",") {
		item = strings.TrimSpace(item)
		if item != "" {
			items = append(items, item)
		}
	}
	return items
}

// ExpandFiles expands glob patterns in items, keeping the order of items.
// Matches of a single pattern come back in lexical order. Items that match
// nothing are kept as given so that callers can report them as missing.
// Duplicate paths are dropped after their first occurrence.
func ExpandFiles(items []string) ([]string, error) {
	var files []string
	seen := make(map[string]bool)
	add := func(p string) {
		if !seen[p] {
			seen[p] = true
			files = append(files, p)
		}
	}

	for _, item := range items {
		matches, err := filepath.Glob(item)
		if err != nil {
			return nil, fmt.Errorf("expand %q: %w", item, err)
		}
		if len(matches) == 0 {
			add(item)
			continue
		}
		for _, m := range matches {
			add(m)
		}
	}
	return files, nil
}
