package tail

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const DefaultPattern = "*.jsonl"

// Scanner lists the log files in a single directory. It does not recurse.
type Scanner struct {
	Pattern        string
	IgnorePrefixes []string
}

// Match reports whether the base name of path is a log file the scanner
// would return.
func (s Scanner) Match(path string) bool {
	name := filepath.Base(path)
	for _, prefix := range s.IgnorePrefixes {
		if prefix != "" && strings.HasPrefix(name, prefix) {
			return false
		}
	}
	pattern := s.Pattern
	if pattern == "" {
		pattern = DefaultPattern
	}
	ok, err := filepath.Match(pattern, name)
	return err == nil && ok
}

// Scan returns the sorted paths of matching regular files in dir.
func (s Scanner) Scan(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", dir, err)
	}
	var out []string
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		path := filepath.Join(dir, e.Name())
		if s.Match(path) {
			out = append(out, path)
		}
	}
	sort.Strings(out)
	return out, nil
}
