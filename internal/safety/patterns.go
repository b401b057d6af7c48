package safety

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Matcher tests shell commands against blocked patterns. It is safe for
// concurrent use.
type Matcher struct {
	compiled []*regexp.Regexp
	raw      []string
}

// NewMatcher compiles blocked patterns as case-insensitive regexes. Invalid
// patterns are skipped and joined into the returned error; the matcher is
// still usable with whichever patterns compiled.
func NewMatcher(patterns []string) (*Matcher, error) {
	m := &Matcher{}
	var errs []error

	for i, p := range patterns {
		if strings.TrimSpace(p) == "" {
			continue
		}
		re, err := regexp.Compile("(?i)" + p)
		if err != nil {
			errs = append(errs, fmt.Errorf("pattern[%d] %q: %w", i, p, err))
			continue
		}
		m.compiled = append(m.compiled, re)
		m.raw = append(m.raw, p)
	}

	if len(errs) > 0 {
		return m, fmt.Errorf("invalid blocked patterns: %w", errors.Join(errs...))
	}
	return m, nil
}

// Check returns the first pattern command matches. Runs of whitespace are
// collapsed first so padding cannot slip a command past a pattern.
func (m *Matcher) Check(command string) (blocked bool, matchedPattern string) {
	normalized := strings.Join(strings.Fields(command), " ")
	for i, re := range m.compiled {
		if re.MatchString(command) || re.MatchString(normalized) {
			return true, m.raw[i]
		}
	}
	return false, ""
}

// Len returns the number of patterns that compiled.
func (m *Matcher) Len() int {
	return len(m.compiled)
}
