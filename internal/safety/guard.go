package safety

import "fmt"

// BlockedError describes a command refused by a Guard.
type BlockedError struct {
	Command string
	Pattern string
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("command blocked by security policy (pattern %s)", e.Pattern)
}

// Guard decides whether a remotely requested command may run locally.
type Guard struct {
	matcher *Matcher
}

// NewGuard builds a guard from blocked patterns. It returns a usable guard
// even when some patterns fail to compile.
func NewGuard(patterns []string) (*Guard, error) {
	m, err := NewMatcher(patterns)
	return &Guard{matcher: m}, err
}

// Allow returns a *BlockedError when command matches a blocked pattern.
func (g *Guard) Allow(command string) error {
	if g == nil || g.matcher == nil {
		return nil
	}
	if blocked, pattern := g.matcher.Check(command); blocked {
		return &BlockedError{Command: command, Pattern: pattern}
	}
	return nil
}

func (g *Guard) Matcher() *Matcher {
	return g.matcher
}
