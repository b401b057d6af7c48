package transcript

import (
	"encoding/json"
	"fmt"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleOther     Role = "other"
)

// Kind discriminates what a record means to the session lifecycle. A tool
// result is structurally a user record but never a prompt.
type Kind int

const (
	KindOther Kind = iota
	KindPrompt
	KindToolResult
	KindAssistantText
	KindAssistantTool
)

func (k Kind) String() string {
	switch k {
	case KindPrompt:
		return "prompt"
	case KindToolResult:
		return "tool_result"
	case KindAssistantText:
		return "assistant_text"
	case KindAssistantTool:
		return "assistant_tool"
	default:
		return "other"
	}
}

// ToolUse is one tool invocation block from an assistant record.
type ToolUse struct {
	Name  string
	Input json.RawMessage
}

// Usage is the token accounting an assistant message carries. Every line
// written for one message repeats the same figures.
type Usage struct {
	InputTokens              int `json:"input_tokens"`
	OutputTokens             int `json:"output_tokens"`
	CacheCreationInputTokens int `json:"cache_creation_input_tokens"`
	CacheReadInputTokens     int `json:"cache_read_input_tokens"`
}

func (u Usage) Total() int {
	return u.InputTokens + u.OutputTokens + u.CacheCreationInputTokens + u.CacheReadInputTokens
}

// Record is one decoded transcript line.
type Record struct {
	SourcePath string
	Role       Role
	Kind       Kind
	MessageID  string
	Cwd        string
	// BadCwd holds a declared cwd that is not an absolute path string.
	BadCwd   string
	Text     string
	ToolUses []ToolUse
	Usage    *Usage
	Raw      json.RawMessage
}

// HasText reports whether the record is assistant output carrying text.
func (r Record) HasText() bool { return r.Kind == KindAssistantText }

// ParseError is returned for a line that is not a JSON object.
type ParseError struct {
	Path string
	Line string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %v (line %q)", e.Path, e.Err, truncate(e.Line, 80))
}

func (e *ParseError) Unwrap() error { return e.Err }

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
