package transcript

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// JSON structures for Claude Code transcript lines.

type transcriptLine struct {
	Type          string          `json:"type"`
	Cwd           json.RawMessage `json:"cwd,omitempty"`
	Message       *lineMessage    `json:"message,omitempty"`
	ToolUseResult json.RawMessage `json:"toolUseResult,omitempty"`
}

type lineMessage struct {
	ID      string          `json:"id"`
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
	Usage   *Usage          `json:"usage,omitempty"`
}

type contentBlock struct {
	Type  string          `json:"type"`
	Text  string          `json:"text,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`
}

var errNotObject = errors.New("not a JSON object")

// Parse decodes one transcript line read from path.
func Parse(path string, line []byte) (Record, error) {
	trimmed := bytes.TrimSpace(line)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return Record{}, &ParseError{Path: path, Line: string(line), Err: errNotObject}
	}

	var tl transcriptLine
	if err := json.Unmarshal(trimmed, &tl); err != nil {
		return Record{}, &ParseError{Path: path, Line: string(line), Err: err}
	}

	rec := Record{
		SourcePath: path,
		Role:       roleOf(tl),
		Raw:        json.RawMessage(trimmed),
	}
	rec.Cwd, rec.BadCwd = declaredCwd(tl.Cwd)

	var toolResultBlock bool
	if tl.Message != nil {
		rec.MessageID = tl.Message.ID
		rec.Usage = tl.Message.Usage
		rec.Text, rec.ToolUses, toolResultBlock = decodeContent(tl.Message.Content)
	}

	switch rec.Role {
	case RoleUser:
		if hasKey(tl.ToolUseResult) || toolResultBlock {
			rec.Kind = KindToolResult
		} else {
			rec.Kind = KindPrompt
		}
	case RoleAssistant:
		switch {
		case rec.Text != "":
			rec.Kind = KindAssistantText
		case len(rec.ToolUses) > 0:
			rec.Kind = KindAssistantTool
		default:
			rec.Kind = KindOther
		}
	default:
		rec.Kind = KindOther
	}

	return rec, nil
}

func roleOf(tl transcriptLine) Role {
	role := ""
	if tl.Message != nil {
		role = tl.Message.Role
	}
	if role == "" {
		role = tl.Type
	}
	switch role {
	case "user":
		return RoleUser
	case "assistant":
		return RoleAssistant
	default:
		return RoleOther
	}
}

// declaredCwd returns (cwd, "") for a usable absolute path, ("", raw) for a
// value that was declared but cannot be used, and ("", "") when absent.
func declaredCwd(raw json.RawMessage) (string, string) {
	if !isPresent(raw) {
		return "", ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", string(raw)
	}
	if s == "" {
		return "", ""
	}
	if !filepath.IsAbs(s) {
		return "", s
	}
	return filepath.Clean(s), ""
}

// decodeContent handles both content shapes: a plain string, or a list of
// typed blocks whose text blocks are concatenated in order.
func decodeContent(raw json.RawMessage) (text string, tools []ToolUse, toolResult bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return "", nil, false
	}

	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return s, nil, false
		}
	case '[':
		var blocks []contentBlock
		if err := json.Unmarshal(raw, &blocks); err != nil {
			return "", nil, false
		}
		var b strings.Builder
		for _, block := range blocks {
			switch block.Type {
			case "text":
				b.WriteString(block.Text)
			case "tool_use":
				tools = append(tools, ToolUse{Name: block.Name, Input: block.Input})
			case "tool_result":
				toolResult = true
			}
		}
		return b.String(), tools, toolResult
	}
	return "", nil, false
}

// hasKey reports whether the field appeared in the line at all. RawMessage
// receives the literal null, so a null value still counts.
func hasKey(raw json.RawMessage) bool {
	return len(raw) > 0
}

func isPresent(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && !bytes.Equal(raw, []byte("null"))
}

// String renders a short description for logs.
func (r Record) String() string {
	return fmt.Sprintf("%s/%s id=%q", r.Role, r.Kind, r.MessageID)
}
