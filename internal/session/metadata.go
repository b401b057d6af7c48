package session

import (
	"encoding/json"
	"sort"

	"github.com/justinpbarnett/devcompanion/internal/git"
	"github.com/justinpbarnett/devcompanion/internal/transcript"
)

// Metadata accumulates tool activity for the end-of-session report.
type Metadata struct {
	toolCalls     map[string]int
	filesModified []string
	filesCreated  []string
	commandsRun   []string
	seen          map[string]bool
	// usage is keyed by message id; lines of one message repeat its figures.
	usage map[string]transcript.Usage
	anon  transcript.Usage

	Git *git.Info
}

type toolInput struct {
	FilePath string `json:"file_path"`
	Command  string `json:"command"`
}

// Observe records the tool_use blocks and token usage of an assistant record.
func (m *Metadata) Observe(rec transcript.Record) {
	if rec.Role == transcript.RoleAssistant && rec.Usage != nil {
		m.observeUsage(rec.MessageID, *rec.Usage)
	}
	for _, tu := range rec.ToolUses {
		if m.toolCalls == nil {
			m.toolCalls = make(map[string]int)
			m.seen = make(map[string]bool)
		}
		m.toolCalls[tu.Name]++

		var in toolInput
		if len(tu.Input) > 0 {
			_ = json.Unmarshal(tu.Input, &in)
		}
		switch tu.Name {
		case "Edit", "MultiEdit", "NotebookEdit":
			m.addFile(&m.filesModified, "m:"+in.FilePath, in.FilePath)
		case "Write":
			m.addFile(&m.filesCreated, "c:"+in.FilePath, in.FilePath)
		case "Bash":
			if in.Command != "" {
				m.commandsRun = append(m.commandsRun, in.Command)
			}
		}
	}
}

func (m *Metadata) observeUsage(id string, u transcript.Usage) {
	if id == "" {
		m.anon.InputTokens += u.InputTokens
		m.anon.OutputTokens += u.OutputTokens
		m.anon.CacheCreationInputTokens += u.CacheCreationInputTokens
		m.anon.CacheReadInputTokens += u.CacheReadInputTokens
		return
	}
	if m.usage == nil {
		m.usage = make(map[string]transcript.Usage)
	}
	m.usage[id] = u
}

type usageTotals struct {
	transcript.Usage
	TotalTokens int `json:"total_tokens"`
	Messages    int `json:"messages"`
}

func (m *Metadata) usageTotals() (usageTotals, bool) {
	t := usageTotals{Usage: m.anon}
	for _, u := range m.usage {
		t.InputTokens += u.InputTokens
		t.OutputTokens += u.OutputTokens
		t.CacheCreationInputTokens += u.CacheCreationInputTokens
		t.CacheReadInputTokens += u.CacheReadInputTokens
	}
	t.Messages = len(m.usage)
	t.TotalTokens = t.Total()
	return t, t.TotalTokens > 0 || t.Messages > 0
}

func (m *Metadata) addFile(list *[]string, key, path string) {
	if path == "" || m.seen[key] {
		return
	}
	m.seen[key] = true
	*list = append(*list, path)
}

type toolCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// Map renders the report payload. Tool calls are sorted by name.
func (m *Metadata) Map() map[string]any {
	calls := make([]toolCount, 0, len(m.toolCalls))
	for name, n := range m.toolCalls {
		calls = append(calls, toolCount{Name: name, Count: n})
	}
	sort.Slice(calls, func(i, j int) bool { return calls[i].Name < calls[j].Name })

	out := map[string]any{
		"tool_calls":     calls,
		"files_modified": nonNil(m.filesModified),
		"files_created":  nonNil(m.filesCreated),
		"commands_run":   nonNil(m.commandsRun),
	}
	if u, ok := m.usageTotals(); ok {
		out["usage"] = u
	}
	if m.Git != nil {
		out["git"] = m.Git
	}
	return out
}

// clone copies the metadata so the report goroutine owns its snapshot.
func (m *Metadata) clone() *Metadata {
	c := &Metadata{
		toolCalls:     make(map[string]int, len(m.toolCalls)),
		filesModified: append([]string(nil), m.filesModified...),
		filesCreated:  append([]string(nil), m.filesCreated...),
		commandsRun:   append([]string(nil), m.commandsRun...),
		usage:         make(map[string]transcript.Usage, len(m.usage)),
		anon:          m.anon,
	}
	for k, v := range m.toolCalls {
		c.toolCalls[k] = v
	}
	for k, v := range m.usage {
		c.usage[k] = v
	}
	return c
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
