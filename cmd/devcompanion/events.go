package main

import (
	"encoding/json"
	"io"
	"sync"
	"time"

	"github.com/justinpbarnett/devcompanion/internal/session"
)

// eventLine is the JSON-lines shape of one diagnostic event.
type eventLine struct {
	Time      string `json:"time"`
	Kind      string `json:"kind"`
	Code      string `json:"code"`
	Message   string `json:"message,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	Path      string `json:"path,omitempty"`
	Error     string `json:"error,omitempty"`
}

// newEventPrinter writes each event as one JSON object per line, for a
// presentation layer reading our stdout.
func newEventPrinter(w io.Writer) session.Emitter {
	var mu sync.Mutex
	enc := json.NewEncoder(w)
	return session.EmitterFunc(func(ev session.Event) {
		line := eventLine{
			Time:      ev.Time.UTC().Format(time.RFC3339Nano),
			Kind:      string(ev.Kind),
			Code:      string(ev.Code),
			Message:   ev.Message,
			SessionID: ev.SessionID,
			Path:      ev.Path,
		}
		if ev.Err != nil {
			line.Error = ev.Err.Error()
		}
		mu.Lock()
		defer mu.Unlock()
		_ = enc.Encode(line)
	})
}
