package session

import (
	"strings"
	"time"
)

const DefaultDebounceWindow = 10 * time.Second

// pendingResponse is one assistant reply still receiving chunks.
type pendingResponse struct {
	messageID  string
	text       strings.Builder
	timer      *time.Timer
	gen        uint64
	sourcePath string
	startedAt  time.Time
}

// Debouncer holds at most one armed timer per message id. It is not safe for
// concurrent use: the engine calls it only from its own goroutine, and timer
// expiry is reported through the fire callback carrying the generation the
// timer was armed with, so a stale expiry can be told apart from a live one.
type Debouncer struct {
	window  time.Duration
	fire    func(messageID string, gen uint64)
	entries map[string]*pendingResponse
	gen     uint64
}

func NewDebouncer(window time.Duration, fire func(messageID string, gen uint64)) *Debouncer {
	if window <= 0 {
		window = DefaultDebounceWindow
	}
	return &Debouncer{
		window:  window,
		fire:    fire,
		entries: make(map[string]*pendingResponse),
	}
}

// OnAssistantText seeds or extends the pending entry for messageID and
// re-arms its timer. The previous timer is stopped before the new one is
// scheduled.
func (d *Debouncer) OnAssistantText(messageID, text, sourcePath string) {
	p, ok := d.entries[messageID]
	if !ok {
		p = &pendingResponse{messageID: messageID, sourcePath: sourcePath, startedAt: time.Now()}
		d.entries[messageID] = p
	}
	p.text.WriteString(text)

	if p.timer != nil {
		p.timer.Stop()
	}
	d.gen++
	gen := d.gen
	p.gen = gen
	p.timer = time.AfterFunc(d.window, func() { d.fire(messageID, gen) })
}

func (d *Debouncer) Has(messageID string) bool {
	_, ok := d.entries[messageID]
	return ok
}

// Cancel drops the entry for messageID without finalizing it.
func (d *Debouncer) Cancel(messageID string) bool {
	p, ok := d.entries[messageID]
	if !ok {
		return false
	}
	p.timer.Stop()
	delete(d.entries, messageID)
	return true
}

// CancelExcept drops every entry other than keep and returns the ids removed.
func (d *Debouncer) CancelExcept(keep string) []string {
	var removed []string
	for id := range d.entries {
		if id != keep {
			d.Cancel(id)
			removed = append(removed, id)
		}
	}
	return removed
}

func (d *Debouncer) CancelAll() {
	for id := range d.entries {
		d.Cancel(id)
	}
}

// Take removes and returns the accumulated text for an expired timer. It
// reports false when the entry is gone or was re-armed after gen was issued.
func (d *Debouncer) Take(messageID string, gen uint64) (string, bool) {
	p, ok := d.entries[messageID]
	if !ok || p.gen != gen {
		return "", false
	}
	delete(d.entries, messageID)
	return p.text.String(), true
}

func (d *Debouncer) Len() int { return len(d.entries) }
