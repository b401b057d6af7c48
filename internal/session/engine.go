package session

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/justinpbarnett/devcompanion/internal/api"
	"github.com/justinpbarnett/devcompanion/internal/git"
	"github.com/justinpbarnett/devcompanion/internal/tail"
	"github.com/justinpbarnett/devcompanion/internal/transcript"
)

// DefaultMaxStartBatchLines is the largest batch a starting prompt may arrive in.
const DefaultMaxStartBatchLines = 2

// State is the engine's position in the session lifecycle.
type State int

const (
	Idle State = iota
	Active
	Finalizing
)

func (s State) String() string {
	switch s {
	case Active:
		return "active"
	case Finalizing:
		return "finalizing"
	default:
		return "idle"
	}
}

// Reporter registers sessions with the reporting API.
type Reporter interface {
	Start(ctx context.Context, prompt, cwd string) (string, error)
	End(ctx context.Context, req api.EndRequest) error
}

// Executor runs the remote execution exchange for a reported session.
type Executor interface {
	Execute(ctx context.Context, sessionID, cwd string) error
}

// InspectFunc reads repository details for a session working directory.
type InspectFunc func(ctx context.Context, dir string) (git.Info, error)

type Options struct {
	DebounceWindow     time.Duration
	MaxStartBatchLines int
	// PromptLimit caps the prompt sent on start, in runes. Zero means no cap.
	PromptLimit int

	// Executor is optional; without it a session returns to idle once the
	// end report is delivered.
	Executor Executor
	// Inspect is optional; when set, end reports carry repository state.
	Inspect InspectFunc

	Emitter Emitter
	Logger  *slog.Logger
}

// Snapshot is a read-only view of the engine, safe to take from any
// goroutine.
type Snapshot struct {
	State      State
	LocalID    string
	SessionID  string
	Cwd        string
	SourceFile string
	Pending    int
}

type session struct {
	gen        uint64
	localID    string
	id         string
	registered bool
	cwd        string
	source     string
	state      State
	finalText  string
	endQueued  bool
	meta       Metadata
}

type expiry struct {
	messageID string
	gen       uint64
}

// Engine is the session state machine. All state is owned by the goroutine
// running Run; network calls run on their own goroutines and post their
// results back, so the loop never blocks on I/O.
type Engine struct {
	reporter      Reporter
	executor      Executor
	inspect       InspectFunc
	emitter       Emitter
	logger        *slog.Logger
	maxStartLines int
	promptLimit   int

	deb      *Debouncer
	expiries chan expiry
	results  chan func()
	quit     chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	sess *session
	gen  uint64

	mu   sync.Mutex
	snap Snapshot
}

// NewEngine returns an idle engine that reports sessions to reporter.
func NewEngine(reporter Reporter, opts Options) *Engine {
	if opts.MaxStartBatchLines <= 0 {
		opts.MaxStartBatchLines = DefaultMaxStartBatchLines
	}
	if opts.Emitter == nil {
		opts.Emitter = nopEmitter{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	e := &Engine{
		reporter:      reporter,
		executor:      opts.Executor,
		inspect:       opts.Inspect,
		emitter:       opts.Emitter,
		logger:        opts.Logger.With("component", "session"),
		maxStartLines: opts.MaxStartBatchLines,
		promptLimit:   opts.PromptLimit,
		expiries:      make(chan expiry, 16),
		results:       make(chan func(), 16),
		quit:          make(chan struct{}),
	}
	e.deb = NewDebouncer(opts.DebounceWindow, e.postExpiry)
	return e
}

// Run consumes batches until ctx is cancelled or batches is closed. On
// return every pending timer is cancelled and the session is dropped
// without a final report. Run must be called at most once.
func (e *Engine) Run(ctx context.Context, batches <-chan tail.Batch) error {
	e.ctx, e.cancel = context.WithCancel(ctx)
	defer e.shutdown()

	for {
		select {
		case <-e.ctx.Done():
			return nil
		case b, ok := <-batches:
			if !ok {
				return nil
			}
			e.handleBatch(b)
		case x := <-e.expiries:
			e.handleExpiry(x)
		case done := <-e.results:
			done()
		}
		e.publish()
	}
}

func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snap
}

func (e *Engine) shutdown() {
	e.deb.CancelAll()
	if e.sess != nil {
		e.logger.Info("stopping with session in progress, no final report sent",
			"session", e.sess.localID, "state", e.sess.state.String())
	}
	e.sess = nil
	e.publish()
	e.cancel()
	close(e.quit)
	e.wg.Wait()
}

func (e *Engine) handleBatch(b tail.Batch) {
	if b.Rotated {
		e.emit(Event{
			Kind:    EventLog,
			Code:    CodeFileRotated,
			Path:    b.Path,
			Message: fmt.Sprintf("file rotated or truncated; %d lines now marked processed (was %d)", b.NowLines, b.PrevLines),
		})
		return
	}

	if e.sess != nil && b.Path != e.sess.source {
		e.logger.Debug("ignoring activity outside the pinned file", "path", b.Path, "lines", len(b.Lines))
		return
	}

	for _, line := range b.Lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		rec, err := transcript.Parse(b.Path, []byte(line))
		if err != nil {
			e.emit(Event{Kind: EventLog, Code: CodeParseError, Path: b.Path, Err: err, Message: "skipping malformed line"})
			continue
		}
		e.handleRecord(rec, len(b.Lines))
	}
}

func (e *Engine) handleRecord(rec transcript.Record, batchLines int) {
	if e.sess == nil {
		e.handleIdle(rec, batchLines)
		return
	}
	// Finalizing: the reply is complete, later lines do not belong to it.
	if e.sess.state != Active {
		return
	}

	e.sess.meta.Observe(rec)

	if rec.MessageID != "" && e.deb.Has(rec.MessageID) {
		if rec.HasText() {
			e.deb.OnAssistantText(rec.MessageID, rec.Text, rec.SourcePath)
			return
		}
		e.deb.Cancel(rec.MessageID)
		e.emit(Event{
			Kind:    EventLog,
			Code:    CodeResponseCancelled,
			Path:    rec.SourcePath,
			Message: fmt.Sprintf("pending response %s cancelled by a %s record with the same id", rec.MessageID, rec.Kind),
		})
		return
	}

	if !rec.HasText() {
		return
	}
	if rec.MessageID == "" {
		e.finalize(rec.Text)
		return
	}
	for _, id := range e.deb.CancelExcept(rec.MessageID) {
		e.emit(Event{
			Kind:    EventLog,
			Code:    CodeResponseSuperseded,
			Path:    rec.SourcePath,
			Message: fmt.Sprintf("pending response %s superseded by %s", id, rec.MessageID),
		})
	}
	e.deb.OnAssistantText(rec.MessageID, rec.Text, rec.SourcePath)
}

func (e *Engine) handleIdle(rec transcript.Record, batchLines int) {
	if rec.Kind != transcript.KindPrompt {
		return
	}
	if batchLines > e.maxStartLines {
		e.emit(Event{
			Kind:    EventLog,
			Code:    CodeBatchDiscarded,
			Path:    rec.SourcePath,
			Message: fmt.Sprintf("prompt arrived in a batch of %d lines, not starting a session", batchLines),
		})
		return
	}
	if rec.BadCwd != "" {
		e.emit(Event{
			Kind:    EventError,
			Code:    CodeInvalidCwd,
			Path:    rec.SourcePath,
			Message: fmt.Sprintf("prompt declares an unusable cwd %q, not starting a session", rec.BadCwd),
		})
		return
	}
	e.start(rec)
}

func (e *Engine) start(rec transcript.Record) {
	e.gen++
	s := &session{
		gen:     e.gen,
		localID: uuid.NewString(),
		cwd:     rec.Cwd,
		source:  rec.SourcePath,
		state:   Active,
	}
	e.sess = s
	e.emit(Event{Kind: EventStatus, Code: CodeSessionStarted, Path: s.source, Message: "session started"})

	gen, cwd := s.gen, s.cwd
	prompt := truncateRunes(rec.Text, e.promptLimit)
	e.async(func(ctx context.Context) func() {
		id, err := e.reporter.Start(ctx, prompt, cwd)
		return func() { e.onStarted(gen, id, err) }
	})
}

func (e *Engine) onStarted(gen uint64, id string, err error) {
	s := e.current(gen)
	if s == nil {
		if err == nil {
			e.logger.Debug("start result for an abandoned session", "session_id", id)
		}
		return
	}
	if err != nil {
		e.emit(Event{Kind: EventError, Code: CodeSessionStartFailed, Err: err, Message: "session start failed"})
		e.reset()
		return
	}

	s.id = id
	s.registered = true
	e.emit(Event{Kind: EventStatus, Code: CodeSessionRegistered, Message: "session registered"})
	if s.endQueued {
		e.sendEnd(s)
	}
}

func (e *Engine) handleExpiry(x expiry) {
	text, ok := e.deb.Take(x.messageID, x.gen)
	if !ok {
		return
	}
	if e.sess == nil || e.sess.state != Active {
		return
	}
	e.finalize(text)
}

// finalize moves the session to Finalizing. If the start call has not
// returned yet the end report waits for it.
func (e *Engine) finalize(text string) {
	s := e.sess
	e.deb.CancelAll()
	s.state = Finalizing
	s.finalText = text
	e.emit(Event{Kind: EventStatus, Code: CodeSessionFinalizing, Message: "reply complete"})

	if !s.registered {
		s.endQueued = true
		return
	}
	e.sendEnd(s)
}

func (e *Engine) sendEnd(s *session) {
	gen := s.gen
	req := api.EndRequest{
		SessionID:   s.id,
		FinalOutput: s.finalText,
		Status:      api.StatusSuccess,
		Cwd:         s.cwd,
	}
	meta := s.meta.clone()
	inspect := e.inspect

	e.async(func(ctx context.Context) func() {
		if inspect != nil && req.Cwd != "" {
			info, err := inspect(ctx, req.Cwd)
			if err != nil {
				e.logger.Debug("no repository info", "cwd", req.Cwd, "err", err)
			} else {
				meta.Git = &info
			}
		}
		req.Metadata = meta.Map()
		err := e.reporter.End(ctx, req)
		return func() { e.onEnded(gen, err) }
	})
}

func (e *Engine) onEnded(gen uint64, err error) {
	s := e.current(gen)
	if s == nil {
		return
	}
	if err != nil {
		e.emit(Event{Kind: EventError, Code: CodeSessionEndFailed, Err: err, Message: "session end failed"})
		e.reset()
		return
	}
	e.emit(Event{Kind: EventStatus, Code: CodeSessionEnded, Message: "session reported"})

	if e.executor == nil {
		e.reset()
		return
	}
	id, cwd := s.id, s.cwd
	e.async(func(ctx context.Context) func() {
		err := e.executor.Execute(ctx, id, cwd)
		return func() { e.onExecuted(gen, err) }
	})
}

func (e *Engine) onExecuted(gen uint64, err error) {
	if e.current(gen) == nil {
		return
	}
	if err != nil {
		e.emit(Event{Kind: EventError, Code: CodeRemoteFailed, Err: err, Message: "remote execution failed"})
	} else {
		e.emit(Event{Kind: EventStatus, Code: CodeRemoteCompleted, Message: "remote execution completed"})
	}
	e.reset()
}

func (e *Engine) reset() {
	e.deb.CancelAll()
	e.sess = nil
	e.emit(Event{Kind: EventStatus, Code: CodeSessionIdle, Message: "idle"})
}

func (e *Engine) current(gen uint64) *session {
	if e.sess == nil || e.sess.gen != gen {
		return nil
	}
	return e.sess
}

// async runs work off the loop goroutine and delivers its continuation back
// to the loop.
func (e *Engine) async(work func(ctx context.Context) func()) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		done := work(e.ctx)
		select {
		case e.results <- done:
		case <-e.ctx.Done():
		}
	}()
}

func (e *Engine) postExpiry(messageID string, gen uint64) {
	select {
	case e.expiries <- expiry{messageID: messageID, gen: gen}:
	case <-e.quit:
	}
}

func (e *Engine) emit(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	if ev.SessionID == "" && e.sess != nil {
		ev.SessionID = e.sess.id
		if ev.SessionID == "" {
			ev.SessionID = e.sess.localID
		}
	}
	e.emitter.Emit(ev)
}

func (e *Engine) publish() {
	snap := Snapshot{State: Idle, Pending: e.deb.Len()}
	if s := e.sess; s != nil {
		snap.State = s.state
		snap.LocalID = s.localID
		snap.SessionID = s.id
		snap.Cwd = s.cwd
		snap.SourceFile = s.source
	}
	e.mu.Lock()
	e.snap = snap
	e.mu.Unlock()
}

func truncateRunes(s string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}
	return string([]rune(s)[:limit])
}
