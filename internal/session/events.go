package session

import (
	"context"
	"log/slog"
	"time"
)

type EventKind string

const (
	EventStatus EventKind = "status"
	EventLog    EventKind = "log"
	EventError  EventKind = "error"
)

// Code identifies what happened so a presentation layer can tell "never
// started" apart from "started but remote execution failed".
type Code string

const (
	CodeSessionStarted     Code = "session_started"
	CodeSessionRegistered  Code = "session_registered"
	CodeSessionFinalizing  Code = "session_finalizing"
	CodeSessionEnded       Code = "session_ended"
	CodeSessionIdle        Code = "session_idle"
	CodeRemoteCompleted    Code = "remote_execution_completed"
	CodeSessionStartFailed Code = "session_start_failed"
	CodeSessionEndFailed   Code = "session_end_failed"
	CodeRemoteFailed       Code = "remote_execution_failed"
	CodeParseError         Code = "parse_error"
	CodeFileRotated        Code = "file_rotated"
	CodeBatchDiscarded     Code = "batch_discarded"
	CodeInvalidCwd         Code = "invalid_cwd"
	CodeResponseCancelled  Code = "response_cancelled"
	CodeResponseSuperseded Code = "response_superseded"
)

// Event is an observational diagnostic. Events never feed back into the
// engine.
type Event struct {
	Time      time.Time
	Kind      EventKind
	Code      Code
	Message   string
	SessionID string
	Path      string
	Err       error
}

type Emitter interface {
	Emit(Event)
}

type EmitterFunc func(Event)

func (f EmitterFunc) Emit(ev Event) { f(ev) }

type nopEmitter struct{}

func (nopEmitter) Emit(Event) {}

// LogEmitter writes events to a structured logger.
func LogEmitter(logger *slog.Logger) Emitter {
	return EmitterFunc(func(ev Event) {
		level := slog.LevelInfo
		switch ev.Kind {
		case EventError:
			level = slog.LevelError
		case EventLog:
			level = slog.LevelDebug
			if ev.Code == CodeFileRotated || ev.Code == CodeBatchDiscarded {
				level = slog.LevelWarn
			}
		}
		attrs := []any{"code", string(ev.Code)}
		if ev.SessionID != "" {
			attrs = append(attrs, "session", ev.SessionID)
		}
		if ev.Path != "" {
			attrs = append(attrs, "path", ev.Path)
		}
		if ev.Err != nil {
			attrs = append(attrs, "err", ev.Err)
		}
		logger.Log(context.Background(), level, ev.Message, attrs...)
	})
}
