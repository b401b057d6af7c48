package remote

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"nhooyr.io/websocket"

	"github.com/justinpbarnett/devcompanion/internal/auth"
	"github.com/justinpbarnett/devcompanion/internal/config"
	"github.com/justinpbarnett/devcompanion/internal/executor"
	"github.com/justinpbarnett/devcompanion/internal/safety"
)

type serverScript func(ctx context.Context, t *testing.T, r *http.Request, conn *websocket.Conn)

// newServer starts a websocket endpoint that runs script once per
// connection and reports how many connections it accepted.
func newServer(t *testing.T, script serverScript) (string, *atomic.Int32) {
	t.Helper()
	var accepted atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			t.Errorf("accept: %v", err)
			return
		}
		accepted.Add(1)
		defer conn.Close(websocket.StatusInternalError, "")
		ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
		defer cancel()
		script(ctx, t, r, conn)
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http"), &accepted
}

func readFrame(ctx context.Context, t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Errorf("server read: %v", err)
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Errorf("server decode %s: %v", data, err)
	}
	return m
}

func writeFrame(ctx context.Context, t *testing.T, conn *websocket.Conn, frame string) {
	t.Helper()
	if err := conn.Write(ctx, websocket.MessageText, []byte(frame)); err != nil {
		t.Errorf("server write: %v", err)
	}
}

// drain waits for the client to close its side.
func drain(ctx context.Context, conn *websocket.Conn) {
	for {
		if _, _, err := conn.Read(ctx); err != nil {
			return
		}
	}
}

func testRunner(t *testing.T) *executor.Runner {
	t.Helper()
	cfg := config.DefaultConfig().Executor
	guard, err := safety.NewGuard(cfg.BlockedPatterns)
	if err != nil {
		t.Fatal(err)
	}
	return executor.NewRunner(cfg, guard, nil)
}

func newTestClient(t *testing.T, url string, tokens auth.TokenSource) *Client {
	t.Helper()
	return NewClient(url, tokens, testRunner(t), Options{DialTimeout: 5 * time.Second, ReadTimeout: 5 * time.Second})
}

func TestExecuteFullExchange(t *testing.T) {
	t.Parallel()
	outputs := make(chan any, 2)
	url, _ := newServer(t, func(ctx context.Context, t *testing.T, r *http.Request, conn *websocket.Conn) {
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("Authorization = %q", got)
		}
		m := readFrame(ctx, t, conn)
		if m["message_type"] != "authenticate" || m["token"] != "tok" {
			t.Errorf("first frame = %v", m)
		}
		writeFrame(ctx, t, conn, `{"message_type":"auth_success","user_id":"u-1"}`)

		m = readFrame(ctx, t, conn)
		if m["message_type"] != "session_finished" || m["session_id"] != "srv-42" {
			t.Errorf("second frame = %v", m)
		}

		for _, cmd := range []string{"echo hi", ""} {
			payload, _ := json.Marshal(map[string]string{"message_type": "execute_command", "command": cmd})
			writeFrame(ctx, t, conn, string(payload))
			m = readFrame(ctx, t, conn)
			if m["message_type"] != "command_executed" {
				t.Errorf("reply = %v", m)
			}
			out, ok := m["output"]
			if !ok {
				t.Errorf("reply to %q has no output key: %v", cmd, m)
			}
			outputs <- out
		}

		writeFrame(ctx, t, conn, `{"message_type":"session_finished"}`)
		drain(ctx, conn)
	})

	err := newTestClient(t, url, auth.Static("tok")).Execute(context.Background(), "srv-42", "")
	if err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if got := <-outputs; got != "hi\n" {
		t.Errorf("first output = %#v, want %q", got, "hi\n")
	}
	if got := <-outputs; got != "" {
		t.Errorf("second output = %#v, want empty", got)
	}
}

func TestExecuteRunsInSessionCwd(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	output := make(chan any, 1)
	url, _ := newServer(t, func(ctx context.Context, t *testing.T, r *http.Request, conn *websocket.Conn) {
		readFrame(ctx, t, conn)
		writeFrame(ctx, t, conn, `{"message_type":"auth_success","userId":"u-2"}`)
		readFrame(ctx, t, conn)
		writeFrame(ctx, t, conn, `{"message_type":"execute_command","command":"pwd"}`)
		output <- readFrame(ctx, t, conn)["output"]
		writeFrame(ctx, t, conn, `{"finished":true}`)
		drain(ctx, conn)
	})

	if err := newTestClient(t, url, auth.Static("tok")).Execute(context.Background(), "s", dir); err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	got := <-output
	if s, _ := got.(string); !strings.HasSuffix(strings.TrimSpace(s), dir) {
		t.Errorf("pwd output = %q, want %s", got, dir)
	}
}

func TestExecuteIgnoresUnknownMessages(t *testing.T) {
	t.Parallel()
	url, _ := newServer(t, func(ctx context.Context, t *testing.T, r *http.Request, conn *websocket.Conn) {
		readFrame(ctx, t, conn)
		writeFrame(ctx, t, conn, `{"message_type":"auth_success"}`)
		readFrame(ctx, t, conn)
		writeFrame(ctx, t, conn, `{"message_type":"heartbeat"}`)
		writeFrame(ctx, t, conn, `{"message_type":"session_finished"}`)
		drain(ctx, conn)
	})

	if err := newTestClient(t, url, auth.Static("tok")).Execute(context.Background(), "s", ""); err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
}

func TestExecuteProtocolFailures(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		script serverScript
		state  State
		reason string
	}{
		{
			name: "auth error payload",
			script: func(ctx context.Context, t *testing.T, r *http.Request, conn *websocket.Conn) {
				readFrame(ctx, t, conn)
				writeFrame(ctx, t, conn, `{"error":"invalid token"}`)
				drain(ctx, conn)
			},
			state:  Authenticating,
			reason: "authentication rejected",
		},
		{
			name: "command before auth",
			script: func(ctx context.Context, t *testing.T, r *http.Request, conn *websocket.Conn) {
				readFrame(ctx, t, conn)
				writeFrame(ctx, t, conn, `{"message_type":"execute_command","command":"ls"}`)
				drain(ctx, conn)
			},
			state:  Authenticating,
			reason: "before auth_success",
		},
		{
			name: "malformed frame",
			script: func(ctx context.Context, t *testing.T, r *http.Request, conn *websocket.Conn) {
				readFrame(ctx, t, conn)
				writeFrame(ctx, t, conn, `{"message_type":`)
				drain(ctx, conn)
			},
			state:  Authenticating,
			reason: "malformed frame",
		},
		{
			name: "error after auth",
			script: func(ctx context.Context, t *testing.T, r *http.Request, conn *websocket.Conn) {
				readFrame(ctx, t, conn)
				writeFrame(ctx, t, conn, `{"message_type":"auth_success"}`)
				readFrame(ctx, t, conn)
				writeFrame(ctx, t, conn, `{"message_type":"error","error":"session unknown"}`)
				drain(ctx, conn)
			},
			state:  AwaitingCommand,
			reason: "server error",
		},
		{
			name: "closed without terminal message",
			script: func(ctx context.Context, t *testing.T, r *http.Request, conn *websocket.Conn) {
				readFrame(ctx, t, conn)
				writeFrame(ctx, t, conn, `{"message_type":"auth_success"}`)
				readFrame(ctx, t, conn)
				conn.Close(websocket.StatusNormalClosure, "bye")
			},
			state:  AwaitingCommand,
			reason: "before session_finished",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			url, _ := newServer(t, tt.script)
			err := newTestClient(t, url, auth.Static("tok")).Execute(context.Background(), "s", "")

			var pe *ProtocolError
			if !errors.As(err, &pe) {
				t.Fatalf("Execute() = %v, want *ProtocolError", err)
			}
			if pe.State != tt.state {
				t.Errorf("state = %s, want %s", pe.State, tt.state)
			}
			if !strings.Contains(pe.Reason, tt.reason) {
				t.Errorf("reason = %q, want it to contain %q", pe.Reason, tt.reason)
			}
		})
	}
}

func TestExecuteWithoutCredentialNeverDials(t *testing.T) {
	t.Parallel()
	url, accepted := newServer(t, func(ctx context.Context, t *testing.T, r *http.Request, conn *websocket.Conn) {})

	err := newTestClient(t, url, auth.Static("")).Execute(context.Background(), "s", "")
	if !errors.Is(err, auth.ErrNoCredential) {
		t.Fatalf("Execute() = %v, want ErrNoCredential", err)
	}
	if n := accepted.Load(); n != 0 {
		t.Errorf("server accepted %d connections, want 0", n)
	}
}

func TestExecuteDialFailure(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.NotFoundHandler())
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	srv.Close()

	err := newTestClient(t, url, auth.Static("tok")).Execute(context.Background(), "s", "")
	var pe *ProtocolError
	if !errors.As(err, &pe) || pe.State != Connecting {
		t.Fatalf("Execute() = %v, want Connecting ProtocolError", err)
	}
}

func TestStateString(t *testing.T) {
	t.Parallel()
	if AwaitingCommand.String() != "awaiting_command" {
		t.Errorf("AwaitingCommand = %q", AwaitingCommand.String())
	}
	if got := State(99).String(); got != "state(99)" {
		t.Errorf("State(99) = %q", got)
	}
}
