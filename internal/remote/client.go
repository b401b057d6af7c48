package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"nhooyr.io/websocket"

	"github.com/justinpbarnett/devcompanion/internal/auth"
	"github.com/justinpbarnett/devcompanion/internal/config"
)

const (
	defaultDialTimeout = 15 * time.Second
	defaultReadTimeout = 5 * time.Minute
	readLimit          = 4 << 20
)

// CommandRunner executes one requested command and returns its output text.
type CommandRunner interface {
	Run(ctx context.Context, command, cwd string) string
}

type Options struct {
	DialTimeout time.Duration
	// ReadTimeout bounds each wait for the next server frame.
	ReadTimeout time.Duration
	Logger      *slog.Logger
}

// Client opens one short-lived connection per finished session. There is
// no reconnect: a failed connection is reported and the next session dials
// fresh.
type Client struct {
	url         string
	tokens      auth.TokenSource
	runner      CommandRunner
	dialTimeout time.Duration
	readTimeout time.Duration
	logger      *slog.Logger
}

func NewClient(url string, tokens auth.TokenSource, runner CommandRunner, opts Options) *Client {
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = defaultDialTimeout
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = defaultReadTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	return &Client{
		url:         url,
		tokens:      tokens,
		runner:      runner,
		dialTimeout: opts.DialTimeout,
		readTimeout: opts.ReadTimeout,
		logger:      opts.Logger.With("component", "remote"),
	}
}

func NewClientFromConfig(cfg *config.Config, runner CommandRunner, logger *slog.Logger) *Client {
	return NewClient(cfg.Remote.URL, auth.FromConfig(cfg.API), runner, Options{
		DialTimeout: time.Duration(cfg.Remote.DialTimeout) * time.Second,
		ReadTimeout: time.Duration(cfg.Remote.ReadTimeout) * time.Second,
		Logger:      logger,
	})
}

// Execute announces sessionID as finished and serves execute_command
// requests, running each in cwd, until the server sends session_finished.
func (c *Client) Execute(ctx context.Context, sessionID, cwd string) error {
	conv := &conversation{
		client:    c,
		sessionID: sessionID,
		cwd:       cwd,
		state:     Disconnected,
		logger:    c.logger.With("conn", uuid.NewString(), "session_id", sessionID),
	}
	return conv.run(ctx)
}

// conversation is the state of one connection.
type conversation struct {
	client    *Client
	conn      *websocket.Conn
	sessionID string
	cwd       string
	state     State
	userID    string
	commands  int
	logger    *slog.Logger
}

func (cv *conversation) run(ctx context.Context) error {
	c := cv.client
	if c.url == "" {
		return cv.fail("no endpoint configured", nil)
	}

	// Never dial without a credential.
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return cv.fail("no credential", err)
	}

	cv.state = Connecting
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	dialCtx, cancel := context.WithTimeout(ctx, c.dialTimeout)
	conn, resp, err := websocket.Dial(dialCtx, c.url, &websocket.DialOptions{HTTPHeader: header})
	cancel()
	if err != nil {
		if resp != nil {
			return cv.fail(fmt.Sprintf("dial failed with HTTP %d", resp.StatusCode), err)
		}
		return cv.fail("dial failed", err)
	}
	cv.conn = conn
	conn.SetReadLimit(readLimit)
	cv.logger.Debug("connected", "url", c.url)

	cv.state = Authenticating
	if err := cv.send(ctx, authenticateMsg{Type: TypeAuthenticate, Token: token}); err != nil {
		return cv.abort(err)
	}

	for {
		readCtx, cancel := context.WithTimeout(ctx, c.readTimeout)
		_, data, err := conn.Read(readCtx)
		cancel()
		if err != nil {
			if status := websocket.CloseStatus(err); status != -1 {
				return cv.abort(cv.fail(fmt.Sprintf("server closed the connection (%d) before session_finished", status), nil))
			}
			return cv.abort(cv.fail("read failed", err))
		}

		done, err := cv.dispatch(ctx, data)
		if err != nil {
			return cv.abort(err)
		}
		if done {
			cv.state = Completed
			cv.logger.Info("remote execution completed", "user_id", cv.userID, "commands", cv.commands)
			_ = conn.Close(websocket.StatusNormalClosure, "session finished")
			return nil
		}
	}
}

// dispatch applies one server frame to the conversation state. It reports
// done when the terminal message arrives.
func (cv *conversation) dispatch(ctx context.Context, data []byte) (bool, error) {
	var msg inbound
	if err := json.Unmarshal(data, &msg); err != nil {
		return false, cv.fail("malformed frame", err)
	}
	if msg.isError() {
		reason := "server error"
		if cv.state == Authenticating {
			reason = "authentication rejected"
		}
		return false, cv.fail(reason, errors.New(msg.Error))
	}

	switch cv.state {
	case Authenticating:
		if msg.Type != TypeAuthSuccess {
			return false, cv.fail(fmt.Sprintf("unexpected %q before auth_success", msg.Type), nil)
		}
		cv.state = Authenticated
		cv.userID = msg.userID()
		cv.logger.Debug("authenticated", "user_id", cv.userID)

		if err := cv.send(ctx, sessionFinishedMsg{Type: TypeSessionFinished, SessionID: cv.sessionID}); err != nil {
			return false, err
		}
		cv.state = AwaitingCommand
		return false, nil

	case AwaitingCommand:
		switch {
		case msg.isTerminal():
			return true, nil
		case msg.Type == TypeExecuteCommand:
			cv.state = ExecutingCommand
			cv.commands++
			cv.logger.Info("executing command", "command", msg.Command, "cwd", cv.cwd)
			output := cv.client.runner.Run(ctx, msg.Command, cv.cwd)
			if err := cv.send(ctx, commandExecutedMsg{Type: TypeCommandExecuted, Output: output}); err != nil {
				return false, err
			}
			cv.state = AwaitingCommand
			return false, nil
		default:
			cv.logger.Warn("ignoring unknown message", "message_type", string(msg.Type))
			return false, nil
		}

	default:
		return false, cv.fail(fmt.Sprintf("frame %q in state %s", msg.Type, cv.state), nil)
	}
}

func (cv *conversation) send(ctx context.Context, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return cv.fail("encoding frame", err)
	}
	if err := cv.conn.Write(ctx, websocket.MessageText, payload); err != nil {
		return cv.fail("write failed", err)
	}
	return nil
}

func (cv *conversation) fail(reason string, err error) *ProtocolError {
	return &ProtocolError{State: cv.state, Reason: reason, Err: err}
}

// abort closes the connection after a protocol failure.
func (cv *conversation) abort(err error) error {
	cv.state = Failed
	if cv.conn != nil {
		_ = cv.conn.Close(websocket.StatusPolicyViolation, "protocol error")
	}
	cv.logger.Warn("remote execution failed", "err", err)
	return err
}
