package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/justinpbarnett/devcompanion/internal/auth"
	"github.com/justinpbarnett/devcompanion/internal/config"
)

const userAgent = "devcompanion/1.0"

// StatusSuccess is the end status for a session that finished normally.
const StatusSuccess = "success"

type StartRequest struct {
	UserPrompt string `json:"user_prompt"`
	Cwd        string `json:"cwd,omitempty"`
}

type startResponse struct {
	SessionID string `json:"session_id"`
}

type EndRequest struct {
	SessionID   string         `json:"session_id"`
	FinalOutput string         `json:"final_output"`
	Status      string         `json:"status"`
	Cwd         string         `json:"cwd,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// ReportingError is returned for any failed start or end call. StatusCode is
// zero when no response was received.
type ReportingError struct {
	Op         string
	StatusCode int
	Body       string
	Err        error
}

func (e *ReportingError) Error() string {
	switch {
	case e.StatusCode != 0:
		return fmt.Sprintf("session %s: server returned %d: %s", e.Op, e.StatusCode, e.Body)
	case e.Err != nil:
		return fmt.Sprintf("session %s: %v", e.Op, e.Err)
	default:
		return fmt.Sprintf("session %s failed", e.Op)
	}
}

func (e *ReportingError) Unwrap() error { return e.Err }

type Client struct {
	baseURL    string
	startPath  string
	endPath    string
	tokens     auth.TokenSource
	httpClient *http.Client
}

func NewClient(baseURL string, tokens auth.TokenSource, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		startPath:  "/session/start",
		endPath:    "/session/end",
		tokens:     tokens,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func NewClientFromConfig(cfg *config.Config) *Client {
	c := NewClient(cfg.API.BaseURL, auth.FromConfig(cfg.API), cfg.APITimeout())
	if cfg.API.StartPath != "" {
		c.startPath = cfg.API.StartPath
	}
	if cfg.API.EndPath != "" {
		c.endPath = cfg.API.EndPath
	}
	return c
}

// Start registers a new session and returns the server-assigned id.
func (c *Client) Start(ctx context.Context, prompt, cwd string) (string, error) {
	var resp startResponse
	if err := c.post(ctx, "start", c.startPath, StartRequest{UserPrompt: prompt, Cwd: cwd}, &resp); err != nil {
		return "", err
	}
	if resp.SessionID == "" {
		return "", &ReportingError{Op: "start", Err: errors.New("response has no session_id")}
	}
	return resp.SessionID, nil
}

// End reports the final output of a session.
func (c *Client) End(ctx context.Context, req EndRequest) error {
	if req.Status == "" {
		req.Status = StatusSuccess
	}
	return c.post(ctx, "end", c.endPath, req, nil)
}

func (c *Client) post(ctx context.Context, op, path string, body, out any) error {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return &ReportingError{Op: op, Err: err}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return &ReportingError{Op: op, Err: fmt.Errorf("encoding request: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return &ReportingError{Op: op, Err: fmt.Errorf("creating request: %w", err)}
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &ReportingError{Op: op, Err: fmt.Errorf("request failed: %w", err)}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &ReportingError{Op: op, Err: fmt.Errorf("reading response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &ReportingError{Op: op, StatusCode: resp.StatusCode, Body: truncate(string(data), 200)}
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &ReportingError{Op: op, Err: fmt.Errorf("parsing response: %w", err)}
	}
	return nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
