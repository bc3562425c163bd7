// ABOUTME: HTTP client for the Perso AI platform session API
// ABOUTME: Session create with retry, lifecycle events, and session cleanup

package perso

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// apiKeyHeader carries the platform credential on every request.
const apiKeyHeader = "PersoLive-APIKey"

// intermittentPromptError is a known platform bug: session creation sometimes
// fails validation even though the request is well-formed. Retried like a 5xx.
const intermittentPromptError = "Prompt is required for Capability STF_WEBRTC"

// Session lifecycle events
const (
	EventSessionStart = "SESSION_START"
	EventSessionEnd   = "SESSION_END"
)

// Platform errors
var (
	// ErrNoSessionID is returned when session creation succeeds at the HTTP
	// level but the response carries no session identifier.
	ErrNoSessionID = errors.New("platform returned no session id")

	// ErrUpstream is returned when the platform answers with a non-success
	// status. Wrapped errors carry the status and body excerpt.
	ErrUpstream = errors.New("upstream error")
)

// SessionConfig is the payload for creating a remote session. Empty fields
// are omitted from the request rather than sent as invalid values.
type SessionConfig struct {
	LLMType    string
	TTSType    string
	STTType    string
	ModelStyle string
	PromptID   string
	DocumentID string
	ExtraData  map[string]string
}

// ChatTurn is one role/content pair of the history sent to the chat endpoint.
// The platform is stateless per call and needs the full history each turn.
type ChatTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Client talks to the Perso AI platform. It is safe for concurrent use.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger

	maxRetries int
	retryDelay time.Duration
}

// Options tunes client behavior. Zero values fall back to defaults.
type Options struct {
	Timeout    time.Duration // per-request timeout for non-streaming calls
	MaxRetries int           // session-create retry attempts
	RetryDelay time.Duration // pause between retries
}

// NewClient creates a platform client. Pass nil logger for default.
func NewClient(baseURL, apiKey string, opts Options, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.MaxRetries == 0 {
		opts.MaxRetries = 10
	}
	if opts.RetryDelay == 0 {
		opts.RetryDelay = 500 * time.Millisecond
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: opts.Timeout},
		logger:     logger.With("component", "perso"),
		maxRetries: opts.MaxRetries,
		retryDelay: opts.RetryDelay,
	}
}

// CreateSession creates a remote session and returns its identifier.
// Server errors, network failures, and the platform's known intermittent
// validation bug are retried; other client errors fail immediately.
func (c *Client) CreateSession(ctx context.Context, cfg SessionConfig) (string, error) {
	body := cfg.requestBody()

	var lastErr error
	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		sessionID, err := c.tryCreateSession(ctx, body)
		if err == nil {
			c.logger.Info("session created", "session_id", sessionID, "attempt", attempt)
			return sessionID, nil
		}
		lastErr = err

		if !isRetryable(err) {
			return "", err
		}

		c.logger.Warn("session create failed, retrying",
			"attempt", attempt,
			"max_attempts", c.maxRetries,
			"error", err)

		if attempt < c.maxRetries {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(c.retryDelay):
			}
		}
	}

	return "", fmt.Errorf("session create failed after %d attempts: %w", c.maxRetries, lastErr)
}

// tryCreateSession performs one POST /api/v1/session/ attempt
func (c *Client) tryCreateSession(ctx context.Context, body map[string]interface{}) (string, error) {
	data, err := c.postJSON(ctx, "/api/v1/session/", body)
	if err != nil {
		return "", err
	}

	var resp struct {
		SessionID string `json:"session_id"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return "", fmt.Errorf("decoding session response: %w", err)
	}
	if resp.SessionID == "" {
		return "", ErrNoSessionID
	}
	return resp.SessionID, nil
}

// SendEvent posts a lifecycle event (SESSION_START, SESSION_END) for a session
func (c *Client) SendEvent(ctx context.Context, sessionID, event, detail string) error {
	body := map[string]interface{}{"event": event}
	if detail != "" {
		body["detail"] = detail
	}

	path := fmt.Sprintf("/api/v1/session/%s/event", sessionID)
	if _, err := c.postJSON(ctx, path, body); err != nil {
		return fmt.Errorf("sending %s: %w", event, err)
	}

	c.logger.Info("session event sent", "session_id", sessionID, "event", event)
	return nil
}

// DeleteSession removes a session on the platform. A 404 is treated as
// already deleted, not an error.
func (c *Client) DeleteSession(ctx context.Context, sessionID string) error {
	path := fmt.Sprintf("/api/v1/session/%s/", sessionID)
	req, err := c.newRequest(ctx, http.MethodDelete, path, nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		c.logger.Warn("session already deleted", "session_id", sessionID)
		return nil
	}
	if resp.StatusCode >= 400 {
		return statusError(resp)
	}
	return nil
}

// ListSessions returns the identifiers of all live sessions on the platform
func (c *Client) ListSessions(ctx context.Context) ([]string, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/api/v1/session/", nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, statusError(resp)
	}

	var payload struct {
		Results []struct {
			SessionID string `json:"session_id"`
		} `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decoding session list: %w", err)
	}

	ids := make([]string, 0, len(payload.Results))
	for _, r := range payload.Results {
		ids = append(ids, r.SessionID)
	}
	return ids, nil
}

// CleanupSessions deletes every live session on the platform and returns the
// count of successful deletions. Individual failures are logged and skipped.
func (c *Client) CleanupSessions(ctx context.Context) (int, error) {
	ids, err := c.ListSessions(ctx)
	if err != nil {
		return 0, err
	}

	deleted := 0
	for _, id := range ids {
		if err := c.DeleteSession(ctx, id); err != nil {
			c.logger.Warn("session delete failed, continuing", "session_id", id, "error", err)
			continue
		}
		deleted++
	}

	c.logger.Info("session cleanup complete", "deleted", deleted, "total", len(ids))
	return deleted, nil
}

// requestBody builds the create payload, omitting empty optional fields
func (cfg SessionConfig) requestBody() map[string]interface{} {
	body := make(map[string]interface{})
	put := func(key, value string) {
		if value != "" {
			body[key] = value
		}
	}
	put("llm_type", cfg.LLMType)
	put("tts_type", cfg.TTSType)
	put("stt_type", cfg.STTType)
	put("model_style", cfg.ModelStyle)
	put("prompt", cfg.PromptID)
	put("document", cfg.DocumentID)

	if len(cfg.ExtraData) > 0 {
		body["extra_data"] = cfg.ExtraData
	}
	return body
}

// postJSON posts a JSON body and returns the response bytes on 2xx
func (c *Client) postJSON(ctx context.Context, path string, body interface{}) ([]byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, path, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("posting %s: %w", path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, &StatusError{Status: resp.StatusCode, Body: string(data)}
	}
	return data, nil
}

// jsonBody marshals v into a request body reader. Marshal failures surface
// later as an empty body; callers only pass marshalable maps.
func jsonBody(v interface{}) io.Reader {
	payload, err := json.Marshal(v)
	if err != nil {
		return bytes.NewReader(nil)
	}
	return bytes.NewReader(payload)
}

// newRequest builds a request with the platform credential header set
func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set(apiKeyHeader, c.apiKey)
	return req, nil
}

// StatusError is a non-2xx platform response.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	body := e.Body
	if len(body) > 200 {
		body = body[:200]
	}
	return fmt.Sprintf("upstream status %d: %s", e.Status, body)
}

// Unwrap lets callers match with errors.Is(err, ErrUpstream)
func (e *StatusError) Unwrap() error {
	return ErrUpstream
}

// statusError builds a StatusError from a drained response
func statusError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	return &StatusError{Status: resp.StatusCode, Body: string(body)}
}

// isRetryable reports whether a session-create failure is worth retrying.
// Server errors and network failures are; client errors are not, except the
// platform's known intermittent validation bug.
func isRetryable(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		if se.Status >= 500 {
			return true
		}
		return strings.Contains(se.Body, intermittentPromptError)
	}
	if errors.Is(err, ErrNoSessionID) {
		return false
	}
	// A 2xx response we cannot decode is not transient
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return false
	}
	// Network-level failure (timeout, refused connection, reset)
	return true
}
