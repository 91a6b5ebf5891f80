package offline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ErrConflict marks a backend 409 response. Use errors.As with
// [*ConflictError] for the details.
var ErrConflict = errors.New("offline: backend conflict")

// ConflictError carries the backend's 409 response body. Conflicts are
// surfaced, never auto-resolved: the parked record waits for an explicit
// resolution.
type ConflictError struct {
	Detail string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("offline: backend conflict: %s", e.Detail)
}

// Is makes errors.Is(err, ErrConflict) work for ConflictError values.
func (e *ConflictError) Is(target error) bool { return target == ErrConflict }

// StatusError is a non-conflict backend rejection (4xx/5xx). It counts
// against a record's retry budget, unlike transport errors, which only mean
// the backend is unreachable.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("offline: backend rejected request (status %d): %s", e.Code, e.Body)
}

// ClientOption is a functional option for configuring a [Client].
type ClientOption func(*Client)

// WithHTTPClient substitutes the underlying HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = hc }
}

// WithAPIToken sends a bearer token with every request.
func WithAPIToken(token string) ClientOption {
	return func(c *Client) { c.token = token }
}

// Client talks to the workout backend over HTTP. It makes exactly one
// attempt per call; the retry budget lives in the [Manager].
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient creates a backend client for the given base URL.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// wireSession is the POST /v1/sessions request body.
type wireSession struct {
	SessionType string            `json:"sessionType"`
	StartedAt   time.Time         `json:"startedAt"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// wireEvent is the POST /v1/events request body.
type wireEvent struct {
	SessionID       string          `json:"sessionId"`
	Intent          string          `json:"intent"`
	Payload         json.RawMessage `json:"payload"`
	Transcript      string          `json:"transcript,omitempty"`
	ConfidenceScore float64         `json:"confidenceScore"`
	Timestamp       time.Time       `json:"timestamp"`
	Count           int             `json:"count,omitempty"`
}

type idResponse struct {
	ID string `json:"id"`
}

// Ping probes backend reachability.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/ping", nil)
	if err != nil {
		return fmt.Errorf("offline: building ping request: %w", err)
	}
	c.authorize(req)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("offline: ping: %w", err)
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	if resp.StatusCode >= 500 {
		return fmt.Errorf("offline: ping failed (status %d)", resp.StatusCode)
	}
	return nil
}

// CreateSession registers a local session with the backend and returns the
// backend's id for it.
func (c *Client) CreateSession(ctx context.Context, sess Session) (string, error) {
	body := wireSession{
		SessionType: sess.Type,
		StartedAt:   sess.StartedAt,
		Metadata:    sess.Metadata,
	}
	var resp idResponse
	if err := c.post(ctx, "/v1/sessions", body, &resp); err != nil {
		return "", err
	}
	if resp.ID == "" {
		return "", errors.New("offline: backend returned an empty session id")
	}
	return resp.ID, nil
}

// SendEvent transmits one (possibly collapsed) event bound to its backend
// session id and returns the backend event id.
func (c *Client) SendEvent(ctx context.Context, backendSessionID string, ev WireEvent) (string, error) {
	body := wireEvent{
		SessionID:       backendSessionID,
		Intent:          ev.Event.Kind,
		Payload:         ev.Event.Payload,
		Transcript:      ev.Event.Transcript,
		ConfidenceScore: ev.Event.Confidence,
		Timestamp:       ev.Event.CreatedAt,
	}
	if ev.Count > 1 {
		body.Count = ev.Count
	}
	var resp idResponse
	if err := c.post(ctx, "/v1/events", body, &resp); err != nil {
		return "", err
	}
	return resp.ID, nil
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("offline: encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("offline: building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("offline: %s: %w", path, err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))

	switch {
	case resp.StatusCode == http.StatusConflict:
		return &ConflictError{Detail: string(bytes.TrimSpace(respBody))}
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return &StatusError{Code: resp.StatusCode, Body: string(bytes.TrimSpace(respBody))}
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("offline: decoding %s response: %w", path, err)
		}
	}
	return nil
}

func (c *Client) authorize(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}
