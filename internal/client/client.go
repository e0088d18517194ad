// Package client is a typed HTTP client for the Not At Home API, used by
// the CLI tools and smoke checks.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"notathome.app/internal/auth"
	"notathome.app/internal/export"
	"notathome.app/internal/ledger"
	"notathome.app/internal/session"
)

// Client talks to one API instance.
type Client struct {
	baseURL string
	http    *http.Client
	token   string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.http = h
		}
	}
}

// WithToken attaches a bearer token to every request.
func WithToken(token string) Option {
	return func(c *Client) {
		c.token = strings.TrimSpace(token)
	}
}

// New validates the base URL and builds a client with a bounded timeout.
func New(baseURL string, opts ...Option) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("client: base url is required")
	}
	c := &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// SetToken replaces the bearer token used on subsequent calls.
func (c *Client) SetToken(token string) {
	c.token = strings.TrimSpace(token)
}

// APIError carries the HTTP status and the server-provided message.
type APIError struct {
	Status    int
	Message   string
	RequestID string
}

func (e *APIError) Error() string {
	if e.RequestID != "" {
		return fmt.Sprintf("api: %d %s (request %s)", e.Status, e.Message, e.RequestID)
	}
	return fmt.Sprintf("api: %d %s", e.Status, e.Message)
}

// AddressInput carries the caller-supplied fields for one ledger entry.
type AddressInput struct {
	BlockNumber int      `json:"block_number"`
	Address     string   `json:"address,omitempty"`
	Latitude    *float64 `json:"latitude,omitempty"`
	Longitude   *float64 `json:"longitude,omitempty"`
}

// MintToken obtains a development bearer token and installs it on the
// client for subsequent calls.
func (c *Client) MintToken(ctx context.Context, user string, bindings []auth.Binding) (string, error) {
	var resp struct {
		Token     string    `json:"token"`
		ExpiresAt time.Time `json:"expires_at"`
	}
	err := c.do(ctx, http.MethodPost, "/v1/auth/token", map[string]any{
		"user":     user,
		"bindings": bindings,
	}, &resp)
	if err != nil {
		return "", err
	}
	c.token = resp.Token
	return resp.Token, nil
}

// CreateSession opens a session and returns it, join code included.
func (c *Client) CreateSession(ctx context.Context, congregationID string, mapNumber int) (session.Session, error) {
	var sess session.Session
	err := c.do(ctx, http.MethodPost, "/v1/sessions", map[string]any{
		"congregation_id": congregationID,
		"map_number":      mapNumber,
	}, &sess)
	return sess, err
}

// GetSession fetches a session by id.
func (c *Client) GetSession(ctx context.Context, id string) (session.Session, error) {
	var sess session.Session
	err := c.do(ctx, http.MethodGet, "/v1/sessions/"+url.PathEscape(id), nil, &sess)
	return sess, err
}

// FindSessionByCode resolves a spoken join code to its session.
func (c *Client) FindSessionByCode(ctx context.Context, code string) (session.Session, error) {
	var sess session.Session
	err := c.do(ctx, http.MethodGet, "/v1/sessions/by-code/"+url.PathEscape(code), nil, &sess)
	return sess, err
}

// ListActiveSessions returns the joinable sessions for a congregation,
// optionally narrowed to ones the caller opened.
func (c *Client) ListActiveSessions(ctx context.Context, congregationID string, mine bool) ([]session.Session, error) {
	params := url.Values{"congregation_id": {congregationID}}
	if mine {
		params.Set("mine", "true")
	}
	var resp struct {
		Items []session.Session `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, "/v1/sessions?"+params.Encode(), nil, &resp)
	return resp.Items, err
}

// CloseSession stops joins and writes without destroying data.
func (c *Client) CloseSession(ctx context.Context, id string) (session.Session, error) {
	var sess session.Session
	err := c.do(ctx, http.MethodPost, "/v1/sessions/"+url.PathEscape(id)+"/close", nil, &sess)
	return sess, err
}

// ExportSession shares the ledger document and tears the session down.
func (c *Client) ExportSession(ctx context.Context, id, congregationName string) (export.Result, error) {
	var res export.Result
	var body any
	if strings.TrimSpace(congregationName) != "" {
		body = map[string]any{"congregation_name": congregationName}
	}
	err := c.do(ctx, http.MethodPost, "/v1/sessions/"+url.PathEscape(id)+"/export", body, &res)
	return res, err
}

// RecordAddress appends one not-at-home entry to the session ledger.
func (c *Client) RecordAddress(ctx context.Context, sessionID string, in AddressInput) (ledger.AddressEntry, error) {
	var entry ledger.AddressEntry
	err := c.do(ctx, http.MethodPost, "/v1/sessions/"+url.PathEscape(sessionID)+"/addresses", in, &entry)
	return entry, err
}

// ListAddresses reads the session ledger back in door-to-door order.
func (c *Client) ListAddresses(ctx context.Context, sessionID string) ([]ledger.AddressEntry, error) {
	var resp struct {
		Items []ledger.AddressEntry `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, "/v1/sessions/"+url.PathEscape(sessionID)+"/addresses", nil, &resp)
	return resp.Items, err
}

// Healthz reports whether the instance answers its liveness probe.
func (c *Client) Healthz(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/healthz", nil, nil)
}

// --- helpers ---

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return apiErrorFrom(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func apiErrorFrom(resp *http.Response) error {
	var payload struct {
		Error     string `json:"error"`
		RequestID string `json:"request_id"`
	}
	_ = json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&payload)
	msg := payload.Error
	if msg == "" {
		msg = resp.Status
	}
	return &APIError{
		Status:    resp.StatusCode,
		Message:   msg,
		RequestID: payload.RequestID,
	}
}

// WithTimeout returns a context with a default timeout, useful for CLI
// tools.
func WithTimeout(parent context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		d = 10 * time.Second
	}
	return context.WithTimeout(parent, d)
}
