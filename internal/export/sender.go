package export

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Sender is the share step of an export. A send that returns nil commits
// the caller to tearing the session down; any error leaves it untouched.
type Sender interface {
	Send(ctx context.Context, doc Document) error
}

// SenderFunc adapts a function to the Sender interface.
type SenderFunc func(ctx context.Context, doc Document) error

func (f SenderFunc) Send(ctx context.Context, doc Document) error { return f(ctx, doc) }

// ErrShareCanceled is returned by senders when the receiving side declined
// the document rather than failing to take it.
var ErrShareCanceled = errors.New("export: share canceled")

const webhookTimeout = 10 * time.Second

// WebhookSender POSTs documents as JSON to a configured endpoint, typically
// a chat or mail relay owned by the congregation.
type WebhookSender struct {
	url    string
	client *http.Client
}

// NewWebhookSender validates the target URL and builds a sender with a
// bounded request timeout.
func NewWebhookSender(url string) (*WebhookSender, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil, errors.New("export: webhook url is required")
	}
	return &WebhookSender{
		url:    url,
		client: &http.Client{Timeout: webhookTimeout},
	}, nil
}

func (s *WebhookSender) Send(ctx context.Context, doc Document) error {
	payload, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("post document: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook returned %s", resp.Status)
	}
	return nil
}
