// Package export implements the end of a session's life: render the ledger
// into a shareable document, hand it off, and only then destroy the data.
package export

import (
	"context"
	"errors"
	"fmt"
	"time"

	"notathome.app/internal/ledger"
	"notathome.app/internal/session"
)

var (
	// ErrShareFailed means the document never made it out. Nothing was
	// deleted; the caller may retry the whole export.
	ErrShareFailed = errors.New("export: share failed")
	// ErrTeardownFailed means the document WAS delivered but the session
	// could not be destroyed. Only the teardown needs a retry.
	ErrTeardownFailed = errors.New("export: teardown failed")
)

// Result reports how far an export got.
type Result struct {
	Shared     bool     `json:"shared"`
	TornDown   bool     `json:"torn_down"`
	EntryCount int      `json:"entry_count"`
	Document   Document `json:"document"`
}

// Service orchestrates export-then-teardown over the domain services.
type Service struct {
	sessions *session.Service
	entries  *ledger.Service
	sender   Sender
	now      func() time.Time
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service)

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService wires the export flow.
func NewService(sessions *session.Service, entries *ledger.Service, sender Sender, opts ...ServiceOption) *Service {
	s := &Service{sessions: sessions, entries: entries, sender: sender, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ExportAndEnd renders the session's ledger, shares it, and hard-deletes
// the session with everything in it. The order is load-bearing: no deletion
// happens unless the share reported success. A cancel or failure from the
// sender leaves the session and its entries untouched for a retry; a
// teardown error after a successful share returns Shared=true so the caller
// retries only the destruction.
func (s *Service) ExportAndEnd(ctx context.Context, sessionID, congregationName string) (Result, error) {
	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return Result{}, err
	}
	entries, err := s.entries.List(ctx, sess.ID)
	if err != nil {
		return Result{}, err
	}
	count, err := s.entries.Count(ctx, sess.ID)
	if err != nil {
		return Result{}, err
	}

	doc := FormatDocument(sess, congregationName, entries, s.now().UTC())
	res := Result{EntryCount: count, Document: doc}

	if err := s.sender.Send(ctx, doc); err != nil {
		if errors.Is(err, ErrShareCanceled) {
			return res, err
		}
		return res, fmt.Errorf("%w: %v", ErrShareFailed, err)
	}
	res.Shared = true

	// soft-close first so no new writes land between share and delete
	if err := s.sessions.Deactivate(ctx, sess.ID); err != nil && !errors.Is(err, session.ErrNotFound) {
		return res, fmt.Errorf("%w: deactivate: %v", ErrTeardownFailed, err)
	}
	if err := s.sessions.Delete(ctx, sess.ID); err != nil {
		return res, fmt.Errorf("%w: %v", ErrTeardownFailed, err)
	}
	res.TornDown = true
	return res, nil
}
