package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"notathome.app/internal/ids"
)

// DefaultTTL is the fixed session lifetime. There is no extension operation;
// a longer evening needs a new session.
const DefaultTTL = 24 * time.Hour

// codeAttempts bounds the regenerate-and-retry loop on join code collisions.
const codeAttempts = 5

// Store persists sessions. Implementations enforce join code uniqueness
// among active sessions (CreateSession returns ErrCodeTaken on collision)
// and cascade DeleteSession to the session's address entries.
type Store interface {
	CreateSession(ctx context.Context, s *Session) error
	GetSession(ctx context.Context, id string) (Session, error)
	FindActiveSessionByCode(ctx context.Context, code string, now time.Time) (Session, error)
	ListActiveSessions(ctx context.Context, f Filter, now time.Time) ([]Session, error)
	DeactivateSession(ctx context.Context, id string) error
	// DeleteSession hard-deletes the session and everything recorded in it.
	// Deleting an absent session is not an error.
	DeleteSession(ctx context.Context, id string) error
	DeleteExpiredSessions(ctx context.Context, now time.Time) (int, error)
}

// Service owns the session lifecycle rules on top of a Store.
type Service struct {
	store      Store
	ttl        time.Duration
	codeLength int
	now        func() time.Time
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service) error

// WithTTL overrides the fixed session lifetime.
func WithTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) error {
		if ttl <= 0 {
			return fmt.Errorf("%w: ttl must be positive", ErrInvalidInput)
		}
		s.ttl = ttl
		return nil
	}
}

// WithCodeLength overrides the join code length.
func WithCodeLength(n int) ServiceOption {
	return func(s *Service) error {
		if n < MinCodeLength || n > MaxCodeLength {
			return fmt.Errorf("%w: code length %d outside [%d,%d]", ErrInvalidInput, n, MinCodeLength, MaxCodeLength)
		}
		s.codeLength = n
		return nil
	}
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) error {
		if now != nil {
			s.now = now
		}
		return nil
	}
}

// NewService wires a session service over the given store.
func NewService(store Store, opts ...ServiceOption) (*Service, error) {
	s := &Service{
		store:      store,
		ttl:        DefaultTTL,
		codeLength: DefaultCodeLength,
		now:        time.Now,
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Create validates the input, stamps identity and expiry, and persists the
// session. Join code collisions with other active sessions are retried with
// a fresh code; exhausting the retries returns ErrCodeExhausted.
func (s *Service) Create(ctx context.Context, in CreateSessionInput) (Session, error) {
	if strings.TrimSpace(in.CongregationID) == "" {
		return Session{}, fmt.Errorf("%w: congregation_id is required", ErrInvalidInput)
	}
	if strings.TrimSpace(in.CreatedBy) == "" {
		return Session{}, fmt.Errorf("%w: created_by is required", ErrInvalidInput)
	}
	if in.MapNumber < 1 {
		return Session{}, fmt.Errorf("%w: map_number must be >= 1", ErrInvalidInput)
	}

	for attempt := 0; attempt < codeAttempts; attempt++ {
		code, err := GenerateCode(s.codeLength)
		if err != nil {
			return Session{}, err
		}
		now := s.now().UTC()
		sess := Session{
			ID:             ids.New(),
			Code:           code,
			CongregationID: in.CongregationID,
			CreatedBy:      in.CreatedBy,
			MapNumber:      in.MapNumber,
			IsActive:       true,
			CreatedAt:      now,
			ExpiresAt:      now.Add(s.ttl),
		}
		err = s.store.CreateSession(ctx, &sess)
		if err == nil {
			return sess, nil
		}
		if errors.Is(err, ErrCodeTaken) {
			continue
		}
		return Session{}, err
	}
	return Session{}, ErrCodeExhausted
}

// Get fetches a session by id regardless of lifecycle state.
func (s *Service) Get(ctx context.Context, id string) (Session, error) {
	if strings.TrimSpace(id) == "" {
		return Session{}, fmt.Errorf("%w: session id is required", ErrInvalidInput)
	}
	return s.store.GetSession(ctx, id)
}

// FindByCode resolves a join code to its one joinable session. Codes of
// inactive or expired sessions resolve to ErrNotFound; the caller cannot
// tell an unknown code from a dead one.
func (s *Service) FindByCode(ctx context.Context, code string) (Session, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return Session{}, fmt.Errorf("%w: code is required", ErrInvalidInput)
	}
	return s.store.FindActiveSessionByCode(ctx, code, s.now().UTC())
}

// ListActive returns the joinable sessions for a congregation, newest first,
// optionally narrowed to one creator.
func (s *Service) ListActive(ctx context.Context, f Filter) ([]Session, error) {
	if strings.TrimSpace(f.CongregationID) == "" {
		return nil, fmt.Errorf("%w: congregation_id is required", ErrInvalidInput)
	}
	return s.store.ListActiveSessions(ctx, f, s.now().UTC())
}

// Deactivate soft-closes the session: it stops accepting joins and writes
// but keeps its data until a hard delete.
func (s *Service) Deactivate(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: session id is required", ErrInvalidInput)
	}
	return s.store.DeactivateSession(ctx, id)
}

// Delete hard-deletes the session and, by cascade, every address entry in
// it. Deleting an already-deleted session succeeds.
func (s *Service) Delete(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: session id is required", ErrInvalidInput)
	}
	return s.store.DeleteSession(ctx, id)
}
