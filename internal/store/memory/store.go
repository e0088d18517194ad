// Package memory is the in-process store used by tests and by the API when
// no Postgres DSN is configured. One struct backs both the session store and
// the address ledger so a session delete can cascade under a single lock.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"notathome.app/internal/ledger"
	"notathome.app/internal/session"
)

type Store struct {
	mu          sync.RWMutex
	sessions    map[string]*session.Session
	activeCodes map[string]string // join code -> session id, active sessions only
	entries     map[string][]ledger.AddressEntry
	now         func() time.Time
}

var (
	_ session.Store = (*Store)(nil)
	_ ledger.Store  = (*Store)(nil)
)

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source used by the insert-path expiry check.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// NewStore creates an empty store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		sessions:    make(map[string]*session.Session),
		activeCodes: make(map[string]string),
		entries:     make(map[string][]ledger.AddressEntry),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) CreateSession(ctx context.Context, sess *session.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.activeCodes[sess.Code]; taken {
		return session.ErrCodeTaken
	}
	cp := *sess
	s.sessions[cp.ID] = &cp
	s.activeCodes[cp.Code] = cp.ID
	return nil
}

func (s *Store) GetSession(ctx context.Context, id string) (session.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return session.Session{}, session.ErrNotFound
	}
	return *sess, nil
}

func (s *Store) FindActiveSessionByCode(ctx context.Context, code string, now time.Time) (session.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.activeCodes[code]
	if !ok {
		return session.Session{}, session.ErrNotFound
	}
	sess := s.sessions[id]
	if sess == nil || !sess.Joinable(now) {
		return session.Session{}, session.ErrNotFound
	}
	return *sess, nil
}

func (s *Store) ListActiveSessions(ctx context.Context, f session.Filter, now time.Time) ([]session.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []session.Session
	for _, sess := range s.sessions {
		if sess.CongregationID != f.CongregationID || !sess.Joinable(now) {
			continue
		}
		if f.CreatedBy != "" && sess.CreatedBy != f.CreatedBy {
			continue
		}
		out = append(out, *sess)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (s *Store) DeactivateSession(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return session.ErrNotFound
	}
	if sess.IsActive {
		sess.IsActive = false
		if s.activeCodes[sess.Code] == id {
			delete(s.activeCodes, sess.Code)
		}
	}
	return nil
}

func (s *Store) DeleteSession(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleteLocked(id)
	return nil
}

func (s *Store) DeleteExpiredSessions(ctx context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var expired []string
	for id, sess := range s.sessions {
		if !sess.ExpiresAt.After(now) {
			expired = append(expired, id)
		}
	}
	for _, id := range expired {
		s.deleteLocked(id)
	}
	return len(expired), nil
}

// deleteLocked removes the session, frees its code, and drops its ledger.
// Callers hold the write lock. Absent ids are a no-op.
func (s *Store) deleteLocked(id string) {
	sess, ok := s.sessions[id]
	if !ok {
		return
	}
	if s.activeCodes[sess.Code] == id {
		delete(s.activeCodes, sess.Code)
	}
	delete(s.sessions, id)
	delete(s.entries, id)
}

func (s *Store) InsertAddress(ctx context.Context, e *ledger.AddressEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[e.SessionID]
	if !ok || !sess.Joinable(s.now().UTC()) {
		return ledger.ErrNotFound
	}
	s.entries[e.SessionID] = append(s.entries[e.SessionID], copyEntry(*e))
	return nil
}

func (s *Store) ListAddresses(ctx context.Context, sessionID string) ([]ledger.AddressEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.sessions[sessionID]; !ok {
		return nil, ledger.ErrNotFound
	}
	src := s.entries[sessionID]
	out := make([]ledger.AddressEntry, 0, len(src))
	for _, e := range src {
		out = append(out, copyEntry(e))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].BlockNumber != out[j].BlockNumber {
			return out[i].BlockNumber < out[j].BlockNumber
		}
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) CountAddresses(ctx context.Context, sessionID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.sessions[sessionID]; !ok {
		return 0, ledger.ErrNotFound
	}
	return len(s.entries[sessionID]), nil
}

// copyEntry detaches coordinate pointers so callers cannot reach into the
// stored ledger.
func copyEntry(e ledger.AddressEntry) ledger.AddressEntry {
	if e.Latitude != nil {
		lat := *e.Latitude
		e.Latitude = &lat
	}
	if e.Longitude != nil {
		lon := *e.Longitude
		e.Longitude = &lon
	}
	return e
}
