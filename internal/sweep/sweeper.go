// Package sweep reclaims sessions whose 24-hour window has passed.
//
// Expired sessions are already unjoinable and reject new addresses; the
// sweeper's only job is to hard-delete the rows and their ledger entries so
// nothing outlives the lifecycle the session promised.
package sweep

import (
	"context"
	"log"
	"time"

	"notathome.app/internal/obs"
	"notathome.app/internal/session"
)

// DefaultInterval is the cadence of the background loop when the caller
// does not pick one.
const DefaultInterval = 10 * time.Minute

// Sweeper deletes expired sessions from a session store.
type Sweeper struct {
	store    session.Store
	interval time.Duration
	now      func() time.Time
	logf     func(format string, args ...any)
}

// Option configures a Sweeper.
type Option func(*Sweeper)

// WithInterval overrides how often the background loop fires.
func WithInterval(d time.Duration) Option {
	return func(s *Sweeper) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithClock overrides the time source used to decide what counts as expired.
func WithClock(now func() time.Time) Option {
	return func(s *Sweeper) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogf redirects the sweeper's log output.
func WithLogf(logf func(format string, args ...any)) Option {
	return func(s *Sweeper) {
		if logf != nil {
			s.logf = logf
		}
	}
}

// New builds a Sweeper over the given store.
func New(store session.Store, opts ...Option) *Sweeper {
	s := &Sweeper{
		store:    store,
		interval: DefaultInterval,
		now:      time.Now,
		logf:     log.Printf,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SweepOnce deletes every session past its expiry and reports how many went.
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	n, err := s.store.DeleteExpiredSessions(ctx, s.now().UTC())
	obs.AddSessionsSwept(n, err)
	if err != nil {
		return n, err
	}
	if n > 0 {
		s.logf("sweep: removed %d expired sessions", n)
	}
	return n, nil
}

// Start runs SweepOnce at the configured interval until the returned stop
// function is called. Stop blocks until an in-flight sweep finishes.
func (s *Sweeper) Start() func() {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := s.SweepOnce(ctx); err != nil && ctx.Err() == nil {
					s.logf("sweep: %v", err)
				}
			}
		}
	}()
	return func() {
		cancel()
		<-done
	}
}
