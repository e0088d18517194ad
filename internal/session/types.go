package session

import (
	"errors"
	"time"
)

// Session is a time-boxed, code-joinable workspace for one territory map.
// Volunteers join with Code; everything they record lives exactly as long
// as the session does.
type Session struct {
	ID             string    `json:"id"`
	Code           string    `json:"code"`
	CongregationID string    `json:"congregation_id"`
	CreatedBy      string    `json:"created_by"`
	MapNumber      int       `json:"map_number"`
	IsActive       bool      `json:"is_active"`
	CreatedAt      time.Time `json:"created_at"`
	ExpiresAt      time.Time `json:"expires_at"`
}

// Joinable reports whether the session accepts joins and writes at now.
// Expiry wins over the active flag: a session past ExpiresAt is closed even
// if no sweeper has reaped it yet.
func (s Session) Joinable(now time.Time) bool {
	return s.IsActive && now.Before(s.ExpiresAt)
}

// Filter narrows active-session listings.
type Filter struct {
	CongregationID string
	CreatedBy      string // optional; "" matches any creator
}

// CreateSessionInput carries the caller-supplied fields for a new session.
type CreateSessionInput struct {
	CongregationID string
	CreatedBy      string
	MapNumber      int
}

var (
	ErrNotFound      = errors.New("session: not found")
	ErrInvalidInput  = errors.New("session: invalid input")
	ErrCodeTaken     = errors.New("session: join code taken")
	ErrCodeExhausted = errors.New("session: join code space exhausted")
)
