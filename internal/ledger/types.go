package ledger

import (
	"errors"
	"strings"
	"time"
)

// AddressEntry is one not-at-home record in a session's ledger. Entries are
// append-only: nothing edits or removes a single entry, the whole ledger
// lives and dies with its session.
type AddressEntry struct {
	ID          string    `json:"id"`
	SessionID   string    `json:"session_id"`
	BlockNumber int       `json:"block_number"`
	Address     string    `json:"address,omitempty"`
	Latitude    *float64  `json:"latitude"`
	Longitude   *float64  `json:"longitude"`
	CreatedBy   string    `json:"created_by,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// HasAddress reports whether the entry carries a street address.
func (e AddressEntry) HasAddress() bool {
	return strings.TrimSpace(e.Address) != ""
}

// HasCoordinates reports whether the entry carries a map pin.
func (e AddressEntry) HasCoordinates() bool {
	return e.Latitude != nil && e.Longitude != nil
}

// RecordAddressInput carries the caller-supplied fields for a new entry.
// CreatedBy may be empty: volunteers joining by code alone stay anonymous.
type RecordAddressInput struct {
	SessionID   string
	BlockNumber int
	Address     string
	Latitude    *float64
	Longitude   *float64
	CreatedBy   string
}

var (
	// ErrNotFound covers a missing session as well as an inactive or expired
	// one: a dead session's ledger is not writable and not distinguishable
	// from an absent one.
	ErrNotFound     = errors.New("ledger: session not found")
	ErrInvalidInput = errors.New("ledger: invalid input")
)

const maxAddressLen = 512
