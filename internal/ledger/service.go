package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"notathome.app/internal/ids"
)

// Store persists address entries. Implementations reject inserts into
// sessions that are absent, deactivated, or past expiry (ErrNotFound) and
// return listings ordered by block number, then creation time, then id.
type Store interface {
	InsertAddress(ctx context.Context, e *AddressEntry) error
	ListAddresses(ctx context.Context, sessionID string) ([]AddressEntry, error)
	CountAddresses(ctx context.Context, sessionID string) (int, error)
}

// Service validates and stamps entries before they reach the store.
type Service struct {
	store Store
	now   func() time.Time
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

// NewService wires a ledger service over the given store.
func NewService(store Store, opts ...ServiceOption) *Service {
	s := &Service{store: store, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Record appends one entry to a session's ledger. An entry must locate the
// door somehow: a street address, a coordinate pair, or both. Coordinates
// come as a pair or not at all.
func (s *Service) Record(ctx context.Context, in RecordAddressInput) (AddressEntry, error) {
	if strings.TrimSpace(in.SessionID) == "" {
		return AddressEntry{}, fmt.Errorf("%w: session_id is required", ErrInvalidInput)
	}
	if in.BlockNumber < 1 {
		return AddressEntry{}, fmt.Errorf("%w: block_number must be >= 1", ErrInvalidInput)
	}

	address := strings.TrimSpace(in.Address)
	if len(address) > maxAddressLen {
		return AddressEntry{}, fmt.Errorf("%w: address exceeds %d characters", ErrInvalidInput, maxAddressLen)
	}
	if (in.Latitude == nil) != (in.Longitude == nil) {
		return AddressEntry{}, fmt.Errorf("%w: latitude and longitude must be provided together", ErrInvalidInput)
	}
	hasCoords := in.Latitude != nil && in.Longitude != nil
	if address == "" && !hasCoords {
		return AddressEntry{}, fmt.Errorf("%w: address or coordinates are required", ErrInvalidInput)
	}
	if hasCoords {
		if *in.Latitude < -90 || *in.Latitude > 90 {
			return AddressEntry{}, fmt.Errorf("%w: latitude %v outside [-90,90]", ErrInvalidInput, *in.Latitude)
		}
		if *in.Longitude < -180 || *in.Longitude > 180 {
			return AddressEntry{}, fmt.Errorf("%w: longitude %v outside [-180,180]", ErrInvalidInput, *in.Longitude)
		}
	}

	now := s.now().UTC()
	entry := AddressEntry{
		ID:          ids.New(),
		SessionID:   in.SessionID,
		BlockNumber: in.BlockNumber,
		Address:     address,
		Latitude:    in.Latitude,
		Longitude:   in.Longitude,
		CreatedBy:   strings.TrimSpace(in.CreatedBy),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.InsertAddress(ctx, &entry); err != nil {
		return AddressEntry{}, err
	}
	return entry, nil
}

// List returns the session's ledger in reading order for door-to-door work:
// by block, oldest first within a block.
func (s *Service) List(ctx context.Context, sessionID string) ([]AddressEntry, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, fmt.Errorf("%w: session_id is required", ErrInvalidInput)
	}
	return s.store.ListAddresses(ctx, sessionID)
}

// Count returns the number of entries in the session's ledger.
func (s *Service) Count(ctx context.Context, sessionID string) (int, error) {
	if strings.TrimSpace(sessionID) == "" {
		return 0, fmt.Errorf("%w: session_id is required", ErrInvalidInput)
	}
	return s.store.CountAddresses(ctx, sessionID)
}
