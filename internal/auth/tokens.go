package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Congregation-scoped roles. Overseers open, close, and export sessions;
// volunteers record addresses. An overseer binding implies volunteer
// capability within the same congregation.
const (
	RoleOverseer  = "overseer"
	RoleVolunteer = "volunteer"
)

const defaultIssuer = "notathome"

// ErrInvalidToken indicates the token failed validation.
var ErrInvalidToken = errors.New("auth: invalid token")

// Binding grants one role within one congregation.
type Binding struct {
	CongregationID string `json:"congregation_id"`
	Role           string `json:"role"`
}

// Claims represents JWT claims used across the service. Production tokens
// come from the external identity provider with the same shape.
type Claims struct {
	Bindings []Binding `json:"bindings,omitempty"`
	jwt.RegisteredClaims
}

// Principal returns the authenticated caller the claims describe.
func (c *Claims) Principal() Principal {
	return Principal{UserID: c.Subject, Bindings: c.Bindings}
}

// TokenManager signs and validates HS256 bearer tokens. The secret is
// injected at construction; nothing reads ambient process state.
type TokenManager struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// TokenOption configures a TokenManager.
type TokenOption func(*TokenManager)

// WithIssuer overrides the issuer claim stamped and required on tokens.
func WithIssuer(issuer string) TokenOption {
	return func(m *TokenManager) {
		if issuer = strings.TrimSpace(issuer); issuer != "" {
			m.issuer = issuer
		}
	}
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) TokenOption {
	return func(m *TokenManager) {
		if now != nil {
			m.now = now
		}
	}
}

// NewTokenManager builds a manager around the shared secret.
func NewTokenManager(secret string, ttl time.Duration, opts ...TokenOption) (*TokenManager, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, errors.New("auth: secret is required")
	}
	if ttl <= 0 {
		return nil, errors.New("auth: token ttl must be positive")
	}
	m := &TokenManager{
		secret: []byte(secret),
		issuer: defaultIssuer,
		ttl:    ttl,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// TTL reports how long issued tokens stay valid.
func (m *TokenManager) TTL() time.Duration {
	return m.ttl
}

// Generate signs a token for the given user and congregation bindings.
func (m *TokenManager) Generate(userID string, bindings []Binding) (string, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return "", fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	normalized, err := NormalizeBindings(bindings)
	if err != nil {
		return "", err
	}

	now := m.now().UTC()
	claims := Claims{
		Bindings: normalized,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
			ID:        uuid.NewString(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Parse verifies the token signature and required claims.
func (m *TokenManager) Parse(token string) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidToken
	}

	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrInvalidToken
		}
		return m.secret, nil
	}, jwt.WithTimeFunc(m.now))
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if err := m.validateClaims(claims); err != nil {
		return nil, ErrInvalidToken
	}
	normalized, err := NormalizeBindings(claims.Bindings)
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims.Bindings = normalized
	return claims, nil
}

func (m *TokenManager) validateClaims(claims *Claims) error {
	if claims.Issuer != m.issuer {
		return fmt.Errorf("unexpected issuer: %s", claims.Issuer)
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return errors.New("subject missing")
	}
	if claims.ExpiresAt == nil || claims.IssuedAt == nil {
		return errors.New("timestamps missing")
	}
	now := m.now().UTC()
	if now.After(claims.ExpiresAt.Time) {
		return errors.New("token expired")
	}
	// Allow a small clock skew of 5 seconds when validating issued-at.
	if claims.IssuedAt.Time.After(now.Add(5 * time.Second)) {
		return errors.New("token issued in the future")
	}
	if claims.ExpiresAt.Time.Before(claims.IssuedAt.Time) {
		return errors.New("token expiry precedes issued-at")
	}
	return nil
}

// NormalizeBindings trims, lower-cases, validates, and dedupes bindings.
// Unknown roles and blank congregation ids are rejected rather than ignored
// so a misconfigured identity provider fails loudly.
func NormalizeBindings(bindings []Binding) ([]Binding, error) {
	if len(bindings) == 0 {
		return nil, nil
	}
	seen := make(map[Binding]struct{}, len(bindings))
	var normalized []Binding
	for _, b := range bindings {
		b.CongregationID = strings.TrimSpace(b.CongregationID)
		b.Role = strings.TrimSpace(strings.ToLower(b.Role))
		if b.CongregationID == "" {
			return nil, fmt.Errorf("%w: binding congregation_id is required", ErrInvalidInput)
		}
		if b.Role != RoleOverseer && b.Role != RoleVolunteer {
			return nil, fmt.Errorf("%w: unknown role %q", ErrInvalidInput, b.Role)
		}
		if _, ok := seen[b]; ok {
			continue
		}
		seen[b] = struct{}{}
		normalized = append(normalized, b)
	}
	return normalized, nil
}
