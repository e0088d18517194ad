package session

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// Join code length bounds. Four digits keeps codes speakable over a doorstep
// conversation; six is the ceiling before they stop being memorable.
const (
	MinCodeLength = 4
	MaxCodeLength = 6

	DefaultCodeLength = 4
)

// GenerateCode returns a join code of exactly length decimal digits, leading
// zeros included. Codes are random, not unique; uniqueness among active
// sessions is enforced by the store and resolved by Service.Create retrying.
func GenerateCode(length int) (string, error) {
	if length < MinCodeLength || length > MaxCodeLength {
		return "", fmt.Errorf("%w: code length %d outside [%d,%d]", ErrInvalidInput, length, MinCodeLength, MaxCodeLength)
	}
	bound := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(length)), nil)
	n, err := rand.Int(rand.Reader, bound)
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}
	return fmt.Sprintf("%0*d", length, n), nil
}
