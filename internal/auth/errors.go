package auth

import "errors"

var (
	ErrInvalidInput = errors.New("auth: invalid input")
	// ErrUnauthorized means the caller presented no usable identity.
	ErrUnauthorized = errors.New("auth: unauthorized")
	// ErrForbidden means the identity is fine but lacks the binding the
	// operation needs.
	ErrForbidden = errors.New("auth: forbidden")
)
