// Package common defines shared constants and sentinel errors used across
// bankvault components. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrNotFound = errors.New("not found")

	// Service-level errors (generic/internal flow control).
	ErrInternal     = errors.New("internal error")
	ErrUnauthorized = errors.New("unauthorized")

	// Validation errors: bad input shape or range, rejected before any side effect.
	ErrValidation = errors.New("validation error")

	// Crypto errors. ErrDecryption covers malformed ciphertext, key mismatch,
	// and authentication-tag failure alike.
	ErrDecryption = errors.New("decryption failed")

	// Attempt to change the encrypted number/CVV of an existing card.
	ErrImmutableField = errors.New("immutable field")

	// Biometric precondition errors. All of these are normalized to a plain
	// authentication failure before leaving the authn layer.
	ErrInvalidImage = errors.New("invalid image")
	ErrNoGallery    = errors.New("reference gallery is empty")
	ErrExtraction   = errors.New("embedding extraction failed")

	// Auth errors (invalid or malformed token).
	ErrInvalidToken = errors.New("invalid token")
)
