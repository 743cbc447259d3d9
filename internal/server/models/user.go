package models

import "time"

// User is an account record. Salt and Verifier back the password login path
// (argon2id); reference images for the biometric path live in the gallery
// keyed by ID.
type User struct {
	ID        string
	Email     string
	Salt      []byte
	Verifier  []byte
	CreatedAt time.Time
}
