// Package models defines the persistent domain records of the security core.
package models

import (
	"time"

	"github.com/dkravets/bankvault/internal/cryptox"
)

// Card is a payment instrument owned by a user. Number and CVV exist only as
// ciphertext; last_four is always derived by decryption, never stored. The
// encrypted fields are set once at creation; changing the instrument means
// creating a new Card and retiring the old one.
type Card struct {
	ID              string
	UserID          string
	HolderName      string
	EncryptedNumber *cryptox.EncryptedSecret
	EncryptedCVV    *cryptox.EncryptedSecret
	ExpiryMonth     int
	ExpiryYear      int
	IsActive        bool
	IsBlocked       bool
	DailyLimit      float64
	CreatedAt       time.Time
	UpdatedAt       time.Time
}
