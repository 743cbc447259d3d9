// Package cryptox implements authenticated encryption for short secret
// strings (card numbers, CVVs) with AES-256-GCM, plus key loading helpers.
//
// The engine is constructed once at process start with a key obtained from a
// secret source and passed by reference to every component that needs it.
// There is no package-level key state.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"

	"github.com/dkravets/bankvault/internal/common"
)

// SchemeAES256GCM identifies ciphertexts produced by the current engine
// configuration. Stored alongside the ciphertext so that a future scheme
// change can coexist with old rows.
const SchemeAES256GCM = "aes256-gcm"

// KeySize is the required key length in bytes (AES-256).
const KeySize = 32

// EncryptedSecret is an opaque ciphertext plus the scheme that produced it.
// A nil *EncryptedSecret means "no value"; plaintext is never persisted.
type EncryptedSecret struct {
	Scheme     string
	Nonce      []byte
	Ciphertext []byte
}

// Engine performs authenticated encryption/decryption with a single
// process-wide key. Safe for concurrent use; all operations are pure.
type Engine struct {
	aead cipher.AEAD
}

// NewEngine builds an Engine from a raw key. The key must be exactly
// KeySize bytes; anything else is rejected before any cipher is built.
// The key itself never appears in errors or logs.
func NewEngine(key []byte) (*Engine, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("%w: encryption key must be %d bytes, got %d", common.ErrValidation, KeySize, len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("cipher init: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("gcm init: %w", err)
	}

	return &Engine{aead: aead}, nil
}

// Encrypt seals plaintext under a fresh random nonce. An empty plaintext
// yields (nil, nil): absence is represented as absence, never as the
// encryption of an empty string.
func (e *Engine) Encrypt(plaintext string) (*EncryptedSecret, error) {
	if plaintext == "" {
		return nil, nil
	}

	nonce := make([]byte, e.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("nonce generation: %w", err)
	}

	ciphertext := e.aead.Seal(nil, nonce, []byte(plaintext), nil)

	return &EncryptedSecret{
		Scheme:     SchemeAES256GCM,
		Nonce:      nonce,
		Ciphertext: ciphertext,
	}, nil
}

// Decrypt opens a previously sealed secret. A nil secret decrypts to "".
// Any malformed, tampered, or foreign-key ciphertext fails with
// common.ErrDecryption; garbage is never returned.
func (e *Engine) Decrypt(secret *EncryptedSecret) (string, error) {
	if secret == nil {
		return "", nil
	}
	if secret.Scheme != SchemeAES256GCM {
		return "", fmt.Errorf("%w: unknown scheme %q", common.ErrDecryption, secret.Scheme)
	}
	if len(secret.Nonce) != e.aead.NonceSize() {
		return "", fmt.Errorf("%w: bad nonce length", common.ErrDecryption)
	}

	plaintext, err := e.aead.Open(nil, secret.Nonce, secret.Ciphertext, nil)
	if err != nil {
		// deliberately not wrapping the AEAD error: it carries no useful
		// detail and must not differ between tamper and key mismatch
		return "", common.ErrDecryption
	}

	return string(plaintext), nil
}
