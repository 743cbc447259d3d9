package cryptox

import (
	"encoding/base64"
	"fmt"
	"os"
	"strings"

	"github.com/dkravets/bankvault/internal/common"
	"golang.org/x/crypto/argon2"
)

// DeriveKey stretches a passphrase into a KeySize-byte key with argon2id.
// Deterministic for identical (passphrase, salt) pairs.
func DeriveKey(passphrase, salt []byte) []byte {
	return argon2.IDKey(passphrase, salt, 1, 64*1024, 4, KeySize)
}

// LoadKeyBase64 decodes a standard-base64 key literal and checks its length.
func LoadKeyBase64(encoded string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(strings.TrimSpace(encoded))
	if err != nil {
		return nil, fmt.Errorf("%w: key is not valid base64", common.ErrValidation)
	}
	if len(key) != KeySize {
		return nil, fmt.Errorf("%w: key must decode to %d bytes, got %d", common.ErrValidation, KeySize, len(key))
	}
	return key, nil
}

// LoadKeyFile reads a base64 key from a file, trimming trailing whitespace.
// The file path, not its contents, may appear in errors.
func LoadKeyFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading key file %s: %w", path, err)
	}
	key, err := LoadKeyBase64(string(data))
	if err != nil {
		return nil, fmt.Errorf("key file %s: %w", path, err)
	}
	return key, nil
}
