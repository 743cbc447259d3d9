package cryptox

import (
	"bytes"
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveKey_Deterministic(t *testing.T) {
	k1 := DeriveKey([]byte("passphrase"), []byte("salt"))
	k2 := DeriveKey([]byte("passphrase"), []byte("salt"))
	assert.Equal(t, k1, k2)
	assert.Len(t, k1, KeySize)

	k3 := DeriveKey([]byte("passphrase"), []byte("other-salt"))
	assert.NotEqual(t, k1, k3)
}

func TestLoadKeyBase64(t *testing.T) {
	raw := bytes.Repeat([]byte{1}, KeySize)
	encoded := base64.StdEncoding.EncodeToString(raw)

	key, err := LoadKeyBase64(encoded + "\n")
	require.NoError(t, err)
	assert.Equal(t, raw, key)

	_, err = LoadKeyBase64("!!not base64!!")
	assert.Error(t, err)

	short := base64.StdEncoding.EncodeToString([]byte("short"))
	_, err = LoadKeyBase64(short)
	assert.Error(t, err)
}

func TestLoadKeyFile(t *testing.T) {
	raw := bytes.Repeat([]byte{2}, KeySize)
	path := filepath.Join(t.TempDir(), "master.key")
	require.NoError(t, os.WriteFile(path, []byte(base64.StdEncoding.EncodeToString(raw)+"\n"), 0o600))

	key, err := LoadKeyFile(path)
	require.NoError(t, err)
	assert.Equal(t, raw, key)

	_, err = LoadKeyFile(filepath.Join(t.TempDir(), "missing.key"))
	assert.Error(t, err)
}
