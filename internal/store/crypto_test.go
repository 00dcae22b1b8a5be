// ABOUTME: Tests for the at-rest Encryptor
// ABOUTME: Verifies seal/open roundtrip, tamper detection, and key separation

package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptor_Roundtrip(t *testing.T) {
	enc, err := NewEncryptor([]byte("some key material"))
	require.NoError(t, err)

	blob, err := enc.Seal("hello, world")
	require.NoError(t, err)

	plain, err := enc.Open(blob)
	require.NoError(t, err)
	assert.Equal(t, "hello, world", plain)
}

func TestEncryptor_EmptyPlaintext(t *testing.T) {
	enc, err := NewEncryptor([]byte("k"))
	require.NoError(t, err)

	blob, err := enc.Seal("")
	require.NoError(t, err)
	plain, err := enc.Open(blob)
	require.NoError(t, err)
	assert.Equal(t, "", plain)
}

func TestEncryptor_TamperedCiphertext(t *testing.T) {
	enc, err := NewEncryptor([]byte("some key material"))
	require.NoError(t, err)

	blob, err := enc.Seal("payload")
	require.NoError(t, err)
	blob[len(blob)-1] ^= 0xff

	_, err = enc.Open(blob)
	assert.Error(t, err)
}

func TestEncryptor_WrongKey(t *testing.T) {
	enc1, err := NewEncryptor([]byte("key one"))
	require.NoError(t, err)
	enc2, err := NewEncryptor([]byte("key two"))
	require.NoError(t, err)

	blob, err := enc1.Seal("secret")
	require.NoError(t, err)
	_, err = enc2.Open(blob)
	assert.Error(t, err)
}

func TestEncryptor_RequiresKeyMaterial(t *testing.T) {
	_, err := NewEncryptor(nil)
	assert.Error(t, err)
}

func TestEncryptor_ShortBlob(t *testing.T) {
	enc, err := NewEncryptor([]byte("k"))
	require.NoError(t, err)
	_, err = enc.Open([]byte{1, 2, 3})
	assert.Error(t, err)
}
