// ABOUTME: At-rest encryption for conversation text columns
// ABOUTME: XChaCha20-Poly1305 AEAD with an HKDF-derived key, random nonce per row

package store

import (
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// hkdfInfo domain-separates the storage key from other uses of the host key.
const hkdfInfo = "aichat conversation storage v1"

// Encryptor seals and opens conversation text for at-rest storage. The host
// provides key material once its key store is ready; the store is unusable
// before that.
type Encryptor struct {
	aead interface {
		Seal(dst, nonce, plaintext, additionalData []byte) []byte
		Open(dst, nonce, ciphertext, additionalData []byte) ([]byte, error)
	}
}

// NewEncryptor derives a storage key from the host-provided key material.
func NewEncryptor(keyMaterial []byte) (*Encryptor, error) {
	if len(keyMaterial) == 0 {
		return nil, fmt.Errorf("empty key material")
	}

	kdf := hkdf.New(sha256.New, keyMaterial, nil, []byte(hkdfInfo))
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, fmt.Errorf("deriving storage key: %w", err)
	}

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}
	return &Encryptor{aead: aead}, nil
}

// Seal encrypts plaintext into a self-contained blob (nonce prefix + box).
func (e *Encryptor) Seal(plaintext string) ([]byte, error) {
	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generating nonce: %w", err)
	}
	return e.aead.Seal(nonce, nonce, []byte(plaintext), nil), nil
}

// Open decrypts a blob produced by Seal.
func (e *Encryptor) Open(blob []byte) (string, error) {
	if len(blob) < chacha20poly1305.NonceSizeX {
		return "", fmt.Errorf("ciphertext too short")
	}
	nonce, box := blob[:chacha20poly1305.NonceSizeX], blob[chacha20poly1305.NonceSizeX:]
	plain, err := e.aead.Open(nil, nonce, box, nil)
	if err != nil {
		return "", fmt.Errorf("opening ciphertext: %w", err)
	}
	return string(plain), nil
}
