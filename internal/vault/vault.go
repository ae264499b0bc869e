// Package vault encrypts OAuth tokens for storage at rest.
// Tokens are sealed with AES-256-GCM; the key is derived from a
// configured secret via HKDF-SHA256 so operators can supply any
// sufficiently long secret string.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

const (
	keySize         = 32
	minSecretLength = 16
)

// hkdfInfo binds derived keys to this purpose so the same secret reused
// elsewhere yields a different key.
var hkdfInfo = []byte("drivebooks token vault v1")

// ErrSecretTooShort is returned by New when the configured secret is
// shorter than the minimum length.
var ErrSecretTooShort = fmt.Errorf("vault: secret must be at least %d bytes", minSecretLength)

// ErrMalformedCiphertext is returned by Decrypt for input that is not a
// valid sealed token (wrong encoding, truncated, or tampered).
var ErrMalformedCiphertext = errors.New("vault: malformed ciphertext")

// Vault seals and opens token strings. Safe for concurrent use.
type Vault struct {
	aead cipher.AEAD
}

// New derives an AES-256 key from secret and returns a ready Vault.
func New(secret string) (*Vault, error) {
	if len(secret) < minSecretLength {
		return nil, ErrSecretTooShort
	}

	key := make([]byte, keySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), nil, hkdfInfo), key); err != nil {
		return nil, fmt.Errorf("vault: deriving key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("vault: creating cipher: %w", err)
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("vault: creating AEAD: %w", err)
	}

	return &Vault{aead: aead}, nil
}

// Encrypt seals a token for storage. The result is base64(nonce || ciphertext).
// An empty plaintext maps to an empty string so optional tokens (e.g. a
// refresh token the provider never granted) round-trip as absent.
func (v *Vault) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}

	nonce := make([]byte, v.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("vault: generating nonce: %w", err)
	}

	sealed := v.aead.Seal(nonce, nonce, []byte(plaintext), nil)

	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a stored token. An empty input maps to an empty string
// (absent-in/absent-out, mirroring Encrypt).
func (v *Vault) Decrypt(ciphertext string) (string, error) {
	if ciphertext == "" {
		return "", nil
	}

	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", ErrMalformedCiphertext
	}

	nonceSize := v.aead.NonceSize()
	if len(raw) < nonceSize {
		return "", ErrMalformedCiphertext
	}

	plaintext, err := v.aead.Open(nil, raw[:nonceSize], raw[nonceSize:], nil)
	if err != nil {
		return "", ErrMalformedCiphertext
	}

	return string(plaintext), nil
}
