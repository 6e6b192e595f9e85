// Package vault encrypts sensitive entity fields at rest.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// sealedPrefix marks a string produced by Seal.
const sealedPrefix = "enc:v1:"

var ErrMalformed = errors.New("malformed sealed value")

// Vault seals strings with AES-256-GCM under a passphrase-derived key.
type Vault struct {
	aead cipher.AEAD
}

// New derives the key from passphrase with Argon2id. The salt is the
// SHA-256 of the passphrase so the key is stable across restarts.
func New(passphrase string) (*Vault, error) {
	if passphrase == "" {
		return nil, errors.New("empty passphrase")
	}
	salt := sha256.Sum256([]byte(passphrase))
	key := argon2.IDKey([]byte(passphrase), salt[:16], 1, 64*1024, 4, 32)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create gcm: %w", err)
	}
	return &Vault{aead: aead}, nil
}

// Seal encrypts plaintext with a random nonce and returns a printable token.
func (v *Vault) Seal(plaintext string) (string, error) {
	nonce := make([]byte, v.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	out := v.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return sealedPrefix + base64.RawStdEncoding.EncodeToString(out), nil
}

// Open reverses Seal. Values without the sealed prefix are returned as-is,
// so rows written before encryption was enabled stay readable.
func (v *Vault) Open(value string) (string, error) {
	if !IsSealed(value) {
		return value, nil
	}
	raw, err := base64.RawStdEncoding.DecodeString(strings.TrimPrefix(value, sealedPrefix))
	if err != nil {
		return "", fmt.Errorf("decode: %w", err)
	}
	ns := v.aead.NonceSize()
	if len(raw) < ns {
		return "", ErrMalformed
	}
	plain, err := v.aead.Open(nil, raw[:ns], raw[ns:], nil)
	if err != nil {
		return "", fmt.Errorf("decrypt: %w", err)
	}
	return string(plain), nil
}

func IsSealed(value string) bool {
	return strings.HasPrefix(value, sealedPrefix)
}
