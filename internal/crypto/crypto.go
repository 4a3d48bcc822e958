// Package crypto encrypts secrets stored at rest, such as Airtable access
// tokens. It uses AES-256-GCM with a key derived from a server secret by
// HKDF-SHA256.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/hkdf"
)

const (
	// keyLen is the AES-256 key length in bytes.
	keyLen = 32
	// nonceLen is the GCM nonce length in bytes.
	nonceLen = 12
	// hkdfInfo is the info string for HKDF key derivation.
	hkdfInfo = "formsync-token-encryption"
	// sealedPrefix marks values written by Sealer.Seal.
	sealedPrefix = "enc:v1:"
)

// Encrypt encrypts plaintext using AES-256-GCM with a 256-bit key.
// Returns nonce || ciphertext (nonce is prepended).
func Encrypt(key, plaintext []byte) ([]byte, error) {
	if len(key) != keyLen {
		return nil, errors.New("key must be 32 bytes")
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("aes cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("gcm: %w", err)
	}

	nonce := make([]byte, nonceLen)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("random nonce: %w", err)
	}

	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

// Decrypt decrypts ciphertext produced by Encrypt.
func Decrypt(key, ciphertext []byte) ([]byte, error) {
	if len(key) != keyLen {
		return nil, errors.New("key must be 32 bytes")
	}

	if len(ciphertext) < nonceLen {
		return nil, errors.New("ciphertext too short")
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("aes cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("gcm: %w", err)
	}

	plaintext, err := gcm.Open(nil, ciphertext[:nonceLen], ciphertext[nonceLen:], nil)
	if err != nil {
		return nil, fmt.Errorf("decrypt: %w", err)
	}
	return plaintext, nil
}

// DeriveKey derives a 256-bit key from a server secret.
func DeriveKey(secret string) ([]byte, error) {
	if secret == "" {
		return nil, errors.New("empty secret")
	}
	key := make([]byte, keyLen)
	r := hkdf.New(sha256.New, []byte(secret), nil, []byte(hkdfInfo))
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("hkdf: %w", err)
	}
	return key, nil
}

// Sealer encrypts short strings into a printable form for database columns.
// A nil Sealer stores values as given.
type Sealer struct {
	key []byte
}

// NewSealer returns a Sealer keyed from secret.
func NewSealer(secret string) (*Sealer, error) {
	key, err := DeriveKey(secret)
	if err != nil {
		return nil, err
	}
	return &Sealer{key: key}, nil
}

// Seal encrypts s. Empty strings stay empty.
func (s *Sealer) Seal(plaintext string) (string, error) {
	if s == nil || plaintext == "" {
		return plaintext, nil
	}
	ct, err := Encrypt(s.key, []byte(plaintext))
	if err != nil {
		return "", err
	}
	return sealedPrefix + base64.RawStdEncoding.EncodeToString(ct), nil
}

// Open reverses Seal. Values without the sealed prefix were stored before
// encryption was enabled and are returned unchanged.
func (s *Sealer) Open(stored string) (string, error) {
	if !IsSealed(stored) {
		return stored, nil
	}
	if s == nil {
		return "", errors.New("value is encrypted but no token key is configured")
	}
	ct, err := base64.RawStdEncoding.DecodeString(strings.TrimPrefix(stored, sealedPrefix))
	if err != nil {
		return "", fmt.Errorf("decode sealed value: %w", err)
	}
	pt, err := Decrypt(s.key, ct)
	if err != nil {
		return "", err
	}
	return string(pt), nil
}

// IsSealed reports whether stored was written by Seal.
func IsSealed(stored string) bool {
	return strings.HasPrefix(stored, sealedPrefix)
}
