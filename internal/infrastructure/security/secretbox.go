// Package security seals integration credentials before they are stored.
package security

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/nacl/secretbox"
)

const (
	sealedPrefix = "sb1:"
	plainPrefix  = "plain:"
	nonceSize    = 24
)

var (
	// ErrEmptyKey is returned when no credentials key is configured
	ErrEmptyKey = errors.New("security: credentials key is empty")
	// ErrMalformedSealed is returned for a blob this package did not produce
	ErrMalformedSealed = errors.New("security: malformed sealed value")
	// ErrDecrypt is returned when the blob fails authentication
	ErrDecrypt = errors.New("security: cannot open sealed value")
)

// SecretBox seals values with NaCl secretbox (XSalsa20-Poly1305) under a
// key derived from the configured credentials key.
type SecretBox struct {
	key [32]byte
}

// NewSecretBox derives a 32-byte key from key with SHA-256
func NewSecretBox(key string) (*SecretBox, error) {
	if strings.TrimSpace(key) == "" {
		return nil, ErrEmptyKey
	}
	return &SecretBox{key: sha256.Sum256([]byte(key))}, nil
}

// Seal encrypts plaintext under a fresh random nonce
func (b *SecretBox) Seal(plaintext []byte) (string, error) {
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return "", fmt.Errorf("security: read nonce: %w", err)
	}
	out := secretbox.Seal(nonce[:], plaintext, &nonce, &b.key)
	return sealedPrefix + base64.StdEncoding.EncodeToString(out), nil
}

// Open decrypts a value produced by Seal
func (b *SecretBox) Open(sealed string) ([]byte, error) {
	if sealed == "" {
		return nil, nil
	}
	if !strings.HasPrefix(sealed, sealedPrefix) {
		return nil, ErrMalformedSealed
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(sealed, sealedPrefix))
	if err != nil || len(raw) < nonceSize+secretbox.Overhead {
		return nil, ErrMalformedSealed
	}
	var nonce [nonceSize]byte
	copy(nonce[:], raw[:nonceSize])
	plaintext, ok := secretbox.Open(nil, raw[nonceSize:], &nonce, &b.key)
	if !ok {
		return nil, ErrDecrypt
	}
	return plaintext, nil
}

// PlaintextSealer only encodes values. It is used in development when no
// credentials key is configured.
type PlaintextSealer struct{}

// Seal base64-encodes plaintext
func (PlaintextSealer) Seal(plaintext []byte) (string, error) {
	return plainPrefix + base64.StdEncoding.EncodeToString(plaintext), nil
}

// Open decodes a value produced by Seal
func (PlaintextSealer) Open(sealed string) ([]byte, error) {
	if sealed == "" {
		return nil, nil
	}
	if !strings.HasPrefix(sealed, plainPrefix) {
		return nil, ErrMalformedSealed
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(sealed, plainPrefix))
	if err != nil {
		return nil, ErrMalformedSealed
	}
	return raw, nil
}

// Sealer is implemented by SecretBox and PlaintextSealer
type Sealer interface {
	Seal(plaintext []byte) (string, error)
	Open(sealed string) ([]byte, error)
}

// NewSealer returns a SecretBox for a non-empty key and a PlaintextSealer otherwise
func NewSealer(key string) Sealer {
	if box, err := NewSecretBox(key); err == nil {
		return box
	}
	return PlaintextSealer{}
}
