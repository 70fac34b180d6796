package credentials

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

const sealedPrefix = "sealed:v1:"

// Key derivation parameters. Derivation runs once per Sealer.
const (
	kdfMemory      uint32 = 64 * 1024
	kdfIterations  uint32 = 1
	kdfParallelism uint8  = 4
)

var kdfSalt = []byte("go-accounting-sync/credentials/v1")

var ErrInvalidSealedValue = errors.New("invalid sealed value")

// Sealer encrypts token values before they are written to disk. A nil
// *Sealer passes values through unchanged.
type Sealer struct {
	aead cipher.AEAD
}

// NewSealer derives an XChaCha20-Poly1305 key from passphrase with argon2id.
func NewSealer(passphrase string) (*Sealer, error) {
	if passphrase == "" {
		return nil, errors.New("empty passphrase")
	}
	key := argon2.IDKey([]byte(passphrase), kdfSalt, kdfIterations, kdfMemory, kdfParallelism, chacha20poly1305.KeySize)
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	return &Sealer{aead: aead}, nil
}

func (s *Sealer) Seal(plaintext string) (string, error) {
	if s == nil || plaintext == "" {
		return plaintext, nil
	}
	nonce := make([]byte, s.aead.NonceSize(), s.aead.NonceSize()+len(plaintext)+s.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	sealed := s.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return sealedPrefix + base64.RawStdEncoding.EncodeToString(sealed), nil
}

// Open reverses Seal. Values written before sealing was enabled are returned as-is.
func (s *Sealer) Open(value string) (string, error) {
	if !strings.HasPrefix(value, sealedPrefix) {
		return value, nil
	}
	if s == nil {
		return "", fmt.Errorf("%w: no credential key configured", ErrInvalidSealedValue)
	}
	raw, err := base64.RawStdEncoding.DecodeString(strings.TrimPrefix(value, sealedPrefix))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidSealedValue, err)
	}
	if len(raw) < s.aead.NonceSize() {
		return "", ErrInvalidSealedValue
	}
	nonce, ciphertext := raw[:s.aead.NonceSize()], raw[s.aead.NonceSize():]
	plaintext, err := s.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidSealedValue, err)
	}
	return string(plaintext), nil
}
