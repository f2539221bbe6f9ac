// Package security provides the cryptography and audit trail used by the
// event store: AES-256-GCM encryption of payloads at rest, masking of key
// material in output, and an append-only audit log of failures.
package security

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
	"sync"

	"golang.org/x/crypto/hkdf"
)

// ---------------------------------------------------------------------------
// Event encryption: AES-256-GCM
// ---------------------------------------------------------------------------

// Cipher is the encryption boundary used by event stores. Implementations
// must be safe for concurrent use and must not retain plaintext.
type Cipher interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

const (
	encryptedPrefix = "enc:v1:"
	minKeyLength    = 8
	keyInfo         = "eventstore/aes-256-gcm/v1"
)

var (
	// ErrNotEncrypted is returned by Decrypt when the input does not carry
	// the ciphertext prefix.
	ErrNotEncrypted = errors.New("value is not encrypted")

	// ErrShortKey is returned when the encryption key is too short.
	ErrShortKey = fmt.Errorf("encryption key must be at least %d characters", minKeyLength)
)

// Encryptor handles encryption/decryption of event payloads using
// AES-256-GCM (authenticated encryption). The AES key is derived from the
// caller's key string with HKDF-SHA256.
type Encryptor struct {
	mu     sync.RWMutex
	aead   cipher.AEAD
	prefix string
}

// NewEncryptor creates an Encryptor from a key string.
func NewEncryptor(key string) (*Encryptor, error) {
	if len(key) < minKeyLength {
		return nil, ErrShortKey
	}

	derived := make([]byte, 32)
	kdf := hkdf.New(sha256.New, []byte(key), nil, []byte(keyInfo))
	if _, err := io.ReadFull(kdf, derived); err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}

	block, err := aes.NewCipher(derived)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create GCM: %w", err)
	}

	return &Encryptor{
		aead:   aead,
		prefix: encryptedPrefix,
	}, nil
}

// Encrypt encrypts a plaintext value and returns a base64-encoded ciphertext
// prefixed with "enc:v1:".
func (e *Encryptor) Encrypt(plaintext string) (string, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	nonce := make([]byte, e.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	ciphertext := e.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return e.prefix + base64.StdEncoding.EncodeToString(ciphertext), nil
}

// Decrypt decrypts a value produced by Encrypt. Values without the prefix
// are rejected rather than passed through.
func (e *Encryptor) Decrypt(encrypted string) (string, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if !strings.HasPrefix(encrypted, e.prefix) {
		return "", ErrNotEncrypted
	}

	data, err := base64.StdEncoding.DecodeString(encrypted[len(e.prefix):])
	if err != nil {
		return "", fmt.Errorf("decode base64: %w", err)
	}

	nonceSize := e.aead.NonceSize()
	if len(data) < nonceSize {
		return "", fmt.Errorf("ciphertext too short")
	}

	plaintext, err := e.aead.Open(nil, data[:nonceSize], data[nonceSize:], nil)
	if err != nil {
		return "", fmt.Errorf("decrypt: %w", err)
	}

	return string(plaintext), nil
}

// Encrypt encrypts plaintext with key. Callers encrypting many values
// should build one Encryptor and reuse it.
func Encrypt(plaintext, key string) (string, error) {
	enc, err := NewEncryptor(key)
	if err != nil {
		return "", err
	}
	return enc.Encrypt(plaintext)
}

// Decrypt decrypts a value produced by Encrypt with the same key.
func Decrypt(ciphertext, key string) (string, error) {
	enc, err := NewEncryptor(key)
	if err != nil {
		return "", err
	}
	return enc.Decrypt(ciphertext)
}

// ---------------------------------------------------------------------------
// Value masking for logs and output
// ---------------------------------------------------------------------------

// MaskSecret masks a secret value for display in logs/output.
// Shows first N and last N characters, middle replaced with asterisks.
func MaskSecret(value string, showChars int) string {
	if len(value) <= showChars*2 {
		return strings.Repeat("*", len(value))
	}
	return value[:showChars] + strings.Repeat("*", len(value)-showChars*2) + value[len(value)-showChars:]
}

// MaskInString replaces occurrences of a secret within a string.
func MaskInString(text, secret string) string {
	if secret == "" || len(secret) < 4 {
		return text
	}
	return strings.ReplaceAll(text, secret, MaskSecret(secret, 2))
}

// SecretRegistry tracks known secret values for output masking.
type SecretRegistry struct {
	mu      sync.RWMutex
	secrets []string
}

// NewSecretRegistry creates an empty secret registry.
func NewSecretRegistry() *SecretRegistry {
	return &SecretRegistry{
		secrets: make([]string, 0),
	}
}

// Register adds a secret value that should be masked in outputs.
func (sr *SecretRegistry) Register(secret string) {
	if secret == "" || len(secret) < 4 {
		return
	}
	sr.mu.Lock()
	defer sr.mu.Unlock()
	sr.secrets = append(sr.secrets, secret)
}

// Sanitize replaces all known secrets in the text with masked versions.
func (sr *SecretRegistry) Sanitize(text string) string {
	if sr == nil {
		return text
	}
	sr.mu.RLock()
	defer sr.mu.RUnlock()
	for _, secret := range sr.secrets {
		text = MaskInString(text, secret)
	}
	return text
}

// Count returns the number of registered secrets.
func (sr *SecretRegistry) Count() int {
	sr.mu.RLock()
	defer sr.mu.RUnlock()
	return len(sr.secrets)
}
