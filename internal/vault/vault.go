package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/hostmaster-io/hostmaster/internal/pkg/errors"
)

// Vault seals and opens long-lived secrets (cloud credentials) with
// AES-256-GCM before they touch the queue or the database. The sealed
// form is nonce:tag:ciphertext, each segment base64, so it fits a
// single text column and passes through task payloads opaquely.
type Vault struct {
	key []byte
}

const nonceSize = 12

// New builds a vault from a 64-hex-character master key. It fails when
// the key is missing or not exactly 32 bytes once decoded.
func New(masterKey string) (*Vault, error) {
	if masterKey == "" {
		return nil, fmt.Errorf("encryption key is required (64 hex characters)")
	}

	key, err := hex.DecodeString(masterKey)
	if err != nil {
		return nil, fmt.Errorf("encryption key is not valid hex: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("encryption key must be 32 bytes, got %d", len(key))
	}

	return &Vault{key: key}, nil
}

// Seal encrypts plaintext. Every call draws a fresh nonce, so sealing
// the same value twice yields different outputs.
func (v *Vault) Seal(plaintext string) (string, error) {
	block, err := aes.NewCipher(v.key)
	if err != nil {
		return "", errors.CredentialError("failed to initialize cipher", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", errors.CredentialError("failed to initialize GCM", err)
	}

	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", errors.CredentialError("failed to generate nonce", err)
	}

	sealed := gcm.Seal(nil, nonce, []byte(plaintext), nil)

	// gcm.Seal appends the 16-byte tag to the ciphertext; split it out
	// so the stored format stays nonce:tag:ciphertext.
	tagStart := len(sealed) - gcm.Overhead()
	ciphertext, tag := sealed[:tagStart], sealed[tagStart:]

	enc := base64.StdEncoding
	return fmt.Sprintf("%s:%s:%s",
		enc.EncodeToString(nonce),
		enc.EncodeToString(tag),
		enc.EncodeToString(ciphertext),
	), nil
}

// Open decrypts a sealed value, verifying the integrity tag. Any
// tampering fails deterministically rather than returning garbage.
func (v *Vault) Open(sealed string) (string, error) {
	parts := strings.Split(sealed, ":")
	if len(parts) != 3 {
		return "", errors.CredentialError("invalid sealed data format", nil)
	}

	enc := base64.StdEncoding
	nonce, err := enc.DecodeString(parts[0])
	if err != nil {
		return "", errors.CredentialError("invalid nonce encoding", err)
	}
	tag, err := enc.DecodeString(parts[1])
	if err != nil {
		return "", errors.CredentialError("invalid tag encoding", err)
	}
	ciphertext, err := enc.DecodeString(parts[2])
	if err != nil {
		return "", errors.CredentialError("invalid ciphertext encoding", err)
	}

	// gcm.Open panics on a wrong-length nonce instead of returning an
	// error, so the length has to be rejected here.
	if len(nonce) != nonceSize {
		return "", errors.CredentialError("invalid nonce length", nil)
	}

	block, err := aes.NewCipher(v.key)
	if err != nil {
		return "", errors.CredentialError("failed to initialize cipher", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", errors.CredentialError("failed to initialize GCM", err)
	}

	plaintext, err := gcm.Open(nil, nonce, append(ciphertext, tag...), nil)
	if err != nil {
		return "", errors.CredentialError("data may be corrupted or tampered", err)
	}

	return string(plaintext), nil
}

// IsSealed is a best-effort format check, not a cryptographic
// guarantee: exactly three non-empty colon-separated segments.
func IsSealed(data string) bool {
	parts := strings.Split(data, ":")
	if len(parts) != 3 {
		return false
	}
	for _, p := range parts {
		if p == "" {
			return false
		}
	}
	return true
}
