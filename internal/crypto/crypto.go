package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrDecryption signals malformed or unauthenticated ciphertext. Stored tokens
// should never fail to decrypt in normal operation, so callers treat this as
// data corruption and surface it loudly.
var ErrDecryption = errors.New("decryption failed")

type Service interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

// AesGcmService encrypts tokens at rest with AES-256-GCM. Output is
// "iv_hex:ciphertext_hex" so decryption is self-contained; a fresh random
// nonce is drawn for every call.
type AesGcmService struct {
	gcm cipher.AEAD
}

// NewAesGcmService creates a service from a raw 32-byte secret.
func NewAesGcmService(secret string) (*AesGcmService, error) {
	if len(secret) != 32 {
		return nil, fmt.Errorf("encryption secret must be exactly 32 bytes, got %d", len(secret))
	}

	block, err := aes.NewCipher([]byte(secret))
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &AesGcmService{gcm: gcm}, nil
}

func (s *AesGcmService) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, s.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	ciphertext := s.gcm.Seal(nil, nonce, []byte(plaintext), nil)
	return hex.EncodeToString(nonce) + ":" + hex.EncodeToString(ciphertext), nil
}

func (s *AesGcmService) Decrypt(ciphertext string) (string, error) {
	ivHex, ctHex, found := strings.Cut(ciphertext, ":")
	if !found {
		return "", fmt.Errorf("%w: missing separator", ErrDecryption)
	}

	nonce, err := hex.DecodeString(ivHex)
	if err != nil {
		return "", fmt.Errorf("%w: bad iv hex: %v", ErrDecryption, err)
	}
	if len(nonce) != s.gcm.NonceSize() {
		return "", fmt.Errorf("%w: iv must be %d bytes", ErrDecryption, s.gcm.NonceSize())
	}

	cipherBytes, err := hex.DecodeString(ctHex)
	if err != nil {
		return "", fmt.Errorf("%w: bad ciphertext hex: %v", ErrDecryption, err)
	}

	plainBytes, err := s.gcm.Open(nil, nonce, cipherBytes, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecryption, err)
	}

	return string(plainBytes), nil
}
