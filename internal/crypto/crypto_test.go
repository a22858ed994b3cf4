package crypto

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func newTestService(t *testing.T) *AesGcmService {
	t.Helper()
	svc, err := NewAesGcmService(testSecret)
	require.NoError(t, err)
	return svc
}

func TestNewAesGcmService_RejectsWrongKeyLength(t *testing.T) {
	_, err := NewAesGcmService("too-short")
	assert.Error(t, err)

	_, err = NewAesGcmService(testSecret + "extra")
	assert.Error(t, err)
}

func TestEncryptDecrypt_RoundTrip(t *testing.T) {
	svc := newTestService(t)

	for _, plaintext := range []string{"", "a", "some-oauth-refresh-token", strings.Repeat("x", 4096)} {
		ciphertext, err := svc.Encrypt(plaintext)
		require.NoError(t, err)

		decrypted, err := svc.Decrypt(ciphertext)
		require.NoError(t, err)
		assert.Equal(t, plaintext, decrypted)
	}
}

func TestEncrypt_FreshNoncePerCall(t *testing.T) {
	svc := newTestService(t)

	first, err := svc.Encrypt("same plaintext")
	require.NoError(t, err)
	second, err := svc.Encrypt("same plaintext")
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
}

func TestEncrypt_OutputFormat(t *testing.T) {
	svc := newTestService(t)

	ciphertext, err := svc.Encrypt("payload")
	require.NoError(t, err)

	parts := strings.SplitN(ciphertext, ":", 2)
	require.Len(t, parts, 2)
	assert.NotEmpty(t, parts[0])
	assert.NotEmpty(t, parts[1])
}

func TestDecrypt_MissingSeparator(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.Decrypt("deadbeefcafe")
	assert.ErrorIs(t, err, ErrDecryption)
}

func TestDecrypt_MalformedHex(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.Decrypt("not-hex:also-not-hex")
	assert.ErrorIs(t, err, ErrDecryption)
}

func TestDecrypt_TamperedCiphertext(t *testing.T) {
	svc := newTestService(t)

	ciphertext, err := svc.Encrypt("secret value")
	require.NoError(t, err)

	// Flip the last hex digit of the ciphertext half.
	tampered := ciphertext[:len(ciphertext)-1]
	if strings.HasSuffix(ciphertext, "0") {
		tampered += "1"
	} else {
		tampered += "0"
	}

	_, err = svc.Decrypt(tampered)
	assert.ErrorIs(t, err, ErrDecryption)
}

func TestDecrypt_WrongKey(t *testing.T) {
	svc := newTestService(t)
	other, err := NewAesGcmService("ffffffffffffffffffffffffffffffff")
	require.NoError(t, err)

	ciphertext, err := svc.Encrypt("secret value")
	require.NoError(t, err)

	_, err = other.Decrypt(ciphertext)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDecryption))
}
