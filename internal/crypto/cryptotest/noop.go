// Package cryptotest provides a passthrough crypto service for tests.
package cryptotest

// Noop passes tokens through without encryption.
type Noop struct{}

func (Noop) Encrypt(plaintext string) (string, error)  { return plaintext, nil }
func (Noop) Decrypt(ciphertext string) (string, error) { return ciphertext, nil }
