// Package crypto provides encryption services for data at rest.
//
// Implements AES-256-GCM encryption for OAuth tokens stored in PostgreSQL.
// The cryptotest subpackage offers a plaintext passthrough for tests.
package crypto
