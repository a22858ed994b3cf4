// Package database provides the PostgreSQL persistence layer: viewers,
// provider tokens (encrypted at rest), and denormalized profiles.
package database
