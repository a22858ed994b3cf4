// Package config loads and validates application configuration from the
// environment. Validation fails fast at startup: missing provider credentials
// or a malformed encryption secret abort the process before any listener opens.
package config
