// Package identity reconciles per-platform OAuth identities into canonical
// viewer records and manages the session token lifecycle built on top of
// them. It owns the callback state machine for login and cross-platform
// verification flows.
package identity
