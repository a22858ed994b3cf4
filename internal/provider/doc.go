// Package provider implements the OAuth2 authorization-code clients for the
// supported platforms (Twitch, Kick, X). Kick and X require PKCE; Twitch
// relies on state alone. Failures carry a tagged kind (unauthorized,
// rate-limited, network, protocol) so callers branch explicitly instead of
// inspecting raw HTTP errors.
package provider
