// Package server is the HTTP surface: OAuth flow entry points and callback,
// session lifecycle endpoints, and health/metrics. Session tokens travel in
// httpOnly cookies; browser-facing redirects carry outcomes, never tokens.
package server
