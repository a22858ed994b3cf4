package provider

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/KickTools/ape-server/internal/domain"
)

const httpCallTimeout = 10 * time.Second

// Tokens is the result of a code exchange or refresh against a provider.
type Tokens struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int
}

// UserProfile is the provider's canonical view of the authenticated user.
// Raw holds the full decoded payload for denormalized profile storage.
type UserProfile struct {
	UserID      string
	Username    string
	DisplayName string
	Email       string
	Raw         map[string]any
}

// AuthRequest is a prepared authorization redirect. CodeVerifier is empty for
// providers that do not use PKCE.
type AuthRequest struct {
	URL          string
	CodeVerifier string
}

// Client is one platform's OAuth2 integration. Implementations never retry:
// authorization codes are single-use, so a failed call surfaces immediately.
type Client interface {
	Platform() domain.Platform
	AuthorizationURL(state string) (AuthRequest, error)
	Exchange(ctx context.Context, code, codeVerifier string) (*Tokens, error)
	Refresh(ctx context.Context, refreshToken string) (*Tokens, error)
	Revoke(ctx context.Context, token, typeHint string) error
	Validate(ctx context.Context, accessToken string) error
	FetchProfile(ctx context.Context, accessToken string) (*UserProfile, error)
}

// ErrorKind classifies a provider failure so callers branch on the tag
// instead of catching exceptions.
type ErrorKind string

const (
	KindUnauthorized ErrorKind = "unauthorized"
	KindRateLimited  ErrorKind = "rate_limited"
	KindNetwork      ErrorKind = "network"
	KindProtocol     ErrorKind = "protocol"
)

// Error is a tagged provider failure carrying the provider-reported status
// and body for diagnostics.
type Error struct {
	Platform domain.Platform
	Kind     ErrorKind
	Op       string
	Status   int
	Body     string
	Err      error
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s %s: %s (status %d): %s", e.Platform, e.Op, e.Kind, e.Status, e.Body)
	}
	return fmt.Sprintf("%s %s: %s: %v", e.Platform, e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// IsUnauthorized reports whether err is a provider rejection of the
// presented credential (revoked or invalid token).
func IsUnauthorized(err error) bool {
	var perr *Error
	if !errors.As(err, &perr) {
		return false
	}
	return perr.Kind == KindUnauthorized
}

func statusKind(status int) ErrorKind {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden || status == http.StatusBadRequest:
		// Providers answer 400 for consumed or revoked codes/tokens.
		return KindUnauthorized
	case status == http.StatusTooManyRequests:
		return KindRateLimited
	default:
		return KindProtocol
	}
}

// GenerateState returns an unguessable state value prefixed with the flow
// kind, e.g. "login_3f2a...". The prefix selects post-auth branching but is
// only honored after the state is found in the pending-authorization store.
func GenerateState(flow string) (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate oauth state: %w", err)
	}
	return flow + "_" + hex.EncodeToString(b), nil
}

// GeneratePKCE returns a fresh code verifier and its S256 challenge.
func GeneratePKCE() (verifier, challenge string, err error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", "", fmt.Errorf("failed to generate code verifier: %w", err)
	}
	verifier = base64.RawURLEncoding.EncodeToString(b)
	sum := sha256.Sum256([]byte(verifier))
	challenge = base64.RawURLEncoding.EncodeToString(sum[:])
	return verifier, challenge, nil
}

// postForm issues a form-encoded POST and decodes the JSON response into out.
// Non-2xx responses become tagged *Error values.
func postForm(ctx context.Context, platform domain.Platform, op, endpoint string, form url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return &Error{Platform: platform, Kind: KindProtocol, Op: op, Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	return doJSON(req, platform, op, out)
}

// getJSON issues an authenticated GET and decodes the JSON response into out.
func getJSON(ctx context.Context, platform domain.Platform, op, endpoint string, headers map[string]string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return &Error{Platform: platform, Kind: KindProtocol, Op: op, Err: err}
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	return doJSON(req, platform, op, out)
}

func doJSON(req *http.Request, platform domain.Platform, op string, out any) error {
	client := &http.Client{Timeout: httpCallTimeout}
	resp, err := client.Do(req)
	if err != nil {
		return &Error{Platform: platform, Kind: KindNetwork, Op: op, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return &Error{Platform: platform, Kind: KindNetwork, Op: op, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &Error{
			Platform: platform,
			Kind:     statusKind(resp.StatusCode),
			Op:       op,
			Status:   resp.StatusCode,
			Body:     string(body),
		}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &Error{Platform: platform, Kind: KindProtocol, Op: op, Err: fmt.Errorf("failed to decode response: %w", err)}
	}
	return nil
}

// tokenResponse is the common OAuth2 token endpoint payload.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
}

func (r tokenResponse) toTokens() *Tokens {
	return &Tokens{AccessToken: r.AccessToken, RefreshToken: r.RefreshToken, ExpiresIn: r.ExpiresIn}
}
