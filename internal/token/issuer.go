package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/KickTools/ape-server/internal/domain"
)

// Token lifetime policy: short-lived access tokens paired with a 7-day
// refresh token carrying the encrypted provider refresh token, matching the
// mature revisions of the auth flow.
const (
	AccessTokenTTL  = 1 * time.Hour
	RefreshTokenTTL = 7 * 24 * time.Hour

	TypeAccess  = "access"
	TypeRefresh = "refresh"
)

var (
	// ErrTokenExpired signals a structurally valid token past its expiry.
	ErrTokenExpired = errors.New("session token expired")
	// ErrTokenInvalid signals a forged, malformed, or mis-typed token.
	ErrTokenInvalid = errors.New("session token invalid")
)

// Claims is the signed payload of a session token. Verification is purely
// cryptographic; no storage is consulted, so revocation takes effect only at
// expiry unless callers check a persisted marker themselves.
type Claims struct {
	jwt.RegisteredClaims
	UserID    string `json:"user_id"`
	Platform  string `json:"platform,omitempty"`
	Role      string `json:"role,omitempty"`
	TokenType string `json:"typ"`
	// ProviderRefresh carries the encrypted provider refresh token inside
	// refresh-type tokens so rotation needs no session storage.
	ProviderRefresh string `json:"provider_refresh,omitempty"`
}

// Issuer mints and verifies HS256-signed session tokens.
type Issuer struct {
	secret []byte
	clock  clockwork.Clock
}

func NewIssuer(secret string, clock clockwork.Clock) *Issuer {
	return &Issuer{secret: []byte(secret), clock: clock}
}

// IssueAccess mints a 1-hour access token scoped to a viewer and platform.
func (i *Issuer) IssueAccess(viewerID uuid.UUID, platform domain.Platform, role domain.Role) (string, error) {
	return i.sign(Claims{
		RegisteredClaims: i.registered(AccessTokenTTL),
		UserID:           viewerID.String(),
		Platform:         string(platform),
		Role:             string(role),
		TokenType:        TypeAccess,
	})
}

// IssueRefresh mints a 7-day refresh token embedding the encrypted provider
// refresh token. Raw provider tokens never enter a JWT.
func (i *Issuer) IssueRefresh(viewerID uuid.UUID, platform domain.Platform, encryptedProviderRefresh string) (string, error) {
	return i.sign(Claims{
		RegisteredClaims: i.registered(RefreshTokenTTL),
		UserID:           viewerID.String(),
		Platform:         string(platform),
		TokenType:        TypeRefresh,
		ProviderRefresh:  encryptedProviderRefresh,
	})
}

func (i *Issuer) registered(ttl time.Duration) jwt.RegisteredClaims {
	now := i.clock.Now()
	return jwt.RegisteredClaims{
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
}

func (i *Issuer) sign(claims Claims) (string, error) {
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign session token: %w", err)
	}
	return signed, nil
}

// Verify checks signature and expiry and enforces the expected token type.
// Failures map to ErrTokenExpired or ErrTokenInvalid so handlers can answer
// 401 distinctly from server errors.
func (i *Issuer) Verify(tokenString, expectedType string) (*Claims, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(tokenString, &claims,
		func(t *jwt.Token) (any, error) { return i.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(i.clock.Now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	if claims.TokenType != expectedType {
		return nil, fmt.Errorf("%w: unexpected token type %q", ErrTokenInvalid, claims.TokenType)
	}

	if _, err := uuid.Parse(claims.UserID); err != nil {
		return nil, fmt.Errorf("%w: malformed user_id", ErrTokenInvalid)
	}

	return &claims, nil
}

// ViewerID returns the parsed viewer UUID. Verify guarantees it parses.
func (c *Claims) ViewerID() uuid.UUID {
	id, _ := uuid.Parse(c.UserID)
	return id
}
