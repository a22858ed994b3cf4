package server

import (
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/KickTools/ape-server/internal/apperrors"
	"github.com/KickTools/ape-server/internal/domain"
	"github.com/KickTools/ape-server/internal/identity"
	"github.com/KickTools/ape-server/internal/token"
)

const authContextKey = "authContext"

// AuthContext is the verified session identity, built once by requireAuth
// and read by handlers via authFromContext. AccessToken is the viewer's
// provider access token, refreshed by the middleware when near expiry.
type AuthContext struct {
	UserID      uuid.UUID
	Platform    domain.Platform
	Role        domain.Role
	AccessToken string
}

// requireAuth verifies the session token from the cookie or the
// Authorization header, guarantees a fresh provider access token, and
// threads the typed AuthContext through the request. Failures are 401s,
// never 500s; only a provider outage surfaces as a 502.
func (s *Server) requireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		sessionToken := cookieValue(c, cookieSessionToken)
		if sessionToken == "" {
			sessionToken = bearerToken(c)
		}
		if sessionToken == "" {
			return apperrors.UnauthorizedError("no session token provided")
		}

		claims, err := s.issuer.Verify(sessionToken, token.TypeAccess)
		if err != nil {
			if errors.Is(err, token.ErrTokenExpired) {
				return apperrors.UnauthorizedError("session expired")
			}
			return apperrors.UnauthorizedError("invalid session token")
		}

		viewerID := claims.ViewerID()
		platform := domain.Platform(claims.Platform)

		providerToken, err := s.auth.EnsureFreshProviderToken(c.Request().Context(), viewerID, platform)
		switch {
		case err == nil:
		case errors.Is(err, identity.ErrReauthRequired):
			return apperrors.UnauthorizedError("provider session revoked, please log in again")
		case errors.Is(err, domain.ErrTokenNotFound):
			return apperrors.UnauthorizedError("no provider session")
		default:
			return apperrors.ExternalError("failed to refresh provider token", err)
		}

		c.Set(authContextKey, AuthContext{
			UserID:      viewerID,
			Platform:    platform,
			Role:        domain.Role(claims.Role),
			AccessToken: providerToken.AccessToken,
		})
		return next(c)
	}
}

func authFromContext(c echo.Context) (AuthContext, bool) {
	auth, ok := c.Get(authContextKey).(AuthContext)
	return auth, ok
}

func bearerToken(c echo.Context) string {
	header := c.Request().Header.Get(echo.HeaderAuthorization)
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return ""
	}
	return strings.TrimPrefix(header, prefix)
}
