package server

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/KickTools/ape-server/internal/apperrors"
	"github.com/KickTools/ape-server/internal/domain"
	"github.com/KickTools/ape-server/internal/flowstate"
	"github.com/KickTools/ape-server/internal/identity"
	"github.com/KickTools/ape-server/internal/provider"
	"github.com/KickTools/ape-server/internal/token"
)

// Frontend landing paths. The callback is a browser redirect chain, so
// outcomes travel as paths and reason codes; tokens only ever ride cookies.
const (
	frontendSuccessPath  = "/auth/success"
	frontendContinuePath = "/verify/continue"
	frontendErrorPath    = "/auth/error"
)

func platformParam(c echo.Context) (domain.Platform, error) {
	platform := domain.Platform(c.Param("provider"))
	if !platform.Valid() {
		return "", apperrors.ValidationError("unknown provider").WithField("provider", c.Param("provider"))
	}
	return platform, nil
}

func (s *Server) frontendRedirect(c echo.Context, path string) error {
	return c.Redirect(http.StatusFound, s.config.FrontendURL+path)
}

func (s *Server) handleLogin(c echo.Context) error {
	platform, err := platformParam(c)
	if err != nil {
		return err
	}

	authURL, err := s.auth.BeginAuth(c.Request().Context(), platform, flowstate.FlowLogin, nil)
	if err != nil {
		return apperrors.InternalError("failed to start login flow", err).WithField("platform", platform)
	}

	return c.Redirect(http.StatusFound, authURL)
}

func (s *Server) handleVerify(c echo.Context) error {
	platform, err := platformParam(c)
	if err != nil {
		return err
	}

	// A valid session attaches the link flow to the signed-in viewer.
	// Anonymous verification is allowed; identity then comes from the
	// provider callbacks alone.
	var viewerID *uuid.UUID
	if sessionToken := cookieValue(c, cookieSessionToken); sessionToken != "" {
		if claims, err := s.issuer.Verify(sessionToken, token.TypeAccess); err == nil {
			id := claims.ViewerID()
			viewerID = &id
		}
	}

	authURL, err := s.auth.BeginAuth(c.Request().Context(), platform, flowstate.FlowVerify, viewerID)
	if err != nil {
		return apperrors.InternalError("failed to start verify flow", err).WithField("platform", platform)
	}

	return c.Redirect(http.StatusFound, authURL)
}

func (s *Server) handleCallback(c echo.Context) error {
	platform, err := platformParam(c)
	if err != nil {
		return s.frontendRedirect(c, errorPath("unknown_provider"))
	}

	// The provider reports user denial and misconfiguration via the error
	// query parameter instead of a code.
	if providerErr := c.QueryParam("error"); providerErr != "" {
		slog.Info("Provider returned authorization error",
			"platform", platform, "error", providerErr, "description", c.QueryParam("error_description"))
		return s.frontendRedirect(c, errorPath("access_denied"))
	}

	code := c.QueryParam("code")
	state := c.QueryParam("state")
	if code == "" || state == "" {
		return s.frontendRedirect(c, errorPath("missing_parameters"))
	}

	var verificationID *uuid.UUID
	if raw := cookieValue(c, cookieVerificationID); raw != "" {
		if id, err := uuid.Parse(raw); err == nil {
			verificationID = &id
		}
	}

	result, err := s.auth.HandleCallback(c.Request().Context(), platform, code, state, verificationID)
	if err != nil {
		slog.Warn("OAuth callback failed", "platform", platform, "error", err)
		return s.frontendRedirect(c, errorPath(callbackErrorReason(err)))
	}

	if result.AwaitingLink {
		s.setVerificationCookie(c, result.VerificationID.String())
		return s.frontendRedirect(c, frontendContinuePath)
	}

	s.setSessionCookies(c, result.SessionToken, result.RefreshToken)
	if result.LinkCompleted {
		s.clearCookie(c, cookieVerificationID)
	}
	return s.frontendRedirect(c, frontendSuccessPath)
}

func errorPath(reason string) string {
	return frontendErrorPath + "?reason=" + url.QueryEscape(reason)
}

func callbackErrorReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, domain.ErrVerificationExpired):
		return "verification_expired"
	case provider.IsUnauthorized(err):
		return "provider_rejected"
	default:
		return "internal_error"
	}
}

func (s *Server) handleRefreshToken(c echo.Context) error {
	refreshJWT := cookieValue(c, cookieRefreshToken)
	if refreshJWT == "" {
		return apperrors.UnauthorizedError("no refresh token provided")
	}

	pair, err := s.auth.Refresh(c.Request().Context(), refreshJWT)
	switch {
	case err == nil:
	case errors.Is(err, token.ErrTokenExpired):
		s.clearSessionCookies(c)
		return apperrors.UnauthorizedError("refresh token expired")
	case errors.Is(err, token.ErrTokenInvalid):
		s.clearSessionCookies(c)
		return apperrors.UnauthorizedError("invalid refresh token")
	case errors.Is(err, identity.ErrReauthRequired):
		s.clearSessionCookies(c)
		return apperrors.UnauthorizedError("provider session revoked, please log in again")
	default:
		return apperrors.ExternalError("failed to refresh session", err)
	}

	s.setSessionCookies(c, pair.SessionToken, pair.RefreshToken)
	return c.JSON(http.StatusOK, map[string]any{
		"success": true,
		"user":    toViewerResponse(pair.Viewer),
	})
}

func (s *Server) handleLogout(c echo.Context) error {
	auth, ok := authFromContext(c)
	if !ok {
		return apperrors.UnauthorizedError("no session")
	}

	if err := s.auth.Logout(c.Request().Context(), auth.UserID, auth.Platform); err != nil {
		return apperrors.InternalError("failed to log out", err).WithField("viewer_id", auth.UserID)
	}

	s.clearSessionCookies(c)
	return c.JSON(http.StatusOK, map[string]any{
		"success": true,
		"message": "logged out",
	})
}
