package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/KickTools/ape-server/internal/apperrors"
	"github.com/KickTools/ape-server/internal/domain"
)

type platformIdentityResponse struct {
	UserID     string     `json:"user_id,omitempty"`
	Username   string     `json:"username,omitempty"`
	Verified   bool       `json:"verified"`
	VerifiedAt *time.Time `json:"verified_at,omitempty"`
}

type viewerResponse struct {
	ID        string                   `json:"id"`
	Name      string                   `json:"name"`
	Role      string                   `json:"role"`
	Twitch    platformIdentityResponse `json:"twitch"`
	Kick      platformIdentityResponse `json:"kick"`
	X         platformIdentityResponse `json:"x"`
	CreatedAt time.Time                `json:"created_at"`
}

func toIdentityResponse(identity domain.PlatformIdentity) platformIdentityResponse {
	return platformIdentityResponse{
		UserID:     identity.UserID,
		Username:   identity.Username,
		Verified:   identity.Verified,
		VerifiedAt: identity.VerifiedAt,
	}
}

func toViewerResponse(v *domain.Viewer) viewerResponse {
	return viewerResponse{
		ID:        v.ID.String(),
		Name:      v.Name,
		Role:      string(v.Role),
		Twitch:    toIdentityResponse(v.Twitch),
		Kick:      toIdentityResponse(v.Kick),
		X:         toIdentityResponse(v.X),
		CreatedAt: v.CreatedAt,
	}
}

func (s *Server) handleMe(c echo.Context) error {
	auth, ok := authFromContext(c)
	if !ok {
		return apperrors.UnauthorizedError("no session")
	}

	viewer, err := s.viewers.GetByID(c.Request().Context(), auth.UserID)
	if errors.Is(err, domain.ErrViewerNotFound) {
		return apperrors.NotFoundError("viewer not found")
	}
	if err != nil {
		return apperrors.InternalError("failed to load viewer", err).WithField("viewer_id", auth.UserID)
	}

	return c.JSON(http.StatusOK, map[string]any{
		"success": true,
		"user":    toViewerResponse(viewer),
	})
}

func (s *Server) handleCheckSession(c echo.Context) error {
	auth, ok := authFromContext(c)
	if !ok {
		return apperrors.UnauthorizedError("no session")
	}

	return c.JSON(http.StatusOK, map[string]any{
		"success":       true,
		"authenticated": true,
		"user_id":       auth.UserID.String(),
		"platform":      string(auth.Platform),
		"role":          string(auth.Role),
	})
}
