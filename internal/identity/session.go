package identity

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/KickTools/ape-server/internal/domain"
	"github.com/KickTools/ape-server/internal/metrics"
	"github.com/KickTools/ape-server/internal/provider"
	"github.com/KickTools/ape-server/internal/token"
)

// SessionPair is a freshly minted session token pair for one viewer.
type SessionPair struct {
	Viewer       *domain.Viewer
	SessionToken string
	RefreshToken string
}

// Refresh redeems a refresh JWT: the embedded provider refresh token is
// decrypted and exchanged at the provider, the rotated provider tokens are
// persisted, and a new session pair is minted. A provider rejection means
// the grant was revoked upstream and surfaces as ErrReauthRequired.
func (s *Service) Refresh(ctx context.Context, refreshJWT string) (*SessionPair, error) {
	claims, err := s.issuer.Verify(refreshJWT, token.TypeRefresh)
	if err != nil {
		return nil, err
	}

	viewerID := claims.ViewerID()
	platform := domain.Platform(claims.Platform)

	client, err := s.client(platform)
	if err != nil {
		return nil, err
	}

	providerRefresh, err := s.crypto.Decrypt(claims.ProviderRefresh)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt embedded refresh token: %w", err)
	}

	rotated, err := client.Refresh(ctx, providerRefresh)
	if err != nil {
		if provider.IsUnauthorized(err) {
			metrics.TokenRefreshesTotal.WithLabelValues(string(platform), "session", "reauth_required").Inc()
			slog.InfoContext(ctx, "Provider rejected refresh token",
				"viewer_id", viewerID, "platform", platform)
			return nil, ErrReauthRequired
		}
		metrics.TokenRefreshesTotal.WithLabelValues(string(platform), "session", "error").Inc()
		return nil, err
	}
	metrics.TokenRefreshesTotal.WithLabelValues(string(platform), "session", "success").Inc()

	viewer, err := s.viewers.GetByID(ctx, viewerID)
	if err != nil {
		return nil, err
	}

	expiresAt := s.clock.Now().Add(time.Duration(rotated.ExpiresIn) * time.Second)
	if err := s.tokens.UpdateTokens(ctx, viewer.ID, platform, rotated.AccessToken, rotated.RefreshToken, expiresAt); err != nil {
		return nil, err
	}

	sessionToken, refreshToken, err := s.issueTokenPair(viewer, platform, rotated.RefreshToken)
	if err != nil {
		return nil, err
	}

	return &SessionPair{
		Viewer:       viewer,
		SessionToken: sessionToken,
		RefreshToken: refreshToken,
	}, nil
}

// Logout revokes the viewer's provider tokens and deletes them from storage.
// Revocation is best effort: a provider outage must not keep the viewer
// logged in, so failures are logged and the local delete proceeds.
func (s *Service) Logout(ctx context.Context, viewerID uuid.UUID, platform domain.Platform) error {
	client, err := s.client(platform)
	if err != nil {
		return err
	}

	stored, err := s.tokens.Get(ctx, viewerID, platform)
	switch err {
	case nil:
		if err := client.Revoke(ctx, stored.AccessToken, "access_token"); err != nil {
			metrics.TokenRevocationsTotal.WithLabelValues(string(platform), "error").Inc()
			slog.WarnContext(ctx, "Failed to revoke access token",
				"viewer_id", viewerID, "platform", platform, "error", err)
		} else {
			metrics.TokenRevocationsTotal.WithLabelValues(string(platform), "success").Inc()
		}
		if err := client.Revoke(ctx, stored.RefreshToken, "refresh_token"); err != nil {
			metrics.TokenRevocationsTotal.WithLabelValues(string(platform), "error").Inc()
			slog.WarnContext(ctx, "Failed to revoke refresh token",
				"viewer_id", viewerID, "platform", platform, "error", err)
		} else {
			metrics.TokenRevocationsTotal.WithLabelValues(string(platform), "success").Inc()
		}
	case domain.ErrTokenNotFound:
		// Nothing stored, nothing to revoke.
	default:
		return err
	}

	if err := s.tokens.Delete(ctx, viewerID, platform); err != nil {
		return err
	}

	slog.InfoContext(ctx, "Viewer logged out", "viewer_id", viewerID, "platform", platform)
	return nil
}

// EnsureFreshProviderToken returns a provider access token guaranteed to be
// valid for at least the safety margin, refreshing and persisting rotated
// tokens when the stored one is about to expire. An unauthorized refresh
// surfaces as ErrReauthRequired.
func (s *Service) EnsureFreshProviderToken(ctx context.Context, viewerID uuid.UUID, platform domain.Platform) (*domain.ProviderToken, error) {
	stored, err := s.tokens.Get(ctx, viewerID, platform)
	if err != nil {
		return nil, err
	}

	if !stored.NeedsRefresh(s.clock.Now(), refreshSafetyMargin) {
		return stored, nil
	}

	client, err := s.client(platform)
	if err != nil {
		return nil, err
	}

	rotated, err := client.Refresh(ctx, stored.RefreshToken)
	if err != nil {
		if provider.IsUnauthorized(err) {
			metrics.TokenRefreshesTotal.WithLabelValues(string(platform), "middleware", "reauth_required").Inc()
			return nil, ErrReauthRequired
		}
		metrics.TokenRefreshesTotal.WithLabelValues(string(platform), "middleware", "error").Inc()
		return nil, err
	}
	metrics.TokenRefreshesTotal.WithLabelValues(string(platform), "middleware", "success").Inc()

	expiresAt := s.clock.Now().Add(time.Duration(rotated.ExpiresIn) * time.Second)
	if err := s.tokens.UpdateTokens(ctx, viewerID, platform, rotated.AccessToken, rotated.RefreshToken, expiresAt); err != nil {
		return nil, err
	}

	slog.DebugContext(ctx, "Refreshed provider token", "viewer_id", viewerID, "platform", platform)

	return &domain.ProviderToken{
		ViewerID:     viewerID,
		Platform:     platform,
		AccessToken:  rotated.AccessToken,
		RefreshToken: rotated.RefreshToken,
		ExpiresAt:    expiresAt,
	}, nil
}
