package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ViewerRepository persists the canonical Viewer records.
type ViewerRepository interface {
	GetByID(ctx context.Context, viewerID uuid.UUID) (*Viewer, error)
	FindByPlatformUserID(ctx context.Context, platform Platform, platformUserID string) (*Viewer, error)
	// UpsertPlatformIdentity finds or creates the viewer owning the given
	// platform identity and marks it verified. When viewerID is non-nil the
	// identity is attached to that existing viewer (link flow) instead of
	// creating a new record. Each call touches exactly one platform
	// sub-record and is idempotent.
	UpsertPlatformIdentity(ctx context.Context, viewerID *uuid.UUID, platform Platform, identity PlatformIdentity, displayName string) (*Viewer, error)
	UpdateRole(ctx context.Context, viewerID uuid.UUID, role Role) error
}

// TokenRepository persists encrypted provider tokens per (viewer, platform).
type TokenRepository interface {
	Upsert(ctx context.Context, viewerID uuid.UUID, platform Platform, accessToken, refreshToken string, expiresAt time.Time) (*ProviderToken, error)
	Get(ctx context.Context, viewerID uuid.UUID, platform Platform) (*ProviderToken, error)
	UpdateTokens(ctx context.Context, viewerID uuid.UUID, platform Platform, accessToken, refreshToken string, expiresAt time.Time) error
	Delete(ctx context.Context, viewerID uuid.UUID, platform Platform) error
}

// ProfileRepository stores denormalized provider profile snapshots.
type ProfileRepository interface {
	Upsert(ctx context.Context, platform Platform, username string, data map[string]any) error
	Get(ctx context.Context, platform Platform, username string) (*Profile, error)
}
