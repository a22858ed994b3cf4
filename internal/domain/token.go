package domain

import (
	"time"

	"github.com/google/uuid"
)

// ProviderToken is the persisted OAuth token pair for one (viewer, platform).
// Access and refresh tokens are encrypted at rest; repository implementations
// return them decrypted.
type ProviderToken struct {
	ViewerID     uuid.UUID
	Platform     Platform
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// NeedsRefresh reports whether the access token expires within the safety
// margin and should be refreshed before use.
func (t *ProviderToken) NeedsRefresh(now time.Time, margin time.Duration) bool {
	return !now.Add(margin).Before(t.ExpiresAt)
}
