package domain

import (
	"time"

	"github.com/google/uuid"
)

// Platform identifies a third-party identity provider.
type Platform string

const (
	PlatformTwitch Platform = "twitch"
	PlatformKick   Platform = "kick"
	PlatformX      Platform = "x"
)

// Platforms lists every supported platform in a stable order.
var Platforms = []Platform{PlatformTwitch, PlatformKick, PlatformX}

// Valid reports whether p is a known platform.
func (p Platform) Valid() bool {
	switch p {
	case PlatformTwitch, PlatformKick, PlatformX:
		return true
	}
	return false
}

// Role is the application-level permission tier of a viewer.
type Role string

const (
	RoleRegular   Role = "regular"
	RoleAdmin     Role = "admin"
	RoleWebmaster Role = "webmaster"
	RoleOwner     Role = "owner"
)

// PlatformIdentity is one platform's verified sub-record on a Viewer.
type PlatformIdentity struct {
	UserID     string
	Username   string
	Verified   bool
	VerifiedAt *time.Time
}

// Viewer is the canonical cross-platform identity record. At most one Viewer
// exists per platform user ID; verifying a second platform mutates the same
// record instead of creating a new one.
type Viewer struct {
	ID        uuid.UUID
	Name      string
	Role      Role
	Twitch    PlatformIdentity
	Kick      PlatformIdentity
	X         PlatformIdentity
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Identity returns the sub-record for the given platform.
func (v *Viewer) Identity(platform Platform) PlatformIdentity {
	switch platform {
	case PlatformTwitch:
		return v.Twitch
	case PlatformKick:
		return v.Kick
	case PlatformX:
		return v.X
	}
	return PlatformIdentity{}
}
