package domain

import "time"

// Profile is a denormalized snapshot of a provider's public profile data.
// Informational only: it is refreshed opportunistically on login and never
// consulted for identity decisions.
type Profile struct {
	Platform  Platform
	Username  string
	Data      map[string]any
	UpdatedAt time.Time
}
