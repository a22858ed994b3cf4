// Package flowstate holds the transient state of in-progress OAuth flows:
// the pending-authorization store binding a state parameter to its PKCE
// verifier, and the verification cache staging the first provider's result
// while a multi-platform link flow completes. Both are injectable key-value
// stores; the in-memory implementations suit a single instance, the Redis
// ones a multi-instance deployment.
package flowstate

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/KickTools/ape-server/internal/domain"
	"github.com/KickTools/ape-server/internal/provider"
)

const (
	// PendingAuthTTL bounds how long an authorization redirect may take.
	PendingAuthTTL = 5 * time.Minute
	// VerificationTTL bounds the gap between the first and second provider
	// callbacks of a link flow. It also limits how long plaintext provider
	// tokens sit in the cache.
	VerificationTTL = 15 * time.Minute
)

// Flow selects the post-callback branch.
type Flow string

const (
	FlowLogin  Flow = "login"
	FlowVerify Flow = "verify"
)

// PendingEntry binds an OAuth state parameter to its flow context.
type PendingEntry struct {
	Flow         Flow            `json:"flow"`
	Platform     domain.Platform `json:"platform"`
	CodeVerifier string          `json:"code_verifier,omitempty"`
	ViewerID     *uuid.UUID      `json:"viewer_id,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

// PendingStore registers and consumes OAuth state entries. Consume is
// single-use: the first call removes the entry, so a replayed state fails
// with domain.ErrInvalidState.
type PendingStore interface {
	Put(ctx context.Context, state string, entry PendingEntry) error
	Consume(ctx context.Context, state string) (*PendingEntry, error)
}

// VerificationPayload is the first-completed provider's result, staged until
// the second provider's callback arrives.
type VerificationPayload struct {
	Platform domain.Platform      `json:"platform"`
	Profile  provider.UserProfile `json:"profile"`
	Tokens   provider.Tokens      `json:"tokens"`
	StagedAt time.Time            `json:"staged_at"`
}

// VerificationCache stages link-flow state under a verification ID delivered
// to the browser as a cookie. Entries auto-expire; Get after expiry fails
// with domain.ErrVerificationExpired.
type VerificationCache interface {
	Stage(ctx context.Context, id uuid.UUID, payload VerificationPayload) error
	Get(ctx context.Context, id uuid.UUID) (*VerificationPayload, error)
	Clear(ctx context.Context, id uuid.UUID) error
}
