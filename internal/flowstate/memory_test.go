package flowstate

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KickTools/ape-server/internal/domain"
	"github.com/KickTools/ape-server/internal/provider"
)

func TestPendingStore_ConsumeIsSingleUse(t *testing.T) {
	clock := clockwork.NewFakeClock()
	store := NewMemoryPendingStore(PendingAuthTTL, clock)
	ctx := context.Background()

	entry := PendingEntry{Flow: FlowLogin, Platform: domain.PlatformKick, CodeVerifier: "verifier"}
	require.NoError(t, store.Put(ctx, "login_abc", entry))

	got, err := store.Consume(ctx, "login_abc")
	require.NoError(t, err)
	assert.Equal(t, FlowLogin, got.Flow)
	assert.Equal(t, "verifier", got.CodeVerifier)

	// Replay must fail.
	_, err = store.Consume(ctx, "login_abc")
	assert.ErrorIs(t, err, domain.ErrInvalidState)
}

func TestPendingStore_UnknownState(t *testing.T) {
	clock := clockwork.NewFakeClock()
	store := NewMemoryPendingStore(PendingAuthTTL, clock)

	_, err := store.Consume(context.Background(), "forged_state")
	assert.ErrorIs(t, err, domain.ErrInvalidState)
}

func TestPendingStore_ExpiredEntryUnreachable(t *testing.T) {
	clock := clockwork.NewFakeClock()
	store := NewMemoryPendingStore(PendingAuthTTL, clock)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "login_old", PendingEntry{Flow: FlowLogin, Platform: domain.PlatformTwitch}))
	clock.Advance(PendingAuthTTL + time.Second)

	_, err := store.Consume(ctx, "login_old")
	assert.ErrorIs(t, err, domain.ErrInvalidState)
}

func TestPendingStore_PutSweepsExpired(t *testing.T) {
	clock := clockwork.NewFakeClock()
	store := NewMemoryPendingStore(PendingAuthTTL, clock)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "login_old", PendingEntry{Flow: FlowLogin, Platform: domain.PlatformTwitch}))
	clock.Advance(PendingAuthTTL + time.Second)

	require.NoError(t, store.Put(ctx, "login_new", PendingEntry{Flow: FlowLogin, Platform: domain.PlatformTwitch}))

	// Only the fresh entry remains after the passive sweep.
	assert.Equal(t, 1, store.Size())
}

func TestPendingStore_CarriesViewerIDForLinkFlows(t *testing.T) {
	clock := clockwork.NewFakeClock()
	store := NewMemoryPendingStore(PendingAuthTTL, clock)
	ctx := context.Background()
	viewerID := uuid.New()

	require.NoError(t, store.Put(ctx, "verify_xyz", PendingEntry{
		Flow:     FlowVerify,
		Platform: domain.PlatformX,
		ViewerID: &viewerID,
	}))

	got, err := store.Consume(ctx, "verify_xyz")
	require.NoError(t, err)
	require.NotNil(t, got.ViewerID)
	assert.Equal(t, viewerID, *got.ViewerID)
}

func TestVerificationCache_StageGetClear(t *testing.T) {
	clock := clockwork.NewFakeClock()
	cache := NewMemoryVerificationCache(VerificationTTL, clock)
	ctx := context.Background()
	id := uuid.New()

	payload := VerificationPayload{
		Platform: domain.PlatformTwitch,
		Profile:  provider.UserProfile{UserID: "42", Username: "someviewer"},
		Tokens:   provider.Tokens{AccessToken: "at", RefreshToken: "rt", ExpiresIn: 3600},
	}
	require.NoError(t, cache.Stage(ctx, id, payload))

	got, err := cache.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "42", got.Profile.UserID)
	assert.Equal(t, "at", got.Tokens.AccessToken)

	require.NoError(t, cache.Clear(ctx, id))
	_, err = cache.Get(ctx, id)
	assert.ErrorIs(t, err, domain.ErrVerificationExpired)
}

func TestVerificationCache_TTLExpiry(t *testing.T) {
	clock := clockwork.NewFakeClock()
	cache := NewMemoryVerificationCache(VerificationTTL, clock)
	ctx := context.Background()
	id := uuid.New()

	require.NoError(t, cache.Stage(ctx, id, VerificationPayload{Platform: domain.PlatformKick}))

	clock.Advance(VerificationTTL + time.Second)

	_, err := cache.Get(ctx, id)
	assert.ErrorIs(t, err, domain.ErrVerificationExpired)
}

func TestVerificationCache_EvictExpired(t *testing.T) {
	clock := clockwork.NewFakeClock()
	cache := NewMemoryVerificationCache(VerificationTTL, clock)
	ctx := context.Background()

	require.NoError(t, cache.Stage(ctx, uuid.New(), VerificationPayload{Platform: domain.PlatformKick}))
	require.NoError(t, cache.Stage(ctx, uuid.New(), VerificationPayload{Platform: domain.PlatformX}))

	clock.Advance(VerificationTTL + time.Second)

	fresh := uuid.New()
	require.NoError(t, cache.Stage(ctx, fresh, VerificationPayload{Platform: domain.PlatformTwitch}))

	assert.Equal(t, 2, cache.EvictExpired())

	_, err := cache.Get(ctx, fresh)
	assert.NoError(t, err)
}
