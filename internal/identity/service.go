package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/KickTools/ape-server/internal/crypto"
	"github.com/KickTools/ape-server/internal/domain"
	"github.com/KickTools/ape-server/internal/flowstate"
	"github.com/KickTools/ape-server/internal/metrics"
	"github.com/KickTools/ape-server/internal/provider"
	"github.com/KickTools/ape-server/internal/token"
)

// refreshSafetyMargin triggers a proactive provider-token refresh shortly
// before the stored expiry.
const refreshSafetyMargin = 60 * time.Second

// ErrReauthRequired signals that the provider rejected the refresh token and
// the viewer must run the login flow again. Handlers answer 401, not 500.
var ErrReauthRequired = errors.New("re-authentication required")

// Service reconciles per-platform OAuth identities into canonical Viewer
// records. All collaborators are injected; the service holds no other state.
type Service struct {
	providers    map[domain.Platform]provider.Client
	pending      flowstate.PendingStore
	verification flowstate.VerificationCache
	viewers      domain.ViewerRepository
	tokens       domain.TokenRepository
	profiles     domain.ProfileRepository
	issuer       *token.Issuer
	crypto       crypto.Service
	clock        clockwork.Clock
}

func NewService(
	providers []provider.Client,
	pending flowstate.PendingStore,
	verification flowstate.VerificationCache,
	viewers domain.ViewerRepository,
	tokens domain.TokenRepository,
	profiles domain.ProfileRepository,
	issuer *token.Issuer,
	cryptoSvc crypto.Service,
	clock clockwork.Clock,
) *Service {
	byPlatform := make(map[domain.Platform]provider.Client, len(providers))
	for _, p := range providers {
		byPlatform[p.Platform()] = p
	}
	return &Service{
		providers:    byPlatform,
		pending:      pending,
		verification: verification,
		viewers:      viewers,
		tokens:       tokens,
		profiles:     profiles,
		issuer:       issuer,
		crypto:       cryptoSvc,
		clock:        clock,
	}
}

func (s *Service) client(platform domain.Platform) (provider.Client, error) {
	c, ok := s.providers[platform]
	if !ok {
		return nil, fmt.Errorf("unsupported platform %q", platform)
	}
	return c, nil
}

// BeginAuth prepares an authorization redirect for the given platform and
// flow, registering state and PKCE verifier in the pending store. viewerID
// is set when an authenticated viewer initiates a link flow.
func (s *Service) BeginAuth(ctx context.Context, platform domain.Platform, flow flowstate.Flow, viewerID *uuid.UUID) (string, error) {
	client, err := s.client(platform)
	if err != nil {
		return "", err
	}

	state, err := provider.GenerateState(string(flow))
	if err != nil {
		return "", err
	}

	authReq, err := client.AuthorizationURL(state)
	if err != nil {
		return "", fmt.Errorf("failed to build authorization URL: %w", err)
	}

	entry := flowstate.PendingEntry{
		Flow:         flow,
		Platform:     platform,
		CodeVerifier: authReq.CodeVerifier,
		ViewerID:     viewerID,
	}
	if err := s.pending.Put(ctx, state, entry); err != nil {
		return "", fmt.Errorf("failed to register pending authorization: %w", err)
	}

	metrics.OAuthFlowsStarted.WithLabelValues(string(platform), string(flow)).Inc()
	return authReq.URL, nil
}

// CallbackResult is the outcome of one OAuth callback.
type CallbackResult struct {
	Viewer       *domain.Viewer
	SessionToken string
	RefreshToken string
	Flow         flowstate.Flow

	// AwaitingLink is set after the first provider of a verify flow; the
	// browser carries VerificationID (as a cookie) to the second provider.
	AwaitingLink   bool
	VerificationID uuid.UUID
	// LinkCompleted is set when a verify flow merged both platforms.
	LinkCompleted bool
}

// HandleCallback runs the reconciliation state machine for one provider
// callback. Steps run strictly sequentially; any failure aborts the whole
// callback with no partial viewer mutation, and clears flow state tied to
// this attempt.
func (s *Service) HandleCallback(ctx context.Context, platform domain.Platform, code, state string, verificationID *uuid.UUID) (*CallbackResult, error) {
	result, err := s.handleCallback(ctx, platform, code, state, verificationID)
	metrics.OAuthCallbacksTotal.WithLabelValues(string(platform), flowLabel(state), callbackOutcome(result, err)).Inc()
	return result, err
}

func flowLabel(state string) string {
	if strings.HasPrefix(state, string(flowstate.FlowVerify)+"_") {
		return string(flowstate.FlowVerify)
	}
	return string(flowstate.FlowLogin)
}

func callbackOutcome(result *CallbackResult, err error) string {
	switch {
	case errors.Is(err, domain.ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, domain.ErrVerificationExpired):
		return "verification_expired"
	case provider.IsUnauthorized(err):
		return "provider_rejected"
	case err != nil:
		return "error"
	case result.AwaitingLink:
		return "awaiting_link"
	default:
		return "success"
	}
}

func (s *Service) handleCallback(ctx context.Context, platform domain.Platform, code, state string, verificationID *uuid.UUID) (*CallbackResult, error) {
	client, err := s.client(platform)
	if err != nil {
		return nil, err
	}

	// Fail closed on unknown, expired, or replayed state.
	entry, err := s.pending.Consume(ctx, state)
	if err != nil {
		return nil, err
	}
	if entry.Platform != platform {
		return nil, domain.ErrInvalidState
	}

	tokens, err := client.Exchange(ctx, code, entry.CodeVerifier)
	if err != nil {
		return nil, err
	}

	profile, err := client.FetchProfile(ctx, tokens.AccessToken)
	if err != nil {
		return nil, err
	}

	switch {
	case entry.Flow == flowstate.FlowLogin:
		return s.completeLogin(ctx, platform, profile, tokens)

	case verificationID == nil:
		return s.stageFirstProvider(ctx, platform, profile, tokens)

	default:
		return s.completeLink(ctx, entry, platform, profile, tokens, *verificationID)
	}
}

// completeLogin resolves or creates the viewer for a plain login and mints
// the session token pair.
func (s *Service) completeLogin(ctx context.Context, platform domain.Platform, profile *provider.UserProfile, tokens *provider.Tokens) (*CallbackResult, error) {
	viewer, err := s.persistVerifiedIdentity(ctx, nil, platform, profile, tokens)
	if err != nil {
		return nil, err
	}

	sessionToken, refreshToken, err := s.issueTokenPair(viewer, platform, tokens.RefreshToken)
	if err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "Viewer logged in",
		"viewer_id", viewer.ID, "platform", platform, "username", profile.Username)

	return &CallbackResult{
		Viewer:       viewer,
		SessionToken: sessionToken,
		RefreshToken: refreshToken,
		Flow:         flowstate.FlowLogin,
	}, nil
}

// stageFirstProvider parks the first provider's result in the verification
// cache; nothing is persisted until the second provider completes.
func (s *Service) stageFirstProvider(ctx context.Context, platform domain.Platform, profile *provider.UserProfile, tokens *provider.Tokens) (*CallbackResult, error) {
	verificationID := uuid.New()
	payload := flowstate.VerificationPayload{
		Platform: platform,
		Profile:  *profile,
		Tokens:   *tokens,
	}
	if err := s.verification.Stage(ctx, verificationID, payload); err != nil {
		return nil, fmt.Errorf("failed to stage verification data: %w", err)
	}

	slog.InfoContext(ctx, "First provider verified, awaiting second",
		"platform", platform, "username", profile.Username, "verification_id", verificationID)

	return &CallbackResult{
		Flow:           flowstate.FlowVerify,
		AwaitingLink:   true,
		VerificationID: verificationID,
	}, nil
}

// completeLink merges the staged first provider and the just-completed
// second provider into one viewer. An expired cache entry aborts the whole
// link; the viewer is left untouched.
func (s *Service) completeLink(ctx context.Context, entry *flowstate.PendingEntry, platform domain.Platform, profile *provider.UserProfile, tokens *provider.Tokens, verificationID uuid.UUID) (*CallbackResult, error) {
	staged, err := s.verification.Get(ctx, verificationID)
	if err != nil {
		return nil, err
	}

	// Persist the first provider's identity, reusing the initiating
	// viewer when the link flow started from an authenticated session.
	viewer, err := s.persistVerifiedIdentity(ctx, entry.ViewerID, staged.Platform, &staged.Profile, &staged.Tokens)
	if err != nil {
		return nil, err
	}

	viewerID := viewer.ID
	viewer, err = s.persistVerifiedIdentity(ctx, &viewerID, platform, profile, tokens)
	if err != nil {
		return nil, err
	}

	// Single-use gate: the first successful completion clears the entry.
	if err := s.verification.Clear(ctx, verificationID); err != nil {
		slog.Warn("Failed to clear verification entry", "verification_id", verificationID, "error", err)
	}

	sessionToken, refreshToken, err := s.issueTokenPair(viewer, staged.Platform, staged.Tokens.RefreshToken)
	if err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "Platforms linked",
		"viewer_id", viewer.ID, "first_platform", staged.Platform, "second_platform", platform)

	return &CallbackResult{
		Viewer:        viewer,
		SessionToken:  sessionToken,
		RefreshToken:  refreshToken,
		Flow:          flowstate.FlowVerify,
		LinkCompleted: true,
	}, nil
}

// persistVerifiedIdentity writes one platform's verified identity: viewer
// sub-record, encrypted token pair, and the opportunistic profile snapshot.
func (s *Service) persistVerifiedIdentity(ctx context.Context, viewerID *uuid.UUID, platform domain.Platform, profile *provider.UserProfile, tokens *provider.Tokens) (*domain.Viewer, error) {
	now := s.clock.Now()
	identity := domain.PlatformIdentity{
		UserID:     profile.UserID,
		Username:   profile.Username,
		Verified:   true,
		VerifiedAt: &now,
	}

	viewer, err := s.viewers.UpsertPlatformIdentity(ctx, viewerID, platform, identity, profile.DisplayName)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert viewer identity: %w", err)
	}

	expiresAt := now.Add(time.Duration(tokens.ExpiresIn) * time.Second)
	if _, err := s.tokens.Upsert(ctx, viewer.ID, platform, tokens.AccessToken, tokens.RefreshToken, expiresAt); err != nil {
		return nil, fmt.Errorf("failed to persist provider tokens: %w", err)
	}

	// Profile data is informational; a failure must not abort the login.
	if err := s.profiles.Upsert(ctx, platform, profile.Username, profile.Raw); err != nil {
		slog.Warn("Failed to store profile snapshot", "platform", platform, "username", profile.Username, "error", err)
	}

	return viewer, nil
}

func (s *Service) issueTokenPair(viewer *domain.Viewer, platform domain.Platform, providerRefreshToken string) (string, string, error) {
	sessionToken, err := s.issuer.IssueAccess(viewer.ID, platform, viewer.Role)
	if err != nil {
		return "", "", err
	}

	encRefresh, err := s.crypto.Encrypt(providerRefreshToken)
	if err != nil {
		return "", "", fmt.Errorf("failed to encrypt provider refresh token: %w", err)
	}

	refreshToken, err := s.issuer.IssueRefresh(viewer.ID, platform, encRefresh)
	if err != nil {
		return "", "", err
	}

	return sessionToken, refreshToken, nil
}
