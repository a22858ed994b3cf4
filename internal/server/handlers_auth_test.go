package server

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KickTools/ape-server/internal/config"
	"github.com/KickTools/ape-server/internal/domain"
	"github.com/KickTools/ape-server/internal/flowstate"
	"github.com/KickTools/ape-server/internal/identity"
	"github.com/KickTools/ape-server/internal/token"
)

type fakeAuthService struct {
	beginURL    string
	beginErr    error
	beginFlow   flowstate.Flow
	beginViewer *uuid.UUID

	callbackResult *identity.CallbackResult
	callbackErr    error
	callbackCalled bool
	callbackVerID  *uuid.UUID

	refreshPair *identity.SessionPair
	refreshErr  error

	logoutErr      error
	logoutViewerID uuid.UUID
	logoutPlatform domain.Platform

	ensureToken    *domain.ProviderToken
	ensureErr      error
	ensureViewerID uuid.UUID
	ensurePlatform domain.Platform
}

func (f *fakeAuthService) BeginAuth(_ context.Context, _ domain.Platform, flow flowstate.Flow, viewerID *uuid.UUID) (string, error) {
	f.beginFlow = flow
	f.beginViewer = viewerID
	return f.beginURL, f.beginErr
}

func (f *fakeAuthService) HandleCallback(_ context.Context, _ domain.Platform, _, _ string, verificationID *uuid.UUID) (*identity.CallbackResult, error) {
	f.callbackCalled = true
	f.callbackVerID = verificationID
	return f.callbackResult, f.callbackErr
}

func (f *fakeAuthService) Refresh(context.Context, string) (*identity.SessionPair, error) {
	return f.refreshPair, f.refreshErr
}

func (f *fakeAuthService) Logout(_ context.Context, viewerID uuid.UUID, platform domain.Platform) error {
	f.logoutViewerID = viewerID
	f.logoutPlatform = platform
	return f.logoutErr
}

func (f *fakeAuthService) EnsureFreshProviderToken(_ context.Context, viewerID uuid.UUID, platform domain.Platform) (*domain.ProviderToken, error) {
	f.ensureViewerID = viewerID
	f.ensurePlatform = platform
	if f.ensureErr != nil {
		return nil, f.ensureErr
	}
	return f.ensureToken, nil
}

type fakeViewerRepo struct {
	viewer *domain.Viewer
	err    error
}

func (f *fakeViewerRepo) GetByID(context.Context, uuid.UUID) (*domain.Viewer, error) {
	return f.viewer, f.err
}

func (f *fakeViewerRepo) FindByPlatformUserID(context.Context, domain.Platform, string) (*domain.Viewer, error) {
	return f.viewer, f.err
}

func (f *fakeViewerRepo) UpsertPlatformIdentity(context.Context, *uuid.UUID, domain.Platform, domain.PlatformIdentity, string) (*domain.Viewer, error) {
	return f.viewer, f.err
}

func (f *fakeViewerRepo) UpdateRole(context.Context, uuid.UUID, domain.Role) error {
	return f.err
}

type fakePinger struct {
	err error
}

func (f *fakePinger) Ping(context.Context) error { return f.err }

type serverFixture struct {
	srv     *Server
	auth    *fakeAuthService
	viewers *fakeViewerRepo
	issuer  *token.Issuer
	clock   *clockwork.FakeClock
	viewer  *domain.Viewer
}

func newServerFixture(t *testing.T) *serverFixture {
	t.Helper()

	cfg := &config.Config{
		AppEnv:      "test",
		Port:        "9988",
		FrontendURL: "https://frontend.example",
	}

	viewer := &domain.Viewer{
		ID:   uuid.New(),
		Name: "Test Viewer",
		Role: domain.RoleRegular,
		Twitch: domain.PlatformIdentity{
			UserID:   "twitch-123",
			Username: "twitchuser",
			Verified: true,
		},
	}

	clock := clockwork.NewFakeClock()
	f := &serverFixture{
		auth: &fakeAuthService{
			beginURL:    "https://id.example/authorize?state=login_abc",
			ensureToken: &domain.ProviderToken{AccessToken: "provider-access-token"},
		},
		viewers: &fakeViewerRepo{viewer: viewer},
		issuer:  token.NewIssuer("test-jwt-secret-value", clock),
		clock:   clock,
		viewer:  viewer,
	}
	f.srv = NewServer(cfg, f.auth, f.viewers, f.issuer, &fakePinger{}, nil)
	return f
}

func (f *serverFixture) request(t *testing.T, method, target string, setup ...func(*http.Request)) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	for _, fn := range setup {
		fn(req)
	}
	rec := httptest.NewRecorder()
	f.srv.echo.ServeHTTP(rec, req)
	return rec
}

func (f *serverFixture) sessionCookie(t *testing.T) *http.Cookie {
	t.Helper()
	accessToken, err := f.issuer.IssueAccess(f.viewer.ID, domain.PlatformTwitch, f.viewer.Role)
	require.NoError(t, err)
	return &http.Cookie{Name: cookieSessionToken, Value: accessToken}
}

func findCookie(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, cookie := range rec.Result().Cookies() {
		if cookie.Name == name {
			return cookie
		}
	}
	return nil
}

func TestHandleLogin_RedirectsToProvider(t *testing.T) {
	f := newServerFixture(t)

	rec := f.request(t, http.MethodGet, "/auth/twitch/login")

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "https://id.example/authorize?state=login_abc", rec.Header().Get("Location"))
	assert.Equal(t, flowstate.FlowLogin, f.auth.beginFlow)
	assert.Nil(t, f.auth.beginViewer)
}

func TestHandleLogin_UnknownProvider(t *testing.T) {
	f := newServerFixture(t)

	rec := f.request(t, http.MethodGet, "/auth/myspace/login")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), `"success":false`)
}

func TestHandleVerify_AttachesAuthenticatedViewer(t *testing.T) {
	f := newServerFixture(t)
	cookie := f.sessionCookie(t)

	rec := f.request(t, http.MethodGet, "/auth/kick/verify", func(r *http.Request) {
		r.AddCookie(cookie)
	})

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, flowstate.FlowVerify, f.auth.beginFlow)
	require.NotNil(t, f.auth.beginViewer)
	assert.Equal(t, f.viewer.ID, *f.auth.beginViewer)
}

func TestHandleVerify_AnonymousViewer(t *testing.T) {
	f := newServerFixture(t)

	rec := f.request(t, http.MethodGet, "/auth/kick/verify")

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Nil(t, f.auth.beginViewer)
}

func TestHandleCallback_LoginSuccessSetsCookies(t *testing.T) {
	f := newServerFixture(t)
	f.auth.callbackResult = &identity.CallbackResult{
		Viewer:       f.viewer,
		SessionToken: "session-jwt",
		RefreshToken: "refresh-jwt",
		Flow:         flowstate.FlowLogin,
	}

	rec := f.request(t, http.MethodGet, "/auth/twitch/callback?code=abc&state=login_123")

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "https://frontend.example/auth/success", rec.Header().Get("Location"))

	session := findCookie(rec, cookieSessionToken)
	require.NotNil(t, session)
	assert.Equal(t, "session-jwt", session.Value)
	assert.True(t, session.HttpOnly)

	refresh := findCookie(rec, cookieRefreshToken)
	require.NotNil(t, refresh)
	assert.Equal(t, "refresh-jwt", refresh.Value)
}

func TestHandleCallback_AwaitingLinkSetsVerificationCookie(t *testing.T) {
	f := newServerFixture(t)
	verificationID := uuid.New()
	f.auth.callbackResult = &identity.CallbackResult{
		Flow:           flowstate.FlowVerify,
		AwaitingLink:   true,
		VerificationID: verificationID,
	}

	rec := f.request(t, http.MethodGet, "/auth/twitch/callback?code=abc&state=verify_123")

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "https://frontend.example/verify/continue", rec.Header().Get("Location"))

	cookie := findCookie(rec, cookieVerificationID)
	require.NotNil(t, cookie)
	assert.Equal(t, verificationID.String(), cookie.Value)
	assert.Nil(t, findCookie(rec, cookieSessionToken), "no session before the link completes")
}

func TestHandleCallback_ForwardsVerificationCookie(t *testing.T) {
	f := newServerFixture(t)
	verificationID := uuid.New()
	f.auth.callbackResult = &identity.CallbackResult{
		Viewer:        f.viewer,
		SessionToken:  "session-jwt",
		RefreshToken:  "refresh-jwt",
		Flow:          flowstate.FlowVerify,
		LinkCompleted: true,
	}

	rec := f.request(t, http.MethodGet, "/auth/kick/callback?code=abc&state=verify_123", func(r *http.Request) {
		r.AddCookie(&http.Cookie{Name: cookieVerificationID, Value: verificationID.String()})
	})

	assert.Equal(t, http.StatusFound, rec.Code)
	require.NotNil(t, f.auth.callbackVerID)
	assert.Equal(t, verificationID, *f.auth.callbackVerID)

	cleared := findCookie(rec, cookieVerificationID)
	require.NotNil(t, cleared)
	assert.Less(t, cleared.MaxAge, 0, "verification cookie cleared after link")
}

func TestHandleCallback_InvalidStateRedirectsToError(t *testing.T) {
	f := newServerFixture(t)
	f.auth.callbackErr = domain.ErrInvalidState

	rec := f.request(t, http.MethodGet, "/auth/twitch/callback?code=abc&state=login_bogus")

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "https://frontend.example/auth/error?reason=invalid_state", rec.Header().Get("Location"))
	assert.Nil(t, findCookie(rec, cookieSessionToken))
}

func TestHandleCallback_VerificationExpiredRedirectsToError(t *testing.T) {
	f := newServerFixture(t)
	f.auth.callbackErr = domain.ErrVerificationExpired

	rec := f.request(t, http.MethodGet, "/auth/kick/callback?code=abc&state=verify_123")

	assert.Equal(t, "https://frontend.example/auth/error?reason=verification_expired", rec.Header().Get("Location"))
}

func TestHandleCallback_ProviderDenialSkipsExchange(t *testing.T) {
	f := newServerFixture(t)

	rec := f.request(t, http.MethodGet, "/auth/twitch/callback?error=access_denied&error_description=denied")

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "https://frontend.example/auth/error?reason=access_denied", rec.Header().Get("Location"))
	assert.False(t, f.auth.callbackCalled)
}

func TestHandleCallback_MissingParameters(t *testing.T) {
	f := newServerFixture(t)

	rec := f.request(t, http.MethodGet, "/auth/twitch/callback")

	assert.Equal(t, "https://frontend.example/auth/error?reason=missing_parameters", rec.Header().Get("Location"))
	assert.False(t, f.auth.callbackCalled)
}

func TestHandleRefreshToken_RotatesSession(t *testing.T) {
	f := newServerFixture(t)
	f.auth.refreshPair = &identity.SessionPair{
		Viewer:       f.viewer,
		SessionToken: "new-session-jwt",
		RefreshToken: "new-refresh-jwt",
	}

	rec := f.request(t, http.MethodPost, "/auth/refresh-token", func(r *http.Request) {
		r.AddCookie(&http.Cookie{Name: cookieRefreshToken, Value: "old-refresh-jwt"})
	})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"success":true`)

	session := findCookie(rec, cookieSessionToken)
	require.NotNil(t, session)
	assert.Equal(t, "new-session-jwt", session.Value)
}

func TestHandleRefreshToken_NoCookie(t *testing.T) {
	f := newServerFixture(t)

	rec := f.request(t, http.MethodPost, "/auth/refresh-token")

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandleRefreshToken_ReauthRequiredClearsCookies(t *testing.T) {
	f := newServerFixture(t)
	f.auth.refreshErr = identity.ErrReauthRequired

	rec := f.request(t, http.MethodPost, "/auth/refresh-token", func(r *http.Request) {
		r.AddCookie(&http.Cookie{Name: cookieRefreshToken, Value: "revoked-refresh-jwt"})
	})

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	cleared := findCookie(rec, cookieSessionToken)
	require.NotNil(t, cleared)
	assert.Less(t, cleared.MaxAge, 0)
}

func TestHandleRefreshToken_ExpiredToken(t *testing.T) {
	f := newServerFixture(t)
	f.auth.refreshErr = token.ErrTokenExpired

	rec := f.request(t, http.MethodPost, "/auth/refresh-token", func(r *http.Request) {
		r.AddCookie(&http.Cookie{Name: cookieRefreshToken, Value: "stale-refresh-jwt"})
	})

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandleLogout_RevokesAndClearsCookies(t *testing.T) {
	f := newServerFixture(t)
	cookie := f.sessionCookie(t)

	rec := f.request(t, http.MethodPost, "/auth/logout", func(r *http.Request) {
		r.AddCookie(cookie)
	})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, f.viewer.ID, f.auth.logoutViewerID)
	assert.Equal(t, domain.PlatformTwitch, f.auth.logoutPlatform)

	cleared := findCookie(rec, cookieSessionToken)
	require.NotNil(t, cleared)
	assert.Less(t, cleared.MaxAge, 0)
}

func TestHandleLogout_RequiresAuth(t *testing.T) {
	f := newServerFixture(t)

	rec := f.request(t, http.MethodPost, "/auth/logout")

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandleLogout_ServiceFailure(t *testing.T) {
	f := newServerFixture(t)
	f.auth.logoutErr = errors.New("database down")
	cookie := f.sessionCookie(t)

	rec := f.request(t, http.MethodPost, "/auth/logout", func(r *http.Request) {
		r.AddCookie(cookie)
	})

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestRequireAuth_AcceptsBearerHeader(t *testing.T) {
	f := newServerFixture(t)
	accessToken, err := f.issuer.IssueAccess(f.viewer.ID, domain.PlatformTwitch, f.viewer.Role)
	require.NoError(t, err)

	rec := f.request(t, http.MethodGet, "/auth/me", func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer "+accessToken)
	})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), f.viewer.ID.String())
}

func TestRequireAuth_RejectsExpiredToken(t *testing.T) {
	f := newServerFixture(t)
	cookie := f.sessionCookie(t)
	f.clock.Advance(token.AccessTokenTTL + time.Minute)

	rec := f.request(t, http.MethodGet, "/auth/me", func(r *http.Request) {
		r.AddCookie(cookie)
	})

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "session expired")
}

func TestRequireAuth_RejectsRefreshTokenAsSession(t *testing.T) {
	f := newServerFixture(t)
	refreshToken, err := f.issuer.IssueRefresh(f.viewer.ID, domain.PlatformTwitch, "enc")
	require.NoError(t, err)

	rec := f.request(t, http.MethodGet, "/auth/me", func(r *http.Request) {
		r.AddCookie(&http.Cookie{Name: cookieSessionToken, Value: refreshToken})
	})

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireAuth_RefreshesProviderToken(t *testing.T) {
	f := newServerFixture(t)
	cookie := f.sessionCookie(t)

	rec := f.request(t, http.MethodGet, "/auth/me", func(r *http.Request) {
		r.AddCookie(cookie)
	})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, f.viewer.ID, f.auth.ensureViewerID)
	assert.Equal(t, domain.PlatformTwitch, f.auth.ensurePlatform)
}

func TestRequireAuth_ProviderReauthRequired(t *testing.T) {
	f := newServerFixture(t)
	f.auth.ensureErr = identity.ErrReauthRequired
	cookie := f.sessionCookie(t)

	rec := f.request(t, http.MethodGet, "/auth/me", func(r *http.Request) {
		r.AddCookie(cookie)
	})

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "provider session revoked")
}

func TestRequireAuth_MissingProviderTokens(t *testing.T) {
	f := newServerFixture(t)
	f.auth.ensureErr = domain.ErrTokenNotFound
	cookie := f.sessionCookie(t)

	rec := f.request(t, http.MethodGet, "/auth/me", func(r *http.Request) {
		r.AddCookie(cookie)
	})

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandleMe_ReturnsViewer(t *testing.T) {
	f := newServerFixture(t)
	cookie := f.sessionCookie(t)

	rec := f.request(t, http.MethodGet, "/auth/me", func(r *http.Request) {
		r.AddCookie(cookie)
	})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"success":true`)
	assert.Contains(t, rec.Body.String(), "twitchuser")
}

func TestHandleMe_ViewerGone(t *testing.T) {
	f := newServerFixture(t)
	f.viewers.viewer = nil
	f.viewers.err = domain.ErrViewerNotFound
	cookie := f.sessionCookie(t)

	rec := f.request(t, http.MethodGet, "/auth/me", func(r *http.Request) {
		r.AddCookie(cookie)
	})

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleCheckSession(t *testing.T) {
	f := newServerFixture(t)
	cookie := f.sessionCookie(t)

	rec := f.request(t, http.MethodGet, "/auth/check-session", func(r *http.Request) {
		r.AddCookie(cookie)
	})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"authenticated":true`)
	assert.Contains(t, rec.Body.String(), `"platform":"twitch"`)
}
