package provider

import (
	"context"
	"fmt"
	"net/url"

	"github.com/KickTools/ape-server/internal/config"
	"github.com/KickTools/ape-server/internal/domain"
)

const (
	twitchAuthBaseURL = "https://id.twitch.tv/oauth2"
	twitchUsersURL    = "https://api.twitch.tv/helix/users"
	twitchScopes      = "user:read:email"
)

// Twitch implements Client against the Twitch OAuth endpoints. Twitch does
// not use PKCE; state alone protects the flow. Token liveness is checked via
// the dedicated /validate introspection endpoint.
type Twitch struct {
	creds    config.ProviderCredentials
	authBase string
	usersURL string
}

func NewTwitch(creds config.ProviderCredentials) *Twitch {
	return &Twitch{creds: creds, authBase: twitchAuthBaseURL, usersURL: twitchUsersURL}
}

func (t *Twitch) Platform() domain.Platform { return domain.PlatformTwitch }

func (t *Twitch) AuthorizationURL(state string) (AuthRequest, error) {
	params := url.Values{}
	params.Set("client_id", t.creds.ClientID)
	params.Set("redirect_uri", t.creds.RedirectURI)
	params.Set("response_type", "code")
	params.Set("scope", twitchScopes)
	params.Set("state", state)
	params.Set("force_verify", "true")

	return AuthRequest{URL: t.authBase + "/authorize?" + params.Encode()}, nil
}

func (t *Twitch) Exchange(ctx context.Context, code, _ string) (*Tokens, error) {
	form := url.Values{}
	form.Set("client_id", t.creds.ClientID)
	form.Set("client_secret", t.creds.ClientSecret)
	form.Set("code", code)
	form.Set("grant_type", "authorization_code")
	form.Set("redirect_uri", t.creds.RedirectURI)

	var resp tokenResponse
	if err := postForm(ctx, domain.PlatformTwitch, "exchange", t.authBase+"/token", form, &resp); err != nil {
		return nil, err
	}
	return resp.toTokens(), nil
}

func (t *Twitch) Refresh(ctx context.Context, refreshToken string) (*Tokens, error) {
	form := url.Values{}
	form.Set("client_id", t.creds.ClientID)
	form.Set("client_secret", t.creds.ClientSecret)
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)

	var resp tokenResponse
	if err := postForm(ctx, domain.PlatformTwitch, "refresh", t.authBase+"/token", form, &resp); err != nil {
		return nil, err
	}
	return resp.toTokens(), nil
}

func (t *Twitch) Revoke(ctx context.Context, tok, _ string) error {
	form := url.Values{}
	form.Set("client_id", t.creds.ClientID)
	form.Set("token", tok)

	return postForm(ctx, domain.PlatformTwitch, "revoke", t.authBase+"/revoke", form, nil)
}

func (t *Twitch) Validate(ctx context.Context, accessToken string) error {
	headers := map[string]string{"Authorization": "OAuth " + accessToken}
	return getJSON(ctx, domain.PlatformTwitch, "validate", t.authBase+"/validate", headers, nil)
}

func (t *Twitch) FetchProfile(ctx context.Context, accessToken string) (*UserProfile, error) {
	headers := map[string]string{
		"Authorization": "Bearer " + accessToken,
		"Client-Id":     t.creds.ClientID,
	}

	var resp struct {
		Data []map[string]any `json:"data"`
	}
	if err := getJSON(ctx, domain.PlatformTwitch, "fetch_profile", t.usersURL, headers, &resp); err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 {
		return nil, &Error{Platform: domain.PlatformTwitch, Kind: KindProtocol, Op: "fetch_profile", Err: fmt.Errorf("no user data returned")}
	}

	raw := resp.Data[0]
	profile := &UserProfile{
		UserID:      stringField(raw, "id"),
		Username:    stringField(raw, "login"),
		DisplayName: stringField(raw, "display_name"),
		Email:       stringField(raw, "email"),
		Raw:         raw,
	}
	if profile.DisplayName == "" {
		profile.DisplayName = profile.Username
	}
	if profile.UserID == "" || profile.Username == "" {
		return nil, &Error{Platform: domain.PlatformTwitch, Kind: KindProtocol, Op: "fetch_profile", Err: fmt.Errorf("user payload missing id or login")}
	}
	return profile, nil
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}
