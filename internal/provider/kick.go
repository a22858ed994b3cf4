package provider

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/KickTools/ape-server/internal/config"
	"github.com/KickTools/ape-server/internal/domain"
)

const (
	kickAuthBaseURL = "https://id.kick.com"
	kickUsersURL    = "https://api.kick.com/public/v1/users"
	kickScopes      = "user:read channel:read channel:write chat:write events:subscribe"
)

// Kick implements Client against the Kick OAuth endpoints. PKCE is mandatory.
// Kick has no introspection endpoint, so Validate proves liveness by fetching
// the current user.
type Kick struct {
	creds    config.ProviderCredentials
	authBase string
	usersURL string
}

func NewKick(creds config.ProviderCredentials) *Kick {
	return &Kick{creds: creds, authBase: kickAuthBaseURL, usersURL: kickUsersURL}
}

func (k *Kick) Platform() domain.Platform { return domain.PlatformKick }

func (k *Kick) AuthorizationURL(state string) (AuthRequest, error) {
	verifier, challenge, err := GeneratePKCE()
	if err != nil {
		return AuthRequest{}, err
	}

	params := url.Values{}
	params.Set("client_id", k.creds.ClientID)
	params.Set("redirect_uri", k.creds.RedirectURI)
	params.Set("response_type", "code")
	params.Set("scope", kickScopes)
	params.Set("state", state)
	params.Set("code_challenge", challenge)
	params.Set("code_challenge_method", "S256")

	return AuthRequest{
		URL:          k.authBase + "/oauth/authorize?" + params.Encode(),
		CodeVerifier: verifier,
	}, nil
}

func (k *Kick) Exchange(ctx context.Context, code, codeVerifier string) (*Tokens, error) {
	if codeVerifier == "" {
		return nil, &Error{Platform: domain.PlatformKick, Kind: KindProtocol, Op: "exchange", Err: fmt.Errorf("code verifier is required")}
	}

	form := url.Values{}
	form.Set("client_id", k.creds.ClientID)
	form.Set("client_secret", k.creds.ClientSecret)
	form.Set("code", code)
	form.Set("grant_type", "authorization_code")
	form.Set("redirect_uri", k.creds.RedirectURI)
	form.Set("code_verifier", codeVerifier)

	var resp tokenResponse
	if err := postForm(ctx, domain.PlatformKick, "exchange", k.authBase+"/oauth/token", form, &resp); err != nil {
		return nil, err
	}
	return resp.toTokens(), nil
}

func (k *Kick) Refresh(ctx context.Context, refreshToken string) (*Tokens, error) {
	form := url.Values{}
	form.Set("client_id", k.creds.ClientID)
	form.Set("client_secret", k.creds.ClientSecret)
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)

	var resp tokenResponse
	if err := postForm(ctx, domain.PlatformKick, "refresh", k.authBase+"/oauth/token", form, &resp); err != nil {
		return nil, err
	}
	return resp.toTokens(), nil
}

func (k *Kick) Revoke(ctx context.Context, tok, typeHint string) error {
	form := url.Values{}
	form.Set("token", tok)
	if typeHint != "" {
		form.Set("token_hint_type", typeHint)
	}

	return postForm(ctx, domain.PlatformKick, "revoke", k.authBase+"/oauth/revoke", form, nil)
}

func (k *Kick) Validate(ctx context.Context, accessToken string) error {
	_, err := k.FetchProfile(ctx, accessToken)
	return err
}

func (k *Kick) FetchProfile(ctx context.Context, accessToken string) (*UserProfile, error) {
	headers := map[string]string{"Authorization": "Bearer " + accessToken}

	var resp struct {
		Data []map[string]any `json:"data"`
	}
	if err := getJSON(ctx, domain.PlatformKick, "fetch_profile", k.usersURL, headers, &resp); err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 {
		return nil, &Error{Platform: domain.PlatformKick, Kind: KindProtocol, Op: "fetch_profile", Err: fmt.Errorf("no user data returned")}
	}

	raw := resp.Data[0]
	profile := &UserProfile{
		UserID:      numericOrStringField(raw, "user_id"),
		Username:    stringField(raw, "name"),
		DisplayName: stringField(raw, "name"),
		Email:       stringField(raw, "email"),
		Raw:         raw,
	}
	if profile.UserID == "" || profile.Username == "" {
		return nil, &Error{Platform: domain.PlatformKick, Kind: KindProtocol, Op: "fetch_profile", Err: fmt.Errorf("user payload missing user_id or name")}
	}
	return profile, nil
}

// numericOrStringField tolerates Kick's numeric user IDs.
func numericOrStringField(m map[string]any, key string) string {
	switch v := m[key].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatInt(int64(v), 10)
	}
	return ""
}
