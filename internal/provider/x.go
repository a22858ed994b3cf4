package provider

import (
	"context"
	"fmt"
	"net/url"

	"github.com/KickTools/ape-server/internal/config"
	"github.com/KickTools/ape-server/internal/domain"
)

const (
	xAuthorizeURL = "https://twitter.com/i/oauth2/authorize"
	xTokenURL     = "https://api.twitter.com/2/oauth2/token"
	xRevokeURL    = "https://api.twitter.com/2/oauth2/revoke"
	xMeURL        = "https://api.twitter.com/2/users/me"
	xScopes       = "tweet.read users.read offline.access"
	xUserFields   = "id,username,name,profile_image_url,created_at,description,public_metrics"
)

// X implements Client against the X (Twitter) v2 OAuth endpoints. PKCE is
// mandatory; liveness is proven via /2/users/me since no introspection
// endpoint exists.
type X struct {
	creds        config.ProviderCredentials
	authorizeURL string
	tokenURL     string
	revokeURL    string
	meURL        string
}

func NewX(creds config.ProviderCredentials) *X {
	return &X{
		creds:        creds,
		authorizeURL: xAuthorizeURL,
		tokenURL:     xTokenURL,
		revokeURL:    xRevokeURL,
		meURL:        xMeURL,
	}
}

func (x *X) Platform() domain.Platform { return domain.PlatformX }

func (x *X) AuthorizationURL(state string) (AuthRequest, error) {
	verifier, challenge, err := GeneratePKCE()
	if err != nil {
		return AuthRequest{}, err
	}

	params := url.Values{}
	params.Set("response_type", "code")
	params.Set("client_id", x.creds.ClientID)
	params.Set("redirect_uri", x.creds.RedirectURI)
	params.Set("scope", xScopes)
	params.Set("state", state)
	params.Set("code_challenge", challenge)
	params.Set("code_challenge_method", "S256")

	return AuthRequest{
		URL:          x.authorizeURL + "?" + params.Encode(),
		CodeVerifier: verifier,
	}, nil
}

func (x *X) Exchange(ctx context.Context, code, codeVerifier string) (*Tokens, error) {
	if codeVerifier == "" {
		return nil, &Error{Platform: domain.PlatformX, Kind: KindProtocol, Op: "exchange", Err: fmt.Errorf("code verifier is required")}
	}

	form := url.Values{}
	form.Set("code", code)
	form.Set("grant_type", "authorization_code")
	form.Set("client_id", x.creds.ClientID)
	form.Set("client_secret", x.creds.ClientSecret)
	form.Set("redirect_uri", x.creds.RedirectURI)
	form.Set("code_verifier", codeVerifier)

	var resp tokenResponse
	if err := postForm(ctx, domain.PlatformX, "exchange", x.tokenURL, form, &resp); err != nil {
		return nil, err
	}
	return resp.toTokens(), nil
}

func (x *X) Refresh(ctx context.Context, refreshToken string) (*Tokens, error) {
	form := url.Values{}
	form.Set("refresh_token", refreshToken)
	form.Set("grant_type", "refresh_token")
	form.Set("client_id", x.creds.ClientID)
	form.Set("client_secret", x.creds.ClientSecret)

	var resp tokenResponse
	if err := postForm(ctx, domain.PlatformX, "refresh", x.tokenURL, form, &resp); err != nil {
		return nil, err
	}
	return resp.toTokens(), nil
}

func (x *X) Revoke(ctx context.Context, tok, typeHint string) error {
	form := url.Values{}
	form.Set("token", tok)
	form.Set("client_id", x.creds.ClientID)
	if typeHint != "" {
		form.Set("token_type_hint", typeHint)
	}

	return postForm(ctx, domain.PlatformX, "revoke", x.revokeURL, form, nil)
}

func (x *X) Validate(ctx context.Context, accessToken string) error {
	_, err := x.FetchProfile(ctx, accessToken)
	return err
}

func (x *X) FetchProfile(ctx context.Context, accessToken string) (*UserProfile, error) {
	headers := map[string]string{"Authorization": "Bearer " + accessToken}

	var resp struct {
		Data map[string]any `json:"data"`
	}
	endpoint := x.meURL + "?user.fields=" + url.QueryEscape(xUserFields)
	if err := getJSON(ctx, domain.PlatformX, "fetch_profile", endpoint, headers, &resp); err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 {
		return nil, &Error{Platform: domain.PlatformX, Kind: KindProtocol, Op: "fetch_profile", Err: fmt.Errorf("no user data returned")}
	}

	profile := &UserProfile{
		UserID:      stringField(resp.Data, "id"),
		Username:    stringField(resp.Data, "username"),
		DisplayName: stringField(resp.Data, "name"),
		Raw:         resp.Data,
	}
	if profile.DisplayName == "" {
		profile.DisplayName = profile.Username
	}
	if profile.UserID == "" || profile.Username == "" {
		return nil, &Error{Platform: domain.PlatformX, Kind: KindProtocol, Op: "fetch_profile", Err: fmt.Errorf("user payload missing id or username")}
	}
	return profile, nil
}
