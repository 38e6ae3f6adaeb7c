package oauthflow

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

const (
	googleAuthorizeURL = "https://accounts.google.com/o/oauth2/v2/auth"
	googleTokenURL     = "https://oauth2.googleapis.com/token"
	googleUserinfoURL  = "https://openidconnect.googleapis.com/v1/userinfo"
)

// GoogleProvider implements the Google OpenID Connect flow.
type GoogleProvider struct {
	clientID     string
	clientSecret string
	authorizeURL string
	tokenURL     string
	userinfoURL  string
	httpClient   *http.Client
}

// NewGoogleProvider builds a Google provider with production endpoints.
func NewGoogleProvider(clientID, clientSecret string) *GoogleProvider {
	return &GoogleProvider{
		clientID:     clientID,
		clientSecret: clientSecret,
		authorizeURL: googleAuthorizeURL,
		tokenURL:     googleTokenURL,
		userinfoURL:  googleUserinfoURL,
		httpClient:   newProviderHTTPClient(),
	}
}

// WithEndpoints overrides the provider endpoints. Test seam.
func (p *GoogleProvider) WithEndpoints(authorizeURL, tokenURL string, client *http.Client) *GoogleProvider {
	p.authorizeURL = authorizeURL
	p.tokenURL = tokenURL
	if client != nil {
		p.httpClient = client
	}
	return p
}

// WithUserinfoURL overrides the userinfo endpoint. Test seam.
func (p *GoogleProvider) WithUserinfoURL(userinfoURL string) *GoogleProvider {
	p.userinfoURL = userinfoURL
	return p
}

func (p *GoogleProvider) Name() string { return "google" }

func (p *GoogleProvider) AuthorizationURL(state, codeChallenge, redirectURI string) (string, error) {
	authorize, err := url.Parse(p.authorizeURL)
	if err != nil {
		return "", fmt.Errorf("invalid authorize url: %w", err)
	}
	q := authorize.Query()
	q.Set("response_type", "code")
	q.Set("client_id", p.clientID)
	q.Set("redirect_uri", redirectURI)
	q.Set("scope", "openid email profile")
	q.Set("state", state)
	q.Set("code_challenge", codeChallenge)
	q.Set("code_challenge_method", "S256")
	authorize.RawQuery = q.Encode()
	return authorize.String(), nil
}

func (p *GoogleProvider) Exchange(ctx context.Context, code, codeVerifier, redirectURI string) (Token, error) {
	form := url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"redirect_uri":  {redirectURI},
		"code_verifier": {codeVerifier},
		"client_id":     {p.clientID},
		"client_secret": {p.clientSecret},
	}
	return postTokenForm(ctx, p.httpClient, p.tokenURL, form)
}

func (p *GoogleProvider) IdentityClaims(ctx context.Context, token Token, _ []byte) (Claims, error) {
	if token.IDToken == "" {
		return p.userinfoClaims(ctx, token.AccessToken)
	}
	claims, err := idTokenClaims(token.IDToken)
	if err != nil {
		return Claims{}, err
	}
	identity := Claims{
		Subject:       stringClaim(claims, "sub"),
		Email:         stringClaim(claims, "email"),
		EmailVerified: boolClaim(claims, "email_verified"),
		Name:          stringClaim(claims, "name"),
		Picture:       stringClaim(claims, "picture"),
	}
	if identity.Subject == "" {
		return Claims{}, fmt.Errorf("id_token carried no subject")
	}
	return identity, nil
}

// userinfoClaims covers token responses without an id_token.
func (p *GoogleProvider) userinfoClaims(ctx context.Context, accessToken string) (Claims, error) {
	if accessToken == "" {
		return Claims{}, fmt.Errorf("token response carried no identity")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.userinfoURL, nil)
	if err != nil {
		return Claims{}, fmt.Errorf("build userinfo request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return Claims{}, fmt.Errorf("fetch userinfo: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return Claims{}, fmt.Errorf("userinfo endpoint returned %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	var payload struct {
		Sub           string `json:"sub"`
		Email         string `json:"email"`
		EmailVerified bool   `json:"email_verified"`
		Name          string `json:"name"`
		Picture       string `json:"picture"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return Claims{}, fmt.Errorf("decode userinfo response: %w", err)
	}
	if payload.Sub == "" {
		return Claims{}, fmt.Errorf("userinfo carried no subject")
	}
	return Claims{
		Subject:       payload.Sub,
		Email:         payload.Email,
		EmailVerified: payload.EmailVerified,
		Name:          payload.Name,
		Picture:       payload.Picture,
	}, nil
}

func postTokenForm(ctx context.Context, client *http.Client, tokenURL string, form url.Values) (Token, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return Token{}, fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := client.Do(req)
	if err != nil {
		return Token{}, fmt.Errorf("token exchange: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return Token{}, fmt.Errorf("token endpoint returned %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	var token Token
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		return Token{}, fmt.Errorf("decode token response: %w", err)
	}
	if token.AccessToken == "" && token.IDToken == "" {
		return Token{}, fmt.Errorf("token response carried no tokens")
	}
	return token, nil
}
