package oauthflow

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

const (
	appleAuthorizeURL = "https://appleid.apple.com/auth/authorize"
	appleTokenURL     = "https://appleid.apple.com/auth/token"
)

// AppleProvider implements Sign in with Apple.
//
// Apple only discloses the user's name in a sideband payload on the very
// first authorization, never inside the ID token, so IdentityClaims folds
// that payload in when present.
type AppleProvider struct {
	clientID     string
	clientSecret string
	authorizeURL string
	tokenURL     string
	httpClient   *http.Client
}

// NewAppleProvider builds an Apple provider with production endpoints.
// clientSecret is the pre-signed JWT Apple requires in place of a static
// secret.
func NewAppleProvider(clientID, clientSecret string) *AppleProvider {
	return &AppleProvider{
		clientID:     clientID,
		clientSecret: clientSecret,
		authorizeURL: appleAuthorizeURL,
		tokenURL:     appleTokenURL,
		httpClient:   newProviderHTTPClient(),
	}
}

// WithEndpoints overrides the provider endpoints. Test seam.
func (p *AppleProvider) WithEndpoints(authorizeURL, tokenURL string, client *http.Client) *AppleProvider {
	p.authorizeURL = authorizeURL
	p.tokenURL = tokenURL
	if client != nil {
		p.httpClient = client
	}
	return p
}

func (p *AppleProvider) Name() string { return "apple" }

func (p *AppleProvider) AuthorizationURL(state, codeChallenge, redirectURI string) (string, error) {
	authorize, err := url.Parse(p.authorizeURL)
	if err != nil {
		return "", fmt.Errorf("invalid authorize url: %w", err)
	}
	q := authorize.Query()
	q.Set("response_type", "code")
	q.Set("client_id", p.clientID)
	q.Set("redirect_uri", redirectURI)
	q.Set("scope", "name email")
	// Requesting name or email forces form_post: the callback arrives as an
	// HTTP POST instead of a GET redirect.
	q.Set("response_mode", "form_post")
	q.Set("state", state)
	q.Set("code_challenge", codeChallenge)
	q.Set("code_challenge_method", "S256")
	authorize.RawQuery = q.Encode()
	return authorize.String(), nil
}

func (p *AppleProvider) Exchange(ctx context.Context, code, codeVerifier, redirectURI string) (Token, error) {
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

// appleUserPayload is the shape of the one-time user JSON Apple posts
// alongside the first authorization callback.
type appleUserPayload struct {
	Name struct {
		FirstName string `json:"firstName"`
		LastName  string `json:"lastName"`
	} `json:"name"`
	Email string `json:"email"`
}

func (p *AppleProvider) IdentityClaims(_ context.Context, token Token, rawUser []byte) (Claims, error) {
	claims, err := idTokenClaims(token.IDToken)
	if err != nil {
		return Claims{}, err
	}
	identity := Claims{
		Subject:       stringClaim(claims, "sub"),
		Email:         stringClaim(claims, "email"),
		EmailVerified: boolClaim(claims, "email_verified"),
	}
	if identity.Subject == "" {
		return Claims{}, fmt.Errorf("id_token carried no subject")
	}

	if len(rawUser) > 0 {
		var payload appleUserPayload
		// The payload is best effort: a malformed one loses the name, not
		// the login.
		if err := json.Unmarshal(rawUser, &payload); err == nil {
			name := strings.TrimSpace(strings.TrimSpace(payload.Name.FirstName) + " " + strings.TrimSpace(payload.Name.LastName))
			if name != "" {
				identity.Name = name
			}
			if identity.Email == "" && payload.Email != "" {
				identity.Email = payload.Email
			}
		}
	}
	return identity, nil
}
