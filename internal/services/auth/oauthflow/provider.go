package oauthflow

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// providerRequestTimeout bounds every outbound provider call. Token and
// userinfo endpoints sit on the login path, so a stalled provider must fail
// the flow instead of pinning the handler.
const providerRequestTimeout = 10 * time.Second

func newProviderHTTPClient() *http.Client {
	return &http.Client{Timeout: providerRequestTimeout}
}

// Claims is the provider-neutral identity extracted from a completed flow.
type Claims struct {
	Subject       string
	Email         string
	EmailVerified bool
	Name          string
	Picture       string
}

// Token is the raw token response from a provider's token endpoint.
type Token struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	IDToken      string `json:"id_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

// Provider is one external identity provider.
type Provider interface {
	Name() string

	// AuthorizationURL builds the URL the user agent is redirected to.
	AuthorizationURL(state, codeChallenge, redirectURI string) (string, error)

	// Exchange redeems an authorization code at the provider's token
	// endpoint, proving possession of the PKCE verifier.
	Exchange(ctx context.Context, code, codeVerifier, redirectURI string) (Token, error)

	// IdentityClaims extracts the user's identity from the token response.
	// rawUser carries provider-specific sideband data, such as the profile
	// payload Apple posts on first authorization only.
	IdentityClaims(ctx context.Context, token Token, rawUser []byte) (Claims, error)
}

// idTokenClaims decodes the ID token payload without verifying its
// signature. The token was just fetched over TLS straight from the
// provider's token endpoint, so the channel vouches for it.
func idTokenClaims(idToken string) (jwt.MapClaims, error) {
	if idToken == "" {
		return nil, fmt.Errorf("token response carried no id_token")
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(idToken, claims); err != nil {
		return nil, fmt.Errorf("parse id_token: %w", err)
	}
	return claims, nil
}

func stringClaim(claims jwt.MapClaims, key string) string {
	if value, ok := claims[key].(string); ok {
		return value
	}
	return ""
}

// boolClaim tolerates providers encoding booleans as strings.
func boolClaim(claims jwt.MapClaims, key string) bool {
	switch value := claims[key].(type) {
	case bool:
		return value
	case string:
		return value == "true"
	default:
		return false
	}
}
