package web

import (
	"net/http"
	"strings"
	"time"
)

// SessionCookieName is the canonical web session cookie.
const SessionCookieName = "session"

// oauthCookieTTL bounds how long a browser may sit on an authorization
// redirect before the callback stops trusting it.
const oauthCookieTTL = 10 * time.Minute

func isHTTPS(r *http.Request) bool {
	if r == nil {
		return false
	}
	if r.TLS != nil {
		return true
	}
	return strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
}

func readCookie(r *http.Request, name string) (string, bool) {
	cookie, err := r.Cookie(name)
	if err != nil || cookie == nil {
		return "", false
	}
	value := strings.TrimSpace(cookie.Value)
	if value == "" {
		return "", false
	}
	return value, true
}

func writeSessionCookie(w http.ResponseWriter, r *http.Request, sessionID string) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    strings.TrimSpace(sessionID),
		Path:     "/",
		HttpOnly: true,
		Secure:   isHTTPS(r),
		SameSite: http.SameSiteLaxMode,
	})
}

func clearSessionCookie(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   isHTTPS(r),
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
}

func stateCookieName(provider string) string {
	return provider + "_oauth_state"
}

func verifierCookieName(provider string) string {
	return provider + "_oauth_code_verifier"
}

func writeOAuthCookies(w http.ResponseWriter, r *http.Request, provider, state, verifier string) {
	// Apple delivers its callback as a cross-site form post, which Lax
	// cookies would not accompany. None requires Secure, so plain-HTTP dev
	// setups fall back to Lax.
	sameSite := http.SameSiteLaxMode
	if isHTTPS(r) {
		sameSite = http.SameSiteNoneMode
	}
	for name, value := range map[string]string{
		stateCookieName(provider):    state,
		verifierCookieName(provider): verifier,
	} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    value,
			Path:     "/",
			HttpOnly: true,
			Secure:   isHTTPS(r),
			SameSite: sameSite,
			MaxAge:   int(oauthCookieTTL / time.Second),
		})
	}
}

func clearOAuthCookies(w http.ResponseWriter, r *http.Request, provider string) {
	for _, name := range []string{stateCookieName(provider), verifierCookieName(provider)} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			HttpOnly: true,
			Secure:   isHTTPS(r),
			SameSite: http.SameSiteLaxMode,
			MaxAge:   -1,
		})
	}
}
