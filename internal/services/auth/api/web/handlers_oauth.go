package web

import (
	"net/http"
	"strings"

	apperrors "github.com/mhamrah/hamrah-auth/internal/platform/errors"
	"github.com/mhamrah/hamrah-auth/internal/services/auth/session"
)

type oauthStartResponse struct {
	AuthorizationURL string `json:"authorization_url"`
	State            string `json:"state"`
	CodeVerifier     string `json:"code_verifier"`
}

func (s *Server) handleOAuthStart(w http.ResponseWriter, r *http.Request, provider string) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	platform := session.NormalizePlatform(r.URL.Query().Get("platform"))
	redirectURI := strings.TrimSpace(r.URL.Query().Get("redirect_uri"))
	if redirectURI == "" {
		redirectURI = defaultRedirectURI(r, provider)
	}

	begin, err := s.flows.Begin(r.Context(), provider, platform, redirectURI)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	if platform == session.PlatformWeb {
		writeOAuthCookies(w, r, provider, begin.State, begin.CodeVerifier)
		http.Redirect(w, r, begin.AuthorizationURL, http.StatusFound)
		return
	}
	writeJSON(w, http.StatusOK, oauthStartResponse{
		AuthorizationURL: begin.AuthorizationURL,
		State:            begin.State,
		CodeVerifier:     begin.CodeVerifier,
	})
}

// handleOAuthCallback finishes a browser flow. Apple posts the result as a
// form, Google redirects with query parameters; both land here.
func (s *Server) handleOAuthCallback(w http.ResponseWriter, r *http.Request, provider string) {
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	params, err := callbackParams(r)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	clearOAuthCookies(w, r, provider)

	if params.providerError != "" {
		writeDomainError(w, r, apperrors.New(apperrors.CodeProviderError, "provider returned "+params.providerError))
		return
	}

	// The browser that started the flow must be the one finishing it. The
	// server-side state record alone cannot tell two browsers apart.
	if cookieState, ok := readCookie(r, stateCookieName(provider)); !ok || cookieState != params.state {
		writeDomainError(w, r, apperrors.New(apperrors.CodeStateMismatch, "state cookie missing or mismatched"))
		return
	}
	verifier, ok := readCookie(r, verifierCookieName(provider))
	if !ok {
		writeDomainError(w, r, apperrors.New(apperrors.CodeStateMismatch, "verifier cookie missing"))
		return
	}

	result, err := s.flows.Complete(r.Context(), provider, params.state, params.code, verifier, params.rawUser)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	account, err := s.resolver.Resolve(r.Context(), result.Provider, result.Claims)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	tokens, err := s.issueCredentials(w, r, account, result.Platform)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	response := authenticatedResponse{User: toUserPayload(account)}
	if tokens != nil {
		payload := toTokenPayload(*tokens)
		response.Tokens = &payload
	}
	writeJSON(w, http.StatusOK, response)
}

type oauthExchangeRequest struct {
	State        string `json:"state"`
	Code         string `json:"code"`
	CodeVerifier string `json:"code_verifier"`
	User         string `json:"user"`
}

// handleOAuthExchange finishes a native-client flow: the app caught the
// redirect itself and posts back the code along with the verifier it was
// issued at start.
func (s *Server) handleOAuthExchange(w http.ResponseWriter, r *http.Request, provider string) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var request oauthExchangeRequest
	if err := decodeJSONBody(r, &request); err != nil {
		writeDomainError(w, r, err)
		return
	}

	result, err := s.flows.Complete(r.Context(), provider, request.State, request.Code, request.CodeVerifier, []byte(request.User))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	account, err := s.resolver.Resolve(r.Context(), result.Provider, result.Claims)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	tokens, err := s.issueCredentials(w, r, account, result.Platform)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	response := authenticatedResponse{User: toUserPayload(account)}
	if tokens != nil {
		payload := toTokenPayload(*tokens)
		response.Tokens = &payload
	}
	writeJSON(w, http.StatusOK, response)
}

type oauthCallbackParams struct {
	state         string
	code          string
	providerError string
	rawUser       []byte
}

func callbackParams(r *http.Request) (oauthCallbackParams, error) {
	if r.Method == http.MethodPost {
		if err := r.ParseForm(); err != nil {
			return oauthCallbackParams{}, apperrors.Wrap(apperrors.CodeInvalidRequest, "parse callback form", err)
		}
		return oauthCallbackParams{
			state:         r.PostFormValue("state"),
			code:          r.PostFormValue("code"),
			providerError: r.PostFormValue("error"),
			rawUser:       []byte(r.PostFormValue("user")),
		}, nil
	}
	query := r.URL.Query()
	return oauthCallbackParams{
		state:         query.Get("state"),
		code:          query.Get("code"),
		providerError: query.Get("error"),
		rawUser:       []byte(query.Get("user")),
	}, nil
}

func defaultRedirectURI(r *http.Request, provider string) string {
	scheme := "http"
	if isHTTPS(r) {
		scheme = "https"
	}
	return scheme + "://" + r.Host + "/oauth/" + provider + "/callback"
}
