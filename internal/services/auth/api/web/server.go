// Package web exposes the client-facing JSON endpoints: passkey ceremonies,
// OAuth sign-in, token refresh, and session management.
//
// Web clients carry a session cookie; native clients carry bearer tokens.
// Both resolve to the same user records underneath.
package web

import (
	"net/http"
	"strings"
	"time"

	"github.com/mhamrah/hamrah-auth/internal/services/auth/ceremony"
	"github.com/mhamrah/hamrah-auth/internal/services/auth/identity"
	"github.com/mhamrah/hamrah-auth/internal/services/auth/oauthflow"
	"github.com/mhamrah/hamrah-auth/internal/services/auth/session"
	"github.com/mhamrah/hamrah-auth/internal/services/auth/storage"
)

// Server hosts the auth HTTP endpoints.
type Server struct {
	ceremonies *ceremony.Manager
	flows      *oauthflow.Manager
	resolver   *identity.Resolver
	sessions   *session.Service
	users      storage.UserStore
	clock      func() time.Time
}

// NewServer builds an HTTP server over the auth components.
func NewServer(
	ceremonies *ceremony.Manager,
	flows *oauthflow.Manager,
	resolver *identity.Resolver,
	sessions *session.Service,
	users storage.UserStore,
) *Server {
	return &Server{
		ceremonies: ceremonies,
		flows:      flows,
		resolver:   resolver,
		sessions:   sessions,
		users:      users,
		clock:      time.Now,
	}
}

// WithClock overrides the server clock. Test seam.
func (s *Server) WithClock(clock func() time.Time) *Server {
	s.clock = clock
	return s
}

// RegisterRoutes registers the auth endpoints on the provided mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	if mux == nil {
		return
	}
	mux.HandleFunc("/webauthn/", s.handleWebAuthnRoutes)
	mux.HandleFunc("/oauth/", s.handleOAuthRoutes)
	mux.HandleFunc("/tokens/refresh", s.handleTokenRefresh)
	mux.HandleFunc("/me", s.handleMe)
	mux.HandleFunc("/logout", s.handleLogout)
	mux.HandleFunc("/up", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
}

func (s *Server) handleWebAuthnRoutes(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/webauthn/")
	switch path {
	case "register/begin":
		s.handleRegisterBegin(w, r)
	case "register/complete":
		s.handleRegisterComplete(w, r)
	case "login/begin":
		s.handleLoginBegin(w, r)
	case "login/complete":
		s.handleLoginComplete(w, r)
	case "credentials":
		s.handleCredentialList(w, r)
	default:
		if credentialID, ok := strings.CutPrefix(path, "credentials/"); ok && credentialID != "" {
			s.handleCredentialItem(w, r, credentialID)
			return
		}
		http.NotFound(w, r)
	}
}

func (s *Server) handleOAuthRoutes(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/oauth/")
	parts := strings.Split(path, "/")
	if len(parts) != 2 {
		http.NotFound(w, r)
		return
	}
	provider := parts[0]
	switch parts[1] {
	case "start":
		s.handleOAuthStart(w, r, provider)
	case "callback":
		s.handleOAuthCallback(w, r, provider)
	case "exchange":
		s.handleOAuthExchange(w, r, provider)
	default:
		http.NotFound(w, r)
	}
}
