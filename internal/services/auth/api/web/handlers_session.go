package web

import (
	"net/http"
)

type tokenRefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func (s *Server) handleTokenRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var request tokenRefreshRequest
	if err := decodeJSONBody(r, &request); err != nil {
		writeDomainError(w, r, err)
		return
	}

	pair, err := s.sessions.RefreshAccessToken(r.Context(), request.RefreshToken)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTokenPayload(pair))
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	account, err := s.currentUser(r)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserPayload(account))
}

// handleLogout revokes the caller's session. Logging out twice is fine.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if value, ok := readCookie(r, SessionCookieName); ok {
		if err := s.sessions.InvalidateSession(r.Context(), value); err != nil {
			writeDomainError(w, r, err)
			return
		}
	}
	clearSessionCookie(w, r)
	w.WriteHeader(http.StatusNoContent)
}
