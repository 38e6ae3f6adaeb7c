package web

import (
	"net/http"
	"strings"

	apperrors "github.com/mhamrah/hamrah-auth/internal/platform/errors"
	"github.com/mhamrah/hamrah-auth/internal/services/auth/session"
	"github.com/mhamrah/hamrah-auth/internal/services/auth/storage"
	"github.com/mhamrah/hamrah-auth/internal/services/auth/user"
)

// currentUser resolves the caller from a bearer access token or the session
// cookie. Bearer wins when both are present.
func (s *Server) currentUser(r *http.Request) (user.User, error) {
	userID, err := s.currentUserID(r)
	if err != nil {
		return user.User{}, err
	}
	account, err := s.users.GetUser(r.Context(), userID)
	if err != nil {
		// The session outlived its user. Treat it as unauthenticated
		// rather than leaking that the account existed.
		if apperrors.GetCode(err) == apperrors.CodeNotFound {
			return user.User{}, session.ErrUnauthorized
		}
		return user.User{}, apperrors.Wrap(apperrors.CodeInternal, "load current user", err)
	}
	return account, nil
}

func (s *Server) currentUserID(r *http.Request) (string, error) {
	if token := bearerToken(r); token != "" {
		pair, err := s.sessions.ValidateAccessToken(r.Context(), token)
		if err != nil {
			return "", err
		}
		return pair.UserID, nil
	}
	if value, ok := readCookie(r, SessionCookieName); ok {
		record, err := s.sessions.ValidateSession(r.Context(), value)
		if err != nil {
			return "", err
		}
		return record.UserID, nil
	}
	return "", session.ErrUnauthorized
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return ""
	}
	return strings.TrimSpace(token)
}

// issueCredentials hands the fresh login its platform-appropriate proof:
// a cookie for web, a token pair for native clients.
func (s *Server) issueCredentials(w http.ResponseWriter, r *http.Request, account user.User, platform string) (*storage.TokenPair, error) {
	platform = session.NormalizePlatform(platform)
	userAgent := r.UserAgent()
	if platform == session.PlatformWeb {
		record, err := s.sessions.CreateSession(r.Context(), account.ID, platform, userAgent)
		if err != nil {
			return nil, err
		}
		writeSessionCookie(w, r, record.ID)
		return nil, nil
	}
	pair, err := s.sessions.CreateTokenPair(r.Context(), account.ID, platform, userAgent)
	if err != nil {
		return nil, err
	}
	return &pair, nil
}
