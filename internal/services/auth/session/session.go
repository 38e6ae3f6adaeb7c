package session

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	apperrors "github.com/mhamrah/hamrah-auth/internal/platform/errors"
	"github.com/mhamrah/hamrah-auth/internal/platform/id"
	"github.com/mhamrah/hamrah-auth/internal/services/auth/storage"
)

// ErrUnauthorized covers every invalid-credential outcome: absent, expired,
// revoked, and rotated all read the same to a caller.
var ErrUnauthorized = apperrors.New(apperrors.CodeUnauthorized, "credential invalid or expired")

// Service issues and validates sessions and token pairs.
type Service struct {
	config      Config
	sessions    storage.SessionStore
	tokens      storage.TokenStore
	clock       func() time.Time
	idGenerator func() (string, error)
}

// NewService builds a session service over the given stores.
func NewService(cfg Config, sessions storage.SessionStore, tokens storage.TokenStore) *Service {
	return &Service{
		config:      cfg,
		sessions:    sessions,
		tokens:      tokens,
		clock:       time.Now,
		idGenerator: id.NewID,
	}
}

// WithClock overrides the service clock. Test seam.
func (s *Service) WithClock(clock func() time.Time) *Service {
	s.clock = clock
	return s
}

// CreateSession mints a durable web session. The returned session id doubles
// as the cookie value.
func (s *Service) CreateSession(ctx context.Context, userID, platform, userAgent string) (storage.Session, error) {
	token, err := newToken()
	if err != nil {
		return storage.Session{}, apperrors.Wrap(apperrors.CodeInternal, "generate session token", err)
	}
	now := s.clock().UTC()
	session := storage.Session{
		ID:        token,
		UserID:    userID,
		Platform:  NormalizePlatform(platform),
		UserAgent: userAgent,
		CreatedAt: now,
		ExpiresAt: now.Add(s.config.SessionTTL),
	}
	if err := s.sessions.PutSession(ctx, session); err != nil {
		return storage.Session{}, apperrors.Wrap(apperrors.CodeInternal, "persist session", err)
	}
	return session, nil
}

// ValidateSession resolves a session id to a live session.
func (s *Service) ValidateSession(ctx context.Context, sessionID string) (storage.Session, error) {
	found, err := s.sessions.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return storage.Session{}, ErrUnauthorized
		}
		return storage.Session{}, apperrors.Wrap(apperrors.CodeInternal, "load session", err)
	}
	if found.RevokedAt != nil || !found.ExpiresAt.After(s.clock().UTC()) {
		return storage.Session{}, ErrUnauthorized
	}
	return found, nil
}

// InvalidateSession revokes one session. Revoking a session that is already
// gone is not an error; logout is idempotent.
func (s *Service) InvalidateSession(ctx context.Context, sessionID string) error {
	err := s.sessions.RevokeSession(ctx, sessionID, s.clock().UTC())
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return apperrors.Wrap(apperrors.CodeInternal, "revoke session", err)
	}
	return nil
}

// RevokeAllForUser kills every live session and token pair the user has.
func (s *Service) RevokeAllForUser(ctx context.Context, userID string) error {
	now := s.clock().UTC()
	if err := s.sessions.RevokeUserSessions(ctx, userID, now); err != nil {
		return apperrors.Wrap(apperrors.CodeInternal, "revoke user sessions", err)
	}
	if err := s.tokens.RevokeUserTokenPairs(ctx, userID, now); err != nil {
		return apperrors.Wrap(apperrors.CodeInternal, "revoke user token pairs", err)
	}
	return nil
}

// CreateTokenPair mints an access/refresh pair for a mobile or API client.
func (s *Service) CreateTokenPair(ctx context.Context, userID, platform, userAgent string) (storage.TokenPair, error) {
	pairID, err := s.idGenerator()
	if err != nil {
		return storage.TokenPair{}, apperrors.Wrap(apperrors.CodeInternal, "generate pair id", err)
	}
	accessToken, err := newToken()
	if err != nil {
		return storage.TokenPair{}, apperrors.Wrap(apperrors.CodeInternal, "generate access token", err)
	}
	refreshToken, err := newToken()
	if err != nil {
		return storage.TokenPair{}, apperrors.Wrap(apperrors.CodeInternal, "generate refresh token", err)
	}

	now := s.clock().UTC()
	pair := storage.TokenPair{
		ID:               pairID,
		UserID:           userID,
		Platform:         NormalizePlatform(platform),
		UserAgent:        userAgent,
		AccessToken:      accessToken,
		AccessExpiresAt:  now.Add(s.config.AccessTokenTTL),
		RefreshToken:     refreshToken,
		RefreshExpiresAt: now.Add(s.config.RefreshTokenTTL),
		CreatedAt:        now,
	}
	if err := s.tokens.PutTokenPair(ctx, pair); err != nil {
		return storage.TokenPair{}, apperrors.Wrap(apperrors.CodeInternal, "persist token pair", err)
	}
	return pair, nil
}

// RefreshAccessToken redeems a refresh token for a fresh pair.
//
// The old pair is marked rotated through a conditional update, so two
// concurrent redemptions of the same token produce exactly one new pair.
// Presenting a token that was already rotated is treated as theft: every
// pair the user holds is revoked.
func (s *Service) RefreshAccessToken(ctx context.Context, refreshToken string) (storage.TokenPair, error) {
	pair, err := s.tokens.GetTokenPairByRefresh(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return storage.TokenPair{}, ErrUnauthorized
		}
		return storage.TokenPair{}, apperrors.Wrap(apperrors.CodeInternal, "load token pair", err)
	}

	now := s.clock().UTC()
	switch {
	case pair.RevokedAt != nil:
		return storage.TokenPair{}, ErrUnauthorized
	case pair.RotatedAt != nil:
		// Reuse of a rotated refresh token. Inside the grace window this
		// is a benign double-submit; past it, someone holds a stolen copy
		// and the whole family dies.
		if now.Sub(*pair.RotatedAt) > s.config.ReuseGracePeriod {
			if revokeErr := s.tokens.RevokeUserTokenPairs(ctx, pair.UserID, now); revokeErr != nil {
				return storage.TokenPair{}, apperrors.Wrap(apperrors.CodeInternal, "revoke user token pairs", revokeErr)
			}
		}
		return storage.TokenPair{}, ErrUnauthorized
	case !pair.RefreshExpiresAt.After(now):
		return storage.TokenPair{}, ErrUnauthorized
	}

	if err := s.tokens.MarkTokenPairRotated(ctx, pair.ID, now); err != nil {
		// Lost the rotation race: another request already redeemed this
		// token.
		if errors.Is(err, storage.ErrNotFound) {
			return storage.TokenPair{}, ErrUnauthorized
		}
		return storage.TokenPair{}, apperrors.Wrap(apperrors.CodeInternal, "rotate token pair", err)
	}

	return s.CreateTokenPair(ctx, pair.UserID, pair.Platform, pair.UserAgent)
}

// ValidateAccessToken resolves a bearer access token to its live pair. A
// rotated pair's access token stays valid until its own expiry; rotation
// retires the refresh token, not in-flight requests.
func (s *Service) ValidateAccessToken(ctx context.Context, accessToken string) (storage.TokenPair, error) {
	pair, err := s.tokens.GetTokenPairByAccess(ctx, accessToken)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return storage.TokenPair{}, ErrUnauthorized
		}
		return storage.TokenPair{}, apperrors.Wrap(apperrors.CodeInternal, "load token pair", err)
	}
	if pair.RevokedAt != nil || !pair.AccessExpiresAt.After(s.clock().UTC()) {
		return storage.TokenPair{}, ErrUnauthorized
	}
	return pair, nil
}

// DeleteExpired sweeps sessions and token pairs past their lifetimes.
func (s *Service) DeleteExpired(ctx context.Context) error {
	now := s.clock().UTC()
	if err := s.sessions.DeleteExpiredSessions(ctx, now); err != nil {
		return fmt.Errorf("sweep sessions: %w", err)
	}
	if err := s.tokens.DeleteExpiredTokenPairs(ctx, now); err != nil {
		return fmt.Errorf("sweep token pairs: %w", err)
	}
	return nil
}

// newToken returns a 256-bit random bearer secret.
func newToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
