package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	apperrors "github.com/mhamrah/hamrah-auth/internal/platform/errors"
	"github.com/mhamrah/hamrah-auth/internal/services/auth/storage"
)

type fakeStore struct {
	mu       sync.Mutex
	sessions map[string]storage.Session
	pairs    map[string]storage.TokenPair
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		sessions: make(map[string]storage.Session),
		pairs:    make(map[string]storage.TokenPair),
	}
}

func (s *fakeStore) PutSession(_ context.Context, session storage.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.ID] = session
	return nil
}

func (s *fakeStore) GetSession(_ context.Context, id string) (storage.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	found, ok := s.sessions[id]
	if !ok {
		return storage.Session{}, storage.ErrNotFound
	}
	return found, nil
}

func (s *fakeStore) RevokeSession(_ context.Context, id string, revokedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	found, ok := s.sessions[id]
	if !ok || found.RevokedAt != nil {
		return storage.ErrNotFound
	}
	found.RevokedAt = &revokedAt
	s.sessions[id] = found
	return nil
}

func (s *fakeStore) RevokeUserSessions(_ context.Context, userID string, revokedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, session := range s.sessions {
		if session.UserID == userID && session.RevokedAt == nil {
			session.RevokedAt = &revokedAt
			s.sessions[id] = session
		}
	}
	return nil
}

func (s *fakeStore) DeleteExpiredSessions(_ context.Context, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, session := range s.sessions {
		if !session.ExpiresAt.After(now) {
			delete(s.sessions, id)
		}
	}
	return nil
}

func (s *fakeStore) PutTokenPair(_ context.Context, pair storage.TokenPair) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pairs[pair.ID] = pair
	return nil
}

func (s *fakeStore) GetTokenPairByAccess(_ context.Context, accessToken string) (storage.TokenPair, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, pair := range s.pairs {
		if pair.AccessToken == accessToken {
			return pair, nil
		}
	}
	return storage.TokenPair{}, storage.ErrNotFound
}

func (s *fakeStore) GetTokenPairByRefresh(_ context.Context, refreshToken string) (storage.TokenPair, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, pair := range s.pairs {
		if pair.RefreshToken == refreshToken {
			return pair, nil
		}
	}
	return storage.TokenPair{}, storage.ErrNotFound
}

func (s *fakeStore) MarkTokenPairRotated(_ context.Context, pairID string, rotatedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	pair, ok := s.pairs[pairID]
	if !ok || pair.RotatedAt != nil || pair.RevokedAt != nil {
		return storage.ErrNotFound
	}
	pair.RotatedAt = &rotatedAt
	s.pairs[pairID] = pair
	return nil
}

func (s *fakeStore) RevokeUserTokenPairs(_ context.Context, userID string, revokedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, pair := range s.pairs {
		if pair.UserID == userID && pair.RevokedAt == nil {
			pair.RevokedAt = &revokedAt
			s.pairs[id] = pair
		}
	}
	return nil
}

func (s *fakeStore) DeleteExpiredTokenPairs(_ context.Context, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, pair := range s.pairs {
		if !pair.RefreshExpiresAt.After(now) {
			delete(s.pairs, id)
		}
	}
	return nil
}

func newTestService() (*Service, *fakeStore, *time.Time) {
	store := newFakeStore()
	current := time.Now().UTC()
	svc := NewService(defaultConfig(), store, store).
		WithClock(func() time.Time { return current })
	return svc, store, &current
}

func TestCreateAndValidateSession(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	created, err := svc.CreateSession(ctx, "user-1", "web", "Mozilla/5.0")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if created.Platform != PlatformWeb {
		t.Fatalf("platform = %q, want %q", created.Platform, PlatformWeb)
	}
	if created.ExpiresAt.Sub(created.CreatedAt) != 720*time.Hour {
		t.Fatalf("unexpected session lifetime %v", created.ExpiresAt.Sub(created.CreatedAt))
	}

	validated, err := svc.ValidateSession(ctx, created.ID)
	if err != nil {
		t.Fatalf("validate session: %v", err)
	}
	if validated.UserID != "user-1" {
		t.Fatalf("user = %q, want user-1", validated.UserID)
	}
}

func TestValidateSessionUnknownPlatformDefaultsToWeb(t *testing.T) {
	svc, _, _ := newTestService()

	created, err := svc.CreateSession(context.Background(), "user-1", "smartwatch", "")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if created.Platform != PlatformWeb {
		t.Fatalf("platform = %q, want %q", created.Platform, PlatformWeb)
	}
}

func TestExpiredSessionRejected(t *testing.T) {
	svc, _, current := newTestService()
	ctx := context.Background()

	created, err := svc.CreateSession(ctx, "user-1", "web", "")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	*current = current.Add(721 * time.Hour)
	if _, err := svc.ValidateSession(ctx, created.ID); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestInvalidateSessionIsIdempotent(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	created, err := svc.CreateSession(ctx, "user-1", "web", "")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if err := svc.InvalidateSession(ctx, created.ID); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	if _, err := svc.ValidateSession(ctx, created.ID); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized after revoke, got %v", err)
	}
	// Second logout, and logout of a session that never existed.
	if err := svc.InvalidateSession(ctx, created.ID); err != nil {
		t.Fatalf("second invalidate: %v", err)
	}
	if err := svc.InvalidateSession(ctx, "never-existed"); err != nil {
		t.Fatalf("invalidate missing: %v", err)
	}
}

func TestTokenPairIssueAndValidate(t *testing.T) {
	svc, _, current := newTestService()
	ctx := context.Background()

	pair, err := svc.CreateTokenPair(ctx, "user-1", "ios", "hamrah-ios/2.1")
	if err != nil {
		t.Fatalf("create token pair: %v", err)
	}
	if pair.AccessToken == pair.RefreshToken {
		t.Fatal("access and refresh tokens must differ")
	}
	if pair.AccessExpiresAt.Sub(pair.CreatedAt) != time.Hour {
		t.Fatalf("access lifetime = %v, want 1h", pair.AccessExpiresAt.Sub(pair.CreatedAt))
	}

	validated, err := svc.ValidateAccessToken(ctx, pair.AccessToken)
	if err != nil {
		t.Fatalf("validate access token: %v", err)
	}
	if validated.UserID != "user-1" || validated.Platform != PlatformIOS {
		t.Fatalf("unexpected pair %+v", validated)
	}

	*current = current.Add(time.Hour + time.Minute)
	if _, err := svc.ValidateAccessToken(ctx, pair.AccessToken); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for expired access token, got %v", err)
	}
}

func TestRefreshRotatesPair(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	first, err := svc.CreateTokenPair(ctx, "user-1", "android", "")
	if err != nil {
		t.Fatalf("create token pair: %v", err)
	}

	second, err := svc.RefreshAccessToken(ctx, first.RefreshToken)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if second.RefreshToken == first.RefreshToken {
		t.Fatal("refresh must mint a new refresh token")
	}
	if second.Platform != PlatformAndroid {
		t.Fatalf("platform = %q, want android", second.Platform)
	}

	if _, err := svc.ValidateAccessToken(ctx, second.AccessToken); err != nil {
		t.Fatalf("validate new access token: %v", err)
	}
}

func TestRefreshReuseInsideGraceIsQuiet(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	first, err := svc.CreateTokenPair(ctx, "user-1", "ios", "")
	if err != nil {
		t.Fatalf("create token pair: %v", err)
	}
	second, err := svc.RefreshAccessToken(ctx, first.RefreshToken)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}

	// Immediate replay looks like a retry, not theft.
	if _, err := svc.RefreshAccessToken(ctx, first.RefreshToken); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized on replay, got %v", err)
	}
	if _, err := svc.ValidateAccessToken(ctx, second.AccessToken); err != nil {
		t.Fatalf("grace-window replay must not revoke the family: %v", err)
	}
}

func TestRefreshReuseRevokesFamily(t *testing.T) {
	svc, _, current := newTestService()
	ctx := context.Background()

	first, err := svc.CreateTokenPair(ctx, "user-1", "ios", "")
	if err != nil {
		t.Fatalf("create token pair: %v", err)
	}
	second, err := svc.RefreshAccessToken(ctx, first.RefreshToken)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}

	// Replaying the consumed refresh token well after rotation is a theft
	// signal.
	*current = current.Add(time.Minute)
	if _, err := svc.RefreshAccessToken(ctx, first.RefreshToken); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized on reuse, got %v", err)
	}

	// The legitimately issued pair died with the family.
	if _, err := svc.ValidateAccessToken(ctx, second.AccessToken); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected family revocation, got %v", err)
	}
	if _, err := svc.RefreshAccessToken(ctx, second.RefreshToken); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected revoked refresh to fail, got %v", err)
	}
}

func TestRefreshExpiredTokenRejected(t *testing.T) {
	svc, _, current := newTestService()
	ctx := context.Background()

	pair, err := svc.CreateTokenPair(ctx, "user-1", "ios", "")
	if err != nil {
		t.Fatalf("create token pair: %v", err)
	}

	*current = current.Add(721 * time.Hour)
	if _, err := svc.RefreshAccessToken(ctx, pair.RefreshToken); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for expired refresh, got %v", err)
	}
}

func TestConcurrentRefreshSingleWinner(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	pair, err := svc.CreateTokenPair(ctx, "user-1", "ios", "")
	if err != nil {
		t.Fatalf("create token pair: %v", err)
	}

	const attempts = 8
	var wg sync.WaitGroup
	results := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			_, results[slot] = svc.RefreshAccessToken(ctx, pair.RefreshToken)
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, err := range results {
		if err == nil {
			winners++
		} else if apperrors.GetCode(err) != apperrors.CodeUnauthorized {
			t.Fatalf("unexpected error code: %v", err)
		}
	}
	if winners != 1 {
		t.Fatalf("winners = %d, want exactly 1", winners)
	}
}

func TestRevokeAllForUser(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	session, err := svc.CreateSession(ctx, "user-1", "web", "")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	pair, err := svc.CreateTokenPair(ctx, "user-1", "ios", "")
	if err != nil {
		t.Fatalf("create token pair: %v", err)
	}
	otherSession, err := svc.CreateSession(ctx, "user-2", "web", "")
	if err != nil {
		t.Fatalf("create other session: %v", err)
	}

	if err := svc.RevokeAllForUser(ctx, "user-1"); err != nil {
		t.Fatalf("revoke all: %v", err)
	}

	if _, err := svc.ValidateSession(ctx, session.ID); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected revoked session, got %v", err)
	}
	if _, err := svc.ValidateAccessToken(ctx, pair.AccessToken); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected revoked token, got %v", err)
	}
	if _, err := svc.ValidateSession(ctx, otherSession.ID); err != nil {
		t.Fatalf("other user's session must survive: %v", err)
	}
}
