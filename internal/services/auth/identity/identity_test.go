package identity

import (
	"context"
	"fmt"
	"testing"
	"time"

	apperrors "github.com/mhamrah/hamrah-auth/internal/platform/errors"
	"github.com/mhamrah/hamrah-auth/internal/services/auth/oauthflow"
	"github.com/mhamrah/hamrah-auth/internal/services/auth/storage"
	"github.com/mhamrah/hamrah-auth/internal/services/auth/user"
)

type fakeStore struct {
	users      map[string]user.User
	identities map[string]storage.Identity
	putUser    func(user.User) error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:      make(map[string]user.User),
		identities: make(map[string]storage.Identity),
	}
}

func (f *fakeStore) PutUser(_ context.Context, u user.User) error {
	if f.putUser != nil {
		if err := f.putUser(u); err != nil {
			return err
		}
	}
	for _, existing := range f.users {
		if existing.Email == u.Email && existing.ID != u.ID {
			return storage.ErrEmailTaken
		}
	}
	f.users[u.ID] = u
	return nil
}

func (f *fakeStore) GetUser(_ context.Context, userID string) (user.User, error) {
	u, ok := f.users[userID]
	if !ok {
		return user.User{}, storage.ErrNotFound
	}
	return u, nil
}

func (f *fakeStore) GetUserByEmail(_ context.Context, email string) (user.User, error) {
	for _, u := range f.users {
		if u.Email == email {
			return u, nil
		}
	}
	return user.User{}, storage.ErrNotFound
}

func (f *fakeStore) PutIdentity(_ context.Context, identity storage.Identity) error {
	f.identities[identity.Provider+"/"+identity.Subject] = identity
	return nil
}

func (f *fakeStore) GetIdentity(_ context.Context, provider, subject string) (storage.Identity, error) {
	identity, ok := f.identities[provider+"/"+subject]
	if !ok {
		return storage.Identity{}, storage.ErrNotFound
	}
	return identity, nil
}

func (f *fakeStore) ListIdentities(_ context.Context, userID string) ([]storage.Identity, error) {
	var out []storage.Identity
	for _, identity := range f.identities {
		if identity.UserID == userID {
			out = append(out, identity)
		}
	}
	return out, nil
}

func newTestResolver(store *fakeStore) *Resolver {
	var sequence int
	return NewResolver(store, store).
		WithClock(func() time.Time {
			return time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
		}).
		WithIDGenerator(func() (string, error) {
			sequence++
			return fmt.Sprintf("id-%d", sequence), nil
		})
}

func googleClaims() oauthflow.Claims {
	return oauthflow.Claims{
		Subject:       "google-sub-1",
		Email:         "Ana@Example.com",
		EmailVerified: true,
		Name:          "Ana",
		Picture:       "https://example.com/ana.png",
	}
}

func TestResolveCreatesUserOnFirstLogin(t *testing.T) {
	store := newFakeStore()
	resolver := newTestResolver(store)

	account, err := resolver.Resolve(context.Background(), "google", googleClaims())
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if account.Email != "ana@example.com" {
		t.Errorf("Email = %q, want normalized %q", account.Email, "ana@example.com")
	}
	if account.Name != "Ana" {
		t.Errorf("Name = %q, want %q", account.Name, "Ana")
	}
	if len(store.identities) != 1 {
		t.Fatalf("stored %d identities, want 1", len(store.identities))
	}
	identity, err := store.GetIdentity(context.Background(), "google", "google-sub-1")
	if err != nil {
		t.Fatalf("GetIdentity() error = %v", err)
	}
	if identity.UserID != account.ID {
		t.Errorf("identity.UserID = %q, want %q", identity.UserID, account.ID)
	}
}

func TestResolveIsIdempotent(t *testing.T) {
	store := newFakeStore()
	resolver := newTestResolver(store)

	first, err := resolver.Resolve(context.Background(), "google", googleClaims())
	if err != nil {
		t.Fatalf("first Resolve() error = %v", err)
	}
	second, err := resolver.Resolve(context.Background(), "google", googleClaims())
	if err != nil {
		t.Fatalf("second Resolve() error = %v", err)
	}
	if first.ID != second.ID {
		t.Errorf("second Resolve() user = %q, want %q", second.ID, first.ID)
	}
	if len(store.users) != 1 {
		t.Errorf("stored %d users, want 1", len(store.users))
	}
	if len(store.identities) != 1 {
		t.Errorf("stored %d identities, want 1", len(store.identities))
	}
}

func TestResolveLinksSecondProviderByEmail(t *testing.T) {
	store := newFakeStore()
	resolver := newTestResolver(store)

	googleUser, err := resolver.Resolve(context.Background(), "google", googleClaims())
	if err != nil {
		t.Fatalf("google Resolve() error = %v", err)
	}

	appleUser, err := resolver.Resolve(context.Background(), "apple", oauthflow.Claims{
		Subject:       "apple-sub-9",
		Email:         "ana@example.com",
		EmailVerified: true,
	})
	if err != nil {
		t.Fatalf("apple Resolve() error = %v", err)
	}
	if appleUser.ID != googleUser.ID {
		t.Errorf("apple login resolved to user %q, want existing %q", appleUser.ID, googleUser.ID)
	}
	if len(store.users) != 1 {
		t.Errorf("stored %d users, want 1", len(store.users))
	}
	if len(store.identities) != 2 {
		t.Errorf("stored %d identities, want 2", len(store.identities))
	}
}

func TestResolveKeepsProfileWhenClaimsGoEmpty(t *testing.T) {
	store := newFakeStore()
	resolver := newTestResolver(store)

	first, err := resolver.Resolve(context.Background(), "apple", oauthflow.Claims{
		Subject:       "apple-sub-9",
		Email:         "ana@example.com",
		EmailVerified: true,
		Name:          "Ana Apple",
	})
	if err != nil {
		t.Fatalf("first Resolve() error = %v", err)
	}

	// Apple's relay only sends the name on the very first login.
	again, err := resolver.Resolve(context.Background(), "apple", oauthflow.Claims{
		Subject:       "apple-sub-9",
		Email:         "ana@example.com",
		EmailVerified: true,
	})
	if err != nil {
		t.Fatalf("second Resolve() error = %v", err)
	}
	if again.Name != first.Name {
		t.Errorf("Name = %q, want retained %q", again.Name, first.Name)
	}
}

func TestResolveUpdatesProfileOnNewClaims(t *testing.T) {
	store := newFakeStore()
	resolver := newTestResolver(store)

	if _, err := resolver.Resolve(context.Background(), "google", googleClaims()); err != nil {
		t.Fatalf("first Resolve() error = %v", err)
	}

	claims := googleClaims()
	claims.Name = "Ana Updated"
	claims.Picture = "https://example.com/ana-v2.png"
	account, err := resolver.Resolve(context.Background(), "google", claims)
	if err != nil {
		t.Fatalf("second Resolve() error = %v", err)
	}
	if account.Name != "Ana Updated" {
		t.Errorf("Name = %q, want %q", account.Name, "Ana Updated")
	}
	if account.Picture != "https://example.com/ana-v2.png" {
		t.Errorf("Picture = %q, want updated value", account.Picture)
	}
	if stored := store.users[account.ID]; stored.Name != "Ana Updated" {
		t.Errorf("stored Name = %q, want %q", stored.Name, "Ana Updated")
	}
}

func TestResolveRejectsUnverifiedEmail(t *testing.T) {
	store := newFakeStore()
	resolver := newTestResolver(store)

	claims := googleClaims()
	claims.EmailVerified = false
	_, err := resolver.Resolve(context.Background(), "google", claims)
	if apperrors.GetCode(err) != apperrors.CodeProviderError {
		t.Errorf("Resolve() error = %v, want provider error code", err)
	}
	if len(store.users) != 0 {
		t.Errorf("stored %d users, want 0", len(store.users))
	}
}

func TestResolveRejectsMissingSubject(t *testing.T) {
	resolver := newTestResolver(newFakeStore())

	claims := googleClaims()
	claims.Subject = ""
	_, err := resolver.Resolve(context.Background(), "google", claims)
	if apperrors.GetCode(err) != apperrors.CodeInvalidRequest {
		t.Errorf("Resolve() error = %v, want invalid request code", err)
	}
}

func TestResolveSurvivesInsertRace(t *testing.T) {
	store := newFakeStore()
	resolver := newTestResolver(store)

	// Another request wins the insert between our lookup miss and our write.
	raced := false
	store.putUser = func(u user.User) error {
		if !raced && len(store.users) == 0 {
			raced = true
			winner := user.User{
				ID:        "winner",
				Email:     u.Email,
				CreatedAt: u.CreatedAt,
				UpdatedAt: u.UpdatedAt,
			}
			store.users[winner.ID] = winner
			return storage.ErrEmailTaken
		}
		return nil
	}

	account, err := resolver.Resolve(context.Background(), "google", googleClaims())
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if account.ID != "winner" {
		t.Errorf("Resolve() user = %q, want the racing winner", account.ID)
	}
	identity, err := store.GetIdentity(context.Background(), "google", "google-sub-1")
	if err != nil {
		t.Fatalf("GetIdentity() error = %v", err)
	}
	if identity.UserID != "winner" {
		t.Errorf("identity.UserID = %q, want %q", identity.UserID, "winner")
	}
}
