package web

import (
	"context"
	"sync"
	"time"

	"github.com/mhamrah/hamrah-auth/internal/services/auth/oauthflow"
	"github.com/mhamrah/hamrah-auth/internal/services/auth/storage"
	"github.com/mhamrah/hamrah-auth/internal/services/auth/user"
)

// memStore backs the handler tests with an in-memory implementation of every
// storage contract.
type memStore struct {
	mu          sync.Mutex
	users       map[string]user.User
	identities  map[string]storage.Identity
	credentials map[string]storage.Credential
	challenges  map[string]storage.Challenge
	sessions    map[string]storage.Session
	pairs       map[string]storage.TokenPair
	flows       map[string]storage.FlowState
}

func newMemStore() *memStore {
	return &memStore{
		users:       make(map[string]user.User),
		identities:  make(map[string]storage.Identity),
		credentials: make(map[string]storage.Credential),
		challenges:  make(map[string]storage.Challenge),
		sessions:    make(map[string]storage.Session),
		pairs:       make(map[string]storage.TokenPair),
		flows:       make(map[string]storage.FlowState),
	}
}

func (m *memStore) PutUser(_ context.Context, u user.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if existing.Email == u.Email && existing.ID != u.ID {
			return storage.ErrEmailTaken
		}
	}
	m.users[u.ID] = u
	return nil
}

func (m *memStore) GetUser(_ context.Context, userID string) (user.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return user.User{}, storage.ErrNotFound
	}
	return u, nil
}

func (m *memStore) GetUserByEmail(_ context.Context, email string) (user.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			return u, nil
		}
	}
	return user.User{}, storage.ErrNotFound
}

func (m *memStore) PutIdentity(_ context.Context, identity storage.Identity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.identities[identity.Provider+"/"+identity.Subject] = identity
	return nil
}

func (m *memStore) GetIdentity(_ context.Context, provider, subject string) (storage.Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	identity, ok := m.identities[provider+"/"+subject]
	if !ok {
		return storage.Identity{}, storage.ErrNotFound
	}
	return identity, nil
}

func (m *memStore) ListIdentities(_ context.Context, userID string) ([]storage.Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []storage.Identity
	for _, identity := range m.identities {
		if identity.UserID == userID {
			out = append(out, identity)
		}
	}
	return out, nil
}

func (m *memStore) PutCredential(_ context.Context, credential storage.Credential) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.credentials[credential.ID] = credential
	return nil
}

func (m *memStore) GetCredential(_ context.Context, credentialID string) (storage.Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	credential, ok := m.credentials[credentialID]
	if !ok {
		return storage.Credential{}, storage.ErrNotFound
	}
	return credential, nil
}

func (m *memStore) ListCredentials(_ context.Context, userID string) ([]storage.Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []storage.Credential
	for _, credential := range m.credentials {
		if credential.UserID == userID {
			out = append(out, credential)
		}
	}
	return out, nil
}

func (m *memStore) DeleteCredential(_ context.Context, credentialID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.credentials[credentialID]; !ok {
		return storage.ErrNotFound
	}
	delete(m.credentials, credentialID)
	return nil
}

func (m *memStore) RenameCredential(_ context.Context, credentialID, displayName string, updatedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	credential, ok := m.credentials[credentialID]
	if !ok {
		return storage.ErrNotFound
	}
	credential.DisplayName = displayName
	credential.UpdatedAt = updatedAt
	m.credentials[credentialID] = credential
	return nil
}

func (m *memStore) UpdateCredentialCounter(_ context.Context, credentialID string, previous, next uint32, lastUsedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	credential, ok := m.credentials[credentialID]
	if !ok {
		return storage.ErrNotFound
	}
	if credential.SignCount != previous {
		return storage.ErrCounterConflict
	}
	credential.SignCount = next
	credential.LastUsedAt = &lastUsedAt
	credential.UpdatedAt = lastUsedAt
	m.credentials[credentialID] = credential
	return nil
}

func (m *memStore) PutChallenge(_ context.Context, challenge storage.Challenge) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.challenges[challenge.ID] = challenge
	return nil
}

func (m *memStore) GetChallenge(_ context.Context, id string) (storage.Challenge, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	challenge, ok := m.challenges[id]
	if !ok {
		return storage.Challenge{}, storage.ErrNotFound
	}
	return challenge, nil
}

func (m *memStore) ConsumeChallenge(_ context.Context, id string) (storage.Challenge, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	challenge, ok := m.challenges[id]
	if !ok {
		return storage.Challenge{}, storage.ErrNotFound
	}
	delete(m.challenges, id)
	return challenge, nil
}

func (m *memStore) DeleteChallenge(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.challenges, id)
	return nil
}

func (m *memStore) DeleteExpiredChallenges(_ context.Context, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, challenge := range m.challenges {
		if !challenge.ExpiresAt.After(now) {
			delete(m.challenges, id)
		}
	}
	return nil
}

func (m *memStore) PutSession(_ context.Context, session storage.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[session.ID] = session
	return nil
}

func (m *memStore) GetSession(_ context.Context, id string) (storage.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.sessions[id]
	if !ok {
		return storage.Session{}, storage.ErrNotFound
	}
	return session, nil
}

func (m *memStore) RevokeSession(_ context.Context, id string, revokedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.sessions[id]
	if !ok {
		return storage.ErrNotFound
	}
	session.RevokedAt = &revokedAt
	m.sessions[id] = session
	return nil
}

func (m *memStore) RevokeUserSessions(_ context.Context, userID string, revokedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, session := range m.sessions {
		if session.UserID == userID && session.RevokedAt == nil {
			session.RevokedAt = &revokedAt
			m.sessions[id] = session
		}
	}
	return nil
}

func (m *memStore) DeleteExpiredSessions(_ context.Context, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, session := range m.sessions {
		if !session.ExpiresAt.After(now) {
			delete(m.sessions, id)
		}
	}
	return nil
}

func (m *memStore) PutTokenPair(_ context.Context, pair storage.TokenPair) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pairs[pair.ID] = pair
	return nil
}

func (m *memStore) GetTokenPairByAccess(_ context.Context, accessToken string) (storage.TokenPair, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, pair := range m.pairs {
		if pair.AccessToken == accessToken {
			return pair, nil
		}
	}
	return storage.TokenPair{}, storage.ErrNotFound
}

func (m *memStore) GetTokenPairByRefresh(_ context.Context, refreshToken string) (storage.TokenPair, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, pair := range m.pairs {
		if pair.RefreshToken == refreshToken {
			return pair, nil
		}
	}
	return storage.TokenPair{}, storage.ErrNotFound
}

func (m *memStore) MarkTokenPairRotated(_ context.Context, pairID string, rotatedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	pair, ok := m.pairs[pairID]
	if !ok || pair.RotatedAt != nil || pair.RevokedAt != nil {
		return storage.ErrNotFound
	}
	pair.RotatedAt = &rotatedAt
	m.pairs[pairID] = pair
	return nil
}

func (m *memStore) RevokeUserTokenPairs(_ context.Context, userID string, revokedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, pair := range m.pairs {
		if pair.UserID == userID && pair.RevokedAt == nil {
			pair.RevokedAt = &revokedAt
			m.pairs[id] = pair
		}
	}
	return nil
}

func (m *memStore) DeleteExpiredTokenPairs(_ context.Context, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, pair := range m.pairs {
		if !pair.RefreshExpiresAt.After(now) {
			delete(m.pairs, id)
		}
	}
	return nil
}

func (m *memStore) PutFlowState(_ context.Context, state storage.FlowState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.flows[state.State] = state
	return nil
}

func (m *memStore) ConsumeFlowState(_ context.Context, state string) (storage.FlowState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	flow, ok := m.flows[state]
	if !ok {
		return storage.FlowState{}, storage.ErrNotFound
	}
	delete(m.flows, state)
	return flow, nil
}

func (m *memStore) DeleteExpiredFlowStates(_ context.Context, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for state, flow := range m.flows {
		if !flow.ExpiresAt.After(now) {
			delete(m.flows, state)
		}
	}
	return nil
}

// fakeProvider is a scripted OAuth provider for handler tests.
type fakeProvider struct {
	mu            sync.Mutex
	exchangeCalls int
	claims        oauthflow.Claims
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) AuthorizationURL(state, codeChallenge, redirectURI string) (string, error) {
	return "https://fake.example/authorize?state=" + state, nil
}

func (f *fakeProvider) Exchange(_ context.Context, code, codeVerifier, redirectURI string) (oauthflow.Token, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.exchangeCalls++
	return oauthflow.Token{AccessToken: "provider-access", IDToken: "provider-id"}, nil
}

func (f *fakeProvider) IdentityClaims(_ context.Context, token oauthflow.Token, rawUser []byte) (oauthflow.Claims, error) {
	return f.claims, nil
}

func (f *fakeProvider) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.exchangeCalls
}
