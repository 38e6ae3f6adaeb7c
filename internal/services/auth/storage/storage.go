// Package storage defines persistence contracts for identity assets.
//
// These interfaces exist so ceremony and flow logic can depend on stable
// domain semantics without coupling to SQLite schema details.
package storage

import (
	"context"
	"time"

	"github.com/mhamrah/hamrah-auth/internal/platform/errors"
	"github.com/mhamrah/hamrah-auth/internal/services/auth/user"
)

// ErrNotFound indicates a requested record is missing.
var ErrNotFound = errors.New(errors.CodeNotFound, "record not found")

// ErrCounterConflict indicates a conditional signature counter update lost
// against the stored value. Callers treat this as a cloned-credential signal.
var ErrCounterConflict = errors.New(errors.CodeReplayDetected, "stale signature counter")

// ErrEmailTaken indicates a user insert collided with an existing email.
var ErrEmailTaken = errors.New(errors.CodeInvalidRequest, "email already registered")

// UserStore persists auth user records.
type UserStore interface {
	PutUser(ctx context.Context, u user.User) error
	GetUser(ctx context.Context, userID string) (user.User, error)
	GetUserByEmail(ctx context.Context, email string) (user.User, error)
}

// Identity links a provider subject to a user account.
type Identity struct {
	ID        string
	UserID    string
	Provider  string
	Subject   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// IdentityStore persists provider identity links.
type IdentityStore interface {
	PutIdentity(ctx context.Context, identity Identity) error
	GetIdentity(ctx context.Context, provider, subject string) (Identity, error)
	ListIdentities(ctx context.Context, userID string) ([]Identity, error)
}

// Credential stores a WebAuthn public key credential for a user.
type Credential struct {
	ID           string // base64url-encoded credential id, globally unique
	UserID       string
	PublicKey    []byte // COSE key material
	SignCount    uint32
	Transports   []string
	UserVerified bool

	// BackupEligible and BackupState mirror the authenticator flags observed
	// at registration. Assertions are checked against them, so a credential
	// synced to a new device keeps working while a flag downgrade is treated
	// as suspicious.
	BackupEligible bool
	BackupState    bool

	DisplayName string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	LastUsedAt  *time.Time
}

// CredentialStore persists WebAuthn credentials.
type CredentialStore interface {
	PutCredential(ctx context.Context, credential Credential) error
	GetCredential(ctx context.Context, credentialID string) (Credential, error)
	ListCredentials(ctx context.Context, userID string) ([]Credential, error)
	DeleteCredential(ctx context.Context, credentialID string) error
	RenameCredential(ctx context.Context, credentialID, displayName string, updatedAt time.Time) error

	// UpdateCredentialCounter persists a new signature counter only when the
	// stored counter still equals previous. A lost race or a regression
	// surfaces as ErrCounterConflict so exactly one concurrent
	// authentication can win.
	UpdateCredentialCounter(ctx context.Context, credentialID string, previous, next uint32, lastUsedAt time.Time) error
}

// Challenge is a short-lived single-use cryptographic challenge.
type Challenge struct {
	ID        string
	Value     []byte // raw challenge bytes
	Purpose   string
	UserID    string // empty for discoverable flows
	CreatedAt time.Time
	ExpiresAt time.Time
}

// ChallengeStore persists single-use challenges.
type ChallengeStore interface {
	PutChallenge(ctx context.Context, challenge Challenge) error
	GetChallenge(ctx context.Context, id string) (Challenge, error)

	// ConsumeChallenge atomically fetches and deletes a challenge. Only one
	// concurrent caller observes the record; the rest get ErrNotFound.
	ConsumeChallenge(ctx context.Context, id string) (Challenge, error)
	DeleteChallenge(ctx context.Context, id string) error
	DeleteExpiredChallenges(ctx context.Context, now time.Time) error
}

// Session is a durable cookie-backed web session.
type Session struct {
	ID        string // opaque token, doubles as the cookie value
	UserID    string
	Platform  string
	UserAgent string
	CreatedAt time.Time
	ExpiresAt time.Time
	RevokedAt *time.Time
}

// SessionStore persists web sessions.
type SessionStore interface {
	PutSession(ctx context.Context, session Session) error
	GetSession(ctx context.Context, id string) (Session, error)
	RevokeSession(ctx context.Context, id string, revokedAt time.Time) error
	RevokeUserSessions(ctx context.Context, userID string, revokedAt time.Time) error
	DeleteExpiredSessions(ctx context.Context, now time.Time) error
}

// TokenPair is a bearer access/refresh token pair for mobile and API clients.
type TokenPair struct {
	ID               string
	UserID           string
	Platform         string
	UserAgent        string
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
	CreatedAt        time.Time
	RotatedAt        *time.Time
	RevokedAt        *time.Time
}

// TokenStore persists bearer token pairs.
type TokenStore interface {
	PutTokenPair(ctx context.Context, pair TokenPair) error
	GetTokenPairByAccess(ctx context.Context, accessToken string) (TokenPair, error)
	GetTokenPairByRefresh(ctx context.Context, refreshToken string) (TokenPair, error)

	// MarkTokenPairRotated retires a pair after its refresh token has been
	// exchanged. Only one concurrent exchange can win; the rest get
	// ErrNotFound because the pair is already rotated.
	MarkTokenPairRotated(ctx context.Context, pairID string, rotatedAt time.Time) error
	RevokeUserTokenPairs(ctx context.Context, userID string, revokedAt time.Time) error
	DeleteExpiredTokenPairs(ctx context.Context, now time.Time) error
}

// FlowState tracks one in-progress OAuth authorization flow.
type FlowState struct {
	State        string
	Provider     string
	Platform     string
	CodeVerifier string
	RedirectURI  string
	CreatedAt    time.Time
	ExpiresAt    time.Time
}

// FlowStateStore persists OAuth flow state keyed by the state token.
type FlowStateStore interface {
	PutFlowState(ctx context.Context, state FlowState) error

	// ConsumeFlowState atomically fetches and deletes flow state so an
	// authorization code callback can be redeemed at most once.
	ConsumeFlowState(ctx context.Context, state string) (FlowState, error)
	DeleteExpiredFlowStates(ctx context.Context, now time.Time) error
}
