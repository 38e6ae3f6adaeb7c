package ceremony

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/protocol/webauthncose"
	"github.com/go-webauthn/webauthn/webauthn"
	apperrors "github.com/mhamrah/hamrah-auth/internal/platform/errors"
	"github.com/mhamrah/hamrah-auth/internal/services/auth/challenge"
	"github.com/mhamrah/hamrah-auth/internal/services/auth/storage"
	"github.com/mhamrah/hamrah-auth/internal/services/auth/user"
)

// webAuthnProvider is the slice of the webauthn library the manager relies
// on. Kept as an interface so tests can fail individual ceremony steps.
type webAuthnProvider interface {
	BeginRegistration(user webauthn.User, opts ...webauthn.RegistrationOption) (*protocol.CredentialCreation, *webauthn.SessionData, error)
	CreateCredential(user webauthn.User, session webauthn.SessionData, response *protocol.ParsedCredentialCreationData) (*webauthn.Credential, error)
	BeginLogin(user webauthn.User, opts ...webauthn.LoginOption) (*protocol.CredentialAssertion, *webauthn.SessionData, error)
	BeginDiscoverableLogin(opts ...webauthn.LoginOption) (*protocol.CredentialAssertion, *webauthn.SessionData, error)
	ValidateLogin(user webauthn.User, session webauthn.SessionData, response *protocol.ParsedCredentialAssertionData) (*webauthn.Credential, error)
	ValidatePasskeyLogin(handler webauthn.DiscoverableUserHandler, session webauthn.SessionData, response *protocol.ParsedCredentialAssertionData) (webauthn.User, *webauthn.Credential, error)
}

type responseParser interface {
	ParseCredentialCreationResponseBytes(data []byte) (*protocol.ParsedCredentialCreationData, error)
	ParseCredentialRequestResponseBytes(data []byte) (*protocol.ParsedCredentialAssertionData, error)
}

type defaultParser struct{}

func (defaultParser) ParseCredentialCreationResponseBytes(data []byte) (*protocol.ParsedCredentialCreationData, error) {
	return protocol.ParseCredentialCreationResponseBytes(data)
}

func (defaultParser) ParseCredentialRequestResponseBytes(data []byte) (*protocol.ParsedCredentialAssertionData, error) {
	return protocol.ParseCredentialRequestResponseBytes(data)
}

// registrationCredParams is the algorithm menu offered at registration. The
// attestation check at completion matches the new credential's algorithm
// against the session's menu, so the rebuilt session must carry the same
// list the options advertised.
var registrationCredParams = []protocol.CredentialParameter{
	{Type: protocol.PublicKeyCredentialType, Algorithm: webauthncose.AlgES256},
	{Type: protocol.PublicKeyCredentialType, Algorithm: webauthncose.AlgES384},
	{Type: protocol.PublicKeyCredentialType, Algorithm: webauthncose.AlgES512},
	{Type: protocol.PublicKeyCredentialType, Algorithm: webauthncose.AlgRS256},
	{Type: protocol.PublicKeyCredentialType, Algorithm: webauthncose.AlgEdDSA},
}

// RegistrationStart carries the options a client feeds to
// navigator.credentials.create plus the challenge id it must echo back.
type RegistrationStart struct {
	ChallengeID string
	Options     *protocol.CredentialCreation
}

// AuthenticationStart carries the options for navigator.credentials.get.
type AuthenticationStart struct {
	ChallengeID string
	Options     *protocol.CredentialAssertion
}

// AuthenticationResult is a successfully verified assertion.
type AuthenticationResult struct {
	User       user.User
	Credential storage.Credential
}

// Manager runs WebAuthn ceremonies over the challenge store and the
// credential store.
type Manager struct {
	config      Config
	provider    webAuthnProvider
	parser      responseParser
	users       storage.UserStore
	credentials storage.CredentialStore
	challenges  *challenge.Store
	clock       func() time.Time
}

// NewManager builds a ceremony manager for the configured relying party.
func NewManager(cfg Config, users storage.UserStore, credentials storage.CredentialStore, challenges *challenge.Store) (*Manager, error) {
	provider, err := webauthn.New(&webauthn.Config{
		RPDisplayName: cfg.RPDisplayName,
		RPID:          cfg.RPID,
		RPOrigins:     cfg.RPOrigins,
	})
	if err != nil {
		return nil, fmt.Errorf("configure webauthn: %w", err)
	}
	return &Manager{
		config:      cfg,
		provider:    provider,
		parser:      defaultParser{},
		users:       users,
		credentials: credentials,
		challenges:  challenges,
		clock:       time.Now,
	}, nil
}

// WithClock overrides the manager clock. Test seam.
func (m *Manager) WithClock(clock func() time.Time) *Manager {
	m.clock = clock
	return m
}

// WithProvider overrides the webauthn provider. Test seam.
func (m *Manager) WithProvider(provider webAuthnProvider) *Manager {
	m.provider = provider
	return m
}

// WithParser overrides the response parser. Test seam.
func (m *Manager) WithParser(parser responseParser) *Manager {
	m.parser = parser
	return m
}

// BeginRegistration starts a registration ceremony for an existing account.
//
// Already-registered credential ids are sent as exclusions so an
// authenticator refuses to mint a duplicate. The returned options carry a
// challenge owned by the challenge store, not the one the library generated.
func (m *Manager) BeginRegistration(ctx context.Context, account user.User) (*RegistrationStart, error) {
	waUser, err := m.loadCeremonyUser(ctx, account)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, "load user credentials", err)
	}

	options := []webauthn.RegistrationOption{
		webauthn.WithCredentialParameters(registrationCredParams),
		webauthn.WithAuthenticatorSelection(protocol.AuthenticatorSelection{
			AuthenticatorAttachment: protocol.Platform,
			RequireResidentKey:      protocol.ResidentKeyRequired(),
			ResidentKey:             protocol.ResidentKeyRequirementRequired,
			UserVerification:        protocol.VerificationRequired,
		}),
	}
	if len(waUser.credentials) > 0 {
		options = append(options, webauthn.WithExclusions(webauthn.Credentials(waUser.credentials).CredentialDescriptors()))
	}

	creation, _, err := m.provider.BeginRegistration(waUser, options...)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, "begin registration", err)
	}

	issued, err := m.challenges.Issue(ctx, challenge.PurposeRegistration, account.ID, m.config.ChallengeTTL)
	if err != nil {
		return nil, err
	}
	creation.Response.Challenge = protocol.URLEncodedBase64(issued.Value)

	return &RegistrationStart{ChallengeID: issued.ID, Options: creation}, nil
}

// CompleteRegistration consumes the ceremony challenge, verifies the
// attestation response, and persists the new credential.
func (m *Manager) CompleteRegistration(ctx context.Context, account user.User, challengeID string, responseJSON []byte) (storage.Credential, error) {
	if strings.TrimSpace(challengeID) == "" || len(responseJSON) == 0 {
		return storage.Credential{}, apperrors.New(apperrors.CodeInvalidRequest, "challenge id and credential response are required")
	}

	consumed, err := m.challenges.Consume(ctx, challengeID)
	if err != nil {
		return storage.Credential{}, err
	}
	if consumed.Purpose != string(challenge.PurposeRegistration) {
		return storage.Credential{}, apperrors.New(apperrors.CodeInvalidRequest, "challenge was issued for a different ceremony")
	}
	if consumed.UserID != account.ID {
		return storage.Credential{}, apperrors.New(apperrors.CodeInvalidRequest, "challenge was issued to a different user")
	}

	parsed, err := m.parser.ParseCredentialCreationResponseBytes(responseJSON)
	if err != nil {
		return storage.Credential{}, apperrors.Wrap(apperrors.CodeInvalidRequest, "parse credential response", err)
	}

	waUser, err := m.loadCeremonyUser(ctx, account)
	if err != nil {
		return storage.Credential{}, apperrors.Wrap(apperrors.CodeInternal, "load user credentials", err)
	}

	session := sessionForChallenge(consumed, []byte(account.ID), nil)
	session.CredParams = registrationCredParams
	credential, err := m.provider.CreateCredential(waUser, session, parsed)
	if err != nil {
		return storage.Credential{}, apperrors.Wrap(apperrors.CodeVerificationFailed, "verify attestation", err)
	}

	record := toStoredCredential(account.ID, *credential, m.clock().UTC())
	if err := m.credentials.PutCredential(ctx, record); err != nil {
		return storage.Credential{}, apperrors.Wrap(apperrors.CodeInternal, "persist credential", err)
	}
	return record, nil
}

// BeginAuthentication starts an authentication ceremony.
//
// Targeted ceremonies scope the allow-list to one account's credentials and
// need that account up front. Discoverable ceremonies leave the allow-list
// empty and bind no user to the challenge.
func (m *Manager) BeginAuthentication(ctx context.Context, variant Variant, account *user.User) (*AuthenticationStart, error) {
	var (
		assertion *protocol.CredentialAssertion
		purpose   challenge.Purpose
		ownerID   string
	)

	switch variant {
	case VariantTargeted:
		if account == nil {
			return nil, apperrors.New(apperrors.CodeInvalidRequest, "targeted authentication requires a user")
		}
		waUser, err := m.loadCeremonyUser(ctx, *account)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.CodeInternal, "load user credentials", err)
		}
		if len(waUser.credentials) == 0 {
			return nil, apperrors.New(apperrors.CodeCredentialNotFound, "no credentials registered")
		}
		assertion, _, err = m.provider.BeginLogin(waUser, webauthn.WithUserVerification(protocol.VerificationRequired))
		if err != nil {
			return nil, apperrors.Wrap(apperrors.CodeInternal, "begin login", err)
		}
		purpose = challenge.PurposeAuthentication
		ownerID = account.ID

	case VariantDiscoverable:
		var err error
		assertion, _, err = m.provider.BeginDiscoverableLogin(webauthn.WithUserVerification(protocol.VerificationRequired))
		if err != nil {
			return nil, apperrors.Wrap(apperrors.CodeInternal, "begin discoverable login", err)
		}
		purpose = challenge.PurposeDiscoverableAuthentication

	default:
		return nil, apperrors.New(apperrors.CodeInvalidRequest, "unknown authentication variant")
	}

	issued, err := m.challenges.Issue(ctx, purpose, ownerID, m.config.ChallengeTTL)
	if err != nil {
		return nil, err
	}
	assertion.Response.Challenge = protocol.URLEncodedBase64(issued.Value)

	return &AuthenticationStart{ChallengeID: issued.ID, Options: assertion}, nil
}

// CompleteAuthentication consumes the ceremony challenge, verifies the
// assertion, and advances the credential's signature counter.
//
// The challenge is consumed before any cryptographic work so a duplicate
// submission loses even when it carries a valid signature.
func (m *Manager) CompleteAuthentication(ctx context.Context, challengeID string, responseJSON []byte) (*AuthenticationResult, error) {
	if len(responseJSON) == 0 {
		return nil, apperrors.New(apperrors.CodeInvalidRequest, "credential response is required")
	}
	if strings.TrimSpace(challengeID) == "" {
		if !m.config.AllowLegacyChallenge {
			return nil, apperrors.New(apperrors.CodeInvalidRequest, "challenge id is required")
		}
		return m.completeLegacyAuthentication(ctx, responseJSON)
	}

	consumed, err := m.challenges.Consume(ctx, challengeID)
	if err != nil {
		return nil, err
	}

	parsed, err := m.parser.ParseCredentialRequestResponseBytes(responseJSON)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInvalidRequest, "parse credential response", err)
	}

	stored, err := m.lookupCredential(ctx, parsed.RawID)
	if err != nil {
		return nil, err
	}

	var (
		account   user.User
		validated *webauthn.Credential
	)

	switch consumed.Purpose {
	case string(challenge.PurposeAuthentication):
		if stored.UserID != consumed.UserID {
			return nil, apperrors.New(apperrors.CodeCredentialNotFound, "credential not found")
		}
		account, err = m.users.GetUser(ctx, consumed.UserID)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return nil, apperrors.New(apperrors.CodeCredentialNotFound, "credential not found")
			}
			return nil, apperrors.Wrap(apperrors.CodeInternal, "load user", err)
		}
		waUser, loadErr := m.loadCeremonyUser(ctx, account)
		if loadErr != nil {
			return nil, apperrors.Wrap(apperrors.CodeInternal, "load user credentials", loadErr)
		}
		session := sessionForChallenge(consumed, []byte(account.ID), credentialIDs(waUser.credentials))
		validated, err = m.provider.ValidateLogin(waUser, session, parsed)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.CodeVerificationFailed, "verify assertion", err)
		}

	case string(challenge.PurposeDiscoverableAuthentication):
		session := sessionForChallenge(consumed, nil, nil)
		validatedUser, credential, loginErr := m.provider.ValidatePasskeyLogin(m.discoverableHandler(ctx), session, parsed)
		if loginErr != nil {
			return nil, apperrors.Wrap(apperrors.CodeVerificationFailed, "verify assertion", loginErr)
		}
		resolved, ok := validatedUser.(*ceremonyUser)
		if !ok {
			return nil, apperrors.New(apperrors.CodeInternal, "unexpected user type from discoverable login")
		}
		account = resolved.account
		validated = credential

	default:
		return nil, apperrors.New(apperrors.CodeInvalidRequest, "challenge was issued for a different ceremony")
	}

	return m.finishAuthentication(ctx, account, stored, validated)
}

// completeLegacyAuthentication verifies an assertion without a stored
// challenge, trusting the challenge echoed in the client data. Ownership is
// resolved from the credential id in the response.
func (m *Manager) completeLegacyAuthentication(ctx context.Context, responseJSON []byte) (*AuthenticationResult, error) {
	parsed, err := m.parser.ParseCredentialRequestResponseBytes(responseJSON)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInvalidRequest, "parse credential response", err)
	}

	stored, err := m.lookupCredential(ctx, parsed.RawID)
	if err != nil {
		return nil, err
	}
	account, err := m.users.GetUser(ctx, stored.UserID)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, "load credential owner", err)
	}
	waUser, err := m.loadCeremonyUser(ctx, account)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, "load user credentials", err)
	}

	session := webauthn.SessionData{
		Challenge:            string(parsed.Response.CollectedClientData.Challenge),
		UserID:               []byte(account.ID),
		AllowedCredentialIDs: [][]byte{parsed.RawID},
		UserVerification:     protocol.VerificationRequired,
	}
	validated, err := m.provider.ValidateLogin(waUser, session, parsed)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeVerificationFailed, "verify assertion", err)
	}

	return m.finishAuthentication(ctx, account, stored, validated)
}

func (m *Manager) finishAuthentication(ctx context.Context, account user.User, stored storage.Credential, validated *webauthn.Credential) (*AuthenticationResult, error) {
	if validated.Authenticator.CloneWarning {
		return nil, apperrors.New(apperrors.CodeReplayDetected, "signature counter regressed")
	}

	now := m.clock().UTC()
	err := m.credentials.UpdateCredentialCounter(ctx, stored.ID, stored.SignCount, validated.Authenticator.SignCount, now)
	switch {
	case err == nil:
	case errors.Is(err, storage.ErrCounterConflict):
		return nil, storage.ErrCounterConflict
	case errors.Is(err, storage.ErrNotFound):
		return nil, apperrors.New(apperrors.CodeCredentialNotFound, "credential not found")
	default:
		return nil, apperrors.Wrap(apperrors.CodeInternal, "advance signature counter", err)
	}

	stored.SignCount = validated.Authenticator.SignCount
	stored.UpdatedAt = now
	stored.LastUsedAt = &now
	return &AuthenticationResult{User: account, Credential: stored}, nil
}

func (m *Manager) lookupCredential(ctx context.Context, rawID []byte) (storage.Credential, error) {
	stored, err := m.credentials.GetCredential(ctx, encodeCredentialID(rawID))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return storage.Credential{}, apperrors.New(apperrors.CodeCredentialNotFound, "credential not found")
		}
		return storage.Credential{}, apperrors.Wrap(apperrors.CodeInternal, "load credential", err)
	}
	return stored, nil
}

func (m *Manager) loadCeremonyUser(ctx context.Context, account user.User) (*ceremonyUser, error) {
	records, err := m.credentials.ListCredentials(ctx, account.ID)
	if err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}
	credentials := make([]webauthn.Credential, 0, len(records))
	for _, record := range records {
		credential, err := toLibraryCredential(record)
		if err != nil {
			return nil, err
		}
		credentials = append(credentials, credential)
	}
	return &ceremonyUser{account: account, credentials: credentials}, nil
}

func (m *Manager) discoverableHandler(ctx context.Context) webauthn.DiscoverableUserHandler {
	return func(_, userHandle []byte) (webauthn.User, error) {
		userID := strings.TrimSpace(string(userHandle))
		if userID == "" {
			return nil, fmt.Errorf("user handle is required")
		}
		account, err := m.users.GetUser(ctx, userID)
		if err != nil {
			return nil, err
		}
		return m.loadCeremonyUser(ctx, account)
	}
}

// sessionForChallenge rebuilds the webauthn session state from the consumed
// challenge record. Expiry is deliberately left zero: the challenge store
// already judged it against the server clock at consumption.
func sessionForChallenge(consumed storage.Challenge, userHandle []byte, allowed [][]byte) webauthn.SessionData {
	return webauthn.SessionData{
		Challenge:            base64.RawURLEncoding.EncodeToString(consumed.Value),
		UserID:               userHandle,
		AllowedCredentialIDs: allowed,
		UserVerification:     protocol.VerificationRequired,
	}
}

func credentialIDs(credentials []webauthn.Credential) [][]byte {
	ids := make([][]byte, 0, len(credentials))
	for _, credential := range credentials {
		ids = append(ids, credential.ID)
	}
	return ids
}
