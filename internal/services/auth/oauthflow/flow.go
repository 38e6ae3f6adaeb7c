package oauthflow

import (
	"context"
	"crypto/subtle"
	"errors"
	"strings"
	"time"

	apperrors "github.com/mhamrah/hamrah-auth/internal/platform/errors"
	"github.com/mhamrah/hamrah-auth/internal/platform/id"
	"github.com/mhamrah/hamrah-auth/internal/services/auth/storage"
)

// BeginResult is a freshly started authorization flow.
type BeginResult struct {
	State            string
	CodeVerifier     string
	AuthorizationURL string
}

// CompleteResult is a finished flow: the provider's verdict on who signed in.
type CompleteResult struct {
	Provider string
	Platform string
	Claims   Claims
	Token    Token
}

// Manager starts and completes PKCE flows across the configured providers.
type Manager struct {
	config      Config
	providers   map[string]Provider
	flows       storage.FlowStateStore
	clock       func() time.Time
	idGenerator func() (string, error)
}

// NewManager builds a flow manager. Providers with empty client ids are left
// unregistered so a deployment can enable just one of them.
func NewManager(cfg Config, flows storage.FlowStateStore) *Manager {
	m := &Manager{
		config:      cfg,
		providers:   make(map[string]Provider),
		flows:       flows,
		clock:       time.Now,
		idGenerator: id.NewID,
	}
	if cfg.GoogleClientID != "" {
		m.RegisterProvider(NewGoogleProvider(cfg.GoogleClientID, cfg.GoogleClientSecret))
	}
	if cfg.AppleClientID != "" {
		m.RegisterProvider(NewAppleProvider(cfg.AppleClientID, cfg.AppleClientSecret))
	}
	return m
}

// RegisterProvider adds or replaces a provider.
func (m *Manager) RegisterProvider(provider Provider) *Manager {
	m.providers[provider.Name()] = provider
	return m
}

// WithClock overrides the manager clock. Test seam.
func (m *Manager) WithClock(clock func() time.Time) *Manager {
	m.clock = clock
	return m
}

// WithIDGenerator overrides state token generation. Test seam.
func (m *Manager) WithIDGenerator(generator func() (string, error)) *Manager {
	m.idGenerator = generator
	return m
}

// ProviderNames lists the registered providers.
func (m *Manager) ProviderNames() []string {
	names := make([]string, 0, len(m.providers))
	for name := range m.providers {
		names = append(names, name)
	}
	return names
}

// Begin mints state and a PKCE verifier, persists the flow, and returns the
// provider redirect URL.
func (m *Manager) Begin(ctx context.Context, providerName, platform, redirectURI string) (*BeginResult, error) {
	provider, ok := m.providers[providerName]
	if !ok {
		return nil, apperrors.New(apperrors.CodeInvalidRequest, "unknown provider")
	}
	if strings.TrimSpace(redirectURI) == "" {
		return nil, apperrors.New(apperrors.CodeInvalidRequest, "redirect uri is required")
	}

	verifier, err := GenerateCodeVerifier()
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, "generate code verifier", err)
	}
	state, err := m.idGenerator()
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, "generate state", err)
	}

	now := m.clock().UTC()
	if err := m.flows.PutFlowState(ctx, storage.FlowState{
		State:        state,
		Provider:     providerName,
		Platform:     platform,
		CodeVerifier: verifier,
		RedirectURI:  redirectURI,
		CreatedAt:    now,
		ExpiresAt:    now.Add(m.config.FlowTTL),
	}); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, "persist flow state", err)
	}

	authorizationURL, err := provider.AuthorizationURL(state, ComputeS256Challenge(verifier), redirectURI)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, "build authorization url", err)
	}

	return &BeginResult{State: state, CodeVerifier: verifier, AuthorizationURL: authorizationURL}, nil
}

// Complete consumes the flow state, exchanges the authorization code, and
// extracts identity claims. codeVerifier must be the verifier issued at
// Begin: state travels through redirects and referrer headers, the verifier
// never leaves the client that started the flow.
//
// The state and verifier checks happen before any provider traffic: a forged
// or replayed callback never costs a network round trip.
func (m *Manager) Complete(ctx context.Context, providerName, state, code, codeVerifier string, rawUser []byte) (*CompleteResult, error) {
	if strings.TrimSpace(state) == "" || strings.TrimSpace(code) == "" {
		return nil, apperrors.New(apperrors.CodeInvalidRequest, "state and code are required")
	}
	provider, ok := m.providers[providerName]
	if !ok {
		return nil, apperrors.New(apperrors.CodeInvalidRequest, "unknown provider")
	}

	flow, err := m.flows.ConsumeFlowState(ctx, state)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, apperrors.New(apperrors.CodeStateMismatch, "state mismatch")
		}
		return nil, apperrors.Wrap(apperrors.CodeInternal, "consume flow state", err)
	}
	if flow.Provider != providerName {
		return nil, apperrors.New(apperrors.CodeStateMismatch, "state mismatch")
	}
	if subtle.ConstantTimeCompare([]byte(flow.CodeVerifier), []byte(codeVerifier)) != 1 {
		return nil, apperrors.New(apperrors.CodeStateMismatch, "code verifier mismatch")
	}
	if !flow.ExpiresAt.After(m.clock().UTC()) {
		return nil, apperrors.New(apperrors.CodeExpired, "authorization flow expired")
	}

	token, err := provider.Exchange(ctx, code, flow.CodeVerifier, flow.RedirectURI)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeProviderError, "exchange authorization code", err)
	}

	claims, err := provider.IdentityClaims(ctx, token, rawUser)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeProviderError, "extract identity claims", err)
	}
	if claims.Subject == "" || claims.Email == "" {
		return nil, apperrors.New(apperrors.CodeProviderError, "provider response missing identity")
	}

	return &CompleteResult{
		Provider: providerName,
		Platform: flow.Platform,
		Claims:   claims,
		Token:    token,
	}, nil
}

// DeleteExpired sweeps abandoned flows.
func (m *Manager) DeleteExpired(ctx context.Context) error {
	return m.flows.DeleteExpiredFlowStates(ctx, m.clock().UTC())
}
