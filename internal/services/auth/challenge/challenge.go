// Package challenge issues and consumes single-use cryptographic challenges.
//
// Every WebAuthn ceremony is bounded by one of these records: issued at begin,
// consumed exactly once at completion, gone forever afterwards.
package challenge

import (
	"context"
	"crypto/rand"
	"fmt"
	"time"

	apperrors "github.com/mhamrah/hamrah-auth/internal/platform/errors"
	"github.com/mhamrah/hamrah-auth/internal/platform/id"
	"github.com/mhamrah/hamrah-auth/internal/services/auth/storage"
)

// Purpose describes what ceremony a challenge was issued for.
type Purpose string

const (
	PurposeRegistration               Purpose = "registration"
	PurposeAuthentication             Purpose = "authentication"
	PurposeDiscoverableAuthentication Purpose = "discoverable-authentication"
)

// DefaultTTL bounds how long an issued challenge stays redeemable.
const DefaultTTL = 5 * time.Minute

const valueSize = 32

var (
	// ErrNotFound indicates a challenge that is absent or already consumed.
	ErrNotFound = apperrors.New(apperrors.CodeChallengeNotFound, "challenge not found")
	// ErrExpired indicates a challenge past its expiry at consumption time.
	ErrExpired = apperrors.New(apperrors.CodeChallengeExpired, "challenge expired")
)

// Store issues, reads, and atomically consumes challenges.
type Store struct {
	backend     storage.ChallengeStore
	clock       func() time.Time
	idGenerator func() (string, error)
}

// NewStore builds a challenge store over the given persistence backend.
func NewStore(backend storage.ChallengeStore) *Store {
	return &Store{
		backend:     backend,
		clock:       time.Now,
		idGenerator: id.NewID,
	}
}

// WithClock overrides the store clock. Test seam.
func (s *Store) WithClock(clock func() time.Time) *Store {
	s.clock = clock
	return s
}

// WithIDGenerator overrides challenge id generation. Test seam.
func (s *Store) WithIDGenerator(generator func() (string, error)) *Store {
	s.idGenerator = generator
	return s
}

// Issue generates and persists a fresh challenge.
//
// ownerUserID is empty for discoverable flows where the account is unknown
// until the authenticator answers.
func (s *Store) Issue(ctx context.Context, purpose Purpose, ownerUserID string, ttl time.Duration) (storage.Challenge, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	value := make([]byte, valueSize)
	if _, err := rand.Read(value); err != nil {
		return storage.Challenge{}, fmt.Errorf("generate challenge bytes: %w", err)
	}
	challengeID, err := s.idGenerator()
	if err != nil {
		return storage.Challenge{}, fmt.Errorf("generate challenge id: %w", err)
	}

	now := s.clock().UTC()
	challenge := storage.Challenge{
		ID:        challengeID,
		Value:     value,
		Purpose:   string(purpose),
		UserID:    ownerUserID,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	if err := s.backend.PutChallenge(ctx, challenge); err != nil {
		return storage.Challenge{}, apperrors.Wrap(apperrors.CodeInternal, "persist challenge", err)
	}
	return challenge, nil
}

// Get reads a challenge without consuming it. Expired challenges read as
// absent, matching what a consumer would observe.
func (s *Store) Get(ctx context.Context, challengeID string) (storage.Challenge, error) {
	found, err := s.backend.GetChallenge(ctx, challengeID)
	if err != nil {
		if apperrors.GetCode(err) == apperrors.CodeNotFound {
			return storage.Challenge{}, ErrNotFound
		}
		return storage.Challenge{}, apperrors.Wrap(apperrors.CodeInternal, "get challenge", err)
	}
	if !found.ExpiresAt.After(s.clock().UTC()) {
		return storage.Challenge{}, ErrExpired
	}
	return found, nil
}

// Consume atomically fetches and deletes a challenge.
//
// Expiry is judged against the server clock here, at redemption, not at
// issuance. An expired record is still removed so it can never be replayed
// after a clock excursion.
func (s *Store) Consume(ctx context.Context, challengeID string) (storage.Challenge, error) {
	consumed, err := s.backend.ConsumeChallenge(ctx, challengeID)
	if err != nil {
		if apperrors.GetCode(err) == apperrors.CodeNotFound {
			return storage.Challenge{}, ErrNotFound
		}
		return storage.Challenge{}, apperrors.Wrap(apperrors.CodeInternal, "consume challenge", err)
	}
	if !consumed.ExpiresAt.After(s.clock().UTC()) {
		return storage.Challenge{}, ErrExpired
	}
	return consumed, nil
}

// Delete removes a challenge regardless of state.
func (s *Store) Delete(ctx context.Context, challengeID string) error {
	return s.backend.DeleteChallenge(ctx, challengeID)
}

// DeleteExpired sweeps challenges past their expiry.
func (s *Store) DeleteExpired(ctx context.Context) error {
	return s.backend.DeleteExpiredChallenges(ctx, s.clock().UTC())
}
