// Package identity maps provider claims onto local user accounts.
//
// Resolution order is fixed: the (provider, subject) link wins, then a
// verified email match, then a fresh account. The same claims resolved twice
// land on the same user no matter how the calls interleave.
package identity

import (
	"context"
	"errors"
	"time"

	apperrors "github.com/mhamrah/hamrah-auth/internal/platform/errors"
	"github.com/mhamrah/hamrah-auth/internal/platform/id"
	"github.com/mhamrah/hamrah-auth/internal/services/auth/oauthflow"
	"github.com/mhamrah/hamrah-auth/internal/services/auth/storage"
	"github.com/mhamrah/hamrah-auth/internal/services/auth/user"
)

// Resolver finds or creates the account behind a set of provider claims.
type Resolver struct {
	users       storage.UserStore
	identities  storage.IdentityStore
	clock       func() time.Time
	idGenerator func() (string, error)
}

// NewResolver builds a resolver over the given stores.
func NewResolver(users storage.UserStore, identities storage.IdentityStore) *Resolver {
	return &Resolver{
		users:       users,
		identities:  identities,
		clock:       time.Now,
		idGenerator: id.NewID,
	}
}

// WithClock overrides the resolver clock. Test seam.
func (r *Resolver) WithClock(clock func() time.Time) *Resolver {
	r.clock = clock
	return r
}

// WithIDGenerator overrides id generation. Test seam.
func (r *Resolver) WithIDGenerator(generator func() (string, error)) *Resolver {
	r.idGenerator = generator
	return r
}

// Resolve returns the account for the given provider claims, creating and
// linking records as needed.
func (r *Resolver) Resolve(ctx context.Context, provider string, claims oauthflow.Claims) (user.User, error) {
	if claims.Subject == "" || claims.Email == "" {
		return user.User{}, apperrors.New(apperrors.CodeInvalidRequest, "provider claims missing subject or email")
	}
	if !claims.EmailVerified {
		// Email is the merge anchor across providers. An unverified one
		// could capture someone else's account.
		return user.User{}, apperrors.New(apperrors.CodeProviderError, "provider email is not verified")
	}

	email := user.NormalizeEmail(claims.Email)
	if err := user.ValidateEmail(email); err != nil {
		return user.User{}, err
	}

	// Strongest link first: this exact provider subject signed in before.
	if linked, err := r.identities.GetIdentity(ctx, provider, claims.Subject); err == nil {
		account, err := r.users.GetUser(ctx, linked.UserID)
		if err != nil {
			return user.User{}, apperrors.Wrap(apperrors.CodeInternal, "load linked user", err)
		}
		return r.refreshProfile(ctx, account, claims)
	} else if !errors.Is(err, storage.ErrNotFound) {
		return user.User{}, apperrors.Wrap(apperrors.CodeInternal, "load identity", err)
	}

	// Same verified email on an existing account: link the new provider to
	// it instead of minting a duplicate user.
	account, err := r.users.GetUserByEmail(ctx, email)
	switch {
	case err == nil:
	case errors.Is(err, storage.ErrNotFound):
		account, err = r.createUser(ctx, email, claims)
		if err != nil {
			return user.User{}, err
		}
	default:
		return user.User{}, apperrors.Wrap(apperrors.CodeInternal, "load user by email", err)
	}

	if err := r.linkIdentity(ctx, account.ID, provider, claims.Subject); err != nil {
		return user.User{}, err
	}
	return r.refreshProfile(ctx, account, claims)
}

func (r *Resolver) createUser(ctx context.Context, email string, claims oauthflow.Claims) (user.User, error) {
	account, err := user.CreateUser(user.CreateUserInput{
		Email:   email,
		Name:    claims.Name,
		Picture: claims.Picture,
	}, r.clock, r.idGenerator)
	if err != nil {
		return user.User{}, err
	}
	if err := r.users.PutUser(ctx, account); err != nil {
		// Lost an insert race on the email unique index. The winner's row
		// is the account.
		if errors.Is(err, storage.ErrEmailTaken) {
			winner, readErr := r.users.GetUserByEmail(ctx, email)
			if readErr != nil {
				return user.User{}, apperrors.Wrap(apperrors.CodeInternal, "load winning user", readErr)
			}
			return winner, nil
		}
		return user.User{}, apperrors.Wrap(apperrors.CodeInternal, "persist user", err)
	}
	return account, nil
}

func (r *Resolver) linkIdentity(ctx context.Context, userID, provider, subject string) error {
	identityID, err := r.idGenerator()
	if err != nil {
		return apperrors.Wrap(apperrors.CodeInternal, "generate identity id", err)
	}
	now := r.clock().UTC()
	if err := r.identities.PutIdentity(ctx, storage.Identity{
		ID:        identityID,
		UserID:    userID,
		Provider:  provider,
		Subject:   subject,
		CreatedAt: now,
		UpdatedAt: now,
	}); err != nil {
		return apperrors.Wrap(apperrors.CodeInternal, "persist identity", err)
	}
	return nil
}

// refreshProfile folds newer profile claims into the account without ever
// blanking fields the provider stopped sending.
func (r *Resolver) refreshProfile(ctx context.Context, account user.User, claims oauthflow.Claims) (user.User, error) {
	if !user.MergeProfile(&account, claims.Name, claims.Picture, r.clock().UTC()) {
		return account, nil
	}
	if err := r.users.PutUser(ctx, account); err != nil {
		return user.User{}, apperrors.Wrap(apperrors.CodeInternal, "persist profile update", err)
	}
	return account, nil
}
