package user

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	apperrors "github.com/mhamrah/hamrah-auth/internal/platform/errors"
	"github.com/mhamrah/hamrah-auth/internal/platform/id"
)

var (
	// ErrEmptyEmail indicates a missing email address.
	ErrEmptyEmail = apperrors.New(apperrors.CodeInvalidRequest, "email is required")
	// ErrInvalidEmail indicates an email that does not match the required format.
	ErrInvalidEmail = apperrors.New(apperrors.CodeInvalidRequest, "email is not valid")

	emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
)

// User represents an authenticated identity record.
//
// A user is created once per unique email and accumulates provider links and
// credentials from subsequent logins.
type User struct {
	ID        string
	Email     string
	Name      string
	Picture   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CreateUserInput describes the metadata needed to create a user.
type CreateUserInput struct {
	Email   string
	Name    string
	Picture string
}

// NormalizeEmail lowercases and trims an email address.
//
// Every lookup and every stored row goes through this so provider spelling
// differences cannot split one person across two accounts.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidateEmail enforces the canonical email shape used for account merging.
func ValidateEmail(email string) error {
	if email == "" {
		return ErrEmptyEmail
	}
	if !emailPattern.MatchString(email) {
		return ErrInvalidEmail
	}
	return nil
}

// CreateUser creates a durable user identity from validated input.
func CreateUser(input CreateUserInput, now func() time.Time, idGenerator func() (string, error)) (User, error) {
	if now == nil {
		now = time.Now
	}
	if idGenerator == nil {
		idGenerator = id.NewID
	}

	normalized, err := NormalizeCreateUserInput(input)
	if err != nil {
		return User{}, err
	}

	userID, err := idGenerator()
	if err != nil {
		return User{}, fmt.Errorf("generate user id: %w", err)
	}

	createdAt := now().UTC()
	return User{
		ID:        userID,
		Email:     normalized.Email,
		Name:      normalized.Name,
		Picture:   normalized.Picture,
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}, nil
}

// NormalizeCreateUserInput trims and normalizes input before validation.
func NormalizeCreateUserInput(input CreateUserInput) (CreateUserInput, error) {
	input.Email = NormalizeEmail(input.Email)
	if err := ValidateEmail(input.Email); err != nil {
		return CreateUserInput{}, err
	}
	input.Name = strings.TrimSpace(input.Name)
	input.Picture = strings.TrimSpace(input.Picture)
	return input, nil
}

// MergeProfile folds incoming profile data into an existing user.
//
// Populated fields are never overwritten with empty incoming values: Apple's
// privacy relay only supplies a name on the very first login, and a later
// login without one must not blank it out. Returns true when anything changed.
func MergeProfile(existing *User, name, picture string, now time.Time) bool {
	changed := false
	name = strings.TrimSpace(name)
	picture = strings.TrimSpace(picture)
	if name != "" && name != existing.Name {
		existing.Name = name
		changed = true
	}
	if picture != "" && picture != existing.Picture {
		existing.Picture = picture
		changed = true
	}
	if changed {
		existing.UpdatedAt = now.UTC()
	}
	return changed
}
