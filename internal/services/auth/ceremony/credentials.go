package ceremony

import (
	"context"
	"errors"
	"strings"

	apperrors "github.com/mhamrah/hamrah-auth/internal/platform/errors"
	"github.com/mhamrah/hamrah-auth/internal/services/auth/storage"
)

const maxDisplayNameLength = 64

// ListCredentials returns every credential registered to a user.
func (m *Manager) ListCredentials(ctx context.Context, userID string) ([]storage.Credential, error) {
	records, err := m.credentials.ListCredentials(ctx, userID)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, "list credentials", err)
	}
	return records, nil
}

// RenameCredential sets a user-chosen display name on one of the caller's
// credentials. A credential owned by someone else reads as absent.
func (m *Manager) RenameCredential(ctx context.Context, userID, credentialID, displayName string) error {
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		return apperrors.New(apperrors.CodeInvalidRequest, "display name is required")
	}
	if len(displayName) > maxDisplayNameLength {
		return apperrors.New(apperrors.CodeInvalidRequest, "display name is too long")
	}

	if err := m.checkOwnership(ctx, userID, credentialID); err != nil {
		return err
	}
	if err := m.credentials.RenameCredential(ctx, credentialID, displayName, m.clock().UTC()); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return apperrors.New(apperrors.CodeCredentialNotFound, "credential not found")
		}
		return apperrors.Wrap(apperrors.CodeInternal, "rename credential", err)
	}
	return nil
}

// DeleteCredential removes one of the caller's credentials.
func (m *Manager) DeleteCredential(ctx context.Context, userID, credentialID string) error {
	if err := m.checkOwnership(ctx, userID, credentialID); err != nil {
		return err
	}
	if err := m.credentials.DeleteCredential(ctx, credentialID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return apperrors.New(apperrors.CodeCredentialNotFound, "credential not found")
		}
		return apperrors.Wrap(apperrors.CodeInternal, "delete credential", err)
	}
	return nil
}

func (m *Manager) checkOwnership(ctx context.Context, userID, credentialID string) error {
	stored, err := m.credentials.GetCredential(ctx, credentialID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return apperrors.New(apperrors.CodeCredentialNotFound, "credential not found")
		}
		return apperrors.Wrap(apperrors.CodeInternal, "load credential", err)
	}
	if stored.UserID != userID {
		return apperrors.New(apperrors.CodeCredentialNotFound, "credential not found")
	}
	return nil
}
