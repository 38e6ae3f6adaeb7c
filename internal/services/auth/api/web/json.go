package web

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	apperrors "github.com/mhamrah/hamrah-auth/internal/platform/errors"
	"github.com/mhamrah/hamrah-auth/internal/services/auth/storage"
	"github.com/mhamrah/hamrah-auth/internal/services/auth/user"
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

type userPayload struct {
	ID      string `json:"id"`
	Email   string `json:"email"`
	Name    string `json:"name,omitempty"`
	Picture string `json:"picture,omitempty"`
}

type credentialPayload struct {
	ID             string     `json:"id"`
	DisplayName    string     `json:"display_name"`
	Transports     []string   `json:"transports,omitempty"`
	BackupEligible bool       `json:"backup_eligible"`
	BackupState    bool       `json:"backup_state"`
	CreatedAt      time.Time  `json:"created_at"`
	LastUsedAt     *time.Time `json:"last_used_at,omitempty"`
}

type tokenPayload struct {
	AccessToken      string    `json:"access_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshToken     string    `json:"refresh_token"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

func toUserPayload(account user.User) userPayload {
	return userPayload{
		ID:      account.ID,
		Email:   account.Email,
		Name:    account.Name,
		Picture: account.Picture,
	}
}

func toCredentialPayload(credential storage.Credential) credentialPayload {
	return credentialPayload{
		ID:             credential.ID,
		DisplayName:    credential.DisplayName,
		Transports:     credential.Transports,
		BackupEligible: credential.BackupEligible,
		BackupState:    credential.BackupState,
		CreatedAt:      credential.CreatedAt,
		LastUsedAt:     credential.LastUsedAt,
	}
}

func toTokenPayload(pair storage.TokenPair) tokenPayload {
	return tokenPayload{
		AccessToken:      pair.AccessToken,
		AccessExpiresAt:  pair.AccessExpiresAt,
		RefreshToken:     pair.RefreshToken,
		RefreshExpiresAt: pair.RefreshExpiresAt,
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	encoder := json.NewEncoder(w)
	_ = encoder.Encode(payload)
}

// writeDomainError maps an error to its generic wire form. The detailed
// message stays in the server log; callers only see the collapsed text for
// the code.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	code := apperrors.GetCode(err)
	if code == apperrors.CodeUnknown {
		code = apperrors.CodeInternal
	}
	if status := code.HTTPStatus(); status >= http.StatusInternalServerError {
		log.Printf("%s %s: %v", r.Method, r.URL.Path, err)
	}
	writeJSON(w, code.HTTPStatus(), errorResponse{Error: code.Message(), Code: string(code)})
}

func decodeJSONBody(r *http.Request, target any) error {
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		return apperrors.Wrap(apperrors.CodeInvalidRequest, "decode request body", err)
	}
	return nil
}
