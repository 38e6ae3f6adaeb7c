package web

import (
	"encoding/json"
	"errors"
	"net/http"

	apperrors "github.com/mhamrah/hamrah-auth/internal/platform/errors"
	"github.com/mhamrah/hamrah-auth/internal/platform/id"
	"github.com/mhamrah/hamrah-auth/internal/services/auth/ceremony"
	"github.com/mhamrah/hamrah-auth/internal/services/auth/session"
	"github.com/mhamrah/hamrah-auth/internal/services/auth/storage"
	"github.com/mhamrah/hamrah-auth/internal/services/auth/user"
)

type registerBeginRequest struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

type registerCompleteRequest struct {
	ChallengeID string          `json:"challenge_id"`
	Email       string          `json:"email"`
	Platform    string          `json:"platform"`
	Response    json.RawMessage `json:"response"`
}

type loginBeginRequest struct {
	Email string `json:"email"`
}

type loginCompleteRequest struct {
	ChallengeID string          `json:"challenge_id"`
	Platform    string          `json:"platform"`
	Response    json.RawMessage `json:"response"`
}

type ceremonyStartResponse struct {
	ChallengeID string `json:"challenge_id"`
	Options     any    `json:"options"`
}

type authenticatedResponse struct {
	User       userPayload        `json:"user"`
	Credential *credentialPayload `json:"credential,omitempty"`
	Tokens     *tokenPayload      `json:"tokens,omitempty"`
}

func (s *Server) handleRegisterBegin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var request registerBeginRequest
	if err := decodeJSONBody(r, &request); err != nil {
		writeDomainError(w, r, err)
		return
	}

	account, err := s.registrationAccount(r, request.Email, request.Name)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	start, err := s.ceremonies.BeginRegistration(r.Context(), account)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ceremonyStartResponse{
		ChallengeID: start.ChallengeID,
		Options:     start.Options,
	})
}

// registrationAccount picks the account a new passkey attaches to: the
// signed-in caller if there is one, otherwise a brand-new bootstrap account.
// An existing email without a session is refused outright. Anyone can learn
// an email address, so honoring it here would let a stranger plant their own
// passkey on someone else's account.
func (s *Server) registrationAccount(r *http.Request, email, name string) (user.User, error) {
	account, err := s.currentUser(r)
	switch {
	case err == nil:
		return account, nil
	case !errors.Is(err, session.ErrUnauthorized):
		return user.User{}, err
	}

	normalized := user.NormalizeEmail(email)
	if err := user.ValidateEmail(normalized); err != nil {
		return user.User{}, err
	}
	_, err = s.users.GetUserByEmail(r.Context(), normalized)
	switch {
	case err == nil:
		return user.User{}, apperrors.New(apperrors.CodeUnauthorized, "sign in before adding a passkey to an existing account")
	case errors.Is(err, storage.ErrNotFound):
	default:
		return user.User{}, apperrors.Wrap(apperrors.CodeInternal, "load user by email", err)
	}

	account, err = user.CreateUser(user.CreateUserInput{Email: normalized, Name: name}, s.clock, id.NewID)
	if err != nil {
		return user.User{}, err
	}
	if err := s.users.PutUser(r.Context(), account); err != nil {
		if errors.Is(err, storage.ErrEmailTaken) {
			return user.User{}, apperrors.New(apperrors.CodeUnauthorized, "sign in before adding a passkey to an existing account")
		}
		return user.User{}, apperrors.Wrap(apperrors.CodeInternal, "persist user", err)
	}
	return account, nil
}

// completionAccount resolves the account a registration response belongs to.
// Unauthenticated callers may name the bootstrap account their begin call
// created; the ceremony's challenge ownership check stops anyone who never
// held a challenge minted for that account.
func (s *Server) completionAccount(r *http.Request, email string) (user.User, error) {
	account, err := s.currentUser(r)
	switch {
	case err == nil:
		return account, nil
	case !errors.Is(err, session.ErrUnauthorized):
		return user.User{}, err
	}

	normalized := user.NormalizeEmail(email)
	if err := user.ValidateEmail(normalized); err != nil {
		return user.User{}, err
	}
	account, err = s.users.GetUserByEmail(r.Context(), normalized)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return user.User{}, apperrors.New(apperrors.CodeUnauthorized, "no account matches this registration")
		}
		return user.User{}, apperrors.Wrap(apperrors.CodeInternal, "load user by email", err)
	}
	return account, nil
}

func (s *Server) handleRegisterComplete(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var request registerCompleteRequest
	if err := decodeJSONBody(r, &request); err != nil {
		writeDomainError(w, r, err)
		return
	}

	account, err := s.completionAccount(r, request.Email)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	credential, err := s.ceremonies.CompleteRegistration(r.Context(), account, request.ChallengeID, request.Response)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	tokens, err := s.issueCredentials(w, r, account, request.Platform)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	created := toCredentialPayload(credential)
	response := authenticatedResponse{
		User:       toUserPayload(account),
		Credential: &created,
	}
	if tokens != nil {
		payload := toTokenPayload(*tokens)
		response.Tokens = &payload
	}
	writeJSON(w, http.StatusOK, response)
}

func (s *Server) handleLoginBegin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var request loginBeginRequest
	if err := decodeJSONBody(r, &request); err != nil {
		writeDomainError(w, r, err)
		return
	}

	variant := ceremony.VariantDiscoverable
	var account *user.User
	if email := user.NormalizeEmail(request.Email); email != "" {
		found, err := s.users.GetUserByEmail(r.Context(), email)
		if err != nil {
			// An unknown email reads the same as a known one with no
			// passkeys.
			if errors.Is(err, storage.ErrNotFound) {
				writeDomainError(w, r, apperrors.New(apperrors.CodeCredentialNotFound, "no credentials registered"))
				return
			}
			writeDomainError(w, r, apperrors.Wrap(apperrors.CodeInternal, "load user by email", err))
			return
		}
		variant = ceremony.VariantTargeted
		account = &found
	}

	start, err := s.ceremonies.BeginAuthentication(r.Context(), variant, account)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ceremonyStartResponse{
		ChallengeID: start.ChallengeID,
		Options:     start.Options,
	})
}

func (s *Server) handleLoginComplete(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var request loginCompleteRequest
	if err := decodeJSONBody(r, &request); err != nil {
		writeDomainError(w, r, err)
		return
	}

	result, err := s.ceremonies.CompleteAuthentication(r.Context(), request.ChallengeID, request.Response)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	tokens, err := s.issueCredentials(w, r, result.User, request.Platform)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	response := authenticatedResponse{User: toUserPayload(result.User)}
	if tokens != nil {
		payload := toTokenPayload(*tokens)
		response.Tokens = &payload
	}
	writeJSON(w, http.StatusOK, response)
}

func (s *Server) handleCredentialList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	account, err := s.currentUser(r)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	credentials, err := s.ceremonies.ListCredentials(r.Context(), account.ID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	payload := make([]credentialPayload, 0, len(credentials))
	for _, credential := range credentials {
		payload = append(payload, toCredentialPayload(credential))
	}
	writeJSON(w, http.StatusOK, map[string][]credentialPayload{"credentials": payload})
}

type renameCredentialRequest struct {
	DisplayName string `json:"display_name"`
}

func (s *Server) handleCredentialItem(w http.ResponseWriter, r *http.Request, credentialID string) {
	account, err := s.currentUser(r)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	switch r.Method {
	case http.MethodPatch:
		var request renameCredentialRequest
		if err := decodeJSONBody(r, &request); err != nil {
			writeDomainError(w, r, err)
			return
		}
		if err := s.ceremonies.RenameCredential(r.Context(), account.ID, credentialID, request.DisplayName); err != nil {
			writeDomainError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	case http.MethodDelete:
		if err := s.ceremonies.DeleteCredential(r.Context(), account.ID, credentialID); err != nil {
			writeDomainError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}
