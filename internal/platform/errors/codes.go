// Package errors provides structured error handling for the auth service.
package errors

import "net/http"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Request errors
	CodeInvalidRequest Code = "INVALID_REQUEST"
	CodeUnauthorized   Code = "UNAUTHORIZED"

	// Challenge errors
	CodeChallengeNotFound Code = "CHALLENGE_NOT_FOUND"
	CodeChallengeExpired  Code = "CHALLENGE_EXPIRED"

	// Credential errors
	CodeCredentialNotFound Code = "CREDENTIAL_NOT_FOUND"
	CodeVerificationFailed Code = "VERIFICATION_FAILED"
	CodeReplayDetected     Code = "REPLAY_DETECTED"

	// OAuth flow errors
	CodeStateMismatch Code = "STATE_MISMATCH"
	CodeProviderError Code = "PROVIDER_ERROR"

	// Storage errors
	CodeNotFound Code = "NOT_FOUND"
	CodeExpired  Code = "EXPIRED"

	// Infrastructure errors
	CodeInternal Code = "INTERNAL"
)

// HTTPStatus maps domain codes to HTTP status codes.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeInvalidRequest,
		CodeStateMismatch:
		return http.StatusBadRequest

	case CodeUnauthorized,
		CodeChallengeNotFound,
		CodeChallengeExpired,
		CodeCredentialNotFound,
		CodeVerificationFailed,
		CodeReplayDetected,
		CodeExpired:
		return http.StatusUnauthorized

	case CodeNotFound:
		return http.StatusNotFound

	case CodeProviderError:
		return http.StatusBadGateway

	default:
		return http.StatusInternalServerError
	}
}

// Message returns the generic text returned to callers.
//
// Responses deliberately collapse detail: a missing credential and a failed
// signature read the same to an attacker probing the API.
func (c Code) Message() string {
	switch c {
	case CodeInvalidRequest:
		return "invalid request"
	case CodeUnauthorized:
		return "authentication required"
	case CodeChallengeNotFound, CodeChallengeExpired:
		return "challenge is invalid or expired"
	case CodeCredentialNotFound, CodeVerificationFailed, CodeReplayDetected:
		return "credential verification failed"
	case CodeStateMismatch:
		return "state verification failed"
	case CodeProviderError:
		return "provider request failed"
	case CodeNotFound:
		return "not found"
	case CodeExpired:
		return "expired"
	default:
		return "internal error"
	}
}
