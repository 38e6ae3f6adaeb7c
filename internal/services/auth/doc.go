// Package auth defines the identity boundary of the service.
//
// It owns user lifecycle, authentication ceremonies, and credential issuance
// so callers can depend on stable user IDs and session semantics instead of
// re-implementing identity rules.
//
// Subpackages:
//   - app: server wiring and lifecycle
//   - api/web: client-facing JSON and cookie endpoints
//   - ceremony: WebAuthn registration and authentication ceremonies
//   - challenge: single-use cryptographic challenge issuance
//   - oauthflow: OAuth2/OIDC PKCE flows against external providers
//   - session: session and bearer token issuance
//   - identity: provider identity resolution onto user accounts
//   - storage: persistence interfaces and SQLite implementations
//   - user: user domain model and helpers
package auth
