// Package session issues and validates the two credential shapes clients
// hold between logins: durable cookie sessions for web, rotating bearer
// token pairs for mobile.
//
// Refresh tokens are single use. A refresh token that was already rotated is
// treated as stolen and revokes every live pair the user has.
package session
