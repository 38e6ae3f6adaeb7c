// Package oauthflow runs authorization-code PKCE flows against external
// identity providers.
//
// It isolates redirect/state/token choreography from HTTP handlers so the
// service keeps a single identity contract no matter which provider answered.
// Flow state is persisted keyed by the state token and consumed exactly once;
// a state that fails to consume stops the flow before any provider network
// call happens.
package oauthflow
