// Package server composes and runs the auth process boundary.
//
// It wires the SQLite store into the ceremony, flow, session, and identity
// components, serves the JSON API over HTTP, and sweeps expired transient
// records in the background.
package server
