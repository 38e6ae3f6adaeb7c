// Package ceremony runs WebAuthn registration and authentication ceremonies.
//
// Every ceremony is anchored to a server-issued challenge: begin operations
// mint one and splice it into the options the client signs, complete
// operations consume it exactly once before any cryptographic verification
// happens. Signature counters advance through a conditional storage update so
// a cloned authenticator surfaces as a replay instead of a silent overwrite.
package ceremony
