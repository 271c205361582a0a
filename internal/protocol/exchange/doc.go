// Package exchange implements the ephemeral Diffie–Hellman key agreement
// used to bootstrap and rekey pairwise sessions.
//
// # Overview
//
// Shared derives a 32-byte root secret from our identity key and the
// peer's public key. The raw X25519 output is never used directly: it is
// always passed through HKDF first, so the root can never collide with
// identity key material.
//
// Mix performs one ratchet step for rekeying: a fresh ephemeral DH result
// is combined with the previous root via HKDF, after which the previous
// root must be wiped. Compromise of the new root does not reveal the old
// one (the KDF is one-way), which is the forward-secrecy anchor.
//
// # Errors
//
// ErrInvalidPeerKey is returned for malformed or low-order peer keys.
// Accepting such a key would silently produce a predictable secret, so it
// is rejected explicitly and covered by tests.
package exchange
