// Package crypto exposes the minimal primitives used by AegisChat.
//
// Contents
//
//   - X25519 key generation, clamping and Diffie–Hellman (GenerateX25519, DH)
//   - Short public-key fingerprints for display and out-of-band
//     verification (Fingerprint)
//
// # Notes
//
// All functions work with the fixed-size array types defined in
// internal/domain to avoid accidental reallocations. Callers should treat
// returned secrets as sensitive and rely on memzero.Zero to reduce their
// lifetime in memory.
package crypto
