// Package envelope produces and consumes authenticated ciphertext frames.
//
// Frames are sealed with ChaCha20-Poly1305. The nonce is derived from
// (generation, counter) rather than stored, so a nonce can never repeat
// under one key by construction. The Poly1305 tag covers both the
// ciphertext and the associated data (sender identity and generation),
// which defeats cross-session and cross-sender substitution.
package envelope
