// Package session drives one encrypted pairwise session over a caller
// supplied transport.
//
// # Overview
//
// A Session wires the key exchange, ratchet and envelope together and
// speaks a small JSON control protocol:
//
//	offer        initiator's identity public key
//	answer       responder's identity public key plus its confirmation
//	confirm      initiator's confirmation, completes the handshake
//	rekey-offer  fresh ephemeral public key for the next generation
//	rekey-answer responder's ephemeral public key
//	bye          orderly teardown
//
// Confirmation frames are sealed under a key derived from the shared root,
// so each side proves possession of the secret before the session is
// marked Established.
//
// # Concurrency
//
// All exported methods are safe for concurrent use. A single mutex guards
// counters, generation and root; transport sends and event callbacks
// always happen outside the lock, so synchronous in-memory transports
// cannot deadlock the session.
package session
