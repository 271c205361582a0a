// Package ratchet tracks the key schedule and lifecycle of one pairwise
// session.
//
// The session moves through an explicit state machine:
//
//	Handshaking → Established → Rekeying → Established … → Terminated
//
// While Established, every sent and received message consumes one counter
// value. Message keys are derived deterministically from
// (root, sender, generation, counter), so both peers derive identical keys
// without negotiation, and out-of-order knowledge of a key never requires
// mutating shared state.
//
// When the send counter reaches the rekey threshold the session enters
// Rekeying; a fresh ephemeral exchange produces the next generation's root
// and the old root is wiped immediately. That wipe is the forward-secrecy
// guarantee: current key material cannot reproduce keys of completed
// generations.
//
// Concurrency: a Ratchet is NOT safe for concurrent use. The owning
// session serialises access.
package ratchet
