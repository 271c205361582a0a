package ratchet

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"io"

	"golang.org/x/crypto/hkdf"

	"github.com/utracks/AegisChat/internal/domain"
	"github.com/utracks/AegisChat/internal/util/memzero"
)

// DefaultRekeyAfter is the number of sent messages after which a session
// requests a fresh generation.
const DefaultRekeyAfter = 100

// KeySize is the size of a derived message key.
const KeySize = 32

var (
	// ErrReplayOrDesync means a received frame's generation or counter
	// regressed. The session must be terminated; the frame is rejected.
	ErrReplayOrDesync = errors.New("replay or counter desync detected")

	// ErrOutOfOrder means a received frame is ahead of the expected
	// counter. Non-fatal: the caller may buffer and retry in order.
	ErrOutOfOrder = errors.New("frame ahead of expected counter")

	// ErrTerminated means the session has been torn down and its key
	// material wiped.
	ErrTerminated = errors.New("session terminated")

	// ErrBadTransition means an operation is illegal in the current
	// lifecycle state.
	ErrBadTransition = errors.New("invalid session state transition")
)

// Ratchet owns the root secret, counters and lifecycle state for one
// pairwise session.
type Ratchet struct {
	state      domain.SessionState
	generation uint32
	sendN      uint64
	recvN      uint64
	root       []byte
	rekeyAfter uint64
}

// New returns a ratchet in the Handshaking state. rekeyAfter <= 0 selects
// DefaultRekeyAfter.
func New(rekeyAfter int) *Ratchet {
	after := uint64(DefaultRekeyAfter)
	if rekeyAfter > 0 {
		after = uint64(rekeyAfter)
	}
	return &Ratchet{state: domain.StateHandshaking, rekeyAfter: after}
}

// State returns the current lifecycle state.
func (r *Ratchet) State() domain.SessionState { return r.state }

// Generation returns the current key generation.
func (r *Ratchet) Generation() uint32 { return r.generation }

// SendCounter returns the next send counter value.
func (r *Ratchet) SendCounter() uint64 { return r.sendN }

// RecvCounter returns the next expected receive counter value.
func (r *Ratchet) RecvCounter() uint64 { return r.recvN }

// Establish installs the initial root and moves to Established.
func (r *Ratchet) Establish(root []byte) error {
	if r.state != domain.StateHandshaking {
		return ErrBadTransition
	}
	r.root = root
	r.state = domain.StateEstablished
	return nil
}

// NextSend reserves the next send slot and derives its message key.
func (r *Ratchet) NextSend(sender domain.PeerID) (gen uint32, counter uint64, key [KeySize]byte, err error) {
	switch r.state {
	case domain.StateTerminated:
		err = ErrTerminated
		return
	case domain.StateEstablished:
	default:
		err = ErrBadTransition
		return
	}
	gen, counter = r.generation, r.sendN
	key = MessageKey(r.root, sender, gen, counter)
	r.sendN++
	return
}

// NeedsRekey reports whether the send counter has reached the threshold.
func (r *Ratchet) NeedsRekey() bool {
	return r.state == domain.StateEstablished && r.sendN >= r.rekeyAfter
}

// AcceptRecv validates an inbound (generation, counter) pair and derives
// its message key. Regressions wipe the session per replay protection;
// frames ahead of the expected counter are rejected but recoverable.
//
// The counter is not consumed here: the caller commits it with CommitRecv
// only after the frame authenticates, so forged frames cannot burn slots
// and desynchronise the honest peer.
func (r *Ratchet) AcceptRecv(sender domain.PeerID, gen uint32, counter uint64) (key [KeySize]byte, err error) {
	switch r.state {
	case domain.StateTerminated:
		return key, ErrTerminated
	case domain.StateEstablished, domain.StateRekeying:
	default:
		return key, ErrBadTransition
	}
	if gen != r.generation || counter < r.recvN {
		r.Terminate()
		return key, ErrReplayOrDesync
	}
	if counter > r.recvN {
		return key, ErrOutOfOrder
	}
	key = MessageKey(r.root, sender, gen, counter)
	return key, nil
}

// CommitRecv consumes the receive counter reserved by AcceptRecv.
func (r *Ratchet) CommitRecv() {
	r.recvN++
}

// BeginRekey moves Established → Rekeying.
func (r *Ratchet) BeginRekey() error {
	if r.state != domain.StateEstablished {
		return ErrBadTransition
	}
	r.state = domain.StateRekeying
	return nil
}

// CancelRekey returns to Established without advancing, used when the
// tie-break demotes this side to responder.
func (r *Ratchet) CancelRekey() {
	if r.state == domain.StateRekeying {
		r.state = domain.StateEstablished
	}
}

// CompleteRekey installs the next generation's root, wipes the old one and
// resets both counters. Valid from Established (responder side answers
// without a full transition) and Rekeying (initiator side).
func (r *Ratchet) CompleteRekey(newRoot []byte) error {
	switch r.state {
	case domain.StateEstablished, domain.StateRekeying:
	default:
		return ErrBadTransition
	}
	memzero.Zero(r.root)
	r.root = newRoot
	r.generation++
	r.sendN, r.recvN = 0, 0
	r.state = domain.StateEstablished
	return nil
}

// Root exposes the current root for rekey mixing. Callers must not retain
// the slice past the operation.
func (r *Ratchet) Root() []byte { return r.root }

// Terminate wipes key material and freezes the ratchet. Idempotent.
func (r *Ratchet) Terminate() {
	if r.state == domain.StateTerminated {
		return
	}
	memzero.Zero(r.root)
	r.root = nil
	r.state = domain.StateTerminated
}

// Initiator decides the rekey tie-break: the peer with the
// lexicographically smaller identity public key initiates, the other
// responds. Deterministic on both sides, so simultaneous triggers cannot
// produce conflicting ratchet advances.
func Initiator(local, remote domain.X25519Public) bool {
	return bytes.Compare(local[:], remote[:]) < 0
}

// MessageKey derives the key for one message. Pure: identical inputs give
// identical keys on both peers. The sender identity is mixed in so the
// two directions of a pair never share keys.
func MessageKey(root []byte, sender domain.PeerID, generation uint32, counter uint64) [KeySize]byte {
	info := make([]byte, 0, len("aegis/msg/v1|")+len(sender)+12)
	info = append(info, "aegis/msg/v1|"...)
	info = append(info, sender...)
	var b [12]byte
	binary.BigEndian.PutUint32(b[:4], generation)
	binary.BigEndian.PutUint64(b[4:], counter)
	info = append(info, b[:]...)

	var key [KeySize]byte
	r := hkdf.New(sha256.New, root, nil, info)
	_, _ = io.ReadFull(r, key[:])
	return key
}

// ConfirmKey derives the handshake confirmation key for one direction.
// Proving possession of it completes authentication of the exchange.
func ConfirmKey(root []byte, sender domain.PeerID) [KeySize]byte {
	info := append([]byte("aegis/confirm/v1|"), sender...)
	var key [KeySize]byte
	r := hkdf.New(sha256.New, root, nil, info)
	_, _ = io.ReadFull(r, key[:])
	return key
}
