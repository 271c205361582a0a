package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/utracks/AegisChat/internal/domain"
	"github.com/utracks/AegisChat/internal/protocol/envelope"
	"github.com/utracks/AegisChat/internal/protocol/exchange"
	"github.com/utracks/AegisChat/internal/protocol/ratchet"
	"github.com/utracks/AegisChat/internal/util/memzero"
)

var (
	// ErrNotEstablished means the session cannot carry traffic yet or
	// any more.
	ErrNotEstablished = errors.New("session not established")

	// ErrRekeyPending means a rekey handshake is in flight. The caller
	// should retry once the session returns to Established; the next
	// sealed frame is guaranteed to use the new generation.
	ErrRekeyPending = errors.New("rekey in progress")

	// ErrPeerMismatch means a frame claims a sender other than the
	// session peer.
	ErrPeerMismatch = errors.New("frame from unexpected sender")

	// ErrHandshake means the peer failed to prove possession of the
	// shared secret.
	ErrHandshake = errors.New("handshake confirmation failed")
)

// maxAuthFailures is the number of consecutive tag failures tolerated
// before the session is treated as under attack and terminated.
const maxAuthFailures = 3

// confirmPlaintext is the fixed payload of handshake confirmations; the
// proof is possession of the confirm key, not the content.
var confirmPlaintext = []byte("aegis-confirmed")

// Config tunes a session.
type Config struct {
	// RekeyAfter is the send-counter threshold that triggers a new
	// generation. Zero selects ratchet.DefaultRekeyAfter.
	RekeyAfter int
}

// Session is one end of an encrypted pairwise channel.
//
// The transport must preserve per-peer ordering (a TCP-like duplex
// channel); the session rejects reordered frames rather than reordering
// them silently.
type Session struct {
	mu        sync.Mutex
	local     domain.Identity
	localID   domain.PeerID
	transport domain.Transport
	events    domain.Events
	rat       *ratchet.Ratchet

	peer     domain.PeerID
	peerPub  domain.X25519Public
	havePeer bool

	pendingRoot []byte
	started     bool

	rekeyPriv domain.X25519Private
	rekeyGen  uint32

	verified  bool
	authFails int
}

// New returns a session in the Handshaking state. The peer is learned
// either from Start (initiator) or from the first inbound offer
// (responder).
func New(local domain.Identity, transport domain.Transport, events domain.Events, cfg Config) *Session {
	if events == nil {
		events = domain.NopEvents{}
	}
	return &Session{
		local:     local,
		localID:   domain.PeerIDFromPublic(local.Pub),
		transport: transport,
		events:    events,
		rat:       ratchet.New(cfg.RekeyAfter),
	}
}

// LocalID returns our own peer identifier.
func (s *Session) LocalID() domain.PeerID { return s.localID }

// Peer returns the remote peer identifier (empty until known).
func (s *Session) Peer() domain.PeerID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.peer
}

// State returns the current lifecycle state.
func (s *Session) State() domain.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rat.State()
}

// Generation returns the current key generation.
func (s *Session) Generation() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rat.Generation()
}

// SetVerified records the outcome of out-of-band fingerprint comparison.
func (s *Session) SetVerified(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.verified = v
}

// Authenticated reports whether the session is both established and
// fingerprint-verified, as opposed to merely encrypted.
func (s *Session) Authenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.verified && s.rat.State() == domain.StateEstablished
}

// Start initiates the handshake with the peer owning peerPub.
func (s *Session) Start(ctx context.Context, peerPub domain.X25519Public) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return fmt.Errorf("session already started")
	}
	root, err := exchange.Shared(s.local, peerPub)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.started = true
	s.havePeer = true
	s.peerPub = peerPub
	s.peer = domain.PeerIDFromPublic(peerPub)
	s.pendingRoot = root
	offer := control{Kind: kindOffer, From: s.localID, Pub: s.local.Pub}
	peer := s.peer
	s.mu.Unlock()

	return s.send(ctx, peer, wireMessage{Control: &offer})
}

// Seal encrypts one plaintext for the peer and reserves its counter slot.
// A session that has spent its send budget rekeys before sealing, so the
// last frame of a generation is always on the wire before the rekey offer
// and the next frame rides the new generation.
func (s *Session) Seal(ctx context.Context, plaintext []byte) (*domain.CipherFrame, error) {
	s.mu.Lock()
	needRekey := s.rat.State() == domain.StateEstablished && s.rat.NeedsRekey()
	s.mu.Unlock()
	if needRekey {
		if err := s.initiateRekey(ctx, false); err != nil {
			return nil, err
		}
	}

	s.mu.Lock()
	switch s.rat.State() {
	case domain.StateEstablished:
	case domain.StateRekeying:
		s.mu.Unlock()
		return nil, ErrRekeyPending
	case domain.StateTerminated:
		s.mu.Unlock()
		return nil, ratchet.ErrTerminated
	default:
		s.mu.Unlock()
		return nil, ErrNotEstablished
	}
	gen, counter, key, err := s.rat.NextSend(s.localID)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	frame, err := envelope.Seal(key, s.localID, gen, counter, plaintext)
	memzero.Zero(key[:])
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return frame, nil
}

// Send seals plaintext and ships it through the transport.
func (s *Session) Send(ctx context.Context, plaintext []byte) error {
	frame, err := s.Seal(ctx, plaintext)
	if err != nil {
		return err
	}
	return s.send(ctx, s.Peer(), wireMessage{Frame: frame})
}

// Open authenticates and decrypts a frame received from the peer.
func (s *Session) Open(frame *domain.CipherFrame) ([]byte, error) {
	s.mu.Lock()
	if !s.havePeer || frame.Sender != s.peer {
		s.mu.Unlock()
		return nil, ErrPeerMismatch
	}
	prev := s.rat.State()
	key, err := s.rat.AcceptRecv(frame.Sender, frame.Generation, frame.Counter)
	if err != nil {
		peer := s.peer
		terminated := errors.Is(err, ratchet.ErrReplayOrDesync)
		if terminated {
			s.wipeLocked()
		}
		s.mu.Unlock()
		if terminated {
			s.events.SessionStateChanged(peer, prev, domain.StateTerminated)
		}
		return nil, err
	}
	plaintext, err := envelope.Open(key, frame)
	memzero.Zero(key[:])
	if err != nil {
		s.authFails++
		abusive := s.authFails >= maxAuthFailures
		if abusive {
			s.rat.Terminate()
			s.wipeLocked()
		}
		peer := s.peer
		s.mu.Unlock()
		s.events.AuthenticationFailed(peer)
		if abusive {
			s.events.SessionStateChanged(peer, prev, domain.StateTerminated)
		}
		return nil, err
	}
	s.authFails = 0
	s.rat.CommitRecv()
	s.mu.Unlock()
	return plaintext, nil
}

// HandleInbound feeds one payload received from the transport into the
// session. For data frames the decrypted plaintext is returned; control
// messages return nil plaintext.
func (s *Session) HandleInbound(ctx context.Context, payload []byte) ([]byte, error) {
	msg, err := decodeWire(payload)
	if err != nil {
		return nil, fmt.Errorf("decode wire message: %w", err)
	}
	switch {
	case msg.Frame != nil:
		return s.Open(msg.Frame)
	case msg.Control != nil:
		return nil, s.handleControl(ctx, msg.Control)
	default:
		return nil, fmt.Errorf("empty wire message")
	}
}

// RequestRekey forces a generation change regardless of the counter.
func (s *Session) RequestRekey(ctx context.Context) error {
	return s.initiateRekey(ctx, true)
}

// Close tears the session down: an orderly bye is sent when possible and
// all key material is wiped. Safe to call concurrently with in-flight
// seal or open operations; those complete or fail cleanly.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.rat.State() == domain.StateTerminated {
		s.mu.Unlock()
		return nil
	}
	prev := s.rat.State()
	peer := s.peer
	havePeer := s.havePeer
	s.rat.Terminate()
	s.wipeLocked()
	s.mu.Unlock()

	s.events.SessionStateChanged(peer, prev, domain.StateTerminated)
	if !havePeer {
		return nil
	}
	bye := control{Kind: kindBye, From: s.localID}
	return s.send(ctx, peer, wireMessage{Control: &bye})
}

// --- control handling ---

func (s *Session) handleControl(ctx context.Context, c *control) error {
	switch c.Kind {
	case kindOffer:
		return s.handleOffer(ctx, c)
	case kindAnswer:
		return s.handleAnswer(ctx, c)
	case kindConfirm:
		return s.handleConfirm(c)
	case kindRekeyOffer:
		return s.handleRekeyOffer(ctx, c)
	case kindRekeyAnswer:
		return s.handleRekeyAnswer(c)
	case kindBye:
		return s.handleBye()
	default:
		return fmt.Errorf("unknown control kind %q", c.Kind)
	}
}

// handleOffer runs the responder half of the handshake: derive the root,
// prove possession with a confirmation, and wait for the peer's proof.
func (s *Session) handleOffer(ctx context.Context, c *control) error {
	s.mu.Lock()
	if s.rat.State() != domain.StateHandshaking || s.havePeer {
		s.mu.Unlock()
		return fmt.Errorf("%w: unexpected offer", ErrHandshake)
	}
	if domain.PeerIDFromPublic(c.Pub) != c.From {
		s.mu.Unlock()
		return fmt.Errorf("%w: offer identity mismatch", ErrHandshake)
	}
	root, err := exchange.Shared(s.local, c.Pub)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.havePeer = true
	s.peerPub = c.Pub
	s.peer = c.From
	s.pendingRoot = root

	confirm, err := s.confirmFrameLocked()
	if err != nil {
		s.mu.Unlock()
		return err
	}
	answer := control{Kind: kindAnswer, From: s.localID, Pub: s.local.Pub, Confirm: confirm}
	peer := s.peer
	s.mu.Unlock()

	return s.send(ctx, peer, wireMessage{Control: &answer})
}

// handleAnswer completes the initiator half: verify the responder's
// confirmation, send our own, and establish.
func (s *Session) handleAnswer(ctx context.Context, c *control) error {
	s.mu.Lock()
	if s.rat.State() != domain.StateHandshaking || !s.started {
		s.mu.Unlock()
		return fmt.Errorf("%w: unexpected answer", ErrHandshake)
	}
	if c.Pub != s.peerPub || c.From != s.peer {
		s.mu.Unlock()
		return fmt.Errorf("%w: answer identity mismatch", ErrHandshake)
	}
	if err := s.verifyConfirmLocked(c.Confirm); err != nil {
		s.failHandshakeLocked()
		peer := s.peer
		s.mu.Unlock()
		s.events.SessionStateChanged(peer, domain.StateHandshaking, domain.StateTerminated)
		return err
	}
	confirm, err := s.confirmFrameLocked()
	if err != nil {
		s.mu.Unlock()
		return err
	}
	if err := s.rat.Establish(s.pendingRoot); err != nil {
		s.mu.Unlock()
		return err
	}
	s.pendingRoot = nil
	msg := control{Kind: kindConfirm, From: s.localID, Confirm: confirm}
	peer := s.peer
	s.mu.Unlock()

	s.events.SessionStateChanged(peer, domain.StateHandshaking, domain.StateEstablished)
	return s.send(ctx, peer, wireMessage{Control: &msg})
}

// handleConfirm finishes the responder side once the initiator proves key
// possession.
func (s *Session) handleConfirm(c *control) error {
	s.mu.Lock()
	if s.rat.State() != domain.StateHandshaking || !s.havePeer || c.From != s.peer {
		s.mu.Unlock()
		return fmt.Errorf("%w: unexpected confirm", ErrHandshake)
	}
	if err := s.verifyConfirmLocked(c.Confirm); err != nil {
		s.failHandshakeLocked()
		peer := s.peer
		s.mu.Unlock()
		s.events.SessionStateChanged(peer, domain.StateHandshaking, domain.StateTerminated)
		return err
	}
	if err := s.rat.Establish(s.pendingRoot); err != nil {
		s.mu.Unlock()
		return err
	}
	s.pendingRoot = nil
	peer := s.peer
	s.mu.Unlock()

	s.events.SessionStateChanged(peer, domain.StateHandshaking, domain.StateEstablished)
	return nil
}

// initiateRekey begins a generation change as the offering side.
func (s *Session) initiateRekey(ctx context.Context, force bool) error {
	s.mu.Lock()
	if s.rat.State() != domain.StateEstablished || (!force && !s.rat.NeedsRekey()) {
		s.mu.Unlock()
		return nil
	}
	ephPriv, ephPub, err := exchange.Ephemeral()
	if err != nil {
		s.mu.Unlock()
		return err
	}
	if err := s.rat.BeginRekey(); err != nil {
		s.mu.Unlock()
		return err
	}
	s.rekeyPriv = ephPriv
	s.rekeyGen = s.rat.Generation() + 1
	offer := control{Kind: kindRekeyOffer, From: s.localID, Pub: ephPub, Generation: s.rekeyGen}
	peer := s.peer
	s.mu.Unlock()

	s.events.SessionStateChanged(peer, domain.StateEstablished, domain.StateRekeying)
	return s.send(ctx, peer, wireMessage{Control: &offer})
}

// handleRekeyOffer answers a peer-initiated rekey. If both sides offered
// simultaneously, the peer with the lexicographically smaller identity
// public key keeps the initiator role; the other side discards its own
// offer and responds.
func (s *Session) handleRekeyOffer(ctx context.Context, c *control) error {
	s.mu.Lock()
	if !s.havePeer || c.From != s.peer {
		s.mu.Unlock()
		return ErrPeerMismatch
	}
	entered := s.rat.State()
	switch entered {
	case domain.StateRekeying:
		if ratchet.Initiator(s.local.Pub, s.peerPub) {
			// We keep the initiator role; the peer will answer our offer.
			s.mu.Unlock()
			return nil
		}
		memzero.Zero(s.rekeyPriv[:])
		s.rat.CancelRekey()
	case domain.StateEstablished:
	default:
		s.mu.Unlock()
		return ErrNotEstablished
	}
	if c.Generation != s.rat.Generation()+1 {
		prev := s.rat.State()
		s.rat.Terminate()
		s.wipeLocked()
		peer := s.peer
		s.mu.Unlock()
		s.events.SessionStateChanged(peer, prev, domain.StateTerminated)
		return ratchet.ErrReplayOrDesync
	}
	ephPriv, ephPub, err := exchange.Ephemeral()
	if err != nil {
		s.mu.Unlock()
		return err
	}
	newRoot, err := exchange.Mix(s.rat.Root(), ephPriv, c.Pub)
	memzero.Zero(ephPriv[:])
	if err != nil {
		s.mu.Unlock()
		return err
	}
	if err := s.rat.CompleteRekey(newRoot); err != nil {
		s.mu.Unlock()
		return err
	}
	answer := control{Kind: kindRekeyAnswer, From: s.localID, Pub: ephPub, Generation: c.Generation}
	peer := s.peer
	s.mu.Unlock()

	// A demoted initiator already announced established>rekeying when it
	// sent its own offer.
	if entered == domain.StateEstablished {
		s.events.SessionStateChanged(peer, domain.StateEstablished, domain.StateRekeying)
	}
	s.events.SessionStateChanged(peer, domain.StateRekeying, domain.StateEstablished)
	return s.send(ctx, peer, wireMessage{Control: &answer})
}

// handleRekeyAnswer completes an initiator-side rekey.
func (s *Session) handleRekeyAnswer(c *control) error {
	s.mu.Lock()
	if s.rat.State() != domain.StateRekeying || c.From != s.peer || c.Generation != s.rekeyGen {
		s.mu.Unlock()
		return nil // stale or demoted offer, ignore
	}
	newRoot, err := exchange.Mix(s.rat.Root(), s.rekeyPriv, c.Pub)
	memzero.Zero(s.rekeyPriv[:])
	if err != nil {
		s.mu.Unlock()
		return err
	}
	if err := s.rat.CompleteRekey(newRoot); err != nil {
		s.mu.Unlock()
		return err
	}
	peer := s.peer
	s.mu.Unlock()

	s.events.SessionStateChanged(peer, domain.StateRekeying, domain.StateEstablished)
	return nil
}

func (s *Session) handleBye() error {
	s.mu.Lock()
	if s.rat.State() == domain.StateTerminated {
		s.mu.Unlock()
		return nil
	}
	prev := s.rat.State()
	s.rat.Terminate()
	s.wipeLocked()
	peer := s.peer
	s.mu.Unlock()

	s.events.SessionStateChanged(peer, prev, domain.StateTerminated)
	return nil
}

// --- helpers ---

// confirmFrameLocked seals the handshake confirmation under our direction
// of the pending root.
func (s *Session) confirmFrameLocked() (*domain.CipherFrame, error) {
	key := ratchet.ConfirmKey(s.pendingRoot, s.localID)
	frame, err := envelope.Seal(key, s.localID, 0, 0, confirmPlaintext)
	memzero.Zero(key[:])
	return frame, err
}

// verifyConfirmLocked checks the peer's possession proof.
func (s *Session) verifyConfirmLocked(frame *domain.CipherFrame) error {
	if frame == nil {
		return fmt.Errorf("%w: missing confirmation", ErrHandshake)
	}
	key := ratchet.ConfirmKey(s.pendingRoot, s.peer)
	pt, err := envelope.Open(key, frame)
	memzero.Zero(key[:])
	if err != nil {
		return fmt.Errorf("%w: %v", ErrHandshake, err)
	}
	memzero.Zero(pt)
	return nil
}

// failHandshakeLocked aborts an unconfirmed handshake.
func (s *Session) failHandshakeLocked() {
	s.rat.Terminate()
	s.wipeLocked()
}

// wipeLocked zeroes every secret the session still holds. The ratchet has
// already wiped its root by the time this runs.
func (s *Session) wipeLocked() {
	memzero.Zero(s.pendingRoot)
	s.pendingRoot = nil
	memzero.Zero(s.rekeyPriv[:])
}

func (s *Session) send(ctx context.Context, peer domain.PeerID, msg wireMessage) error {
	payload, err := encodeWire(msg)
	if err != nil {
		return err
	}
	return s.transport.Send(ctx, peer, payload)
}
