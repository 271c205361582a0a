package room

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/utracks/AegisChat/internal/domain"
	"github.com/utracks/AegisChat/internal/session"
)

var (
	// ErrAlreadyMember means Join was called for a peer that is already
	// in the room.
	ErrAlreadyMember = errors.New("peer already in room")

	// ErrNotMember means the peer has no membership in this room.
	ErrNotMember = errors.New("peer not in room")
)

// MemberState tracks a member's handshake progress.
type MemberState int

const (
	// MemberPending means the pairwise handshake has not completed; the
	// member receives no broadcast traffic yet.
	MemberPending MemberState = iota
	// MemberActive means the pairwise session is established.
	MemberActive
)

type member struct {
	sess *session.Session
	pub  domain.X25519Public
}

// Coordinator manages the local participant's sessions with every other
// room member. Safe for concurrent use.
type Coordinator struct {
	local     domain.Identity
	localID   domain.PeerID
	transport domain.Transport
	events    domain.Events
	cfg       session.Config

	mu      sync.RWMutex
	members map[domain.PeerID]*member
}

// New returns an empty room coordinator for the local identity.
func New(local domain.Identity, transport domain.Transport, events domain.Events, cfg session.Config) *Coordinator {
	if events == nil {
		events = domain.NopEvents{}
	}
	return &Coordinator{
		local:     local,
		localID:   domain.PeerIDFromPublic(local.Pub),
		transport: transport,
		events:    events,
		cfg:       cfg,
		members:   make(map[domain.PeerID]*member),
	}
}

// LocalID returns the local participant's identifier.
func (c *Coordinator) LocalID() domain.PeerID { return c.localID }

// Join establishes a pairwise session with a new member. The member stays
// Pending until the handshake completes; broadcast traffic skips it until
// then.
func (c *Coordinator) Join(ctx context.Context, pub domain.X25519Public) error {
	peer := domain.PeerIDFromPublic(pub)
	sess := session.New(c.local, c.transport, c.events, c.cfg)

	c.mu.Lock()
	if _, ok := c.members[peer]; ok {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrAlreadyMember, peer)
	}
	c.members[peer] = &member{sess: sess, pub: pub}
	c.mu.Unlock()

	if err := sess.Start(ctx, pub); err != nil {
		c.mu.Lock()
		delete(c.members, peer)
		c.mu.Unlock()
		return err
	}
	return nil
}

// Leave tears down the member's session and removes it, so no later
// message can be addressed to a stale session.
func (c *Coordinator) Leave(ctx context.Context, peer domain.PeerID) error {
	c.mu.Lock()
	m, ok := c.members[peer]
	if ok {
		delete(c.members, peer)
	}
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotMember, peer)
	}
	return m.sess.Close(ctx)
}

// HandleInbound routes a transport payload from a peer to its session,
// admitting a responder session for previously unknown peers (their
// handshake offer creates the Pending membership).
func (c *Coordinator) HandleInbound(ctx context.Context, from domain.PeerID, payload []byte) ([]byte, error) {
	c.mu.Lock()
	m, ok := c.members[from]
	created := !ok
	if created {
		m = &member{sess: session.New(c.local, c.transport, c.events, c.cfg)}
		c.members[from] = m
	}
	c.mu.Unlock()

	plaintext, err := m.sess.HandleInbound(ctx, payload)
	switch {
	case err != nil && created:
		// The first payload from this sender was not a valid handshake
		// offer; drop the membership so junk traffic cannot accumulate
		// phantom members.
		c.remove(from)
	case err == nil && m.sess.State() == domain.StateTerminated:
		// Peer said bye or the session tore down; drop the membership.
		c.remove(from)
	}
	return plaintext, err
}

func (c *Coordinator) remove(peer domain.PeerID) {
	c.mu.Lock()
	delete(c.members, peer)
	c.mu.Unlock()
}

// Broadcast seals plaintext independently for every established member,
// sends each frame, and returns the per-recipient frames. The membership
// snapshot is consistent for the whole call; the local participant gets
// no echo, so a room of N participants yields N-1 frames.
func (c *Coordinator) Broadcast(ctx context.Context, plaintext []byte) (map[domain.PeerID]*domain.CipherFrame, error) {
	c.mu.RLock()
	targets := make(map[domain.PeerID]*session.Session, len(c.members))
	for peer, m := range c.members {
		if m.sess.State() == domain.StateEstablished {
			targets[peer] = m.sess
		}
	}
	c.mu.RUnlock()

	var (
		outMu  sync.Mutex
		frames = make(map[domain.PeerID]*domain.CipherFrame, len(targets))
	)
	g, gctx := errgroup.WithContext(ctx)
	for peer, sess := range targets {
		g.Go(func() error {
			frame, err := sess.Seal(gctx, plaintext)
			if err != nil {
				return fmt.Errorf("seal for %s: %w", peer, err)
			}
			payload, err := session.EncodeFrame(frame)
			if err != nil {
				return err
			}
			if err := c.transport.Send(gctx, peer, payload); err != nil {
				return fmt.Errorf("send to %s: %w", peer, err)
			}
			outMu.Lock()
			frames[peer] = frame
			outMu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return frames, err
	}
	return frames, nil
}

// Member returns the session for a peer, if any.
func (c *Coordinator) Member(peer domain.PeerID) (*session.Session, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m, ok := c.members[peer]
	if !ok {
		return nil, false
	}
	return m.sess, true
}

// MemberStates returns a snapshot of room membership.
func (c *Coordinator) MemberStates() map[domain.PeerID]MemberState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[domain.PeerID]MemberState, len(c.members))
	for peer, m := range c.members {
		st := MemberPending
		if m.sess.State() == domain.StateEstablished {
			st = MemberActive
		}
		out[peer] = st
	}
	return out
}

// Close tears down every session in the room.
func (c *Coordinator) Close(ctx context.Context) error {
	c.mu.Lock()
	members := c.members
	c.members = make(map[domain.PeerID]*member)
	c.mu.Unlock()

	var firstErr error
	for _, m := range members {
		if err := m.sess.Close(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
