package room_test

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/utracks/AegisChat/internal/crypto"
	"github.com/utracks/AegisChat/internal/domain"
	"github.com/utracks/AegisChat/internal/room"
	"github.com/utracks/AegisChat/internal/session"
	"github.com/utracks/AegisChat/internal/transport"
)

// node is one room participant on the shared loopback network. Broadcast
// fans out on goroutines, so the handler results are mutex-guarded.
type node struct {
	id    domain.Identity
	coord *room.Coordinator

	mu    sync.Mutex
	inbox [][]byte
	errs  []error
}

func (n *node) received() [][]byte {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([][]byte(nil), n.inbox...)
}

func (n *node) errors() []error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]error(nil), n.errs...)
}

func newNode(t *testing.T, net *transport.Network, cfg session.Config) *node {
	t.Helper()
	priv, pub, err := crypto.GenerateX25519()
	if err != nil {
		t.Fatalf("GenerateX25519: %v", err)
	}
	n := &node{id: domain.Identity{Pub: pub, Priv: priv}}

	tr := net.Register(domain.PeerIDFromPublic(pub), func(ctx context.Context, from domain.PeerID, payload []byte) {
		pt, err := n.coord.HandleInbound(ctx, from, payload)
		n.mu.Lock()
		defer n.mu.Unlock()
		if err != nil {
			n.errs = append(n.errs, err)
			return
		}
		if pt != nil {
			n.inbox = append(n.inbox, pt)
		}
	})
	n.coord = room.New(n.id, tr, nil, cfg)
	return n
}

// mesh builds a fully connected three-participant room.
func mesh(t *testing.T) (a, b, c *node) {
	return meshWith(t, session.Config{})
}

func meshWith(t *testing.T, cfg session.Config) (a, b, c *node) {
	t.Helper()
	ctx := context.Background()
	net := transport.NewNetwork()
	a, b, c = newNode(t, net, cfg), newNode(t, net, cfg), newNode(t, net, cfg)

	joins := []struct {
		from *node
		to   *node
	}{{a, b}, {a, c}, {b, c}}
	for _, j := range joins {
		if err := j.from.coord.Join(ctx, j.to.id.Pub); err != nil {
			t.Fatalf("Join: %v", err)
		}
	}
	for _, n := range []*node{a, b, c} {
		states := n.coord.MemberStates()
		if len(states) != 2 {
			t.Fatalf("member count = %d, want 2 (errs: %v)", len(states), n.errs)
		}
		for peer, st := range states {
			if st != room.MemberActive {
				t.Fatalf("member %s state = %d, want Active", peer, st)
			}
		}
	}
	return a, b, c
}

func TestJoin_Duplicate(t *testing.T) {
	ctx := context.Background()
	net := transport.NewNetwork()
	a, b := newNode(t, net, session.Config{}), newNode(t, net, session.Config{})

	if err := a.coord.Join(ctx, b.id.Pub); err != nil {
		t.Fatalf("Join: %v", err)
	}
	if err := a.coord.Join(ctx, b.id.Pub); !errors.Is(err, room.ErrAlreadyMember) {
		t.Fatalf("want ErrAlreadyMember, got %v", err)
	}
}

func TestBroadcast_ReachesAllButSender(t *testing.T) {
	ctx := context.Background()
	a, b, c := mesh(t)

	frames, err := a.coord.Broadcast(ctx, []byte("room message"))
	if err != nil {
		t.Fatalf("Broadcast: %v", err)
	}
	if len(frames) != 2 {
		t.Fatalf("frame count = %d, want 2 (no self echo)", len(frames))
	}
	if _, self := frames[a.coord.LocalID()]; self {
		t.Fatal("sender received its own frame")
	}
	for _, n := range []*node{b, c} {
		if len(n.inbox) != 1 || !bytes.Equal(n.inbox[0], []byte("room message")) {
			t.Fatalf("inbox = %q (errs: %v)", n.inbox, n.errs)
		}
	}
	if len(a.inbox) != 0 {
		t.Fatalf("sender inbox = %q, want empty", a.inbox)
	}
}

// A frame addressed to one member must not open on another member's
// session: each pair has its own root.
func TestBroadcast_PairwiseIsolation(t *testing.T) {
	ctx := context.Background()
	a, b, c := mesh(t)

	toB, ok := a.coord.Member(b.coord.LocalID())
	if !ok {
		t.Fatal("a has no session with b")
	}
	frameForB, err := toB.Seal(ctx, []byte("for your eyes only"))
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}

	crossSess, ok := c.coord.Member(a.coord.LocalID())
	if !ok {
		t.Fatal("c has no session with a")
	}
	if _, err := crossSess.Open(frameForB); err == nil {
		t.Fatal("frame for b decrypted on c's session")
	}

	fromB, ok := b.coord.Member(a.coord.LocalID())
	if !ok {
		t.Fatal("b has no session with a")
	}
	pt, err := fromB.Open(frameForB)
	if err != nil {
		t.Fatalf("intended recipient failed to open: %v", err)
	}
	if !bytes.Equal(pt, []byte("for your eyes only")) {
		t.Fatalf("plaintext = %q", pt)
	}
}

func TestBroadcast_SkipsPendingMember(t *testing.T) {
	ctx := context.Background()
	net := transport.NewNetwork()
	a, b := newNode(t, net, session.Config{}), newNode(t, net, session.Config{})

	// d is reachable on the network but drops every payload, so the
	// handshake with it never completes.
	_, dPub, err := crypto.GenerateX25519()
	if err != nil {
		t.Fatalf("GenerateX25519: %v", err)
	}
	net.Register(domain.PeerIDFromPublic(dPub), func(context.Context, domain.PeerID, []byte) {})

	if err := a.coord.Join(ctx, b.id.Pub); err != nil {
		t.Fatalf("Join b: %v", err)
	}
	if err := a.coord.Join(ctx, dPub); err != nil {
		t.Fatalf("Join d: %v", err)
	}

	states := a.coord.MemberStates()
	if states[domain.PeerIDFromPublic(dPub)] != room.MemberPending {
		t.Fatal("unresponsive member not Pending")
	}

	frames, err := a.coord.Broadcast(ctx, []byte("hello"))
	if err != nil {
		t.Fatalf("Broadcast: %v", err)
	}
	if len(frames) != 1 {
		t.Fatalf("frame count = %d, want 1 (pending member must be skipped)", len(frames))
	}
	if _, ok := frames[domain.PeerIDFromPublic(dPub)]; ok {
		t.Fatal("pending member received a frame")
	}
}

func TestLeave_RemovesBothSides(t *testing.T) {
	ctx := context.Background()
	a, b, c := mesh(t)

	if err := a.coord.Leave(ctx, b.coord.LocalID()); err != nil {
		t.Fatalf("Leave: %v", err)
	}
	if _, ok := a.coord.Member(b.coord.LocalID()); ok {
		t.Fatal("a still holds a session with b")
	}
	// The bye terminated b's side; its membership for a is dropped too.
	if _, ok := b.coord.Member(a.coord.LocalID()); ok {
		t.Fatal("b still holds a session with a after bye")
	}

	frames, err := a.coord.Broadcast(ctx, []byte("after leave"))
	if err != nil {
		t.Fatalf("Broadcast: %v", err)
	}
	if len(frames) != 1 {
		t.Fatalf("frame count = %d, want 1", len(frames))
	}
	if len(c.inbox) != 1 {
		t.Fatalf("c inbox = %q", c.inbox)
	}
}

func TestLeave_Unknown(t *testing.T) {
	net := transport.NewNetwork()
	a := newNode(t, net, session.Config{})
	if err := a.coord.Leave(context.Background(), "nobody"); !errors.Is(err, room.ErrNotMember) {
		t.Fatalf("want ErrNotMember, got %v", err)
	}
}

// Broadcasting past the send budget rekeys each pairwise session in place;
// every message is still delivered and no receiver sees a replay.
func TestBroadcast_CrossesRekeyThreshold(t *testing.T) {
	ctx := context.Background()
	a, b, c := meshWith(t, session.Config{RekeyAfter: 5})

	const total = 12
	for i := 0; i < total; i++ {
		frames, err := a.coord.Broadcast(ctx, []byte{byte(i)})
		if err != nil {
			t.Fatalf("Broadcast %d: %v", i, err)
		}
		if len(frames) != 2 {
			t.Fatalf("broadcast %d reached %d members, want 2", i, len(frames))
		}
	}

	for _, n := range []*node{b, c} {
		if errs := n.errors(); len(errs) != 0 {
			t.Fatalf("receiver rejected frames: %v", errs)
		}
		if got := n.received(); len(got) != total {
			t.Fatalf("received %d messages, want %d", len(got), total)
		}
		sess, ok := n.coord.Member(a.coord.LocalID())
		if !ok {
			t.Fatal("membership lost during rekeys")
		}
		if sess.Generation() < 2 {
			t.Fatalf("generation = %d, want at least 2 after %d broadcasts", sess.Generation(), total)
		}
	}
}

// Junk from an unknown sender must not leave a phantom membership behind.
func TestHandleInbound_JunkFromUnknownSender(t *testing.T) {
	ctx := context.Background()
	net := transport.NewNetwork()
	a := newNode(t, net, session.Config{})

	if _, err := a.coord.HandleInbound(ctx, "stranger", []byte("not even json")); err == nil {
		t.Fatal("garbage payload accepted")
	}
	if n := len(a.coord.MemberStates()); n != 0 {
		t.Fatalf("member count = %d after garbage, want 0", n)
	}

	frame := &domain.CipherFrame{Sender: "stranger", Generation: 0, Counter: 0, Cipher: []byte{1, 2, 3}}
	payload, err := session.EncodeFrame(frame)
	if err != nil {
		t.Fatalf("EncodeFrame: %v", err)
	}
	if _, err := a.coord.HandleInbound(ctx, "stranger", payload); err == nil {
		t.Fatal("data frame from unknown sender accepted")
	}
	if n := len(a.coord.MemberStates()); n != 0 {
		t.Fatalf("member count = %d after junk frame, want 0", n)
	}
}

func TestClose_TearsDownRoom(t *testing.T) {
	ctx := context.Background()
	a, b, c := mesh(t)

	if err := a.coord.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if len(a.coord.MemberStates()) != 0 {
		t.Fatal("members remain after Close")
	}
	for _, n := range []*node{b, c} {
		if _, ok := n.coord.Member(a.coord.LocalID()); ok {
			t.Fatal("peer still holds a session with the closed participant")
		}
	}
}
