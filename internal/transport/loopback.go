package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/utracks/AegisChat/internal/domain"
)

// ErrUnknownPeer means no handler is registered for the destination.
var ErrUnknownPeer = errors.New("unknown peer")

// InboundFunc consumes payloads addressed to a registered peer.
type InboundFunc func(ctx context.Context, from domain.PeerID, payload []byte)

// Network connects any number of in-process peers.
type Network struct {
	mu    sync.RWMutex
	nodes map[domain.PeerID]InboundFunc
}

// NewNetwork returns an empty loopback network.
func NewNetwork() *Network {
	return &Network{nodes: make(map[domain.PeerID]InboundFunc)}
}

// Register attaches a peer's inbound handler and returns its endpoint.
func (n *Network) Register(self domain.PeerID, handler InboundFunc) domain.Transport {
	n.mu.Lock()
	n.nodes[self] = handler
	n.mu.Unlock()
	return &endpoint{net: n, self: self}
}

// Unregister detaches a peer; later sends to it fail.
func (n *Network) Unregister(self domain.PeerID) {
	n.mu.Lock()
	delete(n.nodes, self)
	n.mu.Unlock()
}

type endpoint struct {
	net  *Network
	self domain.PeerID
}

// Send delivers synchronously to the destination's handler.
func (e *endpoint) Send(ctx context.Context, peer domain.PeerID, payload []byte) error {
	e.net.mu.RLock()
	handler, ok := e.net.nodes[peer]
	e.net.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPeer, peer)
	}
	buf := append([]byte(nil), payload...)
	handler(ctx, e.self, buf)
	return nil
}

var _ domain.Transport = (*endpoint)(nil)
