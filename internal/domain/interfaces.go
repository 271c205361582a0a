package domain

import "context"

// Transport is the byte-oriented duplex channel supplied by surrounding
// code. The core treats payloads as opaque buffers; framing and delivery
// are the transport's responsibility. Implementations may deliver
// synchronously; the core never calls Send while holding session locks.
type Transport interface {
	Send(ctx context.Context, peer PeerID, payload []byte) error
}

// Events is the display collaborator. Implementations must be cheap and
// non-blocking; the core may invoke them from multiple goroutines.
type Events interface {
	// SessionStateChanged fires on every lifecycle transition.
	SessionStateChanged(peer PeerID, from, to SessionState)

	// AuthenticationFailed fires when a frame fails tag verification.
	// The frame is already discarded; the session survives unless
	// failures repeat past the abuse threshold.
	AuthenticationFailed(peer PeerID)

	// TransferProgress fires after every accepted file chunk.
	TransferProgress(p TransferProgress)
}

// NopEvents discards all events.
type NopEvents struct{}

func (NopEvents) SessionStateChanged(PeerID, SessionState, SessionState) {}
func (NopEvents) AuthenticationFailed(PeerID)                            {}
func (NopEvents) TransferProgress(TransferProgress)                      {}

var _ Events = NopEvents{}
