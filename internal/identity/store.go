package identity

import (
	"errors"
	"sync"

	"github.com/utracks/AegisChat/internal/crypto"
	"github.com/utracks/AegisChat/internal/domain"
	"github.com/utracks/AegisChat/internal/util/memzero"
)

// ErrClosed is returned when the store is used after Close.
var ErrClosed = errors.New("identity store closed")

// Store holds the device identity for the lifetime of the process.
// Safe for concurrent use.
type Store struct {
	mu     sync.RWMutex
	id     domain.Identity
	closed bool
}

// New generates a fresh identity. It fails only if the entropy source is
// unavailable, which is fatal for the process.
func New() (*Store, error) {
	priv, pub, err := crypto.GenerateX25519()
	if err != nil {
		return nil, err
	}
	return &Store{id: domain.Identity{Pub: pub, Priv: priv}}, nil
}

// Identity returns a copy of the key pair.
func (s *Store) Identity() (domain.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return domain.Identity{}, ErrClosed
	}
	return s.id, nil
}

// Public returns the public key.
func (s *Store) Public() domain.X25519Public {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.id.Pub
}

// PeerID returns the canonical identifier derived from the public key.
func (s *Store) PeerID() domain.PeerID {
	return domain.PeerIDFromPublic(s.Public())
}

// Fingerprint returns the short digest shown to users for out-of-band
// verification (for example via QR code).
func (s *Store) Fingerprint() domain.Fingerprint {
	pub := s.Public()
	return domain.Fingerprint(crypto.Fingerprint(pub[:]))
}

// Close wipes the private key. Subsequent Identity calls fail.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	memzero.Zero(s.id.Priv[:])
	s.closed = true
}
