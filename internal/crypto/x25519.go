package crypto

import (
	"crypto/rand"
	"errors"
	"fmt"

	"golang.org/x/crypto/curve25519"

	"github.com/utracks/AegisChat/internal/domain"
)

// ErrEntropyUnavailable means the system entropy source failed. The
// process cannot do anything useful without it.
var ErrEntropyUnavailable = errors.New("entropy source unavailable")

// ErrInvalidPublicKey means the peer public key is malformed or a
// low-order point whose shared secret would be all zeros.
var ErrInvalidPublicKey = errors.New("invalid peer public key")

// GenerateX25519 returns a fresh Curve25519 key pair.
// The private key is clamped per RFC 7748.
func GenerateX25519() (priv domain.X25519Private, pub domain.X25519Public, err error) {
	if _, err = rand.Read(priv[:]); err != nil {
		err = fmt.Errorf("%w: %v", ErrEntropyUnavailable, err)
		return
	}
	clamp(&priv)
	pb, err := curve25519.X25519(priv.Slice(), curve25519.Basepoint)
	if err != nil {
		return
	}
	copy(pub[:], pb)
	return
}

// DH computes X25519 Diffie–Hellman. It rejects peer keys that produce an
// all-zero shared secret (low-order points), which must never be accepted.
func DH(priv domain.X25519Private, pub domain.X25519Public) (out [32]byte, err error) {
	secret, err := curve25519.X25519(priv.Slice(), pub.Slice())
	if err != nil {
		return out, fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
	}
	copy(out[:], secret)
	return out, nil
}

func clamp(k *domain.X25519Private) {
	kb := k[:]
	kb[0] &= 248
	kb[31] &= 127
	kb[31] |= 64
}
