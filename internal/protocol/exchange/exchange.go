package exchange

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"

	"github.com/utracks/AegisChat/internal/crypto"
	"github.com/utracks/AegisChat/internal/domain"
	"github.com/utracks/AegisChat/internal/util/memzero"
)

// RootSize is the size of the derived shared secret in bytes.
const RootSize = 32

// ErrInvalidPeerKey means the remote public key is malformed or a known
// low-order point. No session may be established from it.
var ErrInvalidPeerKey = errors.New("invalid peer key")

// Shared computes the pairwise root secret from our identity and the
// peer's public key. Both sides derive the identical value (X25519 is
// symmetric), and the result never equals the raw DH output.
func Shared(local domain.Identity, remote domain.X25519Public) ([]byte, error) {
	if err := validate(remote); err != nil {
		return nil, err
	}
	dh, err := crypto.DH(local.Priv, remote)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPeerKey, err)
	}
	root := derive(dh[:], nil, "aegis/kex/v1")
	memzero.Zero(dh[:])
	return root, nil
}

// Ephemeral generates a fresh clamped key pair for a rekey handshake.
func Ephemeral() (domain.X25519Private, domain.X25519Public, error) {
	return crypto.GenerateX25519()
}

// Mix advances the root for a new generation: the fresh ephemeral DH
// output is the input keying material and the old root the salt. The
// caller must wipe oldRoot afterwards.
func Mix(oldRoot []byte, ephPriv domain.X25519Private, ephRemote domain.X25519Public) ([]byte, error) {
	if err := validate(ephRemote); err != nil {
		return nil, err
	}
	dh, err := crypto.DH(ephPriv, ephRemote)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPeerKey, err)
	}
	root := derive(dh[:], oldRoot, "aegis/rekey/v1")
	memzero.Zero(dh[:])
	return root, nil
}

// validate rejects keys that cannot contribute entropy. The all-zero
// point is the degenerate case; other low-order points surface as an
// error from the X25519 computation itself.
func validate(pub domain.X25519Public) error {
	var zero domain.X25519Public
	if pub == zero {
		return ErrInvalidPeerKey
	}
	return nil
}

func derive(ikm, salt []byte, label string) []byte {
	r := hkdf.New(sha256.New, ikm, salt, []byte(label))
	out := make([]byte, RootSize)
	_, _ = io.ReadFull(r, out)
	return out
}
