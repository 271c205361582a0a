package domain

import "encoding/hex"

// X25519Public is a Curve25519 public key.
type X25519Public [32]byte

func (p X25519Public) Slice() []byte { return p[:] }

// X25519Private is a Curve25519 private key.
type X25519Private [32]byte

func (k X25519Private) Slice() []byte { return k[:] }

// Identity holds the per-process key pair. It lives in memory only; there
// is deliberately no way to serialise the private half.
type Identity struct {
	Pub  X25519Public
	Priv X25519Private
}

// PeerID identifies a participant. It is the hex encoding of the
// participant's X25519 public key, so it can be compared and used as
// associated data without a directory lookup.
type PeerID string

func (id PeerID) String() string { return string(id) }

// PeerIDFromPublic derives the canonical PeerID for a public key.
func PeerIDFromPublic(pub X25519Public) PeerID {
	return PeerID(hex.EncodeToString(pub[:]))
}

// Fingerprint is a short identifier for public keys presented to users
// for out-of-band verification.
type Fingerprint string

func (f Fingerprint) String() string { return string(f) }

// SessionState is the lifecycle state of a pairwise session.
type SessionState int

const (
	StateHandshaking SessionState = iota
	StateEstablished
	StateRekeying
	StateTerminated
)

func (s SessionState) String() string {
	switch s {
	case StateHandshaking:
		return "handshaking"
	case StateEstablished:
		return "established"
	case StateRekeying:
		return "rekeying"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// CipherFrame is one authenticated ciphertext produced for a single
// plaintext message or file chunk. It is immutable after creation.
//
// The nonce is not carried on the wire: both ends derive it from
// (Generation, Counter), which makes nonce reuse under one key impossible
// by construction. Cipher includes the Poly1305 tag. Sender and Generation
// are bound as associated data.
type CipherFrame struct {
	Sender     PeerID `json:"sender"`
	Generation uint32 `json:"generation"`
	Counter    uint64 `json:"counter"`
	Cipher     []byte `json:"cipher"`
}

// TransferProgress reports file transfer progress after each chunk.
type TransferProgress struct {
	FileID string
	Bytes  int64
	Total  int64
}

// TransferManifest describes an outbound file so the receiver can verify
// completeness and integrity.
type TransferManifest struct {
	FileID    string `json:"file_id"`
	TotalSize int64  `json:"total_size"`
	ChunkSize int    `json:"chunk_size"`
	Chunks    int    `json:"chunks"`
	Digest    []byte `json:"digest"`
}
