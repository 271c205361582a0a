package envelope

import (
	"encoding/binary"
	"errors"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/utracks/AegisChat/internal/domain"
)

// ErrAuthenticationFailed means tag verification failed: the frame was
// forged, corrupted, or addressed to a different session. The frame must
// be discarded; it is never retryable.
var ErrAuthenticationFailed = errors.New("frame authentication failed")

// Seal encrypts one plaintext into an immutable CipherFrame.
func Seal(key [32]byte, sender domain.PeerID, generation uint32, counter uint64, plaintext []byte) (*domain.CipherFrame, error) {
	aead, err := chacha20poly1305.New(key[:])
	if err != nil {
		return nil, err
	}
	frame := &domain.CipherFrame{
		Sender:     sender,
		Generation: generation,
		Counter:    counter,
	}
	frame.Cipher = aead.Seal(nil, nonce(generation, counter), plaintext, associatedData(frame))
	return frame, nil
}

// Open authenticates and decrypts a frame.
func Open(key [32]byte, frame *domain.CipherFrame) ([]byte, error) {
	aead, err := chacha20poly1305.New(key[:])
	if err != nil {
		return nil, err
	}
	pt, err := aead.Open(nil, nonce(frame.Generation, frame.Counter), frame.Cipher, associatedData(frame))
	if err != nil {
		return nil, ErrAuthenticationFailed
	}
	return pt, nil
}

// nonce packs generation and counter big-endian into the 12-byte
// ChaCha20-Poly1305 nonce.
func nonce(generation uint32, counter uint64) []byte {
	n := make([]byte, chacha20poly1305.NonceSize)
	binary.BigEndian.PutUint32(n[:4], generation)
	binary.BigEndian.PutUint64(n[4:], counter)
	return n
}

// associatedData binds the sender identity and generation under the tag.
func associatedData(f *domain.CipherFrame) []byte {
	ad := make([]byte, 0, len(f.Sender)+4)
	ad = append(ad, f.Sender...)
	var g [4]byte
	binary.BigEndian.PutUint32(g[:], f.Generation)
	return append(ad, g[:]...)
}
