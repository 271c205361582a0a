package session

import (
	"encoding/json"

	"github.com/utracks/AegisChat/internal/domain"
)

// Control message kinds.
const (
	kindOffer       = "offer"
	kindAnswer      = "answer"
	kindConfirm     = "confirm"
	kindRekeyOffer  = "rekey-offer"
	kindRekeyAnswer = "rekey-answer"
	kindBye         = "bye"
)

// control carries handshake and rekey parameters.
type control struct {
	Kind       string              `json:"kind"`
	From       domain.PeerID       `json:"from"`
	Pub        domain.X25519Public `json:"pub,omitempty"`
	Generation uint32              `json:"generation,omitempty"`
	Confirm    *domain.CipherFrame `json:"confirm,omitempty"`
}

// wireMessage is the single payload type exchanged through the transport.
// Exactly one of Control or Frame is set.
type wireMessage struct {
	Control *control            `json:"control,omitempty"`
	Frame   *domain.CipherFrame `json:"frame,omitempty"`
}

func encodeWire(m wireMessage) ([]byte, error) {
	return json.Marshal(m)
}

func decodeWire(payload []byte) (wireMessage, error) {
	var m wireMessage
	err := json.Unmarshal(payload, &m)
	return m, err
}

// EncodeFrame wraps a sealed frame for transmission.
func EncodeFrame(f *domain.CipherFrame) ([]byte, error) {
	return encodeWire(wireMessage{Frame: f})
}
