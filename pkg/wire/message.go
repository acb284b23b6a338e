package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// HeaderSize is the fixed length of the Message header: kind (2) + status
// (2) + sender address (6) + payload length (8).
const HeaderSize = 2 + 2 + AddressSize + 8

// ScratchBufferSize is the fixed-size buffer every reader uses for a
// single read. Messages whose encoded form would exceed this are
// rejected as ErrMalformedMessage; this is an intentional conservative
// cap, not a negotiated limit.
const ScratchBufferSize = 1024

// MaxPayloadSize is the largest payload that can fit in a single
// ScratchBufferSize read alongside the header.
const MaxPayloadSize = ScratchBufferSize - HeaderSize

// ErrMalformedMessage is returned by Decode when the buffer is shorter
// than HeaderSize, or the declared payload length runs past the end of
// the buffer, or the declared payload would exceed MaxPayloadSize.
var ErrMalformedMessage = errors.New("wire: malformed message")

// Message is a single control-channel request or response.
type Message struct {
	Kind    Kind
	Status  Status
	Sender  Address
	Payload []byte
}

// New builds a Message with the given kind/status/sender and an optional
// payload (nil is treated as empty).
func New(kind Kind, status Status, sender Address, payload []byte) Message {
	return Message{Kind: kind, Status: status, Sender: sender, Payload: payload}
}

// Encode serialises m into its wire form. Encode never fails: the
// payload length field is always exactly len(m.Payload).
func (m Message) Encode() []byte {
	buf := make([]byte, HeaderSize+len(m.Payload))
	binary.BigEndian.PutUint16(buf[0:2], uint16(m.Kind))
	binary.BigEndian.PutUint16(buf[2:4], uint16(m.Status))
	addr := m.Sender.Bytes()
	copy(buf[4:4+AddressSize], addr[:])
	binary.BigEndian.PutUint64(buf[10:18], uint64(len(m.Payload)))
	copy(buf[HeaderSize:], m.Payload)
	return buf
}

// Decode parses a Message out of buf. buf may be longer than the
// message (e.g. a fixed scratch buffer); only HeaderSize+N bytes are
// consumed. Ping, Pong, StunInfoRequest, and AuthenticationResponse
// decode successfully even when trailing bytes remain, since those
// kinds carry no payload by convention and callers MUST ignore any
// trailing garbage for them.
func Decode(buf []byte) (Message, error) {
	if len(buf) < HeaderSize {
		return Message{}, fmt.Errorf("wire: header truncated (%d < %d bytes): %w", len(buf), HeaderSize, ErrMalformedMessage)
	}
	kind := kindFromWire(binary.BigEndian.Uint16(buf[0:2]))
	status := statusFromWire(binary.BigEndian.Uint16(buf[2:4]))
	var addrBytes [AddressSize]byte
	copy(addrBytes[:], buf[4:4+AddressSize])
	sender := DecodeAddress(addrBytes)
	n := binary.BigEndian.Uint64(buf[10:18])
	if n > MaxPayloadSize {
		return Message{}, fmt.Errorf("wire: declared payload length %d exceeds cap %d: %w", n, MaxPayloadSize, ErrMalformedMessage)
	}
	end := HeaderSize + int(n)
	if end > len(buf) {
		return Message{}, fmt.Errorf("wire: declared payload length %d runs past buffer (have %d): %w", n, len(buf)-HeaderSize, ErrMalformedMessage)
	}
	payload := make([]byte, n)
	copy(payload, buf[HeaderSize:end])
	return Message{Kind: kind, Status: status, Sender: sender, Payload: payload}, nil
}
