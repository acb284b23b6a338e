package wgconf

import (
	"bytes"
	"fmt"

	"github.com/BurntSushi/toml"
)

// peerWireEnvelope wraps a lone Peer the same way Config wraps a slice of
// them, so EncodePeer/DecodePeer can reuse the identical [[Peer]] table
// shape used on disk.
type peerWireEnvelope struct {
	Peer Peer `toml:"Peer"`
}

// EncodePeer serialises a single Peer for wire transit: the
// PeerTunnelInitRequest/Response payload described in spec §4.6, which
// carries "a serialised WireGuardPeer". It reuses the same TOML encoding
// Config.Save writes to disk rather than inventing a second codec.
func EncodePeer(p Peer) ([]byte, error) {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(peerWireEnvelope{Peer: p}); err != nil {
		return nil, fmt.Errorf("wgconf: encoding peer: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodePeer parses a wire-transit Peer payload produced by EncodePeer.
func DecodePeer(data []byte) (Peer, error) {
	var env peerWireEnvelope
	if _, err := toml.Decode(string(data), &env); err != nil {
		return Peer{}, fmt.Errorf("wgconf: decoding peer: %w", err)
	}
	env.Peer.PublicKey = env.Peer.PublicKey.WithKind(KeyKindPublic)
	return env.Peer, nil
}
