package wgconf

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/curve25519"
)

// KeySize is the length in bytes of a WireGuard key (Curve25519).
const KeySize = 32

// KeyKind tags a Key as holding private or public material. The tag
// lives only in memory (see Key.Kind) and is never serialised, so that
// a private key accidentally routed through a public-key field is
// caught at the type boundary rather than silently leaking onto the
// wire or into a peer's config file.
type KeyKind int

const (
	KeyKindPrivate KeyKind = iota
	KeyKindPublic
)

func (k KeyKind) String() string {
	if k == KeyKindPublic {
		return "public"
	}
	return "private"
}

// Key is a 32-byte Curve25519 key, base64-encoded in its text form.
type Key struct {
	bytes [KeySize]byte
	kind  KeyKind
}

// GeneratePrivateKey generates a new random WireGuard private key,
// clamped per RFC 7748 §5.
func GeneratePrivateKey() (Key, error) {
	var k Key
	k.kind = KeyKindPrivate
	if _, err := rand.Read(k.bytes[:]); err != nil {
		return Key{}, fmt.Errorf("wgconf: generating random key: %w", err)
	}
	clampPrivateKey(&k.bytes)
	return k, nil
}

// PublicKey derives the Curve25519 public key from a private key.
func PublicKey(private Key) Key {
	var pub Key
	pub.kind = KeyKindPublic
	curve25519.ScalarBaseMult(&pub.bytes, &private.bytes)
	return pub
}

// ParseKey decodes a base64-encoded key string, tagging the result with
// kind.
func ParseKey(s string, kind KeyKind) (Key, error) {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return Key{}, fmt.Errorf("wgconf: decoding base64 key: %w", err)
	}
	if len(b) != KeySize {
		return Key{}, fmt.Errorf("wgconf: invalid key length: got %d, want %d", len(b), KeySize)
	}
	var k Key
	k.kind = kind
	copy(k.bytes[:], b)
	return k, nil
}

// Kind reports whether this key holds private or public material.
func (k Key) Kind() KeyKind { return k.kind }

// String returns the base64-encoded representation of the key.
func (k Key) String() string {
	return base64.StdEncoding.EncodeToString(k.bytes[:])
}

// IsZero reports whether the key is the zero value.
func (k Key) IsZero() bool {
	var zero [KeySize]byte
	return k.bytes == zero
}

// MarshalText implements encoding.TextMarshaler for TOML encoding. The
// kind tag is deliberately not part of the marshaled form.
func (k Key) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. The resulting Key's
// Kind is left at its zero value (KeyKindPrivate); callers that know
// which field they're decoding into (Interface.PrivateKey vs
// Peer.PublicKey) should retag via WithKind if the distinction matters
// downstream.
func (k *Key) UnmarshalText(text []byte) error {
	parsed, err := ParseKey(string(text), KeyKindPrivate)
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// WithKind returns a copy of k tagged with the given kind.
func (k Key) WithKind(kind KeyKind) Key {
	k.kind = kind
	return k
}

// clampPrivateKey applies the Curve25519 clamping from RFC 7748 §5.
func clampPrivateKey(k *[KeySize]byte) {
	k[0] &= 248
	k[31] &= 127
	k[31] |= 64
}
