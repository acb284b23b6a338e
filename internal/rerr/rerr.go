// Package rerr enumerates the Roxi error taxonomy: the sentinel values
// server handlers and the client driver compare against with errors.Is,
// and map to wire status codes or process exit codes.
package rerr

import "errors"

var (
	// Codec
	ErrMalformedMessage = errors.New("roxi: malformed message")

	// Auth
	ErrUnauthenticated  = errors.New("roxi: unauthenticated")
	ErrInvalidSharedKey = errors.New("roxi: invalid shared key")

	// Protocol
	ErrInvalidMessage        = errors.New("roxi: invalid message")
	ErrConnectionClosed      = errors.New("roxi: connection closed")
	ErrUnsupportedIPAddrType = errors.New("roxi: unsupported ip address type")

	// Resource
	ErrNoIPAddrAvailable = errors.New("roxi: no ip address available")
	ErrNoAvailablePeers  = errors.New("roxi: no available peers")

	// Configuration
	ErrMalformedConfig       = errors.New("roxi: malformed configuration")
	ErrMissingWireGuardField = errors.New("roxi: missing wireguard field")

	// Time
	ErrElapsed = errors.New("roxi: elapsed")
)
