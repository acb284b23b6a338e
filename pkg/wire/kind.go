// Package wire implements the Roxi control-channel wire format: a fixed
// 18-byte header followed by an opaque payload, all fields in network
// byte order.
package wire

// Kind discriminates the closed set of message kinds carried by a
// Message. Unrecognised numeric kinds decode to KindUnknown.
type Kind uint16

const (
	KindPing Kind = iota
	KindPong
	KindAuthenticationRequest
	KindAuthenticationResponse
	KindStunRequest
	KindStunResponse
	KindDisconnectRequest
	KindDisconnectResponse
	KindStunInfoRequest
	KindStunInfoResponse
	KindGatewayRequest
	KindGatewayResponse
	KindGenericErrorResponse
	KindPeerTunnelRequest
	KindPeerTunnelResponse
	KindNATPunchRequest
	KindNATPunchResponse
	KindPeerTunnelInitRequest
	KindPeerTunnelInitResponse
	KindSeedRequest
	KindSeedResponse
	KindServerShutdown
	KindPeerTunnelClose
	KindUnknown
)

var kindNames = map[Kind]string{
	KindPing:                   "Ping",
	KindPong:                   "Pong",
	KindAuthenticationRequest:  "AuthenticationRequest",
	KindAuthenticationResponse: "AuthenticationResponse",
	KindStunRequest:            "StunRequest",
	KindStunResponse:           "StunResponse",
	KindDisconnectRequest:      "DisconnectRequest",
	KindDisconnectResponse:     "DisconnectResponse",
	KindStunInfoRequest:        "StunInfoRequest",
	KindStunInfoResponse:       "StunInfoResponse",
	KindGatewayRequest:         "GatewayRequest",
	KindGatewayResponse:        "GatewayResponse",
	KindGenericErrorResponse:   "GenericErrorResponse",
	KindPeerTunnelRequest:      "PeerTunnelRequest",
	KindPeerTunnelResponse:     "PeerTunnelResponse",
	KindNATPunchRequest:        "NATPunchRequest",
	KindNATPunchResponse:       "NATPunchResponse",
	KindPeerTunnelInitRequest:  "PeerTunnelInitRequest",
	KindPeerTunnelInitResponse: "PeerTunnelInitResponse",
	KindSeedRequest:            "SeedRequest",
	KindSeedResponse:           "SeedResponse",
	KindServerShutdown:         "ServerShutdown",
	KindPeerTunnelClose:        "PeerTunnelClose",
	KindUnknown:                "Unknown",
}

// String returns the kind's name, or "Unknown" for any value outside the
// closed set (including raw numeric values decoded off the wire that
// don't match a known kind).
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "Unknown"
}

// kindFromWire maps a raw on-the-wire kind value to a Kind, defaulting to
// KindUnknown for anything not in the closed set.
func kindFromWire(v uint16) Kind {
	k := Kind(v)
	if _, ok := kindNames[k]; ok {
		return k
	}
	return KindUnknown
}

// Status is the response status carried alongside a Kind.
type Status uint16

const (
	StatusPending Status = 0
	StatusOk      Status = 200
	StatusCreated Status = 201

	StatusUnauthorized        Status = 401
	StatusForbidden           Status = 403
	StatusNotFound            Status = 404
	StatusBadData             Status = 405
	StatusImATeapot           Status = 419
	StatusInternalServerError Status = 500
	StatusServiceUnavailable  Status = 503
	StatusUnknown             Status = 0xFFFF
)

var statusNames = map[Status]string{
	StatusPending:             "Pending",
	StatusOk:                  "Ok",
	StatusCreated:             "Created",
	StatusUnauthorized:        "Unauthorized",
	StatusForbidden:           "Forbidden",
	StatusNotFound:            "NotFound",
	StatusBadData:             "BadData",
	StatusImATeapot:           "ImATeapot",
	StatusInternalServerError: "InternalServerError",
	StatusServiceUnavailable:  "ServiceUnavailable",
	StatusUnknown:             "Unknown",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return "Unknown"
}

func statusFromWire(v uint16) Status {
	s := Status(v)
	if _, ok := statusNames[s]; ok {
		return s
	}
	return StatusUnknown
}
