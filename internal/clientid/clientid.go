// Package clientid holds the two small identity value types shared by
// every server-side component: ClientId (a stable per-peer key derived
// from its observed remote IP) and SharedKey (the pre-provisioned
// authentication secret).
package clientid

import "net"

// ClientId is a stable textual identifier derived from a peer's
// observed remote IP address (never its port, so that a peer's control
// connection and its later gateway/NAT-punch connection — which arrive
// from the same IP but a different ephemeral port — resolve to the same
// identity).
type ClientId string

// FromIP derives a ClientId from a remote IP address.
func FromIP(ip net.IP) ClientId {
	return ClientId(ip.String())
}

// FromConn derives a ClientId from a net.Conn's remote address.
func FromConn(conn net.Conn) (ClientId, error) {
	host, _, err := net.SplitHostPort(conn.RemoteAddr().String())
	if err != nil {
		return "", err
	}
	return ClientId(host), nil
}

func (c ClientId) String() string { return string(c) }

// SharedKey is an opaque pre-provisioned secret compared for equality
// only. Its Display form is always censored so a key never ends up in a
// log line.
type SharedKey string

// Equal compares two shared keys for equality. SharedKey carries no
// other meaningful comparison.
func (k SharedKey) Equal(other SharedKey) bool {
	return k == other
}

// String returns a censored placeholder, never the underlying secret.
func (k SharedKey) String() string {
	return "roxi-XXX"
}
