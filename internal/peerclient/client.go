// Package peerclient implements the joining-peer driver described in
// spec §4.7: the control connection to the Rendezvous, STUN emission,
// and the tunnel() state machine that sequences authentication through
// WireGuard peer install. Grounded on
// original_source/packages/roxi-client/src/client.rs for the
// dial/send/mutex shape, with the composite sequencing taken from spec
// §4.7 itself (the source drafts disagree with each other on method
// names, per spec's "heavy duplication across drafts" note).
package peerclient

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/kuuji/roxi/internal/clientid"
	"github.com/kuuji/roxi/internal/rerr"
	"github.com/kuuji/roxi/internal/roxiconfig"
	"github.com/kuuji/roxi/internal/wgconf"
	"github.com/kuuji/roxi/internal/wgtool"
	"github.com/kuuji/roxi/pkg/wire"
)

// stunBindingRequestType is the 16-bit STUN message type this client
// emits, recognised by internal/stun's narrow reflector.
const stunBindingRequestType = 0x0001

// stunMagicCookie is RFC 5389's fixed cookie. The narrow reflector never
// inspects it, but the client still emits a properly shaped Binding
// Request rather than a bare two-byte stub, matching client.rs's stun().
const stunMagicCookie = 0x2112A442

// Client drives one peer's join sequence against a Rendezvous and,
// after a successful tunnel(), a Gateway.
type Client struct {
	cfg *roxiconfig.ClientConfig
	log *slog.Logger

	conn   net.Conn
	connMu sync.Mutex

	udpConn *net.UDPConn

	wgMu  sync.Mutex
	wgCfg *wgconf.Config

	peersMu sync.Mutex
	peers   map[clientid.ClientId]net.Conn
}

// Dial connects the control channel to the Rendezvous named in cfg and
// binds the UDP socket used for STUN emission.
func Dial(cfg *roxiconfig.ClientConfig, wgCfg *wgconf.Config, log *slog.Logger) (*Client, error) {
	if log == nil {
		log = slog.Default()
	}

	conn, err := net.Dial("tcp", cfg.Network.Server.Addr())
	if err != nil {
		return nil, fmt.Errorf("peerclient: dialing rendezvous: %w", err)
	}

	udpConn, err := net.ListenUDP("udp", &net.UDPAddr{})
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("peerclient: binding stun socket: %w", err)
	}

	return &Client{
		cfg:     cfg,
		log:     log.With("component", "peerclient"),
		conn:    conn,
		udpConn: udpConn,
		wgCfg:   wgCfg,
		peers:   make(map[clientid.ClientId]net.Conn),
	}, nil
}

func (c *Client) requestTimeout() time.Duration {
	return time.Duration(c.cfg.Network.Server.RequestTimeout) * time.Second
}

// sendRecv writes msg on conn and reads one response, serialised under
// connMu the way a single stream's writes are serialised throughout this
// repo (internal/socketmap.Entry.Write does the same for the server
// side).
func sendRecv(conn net.Conn, mu *sync.Mutex, timeout time.Duration, msg wire.Message) (wire.Message, error) {
	mu.Lock()
	defer mu.Unlock()

	conn.SetDeadline(time.Now().Add(timeout))
	defer conn.SetDeadline(time.Time{})

	if _, err := conn.Write(msg.Encode()); err != nil {
		return wire.Message{}, fmt.Errorf("peerclient: write: %w", err)
	}
	buf := make([]byte, wire.ScratchBufferSize)
	n, err := conn.Read(buf)
	if err != nil {
		return wire.Message{}, fmt.Errorf("peerclient: read: %w", err)
	}
	reply, err := wire.Decode(buf[:n])
	if err != nil {
		return wire.Message{}, fmt.Errorf("peerclient: decode: %w", err)
	}
	return reply, nil
}

func (c *Client) localAddr() wire.Address {
	addr, err := wire.NewAddress(net.ParseIP(c.cfg.Network.Gateway.IP), uint16(c.cfg.Network.Gateway.Ports.TCP))
	if err != nil {
		return wire.Address{}
	}
	return addr
}

// Ping round-trips a Ping against the Rendezvous.
func (c *Client) Ping() error {
	reply, err := sendRecv(c.conn, &c.connMu, c.requestTimeout(), wire.New(wire.KindPing, wire.StatusPending, c.localAddr(), nil))
	if err != nil {
		return err
	}
	if reply.Kind != wire.KindPong || reply.Status != wire.StatusOk {
		return fmt.Errorf("peerclient: ping: unexpected reply %v/%v", reply.Kind, reply.Status)
	}
	return nil
}

// authenticate implements spec §4.7 step 1: send AuthenticationRequest
// carrying the shared key, require Ok.
func (c *Client) authenticate() error {
	msg := wire.New(wire.KindAuthenticationRequest, wire.StatusPending, c.localAddr(), []byte(c.cfg.Auth.SharedKey))
	reply, err := sendRecv(c.conn, &c.connMu, c.requestTimeout(), msg)
	if err != nil {
		return err
	}
	if reply.Status != wire.StatusOk {
		return fmt.Errorf("peerclient: authenticate: %w", rerr.ErrUnauthenticated)
	}
	return nil
}

// requestGateway implements step 2: send GatewayRequest, parse the
// returned 6-byte address into the peer's gateway remote Address.
func (c *Client) requestGateway() (wire.Address, error) {
	msg := wire.New(wire.KindGatewayRequest, wire.StatusPending, c.localAddr(), nil)
	reply, err := sendRecv(c.conn, &c.connMu, c.requestTimeout(), msg)
	if err != nil {
		return wire.Address{}, err
	}
	if reply.Status != wire.StatusOk {
		return wire.Address{}, fmt.Errorf("peerclient: requestGateway: status %v", reply.Status)
	}
	var b [wire.AddressSize]byte
	copy(b[:], reply.Payload)
	return wire.DecodeAddress(b), nil
}

// natPunch implements step 3: attempt an outgoing TCP connect to addr,
// retrying up to nat_punch_attempts times, then sleeping nat_punch_delay
// seconds to let the peer's accept complete. The whole attempt is
// wrapped in request_timeout; a timeout is non-fatal to the caller in
// the sense that it's reported as an error but carries no partial
// rollback (spec §4.7: "failures... abort... no partial rollback").
func (c *Client) natPunch(ctx context.Context, addr wire.Address) (net.Conn, error) {
	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout())
	defer cancel()

	dialer := net.Dialer{Timeout: c.requestTimeout()}
	target := fmt.Sprintf("%s:%d", addr.IPString(), addr.Port)

	var lastErr error
	for attempt := 0; attempt < c.cfg.Network.Nat.Attempts; attempt++ {
		conn, err := dialer.DialContext(ctx, "tcp", target)
		if err == nil {
			time.Sleep(time.Duration(c.cfg.Network.Nat.Delay) * time.Second)
			return conn, nil
		}
		lastErr = err
		c.log.Debug("nat punch attempt failed", "attempt", attempt, "target", target, "error", err)
	}
	return nil, fmt.Errorf("peerclient: nat punch to %s exhausted %d attempts: %w", target, c.cfg.Network.Nat.Attempts, lastErr)
}

// requestTunnelInfo implements step 4: read the local WireGuard public
// key, send PeerTunnelInitRequest announcing it, parse the returned
// WireGuardPeer, and append it to the in-memory interface.
func (c *Client) requestTunnelInfo(peerConn net.Conn, allowedIPs string) error {
	c.wgMu.Lock()
	localPrivate := c.wgCfg.Interface.PrivateKey
	c.wgMu.Unlock()

	localPublic, err := wgtool.ReadDevicePublicKey(c.cfg.Network.Gateway.Interface)
	if err != nil {
		c.log.Debug("reading live device public key, falling back to config-derived key", "error", err)
		localPublic = wgtool.DerivePublicKey(localPrivate)
	}

	payload, err := wgconf.EncodePeer(wgconf.Peer{PublicKey: localPublic, AllowedIPs: allowedIPs})
	if err != nil {
		return fmt.Errorf("peerclient: encoding local peer: %w", err)
	}

	var peerMu sync.Mutex
	msg := wire.New(wire.KindPeerTunnelInitRequest, wire.StatusPending, c.localAddr(), payload)
	reply, err := sendRecv(peerConn, &peerMu, c.requestTimeout(), msg)
	if err != nil {
		return err
	}
	if reply.Status != wire.StatusOk {
		return fmt.Errorf("peerclient: requestTunnelInfo: status %v", reply.Status)
	}

	peer, err := wgconf.DecodePeer(reply.Payload)
	if err != nil {
		return fmt.Errorf("peerclient: decoding peer reply: %w", err)
	}

	c.wgMu.Lock()
	c.wgCfg.AddPeer(peer)
	c.wgMu.Unlock()
	return nil
}

// FinalizeWireGuard persists the in-memory interface (updated by a
// successful Tunnel) to disk and reloads it via the external WireGuard
// tool. This is the "writes its updated interface configuration file,
// after which the external WireGuard tool is reloaded" half of spec §2's
// flow description; it is kept separate from Tunnel's five numbered
// steps so a caller can retry the reload independently of the join
// handshake.
func (c *Client) FinalizeWireGuard() error {
	c.wgMu.Lock()
	err := c.wgCfg.Save("")
	c.wgMu.Unlock()
	if err != nil {
		return fmt.Errorf("peerclient: saving wireguard config: %w", err)
	}
	return wgtool.ReloadInterface(c.cfg.Network.Gateway.Interface)
}

// setupPeerTunnel implements step 5: send PeerTunnelRequest to confirm
// readiness.
func (c *Client) setupPeerTunnel(peerConn net.Conn) error {
	var peerMu sync.Mutex
	msg := wire.New(wire.KindPeerTunnelRequest, wire.StatusPending, c.localAddr(), nil)
	reply, err := sendRecv(peerConn, &peerMu, c.requestTimeout(), msg)
	if err != nil {
		return err
	}
	if reply.Status != wire.StatusOk {
		return fmt.Errorf("peerclient: setupPeerTunnel: status %v", reply.Status)
	}
	return nil
}

// Tunnel runs the composite join sequence described in spec §4.7:
// authenticate → request a gateway → punch a NAT hole to it → swap
// WireGuard keys → confirm readiness. Any step's failure aborts the
// whole sequence; there is no partial rollback.
func (c *Client) Tunnel(ctx context.Context, allowedIPs string) error {
	if err := c.authenticate(); err != nil {
		return fmt.Errorf("peerclient: tunnel: authenticate: %w", err)
	}

	addr, err := c.requestGateway()
	if err != nil {
		return fmt.Errorf("peerclient: tunnel: requestGateway: %w", err)
	}

	peerConn, err := c.natPunch(ctx, addr)
	if err != nil {
		return fmt.Errorf("peerclient: tunnel: natPunch: %w", err)
	}

	if err := c.requestTunnelInfo(peerConn, allowedIPs); err != nil {
		peerConn.Close()
		return fmt.Errorf("peerclient: tunnel: requestTunnelInfo: %w", err)
	}

	if err := c.setupPeerTunnel(peerConn); err != nil {
		peerConn.Close()
		return fmt.Errorf("peerclient: tunnel: setupPeerTunnel: %w", err)
	}

	id := clientid.FromIP(net.ParseIP(addr.IPString()))
	c.peersMu.Lock()
	c.peers[id] = peerConn
	c.peersMu.Unlock()
	return nil
}

// RequestStunInfo sends StunInfoRequest and parses the cached endpoint,
// if any.
func (c *Client) RequestStunInfo() (wire.Address, error) {
	msg := wire.New(wire.KindStunInfoRequest, wire.StatusPending, c.localAddr(), nil)
	reply, err := sendRecv(c.conn, &c.connMu, c.requestTimeout(), msg)
	if err != nil {
		return wire.Address{}, err
	}
	if reply.Status != wire.StatusOk {
		return wire.Address{}, fmt.Errorf("peerclient: requestStunInfo: status %v", reply.Status)
	}
	var b [wire.AddressSize]byte
	copy(b[:], reply.Payload)
	return wire.DecodeAddress(b), nil
}

// EmitStunBinding sends one STUN Binding Request to the Rendezvous's
// STUN port, so it records this client's observed public endpoint.
// Grounded on client.rs's stun(): a 20-byte request (type, length,
// magic cookie, 96-bit transaction id); the narrow reflector (internal
// /stun) only inspects the first two bytes, but the client still emits
// the fully shaped request.
func (c *Client) EmitStunBinding() error {
	req := make([]byte, 20)
	binary.BigEndian.PutUint16(req[0:2], stunBindingRequestType)
	binary.BigEndian.PutUint16(req[2:4], 0)
	binary.BigEndian.PutUint32(req[4:8], stunMagicCookie)
	if _, err := rand.Read(req[8:20]); err != nil {
		return fmt.Errorf("peerclient: generating transaction id: %w", err)
	}

	dst := &net.UDPAddr{IP: net.ParseIP(c.cfg.Network.Server.IP), Port: c.cfg.Network.Server.Ports.UDP}
	if _, err := c.udpConn.WriteToUDP(req, dst); err != nil {
		return fmt.Errorf("peerclient: emitting stun binding: %w", err)
	}
	return nil
}

// Connect implements client.rs's connect(): authenticate, then emit one
// STUN binding so the Rendezvous records this peer's observed endpoint.
// It shares only its first step (authenticate) with Tunnel, which emits
// no STUN binding.
func (c *Client) Connect() error {
	if err := c.authenticate(); err != nil {
		return fmt.Errorf("peerclient: connect: %w", err)
	}
	return c.EmitStunBinding()
}

// Authenticate exports step 1 for callers that want to drive the join
// sequence one step at a time (the roxi CLI's individual subcommands).
func (c *Client) Authenticate() error { return c.authenticate() }

// RequestGateway exports step 2.
func (c *Client) RequestGateway() (wire.Address, error) { return c.requestGateway() }

// NATPunch exports step 3.
func (c *Client) NATPunch(ctx context.Context, addr wire.Address) (net.Conn, error) {
	return c.natPunch(ctx, addr)
}

// RequestTunnelInfo exports step 4.
func (c *Client) RequestTunnelInfo(peerConn net.Conn, allowedIPs string) error {
	return c.requestTunnelInfo(peerConn, allowedIPs)
}

// SetupPeerTunnel exports step 5.
func (c *Client) SetupPeerTunnel(peerConn net.Conn) error { return c.setupPeerTunnel(peerConn) }

// Seed sends SeedRequest, opting this peer in as a gateway candidate for
// other peers' GatewayRequests.
func (c *Client) Seed() error {
	msg := wire.New(wire.KindSeedRequest, wire.StatusPending, c.localAddr(), nil)
	reply, err := sendRecv(c.conn, &c.connMu, c.requestTimeout(), msg)
	if err != nil {
		return err
	}
	if reply.Status != wire.StatusOk {
		return fmt.Errorf("peerclient: seed: status %v", reply.Status)
	}
	return nil
}

// Stop iterates the peer-socket map, sending PeerTunnelClose best-effort
// under a 1 s write deadline, then fully closes each socket (there is no
// half-close step). It then closes the control connection and the STUN
// socket.
func (c *Client) Stop() {
	const stopDeadline = time.Second

	c.peersMu.Lock()
	peers := c.peers
	c.peers = make(map[clientid.ClientId]net.Conn)
	c.peersMu.Unlock()

	closeMsg := wire.New(wire.KindPeerTunnelClose, wire.StatusPending, c.localAddr(), nil)
	encoded := closeMsg.Encode()
	for id, conn := range peers {
		conn.SetWriteDeadline(time.Now().Add(stopDeadline))
		if _, err := conn.Write(encoded); err != nil {
			c.log.Debug("best-effort PeerTunnelClose failed", "peer", id, "error", err)
		}
		conn.Close()
	}

	if c.conn != nil {
		c.conn.Close()
	}
	if c.udpConn != nil {
		c.udpConn.Close()
	}
}
