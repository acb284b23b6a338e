package gateway

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/kuuji/roxi/internal/roxiconfig"
	"github.com/kuuji/roxi/internal/wgconf"
	"github.com/kuuji/roxi/pkg/wire"
)

func testServer(t *testing.T) (*Server, func()) {
	t.Helper()
	cfg := &roxiconfig.ClientConfig{}
	cfg.Network.Gateway.IP = "127.0.0.1"
	cfg.Network.Gateway.Interface = "wg-test0"
	cfg.Network.Server.IP = "127.0.0.1"
	cfg.Network.WireGuard.ConfigPath = t.TempDir() + "/wg0.conf"
	cfg.Auth.SharedKey = "topsecret"
	cfg.ApplyDefaults()
	// ApplyDefaults turns a zero port into the default one, so the
	// ephemeral port is requested afterwards.
	cfg.Network.Gateway.Ports.TCP = 0

	priv, err := wgconf.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("GeneratePrivateKey() error: %v", err)
	}
	wgCfg := &wgconf.Config{
		Interface: wgconf.Interface{
			PrivateKey: priv,
			Address:    "10.10.0.1/24",
			ListenPort: 51820,
		},
	}
	// Save once up front so wgCfg records its on-disk path; later saves
	// triggered by PeerTunnelInitRequest reuse that recorded path.
	if err := wgCfg.Save(cfg.Network.WireGuard.ConfigPath); err != nil {
		t.Fatalf("initial wgCfg.Save() error: %v", err)
	}

	s := New(cfg, wgCfg, nil)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for s.Addr() == nil && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if s.Addr() == nil {
		t.Fatal("gateway did not bind in time")
	}

	return s, func() {
		cancel()
		<-done
	}
}

func dial(t *testing.T, s *Server, sourceIP string) net.Conn {
	t.Helper()
	d := net.Dialer{LocalAddr: &net.TCPAddr{IP: net.ParseIP(sourceIP)}}
	conn, err := d.Dial("tcp", s.Addr().String())
	if err != nil {
		t.Fatalf("Dial() error: %v", err)
	}
	return conn
}

func sendRecv(t *testing.T, conn net.Conn, m wire.Message) wire.Message {
	t.Helper()
	conn.SetDeadline(time.Now().Add(2 * time.Second))
	if _, err := conn.Write(m.Encode()); err != nil {
		t.Fatalf("write error: %v", err)
	}
	buf := make([]byte, wire.ScratchBufferSize)
	n, err := conn.Read(buf)
	if err != nil {
		t.Fatalf("read error: %v", err)
	}
	got, err := wire.Decode(buf[:n])
	if err != nil {
		t.Fatalf("Decode() error: %v", err)
	}
	return got
}

func addrFor(t *testing.T, ip string, port uint16) wire.Address {
	t.Helper()
	a, err := wire.NewAddress(net.ParseIP(ip), port)
	if err != nil {
		t.Fatalf("NewAddress() error: %v", err)
	}
	return a
}

func TestPing(t *testing.T) {
	s, stop := testServer(t)
	defer stop()

	conn := dial(t, s, "127.0.0.21")
	defer conn.Close()

	a := addrFor(t, "127.0.0.21", 1)
	got := sendRecv(t, conn, wire.New(wire.KindPing, wire.StatusPending, a, nil))
	if got.Kind != wire.KindPong || got.Status != wire.StatusOk {
		t.Fatalf("got %v/%v, want Pong/Ok", got.Kind, got.Status)
	}
}

func TestPeerTunnelRequestRegisters(t *testing.T) {
	s, stop := testServer(t)
	defer stop()

	conn := dial(t, s, "127.0.0.22")
	defer conn.Close()

	a := addrFor(t, "127.0.0.22", 2)
	got := sendRecv(t, conn, wire.New(wire.KindPeerTunnelRequest, wire.StatusPending, a, nil))
	if got.Kind != wire.KindPeerTunnelResponse || got.Status != wire.StatusOk {
		t.Fatalf("got %v/%v, want PeerTunnelResponse/Ok", got.Kind, got.Status)
	}
	if s.streams.Len() != 1 {
		t.Fatalf("streams len = %d, want 1", s.streams.Len())
	}
}

func TestNATPunchUnregisteredIsForbidden(t *testing.T) {
	s, stop := testServer(t)
	defer stop()

	conn := dial(t, s, "127.0.0.23")
	defer conn.Close()

	a := addrFor(t, "127.0.0.23", 3)
	got := sendRecv(t, conn, wire.New(wire.KindNATPunchRequest, wire.StatusPending, a, nil))
	if got.Kind != wire.KindNATPunchResponse || got.Status != wire.StatusForbidden {
		t.Fatalf("got %v/%v, want NATPunchResponse/Forbidden", got.Kind, got.Status)
	}
}

func TestNATPunchRegisteredIsOk(t *testing.T) {
	s, stop := testServer(t)
	defer stop()

	conn := dial(t, s, "127.0.0.24")
	defer conn.Close()

	a := addrFor(t, "127.0.0.24", 4)
	sendRecv(t, conn, wire.New(wire.KindPeerTunnelRequest, wire.StatusPending, a, nil))

	got := sendRecv(t, conn, wire.New(wire.KindNATPunchRequest, wire.StatusPending, a, nil))
	if got.Kind != wire.KindNATPunchResponse || got.Status != wire.StatusOk {
		t.Fatalf("got %v/%v, want NATPunchResponse/Ok", got.Kind, got.Status)
	}
}

func TestPeerTunnelInitSwapsKeys(t *testing.T) {
	s, stop := testServer(t)
	defer stop()

	conn := dial(t, s, "127.0.0.25")
	defer conn.Close()

	peerPriv, err := wgconf.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("GeneratePrivateKey() error: %v", err)
	}
	peerPub := wgconf.PublicKey(peerPriv)

	payload, err := wgconf.EncodePeer(wgconf.Peer{
		PublicKey:  peerPub,
		AllowedIPs: "10.10.0.2/32",
	})
	if err != nil {
		t.Fatalf("EncodePeer() error: %v", err)
	}

	a := addrFor(t, "127.0.0.25", 5)
	got := sendRecv(t, conn, wire.New(wire.KindPeerTunnelInitRequest, wire.StatusPending, a, payload))
	if got.Kind != wire.KindPeerTunnelInitResponse || got.Status != wire.StatusOk {
		t.Fatalf("got %v/%v, want PeerTunnelInitResponse/Ok", got.Kind, got.Status)
	}

	replyPeer, err := wgconf.DecodePeer(got.Payload)
	if err != nil {
		t.Fatalf("DecodePeer() error: %v", err)
	}
	if replyPeer.PublicKey.IsZero() {
		t.Fatal("reply carried a zero public key")
	}

	s.wgMu.Lock()
	n := len(s.wgCfg.Peers)
	s.wgMu.Unlock()
	if n != 1 {
		t.Fatalf("in-memory interface has %d peers, want 1", n)
	}
}

func TestUnknownKindTerminatesConnection(t *testing.T) {
	s, stop := testServer(t)
	defer stop()

	conn := dial(t, s, "127.0.0.26")
	defer conn.Close()

	a := addrFor(t, "127.0.0.26", 6)
	got := sendRecv(t, conn, wire.New(wire.KindDisconnectRequest, wire.StatusPending, a, nil))
	if got.Kind != wire.KindGenericErrorResponse || got.Status != wire.StatusBadData {
		t.Fatalf("got %v/%v, want GenericErrorResponse/BadData", got.Kind, got.Status)
	}

	buf := make([]byte, 16)
	conn.SetReadDeadline(time.Now().Add(time.Second))
	if _, err := conn.Read(buf); err == nil {
		t.Fatal("expected connection to be closed after an unhandled kind")
	}
}
