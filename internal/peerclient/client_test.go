package peerclient

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/kuuji/roxi/internal/gateway"
	"github.com/kuuji/roxi/internal/rendezvous"
	"github.com/kuuji/roxi/internal/roxiconfig"
	"github.com/kuuji/roxi/internal/wgconf"
	"github.com/kuuji/roxi/pkg/wire"
)

func startRendezvous(t *testing.T) (*rendezvous.Server, func()) {
	t.Helper()
	cfg := &roxiconfig.ServerConfig{}
	cfg.Network.Server.IP = "127.0.0.1"
	cfg.Auth.SharedKey = "topsecret"
	cfg.ApplyDefaults()
	// ApplyDefaults turns a zero port into the default one, so the
	// ephemeral ports are requested afterwards.
	cfg.Network.Server.Ports.TCP = 0
	cfg.Network.Server.Ports.UDP = 0

	s := rendezvous.New(cfg, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for s.Addr() == nil && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if s.Addr() == nil {
		t.Fatal("rendezvous did not bind in time")
	}
	return s, func() { cancel(); <-done }
}

func startGateway(t *testing.T) (*gateway.Server, func()) {
	t.Helper()
	cfg := &roxiconfig.ClientConfig{}
	// Peer B's gateway runs on peer B's own host (127.0.0.31, the source
	// address registerPeerB dials from).
	cfg.Network.Gateway.IP = "127.0.0.31"
	cfg.Network.Gateway.Interface = "wg-test0"
	cfg.Network.Server.IP = "127.0.0.1"
	cfg.Network.WireGuard.ConfigPath = t.TempDir() + "/gatewayB.conf"
	cfg.Auth.SharedKey = "topsecret"
	cfg.ApplyDefaults()
	cfg.Network.Gateway.Ports.TCP = 0

	priv, err := wgconf.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("GeneratePrivateKey() error: %v", err)
	}
	wgCfg := &wgconf.Config{Interface: wgconf.Interface{PrivateKey: priv, Address: "10.10.0.2/24", ListenPort: 51821}}
	if err := wgCfg.Save(cfg.Network.WireGuard.ConfigPath); err != nil {
		t.Fatalf("wgCfg.Save() error: %v", err)
	}

	s := gateway.New(cfg, wgCfg, nil)
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
	return s, func() { cancel(); <-done }
}

// registerPeerB authenticates and seeds a stand-in for "peer B" directly
// against the Rendezvous, advertising gwAddr as its gateway, so that peer
// A's GatewayRequest has a candidate to select.
func registerPeerB(t *testing.T, rz *rendezvous.Server, gwAddr net.Addr) net.Conn {
	t.Helper()
	tcpAddr := gwAddr.(*net.TCPAddr)

	d := net.Dialer{LocalAddr: &net.TCPAddr{IP: net.ParseIP("127.0.0.31")}}
	conn, err := d.Dial("tcp", rz.Addr().String())
	if err != nil {
		t.Fatalf("dialing rendezvous as peer B: %v", err)
	}

	sender, err := wire.NewAddress(tcpAddr.IP, uint16(tcpAddr.Port))
	if err != nil {
		t.Fatalf("NewAddress() error: %v", err)
	}

	send := func(m wire.Message) wire.Message {
		conn.SetDeadline(time.Now().Add(2 * time.Second))
		if _, err := conn.Write(m.Encode()); err != nil {
			t.Fatalf("peer B write: %v", err)
		}
		buf := make([]byte, wire.ScratchBufferSize)
		n, err := conn.Read(buf)
		if err != nil {
			t.Fatalf("peer B read: %v", err)
		}
		got, err := wire.Decode(buf[:n])
		if err != nil {
			t.Fatalf("peer B decode: %v", err)
		}
		return got
	}

	authReply := send(wire.New(wire.KindAuthenticationRequest, wire.StatusPending, sender, []byte("topsecret")))
	if authReply.Status != wire.StatusOk {
		t.Fatalf("peer B authenticate: status %v", authReply.Status)
	}
	seedReply := send(wire.New(wire.KindSeedRequest, wire.StatusPending, sender, nil))
	if seedReply.Status != wire.StatusOk {
		t.Fatalf("peer B seed: status %v", seedReply.Status)
	}
	return conn
}

func TestTunnelEndToEnd(t *testing.T) {
	rz, stopRZ := startRendezvous(t)
	defer stopRZ()

	gw, stopGW := startGateway(t)
	defer stopGW()

	peerBConn := registerPeerB(t, rz, gw.Addr())
	defer peerBConn.Close()

	cfgA := &roxiconfig.ClientConfig{}
	cfgA.Network.Server.IP = rz.Addr().(*net.TCPAddr).IP.String()
	cfgA.Network.Server.Ports.TCP = rz.Addr().(*net.TCPAddr).Port
	cfgA.Network.Gateway.IP = "127.0.0.30"
	cfgA.Network.Gateway.Ports.TCP = 9 // unused by this test; A runs no gateway of its own
	cfgA.Network.Gateway.Interface = "wg-testA"
	cfgA.Network.WireGuard.ConfigPath = t.TempDir() + "/peerA.conf"
	cfgA.Auth.SharedKey = "topsecret"
	cfgA.ApplyDefaults()

	privA, err := wgconf.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("GeneratePrivateKey() error: %v", err)
	}
	wgCfgA := &wgconf.Config{Interface: wgconf.Interface{PrivateKey: privA, Address: "10.10.0.3/24", ListenPort: 51822}}
	if err := wgCfgA.Save(cfgA.Network.WireGuard.ConfigPath); err != nil {
		t.Fatalf("wgCfgA.Save() error: %v", err)
	}

	client, err := Dial(cfgA, wgCfgA, nil)
	if err != nil {
		t.Fatalf("Dial() error: %v", err)
	}
	defer client.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := client.Tunnel(ctx, "10.10.0.3/32"); err != nil {
		t.Fatalf("Tunnel() error: %v", err)
	}

	client.peersMu.Lock()
	n := len(client.peers)
	client.peersMu.Unlock()
	if n != 1 {
		t.Fatalf("peers map has %d entries, want 1", n)
	}

	client.wgMu.Lock()
	peerCount := len(client.wgCfg.Peers)
	client.wgMu.Unlock()
	if peerCount != 1 {
		t.Fatalf("peer A's interface has %d peers, want 1", peerCount)
	}
}

func TestPingRendezvous(t *testing.T) {
	rz, stopRZ := startRendezvous(t)
	defer stopRZ()

	cfg := &roxiconfig.ClientConfig{}
	cfg.Network.Server.IP = rz.Addr().(*net.TCPAddr).IP.String()
	cfg.Network.Server.Ports.TCP = rz.Addr().(*net.TCPAddr).Port
	cfg.Network.Gateway.IP = "127.0.0.1"
	cfg.Network.WireGuard.ConfigPath = t.TempDir() + "/peer.conf"
	cfg.Auth.SharedKey = "topsecret"
	cfg.ApplyDefaults()

	priv, err := wgconf.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("GeneratePrivateKey() error: %v", err)
	}
	wgCfg := &wgconf.Config{Interface: wgconf.Interface{PrivateKey: priv, Address: "10.10.0.9/24", ListenPort: 51823}}

	client, err := Dial(cfg, wgCfg, nil)
	if err != nil {
		t.Fatalf("Dial() error: %v", err)
	}
	defer client.Stop()

	if err := client.Ping(); err != nil {
		t.Fatalf("Ping() error: %v", err)
	}
}
