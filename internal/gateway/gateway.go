// Package gateway implements the peer-colocated acceptor described in
// spec §4.6: it accepts direct peer connections, swaps WireGuard public
// keys, and confirms that a NAT hole is open. Grounded on
// original_source/packages/roxi-server/src/gateway.rs, adapted from its
// async-std/tokio shape to the net/sync shape internal/rendezvous
// already established for the sibling server.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/kuuji/roxi/internal/clientid"
	"github.com/kuuji/roxi/internal/roxiconfig"
	"github.com/kuuji/roxi/internal/socketmap"
	"github.com/kuuji/roxi/internal/wgconf"
	"github.com/kuuji/roxi/internal/wgtool"
	"github.com/kuuji/roxi/pkg/wire"
)

// ShutdownDeadline mirrors the Rendezvous's 1-second drain cap (spec
// §4.6: "Shutdown mirrors the Rendezvous").
const ShutdownDeadline = time.Second

// Server is the Gateway TCP acceptor. It owns the registered-peer socket
// map and the in-memory WireGuard interface it appends peers to.
type Server struct {
	cfg *roxiconfig.ClientConfig
	log *slog.Logger

	streams *socketmap.Map

	wgMu  sync.Mutex
	wgCfg *wgconf.Config

	sem *semaphore.Weighted

	listener *net.TCPListener

	stop     chan struct{}
	stopOnce sync.Once

	mu      sync.Mutex
	tcpAddr net.Addr
}

// New builds a Gateway server from cfg. wgCfg is the already-loaded
// WireGuard interface this peer rewrites on every key swap; callers load
// it once via wgconf.Load before starting the Gateway.
func New(cfg *roxiconfig.ClientConfig, wgCfg *wgconf.Config, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		cfg:     cfg,
		log:     log.With("component", "gateway"),
		streams: socketmap.New(),
		wgCfg:   wgCfg,
		sem:     semaphore.NewWeighted(int64(cfg.Network.Gateway.MaxClients)),
		stop:    make(chan struct{}),
	}
}

// Addr returns the Gateway's bound TCP address, or nil before Run binds
// its listener. Intended for tests that bind to port 0.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tcpAddr
}

// Run binds the TCP listener and blocks, serving connections, until ctx
// is cancelled.
func (s *Server) Run(ctx context.Context) error {
	tcpAddr := &net.TCPAddr{IP: net.ParseIP(s.cfg.Network.Gateway.IP), Port: s.cfg.Network.Gateway.Ports.TCP}
	ln, err := net.ListenTCP("tcp", tcpAddr)
	if err != nil {
		return fmt.Errorf("gateway: listening on %s: %w", tcpAddr, err)
	}
	s.listener = ln
	s.mu.Lock()
	s.tcpAddr = ln.Addr()
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.Shutdown()
	}()

	s.log.Info("gateway listening", "tcp", tcpAddr)
	return s.acceptLoop(ctx)
}

func (s *Server) acceptLoop(ctx context.Context) error {
	for {
		conn, err := s.listener.AcceptTCP()
		if err != nil {
			select {
			case <-s.stop:
				return nil
			default:
				return fmt.Errorf("gateway: accept: %w", err)
			}
		}
		if err := s.sem.Acquire(ctx, 1); err != nil {
			conn.Close()
			return nil
		}
		go func() {
			defer s.sem.Release(1)
			s.handleConn(conn)
		}()
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()

	id, err := clientid.FromConn(conn)
	if err != nil {
		s.log.Warn("rejecting connection with unparseable remote address", "error", err)
		return
	}

	buf := make([]byte, wire.ScratchBufferSize)
	for {
		n, err := conn.Read(buf)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				s.log.Debug("connection read error", "client", id, "error", err)
			}
			return
		}
		msg, err := wire.Decode(buf[:n])
		if err != nil {
			s.log.Warn("malformed message", "client", id, "error", err)
			return
		}

		reply, terminate := s.dispatch(id, conn, msg)
		if reply != nil {
			if _, err := conn.Write(reply.Encode()); err != nil {
				s.log.Debug("write error", "client", id, "error", err)
				return
			}
		}
		if terminate {
			return
		}
	}
}

func (s *Server) dispatch(id clientid.ClientId, conn net.Conn, msg wire.Message) (*wire.Message, bool) {
	switch msg.Kind {
	case wire.KindPing:
		return replyPtr(wire.New(wire.KindPong, wire.StatusOk, msg.Sender, nil)), false

	case wire.KindPeerTunnelRequest:
		s.streams.Upsert(id, conn)
		return replyPtr(wire.New(wire.KindPeerTunnelResponse, wire.StatusOk, msg.Sender, nil)), false

	case wire.KindPeerTunnelInitRequest:
		return s.handlePeerTunnelInit(id, msg), false

	case wire.KindNATPunchRequest:
		return s.handleNATPunch(id, msg), false

	default:
		return replyPtr(wire.New(wire.KindGenericErrorResponse, wire.StatusBadData, msg.Sender, nil)), true
	}
}

// handlePeerTunnelInit implements the symmetric key swap: decode the
// peer's announced public key, append it to the in-memory interface and
// save the file, then reply with THIS side's public key so the peer can
// do the same on its end.
func (s *Server) handlePeerTunnelInit(id clientid.ClientId, msg wire.Message) *wire.Message {
	peer, err := wgconf.DecodePeer(msg.Payload)
	if err != nil {
		s.log.Warn("malformed PeerTunnelInitRequest payload", "client", id, "error", err)
		return replyPtr(wire.New(wire.KindPeerTunnelInitResponse, wire.StatusBadData, msg.Sender, nil))
	}

	s.wgMu.Lock()
	s.wgCfg.AddPeer(peer)
	saveErr := s.wgCfg.Save("")
	localPrivate := s.wgCfg.Interface.PrivateKey
	s.wgMu.Unlock()

	if saveErr != nil {
		s.log.Error("saving wireguard config", "client", id, "error", saveErr)
		return replyPtr(wire.New(wire.KindPeerTunnelInitResponse, wire.StatusInternalServerError, msg.Sender, nil))
	}

	localPublic, err := wgtool.ReadDevicePublicKey(s.cfg.Network.Gateway.Interface)
	if err != nil {
		s.log.Warn("reading live device public key, falling back to config-derived key", "error", err)
		localPublic = wgtool.DerivePublicKey(localPrivate)
	}

	reply := wgconf.Peer{
		PublicKey:  localPublic,
		AllowedIPs: peer.AllowedIPs,
	}
	payload, err := wgconf.EncodePeer(reply)
	if err != nil {
		s.log.Error("encoding peer reply", "client", id, "error", err)
		return replyPtr(wire.New(wire.KindPeerTunnelInitResponse, wire.StatusInternalServerError, msg.Sender, nil))
	}
	return replyPtr(wire.New(wire.KindPeerTunnelInitResponse, wire.StatusOk, msg.Sender, payload))
}

// handleNATPunch implements Open Question (iii): Forbidden for an
// unregistered peer, matching original_source's gateway.rs rather than
// Unauthorized. See SPEC_FULL.md §9(iii).
func (s *Server) handleNATPunch(id clientid.ClientId, msg wire.Message) *wire.Message {
	if !s.streams.Has(id) {
		s.log.Warn("NAT punch from unregistered peer", "client", id)
		return replyPtr(wire.New(wire.KindNATPunchResponse, wire.StatusForbidden, msg.Sender, nil))
	}
	return replyPtr(wire.New(wire.KindNATPunchResponse, wire.StatusOk, msg.Sender, nil))
}

func replyPtr(m wire.Message) *wire.Message { return &m }

// Shutdown performs the graceful drain described in spec §4.6: a
// best-effort ServerShutdown broadcast to every registered stream under
// ShutdownDeadline, then close.
func (s *Server) Shutdown() {
	s.stopOnce.Do(func() {
		done := make(chan struct{})
		go func() {
			s.drainStreams()
			close(done)
		}()

		select {
		case <-done:
		case <-time.After(ShutdownDeadline):
			s.log.Warn("shutdown drain exceeded deadline, forcing close")
		}

		close(s.stop)
		if s.listener != nil {
			s.listener.Close()
		}
	})
}

func (s *Server) drainStreams() {
	entries := s.streams.Snapshot()
	shutdownMsg := wire.New(wire.KindServerShutdown, wire.StatusServiceUnavailable, wire.Address{}, nil)
	encoded := shutdownMsg.Encode()

	var wg sync.WaitGroup
	for id, entry := range entries {
		wg.Add(1)
		go func(id clientid.ClientId, e *socketmap.Entry) {
			defer wg.Done()
			deadline := time.Now().Add(ShutdownDeadline)
			if conn, ok := e.Conn.(interface{ SetWriteDeadline(time.Time) error }); ok {
				_ = conn.SetWriteDeadline(deadline)
			}
			_, _ = e.Write(encoded)
			_ = e.Conn.Close()
		}(id, entry)
	}
	wg.Wait()
	s.streams.Clear()
}
