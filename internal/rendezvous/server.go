// Package rendezvous implements the central coordinator described in
// spec §4.5: it owns the session table, the STUN cache, and the socket
// map, and dispatches framed requests arriving over TCP.
package rendezvous

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
	"github.com/kuuji/roxi/internal/rerr"
	"github.com/kuuji/roxi/internal/roxiconfig"
	"github.com/kuuji/roxi/internal/session"
	"github.com/kuuji/roxi/internal/socketmap"
	"github.com/kuuji/roxi/internal/stun"
	"github.com/kuuji/roxi/pkg/wire"
)

// ShutdownDeadline is the overall cap on graceful shutdown, per spec
// §4.5's "watchdog caps the drain at 1 second overall".
const ShutdownDeadline = time.Second

// Server is the Rendezvous TCP acceptor. It owns the session table, the
// STUN cache, and the socket map, and runs the STUN reflector and
// session monitor as sibling goroutines (spec §4.5: "also runs the STUN
// reflector as a sibling task... and the session monitor as a third
// sibling").
type Server struct {
	cfg *roxiconfig.ServerConfig
	log *slog.Logger

	sessions *session.Table
	stunInfo *stun.Cache
	sockets  *socketmap.Map

	sem *semaphore.Weighted

	listener *net.TCPListener
	stunConn *net.UDPConn

	stop     chan struct{}
	stopOnce sync.Once

	mu       sync.Mutex
	tcpAddr  net.Addr
}

// Addr returns the Rendezvous's bound TCP address, or nil if Run hasn't
// bound a listener yet. Intended for tests that bind to port 0.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tcpAddr
}

// New builds a Rendezvous server from cfg.
func New(cfg *roxiconfig.ServerConfig, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		cfg:      cfg,
		log:      log.With("component", "rendezvous"),
		sessions: session.NewTable(clientid.SharedKey(cfg.Auth.SharedKey)),
		stunInfo: stun.NewCache(),
		sockets:  socketmap.New(),
		sem:      semaphore.NewWeighted(int64(cfg.Network.Server.MaxClients)),
		stop:     make(chan struct{}),
	}
}

// Run binds the TCP and UDP listeners and blocks, serving connections
// and the STUN reflector, until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	tcpAddr := &net.TCPAddr{IP: net.ParseIP(s.cfg.Network.Server.IP), Port: s.cfg.Network.Server.Ports.TCP}
	ln, err := net.ListenTCP("tcp", tcpAddr)
	if err != nil {
		return fmt.Errorf("rendezvous: listening on %s: %w", tcpAddr, err)
	}
	s.listener = ln
	s.mu.Lock()
	s.tcpAddr = ln.Addr()
	s.mu.Unlock()

	udpAddr := &net.UDPAddr{IP: net.ParseIP(s.cfg.Network.Server.IP), Port: s.cfg.Network.Server.Ports.UDP}
	uconn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		ln.Close()
		return fmt.Errorf("rendezvous: listening on %s: %w", udpAddr, err)
	}
	s.stunConn = uconn

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := stun.Listen(s.stunConn, s.stunInfo, s.log, s.stop); err != nil {
			s.log.Error("stun reflector stopped", "error", err)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		s.sessions.Monitor(s.stop)
	}()

	go func() {
		<-ctx.Done()
		s.Shutdown()
	}()

	s.log.Info("rendezvous listening", "tcp", tcpAddr, "udp", udpAddr)
	err = s.acceptLoop(ctx)
	wg.Wait()
	return err
}

func (s *Server) acceptLoop(ctx context.Context) error {
	for {
		conn, err := s.listener.AcceptTCP()
		if err != nil {
			select {
			case <-s.stop:
				return nil
			default:
				return fmt.Errorf("rendezvous: accept: %w", err)
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

// dispatch processes one message and returns the reply to write back to
// the requester (nil if none) and whether the connection should be
// closed after writing it.
func (s *Server) dispatch(id clientid.ClientId, conn net.Conn, msg wire.Message) (*wire.Message, bool) {
	switch msg.Kind {
	case wire.KindPing:
		return replyPtr(wire.New(wire.KindPong, wire.StatusOk, msg.Sender, nil)), false

	case wire.KindAuthenticationRequest:
		return s.handleAuthenticate(id, conn, msg)

	case wire.KindStunInfoRequest:
		return s.requireAuth(id, msg, wire.KindStunInfoResponse, func() *wire.Message {
			return s.handleStunInfo(id, msg)
		})

	case wire.KindGatewayRequest:
		return s.requireAuth(id, msg, wire.KindGatewayResponse, func() *wire.Message {
			return s.handleGateway(id, msg)
		})

	case wire.KindSeedRequest:
		return s.requireAuth(id, msg, wire.KindSeedResponse, func() *wire.Message {
			s.sockets.Upsert(id, conn)
			return replyPtr(wire.New(wire.KindSeedResponse, wire.StatusOk, msg.Sender, nil))
		})

	default:
		return replyPtr(wire.New(wire.KindGenericErrorResponse, wire.StatusBadData, msg.Sender, nil)), true
	}
}

// requireAuth enforces spec §3's invariant: "all non-Ping/Authenticate
// request handlers on the Rendezvous MUST verify [the session exists]
// before acting." On failure it replies with the matching *Response
// kind and Unauthorized status, per spec §8's "Auth gate" property.
func (s *Server) requireAuth(id clientid.ClientId, msg wire.Message, responseKind wire.Kind, handle func() *wire.Message) (*wire.Message, bool) {
	if !s.sessions.Exists(id) {
		return replyPtr(wire.New(responseKind, wire.StatusUnauthorized, msg.Sender, nil)), false
	}
	return handle(), false
}

func (s *Server) handleAuthenticate(id clientid.ClientId, conn net.Conn, msg wire.Message) (*wire.Message, bool) {
	cfg := session.ClientConfig{
		SharedKey:   clientid.SharedKey(msg.Payload),
		GatewayAddr: msg.Sender,
	}
	if err := s.sessions.Authenticate(id, cfg, s.cfg.Auth.SessionTTL); err != nil {
		s.log.Info("authentication failed", "client", id)
		return replyPtr(wire.New(wire.KindAuthenticationResponse, wire.StatusUnauthorized, msg.Sender, nil)), true
	}
	s.sockets.Upsert(id, conn)
	return replyPtr(wire.New(wire.KindAuthenticationResponse, wire.StatusOk, msg.Sender, nil)), false
}

// handleStunInfo implements Open Question (ii): a real echo of the
// cached StunInfo rather than a stub. See SPEC_FULL.md §9(ii).
func (s *Server) handleStunInfo(id clientid.ClientId, msg wire.Message) *wire.Message {
	info, ok := s.stunInfo.Get(id)
	if !ok {
		return replyPtr(wire.New(wire.KindStunInfoResponse, wire.StatusNotFound, msg.Sender, nil))
	}
	addr, err := wire.NewAddress(info.IP, info.Port)
	if err != nil {
		return replyPtr(wire.New(wire.KindStunInfoResponse, wire.StatusInternalServerError, msg.Sender, nil))
	}
	b := addr.Bytes()
	return replyPtr(wire.New(wire.KindStunInfoResponse, wire.StatusOk, msg.Sender, b[:]))
}

// handleGateway implements both halves of Open Question (i): the
// requester gets the chosen peer's address directly in the reply
// payload, AND the chosen peer receives a server-initiated push over
// its cached socket carrying the requester's own gateway address. See
// SPEC_FULL.md §9(i).
func (s *Server) handleGateway(requester clientid.ClientId, msg wire.Message) *wire.Message {
	peerAddr, err := s.sessions.GetPeerForGateway(requester)
	if err != nil {
		if errors.Is(err, rerr.ErrNoAvailablePeers) {
			return replyPtr(wire.New(wire.KindGatewayResponse, wire.StatusServiceUnavailable, msg.Sender, nil))
		}
		return replyPtr(wire.New(wire.KindGatewayResponse, wire.StatusInternalServerError, msg.Sender, nil))
	}

	peerID := clientid.FromIP(net.IP(peerAddr.IP[:]))
	if entry, ok := s.sockets.Get(peerID); ok {
		push := wire.New(wire.KindGatewayResponse, wire.StatusOk, peerAddr, requesterAddrBytes(msg))
		if _, err := entry.Write(push.Encode()); err != nil {
			s.log.Warn("gateway push failed", "peer", peerID, "error", err)
		}
	}

	b := peerAddr.Bytes()
	return replyPtr(wire.New(wire.KindGatewayResponse, wire.StatusOk, msg.Sender, b[:]))
}

func requesterAddrBytes(msg wire.Message) []byte {
	b := msg.Sender.Bytes()
	return b[:]
}

func replyPtr(m wire.Message) *wire.Message { return &m }

// Shutdown performs the graceful drain described in spec §4.5: for each
// cached socket, attempt a ServerShutdown message under a per-peer
// write deadline of the configured response_timeout, then clear the STUN cache and session table, then
// signal the accept loop and reflector to stop. The whole drain is
// capped at ShutdownDeadline.
func (s *Server) Shutdown() {
	s.stopOnce.Do(func() {
		done := make(chan struct{})
		go func() {
			s.drainSockets()
			s.stunInfo.Clear()
			s.sessions.Clear()
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
		if s.stunConn != nil {
			s.stunConn.Close()
		}
	})
}

// drainSockets snapshots the socket map under its lock, releases the
// lock, then iterates and writes — per spec §9's explicit guidance to
// avoid holding the outer lock across writes during shutdown.
func (s *Server) drainSockets() {
	entries := s.sockets.Snapshot()
	shutdownMsg := wire.New(wire.KindServerShutdown, wire.StatusServiceUnavailable, wire.Address{}, nil)
	encoded := shutdownMsg.Encode()
	responseTimeout := time.Duration(s.cfg.Network.Server.ResponseTimeout) * time.Second

	var wg sync.WaitGroup
	for id, entry := range entries {
		wg.Add(1)
		go func(id clientid.ClientId, e *socketmap.Entry) {
			defer wg.Done()
			deadline := time.Now().Add(responseTimeout)
			if conn, ok := e.Conn.(interface{ SetWriteDeadline(time.Time) error }); ok {
				_ = conn.SetWriteDeadline(deadline)
			}
			_, _ = e.Write(encoded)
			_ = e.Conn.Close()
		}(id, entry)
	}
	wg.Wait()
	s.sockets.Clear()
}
