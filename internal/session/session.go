// Package session implements the Rendezvous's authenticated-client
// session table: who is authenticated, since when, and which gateway
// address to hand out on their behalf.
package session

import (
	"math/rand/v2"
	"sync"
	"time"

	"github.com/kuuji/roxi/internal/clientid"
	"github.com/kuuji/roxi/internal/rerr"
	"github.com/kuuji/roxi/pkg/wire"
)

// ClientConfig is the snapshot of a client's own configuration captured
// at authentication time — just enough to answer GatewayRequest on that
// client's behalf later without re-contacting it.
type ClientConfig struct {
	SharedKey   clientid.SharedKey
	GatewayAddr wire.Address
}

// Session is one authenticated client's table entry.
type Session struct {
	FirstSeen time.Time
	TTL       time.Duration
	Config    ClientConfig
}

func (s Session) expired(now time.Time) bool {
	return now.Sub(s.FirstSeen) > s.TTL
}

// Table is the Rendezvous's session table: a map guarded by a
// reader/writer lock. Reads take a shared guard; mutations take an
// exclusive guard. The guard is never held across I/O.
type Table struct {
	serverKey clientid.SharedKey

	mu       sync.RWMutex
	sessions map[clientid.ClientId]Session
}

// NewTable builds an empty session table authenticating against
// serverKey.
func NewTable(serverKey clientid.SharedKey) *Table {
	return &Table{
		serverKey: serverKey,
		sessions:  make(map[clientid.ClientId]Session),
	}
}

// Authenticate compares cfg.SharedKey against the table's configured
// shared key. On mismatch it returns rerr.ErrInvalidSharedKey and does
// NOT insert. On match it upserts a Session capturing the current time,
// ttl, and cfg.
func (t *Table) Authenticate(id clientid.ClientId, cfg ClientConfig, ttl time.Duration) error {
	if !cfg.SharedKey.Equal(t.serverKey) {
		return rerr.ErrInvalidSharedKey
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sessions[id] = Session{
		FirstSeen: time.Now(),
		TTL:       ttl,
		Config:    cfg,
	}
	return nil
}

// Exists reports whether id has a live session.
func (t *Table) Exists(id clientid.ClientId) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.sessions[id]
	return ok
}

// GetPeerForGateway returns the gateway address advertised by a
// uniformly-chosen session other than requester's. It never returns
// requester's own session, and fails with rerr.ErrNoAvailablePeers when
// the filtered candidate set is empty (including when requester is the
// only session in the table).
func (t *Table) GetPeerForGateway(requester clientid.ClientId) (wire.Address, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	candidates := make([]wire.Address, 0, len(t.sessions))
	for id, sess := range t.sessions {
		if id == requester {
			continue
		}
		candidates = append(candidates, sess.Config.GatewayAddr)
	}
	if len(candidates) == 0 {
		return wire.Address{}, rerr.ErrNoAvailablePeers
	}
	return candidates[rand.N(len(candidates))], nil
}

// Remove deletes id's session, if any.
func (t *Table) Remove(id clientid.ClientId) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.sessions, id)
}

// Len returns the number of live sessions.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.sessions)
}

// Cleanup drops every session whose elapsed time exceeds its TTL.
// Idleness here is purely time-based: elapsed > TTL, the conservative
// default spec §4.3 calls out.
func (t *Table) Cleanup() {
	now := time.Now()
	t.mu.Lock()
	defer t.mu.Unlock()
	for id, sess := range t.sessions {
		if sess.expired(now) {
			delete(t.sessions, id)
		}
	}
}

// Clear empties the table, for use during server shutdown.
func (t *Table) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sessions = make(map[clientid.ClientId]Session)
}

// Monitor runs Cleanup every 30 seconds until ctx-equivalent stop is
// closed. It is meant to be launched as its own goroutine, a sibling of
// the Rendezvous accept loop and STUN reflector.
func (t *Table) Monitor(stop <-chan struct{}) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			t.Cleanup()
		}
	}
}
