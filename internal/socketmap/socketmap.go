// Package socketmap is the shared ClientId → mutex-protected socket map
// used by both the Rendezvous (cached peer sockets for gateway pushes
// and seed candidates) and the Gateway (registered PeerTunnelRequest
// streams). At most one entry exists per ClientId; entry values are
// reference-counted between the connection's own accept-loop goroutine
// and any handler goroutine that looks the entry up to write to it.
package socketmap

import (
	"net"
	"sync"

	"github.com/kuuji/roxi/internal/clientid"
)

// Entry pairs a connection with the mutex that serialises writes to it.
// The mutex is held only for the duration of one write, never across a
// read or another lock acquisition.
type Entry struct {
	Conn net.Conn
	mu   sync.Mutex
}

// Write serialises conn writes under the entry's mutex.
func (e *Entry) Write(b []byte) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.Conn.Write(b)
}

// Map is the ClientId → *Entry table.
type Map struct {
	mu      sync.RWMutex
	entries map[clientid.ClientId]*Entry
}

// New builds an empty Map.
func New() *Map {
	return &Map{entries: make(map[clientid.ClientId]*Entry)}
}

// Upsert inserts or replaces the entry for id. Replacing (rather than
// erroring) is what makes a repeated SeedRequest / PeerTunnelRequest
// from the same client idempotent: the map still has exactly one entry
// for that ClientId afterward.
func (m *Map) Upsert(id clientid.ClientId, conn net.Conn) *Entry {
	e := &Entry{Conn: conn}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[id] = e
	return e
}

// Get returns the entry for id, if any.
func (m *Map) Get(id clientid.ClientId) (*Entry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[id]
	return e, ok
}

// Has reports whether id has a registered socket.
func (m *Map) Has(id clientid.ClientId) bool {
	_, ok := m.Get(id)
	return ok
}

// Remove deletes id's entry, if any.
func (m *Map) Remove(id clientid.ClientId) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, id)
}

// Snapshot returns a copy of the current id/entry pairs, so that callers
// (e.g. graceful shutdown) can iterate and write without holding the
// map's lock across I/O.
func (m *Map) Snapshot() map[clientid.ClientId]*Entry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[clientid.ClientId]*Entry, len(m.entries))
	for k, v := range m.entries {
		out[k] = v
	}
	return out
}

// Clear empties the map.
func (m *Map) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = make(map[clientid.ClientId]*Entry)
}

// Len returns the number of registered sockets.
func (m *Map) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
