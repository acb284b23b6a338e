// Package stun implements the narrow STUN reflector described in spec
// §4.4: recognise a Binding-Request by its first two bytes and record
// the sender's observed public endpoint. It intentionally does not
// implement the rest of RFC 5389 (attributes, MESSAGE-INTEGRITY,
// FINGERPRINT) or any of RFC 5766 (TURN) — see DESIGN.md for why that
// machinery, present elsewhere in this codebase's lineage, has no home
// here.
package stun

import (
	"encoding/binary"
	"log/slog"
	"net"
	"sync"

	"github.com/kuuji/roxi/internal/clientid"
	"github.com/kuuji/roxi/internal/rerr"
)

// BindingRequestType is the 16-bit STUN message type for a Binding
// Request (method 0x001, class "request" 0x00): RFC 5389 §6.
const BindingRequestType = 0x0001

// MinDatagramSize is the shortest Binding-Request this reflector
// recognises: a bare 2-byte type field is enough to classify it, but
// datagrams shorter than that can't even carry a type.
const MinDatagramSize = 2

// MaxDatagramSize bounds a single UDP read.
const MaxDatagramSize = 1024

// InfoKind distinguishes a StunInfo's provenance. Only Public is ever
// produced by Listen; Private is reserved for a future loopback-address
// detection path.
type InfoKind int

const (
	KindPublic InfoKind = iota
	KindPrivate
)

// Info is one client's most recently observed STUN endpoint.
type Info struct {
	Kind InfoKind
	IP   net.IP
	Port uint16
}

// Cache is the STUN reflector's last-write-wins store, keyed by
// ClientId. At most one entry exists per ClientId.
type Cache struct {
	mu    sync.RWMutex
	infos map[clientid.ClientId]Info
}

// NewCache builds an empty STUN cache.
func NewCache() *Cache {
	return &Cache{infos: make(map[clientid.ClientId]Info)}
}

// Clear empties the cache, for use during server shutdown.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.infos = make(map[clientid.ClientId]Info)
}

// Get returns the cached Info for id, if any.
func (c *Cache) Get(id clientid.ClientId) (Info, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	info, ok := c.infos[id]
	return info, ok
}

func (c *Cache) set(id clientid.ClientId, info Info) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.infos[id] = info
}

// Listen runs the UDP reflector loop on conn until stop is closed. Every
// datagram whose first two bytes equal BindingRequestType updates cache
// under the sender's ClientId; everything else is logged and dropped.
func Listen(conn *net.UDPConn, cache *Cache, log *slog.Logger, stop <-chan struct{}) error {
	if log == nil {
		log = slog.Default()
	}
	go func() {
		<-stop
		conn.Close()
	}()

	buf := make([]byte, MaxDatagramSize)
	for {
		n, addr, err := conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-stop:
				return nil
			default:
				return err
			}
		}
		handleDatagram(buf[:n], addr, cache, log)
	}
}

func handleDatagram(data []byte, addr *net.UDPAddr, cache *Cache, log *slog.Logger) {
	if len(data) < MinDatagramSize {
		log.Warn("stun: datagram too short to classify", "from", addr, "len", len(data))
		return
	}

	v4 := addr.IP.To4()
	if v4 == nil {
		log.Warn("stun: rejecting non-IPv4 sender", "from", addr, "error", rerr.ErrUnsupportedIPAddrType)
		return
	}

	msgType := binary.BigEndian.Uint16(data[0:2])
	if msgType != BindingRequestType {
		log.Warn("stun: ignoring non-Binding-Request datagram", "from", addr, "type", msgType)
		return
	}

	id := clientid.FromIP(addr.IP)
	cache.set(id, Info{
		Kind: KindPublic,
		IP:   v4,
		Port: uint16(addr.Port),
	})
}
