package wgconf

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Interface is the WireGuard interface ("[Interface]") section.
type Interface struct {
	PrivateKey Key    `toml:"PrivateKey"`
	Address    string `toml:"Address"`
	ListenPort int    `toml:"ListenPort"`
	Dns        string `toml:"Dns,omitempty"`
}

// Peer is a single WireGuard peer ("[[Peer]]") entry.
type Peer struct {
	PublicKey           Key    `toml:"PublicKey"`
	AllowedIPs          string `toml:"AllowedIPs"`
	Endpoint            string `toml:"Endpoint,omitempty"`
	PersistentKeepalive int    `toml:"PersistentKeepalive,omitempty"`
}

// Config is the full in-memory representation of a WireGuard
// configuration document: one Interface table and zero or more Peer
// tables.
type Config struct {
	path      string
	Interface Interface `toml:"Interface"`
	Peers     []Peer    `toml:"Peer"`
}

// Load reads and parses a WireGuard configuration file.
func Load(path string) (*Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, fmt.Errorf("wgconf: loading %s: %w", path, err)
	}
	cfg.path = path
	return &cfg, nil
}

// AddPeer appends peer to the in-memory interface. It does not save;
// call Save to persist.
func (c *Config) AddPeer(peer Peer) {
	c.Peers = append(c.Peers, peer)
}

// Save serialises c and atomically replaces the file at its loaded
// path (or at path, if given). The write goes to a temp file in the
// same directory followed by a rename, so a concurrent reader never
// observes a partially-written document.
func (c *Config) Save(path string) error {
	if path == "" {
		path = c.path
	}
	if path == "" {
		return fmt.Errorf("wgconf: Save: no path set")
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".wgconf-*.tmp")
	if err != nil {
		return fmt.Errorf("wgconf: creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once renamed

	enc := toml.NewEncoder(tmp)
	if err := enc.Encode(c); err != nil {
		tmp.Close()
		return fmt.Errorf("wgconf: encoding config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("wgconf: closing temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("wgconf: replacing %s: %w", path, err)
	}
	c.path = path
	return nil
}
