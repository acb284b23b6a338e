package roxiconfig

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ClientNetwork is the client's full network section, matching
// original_source/packages/roxi-client/src/config.rs's Network struct
// field-for-field.
type ClientNetwork struct {
	Server    ServerEndpoint  `yaml:"server"`
	Gateway   GatewayEndpoint `yaml:"gateway"`
	Stun      Stun            `yaml:"stun"`
	WireGuard WireGuard       `yaml:"wireguard"`
	Nat       Nat             `yaml:"nat"`
}

func (n *ClientNetwork) ApplyDefaults() {
	n.Server.ApplyDefaults()
	n.Gateway.ApplyDefaults()
	n.Nat.ApplyDefaults()
}

func (n ClientNetwork) Validate() error {
	if err := n.Server.Validate(); err != nil {
		return err
	}
	if err := n.Gateway.Validate(); err != nil {
		return err
	}
	if err := n.WireGuard.Validate(); err != nil {
		return err
	}
	return n.Nat.Validate()
}

// ClientConfig is the peer client's top-level configuration document
// (spec §6 "Client:").
type ClientConfig struct {
	Network ClientNetwork `yaml:"network"`
	Auth    Auth          `yaml:"auth"`
	Path    string        `yaml:"path"`
}

func (c *ClientConfig) ApplyDefaults() {
	c.Network.ApplyDefaults()
	// The client shares the server's Auth struct, so it also gets a
	// session_ttl field and default; nothing on the client side reads
	// that value (it is a server-only concept), so the defaulting is
	// harmless.
	c.Auth.ApplyDefaults()
}

func (c ClientConfig) Validate() error {
	if err := c.Network.Validate(); err != nil {
		return err
	}
	if c.Auth.SharedKey == "" {
		return fmt.Errorf("roxiconfig: auth.shared_key must not be empty")
	}
	return nil
}

// LoadClientConfig reads, defaults, and validates a ClientConfig from
// path.
func LoadClientConfig(path string) (*ClientConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("roxiconfig: read %s: %w", path, err)
	}
	var cfg ClientConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("roxiconfig: parse %s: %w", path, err)
	}
	cfg.Path = path
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save writes cfg back to its Path as YAML.
func (c ClientConfig) Save() error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("roxiconfig: marshal: %w", err)
	}
	if err := os.WriteFile(c.Path, data, 0o600); err != nil {
		return fmt.Errorf("roxiconfig: write %s: %w", c.Path, err)
	}
	return nil
}
