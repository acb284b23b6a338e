package roxiconfig

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ServerNetwork is the Rendezvous's own network section.
type ServerNetwork struct {
	Server ServerListenConfig `yaml:"server"`
}

// ServerListenConfig is the Rendezvous's bind configuration.
type ServerListenConfig struct {
	Interface       string `yaml:"interface"`
	IP              string `yaml:"ip"`
	Ports           Ports  `yaml:"ports"`
	MaxClients      int    `yaml:"max_clients"`
	ResponseTimeout int    `yaml:"response_timeout"` // seconds
}

const DefaultServerMaxClients = 1024

func (s *ServerListenConfig) ApplyDefaults() {
	s.Ports.applyDefaults(DefaultServerTCPPort, DefaultServerUDPPort)
	if s.MaxClients == 0 {
		s.MaxClients = DefaultServerMaxClients
	}
	if s.ResponseTimeout == 0 {
		s.ResponseTimeout = DefaultResponseTimeout
	}
}

func (s ServerListenConfig) Validate() error {
	if s.IP == "" {
		return fmt.Errorf("roxiconfig: network.server.ip must not be empty")
	}
	if err := s.Ports.validate(); err != nil {
		return err
	}
	if s.MaxClients <= 0 {
		return fmt.Errorf("roxiconfig: network.server.max_clients must be positive")
	}
	if s.ResponseTimeout <= 0 {
		return fmt.Errorf("roxiconfig: network.server.response_timeout must be positive")
	}
	return nil
}

// ServerConfig is the Rendezvous server's top-level configuration
// document (spec §6 "Server:").
type ServerConfig struct {
	Network ServerNetwork `yaml:"network"`
	Auth    Auth          `yaml:"auth"`
	Path    string        `yaml:"path"`
}

func (c *ServerConfig) ApplyDefaults() {
	c.Network.Server.ApplyDefaults()
	c.Auth.ApplyDefaults()
}

func (c ServerConfig) Validate() error {
	if err := c.Network.Server.Validate(); err != nil {
		return err
	}
	return c.Auth.Validate()
}

// LoadServerConfig reads, defaults, and validates a ServerConfig from
// path.
func LoadServerConfig(path string) (*ServerConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("roxiconfig: read %s: %w", path, err)
	}
	var cfg ServerConfig
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
