package roxiconfig

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadServerConfigAppliesDefaults(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "server.yaml")
	doc := `
network:
  server:
    ip: 0.0.0.0
auth:
  shared_key: topsecret
`
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatalf("WriteFile() error: %v", err)
	}

	cfg, err := LoadServerConfig(path)
	if err != nil {
		t.Fatalf("LoadServerConfig() error: %v", err)
	}
	if cfg.Network.Server.Ports.TCP != DefaultServerTCPPort {
		t.Errorf("TCP port = %d, want default %d", cfg.Network.Server.Ports.TCP, DefaultServerTCPPort)
	}
	if cfg.Network.Server.MaxClients != DefaultServerMaxClients {
		t.Errorf("MaxClients = %d, want default %d", cfg.Network.Server.MaxClients, DefaultServerMaxClients)
	}
	if cfg.Auth.SessionTTL != DefaultSessionTTL {
		t.Errorf("SessionTTL = %v, want default %v", cfg.Auth.SessionTTL, DefaultSessionTTL)
	}
}

func TestLoadServerConfigRejectsMissingSharedKey(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "server.yaml")
	doc := "network:\n  server:\n    ip: 0.0.0.0\n"
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatalf("WriteFile() error: %v", err)
	}

	if _, err := LoadServerConfig(path); err == nil {
		t.Fatal("expected validation error for missing shared_key")
	}
}

func TestLoadClientConfigAppliesDefaults(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "client.yaml")
	doc := `
network:
  server:
    ip: 203.0.113.1
  gateway:
    ip: 203.0.113.2
  wireguard:
    config: /etc/wireguard/wg0.conf
auth:
  shared_key: topsecret
`
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatalf("WriteFile() error: %v", err)
	}

	cfg, err := LoadClientConfig(path)
	if err != nil {
		t.Fatalf("LoadClientConfig() error: %v", err)
	}
	if cfg.Network.Nat.Attempts != DefaultNatAttempts {
		t.Errorf("Nat.Attempts = %d, want default %d", cfg.Network.Nat.Attempts, DefaultNatAttempts)
	}
	if cfg.Network.Gateway.MaxClients != DefaultGatewayMaxClients {
		t.Errorf("Gateway.MaxClients = %d, want default %d", cfg.Network.Gateway.MaxClients, DefaultGatewayMaxClients)
	}
}

func TestLoadClientConfigRejectsMissingWireGuardPath(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "client.yaml")
	doc := `
network:
  server:
    ip: 203.0.113.1
  gateway:
    ip: 203.0.113.2
auth:
  shared_key: topsecret
`
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatalf("WriteFile() error: %v", err)
	}

	if _, err := LoadClientConfig(path); err == nil {
		t.Fatal("expected validation error for missing wireguard.config")
	}
}
