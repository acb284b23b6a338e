package main

import (
	"fmt"

	"github.com/kuuji/roxi/internal/peerclient"
	"github.com/kuuji/roxi/internal/roxiconfig"
	"github.com/kuuji/roxi/internal/wgconf"
)

// requireConfigPath returns the shared --config flag value or an error,
// since every subcommand below needs a config document to act on.
func requireConfigPath() (string, error) {
	if globalConfigPath == "" {
		return "", fmt.Errorf("roxi: --config is required")
	}
	return globalConfigPath, nil
}

// dialPeer loads the client config and its WireGuard interface named in
// it, then opens the control connection. Every peer-facing subcommand
// (ping, auth, stun, regateway, seed, punch, tinfo, connect, tunnel)
// shares this same setup.
func dialPeer() (*peerclient.Client, *roxiconfig.ClientConfig, error) {
	path, err := requireConfigPath()
	if err != nil {
		return nil, nil, err
	}
	cfg, err := roxiconfig.LoadClientConfig(path)
	if err != nil {
		return nil, nil, fmt.Errorf("roxi: loading config: %w", err)
	}
	wgCfg, err := wgconf.Load(cfg.Network.WireGuard.ConfigPath)
	if err != nil {
		return nil, nil, fmt.Errorf("roxi: loading wireguard config: %w", err)
	}
	client, err := peerclient.Dial(cfg, wgCfg, globalLogger)
	if err != nil {
		return nil, nil, fmt.Errorf("roxi: dialing rendezvous: %w", err)
	}
	return client, cfg, nil
}
