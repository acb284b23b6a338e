package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kuuji/roxi/internal/gateway"
	"github.com/kuuji/roxi/internal/roxiconfig"
	"github.com/kuuji/roxi/internal/wgconf"
)

var gatewayCmd = &cobra.Command{
	Use:   "gateway",
	Short: "Run the Gateway acceptor",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := requireConfigPath()
		if err != nil {
			return err
		}
		cfg, err := roxiconfig.LoadClientConfig(path)
		if err != nil {
			return fmt.Errorf("roxi: loading config: %w", err)
		}
		wgCfg, err := wgconf.Load(cfg.Network.WireGuard.ConfigPath)
		if err != nil {
			return fmt.Errorf("roxi: loading wireguard config: %w", err)
		}

		ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
		defer cancel()

		s := gateway.New(cfg, wgCfg, globalLogger)
		return s.Run(ctx)
	},
}
