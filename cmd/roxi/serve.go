package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kuuji/roxi/internal/rendezvous"
	"github.com/kuuji/roxi/internal/roxiconfig"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the Rendezvous server",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := requireConfigPath()
		if err != nil {
			return err
		}
		cfg, err := roxiconfig.LoadServerConfig(path)
		if err != nil {
			return fmt.Errorf("roxi: loading config: %w", err)
		}

		ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
		defer cancel()

		s := rendezvous.New(cfg, globalLogger)
		return s.Run(ctx)
	},
}
