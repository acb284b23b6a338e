package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var tunnelAllowedIPs string

var tunnelCmd = &cobra.Command{
	Use:   "tunnel",
	Short: "Run the full join sequence and install the resulting WireGuard peer",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, _, err := dialPeer()
		if err != nil {
			return err
		}
		defer client.Stop()

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		if err := client.Tunnel(ctx, tunnelAllowedIPs); err != nil {
			return err
		}
		if err := client.FinalizeWireGuard(); err != nil {
			return err
		}
		fmt.Println("tunnel established")
		return nil
	},
}

func init() {
	tunnelCmd.Flags().StringVar(&tunnelAllowedIPs, "allowed-ips", "", "allowed-ips to announce to the gateway (CIDR)")
}
