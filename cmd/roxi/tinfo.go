package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var tinfoAllowedIPs string

var tinfoCmd = &cobra.Command{
	Use:   "tinfo",
	Short: "Punch to a gateway and swap WireGuard peer info with it",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, _, err := dialPeer()
		if err != nil {
			return err
		}
		defer client.Stop()

		if err := client.Authenticate(); err != nil {
			return err
		}
		addr, err := client.RequestGateway()
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		peerConn, err := client.NATPunch(ctx, addr)
		if err != nil {
			return err
		}
		defer peerConn.Close()

		if err := client.RequestTunnelInfo(peerConn, tinfoAllowedIPs); err != nil {
			return err
		}
		fmt.Println("tunnel info exchanged")
		return nil
	},
}

func init() {
	tinfoCmd.Flags().StringVar(&tinfoAllowedIPs, "allowed-ips", "", "allowed-ips to announce to the gateway (CIDR)")
}
