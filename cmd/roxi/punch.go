package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var punchCmd = &cobra.Command{
	Use:   "punch",
	Short: "Authenticate, request a gateway, and punch a NAT hole to it",
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

		fmt.Printf("nat punch to %s:%d succeeded\n", addr.IPString(), addr.Port)
		return nil
	},
}
