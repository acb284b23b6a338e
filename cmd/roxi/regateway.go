package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var regatewayCmd = &cobra.Command{
	Use:   "regateway",
	Short: "Authenticate and request a gateway candidate from the Rendezvous",
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
		fmt.Printf("%s:%d\n", addr.IPString(), addr.Port)
		return nil
	},
}
