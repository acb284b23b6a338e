package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var stinfoCmd = &cobra.Command{
	Use:   "stinfo",
	Short: "Fetch this peer's cached STUN-observed endpoint from the Rendezvous",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, _, err := dialPeer()
		if err != nil {
			return err
		}
		defer client.Stop()
		addr, err := client.RequestStunInfo()
		if err != nil {
			return err
		}
		fmt.Printf("%s:%d\n", addr.IPString(), addr.Port)
		return nil
	},
}
