package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Authenticate against the Rendezvous",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, _, err := dialPeer()
		if err != nil {
			return err
		}
		defer client.Stop()
		if err := client.Authenticate(); err != nil {
			return err
		}
		fmt.Println("authenticated")
		return nil
	},
}
