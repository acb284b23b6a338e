package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Opt this peer in as a gateway candidate",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, _, err := dialPeer()
		if err != nil {
			return err
		}
		defer client.Stop()
		if err := client.Authenticate(); err != nil {
			return err
		}
		if err := client.Seed(); err != nil {
			return err
		}
		fmt.Println("seeded")
		return nil
	},
}
