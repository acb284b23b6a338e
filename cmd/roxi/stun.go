package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var stunCmd = &cobra.Command{
	Use:   "stun",
	Short: "Emit a STUN binding request to the Rendezvous",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, _, err := dialPeer()
		if err != nil {
			return err
		}
		defer client.Stop()
		if err := client.EmitStunBinding(); err != nil {
			return err
		}
		fmt.Println("stun binding sent")
		return nil
	},
}
