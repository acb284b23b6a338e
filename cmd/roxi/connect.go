package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var connectCmd = &cobra.Command{
	Use:   "connect",
	Short: "Authenticate and emit a STUN binding, mirroring client.rs's connect()",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, _, err := dialPeer()
		if err != nil {
			return err
		}
		defer client.Stop()
		if err := client.Connect(); err != nil {
			return err
		}
		fmt.Println("connected")
		return nil
	},
}
