package main

import (
	"bytes"
	"fmt"
	"os/exec"

	"github.com/spf13/cobra"
)

// quickBash and quickConfigPath back the per-subcommand --bash/--config
// flags on quick up/down. They are distinct from the root --config flag:
// this one names a wg0.conf path directly, not a roxi YAML document, per
// spec §6's "quick {up|down} --config P --bash PATH".
var (
	quickBash       string
	quickConfigPath string
)

var quickCmd = &cobra.Command{
	Use:   "quick",
	Short: "Control WireGuard directly via wg-quick",
}

var quickUpCmd = &cobra.Command{
	Use:   "up",
	Short: "wg-quick up the given config",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWgQuick("up")
	},
}

var quickDownCmd = &cobra.Command{
	Use:   "down",
	Short: "wg-quick down the given config",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWgQuick("down")
	},
}

// runWgQuick shells to bash -c "wg-quick <action> <config>", matching
// original_source/packages/roxi-cli/src/command/wg_quick.rs exactly,
// rather than going through internal/wgtool's fixed "wg-quick" binary
// invocation: this subcommand exists precisely to let an operator pick
// a non-default bash.
func runWgQuick(action string) error {
	if quickConfigPath == "" {
		return fmt.Errorf("roxi: --config is required")
	}
	script := fmt.Sprintf("wg-quick %s %s", action, quickConfigPath)
	cmd := exec.Command(quickBash, "-c", script)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return fmt.Errorf("roxi: wg-quick %s: %w: %s", action, err, stderr.String())
	}
	fmt.Print(string(out))
	return nil
}

func init() {
	for _, c := range []*cobra.Command{quickUpCmd, quickDownCmd} {
		c.Flags().StringVar(&quickConfigPath, "config", "", "path to the WireGuard config file")
		c.Flags().StringVar(&quickBash, "bash", "/bin/bash", "path to bash executable")
	}
	quickCmd.AddCommand(quickUpCmd)
	quickCmd.AddCommand(quickDownCmd)
}
