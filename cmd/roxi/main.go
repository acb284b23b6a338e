// Command roxi is the Rendezvous/Gateway/peer-client driver described in
// spec §6: one binary, one subcommand per operation, a shared --config
// flag pointing at a YAML document (internal/roxiconfig) loaded lazily
// by whichever subcommand needs it. Grounded on bamgate/cmd/bamgate's
// root-command/PersistentPreRun/init() shape, not its interactive
// cmd_setup.go wizard (that pulls in charmbracelet/huh, which this
// repo's CLI has no use for). The PersistentPreRun's environment-driven
// logging setup (RUST_LOG/HUMAN_LOGGING) has no bamgate counterpart; it
// is grounded instead on
// original_source/packages/roxi-lib/src/util.rs's init_logging.
package main

import (
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

var (
	globalConfigPath string
	globalVerbose    bool
	globalLogger     *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "roxi",
	Short: "Peer-to-peer WireGuard rendezvous, gateway, and client driver",
	Long: `roxi runs the three roles described by the Roxi protocol: a
Rendezvous that introduces peers to each other, a Gateway that accepts
direct peer connections on a peer's behalf, and a client driver that
joins a mesh by authenticating, requesting a gateway, punching a NAT
hole, and swapping WireGuard keys.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := levelFromEnv()
		if globalVerbose {
			level = slog.LevelDebug
		}
		opts := &slog.HandlerOptions{Level: level}

		var handler slog.Handler
		if humanLoggingFromEnv() {
			handler = slog.NewTextHandler(os.Stderr, opts)
		} else {
			handler = slog.NewJSONHandler(os.Stderr, opts)
		}
		globalLogger = slog.New(handler)
	},
}

// levelFromEnv maps ROXI_LOG (this repo's RUST_LOG-style filter, per
// spec §6's "Environment") to an slog.Level, defaulting to Info exactly
// as util.rs's init_logging defaults RUST_LOG to "info".
func levelFromEnv() slog.Level {
	switch strings.ToLower(os.Getenv("ROXI_LOG")) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// humanLoggingFromEnv implements spec §6's HUMAN_LOGGING=true|false,
// defaulting to true (human-readable text) exactly as util.rs's
// init_logging defaults HUMAN_LOGGING to true when unset.
func humanLoggingFromEnv() bool {
	v, ok := os.LookupEnv("HUMAN_LOGGING")
	if !ok {
		return true
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return true
	}
	return b
}

func init() {
	rootCmd.PersistentFlags().StringVar(&globalConfigPath, "config", "", "path to config file")
	rootCmd.PersistentFlags().BoolVarP(&globalVerbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(helloCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(gatewayCmd)
	rootCmd.AddCommand(connectCmd)
	rootCmd.AddCommand(pingCmd)
	rootCmd.AddCommand(authCmd)
	rootCmd.AddCommand(stunCmd)
	rootCmd.AddCommand(stinfoCmd)
	rootCmd.AddCommand(tinfoCmd)
	rootCmd.AddCommand(regatewayCmd)
	rootCmd.AddCommand(seedCmd)
	rootCmd.AddCommand(punchCmd)
	rootCmd.AddCommand(tunnelCmd)
	rootCmd.AddCommand(quickCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
