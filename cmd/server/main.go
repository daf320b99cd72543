// Command claude-code-remoted is the daemon: it spawns a target CLI in
// browser-driven PTY sessions and runs it headlessly on a cron-like
// schedule, all behind a single shared bearer token.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := buildRoot()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func buildRoot() *cobra.Command {
	globalFlags := &globalFlags{}
	serveFlags := &serveFlags{}

	root := &cobra.Command{
		Use:   "claude-code-remoted",
		Short: "Browser-driven remote control for a local CLI agent",
		Long: `claude-code-remoted runs a target CLI agent (default: claude) inside
browser-attached terminal sessions, and separately on a cron-like
schedule in headless mode, all reachable over one authenticated
connection.

Examples:
  claude-code-remoted serve
  claude-code-remoted serve --port=8080 --dev
  claude-code-remoted serve --binary=claude --config=/etc/claude-code-remote.toml`,
	}
	root.PersistentFlags().StringVar(&globalFlags.binaryName, "binary", "claude", "target CLI binary name")
	root.PersistentFlags().StringVar(&globalFlags.configFile, "config", "", "path to optional TOML config file")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(globalFlags, serveFlags, cmd.Flags())
		},
	}
	serveCmd.Flags().IntVar(&serveFlags.port, "port", 0, "listen port (overrides config/env/default)")
	serveCmd.Flags().BoolVar(&serveFlags.dev, "dev", false, "enable dev mode (debug-level logging)")
	serveCmd.Flags().StringVar(&serveFlags.publicURL, "public-url", "", "public URL to print in the startup banner, e.g. behind a tunnel")

	root.AddCommand(serveCmd)
	return root
}

type globalFlags struct {
	binaryName string
	configFile string
}

type serveFlags struct {
	port      int
	dev       bool
	publicURL string
}

func newLogLevel(dev bool) slog.Level {
	if dev {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}
