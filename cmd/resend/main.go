// Command resend runs the WebSocket relay.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "resend",
		Short: "Real-time WebSocket message relay",
		Long: `resend accepts WebSocket connections and relays {route, data} envelopes.

Each envelope is passed through the handler registered for its route, or
forwarded unchanged when there is none, and the result is broadcast to every
connected client.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		serveCmd(),
		checkConfigCmd(),
		versionCmd(),
	)

	return rootCmd
}
