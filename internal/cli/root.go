// Package cli implements the htttp command-line entrypoint: joining a
// game as a player or spectator, and a local demo that drives a full
// lobby through one in-process exchange.
package cli

import (
	"time"

	"github.com/spf13/cobra"
)

// shutdownTimeout bounds how long play/spectate wait for Daemon.Stop to
// leave the game and shut down the debug HTTP server on interrupt.
const shutdownTimeout = 5 * time.Second

var rootCmd = &cobra.Command{
	Use:   "htttp",
	Short: "HTTTP peer-to-peer maze game coordination protocol",
	Long: `htttp runs one peer of the HTTTP protocol: discovery, membership,
player-number assignment, lifecycle, heartbeat failure detection, seesaw
locking, and team channels for a four-robot maze game.

The transport binding is pluggable: this CLI wires the in-memory
reference transport, suitable for local development and the bundled
demo. An embedding application supplies its own domain.Transport to
bridge a real message broker across processes.`,
}

// Execute runs the root command. Called from cmd/htttp/main.go.
func Execute() error {
	return rootCmd.Execute()
}
