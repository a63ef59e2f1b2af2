package cli

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/htttp-net/htttp/internal/daemon"
	"github.com/htttp-net/htttp/internal/domain"
	"github.com/htttp-net/htttp/internal/infra/transport"
)

var (
	spectateExchange string
	spectateAPIHost  string
	spectateAPIPort  int
)

func init() {
	rootCmd.AddCommand(spectateCmd)
	spectateCmd.Flags().StringVar(&spectateExchange, "game", "default", "game exchange name")
	spectateCmd.Flags().StringVar(&spectateAPIHost, "api-host", "127.0.0.1", "debug HTTP server host")
	spectateCmd.Flags().IntVar(&spectateAPIPort, "api-port", 8781, "debug HTTP server port (0 disables it)")
}

var spectateCmd = &cobra.Command{
	Use:   "spectate",
	Short: "Observe a game read-only and block until interrupted",
	RunE:  runSpectate,
}

func runSpectate(cmd *cobra.Command, args []string) error {
	cfg := daemon.DefaultConfig()
	cfg.Player.Exchange = spectateExchange
	cfg.Player.Spectate = true
	cfg.API.Host = spectateAPIHost
	cfg.API.Port = spectateAPIPort

	b := transport.NewBroker()
	d := daemon.New(cfg, b.Connect(spectateExchange), domain.Handlers{})
	if err := d.Start(); err != nil {
		return fmt.Errorf("start: %w", err)
	}
	log.Printf("[spectate] observing %s", spectateExchange)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	d.Stop(stopCtx)
	return nil
}
