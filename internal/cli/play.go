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
	playPlayerID string
	playExchange string
	playAPIHost  string
	playAPIPort  int
)

func init() {
	rootCmd.AddCommand(playCmd)
	playCmd.Flags().StringVar(&playPlayerID, "player", "", "player ID to join as (required)")
	playCmd.Flags().StringVar(&playExchange, "game", "default", "game exchange name")
	playCmd.Flags().StringVar(&playAPIHost, "api-host", "127.0.0.1", "debug HTTP server host")
	playCmd.Flags().IntVar(&playAPIPort, "api-port", 8780, "debug HTTP server port (0 disables it)")
}

var playCmd = &cobra.Command{
	Use:   "play",
	Short: "Join a game as a player and block until interrupted",
	RunE:  runPlay,
}

func runPlay(cmd *cobra.Command, args []string) error {
	if playPlayerID == "" {
		return fmt.Errorf("--player is required")
	}

	cfg := daemon.DefaultConfig()
	cfg.Player.PlayerID = playPlayerID
	cfg.Player.Exchange = playExchange
	cfg.API.Host = playAPIHost
	cfg.API.Port = playAPIPort

	b := transport.NewBroker()
	handlers := domain.Handlers{
		OnJoined:       func() { log.Printf("[play] joined %s", playExchange) },
		OnJoinFailed:   func(err error) { log.Printf("[play] join failed: %v", err) },
		OnStateChanged: func(s domain.GameState) { log.Printf("[play] state -> %s", s) },
		OnGameRolled:   func(num, obj int) { log.Printf("[play] rolled: player=%d object=%d", num, obj) },
	}

	d := daemon.New(cfg, b.Connect(playExchange), handlers)
	if err := d.Start(); err != nil {
		return fmt.Errorf("start: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	d.Stop(stopCtx)
	return nil
}
