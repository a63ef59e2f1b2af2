package cli

import (
	"fmt"
	"log"
	"time"

	"github.com/spf13/cobra"

	"github.com/htttp-net/htttp/internal/domain"
	"github.com/htttp-net/htttp/internal/engine"
	"github.com/htttp-net/htttp/internal/infra/codec"
	"github.com/htttp-net/htttp/internal/infra/transport"
)

func init() {
	rootCmd.AddCommand(demoCmd)
}

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Run a full four-player lobby in one process over a shared in-memory broker",
	Long: `demo drives domain.N simulated players through join, ready, roll,
start, team pairing, and a win, all in a single process sharing one
transport.Broker. play and spectate each construct their own broker per
process, since bridging real, separate processes together is left to
whatever transport an embedding application supplies. demo is the one
CLI surface that exercises the full protocol end to end without an
external broker.`,
	RunE: runDemo,
}

func runDemo(cmd *cobra.Command, args []string) error {
	const exchange = "demo"
	b := transport.NewBroker()

	rolled := make(chan struct{}, domain.N)
	started := make(chan struct{}, domain.N)
	teamed := make(chan struct{}, domain.N)
	won := make(chan struct{}, domain.N)

	cores := make([]*engine.Core, 0, domain.N)

	for i := 0; i < domain.N; i++ {
		playerID := domain.PlayerID(fmt.Sprintf("player-%d", i+1))

		core := engine.New(engine.Config{
			PlayerID:  playerID,
			Exchange:  exchange,
			Transport: b.Connect(exchange),
			Codec:     codec.New(),
			Handlers: domain.Handlers{
				OnJoined: func() { log.Printf("[demo] %s joined", playerID) },
				OnGameRolled: func(num, obj int) {
					log.Printf("[demo] %s rolled player number %d (object %d)", playerID, num, obj)
					rolled <- struct{}{}
				},
				OnGameStarted: func() {
					log.Printf("[demo] %s sees game started", playerID)
					started <- struct{}{}
				},
				OnTeamConnected: func(partnerID domain.PlayerID) {
					log.Printf("[demo] %s paired with teammate %s", playerID, partnerID)
					teamed <- struct{}{}
				},
				OnWin: func(teamNumber int) {
					log.Printf("[demo] %s observed team %d win", playerID, teamNumber)
					won <- struct{}{}
				},
			},
		})

		cores = append(cores, core)

		if err := core.Join(); err != nil {
			return fmt.Errorf("join %s: %w", playerID, err)
		}
	}

	if !waitAll(rolled, domain.N, 5*time.Second) {
		return fmt.Errorf("timed out waiting for all %d players to roll", domain.N)
	}

	for _, core := range cores {
		if err := core.SetReady(true); err != nil {
			return fmt.Errorf("set ready: %w", err)
		}
	}

	if err := cores[0].Start(); err != nil {
		return fmt.Errorf("start: %w", err)
	}
	if !waitAll(started, domain.N, 5*time.Second) {
		return fmt.Errorf("timed out waiting for all %d players to see start", domain.N)
	}

	teamOf := func(core *engine.Core) int {
		n, _ := core.PlayerNumber(core.PlayerID())
		if n == 1 || n == 2 {
			return 1
		}
		return 2
	}
	for _, core := range cores {
		if err := core.JoinTeam(teamOf(core)); err != nil {
			return fmt.Errorf("join team: %w", err)
		}
	}
	if !waitAll(teamed, domain.N, 5*time.Second) {
		return fmt.Errorf("timed out waiting for team pairing")
	}

	if err := cores[0].Win(); err != nil {
		return fmt.Errorf("win: %w", err)
	}
	waitAll(won, 1, 2*time.Second)

	for _, core := range cores {
		core.Close()
	}
	log.Println("[demo] complete")
	return nil
}

func waitAll(ch <-chan struct{}, n int, timeout time.Duration) bool {
	deadline := time.After(timeout)
	for i := 0; i < n; i++ {
		select {
		case <-ch:
		case <-deadline:
			return false
		}
	}
	return true
}
