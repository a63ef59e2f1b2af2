package engine

import (
	"github.com/htttp-net/htttp/internal/domain"
	"github.com/htttp-net/htttp/internal/metrics"
)

// applyDisconnect is the single path by which a peer leaves the
// register, whether observed via an explicit `disconnect` broadcast or
// inferred locally by the heartbeat reaper. It is idempotent: a peer
// already gone, or already reassigned to a newer clientID (a rejoin
// raced the disconnect), is left alone.
func (c *Core) applyDisconnect(playerID domain.PlayerID, clientID domain.ClientID, reason domain.DisconnectReason) {
	c.commit(func() []func() {
		if !c.register.IsConnected(playerID, clientID) {
			return nil
		}

		var cbs []func()
		switch c.gameState {
		case domain.Joining:
			c.register.Remove(playerID)
		case domain.Waiting, domain.Starting:
			c.register.Remove(playerID)
			if len(c.playerRolls) > 0 {
				metrics.RollRestarts.Inc()
			}
			c.clearRollsLocked()
			if c.gameState != domain.Waiting {
				cbs = append(cbs, c.setState(domain.Waiting))
			}
		case domain.Playing, domain.Paused:
			// playerNumbers is retained: the missing player's slot is still
			// reserved and is handed back unchanged on rejoin.
			c.register.MarkMissing(playerID)
			if c.gameState != domain.Paused {
				cbs = append(cbs, c.setState(domain.Paused))
				if c.handlers.OnGamePaused != nil {
					cbs = append(cbs, c.handlers.OnGamePaused)
				}
			}
		default:
			return nil
		}

		if c.handlers.OnPlayerDisconnected != nil {
			pid, r := playerID, reason
			cbs = append(cbs, func() { c.handlers.OnPlayerDisconnected(pid, r) })
		}
		return cbs
	})
}
