package engine

import (
	"sort"

	"github.com/htttp-net/htttp/internal/domain"
	"github.com/htttp-net/htttp/internal/metrics"
)

// tryRollLocked advances the roll phase. Caller must hold c.mu. If the lobby is
// full and this peer hasn't drawn yet, it draws and publishes its roll.
// Once every confirmed player's roll has arrived, it computes the
// deterministic player-number assignment and transitions to STARTING.
func (c *Core) tryRollLocked() []func() {
	if c.gameState != domain.Waiting {
		return nil
	}
	if c.register.ConfirmedCount() != domain.N {
		return nil
	}

	if c.myRoll == nil {
		v := c.roll()
		c.myRoll = &v
		c.playerRolls[c.selfID] = v
		if body, err := c.codec.Encode(domain.RollMessage{
			Envelope: domain.Envelope{PlayerID: c.selfID},
			Roll:     v,
		}); err == nil {
			_ = c.transport.Publish(c.exchange, domain.TopicRoll, body, domain.Properties{})
		}
	}

	if len(c.playerRolls) < domain.N {
		return nil
	}

	numbers := assignPlayerNumbers(c.playerRolls)
	c.playerNumbers = numbers
	metrics.RollCompletions.Inc()

	cb := c.setState(domain.Starting)
	var cbs []func()
	if cb != nil {
		cbs = append(cbs, cb)
	}
	if myNum, ok := numbers[c.selfID]; ok && c.handlers.OnGameRolled != nil {
		n := myNum
		cbs = append(cbs, func() { c.handlers.OnGameRolled(n, n-1) })
	}
	return cbs
}

// assignPlayerNumbers sorts (playerID, roll) pairs ascending by roll,
// breaking ties by playerID lexicographic order so every peer computes
// the same assignment from the same inputs.
func assignPlayerNumbers(rolls map[domain.PlayerID]int32) map[domain.PlayerID]int {
	type entry struct {
		id   domain.PlayerID
		roll int32
	}
	entries := make([]entry, 0, len(rolls))
	for id, r := range rolls {
		entries = append(entries, entry{id, r})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].roll != entries[j].roll {
			return entries[i].roll < entries[j].roll
		}
		return entries[i].id < entries[j].id
	})
	numbers := make(map[domain.PlayerID]int, len(entries))
	for k, e := range entries {
		numbers[e.id] = k + 1
	}
	return numbers
}

// clearRollsLocked discards the in-progress roll (membership dropped
// below N, or a fresh round is starting). Caller must hold c.mu.
func (c *Core) clearRollsLocked() {
	c.playerNumbers = make(map[domain.PlayerID]int)
	c.playerRolls = make(map[domain.PlayerID]int32)
	c.myRoll = nil
}

func (c *Core) handleRoll(d domain.Delivery) {
	var msg domain.RollMessage
	if !c.decode(d, &msg) {
		return
	}
	c.commit(func() []func() {
		if c.gameState != domain.Waiting {
			return nil
		}
		if _, exists := c.playerRolls[msg.PlayerID]; exists {
			return nil
		}
		c.playerRolls[msg.PlayerID] = msg.Roll
		return c.tryRollLocked()
	})
}
