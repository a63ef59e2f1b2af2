package engine

import (
	"github.com/htttp-net/htttp/internal/domain"
	"github.com/htttp-net/htttp/internal/metrics"
)

// LockSeesaw claims the local seesaw lock for barcode and broadcasts the
// claim. Unlike start/stop/pause, which take effect only when their
// broadcast comes back through a handler, this mutates synchronously
// before publishing: the lock is purely local state with no remote
// counterpart to reconcile against, so there is nothing for a
// round-trip through the handler to arbitrate.
func (c *Core) LockSeesaw(barcode int) error {
	c.mu.Lock()
	if c.gameState != domain.Playing {
		c.mu.Unlock()
		return domain.ErrNotPlaying
	}
	if c.seesawLock == barcode && barcode != 0 {
		c.mu.Unlock()
		return nil // idempotent for the same barcode
	}
	if c.seesawLock != 0 {
		c.mu.Unlock()
		metrics.SeesawLockAttempts.WithLabelValues("already_held").Inc()
		return domain.ErrSeesawHeld
	}
	num, ok := c.playerNumbers[c.selfID]
	c.seesawLock = barcode
	c.mu.Unlock()
	if !ok {
		return domain.ErrNotPlaying
	}
	metrics.SeesawLockAttempts.WithLabelValues("locked").Inc()
	return c.publish(domain.TopicSeesawLock, domain.SeesawLockMessage{
		Envelope:     domain.Envelope{PlayerID: c.selfID},
		PlayerNumber: num,
		Barcode:      barcode,
	})
}

// UnlockSeesaw releases the local lock and broadcasts the release.
func (c *Core) UnlockSeesaw() error {
	c.mu.Lock()
	if c.seesawLock == 0 {
		c.mu.Unlock()
		return nil
	}
	barcode := c.seesawLock
	num := c.playerNumbers[c.selfID]
	c.seesawLock = 0
	c.mu.Unlock()
	return c.publish(domain.TopicSeesawUnlock, domain.SeesawLockMessage{
		Envelope:     domain.Envelope{PlayerID: c.selfID},
		PlayerNumber: num,
		Barcode:      barcode,
	})
}

// handleSeesawLock/handleSeesawUnlock are purely observational: the
// sender already applied its own local lock before publishing, so
// every other peer just relays the fact to its own handlers.
func (c *Core) handleSeesawLock(d domain.Delivery) {
	var msg domain.SeesawLockMessage
	if !c.decode(d, &msg) {
		return
	}
	if msg.PlayerID == c.selfID {
		return
	}
	if c.handlers.OnSeesawLocked != nil {
		m := msg
		c.dispatch.Dispatch(func() { c.handlers.OnSeesawLocked(m.PlayerNumber, m.Barcode) })
	}
}

func (c *Core) handleSeesawUnlock(d domain.Delivery) {
	var msg domain.SeesawLockMessage
	if !c.decode(d, &msg) {
		return
	}
	if msg.PlayerID == c.selfID {
		return
	}
	if c.handlers.OnSeesawUnlocked != nil {
		m := msg
		c.dispatch.Dispatch(func() { c.handlers.OnSeesawUnlocked(m.PlayerNumber, m.Barcode) })
	}
}
