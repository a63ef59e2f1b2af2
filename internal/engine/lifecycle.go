package engine

import (
	"github.com/htttp-net/htttp/internal/domain"
)

// Leave tears down the local peer's membership, best-effort publishing
// a LEAVE disconnect before releasing bindings. Legal from any
// connected state.
func (c *Core) Leave() error {
	c.mu.Lock()
	if c.gameState == domain.Disconnected {
		c.mu.Unlock()
		return domain.ErrNotJoined
	}
	c.mu.Unlock()

	_ = c.publish(domain.TopicDisconnect, domain.DisconnectMessage{
		Envelope: domain.Envelope{PlayerID: c.selfID, ClientID: c.clientID},
		Reason:   domain.ReasonLeave,
	})

	c.stopBackground()
	c.commit(func() []func() {
		c.register.Reset()
		c.clearRollsLocked()
		c.seesawLock = 0
		c.hasPartner = false
		cb := c.setState(domain.Disconnected)
		if cb != nil {
			return []func(){cb}
		}
		return nil
	})
	return nil
}

// SetReady toggles local readiness. Legal while joined (any state but
// DISCONNECTED/JOINING). Repeated calls with the same value are a no-op.
func (c *Core) SetReady(ready bool) error {
	if !c.IsJoined() {
		return domain.ErrNotJoined
	}
	p, ok := c.register.Confirmed(c.selfID)
	if !ok {
		return domain.ErrNotJoined
	}
	if p.IsReady == ready {
		return nil
	}
	c.register.SetReady(c.selfID, ready)
	return c.publish(domain.TopicReady, domain.ReadyMessage{
		Envelope: domain.Envelope{PlayerID: c.selfID},
		IsReady:  ready,
	})
}

func (c *Core) handleReady(d domain.Delivery) {
	var msg domain.ReadyMessage
	if !c.decode(d, &msg) {
		return
	}
	if msg.PlayerID == c.selfID {
		return
	}
	c.register.SetReady(msg.PlayerID, msg.IsReady)
}

// canStart reports whether the party allows a transition to PLAYING:
// full confirmed party, everyone ready, nobody missing. The STARTING or
// PAUSED state requirement is checked by its callers.
func (c *Core) canStart() bool {
	return c.register.ConfirmedCount() == domain.N && c.register.MissingCount() == 0 && c.register.AllReady()
}

// Start publishes `start`, moving STARTING/PAUSED to PLAYING once the
// broadcast round-trips back through handleStart.
func (c *Core) Start() error {
	c.mu.Lock()
	eligible := (c.gameState == domain.Starting || c.gameState == domain.Paused)
	c.mu.Unlock()
	if !eligible || !c.canStart() {
		return domain.ErrCannotStart
	}
	return c.publish(domain.TopicStart, domain.Envelope{PlayerID: c.selfID})
}

func (c *Core) handleStart(d domain.Delivery) {
	var msg domain.Envelope
	if !c.decode(d, &msg) {
		return
	}
	c.commit(func() []func() {
		if c.gameState != domain.Starting && c.gameState != domain.Paused {
			return nil
		}
		if !c.canStart() {
			return nil
		}
		cb := c.setState(domain.Playing)
		var cbs []func()
		if cb != nil {
			cbs = append(cbs, cb)
		}
		if c.handlers.OnGameStarted != nil {
			cbs = append(cbs, c.handlers.OnGameStarted)
		}
		return cbs
	})
}

// Stop publishes `stop`, returning PLAYING/PAUSED to WAITING. Legal
// while joined and not already WAITING.
func (c *Core) Stop() error {
	c.mu.Lock()
	joined := c.gameState != domain.Disconnected && c.gameState != domain.Joining
	waiting := c.gameState == domain.Waiting
	c.mu.Unlock()
	if !joined || waiting {
		return domain.ErrCannotStop
	}
	return c.publish(domain.TopicStop, domain.Envelope{PlayerID: c.selfID})
}

func (c *Core) handleStop(d domain.Delivery) {
	var msg domain.Envelope
	if !c.decode(d, &msg) {
		return
	}
	c.commit(func() []func() {
		if c.gameState == domain.Disconnected || c.gameState == domain.Joining || c.gameState == domain.Waiting {
			return nil
		}
		c.clearRollsLocked()
		cb := c.setState(domain.Waiting)
		var cbs []func()
		if cb != nil {
			cbs = append(cbs, cb)
		}
		if c.handlers.OnGameStopped != nil {
			cbs = append(cbs, c.handlers.OnGameStopped)
		}
		cbs = append(cbs, c.tryRollLocked()...)
		return cbs
	})
}

// Pause publishes `pause` then clears local readiness, legal only in
// PLAYING.
func (c *Core) Pause() error {
	c.mu.Lock()
	playing := c.gameState == domain.Playing
	c.mu.Unlock()
	if !playing {
		return domain.ErrNotPlaying
	}
	if err := c.publish(domain.TopicPause, domain.Envelope{PlayerID: c.selfID}); err != nil {
		return err
	}
	return c.SetReady(false)
}

func (c *Core) handlePause(d domain.Delivery) {
	var msg domain.Envelope
	if !c.decode(d, &msg) {
		return
	}
	c.commit(func() []func() {
		if c.gameState != domain.Playing {
			return nil
		}
		cb := c.setState(domain.Paused)
		var cbs []func()
		if cb != nil {
			cbs = append(cbs, cb)
		}
		if c.handlers.OnGamePaused != nil {
			cbs = append(cbs, c.handlers.OnGamePaused)
		}
		return cbs
	})
}

// FoundObject persists the local object-found flag and broadcasts it.
// Legal only in PLAYING, and only once.
func (c *Core) FoundObject() error {
	c.mu.Lock()
	playing := c.gameState == domain.Playing
	c.mu.Unlock()
	if !playing {
		return domain.ErrNotPlaying
	}
	p, ok := c.register.Confirmed(c.selfID)
	if !ok {
		return domain.ErrNotJoined
	}
	if p.HasFoundObject {
		return domain.ErrAlreadyFound
	}
	num, ok := c.PlayerNumber(c.selfID)
	if !ok {
		return domain.ErrNotPlaying
	}
	c.register.SetFoundObject(c.selfID)
	if c.handlers.OnPlayerFoundObject != nil {
		pid := c.selfID
		c.dispatch.Dispatch(func() { c.handlers.OnPlayerFoundObject(pid) })
	}
	return c.publish(domain.TopicFound, domain.FoundMessage{
		Envelope:     domain.Envelope{PlayerID: c.selfID},
		PlayerNumber: num,
	})
}

func (c *Core) handleFound(d domain.Delivery) {
	var msg domain.FoundMessage
	if !c.decode(d, &msg) {
		return
	}
	p, ok := c.register.Confirmed(msg.PlayerID)
	if !ok || p.HasFoundObject {
		return
	}
	c.register.SetFoundObject(msg.PlayerID)
	if c.handlers.OnPlayerFoundObject != nil {
		pid := msg.PlayerID
		c.dispatch.Dispatch(func() { c.handlers.OnPlayerFoundObject(pid) })
	}
}

// UpdatePosition broadcasts the local robot's pose. Legal only in PLAYING.
func (c *Core) UpdatePosition(x, y, angle float64) error {
	c.mu.Lock()
	playing := c.gameState == domain.Playing
	c.mu.Unlock()
	if !playing {
		return domain.ErrNotPlaying
	}
	num, ok := c.PlayerNumber(c.selfID)
	if !ok {
		return domain.ErrNotPlaying
	}
	p, _ := c.register.Confirmed(c.selfID)
	found := p != nil && p.HasFoundObject
	return c.publish(domain.TopicUpdate, domain.UpdateMessage{
		Envelope:     domain.Envelope{PlayerID: c.selfID},
		PlayerNumber: num,
		X:            x,
		Y:            y,
		Angle:        angle,
		FoundObject:  found,
	})
}

func (c *Core) handleUpdate(d domain.Delivery) {
	var msg domain.UpdateMessage
	if !c.decode(d, &msg) {
		return
	}
	if msg.PlayerID == c.selfID {
		return
	}
	if c.handlers.OnPlayerUpdate != nil {
		c.dispatch.Dispatch(func() { c.handlers.OnPlayerUpdate(msg.PlayerID, msg.X, msg.Y, msg.Angle) })
	}
}

func (c *Core) handleHeartbeat(d domain.Delivery) {
	var msg domain.Envelope
	if !c.decode(d, &msg) {
		return
	}
	if msg.PlayerID == c.selfID {
		return
	}
	c.register.TouchHeartbeat(msg.PlayerID, c.clock())
}

func (c *Core) handleWin(d domain.Delivery) {
	var msg domain.WinMessage
	if !c.decode(d, &msg) {
		return
	}
	if c.handlers.OnWin != nil {
		team := msg.TeamNumber
		c.dispatch.Dispatch(func() { c.handlers.OnWin(team) })
	}
}

// Win publishes a win for the local peer's team then leaves PLAYING via
// Stop. Legal only in PLAYING with a known team partner.
func (c *Core) Win() error {
	c.mu.Lock()
	playing := c.gameState == domain.Playing
	hasPartner := c.hasPartner
	c.mu.Unlock()
	if !playing {
		return domain.ErrNotPlaying
	}
	p, ok := c.register.Confirmed(c.selfID)
	if !ok || p.TeamNumber == domain.NoTeam {
		return domain.ErrNoTeam
	}
	if !hasPartner {
		return domain.ErrNoPartner
	}
	if err := c.publish(domain.TopicWin, domain.WinMessage{
		Envelope:   domain.Envelope{PlayerID: c.selfID},
		TeamNumber: p.TeamNumber,
	}); err != nil {
		return err
	}
	return c.Stop()
}

func (c *Core) handleDisconnectDelivery(d domain.Delivery) {
	var msg domain.DisconnectMessage
	if !c.decode(d, &msg) {
		return
	}
	if msg.PlayerID == c.selfID {
		return
	}
	c.applyDisconnect(msg.PlayerID, msg.ClientID, msg.Reason)
}
