package engine

import (
	"fmt"

	"github.com/htttp-net/htttp/internal/domain"
	"github.com/htttp-net/htttp/internal/infra/reqrep"
	"github.com/htttp-net/htttp/internal/metrics"
)

func teamPattern(n int) string { return fmt.Sprintf("team.%d.*", n) }
func teamPingTopic(n int) string { return fmt.Sprintf("team.%d.%s", n, domain.TeamPingSuffix) }
func teamTileTopic(n int) string { return fmt.Sprintf("team.%d.%s", n, domain.TeamTileSuffix) }

// JoinTeam binds the team's queue and pings for a partner. Legal only
// in PLAYING. If no reply arrives before timeout, the peer stays bound
// and listening; a partner joining later will ping instead and drive
// teamConnected from the other side.
func (c *Core) JoinTeam(n int) error {
	c.mu.Lock()
	playing := c.gameState == domain.Playing
	c.mu.Unlock()
	if !playing {
		return domain.ErrNotPlaying
	}
	if n <= 0 {
		return domain.ErrInvalidTeamNumber
	}
	c.register.SetTeam(c.selfID, n)
	go c.setupTeam(n)
	return nil
}

// setupTeam binds the team pattern (idempotent: a second call for the
// same team replaces the prior binding) then pings for a partner
// already listening. Used both by JoinTeam and by a rejoining peer
// recovering its prior team assignment.
func (c *Core) setupTeam(n int) {
	cancel, err := c.transport.Bind(c.exchange, teamPattern(n), func(d domain.Delivery) { c.handleTeamDelivery(n, d) })
	if err != nil {
		return
	}
	c.mu.Lock()
	if c.teamCancel != nil {
		c.teamCancel()
	}
	c.teamCancel = cancel
	c.mu.Unlock()

	c.pingTeamPartner(n)
}

func (c *Core) pingTeamPartner(n int) {
	req, err := reqrep.New(c.transport, c.exchange, c.ids.Next())
	if err != nil {
		return
	}
	defer req.Cancel()

	body, err := c.codec.Encode(domain.Envelope{PlayerID: c.selfID})
	if err != nil {
		return
	}
	if err := req.Publish(teamPingTopic(n), body); err != nil {
		return
	}

	timer := req.StartTimeout(domain.RequestLifetime)
	select {
	case d, ok := <-req.Replies():
		if !ok {
			return
		}
		var pong domain.TeamPongMessage
		if !c.decode(d, &pong) {
			return
		}
		c.adoptPartner(pong.PlayerID)
	case <-timer:
	}
}

// adoptPartner records the discovered partner and fires teamConnected
// once, regardless of which side of the ping discovers it first.
func (c *Core) adoptPartner(partnerID domain.PlayerID) {
	c.commit(func() []func() {
		if c.hasPartner && c.partnerID == partnerID {
			return nil
		}
		c.hasPartner = true
		c.partnerID = partnerID
		metrics.TeamPartnerDiscovered.Inc()
		if c.handlers.OnTeamConnected == nil {
			return nil
		}
		pid := partnerID
		return []func(){func() { c.handlers.OnTeamConnected(pid) }}
	})
}

// handleTeamDelivery routes messages on team.<n>.* : a ping from a
// freshly-joined partner gets an immediate pong, and tile shares are
// handed to the tiles handler.
func (c *Core) handleTeamDelivery(n int, d domain.Delivery) {
	switch d.RoutingKey {
	case teamPingTopic(n):
		c.handleTeamPing(d)
	case teamTileTopic(n):
		c.handleTeamTiles(d)
	}
}

func (c *Core) handleTeamPing(d domain.Delivery) {
	var msg domain.Envelope
	if !c.decode(d, &msg) {
		return
	}
	if msg.PlayerID == c.selfID {
		return
	}
	c.adoptPartner(msg.PlayerID)

	if d.ReplyTo == "" {
		return
	}
	body, err := c.codec.Encode(domain.TeamPongMessage{Envelope: domain.Envelope{PlayerID: c.selfID}})
	if err != nil {
		return
	}
	_ = c.transport.Publish(c.exchange, d.ReplyTo, body, domain.Properties{CorrelationID: d.CorrelationID})
}

func (c *Core) handleTeamTiles(d domain.Delivery) {
	var msg domain.TilesMessage
	if !c.decode(d, &msg) {
		return
	}
	if msg.PlayerID == c.selfID {
		return
	}
	if c.handlers.OnTeamTiles != nil {
		tiles := msg.Tiles
		c.dispatch.Dispatch(func() { c.handlers.OnTeamTiles(tiles) })
	}
}

// SendTiles shares locally-discovered map tiles with the team partner.
// Legal only once a team is known.
func (c *Core) SendTiles(tiles [][3]int) error {
	p, ok := c.register.Confirmed(c.selfID)
	if !ok || p.TeamNumber == domain.NoTeam {
		return domain.ErrNoTeam
	}
	return c.publish(teamTileTopic(p.TeamNumber), domain.TilesMessage{
		Envelope: domain.Envelope{PlayerID: c.selfID},
		Tiles:    tiles,
	})
}
