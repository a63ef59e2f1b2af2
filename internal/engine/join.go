package engine

import (
	"github.com/htttp-net/htttp/internal/domain"
	"github.com/htttp-net/htttp/internal/infra/reqrep"
	"github.com/htttp-net/htttp/internal/metrics"
)

// Join drives the join/rejoin vote. It is legal only from DISCONNECTED;
// the vote itself runs asynchronously and resolves via Handlers.OnJoined
// / Handlers.OnJoinFailed.
func (c *Core) Join() error {
	c.mu.Lock()
	if c.gameState != domain.Disconnected {
		c.mu.Unlock()
		return domain.ErrAlreadyJoined
	}
	cb := c.setState(domain.Joining)
	c.mu.Unlock()
	if cb != nil {
		c.dispatch.Dispatch(cb)
	}

	metrics.JoinAttempts.Inc()

	cancel, err := c.transport.Bind(c.exchange, "*", c.handleTopLevelDelivery)
	if err != nil {
		c.commit(func() []func() { return []func(){c.setState(domain.Disconnected)} })
		return err
	}
	c.mu.Lock()
	c.topicCancel = cancel
	c.mu.Unlock()

	c.startBackground()

	go c.runJoinVote()
	return nil
}

func (c *Core) runJoinVote() {
	vote, err := reqrep.NewVote(c.transport, c.exchange, c.ids.Next(), domain.N-1)
	if err != nil {
		c.failJoin(err)
		return
	}
	vote.OnAccepted = func(d domain.Delivery) {
		var reply domain.JoinReply
		if !c.decode(d, &reply) {
			return
		}
		c.mu.Lock()
		if reply.GameState > c.gameState {
			c.gameState = reply.GameState
		}
		for pid, n := range reply.PlayerNumbers {
			c.playerNumbers[pid] = n
		}
		c.mu.Unlock()
		c.register.MergeMissing(reply.MissingPlayers)
	}

	body, err := c.codec.Encode(domain.JoinRequest{Envelope: domain.Envelope{PlayerID: c.selfID, ClientID: c.clientID}})
	if err != nil {
		c.failJoin(err)
		return
	}
	if err := vote.Publish(domain.TopicJoin, body); err != nil {
		c.failJoin(err)
		return
	}

	start := c.clock()
	ok, voteErr := vote.Run(domain.RequestLifetime, c.classifyJoinReply)
	metrics.JoinVoteDuration.Observe(c.clock().Sub(start).Seconds())

	if !ok {
		outcome := "rejected"
		if voteErr == domain.ErrVoteTimeout {
			outcome = "timeout_below_quorum"
		}
		metrics.JoinOutcomes.WithLabelValues(outcome).Inc()
		c.failJoin(voteErr)
		return
	}
	if vote.Accepts() == 0 {
		metrics.JoinOutcomes.WithLabelValues("timeout_zero_replies").Inc()
	} else {
		metrics.JoinOutcomes.WithLabelValues("admitted").Inc()
	}
	c.admit()
}

func (c *Core) classifyJoinReply(d domain.Delivery) (accept bool, ok bool) {
	var reply domain.JoinReply
	if !c.decode(d, &reply) {
		return false, false
	}
	return reply.Result, true
}

// failJoin tears the attempt down and reports failure to the caller: a
// rejected or timed-out-below-quorum vote is reported through the join
// callback as a failure, and the peer transitions back to DISCONNECTED.
func (c *Core) failJoin(err error) {
	c.stopBackground()
	rejected := err == reqrep.ErrRejected
	c.commit(func() []func() {
		cb := c.setState(domain.Disconnected)
		c.register.Reset()
		var cbs []func()
		if cb != nil {
			cbs = append(cbs, cb)
		}
		if c.handlers.OnJoinFailed != nil {
			cbs = append(cbs, func() { c.handlers.OnJoinFailed(err) })
		}
		return cbs
	})
	if rejected {
		_ = c.publish(domain.TopicDisconnect, domain.DisconnectMessage{
			Envelope: domain.Envelope{PlayerID: c.selfID, ClientID: c.clientID},
			Reason:   domain.ReasonReject,
		})
	}
}

// admit marks the local peer as joined, publishes `joined`, and
// attempts a roll in case the lobby is already full (the rejoin case,
// where N-1 others are already confirmed).
func (c *Core) admit() {
	var restoredTeam int
	c.commit(func() []func() {
		p := c.register.Confirm(c.selfID, c.clientID)
		stateCb := c.setState(domain.Waiting)
		var out []func()
		if stateCb != nil {
			out = append(out, stateCb)
		}
		if c.handlers.OnJoined != nil {
			out = append(out, c.handlers.OnJoined)
		}
		if p.HasFoundObject && c.handlers.OnPlayerFoundObject != nil {
			pid := c.selfID
			out = append(out, func() { c.handlers.OnPlayerFoundObject(pid) })
		}
		restoredTeam = p.TeamNumber
		out = append(out, c.tryRollLocked()...)
		return out
	})

	_ = c.publish(domain.TopicJoined, domain.JoinedBroadcast{
		Envelope: domain.Envelope{PlayerID: c.selfID, ClientID: c.clientID},
	})

	// Best-effort team recovery: a rejoining peer does not re-publish the
	// team-join, it re-pings its old partner locally.
	if restoredTeam != domain.NoTeam {
		go c.setupTeam(restoredTeam)
	}
}

// handleJoinRequest is the responder side of a join vote: evaluate
// canJoin and reply on the requester's ephemeral queue.
func (c *Core) handleJoinRequest(d domain.Delivery) {
	var req domain.JoinRequest
	if !c.decode(d, &req) {
		return
	}
	if req.PlayerID == c.selfID && req.ClientID == c.clientID {
		return // our own join request, echoed back by the broadcast binding
	}

	var reply domain.JoinReply
	c.commit(func() []func() {
		accept := c.canJoin(req.PlayerID, req.ClientID)
		if accept {
			c.register.AddVoted(req.PlayerID, req.ClientID)
		}
		reply = domain.JoinReply{
			Result:     accept,
			ClientID:   c.clientID,
			PlayerID:   c.selfID,
			GameState:  c.gameState,
			TeamNumber: domain.NoTeam,
		}
		if self, ok := c.register.Confirmed(c.selfID); ok {
			reply.IsReady = self.IsReady
			reply.IsJoined = true
			reply.HasFoundObject = self.HasFoundObject
			reply.TeamNumber = self.TeamNumber
		}
		if accept {
			reply.PlayerNumbers = cloneNumbers(c.playerNumbers)
			reply.MissingPlayers = c.register.MissingInfos()
		}
		return nil
	})

	body, err := c.codec.Encode(reply)
	if err != nil || d.ReplyTo == "" {
		return
	}
	_ = c.transport.Publish(c.exchange, d.ReplyTo, body, domain.Properties{CorrelationID: d.CorrelationID})
}

// canJoin decides whether a join/rejoin vote should be accepted. Caller
// must hold c.mu.
func (c *Core) canJoin(playerID domain.PlayerID, clientID domain.ClientID) bool {
	switch c.gameState {
	case domain.Playing:
		return false
	case domain.Paused:
		return c.register.IsMissing(playerID)
	case domain.Joining, domain.Starting, domain.Waiting:
		if c.register.IsConfirmedByOtherClient(playerID, clientID) {
			return false
		}
		if !c.register.Knows(playerID) && c.register.PartySize() >= domain.N {
			return false
		}
		return true
	default: // Disconnected: no binding should be active to receive this
		return false
	}
}

// handleJoinedBroadcast confirms the newly-joined peer (restoring from
// missing for a rejoin) and attempts a roll.
func (c *Core) handleJoinedBroadcast(d domain.Delivery) {
	var msg domain.JoinedBroadcast
	if !c.decode(d, &msg) {
		return
	}
	if msg.PlayerID == c.selfID {
		return // we confirmed ourselves already in admit()
	}
	c.commit(func() []func() {
		c.register.Confirm(msg.PlayerID, msg.ClientID)
		var cbs []func()
		if c.handlers.OnPlayerJoined != nil {
			pid := msg.PlayerID
			cbs = append(cbs, func() { c.handlers.OnPlayerJoined(pid) })
		}
		cbs = append(cbs, c.tryRollLocked()...)
		return cbs
	})
}

func cloneNumbers(m map[domain.PlayerID]int) map[domain.PlayerID]int {
	out := make(map[domain.PlayerID]int, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
