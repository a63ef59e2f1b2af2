package engine

import (
	"github.com/htttp-net/htttp/internal/domain"
)

// handleTopLevelDelivery is the single entry point for every message
// arriving on the session-wide single-segment binding; it is a pure
// routing function keyed on topic, collapsing what would otherwise be
// three separate consumer classes into one dispatch switch.
func (c *Core) handleTopLevelDelivery(d domain.Delivery) {
	switch d.RoutingKey {
	case domain.TopicJoin:
		c.handleJoinRequest(d)
	case domain.TopicJoined:
		c.handleJoinedBroadcast(d)
	case domain.TopicDisconnect:
		c.handleDisconnectDelivery(d)
	case domain.TopicReady:
		c.handleReady(d)
	case domain.TopicRoll:
		c.handleRoll(d)
	case domain.TopicStart:
		c.handleStart(d)
	case domain.TopicStop:
		c.handleStop(d)
	case domain.TopicPause:
		c.handlePause(d)
	case domain.TopicFound:
		c.handleFound(d)
	case domain.TopicHeartbeat:
		c.handleHeartbeat(d)
	case domain.TopicUpdate:
		c.handleUpdate(d)
	case domain.TopicSeesawLock:
		c.handleSeesawLock(d)
	case domain.TopicSeesawUnlock:
		c.handleSeesawUnlock(d)
	case domain.TopicWin:
		c.handleWin(d)
	default:
		// Unknown topic; the transport's pattern binding is "*" (one
		// segment), so this is a message type this version of the
		// protocol doesn't know, or (with the in-memory transport) a
		// reply that arrived after its reply queue was released. Drop it
		// silently and terminate only this delivery; the peer continues.
	}
}

func (c *Core) decode(d domain.Delivery, v any) bool {
	return c.codec.Decode(d.Body, v) == nil
}
