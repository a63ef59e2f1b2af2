package domain

// ─── Service Interfaces ─────────────────────────────────────────────────────
// These interfaces define boundaries between layers.
// Infrastructure implements them; the engine depends on them.

// Properties carries the reply-routing metadata the transport attaches to
// a published message — an ephemeral reply queue name plus a correlation
// identifier, the minimum a request/reply primitive needs.
type Properties struct {
	ReplyTo       string
	CorrelationID string
}

// Delivery is one inbound message handed to a bound consumer.
type Delivery struct {
	RoutingKey    string
	Body          []byte
	ReplyTo       string
	CorrelationID string
}

// DeliveryHandler processes one Delivery. It must not block for long —
// the transport calls it from its own delivery goroutine.
type DeliveryHandler func(Delivery)

// ReplyQueue is an ephemeral, auto-deleting queue used to collect replies
// to a single outstanding request.
type ReplyQueue interface {
	// Name is the routing address other peers use as ReplyTo.
	Name() string
	// Deliveries streams replies addressed to this queue.
	Deliveries() <-chan Delivery
	// Close releases the queue. Safe to call more than once.
	Close()
}

// Transport is the narrow seam over a topic-routed publish/subscribe
// broker (an AMQP-like exchange with glob-pattern topic bindings). The
// core never talks to a concrete broker — only to this interface — so any
// real broker or an in-memory fake that satisfies it can drive the
// protocol.
type Transport interface {
	// Publish sends body to exchange under routingKey. props is optional
	// reply-routing metadata; zero value means "fire and forget".
	Publish(exchange, routingKey string, body []byte, props Properties) error

	// Bind registers handler for every routingKey on exchange matching
	// pattern (a glob using "*" for one segment and "#" for the remainder,
	// dot-separated — e.g. "team.3.*"). Returns a cancel func that
	// un-registers the handler; cancel is idempotent.
	Bind(exchange, pattern string, handler DeliveryHandler) (cancel func(), err error)

	// DeclareReplyQueue creates a fresh auto-delete queue for collecting
	// replies to one outstanding request.
	DeclareReplyQueue(exchange string) (ReplyQueue, error)

	// Close tears down the transport's resources for this peer.
	Close() error
}

// Codec serializes protocol messages to and from wire bytes.
type Codec interface {
	Encode(v any) ([]byte, error)
	Decode(data []byte, v any) error
}

// Dispatcher runs a user callback. The default, synchronous dispatcher
// invokes fn on the calling goroutine, outside the engine's monitor; the
// spectator role substitutes a worker-pool dispatcher so slow rendering
// code never blocks message intake.
type Dispatcher interface {
	Dispatch(fn func())
}

// DispatcherFunc adapts a plain function to a Dispatcher.
type DispatcherFunc func(fn func())

// Dispatch implements Dispatcher.
func (f DispatcherFunc) Dispatch(fn func()) { f(fn) }

// SyncDispatcher runs callbacks synchronously on the calling goroutine.
var SyncDispatcher Dispatcher = DispatcherFunc(func(fn func()) { fn() })

// Handlers is the struct of user-supplied lifecycle callbacks the engine
// invokes after a state transition has been committed and the monitor
// released. Any field may be nil; a nil handler is simply skipped.
type Handlers struct {
	// OnJoined fires once the local peer is admitted (WAITING reached).
	OnJoined func()
	// OnJoinFailed fires when the join vote is rejected or errors.
	OnJoinFailed func(err error)
	// OnStateChanged fires on every GameState transition.
	OnStateChanged func(state GameState)
	// OnPlayerJoined fires when a remote player is confirmed.
	OnPlayerJoined func(playerID PlayerID)
	// OnPlayerDisconnected fires once per peer per disconnect, deduplicated.
	OnPlayerDisconnected func(playerID PlayerID, reason DisconnectReason)
	// OnGameRolled fires locally once this peer's player number is assigned.
	OnGameRolled func(playerNumber, objectNumber int)
	// OnGameStarted fires on STARTING/PAUSED -> PLAYING.
	OnGameStarted func()
	// OnGamePaused fires on PLAYING -> PAUSED.
	OnGamePaused func()
	// OnGameStopped fires on -> WAITING from PLAYING/PAUSED.
	OnGameStopped func()
	// OnPlayerFoundObject fires when any player (including local) finds its object.
	OnPlayerFoundObject func(playerID PlayerID)
	// OnPlayerUpdate fires on a remote position update.
	OnPlayerUpdate func(playerID PlayerID, x, y, angle float64)
	// OnSeesawLocked / OnSeesawUnlocked fire on lock broadcast receipt.
	OnSeesawLocked   func(playerNumber, barcode int)
	OnSeesawUnlocked func(playerNumber, barcode int)
	// OnTeamConnected fires once a team partner is discovered.
	OnTeamConnected func(partnerID PlayerID)
	// OnTeamTiles fires when the team partner shares map tiles.
	OnTeamTiles func(tiles [][3]int)
	// OnWin fires when either team member publishes a win.
	OnWin func(teamNumber int)
}
