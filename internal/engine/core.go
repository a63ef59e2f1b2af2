// Package engine implements the central game state machine: the single
// writer over gameState, the player register, player numbers, rolls,
// and the seesaw lock. All other infra packages (transport, codec,
// reqrep, membership, heartbeat) are wired together here behind one
// per-peer Core.
package engine

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/htttp-net/htttp/internal/domain"
	"github.com/htttp-net/htttp/internal/infra/heartbeat"
	"github.com/htttp-net/htttp/internal/infra/membership"
	"github.com/htttp-net/htttp/internal/infra/reqrep"
	"github.com/htttp-net/htttp/internal/metrics"
)

// Config wires a Core to its collaborators.
type Config struct {
	PlayerID   domain.PlayerID
	Exchange   string
	Transport  domain.Transport
	Codec      domain.Codec
	Handlers   domain.Handlers
	Dispatcher domain.Dispatcher // nil -> domain.SyncDispatcher

	Clock func() time.Time // nil -> time.Now
	Roll  func() int32     // nil -> uniform random int32

	HeartbeatFrequency time.Duration // 0 -> domain.HeartbeatFrequency
	HeartbeatLifetime  time.Duration // 0 -> domain.HeartbeatLifetime
}

// Core is one peer's state machine. The state machine is the single
// writer of gameState, players, playerNumbers, playerRolls, and
// seesawLock. gameState, playerNumbers, playerRolls and seesawLock change
// only under mu, held for the full span of a transition; some register
// updates (readiness, found flag, team number, heartbeat stamps) go
// through the register's own lock without mu. User callbacks fire only
// after mu is released.
type Core struct {
	selfID    domain.PlayerID
	clientID  domain.ClientID
	exchange  string
	transport domain.Transport
	codec     domain.Codec
	handlers  domain.Handlers
	dispatch  domain.Dispatcher
	ids       *reqrep.IDGenerator
	clock     func() time.Time
	roll      func() int32

	heartbeatFreq     time.Duration
	heartbeatLifetime time.Duration

	mu            sync.Mutex
	gameState     domain.GameState
	register      *membership.Register
	playerNumbers map[domain.PlayerID]int
	playerRolls   map[domain.PlayerID]int32
	myRoll        *int32
	seesawLock    int
	partnerID     domain.PlayerID
	hasPartner    bool

	topicCancel func()
	teamCancel  func()

	ctx          context.Context
	cancelCtx    context.CancelFunc
	beaconWG     sync.WaitGroup
}

// New constructs a Core for cfg.PlayerID, freshly minting a per-process
// clientID. The Core starts DISCONNECTED; call Join to begin.
func New(cfg Config) *Core {
	dispatcher := cfg.Dispatcher
	if dispatcher == nil {
		dispatcher = domain.SyncDispatcher
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	rollFn := cfg.Roll
	if rollFn == nil {
		rollFn = func() int32 { return int32(rand.Uint32()) }
	}
	freq := cfg.HeartbeatFrequency
	if freq <= 0 {
		freq = domain.HeartbeatFrequency
	}
	lifetime := cfg.HeartbeatLifetime
	if lifetime <= 0 {
		lifetime = domain.HeartbeatLifetime
	}
	return &Core{
		selfID:            cfg.PlayerID,
		clientID:          domain.NewClientID(),
		exchange:          cfg.Exchange,
		transport:         cfg.Transport,
		codec:             cfg.Codec,
		handlers:          cfg.Handlers,
		dispatch:          dispatcher,
		ids:               reqrep.NewIDGenerator(string(cfg.PlayerID)),
		clock:             clock,
		roll:              rollFn,
		heartbeatFreq:     freq,
		heartbeatLifetime: lifetime,
		gameState:         domain.Disconnected,
		register:          membership.New(),
		playerNumbers:     make(map[domain.PlayerID]int),
		playerRolls:       make(map[domain.PlayerID]int32),
	}
}

// commit runs fn under the monitor, then dispatches whatever callbacks
// it returns outside the lock. This is the one place state mutates.
func (c *Core) commit(fn func() []func()) {
	c.mu.Lock()
	cbs := fn()
	c.mu.Unlock()
	for _, cb := range cbs {
		if cb != nil {
			c.dispatch.Dispatch(recoveringCallback(cb))
		}
	}
}

// recoveringCallback wraps a user callback so a panic inside it is
// counted and swallowed rather than taking down the dispatcher's
// goroutine (the calling goroutine for domain.SyncDispatcher, a pooled
// one for the spectator's worker-pool dispatcher).
func recoveringCallback(cb func()) func() {
	return func() {
		defer func() {
			if r := recover(); r != nil {
				metrics.HandlerPanics.WithLabelValues("engine").Inc()
			}
		}()
		cb()
	}
}

// ─── Read-only accessors ────────────────────────────────────────────────────

// GameState returns the current lifecycle state.
func (c *Core) GameState() domain.GameState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gameState
}

// IsJoined reports whether the local peer currently holds a confirmed seat.
func (c *Core) IsJoined() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gameState != domain.Disconnected && c.gameState != domain.Joining
}

// Players returns the confirmed playerIDs, lexicographically sorted.
func (c *Core) Players() []domain.PlayerID {
	return c.register.ConfirmedIDs()
}

// MissingPlayers returns the missing playerIDs, lexicographically sorted.
func (c *Core) MissingPlayers() []domain.PlayerID {
	return c.register.MissingIDs()
}

// PlayerNumber returns the assigned player number for playerID, if any.
func (c *Core) PlayerNumber(playerID domain.PlayerID) (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n, ok := c.playerNumbers[playerID]
	return n, ok
}

// SeesawLock returns the barcode currently locked by the local peer, or
// 0 if none.
func (c *Core) SeesawLock() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seesawLock
}

// ClientID returns the process-local client identifier.
func (c *Core) ClientID() domain.ClientID { return c.clientID }

// PlayerID returns the configured playerID for this peer.
func (c *Core) PlayerID() domain.PlayerID { return c.selfID }

// setState is an internal helper callable only with mu held. It returns
// the OnStateChanged callback closure to be queued by the caller.
func (c *Core) setState(s domain.GameState) func() {
	c.gameState = s
	metrics.GameState.Set(float64(s))
	if c.handlers.OnStateChanged == nil {
		return nil
	}
	return func() { c.handlers.OnStateChanged(s) }
}

func (c *Core) publish(topic string, v any) error {
	body, err := c.codec.Encode(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", topic, err)
	}
	return c.transport.Publish(c.exchange, topic, body, domain.Properties{})
}

// Close tears down the heartbeat beacon, reaper, and bindings, and
// best-effort publishes a LEAVE disconnect before tearing down the
// channel. Errors during teardown are swallowed.
func (c *Core) Close() {
	c.Leave()
}

func (c *Core) startBackground() {
	ctx, cancel := context.WithCancel(context.Background())
	c.ctx = ctx
	c.cancelCtx = cancel

	beacon := heartbeat.NewBeacon(c.transport, c.codec, c.exchange, c.selfID, c.heartbeatFreq)
	c.beaconWG.Add(1)
	go func() {
		defer c.beaconWG.Done()
		beacon.Run(ctx)
	}()

	reaper := heartbeat.NewReaper(c.register, c.heartbeatLifetime, c.heartbeatFreq, c.onPeerStale).WithClock(c.clock)
	c.beaconWG.Add(1)
	go func() {
		defer c.beaconWG.Done()
		reaper.Run(ctx)
	}()
}

func (c *Core) stopBackground() {
	if c.cancelCtx != nil {
		c.cancelCtx()
	}
	if c.topicCancel != nil {
		c.topicCancel()
		c.topicCancel = nil
	}
	if c.teamCancel != nil {
		c.teamCancel()
		c.teamCancel = nil
	}
}

// onPeerStale is the reaper's callback: declare playerID missing due to
// timeout, exactly mirroring receipt of a disconnect(reason=TIMEOUT),
// and also publish that disconnect so partitioned observers converge.
func (c *Core) onPeerStale(playerID domain.PlayerID) {
	c.mu.Lock()
	// During JOINING the local view isn't authoritative yet.
	if c.gameState == domain.Joining || c.gameState == domain.Disconnected {
		c.mu.Unlock()
		return
	}
	p, confirmed := c.register.Confirmed(playerID)
	c.mu.Unlock()
	if !confirmed {
		return
	}
	metrics.PeersDeclaredMissing.Inc()
	c.applyDisconnect(playerID, p.ClientID, domain.ReasonTimeout)
	_ = c.publish(domain.TopicDisconnect, domain.DisconnectMessage{
		Envelope: domain.Envelope{PlayerID: playerID, ClientID: p.ClientID},
		Reason:   domain.ReasonTimeout,
	})
}
