// Package spectator implements the read-only observer role: a peer
// that binds every public broadcast topic but never votes, publishes,
// or mutates protocol state. Because handler code here may be
// arbitrary rendering or physics-simulation logic, deliveries are
// fanned out to a bounded worker pool instead of running on the
// transport's own delivery goroutine, using semaphore-gated dispatch.
package spectator

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/htttp-net/htttp/internal/domain"
	"github.com/htttp-net/htttp/internal/metrics"
)

// Handlers is the set of callbacks a spectator may supply. Every field
// is optional; a nil handler means that event is dropped.
type Handlers struct {
	OnPlayerJoined       func(playerID domain.PlayerID, clientID domain.ClientID)
	OnPlayerDisconnected func(playerID domain.PlayerID, reason domain.DisconnectReason)
	OnReady              func(playerID domain.PlayerID, ready bool)
	OnRoll               func(playerID domain.PlayerID, roll int32)
	OnStart              func()
	OnStop               func()
	OnPause              func()
	OnFound              func(playerID domain.PlayerID, playerNumber int)
	OnUpdate             func(playerID domain.PlayerID, playerNumber int, x, y, angle float64, foundObject bool)
	OnSeesawLocked       func(playerNumber, barcode int)
	OnSeesawUnlocked     func(playerNumber, barcode int)
	OnWin                func(teamNumber int)
	OnTeamTiles          func(teamNumber int, tiles [][3]int)
}

// Config wires a Spectator to its collaborators.
type Config struct {
	Exchange      string
	Transport     domain.Transport
	Codec         domain.Codec
	Handlers      Handlers
	MaxConcurrent int // default: 8
}

// Spectator is a non-participating observer bound to one exchange.
type Spectator struct {
	exchange  string
	transport domain.Transport
	codec     domain.Codec
	handlers  Handlers

	sem chan struct{}
	wg  sync.WaitGroup

	mu      sync.Mutex
	cancels []func()

	dispatched int64
	dropped    int64
}

// New constructs a Spectator. Call Start to begin observing.
func New(cfg Config) *Spectator {
	max := cfg.MaxConcurrent
	if max <= 0 {
		max = 8
	}
	return &Spectator{
		exchange:  cfg.Exchange,
		transport: cfg.Transport,
		codec:     cfg.Codec,
		handlers:  cfg.Handlers,
		sem:       make(chan struct{}, max),
	}
}

// Start binds the single-segment public topics and the team.# wildcard
// (a spectator doesn't join a team, so it has no single team number to
// scope a binding to — it observes every team's tile traffic).
func (s *Spectator) Start() error {
	cancel1, err := s.transport.Bind(s.exchange, "*", s.handleTopLevel)
	if err != nil {
		return fmt.Errorf("bind public topics: %w", err)
	}
	cancel2, err := s.transport.Bind(s.exchange, "team.#", s.handleTeamAny)
	if err != nil {
		cancel1()
		return fmt.Errorf("bind team topics: %w", err)
	}
	s.mu.Lock()
	s.cancels = append(s.cancels, cancel1, cancel2)
	s.mu.Unlock()
	return nil
}

// Close releases all bindings. In-flight dispatches are allowed to drain.
func (s *Spectator) Close() {
	s.mu.Lock()
	cancels := s.cancels
	s.cancels = nil
	s.mu.Unlock()
	for _, cancel := range cancels {
		cancel()
	}
	s.wg.Wait()
}

// Stats reports pool utilization for the debug API.
type Stats struct {
	Dispatched int64
	Dropped    int64
	MaxSlots   int
	FreeSlots  int
}

// Stats returns current fan-out statistics.
func (s *Spectator) Stats() Stats {
	return Stats{
		Dispatched: atomic.LoadInt64(&s.dispatched),
		Dropped:    atomic.LoadInt64(&s.dropped),
		MaxSlots:   cap(s.sem),
		FreeSlots:  cap(s.sem) - len(s.sem),
	}
}

// dispatch runs fn on a pooled goroutine. If the pool is saturated the
// event is dropped rather than blocking message intake — a spectator is
// a read-only observer of all broadcasts, explicitly best-effort and
// never a coordination participant.
func (s *Spectator) dispatch(fn func()) {
	select {
	case s.sem <- struct{}{}:
	default:
		atomic.AddInt64(&s.dropped, 1)
		return
	}
	atomic.AddInt64(&s.dispatched, 1)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() { <-s.sem }()
		defer func() {
			if r := recover(); r != nil {
				metrics.HandlerPanics.WithLabelValues("spectator").Inc()
			}
		}()
		fn()
	}()
}

func (s *Spectator) decode(d domain.Delivery, v any) bool {
	return s.codec.Decode(d.Body, v) == nil
}

func (s *Spectator) handleTopLevel(d domain.Delivery) {
	switch d.RoutingKey {
	case domain.TopicJoined:
		var msg domain.JoinedBroadcast
		if s.decode(d, &msg) && s.handlers.OnPlayerJoined != nil {
			pid, cid := msg.PlayerID, msg.ClientID
			s.dispatch(func() { s.handlers.OnPlayerJoined(pid, cid) })
		}
	case domain.TopicDisconnect:
		var msg domain.DisconnectMessage
		if s.decode(d, &msg) && s.handlers.OnPlayerDisconnected != nil {
			pid, reason := msg.PlayerID, msg.Reason
			s.dispatch(func() { s.handlers.OnPlayerDisconnected(pid, reason) })
		}
	case domain.TopicReady:
		var msg domain.ReadyMessage
		if s.decode(d, &msg) && s.handlers.OnReady != nil {
			pid, ready := msg.PlayerID, msg.IsReady
			s.dispatch(func() { s.handlers.OnReady(pid, ready) })
		}
	case domain.TopicRoll:
		var msg domain.RollMessage
		if s.decode(d, &msg) && s.handlers.OnRoll != nil {
			pid, roll := msg.PlayerID, msg.Roll
			s.dispatch(func() { s.handlers.OnRoll(pid, roll) })
		}
	case domain.TopicStart:
		if s.handlers.OnStart != nil {
			s.dispatch(s.handlers.OnStart)
		}
	case domain.TopicStop:
		if s.handlers.OnStop != nil {
			s.dispatch(s.handlers.OnStop)
		}
	case domain.TopicPause:
		if s.handlers.OnPause != nil {
			s.dispatch(s.handlers.OnPause)
		}
	case domain.TopicFound:
		var msg domain.FoundMessage
		if s.decode(d, &msg) && s.handlers.OnFound != nil {
			pid, num := msg.PlayerID, msg.PlayerNumber
			s.dispatch(func() { s.handlers.OnFound(pid, num) })
		}
	case domain.TopicUpdate:
		var msg domain.UpdateMessage
		if s.decode(d, &msg) && s.handlers.OnUpdate != nil {
			m := msg
			s.dispatch(func() { s.handlers.OnUpdate(m.PlayerID, m.PlayerNumber, m.X, m.Y, m.Angle, m.FoundObject) })
		}
	case domain.TopicSeesawLock:
		var msg domain.SeesawLockMessage
		if s.decode(d, &msg) && s.handlers.OnSeesawLocked != nil {
			num, barcode := msg.PlayerNumber, msg.Barcode
			s.dispatch(func() { s.handlers.OnSeesawLocked(num, barcode) })
		}
	case domain.TopicSeesawUnlock:
		var msg domain.SeesawLockMessage
		if s.decode(d, &msg) && s.handlers.OnSeesawUnlocked != nil {
			num, barcode := msg.PlayerNumber, msg.Barcode
			s.dispatch(func() { s.handlers.OnSeesawUnlocked(num, barcode) })
		}
	case domain.TopicWin:
		var msg domain.WinMessage
		if s.decode(d, &msg) && s.handlers.OnWin != nil {
			team := msg.TeamNumber
			s.dispatch(func() { s.handlers.OnWin(team) })
		}
	}
}

// handleTeamAny handles team.<n>.tile across every team number; pings
// are a player-to-player discovery detail the spectator has no reason
// to answer or observe.
func (s *Spectator) handleTeamAny(d domain.Delivery) {
	var n int
	var kind string
	if _, err := fmt.Sscanf(d.RoutingKey, "team.%d.%s", &n, &kind); err != nil {
		return
	}
	if kind != domain.TeamTileSuffix {
		return
	}
	var msg domain.TilesMessage
	if s.decode(d, &msg) && s.handlers.OnTeamTiles != nil {
		team, tiles := n, msg.Tiles
		s.dispatch(func() { s.handlers.OnTeamTiles(team, tiles) })
	}
}
