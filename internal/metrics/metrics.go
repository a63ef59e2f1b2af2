// Package metrics exposes the Prometheus instrumentation for one
// engine instance: membership size, protocol message counts, and
// round-trip timings for the vote-based protocols.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ─── Membership ─────────────────────────────────────────────────────────────

// ConfirmedPlayers tracks the current size of the confirmed bucket.
var ConfirmedPlayers = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "htttp",
	Subsystem: "membership",
	Name:      "confirmed_players",
	Help:      "Current number of confirmed players in the party.",
})

// MissingPlayers tracks the current size of the missing bucket.
var MissingPlayers = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "htttp",
	Subsystem: "membership",
	Name:      "missing_players",
	Help:      "Current number of missing (disconnected, awaiting rejoin) players.",
})

// GameState tracks the local peer's lifecycle state as a low-cardinality
// gauge (one time series per peer, value is the GameState ordinal).
var GameState = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "htttp",
	Subsystem: "state",
	Name:      "game_state",
	Help:      "Current GameState ordinal (DISCONNECTED=0 .. PAUSED=5).",
})

// ─── Join / Rejoin ──────────────────────────────────────────────────────────

// JoinAttempts counts local join() calls.
var JoinAttempts = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "htttp",
	Subsystem: "join",
	Name:      "attempts_total",
	Help:      "Total local join attempts.",
})

// JoinOutcomes counts join vote resolutions by outcome.
var JoinOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "htttp",
	Subsystem: "join",
	Name:      "outcomes_total",
	Help:      "Total join vote resolutions by outcome.",
}, []string{"outcome"}) // admitted | rejected | timeout_zero_replies | timeout_below_quorum

// JoinVoteDuration observes how long the join vote took to resolve.
var JoinVoteDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Namespace: "htttp",
	Subsystem: "join",
	Name:      "vote_duration_seconds",
	Help:      "Time from join vote publish to resolution.",
	Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2},
})

// ─── Roll ───────────────────────────────────────────────────────────────────

// RollCompletions counts successful player-number rolls.
var RollCompletions = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "htttp",
	Subsystem: "roll",
	Name:      "completions_total",
	Help:      "Total completed player-number rolls (all N agreed).",
})

// RollRestarts counts rolls discarded because membership dropped before start.
var RollRestarts = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "htttp",
	Subsystem: "roll",
	Name:      "restarts_total",
	Help:      "Total rolls discarded and restarted due to membership loss.",
})

// ─── Heartbeat ──────────────────────────────────────────────────────────────

// HeartbeatsPublished counts outgoing heartbeat beacons.
var HeartbeatsPublished = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "htttp",
	Subsystem: "heartbeat",
	Name:      "published_total",
	Help:      "Total heartbeat beacons published by the local peer.",
})

// PeersDeclaredMissing counts peers the local reaper declared missing.
var PeersDeclaredMissing = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "htttp",
	Subsystem: "heartbeat",
	Name:      "peers_declared_missing_total",
	Help:      "Total peers the local reaper declared missing due to heartbeat expiry.",
})

// ─── Seesaw ─────────────────────────────────────────────────────────────────

// SeesawLockAttempts counts local lockSeesaw() calls by outcome.
var SeesawLockAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "htttp",
	Subsystem: "seesaw",
	Name:      "lock_attempts_total",
	Help:      "Total local lockSeesaw attempts by outcome.",
}, []string{"outcome"}) // locked | already_held

// ─── Team ───────────────────────────────────────────────────────────────────

// TeamPartnerDiscovered counts successful team ping/pong discoveries.
var TeamPartnerDiscovered = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "htttp",
	Subsystem: "team",
	Name:      "partner_discovered_total",
	Help:      "Total times a team partner was discovered via ping/pong.",
})

// ─── Dispatch ───────────────────────────────────────────────────────────────

// HandlerPanics counts user callbacks that panicked and were recovered
// before they could take down a dispatcher goroutine, labeled by which
// dispatcher caught them ("engine" for Core.commit, "spectator" for the
// worker-pool fan-out).
var HandlerPanics = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "htttp",
	Subsystem: "dispatch",
	Name:      "handler_panics_total",
	Help:      "Total user callback panics recovered by the dispatcher, by dispatcher.",
}, []string{"handler"})
