// Package domain contains pure business types with ZERO infrastructure imports.
// This is the innermost ring of clean architecture — it depends on nothing.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// PlayerID is a stable, user-chosen identifier for one logical robot.
// It survives process restarts — a new process claiming the same PlayerID
// is either a reconnect or an imposter, distinguished by ClientID.
type PlayerID string

// ClientID disambiguates two processes claiming the same PlayerID.
// It is generated fresh for every process run and never persisted —
// the protocol has no durable identity store (see Non-goals: no persistent log).
type ClientID string

// NewClientID mints a fresh per-process client identifier.
func NewClientID() ClientID {
	return ClientID(uuid.NewString())
}

// N is the fixed party size for one game.
const N = 4

// Timing constants from the wire protocol.
const (
	RequestLifetime    = 2000 * time.Millisecond // join/vote request timeout
	HeartbeatFrequency = 2000 * time.Millisecond // beacon interval
	HeartbeatLifetime  = 5000 * time.Millisecond // staleness threshold
)
