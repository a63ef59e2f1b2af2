// Package heartbeat implements the liveness beacon and the reaper that
// escalates a stale peer to the group, grounded on the probe-cycle/ticker
// shape of a gossip-style membership protocol.
package heartbeat

import (
	"context"
	"time"

	"github.com/htttp-net/htttp/internal/domain"
	"github.com/htttp-net/htttp/internal/metrics"
)

// Beacon publishes a heartbeat on a fixed interval until stopped.
type Beacon struct {
	transport domain.Transport
	codec     domain.Codec
	exchange  string
	selfID    domain.PlayerID
	interval  time.Duration
}

// NewBeacon creates a beacon that publishes under selfID every interval.
func NewBeacon(transport domain.Transport, codec domain.Codec, exchange string, selfID domain.PlayerID, interval time.Duration) *Beacon {
	return &Beacon{
		transport: transport,
		codec:     codec,
		exchange:  exchange,
		selfID:    selfID,
		interval:  interval,
	}
}

// Run publishes heartbeats until ctx is cancelled. Call it from its own
// goroutine; it blocks until cancellation.
func (b *Beacon) Run(ctx context.Context) {
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			body, err := b.codec.Encode(domain.Envelope{PlayerID: b.selfID})
			if err != nil {
				continue
			}
			if err := b.transport.Publish(b.exchange, domain.TopicHeartbeat, body, domain.Properties{}); err == nil {
				metrics.HeartbeatsPublished.Inc()
			}
		}
	}
}
