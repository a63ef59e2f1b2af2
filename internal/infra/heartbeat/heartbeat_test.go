package heartbeat

import (
	"context"
	"testing"
	"time"

	"github.com/htttp-net/htttp/internal/domain"
	"github.com/htttp-net/htttp/internal/infra/codec"
	"github.com/htttp-net/htttp/internal/infra/transport"
)

func TestBeaconPublishesOnInterval(t *testing.T) {
	b := transport.NewBroker()
	sender := b.Connect("game1")
	listener := b.Connect("game1")

	got := make(chan domain.Delivery, 4)
	listener.Bind("game1", domain.TopicHeartbeat, func(d domain.Delivery) { got <- d })

	beacon := NewBeacon(sender, codec.New(), "game1", "A", 10*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go beacon.Run(ctx)

	select {
	case d := <-got:
		var env domain.Envelope
		if err := codec.New().Decode(d.Body, &env); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if env.PlayerID != "A" {
			t.Errorf("PlayerID = %q, want A", env.PlayerID)
		}
	case <-time.After(time.Second):
		t.Fatal("beacon never published")
	}
}

type fakeRegister struct {
	stale []domain.PlayerID
}

func (f *fakeRegister) StaleConfirmed(cutoff time.Time) []domain.PlayerID { return f.stale }

func TestReaperCallsOnStaleForEachExpiredPlayer(t *testing.T) {
	reg := &fakeRegister{stale: []domain.PlayerID{"A", "B"}}

	var seen []domain.PlayerID
	reaper := NewReaper(reg, 5*time.Second, 10*time.Millisecond, func(id domain.PlayerID) {
		seen = append(seen, id)
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go reaper.Run(ctx)

	deadline := time.After(time.Second)
	for len(seen) < 2 {
		select {
		case <-deadline:
			t.Fatalf("onStale called %d times, want at least 2: %v", len(seen), seen)
		case <-time.After(5 * time.Millisecond):
		}
	}
	if seen[0] != "A" || seen[1] != "B" {
		t.Errorf("seen = %v, want [A B]", seen)
	}
}

func TestReaperStopsOnContextCancel(t *testing.T) {
	reg := &fakeRegister{}
	calls := 0
	reaper := NewReaper(reg, time.Second, 5*time.Millisecond, func(domain.PlayerID) { calls++ })

	ctx, cancel := context.WithCancel(context.Background())
	go reaper.Run(ctx)
	time.Sleep(20 * time.Millisecond)
	cancel()
	time.Sleep(20 * time.Millisecond)
	// No assertion on calls (register is empty); this exercises clean shutdown.
}
