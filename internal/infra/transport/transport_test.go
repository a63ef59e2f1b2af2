package transport

import (
	"testing"
	"time"

	"github.com/htttp-net/htttp/internal/domain"
)

func TestMatchTopic(t *testing.T) {
	cases := []struct {
		pattern, key string
		want         bool
	}{
		{"join", "join", true},
		{"join", "joined", false},
		{"team.*.ping", "team.3.ping", true},
		{"team.*.ping", "team.3.tile", false},
		{"team.#", "team.3.ping", true},
		{"team.#", "team.3.tile", true},
		{"#", "anything.at.all", true},
	}
	for _, c := range cases {
		if got := matchTopic(c.pattern, c.key); got != c.want {
			t.Errorf("matchTopic(%q, %q) = %v, want %v", c.pattern, c.key, got, c.want)
		}
	}
}

func TestPublishBindDeliversMatchingPattern(t *testing.T) {
	b := NewBroker()
	a := b.Connect("game1")
	other := b.Connect("game1")

	got := make(chan domain.Delivery, 4)
	_, err := other.Bind("game1", "heartbeat", func(d domain.Delivery) { got <- d })
	if err != nil {
		t.Fatalf("Bind: %v", err)
	}

	if err := a.Publish("game1", "heartbeat", []byte("x"), domain.Properties{}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if err := a.Publish("game1", "join", []byte("y"), domain.Properties{}); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case d := <-got:
		if d.RoutingKey != "heartbeat" || string(d.Body) != "x" {
			t.Errorf("unexpected delivery %+v", d)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for delivery")
	}

	select {
	case d := <-got:
		t.Fatalf("unexpected second delivery %+v", d)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestReplyQueueRoundTrip(t *testing.T) {
	b := NewBroker()
	requester := b.Connect("game1")
	replier := b.Connect("game1")

	rq, err := requester.DeclareReplyQueue("game1")
	if err != nil {
		t.Fatalf("DeclareReplyQueue: %v", err)
	}
	defer rq.Close()

	_, err = replier.Bind("game1", "join", func(d domain.Delivery) {
		_ = replier.Publish("game1", d.ReplyTo, []byte("ack"), domain.Properties{CorrelationID: d.CorrelationID})
	})
	if err != nil {
		t.Fatalf("Bind: %v", err)
	}

	if err := requester.Publish("game1", "join", []byte("req"), domain.Properties{ReplyTo: rq.Name(), CorrelationID: "c1"}); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case d := <-rq.Deliveries():
		if string(d.Body) != "ack" || d.CorrelationID != "c1" {
			t.Errorf("unexpected reply %+v", d)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for reply")
	}
}

func TestCloseUnbindsOnlyOwnBindings(t *testing.T) {
	b := NewBroker()
	a := b.Connect("game1")
	other := b.Connect("game1")

	gotA := make(chan struct{}, 1)
	gotOther := make(chan struct{}, 1)
	a.Bind("game1", "stop", func(domain.Delivery) { gotA <- struct{}{} })
	other.Bind("game1", "stop", func(domain.Delivery) { gotOther <- struct{}{} })

	if err := a.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	other2 := b.Connect("game1")
	if err := other2.Publish("game1", "stop", nil, domain.Properties{}); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case <-gotOther:
	case <-time.After(time.Second):
		t.Fatal("other binding should still receive deliveries")
	}
	select {
	case <-gotA:
		t.Fatal("closed peer's binding should not receive deliveries")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPublishAfterCloseErrors(t *testing.T) {
	b := NewBroker()
	a := b.Connect("game1")
	if err := a.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := a.Publish("game1", "stop", nil, domain.Properties{}); err != domain.ErrTransportClosed {
		t.Errorf("Publish after Close = %v, want ErrTransportClosed", err)
	}
}
