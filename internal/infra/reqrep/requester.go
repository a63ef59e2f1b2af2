package reqrep

import (
	"sync"
	"time"

	"github.com/htttp-net/htttp/internal/domain"
)

// Requester owns one ephemeral reply queue and one correlation ID for a
// single outstanding request. It publishes the request once and streams
// every reply that carries the matching correlation ID back to the
// caller, filtering out anything else delivered to the queue.
type Requester struct {
	transport     domain.Transport
	exchange      string
	queue         domain.ReplyQueue
	correlationID string

	replies chan domain.Delivery
	done    chan struct{}
	once    sync.Once
	timer   *time.Timer
}

// New declares a reply queue on exchange and starts filtering its
// deliveries by correlationID.
func New(transport domain.Transport, exchange, correlationID string) (*Requester, error) {
	rq, err := transport.DeclareReplyQueue(exchange)
	if err != nil {
		return nil, err
	}
	r := &Requester{
		transport:     transport,
		exchange:      exchange,
		queue:         rq,
		correlationID: correlationID,
		replies:       make(chan domain.Delivery, 16),
		done:          make(chan struct{}),
	}
	go r.pump()
	return r, nil
}

func (r *Requester) pump() {
	defer close(r.replies)
	for {
		select {
		case d, ok := <-r.queue.Deliveries():
			if !ok {
				return
			}
			if d.CorrelationID != r.correlationID {
				continue
			}
			select {
			case r.replies <- d:
			case <-r.done:
				return
			}
		case <-r.done:
			return
		}
	}
}

// ReplyTo is the address other peers must use to reply to this request.
func (r *Requester) ReplyTo() string { return r.queue.Name() }

// CorrelationID is the ID this request's replies are filtered by.
func (r *Requester) CorrelationID() string { return r.correlationID }

// Publish sends body to routingKey on the request's exchange, stamped
// with this Requester's reply-to address and correlation ID.
func (r *Requester) Publish(routingKey string, body []byte) error {
	return r.transport.Publish(r.exchange, routingKey, body, domain.Properties{
		ReplyTo:       r.queue.Name(),
		CorrelationID: r.correlationID,
	})
}

// Replies streams correlated replies as they arrive.
func (r *Requester) Replies() <-chan domain.Delivery { return r.replies }

// StartTimeout arms a one-shot timer and returns its fire channel. Callers
// select over Replies() and this channel together.
func (r *Requester) StartTimeout(d time.Duration) <-chan time.Time {
	r.timer = time.NewTimer(d)
	return r.timer.C
}

// Cancel stops the timeout timer, stops the delivery pump, and releases
// the reply queue. Safe to call more than once and safe to call without
// ever having started a timeout.
func (r *Requester) Cancel() {
	r.once.Do(func() {
		close(r.done)
		if r.timer != nil {
			r.timer.Stop()
		}
		r.queue.Close()
	})
}
