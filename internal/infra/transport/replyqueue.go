package transport

import (
	"sync"

	"github.com/htttp-net/htttp/internal/domain"
)

// replyQueue is an ephemeral, auto-delete queue addressed by its own name.
type replyQueue struct {
	name     string
	exchange *exchange
	ch       chan domain.Delivery

	closeOnce sync.Once
}

func newReplyQueue(name string, ex *exchange) *replyQueue {
	return &replyQueue{
		name:     name,
		exchange: ex,
		ch:       make(chan domain.Delivery, 16),
	}
}

func (rq *replyQueue) Name() string { return rq.name }

func (rq *replyQueue) Deliveries() <-chan domain.Delivery { return rq.ch }

func (rq *replyQueue) deliver(d domain.Delivery) {
	select {
	case rq.ch <- d:
	default:
		// Queue abandoned or consumer too slow; drop rather than block
		// the publisher (matches "no operation blocks indefinitely").
	}
}

func (rq *replyQueue) Close() {
	rq.closeOnce.Do(func() {
		rq.exchange.removeReplyQueue(rq.name)
		close(rq.ch)
	})
}
