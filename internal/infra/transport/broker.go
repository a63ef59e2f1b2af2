// Package transport implements the pluggable topic pub/sub seam
// (domain.Transport) the engine is built against. It ships an in-memory
// broker in place of a real AMQP-like exchange. A production embedding
// application swaps this package for one backed by a real broker; the
// engine never notices.
package transport

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/htttp-net/htttp/internal/domain"
)

// Broker hosts zero or more named exchanges (one per gameID in practice).
// Safe for concurrent use by many peers.
type Broker struct {
	mu        sync.Mutex
	exchanges map[string]*exchange
}

// NewBroker creates an empty broker.
func NewBroker() *Broker {
	return &Broker{exchanges: make(map[string]*exchange)}
}

// Connect returns a domain.Transport bound to the named exchange,
// creating it on first use.
func (b *Broker) Connect(exchangeName string) domain.Transport {
	b.mu.Lock()
	defer b.mu.Unlock()

	ex, ok := b.exchanges[exchangeName]
	if !ok {
		ex = newExchange()
		b.exchanges[exchangeName] = ex
	}
	return &conn{exchange: ex}
}

// ─── exchange ───────────────────────────────────────────────────────────────

// binding is a single bound consumer. It owns a small inbox so that
// deliveries to it are processed strictly in arrival order per queue,
// even though publishers run concurrently.
type binding struct {
	id      uint64
	pattern string
	handler domain.DeliveryHandler
	inbox   chan domain.Delivery
	done    chan struct{}
}

func newBinding(id uint64, pattern string, handler domain.DeliveryHandler) *binding {
	b := &binding{
		id:      id,
		pattern: pattern,
		handler: handler,
		inbox:   make(chan domain.Delivery, 256),
		done:    make(chan struct{}),
	}
	go b.run()
	return b
}

func (b *binding) run() {
	for {
		select {
		case d := <-b.inbox:
			b.handler(d)
		case <-b.done:
			return
		}
	}
}

func (b *binding) stop() {
	select {
	case <-b.done:
	default:
		close(b.done)
	}
}

type exchange struct {
	mu       sync.RWMutex
	nextID   uint64
	bindings map[uint64]*binding
	replies  map[string]*replyQueue
}

func newExchange() *exchange {
	return &exchange{
		bindings: make(map[uint64]*binding),
		replies:  make(map[string]*replyQueue),
	}
}

func (e *exchange) bind(pattern string, handler domain.DeliveryHandler) func() {
	id := atomic.AddUint64(&e.nextID, 1)
	b := newBinding(id, pattern, handler)

	e.mu.Lock()
	e.bindings[id] = b
	e.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Lock()
			delete(e.bindings, id)
			e.mu.Unlock()
			b.stop()
		})
	}
}

func (e *exchange) declareReplyQueue() *replyQueue {
	id := atomic.AddUint64(&e.nextID, 1)
	rq := newReplyQueue(fmt.Sprintf("reply-%d", id), e)

	e.mu.Lock()
	e.replies[rq.name] = rq
	e.mu.Unlock()
	return rq
}

func (e *exchange) removeReplyQueue(name string) {
	e.mu.Lock()
	delete(e.replies, name)
	e.mu.Unlock()
}

// publish delivers body either to an exact-match reply queue (routingKey
// is a reply-queue name) or to every binding whose pattern matches
// routingKey. Each binding has its own inbox, so deliveries to it arrive
// strictly in publish order while independent bindings proceed
// concurrently.
func (e *exchange) publish(routingKey string, body []byte, props domain.Properties) {
	d := domain.Delivery{
		RoutingKey:    routingKey,
		Body:          body,
		ReplyTo:       props.ReplyTo,
		CorrelationID: props.CorrelationID,
	}

	e.mu.RLock()
	if rq, ok := e.replies[routingKey]; ok {
		e.mu.RUnlock()
		rq.deliver(d)
		return
	}

	matched := make([]*binding, 0, len(e.bindings))
	for _, b := range e.bindings {
		if matchTopic(b.pattern, routingKey) {
			matched = append(matched, b)
		}
	}
	e.mu.RUnlock()

	for _, b := range matched {
		select {
		case b.inbox <- d:
		case <-b.done:
		}
	}
}
