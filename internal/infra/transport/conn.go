package transport

import (
	"sync"

	"github.com/htttp-net/htttp/internal/domain"
)

// conn is one peer's handle onto a shared exchange. It implements
// domain.Transport and tracks its own bindings so Close releases exactly
// what this peer registered, leaving other peers on the exchange intact.
type conn struct {
	exchange *exchange

	mu      sync.Mutex
	cancels []func()
	closed  bool
}

func (c *conn) Publish(exchangeName, routingKey string, body []byte, props domain.Properties) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return domain.ErrTransportClosed
	}
	c.exchange.publish(routingKey, body, props)
	return nil
}

func (c *conn) Bind(exchangeName, pattern string, handler domain.DeliveryHandler) (func(), error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, domain.ErrTransportClosed
	}
	c.mu.Unlock()

	cancel := c.exchange.bind(pattern, handler)

	c.mu.Lock()
	c.cancels = append(c.cancels, cancel)
	c.mu.Unlock()

	return cancel, nil
}

func (c *conn) DeclareReplyQueue(exchangeName string) (domain.ReplyQueue, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, domain.ErrTransportClosed
	}
	c.mu.Unlock()

	rq := c.exchange.declareReplyQueue()

	c.mu.Lock()
	c.cancels = append(c.cancels, rq.Close)
	c.mu.Unlock()

	return rq, nil
}

func (c *conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	cancels := c.cancels
	c.cancels = nil
	c.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
	return nil
}
