// Package reqrep implements the request/response and quorum-vote
// primitives the join/rejoin and roll protocols are built on.
package reqrep

import (
	"fmt"
	"sync/atomic"
)

// IDGenerator mints unique correlation identifiers for one peer's
// outstanding requests. Request correlation counters are process-scoped —
// encapsulated here rather than as a package-level global so multiple
// Cores in the same process never collide on correlation IDs.
type IDGenerator struct {
	prefix  string
	counter uint64
}

// NewIDGenerator creates a generator that prefixes every ID (useful for
// telling requests apart in logs across peers sharing one test process).
func NewIDGenerator(prefix string) *IDGenerator {
	return &IDGenerator{prefix: prefix}
}

// Next returns a fresh, monotonically increasing correlation ID.
func (g *IDGenerator) Next() string {
	n := atomic.AddUint64(&g.counter, 1)
	return fmt.Sprintf("%s-%d", g.prefix, n)
}
