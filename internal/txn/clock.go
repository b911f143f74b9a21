package txn

import (
	"sync"
	"time"
)

// Clock supplies block time in unix seconds.
type Clock interface {
	Now() uint64
}

// SystemClock reads the wall clock.
type SystemClock struct{}

// Now returns the current unix time.
func (SystemClock) Now() uint64 {
	return uint64(time.Now().Unix())
}

// ManualClock is a clock advanced explicitly, used by scenarios and tests.
type ManualClock struct {
	mu  sync.Mutex
	now uint64
}

// NewManualClock returns a clock starting at start.
func NewManualClock(start uint64) *ManualClock {
	return &ManualClock{now: start}
}

// Now returns the current manual time.
func (c *ManualClock) Now() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Set moves the clock to ts.
func (c *ManualClock) Set(ts uint64) {
	c.mu.Lock()
	c.now = ts
	c.mu.Unlock()
}

// Advance moves the clock forward by secs.
func (c *ManualClock) Advance(secs uint64) {
	c.mu.Lock()
	c.now += secs
	c.mu.Unlock()
}
