package chain

import (
	"context"
	"sync"
	"time"
)

// HeadSource reports the head block timestamp.
type HeadSource interface {
	LatestTimestamp(ctx context.Context) (uint64, error)
}

// HeadClock serves the last synced head block time. Before the first sync
// it reads the wall clock. Time never moves backwards.
type HeadClock struct {
	source HeadSource

	mu   sync.Mutex
	head uint64
}

func NewHeadClock(source HeadSource) *HeadClock {
	return &HeadClock{source: source}
}

// Sync pulls the latest head timestamp.
func (c *HeadClock) Sync(ctx context.Context) error {
	ts, err := c.source.LatestTimestamp(ctx)
	if err != nil {
		return err
	}
	c.mu.Lock()
	if ts > c.head {
		c.head = ts
	}
	c.mu.Unlock()
	return nil
}

// Now returns the synced head time in unix seconds.
func (c *HeadClock) Now() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.head == 0 {
		return uint64(time.Now().Unix())
	}
	return c.head
}
