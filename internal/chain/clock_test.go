package chain

import (
	"context"
	"errors"
	"testing"
)

type fakeHead struct {
	ts  uint64
	err error
}

func (f *fakeHead) LatestTimestamp(ctx context.Context) (uint64, error) {
	return f.ts, f.err
}

func TestHeadClockSync(t *testing.T) {
	src := &fakeHead{ts: 1700000000}
	clock := NewHeadClock(src)
	if clock.Now() == 0 {
		t.Fatalf("unsynced clock should read the wall clock")
	}

	if err := clock.Sync(context.Background()); err != nil {
		t.Fatalf("sync: %v", err)
	}
	if got := clock.Now(); got != 1700000000 {
		t.Fatalf("now: got %d", got)
	}

	src.ts = 1600000000
	if err := clock.Sync(context.Background()); err != nil {
		t.Fatalf("sync: %v", err)
	}
	if got := clock.Now(); got != 1700000000 {
		t.Fatalf("clock moved backwards: %d", got)
	}

	src.err = errors.New("rpc down")
	if err := clock.Sync(context.Background()); err == nil {
		t.Fatalf("expected sync error")
	}
	if got := clock.Now(); got != 1700000000 {
		t.Fatalf("failed sync changed time: %d", got)
	}
}
