package keeper

import (
	"context"
	"time"

	"go.uber.org/zap"

	"exposurePool/internal/fault"
)

const defaultRetryDelay = 100 * time.Millisecond

// backoff retries keeper work within one tick. Delays double from base and
// never exceed ceiling, so a retry cannot outlive the tick interval.
type backoff struct {
	retries int
	base    time.Duration
	ceiling time.Duration
	logger  *zap.Logger
}

func newBackoff(cfg RunConfig, logger *zap.Logger) backoff {
	b := backoff{retries: cfg.MaxRetries, base: cfg.RetryBackoff, ceiling: cfg.Interval, logger: logger}
	if b.retries < 0 {
		b.retries = 0
	}
	if b.base <= 0 {
		b.base = defaultRetryDelay
	}
	if b.ceiling > 0 && b.base > b.ceiling {
		b.base = b.ceiling
	}
	return b
}

// upkeep retries fn only while it fails with a policy fault: a pool that is
// not yet eligible or a slippage bound may clear on a later block. Every
// other kind is handed back at once for the runner to classify.
func (b backoff) upkeep(ctx context.Context, fn func() error) error {
	return b.run(ctx, "upkeep", fault.Retryable, func(context.Context) error {
		return fn()
	})
}

// refresh retries any oracle error.
func (b backoff) refresh(ctx context.Context, fn func(context.Context) error) error {
	return b.run(ctx, "oracle refresh", nil, fn)
}

func (b backoff) run(ctx context.Context, op string, retryable func(error) bool, fn func(context.Context) error) error {
	delay := b.base
	for attempt := 1; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if attempt > b.retries || (retryable != nil && !retryable(err)) {
			return err
		}
		b.logger.Debug("retry",
			zap.String("op", op),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.String("kind", fault.KindOf(err).String()),
			zap.Error(err),
		)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		delay *= 2
		if b.ceiling > 0 && delay > b.ceiling {
			delay = b.ceiling
		}
	}
}
