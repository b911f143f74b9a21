package keeper

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"exposurePool/internal/fault"
	"exposurePool/internal/oracle"
	"exposurePool/internal/txn"
)

// RunConfig holds runtime settings for the keeper loop.
type RunConfig struct {
	Keeper            common.Address
	Interval          time.Duration
	MaxRetries        int
	RetryBackoff      time.Duration
	CheckpointPath    string
	CheckpointEnabled bool
	// MaxUpkeeps stops the loop after that many upkeeps; zero runs until
	// the context ends.
	MaxUpkeeps uint64
}

// Refresher pulls a fresh oracle answer before each tick.
type Refresher interface {
	Refresh(ctx context.Context) (oracle.Round, error)
}

// Upkeeper is the adapter surface the runner polls.
type Upkeeper interface {
	CheckUpkeep() (bool, []byte, error)
	PerformUpkeep(caller common.Address, performData []byte) error
}

// Runner polls the adapter and performs upkeeps on a fixed interval.
type Runner struct {
	cfg        RunConfig
	env        *txn.Env
	adapter    Upkeeper
	oracle     Refresher
	metrics    *Metrics
	logger     *zap.Logger
	checkpoint *CheckpointStore
	retry      backoff
	state      Checkpoint
}

// NewRunner builds a Runner. refresher and metrics may be nil.
func NewRunner(cfg RunConfig, env *txn.Env, adapter Upkeeper, refresher Refresher, metrics *Metrics, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		cfg:        cfg,
		env:        env,
		adapter:    adapter,
		oracle:     refresher,
		metrics:    metrics,
		logger:     logger,
		checkpoint: NewCheckpointStore(cfg.CheckpointPath, cfg.CheckpointEnabled),
		retry:      newBackoff(cfg, logger),
	}
}

// State returns the progress recorded so far.
func (r *Runner) State() Checkpoint {
	return r.state
}

// Run executes the keeper loop until ctx ends, MaxUpkeeps is reached or a
// non-recoverable error occurs.
func (r *Runner) Run(ctx context.Context) error {
	if r.env == nil {
		return fmt.Errorf("env is nil")
	}
	if r.adapter == nil {
		return fmt.Errorf("adapter is nil")
	}
	if r.cfg.Interval <= 0 {
		return fmt.Errorf("interval must be greater than zero")
	}

	cp, ok, err := r.checkpoint.Load()
	if err != nil {
		return err
	}
	if ok {
		r.state = cp
		r.logger.Info("resume from checkpoint", zap.Uint64("upkeeps", cp.Upkeeps), zap.Uint64("last_upkeep_at", cp.LastUpkeepAt))
	}
	startUpkeeps := r.state.Upkeeps

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()
	for {
		if _, err := r.Tick(ctx); err != nil {
			return err
		}
		if r.cfg.MaxUpkeeps > 0 && r.state.Upkeeps-startUpkeeps >= r.cfg.MaxUpkeeps {
			r.logger.Info("upkeep limit reached", zap.Uint64("upkeeps", r.state.Upkeeps))
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Tick refreshes the oracle and performs at most one upkeep. It reports
// whether an upkeep was performed. Only errors that no later tick can fix
// are returned.
func (r *Runner) Tick(ctx context.Context) (bool, error) {
	r.metrics.ObserveTick()

	if r.oracle != nil {
		if err := r.refreshWithRetry(ctx); err != nil {
			if ctx.Err() != nil {
				return false, ctx.Err()
			}
			r.metrics.ObserveOracleFailure()
			r.logger.Warn("oracle refresh failed, skipping tick", zap.Error(err))
			return false, nil
		}
	}

	var pool common.Address
	err := r.retry.upkeep(ctx, func() error {
		pool = common.Address{}
		return r.env.Submit(func() error {
			needed, data, err := r.adapter.CheckUpkeep()
			if err != nil || !needed {
				return err
			}
			if pool, err = DecodePerformData(data); err != nil {
				return err
			}
			return r.adapter.PerformUpkeep(r.cfg.Keeper, data)
		})
	})
	if err != nil {
		return false, r.classify(ctx, pool, err)
	}
	if pool == (common.Address{}) {
		r.logger.Debug("no upkeep needed")
		return false, nil
	}

	now := r.env.Now()
	r.state.Upkeeps++
	r.state.LastUpkeepAt = now
	r.state.LastPool = pool.Hex()
	r.metrics.ObserveUpkeep(pool.Hex(), now)
	r.logger.Info("upkeep complete", zap.String("epool", pool.Hex()), zap.Uint64("upkeeps", r.state.Upkeeps))
	if err := r.checkpoint.Save(r.state); err != nil {
		return true, err
	}
	return true, nil
}

func (r *Runner) classify(ctx context.Context, pool common.Address, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ctx.Err()
	}
	kind := fault.KindOf(err)
	r.metrics.ObserveFailure(kind.String())
	log := r.logger.With(zap.String("epool", pool.Hex()), zap.String("kind", kind.String()), zap.Error(err))
	switch kind {
	case fault.Policy, fault.Insufficiency, fault.State:
		log.Warn("upkeep skipped")
		return nil
	default:
		log.Error("upkeep aborted")
		return fmt.Errorf("perform upkeep: %w", err)
	}
}

func (r *Runner) refreshWithRetry(ctx context.Context) error {
	return r.retry.refresh(ctx, func(ctx context.Context) error {
		round, err := r.oracle.Refresh(ctx)
		if err != nil {
			r.logger.Warn("oracle refresh attempt failed", zap.Error(err))
			return err
		}
		if round.Answer != nil {
			r.metrics.SetRate(decimal.NewFromBigInt(round.Answer.ToBig(), -18).InexactFloat64())
		}
		return nil
	})
}
