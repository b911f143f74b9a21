package aggregate

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"sort"
	"time"

	"go.uber.org/zap"

	"exposurePool/internal/model"
	"exposurePool/internal/storage"
)

const (
	eventIssued            = "IssuedEToken"
	eventRedeemed          = "RedeemedEToken"
	eventRebalancedTranche = "RebalancedTranche"
	eventSetFeeRate        = "SetFeeRate"

	feeMethodApprox = "approx_from_fee_rate"
	feeMethodNone   = "unavailable"
)

// PoolDecimals are the token decimals used to render a pool's amounts.
type PoolDecimals struct {
	A uint8
	B uint8
}

// Config controls aggregation behavior.
type Config struct {
	WindowSeconds uint64
	BatchSize     int
	RecomputeFrom uint64
	StateStore    StateStore
	// FeeRates seeds per-pool fee rates (1e18 = 100%) for streams that do
	// not start with a SetFeeRate event.
	FeeRates map[string]*big.Int
	// Decimals renders amounts per pool, with shares at 18 decimals. Pools
	// without an entry keep raw integer units.
	Decimals map[string]PoolDecimals
}

// MetricsStore persists window metrics.
type MetricsStore interface {
	UpsertWindowMetrics(ctx context.Context, metrics []model.TrancheWindowMetrics) error
}

// Aggregator aggregates typed events into eToken window metrics.
type Aggregator struct {
	cfg          Config
	store        MetricsStore
	logger       *zap.Logger
	feeRates     map[string]*big.Int
	accumulators map[string]*Accumulator
}

func NewAggregator(cfg Config, store MetricsStore, logger *zap.Logger) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}

	feeRates := make(map[string]*big.Int, len(cfg.FeeRates))
	for pool, rate := range cfg.FeeRates {
		feeRates[addressKey(pool)] = rate
	}
	decimals := make(map[string]PoolDecimals, len(cfg.Decimals))
	for pool, d := range cfg.Decimals {
		decimals[addressKey(pool)] = d
	}
	cfg.Decimals = decimals

	return &Aggregator{
		cfg:          cfg,
		store:        store,
		logger:       logger,
		feeRates:     feeRates,
		accumulators: make(map[string]*Accumulator),
	}
}

// Run executes aggregation over a typed events JSONL file.
func (a *Aggregator) Run(ctx context.Context, inputPath string) error {
	if a.store == nil {
		return fmt.Errorf("store is nil")
	}
	if a.cfg.WindowSeconds == 0 {
		return fmt.Errorf("window seconds must be > 0")
	}
	if a.cfg.BatchSize <= 0 {
		a.cfg.BatchSize = 1000
	}

	startTs, err := a.loadStartTimestamp(ctx)
	if err != nil {
		return err
	}

	batch := make([]model.TrancheWindowMetrics, 0, a.cfg.BatchSize)
	maxTs := startTs
	var total, written, skipped, failed int

	err = storage.ScanJSONL(inputPath, func(line []byte) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		total++

		var event model.TypedEvent
		if err := json.Unmarshal(line, &event); err != nil {
			failed++
			a.logger.Warn("decode typed event", zap.Error(err))
			return nil
		}

		if event.EventName == eventSetFeeRate {
			a.trackFeeRate(event)
			return nil
		}
		if !isTrancheEvent(event) {
			skipped++
			return nil
		}
		if event.Timestamp <= startTs {
			skipped++
			return nil
		}

		start := windowStart(event.Timestamp, a.cfg.WindowSeconds)
		end := start + a.cfg.WindowSeconds

		key := addressKey(event.Field("eToken"))
		acc := a.accumulators[key]
		if acc == nil {
			acc = NewAccumulator(event, start, end)
			a.accumulators[key] = acc
		} else if acc.WindowStart != start {
			batch = append(batch, a.flushAccumulator(acc))
			written++
			acc = NewAccumulator(event, start, end)
			a.accumulators[key] = acc
		}

		if err := acc.AddEvent(event, a.feeRates[addressKey(event.Address)]); err != nil {
			failed++
			a.logger.Warn("aggregate event", zap.Error(err), zap.String("etoken", event.Field("eToken")), zap.String("event", event.EventName))
			return nil
		}

		if event.Timestamp > maxTs {
			maxTs = event.Timestamp
		}

		if len(batch) >= a.cfg.BatchSize {
			if err := a.store.UpsertWindowMetrics(ctx, batch); err != nil {
				return err
			}
			batch = batch[:0]

			if err := a.saveState(ctx); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	keys := make([]string, 0, len(a.accumulators))
	for key := range a.accumulators {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		batch = append(batch, a.flushAccumulator(a.accumulators[key]))
		written++
	}
	a.accumulators = make(map[string]*Accumulator)

	if len(batch) > 0 {
		if err := a.store.UpsertWindowMetrics(ctx, batch); err != nil {
			return err
		}
	}

	a.cfg.RecomputeFrom = maxTs
	if err := a.saveState(ctx); err != nil {
		return err
	}

	a.logger.Info("aggregate complete",
		zap.Int("total", total),
		zap.Int("windows", written),
		zap.Int("skipped", skipped),
		zap.Int("failed", failed),
	)

	return nil
}

// isTrancheEvent reports pool-emitted tranche events. The periphery mirrors
// issue and redeem events with an ePool field; those are not counted twice.
func isTrancheEvent(event model.TypedEvent) bool {
	switch event.EventName {
	case eventIssued, eventRedeemed, eventRebalancedTranche:
		return event.Field("ePool") == "" && event.Field("eToken") != ""
	default:
		return false
	}
}

func (a *Aggregator) trackFeeRate(event model.TypedEvent) {
	rate, err := parseBigInt(event.Field("feeRate"))
	if err != nil {
		a.logger.Warn("fee rate", zap.Error(err), zap.String("pool", event.Address))
		return
	}
	a.feeRates[addressKey(event.Address)] = rate
}

func (a *Aggregator) loadStartTimestamp(ctx context.Context) (uint64, error) {
	if a.cfg.RecomputeFrom > 0 {
		return a.cfg.RecomputeFrom - 1, nil
	}
	if a.cfg.StateStore == nil {
		return 0, nil
	}
	last, ok, err := a.cfg.StateStore.Load(ctx)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	return last, nil
}

func (a *Aggregator) saveState(ctx context.Context) error {
	if a.cfg.StateStore == nil {
		return nil
	}

	if len(a.accumulators) == 0 {
		return a.cfg.StateStore.Save(ctx, a.cfg.RecomputeFrom)
	}

	safeTs := minOpenWindowStart(a.accumulators)
	if safeTs > 0 {
		safeTs = safeTs - 1
	}
	if safeTs == 0 {
		safeTs = a.cfg.RecomputeFrom
	}
	return a.cfg.StateStore.Save(ctx, safeTs)
}

func (a *Aggregator) flushAccumulator(acc *Accumulator) model.TrancheWindowMetrics {
	decimals, ok := a.cfg.Decimals[addressKey(acc.PoolAddress)]
	var shares uint8
	if ok {
		shares = shareDecimals
	}
	feeMethod := feeMethodNone
	if acc.FeeRateKnown {
		feeMethod = feeMethodApprox
	}

	return model.TrancheWindowMetrics{
		ChainID:        acc.ChainID,
		PoolAddress:    acc.PoolAddress,
		EToken:         acc.EToken,
		WindowSizeSecs: int64(a.cfg.WindowSeconds),
		WindowStart:    time.Unix(int64(acc.WindowStart), 0).UTC(),
		WindowEnd:      time.Unix(int64(acc.WindowEnd), 0).UTC(),
		IssueCount:     acc.IssueCount,
		RedeemCount:    acc.RedeemCount,
		RebalanceCount: acc.RebalanceCount,
		IssuedShares:   formatTokenAmount(acc.IssuedShares, shares),
		RedeemedShares: formatTokenAmount(acc.RedeemedShares, shares),
		VolumeA:        formatTokenAmount(acc.VolumeA, decimals.A),
		VolumeB:        formatTokenAmount(acc.VolumeB, decimals.B),
		RebalancedA:    formatTokenAmount(acc.RebalancedA, decimals.A),
		RebalancedB:    formatTokenAmount(acc.RebalancedB, decimals.B),
		FeeA:           formatTokenAmount(acc.FeeA, decimals.A),
		FeeB:           formatTokenAmount(acc.FeeB, decimals.B),
		FeeMethod:      feeMethod,
	}
}
