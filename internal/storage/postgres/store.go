package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"exposurePool/internal/model"
)

// Store provides Postgres persistence for tranche snapshots, window
// metrics and engine progress.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Migrate creates the tables the store writes to.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// UpsertSnapshots inserts or updates tranche snapshots keyed by capture time.
func (s *Store) UpsertSnapshots(ctx context.Context, snaps []model.TrancheSnapshot) error {
	if len(snaps) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, snap := range snaps {
		batch.Queue(`
			INSERT INTO tranche_snapshots (
				chain_id, pool_address, etoken, tranche_index, target_ratio, current_ratio,
				reserve_a, reserve_b, total_supply, rate, last_rebalanced_at, captured_at, created_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,now())
			ON CONFLICT (chain_id, etoken, captured_at)
			DO UPDATE SET
				current_ratio = EXCLUDED.current_ratio,
				reserve_a = EXCLUDED.reserve_a,
				reserve_b = EXCLUDED.reserve_b,
				total_supply = EXCLUDED.total_supply,
				rate = EXCLUDED.rate,
				last_rebalanced_at = EXCLUDED.last_rebalanced_at
		`,
			int64(snap.ChainID),
			snap.PoolAddress,
			snap.EToken,
			snap.Index,
			snap.TargetRatio,
			snap.CurrentRatio,
			snap.ReserveA,
			snap.ReserveB,
			snap.TotalSupply,
			snap.Rate,
			int64(snap.LastRebalancedAt),
			snap.CapturedAt,
		)
	}
	return s.sendBatch(ctx, batch, len(snaps))
}

// UpsertWindowMetrics inserts or updates per-eToken window metrics.
func (s *Store) UpsertWindowMetrics(ctx context.Context, metrics []model.TrancheWindowMetrics) error {
	if len(metrics) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, m := range metrics {
		batch.Queue(`
			INSERT INTO tranche_window_metrics (
				chain_id, pool_address, etoken, window_size_seconds, window_start_ts, window_end_ts,
				issue_count, redeem_count, rebalance_count, issued_shares, redeemed_shares,
				volume_a, volume_b, rebalanced_a, rebalanced_b, fee_a, fee_b, fee_method,
				created_at, updated_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,now(),now())
			ON CONFLICT (chain_id, etoken, window_size_seconds, window_start_ts)
			DO UPDATE SET
				window_end_ts = EXCLUDED.window_end_ts,
				issue_count = EXCLUDED.issue_count,
				redeem_count = EXCLUDED.redeem_count,
				rebalance_count = EXCLUDED.rebalance_count,
				issued_shares = EXCLUDED.issued_shares,
				redeemed_shares = EXCLUDED.redeemed_shares,
				volume_a = EXCLUDED.volume_a,
				volume_b = EXCLUDED.volume_b,
				rebalanced_a = EXCLUDED.rebalanced_a,
				rebalanced_b = EXCLUDED.rebalanced_b,
				fee_a = EXCLUDED.fee_a,
				fee_b = EXCLUDED.fee_b,
				fee_method = EXCLUDED.fee_method,
				updated_at = now()
		`,
			int64(m.ChainID),
			m.PoolAddress,
			m.EToken,
			m.WindowSizeSecs,
			m.WindowStart,
			m.WindowEnd,
			int64(m.IssueCount),
			int64(m.RedeemCount),
			int64(m.RebalanceCount),
			m.IssuedShares,
			m.RedeemedShares,
			m.VolumeA,
			m.VolumeB,
			m.RebalancedA,
			m.RebalancedB,
			m.FeeA,
			m.FeeB,
			m.FeeMethod,
		)
	}
	return s.sendBatch(ctx, batch, len(metrics))
}

func (s *Store) sendBatch(ctx context.Context, batch *pgx.Batch, n int) error {
	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := 0; i < n; i++ {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// LoadState returns last_processed_ts for a name.
func (s *Store) LoadState(ctx context.Context, name string) (uint64, bool, error) {
	if name == "" {
		return 0, false, fmt.Errorf("state name required")
	}
	var ts int64
	row := s.pool.QueryRow(ctx, `SELECT last_processed_ts FROM engine_state WHERE name=$1`, name)
	if err := row.Scan(&ts); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return uint64(ts), true, nil
}

// SaveState upserts last_processed_ts for a name.
func (s *Store) SaveState(ctx context.Context, name string, ts uint64) error {
	if name == "" {
		return fmt.Errorf("state name required")
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO engine_state (name, last_processed_ts, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (name) DO UPDATE
		SET last_processed_ts = EXCLUDED.last_processed_ts, updated_at = now()
	`, name, int64(ts))
	return err
}

// SnapshotSink adapts the store to storage.SnapshotStore, writing with ctx.
func (s *Store) SnapshotSink(ctx context.Context) *SnapshotSink {
	return &SnapshotSink{ctx: ctx, store: s}
}

// SnapshotSink writes tranche snapshots through a Store.
type SnapshotSink struct {
	ctx   context.Context
	store *Store
}

func (s *SnapshotSink) PutSnapshots(snaps []model.TrancheSnapshot) error {
	return s.store.UpsertSnapshots(s.ctx, snaps)
}
