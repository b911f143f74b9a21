package postgres

var schema = []string{
	`CREATE TABLE IF NOT EXISTS tranche_snapshots (
		chain_id           BIGINT      NOT NULL,
		pool_address       TEXT        NOT NULL,
		etoken             TEXT        NOT NULL,
		tranche_index      INTEGER     NOT NULL,
		target_ratio       NUMERIC     NOT NULL,
		current_ratio      NUMERIC     NOT NULL,
		reserve_a          NUMERIC     NOT NULL,
		reserve_b          NUMERIC     NOT NULL,
		total_supply       NUMERIC     NOT NULL,
		rate               NUMERIC     NOT NULL,
		last_rebalanced_at BIGINT      NOT NULL,
		captured_at        TIMESTAMPTZ NOT NULL,
		created_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (chain_id, etoken, captured_at)
	)`,
	`CREATE TABLE IF NOT EXISTS tranche_window_metrics (
		chain_id            BIGINT      NOT NULL,
		pool_address        TEXT        NOT NULL,
		etoken              TEXT        NOT NULL,
		window_size_seconds BIGINT      NOT NULL,
		window_start_ts     TIMESTAMPTZ NOT NULL,
		window_end_ts       TIMESTAMPTZ NOT NULL,
		issue_count         BIGINT      NOT NULL,
		redeem_count        BIGINT      NOT NULL,
		rebalance_count     BIGINT      NOT NULL,
		issued_shares       NUMERIC     NOT NULL,
		redeemed_shares     NUMERIC     NOT NULL,
		volume_a            NUMERIC     NOT NULL,
		volume_b            NUMERIC     NOT NULL,
		rebalanced_a        NUMERIC     NOT NULL,
		rebalanced_b        NUMERIC     NOT NULL,
		fee_a               NUMERIC     NOT NULL,
		fee_b               NUMERIC     NOT NULL,
		fee_method          TEXT        NOT NULL,
		created_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (chain_id, etoken, window_size_seconds, window_start_ts)
	)`,
	`CREATE TABLE IF NOT EXISTS engine_state (
		name              TEXT        PRIMARY KEY,
		last_processed_ts BIGINT      NOT NULL,
		updated_at        TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
}
