package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	root := &cobra.Command{
		Use:          "epool",
		Short:        "Exposure pool engine",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	simulateCmd := &cobra.Command{
		Use:   "simulate",
		Short: "Deploy a scenario and run its steps",
		RunE:  runSimulate,
	}

	simulateCmd.Flags().String("scenario", "", "scenario YAML path")
	simulateCmd.Flags().String("out", "./data/events.jsonl", "output event logs JSONL")
	simulateCmd.Flags().String("snapshots", "", "optional tranche snapshots JSONL")
	simulateCmd.Flags().String("pg-dsn", "", "optional Postgres DSN for tranche snapshots")
	simulateCmd.Flags().Bool("migrate", true, "create Postgres tables before writing")
	simulateCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(simulateCmd)

	keeperCmd := &cobra.Command{
		Use:   "keeper",
		Short: "Run the keeper loop against a scenario",
		RunE:  runKeeper,
	}

	keeperCmd.Flags().String("scenario", "", "scenario YAML path")
	keeperCmd.Flags().String("rpc", "", "RPC URL for the price feed")
	keeperCmd.Flags().String("aggregator", "", "price feed aggregator address (requires --rpc)")
	keeperCmd.Flags().Duration("interval", 15*time.Second, "polling interval")
	keeperCmd.Flags().Int("max-retries", 5, "maximum retry attempts")
	keeperCmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	keeperCmd.Flags().String("checkpoint", "./data/keeper_checkpoint.json", "checkpoint file path")
	keeperCmd.Flags().Bool("checkpoint-enabled", true, "enable checkpointing")
	keeperCmd.Flags().Uint64("max-upkeeps", 0, "stop after this many upkeeps, 0 means no limit")
	keeperCmd.Flags().String("metrics-addr", ":9102", "Prometheus metrics listen address, empty disables")
	keeperCmd.Flags().String("out", "", "optional output event logs JSONL")
	keeperCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(keeperCmd)

	decodeCmd := &cobra.Command{
		Use:   "decode",
		Short: "Decode event logs into typed events",
		RunE:  runDecode,
	}

	decodeCmd.Flags().String("in", "", "input event logs JSONL")
	decodeCmd.Flags().String("out", "./data/typed_events.jsonl", "output typed events JSONL")
	decodeCmd.Flags().String("errors", "./data/decode_errors.jsonl", "decode errors JSONL")
	decodeCmd.Flags().StringSlice("contracts", nil, "contract ABIs to decode with (default all)")
	decodeCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(decodeCmd)

	aggregateCmd := &cobra.Command{
		Use:   "aggregate",
		Short: "Aggregate typed events into tranche window metrics",
		RunE:  runAggregate,
	}

	aggregateCmd.Flags().String("in", "", "input typed events JSONL")
	aggregateCmd.Flags().String("window", "5m", "aggregation window (e.g. 1m, 5m, 1h)")
	aggregateCmd.Flags().String("pg-dsn", "", "Postgres DSN")
	aggregateCmd.Flags().Int("batch-size", 1000, "batch size for DB writes")
	aggregateCmd.Flags().String("state-file", "", "optional local state file for progress tracking")
	aggregateCmd.Flags().String("state-name", "aggregate", "engine_state row name when no state file is set")
	aggregateCmd.Flags().String("recompute-from", "", "recompute from timestamp (unix seconds or RFC3339)")
	aggregateCmd.Flags().StringSlice("fee-rates", nil, "pool=feeRate seeds, 1e18-scaled")
	aggregateCmd.Flags().StringSlice("decimals", nil, "pool=decimalsA:decimalsB")
	aggregateCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(aggregateCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}

func redactDSN(dsn string) string {
	if dsn == "" {
		return dsn
	}
	return "***"
}
