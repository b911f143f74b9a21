package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"exposurePool/internal/config"
	"exposurePool/internal/model"
	"exposurePool/internal/scenario"
	"exposurePool/internal/storage"
	"exposurePool/internal/storage/postgres"
)

func runSimulate(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadSimulate(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	sc, err := scenario.Load(cfg.Scenario)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	world, err := scenario.Build(sc, scenario.Options{Logger: logger})
	if err != nil {
		return err
	}

	logger.Info("simulate start",
		zap.String("scenario", sc.Name),
		zap.Int("steps", len(sc.Steps)),
		zap.String("out", cfg.Out),
		zap.String("pg_dsn", redactDSN(cfg.PGDSN)),
	)

	results, runErr := world.Run(ctx)

	logs := world.Env.DrainLogs()
	sink := storage.NewJsonlStorage(cfg.Out)
	if err := sink.PutLogBatch(logs); err != nil {
		return errors.Join(runErr, fmt.Errorf("store logs: %w", err))
	}

	snaps, err := world.Snapshots()
	if err != nil {
		return errors.Join(runErr, fmt.Errorf("snapshot tranches: %w", err))
	}
	if err := storeSnapshots(ctx, cfg, snaps); err != nil {
		return errors.Join(runErr, err)
	}

	logger.Info("simulate complete",
		zap.Int("steps_run", len(results)),
		zap.Int("logs", len(logs)),
		zap.Int("tranches", len(snaps)),
		zap.Error(runErr),
	)
	return runErr
}

func storeSnapshots(ctx context.Context, cfg config.SimulateConfig, snaps []model.TrancheSnapshot) error {
	var sinks []storage.SnapshotStore
	if cfg.Snapshots != "" {
		sinks = append(sinks, storage.NewJsonlStorage(cfg.Snapshots))
	}
	if cfg.PGDSN != "" {
		store, err := postgres.NewStore(ctx, cfg.PGDSN)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer store.Close()
		if cfg.Migrate {
			if err := store.Migrate(ctx); err != nil {
				return err
			}
		}
		sinks = append(sinks, store.SnapshotSink(ctx))
	}

	for _, sink := range sinks {
		if err := sink.PutSnapshots(snaps); err != nil {
			return fmt.Errorf("store snapshots: %w", err)
		}
	}
	return nil
}
