package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"exposurePool/internal/chain"
	"exposurePool/internal/config"
	"exposurePool/internal/keeper"
	"exposurePool/internal/oracle"
	"exposurePool/internal/scenario"
	"exposurePool/internal/storage"
	"exposurePool/internal/txn"
)

func runKeeper(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadKeeper(cfgFile, cmd.Flags())
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

	opts := scenario.Options{Logger: logger, Clock: txn.SystemClock{}}
	var refresher keeper.Refresher
	if cfg.Aggregator != "" {
		chainClient, err := chain.NewClient(ctx, cfg.RPCURL)
		if err != nil {
			return fmt.Errorf("connect rpc: %w", err)
		}
		defer chainClient.Close()

		chainID, err := chainClient.GetChainID(ctx)
		if err != nil {
			return fmt.Errorf("get chain id: %w", err)
		}
		if !chainID.IsUint64() {
			return fmt.Errorf("chain id does not fit in uint64: %s", chainID)
		}
		sc.ChainID = chainID.Uint64()

		live := &liveOracle{
			clock: chain.NewHeadClock(chainClient),
			feed:  oracle.NewFeed(chainClient, common.HexToAddress(cfg.Aggregator), logger),
		}
		if _, err := live.Refresh(ctx); err != nil {
			return fmt.Errorf("initial oracle refresh: %w", err)
		}
		opts.Aggregator = live.feed
		opts.Clock = live.clock
		refresher = live
	}

	world, err := scenario.Build(sc, opts)
	if err != nil {
		return err
	}
	if world.Adapter == nil {
		return fmt.Errorf("scenario %q has no pair, so no keeper adapter is deployed", sc.Name)
	}
	if _, err := world.Run(ctx); err != nil {
		return fmt.Errorf("scenario setup: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := keeper.NewMetrics(reg)

	runner := keeper.NewRunner(keeper.RunConfig{
		Keeper:            world.Keeper,
		Interval:          cfg.Interval,
		MaxRetries:        cfg.MaxRetries,
		RetryBackoff:      cfg.RetryBackoff,
		CheckpointPath:    cfg.Checkpoint,
		CheckpointEnabled: cfg.CheckpointEnabled,
		MaxUpkeeps:        cfg.MaxUpkeeps,
	}, world.Env, world.Adapter, refresher, metrics, logger)

	logger.Info("keeper start",
		zap.String("scenario", sc.Name),
		zap.String("adapter", world.Adapter.Address().Hex()),
		zap.String("keeper", world.Keeper.Hex()),
		zap.Bool("live_oracle", refresher != nil),
		zap.Duration("interval", cfg.Interval),
		zap.String("metrics_addr", cfg.MetricsAddr),
		zap.Bool("checkpoint_enabled", cfg.CheckpointEnabled),
		zap.String("checkpoint", cfg.Checkpoint),
	)

	g, gctx := errgroup.WithContext(ctx)
	runCtx, cancel := context.WithCancel(gctx)
	defer cancel()

	g.Go(func() error {
		defer cancel()
		err := runner.Run(runCtx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	if cfg.MetricsAddr != "" {
		server := &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           metricsMux(reg),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-runCtx.Done()
			shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
			defer done()
			return server.Shutdown(shutdownCtx)
		})
	}

	runErr := g.Wait()

	if cfg.Out != "" {
		if err := storage.NewJsonlStorage(cfg.Out).PutLogBatch(world.Env.DrainLogs()); err != nil {
			return errors.Join(runErr, fmt.Errorf("store logs: %w", err))
		}
	}

	state := runner.State()
	logger.Info("keeper stopped",
		zap.Uint64("upkeeps", state.Upkeeps),
		zap.Uint64("last_upkeep_at", state.LastUpkeepAt),
		zap.String("last_pool", state.LastPool),
		zap.Error(runErr),
	)
	return runErr
}

func metricsMux(reg *prometheus.Registry) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

// liveOracle syncs block time with the chain head before each feed refresh.
type liveOracle struct {
	clock *chain.HeadClock
	feed  *oracle.Feed
}

func (l *liveOracle) Refresh(ctx context.Context) (oracle.Round, error) {
	if err := l.clock.Sync(ctx); err != nil {
		return oracle.Round{}, fmt.Errorf("sync head: %w", err)
	}
	return l.feed.Refresh(ctx)
}
