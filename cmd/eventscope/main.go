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

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"eventscope/internal/api"
	"eventscope/internal/bus"
	"eventscope/internal/chain"
	"eventscope/internal/config"
	"eventscope/internal/decoder"
	"eventscope/internal/indexer"
	"eventscope/internal/poller"
	"eventscope/internal/retry"
	"eventscope/internal/store/postgres"
)

func main() {
	root := &cobra.Command{
		Use:          "eventscope",
		Short:        "Live chain event indexer",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the indexer and query API",
		RunE:  run,
	}

	runCmd.Flags().String("rpc", "", "chain RPC URL")
	runCmd.Flags().String("pg-dsn", "", "Postgres DSN")
	runCmd.Flags().Uint64("start-block", 0, "block to start scanning from")
	runCmd.Flags().Duration("poll-interval", 5*time.Second, "sleep between poll cycles")
	runCmd.Flags().Uint64("batch-size", 100, "blocks per log range query")
	runCmd.Flags().StringSlice("address", nil, "contract address filter (comma-separated, empty means all)")
	runCmd.Flags().Int("max-retries", 3, "chain query retry attempts")
	runCmd.Flags().Duration("retry-backoff", time.Second, "initial retry backoff")
	runCmd.Flags().String("http-addr", ":8080", "query API listen address")
	runCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(runCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.RPCURL == "" {
		return fmt.Errorf("rpc url is required")
	}
	if cfg.PostgresDSN == "" {
		return fmt.Errorf("pg dsn is required")
	}

	addresses, err := chain.ParseAddresses(cfg.Addresses)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	chainClient, err := chain.NewClient(ctx, cfg.RPCURL, addresses)
	if err != nil {
		return fmt.Errorf("connect rpc: %w", err)
	}
	defer chainClient.Close()

	if err := postgres.Migrate(cfg.PostgresDSN); err != nil {
		return err
	}
	eventStore, err := postgres.NewStore(ctx, cfg.PostgresDSN)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer eventStore.Close()

	dec, err := decoder.New()
	if err != nil {
		return err
	}

	eventBus := bus.New(logger)

	lastStored, stored, err := eventStore.HighestBlock(ctx)
	if err != nil {
		return fmt.Errorf("read resume position: %w", err)
	}
	startBlock := poller.ResumeStart(cfg.StartBlock, lastStored, stored)
	if stored {
		logger.Info("resuming from persisted position",
			zap.Uint64("highest_stored_block", lastStored),
			zap.Uint64("start_block", startBlock),
		)
	}

	blockPoller := poller.New(poller.Config{
		StartBlock: startBlock,
		BatchSize:  cfg.BatchSize,
		Interval:   cfg.PollInterval,
		Backoff: retry.Backoff{
			MaxRetries: cfg.MaxRetries,
			BaseDelay:  cfg.RetryBackoff,
			MaxDelay:   30 * time.Second,
			Multiplier: 2,
		},
	}, chainClient, logger)

	service := indexer.New(blockPoller, chainClient, dec, eventStore, eventBus, logger)

	stream := api.NewEventStream(eventBus, logger)
	apiServer := api.NewServer(cfg.HTTPAddr, eventStore, service.Status, stream, logger)

	logger.Info("eventscope start",
		zap.String("rpc", cfg.RPCURL),
		zap.Uint64("start_block", startBlock),
		zap.Uint64("batch_size", cfg.BatchSize),
		zap.Duration("poll_interval", cfg.PollInterval),
		zap.Int("addresses", len(addresses)),
		zap.String("http_addr", cfg.HTTPAddr),
	)

	if err := service.Start(ctx); err != nil {
		return err
	}

	go func() {
		if err := apiServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api server failed", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("api shutdown", zap.Error(err))
	}
	service.Stop()

	logger.Info("shutdown complete")
	return nil
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
