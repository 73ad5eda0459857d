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
	"golang.org/x/sync/errgroup"

	"polymind/internal/chain"
	"polymind/internal/config"
	"polymind/internal/decoder"
	"polymind/internal/market"
	"polymind/internal/scanner"
	"polymind/internal/store"
)

func runScan(cmd *cobra.Command, _ []string) error {
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

	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	chainClient, err := chain.NewClient(ctx, cfg.RPCURL)
	if err != nil {
		return fmt.Errorf("connect rpc: %w", err)
	}
	defer chainClient.Close()

	st, err := store.NewStore(ctx, cfg.DSN)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer st.Close()

	if err := st.Init(ctx); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}

	resolver := market.NewResolver()
	gamma := market.NewClient(cfg.GammaURL, logger)
	syncer := market.NewSyncer(gamma, st, resolver, cfg.MarketLimit, logger)

	// Seed the resolver before the first batch so early trades get market
	// linkage. Trades decoded before a token is known are backfilled by
	// AttachMarketRefs on the next sync.
	if err := syncer.Sync(ctx); err != nil {
		logger.Warn("initial market sync failed, continuing without linkage", zap.Error(err))
	}

	dec := decoder.New(resolver, decoder.Exchanges())

	scan := scanner.New(scanner.Config{
		FromBlock:     cfg.FromBlock,
		BatchSize:     cfg.BatchSize,
		Confirmations: cfg.Confirmations,
		ReorgPadding:  cfg.ReorgPadding,
		MaxRetries:    cfg.MaxRetries,
		RetryBackoff:  cfg.RetryBackoff,
		PollInterval:  cfg.PollInterval,
		Continuous:    cfg.Continuous,
		Addresses:     decoder.Exchanges(),
		Topic0:        decoder.Topics(),
	}, chainClient, st, dec, logger)

	logger.Info("scanner start",
		zap.String("rpc", cfg.RPCURL),
		zap.Uint64("from", cfg.FromBlock),
		zap.Uint64("batch_size", cfg.BatchSize),
		zap.Uint64("confirmations", cfg.Confirmations),
		zap.Bool("continuous", cfg.Continuous),
		zap.String("run_id", scan.RunID()),
	)

	// The sync loop runs forever; once a one-shot scan catches up the whole
	// group is cancelled so the process can exit.
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	group, groupCtx := errgroup.WithContext(runCtx)
	group.Go(func() error {
		defer cancel()
		return scan.Run(groupCtx)
	})
	group.Go(func() error {
		return syncer.Run(groupCtx, cfg.SyncInterval)
	})

	err = group.Wait()
	unrecognized, malformed := scan.SkippedCounts()
	logger.Info("scanner exit",
		zap.String("state", scan.State().String()),
		zap.Uint64("unrecognized_skipped", unrecognized),
		zap.Uint64("malformed_skipped", malformed),
	)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
