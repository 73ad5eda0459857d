package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"polymind/internal/config"
	"polymind/internal/market"
	"polymind/internal/store"
)

func runSyncMarkets(cmd *cobra.Command, _ []string) error {
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

	if cfg.DSN == "" {
		return fmt.Errorf("database dsn is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.NewStore(ctx, cfg.DSN)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer st.Close()

	if err := st.Init(ctx); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}

	gamma := market.NewClient(cfg.GammaURL, logger)
	syncer := market.NewSyncer(gamma, st, market.NewResolver(), cfg.MarketLimit, logger)

	return syncer.Sync(ctx)
}
