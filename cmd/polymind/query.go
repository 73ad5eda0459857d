package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"polymind/internal/analytics"
	"polymind/internal/config"
	"polymind/internal/store"
	"polymind/internal/tools"
)

func runQuery(cmd *cobra.Command, args []string) error {
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

	operation := args[0]
	params := json.RawMessage(nil)
	if len(args) > 1 {
		params = json.RawMessage(args[1])
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.NewStore(ctx, cfg.DSN)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer st.Close()

	engine := analytics.NewEngine(st, st, cfg.CacheTTL, logger)
	service := tools.NewService(engine, st, logger)

	result, err := service.Dispatch(ctx, operation, params)
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}
