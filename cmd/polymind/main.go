package main

import (
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	// Local .env is optional; env vars win via viper's AutomaticEnv.
	_ = godotenv.Load()

	root := &cobra.Command{
		Use:          "polymind",
		Short:        "Polymarket trade indexer and analytics",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the chain scanner and market sync loop",
		RunE:  runScan,
	}

	runCmd.Flags().String("rpc", "", "Polygon RPC URL")
	runCmd.Flags().String("dsn", "", "Postgres DSN")
	runCmd.Flags().String("gamma-url", "https://gamma-api.polymarket.com", "Gamma API base URL")
	runCmd.Flags().Uint64("from", 0, "start block when no checkpoint exists")
	runCmd.Flags().Uint64("batch-size", 50, "blocks per batch")
	runCmd.Flags().Uint64("confirmations", 0, "trailing confirmation margin below head")
	runCmd.Flags().Uint64("reorg-padding", 8, "extra rollback depth on reorg")
	runCmd.Flags().Int("max-retries", 5, "maximum retry attempts")
	runCmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	runCmd.Flags().Duration("poll-interval", 2*time.Second, "head poll interval when caught up")
	runCmd.Flags().Bool("continuous", true, "keep polling after catching up")
	runCmd.Flags().Duration("sync-interval", 10*time.Minute, "market metadata refresh interval")
	runCmd.Flags().Int("market-limit", 500, "markets per Gamma fetch")
	runCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(runCmd)

	decodeCmd := &cobra.Command{
		Use:   "decode-tx <tx-hash>",
		Short: "Decode the OrderFilled events of one transaction",
		Args:  cobra.ExactArgs(1),
		RunE:  runDecodeTx,
	}

	decodeCmd.Flags().String("rpc", "", "Polygon RPC URL")
	decodeCmd.Flags().String("dsn", "", "Postgres DSN for market linkage (optional)")
	decodeCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(decodeCmd)

	syncCmd := &cobra.Command{
		Use:   "sync-markets",
		Short: "Fetch market metadata from Gamma and upsert it",
		RunE:  runSyncMarkets,
	}

	syncCmd.Flags().String("dsn", "", "Postgres DSN")
	syncCmd.Flags().String("gamma-url", "https://gamma-api.polymarket.com", "Gamma API base URL")
	syncCmd.Flags().Int("market-limit", 500, "markets per Gamma fetch")
	syncCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(syncCmd)

	queryCmd := &cobra.Command{
		Use:   "query <operation> [params-json]",
		Short: "Run one analytics query operation",
		Args:  cobra.RangeArgs(1, 2),
		RunE:  runQuery,
	}

	queryCmd.Flags().String("dsn", "", "Postgres DSN")
	queryCmd.Flags().Duration("cache-ttl", time.Minute, "analytics cache TTL")
	queryCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(queryCmd)

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
