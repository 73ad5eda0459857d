package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"polymind/internal/chain"
	"polymind/internal/config"
	"polymind/internal/decoder"
	"polymind/internal/market"
	"polymind/internal/model"
	"polymind/internal/store"
)

func runDecodeTx(cmd *cobra.Command, args []string) error {
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
		return fmt.Errorf("rpc endpoint is required")
	}

	raw := args[0]
	if len(common.FromHex(raw)) != common.HashLength {
		return fmt.Errorf("invalid transaction hash %q", raw)
	}
	txHash := common.HexToHash(raw)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	chainClient, err := chain.NewClient(ctx, cfg.RPCURL)
	if err != nil {
		return fmt.Errorf("connect rpc: %w", err)
	}
	defer chainClient.Close()

	// Market linkage is best effort: without a DSN the trades come back with
	// token ids only.
	resolver := market.NewResolver()
	if cfg.DSN != "" {
		st, err := store.NewStore(ctx, cfg.DSN)
		if err != nil {
			return fmt.Errorf("connect database: %w", err)
		}
		defer st.Close()

		markets, err := st.ListMarkets(ctx)
		if err != nil {
			return fmt.Errorf("load markets: %w", err)
		}
		resolver.Rebuild(markets)
	}

	receipt, err := chainClient.TransactionReceipt(ctx, txHash)
	if err != nil {
		return fmt.Errorf("fetch receipt %s: %w", txHash.Hex(), err)
	}

	dec := decoder.New(resolver, decoder.Exchanges())

	var trades []model.Trade
	for _, lg := range receipt.Logs {
		trade, err := dec.Decode(*lg)
		if err != nil {
			if errors.Is(err, model.ErrUnrecognizedEvent) {
				continue
			}
			if errors.Is(err, model.ErrMalformed) {
				logger.Warn("malformed log skipped",
					zap.Uint("log_index", lg.Index), zap.Error(err))
				continue
			}
			return fmt.Errorf("decode log %d: %w", lg.Index, err)
		}
		ts, err := chainClient.BlockTimestamp(ctx, trade.BlockNumber)
		if err == nil {
			trade.BlockTimestamp = ts
		}
		trades = append(trades, trade)
	}

	if len(trades) == 0 {
		return fmt.Errorf("transaction %s: no order fill events: %w", txHash.Hex(), model.ErrNotFound)
	}

	out, err := json.MarshalIndent(trades, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}
