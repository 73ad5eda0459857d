package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"polymind/internal/model"
)

// Store provides Postgres persistence for trades, markets, and the
// checkpoint. It is the single shared mutable resource: one writer (the
// scanner) and any number of readers, isolated by the transactional batch
// commit.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Init creates the schema if it does not exist.
func (s *Store) Init(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}

// Checkpoint returns the current indexing watermark. The second return is
// false when no batch has ever committed.
func (s *Store) Checkpoint(ctx context.Context) (model.Checkpoint, bool, error) {
	var cp model.Checkpoint
	row := s.pool.QueryRow(ctx, `SELECT last_block, block_hash, updated_at FROM checkpoint WHERE id = 1`)
	if err := row.Scan(&cp.LastBlock, &cp.BlockHash, &cp.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Checkpoint{}, false, nil
		}
		return model.Checkpoint{}, false, fmt.Errorf("load checkpoint: %w", err)
	}
	return cp, true, nil
}

// UpsertTradeBatch stores a batch of trades and advances the checkpoint in
// one transaction. Re-submitting an already-stored (tx_hash, log_index) is a
// no-op, so recrossing a block range is safe. Either the whole batch and the
// new checkpoint commit, or nothing does.
func (s *Store) UpsertTradeBatch(ctx context.Context, trades []model.Trade, cp model.Checkpoint) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin batch: %w", err)
	}
	defer tx.Rollback(ctx)

	if len(trades) > 0 {
		batch := &pgx.Batch{}
		for _, t := range trades {
			batch.Queue(`
				INSERT INTO trades (
					tx_hash, log_index, block_number, block_timestamp, exchange, order_hash,
					maker, taker, maker_asset_id, taker_asset_id, maker_amount, taker_amount,
					fee, token_id, side, price, size, market_slug, outcome
				) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)
				ON CONFLICT (tx_hash, log_index) DO NOTHING
			`,
				t.TxHash,
				int64(t.LogIndex),
				int64(t.BlockNumber),
				int64(t.BlockTimestamp),
				t.Exchange,
				t.OrderHash,
				t.Maker,
				t.Taker,
				t.MakerAssetID,
				t.TakerAssetID,
				t.MakerAmount,
				t.TakerAmount,
				t.Fee,
				t.TokenID,
				t.Side,
				t.Price.String(),
				t.Size.String(),
				t.MarketSlug,
				t.Outcome,
			)
		}

		br := tx.SendBatch(ctx, batch)
		for range trades {
			if _, err := br.Exec(); err != nil {
				br.Close()
				return fmt.Errorf("insert trade: %w", err)
			}
		}
		if err := br.Close(); err != nil {
			return fmt.Errorf("close trade batch: %w", err)
		}
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO checkpoint (id, last_block, block_hash, updated_at)
		VALUES (1, $1, $2, now())
		ON CONFLICT (id) DO UPDATE
		SET last_block = EXCLUDED.last_block,
		    block_hash = EXCLUDED.block_hash,
		    updated_at = now()
	`, int64(cp.LastBlock), cp.BlockHash); err != nil {
		return fmt.Errorf("advance checkpoint: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}

// Retract removes all trades whose block number falls in the inclusive
// range. Used only by reorg rollback.
func (s *Store) Retract(ctx context.Context, fromBlock, toBlock uint64) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM trades WHERE block_number >= $1 AND block_number <= $2`,
		int64(fromBlock), int64(toBlock))
	if err != nil {
		return 0, fmt.Errorf("retract trades: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ResetCheckpoint rewinds the checkpoint, bypassing the batch path. Used
// only by reorg rollback.
func (s *Store) ResetCheckpoint(ctx context.Context, cp model.Checkpoint) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO checkpoint (id, last_block, block_hash, updated_at)
		VALUES (1, $1, $2, now())
		ON CONFLICT (id) DO UPDATE
		SET last_block = EXCLUDED.last_block,
		    block_hash = EXCLUDED.block_hash,
		    updated_at = now()
	`, int64(cp.LastBlock), cp.BlockHash)
	if err != nil {
		return fmt.Errorf("reset checkpoint: %w", err)
	}
	return nil
}
