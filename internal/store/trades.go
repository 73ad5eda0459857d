package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"polymind/internal/model"
)

const tradeColumns = `
	tx_hash, log_index, block_number, block_timestamp, exchange, order_hash,
	maker, taker, maker_asset_id, taker_asset_id, maker_amount, taker_amount,
	fee, token_id, side, price::text, size::text, market_slug, outcome
`

func scanTrade(row pgx.Row) (model.Trade, error) {
	var (
		t           model.Trade
		logIndex    int64
		blockNumber int64
		blockTS     int64
		price       string
		size        string
	)
	if err := row.Scan(
		&t.TxHash, &logIndex, &blockNumber, &blockTS, &t.Exchange, &t.OrderHash,
		&t.Maker, &t.Taker, &t.MakerAssetID, &t.TakerAssetID, &t.MakerAmount, &t.TakerAmount,
		&t.Fee, &t.TokenID, &t.Side, &price, &size, &t.MarketSlug, &t.Outcome,
	); err != nil {
		return model.Trade{}, err
	}
	t.LogIndex = uint64(logIndex)
	t.BlockNumber = uint64(blockNumber)
	t.BlockTimestamp = uint64(blockTS)

	var err error
	if t.Price, err = decimal.NewFromString(price); err != nil {
		return model.Trade{}, fmt.Errorf("parse price %q: %w", price, err)
	}
	if t.Size, err = decimal.NewFromString(size); err != nil {
		return model.Trade{}, fmt.Errorf("parse size %q: %w", size, err)
	}
	return t, nil
}

func collectTrades(rows pgx.Rows) ([]model.Trade, error) {
	defer rows.Close()
	var trades []model.Trade
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, err
		}
		trades = append(trades, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return trades, nil
}

// TradesByTrader returns all trades where the address is maker or taker,
// ordered by block number ascending.
func (s *Store) TradesByTrader(ctx context.Context, address string) ([]model.Trade, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+tradeColumns+`
		FROM trades
		WHERE lower(maker) = lower($1) OR lower(taker) = lower($1)
		ORDER BY block_number ASC, log_index ASC
	`, address)
	if err != nil {
		return nil, fmt.Errorf("query trades by trader: %w", err)
	}
	return collectTrades(rows)
}

// TradesByMarket returns the trades attributed to a market, optionally from
// a starting block, ordered by block number ascending.
func (s *Store) TradesByMarket(ctx context.Context, slug string, sinceBlock uint64) ([]model.Trade, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+tradeColumns+`
		FROM trades
		WHERE market_slug = $1 AND block_number >= $2
		ORDER BY block_number ASC, log_index ASC
	`, slug, int64(sinceBlock))
	if err != nil {
		return nil, fmt.Errorf("query trades by market: %w", err)
	}
	return collectTrades(rows)
}

// LastTradeForToken returns the most recent trade of an outcome token.
func (s *Store) LastTradeForToken(ctx context.Context, tokenID string) (model.Trade, bool, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+tradeColumns+`
		FROM trades
		WHERE token_id = $1
		ORDER BY block_number DESC, log_index DESC
		LIMIT 1
	`, tokenID)

	t, err := scanTrade(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Trade{}, false, nil
		}
		return model.Trade{}, false, fmt.Errorf("query last trade: %w", err)
	}
	return t, true, nil
}

// MarketActivitySince aggregates collateral volume and trade count for a
// market from trades at or after the given block timestamp.
func (s *Store) MarketActivitySince(ctx context.Context, slug string, sinceTS uint64) (decimal.Decimal, int, error) {
	var (
		volume string
		count  int64
	)
	row := s.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(price * size), 0)::text, COUNT(*)
		FROM trades
		WHERE market_slug = $1 AND block_timestamp >= $2
	`, slug, int64(sinceTS))
	if err := row.Scan(&volume, &count); err != nil {
		return decimal.Zero, 0, fmt.Errorf("aggregate market activity: %w", err)
	}

	v, err := decimal.NewFromString(volume)
	if err != nil {
		return decimal.Zero, 0, fmt.Errorf("parse volume %q: %w", volume, err)
	}
	return v, int(count), nil
}

// ActiveTraders returns addresses with at least minTrades fills, most active
// first. Both maker and taker appearances count.
func (s *Store) ActiveTraders(ctx context.Context, minTrades, limit int) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT address FROM (
			SELECT address, COUNT(*) AS n FROM (
				SELECT lower(maker) AS address FROM trades
				UNION ALL
				SELECT lower(taker) AS address FROM trades
			) sides
			GROUP BY address
			HAVING COUNT(*) >= $1
		) ranked
		ORDER BY n DESC
		LIMIT $2
	`, minTrades, limit)
	if err != nil {
		return nil, fmt.Errorf("query active traders: %w", err)
	}
	defer rows.Close()

	var addrs []string
	for rows.Next() {
		var addr string
		if err := rows.Scan(&addr); err != nil {
			return nil, err
		}
		addrs = append(addrs, addr)
	}
	return addrs, rows.Err()
}
