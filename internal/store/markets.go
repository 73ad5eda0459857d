package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"polymind/internal/model"
)

const marketColumns = `
	slug, question, condition_id, yes_token_id, no_token_id, category,
	end_date, active, closed, resolved, resolution_outcome,
	volume_cached::text, liquidity::text
`

func scanMarket(row pgx.Row) (model.Market, error) {
	var (
		m         model.Market
		volume    string
		liquidity string
	)
	if err := row.Scan(
		&m.Slug, &m.Question, &m.ConditionID, &m.YesTokenID, &m.NoTokenID, &m.Category,
		&m.EndDate, &m.Active, &m.Closed, &m.Resolved, &m.ResolutionOutcome,
		&volume, &liquidity,
	); err != nil {
		return model.Market{}, err
	}

	var err error
	if m.VolumeCached, err = decimal.NewFromString(volume); err != nil {
		return model.Market{}, fmt.Errorf("parse volume %q: %w", volume, err)
	}
	if m.Liquidity, err = decimal.NewFromString(liquidity); err != nil {
		return model.Market{}, fmt.Errorf("parse liquidity %q: %w", liquidity, err)
	}
	return m, nil
}

// UpsertMarkets inserts or updates market metadata rows.
func (s *Store) UpsertMarkets(ctx context.Context, markets []model.Market) error {
	if len(markets) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, m := range markets {
		batch.Queue(`
			INSERT INTO markets (
				slug, question, condition_id, yes_token_id, no_token_id, category,
				end_date, active, closed, resolved, resolution_outcome,
				volume_cached, liquidity, created_at, updated_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,now(),now())
			ON CONFLICT (slug) DO UPDATE SET
				question = EXCLUDED.question,
				condition_id = EXCLUDED.condition_id,
				yes_token_id = EXCLUDED.yes_token_id,
				no_token_id = EXCLUDED.no_token_id,
				category = EXCLUDED.category,
				end_date = EXCLUDED.end_date,
				active = EXCLUDED.active,
				closed = EXCLUDED.closed,
				resolved = EXCLUDED.resolved,
				resolution_outcome = EXCLUDED.resolution_outcome,
				volume_cached = EXCLUDED.volume_cached,
				liquidity = EXCLUDED.liquidity,
				updated_at = now()
		`,
			m.Slug,
			m.Question,
			m.ConditionID,
			m.YesTokenID,
			m.NoTokenID,
			m.Category,
			m.EndDate,
			m.Active,
			m.Closed,
			m.Resolved,
			m.ResolutionOutcome,
			m.VolumeCached.String(),
			m.Liquidity.String(),
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range markets {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("upsert market: %w", err)
		}
	}
	return nil
}

// MarketBySlug loads one market.
func (s *Store) MarketBySlug(ctx context.Context, slug string) (model.Market, bool, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+marketColumns+` FROM markets WHERE slug = $1`, slug)
	m, err := scanMarket(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Market{}, false, nil
		}
		return model.Market{}, false, fmt.Errorf("query market: %w", err)
	}
	return m, true, nil
}

// SearchMarkets matches question or slug substrings, case-insensitive.
func (s *Store) SearchMarkets(ctx context.Context, query string, limit int) ([]model.Market, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+marketColumns+`
		FROM markets
		WHERE question ILIKE '%' || $1 || '%' OR slug ILIKE '%' || $1 || '%'
		ORDER BY volume_cached DESC
		LIMIT $2
	`, query, limit)
	if err != nil {
		return nil, fmt.Errorf("search markets: %w", err)
	}
	return collectMarkets(rows)
}

// ListMarkets returns all market rows.
func (s *Store) ListMarkets(ctx context.Context) ([]model.Market, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+marketColumns+` FROM markets ORDER BY slug`)
	if err != nil {
		return nil, fmt.Errorf("list markets: %w", err)
	}
	return collectMarkets(rows)
}

func collectMarkets(rows pgx.Rows) ([]model.Market, error) {
	defer rows.Close()
	var markets []model.Market
	for rows.Next() {
		m, err := scanMarket(rows)
		if err != nil {
			return nil, err
		}
		markets = append(markets, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return markets, nil
}

// AttachMarketRefs backfills market linkage on trades stored before their
// market metadata arrived. Immutable trade fields are untouched; only the
// derived market_slug and outcome are set. The update is idempotent.
func (s *Store) AttachMarketRefs(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE trades t
		SET market_slug = m.slug,
		    outcome = CASE WHEN t.token_id = m.yes_token_id THEN 'YES' ELSE 'NO' END
		FROM markets m
		WHERE t.market_slug = ''
		  AND (t.token_id = m.yes_token_id OR t.token_id = m.no_token_id)
	`)
	if err != nil {
		return 0, fmt.Errorf("attach market refs: %w", err)
	}
	return tag.RowsAffected(), nil
}
