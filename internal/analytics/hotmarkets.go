package analytics

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"polymind/internal/model"
)

// HotMarkets ranks markets by collateral volume over the trailing window,
// aggregated from stored trades. The cached market volume field is a display
// hint only and never enters this ranking. Results are cached for the
// engine's TTL.
func (e *Engine) HotMarkets(ctx context.Context, limit int, window time.Duration) ([]model.HotMarket, time.Time, error) {
	if limit <= 0 {
		limit = 10
	}
	if window <= 0 {
		window = 24 * time.Hour
	}

	key := "hotmarkets:" + strconv.Itoa(limit) + ":" + window.String()
	if cached, at, ok := e.cache.Get(key, e.ttl, e.now()); ok {
		return cached.([]model.HotMarket), at, nil
	}

	markets, err := e.markets.ListMarkets(ctx)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("list markets: %w", err)
	}

	since := e.now().Add(-window).Unix()
	if since < 0 {
		since = 0
	}
	sinceTS := uint64(since)
	var ranked []model.HotMarket
	for _, m := range markets {
		volume, count, err := e.trades.MarketActivitySince(ctx, m.Slug, sinceTS)
		if err != nil {
			return nil, time.Time{}, fmt.Errorf("aggregate %s: %w", m.Slug, err)
		}
		if count == 0 {
			continue
		}
		ranked = append(ranked, model.HotMarket{
			Slug:         m.Slug,
			Question:     m.Question,
			WindowVolume: volume.Div(collateralScale),
			TradeCount:   count,
		})
	}
	if len(ranked) == 0 {
		return nil, time.Time{}, fmt.Errorf("hot markets: no trades in window: %w", model.ErrInsufficientData)
	}

	sort.Slice(ranked, func(i, j int) bool {
		return ranked[i].WindowVolume.GreaterThan(ranked[j].WindowVolume)
	})
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}

	computedAt := e.now().UTC()
	e.cache.Set(key, ranked, computedAt)
	return ranked, computedAt, nil
}
