package analytics

import (
	"context"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"polymind/internal/model"
)

var one = decimal.New(1, 0)

// FindArbitrage scans markets whose YES and NO legs both have an observed
// trade and flags those where the two last prices sum away from 1 by more
// than epsilon. Sum above 1 means both sides are rich (sell both); below 1,
// cheap (buy both).
func (e *Engine) FindArbitrage(ctx context.Context, epsilon decimal.Decimal) ([]model.ArbOpportunity, error) {
	markets, err := e.markets.ListMarkets(ctx)
	if err != nil {
		return nil, fmt.Errorf("list markets: %w", err)
	}

	var (
		opportunities []model.ArbOpportunity
		observable    int
	)
	for _, m := range markets {
		if m.Resolved || m.YesTokenID == "" || m.NoTokenID == "" {
			continue
		}

		lastYes, okYes, err := e.trades.LastTradeForToken(ctx, m.YesTokenID)
		if err != nil {
			return nil, fmt.Errorf("last YES trade for %s: %w", m.Slug, err)
		}
		lastNo, okNo, err := e.trades.LastTradeForToken(ctx, m.NoTokenID)
		if err != nil {
			return nil, fmt.Errorf("last NO trade for %s: %w", m.Slug, err)
		}
		if !okYes || !okNo {
			continue
		}
		observable++

		sum := lastYes.Price.Add(lastNo.Price)
		spread := sum.Sub(one).Abs()
		if spread.LessThanOrEqual(epsilon) {
			continue
		}

		direction := model.DirectionBuyBoth
		if sum.GreaterThan(one) {
			direction = model.DirectionSellBoth
		}
		opportunities = append(opportunities, model.ArbOpportunity{
			MarketSlug: m.Slug,
			Question:   m.Question,
			YesPrice:   lastYes.Price,
			NoPrice:    lastNo.Price,
			Sum:        sum,
			Spread:     spread,
			Direction:  direction,
		})
	}

	if observable == 0 {
		return nil, fmt.Errorf("arbitrage scan: no market with both sides priced: %w", model.ErrInsufficientData)
	}

	sort.Slice(opportunities, func(i, j int) bool {
		return opportunities[i].Spread.GreaterThan(opportunities[j].Spread)
	})
	return opportunities, nil
}

// CompareMarkets reports the YES price spread between two markets. Whether
// the markets are actually related is the caller's concern; this only
// supplies a stable comparison surface.
func (e *Engine) CompareMarkets(ctx context.Context, slugA, slugB string) (model.SpreadReport, error) {
	priceA, err := e.lastYesPrice(ctx, slugA)
	if err != nil {
		return model.SpreadReport{}, err
	}
	priceB, err := e.lastYesPrice(ctx, slugB)
	if err != nil {
		return model.SpreadReport{}, err
	}

	return model.SpreadReport{
		MarketA:    slugA,
		MarketB:    slugB,
		YesPriceA:  priceA,
		YesPriceB:  priceB,
		Spread:     priceA.Sub(priceB).Abs(),
		ComputedAt: e.now().UTC(),
	}, nil
}

func (e *Engine) lastYesPrice(ctx context.Context, slug string) (decimal.Decimal, error) {
	m, ok, err := e.markets.MarketBySlug(ctx, slug)
	if err != nil {
		return decimal.Zero, fmt.Errorf("load market %s: %w", slug, err)
	}
	if !ok {
		return decimal.Zero, fmt.Errorf("market %s: %w", slug, model.ErrNotFound)
	}
	if m.YesTokenID == "" {
		return decimal.Zero, fmt.Errorf("market %s has no YES token: %w", slug, model.ErrInsufficientData)
	}

	last, found, err := e.trades.LastTradeForToken(ctx, m.YesTokenID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("last YES trade for %s: %w", slug, err)
	}
	if !found {
		return decimal.Zero, fmt.Errorf("market %s has no YES trades: %w", slug, model.ErrInsufficientData)
	}
	return last.Price, nil
}
