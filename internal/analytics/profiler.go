package analytics

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"polymind/internal/model"
)

// BuildProfile derives a trader profile from the address's full trade
// history.
//
// Win counting convention: wins and losses are counted per resolved market,
// not per trade. A market counts as a win when the outcome the trader held
// at their last trade in that market matches the resolution. Unresolved
// markets and trades without market linkage contribute to volume and trade
// count but not to the win-rate denominator. A zero denominator leaves the
// win rate unset rather than reporting 0%.
func (e *Engine) BuildProfile(ctx context.Context, address string) (model.TraderProfile, error) {
	trades, err := e.trades.TradesByTrader(ctx, address)
	if err != nil {
		return model.TraderProfile{}, fmt.Errorf("load trades for %s: %w", address, err)
	}
	if len(trades) == 0 {
		return model.TraderProfile{}, fmt.Errorf("trader %s: %w", address, model.ErrNotFound)
	}

	profile := model.TraderProfile{
		Address:     address,
		TradeCount:  len(trades),
		TotalVolume: decimal.Zero,
		RealizedPnL: decimal.Zero,
		ComputedAt:  e.now().UTC(),
	}

	var buys, sells int
	byMarket := make(map[string][]model.Trade)
	for _, t := range trades {
		profile.TotalVolume = profile.TotalVolume.Add(t.Notional().Div(collateralScale))
		if t.SideFor(address) == model.SideBuy {
			buys++
		} else {
			sells++
		}
		if t.MarketSlug != "" {
			byMarket[t.MarketSlug] = append(byMarket[t.MarketSlug], t)
		}
	}
	profile.MarketsTraded = len(byMarket)

	for slug, marketTrades := range byMarket {
		market, ok, err := e.markets.MarketBySlug(ctx, slug)
		if err != nil {
			return model.TraderProfile{}, fmt.Errorf("load market %s: %w", slug, err)
		}
		if !ok || !market.Resolved || market.ResolutionOutcome == "" {
			continue
		}

		// Trades arrive in block order; the last one fixes the held position.
		last := marketTrades[len(marketTrades)-1]
		held := heldOutcome(last, address)
		if held == "" {
			continue
		}
		if held == market.ResolutionOutcome {
			profile.Wins++
		} else {
			profile.Losses++
		}

		for _, t := range marketTrades {
			profile.RealizedPnL = profile.RealizedPnL.Add(tradePnL(t, address, market.ResolutionOutcome))
		}
	}

	if resolved := profile.Wins + profile.Losses; resolved > 0 {
		profile.HasWinRate = true
		profile.WinRate = float64(profile.Wins) / float64(resolved)
	}

	profile.SideBias = sideBias(buys, sells)
	return profile, nil
}

// heldOutcome is the outcome side the trader holds after this fill: buying a
// token holds its outcome, selling it holds the complement.
func heldOutcome(t model.Trade, address string) string {
	if t.Outcome == "" {
		return ""
	}
	if t.SideFor(address) == model.SideBuy {
		return t.Outcome
	}
	if t.Outcome == model.OutcomeYes {
		return model.OutcomeNo
	}
	return model.OutcomeYes
}

// tradePnL is the settlement value of one fill in a resolved market: a
// winning token settles at 1, a losing one at 0.
func tradePnL(t model.Trade, address, resolution string) decimal.Decimal {
	settle := decimal.Zero
	if t.Outcome == resolution {
		settle = decimal.New(1, 0)
	}
	size := t.Size.Div(collateralScale)
	if t.SideFor(address) == model.SideBuy {
		return settle.Sub(t.Price).Mul(size)
	}
	return t.Price.Sub(settle).Mul(size)
}

func sideBias(buys, sells int) string {
	total := buys + sells
	if total == 0 {
		return model.BiasBalanced
	}
	share := float64(buys) / float64(total)
	switch {
	case share >= 0.6:
		return model.BiasBuy
	case share <= 0.4:
		return model.BiasSell
	}
	return model.BiasBalanced
}

// RankSmartMoney ranks traders whose win rate and sample size clear the
// floors. The sample floor is a hard filter: a perfect record over two
// trades never outranks a seasoned trader. Results are cached for the
// engine's TTL.
func (e *Engine) RankSmartMoney(ctx context.Context, minWinRate float64, minSample, limit int) ([]model.SmartMoneyEntry, time.Time, error) {
	key := "smartmoney:" + strconv.FormatFloat(minWinRate, 'f', -1, 64) +
		":" + strconv.Itoa(minSample) + ":" + strconv.Itoa(limit)
	if cached, at, ok := e.cache.Get(key, e.ttl, e.now()); ok {
		return cached.([]model.SmartMoneyEntry), at, nil
	}

	addrs, err := e.trades.ActiveTraders(ctx, minSample, e.candidateLimit)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("list active traders: %w", err)
	}

	var candidates []model.TraderProfile
	for _, addr := range addrs {
		profile, err := e.BuildProfile(ctx, addr)
		if err != nil {
			if errors.Is(err, model.ErrNotFound) {
				continue
			}
			return nil, time.Time{}, err
		}
		if !profile.HasWinRate || profile.WinRate < minWinRate || profile.TradeCount < minSample {
			continue
		}
		candidates = append(candidates, profile)
	}
	if len(candidates) == 0 {
		return nil, time.Time{}, fmt.Errorf("smart money ranking: %w", model.ErrInsufficientData)
	}

	maxVolume := decimal.Zero
	for _, c := range candidates {
		if c.TotalVolume.GreaterThan(maxVolume) {
			maxVolume = c.TotalVolume
		}
	}

	entries := make([]model.SmartMoneyEntry, 0, len(candidates))
	for _, c := range candidates {
		volumeShare := 0.0
		if maxVolume.Sign() > 0 {
			volumeShare, _ = c.TotalVolume.Div(maxVolume).Float64()
		}
		entries = append(entries, model.SmartMoneyEntry{
			Address:     c.Address,
			TradeCount:  c.TradeCount,
			WinRate:     c.WinRate,
			TotalVolume: c.TotalVolume,
			Score:       c.WinRate*0.7 + volumeShare*0.3,
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		return entries[i].TotalVolume.GreaterThan(entries[j].TotalVolume)
	})
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}

	computedAt := e.now().UTC()
	e.cache.Set(key, entries, computedAt)
	return entries, computedAt, nil
}
