// Package tools exposes the query operations consumed by external
// collaborators as a fixed, typed dispatch surface. Every operation returns
// either a structured result or a typed error; "no data yet" is always
// model.ErrNotFound or model.ErrInsufficientData, never an empty success.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"polymind/internal/analytics"
	"polymind/internal/model"
)

// Operation names accepted by Dispatch.
const (
	OpGetMarket      = "get_market"
	OpSearchMarkets  = "search_markets"
	OpGetTrader      = "get_trader"
	OpGetSmartMoney  = "get_smart_money"
	OpGetHotMarkets  = "get_hot_markets"
	OpFindArbitrage  = "find_arbitrage"
	OpCompareMarkets = "compare_markets"
)

// Defaults applied when a dispatch request omits a parameter.
const (
	defaultEpsilon    = "0.02"
	defaultMinWinRate = 0.6
	defaultMinSample  = 10
	defaultLimit      = 10
	defaultWindow     = 24 * time.Hour
)

type Service struct {
	engine  *analytics.Engine
	markets analytics.MarketSource
	logger  *zap.Logger
}

func NewService(engine *analytics.Engine, markets analytics.MarketSource, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{engine: engine, markets: markets, logger: logger}
}

func (s *Service) GetMarket(ctx context.Context, slug string) (model.Market, error) {
	m, ok, err := s.markets.MarketBySlug(ctx, slug)
	if err != nil {
		return model.Market{}, fmt.Errorf("get market %s: %w", slug, err)
	}
	if !ok {
		return model.Market{}, fmt.Errorf("market %s: %w", slug, model.ErrNotFound)
	}
	return m, nil
}

func (s *Service) SearchMarkets(ctx context.Context, query string, limit int) ([]model.Market, error) {
	if limit <= 0 {
		limit = defaultLimit
	}
	markets, err := s.markets.SearchMarkets(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("search markets %q: %w", query, err)
	}
	if len(markets) == 0 {
		return nil, fmt.Errorf("no market matches %q: %w", query, model.ErrNotFound)
	}
	return markets, nil
}

func (s *Service) GetTrader(ctx context.Context, address string) (model.TraderProfile, error) {
	return s.engine.BuildProfile(ctx, address)
}

// SmartMoneyResult carries the ranking together with its computation time so
// consumers can tell a fresh ranking from a cached one.
type SmartMoneyResult struct {
	Entries    []model.SmartMoneyEntry `json:"entries"`
	ComputedAt time.Time               `json:"computed_at"`
}

func (s *Service) GetSmartMoney(ctx context.Context, minWinRate float64, minSample, limit int) (SmartMoneyResult, error) {
	if minWinRate <= 0 {
		minWinRate = defaultMinWinRate
	}
	if minSample <= 0 {
		minSample = defaultMinSample
	}
	if limit <= 0 {
		limit = defaultLimit
	}
	entries, at, err := s.engine.RankSmartMoney(ctx, minWinRate, minSample, limit)
	if err != nil {
		return SmartMoneyResult{}, err
	}
	return SmartMoneyResult{Entries: entries, ComputedAt: at}, nil
}

type HotMarketsResult struct {
	Markets    []model.HotMarket `json:"markets"`
	Window     string            `json:"window"`
	ComputedAt time.Time         `json:"computed_at"`
}

func (s *Service) GetHotMarkets(ctx context.Context, limit int, window time.Duration) (HotMarketsResult, error) {
	if window <= 0 {
		window = defaultWindow
	}
	markets, at, err := s.engine.HotMarkets(ctx, limit, window)
	if err != nil {
		return HotMarketsResult{}, err
	}
	return HotMarketsResult{Markets: markets, Window: window.String(), ComputedAt: at}, nil
}

func (s *Service) FindArbitrage(ctx context.Context, epsilon decimal.Decimal) ([]model.ArbOpportunity, error) {
	if epsilon.Sign() <= 0 {
		epsilon = decimal.RequireFromString(defaultEpsilon)
	}
	return s.engine.FindArbitrage(ctx, epsilon)
}

func (s *Service) CompareMarkets(ctx context.Context, slugA, slugB string) (model.SpreadReport, error) {
	return s.engine.CompareMarkets(ctx, slugA, slugB)
}

type dispatchParams struct {
	Slug       string  `json:"slug"`
	SlugA      string  `json:"slug_a"`
	SlugB      string  `json:"slug_b"`
	Query      string  `json:"query"`
	Address    string  `json:"address"`
	MinWinRate float64 `json:"min_win_rate"`
	MinSample  int     `json:"min_sample"`
	Limit      int     `json:"limit"`
	Epsilon    string  `json:"epsilon"`
	Window     string  `json:"window"`
}

// Dispatch routes a named operation with JSON parameters to its typed
// implementation. Unknown names and unparseable parameters are reported as
// model.ErrMalformed.
func (s *Service) Dispatch(ctx context.Context, name string, rawParams json.RawMessage) (any, error) {
	var p dispatchParams
	if len(rawParams) > 0 {
		if err := json.Unmarshal(rawParams, &p); err != nil {
			return nil, fmt.Errorf("parse params for %s: %v: %w", name, err, model.ErrMalformed)
		}
	}

	s.logger.Debug("dispatch", zap.String("op", name))

	switch name {
	case OpGetMarket:
		return s.GetMarket(ctx, p.Slug)
	case OpSearchMarkets:
		return s.SearchMarkets(ctx, p.Query, p.Limit)
	case OpGetTrader:
		return s.GetTrader(ctx, p.Address)
	case OpGetSmartMoney:
		return s.GetSmartMoney(ctx, p.MinWinRate, p.MinSample, p.Limit)
	case OpGetHotMarkets:
		window := time.Duration(0)
		if p.Window != "" {
			parsed, err := time.ParseDuration(p.Window)
			if err != nil {
				return nil, fmt.Errorf("parse window %q: %w", p.Window, model.ErrMalformed)
			}
			window = parsed
		}
		return s.GetHotMarkets(ctx, p.Limit, window)
	case OpFindArbitrage:
		epsilon := decimal.Zero
		if p.Epsilon != "" {
			parsed, err := decimal.NewFromString(p.Epsilon)
			if err != nil {
				return nil, fmt.Errorf("parse epsilon %q: %w", p.Epsilon, model.ErrMalformed)
			}
			epsilon = parsed
		}
		return s.FindArbitrage(ctx, epsilon)
	case OpCompareMarkets:
		return s.CompareMarkets(ctx, p.SlugA, p.SlugB)
	}
	return nil, fmt.Errorf("unknown operation %q: %w", name, model.ErrMalformed)
}
