package analytics

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"polymind/internal/model"
)

// collateralScale converts 6-decimal base units into whole collateral units.
var collateralScale = decimal.New(1, 6)

// TradeSource is the read surface over stored trades. Reads are snapshot
// consistent: a partially committed batch is never visible.
type TradeSource interface {
	TradesByTrader(ctx context.Context, address string) ([]model.Trade, error)
	TradesByMarket(ctx context.Context, slug string, sinceBlock uint64) ([]model.Trade, error)
	LastTradeForToken(ctx context.Context, tokenID string) (model.Trade, bool, error)
	MarketActivitySince(ctx context.Context, slug string, sinceTS uint64) (decimal.Decimal, int, error)
	ActiveTraders(ctx context.Context, minTrades, limit int) ([]string, error)
}

// MarketSource is the read surface over market metadata.
type MarketSource interface {
	MarketBySlug(ctx context.Context, slug string) (model.Market, bool, error)
	ListMarkets(ctx context.Context) ([]model.Market, error)
	SearchMarkets(ctx context.Context, query string, limit int) ([]model.Market, error)
}

// Engine computes derived signals over trade and market snapshots. It owns no
// persistent state; every result is reproducible from the two sources. The
// expensive rankings are cached with an explicit TTL, and cached results keep
// their original computation timestamp so staleness is observable.
type Engine struct {
	trades  TradeSource
	markets MarketSource
	cache   *Cache
	ttl     time.Duration
	now     func() time.Time
	logger  *zap.Logger

	// candidateLimit bounds how many addresses a ranking pass considers.
	candidateLimit int
}

func NewEngine(trades TradeSource, markets MarketSource, cacheTTL time.Duration, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cacheTTL <= 0 {
		cacheTTL = time.Minute
	}
	return &Engine{
		trades:         trades,
		markets:        markets,
		cache:          NewCache(),
		ttl:            cacheTTL,
		now:            time.Now,
		logger:         logger,
		candidateLimit: 200,
	}
}
