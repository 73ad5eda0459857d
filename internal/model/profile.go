package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Dominant side bias labels for a trader profile.
const (
	BiasBuy      = "BUY"
	BiasSell     = "SELL"
	BiasBalanced = "BALANCED"
)

// TraderProfile is derived from the trade history of one address. It is never
// authoritative: it must be reproducible from Trade plus Market rows alone.
type TraderProfile struct {
	Address       string          `json:"address"`
	TradeCount    int             `json:"trade_count"`
	MarketsTraded int             `json:"markets_traded"`
	TotalVolume   decimal.Decimal `json:"total_volume"`
	Wins          int             `json:"wins"`
	Losses        int             `json:"losses"`
	// WinRate is only meaningful when HasWinRate is true. A trader with no
	// resolved markets has no win rate, which is not the same as 0%.
	HasWinRate  bool            `json:"has_win_rate"`
	WinRate     float64         `json:"win_rate"`
	RealizedPnL decimal.Decimal `json:"realized_pnl"`
	SideBias    string          `json:"side_bias"`
	ComputedAt  time.Time       `json:"computed_at"`
}

// SmartMoneyEntry is one row of the smart-money ranking.
type SmartMoneyEntry struct {
	Address     string          `json:"address"`
	TradeCount  int             `json:"trade_count"`
	WinRate     float64         `json:"win_rate"`
	TotalVolume decimal.Decimal `json:"total_volume"`
	Score       float64         `json:"score"`
}

// Arbitrage directions.
const (
	DirectionSellBoth = "SELL_BOTH"
	DirectionBuyBoth  = "BUY_BOTH"
)

// ArbOpportunity flags a market whose complementary outcome prices do not sum
// to one within tolerance.
type ArbOpportunity struct {
	MarketSlug string          `json:"market_slug"`
	Question   string          `json:"question,omitempty"`
	YesPrice   decimal.Decimal `json:"yes_price"`
	NoPrice    decimal.Decimal `json:"no_price"`
	Sum        decimal.Decimal `json:"sum"`
	Spread     decimal.Decimal `json:"spread"`
	Direction  string          `json:"direction"`
}

// SpreadReport compares the YES pricing of two markets.
type SpreadReport struct {
	MarketA    string          `json:"market_a"`
	MarketB    string          `json:"market_b"`
	YesPriceA  decimal.Decimal `json:"yes_price_a"`
	YesPriceB  decimal.Decimal `json:"yes_price_b"`
	Spread     decimal.Decimal `json:"spread"`
	ComputedAt time.Time       `json:"computed_at"`
}

// HotMarket is one row of the hot-market ranking. WindowVolume is aggregated
// from stored trades over the trailing window, not the cached market volume.
type HotMarket struct {
	Slug         string          `json:"slug"`
	Question     string          `json:"question"`
	WindowVolume decimal.Decimal `json:"window_volume"`
	TradeCount   int             `json:"trade_count"`
}
