package model

import (
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Trade side, relative to the maker of the fill.
const (
	SideBuy  = "BUY"
	SideSell = "SELL"
)

// Outcome token sides of a binary market.
const (
	OutcomeYes = "YES"
	OutcomeNo  = "NO"
)

// Trade is one decoded OrderFilled fill. Immutable once stored; the only
// mutable fields are the derived market linkage (MarketSlug, Outcome), which
// a later metadata sync may backfill.
type Trade struct {
	TxHash         string          `json:"tx_hash"`
	LogIndex       uint64          `json:"log_index"`
	BlockNumber    uint64          `json:"block_number"`
	BlockTimestamp uint64          `json:"block_timestamp"`
	Exchange       string          `json:"exchange"`
	OrderHash      string          `json:"order_hash"`
	Maker          string          `json:"maker"`
	Taker          string          `json:"taker"`
	MakerAssetID   string          `json:"maker_asset_id"`
	TakerAssetID   string          `json:"taker_asset_id"`
	MakerAmount    string          `json:"maker_amount"`
	TakerAmount    string          `json:"taker_amount"`
	Fee            string          `json:"fee"`
	TokenID        string          `json:"token_id"`
	Side           string          `json:"side"`
	Price          decimal.Decimal `json:"price"`
	Size           decimal.Decimal `json:"size"`
	MarketSlug     string          `json:"market_slug,omitempty"`
	Outcome        string          `json:"outcome,omitempty"`
}

// DedupKey identifies a trade globally. Two fills with the same key are the
// same historical fact.
func (t Trade) DedupKey() string {
	return t.TxHash + ":" + strconv.FormatUint(t.LogIndex, 10)
}

// SideFor returns the side of the fill from the perspective of addr. The
// stored side is maker-relative; the taker holds the opposite position.
func (t Trade) SideFor(addr string) string {
	if strings.EqualFold(addr, t.Taker) && !strings.EqualFold(addr, t.Maker) {
		if t.Side == SideBuy {
			return SideSell
		}
		return SideBuy
	}
	return t.Side
}

// Notional is the collateral value of the fill (price * size).
func (t Trade) Notional() decimal.Decimal {
	return t.Price.Mul(t.Size)
}

// TokenRef links an outcome token id to its market.
type TokenRef struct {
	MarketSlug string
	Outcome    string
}

// Checkpoint is the single-row indexing watermark. BlockHash is the hash of
// LastBlock as observed at commit time, used for reorg detection.
type Checkpoint struct {
	LastBlock uint64    `json:"last_block"`
	BlockHash string    `json:"block_hash"`
	UpdatedAt time.Time `json:"updated_at"`
}
