package decoder

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"

	"polymind/internal/model"
)

// Polymarket exchange contracts on Polygon.
var (
	CTFExchange     = common.HexToAddress("0x4bFb41d5B3570DeFd03C39a9A4D8dE6Bd8B8982E")
	NegRiskExchange = common.HexToAddress("0xC5d563A36AE78145C45a50134d48A1215220f80a")
)

// OrderFilledTopic is the topic0 of
// OrderFilled(bytes32 indexed orderHash, address indexed maker, address
// indexed taker, uint256 makerAssetId, uint256 takerAssetId,
// uint256 makerAmountFilled, uint256 takerAmountFilled, uint256 fee).
var OrderFilledTopic = crypto.Keccak256Hash(
	[]byte("OrderFilled(bytes32,address,address,uint256,uint256,uint256,uint256,uint256)"),
)

// Exchanges returns the default set of accepted emitting contracts.
func Exchanges() []common.Address {
	return []common.Address{CTFExchange, NegRiskExchange}
}

// Topics returns the topic0 filter for log fetching.
func Topics() []common.Hash {
	return []common.Hash{OrderFilledTopic}
}

// orderFilledDataLen is five non-indexed uint256 words.
const orderFilledDataLen = 5 * 32

// pricePrecision is the decimal precision prices are rounded to.
const pricePrecision = 6

// TokenResolver maps an outcome token id to its market. Absence is not an
// error; an unresolved trade is stored without market linkage.
type TokenResolver interface {
	Resolve(tokenID string) (model.TokenRef, bool)
}

// Decoder turns raw OrderFilled logs into trades. It is pure: given the same
// log bytes and the same resolver snapshot it always produces the same Trade.
type Decoder struct {
	resolver  TokenResolver
	exchanges map[common.Address]struct{}
}

// New builds a Decoder. exchanges limits which emitting contracts are
// accepted; empty means accept any. resolver may be nil.
func New(resolver TokenResolver, exchanges []common.Address) *Decoder {
	set := make(map[common.Address]struct{}, len(exchanges))
	for _, addr := range exchanges {
		set[addr] = struct{}{}
	}
	return &Decoder{resolver: resolver, exchanges: set}
}

// Decode parses one log into a Trade.
//
// Side convention (maker-relative): makerAssetId == 0 means the maker pays
// collateral for outcome tokens, side BUY; takerAssetId == 0 means the maker
// gives outcome tokens for collateral, side SELL. When neither leg is the
// collateral asset the resolver decides which leg is the outcome token; if
// neither resolves, the numerically larger asset id is taken as the token
// leg. In every case side is BUY exactly when the taker leg carries the
// token.
func (d *Decoder) Decode(log types.Log) (model.Trade, error) {
	if len(d.exchanges) > 0 {
		if _, ok := d.exchanges[log.Address]; !ok {
			return model.Trade{}, fmt.Errorf("%w: address %s", model.ErrUnrecognizedEvent, log.Address.Hex())
		}
	}
	if len(log.Topics) < 4 || log.Topics[0] != OrderFilledTopic {
		return model.Trade{}, fmt.Errorf("%w: topic0 mismatch", model.ErrUnrecognizedEvent)
	}
	if len(log.Data) != orderFilledDataLen {
		return model.Trade{}, fmt.Errorf("%w: data length %d, want %d", model.ErrMalformed, len(log.Data), orderFilledDataLen)
	}

	makerAssetID := new(big.Int).SetBytes(log.Data[0:32])
	takerAssetID := new(big.Int).SetBytes(log.Data[32:64])
	makerAmount := new(big.Int).SetBytes(log.Data[64:96])
	takerAmount := new(big.Int).SetBytes(log.Data[96:128])
	fee := new(big.Int).SetBytes(log.Data[128:160])

	side, tokenID, collateral, outcome := d.classify(makerAssetID, takerAssetID, makerAmount, takerAmount)
	if outcome.Sign() == 0 {
		return model.Trade{}, fmt.Errorf("%w: zero outcome amount", model.ErrMalformed)
	}

	trade := model.Trade{
		TxHash:       log.TxHash.Hex(),
		LogIndex:     uint64(log.Index),
		BlockNumber:  log.BlockNumber,
		Exchange:     log.Address.Hex(),
		OrderHash:    log.Topics[1].Hex(),
		Maker:        common.BytesToAddress(log.Topics[2].Bytes()).Hex(),
		Taker:        common.BytesToAddress(log.Topics[3].Bytes()).Hex(),
		MakerAssetID: makerAssetID.String(),
		TakerAssetID: takerAssetID.String(),
		MakerAmount:  makerAmount.String(),
		TakerAmount:  takerAmount.String(),
		Fee:          fee.String(),
		TokenID:      tokenID.String(),
		Side:         side,
		Price:        price(collateral, outcome),
		Size:         decimal.NewFromBigInt(outcome, 0),
	}

	if d.resolver != nil {
		if ref, ok := d.resolver.Resolve(trade.TokenID); ok {
			trade.MarketSlug = ref.MarketSlug
			trade.Outcome = ref.Outcome
		}
	}

	return trade, nil
}

func (d *Decoder) classify(makerAssetID, takerAssetID, makerAmount, takerAmount *big.Int) (side string, tokenID, collateral, outcome *big.Int) {
	switch {
	case makerAssetID.Sign() == 0:
		return model.SideBuy, takerAssetID, makerAmount, takerAmount
	case takerAssetID.Sign() == 0:
		return model.SideSell, makerAssetID, takerAmount, makerAmount
	}

	// Neither leg is the collateral asset. Prefer whichever leg the resolver
	// knows as an outcome token; fall back to the larger asset id.
	if d.resolver != nil {
		if _, ok := d.resolver.Resolve(makerAssetID.String()); ok {
			return model.SideSell, makerAssetID, takerAmount, makerAmount
		}
		if _, ok := d.resolver.Resolve(takerAssetID.String()); ok {
			return model.SideBuy, takerAssetID, makerAmount, takerAmount
		}
	}
	if makerAssetID.Cmp(takerAssetID) > 0 {
		return model.SideSell, makerAssetID, takerAmount, makerAmount
	}
	return model.SideBuy, takerAssetID, makerAmount, takerAmount
}

// price divides the collateral amount by the outcome amount. Both legs are in
// 6-decimal base units, so the quotient is the unit price directly. The
// result is rounded to pricePrecision and clamped to [0, 1].
func price(collateral, outcome *big.Int) decimal.Decimal {
	p := decimal.NewFromBigInt(collateral, 0).
		DivRound(decimal.NewFromBigInt(outcome, 0), pricePrecision)
	if p.LessThan(decimal.Zero) {
		return decimal.Zero
	}
	one := decimal.New(1, 0)
	if p.GreaterThan(one) {
		return one
	}
	return p
}
