package decoder

import (
	"errors"
	"math/big"
	"reflect"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"

	"polymind/internal/model"
)

func decimalFromString(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("parse decimal %q: %v", s, err)
	}
	return d
}

type stubResolver struct {
	refs map[string]model.TokenRef
}

func (s *stubResolver) Resolve(tokenID string) (model.TokenRef, bool) {
	ref, ok := s.refs[tokenID]
	return ref, ok
}

func packWords(values ...*big.Int) []byte {
	data := make([]byte, 0, len(values)*32)
	for _, v := range values {
		data = append(data, common.BigToHash(v).Bytes()...)
	}
	return data
}

func topicFromAddress(addr common.Address) common.Hash {
	return common.BytesToHash(addr.Bytes())
}

func fillLog(maker, taker common.Address, makerAssetID, takerAssetID, makerAmount, takerAmount, fee *big.Int) types.Log {
	return types.Log{
		Address: CTFExchange,
		Topics: []common.Hash{
			OrderFilledTopic,
			common.HexToHash("0x5c5f3bdb3a48a9fcd5c8e5cf6b14d89e38f50b5cba72db83c4e7c2f4b4cd6c01"),
			topicFromAddress(maker),
			topicFromAddress(taker),
		},
		Data:        packWords(makerAssetID, takerAssetID, makerAmount, takerAmount, fee),
		BlockNumber: 52123456,
		TxHash:      common.HexToHash("0x916cad96dd5c219997638133512fd17fe7c1ce72b830157e4fd5323cf4f19946"),
		Index:       7,
	}
}

func TestDecodeBuy(t *testing.T) {
	maker := common.HexToAddress("0x1111111111111111111111111111111111111111")
	taker := common.HexToAddress("0x2222222222222222222222222222222222222222")
	tokenID, _ := new(big.Int).SetString("71321045679252212594626385532706912750332734214295561322420680443087500331", 10)

	// Maker pays 600 USDC base units per 1000 outcome units: price 0.60.
	log := fillLog(maker, taker,
		big.NewInt(0), tokenID,
		big.NewInt(600_000_000), big.NewInt(1_000_000_000),
		big.NewInt(150_000),
	)

	d := New(nil, []common.Address{CTFExchange, NegRiskExchange})
	trade, err := d.Decode(log)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	if trade.Side != model.SideBuy {
		t.Fatalf("side mismatch: %s", trade.Side)
	}
	if trade.TokenID != tokenID.String() {
		t.Fatalf("token mismatch: %s", trade.TokenID)
	}
	if !trade.Price.Equal(decimalFromString(t, "0.6")) {
		t.Fatalf("price mismatch: %s", trade.Price)
	}
	if !trade.Size.Equal(decimalFromString(t, "1000000000")) {
		t.Fatalf("size mismatch: %s", trade.Size)
	}
	if trade.Maker != maker.Hex() || trade.Taker != taker.Hex() {
		t.Fatalf("party mismatch: %s / %s", trade.Maker, trade.Taker)
	}
	if trade.TxHash != "0x916cad96dd5c219997638133512fd17fe7c1ce72b830157e4fd5323cf4f19946" {
		t.Fatalf("tx hash mismatch: %s", trade.TxHash)
	}
	if trade.LogIndex != 7 || trade.BlockNumber != 52123456 {
		t.Fatalf("position mismatch: %d %d", trade.LogIndex, trade.BlockNumber)
	}
	if trade.Fee != "150000" {
		t.Fatalf("fee mismatch: %s", trade.Fee)
	}
}

func TestDecodeSell(t *testing.T) {
	maker := common.HexToAddress("0x1111111111111111111111111111111111111111")
	taker := common.HexToAddress("0x2222222222222222222222222222222222222222")
	tokenID := big.NewInt(987654321)

	// Taker pays 550 USDC base units for the maker's 1000 outcome units.
	log := fillLog(maker, taker,
		tokenID, big.NewInt(0),
		big.NewInt(1_000_000_000), big.NewInt(550_000_000),
		big.NewInt(0),
	)

	d := New(nil, nil)
	trade, err := d.Decode(log)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	if trade.Side != model.SideSell {
		t.Fatalf("side mismatch: %s", trade.Side)
	}
	if trade.TokenID != tokenID.String() {
		t.Fatalf("token mismatch: %s", trade.TokenID)
	}
	if !trade.Price.Equal(decimalFromString(t, "0.55")) {
		t.Fatalf("price mismatch: %s", trade.Price)
	}
	if !trade.Size.Equal(decimalFromString(t, "1000000000")) {
		t.Fatalf("size mismatch: %s", trade.Size)
	}
}

func TestDecodeDeterministic(t *testing.T) {
	log := fillLog(
		common.HexToAddress("0x1111111111111111111111111111111111111111"),
		common.HexToAddress("0x2222222222222222222222222222222222222222"),
		big.NewInt(0), big.NewInt(424242),
		big.NewInt(330_000_000), big.NewInt(1_000_000_000),
		big.NewInt(10),
	)

	d := New(nil, nil)
	first, err := d.Decode(log)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	second, err := d.Decode(log)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	if !reflect.DeepEqual(first, second) {
		t.Fatalf("decode not deterministic:\n%+v\n%+v", first, second)
	}
}

func TestDecodeUnrecognized(t *testing.T) {
	d := New(nil, []common.Address{CTFExchange})

	log := fillLog(
		common.HexToAddress("0x1111111111111111111111111111111111111111"),
		common.HexToAddress("0x2222222222222222222222222222222222222222"),
		big.NewInt(0), big.NewInt(1),
		big.NewInt(1), big.NewInt(2),
		big.NewInt(0),
	)
	log.Topics[0] = common.HexToHash("0xdeadbeef00000000000000000000000000000000000000000000000000000000")

	if _, err := d.Decode(log); !errors.Is(err, model.ErrUnrecognizedEvent) {
		t.Fatalf("expected unrecognized event, got %v", err)
	}

	other := fillLog(
		common.HexToAddress("0x1111111111111111111111111111111111111111"),
		common.HexToAddress("0x2222222222222222222222222222222222222222"),
		big.NewInt(0), big.NewInt(1),
		big.NewInt(1), big.NewInt(2),
		big.NewInt(0),
	)
	other.Address = common.HexToAddress("0x3333333333333333333333333333333333333333")

	if _, err := d.Decode(other); !errors.Is(err, model.ErrUnrecognizedEvent) {
		t.Fatalf("expected unrecognized event for foreign address, got %v", err)
	}
}

func TestDecodeMalformed(t *testing.T) {
	log := fillLog(
		common.HexToAddress("0x1111111111111111111111111111111111111111"),
		common.HexToAddress("0x2222222222222222222222222222222222222222"),
		big.NewInt(0), big.NewInt(1),
		big.NewInt(1), big.NewInt(2),
		big.NewInt(0),
	)
	log.Data = log.Data[:64]

	d := New(nil, nil)
	if _, err := d.Decode(log); !errors.Is(err, model.ErrMalformed) {
		t.Fatalf("expected malformed, got %v", err)
	}

	zeroOutcome := fillLog(
		common.HexToAddress("0x1111111111111111111111111111111111111111"),
		common.HexToAddress("0x2222222222222222222222222222222222222222"),
		big.NewInt(0), big.NewInt(1),
		big.NewInt(1), big.NewInt(0),
		big.NewInt(0),
	)
	if _, err := d.Decode(zeroOutcome); !errors.Is(err, model.ErrMalformed) {
		t.Fatalf("expected malformed for zero outcome amount, got %v", err)
	}
}

func TestDecodeFallbackClassification(t *testing.T) {
	maker := common.HexToAddress("0x1111111111111111111111111111111111111111")
	taker := common.HexToAddress("0x2222222222222222222222222222222222222222")

	// Neither leg is collateral; the resolver knows the maker leg.
	resolver := &stubResolver{refs: map[string]model.TokenRef{
		"12345": {MarketSlug: "fed-cut-march", Outcome: model.OutcomeYes},
	}}
	d := New(resolver, nil)

	log := fillLog(maker, taker,
		big.NewInt(12345), big.NewInt(99999),
		big.NewInt(1_000_000_000), big.NewInt(400_000_000),
		big.NewInt(0),
	)
	trade, err := d.Decode(log)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if trade.Side != model.SideSell || trade.TokenID != "12345" {
		t.Fatalf("resolver fallback mismatch: %s %s", trade.Side, trade.TokenID)
	}
	if trade.MarketSlug != "fed-cut-march" || trade.Outcome != model.OutcomeYes {
		t.Fatalf("market linkage mismatch: %s %s", trade.MarketSlug, trade.Outcome)
	}

	// Nothing resolves: the larger asset id is the token leg.
	blind := New(nil, nil)
	trade, err = blind.Decode(log)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if trade.Side != model.SideBuy || trade.TokenID != "99999" {
		t.Fatalf("magnitude fallback mismatch: %s %s", trade.Side, trade.TokenID)
	}
}

func TestDecodePriceClamped(t *testing.T) {
	log := fillLog(
		common.HexToAddress("0x1111111111111111111111111111111111111111"),
		common.HexToAddress("0x2222222222222222222222222222222222222222"),
		big.NewInt(0), big.NewInt(777),
		big.NewInt(3_000_000_000), big.NewInt(1_000_000_000),
		big.NewInt(0),
	)

	d := New(nil, nil)
	trade, err := d.Decode(log)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !trade.Price.Equal(decimalFromString(t, "1")) {
		t.Fatalf("price not clamped: %s", trade.Price)
	}
}
