package scanner

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"polymind/internal/decoder"
	"polymind/internal/model"
)

type fakeSource struct {
	mu            sync.Mutex
	head          uint64
	hashes        map[uint64]common.Hash
	logs          []types.Log
	fetchFailures int
	fetchCalls    int
}

func (f *fakeSource) Head(context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.head, nil
}

func (f *fakeSource) BlockHash(_ context.Context, number uint64) (common.Hash, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if h, ok := f.hashes[number]; ok {
		return h, nil
	}
	return common.BigToHash(new(big.Int).SetUint64(number)), nil
}

func (f *fakeSource) BlockTimestamp(_ context.Context, number uint64) (uint64, error) {
	return number * 2, nil
}

func (f *fakeSource) FetchLogs(_ context.Context, fromBlock, toBlock uint64, _ []common.Address, _ []common.Hash) ([]types.Log, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetchCalls++
	if f.fetchFailures > 0 {
		f.fetchFailures--
		return nil, fmt.Errorf("rate limited")
	}
	var out []types.Log
	for _, lg := range f.logs {
		if lg.BlockNumber >= fromBlock && lg.BlockNumber <= toBlock {
			out = append(out, lg)
		}
	}
	return out, nil
}

func (f *fakeSource) setHash(number uint64, hash common.Hash) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hashes[number] = hash
}

func (f *fakeSource) replaceLogs(logs []types.Log) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logs = logs
}

type fakeStore struct {
	mu      sync.Mutex
	trades  map[string]model.Trade
	cp      model.Checkpoint
	haveCp  bool
	commits []uint64
}

func newFakeStore() *fakeStore {
	return &fakeStore{trades: make(map[string]model.Trade)}
}

func (f *fakeStore) Checkpoint(context.Context) (model.Checkpoint, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cp, f.haveCp, nil
}

func (f *fakeStore) UpsertTradeBatch(_ context.Context, trades []model.Trade, cp model.Checkpoint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range trades {
		if _, dup := f.trades[t.DedupKey()]; dup {
			continue
		}
		f.trades[t.DedupKey()] = t
	}
	f.cp = cp
	f.haveCp = true
	f.commits = append(f.commits, cp.LastBlock)
	return nil
}

func (f *fakeStore) Retract(_ context.Context, fromBlock, toBlock uint64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for key, t := range f.trades {
		if t.BlockNumber >= fromBlock && t.BlockNumber <= toBlock {
			delete(f.trades, key)
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) ResetCheckpoint(_ context.Context, cp model.Checkpoint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cp = cp
	f.haveCp = true
	return nil
}

func (f *fakeStore) tradeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.trades)
}

func (f *fakeStore) hasTrade(txHash string, logIndex uint64) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.trades[model.Trade{TxHash: txHash, LogIndex: logIndex}.DedupKey()]
	return ok
}

func packWords(values ...*big.Int) []byte {
	data := make([]byte, 0, len(values)*32)
	for _, v := range values {
		data = append(data, common.BigToHash(v).Bytes()...)
	}
	return data
}

func fillLog(block uint64, txSeed byte, logIndex uint, tokenID, collateral, outcome int64) types.Log {
	var txHash common.Hash
	txHash[0] = txSeed
	txHash[31] = byte(block)
	return types.Log{
		Address: decoder.CTFExchange,
		Topics: []common.Hash{
			decoder.OrderFilledTopic,
			common.HexToHash("0x01"),
			common.BytesToHash(common.HexToAddress("0x1111111111111111111111111111111111111111").Bytes()),
			common.BytesToHash(common.HexToAddress("0x2222222222222222222222222222222222222222").Bytes()),
		},
		Data:        packWords(big.NewInt(0), big.NewInt(tokenID), big.NewInt(collateral), big.NewInt(outcome), big.NewInt(0)),
		BlockNumber: block,
		TxHash:      txHash,
		Index:       logIndex,
	}
}

func junkLog(block uint64) types.Log {
	lg := fillLog(block, 0xee, 0, 1, 1, 1)
	lg.Topics[0] = common.HexToHash("0xdeadbeef00000000000000000000000000000000000000000000000000000000")
	return lg
}

func testConfig() Config {
	return Config{
		FromBlock:     1,
		BatchSize:     50,
		Confirmations: 10,
		ReorgPadding:  5,
		MaxRetries:    2,
		RetryBackoff:  time.Millisecond,
		PollInterval:  time.Millisecond,
	}
}

func TestScanCatchesUpInOrder(t *testing.T) {
	source := &fakeSource{
		head:   110,
		hashes: make(map[uint64]common.Hash),
		logs: []types.Log{
			fillLog(20, 0xaa, 1, 111, 600_000_000, 1_000_000_000),
			fillLog(75, 0xbb, 2, 222, 550_000_000, 1_000_000_000),
			junkLog(80),
		},
	}
	store := newFakeStore()
	sc := New(testConfig(), source, store, decoder.New(nil, nil), nil)

	if err := sc.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}

	if store.cp.LastBlock != 100 {
		t.Fatalf("checkpoint mismatch: %d", store.cp.LastBlock)
	}
	if store.tradeCount() != 2 {
		t.Fatalf("expected 2 trades, got %d", store.tradeCount())
	}
	for i := 1; i < len(store.commits); i++ {
		if store.commits[i] < store.commits[i-1] {
			t.Fatalf("checkpoint not monotonic: %v", store.commits)
		}
	}
	if sc.State() != StateStopped {
		t.Fatalf("expected STOPPED, got %s", sc.State())
	}
	unrecognized, malformed := sc.SkippedCounts()
	if unrecognized != 1 || malformed != 0 {
		t.Fatalf("skip counts mismatch: %d %d", unrecognized, malformed)
	}
}

func TestScanIdempotentOnRecross(t *testing.T) {
	source := &fakeSource{
		head:   60,
		hashes: make(map[uint64]common.Hash),
		logs: []types.Log{
			fillLog(10, 0xaa, 1, 111, 600_000_000, 1_000_000_000),
			fillLog(30, 0xbb, 2, 222, 400_000_000, 1_000_000_000),
		},
	}
	store := newFakeStore()
	sc := New(testConfig(), source, store, decoder.New(nil, nil), nil)

	if err := sc.Run(context.Background()); err != nil {
		t.Fatalf("first run: %v", err)
	}
	first := store.tradeCount()

	// Rewind the checkpoint and recross the same range; dedup must absorb it.
	store.ResetCheckpoint(context.Background(), model.Checkpoint{})
	store.haveCp = false
	again := New(testConfig(), source, store, decoder.New(nil, nil), nil)
	if err := again.Run(context.Background()); err != nil {
		t.Fatalf("second run: %v", err)
	}

	if store.tradeCount() != first {
		t.Fatalf("recross changed store contents: %d != %d", store.tradeCount(), first)
	}
}

func TestScanRetriesTransientThenSucceeds(t *testing.T) {
	source := &fakeSource{
		head:          60,
		hashes:        make(map[uint64]common.Hash),
		fetchFailures: 2,
		logs: []types.Log{
			fillLog(10, 0xaa, 1, 111, 500_000_000, 1_000_000_000),
		},
	}
	store := newFakeStore()
	sc := New(testConfig(), source, store, decoder.New(nil, nil), nil)

	if err := sc.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if store.tradeCount() != 1 {
		t.Fatalf("expected trade after retries, got %d", store.tradeCount())
	}
}

func TestScanHaltsWhenRetriesExhausted(t *testing.T) {
	source := &fakeSource{
		head:          60,
		hashes:        make(map[uint64]common.Hash),
		fetchFailures: 100,
	}
	store := newFakeStore()
	sc := New(testConfig(), source, store, decoder.New(nil, nil), nil)

	err := sc.Run(context.Background())
	if err == nil {
		t.Fatalf("expected halt")
	}
	var exhausted *model.FetchExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("expected FetchExhaustedError, got %v", err)
	}
	if exhausted.Attempts != 3 {
		t.Fatalf("attempts mismatch: %d", exhausted.Attempts)
	}
	if sc.State() != StateFailed {
		t.Fatalf("expected FAILED, got %s", sc.State())
	}
	if store.haveCp {
		t.Fatalf("checkpoint must not advance past a failed range")
	}
}

func TestScanRollsBackOnReorg(t *testing.T) {
	oldTrade := fillLog(95, 0xaa, 1, 111, 600_000_000, 1_000_000_000)
	keptTrade := fillLog(40, 0xcc, 3, 333, 300_000_000, 1_000_000_000)

	source := &fakeSource{
		head:   110,
		hashes: make(map[uint64]common.Hash),
		logs:   []types.Log{keptTrade, oldTrade},
	}
	store := newFakeStore()
	sc := New(testConfig(), source, store, decoder.New(nil, nil), nil)
	if err := sc.Run(context.Background()); err != nil {
		t.Fatalf("initial run: %v", err)
	}
	if store.cp.LastBlock != 100 || store.tradeCount() != 2 {
		t.Fatalf("unexpected initial state: cp=%d trades=%d", store.cp.LastBlock, store.tradeCount())
	}

	// The chain replaced block 100: the fill at 95 is gone, a new one exists.
	newTrade := fillLog(96, 0xdd, 4, 444, 700_000_000, 1_000_000_000)
	source.setHash(100, common.HexToHash("0xfeedface"))
	source.replaceLogs([]types.Log{keptTrade, newTrade})
	source.mu.Lock()
	source.head = 112
	source.mu.Unlock()

	again := New(testConfig(), source, store, decoder.New(nil, nil), nil)
	if err := again.Run(context.Background()); err != nil {
		t.Fatalf("rerun: %v", err)
	}

	if store.hasTrade(oldTrade.TxHash.Hex(), uint64(oldTrade.Index)) {
		t.Fatalf("retracted trade still present")
	}
	if !store.hasTrade(newTrade.TxHash.Hex(), uint64(newTrade.Index)) {
		t.Fatalf("re-scan did not pick up replacement trade")
	}
	if !store.hasTrade(keptTrade.TxHash.Hex(), uint64(keptTrade.Index)) {
		t.Fatalf("trade outside rollback window was lost")
	}
	if store.cp.LastBlock != 102 {
		t.Fatalf("checkpoint after re-scan: %d", store.cp.LastBlock)
	}
}

func TestScanStopsOnCancel(t *testing.T) {
	source := &fakeSource{head: 60, hashes: make(map[uint64]common.Hash)}
	store := newFakeStore()
	cfg := testConfig()
	cfg.Continuous = true
	cfg.PollInterval = 5 * time.Millisecond
	sc := New(cfg, source, store, decoder.New(nil, nil), nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sc.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context cancellation, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("scanner did not stop promptly")
	}
	if sc.State() != StateStopped {
		t.Fatalf("expected STOPPED, got %s", sc.State())
	}
}
