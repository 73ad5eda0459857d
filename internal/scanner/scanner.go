package scanner

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"polymind/internal/model"
)

// State of the scan loop.
type State int32

const (
	StateIdle State = iota
	StateScanning
	StateCommitted
	StateRollingBack
	StateFailed
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateScanning:
		return "SCANNING"
	case StateCommitted:
		return "COMMITTED"
	case StateRollingBack:
		return "ROLLING_BACK"
	case StateFailed:
		return "FAILED"
	case StateStopped:
		return "STOPPED"
	}
	return "UNKNOWN"
}

// LogSource is the upstream chain surface the scanner reads. *chain.Client
// satisfies it.
type LogSource interface {
	Head(ctx context.Context) (uint64, error)
	BlockHash(ctx context.Context, number uint64) (common.Hash, error)
	BlockTimestamp(ctx context.Context, number uint64) (uint64, error)
	FetchLogs(ctx context.Context, fromBlock, toBlock uint64, addresses []common.Address, topic0 []common.Hash) ([]types.Log, error)
}

// Store is the transactional persistence surface the scanner writes through.
type Store interface {
	Checkpoint(ctx context.Context) (model.Checkpoint, bool, error)
	UpsertTradeBatch(ctx context.Context, trades []model.Trade, cp model.Checkpoint) error
	Retract(ctx context.Context, fromBlock, toBlock uint64) (int64, error)
	ResetCheckpoint(ctx context.Context, cp model.Checkpoint) error
}

// Decoder turns a raw log into a trade.
type Decoder interface {
	Decode(log types.Log) (model.Trade, error)
}

// Config holds runtime settings for the scanner.
type Config struct {
	// FromBlock is where indexing starts when no checkpoint exists yet.
	FromBlock uint64
	BatchSize uint64
	// Confirmations is the trailing margin below the chain head. Blocks
	// closer to the head than this are not indexed, so a short reorg cannot
	// invalidate committed trades.
	Confirmations uint64
	// ReorgPadding widens the rollback window beyond Confirmations when a
	// reorg is detected anyway.
	ReorgPadding uint64
	MaxRetries   int
	RetryBackoff time.Duration
	PollInterval time.Duration
	// Continuous keeps the loop polling after reaching the head. Without it
	// the scanner stops once caught up.
	Continuous bool
	Addresses  []common.Address
	Topic0     []common.Hash
}

// Scanner advances the checkpoint to the confirmed chain head, committing
// each batch of decoded trades atomically. Single writer: exactly one
// Scanner may run against a store.
type Scanner struct {
	cfg     Config
	source  LogSource
	store   Store
	decoder Decoder
	logger  *zap.Logger
	runID   string

	state        atomic.Int32
	unrecognized atomic.Uint64
	malformed    atomic.Uint64
}

func New(cfg Config, source LogSource, store Store, decoder Decoder, logger *zap.Logger) *Scanner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 50
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.ReorgPadding == 0 {
		cfg.ReorgPadding = 8
	}
	runID := uuid.NewString()
	return &Scanner{
		cfg:     cfg,
		source:  source,
		store:   store,
		decoder: decoder,
		logger:  logger.With(zap.String("run_id", runID)),
		runID:   runID,
	}
}

// State returns the current loop state.
func (s *Scanner) State() State { return State(s.state.Load()) }

// RunID identifies this scanner instance in logs and halt reports.
func (s *Scanner) RunID() string { return s.runID }

// SkippedCounts reports how many logs were skipped as unrecognized or
// malformed since the scanner started.
func (s *Scanner) SkippedCounts() (unrecognized, malformed uint64) {
	return s.unrecognized.Load(), s.malformed.Load()
}

func (s *Scanner) setState(st State) { s.state.Store(int32(st)) }

// Run executes the scan loop until it catches up (one-shot mode), fails, or
// ctx is cancelled. On halt the returned error carries the last committed
// checkpoint and the reason.
func (s *Scanner) Run(ctx context.Context) error {
	if s.source == nil || s.store == nil || s.decoder == nil {
		return fmt.Errorf("scanner: source, store, and decoder are required")
	}

	cp, haveCheckpoint, err := s.store.Checkpoint(ctx)
	if err != nil {
		return fmt.Errorf("load checkpoint: %w", err)
	}
	if haveCheckpoint {
		s.logger.Info("resume from checkpoint",
			zap.Uint64("last_block", cp.LastBlock),
			zap.String("block_hash", cp.BlockHash))
	} else {
		s.logger.Info("no checkpoint, starting fresh", zap.Uint64("from_block", s.cfg.FromBlock))
	}

	for {
		select {
		case <-ctx.Done():
			s.setState(StateStopped)
			return ctx.Err()
		default:
		}

		head, err := s.headWithRetry(ctx)
		if err != nil {
			return s.halt(cp, fmt.Errorf("fetch head: %w", err))
		}
		if head < s.cfg.Confirmations {
			if err := s.idle(ctx); err != nil {
				return err
			}
			continue
		}
		target := head - s.cfg.Confirmations

		if haveCheckpoint && cp.LastBlock >= target {
			if !s.cfg.Continuous {
				s.setState(StateStopped)
				s.logger.Info("caught up", zap.Uint64("checkpoint", cp.LastBlock), zap.Uint64("target", target))
				return nil
			}
			if err := s.idle(ctx); err != nil {
				return err
			}
			continue
		}

		if haveCheckpoint && cp.BlockHash != "" {
			rolled, newCp, err := s.checkReorg(ctx, cp)
			if err != nil {
				return s.halt(cp, err)
			}
			if rolled {
				cp = newCp
				haveCheckpoint = cp.LastBlock > 0
				continue
			}
		}

		from := s.cfg.FromBlock
		if haveCheckpoint {
			from = cp.LastBlock + 1
		}
		to := from + s.cfg.BatchSize - 1
		if to > target {
			to = target
		}

		newCp, err := s.scanBatch(ctx, from, to)
		if err != nil {
			return s.halt(cp, err)
		}

		cp = newCp
		haveCheckpoint = true
		s.setState(StateCommitted)
	}
}

// scanBatch fetches, decodes, and commits one block range. The trades and
// the checkpoint advance commit in a single transaction: a crash mid-batch
// never leaves the checkpoint ahead of the stored trades.
func (s *Scanner) scanBatch(ctx context.Context, from, to uint64) (model.Checkpoint, error) {
	s.setState(StateScanning)
	s.logger.Info("scan batch", zap.Uint64("from", from), zap.Uint64("to", to))

	var logs []types.Log
	attempts, err := withRetry(ctx, s.cfg.MaxRetries, s.cfg.RetryBackoff, func(ctx context.Context) error {
		var err error
		logs, err = s.source.FetchLogs(ctx, from, to, s.cfg.Addresses, s.cfg.Topic0)
		if err != nil {
			s.logger.Warn("fetch logs failed", zap.Error(err), zap.Uint64("from", from), zap.Uint64("to", to))
		}
		return err
	})
	if err != nil {
		return model.Checkpoint{}, &model.FetchExhaustedError{FromBlock: from, ToBlock: to, Attempts: attempts, Err: err}
	}

	trades := make([]model.Trade, 0, len(logs))
	for _, lg := range logs {
		trade, err := s.decoder.Decode(lg)
		if err != nil {
			switch {
			case errors.Is(err, model.ErrUnrecognizedEvent):
				s.unrecognized.Add(1)
			case errors.Is(err, model.ErrMalformed):
				s.malformed.Add(1)
				s.logger.Warn("malformed log skipped",
					zap.String("tx_hash", lg.TxHash.Hex()),
					zap.Uint("log_index", lg.Index),
					zap.Error(err))
			default:
				return model.Checkpoint{}, fmt.Errorf("decode log %s:%d: %w", lg.TxHash.Hex(), lg.Index, err)
			}
			continue
		}

		ts, err := s.timestampWithRetry(ctx, trade.BlockNumber)
		if err != nil {
			return model.Checkpoint{}, &model.FetchExhaustedError{FromBlock: from, ToBlock: to, Attempts: s.cfg.MaxRetries + 1, Err: err}
		}
		trade.BlockTimestamp = ts
		trades = append(trades, trade)
	}

	hash, err := s.hashWithRetry(ctx, to)
	if err != nil {
		return model.Checkpoint{}, &model.FetchExhaustedError{FromBlock: from, ToBlock: to, Attempts: s.cfg.MaxRetries + 1, Err: err}
	}

	cp := model.Checkpoint{LastBlock: to, BlockHash: hash.Hex(), UpdatedAt: time.Now().UTC()}
	if _, err := withRetry(ctx, s.cfg.MaxRetries, s.cfg.RetryBackoff, func(ctx context.Context) error {
		return s.store.UpsertTradeBatch(ctx, trades, cp)
	}); err != nil {
		return model.Checkpoint{}, fmt.Errorf("commit batch %d-%d: %w", from, to, err)
	}

	s.logger.Info("batch committed",
		zap.Uint64("from", from),
		zap.Uint64("to", to),
		zap.Int("logs", len(logs)),
		zap.Int("trades", len(trades)))
	return cp, nil
}

// checkReorg compares the stored checkpoint hash against chain state. On
// mismatch it retracts the rolled-back range and rewinds the checkpoint by
// Confirmations plus ReorgPadding. Trades retracted here are the one case
// where stored rows are removed.
func (s *Scanner) checkReorg(ctx context.Context, cp model.Checkpoint) (bool, model.Checkpoint, error) {
	chainHash, err := s.hashWithRetry(ctx, cp.LastBlock)
	if err != nil {
		return false, cp, fmt.Errorf("reorg check: %w", err)
	}
	if chainHash.Hex() == cp.BlockHash {
		return false, cp, nil
	}

	s.setState(StateRollingBack)
	reorg := &model.ReorgError{Block: cp.LastBlock, StoredHash: cp.BlockHash, ChainHash: chainHash.Hex()}
	s.logger.Warn("reorg detected", zap.Uint64("block", cp.LastBlock),
		zap.String("stored_hash", cp.BlockHash), zap.String("chain_hash", chainHash.Hex()))

	rewind := s.cfg.Confirmations + s.cfg.ReorgPadding
	var newLast uint64
	if cp.LastBlock > rewind {
		newLast = cp.LastBlock - rewind
	}
	if newLast < s.cfg.FromBlock {
		newLast = 0
	}

	retracted, err := s.store.Retract(ctx, newLast+1, cp.LastBlock)
	if err != nil {
		return false, cp, fmt.Errorf("rollback after %v: %w", reorg, err)
	}

	newCp := model.Checkpoint{LastBlock: newLast, UpdatedAt: time.Now().UTC()}
	if newLast > 0 {
		if hash, err := s.hashWithRetry(ctx, newLast); err == nil {
			newCp.BlockHash = hash.Hex()
		}
	}
	if err := s.store.ResetCheckpoint(ctx, newCp); err != nil {
		return false, cp, fmt.Errorf("rewind checkpoint after %v: %w", reorg, err)
	}

	s.logger.Info("rollback complete",
		zap.Uint64("rewound_to", newLast),
		zap.Int64("trades_retracted", retracted))
	return true, newCp, nil
}

// halt records the failure and returns an error carrying the last committed
// checkpoint, so the operator knows where indexing stands.
func (s *Scanner) halt(cp model.Checkpoint, err error) error {
	s.setState(StateFailed)
	s.logger.Error("scanner halted",
		zap.Uint64("checkpoint", cp.LastBlock),
		zap.String("reason", err.Error()))
	return fmt.Errorf("scanner %s halted at checkpoint %d: %w", s.runID, cp.LastBlock, err)
}

func (s *Scanner) idle(ctx context.Context) error {
	s.setState(StateIdle)
	if err := sleep(ctx, s.cfg.PollInterval); err != nil {
		s.setState(StateStopped)
		return err
	}
	return nil
}

func (s *Scanner) headWithRetry(ctx context.Context) (uint64, error) {
	var head uint64
	_, err := withRetry(ctx, s.cfg.MaxRetries, s.cfg.RetryBackoff, func(ctx context.Context) error {
		var err error
		head, err = s.source.Head(ctx)
		return err
	})
	return head, err
}

func (s *Scanner) hashWithRetry(ctx context.Context, number uint64) (common.Hash, error) {
	var hash common.Hash
	_, err := withRetry(ctx, s.cfg.MaxRetries, s.cfg.RetryBackoff, func(ctx context.Context) error {
		var err error
		hash, err = s.source.BlockHash(ctx, number)
		return err
	})
	return hash, err
}

func (s *Scanner) timestampWithRetry(ctx context.Context, number uint64) (uint64, error) {
	var ts uint64
	_, err := withRetry(ctx, s.cfg.MaxRetries, s.cfg.RetryBackoff, func(ctx context.Context) error {
		var err error
		ts, err = s.source.BlockTimestamp(ctx, number)
		return err
	})
	return ts, err
}
