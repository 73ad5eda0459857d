package model

import (
	"errors"
	"fmt"
)

// Decode failures. Both are skip-level: the scanner counts them and moves on,
// they never abort a batch.
var (
	// ErrUnrecognizedEvent marks a log whose topic0 is not OrderFilled.
	ErrUnrecognizedEvent = errors.New("unrecognized event")
	// ErrMalformed marks an OrderFilled log whose payload does not match the
	// expected fixed-width layout.
	ErrMalformed = errors.New("malformed event payload")
)

// Query-level signals. Distinct from faults: an analytics query below its
// sample floor reports ErrInsufficientData, never an empty success.
var (
	ErrNotFound         = errors.New("not found")
	ErrInsufficientData = errors.New("insufficient data")
)

// FetchExhaustedError reports that a transient upstream failure survived the
// full retry budget. The scanner halts on it rather than skipping the range.
type FetchExhaustedError struct {
	FromBlock uint64
	ToBlock   uint64
	Attempts  int
	Err       error
}

func (e *FetchExhaustedError) Error() string {
	return fmt.Sprintf("fetch exhausted after %d attempts for blocks %d-%d: %v",
		e.Attempts, e.FromBlock, e.ToBlock, e.Err)
}

func (e *FetchExhaustedError) Unwrap() error { return e.Err }

// ReorgError reports that the block hash stored with the checkpoint no longer
// matches chain state. It triggers rollback, not a terminal failure.
type ReorgError struct {
	Block      uint64
	StoredHash string
	ChainHash  string
}

func (e *ReorgError) Error() string {
	return fmt.Sprintf("reorg at block %d: stored %s, chain %s",
		e.Block, e.StoredHash, e.ChainHash)
}
