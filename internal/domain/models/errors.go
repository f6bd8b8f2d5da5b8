package models

import "errors"

var (
	// ErrFeedStale: a required exchange quote is missing or older than the
	// staleness window. The symbol is skipped for the cycle.
	ErrFeedStale = errors.New("feed stale")
	// ErrInsufficientHistory: the rolling window is still warming up.
	ErrInsufficientHistory = errors.New("insufficient history")
	// ErrInvalidSymbol: the symbol is not part of the configured universe.
	ErrInvalidSymbol = errors.New("invalid symbol")
	// ErrExecutionRejected: a simulated fill could not be produced. Position
	// state is left untouched.
	ErrExecutionRejected = errors.New("execution rejected")
	// ErrLedgerWriteConflict: two writers reached the ledger at once. Fatal.
	ErrLedgerWriteConflict = errors.New("ledger write conflict")
)
