package engine

import (
	"errors"
	"fmt"
)

// RuntimeError represents an engine failure that is not a ledger revert.
//
// Ledger reverts are never errors at this level: they are recorded as
// Reverted receipts. RuntimeError covers the engine being stopped, the log
// failing to persist, and replay divergence.
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Message is a human-readable description.
	Message string

	// TxID identifies the affected transaction, when there is one.
	TxID string

	// Seq is the affected transaction's seq, when there is one.
	Seq int64

	// Err is the underlying cause.
	Err error
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	// ErrCodeStopped indicates the engine no longer accepts calls.
	ErrCodeStopped RuntimeErrorCode = "STOPPED"

	// ErrCodePersistFailed indicates an applied transaction could not be
	// written. The engine stops: memory and disk have diverged.
	ErrCodePersistFailed RuntimeErrorCode = "PERSIST_FAILED"

	// ErrCodeGenesisMismatch indicates the node and the store disagree on
	// the genesis.
	ErrCodeGenesisMismatch RuntimeErrorCode = "GENESIS_MISMATCH"

	// ErrCodeReplayDiverged indicates a re-applied transaction produced a
	// different receipt than the stored one.
	ErrCodeReplayDiverged RuntimeErrorCode = "REPLAY_DIVERGED"

	// ErrCodeInvariantViolated indicates a conservation invariant failed.
	ErrCodeInvariantViolated RuntimeErrorCode = "INVARIANT_VIOLATED"
)

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.TxID != "" {
		msg = fmt.Sprintf("%s (tx=%s, seq=%d)", msg, e.TxID, e.Seq)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *RuntimeError) Unwrap() error {
	return e.Err
}

// HasCode reports whether err is a RuntimeError with the given code.
// Uses errors.As to handle wrapped errors.
func HasCode(err error, code RuntimeErrorCode) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == code
	}
	return false
}

// IsStopped returns true if the engine rejected a call because it stopped.
func IsStopped(err error) bool {
	return HasCode(err, ErrCodeStopped)
}

// IsReplayDivergence returns true if replay produced a different receipt.
func IsReplayDivergence(err error) bool {
	return HasCode(err, ErrCodeReplayDiverged)
}

var errStopped = &RuntimeError{Code: ErrCodeStopped, Message: "engine is not accepting calls"}
