package ledger

import (
	"errors"
	"fmt"
)

// Code categorizes a ledger failure. Codes are stable and safe to match on;
// reasons are the human-readable revert strings surfaced verbatim to users.
type Code string

const (
	// CodeUnauthorized: the inbound callback was not invoked by the bound
	// underlying ledger.
	CodeUnauthorized Code = "Unauthorized"

	// CodeInvalidTag: the deposit tag had the wrong length or value.
	CodeInvalidTag Code = "InvalidTag"

	// CodeZeroAmount: an explicit zero amount was redeemed.
	CodeZeroAmount Code = "ZeroAmount"

	// CodeZeroLots: an explicit zero lot count was redeemed.
	CodeZeroLots Code = "ZeroLots"

	CodeInsufficientBalance   Code = "InsufficientBalance"
	CodeInsufficientAllowance Code = "InsufficientAllowance"
	CodeNotMultipleOfLot      Code = "NotMultipleOfLot"

	// CodeNotReceiver: a legacy transfer targeted a contract that does not
	// accept transfer callbacks.
	CodeNotReceiver Code = "NotReceiver"

	// CodeZeroAddress: a transfer, mint or approval named the zero account.
	CodeZeroAddress Code = "ZeroAddress"

	// CodeOverflow: a balance or supply would exceed 2^256-1.
	CodeOverflow Code = "Overflow"
)

// Error is a revert: a synchronous, non-retryable failure that aborts the
// whole top-level operation.
type Error struct {
	Code   Code
	Reason string
}

// Sentinels for errors.Is. Matching is by Code only, so a sentinel matches
// every revert of that category regardless of the reason text.
var (
	ErrUnauthorized          = &Error{Code: CodeUnauthorized}
	ErrInvalidTag            = &Error{Code: CodeInvalidTag}
	ErrZeroAmount            = &Error{Code: CodeZeroAmount}
	ErrZeroLots              = &Error{Code: CodeZeroLots}
	ErrInsufficientBalance   = &Error{Code: CodeInsufficientBalance}
	ErrInsufficientAllowance = &Error{Code: CodeInsufficientAllowance}
	ErrNotMultipleOfLot      = &Error{Code: CodeNotMultipleOfLot}
	ErrNotReceiver           = &Error{Code: CodeNotReceiver}
	ErrZeroAddress           = &Error{Code: CodeZeroAddress}
	ErrOverflow              = &Error{Code: CodeOverflow}
)

// Revert creates an Error with the given code and revert reason.
func Revert(code Code, reason string) *Error {
	return &Error{Code: code, Reason: reason}
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Reason == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Reason)
}

// Is matches any *Error with the same Code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// AsError extracts the revert from err, following wrapped errors.
func AsError(err error) (*Error, bool) {
	var le *Error
	if errors.As(err, &le) {
		return le, true
	}
	return nil, false
}

// ReasonOf returns the revert reason carried by err, or err.Error() when err
// is not a revert.
func ReasonOf(err error) string {
	if le, ok := AsError(err); ok && le.Reason != "" {
		return le.Reason
	}
	if err == nil {
		return ""
	}
	return err.Error()
}
