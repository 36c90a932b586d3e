package entity

import (
	"errors"
	"fmt"
)

// Infrastructure errors. Callers may retry the whole operation.
var (
	// ErrStoreUnavailable is returned when the ledger store cannot serve a request
	// (connection refused, pool acquisition timeout, commit failure).
	ErrStoreUnavailable = errors.New("ledger store unavailable")

	// ErrConnectionUnavailable is returned when no backing store is configured at all.
	// It wraps ErrStoreUnavailable so callers only need to check one sentinel.
	ErrConnectionUnavailable = fmt.Errorf("%w: no backing store configured", ErrStoreUnavailable)

	// ErrConcurrentUpdate signals a conditional write lost a race. Backends that
	// cannot lock rows retry the whole unit of work when they see it.
	ErrConcurrentUpdate = errors.New("concurrent update detected")
)

// Business rule violations. Never retried, nothing is persisted.
var (
	ErrInsufficientBalance  = errors.New("insufficient balance")
	ErrInsufficientFunds    = errors.New("insufficient funds")
	ErrInsufficientQuantity = errors.New("insufficient quantity")
)

// Precondition violations.
var (
	ErrAssetNotFound     = errors.New("asset not found")
	ErrHoldingNotFound   = errors.New("holding not found")
	ErrInvalidPrice      = errors.New("invalid asset price")
	ErrInvalidAmount     = errors.New("amount must be positive")
	ErrInvalidQuantity   = errors.New("quantity must be positive")
	ErrAssetTypeMismatch = errors.New("asset type not supported for this operation")
	ErrInvalidSignature  = errors.New("payment signature is not valid")
	ErrInvalidUser       = errors.New("user id is required")
)

// IsBusinessError reports whether err is a rule or precondition violation that
// should be surfaced to the caller as-is.
func IsBusinessError(err error) bool {
	for _, target := range []error{
		ErrInsufficientBalance, ErrInsufficientFunds, ErrInsufficientQuantity,
		ErrAssetNotFound, ErrHoldingNotFound, ErrInvalidPrice,
		ErrInvalidAmount, ErrInvalidQuantity, ErrAssetTypeMismatch,
		ErrInvalidSignature, ErrInvalidUser,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
