package ledger

import "errors"

// Validation errors are returned before anything is written.
var (
	ErrInvalidAmount   = errors.New("ledger: amount must be positive")
	ErrInvalidQuantity = errors.New("ledger: quantity must be positive")
	ErrInvalidPrice    = errors.New("ledger: price must be positive")
	ErrInvalidFees     = errors.New("ledger: fees must not be negative")
	ErrInvalidSymbol   = errors.New("ledger: symbol is required")
)

// State errors indicate the request does not fit the current holdings.
var (
	ErrNoSuchHolding        = errors.New("ledger: no holding for symbol")
	ErrInsufficientQuantity = errors.New("ledger: insufficient quantity")
	ErrTradeIDConflict      = errors.New("ledger: trade id already used by a different trade")
)

// IsValidationError reports whether err is a caller-correctable input error.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrInvalidQuantity) ||
		errors.Is(err, ErrInvalidPrice) ||
		errors.Is(err, ErrInvalidFees) ||
		errors.Is(err, ErrInvalidSymbol)
}

// IsStateError reports whether err was caused by the current ledger state.
func IsStateError(err error) bool {
	return errors.Is(err, ErrNoSuchHolding) ||
		errors.Is(err, ErrInsufficientQuantity) ||
		errors.Is(err, ErrTradeIDConflict)
}
