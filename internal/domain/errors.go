package domain

import "errors"

// Ledger error taxonomy. Every rejected mutation maps onto exactly one of
// these; handlers branch on them with errors.Is to pick response codes.
var (
	ErrInvalidAmount         = errors.New("invalid amount")
	ErrInsufficientBalance   = errors.New("insufficient balance")
	ErrInsufficientAllowance = errors.New("insufficient allowance")
	ErrUnauthorized          = errors.New("unauthorized")
	ErrMaturityExpired       = errors.New("maturity expired")
	ErrNoHolding             = errors.New("no holding")
	ErrUnsupportedOperation  = errors.New("unsupported operation")

	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrLockHeld      = errors.New("lock already held")
)
