package credit

import "errors"

var (
	// ErrInsufficientCredits is returned when the unexpired balance does not cover a debit
	ErrInsufficientCredits = errors.New("insufficient credits")

	// ErrInvalidAmount is returned when amount is <= 0
	ErrInvalidAmount = errors.New("invalid amount: must be greater than 0")

	ErrInvalidType   = errors.New("invalid transaction type")
	ErrNoUsage       = errors.New("no usage recorded for reference")
	ErrInvalidSource = errors.New("invalid source type")

	// ErrUserNotFound is returned when user doesn't exist
	ErrUserNotFound = errors.New("user not found")

	ErrInternal = errors.New("internal error")
)
