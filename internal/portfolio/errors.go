package portfolio

import "errors"

var (
	// ErrInvalidQuantity rejects buys and sells with a non-positive amount.
	ErrInvalidQuantity = errors.New("quantity must be positive")

	// ErrInsufficientShares rejects sells that exceed the held quantity,
	// including sells of tickers that are not held at all.
	ErrInsufficientShares = errors.New("not enough shares to sell")

	// ErrConflict reports that a mutation kept losing its version check
	// against concurrent writers and gave up.
	ErrConflict = errors.New("position was modified concurrently, retries exhausted")
)
