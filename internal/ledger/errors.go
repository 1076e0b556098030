package ledger

import "errors"

// Host-level failures surfaced by account arena operations. Service-level
// failures (authorization, pairing, check-in state) live in the escrow
// package.
var (
	// ErrAlreadyInitialized is returned when a record creation targets an
	// address that already holds an account. Creation never overwrites.
	ErrAlreadyInitialized = errors.New("account already initialized at this address")

	// ErrAccountNotFound is returned when a referenced address holds no
	// account.
	ErrAccountNotFound = errors.New("account not found")

	// ErrInsufficientFunds is returned when a debit would take a balance
	// below its required floor, or when nothing is available to withdraw.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrArithmeticOverflow is returned when balance arithmetic exceeds the
	// representable range.
	ErrArithmeticOverflow = errors.New("arithmetic overflow")
)
