package escrow

import (
	"errors"

	"ms-escrow/internal/ledger"
	"ms-escrow/internal/token"
)

var (
	// ErrUnauthorizedSigner is returned when an organizer-gated operation is
	// signed by anyone but the event's organizer.
	ErrUnauthorizedSigner = errors.New("signer is not the event organizer")

	// ErrInvalidEventReference is returned when a referenced account does not
	// decode as the expected record kind, or when a ticket names a different
	// event than the one supplied.
	ErrInvalidEventReference = errors.New("invalid event reference")

	// ErrAlreadyCheckedIn is returned on a repeat check-in. Retries after
	// success must fail, not silently succeed.
	ErrAlreadyCheckedIn = errors.New("ticket already checked in")

	// ErrRecordTooLarge is returned when title or description exceed what the
	// ledger will fund for one record.
	ErrRecordTooLarge = errors.New("record exceeds maximum size")
)

// Code maps a failure to its structured error code for API responses and
// logs.
func Code(err error) string {
	switch {
	case errors.Is(err, ledger.ErrAlreadyInitialized):
		return "ALREADY_INITIALIZED"
	case errors.Is(err, ErrInvalidEventReference):
		return "INVALID_EVENT_REFERENCE"
	case errors.Is(err, ErrUnauthorizedSigner):
		return "UNAUTHORIZED_SIGNER"
	case errors.Is(err, ErrAlreadyCheckedIn):
		return "ALREADY_CHECKED_IN"
	case errors.Is(err, ledger.ErrInsufficientFunds):
		return "INSUFFICIENT_FUNDS"
	case errors.Is(err, ledger.ErrArithmeticOverflow):
		return "ARITHMETIC_OVERFLOW"
	case errors.Is(err, ledger.ErrAccountNotFound):
		return "ACCOUNT_NOT_FOUND"
	case errors.Is(err, token.ErrInvalidMint):
		return "INVALID_MINT"
	case errors.Is(err, token.ErrInvalidMintAuthority):
		return "INVALID_MINT_AUTHORITY"
	case errors.Is(err, token.ErrMintInUse):
		return "MINT_IN_USE"
	case errors.Is(err, ErrRecordTooLarge):
		return "RECORD_TOO_LARGE"
	default:
		return "INTERNAL"
	}
}
