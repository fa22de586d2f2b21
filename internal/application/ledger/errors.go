package ledger

import "errors"

var (
	ErrGrantNotFound   = errors.New("grant not found")
	ErrEventNotFound   = errors.New("vesting event not found")
	ErrInvoiceNotFound = errors.New("invoice not found")

	// ErrGrantCancelled rejects vesting against a cancelled grant.
	ErrGrantCancelled = errors.New("grant is cancelled")

	// ErrEventCancelled rejects processing a cancelled vesting event.
	ErrEventCancelled = errors.New("vesting event is cancelled")

	// ErrWrongTrigger rejects an operation that does not match the grant's
	// vesting trigger (e.g. invoice vesting on a scheduled grant).
	ErrWrongTrigger = errors.New("operation does not match grant vesting trigger")

	ErrInsufficientUnvested  = errors.New("not enough unvested shares")
	ErrExerciseExceedsVested = errors.New("number of options exceeds vested shares")
	ErrInvalidShareCount     = errors.New("share count must be positive")
	ErrMissingReference      = errors.New("a reference id is required for idempotent replay")
	ErrNothingToVest         = errors.New("invoice carries no vestable equity shares")

	// errAlreadyApplied aborts the transaction when the idempotency key
	// collides; callers see Result.AlreadyApplied instead of an error.
	errAlreadyApplied = errors.New("already applied")
)
