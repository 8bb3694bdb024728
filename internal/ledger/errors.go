package ledger

import "errors"

var (
	// ErrDefinitionNotFound means the rule, chore or reward does not exist or is inactive
	ErrDefinitionNotFound = errors.New("definition not found")
	// ErrInsufficientBalance means the balance cannot cover the debit
	ErrInsufficientBalance = errors.New("insufficient balance")
	// ErrInvalidStateTransition means the purchase is missing or not in the basket
	ErrInvalidStateTransition = errors.New("invalid state transition")
	// ErrConflictRetryExhausted means concurrent writers kept winning the race
	ErrConflictRetryExhausted = errors.New("conflict retry exhausted")
	// ErrPersistenceUnavailable means the store could not be reached
	ErrPersistenceUnavailable = errors.New("persistence unavailable")

	ErrProfileNotFound   = errors.New("kid profile not found")
	ErrInvalidKind       = errors.New("invalid definition kind")
	ErrInvalidDefinition = errors.New("invalid definition")
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrCuratedDefinition = errors.New("curated definitions cannot be changed")
	ErrDefinitionInUse   = errors.New("definition has history, deactivate it instead")
)

// IsRejection reports whether err is a domain refusal rather than an
// infrastructure failure
func IsRejection(err error) bool {
	for _, target := range []error{
		ErrDefinitionNotFound,
		ErrInsufficientBalance,
		ErrInvalidStateTransition,
		ErrProfileNotFound,
		ErrInvalidKind,
		ErrInvalidDefinition,
		ErrInvalidAmount,
		ErrCuratedDefinition,
		ErrDefinitionInUse,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
