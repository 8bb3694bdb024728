// Package errors formats command failures for the terminal.
package errors

import (
	stderrors "errors"
	"fmt"
	"os"

	"github.com/julianstephens/tipje/internal/family"
	"github.com/julianstephens/tipje/internal/ledger"
	"github.com/julianstephens/tipje/internal/logger"
	"github.com/julianstephens/tipje/internal/onboarding"
	"github.com/julianstephens/tipje/internal/storage"
)

var hints = []struct {
	target error
	hint   string
}{
	{ledger.ErrInsufficientBalance, "earn more peanuts first, or pick a cheaper reward"},
	{ledger.ErrDefinitionNotFound, "list the kid's cards with 'tipje card list'"},
	{ledger.ErrInvalidStateTransition, "only rewards still in the basket can be given or removed, see 'tipje basket'"},
	{ledger.ErrConflictRetryExhausted, "another device changed the same data, try again"},
	{ledger.ErrPersistenceUnavailable, "check the storage backend with 'tipje doctor'"},
	{ledger.ErrDefinitionInUse, "deactivate the card with 'tipje card deactivate' instead"},
	{ledger.ErrCuratedDefinition, "curated cards can only be activated or deactivated"},
	{ledger.ErrProfileNotFound, "list profiles with 'tipje kid list'"},
	{family.ErrProfileLimit, "delete a profile before adding another"},
	{family.ErrWrongPIN, "enter the guardian PIN set with 'tipje pin set'"},
	{family.ErrAccountNotFound, "run 'tipje init' first"},
	{storage.ErrNotLoaded, "run 'tipje init' first"},
	{onboarding.ErrIncomplete, "see 'tipje onboarding' for the remaining steps"},
}

// Hint returns a suggestion for a known error, or an empty string
func Hint(err error) string {
	for _, h := range hints {
		if stderrors.Is(err, h.target) {
			return h.hint
		}
	}
	return ""
}

// Format formats an error message with a consistent "Error: " prefix
func Format(err error) string {
	if err == nil {
		return ""
	}
	if hint := Hint(err); hint != "" {
		return fmt.Sprintf("Error: %v\nHint: %s", err, hint)
	}
	return fmt.Sprintf("Error: %v", err)
}

// Formatf formats an error message with a consistent "Error: " prefix using a format string
func Formatf(format string, args ...interface{}) string {
	return fmt.Sprintf("Error: "+format, args...)
}

// Fatal logs an error and exits the program with exit code 1
func Fatal(err error) {
	if err != nil {
		logger.Error("Command execution failed", "error", err)
		fmt.Fprintln(os.Stderr, Format(err))
		os.Exit(1)
	}
}

// Fatalf logs and formats an error message, then exits the program with exit code 1
func Fatalf(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	logger.Error("Command execution failed", "error", msg)
	fmt.Fprintln(os.Stderr, Formatf(format, args...))
	os.Exit(1)
}
