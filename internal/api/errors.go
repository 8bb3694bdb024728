package api

import (
	"errors"
	"net/http"

	"github.com/julianstephens/tipje/internal/catalog"
	"github.com/julianstephens/tipje/internal/family"
	"github.com/julianstephens/tipje/internal/ledger"
	"github.com/julianstephens/tipje/internal/logger"
	"github.com/julianstephens/tipje/internal/onboarding"
	"github.com/julianstephens/tipje/internal/storage"
)

type errorClass struct {
	target error
	status int
	kind   string
}

var errorClasses = []errorClass{
	{ledger.ErrDefinitionNotFound, http.StatusNotFound, "definition_not_found"},
	{ledger.ErrProfileNotFound, http.StatusNotFound, "profile_not_found"},
	{family.ErrAccountNotFound, http.StatusNotFound, "account_not_found"},
	{catalog.ErrTemplateNotFound, http.StatusNotFound, "template_not_found"},
	{storage.ErrInvalidPath, http.StatusNotFound, "not_found"},
	{ledger.ErrInsufficientBalance, http.StatusConflict, "insufficient_balance"},
	{ledger.ErrInvalidStateTransition, http.StatusConflict, "invalid_state_transition"},
	{ledger.ErrDefinitionInUse, http.StatusConflict, "definition_in_use"},
	{ledger.ErrCuratedDefinition, http.StatusConflict, "curated_definition"},
	{family.ErrProfileLimit, http.StatusConflict, "profile_limit"},
	{onboarding.ErrIncomplete, http.StatusConflict, "onboarding_incomplete"},
	{ledger.ErrConflictRetryExhausted, http.StatusServiceUnavailable, "conflict_retry_exhausted"},
	{ledger.ErrPersistenceUnavailable, http.StatusServiceUnavailable, "persistence_unavailable"},
	{family.ErrWrongPIN, http.StatusForbidden, "wrong_pin"},
	{ledger.ErrInvalidKind, http.StatusBadRequest, "invalid_kind"},
	{ledger.ErrInvalidDefinition, http.StatusBadRequest, "invalid_definition"},
	{ledger.ErrInvalidAmount, http.StatusBadRequest, "invalid_amount"},
	{family.ErrInvalidName, http.StatusBadRequest, "invalid_name"},
	{family.ErrInvalidPIN, http.StatusBadRequest, "invalid_pin"},
}

// classify maps a domain error to an HTTP status and a stable error type
func classify(err error) (int, string) {
	var bad errBadRequest
	if errors.As(err, &bad) {
		return http.StatusBadRequest, "bad_request"
	}
	for _, c := range errorClasses {
		if errors.Is(err, c.target) {
			return c.status, c.kind
		}
	}
	return http.StatusInternalServerError, "internal"
}

func writeFailure(w http.ResponseWriter, err error) {
	status, kind := classify(err)
	if status >= http.StatusInternalServerError {
		logger.Error("Request failed", "error", err)
	}
	writeError(w, status, kind, err.Error())
}
