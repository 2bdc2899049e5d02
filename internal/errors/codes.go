package errors

import "net/http"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Validation errors
	CodeVacancyIDRequired  Code = "VACANCY_ID_REQUIRED"
	CodeCenterIDRequired   Code = "CENTER_ID_REQUIRED"
	CodePaperSetIDRequired Code = "PAPER_SET_ID_REQUIRED"
	CodeInvalidSetLabel    Code = "INVALID_SET_LABEL"

	// State errors
	CodePaperSetsExist   Code = "PAPER_SETS_ALREADY_EXIST"
	CodePaperSetNotFound Code = "PAPER_SET_NOT_FOUND"

	// Collaborator errors
	CodeLedgerUnavailable Code = "LEDGER_UNAVAILABLE"
	CodeStorageFailure    Code = "STORAGE_FAILURE"
)

// HTTPStatus maps domain codes to HTTP status codes.
func (c Code) HTTPStatus() int {
	switch c {
	// BadRequest - validation failures, bad input
	case CodeVacancyIDRequired,
		CodeCenterIDRequired,
		CodePaperSetIDRequired,
		CodeInvalidSetLabel:
		return http.StatusBadRequest

	// Conflict - uniqueness-constrained records already exist
	case CodePaperSetsExist:
		return http.StatusConflict

	// NotFound - resource doesn't exist
	case CodePaperSetNotFound:
		return http.StatusNotFound

	// ServiceUnavailable - transient collaborator failure, retryable
	case CodeLedgerUnavailable:
		return http.StatusServiceUnavailable

	default:
		return http.StatusInternalServerError
	}
}

// Retryable reports whether callers may retry the failed operation as-is.
func (c Code) Retryable() bool {
	return c == CodeLedgerUnavailable || c == CodeStorageFailure
}
