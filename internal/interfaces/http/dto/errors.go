package dto

import (
	"net/http"

	appevent "github.com/erp/ledger/internal/application/event"
	"github.com/erp/ledger/internal/domain/ledger"
)

// Transport error codes. Domain errors keep their own codes.
const (
	ErrCodeInternal     = "INTERNAL"
	ErrCodeBadRequest   = "BAD_REQUEST"
	ErrCodeUnauthorized = "UNAUTHORIZED"
	ErrCodeTokenExpired = "TOKEN_EXPIRED"
	ErrCodeNotFound     = "NOT_FOUND"
	ErrCodeTooLarge     = "REQUEST_TOO_LARGE"
)

var statusByCode = map[string]int{
	ErrCodeBadRequest:   http.StatusBadRequest,
	ErrCodeUnauthorized: http.StatusUnauthorized,
	ErrCodeTokenExpired: http.StatusUnauthorized,
	ErrCodeNotFound:     http.StatusNotFound,
	ErrCodeTooLarge:     http.StatusRequestEntityTooLarge,

	"INVALID_INPUT":                  http.StatusBadRequest,
	ledger.CodeInvalidDocument:       http.StatusBadRequest,
	ledger.CodeInvalidComponent:      http.StatusBadRequest,
	ledger.CodeInvalidExchangeRate:   http.StatusBadRequest,
	ledger.CodeTenantMismatch:        http.StatusForbidden,
	ledger.CodeAlreadyPosted:         http.StatusConflict,
	"ALREADY_EXISTS":                 http.StatusConflict,
	"CONCURRENCY_CONFLICT":           http.StatusConflict,
	ledger.CodeNothingToReverse:      http.StatusNotFound,
	ledger.CodeMissingAccountMapping: http.StatusUnprocessableEntity,
	ledger.CodeUnbalancedPosting:     http.StatusUnprocessableEntity,
	"INVALID_STATE":                  http.StatusUnprocessableEntity,
	appevent.CodeNotDead:             http.StatusConflict,
}

// GetHTTPStatus maps an error code to its HTTP status. Unknown codes are server errors.
func GetHTTPStatus(code string) int {
	if status, ok := statusByCode[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}
