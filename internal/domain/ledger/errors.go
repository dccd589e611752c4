package ledger

import (
	"fmt"

	"github.com/erp/ledger/internal/domain/shared"
)

// Ledger error codes
const (
	CodeTenantMismatch        = "TENANT_MISMATCH"
	CodeInvalidExchangeRate   = "INVALID_EXCHANGE_RATE"
	CodeMissingAccountMapping = "MISSING_ACCOUNT_MAPPING"
	CodeUnbalancedPosting     = "UNBALANCED_POSTING"
	CodeAlreadyPosted         = "ALREADY_POSTED"
	CodeNothingToReverse      = "NOTHING_TO_REVERSE"
	CodeInvalidComponent      = "INVALID_COMPONENT"
	CodeInvalidDocument       = "INVALID_DOCUMENT"
)

// Sentinel errors. Detailed errors carry the same code and match with errors.Is.
var (
	ErrTenantMismatch        = shared.NewDomainError(CodeTenantMismatch, "Operands belong to different tenants")
	ErrInvalidExchangeRate   = shared.NewDomainError(CodeInvalidExchangeRate, "Exchange rate must be positive")
	ErrMissingAccountMapping = shared.NewDomainError(CodeMissingAccountMapping, "No account is mapped for the ledger role")
	ErrUnbalancedPosting     = shared.NewDomainError(CodeUnbalancedPosting, "Debit and credit totals do not balance")
	ErrAlreadyPosted         = shared.NewDomainError(CodeAlreadyPosted, "Document is already posted")
	ErrNothingToReverse      = shared.NewDomainError(CodeNothingToReverse, "No ledger entries exist for the document")
	ErrInvalidComponent      = shared.NewDomainError(CodeInvalidComponent, "Invalid posting component")
	ErrInvalidDocument       = shared.NewDomainError(CodeInvalidDocument, "Invalid source document")
)

func detailed(code, format string, args ...any) *shared.DomainError {
	return shared.NewDomainError(code, fmt.Sprintf(format, args...))
}

// NewAlreadyPostedError reports a duplicate posting of documentRef
func NewAlreadyPostedError(documentRef string) error {
	return detailed(CodeAlreadyPosted, "document %s is already posted", documentRef)
}

// NewNothingToReverseError reports a reversal of a document with no entries
func NewNothingToReverseError(documentRef string) error {
	return detailed(CodeNothingToReverse, "no ledger entries to reverse for document %s", documentRef)
}

// NewTenantMismatchError reports a tenant ownership violation
func NewTenantMismatchError(format string, args ...any) error {
	return detailed(CodeTenantMismatch, format, args...)
}
