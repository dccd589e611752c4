package ledger

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// PostingOptions tunes BuildEntries
type PostingOptions struct {
	// BalanceToleranceUnits is the allowed debit/credit difference in reporting-currency minor units
	BalanceToleranceUnits int
	// Now overrides the creation timestamp, mainly for tests
	Now func() time.Time
}

// DefaultPostingOptions returns options with the default tolerance
func DefaultPostingOptions() PostingOptions {
	return PostingOptions{BalanceToleranceUnits: DefaultBalanceToleranceUnits}
}

func (o PostingOptions) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}

// BuildEntries turns a document's components into balanced ledger legs.
//
// The tenant guard runs over the document, the actor, the mapping and every mapped
// account before anything is built, and each leg is stamped with the guarded tenant.
// Zero-amount components produce no leg. Each non-zero component is resolved to its
// mapped account, booked on its role's fixed nature and converted with the document's
// stored rate. The legs are balance-checked before they are returned.
func BuildEntries(doc SourceDocument, components []Component, mapping *AccountMapping, actor Actor, opts PostingOptions) ([]*LedgerEntry, error) {
	if doc == nil {
		return nil, detailed(CodeInvalidDocument, "document is required")
	}
	if mapping == nil {
		return nil, detailed(CodeMissingAccountMapping, "tenant has no account mapping configured")
	}

	operands := []TenantOwned{doc, actor, mapping}
	for _, account := range mapping.Accounts() {
		operands = append(operands, account)
	}
	tenantID, err := AssertSingleTenant(operands...)
	if err != nil {
		return nil, err
	}

	header := doc.Header()
	if err := header.Validate(); err != nil {
		return nil, err
	}
	txType := doc.TransactionType()
	if err := ValidateComponents(txType, components); err != nil {
		return nil, err
	}

	legs := make([]Component, 0, len(components))
	for _, c := range components {
		if !c.Amount.IsZero() {
			legs = append(legs, c)
		}
	}
	if len(legs) == 0 {
		return nil, detailed(CodeInvalidComponent, "document %s has no non-zero components to post", header.DocumentRef)
	}
	sortComponents(legs)

	accounts := make([]Account, len(legs))
	var missing []string
	for i, c := range legs {
		account, err := mapping.Resolve(c.Role)
		if err != nil {
			missing = append(missing, c.Role.String())
			continue
		}
		accounts[i] = account
	}
	if len(missing) > 0 {
		return nil, detailed(CodeMissingAccountMapping, "no account mapped for roles %s (tenant %s)", strings.Join(missing, ", "), tenantID)
	}

	converter, err := NewConverter(header.ExchangeRate, mapping.ReportingCurrency)
	if err != nil {
		return nil, err
	}

	createdAt := opts.now()
	postingDate := header.PostingDate
	if postingDate.IsZero() {
		postingDate = createdAt
	}

	entries := make([]*LedgerEntry, 0, len(legs))
	for i, c := range legs {
		entries = append(entries, &LedgerEntry{
			ID:                uuid.New(),
			TenantID:          tenantID,
			DocumentRef:       header.DocumentRef,
			ReferenceNumber:   ReferenceNumber(header.DocumentRef, c.Role),
			TransactionType:   txType,
			Role:              c.Role,
			AccountID:         accounts[i].ID,
			Nature:            c.Role.Nature(),
			DocumentCurrency:  header.Currency,
			DocumentAmount:    c.Amount,
			ReportingCurrency: converter.ReportingCurrency(),
			EquivalentAmount:  converter.Convert(c.Amount),
			ExchangeRate:      converter.Rate(),
			PostingDate:       postingDate,
			CreatedAt:         createdAt,
			CreatedBy:         actor.ID,
		})
	}

	result := CheckBalance(entries, Tolerance(mapping.ReportingCurrency, opts.BalanceToleranceUnits))
	if !result.Balanced {
		return nil, detailed(CodeUnbalancedPosting,
			"document %s does not balance: debit %s, credit %s, difference %s exceeds tolerance %s",
			header.DocumentRef, result.DebitTotal, result.CreditTotal, result.Difference, result.Tolerance)
	}
	return entries, nil
}
