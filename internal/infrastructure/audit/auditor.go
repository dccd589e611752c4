// Package audit runs tenant-wide consistency checks over persisted ledger entries.
package audit

import (
	"context"
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/erp/ledger/internal/domain/ledger"
	"github.com/erp/ledger/internal/infrastructure/persistence"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// UnbalancedGroup is a reference group whose reporting-currency totals differ by more than the tolerance
type UnbalancedGroup struct {
	DocumentRef       string          `json:"document_ref"`
	ReportingCurrency string          `json:"reporting_currency"`
	DebitTotal        decimal.Decimal `json:"debit_total"`
	CreditTotal       decimal.Decimal `json:"credit_total"`
	Difference        decimal.Decimal `json:"difference"`
	EntryCount        int             `json:"entry_count"`
}

// LedgerAuditor queries ledger_entries directly through database/sql.
// It reads across every document of a tenant, so it is meant for operators, not the posting path.
type LedgerAuditor struct {
	db      *sql.DB
	builder sq.StatementBuilderType
}

// NewLedgerAuditor creates an auditor. dialect selects the placeholder format.
func NewLedgerAuditor(db *sql.DB, dialect string) *LedgerAuditor {
	var placeholder sq.PlaceholderFormat = sq.Question
	if dialect == persistence.DriverPostgres {
		placeholder = sq.Dollar
	}
	return &LedgerAuditor{db: db, builder: sq.StatementBuilder.PlaceholderFormat(placeholder)}
}

var (
	debitSum  = fmt.Sprintf("SUM(CASE WHEN nature = '%s' THEN equivalent_amount ELSE 0 END)", ledger.NatureDebit)
	creditSum = fmt.Sprintf("SUM(CASE WHEN nature = '%s' THEN equivalent_amount ELSE 0 END)", ledger.NatureCredit)
	netSum    = fmt.Sprintf("SUM(CASE WHEN nature = '%s' THEN equivalent_amount ELSE -equivalent_amount END)", ledger.NatureDebit)
)

// UnbalancedQuery builds the query behind FindUnbalanced
func (a *LedgerAuditor) UnbalancedQuery(tenantID uuid.UUID, tolerance decimal.Decimal) sq.SelectBuilder {
	return a.builder.
		Select(
			"document_ref",
			"reporting_currency",
			debitSum+" AS debit_total",
			creditSum+" AS credit_total",
			"COUNT(*) AS entry_count",
		).
		From("ledger_entries").
		Where(sq.Eq{"tenant_id": tenantID.String()}).
		GroupBy("document_ref", "reporting_currency").
		Having(sq.Expr("ABS("+netSum+") > ?", tolerance.InexactFloat64())).
		OrderBy("document_ref")
}

// FindUnbalanced returns every reference group of the tenant that does not balance within tolerance
func (a *LedgerAuditor) FindUnbalanced(ctx context.Context, tenantID uuid.UUID, tolerance decimal.Decimal) ([]UnbalancedGroup, error) {
	if tenantID == uuid.Nil {
		return nil, ledger.NewTenantMismatchError("tenant is required for an audit")
	}
	if tolerance.IsNegative() {
		return nil, fmt.Errorf("tolerance must not be negative, got %s", tolerance)
	}

	rows, err := a.UnbalancedQuery(tenantID, tolerance).RunWith(a.db).QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to audit ledger entries: %w", err)
	}
	defer rows.Close()

	var groups []UnbalancedGroup
	for rows.Next() {
		var g UnbalancedGroup
		if err := rows.Scan(&g.DocumentRef, &g.ReportingCurrency, &g.DebitTotal, &g.CreditTotal, &g.EntryCount); err != nil {
			return nil, fmt.Errorf("failed to scan audit row: %w", err)
		}
		g.Difference = g.DebitTotal.Sub(g.CreditTotal)
		groups = append(groups, g)
	}
	return groups, rows.Err()
}
