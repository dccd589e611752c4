package ledger

import (
	"strings"
	"time"

	"github.com/erp/ledger/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// maxDocumentRefLength leaves room for the longest role suffix in a 100-char reference number
const maxDocumentRefLength = 94

// SourceDocument is an approved business document whose monetary effect is posted to the ledger.
// The engine only reads it.
type SourceDocument interface {
	TenantOwned
	Header() DocumentHeader
	TransactionType() TransactionType
	// ComponentAmounts returns the document's stored amount per ledger role.
	ComponentAmounts() map[Role]decimal.Decimal
}

// DocumentHeader carries the fields every source document shares
type DocumentHeader struct {
	TenantID     uuid.UUID            `json:"tenant_id"`
	DocumentRef  string               `json:"document_ref"`
	Currency     valueobject.Currency `json:"currency"`
	ExchangeRate decimal.Decimal      `json:"exchange_rate"`
	PostingDate  time.Time            `json:"posting_date"`
}

// GetTenantID returns the owning tenant
func (h DocumentHeader) GetTenantID() uuid.UUID {
	return h.TenantID
}

// Header returns the document header
func (h DocumentHeader) Header() DocumentHeader {
	return h
}

// Validate checks the header fields the engine depends on.
// The exchange rate is checked by the converter.
func (h DocumentHeader) Validate() error {
	ref := strings.TrimSpace(h.DocumentRef)
	switch {
	case ref == "":
		return detailed(CodeInvalidDocument, "document reference is required")
	case ref != h.DocumentRef:
		return detailed(CodeInvalidDocument, "document reference %q has surrounding whitespace", h.DocumentRef)
	case len(ref) > maxDocumentRefLength:
		return detailed(CodeInvalidDocument, "document reference %q exceeds %d characters", ref, maxDocumentRefLength)
	case !h.Currency.IsValid():
		return detailed(CodeInvalidDocument, "unsupported document currency %q", h.Currency)
	}
	return nil
}

// SalesInvoice is an approved sales invoice.
// Subtotal - Discount + Tax - WithholdingTax == Balance by the invoice's own arithmetic.
type SalesInvoice struct {
	DocumentHeader
	Subtotal       decimal.Decimal `json:"subtotal"`
	Discount       decimal.Decimal `json:"discount"`
	Tax            decimal.Decimal `json:"tax"`
	WithholdingTax decimal.Decimal `json:"withholding_tax"`
	Balance        decimal.Decimal `json:"balance"`
	CostOfGoods    decimal.Decimal `json:"cost_of_goods"`
	InventoryValue decimal.Decimal `json:"inventory_value"`
}

// TransactionType returns INVOICE_POSTING
func (d *SalesInvoice) TransactionType() TransactionType {
	return TransactionTypeInvoicePosting
}

// ComponentAmounts maps the invoice's stored fields to roles.
// Receivable is the outstanding balance, Revenue the pre-tax pre-discount subtotal.
func (d *SalesInvoice) ComponentAmounts() map[Role]decimal.Decimal {
	return map[Role]decimal.Decimal{
		RoleRevenue:        d.Subtotal,
		RoleDiscount:       d.Discount,
		RoleTax:            d.Tax,
		RoleWithholdingTax: d.WithholdingTax,
		RoleReceivable:     d.Balance,
		RoleCostOfGoods:    d.CostOfGoods,
		RoleInventoryValue: d.InventoryValue,
	}
}

// PaymentReceipt records a customer payment against invoices
type PaymentReceipt struct {
	DocumentHeader
	AmountReceived decimal.Decimal `json:"amount_received"`
	WithholdingTax decimal.Decimal `json:"withholding_tax"`
	AmountSettled  decimal.Decimal `json:"amount_settled"`
}

// TransactionType returns INVOICE_PAYMENT
func (d *PaymentReceipt) TransactionType() TransactionType {
	return TransactionTypeInvoicePayment
}

// ComponentAmounts maps the receipt's stored fields to roles
func (d *PaymentReceipt) ComponentAmounts() map[Role]decimal.Decimal {
	return map[Role]decimal.Decimal{
		RoleCash:                 d.AmountReceived,
		RoleWithholdingTax:       d.WithholdingTax,
		RoleReceivableSettlement: d.AmountSettled,
	}
}

// InventoryAdjustment is an approved stock count adjustment valued at cost
type InventoryAdjustment struct {
	DocumentHeader
	ShrinkageCost      decimal.Decimal `json:"shrinkage_cost"`
	InventoryWriteDown decimal.Decimal `json:"inventory_write_down"`
	InventoryIncrease  decimal.Decimal `json:"inventory_increase"`
	AdjustmentGain     decimal.Decimal `json:"adjustment_gain"`
}

// TransactionType returns INVENTORY_ADJUSTMENT
func (d *InventoryAdjustment) TransactionType() TransactionType {
	return TransactionTypeInventoryAdjustment
}

// ComponentAmounts maps the adjustment's stored fields to roles
func (d *InventoryAdjustment) ComponentAmounts() map[Role]decimal.Decimal {
	return map[Role]decimal.Decimal{
		RoleCostOfGoods:    d.ShrinkageCost,
		RoleInventoryValue: d.InventoryWriteDown,
		RoleInventoryGain:  d.InventoryIncrease,
		RoleAdjustmentGain: d.AdjustmentGain,
	}
}

// LoyaltyRedemption records loyalty points applied as payment
type LoyaltyRedemption struct {
	DocumentHeader
	PointsValue   decimal.Decimal `json:"points_value"`
	AmountSettled decimal.Decimal `json:"amount_settled"`
}

// TransactionType returns LOYALTY_REDEMPTION
func (d *LoyaltyRedemption) TransactionType() TransactionType {
	return TransactionTypeLoyaltyRedemption
}

// ComponentAmounts maps the redemption's stored fields to roles
func (d *LoyaltyRedemption) ComponentAmounts() map[Role]decimal.Decimal {
	return map[Role]decimal.Decimal{
		RoleLoyaltyLiability:     d.PointsValue,
		RoleReceivableSettlement: d.AmountSettled,
	}
}

var (
	_ SourceDocument = (*SalesInvoice)(nil)
	_ SourceDocument = (*PaymentReceipt)(nil)
	_ SourceDocument = (*InventoryAdjustment)(nil)
	_ SourceDocument = (*LoyaltyRedemption)(nil)
)
