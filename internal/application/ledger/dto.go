package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/erp/ledger/internal/domain/ledger"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/shopspring/decimal"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// Report JSON field names in errors
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// PostingRequest is the wire form of a post or repost command
type PostingRequest struct {
	Type       string          `json:"type" validate:"required,oneof=INVOICE_POSTING INVOICE_PAYMENT INVENTORY_ADJUSTMENT LOYALTY_REDEMPTION"`
	Actor      ActorDTO        `json:"actor"`
	Document   json.RawMessage `json:"document" validate:"required"`
	Components []ComponentDTO  `json:"components,omitempty" validate:"omitempty,dive"`
}

// ActorDTO identifies the user issuing the command
type ActorDTO struct {
	ID       string `json:"id" validate:"required,uuid"`
	TenantID string `json:"tenant_id" validate:"required,uuid"`
	Name     string `json:"name" validate:"max=100"`
}

// ComponentDTO is an explicit posting component.
// When a request carries none, components are allocated from the document.
type ComponentDTO struct {
	Role   string          `json:"role" validate:"required"`
	Amount decimal.Decimal `json:"amount"`
}

// PostingCommand is a decoded and validated PostingRequest
type PostingCommand struct {
	Document   ledger.SourceDocument
	Components []ledger.Component
	Actor      ledger.Actor
}

// ParsePostingRequest decodes a JSON posting request into domain types.
// Structural problems are reported together as one ErrInvalidDocument error.
func ParsePostingRequest(data []byte) (*PostingCommand, error) {
	var req PostingRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("%w: malformed request: %v", ledger.ErrInvalidDocument, err)
	}
	return req.ToCommand()
}

// ToCommand validates the request and converts it to domain types
func (r *PostingRequest) ToCommand() (*PostingCommand, error) {
	if err := validateStruct(r); err != nil {
		return nil, err
	}

	doc, err := decodeDocument(ledger.TransactionType(r.Type), r.Document)
	if err != nil {
		return nil, err
	}

	cmd := &PostingCommand{
		Document: doc,
		Actor: ledger.Actor{
			ID:       uuid.MustParse(r.Actor.ID),
			TenantID: uuid.MustParse(r.Actor.TenantID),
			Name:     r.Actor.Name,
		},
	}
	if len(r.Components) == 0 {
		return cmd, nil
	}

	var errs *multierror.Error
	cmd.Components = make([]ledger.Component, 0, len(r.Components))
	for _, c := range r.Components {
		role, err := ledger.ParseRole(c.Role)
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("%w: %v", ledger.ErrInvalidComponent, err))
			continue
		}
		cmd.Components = append(cmd.Components, ledger.Component{Role: role, Amount: c.Amount})
	}
	if err := errs.ErrorOrNil(); err != nil {
		return nil, err
	}
	return cmd, nil
}

// EntryView is the JSON shape of a posted leg
type EntryView struct {
	ReferenceNumber   string          `json:"reference_number"`
	Role              ledger.Role     `json:"role"`
	Nature            ledger.Nature   `json:"nature"`
	AccountID         uuid.UUID       `json:"account_id"`
	DocumentCurrency  string          `json:"document_currency"`
	DocumentAmount    decimal.Decimal `json:"document_amount"`
	ReportingCurrency string          `json:"reporting_currency"`
	EquivalentAmount  decimal.Decimal `json:"equivalent_amount"`
	ExchangeRate      decimal.Decimal `json:"exchange_rate"`
	PostingDate       time.Time       `json:"posting_date"`
}

// PostingResult is the JSON shape of a successful post or repost
type PostingResult struct {
	DocumentRef string      `json:"document_ref"`
	Entries     []EntryView `json:"entries"`
}

// NewPostingResult converts posted entries to their wire form
func NewPostingResult(documentRef string, entries []*ledger.LedgerEntry) PostingResult {
	out := PostingResult{DocumentRef: documentRef, Entries: make([]EntryView, 0, len(entries))}
	for _, e := range entries {
		out.Entries = append(out.Entries, EntryView{
			ReferenceNumber:   e.ReferenceNumber,
			Role:              e.Role,
			Nature:            e.Nature,
			AccountID:         e.AccountID,
			DocumentCurrency:  e.DocumentCurrency.String(),
			DocumentAmount:    e.DocumentAmount,
			ReportingCurrency: e.ReportingCurrency.String(),
			EquivalentAmount:  e.EquivalentAmount,
			ExchangeRate:      e.ExchangeRate,
			PostingDate:       e.PostingDate,
		})
	}
	return out
}

func decodeDocument(txType ledger.TransactionType, raw json.RawMessage) (ledger.SourceDocument, error) {
	var doc ledger.SourceDocument
	switch txType {
	case ledger.TransactionTypeInvoicePosting:
		doc = &ledger.SalesInvoice{}
	case ledger.TransactionTypeInvoicePayment:
		doc = &ledger.PaymentReceipt{}
	case ledger.TransactionTypeInventoryAdjustment:
		doc = &ledger.InventoryAdjustment{}
	case ledger.TransactionTypeLoyaltyRedemption:
		doc = &ledger.LoyaltyRedemption{}
	default:
		return nil, fmt.Errorf("%w: unsupported transaction type %q", ledger.ErrInvalidDocument, txType)
	}
	if err := json.Unmarshal(raw, doc); err != nil {
		return nil, fmt.Errorf("%w: cannot decode %s document: %v", ledger.ErrInvalidDocument, txType, err)
	}
	return doc, nil
}

func validateStruct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("%w: %v", ledger.ErrInvalidDocument, err)
	}
	var errs *multierror.Error
	for _, fe := range fieldErrs {
		errs = multierror.Append(errs, fmt.Errorf("%w: %s", ledger.ErrInvalidDocument, fieldMessage(fe)))
	}
	return errs.ErrorOrNil()
}

func fieldMessage(fe validator.FieldError) string {
	// drop the root struct name: "PostingRequest.actor.id" -> "actor.id"
	field := fe.Namespace()
	if i := strings.IndexByte(field, '.'); i >= 0 {
		field = field[i+1:]
	}
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "uuid":
		return field + " must be a UUID"
	case "oneof":
		return field + " must be one of: " + fe.Param()
	case "max":
		return field + " must be at most " + fe.Param() + " characters"
	default:
		return field + " is invalid"
	}
}
