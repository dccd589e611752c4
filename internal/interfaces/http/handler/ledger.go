package handler

import (
	"context"
	"net/http"
	"strings"

	appledger "github.com/erp/ledger/internal/application/ledger"
	"github.com/erp/ledger/internal/domain/ledger"
	"github.com/erp/ledger/internal/infrastructure/audit"
	"github.com/erp/ledger/internal/infrastructure/auth"
	"github.com/erp/ledger/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PostingService is the posting engine as seen by the HTTP layer
type PostingService interface {
	Post(ctx context.Context, doc ledger.SourceDocument, components []ledger.Component, actor ledger.Actor) ([]*ledger.LedgerEntry, error)
	Repost(ctx context.Context, doc ledger.SourceDocument, components []ledger.Component, actor ledger.Actor) ([]*ledger.LedgerEntry, error)
	Reverse(ctx context.Context, tenantID uuid.UUID, documentRef string) (int64, error)
	CheckBalance(ctx context.Context, tenantID uuid.UUID, documentRef string) (ledger.BalanceResult, error)
}

// Auditor finds unbalanced reference groups of a tenant
type Auditor interface {
	FindUnbalanced(ctx context.Context, tenantID uuid.UUID, tolerance decimal.Decimal) ([]audit.UnbalancedGroup, error)
}

// DefaultAuditTolerance is used when the audit query names none
var DefaultAuditTolerance = decimal.RequireFromString("0.01")

// LedgerHandler serves posting, reversal, balance and audit requests
type LedgerHandler struct {
	BaseHandler
	posting PostingService
	auditor Auditor
}

// NewLedgerHandler creates a ledger handler
func NewLedgerHandler(posting PostingService, auditor Auditor) *LedgerHandler {
	return &LedgerHandler{posting: posting, auditor: auditor}
}

// ReverseResponse reports how many legs a reversal removed
type ReverseResponse struct {
	DocumentRef string `json:"document_ref"`
	Removed     int64  `json:"removed"`
}

// AuditResponse lists a tenant's unbalanced reference groups
type AuditResponse struct {
	Tolerance decimal.Decimal         `json:"tolerance"`
	Groups    []audit.UnbalancedGroup `json:"groups"`
}

// Post posts a source document for the caller's tenant.
// POST /api/v1/ledger/postings
func (h *LedgerHandler) Post(c *gin.Context) {
	h.handlePosting(c, h.posting.Post, http.StatusCreated)
}

// Repost replaces a posted document's legs.
// PUT /api/v1/ledger/postings
func (h *LedgerHandler) Repost(c *gin.Context) {
	h.handlePosting(c, h.posting.Repost, http.StatusOK)
}

type postFunc func(ctx context.Context, doc ledger.SourceDocument, components []ledger.Component, actor ledger.Actor) ([]*ledger.LedgerEntry, error)

func (h *LedgerHandler) handlePosting(c *gin.Context, run postFunc, status int) {
	actor, ok := middleware.GetActor(c)
	if !ok {
		h.Unauthorized(c, "Authentication required")
		return
	}

	var req appledger.PostingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, "Malformed posting request: "+err.Error())
		return
	}
	// the caller is whoever the token names, never the body
	req.Actor = appledger.ActorDTO{
		ID:       actor.ID.String(),
		TenantID: actor.TenantID.String(),
		Name:     actor.Name,
	}
	cmd, err := req.ToCommand()
	if err != nil {
		h.HandleError(c, err)
		return
	}

	entries, err := run(c.Request.Context(), cmd.Document, cmd.Components, cmd.Actor)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	result := appledger.NewPostingResult(cmd.Document.Header().DocumentRef, entries)
	if status == http.StatusCreated {
		c.Header("Location", "/api/v1/ledger/documents/"+result.DocumentRef+"/balance")
		h.Created(c, result)
		return
	}
	h.Success(c, result)
}

// Reverse deletes a document's legs.
// DELETE /api/v1/ledger/documents/:ref
func (h *LedgerHandler) Reverse(c *gin.Context) {
	tenant, ok := tenantID(c)
	if !ok {
		h.Unauthorized(c, "Authentication required")
		return
	}
	ref := strings.TrimSpace(c.Param("ref"))
	removed, err := h.posting.Reverse(c.Request.Context(), tenant, ref)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, ReverseResponse{DocumentRef: ref, Removed: removed})
}

// Balance checks one reference group.
// GET /api/v1/ledger/documents/:ref/balance
func (h *LedgerHandler) Balance(c *gin.Context) {
	tenant, ok := tenantID(c)
	if !ok {
		h.Unauthorized(c, "Authentication required")
		return
	}
	result, err := h.posting.CheckBalance(c.Request.Context(), tenant, strings.TrimSpace(c.Param("ref")))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// Audit lists the tenant's unbalanced reference groups.
// GET /api/v1/ledger/audit?tolerance=0.01
func (h *LedgerHandler) Audit(c *gin.Context) {
	tenant, ok := tenantID(c)
	if !ok {
		h.Unauthorized(c, "Authentication required")
		return
	}
	tolerance := DefaultAuditTolerance
	if raw := c.Query("tolerance"); raw != "" {
		parsed, err := decimal.NewFromString(raw)
		if err != nil || parsed.IsNegative() {
			h.BadRequest(c, "tolerance must be a non-negative decimal")
			return
		}
		tolerance = parsed
	}

	groups, err := h.auditor.FindUnbalanced(c.Request.Context(), tenant, tolerance)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	if groups == nil {
		groups = []audit.UnbalancedGroup{}
	}
	h.Success(c, AuditResponse{Tolerance: tolerance, Groups: groups})
}

// RegisterRoutes mounts the ledger endpoints on an authenticated group
func (h *LedgerHandler) RegisterRoutes(rg *gin.RouterGroup) {
	g := rg.Group("/ledger")
	g.POST("/postings", h.Post)
	g.PUT("/postings", h.Repost)
	g.DELETE("/documents/:ref", h.Reverse)
	g.GET("/documents/:ref/balance", h.Balance)
	g.GET("/audit", middleware.RequireRole(auth.RoleLedgerAdmin), h.Audit)
}
