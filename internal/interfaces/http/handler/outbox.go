package handler

import (
	"context"
	"strconv"

	appevent "github.com/erp/ledger/internal/application/event"
	"github.com/erp/ledger/internal/infrastructure/auth"
	"github.com/erp/ledger/internal/interfaces/http/dto"
	"github.com/erp/ledger/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// OutboxAdmin is the operator view of the outbox
type OutboxAdmin interface {
	DeadLetters(ctx context.Context, page, pageSize int) (*appevent.DeadLetterPage, error)
	Retry(ctx context.Context, id uuid.UUID) (*appevent.OutboxEntryDTO, error)
	RetryAll(ctx context.Context) (int64, error)
	Stats(ctx context.Context) (*appevent.OutboxStatsDTO, error)
}

// OutboxHandler serves the dead letter and delivery statistics endpoints
type OutboxHandler struct {
	BaseHandler
	admin OutboxAdmin
}

// NewOutboxHandler creates an outbox handler
func NewOutboxHandler(admin OutboxAdmin) *OutboxHandler {
	return &OutboxHandler{admin: admin}
}

// RetryAllResponse reports how many dead letters were revived
type RetryAllResponse struct {
	Revived int64 `json:"revived"`
}

// ListDead lists dead-lettered entries.
// GET /api/v1/admin/outbox/dead?page=1&page_size=20
func (h *OutboxHandler) ListDead(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "0"))

	result, err := h.admin.DeadLetters(c.Request.Context(), page, pageSize)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.SuccessWithMeta(c, result.Entries, dto.Meta{
		Total:      result.Total,
		Page:       result.Page,
		PageSize:   result.PageSize,
		TotalPages: result.TotalPages,
	})
}

// Retry revives one dead letter.
// POST /api/v1/admin/outbox/dead/:id/retry
func (h *OutboxHandler) Retry(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "id must be a UUID")
		return
	}
	entry, err := h.admin.Retry(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, entry)
}

// RetryAll revives every dead letter.
// POST /api/v1/admin/outbox/dead/retry
func (h *OutboxHandler) RetryAll(c *gin.Context) {
	n, err := h.admin.RetryAll(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, RetryAllResponse{Revived: n})
}

// Stats counts entries per delivery status.
// GET /api/v1/admin/outbox/stats
func (h *OutboxHandler) Stats(c *gin.Context) {
	stats, err := h.admin.Stats(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, stats)
}

// RegisterRoutes mounts the outbox endpoints. Every route needs the admin role.
func (h *OutboxHandler) RegisterRoutes(rg *gin.RouterGroup) {
	g := rg.Group("/admin/outbox", middleware.RequireRole(auth.RoleLedgerAdmin))
	g.GET("/dead", h.ListDead)
	g.POST("/dead/retry", h.RetryAll)
	g.POST("/dead/:id/retry", h.Retry)
	g.GET("/stats", h.Stats)
}
