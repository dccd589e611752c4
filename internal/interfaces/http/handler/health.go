package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/erp/ledger/internal/infrastructure/logger"
	"github.com/erp/ledger/internal/infrastructure/persistence"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// DatabaseProbe reports database reachability and pool usage
type DatabaseProbe interface {
	PingContext(ctx context.Context) error
	Stats() (persistence.ConnectionStats, error)
}

// HealthHandler serves liveness and readiness probes
type HealthHandler struct {
	db      DatabaseProbe
	timeout time.Duration
}

// NewHealthHandler creates a health handler probing db
func NewHealthHandler(db DatabaseProbe) *HealthHandler {
	return &HealthHandler{db: db, timeout: 2 * time.Second}
}

// Live always answers ok while the process serves requests.
// GET /healthz
func (h *HealthHandler) Live(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Ready checks the database.
// GET /readyz
func (h *HealthHandler) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	now := time.Now().Format(time.RFC3339)
	if err := h.db.PingContext(ctx); err != nil {
		logger.GetGinLogger(c).Warn("Health check failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "time": now, "database": "error"})
		return
	}
	resp := gin.H{"status": "healthy", "time": now, "database": "ok"}
	if stats, err := h.db.Stats(); err == nil {
		resp["pool"] = gin.H{
			"open":    stats.OpenConnections,
			"in_use":  stats.InUse,
			"idle":    stats.Idle,
			"waiting": stats.WaitCount,
		}
	}
	c.JSON(http.StatusOK, resp)
}
