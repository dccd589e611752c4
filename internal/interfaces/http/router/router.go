// Package router assembles the gin engine of the ledger HTTP API.
package router

import (
	"net/http"

	"github.com/erp/ledger/internal/infrastructure/logger"
	"github.com/erp/ledger/internal/interfaces/http/dto"
	"github.com/erp/ledger/internal/interfaces/http/handler"
	"github.com/erp/ledger/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RouteRegistrar defines the interface for registering routes
type RouteRegistrar interface {
	RegisterRoutes(rg *gin.RouterGroup)
}

// Router mounts registrars under /api/<version> behind the auth middleware
type Router struct {
	engine     *gin.Engine
	apiVersion string
	auth       []gin.HandlerFunc
	registrars []RouteRegistrar
}

// RouterOption is a functional option for Router configuration
type RouterOption func(*Router)

// WithAPIVersion sets the API version prefix (e.g., "v1", "v2")
func WithAPIVersion(version string) RouterOption {
	return func(r *Router) {
		r.apiVersion = version
	}
}

// WithAuth sets the middleware every API route runs first
func WithAuth(handlers ...gin.HandlerFunc) RouterOption {
	return func(r *Router) {
		r.auth = append(r.auth, handlers...)
	}
}

// NewRouter creates a new Router instance
func NewRouter(engine *gin.Engine, opts ...RouterOption) *Router {
	r := &Router{engine: engine, apiVersion: "v1"}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds a RouteRegistrar to be registered later
func (r *Router) Register(registrar RouteRegistrar) *Router {
	r.registrars = append(r.registrars, registrar)
	return r
}

// Setup registers all routes with the engine
func (r *Router) Setup() {
	api := r.engine.Group("/api/"+r.apiVersion, r.auth...)
	for _, registrar := range r.registrars {
		registrar.RegisterRoutes(api)
	}
}

// EngineConfig configures the shared middleware chain
type EngineConfig struct {
	Mode           string
	ServiceName    string
	MaxBodySize    int64
	TracingEnabled bool
}

// NewEngine builds a gin engine with request IDs, tracing, panic recovery,
// request logging and a body size limit, in that order.
func NewEngine(cfg EngineConfig, log *zap.Logger) *gin.Engine {
	if cfg.Mode != "" {
		gin.SetMode(cfg.Mode)
	}
	engine := gin.New()
	engine.HandleMethodNotAllowed = true

	engine.Use(middleware.RequestID())
	if cfg.TracingEnabled {
		engine.Use(middleware.Tracing(cfg.ServiceName), middleware.TraceRequestID())
	}
	engine.Use(logger.Recovery(log))
	engine.Use(logger.GinMiddleware(log))
	if cfg.MaxBodySize > 0 {
		engine.Use(middleware.BodyLimit(cfg.MaxBodySize))
	}
	return engine
}

// Dependencies are the services behind the API
type Dependencies struct {
	Posting handler.PostingService
	Auditor handler.Auditor
	Outbox  handler.OutboxAdmin
	DB      handler.DatabaseProbe
	Tokens  middleware.TokenValidator
}

// NewAPI builds the complete ledger API: health probes outside auth and
// the versioned ledger and outbox routes behind JWT authentication.
func NewAPI(cfg EngineConfig, log *zap.Logger, deps Dependencies) *gin.Engine {
	engine := NewEngine(cfg, log)

	health := handler.NewHealthHandler(deps.DB)
	engine.GET("/healthz", health.Live)
	engine.GET("/readyz", health.Ready)

	NewRouter(engine, WithAuth(middleware.JWTAuth(deps.Tokens))).
		Register(handler.NewLedgerHandler(deps.Posting, deps.Auditor)).
		Register(handler.NewOutboxHandler(deps.Outbox)).
		Setup()

	engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, dto.NewErrorResponse(dto.ErrCodeNotFound, "Route not found", c.GetString(logger.RequestIDKey)))
	})
	engine.NoMethod(func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, dto.NewErrorResponse("METHOD_NOT_ALLOWED", "Method not allowed", c.GetString(logger.RequestIDKey)))
	})
	return engine
}
