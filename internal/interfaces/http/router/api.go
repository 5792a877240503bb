package router

import (
	"time"

	"github.com/coccinelle/backend/internal/infrastructure/logger"
	"github.com/coccinelle/backend/internal/interfaces/http/handler"
	"github.com/coccinelle/backend/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// EngineConfig holds the cross-cutting settings of the HTTP engine
type EngineConfig struct {
	ServiceName      string
	TracingEnabled   bool
	ProfilingEnabled bool
	MaxBodySize      int64
	RequestTimeout   time.Duration
	TrustedProxies   []string
	// RateLimiter is applied per tenant; nil disables rate limiting
	RateLimiter *middleware.RateLimiter
	// Meter records HTTP server metrics; nil disables them
	Meter  metric.Meter
	Logger *zap.Logger
}

// Handlers are the API handlers mounted by NewEngine
type Handlers struct {
	Inventory   *handler.InventoryHandler
	Reservation *handler.ReservationHandler
	CRMSync     *handler.CRMSyncHandler
	System      *handler.SystemHandler
}

// NewEngine builds the gin engine with the middleware chain, /health,
// /metrics and the versioned API.
func NewEngine(cfg EngineConfig, h Handlers) (*gin.Engine, error) {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	middleware.SetupValidator()

	engine := gin.New()
	if err := engine.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		return nil, err
	}

	// Order matters: the request id feeds the logger, tracing must wrap the
	// tenant middleware so its attributes land on the server span.
	engine.Use(
		middleware.RequestID(),
		logger.GinMiddleware(cfg.Logger),
		logger.Recovery(cfg.Logger),
		middleware.TracingWithConfig(middleware.TracingConfig{
			ServiceName: cfg.ServiceName,
			Enabled:     cfg.TracingEnabled,
		}),
		middleware.SpanErrorMarker(),
		middleware.Secure(),
	)
	if cfg.MaxBodySize > 0 {
		engine.Use(middleware.BodyLimit(cfg.MaxBodySize))
	}
	engine.Use(
		middleware.Timeout(cfg.RequestTimeout),
		middleware.TenantMiddlewareWithConfig(middleware.TenantMiddlewareConfig{
			SkipPaths: []string{"/health", "/metrics"},
			Required:  true,
			Logger:    cfg.Logger,
		}),
		middleware.TracingAttributeInjector(),
		middleware.HTTPMetrics(cfg.Meter),
		middleware.ProfilingWithConfig(middleware.ProfilingConfig{
			Enabled:   cfg.ProfilingEnabled,
			SkipPaths: []string{"/health", "/metrics"},
		}),
	)
	if cfg.RateLimiter != nil {
		engine.Use(middleware.RateLimitByTenant(cfg.RateLimiter))
	}

	if h.System != nil {
		engine.GET("/health", h.System.Health)
	}
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r := NewRouter(engine)
	if h.Inventory != nil {
		r.Register(inventoryRoutes(h.Inventory))
	}
	if h.Reservation != nil {
		r.Register(reservationRoutes(h.Reservation))
		r.Register(NewDomainGroup("customers", "/customers").
			GET("/:id/reservations", h.Reservation.ListByCustomer))
	}
	if h.CRMSync != nil {
		r.Register(crmRoutes(h.CRMSync))
		r.Register(NewDomainGroup("sync-jobs", "/sync-jobs").
			GET("", h.CRMSync.ListJobs).
			GET("/:id", h.CRMSync.GetJob))
		r.Register(NewDomainGroup("integrations", "/integrations").
			GET("/health", h.CRMSync.Health))
	}
	r.Setup()
	cfg.Logger.Debug("API routes mounted", zap.Strings("routes", r.Routes()))

	return engine, nil
}

func inventoryRoutes(h *handler.InventoryHandler) *DomainGroup {
	g := NewDomainGroup("inventory", "/inventory")
	g.GET("/products", h.ListProducts).
		GET("/products/:id", h.GetProduct).
		GET("/products/:id/availability", h.CheckAvailability).
		GET("/sku/:sku/availability", h.CheckAvailabilityBySku).
		POST("/availability", h.CheckBulkAvailability).
		POST("/stock", h.UpdateStock)
	return g
}

func reservationRoutes(h *handler.ReservationHandler) *DomainGroup {
	g := NewDomainGroup("reservations", "/reservations")
	g.POST("", h.Reserve).
		GET("/:id", h.Get).
		POST("/:id/cancel", h.Cancel).
		POST("/:id/extend", h.Extend).
		POST("/:id/fulfill", h.Fulfill)
	return g
}

func crmRoutes(h *handler.CRMSyncHandler) *DomainGroup {
	g := NewDomainGroup("crm", "/crm")
	g.POST("/:system/sync", h.SyncAll).
		POST("/:system/sync/:customerId", h.SyncCustomer)
	return g
}
