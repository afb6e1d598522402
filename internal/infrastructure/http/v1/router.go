// Package v1 provides HTTP API version 1.
package v1

import (
	"github.com/gin-gonic/gin"

	"replenix/internal/infrastructure/http/v1/handlers"
	"replenix/internal/infrastructure/http/v1/middleware"
	"replenix/pkg/logger"
)

// RouterConfig holds router dependencies.
type RouterConfig struct {
	// Logger for request logging
	Logger *logger.Logger

	// DB is pinged by the readiness probe
	DB handlers.Pinger

	Receiving handlers.ReceivingService
	Inventory handlers.InventoryService
	WorkOrders handlers.WorkOrderService

	// IdempotencyStore backs the idempotency middleware when IdempotencyEnabled is set
	IdempotencyStore   middleware.IdempotencyStore
	IdempotencyEnabled bool
}

// NewRouter creates and configures the Gin router.
func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	if cfg.Logger == nil {
		cfg.Logger = logger.Nop()
	}

	router := gin.New()

	// Global middleware (order matters!)
	router.Use(middleware.Recovery())
	router.Use(middleware.Trace())
	router.Use(middleware.Logger(cfg.Logger))
	router.Use(middleware.ErrorHandler())

	healthHandler := handlers.NewHealthHandler(cfg.DB)
	health := router.Group("/health")
	{
		health.GET("/live", healthHandler.Live)
		health.GET("/ready", healthHandler.Ready)
	}

	v1 := router.Group("/api/v1")
	v1.Use(middleware.Identity())
	if cfg.IdempotencyEnabled && cfg.IdempotencyStore != nil {
		v1.Use(middleware.Idempotency(cfg.IdempotencyStore))
	}

	base := handlers.NewBaseHandler()
	handlers.NewReceivingHandler(base, cfg.Receiving).RegisterRoutes(v1.Group("/receiving"))
	handlers.NewInventoryHandler(base, cfg.Inventory).RegisterRoutes(v1.Group("/inventory"))
	handlers.NewOrdersHandler(base, cfg.WorkOrders).RegisterRoutes(v1.Group("/orders"))

	return router
}
