package api

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/jafarshop/bundles/internal/api/handlers"
	"github.com/jafarshop/bundles/internal/api/middleware"
	"github.com/jafarshop/bundles/internal/config"
	"github.com/jafarshop/bundles/internal/repository"
	"github.com/jafarshop/bundles/internal/service"
)

// NewRouter creates and configures the Gin router
func NewRouter(cfg *config.Config, repos *repository.Repositories, evalService *service.EvaluationService, offerService *service.OfferService, logger *zap.Logger) *gin.Engine {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Middleware
	router.Use(customRecovery(logger))
	router.Use(loggingMiddleware(logger))

	// Root: friendly response so GET / returns 200 instead of 404
	router.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"service": "Bundle Promotions API",
			"endpoints": []string{
				"GET /health",
				"POST /v1/cart/evaluate",
				"POST /v1/promotions/sync",
				"GET /v1/admin/bundles",
				"POST /v1/admin/bundles",
				"GET /v1/admin/bundles/:id",
				"PUT /v1/admin/bundles/:id",
				"POST /v1/admin/bundles/:id/status",
				"DELETE /v1/admin/bundles/:id",
			},
		})
	})

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// Platform webhook: app uninstall deactivates the store
	router.POST("/webhooks/shopify/app-uninstalled", handlers.HandleAppUninstalledWebhook(cfg, repos, logger))

	// API v1 routes
	v1 := router.Group("/v1")
	{
		// Storefront routes (require authentication)
		storefrontRoutes := v1.Group("")
		storefrontRoutes.Use(middleware.AuthMiddleware(repos, logger))
		storefrontRoutes.Use(middleware.IdempotencyMiddleware(repos, logger))
		{
			storefrontRoutes.POST("/cart/evaluate", handlers.HandleCartEvaluate(evalService, logger))
			storefrontRoutes.POST("/promotions/sync", handlers.HandlePromotionSync(repos, evalService, offerService, logger))
		}

		// Merchant admin: bundle definition management
		adminRoutes := v1.Group("/admin")
		adminRoutes.Use(middleware.AuthMiddleware(repos, logger))
		{
			adminRoutes.GET("/bundles", handlers.HandleListBundles(repos, logger))
			adminRoutes.POST("/bundles", handlers.HandleCreateBundle(repos, logger))
			adminRoutes.GET("/bundles/:id", handlers.HandleGetBundle(repos, logger))
			adminRoutes.PUT("/bundles/:id", handlers.HandleUpdateBundle(repos, logger))
			adminRoutes.POST("/bundles/:id/status", handlers.HandleUpdateBundleStatus(repos, logger))
			adminRoutes.DELETE("/bundles/:id", handlers.HandleDeleteBundle(repos, logger))
		}
	}

	return router
}

// customRecovery is a custom recovery middleware that logs panics
func customRecovery(logger *zap.Logger) gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logger.Error("Panic recovered",
			zap.Any("error", recovered),
			zap.String("path", c.Request.URL.Path),
			zap.String("method", c.Request.Method),
		)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal server error",
			"details": fmt.Sprintf("%v", recovered),
		})
	})
}

// loggingMiddleware logs HTTP requests
func loggingMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		status := c.Writer.Status()
		logger.Info("HTTP request",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", status),
		)
	}
}
