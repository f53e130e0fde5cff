package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/jafarshop/bundles/internal/domain"
	"github.com/jafarshop/bundles/internal/repository"
)

const StoreContextKey = "store"

// AuthMiddleware authenticates requests using the store API key
func AuthMiddleware(repos *repository.Repositories, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing authorization header"})
			c.Abort()
			return
		}

		// Extract Bearer token
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization header format"})
			c.Abort()
			return
		}

		apiKey := strings.TrimSpace(parts[1])
		if apiKey == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing API key"})
			c.Abort()
			return
		}

		store, err := repos.Store.GetByAPIKeyHash(c.Request.Context(), apiKey)
		if err != nil {
			logger.Warn("Failed to authenticate store", zap.Error(err))
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid API key"})
			c.Abort()
			return
		}

		if !store.IsActive {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "store is inactive"})
			c.Abort()
			return
		}

		c.Set(StoreContextKey, store)
		c.Next()
	}
}

// GetStoreFromContext retrieves the authenticated store from the Gin context
func GetStoreFromContext(c *gin.Context) (*domain.Store, bool) {
	value, exists := c.Get(StoreContextKey)
	if !exists {
		return nil, false
	}

	store, ok := value.(*domain.Store)
	return store, ok
}
