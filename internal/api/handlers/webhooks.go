package handlers

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/jafarshop/bundles/internal/config"
	"github.com/jafarshop/bundles/internal/repository"
)

func verifyPlatformHMAC(secret string, body []byte, header string) bool {
	if secret == "" || header == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(body)
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	// constant-time compare
	return hmac.Equal([]byte(expected), []byte(strings.TrimSpace(header)))
}

// HandleAppUninstalledWebhook handles POST /webhooks/shopify/app-uninstalled.
// Configure the app/uninstalled topic for it. The store is deactivated so
// its API keys stop working; issued records lapse via the expiry sweep.
func HandleAppUninstalledWebhook(cfg *config.Config, repos *repository.Repositories, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		secret := strings.TrimSpace(cfg.WebhookSecret)
		if secret == "" {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "webhook not configured"})
			return
		}

		// HMAC is computed over the raw bytes
		bodyBytes, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read body"})
			return
		}

		hmacHeader := c.GetHeader("X-Shopify-Hmac-Sha256")
		if !verifyPlatformHMAC(secret, bodyBytes, hmacHeader) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid webhook signature"})
			return
		}

		shopDomain := strings.TrimSpace(c.GetHeader("X-Shopify-Shop-Domain"))
		if shopDomain == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "missing shop domain header"})
			return
		}

		store, err := repos.Store.GetByShopDomain(c.Request.Context(), shopDomain)
		if err != nil {
			// Unknown shop: acknowledge so the platform stops retrying
			logger.Warn("Uninstall webhook for unknown shop", zap.String("shop_domain", shopDomain))
			c.JSON(http.StatusOK, gin.H{"status": "ignored"})
			return
		}

		store.IsActive = false
		if err := repos.Store.Update(c.Request.Context(), store); err != nil {
			logger.Error("Failed to deactivate store", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}

		logger.Info("Store deactivated via uninstall webhook", zap.String("shop_domain", shopDomain))
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}
