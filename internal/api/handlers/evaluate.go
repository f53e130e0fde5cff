package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/jafarshop/bundles/internal/api/middleware"
	"github.com/jafarshop/bundles/internal/domain"
	"github.com/jafarshop/bundles/internal/service"
)

// CartLineRequest is one line of an incoming storefront cart
type CartLineRequest struct {
	VariantID string `json:"variant_id" binding:"required"`
	Quantity  int    `json:"quantity" binding:"required,min=1"`
}

// EvaluateRequest represents the cart evaluation payload
type EvaluateRequest struct {
	Lines []CartLineRequest `json:"lines" binding:"required,min=1"`
}

// HandleCartEvaluate handles POST /v1/cart/evaluate. Evaluation is pure:
// no promotion is issued and no platform state changes.
func HandleCartEvaluate(evalService *service.EvaluationService, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		store, ok := middleware.GetStoreFromContext(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		var req EvaluateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusUnprocessableEntity, gin.H{
				"error":   "validation failed",
				"details": err.Error(),
			})
			return
		}

		result, err := evalService.EvaluateCart(c.Request.Context(), store, toCartLines(req.Lines))
		if err != nil {
			logger.Error("Cart evaluation failed",
				zap.String("store_id", store.ID.String()),
				zap.Error(err),
			)
			c.JSON(http.StatusBadGateway, gin.H{"error": "failed to evaluate cart"})
			return
		}

		c.JSON(http.StatusOK, result)
	}
}

func toCartLines(lines []CartLineRequest) []domain.CartLine {
	out := make([]domain.CartLine, 0, len(lines))
	for _, l := range lines {
		out = append(out, domain.CartLine{VariantID: l.VariantID, Quantity: l.Quantity})
	}
	return out
}
