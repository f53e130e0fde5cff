package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/jafarshop/bundles/internal/api/middleware"
	"github.com/jafarshop/bundles/internal/domain"
	"github.com/jafarshop/bundles/internal/repository"
	"github.com/jafarshop/bundles/internal/service"
)

// PromotionSyncRequest represents the evaluate-and-reconcile payload
type PromotionSyncRequest struct {
	Lines []CartLineRequest `json:"lines" binding:"required"`
	// CartKey is the long-lived storefront cart identifier; omit it for
	// anonymous carts identified by content hash.
	CartKey  string `json:"cart_key"`
	Mode     string `json:"mode" binding:"omitempty,oneof=authoritative incremental"`
	TTLHours int    `json:"ttl_hours" binding:"omitempty,min=1,max=720"`
	Verbose  bool   `json:"verbose"`
}

// PromotionSyncResponse represents the reconciliation outcome
type PromotionSyncResponse struct {
	Action     service.Action           `json:"action"`
	Offer      *PromotionView           `json:"offer,omitempty"`
	Failure    *service.Failure         `json:"failure,omitempty"`
	Evaluation *domain.EvaluationResult `json:"evaluation,omitempty"`
}

// PromotionView is the client-facing shape of an issued promotion
type PromotionView struct {
	ID             string               `json:"id"`
	Code           string               `json:"code"`
	Kind           domain.PromotionKind `json:"kind"`
	DiscountType   domain.DiscountType  `json:"discount_type"`
	DiscountAmount float64              `json:"discount_amount"`
	ProductIDs     []string             `json:"product_ids"`
	ExpiresAt      string               `json:"expires_at"`
}

// HandlePromotionSync handles POST /v1/promotions/sync: evaluate the cart
// and converge the platform discount to the result. Reconciliation
// failures come back with HTTP 200 and a fail action; the storefront
// degrades to showing no discount rather than erroring the cart.
func HandlePromotionSync(repos *repository.Repositories, evalService *service.EvaluationService, offerService *service.OfferService, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		store, ok := middleware.GetStoreFromContext(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		var req PromotionSyncRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusUnprocessableEntity, gin.H{
				"error":   "validation failed",
				"details": err.Error(),
			})
			return
		}

		result, err := evalService.EvaluateCart(c.Request.Context(), store, toCartLines(req.Lines))
		if err != nil {
			logger.Error("Cart evaluation failed during sync",
				zap.String("store_id", store.ID.String()),
				zap.Error(err),
			)
			c.JSON(http.StatusBadGateway, gin.H{"error": "failed to evaluate cart"})
			return
		}

		outcome := offerService.IssueOrReuse(c.Request.Context(), store, result, service.IssueOptions{
			TTLHours: req.TTLHours,
			CartKey:  req.CartKey,
			Mode:     service.Mode(req.Mode),
			Verbose:  req.Verbose,
		})

		storeIdempotencyKey(c, repos, store, logger)

		resp := PromotionSyncResponse{
			Action:  outcome.Action,
			Failure: outcome.Failure,
		}
		if outcome.Offer != nil {
			resp.Offer = toPromotionView(outcome.Offer)
		}
		if req.Verbose {
			resp.Evaluation = result
		}
		c.JSON(http.StatusOK, resp)
	}
}

// storeIdempotencyKey records a fresh idempotency key after the sync ran.
// Best-effort: reconciliation is convergent, so a lost key only costs a
// redundant re-run.
func storeIdempotencyKey(c *gin.Context, repos *repository.Repositories, store *domain.Store, logger *zap.Logger) {
	key, requestHash, replayed := middleware.GetIdempotencyInfo(c)
	if replayed || key == "" {
		return
	}
	err := repos.IdempotencyKey.Create(context.WithoutCancel(c.Request.Context()), &domain.IdempotencyKey{
		Key:         key,
		StoreID:     store.ID,
		RequestHash: requestHash,
	})
	if err != nil {
		logger.Warn("Failed to store idempotency key", zap.Error(err))
	}
}

func toPromotionView(record *domain.PromotionRecord) *PromotionView {
	return &PromotionView{
		ID:             record.ID.String(),
		Code:           record.Code,
		Kind:           record.Kind,
		DiscountType:   record.DiscountType,
		DiscountAmount: record.DiscountAmount,
		ProductIDs:     record.IncludeProductIDs,
		ExpiresAt:      record.ExpiresAt.UTC().Format(time.RFC3339),
	}
}
