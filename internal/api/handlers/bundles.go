package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jafarshop/bundles/internal/api/middleware"
	"github.com/jafarshop/bundles/internal/domain"
	"github.com/jafarshop/bundles/internal/repository"
	"github.com/jafarshop/bundles/pkg/errors"
)

// BundleRequest represents a bundle create/update payload
type BundleRequest struct {
	Name           string                   `json:"name" binding:"required"`
	Status         string                   `json:"status" binding:"omitempty,oneof=draft active paused"`
	Components     []domain.BundleComponent `json:"components" binding:"required,min=1"`
	Rules          domain.BundleRules       `json:"rules"`
	CoverVariantID *string                  `json:"cover_variant_id,omitempty"`
}

func (r *BundleRequest) validate() error {
	for i, comp := range r.Components {
		if comp.VariantID == "" {
			return &errors.ErrValidation{Message: "components[" + strconv.Itoa(i) + "]: variant_id is required"}
		}
		if comp.Quantity < 1 {
			return &errors.ErrValidation{Message: "components[" + strconv.Itoa(i) + "]: quantity must be at least 1"}
		}
	}
	if r.Rules.Tiered() {
		for _, tier := range r.Rules.Tiers {
			if tier.MinQty < 1 {
				return &errors.ErrValidation{Message: "rules.tiers: min_qty must be at least 1"}
			}
			if !tier.DiscountType.IsValid() {
				return &errors.ErrValidation{Message: "rules.tiers: unknown discount type"}
			}
		}
	} else if !r.Rules.DiscountType.IsValid() {
		return &errors.ErrValidation{Message: "rules.discount_type: unknown discount type"}
	}
	return nil
}

func (r *BundleRequest) apply(bundle *domain.Bundle) {
	bundle.Name = r.Name
	if r.Status != "" {
		bundle.Status = domain.BundleStatus(r.Status)
	}
	bundle.Components = r.Components
	bundle.Rules = r.Rules
	bundle.CoverVariantID = r.CoverVariantID
}

// HandleCreateBundle handles POST /v1/admin/bundles
func HandleCreateBundle(repos *repository.Repositories, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		store, ok := middleware.GetStoreFromContext(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		var req BundleRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "validation failed", "details": err.Error()})
			return
		}
		if err := req.validate(); err != nil {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "validation failed", "details": err.Error()})
			return
		}

		bundle := &domain.Bundle{
			ID:      uuid.New(),
			StoreID: store.ID,
			Status:  domain.BundleStatusDraft,
		}
		req.apply(bundle)

		if err := repos.Bundle.Create(c.Request.Context(), bundle); err != nil {
			logger.Error("Failed to create bundle", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}

		c.JSON(http.StatusCreated, bundle)
	}
}

// HandleListBundles handles GET /v1/admin/bundles
func HandleListBundles(repos *repository.Repositories, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		store, ok := middleware.GetStoreFromContext(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		limit := 50
		offset := 0
		if v := c.Query("limit"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 200 {
				limit = n
			}
		}
		if v := c.Query("offset"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n >= 0 {
				offset = n
			}
		}

		bundles, err := repos.Bundle.ListByStoreID(c.Request.Context(), store.ID, limit, offset)
		if err != nil {
			logger.Error("Failed to list bundles", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"bundles": bundles, "limit": limit, "offset": offset})
	}
}

// HandleGetBundle handles GET /v1/admin/bundles/:id
func HandleGetBundle(repos *repository.Repositories, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		bundle, done := resolveBundle(c, repos, logger)
		if done {
			return
		}

		c.JSON(http.StatusOK, bundle)
	}
}

// HandleUpdateBundle handles PUT /v1/admin/bundles/:id
func HandleUpdateBundle(repos *repository.Repositories, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		bundle, done := resolveBundle(c, repos, logger)
		if done {
			return
		}

		var req BundleRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "validation failed", "details": err.Error()})
			return
		}
		if err := req.validate(); err != nil {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "validation failed", "details": err.Error()})
			return
		}

		req.apply(bundle)

		if err := repos.Bundle.Update(c.Request.Context(), bundle); err != nil {
			logger.Error("Failed to update bundle", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}

		c.JSON(http.StatusOK, bundle)
	}
}

// BundleStatusRequest represents a bundle status change payload
type BundleStatusRequest struct {
	Status string `json:"status" binding:"required,oneof=draft active paused"`
}

// HandleUpdateBundleStatus handles POST /v1/admin/bundles/:id/status
func HandleUpdateBundleStatus(repos *repository.Repositories, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		bundle, done := resolveBundle(c, repos, logger)
		if done {
			return
		}

		var req BundleStatusRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "validation failed", "details": err.Error()})
			return
		}

		status := domain.BundleStatus(req.Status)
		if err := repos.Bundle.UpdateStatus(c.Request.Context(), bundle.ID, status); err != nil {
			logger.Error("Failed to update bundle status", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}
		bundle.Status = status

		c.JSON(http.StatusOK, bundle)
	}
}

// HandleDeleteBundle handles DELETE /v1/admin/bundles/:id (soft delete)
func HandleDeleteBundle(repos *repository.Repositories, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		bundle, done := resolveBundle(c, repos, logger)
		if done {
			return
		}

		if err := repos.Bundle.SoftDelete(c.Request.Context(), bundle.ID); err != nil {
			logger.Error("Failed to delete bundle", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"deleted": true})
	}
}

// resolveBundle loads the :id bundle and enforces store ownership. Returns
// done=true when a response was already written.
func resolveBundle(c *gin.Context, repos *repository.Repositories, logger *zap.Logger) (*domain.Bundle, bool) {
	store, ok := middleware.GetStoreFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return nil, true
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid bundle ID"})
		return nil, true
	}

	bundle, err := repos.Bundle.GetByID(c.Request.Context(), id)
	if err != nil {
		if _, ok := err.(*errors.ErrNotFound); ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "bundle not found"})
			return nil, true
		}
		logger.Error("Failed to get bundle", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return nil, true
	}

	if bundle.StoreID != store.ID {
		c.JSON(http.StatusNotFound, gin.H{"error": "bundle not found"})
		return nil, true
	}

	return bundle, false
}
