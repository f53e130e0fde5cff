package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jafarshop/bundles/internal/domain"
)

// StoreRepository defines merchant store data access methods
type StoreRepository interface {
	GetByAPIKeyHash(ctx context.Context, apiKey string) (*domain.Store, error)
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Store, error)
	GetByShopDomain(ctx context.Context, shopDomain string) (*domain.Store, error)
	List(ctx context.Context) ([]*domain.Store, error)
	Create(ctx context.Context, store *domain.Store) error
	Update(ctx context.Context, store *domain.Store) error
}

// BundleRepository defines bundle definition data access methods
type BundleRepository interface {
	Create(ctx context.Context, bundle *domain.Bundle) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Bundle, error)
	ListByStoreID(ctx context.Context, storeID uuid.UUID, limit, offset int) ([]*domain.Bundle, error)
	ListActiveByStoreID(ctx context.Context, storeID uuid.UUID) ([]*domain.Bundle, error)
	Update(ctx context.Context, bundle *domain.Bundle) error
	UpdateStatus(ctx context.Context, id uuid.UUID, status domain.BundleStatus) error
	SoftDelete(ctx context.Context, id uuid.UUID) error
}

// PromotionRepository defines issued promotion record data access methods.
// Create returns *errors.ErrConflict when the code uniqueness constraint
// is violated; callers regenerate the code and retry.
type PromotionRepository interface {
	Create(ctx context.Context, record *domain.PromotionRecord) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.PromotionRecord, error)
	GetByCode(ctx context.Context, storeID uuid.UUID, code string) (*domain.PromotionRecord, error)
	// FindActiveByGroup returns the single issued record for (store, cart
	// identity), most recently seen first when duplicates race into being.
	FindActiveByGroup(ctx context.Context, storeID uuid.UUID, group string) (*domain.PromotionRecord, error)
	Update(ctx context.Context, record *domain.PromotionRecord) error
	Touch(ctx context.Context, id uuid.UUID, seenAt time.Time) error
	UpdateStatus(ctx context.Context, id uuid.UUID, status domain.PromotionStatus) error
	// MarkSupersededExcept transitions every other issued record of the
	// same (store, group) to superseded. Idempotent and commutative.
	MarkSupersededExcept(ctx context.Context, storeID uuid.UUID, group string, keepID uuid.UUID) (int64, error)
	// ExpireOverdue transitions issued/superseded records past their
	// expiry to expired, returning how many rows changed.
	ExpireOverdue(ctx context.Context, now time.Time) (int64, error)
	DeleteByID(ctx context.Context, id uuid.UUID) error
}

// EvaluationEventRepository defines audit event data access methods
type EvaluationEventRepository interface {
	Create(ctx context.Context, event *domain.EvaluationEvent) error
	ListByBundleID(ctx context.Context, bundleID uuid.UUID, limit int) ([]*domain.EvaluationEvent, error)
}

// IdempotencyKeyRepository defines idempotency key data access methods
type IdempotencyKeyRepository interface {
	GetByKey(ctx context.Context, key string) (*domain.IdempotencyKey, error)
	Create(ctx context.Context, key *domain.IdempotencyKey) error
}

// Repositories aggregates all repositories
type Repositories struct {
	Store           StoreRepository
	Bundle          BundleRepository
	Promotion       PromotionRepository
	EvaluationEvent EvaluationEventRepository
	IdempotencyKey  IdempotencyKeyRepository
}
