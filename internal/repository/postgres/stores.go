package postgres

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/jafarshop/bundles/internal/domain"
	"github.com/jafarshop/bundles/pkg/errors"
)

type storeRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewStoreRepository creates a new store repository
func NewStoreRepository(db *sql.DB, logger *zap.Logger) *storeRepository {
	return &storeRepository{
		db:     db,
		logger: logger,
	}
}

func apiKeyLookupHash(apiKey string) string {
	h := sha256.Sum256([]byte(apiKey))
	return hex.EncodeToString(h[:])
}

func (r *storeRepository) GetByAPIKeyHash(ctx context.Context, apiKey string) (*domain.Store, error) {
	// Direct lookup by api_key_lookup (SHA256 hex), then verify with bcrypt.
	lookupKey := apiKeyLookupHash(apiKey)
	query := `
		SELECT id, shop_domain, access_token, api_key_hash, is_active, created_at, updated_at
		FROM stores
		WHERE is_active = true AND api_key_lookup = $1
	`
	var store domain.Store
	err := r.db.QueryRowContext(ctx, query, lookupKey).Scan(
		&store.ID,
		&store.ShopDomain,
		&store.AccessToken,
		&store.APIKeyHash,
		&store.IsActive,
		&store.CreatedAt,
		&store.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, &errors.ErrUnauthorized{Message: "invalid API key"}
	}
	if err != nil {
		r.logger.Error("Failed to query store by API key lookup", zap.Error(err))
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(store.APIKeyHash), []byte(apiKey)) != nil {
		r.logger.Debug("API key lookup found store but bcrypt verification failed", zap.String("store_id", store.ID.String()))
		return nil, &errors.ErrUnauthorized{Message: "invalid API key"}
	}
	return &store, nil
}

func (r *storeRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Store, error) {
	query := `
		SELECT id, shop_domain, access_token, api_key_hash, is_active, created_at, updated_at
		FROM stores
		WHERE id = $1
	`

	var store domain.Store
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&store.ID,
		&store.ShopDomain,
		&store.AccessToken,
		&store.APIKeyHash,
		&store.IsActive,
		&store.CreatedAt,
		&store.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, &errors.ErrNotFound{Resource: "store", ID: id.String()}
	}
	if err != nil {
		r.logger.Error("Failed to get store by ID", zap.Error(err))
		return nil, err
	}

	return &store, nil
}

func (r *storeRepository) GetByShopDomain(ctx context.Context, shopDomain string) (*domain.Store, error) {
	query := `
		SELECT id, shop_domain, access_token, api_key_hash, is_active, created_at, updated_at
		FROM stores
		WHERE shop_domain = $1
	`

	var store domain.Store
	err := r.db.QueryRowContext(ctx, query, shopDomain).Scan(
		&store.ID,
		&store.ShopDomain,
		&store.AccessToken,
		&store.APIKeyHash,
		&store.IsActive,
		&store.CreatedAt,
		&store.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, &errors.ErrNotFound{Resource: "store", ID: shopDomain}
	}
	if err != nil {
		r.logger.Error("Failed to get store by shop domain", zap.Error(err))
		return nil, err
	}

	return &store, nil
}

func (r *storeRepository) List(ctx context.Context) ([]*domain.Store, error) {
	query := `
		SELECT id, shop_domain, access_token, api_key_hash, is_active, created_at, updated_at
		FROM stores
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		r.logger.Error("Failed to list stores", zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	var stores []*domain.Store
	for rows.Next() {
		var store domain.Store
		if err := rows.Scan(
			&store.ID,
			&store.ShopDomain,
			&store.AccessToken,
			&store.APIKeyHash,
			&store.IsActive,
			&store.CreatedAt,
			&store.UpdatedAt,
		); err != nil {
			return nil, err
		}
		stores = append(stores, &store)
	}

	return stores, rows.Err()
}

func (r *storeRepository) Create(ctx context.Context, store *domain.Store) error {
	query := `
		INSERT INTO stores (id, shop_domain, access_token, api_key_hash, api_key_lookup, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	now := time.Now()
	if store.ID == uuid.Nil {
		store.ID = uuid.New()
	}
	if store.CreatedAt.IsZero() {
		store.CreatedAt = now
	}
	if store.UpdatedAt.IsZero() {
		store.UpdatedAt = now
	}

	_, err := r.db.ExecContext(ctx, query,
		store.ID,
		store.ShopDomain,
		store.AccessToken,
		store.APIKeyHash,
		store.APIKeyLookup,
		store.IsActive,
		store.CreatedAt,
		store.UpdatedAt,
	)

	if err != nil {
		r.logger.Error("Failed to create store", zap.Error(err))
		return err
	}

	return nil
}

func (r *storeRepository) Update(ctx context.Context, store *domain.Store) error {
	query := `
		UPDATE stores
		SET shop_domain = $2, access_token = $3, is_active = $4, updated_at = $5
		WHERE id = $1
	`

	store.UpdatedAt = time.Now()
	_, err := r.db.ExecContext(ctx, query,
		store.ID,
		store.ShopDomain,
		store.AccessToken,
		store.IsActive,
		store.UpdatedAt,
	)

	if err != nil {
		r.logger.Error("Failed to update store", zap.Error(err))
		return err
	}

	return nil
}
