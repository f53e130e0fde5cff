package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jafarshop/bundles/internal/domain"
	"github.com/jafarshop/bundles/pkg/errors"
)

type bundleRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewBundleRepository creates a new bundle repository
func NewBundleRepository(db *sql.DB, logger *zap.Logger) *bundleRepository {
	return &bundleRepository{
		db:     db,
		logger: logger,
	}
}

func (r *bundleRepository) Create(ctx context.Context, bundle *domain.Bundle) error {
	query := `
		INSERT INTO bundles (id, store_id, name, status, components, rules, cover_variant_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	now := time.Now()
	if bundle.ID == uuid.Nil {
		bundle.ID = uuid.New()
	}
	if bundle.CreatedAt.IsZero() {
		bundle.CreatedAt = now
	}
	if bundle.UpdatedAt.IsZero() {
		bundle.UpdatedAt = now
	}

	componentsJSON, err := json.Marshal(bundle.Components)
	if err != nil {
		return err
	}
	rulesJSON, err := json.Marshal(bundle.Rules)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, query,
		bundle.ID,
		bundle.StoreID,
		bundle.Name,
		bundle.Status,
		componentsJSON,
		rulesJSON,
		bundle.CoverVariantID,
		bundle.CreatedAt,
		bundle.UpdatedAt,
	)

	if err != nil {
		r.logger.Error("Failed to create bundle", zap.Error(err))
		return err
	}

	return nil
}

func (r *bundleRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Bundle, error) {
	query := `
		SELECT id, store_id, name, status, components, rules, cover_variant_id, deleted_at, created_at, updated_at
		FROM bundles
		WHERE id = $1 AND deleted_at IS NULL
	`

	bundle, err := r.scanBundle(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, &errors.ErrNotFound{Resource: "bundle", ID: id.String()}
	}
	if err != nil {
		r.logger.Error("Failed to get bundle by ID", zap.Error(err))
		return nil, err
	}

	return bundle, nil
}

func (r *bundleRepository) ListByStoreID(ctx context.Context, storeID uuid.UUID, limit, offset int) ([]*domain.Bundle, error) {
	query := `
		SELECT id, store_id, name, status, components, rules, cover_variant_id, deleted_at, created_at, updated_at
		FROM bundles
		WHERE store_id = $1 AND deleted_at IS NULL
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.db.QueryContext(ctx, query, storeID, limit, offset)
	if err != nil {
		r.logger.Error("Failed to list bundles by store ID", zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	return r.collectBundles(rows)
}

func (r *bundleRepository) ListActiveByStoreID(ctx context.Context, storeID uuid.UUID) ([]*domain.Bundle, error) {
	query := `
		SELECT id, store_id, name, status, components, rules, cover_variant_id, deleted_at, created_at, updated_at
		FROM bundles
		WHERE store_id = $1 AND status = $2 AND deleted_at IS NULL
		ORDER BY created_at ASC
	`

	rows, err := r.db.QueryContext(ctx, query, storeID, domain.BundleStatusActive)
	if err != nil {
		r.logger.Error("Failed to list active bundles by store ID", zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	return r.collectBundles(rows)
}

func (r *bundleRepository) Update(ctx context.Context, bundle *domain.Bundle) error {
	query := `
		UPDATE bundles
		SET name = $2, status = $3, components = $4, rules = $5, cover_variant_id = $6, updated_at = $7
		WHERE id = $1 AND deleted_at IS NULL
	`

	bundle.UpdatedAt = time.Now()
	componentsJSON, err := json.Marshal(bundle.Components)
	if err != nil {
		return err
	}
	rulesJSON, err := json.Marshal(bundle.Rules)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, query,
		bundle.ID,
		bundle.Name,
		bundle.Status,
		componentsJSON,
		rulesJSON,
		bundle.CoverVariantID,
		bundle.UpdatedAt,
	)

	if err != nil {
		r.logger.Error("Failed to update bundle", zap.Error(err))
		return err
	}

	return nil
}

func (r *bundleRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.BundleStatus) error {
	query := `
		UPDATE bundles
		SET status = $2, updated_at = $3
		WHERE id = $1 AND deleted_at IS NULL
	`

	_, err := r.db.ExecContext(ctx, query, id, status, time.Now())
	if err != nil {
		r.logger.Error("Failed to update bundle status", zap.Error(err))
		return err
	}

	return nil
}

func (r *bundleRepository) SoftDelete(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE bundles
		SET deleted_at = $2, updated_at = $2
		WHERE id = $1 AND deleted_at IS NULL
	`

	_, err := r.db.ExecContext(ctx, query, id, time.Now())
	if err != nil {
		r.logger.Error("Failed to soft delete bundle", zap.Error(err))
		return err
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (r *bundleRepository) scanBundle(row rowScanner) (*domain.Bundle, error) {
	var bundle domain.Bundle
	var componentsJSON, rulesJSON []byte
	var coverVariantID sql.NullString
	var deletedAt sql.NullTime

	err := row.Scan(
		&bundle.ID,
		&bundle.StoreID,
		&bundle.Name,
		&bundle.Status,
		&componentsJSON,
		&rulesJSON,
		&coverVariantID,
		&deletedAt,
		&bundle.CreatedAt,
		&bundle.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if coverVariantID.Valid && coverVariantID.String != "" {
		bundle.CoverVariantID = &coverVariantID.String
	}
	if deletedAt.Valid {
		bundle.DeletedAt = &deletedAt.Time
	}
	if err := json.Unmarshal(componentsJSON, &bundle.Components); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(rulesJSON, &bundle.Rules); err != nil {
		return nil, err
	}

	return &bundle, nil
}

func (r *bundleRepository) collectBundles(rows *sql.Rows) ([]*domain.Bundle, error) {
	var bundles []*domain.Bundle
	for rows.Next() {
		bundle, err := r.scanBundle(rows)
		if err != nil {
			return nil, err
		}
		bundles = append(bundles, bundle)
	}
	return bundles, rows.Err()
}
