package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/jafarshop/bundles/internal/domain"
	"github.com/jafarshop/bundles/pkg/errors"
)

// pqUniqueViolation is the Postgres error code for unique constraint violations
const pqUniqueViolation = "23505"

type promotionRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPromotionRepository creates a new promotion record repository
func NewPromotionRepository(db *sql.DB, logger *zap.Logger) *promotionRepository {
	return &promotionRepository{
		db:     db,
		logger: logger,
	}
}

const promotionColumns = `
	id, store_id, cart_key, cart_hash, code, external_id, kind, status,
	discount_type, discount_amount, include_product_ids, applied_bundle_ids,
	bundles_summary, expires_at, issued_at, last_seen_at, created_at, updated_at
`

func (r *promotionRepository) Create(ctx context.Context, record *domain.PromotionRecord) error {
	query := `
		INSERT INTO promotion_records (
			id, store_id, cart_key, cart_hash, cart_group, code, external_id, kind, status,
			discount_type, discount_amount, include_product_ids, applied_bundle_ids,
			bundles_summary, expires_at, issued_at, last_seen_at, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
	`

	now := time.Now()
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	if record.IssuedAt.IsZero() {
		record.IssuedAt = now
	}
	if record.LastSeenAt.IsZero() {
		record.LastSeenAt = now
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	if record.UpdatedAt.IsZero() {
		record.UpdatedAt = now
	}

	productIDsJSON, err := json.Marshal(record.IncludeProductIDs)
	if err != nil {
		return err
	}
	bundleIDsJSON, err := json.Marshal(record.AppliedBundleIDs)
	if err != nil {
		return err
	}
	summaryJSON, err := json.Marshal(record.BundlesSummary)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, query,
		record.ID,
		record.StoreID,
		record.CartKey,
		record.CartHash,
		record.Group(),
		record.Code,
		record.ExternalID,
		record.Kind,
		record.Status,
		record.DiscountType,
		record.DiscountAmount,
		productIDsJSON,
		bundleIDsJSON,
		summaryJSON,
		record.ExpiresAt,
		record.IssuedAt,
		record.LastSeenAt,
		record.CreatedAt,
		record.UpdatedAt,
	)

	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == pqUniqueViolation {
			return &errors.ErrConflict{Message: "promotion code already exists: " + record.Code}
		}
		r.logger.Error("Failed to create promotion record", zap.Error(err))
		return err
	}

	return nil
}

func (r *promotionRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.PromotionRecord, error) {
	query := `SELECT ` + promotionColumns + ` FROM promotion_records WHERE id = $1`

	record, err := r.scanRecord(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, &errors.ErrNotFound{Resource: "promotion_record", ID: id.String()}
	}
	if err != nil {
		r.logger.Error("Failed to get promotion record by ID", zap.Error(err))
		return nil, err
	}
	return record, nil
}

func (r *promotionRepository) GetByCode(ctx context.Context, storeID uuid.UUID, code string) (*domain.PromotionRecord, error) {
	query := `SELECT ` + promotionColumns + ` FROM promotion_records WHERE store_id = $1 AND code = $2`

	record, err := r.scanRecord(r.db.QueryRowContext(ctx, query, storeID, code))
	if err == sql.ErrNoRows {
		return nil, &errors.ErrNotFound{Resource: "promotion_record", ID: code}
	}
	if err != nil {
		r.logger.Error("Failed to get promotion record by code", zap.Error(err))
		return nil, err
	}
	return record, nil
}

func (r *promotionRepository) FindActiveByGroup(ctx context.Context, storeID uuid.UUID, group string) (*domain.PromotionRecord, error) {
	// Most-recently-seen tie-break: concurrent issuance can briefly leave
	// more than one issued row for a group; the newest one wins.
	query := `SELECT ` + promotionColumns + `
		FROM promotion_records
		WHERE store_id = $1 AND cart_group = $2 AND status = $3
		ORDER BY last_seen_at DESC
		LIMIT 1
	`

	record, err := r.scanRecord(r.db.QueryRowContext(ctx, query, storeID, group, domain.PromotionStatusIssued))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to find active promotion record by group", zap.Error(err))
		return nil, err
	}
	return record, nil
}

func (r *promotionRepository) Update(ctx context.Context, record *domain.PromotionRecord) error {
	query := `
		UPDATE promotion_records
		SET external_id = $2, kind = $3, discount_type = $4, discount_amount = $5,
			include_product_ids = $6, applied_bundle_ids = $7, bundles_summary = $8,
			expires_at = $9, last_seen_at = $10, updated_at = $11
		WHERE id = $1
	`

	record.UpdatedAt = time.Now()
	productIDsJSON, err := json.Marshal(record.IncludeProductIDs)
	if err != nil {
		return err
	}
	bundleIDsJSON, err := json.Marshal(record.AppliedBundleIDs)
	if err != nil {
		return err
	}
	summaryJSON, err := json.Marshal(record.BundlesSummary)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, query,
		record.ID,
		record.ExternalID,
		record.Kind,
		record.DiscountType,
		record.DiscountAmount,
		productIDsJSON,
		bundleIDsJSON,
		summaryJSON,
		record.ExpiresAt,
		record.LastSeenAt,
		record.UpdatedAt,
	)

	if err != nil {
		r.logger.Error("Failed to update promotion record", zap.Error(err))
		return err
	}

	return nil
}

func (r *promotionRepository) Touch(ctx context.Context, id uuid.UUID, seenAt time.Time) error {
	query := `
		UPDATE promotion_records
		SET last_seen_at = $2, updated_at = $2
		WHERE id = $1
	`

	_, err := r.db.ExecContext(ctx, query, id, seenAt)
	if err != nil {
		r.logger.Error("Failed to touch promotion record", zap.Error(err))
		return err
	}
	return nil
}

func (r *promotionRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.PromotionStatus) error {
	current, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if !current.Status.CanTransitionTo(status) {
		return &errors.ErrInvalidStateTransition{From: current.Status, To: status}
	}

	query := `
		UPDATE promotion_records
		SET status = $2, updated_at = $3
		WHERE id = $1
	`

	_, err = r.db.ExecContext(ctx, query, id, status, time.Now())
	if err != nil {
		r.logger.Error("Failed to update promotion record status", zap.Error(err))
		return err
	}
	return nil
}

func (r *promotionRepository) MarkSupersededExcept(ctx context.Context, storeID uuid.UUID, group string, keepID uuid.UUID) (int64, error) {
	query := `
		UPDATE promotion_records
		SET status = $4, updated_at = $5
		WHERE store_id = $1 AND cart_group = $2 AND status = $3 AND id != $6
	`

	res, err := r.db.ExecContext(ctx, query,
		storeID, group, domain.PromotionStatusIssued,
		domain.PromotionStatusSuperseded, time.Now(), keepID,
	)
	if err != nil {
		r.logger.Error("Failed to mark promotion records superseded", zap.Error(err))
		return 0, err
	}
	return res.RowsAffected()
}

func (r *promotionRepository) ExpireOverdue(ctx context.Context, now time.Time) (int64, error) {
	query := `
		UPDATE promotion_records
		SET status = $1, updated_at = $2
		WHERE status = ANY($3) AND expires_at < $2
	`

	res, err := r.db.ExecContext(ctx, query,
		domain.PromotionStatusExpired,
		now,
		pq.Array([]string{string(domain.PromotionStatusIssued), string(domain.PromotionStatusSuperseded)}),
	)
	if err != nil {
		r.logger.Error("Failed to expire overdue promotion records", zap.Error(err))
		return 0, err
	}
	return res.RowsAffected()
}

func (r *promotionRepository) DeleteByID(ctx context.Context, id uuid.UUID) error {
	query := `DELETE FROM promotion_records WHERE id = $1`

	_, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		r.logger.Error("Failed to delete promotion record", zap.Error(err))
		return err
	}
	return nil
}

func (r *promotionRepository) scanRecord(row rowScanner) (*domain.PromotionRecord, error) {
	var record domain.PromotionRecord
	var cartKey sql.NullString
	var externalID sql.NullString
	var productIDsJSON, bundleIDsJSON, summaryJSON []byte

	err := row.Scan(
		&record.ID,
		&record.StoreID,
		&cartKey,
		&record.CartHash,
		&record.Code,
		&externalID,
		&record.Kind,
		&record.Status,
		&record.DiscountType,
		&record.DiscountAmount,
		&productIDsJSON,
		&bundleIDsJSON,
		&summaryJSON,
		&record.ExpiresAt,
		&record.IssuedAt,
		&record.LastSeenAt,
		&record.CreatedAt,
		&record.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if cartKey.Valid && cartKey.String != "" {
		record.CartKey = &cartKey.String
	}
	if externalID.Valid && externalID.String != "" {
		record.ExternalID = &externalID.String
	}
	if err := json.Unmarshal(productIDsJSON, &record.IncludeProductIDs); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(bundleIDsJSON, &record.AppliedBundleIDs); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(summaryJSON, &record.BundlesSummary); err != nil {
		return nil, err
	}

	return &record, nil
}
