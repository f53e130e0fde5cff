package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/jafarshop/bundles/internal/domain"
)

type evaluationEventRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewEvaluationEventRepository creates a new evaluation event repository
func NewEvaluationEventRepository(db *sql.DB, logger *zap.Logger) *evaluationEventRepository {
	return &evaluationEventRepository{
		db:     db,
		logger: logger,
	}
}

func (r *evaluationEventRepository) Create(ctx context.Context, event *domain.EvaluationEvent) error {
	query := `
		INSERT INTO evaluation_events (id, store_id, bundle_id, event_type, cart_hash, matched_variant_ids, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	_, err := r.db.ExecContext(ctx, query,
		event.ID,
		event.StoreID,
		event.BundleID,
		event.EventType,
		event.CartHash,
		pq.Array(event.MatchedVariantIDs),
		event.CreatedAt,
	)

	if err != nil {
		r.logger.Error("Failed to create evaluation event", zap.Error(err))
		return err
	}

	return nil
}

func (r *evaluationEventRepository) ListByBundleID(ctx context.Context, bundleID uuid.UUID, limit int) ([]*domain.EvaluationEvent, error) {
	query := `
		SELECT id, store_id, bundle_id, event_type, cart_hash, matched_variant_ids, created_at
		FROM evaluation_events
		WHERE bundle_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := r.db.QueryContext(ctx, query, bundleID, limit)
	if err != nil {
		r.logger.Error("Failed to list evaluation events by bundle ID", zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	var events []*domain.EvaluationEvent
	for rows.Next() {
		var event domain.EvaluationEvent
		if err := rows.Scan(
			&event.ID,
			&event.StoreID,
			&event.BundleID,
			&event.EventType,
			&event.CartHash,
			pq.Array(&event.MatchedVariantIDs),
			&event.CreatedAt,
		); err != nil {
			return nil, err
		}
		events = append(events, &event)
	}

	return events, rows.Err()
}
