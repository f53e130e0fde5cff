package postgres

import (
	"database/sql"

	"go.uber.org/zap"

	"github.com/jafarshop/bundles/internal/repository"
)

// NewRepositories creates a new set of repositories
func NewRepositories(db *sql.DB, logger *zap.Logger) *repository.Repositories {
	return &repository.Repositories{
		Store:           NewStoreRepository(db, logger),
		Bundle:          NewBundleRepository(db, logger),
		Promotion:       NewPromotionRepository(db, logger),
		EvaluationEvent: NewEvaluationEventRepository(db, logger),
		IdempotencyKey:  NewIdempotencyKeyRepository(db, logger),
	}
}
