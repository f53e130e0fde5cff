package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/jafarshop/bundles/internal/domain"
)

// CachedProvider is a Redis read-through cache in front of another
// snapshot provider. Cache failures degrade to the inner provider; a
// stale-but-priced snapshot beats a failed evaluation.
type CachedProvider struct {
	inner  Provider
	rdb    *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewCachedProvider creates a caching snapshot provider
func NewCachedProvider(inner Provider, rdb *redis.Client, ttl time.Duration, logger *zap.Logger) *CachedProvider {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &CachedProvider{
		inner:  inner,
		rdb:    rdb,
		ttl:    ttl,
		logger: logger,
	}
}

func snapshotKey(storeID, variantID string) string {
	return fmt.Sprintf("snap:%s:%s", storeID, variantID)
}

func (p *CachedProvider) FetchSnapshots(ctx context.Context, store *domain.Store, variantIDs []string) (domain.SnapshotResult, error) {
	result := domain.SnapshotResult{
		Snapshots: make(map[string]domain.VariantSnapshot, len(variantIDs)),
	}
	if len(variantIDs) == 0 {
		return result, nil
	}

	keys := make([]string, len(variantIDs))
	for i, id := range variantIDs {
		keys[i] = snapshotKey(store.ID.String(), id)
	}

	var misses []string
	values, err := p.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		p.logger.Warn("Snapshot cache read failed, falling through", zap.Error(err))
		misses = variantIDs
	} else {
		for i, v := range values {
			raw, ok := v.(string)
			if !ok {
				misses = append(misses, variantIDs[i])
				continue
			}
			var snap domain.VariantSnapshot
			if err := json.Unmarshal([]byte(raw), &snap); err != nil {
				misses = append(misses, variantIDs[i])
				continue
			}
			result.Snapshots[variantIDs[i]] = snap
		}
	}

	if len(misses) == 0 {
		return result, nil
	}

	fetched, err := p.inner.FetchSnapshots(ctx, store, misses)
	if err != nil {
		return result, err
	}
	result.Missing = fetched.Missing

	pipe := p.rdb.Pipeline()
	for id, snap := range fetched.Snapshots {
		result.Snapshots[id] = snap
		if data, err := json.Marshal(snap); err == nil {
			pipe.Set(ctx, snapshotKey(store.ID.String(), id), data, p.ttl)
		}
	}
	if _, err := pipe.Exec(ctx); err != nil {
		p.logger.Debug("Snapshot cache write failed", zap.Error(err))
	}

	return result, nil
}
