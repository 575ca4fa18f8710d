package projection

import (
	"context"
	"time"

	"github.com/palpitai/platform/internal/domain"
)

const (
	statsKey = "projection:admin:stats"
	statsTTL = 30 * time.Second
)

// CacheStats stores the admin dashboard summary.
func CacheStats(ctx context.Context, store Store, stats domain.PlatformStats) error {
	return SetJSON(ctx, store, statsKey, stats, statsTTL)
}

// GetStats returns the cached dashboard summary or ErrNotFound.
func GetStats(ctx context.Context, store Store) (*domain.PlatformStats, error) {
	var s domain.PlatformStats
	if err := GetJSON(ctx, store, statsKey, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// InvalidateStats drops the cached summary so the next read recomputes it.
func InvalidateStats(ctx context.Context, store Store) error {
	return store.Delete(ctx, statsKey)
}
