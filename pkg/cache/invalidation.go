package cache

import (
	"context"

	"github.com/siderealhq/astrocache/pkg/observability"
)

// Invalidator performs pattern-based bulk deletion across both tiers.
type Invalidator struct {
	l1     *MemoryStore
	l2     *RedisStore
	logger observability.Logger
}

// NewInvalidator creates an invalidator over the two tiers. l2 may be nil
// in memory-only deployments.
func NewInvalidator(l1 *MemoryStore, l2 *RedisStore, logger observability.Logger) *Invalidator {
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	return &Invalidator{l1: l1, l2: l2, logger: logger}
}

// PatternBased removes every key matching a glob pattern from L2 and from
// L1 where locally present. Keys that only exist in L1, such as writes a
// write-behind queue has not flushed yet, are matched locally as well.
// Returns the number of distinct keys removed; zero matches is not an
// error.
func (iv *Invalidator) PatternBased(ctx context.Context, pattern string) int {
	removed := make(map[string]struct{})

	if iv.l2 != nil {
		keys := iv.l2.Keys(ctx, pattern)
		if len(keys) > 0 {
			iv.l2.DeleteMany(ctx, keys)
			for _, key := range keys {
				removed[key] = struct{}{}
				iv.l1.Delete(key)
			}
		}
	}

	for _, key := range iv.l1.Keys(pattern) {
		if iv.l1.Delete(key) {
			removed[key] = struct{}{}
		}
	}

	if len(removed) > 0 {
		iv.logger.Info("pattern invalidation", map[string]interface{}{
			"pattern": pattern,
			"removed": len(removed),
		})
	}
	return len(removed)
}
