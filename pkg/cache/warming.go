package cache

import (
	"context"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/siderealhq/astrocache/pkg/observability"
)

// predictiveWindow is how recently a pattern must have been accessed to be
// reported as a warm candidate.
const predictiveWindow = 1 * time.Hour

// warmConcurrency bounds parallel L2 reads during scheduled and on-demand
// warming.
const warmConcurrency = 8

// WarmRequest carries the per-strategy inputs of a warming run.
type WarmRequest struct {
	// Schedule names the configured key list for the scheduled strategy.
	Schedule string `json:"schedule,omitempty"`
	// Keys are the explicit keys of the on-demand strategy.
	Keys []string `json:"keys,omitempty"`
	// Limit caps the candidate list of the predictive strategy. Zero means
	// all candidates.
	Limit int `json:"limit,omitempty"`
}

// WarmReport describes the outcome of a warming run.
type WarmReport struct {
	ID        string          `json:"id"`
	Strategy  WarmingStrategy `json:"strategy"`
	StartedAt time.Time       `json:"started_at"`
	Duration  time.Duration   `json:"duration_ns"`

	// Candidates lists the patterns the predictive strategy flagged. The
	// predictive strategy reports only; it performs no fetch or populate.
	Candidates []string `json:"candidates,omitempty"`

	KeysRequested int `json:"keys_requested"`
	KeysWarmed    int `json:"keys_warmed"`
}

// Warmer implements the named warming strategies. It carries no state of
// its own beyond the configured schedules; the pattern tracker supplies
// everything predictive warming needs.
type Warmer struct {
	l1        *MemoryStore
	l2        *RedisStore
	patterns  *PatternTracker
	schedules map[string][]string
	ttl       time.Duration
	logger    observability.Logger
}

// NewWarmer creates a warmer over the two tiers.
func NewWarmer(l1 *MemoryStore, l2 *RedisStore, patterns *PatternTracker, schedules map[string][]string, ttl time.Duration, logger observability.Logger) *Warmer {
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	return &Warmer{
		l1:        l1,
		l2:        l2,
		patterns:  patterns,
		schedules: schedules,
		ttl:       ttl,
		logger:    logger,
	}
}

// Warm dispatches to the named strategy. An unrecognized strategy is a
// configuration error and is returned to the caller.
func (w *Warmer) Warm(ctx context.Context, strategy WarmingStrategy, req WarmRequest) (*WarmReport, error) {
	report := &WarmReport{
		ID:        uuid.NewString(),
		Strategy:  strategy,
		StartedAt: time.Now(),
	}

	switch strategy {
	case WarmingPredictive:
		report.Candidates = w.predictiveCandidates(req.Limit)
	case WarmingScheduled:
		keys, ok := w.schedules[req.Schedule]
		if !ok {
			return nil, fmt.Errorf("%w: warm schedule %q", ErrUnknownStrategy, req.Schedule)
		}
		report.KeysRequested = len(keys)
		report.KeysWarmed = w.warmKeys(ctx, keys)
	case WarmingOnDemand:
		report.KeysRequested = len(req.Keys)
		report.KeysWarmed = w.warmKeys(ctx, req.Keys)
	default:
		return nil, fmt.Errorf("%w: warming strategy %q", ErrUnknownStrategy, strategy)
	}

	report.Duration = time.Since(report.StartedAt)
	w.logger.Info("cache warming run", map[string]interface{}{
		"strategy":   string(strategy),
		"candidates": len(report.Candidates),
		"warmed":     report.KeysWarmed,
	})
	return report, nil
}

// predictiveCandidates reports patterns whose hits exceed their misses and
// whose last access falls within the window, highest traffic first.
func (w *Warmer) predictiveCandidates(limit int) []string {
	cutoff := time.Now().Add(-predictiveWindow)

	var candidates []PatternStat
	for _, stat := range w.patterns.Snapshot() {
		if stat.Hits > stat.Misses && stat.LastAccess.After(cutoff) {
			candidates = append(candidates, stat)
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		ti, tj := candidates[i].Total(), candidates[j].Total()
		if ti != tj {
			return ti > tj
		}
		return candidates[i].Pattern < candidates[j].Pattern
	})
	if limit > 0 && limit < len(candidates) {
		candidates = candidates[:limit]
	}

	patterns := make([]string, len(candidates))
	for i, c := range candidates {
		patterns[i] = c.Pattern
	}
	return patterns
}

// warmKeys backfills L1 from L2 for each key, concurrently, and returns how
// many keys landed in L1. Keys already resident count as warmed.
func (w *Warmer) warmKeys(ctx context.Context, keys []string) int {
	if w.l2 == nil || len(keys) == 0 {
		return 0
	}

	var warmed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(warmConcurrency)
	for _, key := range keys {
		key := key
		g.Go(func() error {
			if _, ok := w.l1.Get(key); ok {
				warmed.Add(1)
				return nil
			}
			if data, ok := w.l2.Get(gctx, key); ok {
				w.l1.Set(key, data, w.ttl)
				warmed.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()
	return int(warmed.Load())
}
