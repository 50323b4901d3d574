package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWarmingPredictive(t *testing.T) {
	_, engine := newTestEngine(t)
	ctx := context.Background()

	// Hot pattern: more hits than misses, recently accessed.
	require.True(t, engine.Set(ctx, "chart:1:natal", "v", 0))
	var out string
	for i := 0; i < 5; i++ {
		require.True(t, engine.Get(ctx, "chart:1:natal", &out))
	}

	// Cold pattern: all misses.
	for i := 0; i < 3; i++ {
		engine.Get(ctx, "session:9:state", &out)
	}

	report, err := engine.WarmCache(ctx, WarmingPredictive, WarmRequest{})
	require.NoError(t, err)
	assert.Equal(t, WarmingPredictive, report.Strategy)
	assert.NotEmpty(t, report.ID)
	assert.Contains(t, report.Candidates, "chart:*:natal")
	assert.NotContains(t, report.Candidates, "session:*:state", "miss-dominated patterns are not candidates")
	assert.Zero(t, report.KeysWarmed, "predictive warming reports only, it does not populate")
}

func TestWarmingPredictiveLimit(t *testing.T) {
	_, engine := newTestEngine(t)
	ctx := context.Background()

	var out string
	for _, ns := range []string{"a", "b", "c"} {
		require.True(t, engine.Set(ctx, ns+":1", "v", 0))
		require.True(t, engine.Get(ctx, ns+":1", &out))
	}

	report, err := engine.WarmCache(ctx, WarmingPredictive, WarmRequest{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, report.Candidates, 2)
}

func TestWarmingOnDemand(t *testing.T) {
	_, engine := newTestEngine(t)
	ctx := context.Background()

	// Values live only in L2.
	require.True(t, engine.Set(ctx, "warm:1", "a", 0, WithLevel(LevelL2)))
	require.True(t, engine.Set(ctx, "warm:2", "b", 0, WithLevel(LevelL2)))

	report, err := engine.WarmCache(ctx, WarmingOnDemand, WarmRequest{
		Keys: []string{"warm:1", "warm:2", "warm:missing"},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, report.KeysRequested)
	assert.Equal(t, 2, report.KeysWarmed)

	_, inL1 := engine.l1.Get("warm:1")
	assert.True(t, inL1, "warming backfills L1 from L2")
}

func TestWarmingScheduled(t *testing.T) {
	_, engine := newTestEngine(t, func(cfg *Config) {
		cfg.WarmSchedules = map[string][]string{
			"hourly-charts": {"chart:1", "chart:2"},
		}
	})
	ctx := context.Background()

	require.True(t, engine.Set(ctx, "chart:1", "v1", 0, WithLevel(LevelL2)))

	report, err := engine.WarmCache(ctx, WarmingScheduled, WarmRequest{Schedule: "hourly-charts"})
	require.NoError(t, err)
	assert.Equal(t, 2, report.KeysRequested)
	assert.Equal(t, 1, report.KeysWarmed)

	t.Run("Unknown Schedule", func(t *testing.T) {
		_, err := engine.WarmCache(ctx, WarmingScheduled, WarmRequest{Schedule: "nightly"})
		assert.ErrorIs(t, err, ErrUnknownStrategy)
	})
}

func TestWarmingUnknownStrategy(t *testing.T) {
	_, engine := newTestEngine(t)
	_, err := engine.WarmCache(context.Background(), WarmingStrategy("psychic"), WarmRequest{})
	assert.ErrorIs(t, err, ErrUnknownStrategy)
}

func TestPredictiveWindowExcludesStalePatterns(t *testing.T) {
	tr := NewPatternTracker()
	tr.Record("old:1", OpHit)

	// Rewind the pattern's last access beyond the window.
	tr.mu.Lock()
	stats, ok := tr.patterns.Get("old:*")
	require.True(t, ok)
	stats.lastAccess = time.Now().Add(-2 * time.Hour)
	tr.mu.Unlock()

	w := NewWarmer(NewMemoryStore(), nil, tr, nil, time.Minute, nil)
	assert.Empty(t, w.predictiveCandidates(0))
}
