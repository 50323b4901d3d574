package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/siderealhq/astrocache/pkg/cache"
	"github.com/siderealhq/astrocache/pkg/observability"
)

func newTestServer(t *testing.T) (*cache.Engine, http.Handler) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	prom := observability.NewPrometheusMetrics("astrocache_test")
	engine, err := cache.New(cache.Config{
		DefaultTTL: time.Minute,
		Redis: cache.RedisConfig{
			Enabled:   true,
			Addr:      mr.Addr(),
			KeyPrefix: "t:",
		},
	}, observability.NewNoopLogger(), prom)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = engine.Close(ctx)
	})

	server := NewServer(engine, observability.NewNoopLogger(), prom)
	return engine, server.Handler()
}

func TestHealthEndpoint(t *testing.T) {
	_, handler := newTestServer(t)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestMetricsEndpoint(t *testing.T) {
	engine, handler := newTestServer(t)
	ctx := context.Background()

	require.True(t, engine.Set(ctx, "k", "v", 0))
	var out string
	require.True(t, engine.Get(ctx, "k", &out))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/cache/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var snap cache.MetricsSnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, int64(1), snap.Hits)
	assert.Equal(t, 1.0, snap.HitRate)

	t.Run("Reset Query Parameter", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/cache/metrics?reset=true", nil))
		require.Equal(t, http.StatusOK, rec.Code)

		rec = httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/cache/metrics", nil))
		var snap cache.MetricsSnapshot
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
		assert.Zero(t, snap.Hits)
	})
}

func TestInvalidateEndpoint(t *testing.T) {
	engine, handler := newTestServer(t)
	ctx := context.Background()

	require.True(t, engine.Set(ctx, "user:1:profile", "a", 0))
	require.True(t, engine.Set(ctx, "order:1", "b", 0))

	body := strings.NewReader(`{"pattern": "user:*:profile"}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/cache/invalidate", body)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]int
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp["invalidated"])

	t.Run("Unknown Strategy Rejected", func(t *testing.T) {
		body := strings.NewReader(`{"pattern": "user:*", "strategy": "bogus"}`)
		req := httptest.NewRequest(http.MethodPost, "/v1/cache/invalidate", body)
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("Missing Pattern Rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/v1/cache/invalidate", strings.NewReader(`{}`))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestWarmEndpoint(t *testing.T) {
	_, handler := newTestServer(t)

	body := strings.NewReader(`{"strategy": "predictive"}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/cache/warm", body)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var report cache.WarmReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, cache.WarmingPredictive, report.Strategy)

	t.Run("Unknown Strategy Rejected", func(t *testing.T) {
		body := strings.NewReader(`{"strategy": "psychic"}`)
		req := httptest.NewRequest(http.MethodPost, "/v1/cache/warm", body)
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestOptimizeEndpoint(t *testing.T) {
	_, handler := newTestServer(t)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/cache/optimize", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var report cache.OptimizeReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Zero(t, report.ExpiredRemoved)
}

func TestPrometheusEndpoint(t *testing.T) {
	engine, handler := newTestServer(t)
	require.True(t, engine.Set(context.Background(), "k", "v", 0))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "cache_operations_total")
}
