package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/siderealhq/astrocache/pkg/observability"
)

// Optimization thresholds evaluated by Optimize.
const (
	// maxL1Bytes is the L1 footprint above which Optimize recommends
	// shrinking the tier.
	maxL1Bytes = 100 << 20
	// minHitRate is the hit rate below which Optimize recommends reviewing
	// key patterns and sizing.
	minHitRate = 0.80
)

const writeBehindTimeout = 5 * time.Second

// writeBehindOp is one queued L2 write.
type writeBehindOp struct {
	key  string
	data []byte
	ttl  time.Duration
}

// Engine is the multi-tier cache orchestrator. Construct one per process
// with New and pass it by reference to every consumer; Close flushes queued
// write-behind writes and closes the L2 connection.
//
// Engine methods are safe for concurrent use. Backend outages degrade to
// misses and failed writes; the only errors returned are configuration
// errors such as an unknown strategy name.
type Engine struct {
	cfg      Config
	codec    *Codec
	l1       *MemoryStore
	l2       *RedisStore
	stats    *Collector
	patterns *PatternTracker
	inval    *Invalidator
	warmer   *Warmer
	logger   observability.Logger
	metrics  observability.MetricsClient

	wbMu        sync.RWMutex
	wbClosed    bool
	writeBehind chan writeBehindOp
	wbWG        sync.WaitGroup

	closeOnce sync.Once
	closeErr  error
}

// New constructs an engine from config. With Redis disabled the engine runs
// memory-only; with FallbackMode a dead Redis degrades instead of failing
// construction.
func New(cfg Config, logger observability.Logger, metrics observability.MetricsClient) (*Engine, error) {
	cfg.applyDefaults()
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	if metrics == nil {
		metrics = observability.NewNoopMetrics()
	}

	var l2 *RedisStore
	if cfg.Redis.Enabled {
		var err error
		l2, err = NewRedisStore(cfg.Redis, logger)
		if err != nil {
			return nil, fmt.Errorf("l2 store: %w", err)
		}
	}

	l1 := NewMemoryStore()
	patterns := NewPatternTracker()

	e := &Engine{
		cfg:         cfg,
		codec:       NewCodec(cfg.CompressionThreshold),
		l1:          l1,
		l2:          l2,
		stats:       NewCollector(),
		patterns:    patterns,
		inval:       NewInvalidator(l1, l2, logger),
		warmer:      NewWarmer(l1, l2, patterns, cfg.WarmSchedules, cfg.DefaultTTL, logger),
		logger:      logger,
		metrics:     metrics,
		writeBehind: make(chan writeBehindOp, cfg.WriteBehindQueueSize),
	}

	for i := 0; i < cfg.WriteBehindWorkers; i++ {
		e.wbWG.Add(1)
		go e.writeBehindWorker()
	}

	return e, nil
}

// Get looks key up in L1 then L2, decoding into dest, which must be a
// pointer. On an L2 hit at LevelL1 the value is backfilled into L1. A
// return of false means a miss; dest is untouched, so callers preload it
// with their default. Backend outages count as misses.
func (e *Engine) Get(ctx context.Context, key string, dest any, opts ...Option) bool {
	start := time.Now()
	opt := applyOptions(opts)

	if opt.level == LevelL1 {
		if data, ok := e.l1.Get(key); ok {
			if err := e.codec.Decode(data, dest); err == nil {
				e.recordGet(key, true, start)
				return true
			}
			// Undecodable entries are dropped rather than served.
			e.l1.Delete(key)
			e.logger.Warn("dropped undecodable l1 entry", map[string]interface{}{"key": key})
		}
	}

	if e.l2 != nil {
		if data, ok := e.l2.Get(ctx, key); ok {
			if err := e.codec.Decode(data, dest); err != nil {
				e.logger.Warn("undecodable l2 entry", map[string]interface{}{
					"key":   key,
					"error": err.Error(),
				})
			} else {
				if opt.level == LevelL1 {
					e.l1.Set(key, data, e.cfg.DefaultTTL)
				}
				e.recordGet(key, true, start)
				return true
			}
		}
	}

	e.recordGet(key, false, start)
	return false
}

// Set encodes and stores value under key. ttl <= 0 selects the configured
// default TTL. The write strategy and tier come from the options; the
// result is false when any attempted synchronous write failed or the value
// could not be encoded.
func (e *Engine) Set(ctx context.Context, key string, value any, ttl time.Duration, opts ...Option) bool {
	start := time.Now()
	opt := applyOptions(opts)
	if ttl <= 0 {
		ttl = e.cfg.DefaultTTL
	}

	data, err := e.codec.Encode(value)
	if err != nil {
		var serr *SerializationError
		if errors.As(err, &serr) {
			e.logger.Warn("set failed: value not serializable", map[string]interface{}{
				"key":   key,
				"error": serr.Error(),
			})
		} else {
			e.logger.Warn("set failed: encode error", map[string]interface{}{
				"key":   key,
				"error": err.Error(),
			})
		}
		e.metrics.RecordCacheOperation("set", false, time.Since(start).Seconds())
		return false
	}

	ok := true
	switch opt.strategy {
	case WriteThrough:
		if opt.level == LevelL1 {
			e.l1.Set(key, data, ttl)
		}
		if e.l2 != nil {
			ok = e.l2.Set(ctx, key, data, ttl)
		}
	case WriteBehind:
		if opt.level == LevelL1 {
			e.l1.Set(key, data, ttl)
		}
		if e.l2 != nil {
			e.enqueueWriteBehind(key, data, ttl)
		}
	case WriteAround:
		if e.l2 != nil {
			ok = e.l2.Set(ctx, key, data, ttl)
		}
		e.l1.Delete(key)
	default:
		e.logger.Warn("unknown write strategy, falling back to write-through", map[string]interface{}{
			"strategy": int(opt.strategy),
		})
		if opt.level == LevelL1 {
			e.l1.Set(key, data, ttl)
		}
		if e.l2 != nil {
			ok = e.l2.Set(ctx, key, data, ttl)
		}
	}

	elapsed := time.Since(start)
	if ok {
		e.stats.RecordSet(elapsed)
	}
	e.patterns.Record(key, OpSet)
	e.metrics.RecordCacheOperation("set", ok, elapsed.Seconds())
	e.metrics.RecordGauge("astrocache_l1_bytes", float64(e.l1.SizeBytes()), nil)
	return ok
}

// Delete removes key from L1 when the level includes it and always from L2,
// so an intended delete never leaves a stale durable copy. Deleting an
// absent key is harmless and returns false.
func (e *Engine) Delete(ctx context.Context, key string, opts ...Option) bool {
	opt := applyOptions(opts)

	removed := false
	if opt.level == LevelL1 {
		removed = e.l1.Delete(key)
	}
	if e.l2 != nil {
		if e.l2.Delete(ctx, key) {
			removed = true
		}
	}

	e.stats.RecordDelete()
	e.patterns.Record(key, OpDelete)
	e.metrics.RecordCacheOperation("delete", removed, 0)
	return removed
}

// InvalidatePattern removes every key matching the glob pattern. The
// time-based, dependency-based and version-based strategies currently
// delegate to pattern-based; an unrecognized strategy name is returned as
// an error. Zero matches returns 0 with no error.
func (e *Engine) InvalidatePattern(ctx context.Context, pattern string, strategy InvalidationStrategy) (int, error) {
	switch strategy {
	case InvalidationPatternBased, InvalidationTimeBased, InvalidationDependencyBased, InvalidationVersionBased:
		return e.inval.PatternBased(ctx, pattern), nil
	default:
		return 0, fmt.Errorf("%w: invalidation strategy %q", ErrUnknownStrategy, strategy)
	}
}

// WarmCache runs the named warming strategy and returns its report.
func (e *Engine) WarmCache(ctx context.Context, strategy WarmingStrategy, req WarmRequest) (*WarmReport, error) {
	return e.warmer.Warm(ctx, strategy, req)
}

// Metrics returns the current counters, hit rate, L1 size estimate and L2
// connection info. With reset the counters are zeroed as a side effect.
func (e *Engine) Metrics(reset bool) MetricsSnapshot {
	snap := e.stats.Snapshot(reset)
	snap.L1Entries = e.l1.Len()
	snap.L1SizeBytes = e.l1.SizeBytes()
	if e.l2 != nil {
		snap.L2 = e.l2.ConnInfo()
	}
	return snap
}

// OptimizeReport describes one maintenance pass.
type OptimizeReport struct {
	ExpiredRemoved  int      `json:"expired_removed"`
	L1Entries       int      `json:"l1_entries"`
	L1SizeBytes     int64    `json:"l1_size_bytes"`
	HitRate         float64  `json:"hit_rate"`
	Recommendations []string `json:"recommendations"`
}

// Optimize sweeps expired L1 entries and evaluates the sizing thresholds.
// L2 expiry is the durable store's own responsibility and needs no action
// here.
func (e *Engine) Optimize(ctx context.Context) OptimizeReport {
	report := OptimizeReport{
		ExpiredRemoved: e.l1.Sweep(),
	}
	report.L1Entries = e.l1.Len()
	report.L1SizeBytes = e.l1.SizeBytes()

	snap := e.stats.Snapshot(false)
	report.HitRate = snap.HitRate

	if report.L1SizeBytes > maxL1Bytes {
		report.Recommendations = append(report.Recommendations,
			"L1 cache exceeds 100MB; consider shrinking L1 or lowering TTLs")
	}
	if snap.Hits+snap.Misses > 0 && snap.HitRate < minHitRate {
		report.Recommendations = append(report.Recommendations,
			"hit rate below 80%; review key patterns and cache sizing")
	}

	e.logger.Info("cache optimization pass", map[string]interface{}{
		"expired_removed": report.ExpiredRemoved,
		"l1_entries":      report.L1Entries,
		"l1_bytes":        report.L1SizeBytes,
		"hit_rate":        report.HitRate,
	})
	return report
}

// AnalyticsReport combines metrics, top access patterns and current
// recommendations for the operational surface.
type AnalyticsReport struct {
	GeneratedAt     time.Time       `json:"generated_at"`
	Metrics         MetricsSnapshot `json:"metrics"`
	TopPatterns     []PatternStat   `json:"top_patterns"`
	Recommendations []string        `json:"recommendations"`
}

// Analytics builds the combined operational report.
func (e *Engine) Analytics(ctx context.Context) AnalyticsReport {
	snap := e.Metrics(false)

	var recommendations []string
	if snap.L1SizeBytes > maxL1Bytes {
		recommendations = append(recommendations,
			"L1 cache exceeds 100MB; consider shrinking L1 or lowering TTLs")
	}
	if snap.Hits+snap.Misses > 0 && snap.HitRate < minHitRate {
		recommendations = append(recommendations,
			"hit rate below 80%; review key patterns and cache sizing")
	}

	return AnalyticsReport{
		GeneratedAt:     time.Now(),
		Metrics:         snap,
		TopPatterns:     e.patterns.TopPatterns(10),
		Recommendations: recommendations,
	}
}

// TopPatterns exposes the tracker's hottest patterns.
func (e *Engine) TopPatterns(n int) []PatternStat {
	return e.patterns.TopPatterns(n)
}

// Close drains the write-behind queue, stops the workers and closes the L2
// connection. Safe to call more than once.
func (e *Engine) Close(ctx context.Context) error {
	e.closeOnce.Do(func() {
		e.wbMu.Lock()
		e.wbClosed = true
		close(e.writeBehind)
		e.wbMu.Unlock()

		done := make(chan struct{})
		go func() {
			e.wbWG.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			e.closeErr = fmt.Errorf("write-behind drain interrupted: %w", ctx.Err())
		}

		if e.l2 != nil {
			if err := e.l2.Close(); err != nil && e.closeErr == nil {
				e.closeErr = err
			}
		}
	})
	return e.closeErr
}

func (e *Engine) recordGet(key string, hit bool, start time.Time) {
	elapsed := time.Since(start)
	e.stats.RecordGet(hit, elapsed)
	if hit {
		e.patterns.Record(key, OpHit)
	} else {
		e.patterns.Record(key, OpMiss)
	}
	e.metrics.RecordCacheOperation("get", hit, elapsed.Seconds())
}

// enqueueWriteBehind hands an L2 write to the worker pool. A full queue
// drops the write with a warning; losing a queued write on overload or
// crash is the documented write-behind tradeoff.
func (e *Engine) enqueueWriteBehind(key string, data []byte, ttl time.Duration) {
	e.wbMu.RLock()
	defer e.wbMu.RUnlock()
	if e.wbClosed {
		e.logger.Warn("write-behind after close, dropping", map[string]interface{}{"key": key})
		return
	}
	select {
	case e.writeBehind <- writeBehindOp{key: key, data: data, ttl: ttl}:
	default:
		e.logger.Warn("write-behind queue full, dropping l2 write", map[string]interface{}{"key": key})
		e.metrics.RecordCounter("astrocache_write_behind_dropped_total", 1, nil)
	}
}

func (e *Engine) writeBehindWorker() {
	defer e.wbWG.Done()
	for op := range e.writeBehind {
		ctx, cancel := context.WithTimeout(context.Background(), writeBehindTimeout)
		if !e.l2.Set(ctx, op.key, op.data, op.ttl) {
			e.logger.Warn("write-behind l2 write failed", map[string]interface{}{"key": op.key})
		}
		cancel()
	}
}
