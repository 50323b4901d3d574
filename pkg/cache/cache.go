// Package cache implements the multi-tier caching engine used by the chart,
// interpretation and session subsystems. It coordinates an in-process L1 tier
// with a shared Redis L2 tier, supports write-through, write-behind and
// write-around strategies, compresses large values, and tracks access
// patterns for analytics and warming. Backend failures never surface to
// callers as errors; they degrade to misses and failed writes with a logged
// warning.
package cache

import (
	"errors"
	"fmt"
	"time"
)

// Level selects which tiers an operation touches.
type Level int

const (
	// LevelL1 uses the in-process tier backed by the shared tier.
	LevelL1 Level = iota
	// LevelL2 bypasses the in-process tier entirely.
	LevelL2
)

func (l Level) String() string {
	switch l {
	case LevelL1:
		return "l1"
	case LevelL2:
		return "l2"
	default:
		return "unknown"
	}
}

// WriteStrategy governs which tiers a Set updates synchronously.
type WriteStrategy int

const (
	// WriteThrough writes both tiers before returning.
	WriteThrough WriteStrategy = iota
	// WriteBehind writes L1 synchronously and queues the L2 write. A crash
	// before the queued write drains loses the update from L2's perspective.
	WriteBehind
	// WriteAround writes only L2 and drops any L1 copy so stale data is
	// never served from L1.
	WriteAround
)

func (s WriteStrategy) String() string {
	switch s {
	case WriteThrough:
		return "write_through"
	case WriteBehind:
		return "write_behind"
	case WriteAround:
		return "write_around"
	default:
		return "unknown"
	}
}

// InvalidationStrategy names a bulk-invalidation mode. Only pattern-based
// invalidation has differentiated behavior today; the other modes delegate
// to it.
type InvalidationStrategy string

const (
	InvalidationPatternBased    InvalidationStrategy = "pattern_based"
	InvalidationTimeBased       InvalidationStrategy = "time_based"
	InvalidationDependencyBased InvalidationStrategy = "dependency_based"
	InvalidationVersionBased    InvalidationStrategy = "version_based"
)

// WarmingStrategy names a cache-warming mode.
type WarmingStrategy string

const (
	WarmingPredictive WarmingStrategy = "predictive"
	WarmingScheduled  WarmingStrategy = "scheduled"
	WarmingOnDemand   WarmingStrategy = "on_demand"
)

// ErrUnknownStrategy reports a strategy or warming mode name the engine does
// not recognize. Unlike backend failures this is a programmer error and is
// returned to the caller.
var ErrUnknownStrategy = errors.New("unknown strategy")

// SerializationError reports a value the codec chain cannot encode. Set
// logs it and returns false; it never escapes the engine boundary.
type SerializationError struct {
	Cause error
}

func (e *SerializationError) Error() string {
	return fmt.Sprintf("value not serializable: %v", e.Cause)
}

func (e *SerializationError) Unwrap() error { return e.Cause }

// Identifiable lets record-like values contribute a stable identity to
// generated cache keys instead of their full printed form.
type Identifiable interface {
	CacheID() string
}

// Config configures a cache engine.
type Config struct {
	// DefaultTTL applies when a Set passes ttl <= 0 and on L1 backfill.
	DefaultTTL time.Duration `mapstructure:"default_ttl"`

	// CompressionThreshold is the encoded size above which values are
	// compressed when compression shrinks them. Zero means the default.
	CompressionThreshold int `mapstructure:"compression_threshold"`

	// WriteBehindWorkers is the number of goroutines draining queued L2
	// writes. WriteBehindQueueSize bounds the queue; a full queue drops the
	// L2 write with a logged warning.
	WriteBehindWorkers   int `mapstructure:"write_behind_workers"`
	WriteBehindQueueSize int `mapstructure:"write_behind_queue_size"`

	// WarmSchedules maps a schedule name to the keys the scheduled warming
	// strategy refreshes.
	WarmSchedules map[string][]string `mapstructure:"warm_schedules"`

	Redis RedisConfig `mapstructure:"redis"`
}

// Defaults mirrored from the deployed configuration.
const (
	DefaultTTL                  = 1 * time.Hour
	DefaultWriteBehindWorkers   = 2
	DefaultWriteBehindQueueSize = 1024
)

func (c *Config) applyDefaults() {
	if c.DefaultTTL <= 0 {
		c.DefaultTTL = DefaultTTL
	}
	if c.CompressionThreshold <= 0 {
		c.CompressionThreshold = DefaultCompressionThreshold
	}
	if c.WriteBehindWorkers <= 0 {
		c.WriteBehindWorkers = DefaultWriteBehindWorkers
	}
	if c.WriteBehindQueueSize <= 0 {
		c.WriteBehindQueueSize = DefaultWriteBehindQueueSize
	}
	c.Redis.applyDefaults()
}

type callOptions struct {
	level    Level
	strategy WriteStrategy
}

// Option adjusts a single Get/Set/Delete call.
type Option func(*callOptions)

// WithLevel selects the tier an operation targets. The default is LevelL1.
func WithLevel(l Level) Option {
	return func(o *callOptions) { o.level = l }
}

// WithStrategy selects the write strategy for a Set. The default is
// WriteThrough.
func WithStrategy(s WriteStrategy) Option {
	return func(o *callOptions) { o.strategy = s }
}

func applyOptions(opts []Option) callOptions {
	o := callOptions{level: LevelL1, strategy: WriteThrough}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
