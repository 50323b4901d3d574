package cache

import (
	"sync"
	"time"
)

// MetricsSnapshot is a point-in-time view of the engine's counters.
type MetricsSnapshot struct {
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
	Sets    int64 `json:"sets"`
	Deletes int64 `json:"deletes"`

	// HitRate is hits/(hits+misses), 0 when no gets have happened.
	HitRate float64 `json:"hit_rate"`

	AvgGetLatency time.Duration `json:"avg_get_latency_ns"`
	AvgSetLatency time.Duration `json:"avg_set_latency_ns"`

	L1Entries   int   `json:"l1_entries"`
	L1SizeBytes int64 `json:"l1_size_bytes"`

	L2 ConnInfo `json:"l2"`
}

// Collector accumulates hit/miss/set/delete counters and running-average
// latencies under one mutex so concurrent callers never lose increments.
type Collector struct {
	mu sync.Mutex

	hits    int64
	misses  int64
	sets    int64
	deletes int64

	getTotal time.Duration
	getCount int64
	setTotal time.Duration
	setCount int64
}

// NewCollector creates a zeroed collector.
func NewCollector() *Collector {
	return &Collector{}
}

// RecordGet records one get with its outcome and duration.
func (c *Collector) RecordGet(hit bool, elapsed time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if hit {
		c.hits++
	} else {
		c.misses++
	}
	c.getTotal += elapsed
	c.getCount++
}

// RecordSet records one successful set with its duration.
func (c *Collector) RecordSet(elapsed time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sets++
	c.setTotal += elapsed
	c.setCount++
}

// RecordDelete records one delete.
func (c *Collector) RecordDelete() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deletes++
}

// Snapshot returns the current counters, zeroing them when reset is true.
func (c *Collector) Snapshot(reset bool) MetricsSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := MetricsSnapshot{
		Hits:    c.hits,
		Misses:  c.misses,
		Sets:    c.sets,
		Deletes: c.deletes,
	}
	if total := c.hits + c.misses; total > 0 {
		snap.HitRate = float64(c.hits) / float64(total)
	}
	if c.getCount > 0 {
		snap.AvgGetLatency = c.getTotal / time.Duration(c.getCount)
	}
	if c.setCount > 0 {
		snap.AvgSetLatency = c.setTotal / time.Duration(c.setCount)
	}

	if reset {
		c.hits, c.misses, c.sets, c.deletes = 0, 0, 0, 0
		c.getTotal, c.getCount = 0, 0
		c.setTotal, c.setCount = 0, 0
	}
	return snap
}
