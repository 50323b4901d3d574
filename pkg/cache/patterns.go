package cache

import (
	"regexp"
	"sort"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Operation names the cache operations the pattern tracker counts.
type Operation string

const (
	OpHit    Operation = "hit"
	OpMiss   Operation = "miss"
	OpSet    Operation = "set"
	OpDelete Operation = "delete"
)

// maxTrackedPatterns bounds the pattern table. The tracker in the original
// design grew for the life of the process; capping it with an LRU keeps the
// memory footprint fixed while retaining the hot patterns warming cares
// about.
const maxTrackedPatterns = 4096

var digitRun = regexp.MustCompile(`\d+`)

// Wildcard derives a key's access pattern: every maximal run of digits
// becomes "*", so user:482:profile and user:7:profile aggregate together.
func Wildcard(key string) string {
	return digitRun.ReplaceAllString(key, "*")
}

// PatternStat is one pattern's counters.
type PatternStat struct {
	Pattern    string    `json:"pattern"`
	Hits       int64     `json:"hits"`
	Misses     int64     `json:"misses"`
	Sets       int64     `json:"sets"`
	Deletes    int64     `json:"deletes"`
	LastAccess time.Time `json:"last_access"`
}

// Total is the pattern's combined operation count.
func (p PatternStat) Total() int64 {
	return p.Hits + p.Misses + p.Sets + p.Deletes
}

type patternStats struct {
	hits, misses, sets, deletes int64
	lastAccess                  time.Time
}

// PatternTracker aggregates per-pattern operation counts for analytics and
// warming. All mutation happens under one mutex; the LRU only evicts under
// pattern-cardinality pressure.
type PatternTracker struct {
	mu       sync.Mutex
	patterns *lru.Cache[string, *patternStats]
}

// NewPatternTracker creates an empty tracker.
func NewPatternTracker() *PatternTracker {
	patterns, _ := lru.New[string, *patternStats](maxTrackedPatterns)
	return &PatternTracker{patterns: patterns}
}

// Record counts one operation against the key's pattern.
func (t *PatternTracker) Record(key string, op Operation) {
	pattern := Wildcard(key)

	t.mu.Lock()
	defer t.mu.Unlock()

	stats, ok := t.patterns.Get(pattern)
	if !ok {
		stats = &patternStats{}
		t.patterns.Add(pattern, stats)
	}
	switch op {
	case OpHit:
		stats.hits++
	case OpMiss:
		stats.misses++
	case OpSet:
		stats.sets++
	case OpDelete:
		stats.deletes++
	}
	stats.lastAccess = time.Now()
}

// TopPatterns returns the n patterns with the highest total operation
// count, descending, ties broken by ascending pattern string so output is
// deterministic.
func (t *PatternTracker) TopPatterns(n int) []PatternStat {
	all := t.Snapshot()
	sort.Slice(all, func(i, j int) bool {
		ti, tj := all[i].Total(), all[j].Total()
		if ti != tj {
			return ti > tj
		}
		return all[i].Pattern < all[j].Pattern
	})
	if n >= 0 && n < len(all) {
		all = all[:n]
	}
	return all
}

// Snapshot copies every tracked pattern's counters.
func (t *PatternTracker) Snapshot() []PatternStat {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]PatternStat, 0, t.patterns.Len())
	for _, pattern := range t.patterns.Keys() {
		stats, ok := t.patterns.Peek(pattern)
		if !ok {
			continue
		}
		out = append(out, PatternStat{
			Pattern:    pattern,
			Hits:       stats.hits,
			Misses:     stats.misses,
			Sets:       stats.sets,
			Deletes:    stats.deletes,
			LastAccess: stats.lastAccess,
		})
	}
	return out
}
