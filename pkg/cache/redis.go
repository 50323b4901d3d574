package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"

	"github.com/siderealhq/astrocache/pkg/observability"
)

// RedisConfig configures the L2 tier.
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`

	// KeyPrefix namespaces every key in the shared store.
	KeyPrefix string `mapstructure:"key_prefix"`

	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`

	// FallbackMode lets the engine start memory-only when Redis is down at
	// construction instead of failing.
	FallbackMode bool `mapstructure:"fallback_mode"`
}

func (c *RedisConfig) applyDefaults() {
	if c.KeyPrefix == "" {
		c.KeyPrefix = "astrocache:"
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = 5 * time.Second
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 2 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 2 * time.Second
	}
}

// ConnInfo describes the L2 connection for metrics snapshots.
type ConnInfo struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"`
	DB      int    `json:"db"`
	Healthy bool   `json:"healthy"`
}

// deleteChunkSize bounds the number of keys per DEL command.
const deleteChunkSize = 512

// RedisStore is the fault-tolerant adapter over the shared Redis tier.
// Every operation runs inside a circuit breaker; failures are logged and
// converted to zero-value results, so callers never see an error from this
// layer. After a failure a background probe with exponential backoff
// re-tests the backend until it answers again.
type RedisStore struct {
	client  *redis.Client
	breaker *gobreaker.CircuitBreaker
	cfg     RedisConfig
	logger  observability.Logger

	mu      sync.Mutex
	healthy bool
	probing bool

	probeCtx    context.Context
	probeCancel context.CancelFunc
}

// NewRedisStore connects to Redis and verifies the connection. With
// FallbackMode the store is returned unhealthy on a failed ping and the
// probe loop takes over; otherwise the ping error is returned.
func NewRedisStore(cfg RedisConfig, logger observability.Logger) (*RedisStore, error) {
	cfg.applyDefaults()
	if logger == nil {
		logger = observability.NewNoopLogger()
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	probeCtx, probeCancel := context.WithCancel(context.Background())
	s := &RedisStore{
		client:      client,
		cfg:         cfg,
		logger:      logger,
		probeCtx:    probeCtx,
		probeCancel: probeCancel,
	}
	s.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "redis-l2",
		MaxRequests: 3,
		Interval:    10 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("redis circuit breaker state change", map[string]interface{}{
				"from": from.String(),
				"to":   to.String(),
			})
		},
	})

	pingCtx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		if !cfg.FallbackMode {
			_ = client.Close()
			probeCancel()
			return nil, fmt.Errorf("redis ping failed: %w", err)
		}
		logger.Warn("redis unreachable, starting in degraded mode", map[string]interface{}{
			"addr":  cfg.Addr,
			"error": err.Error(),
		})
		s.pushFailure()
		return s, nil
	}

	s.healthy = true
	logger.Info("redis cache initialized", map[string]interface{}{
		"addr": cfg.Addr,
		"db":   cfg.DB,
	})
	return s, nil
}

// Get returns the payload for key, or false on miss or backend failure.
func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, bool) {
	res, err := s.breaker.Execute(func() (any, error) {
		opCtx, cancel := context.WithTimeout(ctx, s.cfg.ReadTimeout)
		defer cancel()
		data, err := s.client.Get(opCtx, s.cfg.KeyPrefix+key).Bytes()
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		return data, nil
	})
	if err != nil {
		s.degrade("get", key, err)
		return nil, false
	}
	if res == nil {
		return nil, false
	}
	return res.([]byte), true
}

// Set stores a payload with a TTL, reporting false on failure. ttl <= 0
// stores without expiry.
func (s *RedisStore) Set(ctx context.Context, key string, data []byte, ttl time.Duration) bool {
	if ttl < 0 {
		ttl = 0
	}
	_, err := s.breaker.Execute(func() (any, error) {
		opCtx, cancel := context.WithTimeout(ctx, s.cfg.WriteTimeout)
		defer cancel()
		return nil, s.client.Set(opCtx, s.cfg.KeyPrefix+key, data, ttl).Err()
	})
	if err != nil {
		s.degrade("set", key, err)
		return false
	}
	return true
}

// Delete removes a key, reporting whether Redis confirmed a removal.
func (s *RedisStore) Delete(ctx context.Context, key string) bool {
	res, err := s.breaker.Execute(func() (any, error) {
		opCtx, cancel := context.WithTimeout(ctx, s.cfg.WriteTimeout)
		defer cancel()
		return s.client.Del(opCtx, s.cfg.KeyPrefix+key).Result()
	})
	if err != nil {
		s.degrade("delete", key, err)
		return false
	}
	return res.(int64) > 0
}

// Keys returns the keys matching a glob pattern, without the store prefix.
// Enumeration uses SCAN so a large keyspace never blocks the backend.
func (s *RedisStore) Keys(ctx context.Context, pattern string) []string {
	res, err := s.breaker.Execute(func() (any, error) {
		opCtx, cancel := context.WithTimeout(ctx, 10*s.cfg.ReadTimeout)
		defer cancel()
		var keys []string
		iter := s.client.Scan(opCtx, 0, s.cfg.KeyPrefix+pattern, 100).Iterator()
		for iter.Next(opCtx) {
			keys = append(keys, strings.TrimPrefix(iter.Val(), s.cfg.KeyPrefix))
		}
		if err := iter.Err(); err != nil {
			return nil, err
		}
		return keys, nil
	})
	if err != nil {
		s.degrade("keys", pattern, err)
		return nil
	}
	return res.([]string)
}

// DeleteMany removes a key list in chunks and returns the number removed.
func (s *RedisStore) DeleteMany(ctx context.Context, keys []string) int {
	if len(keys) == 0 {
		return 0
	}
	prefixed := make([]string, len(keys))
	for i, k := range keys {
		prefixed[i] = s.cfg.KeyPrefix + k
	}

	removed := 0
	for start := 0; start < len(prefixed); start += deleteChunkSize {
		end := start + deleteChunkSize
		if end > len(prefixed) {
			end = len(prefixed)
		}
		chunk := prefixed[start:end]
		res, err := s.breaker.Execute(func() (any, error) {
			opCtx, cancel := context.WithTimeout(ctx, s.cfg.WriteTimeout)
			defer cancel()
			return s.client.Del(opCtx, chunk...).Result()
		})
		if err != nil {
			s.degrade("delete_many", fmt.Sprintf("%d keys", len(chunk)), err)
			continue
		}
		removed += int(res.(int64))
	}
	return removed
}

// Healthy reports whether the last contact with the backend succeeded.
func (s *RedisStore) Healthy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.healthy
}

// ConnInfo describes the connection for metrics snapshots.
func (s *RedisStore) ConnInfo() ConnInfo {
	return ConnInfo{
		Enabled: true,
		Addr:    s.cfg.Addr,
		DB:      s.cfg.DB,
		Healthy: s.Healthy(),
	}
}

// Close stops the probe loop and closes the client.
func (s *RedisStore) Close() error {
	s.probeCancel()
	return s.client.Close()
}

// degrade logs a failed operation and kicks the health probe. Connectivity
// failures surface to the engine purely as zero-value results.
func (s *RedisStore) degrade(op, subject string, err error) {
	s.logger.Warn("redis operation failed", map[string]interface{}{
		"op":      op,
		"subject": subject,
		"error":   err.Error(),
	})
	s.pushFailure()
}

func (s *RedisStore) pushFailure() {
	s.mu.Lock()
	s.healthy = false
	start := !s.probing
	if start {
		s.probing = true
	}
	s.mu.Unlock()

	if start {
		go s.probe()
	}
}

// probe pings the backend with exponential backoff until it answers or the
// store is closed.
func (s *RedisStore) probe() {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 1 * time.Second
	b.MaxInterval = 30 * time.Second
	b.MaxElapsedTime = 0

	op := func() error {
		pingCtx, cancel := context.WithTimeout(s.probeCtx, s.cfg.DialTimeout)
		defer cancel()
		return s.client.Ping(pingCtx).Err()
	}

	err := backoff.Retry(op, backoff.WithContext(b, s.probeCtx))

	s.mu.Lock()
	s.probing = false
	s.healthy = err == nil
	s.mu.Unlock()

	if err == nil {
		s.logger.Info("redis connectivity restored", map[string]interface{}{
			"addr": s.cfg.Addr,
		})
	}
}
