// Package config loads the astrocached configuration from a YAML file and
// environment overrides.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/siderealhq/astrocache/pkg/cache"
)

// ServerConfig configures the operational HTTP API.
type ServerConfig struct {
	ListenAddress string        `mapstructure:"listen_address"`
	ReadTimeout   time.Duration `mapstructure:"read_timeout"`
	WriteTimeout  time.Duration `mapstructure:"write_timeout"`
	IdleTimeout   time.Duration `mapstructure:"idle_timeout"`
}

// LoggingConfig configures log output.
type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

// Config is the complete astrocached configuration.
type Config struct {
	Environment string        `mapstructure:"environment"`
	Server      ServerConfig  `mapstructure:"server"`
	Cache       cache.Config  `mapstructure:"cache"`
	Logging     LoggingConfig `mapstructure:"logging"`
}

// Load reads configuration from the given file (optional) with
// ASTROCACHE_-prefixed environment variables taking precedence.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("environment", "development")
	v.SetDefault("server.listen_address", ":8090")
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.idle_timeout", 90*time.Second)
	v.SetDefault("logging.level", "info")

	v.SetDefault("cache.default_ttl", cache.DefaultTTL)
	v.SetDefault("cache.compression_threshold", cache.DefaultCompressionThreshold)
	v.SetDefault("cache.write_behind_workers", cache.DefaultWriteBehindWorkers)
	v.SetDefault("cache.write_behind_queue_size", cache.DefaultWriteBehindQueueSize)
	v.SetDefault("cache.redis.enabled", true)
	v.SetDefault("cache.redis.addr", "localhost:6379")
	v.SetDefault("cache.redis.db", 0)
	v.SetDefault("cache.redis.key_prefix", "astrocache:")
	v.SetDefault("cache.redis.dial_timeout", 5*time.Second)
	v.SetDefault("cache.redis.read_timeout", 2*time.Second)
	v.SetDefault("cache.redis.write_timeout", 2*time.Second)
	v.SetDefault("cache.redis.fallback_mode", true)

	v.SetEnvPrefix("ASTROCACHE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}
