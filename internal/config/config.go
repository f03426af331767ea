// Package config loads server configuration from environment variables and
// an optional config file.
//
// Every key may be given as a plain environment variable (DATABASE_URL) or
// with the RULES_ prefix (RULES_DATABASE_URL); the prefixed form wins.
//
// Required variables:
//   - DATABASE_URL: PostgreSQL connection string.
//
// Optional variables:
//   - HTTP_ADDR: listen address (default ":8080").
//   - APP_ENV: "production" hides internal error details (default "development").
//   - LOG_LEVEL: TRACE, DEBUG, INFO, WARN, ERROR or FATAL (default "INFO").
//   - CACHE_BACKEND: memory, redis or none (default "memory").
//   - CACHE_TTL: snapshot cache lifetime, 0 for no expiry (default "30s").
//   - REDIS_URL: required when CACHE_BACKEND is redis.
//   - RULE_TIMEOUT: per-rule evaluation bound, 0 to disable (default "250ms").
//   - RULE_COST_LIMIT: per-rule CEL cost limit (default 1000000).
//   - EVAL_WORKERS: rules evaluated in parallel, 0 for GOMAXPROCS (default 0).
//   - MAX_JSON_BODY_SIZE: request body limit in bytes (default 1048576).
//   - MIGRATE_ON_START: apply embedded migrations at startup (default false).
//   - CONFIG_FILE: YAML, JSON or TOML file read before the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/liamcoop/ruleeval/internal/logger"
)

const envPrefix = "RULES"

const (
	CacheMemory = "memory"
	CacheRedis  = "redis"
	CacheNone   = "none"
)

// Config holds the runtime configuration for the server.
type Config struct {
	DatabaseURL     string        `mapstructure:"database_url"`
	HTTPAddr        string        `mapstructure:"http_addr"`
	AppEnv          string        `mapstructure:"app_env"`
	LogLevel        string        `mapstructure:"log_level"`
	CacheBackend    string        `mapstructure:"cache_backend"`
	CacheTTL        time.Duration `mapstructure:"cache_ttl"`
	RedisURL        string        `mapstructure:"redis_url"`
	RuleTimeout     time.Duration `mapstructure:"rule_timeout"`
	RuleCostLimit   uint64        `mapstructure:"rule_cost_limit"`
	EvalWorkers     int           `mapstructure:"eval_workers"`
	MaxJSONBodySize int64         `mapstructure:"max_json_body_size"`
	MigrateOnStart  bool          `mapstructure:"migrate_on_start"`
}

var defaults = map[string]any{
	"database_url":       "",
	"http_addr":          ":8080",
	"app_env":            "development",
	"log_level":          "INFO",
	"cache_backend":      CacheMemory,
	"cache_ttl":          "30s",
	"redis_url":          "",
	"rule_timeout":       "250ms",
	"rule_cost_limit":    1000000,
	"eval_workers":       0,
	"max_json_body_size": 1 << 20,
	"migrate_on_start":   false,
}

// Load reads configuration, applying defaults where appropriate. It returns
// an error if required values are missing or fail validation.
func Load() (*Config, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
		upper := strings.ToUpper(key)
		if err := v.BindEnv(key, envPrefix+"_"+upper, upper); err != nil {
			return nil, fmt.Errorf("bind %s: %w", upper, err)
		}
	}

	if path := configFile(); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.TextUnmarshallerHookFunc(),
	))); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func configFile() string {
	if path := strings.TrimSpace(os.Getenv(envPrefix + "_CONFIG_FILE")); path != "" {
		return path
	}
	return strings.TrimSpace(os.Getenv("CONFIG_FILE"))
}

// Validate checks required values and ranges, normalizing where a value has
// several accepted spellings.
func (c *Config) Validate() error {
	c.DatabaseURL = strings.TrimSpace(c.DatabaseURL)
	if c.DatabaseURL == "" {
		return errors.New("DATABASE_URL is required")
	}

	if strings.TrimSpace(c.HTTPAddr) == "" {
		return errors.New("HTTP_ADDR must not be empty")
	}

	if _, err := logger.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("LOG_LEVEL: %w", err)
	}

	c.CacheBackend = strings.ToLower(strings.TrimSpace(c.CacheBackend))
	switch c.CacheBackend {
	case CacheMemory, CacheNone:
	case CacheRedis:
		if strings.TrimSpace(c.RedisURL) == "" {
			return errors.New("REDIS_URL is required when CACHE_BACKEND is redis")
		}
	default:
		return fmt.Errorf("CACHE_BACKEND must be one of memory, redis, none; got %q", c.CacheBackend)
	}

	if c.CacheTTL < 0 {
		return fmt.Errorf("CACHE_TTL must not be negative, got %s", c.CacheTTL)
	}
	if c.RuleTimeout < 0 {
		return fmt.Errorf("RULE_TIMEOUT must not be negative, got %s", c.RuleTimeout)
	}
	if c.RuleCostLimit == 0 {
		return errors.New("RULE_COST_LIMIT must be > 0")
	}
	if c.EvalWorkers < 0 {
		return fmt.Errorf("EVAL_WORKERS must not be negative, got %d", c.EvalWorkers)
	}
	if c.MaxJSONBodySize < 1 {
		return errors.New("MAX_JSON_BODY_SIZE must be a positive integer (bytes)")
	}

	return nil
}

// IsProduction reports whether internal error details must be hidden
func (c *Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.AppEnv), "production")
}
