package app

import (
	"errors"
	"time"

	"github.com/joefazee/parimutuel/app/database"
	"github.com/joefazee/parimutuel/app/settlement"
	"github.com/joefazee/parimutuel/internal/cache"
	"github.com/joefazee/parimutuel/internal/lock"
	"github.com/joefazee/parimutuel/internal/nexus"
)

const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"

	PublisherLog   = "log"
	PublisherRedis = "redis"
)

var (
	ErrRedisNotConfigured = errors.New("redis address not configured")
	ErrWeakSymmetricKey   = errors.New("auth symmetric key must be exactly 32 characters")
)

type RedisConfig struct {
	Addr         string        `env:"REDIS_ADDR"`
	Password     string        `env:"REDIS_PASSWORD"`
	DB           int           `env:"REDIS_DB"`
	PoolSize     int           `env:"REDIS_POOL_SIZE" env-default:"10"`
	MinIdleConns int           `env:"REDIS_MIN_IDLE_CONNS" env-default:"2"`
	MaxRetries   int           `env:"REDIS_MAX_RETRIES" env-default:"3"`
	OpTimeout    time.Duration `env:"REDIS_OP_TIMEOUT" env-default:"50ms"`
	LockTTL      time.Duration `env:"REDIS_LOCK_TTL" env-default:"10s"`
}

// Options converts the config into cache client options.
func (c *RedisConfig) Options() *cache.RedisOptions {
	return &cache.RedisOptions{
		Addr:            c.Addr,
		Password:        c.Password,
		DB:              c.DB,
		PoolSize:        c.PoolSize,
		MinIdleConns:    c.MinIdleConns,
		MaxRetries:      c.MaxRetries,
		MinRetryBackoff: 8 * time.Millisecond,
		MaxRetryBackoff: 512 * time.Millisecond,
		OpTimeout:       c.OpTimeout,
	}
}

type AuthConfig struct {
	SymmetricKey  string        `env:"AUTH_SYMMETRIC_KEY"`
	TokenDuration time.Duration `env:"AUTH_TOKEN_DURATION" env-default:"15m"`
}

// Backends selects the implementation of each infrastructure concern.
type Backends struct {
	Storage   string `env:"STORAGE_BACKEND" validate:"omitempty,oneof=memory postgres"`
	Cache     string `env:"CACHE_BACKEND" validate:"omitempty,oneof=memory redis"`
	Lock      string `env:"LOCK_BACKEND" validate:"omitempty,oneof=memory redis"`
	Publisher string `env:"EVENT_PUBLISHER" validate:"omitempty,oneof=log redis"`
}

// NeedsRedis reports whether any backend is served by redis.
func (b *Backends) NeedsRedis() bool {
	return b.Cache == cache.RedisBackend || b.Lock == lock.RedisBackend || b.Publisher == PublisherRedis
}

type Config struct {
	DB         database.Config
	Redis      RedisConfig
	Auth       AuthConfig
	Backends   Backends
	Settlement settlement.Config

	LogLevel  string `env:"LOG_LEVEL" validate:"omitempty,oneof=debug info warn error fatal"`
	AppHost   string `env:"APP_HOST"`
	AppPort   string `env:"APP_PORT"`
	Env       string `env:"APP_ENV"`
	// PublicURL is advertised in the API document outside development.
	PublicURL string `env:"APP_PUBLIC_URL" validate:"omitempty,url"`
}

// DefaultConfig returns the values used for anything the environment leaves unset.
func DefaultConfig() *Config {
	return &Config{
		Backends: Backends{
			Storage:   StorageMemory,
			Cache:     cache.MemoryBackend,
			Lock:      lock.KeyedBackend,
			Publisher: PublisherLog,
		},
		Settlement: *settlement.GetDefaultConfig(),
		LogLevel:   "info",
		AppHost:    "localhost",
		AppPort:    "8080",
		Env:        "development",
	}
}

// Validate checks settings that depend on one another.
func (c *Config) Validate() error {
	if len(c.Auth.SymmetricKey) != 32 {
		return ErrWeakSymmetricKey
	}
	if c.Backends.Storage == StoragePostgres {
		if err := c.DB.Validate(); err != nil {
			return err
		}
	}
	if c.Backends.NeedsRedis() && c.Redis.Addr == "" {
		return ErrRedisNotConfigured
	}
	return c.Settlement.Validate()
}

// LoadConfig loads the application configuration from environment variables or a config file.
func LoadConfig(opts ...nexus.LoaderOption) (*Config, error) {
	c := &Config{}
	opts = append([]nexus.LoaderOption{nexus.WithDefaults(DefaultConfig())}, opts...)
	if err := nexus.NewLoader(opts...).Load(c); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}
