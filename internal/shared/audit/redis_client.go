package audit

import (
	"crypto/tls"
	"fmt"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/redis/go-redis/v9"
)

// RedisConfig holds the connection settings for the audit stream.
type RedisConfig struct {
	Host            string        `env:"AUDIT_REDIS_HOST" envDefault:"localhost"`
	Port            string        `env:"AUDIT_REDIS_PORT" envDefault:"6379"`
	Password        string        `env:"AUDIT_REDIS_PASSWORD"`
	Database        int           `env:"AUDIT_REDIS_DB" envDefault:"0"`
	MaxRetries      int           `env:"AUDIT_REDIS_MAX_RETRIES" envDefault:"3"`
	PoolSize        int           `env:"AUDIT_REDIS_POOL_SIZE" envDefault:"10"`
	MinIdleConns    int           `env:"AUDIT_REDIS_MIN_IDLE_CONNS" envDefault:"2"`
	EnableTLS       bool          `env:"AUDIT_REDIS_TLS" envDefault:"false"`
	ConnMaxIdleTime time.Duration `env:"AUDIT_REDIS_CONN_MAX_IDLE_TIME" envDefault:"30m"`
	ConnMaxLifetime time.Duration `env:"AUDIT_REDIS_CONN_MAX_LIFETIME" envDefault:"1h"`
	StreamMaxLength int64         `env:"AUDIT_STREAM_MAX_LENGTH" envDefault:"10000"`
}

// GetAddr returns the host:port address for the Redis connection.
func (c *RedisConfig) GetAddr() string {
	return c.Host + ":" + c.Port
}

// LoadRedisConfig loads the audit Redis configuration from environment variables.
func LoadRedisConfig() (*RedisConfig, error) {
	cfg := &RedisConfig{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse audit redis config: %w", err)
	}
	return cfg, nil
}

// NewRedisClient creates a Redis client from the given configuration.
func NewRedisClient(cfg *RedisConfig) *redis.Client {
	options := &redis.Options{
		Addr:         cfg.GetAddr(),
		Password:     cfg.Password,
		DB:           cfg.Database,
		MaxRetries:   cfg.MaxRetries,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,

		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolTimeout:  4 * time.Second,

		ConnMaxIdleTime: cfg.ConnMaxIdleTime,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
	}

	if cfg.EnableTLS {
		options.TLSConfig = &tls.Config{
			ServerName: cfg.Host,
		}
	}

	return redis.NewClient(options)
}
