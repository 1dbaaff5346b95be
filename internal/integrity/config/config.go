package config

import (
	"errors"
	"time"

	"github.com/caarlos0/env/v6"
)

// IntegrityConfig holds configuration for the integrity validator.
type IntegrityConfig struct {
	// ProbeTimeout bounds one whole validation call. On expiry all in-flight
	// probes are cancelled and the call fails closed.
	ProbeTimeout time.Duration `env:"INTEGRITY_PROBE_TIMEOUT" envDefault:"5s"`

	// CheckNewIDCollision additionally probes the new id during identity
	// change validation, denying when the new id is already referenced.
	CheckNewIDCollision bool `env:"INTEGRITY_CHECK_NEW_ID_COLLISION" envDefault:"false"`
}

// LoadConfig loads configuration from environment variables and applies defaults.
func LoadConfig() (*IntegrityConfig, error) {
	cfg := &IntegrityConfig{}
	if err := env.Parse(cfg); err != nil {
		return nil, errors.New("failed to load integrity configuration from environment: " + err.Error())
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = 5 * time.Second
	}
	return cfg, nil
}

// DefaultIntegrityConfig returns an IntegrityConfig with default values.
func DefaultIntegrityConfig() *IntegrityConfig {
	return &IntegrityConfig{
		ProbeTimeout:        5 * time.Second,
		CheckNewIDCollision: false,
	}
}
