package auth

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v6"
)

// Config holds the admin token settings.
type Config struct {
	JWTSecretKey string        `env:"ADMIN_JWT_SECRET"`
	JWTIssuer    string        `env:"ADMIN_JWT_ISSUER" envDefault:"refguard"`
	TokenTTL     time.Duration `env:"ADMIN_TOKEN_TTL" envDefault:"1h"`
}

// LoadConfig loads the admin token configuration from environment variables.
func LoadConfig() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse auth config: %w", err)
	}
	return cfg, nil
}
