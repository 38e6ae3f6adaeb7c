package oauthflow

import (
	"time"

	"github.com/caarlos0/env/v11"
)

// Config controls provider credentials and flow lifetimes.
type Config struct {
	FlowTTL time.Duration `env:"HAMRAH_AUTH_OAUTH_FLOW_TTL" envDefault:"10m"`

	GoogleClientID     string `env:"HAMRAH_AUTH_GOOGLE_CLIENT_ID"`
	GoogleClientSecret string `env:"HAMRAH_AUTH_GOOGLE_CLIENT_SECRET"`

	AppleClientID     string `env:"HAMRAH_AUTH_APPLE_CLIENT_ID"`
	AppleClientSecret string `env:"HAMRAH_AUTH_APPLE_CLIENT_SECRET"`
}

// LoadConfigFromEnv returns OAuth flow configuration with defaults.
func LoadConfigFromEnv() Config {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{FlowTTL: 10 * time.Minute}
	}
	if cfg.FlowTTL <= 0 {
		cfg.FlowTTL = 10 * time.Minute
	}
	return cfg
}
