package session

import (
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Platform identifies what kind of client a credential was issued to.
const (
	PlatformWeb     = "web"
	PlatformIOS     = "ios"
	PlatformAndroid = "android"
)

// NormalizePlatform maps unknown or empty platform hints to web.
func NormalizePlatform(platform string) string {
	switch strings.ToLower(strings.TrimSpace(platform)) {
	case PlatformIOS:
		return PlatformIOS
	case PlatformAndroid:
		return PlatformAndroid
	default:
		return PlatformWeb
	}
}

// Config controls credential lifetimes.
type Config struct {
	SessionTTL      time.Duration `env:"HAMRAH_AUTH_SESSION_TTL"       envDefault:"720h"`
	AccessTokenTTL  time.Duration `env:"HAMRAH_AUTH_ACCESS_TOKEN_TTL"  envDefault:"1h"`
	RefreshTokenTTL time.Duration `env:"HAMRAH_AUTH_REFRESH_TOKEN_TTL" envDefault:"720h"`

	// ReuseGracePeriod is how long after rotation a replayed refresh token
	// is written off as a lost race instead of theft. Reuse past the window
	// revokes every pair the user holds.
	ReuseGracePeriod time.Duration `env:"HAMRAH_AUTH_REFRESH_REUSE_GRACE" envDefault:"30s"`
}

// LoadConfigFromEnv returns session configuration with defaults.
func LoadConfigFromEnv() Config {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return defaultConfig()
	}
	if cfg.SessionTTL <= 0 || cfg.AccessTokenTTL <= 0 || cfg.RefreshTokenTTL <= 0 {
		return defaultConfig()
	}
	return cfg
}

func defaultConfig() Config {
	return Config{
		SessionTTL:       720 * time.Hour,
		AccessTokenTTL:   time.Hour,
		RefreshTokenTTL:  720 * time.Hour,
		ReuseGracePeriod: 30 * time.Second,
	}
}
