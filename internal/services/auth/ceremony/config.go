package ceremony

import (
	"time"

	"github.com/caarlos0/env/v11"
)

// Variant selects how an authentication ceremony resolves the account.
type Variant string

const (
	// VariantTargeted restricts the allow-list to a known user's credentials.
	VariantTargeted Variant = "targeted"
	// VariantDiscoverable lets the authenticator surface the credential and
	// the server resolve ownership from the response alone.
	VariantDiscoverable Variant = "discoverable"
)

// Config controls WebAuthn relying party settings.
type Config struct {
	RPDisplayName string        `env:"HAMRAH_AUTH_WEBAUTHN_RP_DISPLAY_NAME" envDefault:"Hamrah"`
	RPID          string        `env:"HAMRAH_AUTH_WEBAUTHN_RP_ID"           envDefault:"localhost"`
	RPOrigins     []string      `env:"HAMRAH_AUTH_WEBAUTHN_RP_ORIGINS"      envSeparator:","`
	ChallengeTTL  time.Duration `env:"HAMRAH_AUTH_WEBAUTHN_CHALLENGE_TTL"   envDefault:"5m"`

	// AllowLegacyChallenge accepts authentication responses without a stored
	// challenge, trusting the client-signed challenge value alone. Weaker
	// than the challenge-store path: no expiry, no single-use guarantee.
	// Exists only for old clients that predate challenge ids.
	AllowLegacyChallenge bool `env:"HAMRAH_AUTH_WEBAUTHN_ALLOW_LEGACY_CHALLENGE" envDefault:"false"`
}

// LoadConfigFromEnv returns ceremony configuration with defaults.
func LoadConfigFromEnv() Config {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{
			RPDisplayName: "Hamrah",
			RPID:          "localhost",
			RPOrigins:     []string{"http://localhost:8094"},
			ChallengeTTL:  5 * time.Minute,
		}
	}
	if len(cfg.RPOrigins) == 0 {
		cfg.RPOrigins = []string{"http://localhost:8094"}
	}
	return cfg
}
