package ceremony

import (
	"testing"
	"time"
)

func TestLoadConfigFromEnvDefaults(t *testing.T) {
	cfg := LoadConfigFromEnv()
	if cfg.RPID != "localhost" {
		t.Fatalf("RPID = %q, want %q", cfg.RPID, "localhost")
	}
	if cfg.RPDisplayName != "Hamrah" {
		t.Fatalf("RPDisplayName = %q, want %q", cfg.RPDisplayName, "Hamrah")
	}
	if len(cfg.RPOrigins) != 1 || cfg.RPOrigins[0] != "http://localhost:8094" {
		t.Fatalf("RPOrigins = %v, want [%q]", cfg.RPOrigins, "http://localhost:8094")
	}
	if cfg.ChallengeTTL != 5*time.Minute {
		t.Fatalf("ChallengeTTL = %v, want %v", cfg.ChallengeTTL, 5*time.Minute)
	}
	if cfg.AllowLegacyChallenge {
		t.Fatal("AllowLegacyChallenge should default to false")
	}
}

func TestLoadConfigFromEnvCustomRPID(t *testing.T) {
	t.Setenv("HAMRAH_AUTH_WEBAUTHN_RP_ID", "example.com")
	cfg := LoadConfigFromEnv()
	if cfg.RPID != "example.com" {
		t.Fatalf("RPID = %q, want %q", cfg.RPID, "example.com")
	}
}

func TestLoadConfigFromEnvCustomOrigins(t *testing.T) {
	t.Setenv("HAMRAH_AUTH_WEBAUTHN_RP_ORIGINS", "https://a.com,https://b.com")
	cfg := LoadConfigFromEnv()
	if len(cfg.RPOrigins) != 2 {
		t.Fatalf("RPOrigins len = %d, want 2", len(cfg.RPOrigins))
	}
	if cfg.RPOrigins[0] != "https://a.com" || cfg.RPOrigins[1] != "https://b.com" {
		t.Fatalf("RPOrigins = %v", cfg.RPOrigins)
	}
}

func TestLoadConfigFromEnvChallengeTTL(t *testing.T) {
	t.Setenv("HAMRAH_AUTH_WEBAUTHN_CHALLENGE_TTL", "10m")
	cfg := LoadConfigFromEnv()
	if cfg.ChallengeTTL != 10*time.Minute {
		t.Fatalf("ChallengeTTL = %v, want %v", cfg.ChallengeTTL, 10*time.Minute)
	}
}

func TestLoadConfigFromEnvLegacyChallengeOptIn(t *testing.T) {
	t.Setenv("HAMRAH_AUTH_WEBAUTHN_ALLOW_LEGACY_CHALLENGE", "true")
	cfg := LoadConfigFromEnv()
	if !cfg.AllowLegacyChallenge {
		t.Fatal("AllowLegacyChallenge should honor the env override")
	}
}
