package config

import (
	"os"
	"testing"

	"github.com/spf13/viper"
)

func TestLoadConfig_Defaults(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	for _, key := range []string{
		"PORT", "SERVER_PORT", "RECONCILIATION_SCHEDULE", "TIMEZONE", "WALLET_MAX_RETRIES",
		"MEMBER_ACTION_RATE_LIMIT_PER_MINUTE", "EVENTS_EXCHANGE", "DATABASE_URL", "TREASURY_DATABASE_URL",
	} {
		unsetEnvWithCleanup(t, key)
	}

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.ServerPort != "8080" {
		t.Fatalf("expected default port 8080, got %q", cfg.ServerPort)
	}
	if cfg.ReconciliationSchedule != "0 0 * * *" {
		t.Fatalf("expected daily midnight schedule, got %q", cfg.ReconciliationSchedule)
	}
	if cfg.Timezone != "Asia/Kolkata" || cfg.Location().String() != "Asia/Kolkata" {
		t.Fatalf("expected Asia/Kolkata, got %q", cfg.Timezone)
	}
	if cfg.WalletMaxRetries != 5 {
		t.Fatalf("expected 5 wallet retries, got %d", cfg.WalletMaxRetries)
	}
	if cfg.MemberActionRateLimitPerMinute != 10 {
		t.Fatalf("expected member action limit 10, got %d", cfg.MemberActionRateLimitPerMinute)
	}
	if cfg.EventsExchange != "treasury.events" {
		t.Fatalf("expected treasury.events exchange, got %q", cfg.EventsExchange)
	}
	if cfg.DatabaseURL != "" {
		t.Fatalf("expected empty database url, got %q", cfg.DatabaseURL)
	}
}

func TestLoadConfig_PortOverridesServerPort(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	setEnvWithCleanup(t, "SERVER_PORT", "9000")
	setEnvWithCleanup(t, "PORT", "7000")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.ServerPort != "7000" {
		t.Fatalf("expected PORT to win, got %q", cfg.ServerPort)
	}
}

func TestLoadConfig_InvalidValuesFallBack(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	setEnvWithCleanup(t, "RECONCILIATION_SCHEDULE", "every tuesday")
	setEnvWithCleanup(t, "TIMEZONE", "Mars/Olympus")
	setEnvWithCleanup(t, "WALLET_MAX_RETRIES", "0")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.ReconciliationSchedule != "0 0 * * *" {
		t.Fatalf("expected fallback schedule, got %q", cfg.ReconciliationSchedule)
	}
	if cfg.Timezone != "Asia/Kolkata" {
		t.Fatalf("expected fallback timezone, got %q", cfg.Timezone)
	}
	if cfg.WalletMaxRetries != 5 {
		t.Fatalf("expected fallback retries, got %d", cfg.WalletMaxRetries)
	}
}

func TestLoadConfig_InternalAPIKeyAlias(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	unsetEnvWithCleanup(t, "INTERNAL_API_KEY")
	setEnvWithCleanup(t, "TREASURY_SERVICE_INTERNAL_API_KEY", "alias-only-key")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.InternalAPIKey != "alias-only-key" {
		t.Fatalf("expected InternalAPIKey from alias env var, got %q", cfg.InternalAPIKey)
	}
}

func TestConfig_AllowedOrigins(t *testing.T) {
	cfg := Config{CORSAllowedOrigins: " https://a.example.com, ,https://b.example.com "}
	got := cfg.AllowedOrigins()
	if len(got) != 2 || got[0] != "https://a.example.com" || got[1] != "https://b.example.com" {
		t.Fatalf("unexpected origins %v", got)
	}
	if got := (Config{}).AllowedOrigins(); len(got) != 0 {
		t.Fatalf("expected no origins by default, got %v", got)
	}
}

func setEnvWithCleanup(t *testing.T, key string, value string) {
	t.Helper()
	prev, hadPrev := os.LookupEnv(key)
	if err := os.Setenv(key, value); err != nil {
		t.Fatalf("failed to set env %s: %v", key, err)
	}
	t.Cleanup(func() {
		if hadPrev {
			_ = os.Setenv(key, prev)
			return
		}
		_ = os.Unsetenv(key)
	})
}

func unsetEnvWithCleanup(t *testing.T, key string) {
	t.Helper()
	prev, hadPrev := os.LookupEnv(key)
	if err := os.Unsetenv(key); err != nil {
		t.Fatalf("failed to unset env %s: %v", key, err)
	}
	t.Cleanup(func() {
		if hadPrev {
			_ = os.Setenv(key, prev)
		}
	})
}
