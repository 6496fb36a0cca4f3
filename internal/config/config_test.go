package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

// clearEnv unsets every key NewConfig reads and restores them after the test
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"CONFIG_FILE", "PORT", "STORAGE", "DB_CONN", "LOG_LEVEL", "JWT_SECRET", "JWT_TTL",
		"ENCRYPTION_KEY", "MAX_TRANSFER_AMOUNT", "MAX_BALANCE", "REDIS_ADDR", "REDIS_PASSWORD",
		"REDIS_DB", "SMTP_HOST", "SMTP_PORT", "SMTP_USERNAME", "SMTP_PASSWORD", "SENDER_EMAIL",
		"EXPIRY_SWEEP_CRON", "ADMIN_USERNAME", "ADMIN_PASSWORD", "ADMIN_EMAIL",
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func TestNewConfigDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("STORAGE", StorageMemory)

	cfg, err := NewConfig()
	if err != nil {
		t.Fatalf("NewConfig: %v", err)
	}
	if cfg.Port != "8080" || cfg.JWTTTL != 24*time.Hour {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if !cfg.MaxTransferAmount.Equal(decimal.NewFromInt(100000000)) || !cfg.MaxBalance.Equal(decimal.NewFromInt(1000000000)) {
		t.Fatalf("ceilings=%s/%s", cfg.MaxTransferAmount, cfg.MaxBalance)
	}
}

func TestNewConfigFileAndEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte(`
port: "9090"
storage: memory
encryption:
  secret-key: file-secret
validation:
  max-transfer-amount: "500.50"
  max-balance: "10000"
redis:
  addr: localhost:6379
expiry_sweep_cron: "0 3 * * *"
`)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}
	clearEnv(t)
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("PORT", "7070")

	cfg, err := NewConfig()
	if err != nil {
		t.Fatalf("NewConfig: %v", err)
	}
	if cfg.Port != "7070" {
		t.Fatalf("Port=%s, env should win", cfg.Port)
	}
	if cfg.EncryptionKey != "file-secret" || cfg.RedisAddr != "localhost:6379" || cfg.ExpirySweepCron != "0 3 * * *" {
		t.Fatalf("file values not applied: %+v", cfg)
	}
	if !cfg.MaxTransferAmount.Equal(decimal.RequireFromString("500.50")) {
		t.Fatalf("MaxTransferAmount=%s", cfg.MaxTransferAmount)
	}
}

func TestNewConfigValidation(t *testing.T) {
	cases := map[string][2]string{
		"bad storage":  {"STORAGE", "mongo"},
		"empty key":    {"ENCRYPTION_KEY", ""},
		"empty jwt":    {"JWT_SECRET", ""},
		"bad ttl":      {"JWT_TTL", "forever"},
		"bad amount":   {"MAX_TRANSFER_AMOUNT", "lots"},
		"zero balance": {"MAX_BALANCE", "0"},
		"bad redis db": {"REDIS_DB", "first"},
	}
	for name, kv := range cases {
		t.Run(name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv("STORAGE", StorageMemory)
			t.Setenv(kv[0], kv[1])
			if _, err := NewConfig(); err == nil {
				t.Fatalf("expected error for %s=%q", kv[0], kv[1])
			}
		})
	}
}

func TestNewConfigMissingFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))
	if _, err := NewConfig(); err == nil {
		t.Fatal("expected error for missing config file")
	}
}
