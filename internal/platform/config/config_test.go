package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":8080" {
		t.Fatalf("expected default addr, got %q", cfg.Addr)
	}
	if cfg.StuckThreshold != 24*time.Hour {
		t.Fatalf("expected 24h stuck threshold, got %s", cfg.StuckThreshold)
	}
	if cfg.DatabaseDriver != DriverPostgres {
		t.Fatalf("expected postgres driver, got %q", cfg.DatabaseDriver)
	}
	if cfg.IdempotencyTTL != 24*time.Hour || cfg.NotificationRetention != 720*time.Hour || cfg.AuditRetention != 0 {
		t.Fatalf("unexpected retention defaults: %s %s %s", cfg.IdempotencyTTL, cfg.NotificationRetention, cfg.AuditRetention)
	}
}

func TestLoadPlainAndPrefixedEnv(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://plain")
	t.Setenv("HRFLOW_APPROVAL_STUCK_THRESHOLD", "2h")
	t.Setenv("HRFLOW_HTTP_CORS_ORIGINS", "http://a.example, http://b.example")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DatabaseURL != "postgres://plain" {
		t.Fatalf("expected plain DATABASE_URL to bind, got %q", cfg.DatabaseURL)
	}
	if cfg.StuckThreshold != 2*time.Hour {
		t.Fatalf("expected prefixed override, got %s", cfg.StuckThreshold)
	}
	if len(cfg.CORSOrigins) != 2 || cfg.CORSOrigins[1] != "http://b.example" {
		t.Fatalf("unexpected cors origins: %v", cfg.CORSOrigins)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hrflow.yaml")
	content := "database:\n  driver: sqlite\n  sqlite_path: /tmp/x.db\napproval:\n  rules_file: rules.yaml\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DatabaseDriver != DriverSQLite || cfg.SQLitePath != "/tmp/x.db" || cfg.RulesFile != "rules.yaml" {
		t.Fatalf("file values not applied: %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected valid sqlite config, got %v", err)
	}
}

func TestValidateProduction(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	cfg.DatabaseURL = "postgres://x"
	cfg.Environment = "production"
	cfg.JWTSecret = "change-me"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected production validation error")
	}
	cfg.JWTSecret = "a-long-random-secret"
	cfg.DataEncryptionKey = "k"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}
}

func TestValidateUnknownDriver(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	cfg.DatabaseDriver = "mysql"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected unsupported driver error")
	}
}

func TestValidateNegativeRetention(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	cfg.DatabaseURL = "postgres://x"
	cfg.NotificationRetention = -time.Hour
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected negative retention to be rejected")
	}
}
