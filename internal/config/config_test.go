package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("DB_DRIVER", "")
	t.Setenv("FOLLOW_INTERVAL", "")

	cfg := Load()
	if cfg.App.Port != "8080" {
		t.Fatalf("expected port 8080, got %q", cfg.App.Port)
	}
	if cfg.DB.Driver != "postgres" || cfg.DB.Port != "5432" {
		t.Fatalf("unexpected db defaults: %s:%s", cfg.DB.Driver, cfg.DB.Port)
	}
	if cfg.Follow.Interval != 10*time.Second {
		t.Fatalf("expected 10s follow interval, got %v", cfg.Follow.Interval)
	}
	if cfg.Device.KeyHeader != "X-API-Key" {
		t.Fatalf("unexpected key header %q", cfg.Device.KeyHeader)
	}
}

func TestLoadMySQLDefaultPort(t *testing.T) {
	t.Setenv("DB_DRIVER", "MySQL")
	t.Setenv("DB_PORT", "")

	cfg := Load()
	if cfg.DB.Driver != "mysql" || cfg.DB.Port != "3306" {
		t.Fatalf("expected mysql:3306, got %s:%s", cfg.DB.Driver, cfg.DB.Port)
	}
}

func TestLoadIgnoresMalformedValues(t *testing.T) {
	t.Setenv("RATE_LIMIT_RPS", "fast")
	t.Setenv("CACHE_TTL", "soon")
	t.Setenv("DEBUG", "maybe")

	cfg := Load()
	if cfg.RateLimit.RequestsPerSecond != 5 {
		t.Fatalf("expected default rps, got %d", cfg.RateLimit.RequestsPerSecond)
	}
	if cfg.Cache.TTL != 5*time.Second {
		t.Fatalf("expected default ttl, got %v", cfg.Cache.TTL)
	}
	if cfg.App.Debug {
		t.Fatal("expected debug to stay false")
	}
}

func TestValidate(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	t.Setenv("DEVICE_API_KEY", "")
	t.Setenv("DB_DRIVER", "sqlserver")

	err := Load().Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"JWT_SECRET", "DEVICE_API_KEY", "DB_DRIVER"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("expected %q in %q", want, err.Error())
		}
	}

	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("DEVICE_API_KEY", "esp32-key")
	t.Setenv("DB_DRIVER", "postgres")
	if err := Load().Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
