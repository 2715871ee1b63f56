package config

import (
	"log/slog"
	"os"
	"testing"
	"time"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestLoad_WithRequiredVars(t *testing.T) {
	t.Setenv("JWT_SECRET", testSecret)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if cfg.JWTSecret != testSecret {
		t.Errorf("expected JWTSecret to be set, got %q", cfg.JWTSecret)
	}
	if _, ok := os.LookupEnv("JWT_SECRET"); ok {
		t.Error("expected JWT_SECRET to be removed from the environment after loading")
	}
}

func TestLoad_MissingSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	os.Unsetenv("JWT_SECRET")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for missing JWT_SECRET, got nil")
	}
}

func TestConfig_Defaults(t *testing.T) {
	t.Setenv("JWT_SECRET", testSecret)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if cfg.AppEnv != "development" {
		t.Errorf("expected default AppEnv 'development', got %s", cfg.AppEnv)
	}
	if cfg.HTTPAddr != ":8080" {
		t.Errorf("expected default HTTPAddr ':8080', got %s", cfg.HTTPAddr)
	}
	if cfg.TokenTTL != 30*time.Minute {
		t.Errorf("expected default TokenTTL 30m, got %s", cfg.TokenTTL)
	}
	if cfg.BcryptCost != 10 {
		t.Errorf("expected default BcryptCost 10, got %d", cfg.BcryptCost)
	}
	if cfg.CacheEnabled() {
		t.Error("expected cache to be disabled without REDIS_URL")
	}
	if cfg.TelemetryEnabled() {
		t.Error("expected telemetry to be disabled without OTEL_EXPORTER_OTLP_ENDPOINT")
	}
	if !cfg.IsDevelopment() {
		t.Error("expected IsDevelopment to be true by default")
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("JWT_SECRET", testSecret)
	t.Setenv("TOKEN_TTL", "5m")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("APP_ENV", "production")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if cfg.TokenTTL != 5*time.Minute {
		t.Errorf("expected TokenTTL 5m, got %s", cfg.TokenTTL)
	}
	if !cfg.CacheEnabled() {
		t.Error("expected cache to be enabled with REDIS_URL set")
	}
	if cfg.IsDevelopment() {
		t.Error("expected IsDevelopment to be false in production")
	}
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			JWTSecret:          testSecret,
			TokenTTL:           time.Minute,
			BcryptCost:         10,
			DatabaseURL:        "file:test.db",
			DBMaxOpenConns:     1,
			MaxRequestBodySize: 1024,
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "valid", mutate: func(c *Config) {}, wantErr: false},
		{name: "short secret", mutate: func(c *Config) { c.JWTSecret = "short" }, wantErr: true},
		{name: "zero ttl", mutate: func(c *Config) { c.TokenTTL = 0 }, wantErr: true},
		{name: "bcrypt cost too low", mutate: func(c *Config) { c.BcryptCost = 2 }, wantErr: true},
		{name: "bcrypt cost too high", mutate: func(c *Config) { c.BcryptCost = 40 }, wantErr: true},
		{name: "empty database url", mutate: func(c *Config) { c.DatabaseURL = "" }, wantErr: true},
		{name: "no connections", mutate: func(c *Config) { c.DBMaxOpenConns = 0 }, wantErr: true},
		{name: "no body limit", mutate: func(c *Config) { c.MaxRequestBodySize = 0 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSlogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"bogus", slog.LevelInfo},
	}

	for _, tt := range tests {
		cfg := Config{LogLevel: tt.in}
		if got := cfg.SlogLevel(); got != tt.want {
			t.Errorf("SlogLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
