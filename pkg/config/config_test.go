package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Address != ":8080" {
		t.Errorf("expected default address :8080, got %s", cfg.Address)
	}
	if cfg.Database.Type != "sqlite" {
		t.Errorf("expected sqlite default, got %s", cfg.Database.Type)
	}
	if cfg.Relay.CaptureRetention != 24*time.Hour {
		t.Errorf("expected 24h default capture retention, got %v", cfg.Relay.CaptureRetention)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestLoadConfigFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
address: ":9090"
webui:
  username: operator
  password: secret
relay:
  sweep_interval: 30s
  request_max_age: 5m
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Address != ":9090" {
		t.Errorf("expected :9090, got %s", cfg.Address)
	}
	if cfg.WebUI.Username != "operator" {
		t.Errorf("expected operator, got %s", cfg.WebUI.Username)
	}
	if cfg.Relay.SweepInterval != 30*time.Second {
		t.Errorf("expected 30s sweep interval, got %v", cfg.Relay.SweepInterval)
	}
	if cfg.Relay.RequestMaxAge != 5*time.Minute {
		t.Errorf("expected 5m request max age, got %v", cfg.Relay.RequestMaxAge)
	}
	// Defaults survive partial files
	if cfg.Relay.SendQueueSize != 256 {
		t.Errorf("expected default send queue size, got %d", cfg.Relay.SendQueueSize)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig("/nonexistent/config.yaml")
	if err == nil {
		t.Error("expected error for missing config file")
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*ServerConfig)
	}{
		{"empty address", func(c *ServerConfig) { c.Address = "" }},
		{"empty username", func(c *ServerConfig) { c.WebUI.Username = "" }},
		{"empty password", func(c *ServerConfig) { c.WebUI.Password = "" }},
		{"unknown db type", func(c *ServerConfig) { c.Database.Type = "mongodb" }},
		{"mysql without dsn", func(c *ServerConfig) { c.Database.Type = "mysql"; c.Database.DSN = "" }},
		{"bad log level", func(c *ServerConfig) { c.Logging.Level = "verbose" }},
		{"zero sweep interval", func(c *ServerConfig) { c.Relay.SweepInterval = 0 }},
		{"zero max age", func(c *ServerConfig) { c.Relay.RequestMaxAge = 0 }},
		{"zero queue size", func(c *ServerConfig) { c.Relay.SendQueueSize = 0 }},
		{"negative retention", func(c *ServerConfig) { c.Relay.CaptureRetention = -time.Hour }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Errorf("expected validation error for %s", tt.name)
			}
		})
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("RELAY_ADDR", ":7070")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("RELAY_REQUEST_MAX_AGE", "2m")
	t.Setenv("RELAY_CAPTURE_RETENTION", "48h")

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Address != ":7070" {
		t.Errorf("env override not applied, got %s", cfg.Address)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("env override not applied, got %s", cfg.Logging.Level)
	}
	if cfg.Relay.RequestMaxAge != 2*time.Minute {
		t.Errorf("env override not applied, got %v", cfg.Relay.RequestMaxAge)
	}
	if cfg.Relay.CaptureRetention != 48*time.Hour {
		t.Errorf("env override not applied, got %v", cfg.Relay.CaptureRetention)
	}
}
