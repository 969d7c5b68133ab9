package config_test

import (
	"strings"
	"testing"

	"github.com/example/bulksend/internal/config"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.App.Env != "development" {
		t.Errorf("App.Env: got %q, want development", cfg.App.Env)
	}
	if cfg.App.LogLevel != "info" {
		t.Errorf("App.LogLevel: got %q, want info", cfg.App.LogLevel)
	}
	if cfg.SMTP.Port != 587 {
		t.Errorf("SMTP.Port: got %d, want 587", cfg.SMTP.Port)
	}
	if cfg.SMTP.NoTLS {
		t.Errorf("SMTP.NoTLS: got true, want false")
	}
}

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("BULKSEND_ENV", "production")
	t.Setenv("BULKSEND_LOG_LEVEL", "debug")
	t.Setenv("BULKSEND_SMTP_HOST", "smtp.example.com")
	t.Setenv("BULKSEND_SMTP_PORT", "465")
	t.Setenv("BULKSEND_SMTP_USER", "mailer")
	t.Setenv("BULKSEND_SMTP_PASSWORD", "s3cret")
	t.Setenv("BULKSEND_SMTP_FROM", "noreply@example.com")
	t.Setenv("BULKSEND_SMTP_FROM_NAME", "Survey Hub")
	t.Setenv("BULKSEND_SMTP_NO_TLS", "true")
	t.Setenv("BULKSEND_GATEWAY_URL", "https://sms.example.com/send")
	t.Setenv("BULKSEND_GATEWAY_TOKEN", "Bearer abc123")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.App.Env != "production" || cfg.App.LogLevel != "debug" {
		t.Errorf("unexpected app config %+v", cfg.App)
	}
	if cfg.SMTP.Host != "smtp.example.com" || cfg.SMTP.Port != 465 {
		t.Errorf("unexpected smtp endpoint %+v", cfg.SMTP)
	}
	if cfg.SMTP.User != "mailer" || cfg.SMTP.Pass != "s3cret" {
		t.Errorf("unexpected smtp credentials %+v", cfg.SMTP)
	}
	if cfg.SMTP.From != "noreply@example.com" || cfg.SMTP.FromName != "Survey Hub" {
		t.Errorf("unexpected smtp sender %+v", cfg.SMTP)
	}
	if !cfg.SMTP.NoTLS {
		t.Errorf("SMTP.NoTLS: got false, want true")
	}
	if cfg.Gateway.URL != "https://sms.example.com/send" || cfg.Gateway.Token != "Bearer abc123" {
		t.Errorf("unexpected gateway config %+v", cfg.Gateway)
	}
}

func TestLoadBlankValuesFallBackToDefaults(t *testing.T) {
	t.Setenv("BULKSEND_SMTP_PORT", "  ")
	t.Setenv("BULKSEND_LOG_LEVEL", "")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.SMTP.Port != 587 {
		t.Errorf("SMTP.Port: got %d, want default 587", cfg.SMTP.Port)
	}
	if cfg.App.LogLevel != "info" {
		t.Errorf("App.LogLevel: got %q, want default info", cfg.App.LogLevel)
	}
}

func TestLoadCollectsParseErrors(t *testing.T) {
	t.Setenv("BULKSEND_SMTP_PORT", "not-a-port")
	t.Setenv("BULKSEND_SMTP_NO_TLS", "maybe")

	_, err := config.Load()
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !strings.Contains(err.Error(), "BULKSEND_SMTP_PORT must be a valid integer") {
		t.Errorf("missing port error in %q", err)
	}
	if !strings.Contains(err.Error(), "BULKSEND_SMTP_NO_TLS must be a valid boolean") {
		t.Errorf("missing bool error in %q", err)
	}
}
