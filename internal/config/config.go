package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config captures the environment-sourced configuration for a bulksend run.
// Everything here can be overridden by command line flags; the environment is
// primarily for credentials, which should never appear on a command line.
type Config struct {
	App     AppConfig
	SMTP    SMTPConfig
	Gateway GatewayConfig
}

// AppConfig contains generic application level settings.
type AppConfig struct {
	Env      string
	LogLevel string
}

// SMTPConfig stores the mail account used for email delivery.
type SMTPConfig struct {
	Host     string
	Port     int
	User     string
	Pass     string
	From     string
	FromName string
	NoTLS    bool
}

// GatewayConfig stores the SMS gateway endpoint and its auth token.
type GatewayConfig struct {
	URL   string
	Token string
}

// Load reads environment variables (including a .env file when present),
// applies defaults and returns a populated Config. Values left empty here may
// still be supplied by flags, so nothing is required at this stage.
func Load() (*Config, error) {
	_ = godotenv.Load()

	ldr := &envLoader{}

	cfg := &Config{}
	cfg.App.Env = ldr.getString("BULKSEND_ENV", "development", false)
	cfg.App.LogLevel = ldr.getString("BULKSEND_LOG_LEVEL", "info", false)

	cfg.SMTP.Host = ldr.getString("BULKSEND_SMTP_HOST", "", false)
	cfg.SMTP.Port = ldr.getInt("BULKSEND_SMTP_PORT", 587, false)
	cfg.SMTP.User = ldr.getString("BULKSEND_SMTP_USER", "", false)
	cfg.SMTP.Pass = ldr.getString("BULKSEND_SMTP_PASSWORD", "", false)
	cfg.SMTP.From = ldr.getString("BULKSEND_SMTP_FROM", "", false)
	cfg.SMTP.FromName = ldr.getString("BULKSEND_SMTP_FROM_NAME", "", false)
	cfg.SMTP.NoTLS = ldr.getBool("BULKSEND_SMTP_NO_TLS", false, false)

	cfg.Gateway.URL = ldr.getString("BULKSEND_GATEWAY_URL", "", false)
	cfg.Gateway.Token = ldr.getString("BULKSEND_GATEWAY_TOKEN", "", false)

	if err := ldr.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

type envLoader struct {
	errs []string
}

func (l *envLoader) validate() error {
	if len(l.errs) == 0 {
		return nil
	}
	return fmt.Errorf("config validation failed: %s", strings.Join(l.errs, "; "))
}

func (l *envLoader) getString(key, def string, required bool) string {
	if val, ok := os.LookupEnv(key); ok {
		val = strings.TrimSpace(val)
		if val == "" {
			if required {
				l.addError(fmt.Sprintf("%s is required", key))
			}
			return def
		}
		return val
	}
	if required {
		l.addError(fmt.Sprintf("%s is required", key))
	}
	return def
}

func (l *envLoader) getInt(key string, def int, required bool) int {
	if val, ok := os.LookupEnv(key); ok {
		val = strings.TrimSpace(val)
		if val == "" {
			if required {
				l.addError(fmt.Sprintf("%s is required", key))
			}
			return def
		}
		i, err := strconv.Atoi(val)
		if err != nil {
			l.addError(fmt.Sprintf("%s must be a valid integer", key))
			return def
		}
		return i
	}
	if required {
		l.addError(fmt.Sprintf("%s is required", key))
	}
	return def
}

func (l *envLoader) getBool(key string, def bool, required bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		val = strings.TrimSpace(val)
		if val == "" {
			if required {
				l.addError(fmt.Sprintf("%s is required", key))
			}
			return def
		}
		parsed, err := strconv.ParseBool(val)
		if err != nil {
			l.addError(fmt.Sprintf("%s must be a valid boolean", key))
			return def
		}
		return parsed
	}
	if required {
		l.addError(fmt.Sprintf("%s is required", key))
	}
	return def
}

func (l *envLoader) addError(err string) {
	l.errs = append(l.errs, err)
}
