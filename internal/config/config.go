// Package config layers defaults, the TOML file and the environment into a models.Config
package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/cockroachdb/errors"
	"github.com/ethanolivertroy/riskflow/internal/models"
	"github.com/joho/godotenv"
)

// DefaultEnvFile is read when present and no other env file was named
const DefaultEnvFile = ".env"

// Environment variables. Secrets are only ever read from here.
const (
	EnvSMTPHost      = "RISKFLOW_SMTP_HOST"
	EnvSMTPPort      = "RISKFLOW_SMTP_PORT"
	EnvSMTPUser      = "RISKFLOW_SMTP_USER"
	EnvSMTPPassword  = "RISKFLOW_SMTP_PASSWORD"
	EnvSMTPStartTLS  = "RISKFLOW_SMTP_STARTTLS"
	EnvAlertSender   = "RISKFLOW_ALERT_SENDER"
	EnvAlertEmail    = "RISKFLOW_ALERT_EMAIL"
	EnvOTXKey        = "OTX_API_KEY"
	EnvVTKey         = "VT_API_KEY"
	EnvRedisAddr     = "RISKFLOW_REDIS_ADDR"
	EnvRedisPassword = "RISKFLOW_REDIS_PASSWORD"
	EnvNATSURL       = "RISKFLOW_NATS_URL"
)

// Load returns the defaults overlaid with the TOML file at path (when set) and
// the environment. envFile is loaded into the environment first without
// overriding variables that are already set.
func Load(path, envFile string) (*models.Config, error) {
	cfg := models.DefaultConfig()

	// Step 1: TOML file
	if path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, errors.WithHint(
				errors.Wrapf(err, "load config %s", path),
				"check the file exists and is valid TOML",
			)
		}
	}

	// Step 2: env file
	if err := loadEnvFile(envFile); err != nil {
		return nil, err
	}

	// Step 3: environment
	if err := ApplyEnv(cfg, os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadEnvFile(envFile string) error {
	explicit := envFile != ""
	if !explicit {
		envFile = DefaultEnvFile
	}
	if _, err := os.Stat(envFile); err != nil {
		if explicit {
			return errors.WithHint(
				errors.Wrapf(err, "env file %s", envFile),
				"remove --env-file or point it at an existing file",
			)
		}
		return nil
	}
	if err := godotenv.Load(envFile); err != nil {
		return errors.Wrapf(err, "parse env file %s", envFile)
	}
	return nil
}

// ApplyEnv overlays environment settings on cfg using lookup
func ApplyEnv(cfg *models.Config, lookup func(string) (string, bool)) error {
	get := func(key string) (string, bool) {
		v, ok := lookup(key)
		if !ok {
			return "", false
		}
		v = strings.TrimSpace(v)
		return v, v != ""
	}

	if v, ok := get(EnvSMTPHost); ok {
		cfg.SMTP.Host = v
	}
	if v, ok := get(EnvSMTPPort); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			return errors.Newf("%s: invalid port %q", EnvSMTPPort, v)
		}
		cfg.SMTP.Port = port
	}
	if v, ok := get(EnvSMTPUser); ok {
		cfg.SMTP.User = v
	}
	if v, ok := get(EnvSMTPPassword); ok {
		cfg.SMTP.Password = v
	}
	if v, ok := get(EnvSMTPStartTLS); ok {
		cfg.SMTP.StartTLS = truthy(v)
	}
	if v, ok := get(EnvAlertSender); ok {
		cfg.SMTP.Sender = v
	}
	if v, ok := get(EnvAlertEmail); ok {
		cfg.Response.MailTo = v
	}

	if v, ok := get(EnvOTXKey); ok {
		cfg.Intel.APIKey = v
	} else if v, ok := get(EnvVTKey); ok {
		cfg.Intel.APIKey = v
	}
	if v, ok := get(EnvRedisAddr); ok {
		cfg.Intel.RedisAddr = v
	}
	if v, ok := get(EnvRedisPassword); ok {
		cfg.Intel.RedisPassword = v
	}
	if v, ok := get(EnvNATSURL); ok {
		cfg.NATS.URL = v
	}
	return nil
}

func truthy(v string) bool {
	switch strings.ToLower(v) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}
