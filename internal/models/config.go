package models

import (
	"fmt"
	"time"

	"github.com/cockroachdb/errors"
)

// Config holds configuration for the analysis pipeline and the responder
type Config struct {
	Paths    PathsConfig    `toml:"paths"`
	Analysis AnalysisConfig `toml:"analysis"`
	Intel    IntelConfig    `toml:"intel"`
	Response ResponseConfig `toml:"response"`
	SMTP     SMTPConfig     `toml:"smtp"`
	NATS     NATSConfig     `toml:"nats"`
	Metrics  MetricsConfig  `toml:"metrics"`
}

// PathsConfig lists every file artifact the pipeline reads or writes
type PathsConfig struct {
	Model          string `toml:"model"`           // trained classifier artifact
	DecisionLog    string `toml:"decision_log"`    // JSON-lines decision events
	MirrorLog      string `toml:"mirror_log"`      // log watched by a shipping agent, "" disables
	Audit          string `toml:"audit"`           // JSON array mirror of decision events
	ScanHistory    string `toml:"scan_history"`    // rolling per-scan snapshots, "" disables
	TICache        string `toml:"ti_cache"`        // threat intel cache
	LastFeatures   string `toml:"last_features"`   // features of the last run, "" disables
	ResponderState string `toml:"responder_state"` // responder offset
	ActionsLog     string `toml:"actions_log"`     // plaintext action log
	ResponseAudit  string `toml:"response_audit"`  // JSON array of response actions
	BlockScript    string `toml:"block_script"`    // firewall helper
}

// AnalysisConfig controls the scoring stage
type AnalysisConfig struct {
	DisableExplain bool `toml:"disable_explain"`
}

// IntelConfig controls threat intel enrichment
type IntelConfig struct {
	Offline       bool          `toml:"offline"`
	BaseURL       string        `toml:"base_url"`
	Timeout       time.Duration `toml:"-"`
	RateLimit     float64       `toml:"rate_limit"` // requests per second
	APIKey        string        `toml:"-"`          // OTX_API_KEY / VT_API_KEY
	RedisAddr     string        `toml:"redis_addr"`
	RedisDB       int           `toml:"redis_db"`
	RedisPassword string        `toml:"-"`       // RISKFLOW_REDIS_PASSWORD
	KEVURL        string        `toml:"kev_url"` // CISA KEV catalog, "" disables
}

// ResponseConfig controls the response orchestrator side effects
type ResponseConfig struct {
	DisableBlock  bool          `toml:"disable_block"`
	DisableNotify bool          `toml:"disable_notify"`
	DryRun        bool          `toml:"dry_run"`
	MailTo        string        `toml:"mailto"`
	BlockTimeout  time.Duration `toml:"-"`
}

// SMTPConfig holds notification transport settings; credentials come from the environment only
type SMTPConfig struct {
	Host     string        `toml:"host"`
	Port     int           `toml:"port"`
	User     string        `toml:"-"`
	Password string        `toml:"-"`
	StartTLS bool          `toml:"starttls"`
	Sender   string        `toml:"sender"`
	Timeout  time.Duration `toml:"-"`
}

// Addr returns host:port
func (s SMTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// NATSConfig controls the optional decision-event publisher
type NATSConfig struct {
	URL     string `toml:"url"`
	Subject string `toml:"subject"`
}

// MetricsConfig controls the Prometheus textfile output
type MetricsConfig struct {
	Textfile string `toml:"textfile"`
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	const base = "/opt/riskflow"
	return &Config{
		Paths: PathsConfig{
			Model:          base + "/models/model.json",
			DecisionLog:    base + "/logs/decisions.log",
			MirrorLog:      "/var/log/riskflow.log",
			Audit:          base + "/audit/decisions.json",
			ScanHistory:    base + "/audit/scan_history.json",
			TICache:        base + "/logs/ti_cache.json",
			LastFeatures:   base + "/logs/last_features.json",
			ResponderState: base + "/state/responder.json",
			ActionsLog:     base + "/logs/actions.log",
			ResponseAudit:  base + "/audit/response_actions.json",
			BlockScript:    base + "/bin/ufw_actions.sh",
		},
		Intel: IntelConfig{
			BaseURL:   "https://otx.alienvault.com",
			Timeout:   10 * time.Second,
			RateLimit: 1,
		},
		Response: ResponseConfig{
			BlockTimeout: 30 * time.Second,
		},
		SMTP: SMTPConfig{
			Host:    "localhost",
			Port:    25,
			Sender:  "soc-alert@riskflow.local",
			Timeout: 30 * time.Second,
		},
		NATS: NATSConfig{
			Subject: "riskflow.decisions",
		},
	}
}

// Validate checks the settings both stages depend on
func (c *Config) Validate() error {
	if c.Paths.DecisionLog == "" {
		return errors.New("paths.decision_log is required")
	}
	if c.Intel.Timeout <= 0 {
		return errors.New("intel timeout must be positive")
	}
	if c.Intel.RateLimit <= 0 {
		return errors.New("intel.rate_limit must be positive")
	}
	if c.Response.BlockTimeout <= 0 {
		return errors.New("block timeout must be positive")
	}
	if c.SMTP.Port <= 0 || c.SMTP.Port > 65535 {
		return errors.Newf("smtp port %d out of range", c.SMTP.Port)
	}
	return nil
}
