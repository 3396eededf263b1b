package model

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// IMAPConfig holds the remote mailbox connection settings.
type IMAPConfig struct {
	Host     string `mapstructure:"host" yaml:"host"`
	Port     int    `mapstructure:"port" yaml:"port"`
	Username string `mapstructure:"username" yaml:"username"`

	// Password is optional; when empty it is read from the system keyring.
	Password string `mapstructure:"password" yaml:"password"`

	// Mailboxes lists the remote folders to sync (e.g., INBOX).
	Mailboxes []string `mapstructure:"mailboxes" yaml:"mailboxes"`

	// Security is one of "starttls", "tls" or "none".
	Security string `mapstructure:"security" yaml:"security"`

	// TLSVerify enables certificate verification. Local bridges usually
	// present self-signed certificates, so it is off by default.
	TLSVerify bool `mapstructure:"tls_verify" yaml:"tls_verify"`

	TimeoutSec int `mapstructure:"timeout_sec" yaml:"timeout_sec"`
}

// Addr returns host:port.
func (c IMAPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Timeout returns the per-session connect/read timeout.
func (c IMAPConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSec) * time.Second
}

// CredentialKey is the keyring key holding the IMAP password.
func (c IMAPConfig) CredentialKey() string {
	return fmt.Sprintf("imap:%s@%s", c.Username, c.Host)
}

// StoreConfig holds the local database location.
type StoreConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// SyncConfig controls polling and backfill.
type SyncConfig struct {
	PollIntervalSec int `mapstructure:"poll_interval_sec" yaml:"poll_interval_sec"`

	// PollLimit caps new messages per poll and sizes the recent
	// flag-reconciliation window.
	PollLimit int `mapstructure:"poll_limit" yaml:"poll_limit"`

	BackfillDaysMax int `mapstructure:"backfill_days_max" yaml:"backfill_days_max"`
	FetchChunk      int `mapstructure:"fetch_chunk" yaml:"fetch_chunk"`
}

// PollInterval returns the poller tick interval.
func (c SyncConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSec) * time.Second
}

// LLMConfig holds the local model endpoint settings.
type LLMConfig struct {
	BaseURL            string   `mapstructure:"base_url" yaml:"base_url"`
	Model              string   `mapstructure:"model" yaml:"model"`
	TimeoutSec         int      `mapstructure:"timeout_sec" yaml:"timeout_sec"`
	MaxBodyChars       int      `mapstructure:"max_body_chars" yaml:"max_body_chars"`
	Temperature        float64  `mapstructure:"temperature" yaml:"temperature"`
	NumCtx             int      `mapstructure:"num_ctx" yaml:"num_ctx"`
	AllowedLabels      []string `mapstructure:"allowed_labels" yaml:"allowed_labels"`
	BreakerFailures    int      `mapstructure:"breaker_failures" yaml:"breaker_failures"`
	BreakerCooldownSec int      `mapstructure:"breaker_cooldown_sec" yaml:"breaker_cooldown_sec"`
}

// Timeout returns the per-call deadline.
func (c LLMConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSec) * time.Second
}

// JobsConfig controls batch analysis.
type JobsConfig struct {
	Concurrency int `mapstructure:"concurrency" yaml:"concurrency"`
}

// LogConfig controls the zap logger.
type LogConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Development bool   `mapstructure:"development" yaml:"development"`
}

// MetricsConfig controls the prometheus endpoint. An empty Addr disables it.
type MetricsConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr"`
}

// AppConfig is the top-level application configuration.
type AppConfig struct {
	IMAP    IMAPConfig    `mapstructure:"imap" yaml:"imap"`
	Store   StoreConfig   `mapstructure:"store" yaml:"store"`
	Sync    SyncConfig    `mapstructure:"sync" yaml:"sync"`
	LLM     LLMConfig     `mapstructure:"llm" yaml:"llm"`
	Jobs    JobsConfig    `mapstructure:"jobs" yaml:"jobs"`
	Log     LogConfig     `mapstructure:"log" yaml:"log"`
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
}

// DefaultAllowedLabels is the label vocabulary offered to the model.
var DefaultAllowedLabels = []string{
	"work", "personal", "finance", "travel", "shopping",
	"newsletter", "notification", "social", "security", "receipts",
}

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/inboxd/config.yaml.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "config.yaml")
	}
	return filepath.Join(home, ".config", "inboxd", "config.yaml")
}

// defaultStorePath returns ~/.local/share/inboxd/inbox.db.
func defaultStorePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "inbox.db"
	}
	return filepath.Join(home, ".local", "share", "inboxd", "inbox.db")
}

// setDefaults registers every key so env overrides resolve through Unmarshal.
func setDefaults(v *viper.Viper) {
	v.SetDefault("imap.host", "127.0.0.1")
	v.SetDefault("imap.port", 1143)
	v.SetDefault("imap.username", "")
	v.SetDefault("imap.password", "")
	v.SetDefault("imap.mailboxes", []string{"INBOX"})
	v.SetDefault("imap.security", "starttls")
	v.SetDefault("imap.tls_verify", false)
	v.SetDefault("imap.timeout_sec", 10)

	v.SetDefault("store.path", defaultStorePath())

	v.SetDefault("sync.poll_interval_sec", 300)
	v.SetDefault("sync.poll_limit", 300)
	v.SetDefault("sync.backfill_days_max", 200)
	v.SetDefault("sync.fetch_chunk", 200)

	v.SetDefault("llm.base_url", "http://127.0.0.1:11434")
	v.SetDefault("llm.model", "llama3.1:8b")
	v.SetDefault("llm.timeout_sec", 300)
	v.SetDefault("llm.max_body_chars", 12000)
	v.SetDefault("llm.temperature", 0.2)
	v.SetDefault("llm.num_ctx", 8192)
	v.SetDefault("llm.allowed_labels", DefaultAllowedLabels)
	v.SetDefault("llm.breaker_failures", 5)
	v.SetDefault("llm.breaker_cooldown_sec", 30)

	v.SetDefault("jobs.concurrency", 2)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)

	v.SetDefault("metrics.addr", ":9464")
}

// LoadConfig reads configuration from the given YAML file path using Viper.
// Environment variables prefixed with INBOXD_ override file values
// (INBOXD_IMAP_HOST overrides imap.host). A missing file yields defaults.
func LoadConfig(path string) (*AppConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("INBOXD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		var pathErr *os.PathError
		if !errors.As(err, &notFound) && !errors.As(err, &pathErr) {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	cfg := &AppConfig{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	cfg.Store.Path = expandHome(cfg.Store.Path)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config %s: %w", path, err)
	}

	return cfg, nil
}

// Validate checks values that would otherwise fail deep inside a sync
// or analysis run.
func (c *AppConfig) Validate() error {
	switch c.IMAP.Security {
	case "starttls", "tls", "none":
	default:
		return fmt.Errorf("imap.security must be starttls, tls or none, got %q", c.IMAP.Security)
	}
	if len(c.IMAP.Mailboxes) == 0 {
		return fmt.Errorf("imap.mailboxes must not be empty")
	}
	if c.Sync.PollLimit <= 0 {
		return fmt.Errorf("sync.poll_limit must be positive")
	}
	if c.Sync.FetchChunk <= 0 {
		return fmt.Errorf("sync.fetch_chunk must be positive")
	}
	if c.Jobs.Concurrency <= 0 {
		return fmt.Errorf("jobs.concurrency must be positive")
	}
	if c.LLM.MaxBodyChars <= 0 {
		return fmt.Errorf("llm.max_body_chars must be positive")
	}
	return nil
}

// SaveConfig writes the given configuration to a YAML file at path,
// creating parent directories if needed.
func SaveConfig(path string, cfg *AppConfig) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.Set("imap", cfg.IMAP)
	v.Set("store", cfg.Store)
	v.Set("sync", cfg.Sync)
	v.Set("llm", cfg.LLM)
	v.Set("jobs", cfg.Jobs)
	v.Set("log", cfg.Log)
	v.Set("metrics", cfg.Metrics)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}

	return nil
}

func expandHome(p string) string {
	if !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, p[2:])
}
