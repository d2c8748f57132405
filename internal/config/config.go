// Package config loads poller settings from defaults, an optional TOML or
// YAML file, DIAGNOSYS_* environment variables and command-line flags, in
// increasing order of precedence.
package config

import (
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"

	"diagnosys-poller/internal/diagnosis"
	"diagnosys-poller/internal/domain"
	"diagnosys-poller/internal/errors"
	"diagnosys-poller/internal/logger"
	"diagnosys-poller/internal/poller"
	"diagnosys-poller/internal/transport"
)

// EnvPrefix namespaces environment overrides, e.g. DIAGNOSYS_BASE_URL.
const EnvPrefix = "DIAGNOSYS"

type Config struct {
	BaseURL        string        `mapstructure:"base_url"`
	Assets         []string      `mapstructure:"assets"`
	PollIntervalMS int64         `mapstructure:"poll_interval_ms"`
	Timeout        time.Duration `mapstructure:"timeout"`

	Source    SourceConfig    `mapstructure:"source"`
	Diagnose  DiagnoseConfig  `mapstructure:"diagnose"`
	Retry     RetryConfig     `mapstructure:"retry"`
	Health    HealthConfig    `mapstructure:"health"`
	Transport TransportConfig `mapstructure:"transport"`
	Log       LogConfig       `mapstructure:"log"`
	Status    StatusConfig    `mapstructure:"status"`
	History   HistoryConfig   `mapstructure:"history"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Webhook   WebhookConfig   `mapstructure:"webhook"`
	Report    ReportConfig    `mapstructure:"report"`
}

type SourceConfig struct {
	BaseURL string `mapstructure:"base_url"` // "" = Config.BaseURL
}

type DiagnoseConfig struct {
	BaseURL        string        `mapstructure:"base_url"` // "" = Config.BaseURL
	Backend        string        `mapstructure:"backend"`
	Policy         string        `mapstructure:"policy"`
	Command        string        `mapstructure:"command"`
	WorkDir        string        `mapstructure:"workdir"`
	Env            []string      `mapstructure:"env"`
	ProcessTimeout time.Duration `mapstructure:"process_timeout"`
}

type RetryConfig struct {
	MaxRetries  int           `mapstructure:"max_retries"`
	BaseBackoff time.Duration `mapstructure:"base_backoff"`
	MaxBackoff  time.Duration `mapstructure:"max_backoff"`
}

type HealthConfig struct {
	FailureThreshold int `mapstructure:"failure_threshold"`
	SuccessThreshold int `mapstructure:"success_threshold"`
}

type TransportConfig struct {
	H2C               bool    `mapstructure:"h2c"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
}

type LogConfig struct {
	JSON  bool   `mapstructure:"json"`
	Level string `mapstructure:"level"`
}

type StatusConfig struct {
	Addr string `mapstructure:"addr"` // "" disables the status API
}

type HistoryConfig struct {
	Path          string        `mapstructure:"path"` // "" disables history
	Retention     time.Duration `mapstructure:"retention"`
	PruneInterval time.Duration `mapstructure:"prune_interval"`
}

type RedisConfig struct {
	Addr     string        `mapstructure:"addr"` // "" disables the redis sink
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

type WebhookConfig struct {
	URLs    []string      `mapstructure:"urls"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type ReportConfig struct {
	Buffer int `mapstructure:"buffer"`
}

// SetDefaults configures default values for all configuration options
func SetDefaults(v *viper.Viper) {
	v.SetDefault("base_url", "http://localhost:8000")
	v.SetDefault("assets", []string{string(domain.DefaultAsset)})
	v.SetDefault("poll_interval_ms", 0) // single shot
	v.SetDefault("timeout", transport.DefaultTimeout)

	v.SetDefault("source.base_url", "")

	v.SetDefault("diagnose.base_url", "")
	v.SetDefault("diagnose.backend", string(diagnosis.BackendRemote))
	v.SetDefault("diagnose.policy", string(diagnosis.PolicyDegraded))
	v.SetDefault("diagnose.command", diagnosis.DefaultCommand)
	v.SetDefault("diagnose.workdir", ".")
	v.SetDefault("diagnose.env", []string{})
	v.SetDefault("diagnose.process_timeout", time.Duration(0))

	v.SetDefault("retry.max_retries", 0)
	v.SetDefault("retry.base_backoff", 200*time.Millisecond)
	v.SetDefault("retry.max_backoff", 2*time.Second)

	v.SetDefault("health.failure_threshold", 3)
	v.SetDefault("health.success_threshold", 1)

	v.SetDefault("transport.h2c", false)
	v.SetDefault("transport.requests_per_second", 0.0)

	v.SetDefault("log.json", false)
	v.SetDefault("log.level", "info")

	v.SetDefault("status.addr", "")

	v.SetDefault("history.path", "")
	v.SetDefault("history.retention", 7*24*time.Hour)
	v.SetDefault("history.prune_interval", 10*time.Minute)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.ttl", time.Hour)

	v.SetDefault("webhook.urls", []string{})
	v.SetDefault("webhook.timeout", 2*time.Second)

	v.SetDefault("report.buffer", 100)
}

// NewViper returns a Viper instance with defaults and environment binding.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	SetDefaults(v)
	return v
}

// Load reads the optional config file into v and returns the validated Config.
func Load(v *viper.Viper, path string) (*Config, error) {
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "failed to read config file %s", path)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config")
	}
	cfg.Assets = splitList(cfg.Assets)
	cfg.Webhook.URLs = splitList(cfg.Webhook.URLs)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// splitList accepts both repeated values and comma separated ones, and drops blanks.
func splitList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// Validate rejects settings the poller cannot run with.
func (c *Config) Validate() error {
	invalid := func(format string, args ...interface{}) error {
		return errors.Wrapf(errors.ErrInvalidConfig, format, args...)
	}

	for _, u := range []struct{ key, value string }{
		{"base_url", c.BaseURL},
		{"source.base_url", c.SourceURL()},
	} {
		if err := checkURL(u.key, u.value); err != nil {
			return err
		}
	}

	backend, err := diagnosis.ParseBackend(c.Diagnose.Backend)
	if err != nil {
		return err
	}
	if backend == diagnosis.BackendRemote {
		if err := checkURL("diagnose.base_url", c.DiagnoseURL()); err != nil {
			return err
		}
	}
	if backend == diagnosis.BackendProcess && strings.TrimSpace(c.Diagnose.Command) == "" {
		return invalid("diagnose.command is required for the process backend")
	}
	if _, err := diagnosis.ParsePolicy(c.Diagnose.Policy); err != nil {
		return err
	}

	if len(c.Assets) == 0 {
		return invalid("at least one asset is required")
	}
	seen := map[string]bool{}
	for _, a := range c.Assets {
		if seen[a] {
			return invalid("asset %q is listed twice", a)
		}
		seen[a] = true
	}
	if c.Timeout <= 0 {
		return invalid("timeout must be positive, got %s", c.Timeout)
	}
	if c.Retry.MaxRetries < 0 {
		return invalid("retry.max_retries must not be negative")
	}
	if c.Transport.RequestsPerSecond < 0 {
		return invalid("transport.requests_per_second must not be negative")
	}
	if _, err := logger.ParseLevel(c.Log.Level); err != nil {
		return invalid("log.level %q: %v", c.Log.Level, err)
	}
	for _, u := range c.Webhook.URLs {
		if err := checkURL("webhook.urls", u); err != nil {
			return err
		}
	}
	return nil
}

func checkURL(key, raw string) error {
	if strings.TrimSpace(raw) == "" {
		return errors.Wrapf(errors.ErrInvalidConfig, "%s is required", key)
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errors.WithHint(
			errors.Wrapf(errors.ErrInvalidConfig, "%s %q is not an http(s) URL", key, raw),
			"use the form http://host:port",
		)
	}
	return nil
}

// Interval is the configured poll interval. Zero or negative means a single cycle.
func (c *Config) Interval() time.Duration {
	return time.Duration(c.PollIntervalMS) * time.Millisecond
}

// SourceURL is the data provider base URL.
func (c *Config) SourceURL() string {
	if c.Source.BaseURL != "" {
		return c.Source.BaseURL
	}
	return c.BaseURL
}

// DiagnoseURL is the diagnosis engine base URL.
func (c *Config) DiagnoseURL() string {
	if c.Diagnose.BaseURL != "" {
		return c.Diagnose.BaseURL
	}
	return c.BaseURL
}

// AssetIDs returns the configured assets.
func (c *Config) AssetIDs() []domain.AssetID {
	out := make([]domain.AssetID, 0, len(c.Assets))
	for _, a := range c.Assets {
		out = append(out, domain.AssetID(a))
	}
	return out
}

// Orchestrator projects the settings of the orchestrator polling asset.
func (c *Config) Orchestrator(asset domain.AssetID) poller.Policy {
	p := poller.DefaultPolicy()
	p.Asset = asset
	p.Interval = c.Interval()
	p.Retry.MaxRetries = c.Retry.MaxRetries
	p.Retry.BaseBackoff = c.Retry.BaseBackoff
	p.Retry.MaxBackoff = c.Retry.MaxBackoff
	p.Health.FailureThreshold = c.Health.FailureThreshold
	p.Health.SuccessThreshold = c.Health.SuccessThreshold
	return p
}

// Diagnosis returns the diagnosis backend settings.
func (c *Config) Diagnosis() diagnosis.Config {
	backend, _ := diagnosis.ParseBackend(c.Diagnose.Backend)
	policy, _ := diagnosis.ParsePolicy(c.Diagnose.Policy)
	return diagnosis.Config{
		Backend: backend,
		Policy:  policy,
		BaseURL: c.DiagnoseURL(),
		Process: diagnosis.ProcessConfig{
			Command: c.Diagnose.Command,
			Dir:     c.Diagnose.WorkDir,
			Env:     c.Diagnose.Env,
			Timeout: c.Diagnose.ProcessTimeout,
		},
	}
}

// TransportOptions returns the HTTP client settings.
func (c *Config) TransportOptions() transport.Options {
	return transport.Options{
		Timeout:           c.Timeout,
		H2C:               c.Transport.H2C,
		RequestsPerSecond: c.Transport.RequestsPerSecond,
	}
}

// LoggerOptions returns the logger settings.
func (c *Config) LoggerOptions() logger.Options {
	return logger.Options{JSON: c.Log.JSON, Level: c.Log.Level}
}
