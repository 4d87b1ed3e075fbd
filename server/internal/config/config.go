package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values for the dashboard configuration.
const (
	DefaultSource            = "data/metrics.json"
	DefaultRefreshInterval   = 300000 * time.Millisecond
	DefaultFetchTimeout      = 10 * time.Second
	DefaultHTTPPort          = 8080
	DefaultBroadcastInterval = 5 * time.Second
	DefaultHistoryTTL        = 24 * time.Hour
	DefaultRetention         = 7 * 24 * time.Hour
)

// Config is the top-level configuration parsed from config.yaml.
type Config struct {
	Dashboard DashboardConfig `yaml:"dashboard"`
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Alerts    AlertsConfig    `yaml:"alerts"`
}

// DashboardConfig controls where metrics come from and how often.
type DashboardConfig struct {
	// Source is the metrics document location: an http(s) URL, a file:// URL
	// or a plain filesystem path.
	Source string `yaml:"source"`

	// RefreshInterval is the fixed period between refresh cycles.
	RefreshInterval time.Duration `yaml:"refresh_interval"`

	// Timeout bounds a single fetch of the metrics document.
	Timeout time.Duration `yaml:"timeout"`

	// Auth configures how requests to Source are authenticated.
	Auth SourceAuth `yaml:"auth"`

	// TLS holds optional TLS dial options for Source.
	TLS TLSConfig `yaml:"tls"`

	// Exposition is an optional Prometheus text endpoint whose tibia_* series
	// overlay the application group of every snapshot.
	Exposition string `yaml:"exposition"`
}

// SourceAuth specifies the authentication mode for outgoing fetches.
type SourceAuth struct {
	// Mode is one of: apikey | bearer | basic | none.
	Mode string `yaml:"mode"`

	// Header is the HTTP header name the API key is sent in.
	Header string `yaml:"header"`
	// KeyEnv is the name of the environment variable that holds the key value.
	KeyEnv string `yaml:"key_env"`

	// TokenEnv is the name of the environment variable that holds the bearer token.
	TokenEnv string `yaml:"token_env"`

	Username    string `yaml:"username"`
	PasswordEnv string `yaml:"password_env"`
}

// Key returns the API key value resolved from the environment.
func (a SourceAuth) Key() string { return env(a.KeyEnv) }

// Token returns the bearer token value resolved from the environment.
func (a SourceAuth) Token() string { return env(a.TokenEnv) }

// Password returns the basic-auth password resolved from the environment.
func (a SourceAuth) Password() string { return env(a.PasswordEnv) }

// TLSConfig holds TLS dial options.
type TLSConfig struct {
	InsecureSkipVerify bool `yaml:"insecure_skip_verify"`
}

// ServerConfig holds the HTTP surface settings.
type ServerConfig struct {
	// HTTPPort is the port the page, REST API and WebSocket hub listen on.
	HTTPPort int `yaml:"http_port"`

	// BroadcastInterval controls how often the hub re-sends the view to
	// connected clients, in addition to pushes on every render.
	BroadcastInterval time.Duration `yaml:"broadcast_interval"`

	// Auth configures how the server authenticates API and stream clients.
	Auth ServerAuth `yaml:"auth"`
}

// ServerAuth controls client authentication on the server side.
type ServerAuth struct {
	// Mode is one of: apikey | none.
	Mode string `yaml:"mode"`

	// KeyEnv is the name of the environment variable that holds the expected API key.
	KeyEnv string `yaml:"key_env"`

	// Header is the HTTP header to read the key from. Defaults to "x-api-key".
	Header string `yaml:"header"`
}

// Key returns the expected API key resolved from the environment.
func (a ServerAuth) Key() string { return env(a.KeyEnv) }

// EffectiveHeader returns the configured header name, or the default "x-api-key".
func (a ServerAuth) EffectiveHeader() string {
	if a.Header != "" {
		return a.Header
	}
	return "x-api-key"
}

// StorageConfig configures refresh-cycle history.
type StorageConfig struct {
	// Backend selects persistence: "sqlite" or empty for memory only.
	Backend string `yaml:"backend"`

	// Path is the SQLite database file.
	Path string `yaml:"path"`

	// Retention is how long persisted cycles are kept.
	Retention time.Duration `yaml:"retention"`

	// HistoryTTL is how long a cycle stays in the in-memory history.
	HistoryTTL time.Duration `yaml:"history_ttl"`
}

// AlertsConfig holds alerting rules and webhook delivery targets.
type AlertsConfig struct {
	Rules    []AlertRule     `yaml:"rules"`
	Webhooks []WebhookConfig `yaml:"webhooks"`
}

// AlertRule defines one threshold-based alert condition.
type AlertRule struct {
	// Name is the human-readable alert identifier, used as the deduplication key.
	Name string `yaml:"name"`

	// Condition is a simple expression: "security.failed > 5",
	// "application.enemies_online >= 10", "origin == sample".
	Condition string `yaml:"condition"`

	// Severity is one of: critical | warning | info.
	Severity string `yaml:"severity"`

	// Cooldown suppresses re-fires for this duration. Defaults to 15 minutes.
	Cooldown time.Duration `yaml:"cooldown"`
}

// WebhookConfig defines one webhook delivery target.
type WebhookConfig struct {
	// Type is one of: teams | slack | http.
	Type string `yaml:"type"`

	// URLEnv is the name of the environment variable that holds the webhook URL.
	URLEnv string `yaml:"url_env"`
}

// URL returns the webhook URL resolved from the environment.
func (w WebhookConfig) URL() string { return env(w.URLEnv) }

func env(name string) string {
	if name == "" {
		return ""
	}
	return os.Getenv(name)
}

// Load reads and parses the config file at path.
// Missing fields are filled with defaults before validation.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %q: %w", path, err)
	}

	cfg := Defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	return cfg, nil
}

// Defaults returns a Config pre-populated with default values. It is also
// what the binary runs with when no config file exists.
func Defaults() *Config {
	return &Config{
		Dashboard: DashboardConfig{
			Source:          DefaultSource,
			RefreshInterval: DefaultRefreshInterval,
			Timeout:         DefaultFetchTimeout,
		},
		Server: ServerConfig{
			HTTPPort:          DefaultHTTPPort,
			BroadcastInterval: DefaultBroadcastInterval,
		},
		Storage: StorageConfig{
			Retention:  DefaultRetention,
			HistoryTTL: DefaultHistoryTTL,
		},
	}
}

// validate checks structural constraints on the parsed configuration.
func validate(cfg *Config) error {
	d := cfg.Dashboard
	if strings.TrimSpace(d.Source) == "" {
		return fmt.Errorf("dashboard.source is required")
	}
	if d.RefreshInterval <= 0 {
		return fmt.Errorf("dashboard.refresh_interval must be positive")
	}
	if d.Timeout <= 0 {
		return fmt.Errorf("dashboard.timeout must be positive")
	}
	switch d.Auth.Mode {
	case "apikey":
		if d.Auth.Header == "" {
			return fmt.Errorf("dashboard.auth.header is required for apikey mode")
		}
	case "bearer", "basic", "none", "":
	default:
		return fmt.Errorf("dashboard.auth.mode %q unknown: want apikey|bearer|basic|none", d.Auth.Mode)
	}
	if d.Exposition != "" {
		u, err := url.Parse(d.Exposition)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			return fmt.Errorf("dashboard.exposition %q must be an http(s) URL", d.Exposition)
		}
	}

	if cfg.Server.HTTPPort <= 0 || cfg.Server.HTTPPort > 65535 {
		return fmt.Errorf("server.http_port %d is out of range [1, 65535]", cfg.Server.HTTPPort)
	}
	if cfg.Server.BroadcastInterval <= 0 {
		return fmt.Errorf("server.broadcast_interval must be positive")
	}
	switch cfg.Server.Auth.Mode {
	case "apikey", "none", "":
	default:
		return fmt.Errorf("server.auth.mode %q unknown: want apikey|none", cfg.Server.Auth.Mode)
	}

	switch cfg.Storage.Backend {
	case "sqlite":
		if cfg.Storage.Path == "" {
			return fmt.Errorf("storage.path is required for the sqlite backend")
		}
	case "":
	default:
		return fmt.Errorf("storage.backend %q unknown: want sqlite or empty", cfg.Storage.Backend)
	}
	if cfg.Storage.Retention < 0 || cfg.Storage.HistoryTTL < 0 {
		return fmt.Errorf("storage retention and history_ttl must not be negative")
	}

	for i, r := range cfg.Alerts.Rules {
		if r.Name == "" {
			return fmt.Errorf("alerts.rules[%d]: name is required", i)
		}
		if len(strings.Fields(r.Condition)) != 3 {
			return fmt.Errorf("alerts.rules[%d] %q: condition must be \"field op value\"", i, r.Name)
		}
	}
	return nil
}
