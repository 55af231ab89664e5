package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values applied when fields are absent from the config file.
const (
	DefaultPollInterval      = 5 * time.Second
	DefaultRetryInitial      = 1 * time.Second
	DefaultRetryMax          = 60 * time.Second
	DefaultHTTPPort          = 8080
	DefaultSnapshotTTL       = 5 * time.Minute
	DefaultBroadcastInterval = 5 * time.Second
	DefaultChartTail         = 2000
	DefaultPromHistory       = 2000
	DefaultPromTimeField     = "Time"
	DefaultInfluxBufferSize  = 1000
	DefaultStorageRetention  = 7 * 24 * time.Hour
	DefaultCertCheckInterval = time.Hour
	DefaultLogLevel          = "info"
)

// Config is the top-level configuration for herbie-dash.
// Fields map 1:1 to config.example.yaml.
type Config struct {
	// LogLevel is one of: debug | info | warn | error.
	LogLevel string `yaml:"log_level"`

	Dashboard DashboardConfig `yaml:"dashboard"`
	Server    ServerConfig    `yaml:"server"`
}

// DashboardConfig holds the polling side: sources and loop cadence.
type DashboardConfig struct {
	// PollInterval is the fixed wait between two fetch cycles of a source.
	// Zero repeats immediately.
	PollInterval time.Duration `yaml:"poll_interval"`

	// RetryInitial and RetryMax bound the backoff used after a fetch failure.
	RetryInitial time.Duration `yaml:"retry_initial"`
	RetryMax     time.Duration `yaml:"retry_max"`

	// Sources is the list of sensor logs to poll.
	Sources []Source `yaml:"sources"`
}

// Source describes one polled sensor log.
type Source struct {
	// ID is a unique, human-readable identifier for this source.
	ID string `yaml:"id"`

	// Type is the backing store: xlsx | csv | gsheet | json | prometheus.
	Type string `yaml:"type"`

	// Path is the local file for xlsx and csv sources.
	Path string `yaml:"path"`

	// Sheet is the worksheet name for xlsx sources. Empty selects the first sheet.
	Sheet string `yaml:"sheet"`

	// Endpoint is the URL for gsheet, json and prometheus sources.
	// For gsheet it may be left empty when SpreadsheetID is set.
	Endpoint string `yaml:"endpoint"`

	// SpreadsheetID and GID build the Google Sheets CSV export URL.
	SpreadsheetID string `yaml:"spreadsheet_id"`
	GID           string `yaml:"gid"`

	// History bounds the rows a prometheus source keeps between fetches.
	History int `yaml:"history"`

	// Auth configures how HTTP sources authenticate.
	Auth AuthConfig `yaml:"auth"`

	// TLS holds optional TLS dial options.
	TLS TLSConfig `yaml:"tls"`

	// Normalize controls how raw rows become a snapshot.
	Normalize NormalizeConfig `yaml:"normalize"`

	// Chart controls the rendered line chart.
	Chart ChartConfig `yaml:"chart"`

	// Metrics lists the value/delta widgets shown for this source.
	Metrics []MetricConfig `yaml:"metrics"`
}

// NormalizeConfig is the configurable rename table and retention cutoff.
type NormalizeConfig struct {
	// TimeField is the (post-rename) field parsed into the row timestamp.
	TimeField string `yaml:"time_field"`

	// Rename maps raw field names to canonical channel names.
	Rename map[string]string `yaml:"rename"`

	// DropColumns are removed when present (instrument or device IDs).
	DropColumns []string `yaml:"drop_columns"`

	// SkipBeforeIndex discards rows before this position when the
	// history is longer than it.
	SkipBeforeIndex int `yaml:"skip_before_index"`

	// TimeLayouts are tried before the built-in layouts.
	TimeLayouts []string `yaml:"time_layouts"`

	// TimeZone names the location used for layouts without an offset.
	// Defaults to UTC.
	TimeZone string `yaml:"time_zone"`
}

// Location resolves TimeZone. An empty or unknown zone yields UTC.
func (n NormalizeConfig) Location() *time.Location {
	if n.TimeZone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(n.TimeZone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// ChartConfig controls the PNG line chart for a source.
type ChartConfig struct {
	Title string `yaml:"title"`

	// Tail is the number of most recent rows plotted.
	Tail int `yaml:"tail"`

	// Colors maps channel name to a colour name or #hex value.
	Colors map[string]string `yaml:"colors"`
}

// MetricConfig is one value/delta widget.
type MetricConfig struct {
	Channel string `yaml:"channel"`
	Label   string `yaml:"label"`
}

// AuthConfig specifies the authentication mode for an HTTP source.
type AuthConfig struct {
	// Mode is one of: apikey | bearer | basic | none.
	Mode string `yaml:"mode"`

	// Header is the HTTP header name to send the API key in.
	Header string `yaml:"header"`
	// KeyEnv is the name of the environment variable that holds the key value.
	KeyEnv string `yaml:"key_env"`

	// TokenEnv is the name of the environment variable that holds the token.
	TokenEnv string `yaml:"token_env"`

	// Username is the literal username (safe to store in config).
	Username string `yaml:"username"`
	// PasswordEnv is the name of the environment variable that holds the password.
	PasswordEnv string `yaml:"password_env"`
}

// Key returns the API key value resolved from the environment.
// Returns empty string if KeyEnv is unset or the variable is not found.
func (a AuthConfig) Key() string {
	if a.KeyEnv == "" {
		return ""
	}
	return os.Getenv(a.KeyEnv)
}

// Token returns the bearer token value resolved from the environment.
func (a AuthConfig) Token() string {
	if a.TokenEnv == "" {
		return ""
	}
	return os.Getenv(a.TokenEnv)
}

// Password returns the basic-auth password resolved from the environment.
func (a AuthConfig) Password() string {
	if a.PasswordEnv == "" {
		return ""
	}
	return os.Getenv(a.PasswordEnv)
}

// TLSConfig holds per-source TLS dial options.
type TLSConfig struct {
	// InsecureSkipVerify disables TLS certificate verification.
	InsecureSkipVerify bool `yaml:"insecure_skip_verify"`
}

// ServerConfig holds the serving side: HTTP API, WebSocket, alerts, storage.
type ServerConfig struct {
	// HTTPPort is the port the REST API, WebSocket hub and /metrics listen on.
	HTTPPort int `yaml:"http_port"`

	// SnapshotTTL is how long a source's frame stays listed without updates.
	SnapshotTTL time.Duration `yaml:"snapshot_ttl"`

	// BroadcastInterval is the WebSocket push cadence.
	BroadcastInterval time.Duration `yaml:"broadcast_interval"`

	// CORSOrigins lists allowed browser origins. Empty allows all.
	CORSOrigins []string `yaml:"cors_origins"`

	// CertCheckInterval is how often HTTPS source certificates are checked.
	CertCheckInterval time.Duration `yaml:"cert_check_interval"`

	// Auth configures REST API authentication.
	Auth ServerAuthConfig `yaml:"auth"`

	// Alerts holds alerting rule and webhook delivery configuration.
	Alerts AlertsConfig `yaml:"alerts"`

	// Storage configures the optional reading history.
	Storage StorageConfig `yaml:"storage"`

	// Influx configures the optional InfluxDB mirror.
	Influx InfluxConfig `yaml:"influx"`
}

// ServerAuthConfig configures REST API authentication.
type ServerAuthConfig struct {
	// Mode is one of: apikey | none.
	Mode string `yaml:"mode"`

	// KeyEnv is the name of the environment variable holding the expected API key.
	KeyEnv string `yaml:"key_env"`

	// Header is the HTTP header the key is read from. Defaults to "x-api-key".
	Header string `yaml:"header"`
}

// Key returns the server API key resolved from the environment.
func (a ServerAuthConfig) Key() string {
	if a.KeyEnv == "" {
		return ""
	}
	return os.Getenv(a.KeyEnv)
}

// EffectiveHeader returns the configured header name, or the default "x-api-key".
func (a ServerAuthConfig) EffectiveHeader() string {
	if a.Header != "" {
		return a.Header
	}
	return "x-api-key"
}

// AlertsConfig holds all alerting rules and webhook targets.
type AlertsConfig struct {
	Rules    []AlertRule     `yaml:"rules"`
	Webhooks []WebhookConfig `yaml:"webhooks"`
}

// AlertRule defines a threshold-based alert condition.
type AlertRule struct {
	// Name is the human-readable alert identifier.
	Name string `yaml:"name"`

	// Condition is an expression like "Moist < 20", "delta.Temp > 3",
	// "warnings > 0" or "state == unavailable".
	Condition string `yaml:"condition"`

	// Severity is one of: critical | warning | info.
	Severity string `yaml:"severity"`

	// Cooldown suppresses re-fires for this duration after an alert fires.
	Cooldown time.Duration `yaml:"cooldown"`
}

// WebhookConfig defines one webhook delivery target.
type WebhookConfig struct {
	// Type is one of: teams | slack | http.
	Type string `yaml:"type"`

	// URLEnv is the name of the environment variable holding the webhook URL.
	URLEnv string `yaml:"url_env"`
}

// URL returns the webhook URL resolved from the environment.
func (w WebhookConfig) URL() string {
	if w.URLEnv == "" {
		return ""
	}
	return os.Getenv(w.URLEnv)
}

// StorageConfig configures the reading history backend.
type StorageConfig struct {
	// Backend selects the storage implementation: sqlite, or empty to disable.
	Backend string `yaml:"backend"`

	// Path is the filesystem path for the SQLite database file.
	Path string `yaml:"path"`

	// Retention is how long readings are kept before deletion.
	Retention time.Duration `yaml:"retention"`
}

// InfluxConfig configures the InfluxDB mirror. An empty URL disables it.
type InfluxConfig struct {
	URL        string `yaml:"url"`
	TokenEnv   string `yaml:"token_env"`
	Org        string `yaml:"org"`
	Bucket     string `yaml:"bucket"`
	BufferSize int    `yaml:"buffer_size"`
}

// Token returns the InfluxDB token resolved from the environment.
func (i InfluxConfig) Token() string {
	if i.TokenEnv == "" {
		return ""
	}
	return os.Getenv(i.TokenEnv)
}

// Load reads and parses the YAML config file at path.
// Missing optional fields are filled with sensible defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read file: %w", err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}
	applySourceDefaults(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	return cfg, nil
}

// defaults returns a Config pre-populated with default values.
func defaults() *Config {
	return &Config{
		LogLevel: DefaultLogLevel,
		Dashboard: DashboardConfig{
			PollInterval: DefaultPollInterval,
			RetryInitial: DefaultRetryInitial,
			RetryMax:     DefaultRetryMax,
		},
		Server: ServerConfig{
			HTTPPort:          DefaultHTTPPort,
			SnapshotTTL:       DefaultSnapshotTTL,
			BroadcastInterval: DefaultBroadcastInterval,
			CertCheckInterval: DefaultCertCheckInterval,
			Storage:           StorageConfig{Retention: DefaultStorageRetention},
			Influx:            InfluxConfig{BufferSize: DefaultInfluxBufferSize},
		},
	}
}

// applySourceDefaults fills per-source fields that YAML cannot default.
func applySourceDefaults(cfg *Config) {
	for i := range cfg.Dashboard.Sources {
		src := &cfg.Dashboard.Sources[i]
		if src.Chart.Tail <= 0 {
			src.Chart.Tail = DefaultChartTail
		}
		if src.Type == "prometheus" {
			if src.History <= 0 {
				src.History = DefaultPromHistory
			}
			if src.Normalize.TimeField == "" {
				src.Normalize.TimeField = DefaultPromTimeField
			}
		}
		if src.Chart.Title == "" {
			src.Chart.Title = src.ID
		}
	}
}

// validate checks required fields and structural constraints.
func validate(cfg *Config) error {
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level %q unknown: want debug|info|warn|error", cfg.LogLevel)
	}
	if cfg.Dashboard.PollInterval < 0 {
		return fmt.Errorf("dashboard.poll_interval must not be negative")
	}
	if cfg.Dashboard.RetryInitial <= 0 || cfg.Dashboard.RetryMax < cfg.Dashboard.RetryInitial {
		return fmt.Errorf("dashboard.retry_initial must be positive and not exceed retry_max")
	}

	seen := make(map[string]bool, len(cfg.Dashboard.Sources))
	for i, src := range cfg.Dashboard.Sources {
		if src.ID == "" {
			return fmt.Errorf("sources[%d]: id is required", i)
		}
		if seen[src.ID] {
			return fmt.Errorf("sources[%d]: duplicate id %q", i, src.ID)
		}
		seen[src.ID] = true

		switch src.Type {
		case "xlsx", "csv":
			if src.Path == "" {
				return fmt.Errorf("sources[%d] %q: path is required", i, src.ID)
			}
		case "gsheet":
			if src.Endpoint == "" && src.SpreadsheetID == "" {
				return fmt.Errorf("sources[%d] %q: endpoint or spreadsheet_id is required", i, src.ID)
			}
		case "json", "prometheus":
			if src.Endpoint == "" {
				return fmt.Errorf("sources[%d] %q: endpoint is required", i, src.ID)
			}
		default:
			return fmt.Errorf("sources[%d] %q: unknown type %q", i, src.ID, src.Type)
		}
		switch src.Auth.Mode {
		case "apikey", "bearer", "basic", "none", "":
		default:
			return fmt.Errorf("sources[%d] %q: unknown auth mode %q", i, src.ID, src.Auth.Mode)
		}
		if src.Normalize.SkipBeforeIndex < 0 {
			return fmt.Errorf("sources[%d] %q: normalize.skip_before_index must not be negative", i, src.ID)
		}
	}

	if cfg.Server.HTTPPort <= 0 || cfg.Server.HTTPPort > 65535 {
		return fmt.Errorf("server.http_port %d is out of range [1, 65535]", cfg.Server.HTTPPort)
	}
	if cfg.Server.SnapshotTTL < 0 {
		return fmt.Errorf("server.snapshot_ttl must not be negative")
	}
	if cfg.Server.BroadcastInterval <= 0 {
		return fmt.Errorf("server.broadcast_interval must be positive")
	}
	if cfg.Server.CertCheckInterval <= 0 {
		return fmt.Errorf("server.cert_check_interval must be positive")
	}
	switch cfg.Server.Auth.Mode {
	case "apikey", "none", "":
	default:
		return fmt.Errorf("server.auth.mode %q unknown: want apikey|none", cfg.Server.Auth.Mode)
	}
	switch cfg.Server.Storage.Backend {
	case "":
	case "sqlite":
		if cfg.Server.Storage.Path == "" {
			return fmt.Errorf("server.storage.path is required for sqlite")
		}
	default:
		return fmt.Errorf("server.storage.backend %q unknown: want sqlite", cfg.Server.Storage.Backend)
	}
	if cfg.Server.Influx.URL != "" {
		if cfg.Server.Influx.Org == "" || cfg.Server.Influx.Bucket == "" {
			return fmt.Errorf("server.influx: org and bucket are required when url is set")
		}
		if cfg.Server.Influx.BufferSize <= 0 {
			return fmt.Errorf("server.influx.buffer_size must be positive")
		}
	}
	return nil
}
