// ABOUTME: Configuration loading and parsing for chatsync
// ABOUTME: Supports YAML or TOML files with environment variable expansion and duration parsing

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// EnvConfig names the environment variable that overrides the config path.
const EnvConfig = "CHATSYNC_CONFIG"

// Defaults applied to fields left empty.
const (
	DefaultAPIURL           = "http://localhost:4000/api"
	DefaultSocketURL        = "http://localhost:4000/chat"
	DefaultReconnectMin     = 500 * time.Millisecond
	DefaultReconnectMax     = 30 * time.Second
	DefaultHandshakeTimeout = 10 * time.Second
	DefaultDedupeWindow     = 2 * time.Second
	DefaultPageSize         = 50
	DefaultRateLimit        = 10
	DefaultMetricsAddr      = "127.0.0.1:9464"
)

// Config represents the complete chatsync configuration
type Config struct {
	Server  ServerConfig  `yaml:"server" toml:"server"`
	Auth    AuthConfig    `yaml:"auth" toml:"auth"`
	Channel ChannelConfig `yaml:"channel" toml:"channel"`
	History HistoryConfig `yaml:"history" toml:"history"`
	Journal JournalConfig `yaml:"journal" toml:"journal"`
	Logging LoggingConfig `yaml:"logging" toml:"logging"`
	Metrics MetricsConfig `yaml:"metrics" toml:"metrics"`
}

// ServerConfig locates the chat backend.
type ServerConfig struct {
	APIURL    string  `yaml:"api_url" toml:"api_url"`
	SocketURL string  `yaml:"socket_url" toml:"socket_url"`
	Namespace string  `yaml:"namespace" toml:"namespace"` // overrides the socket URL path
	RateLimit float64 `yaml:"rate_limit" toml:"rate_limit"` // REST requests per second
}

// AuthConfig holds the session credential. Token wins over TokenFile.
type AuthConfig struct {
	Token     string `yaml:"token" toml:"token"`
	TokenFile string `yaml:"token_file" toml:"token_file"`
}

// ChannelConfig holds event channel timing
type ChannelConfig struct {
	ReconnectMin     time.Duration `yaml:"-" toml:"-"`
	ReconnectMax     time.Duration `yaml:"-" toml:"-"`
	HandshakeTimeout time.Duration `yaml:"-" toml:"-"`
	DedupeWindow     time.Duration `yaml:"-" toml:"-"`

	// Raw string values for unmarshaling
	ReconnectMinRaw     string `yaml:"reconnect_min" toml:"reconnect_min"`
	ReconnectMaxRaw     string `yaml:"reconnect_max" toml:"reconnect_max"`
	HandshakeTimeoutRaw string `yaml:"handshake_timeout" toml:"handshake_timeout"`
	DedupeWindowRaw     string `yaml:"dedupe_window" toml:"dedupe_window"`
}

// HistoryConfig controls conversation snapshots.
type HistoryConfig struct {
	PageSize   int `yaml:"page_size" toml:"page_size"`
	MaxPending int `yaml:"max_pending" toml:"max_pending"`
}

// JournalConfig controls the local event journal.
type JournalConfig struct {
	Enabled bool   `yaml:"enabled" toml:"enabled"`
	Path    string `yaml:"path" toml:"path"`

	Retention    time.Duration `yaml:"-" toml:"-"`
	RetentionRaw string        `yaml:"retention" toml:"retention"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
	File   string `yaml:"file" toml:"file"` // optional JSON log file alongside stderr
}

// MetricsConfig holds metrics endpoint configuration
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" toml:"enabled"`
	Addr    string `yaml:"addr" toml:"addr"`
}

// Path returns the config file location.
// Priority: CHATSYNC_CONFIG > XDG_CONFIG_HOME/coven-chat/config.yaml > ~/.config/coven-chat/config.yaml
func Path() string {
	if p := os.Getenv(EnvConfig); p != "" {
		return p
	}
	return filepath.Join(Dir(), "config.yaml")
}

// Dir returns the coven-chat config directory.
func Dir() string {
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "."
		}
		configDir = filepath.Join(homeDir, ".config")
	}
	return filepath.Join(configDir, "coven-chat")
}

// DataDir returns the coven-chat data directory.
func DataDir() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data"
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}
	return filepath.Join(dataDir, "coven-chat")
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Files ending in .toml are decoded as TOML, anything else as YAML.
// Environment variables in the format ${VAR_NAME} are expanded.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(data, strings.EqualFold(filepath.Ext(path), ".toml"))
}

// LoadOrDefault is Load, except a missing file yields Default().
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

// Parse decodes raw config content.
func Parse(data []byte, isTOML bool) (*Config, error) {
	expanded := expandEnvVars(string(data))

	var cfg Config
	if isTOML {
		if _, err := toml.Decode(expanded, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return &cfg, nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// Unset variables expand to the empty string.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(envVarPattern.FindStringSubmatch(match)[1])
	})
}

func applyDefaults(cfg *Config) {
	if cfg.Server.APIURL == "" {
		cfg.Server.APIURL = DefaultAPIURL
	}
	if cfg.Server.SocketURL == "" {
		cfg.Server.SocketURL = DefaultSocketURL
	}
	if cfg.Server.RateLimit == 0 {
		cfg.Server.RateLimit = DefaultRateLimit
	}
	if cfg.Channel.ReconnectMin == 0 {
		cfg.Channel.ReconnectMin = DefaultReconnectMin
	}
	if cfg.Channel.ReconnectMax == 0 {
		cfg.Channel.ReconnectMax = DefaultReconnectMax
	}
	if cfg.Channel.HandshakeTimeout == 0 {
		cfg.Channel.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if cfg.Channel.DedupeWindowRaw == "" {
		cfg.Channel.DedupeWindow = DefaultDedupeWindow
	}
	if cfg.History.PageSize == 0 {
		cfg.History.PageSize = DefaultPageSize
	}
	if cfg.Journal.Path == "" {
		cfg.Journal.Path = filepath.Join(DataDir(), "journal.db")
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Metrics.Addr == "" {
		cfg.Metrics.Addr = DefaultMetricsAddr
	}
}

// Validate checks that all configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if err := checkURL("server.api_url", c.Server.APIURL, "http", "https"); err != nil {
		return err
	}
	if err := checkURL("server.socket_url", c.Server.SocketURL, "http", "https", "ws", "wss"); err != nil {
		return err
	}

	if c.Server.RateLimit < 0 {
		return fmt.Errorf("server.rate_limit must not be negative")
	}
	if c.Channel.ReconnectMin > c.Channel.ReconnectMax {
		return fmt.Errorf("channel.reconnect_min (%s) exceeds channel.reconnect_max (%s)",
			c.Channel.ReconnectMin, c.Channel.ReconnectMax)
	}
	if c.History.PageSize < 1 {
		return fmt.Errorf("history.page_size must be positive")
	}
	if c.History.MaxPending < 0 {
		return fmt.Errorf("history.max_pending must not be negative")
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn or error, got %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"reconnect_min", cfg.Channel.ReconnectMinRaw, &cfg.Channel.ReconnectMin},
		{"reconnect_max", cfg.Channel.ReconnectMaxRaw, &cfg.Channel.ReconnectMax},
		{"handshake_timeout", cfg.Channel.HandshakeTimeoutRaw, &cfg.Channel.HandshakeTimeout},
		{"dedupe_window", cfg.Channel.DedupeWindowRaw, &cfg.Channel.DedupeWindow},
		{"retention", cfg.Journal.RetentionRaw, &cfg.Journal.Retention},
	}
	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		if d < 0 {
			return fmt.Errorf("%s must not be negative", f.name)
		}
		*f.dst = d
	}
	return nil
}

func checkURL(name, raw string, schemes ...string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	if !slices.Contains(schemes, u.Scheme) {
		return fmt.Errorf("%s must use one of %s, got %q", name, strings.Join(schemes, ", "), raw)
	}
	if u.Host == "" {
		return fmt.Errorf("%s has no host", name)
	}
	return nil
}
