// Package config loads the gateway configuration from an optional YAML or
// TOML file plus environment overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"record-mcp/internal/tools"
)

// Defaults applied before the file and environment are read.
const (
	DefaultAddr          = ":9123"
	DefaultServerName    = "servicenow-generic"
	DefaultServerVersion = "1.0.0"
)

// Config represents the complete gateway configuration. It is built once at
// startup and never mutated afterwards.
type Config struct {
	Server    ServerConfig     `yaml:"server" toml:"server"`
	Remote    RemoteConfig     `yaml:"remote" toml:"remote"`
	Cache     CacheConfig      `yaml:"cache" toml:"cache"`
	Audit     AuditConfig      `yaml:"audit" toml:"audit"`
	Logging   LoggingConfig    `yaml:"logging" toml:"logging"`
	Tables    []tools.TableRef `yaml:"tables" toml:"tables"`
	Shortcuts []tools.Shortcut `yaml:"shortcuts" toml:"shortcuts"`
}

// ServerConfig holds the inbound side.
type ServerConfig struct {
	Addr      string `yaml:"addr" toml:"addr"`
	Token     string `yaml:"token" toml:"token"`
	JWTSecret string `yaml:"jwt_secret" toml:"jwt_secret"`
	Name      string `yaml:"name" toml:"name"`
	Version   string `yaml:"version" toml:"version"`
}

// RemoteConfig holds the record store connection.
type RemoteConfig struct {
	Instance           string        `yaml:"instance" toml:"instance"`
	BaseURL            string        `yaml:"base_url" toml:"base_url"`
	Username           string        `yaml:"username" toml:"username"`
	Password           string        `yaml:"password" toml:"password"`
	BearerToken        string        `yaml:"bearer_token" toml:"bearer_token"`
	CancelOnDisconnect bool          `yaml:"cancel_on_disconnect" toml:"cancel_on_disconnect"`
	Timeout            time.Duration `yaml:"-" toml:"-"`

	TimeoutRaw string `yaml:"timeout" toml:"timeout"`
}

// URL returns the store origin: BaseURL if set, else https://Instance.
func (r RemoteConfig) URL() string {
	if r.BaseURL != "" {
		return strings.TrimRight(r.BaseURL, "/")
	}
	host := strings.TrimPrefix(strings.TrimPrefix(r.Instance, "https://"), "http://")
	return "https://" + strings.TrimRight(host, "/")
}

// CacheConfig controls the GET response cache.
type CacheConfig struct {
	TTL    time.Duration `yaml:"-" toml:"-"`
	TTLRaw string        `yaml:"ttl" toml:"ttl"`
}

// AuditConfig controls the tool call journal.
type AuditConfig struct {
	Path string `yaml:"path" toml:"path"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// Load reads the file at path (if any), applies environment overrides,
// parses durations and validates. An empty path means environment only.
func Load(path string) (*Config, error) {
	cfg := defaults()

	if path != "" {
		if err := decodeFile(path, cfg); err != nil {
			return nil, err
		}
	}

	applyEnv(cfg)

	if err := parseDurations(cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:    DefaultAddr,
			Name:    DefaultServerName,
			Version: DefaultServerVersion,
		},
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}
}

func decodeFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}

	expanded := expandEnvVars(string(data))

	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.Decode(expanded, cfg); err != nil {
			return fmt.Errorf("parsing config file: %w", err)
		}
	default:
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return fmt.Errorf("parsing config file: %w", err)
		}
	}
	return nil
}

var envRef = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	return envRef.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(envRef.FindStringSubmatch(match)[1])
	})
}

// applyEnv lets the environment override file values.
func applyEnv(cfg *Config) {
	if v := os.Getenv("PORT"); v != "" {
		cfg.Server.Addr = ":" + v
	}
	setString(&cfg.Server.Token, "MCP_TOKEN")
	setString(&cfg.Server.JWTSecret, "MCP_JWT_SECRET")
	setString(&cfg.Remote.Instance, "SN_INSTANCE")
	setString(&cfg.Remote.BaseURL, "SN_BASE_URL")
	setString(&cfg.Remote.Username, "SN_USERNAME")
	setString(&cfg.Remote.Password, "SN_PASSWORD")
	setString(&cfg.Remote.BearerToken, "SN_BEARER_TOKEN")
	setString(&cfg.Remote.TimeoutRaw, "SN_TIMEOUT")
	if v := os.Getenv("SN_CANCEL_ON_DISCONNECT"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Remote.CancelOnDisconnect = b
		}
	}
	setString(&cfg.Cache.TTLRaw, "CACHE_TTL")
	setString(&cfg.Audit.Path, "AUDIT_DB")
	setString(&cfg.Logging.Level, "LOG_LEVEL")
	setString(&cfg.Logging.Format, "LOG_FORMAT")
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Remote.TimeoutRaw != "" {
		cfg.Remote.Timeout, err = time.ParseDuration(cfg.Remote.TimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing remote.timeout %q: %w", cfg.Remote.TimeoutRaw, err)
		}
	}

	if cfg.Cache.TTLRaw != "" {
		cfg.Cache.TTL, err = time.ParseDuration(cfg.Cache.TTLRaw)
		if err != nil {
			return fmt.Errorf("parsing cache.ttl %q: %w", cfg.Cache.TTLRaw, err)
		}
	}

	return nil
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}

	if c.Remote.Instance == "" && c.Remote.BaseURL == "" {
		return fmt.Errorf("remote.instance or remote.base_url is required")
	}

	if c.Server.JWTSecret != "" && len(c.Server.JWTSecret) < 32 {
		return fmt.Errorf("server.jwt_secret must be at least 32 bytes")
	}

	for i, s := range c.Shortcuts {
		if s.Name == "" || s.Table == "" {
			return fmt.Errorf("shortcuts[%d]: name and table are required", i)
		}
	}

	if c.Remote.Timeout < 0 {
		return fmt.Errorf("remote.timeout must not be negative")
	}

	if c.Cache.TTL < 0 {
		return fmt.Errorf("cache.ttl must not be negative")
	}

	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level)
	}

	switch c.Logging.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("logging.format %q is not one of text, json", c.Logging.Format)
	}

	return nil
}
