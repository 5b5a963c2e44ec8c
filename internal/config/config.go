// ABOUTME: Configuration loading and parsing for nexial-gateway
// ABOUTME: Supports YAML or TOML files with environment variable expansion, duration parsing and defaults

package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Defaults applied when a field is left empty.
const (
	DefaultHTTPAddr          = "0.0.0.0:8000"
	DefaultDatabasePath      = "./nexial.db"
	DefaultTokenTTL          = 24 * time.Hour
	DefaultShutdownTimeout   = 5 * time.Second
	DefaultMaxContentLength  = 4000
	DefaultHistoryLimit      = 500
	DefaultDedupeTTL         = 5 * time.Minute
	DefaultDedupeMaxEntries  = 10000
	DefaultWriteWait         = 10 * time.Second
	DefaultPongWait          = 60 * time.Second
	DefaultSendBuffer        = 128
	DefaultAssistantEndpoint = "https://api-inference.huggingface.co/models/Qwen/Qwen2-7B-Instruct"
	DefaultAssistantTimeout  = 30 * time.Second
	DefaultMaxNewTokens      = 500
	DefaultTemperature       = 0.7
	DefaultTopP              = 0.9
)

// Config represents the complete nexial-gateway configuration
type Config struct {
	Server    ServerConfig    `yaml:"server" toml:"server"`
	Database  DatabaseConfig  `yaml:"database" toml:"database"`
	Auth      AuthConfig      `yaml:"auth" toml:"auth"`
	Chat      ChatConfig      `yaml:"chat" toml:"chat"`
	WebSocket WebSocketConfig `yaml:"websocket" toml:"websocket"`
	Assistant AssistantConfig `yaml:"assistant" toml:"assistant"`
	Logging   LoggingConfig   `yaml:"logging" toml:"logging"`
}

// ServerConfig holds the HTTP listener configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr" toml:"http_addr"`
	// AllowedOrigins feeds both CORS and the WebSocket origin check.
	// "*" allows any origin.
	AllowedOrigins []string `yaml:"allowed_origins" toml:"allowed_origins"`

	ShutdownTimeout    time.Duration `yaml:"-" toml:"-"`
	ShutdownTimeoutRaw string        `yaml:"shutdown_timeout" toml:"shutdown_timeout"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `yaml:"path" toml:"path"`
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret" toml:"jwt_secret"`

	TokenTTL    time.Duration `yaml:"-" toml:"-"`
	TokenTTLRaw string        `yaml:"token_ttl" toml:"token_ttl"`
}

// ChatConfig tunes message handling
type ChatConfig struct {
	MaxContentLength int `yaml:"max_content_length" toml:"max_content_length"`
	// HistoryLimit caps how many messages one history request returns.
	HistoryLimit     int `yaml:"history_limit" toml:"history_limit"`
	DedupeMaxEntries int `yaml:"dedupe_max_entries" toml:"dedupe_max_entries"`

	DedupeTTL    time.Duration `yaml:"-" toml:"-"`
	DedupeTTLRaw string        `yaml:"dedupe_ttl" toml:"dedupe_ttl"`
}

// WebSocketConfig holds live-session timing configuration
type WebSocketConfig struct {
	SendBuffer int `yaml:"send_buffer" toml:"send_buffer"`

	WriteWait    time.Duration `yaml:"-" toml:"-"`
	PongWait     time.Duration `yaml:"-" toml:"-"`
	WriteWaitRaw string        `yaml:"write_wait" toml:"write_wait"`
	PongWaitRaw  string        `yaml:"pong_wait" toml:"pong_wait"`
}

// AssistantConfig holds the hosted language model settings
type AssistantConfig struct {
	Endpoint     string  `yaml:"endpoint" toml:"endpoint"`
	APIToken     string  `yaml:"api_token" toml:"api_token"`
	MaxNewTokens int     `yaml:"max_new_tokens" toml:"max_new_tokens"`
	Temperature  float64 `yaml:"temperature" toml:"temperature"`
	TopP         float64 `yaml:"top_p" toml:"top_p"`

	Timeout    time.Duration `yaml:"-" toml:"-"`
	TimeoutRaw string        `yaml:"timeout" toml:"timeout"`
}

// Enabled reports whether an API token is configured.
func (a AssistantConfig) Enabled() bool {
	return a.APIToken != ""
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// DefaultPath returns the config location used when none is given:
// $NEXIAL_CONFIG, then $XDG_CONFIG_HOME/nexial/gateway.yaml, then
// ~/.config/nexial/gateway.yaml.
func DefaultPath() string {
	if p := os.Getenv("NEXIAL_CONFIG"); p != "" {
		return p
	}
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "nexial", "gateway.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "gateway.yaml"
	}
	return filepath.Join(home, ".config", "nexial", "gateway.yaml")
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Files ending in .toml are decoded as TOML, everything else as YAML.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	return Parse(data, strings.EqualFold(filepath.Ext(path), ".toml"))
}

// Parse decodes raw config content. isTOML selects the decoder.
func Parse(data []byte, isTOML bool) (*Config, error) {
	expanded := expandEnvVars(string(data))

	var cfg Config
	if isTOML {
		if _, err := toml.Decode(expanded, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else {
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.applyEnvOverrides()
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// applyEnvOverrides lets NEXIAL_DB_PATH replace database.path. Every command
// that opens the database reads the path from the parsed Config.
func (c *Config) applyEnvOverrides() {
	if p := os.Getenv("NEXIAL_DB_PATH"); p != "" {
		c.Database.Path = p
	}
}

func (c *Config) applyDefaults() {
	if c.Server.HTTPAddr == "" {
		c.Server.HTTPAddr = DefaultHTTPAddr
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = DefaultShutdownTimeout
	}
	if c.Database.Path == "" {
		c.Database.Path = DefaultDatabasePath
	}
	if c.Auth.TokenTTL == 0 {
		c.Auth.TokenTTL = DefaultTokenTTL
	}
	if c.Chat.MaxContentLength == 0 {
		c.Chat.MaxContentLength = DefaultMaxContentLength
	}
	if c.Chat.HistoryLimit == 0 {
		c.Chat.HistoryLimit = DefaultHistoryLimit
	}
	if c.Chat.DedupeTTL == 0 {
		c.Chat.DedupeTTL = DefaultDedupeTTL
	}
	if c.Chat.DedupeMaxEntries == 0 {
		c.Chat.DedupeMaxEntries = DefaultDedupeMaxEntries
	}
	if c.WebSocket.WriteWait == 0 {
		c.WebSocket.WriteWait = DefaultWriteWait
	}
	if c.WebSocket.PongWait == 0 {
		c.WebSocket.PongWait = DefaultPongWait
	}
	if c.WebSocket.SendBuffer == 0 {
		c.WebSocket.SendBuffer = DefaultSendBuffer
	}
	if c.Assistant.Endpoint == "" {
		c.Assistant.Endpoint = DefaultAssistantEndpoint
	}
	if c.Assistant.Timeout == 0 {
		c.Assistant.Timeout = DefaultAssistantTimeout
	}
	if c.Assistant.MaxNewTokens == 0 {
		c.Assistant.MaxNewTokens = DefaultMaxNewTokens
	}
	if c.Assistant.Temperature == 0 {
		c.Assistant.Temperature = DefaultTemperature
	}
	if c.Assistant.TopP == 0 {
		c.Assistant.TopP = DefaultTopP
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required")
	}
	if len(c.Auth.JWTSecret) < 32 {
		return fmt.Errorf("auth.jwt_secret must be at least 32 characters")
	}
	if c.Auth.TokenTTL < 0 {
		return fmt.Errorf("auth.token_ttl must be positive")
	}
	if c.Chat.MaxContentLength < 0 {
		return fmt.Errorf("chat.max_content_length must be positive")
	}
	if c.Chat.HistoryLimit < 0 {
		return fmt.Errorf("chat.history_limit must be positive")
	}
	if c.WebSocket.PongWait < time.Second {
		return fmt.Errorf("websocket.pong_wait must be at least 1s")
	}
	if c.WebSocket.SendBuffer < 0 {
		return fmt.Errorf("websocket.send_buffer must be positive")
	}

	u, err := url.Parse(c.Assistant.Endpoint)
	if err != nil {
		return fmt.Errorf("assistant.endpoint is not a valid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("assistant.endpoint must use http or https scheme")
	}
	if c.Assistant.Temperature < 0 || c.Assistant.Temperature > 2 {
		return fmt.Errorf("assistant.temperature must be between 0 and 2")
	}
	if c.Assistant.TopP < 0 || c.Assistant.TopP > 1 {
		return fmt.Errorf("assistant.top_p must be between 0 and 1")
	}

	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be \"text\" or \"json\"")
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
		{"server.shutdown_timeout", cfg.Server.ShutdownTimeoutRaw, &cfg.Server.ShutdownTimeout},
		{"auth.token_ttl", cfg.Auth.TokenTTLRaw, &cfg.Auth.TokenTTL},
		{"chat.dedupe_ttl", cfg.Chat.DedupeTTLRaw, &cfg.Chat.DedupeTTL},
		{"websocket.write_wait", cfg.WebSocket.WriteWaitRaw, &cfg.WebSocket.WriteWait},
		{"websocket.pong_wait", cfg.WebSocket.PongWaitRaw, &cfg.WebSocket.PongWait},
		{"assistant.timeout", cfg.Assistant.TimeoutRaw, &cfg.Assistant.Timeout},
	}

	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		*f.dst = d
	}

	return nil
}
