// ABOUTME: Configuration loading and parsing for the debuglet agent and controller
// ABOUTME: Supports YAML or TOML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
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
	DefaultControllerAddr  = "localhost:50061"
	DefaultGRPCAddr        = "0.0.0.0:50061"
	DefaultHTTPAddr        = "0.0.0.0:8061"
	DefaultWaitTimeout     = 40 * time.Second
	DefaultDeliveryTimeout = 10 * time.Second
	DefaultShutdownTimeout = 10 * time.Second
	DefaultMaxQueueSize    = 1000
	DefaultBackoffStart    = time.Second
	DefaultBackoffMax      = 600 * time.Second
	DefaultBackoffFactor   = 2.0
	DefaultQuotaTime       = 50 * time.Millisecond
	DefaultQuotaCount      = 10
	DefaultTokenTTL        = 24 * time.Hour
	DefaultMetricsPath     = "/metrics"

	// MinJWTSecretLength is the shortest accepted HMAC secret.
	MinJWTSecretLength = 32
)

// Config represents the complete debuglet configuration. The agent and the
// controller read different sections of the same file.
type Config struct {
	Controller ControllerConfig `yaml:"controller" toml:"controller"`
	Debuggee   DebuggeeConfig   `yaml:"debuggee" toml:"debuggee"`
	Agent      AgentConfig      `yaml:"agent" toml:"agent"`
	Quota      QuotaConfig      `yaml:"quota" toml:"quota"`
	Server     ServerConfig     `yaml:"server" toml:"server"`
	Database   DatabaseConfig   `yaml:"database" toml:"database"`
	Auth       AuthConfig       `yaml:"auth" toml:"auth"`
	Logging    LoggingConfig    `yaml:"logging" toml:"logging"`
	Metrics    MetricsConfig    `yaml:"metrics" toml:"metrics"`
}

// ControllerConfig tells the agent how to reach the controller
type ControllerConfig struct {
	Addr       string `yaml:"addr" toml:"addr"`
	Insecure   bool   `yaml:"insecure" toml:"insecure"`
	CACertFile string `yaml:"ca_cert_file" toml:"ca_cert_file"`
	ServerName string `yaml:"server_name" toml:"server_name"`
	Token      string `yaml:"token" toml:"token"` // bearer JWT minted by `debuglet-controller token`
}

// DebuggeeConfig identifies the debugged application
type DebuggeeConfig struct {
	Project           string            `yaml:"project" toml:"project"`
	Service           string            `yaml:"service" toml:"service"`
	Version           string            `yaml:"version" toml:"version"`
	Labels            map[string]string `yaml:"labels" toml:"labels"`
	SourceContextFile string            `yaml:"source_context_file" toml:"source_context_file"`
}

// AgentConfig holds agent timing and queue configuration
type AgentConfig struct {
	BackoffStart    time.Duration `yaml:"-" toml:"-"`
	BackoffMax      time.Duration `yaml:"-" toml:"-"`
	BackoffFactor   float64       `yaml:"backoff_multiplier" toml:"backoff_multiplier"`
	MaxQueueSize    int           `yaml:"max_queue_size" toml:"max_queue_size"`
	DeliveryTimeout time.Duration `yaml:"-" toml:"-"`
	ShutdownTimeout time.Duration `yaml:"-" toml:"-"`

	// Raw string values for unmarshaling
	BackoffStartRaw    string `yaml:"backoff_start" toml:"backoff_start"`
	BackoffMaxRaw      string `yaml:"backoff_max" toml:"backoff_max"`
	DeliveryTimeoutRaw string `yaml:"delivery_timeout" toml:"delivery_timeout"`
	ShutdownTimeoutRaw string `yaml:"shutdown_timeout" toml:"shutdown_timeout"`
}

// QuotaConfig bounds the evaluation work done per request
type QuotaConfig struct {
	Time    time.Duration `yaml:"-" toml:"-"`
	Count   int           `yaml:"count" toml:"count"`
	TimeRaw string        `yaml:"time" toml:"time"`
}

// ServerConfig holds controller listener configuration
type ServerConfig struct {
	GRPCAddr       string        `yaml:"grpc_addr" toml:"grpc_addr"`
	HTTPAddr       string        `yaml:"http_addr" toml:"http_addr"`
	WaitTimeout    time.Duration `yaml:"-" toml:"-"`
	WaitTimeoutRaw string        `yaml:"wait_timeout" toml:"wait_timeout"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `yaml:"path" toml:"path"` // empty keeps state in memory
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	JWTSecret   string        `yaml:"jwt_secret" toml:"jwt_secret"`
	TokenTTL    time.Duration `yaml:"-" toml:"-"`
	TokenTTLRaw string        `yaml:"token_ttl" toml:"token_ttl"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// MetricsConfig holds metrics endpoint configuration
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" toml:"enabled"`
	Path    string `yaml:"path" toml:"path"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	var cfg Config
	cfg.applyDefaults()
	return &cfg
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Files ending in .toml are parsed as TOML, everything else as YAML.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw content
	expanded := expandEnvVars(string(data))

	var cfg Config
	if strings.EqualFold(filepath.Ext(path), ".toml") {
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

	cfg.applyDefaults()
	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

func (c *Config) applyDefaults() {
	if c.Controller.Addr == "" {
		c.Controller.Addr = DefaultControllerAddr
	}

	if c.Agent.BackoffStart <= 0 {
		c.Agent.BackoffStart = DefaultBackoffStart
	}
	if c.Agent.BackoffMax <= 0 {
		c.Agent.BackoffMax = DefaultBackoffMax
	}
	if c.Agent.BackoffFactor <= 0 {
		c.Agent.BackoffFactor = DefaultBackoffFactor
	}
	if c.Agent.MaxQueueSize <= 0 {
		c.Agent.MaxQueueSize = DefaultMaxQueueSize
	}
	if c.Agent.DeliveryTimeout <= 0 {
		c.Agent.DeliveryTimeout = DefaultDeliveryTimeout
	}
	if c.Agent.ShutdownTimeout <= 0 {
		c.Agent.ShutdownTimeout = DefaultShutdownTimeout
	}

	if c.Quota.Time <= 0 {
		c.Quota.Time = DefaultQuotaTime
	}
	if c.Quota.Count <= 0 {
		c.Quota.Count = DefaultQuotaCount
	}

	if c.Server.GRPCAddr == "" {
		c.Server.GRPCAddr = DefaultGRPCAddr
	}
	if c.Server.HTTPAddr == "" {
		c.Server.HTTPAddr = DefaultHTTPAddr
	}
	if c.Server.WaitTimeout <= 0 {
		c.Server.WaitTimeout = DefaultWaitTimeout
	}

	if c.Auth.TokenTTL <= 0 {
		c.Auth.TokenTTL = DefaultTokenTTL
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}
}

// ValidateAgent checks the sections an agent needs.
// Returns an error describing the first validation failure encountered.
func (c *Config) ValidateAgent() error {
	if c.Debuggee.Project == "" {
		return fmt.Errorf("debuggee.project is required")
	}
	if c.Debuggee.Service == "" {
		return fmt.Errorf("debuggee.service is required")
	}
	if c.Controller.Addr == "" {
		return fmt.Errorf("controller.addr is required")
	}
	if c.Agent.BackoffMax < c.Agent.BackoffStart {
		return fmt.Errorf("agent.backoff_max (%s) is shorter than agent.backoff_start (%s)",
			c.Agent.BackoffMax, c.Agent.BackoffStart)
	}
	if c.Agent.BackoffFactor < 1 {
		return fmt.Errorf("agent.backoff_multiplier must be at least 1, got %v", c.Agent.BackoffFactor)
	}
	return c.validateLogging()
}

// ValidateServer checks the sections the controller needs.
// Returns an error describing the first validation failure encountered.
func (c *Config) ValidateServer() error {
	if c.Server.GRPCAddr == "" {
		return fmt.Errorf("server.grpc_addr is required")
	}
	if c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required")
	}
	if c.Auth.JWTSecret != "" && len(c.Auth.JWTSecret) < MinJWTSecretLength {
		return fmt.Errorf("auth.jwt_secret must be at least %d bytes", MinJWTSecretLength)
	}
	return c.validateLogging()
}

func (c *Config) validateLogging() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format %q is not one of text, json", c.Logging.Format)
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
		{"agent.backoff_start", cfg.Agent.BackoffStartRaw, &cfg.Agent.BackoffStart},
		{"agent.backoff_max", cfg.Agent.BackoffMaxRaw, &cfg.Agent.BackoffMax},
		{"agent.delivery_timeout", cfg.Agent.DeliveryTimeoutRaw, &cfg.Agent.DeliveryTimeout},
		{"agent.shutdown_timeout", cfg.Agent.ShutdownTimeoutRaw, &cfg.Agent.ShutdownTimeout},
		{"quota.time", cfg.Quota.TimeRaw, &cfg.Quota.Time},
		{"server.wait_timeout", cfg.Server.WaitTimeoutRaw, &cfg.Server.WaitTimeout},
		{"auth.token_ttl", cfg.Auth.TokenTTLRaw, &cfg.Auth.TokenTTL},
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
