// Package config provides configuration types and defaults for the node
// type registry service.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/AgentRuntimeProtocol/ARP-Template-NodeRegistry/internal/log"
	"github.com/AgentRuntimeProtocol/ARP-Template-NodeRegistry/internal/tracing"
)

// EnvBearerToken is the environment variable consulted for the API bearer
// token when auth.bearer_token is not configured.
const EnvBearerToken = "ARP_REGISTRY_TOKEN"

// Config holds all configuration options for the registry service.
type Config struct {
	// Addr is the listen address. Use ":0" to pick a free port.
	Addr string `mapstructure:"addr"`

	// ReadTimeout bounds how long reading a request may take.
	ReadTimeout time.Duration `mapstructure:"read_timeout"`

	// WriteTimeout bounds how long writing a response may take. Zero
	// disables it, which keeps event streams open indefinitely.
	WriteTimeout time.Duration `mapstructure:"write_timeout"`

	// ServiceName is reported by the version endpoint and in traces.
	ServiceName string `mapstructure:"service_name"`

	Auth    AuthConfig     `mapstructure:"auth"`
	Log     LogConfig      `mapstructure:"log"`
	Tracing tracing.Config `mapstructure:"tracing"`
	Cache   CacheConfig    `mapstructure:"cache"`
	Seed    SeedConfig     `mapstructure:"seed"`

	// Flags toggles feature flags by name.
	Flags map[string]bool `mapstructure:"flags"`
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	// BearerToken protects the node type endpoints. When empty, the
	// ARP_REGISTRY_TOKEN environment variable is consulted; when that is
	// empty too, the API runs in dev-insecure mode.
	BearerToken string `mapstructure:"bearer_token"`
}

// Token resolves the effective bearer token. ok is false when neither
// the config nor the environment provides one and the API must run in
// dev-insecure mode.
func (a AuthConfig) Token() (token string, ok bool) {
	if a.BearerToken != "" {
		return a.BearerToken, true
	}
	if tok := os.Getenv(EnvBearerToken); tok != "" {
		return tok, true
	}
	return "", false
}

// LogConfig holds logging settings.
type LogConfig struct {
	// Level is the minimum level to emit: debug, info, warn, or error.
	Level string `mapstructure:"level"`

	// Path is the log file. Empty logs to stderr.
	Path string `mapstructure:"path"`
}

// CacheConfig holds latest-version cache settings.
type CacheConfig struct {
	// LatestTTL bounds how long a cached latest-version resolution may
	// outlive the publish that changed it.
	LatestTTL time.Duration `mapstructure:"latest_ttl"`
}

// SeedConfig holds seed manifest settings.
type SeedConfig struct {
	// File is a YAML manifest of node types published at startup.
	File string `mapstructure:"file"`

	// Watch re-applies the manifest when the file changes.
	Watch bool `mapstructure:"watch"`
}

// DefaultTracesFilePath returns the default path for trace file export,
// or empty string if the home directory is unavailable.
func DefaultTracesFilePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "arp-node-registry", "traces", "traces.jsonl")
}

// Defaults returns a Config with sensible default values.
func Defaults() Config {
	return Config{
		Addr:         "localhost:8080",
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0,
		ServiceName:  "arp-template-node-registry",
		Log: LogConfig{
			Level: "info",
			Path:  "",
		},
		Tracing: tracing.DefaultConfig(),
		Cache: CacheConfig{
			LatestTTL: 30 * time.Second,
		},
		Seed: SeedConfig{
			File:  "",
			Watch: false,
		},
		Flags: map[string]bool{
			"latest-cache": false,
		},
	}
}

// Validate checks the whole configuration for errors.
func Validate(cfg Config) error {
	if err := ValidateLog(cfg.Log); err != nil {
		return err
	}
	if err := ValidateTracing(cfg.Tracing); err != nil {
		return err
	}
	if err := ValidateCache(cfg.Cache); err != nil {
		return err
	}
	return ValidateSeed(cfg.Seed)
}

// ValidateLog checks logging configuration for errors.
// Returns nil if the configuration is valid (empty values use defaults).
func ValidateLog(lc LogConfig) error {
	if _, err := log.ParseLevel(lc.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	return nil
}

// ValidateTracing checks tracing configuration for errors.
// Returns nil if the configuration is valid (empty values use defaults).
func ValidateTracing(tc tracing.Config) error {
	if tc.SampleRate < 0.0 || tc.SampleRate > 1.0 {
		return fmt.Errorf("tracing.sample_rate must be between 0.0 and 1.0, got %v", tc.SampleRate)
	}

	if tc.Exporter != "" {
		switch tc.Exporter {
		case "none", "file", "stdout", "otlp":
			// Valid
		default:
			return fmt.Errorf("tracing.exporter must be \"none\", \"file\", \"stdout\", or \"otlp\", got %q", tc.Exporter)
		}
	}

	// Path requirements only matter when tracing is on.
	if tc.Enabled {
		if tc.Exporter == "file" && tc.FilePath == "" {
			return fmt.Errorf("tracing.file_path is required when exporter is \"file\"")
		}
		if tc.Exporter == "otlp" && tc.OTLPEndpoint == "" {
			return fmt.Errorf("tracing.otlp_endpoint is required when exporter is \"otlp\"")
		}
	}

	return nil
}

// ValidateCache checks cache configuration for errors.
func ValidateCache(cc CacheConfig) error {
	if cc.LatestTTL < 0 {
		return fmt.Errorf("cache.latest_ttl must not be negative, got %v", cc.LatestTTL)
	}
	return nil
}

// ValidateSeed checks seed configuration for errors.
func ValidateSeed(sc SeedConfig) error {
	if sc.Watch && sc.File == "" {
		return fmt.Errorf("seed.watch requires seed.file to be set")
	}
	return nil
}

// DefaultConfigTemplate returns the default config as a YAML string with comments.
func DefaultConfigTemplate() string {
	return `# ARP Node Registry Configuration

# Listen address for the HTTP API
addr: localhost:8080

# Request timeouts. write_timeout of 0 keeps /v1/events streams open.
read_timeout: 15s
write_timeout: 0s

# Service name reported by /v1/version and attached to traces
service_name: arp-template-node-registry

# API authentication for the /v1/node-types endpoints
# When bearer_token is empty the ARP_REGISTRY_TOKEN environment variable
# is used; with neither set the service runs in dev-insecure mode.
auth:
  # bearer_token: change-me

# Logging
log:
  level: info   # debug, info, warn, error
  # path: /var/log/arp-node-registry.log   # empty logs to stderr

# Distributed tracing
# tracing:
#   enabled: false                 # Enable/disable tracing (default: false)
#   exporter: file                 # Export backend: none, file, stdout, otlp
#   file_path: ~/.config/arp-node-registry/traces/traces.jsonl
#   otlp_endpoint: localhost:4317  # OTLP collector endpoint (for otlp exporter)
#   sample_rate: 1.0               # Trace sampling rate 0.0-1.0
#
# Example: send traces to Jaeger via OTLP
# tracing:
#   enabled: true
#   exporter: otlp
#   otlp_endpoint: jaeger.internal:4317
#   sample_rate: 0.1

# Latest-version resolution cache (only active with the latest-cache flag)
cache:
  latest_ttl: 30s

# Seed manifest published at startup
# seed:
#   file: ./node_types.yaml
#   watch: true   # re-apply when the manifest changes

# Feature flags
flags:
  latest-cache: false
`
}

// WriteDefaultConfig creates a config file at the given path with default
// settings and comments. Creates the parent directory if it doesn't exist.
func WriteDefaultConfig(configPath string) error {
	log.Debug(log.CatConfig, "Writing default config", "path", configPath)

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		log.ErrorErr(log.CatConfig, "Failed to create config directory", err, "dir", dir)
		return fmt.Errorf("creating config directory: %w", err)
	}

	if err := os.WriteFile(configPath, []byte(DefaultConfigTemplate()), 0o600); err != nil {
		log.ErrorErr(log.CatConfig, "Failed to write config file", err, "path", configPath)
		return fmt.Errorf("writing config file: %w", err)
	}

	log.Info(log.CatConfig, "Created default config", "path", configPath)
	return nil
}
