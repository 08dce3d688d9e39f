// Package config provides configuration management for the enrichment
// service. Service settings come from YAML; per-query module settings come
// from the misp-modules request (see ModuleConfig).
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all service configuration.
type Config struct {
	Service    ServiceConfig   `yaml:"service"`
	Server     ServerConfig    `yaml:"server"`
	Redis      RedisConfig     `yaml:"redis"`
	RateLimit  RateLimitConfig `yaml:"rate_limit"`
	Analysis   AnalysisConfig  `yaml:"analysis"`
	VirusTotal ProviderConfig  `yaml:"virustotal"`
	MISP       ProviderConfig  `yaml:"misp"`
	Logging    LoggingConfig   `yaml:"logging"`
	Tracing    TracingConfig   `yaml:"tracing"`
	Metrics    MetricsConfig   `yaml:"metrics"`
}

// ServiceConfig identifies the running service in logs and traces.
type ServiceConfig struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Environment string `yaml:"environment"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	MaxBodyBytes    int64         `yaml:"max_body_bytes"`
	// TrustProxyHeaders takes the client address from X-Forwarded-For and
	// X-Real-IP. Enable only behind a proxy that sets them.
	TrustProxyHeaders bool `yaml:"trust_proxy_headers"`
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr        string `yaml:"addr"`
	PasswordEnv string `yaml:"password_env"`
	DB          int    `yaml:"db"`
	PoolSize    int    `yaml:"pool_size"`
}

// Password resolves the Redis password from the configured env var.
func (r RedisConfig) Password() string {
	if r.PasswordEnv == "" {
		return ""
	}
	return os.Getenv(r.PasswordEnv)
}

// RateLimitConfig holds the query endpoint rate limit.
type RateLimitConfig struct {
	Enabled           bool          `yaml:"enabled"`
	RequestsPerWindow int           `yaml:"requests_per_window"`
	Window            time.Duration `yaml:"window"`
	IncludeHeaders    bool          `yaml:"include_headers"`
}

// AnalysisConfig holds NSX Defender endpoint settings. Regions are queried in
// order; the primary receives submissions and report fetches.
type AnalysisConfig struct {
	Regions   []RegionConfig `yaml:"regions"`
	Primary   string         `yaml:"primary"`
	Timeout   time.Duration  `yaml:"timeout"`
	UserAgent string         `yaml:"user_agent"`
}

// RegionConfig binds a region name to its analysis API URL.
type RegionConfig struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

// ProviderConfig holds connection settings for an optional provider. Keys
// arrive with each query, so only transport settings live here.
type ProviderConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, console
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled      bool    `yaml:"enabled"`
	OTLPEndpoint string  `yaml:"otlp_endpoint"`
	SamplingRate float64 `yaml:"sampling_rate"`
}

// MetricsConfig holds Prometheus settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:        "nsxenrich",
			Version:     "0.2.0",
			Environment: "development",
		},
		Server: ServerConfig{
			Port:            6666,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    5 * time.Minute,
			ShutdownTimeout: 10 * time.Second,
			MaxBodyBytes:    64 << 20,
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			DB:       0,
			PoolSize: 10,
		},
		RateLimit: RateLimitConfig{
			Enabled:           false,
			RequestsPerWindow: 60,
			Window:            time.Minute,
			IncludeHeaders:    true,
		},
		Analysis: AnalysisConfig{
			Regions: []RegionConfig{
				{Name: "westus", URL: "https://analysis.lastline.com"},
				{Name: "nlemea", URL: "https://analysis.nl.emea.lastline.com"},
			},
			Primary:   "westus",
			Timeout:   60 * time.Second,
			UserAgent: "nsxenrich/0.2",
		},
		VirusTotal: ProviderConfig{
			BaseURL: "https://www.virustotal.com",
			Timeout: 60 * time.Second,
		},
		MISP: ProviderConfig{
			Timeout: 30 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:      false,
			OTLPEndpoint: "localhost:4317",
			SamplingRate: 1.0,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}

// Validate checks settings that would otherwise fail at query time.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}

	if len(c.Analysis.Regions) == 0 {
		errs = append(errs, errors.New("analysis.regions must not be empty"))
	}
	primaryFound := false
	seen := make(map[string]bool)
	for _, r := range c.Analysis.Regions {
		if r.Name == "" || r.URL == "" {
			errs = append(errs, fmt.Errorf("analysis region %q needs a name and url", r.Name))
		}
		if seen[r.Name] {
			errs = append(errs, fmt.Errorf("duplicate analysis region %q", r.Name))
		}
		seen[r.Name] = true
		if r.Name == c.Analysis.Primary {
			primaryFound = true
		}
	}
	if !primaryFound {
		errs = append(errs, fmt.Errorf("analysis.primary %q is not a configured region", c.Analysis.Primary))
	}

	if c.RateLimit.Enabled && (c.RateLimit.RequestsPerWindow <= 0 || c.RateLimit.Window <= 0) {
		errs = append(errs, errors.New("rate_limit needs a positive requests_per_window and window"))
	}

	return errors.Join(errs...)
}
