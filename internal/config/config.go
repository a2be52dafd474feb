package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Scope modes
const (
	ScopeHost        = "host"
	ScopeRegistrable = "registrable"
)

// Defaults for a crawl run
const (
	DefaultMaxDepth         = 2
	DefaultOutputPath       = "domain_urls.csv"
	DefaultDelaySeconds     = 1.0
	DefaultUserAgent        = "Mozilla/5.0 (compatible; DomainCrawler/1.0)"
	DefaultWorkers          = 1
	DefaultRequestTimeoutMs = 30000
	DefaultMaxBodyBytes     = 10 * 1024 * 1024
	DefaultRedisTTLSeconds  = 24 * 60 * 60
)

// Config holds all runtime configuration parameters of one crawl.
// It is read-only once Validate has succeeded.
type Config struct {
	SeedURL           string  `json:"seed_url" yaml:"seed_url"`
	MaxDepth          int     `json:"max_depth" yaml:"max_depth"`
	DelaySeconds      float64 `json:"delay_seconds" yaml:"delay_seconds"`
	RespectRobots     bool    `json:"respect_robots" yaml:"respect_robots"`
	UserAgent         string  `json:"user_agent" yaml:"user_agent"`
	OutputPath        string  `json:"output_path" yaml:"output_path"`
	Workers           int     `json:"workers" yaml:"workers"`
	RequestTimeoutMs  int     `json:"request_timeout_ms" yaml:"request_timeout_ms"`
	MaxRunTimeSeconds int     `json:"max_run_time_seconds" yaml:"max_run_time_seconds"`
	Retries           int     `json:"retries" yaml:"retries"`
	RecordFailures    bool    `json:"record_failures" yaml:"record_failures"`
	FrontierCapacity  int     `json:"frontier_capacity" yaml:"frontier_capacity"`
	MaxHosts          int     `json:"max_hosts" yaml:"max_hosts"`
	MaxBodyBytes      int     `json:"max_body_bytes" yaml:"max_body_bytes"`
	ScopeMode         string  `json:"scope_mode" yaml:"scope_mode"`
	DBPath            string  `json:"db_path" yaml:"db_path"`
	RedisAddr         string  `json:"redis_addr" yaml:"redis_addr"`
	RedisTTLSeconds   int     `json:"redis_ttl_seconds" yaml:"redis_ttl_seconds"`
	RunID             string  `json:"run_id" yaml:"run_id"`
	MetricsPath       string  `json:"metrics_path" yaml:"metrics_path"`
}

// Default returns a Config populated with every default value
func Default() Config {
	return Config{
		MaxDepth:         DefaultMaxDepth,
		DelaySeconds:     DefaultDelaySeconds,
		RespectRobots:    true,
		UserAgent:        DefaultUserAgent,
		OutputPath:       DefaultOutputPath,
		Workers:          DefaultWorkers,
		RequestTimeoutMs: DefaultRequestTimeoutMs,
		MaxBodyBytes:     DefaultMaxBodyBytes,
		ScopeMode:        ScopeHost,
		RedisTTLSeconds:  DefaultRedisTTLSeconds,
	}
}

// LoadConfig reads configuration from a JSON or YAML file on top of the
// defaults. Keys missing from the file keep their default value.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &Error{Field: "config file", Err: err}
	}

	cfg := Default()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &cfg)
	default:
		err = json.Unmarshal(data, &cfg)
	}
	if err != nil {
		return nil, &Error{Field: "config file", Err: fmt.Errorf("failed to parse %s: %w", path, err)}
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

// applyDefaults fills fields whose zero value is never meaningful
func applyDefaults(cfg *Config) {
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.OutputPath == "" {
		cfg.OutputPath = DefaultOutputPath
	}
	if cfg.Workers == 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.RequestTimeoutMs == 0 {
		cfg.RequestTimeoutMs = DefaultRequestTimeoutMs
	}
	if cfg.ScopeMode == "" {
		cfg.ScopeMode = ScopeHost
	}
	if cfg.RedisTTLSeconds == 0 {
		cfg.RedisTTLSeconds = DefaultRedisTTLSeconds
	}
}

// Validate checks that required fields are present and values are sensible
func (c *Config) Validate() error {
	if c.SeedURL == "" {
		return fieldError("seed_url", "start url is required")
	}
	seed, err := url.Parse(c.SeedURL)
	if err != nil {
		return &Error{Field: "seed_url", Err: err}
	}
	if seed.Scheme != "http" && seed.Scheme != "https" {
		return fieldError("seed_url", "scheme must be http or https, got %q", seed.Scheme)
	}
	if seed.Hostname() == "" {
		return fieldError("seed_url", "%q has no host", c.SeedURL)
	}
	if c.MaxDepth < -1 {
		return fieldError("max_depth", "must be >= -1, got %d", c.MaxDepth)
	}
	if c.DelaySeconds < 0 {
		return fieldError("delay", "must be >= 0, got %v", c.DelaySeconds)
	}
	if c.Workers < 1 {
		return fieldError("workers", "must be >= 1, got %d", c.Workers)
	}
	if c.RequestTimeoutMs < 1 {
		return fieldError("request_timeout_ms", "must be >= 1, got %d", c.RequestTimeoutMs)
	}
	if c.MaxRunTimeSeconds < 0 {
		return fieldError("max_run_time_seconds", "must be >= 0, got %d", c.MaxRunTimeSeconds)
	}
	if c.Retries < 0 {
		return fieldError("retries", "must be >= 0, got %d", c.Retries)
	}
	if c.FrontierCapacity < 0 {
		return fieldError("frontier_capacity", "must be >= 0, got %d", c.FrontierCapacity)
	}
	if c.MaxHosts < 0 {
		return fieldError("max_hosts", "must be >= 0, got %d", c.MaxHosts)
	}
	if c.MaxBodyBytes < 0 {
		return fieldError("max_body_bytes", "must be >= 0, got %d", c.MaxBodyBytes)
	}
	if c.ScopeMode != ScopeHost && c.ScopeMode != ScopeRegistrable {
		return fieldError("scope_mode", "must be %q or %q, got %q", ScopeHost, ScopeRegistrable, c.ScopeMode)
	}
	return nil
}

// Delay is the minimum gap between two requests to the same host
func (c *Config) Delay() time.Duration {
	return time.Duration(c.DelaySeconds * float64(time.Second))
}

// RequestTimeout bounds every single fetch
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutMs) * time.Millisecond
}

// MaxRunTime bounds the whole crawl; zero means no bound
func (c *Config) MaxRunTime() time.Duration {
	return time.Duration(c.MaxRunTimeSeconds) * time.Second
}

// RedisTTL is how long shared dedup keys survive
func (c *Config) RedisTTL() time.Duration {
	return time.Duration(c.RedisTTLSeconds) * time.Second
}

// Unbounded reports whether max depth is disabled
func (c *Config) Unbounded() bool {
	return c.MaxDepth == -1
}
