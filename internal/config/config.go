// Package config loads and validates the CacheBolt YAML configuration file.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Backend identifies which object-store variant a Config selects.
type Backend string

const (
	BackendGCS   Backend = "gcs"
	BackendS3    Backend = "s3"
	BackendAzure Backend = "azure"
	BackendLocal Backend = "local"
)

// PathRule maps a compiled regex against the request path to a latency
// threshold, evaluated in declaration order (first match wins).
type PathRule struct {
	Pattern      string `yaml:"pattern"`
	MaxLatencyMs uint32 `yaml:"max_latency_ms"`

	compiled *regexp.Regexp
}

// Compiled returns the regex compiled at Load time, or nil if Load has
// not compiled this rule.
func (r *PathRule) Compiled() *regexp.Regexp {
	return r.compiled
}

// LatencyFailover holds per-URI circuit-breaker thresholds.
type LatencyFailover struct {
	DefaultMaxLatencyMs uint32     `yaml:"default_max_latency_ms"`
	PathRules           []PathRule `yaml:"path_rules"`
}

// Cache holds memory-cache and refresh policy.
type Cache struct {
	MemoryThreshold   uint8  `yaml:"memory_threshold"`
	RefreshPercentage uint8  `yaml:"refresh_percentage"`
	TTLSeconds        uint32 `yaml:"ttl_seconds"`
}

// Config is the top-level CacheBolt configuration.
type Config struct {
	AppID                    string          `yaml:"app_id"`
	ProxyPort                uint16          `yaml:"proxy_port"`
	AdminPort                uint16          `yaml:"admin_port"`
	MaxConcurrentRequests    uint32          `yaml:"max_concurrent_requests"`
	DownstreamBaseURL        string          `yaml:"downstream_base_url"`
	DownstreamTimeoutSecs    uint32          `yaml:"downstream_timeout_secs"`
	StorageBackend           Backend         `yaml:"storage_backend"`
	GCSBucket                string          `yaml:"gcs_bucket"`
	S3Bucket                 string          `yaml:"s3_bucket"`
	AzureContainer           string          `yaml:"azure_container"`
	LocalPath                string          `yaml:"local_path"`
	Cache                    Cache           `yaml:"cache"`
	LatencyFailover          LatencyFailover `yaml:"latency_failover"`
	IgnoredHeaders           []string        `yaml:"ignored_headers"`
	StorageBackendFailures   uint32          `yaml:"storage_backend_failures"`
	BackendRetryIntervalSecs uint32          `yaml:"backend_retry_interval_secs"`
}

// DownstreamTimeout returns DownstreamTimeoutSecs as a time.Duration.
func (c Config) DownstreamTimeout() time.Duration {
	return time.Duration(c.DownstreamTimeoutSecs) * time.Second
}

// TTL returns Cache.TTLSeconds as a time.Duration.
func (c Config) TTL() time.Duration {
	return time.Duration(c.Cache.TTLSeconds) * time.Second
}

// BackendRetryInterval returns BackendRetryIntervalSecs as a time.Duration.
func (c Config) BackendRetryInterval() time.Duration {
	return time.Duration(c.BackendRetryIntervalSecs) * time.Second
}

// IgnoredHeaderSet returns IgnoredHeaders as a lowercased lookup set.
func (c Config) IgnoredHeaderSet() map[string]struct{} {
	set := make(map[string]struct{}, len(c.IgnoredHeaders))
	for _, h := range c.IgnoredHeaders {
		set[strings.ToLower(h)] = struct{}{}
	}
	return set
}

func defaults() Config {
	return Config{
		ProxyPort:             3000,
		AdminPort:             3001,
		MaxConcurrentRequests: 64,
		DownstreamTimeoutSecs: 10,
		StorageBackend:        BackendLocal,
		Cache: Cache{
			MemoryThreshold:   85,
			RefreshPercentage: 0,
			TTLSeconds:        60,
		},
		LatencyFailover: LatencyFailover{
			DefaultMaxLatencyMs: 2000,
		},
		StorageBackendFailures:   5,
		BackendRetryIntervalSecs: 30,
	}
}

// Load reads and parses the YAML file at path, applying defaults for
// unset fields and compiling path_rules. Returns an error (ConfigInvalid
// in spec terms) on any parse or validation failure.
func Load(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}

	if err := cfg.validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config %s: %w", path, err)
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.AppID == "" {
		return fmt.Errorf("app_id is required")
	}
	if c.DownstreamBaseURL == "" {
		return fmt.Errorf("downstream_base_url is required")
	}
	c.DownstreamBaseURL = strings.TrimRight(c.DownstreamBaseURL, "/")

	switch c.StorageBackend {
	case BackendGCS:
		if c.GCSBucket == "" {
			return fmt.Errorf("gcs_bucket is required when storage_backend=gcs")
		}
	case BackendS3:
		if c.S3Bucket == "" {
			return fmt.Errorf("s3_bucket is required when storage_backend=s3")
		}
	case BackendAzure:
		if c.AzureContainer == "" {
			return fmt.Errorf("azure_container is required when storage_backend=azure")
		}
	case BackendLocal:
		if c.LocalPath == "" {
			return fmt.Errorf("local_path is required when storage_backend=local")
		}
	default:
		return fmt.Errorf("unknown storage_backend %q", c.StorageBackend)
	}

	if c.Cache.MemoryThreshold == 0 || c.Cache.MemoryThreshold > 100 {
		return fmt.Errorf("cache.memory_threshold must be in (0, 100]")
	}
	if c.Cache.RefreshPercentage > 100 {
		return fmt.Errorf("cache.refresh_percentage must be in [0, 100]")
	}

	for i := range c.LatencyFailover.PathRules {
		r := &c.LatencyFailover.PathRules[i]
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return fmt.Errorf("latency_failover.path_rules[%d].pattern: %w", i, err)
		}
		r.compiled = re
	}

	return nil
}
