// Package config loads Nova Cat runtime configuration from novacat.yml with
// environment variable overrides. Configuration stays minimal: connection
// details and workflow bounds, no domain behavior.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath is the config file loaded when none is specified.
const DefaultPath = "novacat.yml"

// NovaCatConfig is the top-level novacat.yml configuration.
type NovaCatConfig struct {
	Version  string          `yaml:"version"`
	Redis    RedisConfig     `yaml:"redis"`
	Workflow *WorkflowConfig `yaml:"workflow,omitempty"`
	Metrics  *MetricsConfig  `yaml:"metrics,omitempty"`
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password,omitempty"`
	DB       int    `yaml:"db,omitempty"`
}

// WorkflowConfig bounds coordinator executions.
type WorkflowConfig struct {
	AcquireTimeout  time.Duration `yaml:"acquire_timeout,omitempty"`  // default 5m
	ValidateTimeout time.Duration `yaml:"validate_timeout,omitempty"` // default 1m
	LockTTL         time.Duration `yaml:"lock_ttl,omitempty"`         // default 1h
}

// MetricsConfig controls the optional Prometheus endpoint.
type MetricsConfig struct {
	Addr string `yaml:"addr,omitempty"` // e.g. ":9090"; empty disables the endpoint
}

// Load reads and validates configuration from path, then applies
// environment overrides (NOVACAT_REDIS_ADDR, NOVACAT_REDIS_PASSWORD,
// NOVACAT_REDIS_DB). A missing file is not an error when overrides supply
// the Redis address.
func Load(path string) (*NovaCatConfig, error) {
	if path == "" {
		path = DefaultPath
	}

	cfg := &NovaCatConfig{Version: "1"}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	case os.IsNotExist(err):
		// Fall through to env overrides.
	default:
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *NovaCatConfig) {
	if addr := os.Getenv("NOVACAT_REDIS_ADDR"); addr != "" {
		cfg.Redis.Addr = addr
	}
	if password := os.Getenv("NOVACAT_REDIS_PASSWORD"); password != "" {
		cfg.Redis.Password = password
	}
	if db := os.Getenv("NOVACAT_REDIS_DB"); db != "" {
		if n, err := strconv.Atoi(db); err == nil {
			cfg.Redis.DB = n
		}
	}
}

// Validate checks required fields and bounds.
func (c *NovaCatConfig) Validate() error {
	if c.Redis.Addr == "" {
		return fmt.Errorf("redis.addr is required (novacat.yml or NOVACAT_REDIS_ADDR)")
	}
	if c.Redis.DB < 0 {
		return fmt.Errorf("redis.db must be >= 0, got %d", c.Redis.DB)
	}
	if c.Workflow != nil {
		if c.Workflow.AcquireTimeout < 0 {
			return fmt.Errorf("workflow.acquire_timeout cannot be negative")
		}
		if c.Workflow.ValidateTimeout < 0 {
			return fmt.Errorf("workflow.validate_timeout cannot be negative")
		}
		if c.Workflow.LockTTL < 0 {
			return fmt.Errorf("workflow.lock_ttl cannot be negative")
		}
	}
	return nil
}

// WorkflowOrDefault returns the workflow bounds, zero-valued when absent so
// the coordinator's own defaults apply.
func (c *NovaCatConfig) WorkflowOrDefault() WorkflowConfig {
	if c.Workflow == nil {
		return WorkflowConfig{}
	}
	return *c.Workflow
}
