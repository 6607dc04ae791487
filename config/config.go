// Package config loads the engine configuration from YAML with environment
// overrides for deploy-time settings.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// ProviderLimit is a per-provider refresh call budget.
type ProviderLimit struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// Config is the recognized configuration surface of the refresh engine.
// Durations are strings in Go syntax ("30s", "10m").
type Config struct {
	Scheduler struct {
		PollInterval  string `yaml:"poll_interval"`
		RefreshWindow string `yaml:"refresh_window"`
		CallTimeout   string `yaml:"call_timeout"`
	} `yaml:"scheduler"`

	Limits struct {
		GlobalInflight  int64                    `yaml:"global_inflight"`
		DefaultProvider ProviderLimit            `yaml:"default_provider"`
		PerProvider     map[string]ProviderLimit `yaml:"per_provider"`

		// Distributed switches per-provider limiting to a shared fixed
		// window in redis, so multiple scheduler replicas respect one
		// provider quota together.
		Distributed struct {
			MaxPerWindow int    `yaml:"max_per_window"`
			Window       string `yaml:"window"`
		} `yaml:"distributed"`
	} `yaml:"limits"`

	Backoff struct {
		Base   string  `yaml:"base"`
		Factor float64 `yaml:"factor"`
		Max    string  `yaml:"max"`
	} `yaml:"backoff"`

	Storage struct {
		Mongo struct {
			URI      string `yaml:"uri"`
			Database string `yaml:"database"`
		} `yaml:"mongo"`
	} `yaml:"storage"`

	Redis struct {
		Addr         string `yaml:"addr"`
		DB           int    `yaml:"db"`
		Prefix       string `yaml:"prefix"`
		EventChannel string `yaml:"event_channel"`
	} `yaml:"redis"`
}

// Load reads the YAML file at path (optional: an empty path or missing file
// yields defaults), then applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	cfg.applyEnv()
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	setStr := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setStr(&c.Storage.Mongo.URI, "CONNECTIONS_MONGO_URI")
	setStr(&c.Storage.Mongo.Database, "CONNECTIONS_MONGO_DATABASE")
	setStr(&c.Redis.Addr, "CONNECTIONS_REDIS_ADDR")
	setStr(&c.Scheduler.PollInterval, "CONNECTIONS_POLL_INTERVAL")
	setStr(&c.Scheduler.RefreshWindow, "CONNECTIONS_REFRESH_WINDOW")
	if v := os.Getenv("CONNECTIONS_GLOBAL_INFLIGHT"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.Limits.GlobalInflight = n
		}
	}
}

func (c *Config) applyDefaults() {
	if c.Scheduler.PollInterval == "" {
		c.Scheduler.PollInterval = "30s"
	}
	if c.Scheduler.RefreshWindow == "" {
		c.Scheduler.RefreshWindow = "10m"
	}
	if c.Scheduler.CallTimeout == "" {
		c.Scheduler.CallTimeout = "30s"
	}
	if c.Limits.GlobalInflight <= 0 {
		c.Limits.GlobalInflight = 16
	}
	if c.Backoff.Base == "" {
		c.Backoff.Base = "1s"
	}
	if c.Backoff.Factor <= 0 {
		c.Backoff.Factor = 2
	}
	if c.Backoff.Max == "" {
		c.Backoff.Max = "60s"
	}
	if c.Storage.Mongo.Database == "" {
		c.Storage.Mongo.Database = "connections"
	}
	if c.Limits.Distributed.Window == "" {
		c.Limits.Distributed.Window = "1s"
	}
}

func (c *Config) validate() error {
	for name, v := range map[string]string{
		"scheduler.poll_interval":   c.Scheduler.PollInterval,
		"scheduler.refresh_window":  c.Scheduler.RefreshWindow,
		"scheduler.call_timeout":    c.Scheduler.CallTimeout,
		"backoff.base":              c.Backoff.Base,
		"backoff.max":               c.Backoff.Max,
		"limits.distributed.window": c.Limits.Distributed.Window,
	} {
		if _, err := time.ParseDuration(v); err != nil {
			return fmt.Errorf("invalid %s %q: %w", name, v, err)
		}
	}
	// A factor below 1 would make each retry wait *shorter* than the last.
	if c.Backoff.Factor < 1 {
		return fmt.Errorf("invalid backoff.factor %v: must be at least 1", c.Backoff.Factor)
	}
	return nil
}

func (c *Config) duration(v string) time.Duration {
	d, _ := time.ParseDuration(v)
	return d
}

// PollInterval returns the parsed poll interval.
func (c *Config) PollInterval() time.Duration { return c.duration(c.Scheduler.PollInterval) }

// RefreshWindow returns the parsed refresh lead-time window.
func (c *Config) RefreshWindow() time.Duration { return c.duration(c.Scheduler.RefreshWindow) }

// CallTimeout returns the parsed per-call timeout.
func (c *Config) CallTimeout() time.Duration { return c.duration(c.Scheduler.CallTimeout) }

// BackoffBase returns the parsed backoff base delay.
func (c *Config) BackoffBase() time.Duration { return c.duration(c.Backoff.Base) }

// BackoffMax returns the parsed backoff cap.
func (c *Config) BackoffMax() time.Duration { return c.duration(c.Backoff.Max) }

// DistributedWindow returns the parsed shared rate-limit window.
func (c *Config) DistributedWindow() time.Duration {
	return c.duration(c.Limits.Distributed.Window)
}
