// Package config loads the orderrouter YAML configuration with defaults
// and environment overrides for service endpoints.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full orderrouter configuration
type Config struct {
	Router    RouterConfig    `yaml:"router"`
	Risk      RiskConfig      `yaml:"risk"`
	Guardian  GuardianConfig  `yaml:"guardian"`
	Broker    BrokerConfig    `yaml:"broker"`
	Execution ExecutionConfig `yaml:"execution"`
	Feed      FeedConfig      `yaml:"feed"`
	Server    ServerConfig    `yaml:"server"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Redis     RedisConfig     `yaml:"redis"`
}

// RouterConfig holds orchestrator settings
type RouterConfig struct {
	PortfolioValue float64 `yaml:"portfolio_value"`
}

// RiskConfig holds risk gateway settings
type RiskConfig struct {
	URL                string  `yaml:"url"`
	MaxAttempts        int     `yaml:"max_attempts"`
	ValidateTimeoutSec int     `yaml:"validate_timeout_sec"`
	ProbeTimeoutSec    int     `yaml:"probe_timeout_sec"`
	MaxDrawdown        float64 `yaml:"max_drawdown"`
}

// GuardianConfig holds pause signal settings
type GuardianConfig struct {
	DashboardURL string `yaml:"dashboard_url"`
	TimeoutSec   int    `yaml:"timeout_sec"`
}

// BrokerConfig holds placement adapter settings
type BrokerConfig struct {
	URL             string `yaml:"url"`   // empty selects the paper broker
	Paper           bool   `yaml:"paper"` // force paper even with a URL set
	PlaceTimeoutSec int    `yaml:"place_timeout_sec"`
}

// ExecutionConfig holds slicer settings
type ExecutionConfig struct {
	PaceMs int `yaml:"pace_ms"`
}

// FeedConfig holds order book feed settings
type FeedConfig struct {
	URL     string   `yaml:"url"` // empty disables the live feed
	Symbols []string `yaml:"symbols"`
}

// ServerConfig holds the HTTP surface settings
type ServerConfig struct {
	Host            string `yaml:"host"`
	Port            int    `yaml:"port"`
	ReadTimeoutSec  int    `yaml:"read_timeout_sec"`
	WriteTimeoutSec int    `yaml:"write_timeout_sec"`
	IdleTimeoutSec  int    `yaml:"idle_timeout_sec"`
}

// RateLimitConfig paces outbound risk and broker calls
type RateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

// RedisConfig holds the allocation source settings
type RedisConfig struct {
	Addr string `yaml:"addr"` // empty selects the in-memory source
}

// Default returns the built-in configuration
func Default() Config {
	return Config{
		Router: RouterConfig{PortfolioValue: 100000},
		Risk: RiskConfig{
			URL:                "http://localhost:8300",
			MaxAttempts:        3,
			ValidateTimeoutSec: 5,
			ProbeTimeoutSec:    2,
			MaxDrawdown:        0.08,
		},
		Guardian: GuardianConfig{
			DashboardURL: "http://localhost:8100",
			TimeoutSec:   2,
		},
		Broker: BrokerConfig{
			Paper:           true,
			PlaceTimeoutSec: 10,
		},
		Execution: ExecutionConfig{PaceMs: 100},
		Server: ServerConfig{
			Host:            "127.0.0.1",
			Port:            8400,
			ReadTimeoutSec:  10,
			WriteTimeoutSec: 10,
			IdleTimeoutSec:  60,
		},
		RateLimit: RateLimitConfig{RPS: 10, Burst: 5},
	}
}

// Load reads the configuration file at path, layering it over the defaults
// and applying environment overrides. An empty path loads defaults only.
func Load(path string) (Config, error) {
	config := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &config); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnv(&config)

	if err := config.Validate(); err != nil {
		return Config{}, err
	}
	return config, nil
}

// applyEnv lets deployment environments relocate the external services
// without touching the file.
func applyEnv(config *Config) {
	if v := os.Getenv("RISK_ENGINE_URL"); v != "" {
		config.Risk.URL = v
	}
	if v := os.Getenv("DASHBOARD_URL"); v != "" {
		config.Guardian.DashboardURL = v
	}
	if v := os.Getenv("BROKER_URL"); v != "" {
		config.Broker.URL = v
		config.Broker.Paper = false
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		config.Redis.Addr = v
	}
}

// Validate rejects configurations the pipeline cannot run with
func (c Config) Validate() error {
	if c.Risk.URL == "" {
		return fmt.Errorf("risk.url is required")
	}
	if c.Risk.MaxAttempts < 1 {
		return fmt.Errorf("risk.max_attempts must be at least 1")
	}
	if c.Router.PortfolioValue <= 0 {
		return fmt.Errorf("router.portfolio_value must be positive")
	}
	if c.Execution.PaceMs < 0 {
		return fmt.Errorf("execution.pace_ms must not be negative")
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	return nil
}

// Pace returns the slicer pacing interval
func (c ExecutionConfig) Pace() time.Duration {
	return time.Duration(c.PaceMs) * time.Millisecond
}
