package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "router.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{"RISK_ENGINE_URL", "DASHBOARD_URL", "BROKER_URL", "REDIS_ADDR"} {
		t.Setenv(key, "")
	}
}

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	clearEnv(t)

	config, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8300", config.Risk.URL)
	assert.Equal(t, 3, config.Risk.MaxAttempts)
	assert.Equal(t, 0.08, config.Risk.MaxDrawdown)
	assert.Equal(t, "http://localhost:8100", config.Guardian.DashboardURL)
	assert.True(t, config.Broker.Paper)
	assert.Equal(t, 100*time.Millisecond, config.Execution.Pace())
	assert.Equal(t, 8400, config.Server.Port)
	assert.Equal(t, 10.0, config.RateLimit.RPS)
	assert.Empty(t, config.Redis.Addr)
}

func TestLoad_FileLayersOverDefaults(t *testing.T) {
	clearEnv(t)

	path := writeConfig(t, `
risk:
  url: http://risk.internal:9000
  max_attempts: 5
execution:
  pace_ms: 25
feed:
  url: wss://md.internal/ws
  symbols: [BTC-USD, ETH-USD]
`)

	config, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "http://risk.internal:9000", config.Risk.URL)
	assert.Equal(t, 5, config.Risk.MaxAttempts)
	assert.Equal(t, 25*time.Millisecond, config.Execution.Pace())
	assert.Equal(t, []string{"BTC-USD", "ETH-USD"}, config.Feed.Symbols)

	// untouched sections keep their defaults
	assert.Equal(t, "http://localhost:8100", config.Guardian.DashboardURL)
	assert.Equal(t, 8400, config.Server.Port)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("RISK_ENGINE_URL", "http://risk.prod:8300")
	t.Setenv("BROKER_URL", "http://broker.prod:8500")
	t.Setenv("REDIS_ADDR", "redis.prod:6379")

	path := writeConfig(t, `
risk:
  url: http://risk.file:1234
`)

	config, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "http://risk.prod:8300", config.Risk.URL)
	assert.Equal(t, "http://broker.prod:8500", config.Broker.URL)
	assert.False(t, config.Broker.Paper, "a broker URL from the environment disables paper mode")
	assert.Equal(t, "redis.prod:6379", config.Redis.Addr)
}

func TestLoad_MissingFile(t *testing.T) {
	clearEnv(t)

	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config")
}

func TestLoad_MalformedYAML(t *testing.T) {
	clearEnv(t)

	_, err := Load(writeConfig(t, "risk: [not: a: mapping"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse config")
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		errSub string
	}{
		{"missing risk url", func(c *Config) { c.Risk.URL = "" }, "risk.url"},
		{"zero attempts", func(c *Config) { c.Risk.MaxAttempts = 0 }, "max_attempts"},
		{"negative portfolio", func(c *Config) { c.Router.PortfolioValue = -1 }, "portfolio_value"},
		{"negative pace", func(c *Config) { c.Execution.PaceMs = -5 }, "pace_ms"},
		{"port out of range", func(c *Config) { c.Server.Port = 70000 }, "out of range"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			config := Default()
			tc.mutate(&config)
			err := config.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.errSub)
		})
	}

	assert.NoError(t, Default().Validate())
}
