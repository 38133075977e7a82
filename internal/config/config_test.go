package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("METER_INTERVAL", "")
	t.Setenv("DB_DRIVER", "")

	cfg := LoadConfig()
	assert.Equal(t, "8080", cfg.AppPort)
	assert.Equal(t, "mysql", cfg.DBDriver)
	assert.Equal(t, 30*time.Second, cfg.MeterInterval)
	assert.Equal(t, 2*time.Second, cfg.MeterEpsilon)
	assert.Equal(t, 90*time.Second, cfg.CallRingTimeout)
	assert.Equal(t, 4, cfg.MeterWorkers)
	require.NoError(t, cfg.Validate())
}

func TestLoadConfig_Overrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("DB_DRIVER", "memory")
	t.Setenv("METER_INTERVAL", "10s")
	t.Setenv("METER_EPSILON", "500ms")
	t.Setenv("METER_WORKERS", "not-a-number")
	t.Setenv("RATE_LIMIT_RPS", "2.5")
	t.Setenv("EARNINGS_HOLD", "72h")

	cfg := LoadConfig()
	assert.Equal(t, "memory", cfg.DBDriver)
	assert.Equal(t, 10*time.Second, cfg.MeterInterval)
	assert.Equal(t, 500*time.Millisecond, cfg.MeterEpsilon)
	assert.Equal(t, 4, cfg.MeterWorkers, "malformed value falls back")
	assert.Equal(t, 2.5, cfg.RateLimitRPS)
	assert.Equal(t, 72*time.Hour, cfg.EarningsHold)
	require.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			DBDriver:        "memory",
			JWTSecret:       "s3cret",
			MeterInterval:   30 * time.Second,
			MeterEpsilon:    2 * time.Second,
			CallRingTimeout: 90 * time.Second,
			RateLimitRPS:    10,
			RateLimitBurst:  20,
		}
	}
	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"driver", func(c *Config) { c.DBDriver = "postgres" }, "DB_DRIVER"},
		{"secret", func(c *Config) { c.JWTSecret = "" }, "JWT_SECRET"},
		{"interval", func(c *Config) { c.MeterInterval = 0 }, "METER_INTERVAL"},
		{"epsilon too large", func(c *Config) { c.MeterEpsilon = c.MeterInterval }, "METER_EPSILON"},
		{"ring timeout", func(c *Config) { c.CallRingTimeout = 0 }, "CALL_RING_TIMEOUT"},
		{"hold", func(c *Config) { c.EarningsHold = -time.Hour }, "EARNINGS_HOLD"},
		{"rate limit", func(c *Config) { c.RateLimitBurst = 0 }, "RATE_LIMIT"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestDSN(t *testing.T) {
	cfg := &Config{DBUser: "app", DBPassword: "pw", DBHost: "db", DBPort: "3306", DBName: "ledger"}
	assert.Equal(t, "app:pw@tcp(db:3306)/ledger?parseTime=true", cfg.DSN())
}
