package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.HTTPPort)
	assert.Equal(t, 9090, cfg.GRPCPort)
	assert.Equal(t, "info", cfg.LogLevel)

	assert.Equal(t, 30*time.Second, cfg.Engine.DefaultTimeout)
	assert.Equal(t, 10*time.Minute, cfg.Engine.MaxTimeout)
	assert.Equal(t, 0, cfg.Engine.DefaultRetries)
	assert.Equal(t, 100*time.Millisecond, cfg.Engine.RetryDelay)
	assert.Equal(t, 10, cfg.Engine.MaxConcurrentTasks)

	assert.Equal(t, time.Hour, cfg.Registry.Retention)
	assert.Equal(t, time.Minute, cfg.Registry.PruneInterval)

	assert.False(t, cfg.Redis.RelayEnabled)
	assert.Equal(t, "taskrun:events", cfg.Redis.StreamPrefix)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("TASKRUN_HTTP_PORT", "18080")
	t.Setenv("TASKRUN_DEFAULT_TIMEOUT", "5s")
	t.Setenv("TASKRUN_DEFAULT_RETRIES", "3")
	t.Setenv("TASKRUN_MAX_CONCURRENT_TASKS", "4")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("TASKRUN_REDIS_RELAY", "true")
	t.Setenv("REDIS_ADDR", "redis.internal:6379")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 18080, cfg.HTTPPort)
	assert.Equal(t, 5*time.Second, cfg.Engine.DefaultTimeout)
	assert.Equal(t, 3, cfg.Engine.DefaultRetries)
	assert.Equal(t, 4, cfg.Engine.MaxConcurrentTasks)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.True(t, cfg.Redis.RelayEnabled)
	assert.Equal(t, "redis.internal:6379", cfg.Redis.Addr)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		cfg, err := Load()
		require.NoError(t, err)
		return cfg
	}

	t.Run("bad http port", func(t *testing.T) {
		cfg := base()
		cfg.HTTPPort = 0
		assert.ErrorContains(t, cfg.Validate(), "invalid HTTP port")
	})

	t.Run("bad grpc port", func(t *testing.T) {
		cfg := base()
		cfg.GRPCPort = 70000
		assert.ErrorContains(t, cfg.Validate(), "invalid gRPC port")
	})

	t.Run("non-positive default timeout", func(t *testing.T) {
		cfg := base()
		cfg.Engine.DefaultTimeout = 0
		assert.ErrorContains(t, cfg.Validate(), "default timeout")
	})

	t.Run("ceiling below default timeout", func(t *testing.T) {
		cfg := base()
		cfg.Engine.MaxTimeout = cfg.Engine.DefaultTimeout - time.Second
		assert.ErrorContains(t, cfg.Validate(), "max timeout")
	})

	t.Run("negative retries", func(t *testing.T) {
		cfg := base()
		cfg.Engine.DefaultRetries = -1
		assert.ErrorContains(t, cfg.Validate(), "retries")
	})

	t.Run("zero concurrency", func(t *testing.T) {
		cfg := base()
		cfg.Engine.MaxConcurrentTasks = 0
		assert.ErrorContains(t, cfg.Validate(), "max concurrent tasks")
	})

	t.Run("relay without address", func(t *testing.T) {
		cfg := base()
		cfg.Redis.RelayEnabled = true
		cfg.Redis.Addr = ""
		assert.ErrorContains(t, cfg.Validate(), "redis address")
	})

	t.Run("unknown log level", func(t *testing.T) {
		cfg := base()
		cfg.LogLevel = "verbose"
		assert.ErrorContains(t, cfg.Validate(), "invalid log level")
	})
}

func TestEngineDefaultsMapping(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	d := cfg.Defaults()
	assert.Equal(t, cfg.Engine.DefaultTimeout, d.Timeout)
	assert.Equal(t, cfg.Engine.MaxTimeout, d.MaxTimeout)
	assert.Equal(t, cfg.Engine.DefaultRetries, d.Retries)
	assert.Equal(t, cfg.Engine.RetryDelay, d.RetryDelay)
	assert.Equal(t, cfg.Engine.MaxConcurrentTasks, d.MaxConcurrent)
}

func TestAddrs(t *testing.T) {
	cfg := &Config{HTTPPort: 8080, GRPCPort: 9090}
	assert.Equal(t, ":8080", cfg.GetHTTPAddr())
	assert.Equal(t, ":9090", cfg.GetGRPCAddr())
}
