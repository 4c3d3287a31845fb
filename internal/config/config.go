package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"

	"github.com/aescanero/taskrun/pkg/workflow"
)

// Config holds all configuration for the task runner.
type Config struct {
	// Server configuration
	HTTPPort int    `env:"TASKRUN_HTTP_PORT" envDefault:"8080"`
	GRPCPort int    `env:"TASKRUN_GRPC_PORT" envDefault:"9090"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// Engine defaults handed to the core as a plain struct
	Engine EngineConfig

	// Run registry
	Registry RegistryConfig

	// Optional Redis event relay
	Redis RedisConfig
}

// EngineConfig holds the run defaults consumed by the execution engine.
type EngineConfig struct {
	DefaultTimeout     time.Duration `env:"TASKRUN_DEFAULT_TIMEOUT" envDefault:"30s"`
	MaxTimeout         time.Duration `env:"TASKRUN_MAX_TIMEOUT" envDefault:"10m"`
	DefaultRetries     int           `env:"TASKRUN_DEFAULT_RETRIES" envDefault:"0"`
	RetryDelay         time.Duration `env:"TASKRUN_RETRY_DELAY" envDefault:"100ms"`
	MaxConcurrentTasks int           `env:"TASKRUN_MAX_CONCURRENT_TASKS" envDefault:"10"`
}

// RegistryConfig holds run registry retention settings.
type RegistryConfig struct {
	Retention       time.Duration `env:"TASKRUN_RUN_RETENTION" envDefault:"1h"`
	PruneInterval   time.Duration `env:"TASKRUN_RUN_PRUNE_INTERVAL" envDefault:"1m"`
	ShutdownTimeout time.Duration `env:"TASKRUN_SHUTDOWN_TIMEOUT" envDefault:"30s"`
}

// RedisConfig holds the optional Redis Streams event relay configuration.
type RedisConfig struct {
	RelayEnabled bool   `env:"TASKRUN_REDIS_RELAY" envDefault:"false"`
	Addr         string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	Password     string `env:"REDIS_PASS"`
	DB           int    `env:"REDIS_DB" envDefault:"0"`

	PoolSize     int           `env:"REDIS_POOL_SIZE" envDefault:"10"`
	DialTimeout  time.Duration `env:"REDIS_DIAL_TIMEOUT" envDefault:"5s"`
	ReadTimeout  time.Duration `env:"REDIS_READ_TIMEOUT" envDefault:"3s"`
	WriteTimeout time.Duration `env:"REDIS_WRITE_TIMEOUT" envDefault:"3s"`

	StreamPrefix string `env:"TASKRUN_REDIS_STREAM_PREFIX" envDefault:"taskrun:events"`
	StreamMaxLen int64  `env:"TASKRUN_REDIS_STREAM_MAXLEN" envDefault:"4096"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	if c.GRPCPort < 1 || c.GRPCPort > 65535 {
		return fmt.Errorf("invalid gRPC port: %d", c.GRPCPort)
	}

	if c.Engine.DefaultTimeout <= 0 {
		return fmt.Errorf("default timeout must be positive")
	}
	if c.Engine.MaxTimeout < c.Engine.DefaultTimeout {
		return fmt.Errorf("max timeout must not be below the default timeout")
	}
	if c.Engine.DefaultRetries < 0 {
		return fmt.Errorf("default retries must not be negative")
	}
	if c.Engine.RetryDelay < 0 {
		return fmt.Errorf("retry delay must not be negative")
	}
	if c.Engine.MaxConcurrentTasks < 1 {
		return fmt.Errorf("max concurrent tasks must be at least 1")
	}

	if c.Registry.Retention <= 0 {
		return fmt.Errorf("run retention must be positive")
	}
	if c.Registry.PruneInterval <= 0 {
		return fmt.Errorf("run prune interval must be positive")
	}

	if c.Redis.RelayEnabled && c.Redis.Addr == "" {
		return fmt.Errorf("redis address is required when the event relay is enabled")
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.LogLevel)
	}

	return nil
}

// Defaults maps the engine configuration to the plain struct the core
// consumes.
func (c *Config) Defaults() workflow.Defaults {
	return workflow.Defaults{
		Timeout:       c.Engine.DefaultTimeout,
		MaxTimeout:    c.Engine.MaxTimeout,
		Retries:       c.Engine.DefaultRetries,
		RetryDelay:    c.Engine.RetryDelay,
		MaxConcurrent: c.Engine.MaxConcurrentTasks,
	}
}

// GetHTTPAddr returns the HTTP server address.
func (c *Config) GetHTTPAddr() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}

// GetGRPCAddr returns the gRPC server address.
func (c *Config) GetGRPCAddr() string {
	return fmt.Sprintf(":%d", c.GRPCPort)
}
