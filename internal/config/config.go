package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the intelligence server.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Orion    OrionConfig
	Worker   WorkerConfig
}

type ServerConfig struct {
	Port int
	Env  string
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL string
}

type OrionConfig struct {
	BaseURL    string
	ContextURL string
	Timeout    time.Duration
}

type WorkerConfig struct {
	PopTimeout   time.Duration
	IdleDelay    time.Duration
	ErrorBackoff time.Duration
}

// Load reads configuration from environment variables and returns a validated Config.
// Returns an error with a descriptive message if any required value is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port: envInt("INTELLIGENCE_PORT", 8080),
			Env:  envString("INTELLIGENCE_ENV", "development"),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		Orion: OrionConfig{
			BaseURL:    os.Getenv("ORION_URL"),
			ContextURL: envString("CONTEXT_URL", ""),
			Timeout:    envDuration("ORION_TIMEOUT", 10*time.Second),
		},
		Worker: WorkerConfig{
			PopTimeout:   envDuration("WORKER_POP_TIMEOUT", 5*time.Second),
			IdleDelay:    envDuration("WORKER_IDLE_DELAY", time.Second),
			ErrorBackoff: envDuration("WORKER_ERROR_BACKOFF", 5*time.Second),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if c.Orion.BaseURL == "" {
		return fmt.Errorf("ORION_URL is required")
	}
	if !strings.HasPrefix(c.Orion.BaseURL, "http://") && !strings.HasPrefix(c.Orion.BaseURL, "https://") {
		return fmt.Errorf("ORION_URL must start with http:// or https://, got %q", c.Orion.BaseURL)
	}

	if c.Worker.PopTimeout <= 0 {
		return fmt.Errorf("WORKER_POP_TIMEOUT must be positive")
	}

	return nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
