package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure.
// It is read-only after Load() returns and thread-safe for concurrent reads.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Auth     AuthConfig     `yaml:"auth"`
	Query    QueryConfig    `yaml:"query"`
	Seed     SeedConfig     `yaml:"seed"`
	Worker   WorkerConfig   `yaml:"worker"`
	Log      LogConfig      `yaml:"log"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port            int      `yaml:"port"`
	ReadTimeout     Duration `yaml:"read_timeout"`
	WriteTimeout    Duration `yaml:"write_timeout"`
	ShutdownTimeout Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig contains database settings.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// AuthConfig contains token settings. The signing secret is env-only,
// never in YAML.
type AuthConfig struct {
	JWTSecret string   `yaml:"-"`
	TokenTTL  Duration `yaml:"token_ttl"`
}

// QueryConfig contains road listing settings.
type QueryConfig struct {
	PageSize int `yaml:"page_size"`
}

// SeedConfig controls the demo data created on first start. The demo
// user password is env-overridable but defaults mirror the well-known
// demo account.
type SeedConfig struct {
	UserEmail    string `yaml:"user_email"`
	UserName     string `yaml:"user_name"`
	UserPassword string `yaml:"-"`
	RoadCount    int    `yaml:"road_count"`
}

// WorkerConfig contains background worker settings.
type WorkerConfig struct {
	GeneratorEnabled  bool     `yaml:"generator_enabled"`
	GeneratorInterval Duration `yaml:"generator_interval"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Duration is a wrapper around time.Duration that supports YAML string parsing.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler for Duration.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Load loads configuration with precedence: defaults → YAML file → env vars.
// Returns an immutable Config suitable for concurrent read access.
func Load() (*Config, error) {
	cfg := newDefaults()

	configPath := getEnv("ROADSYNC_CONFIG_PATH", "config/roadsync.yaml")

	// Load YAML file if it exists (missing file is not an error)
	if err := loadYAMLFile(cfg, configPath); err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFromFile loads configuration from a specific path.
// Used for testing and explicit path specification.
func LoadFromFile(path string) (*Config, error) {
	cfg := newDefaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// newDefaults returns a Config with all default values.
func newDefaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            4000,
			ReadTimeout:     Duration(30 * time.Second),
			WriteTimeout:    Duration(30 * time.Second),
			ShutdownTimeout: Duration(15 * time.Second),
		},
		Database: DatabaseConfig{
			Path: "data/roadsync.db",
		},
		Auth: AuthConfig{
			TokenTTL: Duration(24 * time.Hour),
		},
		Query: QueryConfig{
			PageSize: 20,
		},
		Seed: SeedConfig{
			UserEmail:    "andrei@g.com",
			UserName:     "Andrei",
			UserPassword: "123",
			RoadCount:    100,
		},
		Worker: WorkerConfig{
			GeneratorEnabled:  true,
			GeneratorInterval: Duration(10 * time.Second),
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// loadYAMLFile loads configuration from a YAML file if it exists.
// Missing file is not an error; we just use defaults.
func loadYAMLFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides to the config.
// Only non-empty env vars override config values.
func applyEnvOverrides(cfg *Config) {
	// Server
	if v := os.Getenv("ROADSYNC_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("ROADSYNC_READ_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Server.ReadTimeout = Duration(d)
		}
	}
	if v := os.Getenv("ROADSYNC_WRITE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Server.WriteTimeout = Duration(d)
		}
	}
	if v := os.Getenv("ROADSYNC_SHUTDOWN_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Server.ShutdownTimeout = Duration(d)
		}
	}

	// Database
	if v := os.Getenv("ROADSYNC_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// Auth
	if v := os.Getenv("ROADSYNC_JWT_SECRET"); v != "" {
		cfg.Auth.JWTSecret = v
	}
	if v := os.Getenv("ROADSYNC_TOKEN_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Auth.TokenTTL = Duration(d)
		}
	}

	// Query
	if v := os.Getenv("ROADSYNC_PAGE_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Query.PageSize = n
		}
	}

	// Seed
	if v := os.Getenv("ROADSYNC_SEED_EMAIL"); v != "" {
		cfg.Seed.UserEmail = v
	}
	if v := os.Getenv("ROADSYNC_SEED_NAME"); v != "" {
		cfg.Seed.UserName = v
	}
	if v := os.Getenv("ROADSYNC_SEED_PASSWORD"); v != "" {
		cfg.Seed.UserPassword = v
	}
	if v := os.Getenv("ROADSYNC_SEED_ROADS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Seed.RoadCount = n
		}
	}

	// Worker
	if v := os.Getenv("ROADSYNC_GENERATOR_ENABLED"); v != "" {
		cfg.Worker.GeneratorEnabled = v == "true" || v == "1"
	}
	if v := os.Getenv("ROADSYNC_GENERATOR_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Worker.GeneratorInterval = Duration(d)
		}
	}

	// Log
	if v := os.Getenv("ROADSYNC_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("ROADSYNC_LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
}

// validate checks that required configuration values are set.
// In dev mode (ROADSYNC_DEV_MODE=true), the secret requirement is skipped
// and a fixed development secret is substituted.
func (c *Config) validate() error {
	if c.Auth.JWTSecret == "" {
		if os.Getenv("ROADSYNC_DEV_MODE") == "true" {
			c.Auth.JWTSecret = "roadsync-dev-secret"
			return nil
		}
		return errors.New("ROADSYNC_JWT_SECRET is required")
	}
	return nil
}

// getEnv returns the value of an environment variable or a default.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
