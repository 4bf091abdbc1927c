// Package config loads GeneaFlow configuration from the environment, with
// an optional YAML file underneath.
//
// Precedence is environment over file over defaults: Load first applies
// defaults, then the YAML file named by GENEAFLOW_CONFIG_FILE (if any),
// then GENEAFLOW_* environment variables on top. That keeps deployments
// file-driven while still overridable per container.
//
// Example:
//
//	cfg, err := config.Load()
//	if err != nil {
//		log.Fatalf("invalid config: %v", err)
//	}
//	log.Printf("starting with %s", cfg)
//
// Environment variables:
//
//	GENEAFLOW_CONFIG_FILE       path to optional YAML config
//	GENEAFLOW_DATA_DIR          Badger data directory (default ./data)
//	GENEAFLOW_IN_MEMORY         use the in-memory store (default false)
//	GENEAFLOW_SYNC_WRITES       fsync Badger writes (default false)
//	GENEAFLOW_HTTP_ADDRESS      listen address (default 0.0.0.0)
//	GENEAFLOW_HTTP_PORT         listen port (default 8080)
//	GENEAFLOW_AUTH_ENABLED      require bearer tokens (default true)
//	GENEAFLOW_AUTH_SECRET       token signing secret (required when auth on)
//	GENEAFLOW_AUTH_TOKEN_EXPIRY token lifetime (default 24h, 0 = forever)
//	GENEAFLOW_AUTH_MIN_PASSWORD minimum password length (default 8)
//	GENEAFLOW_MIN_PARENT_AGE    plausibility threshold in years (default 12)
//	GENEAFLOW_MAX_EXPANSIONS    ancestor traversal cap (default 0 = off)
//	GENEAFLOW_AUDIT_ENABLED     change-log on/off (default true)
//	GENEAFLOW_AUDIT_PATH        change-log file (default <data>/changelog.jsonl)
//	GENEAFLOW_LOG_LEVEL         debug|info|warn|error (default info)
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full GeneaFlow runtime configuration.
type Config struct {
	Storage StorageConfig `yaml:"storage"`
	Server  ServerConfig  `yaml:"server"`
	Auth    AuthConfig    `yaml:"auth"`
	Engine  EngineConfig  `yaml:"engine"`
	Audit   AuditConfig   `yaml:"audit"`
	Logging LoggingConfig `yaml:"logging"`
}

// StorageConfig selects and tunes the store.
type StorageConfig struct {
	DataDir    string `yaml:"data_dir"`
	InMemory   bool   `yaml:"in_memory"`
	SyncWrites bool   `yaml:"sync_writes"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Address string `yaml:"address"`
	Port    int    `yaml:"port"`
}

// AuthConfig holds authentication settings.
type AuthConfig struct {
	Enabled     bool          `yaml:"enabled"`
	Secret      string        `yaml:"secret"`
	TokenExpiry time.Duration `yaml:"token_expiry"`
	MinPassword int           `yaml:"min_password"`
}

// EngineConfig tunes the consistency engine.
type EngineConfig struct {
	MinParentAge  int `yaml:"min_parent_age"`
	MaxExpansions int `yaml:"max_expansions"`
}

// AuditConfig controls the change log.
type AuditConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Default returns the built-in defaults.
func Default() *Config {
	return &Config{
		Storage: StorageConfig{DataDir: "./data"},
		Server:  ServerConfig{Address: "0.0.0.0", Port: 8080},
		Auth:    AuthConfig{Enabled: true, TokenExpiry: 24 * time.Hour, MinPassword: 8},
		Engine:  EngineConfig{MinParentAge: 12},
		Audit:   AuditConfig{Enabled: true},
		Logging: LoggingConfig{Level: "info"},
	}
}

// Load builds the config from defaults, the optional YAML file, and the
// environment, then validates it.
func Load() (*Config, error) {
	cfg := Default()

	if path := os.Getenv("GENEAFLOW_CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	cfg.loadEnv()

	if cfg.Audit.Path == "" {
		cfg.Audit.Path = filepath.Join(cfg.Storage.DataDir, "changelog.jsonl")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) loadEnv() {
	c.Storage.DataDir = getEnv("GENEAFLOW_DATA_DIR", c.Storage.DataDir)
	c.Storage.InMemory = getEnvBool("GENEAFLOW_IN_MEMORY", c.Storage.InMemory)
	c.Storage.SyncWrites = getEnvBool("GENEAFLOW_SYNC_WRITES", c.Storage.SyncWrites)

	c.Server.Address = getEnv("GENEAFLOW_HTTP_ADDRESS", c.Server.Address)
	c.Server.Port = getEnvInt("GENEAFLOW_HTTP_PORT", c.Server.Port)

	c.Auth.Enabled = getEnvBool("GENEAFLOW_AUTH_ENABLED", c.Auth.Enabled)
	c.Auth.Secret = getEnv("GENEAFLOW_AUTH_SECRET", c.Auth.Secret)
	c.Auth.TokenExpiry = getEnvDuration("GENEAFLOW_AUTH_TOKEN_EXPIRY", c.Auth.TokenExpiry)
	c.Auth.MinPassword = getEnvInt("GENEAFLOW_AUTH_MIN_PASSWORD", c.Auth.MinPassword)

	c.Engine.MinParentAge = getEnvInt("GENEAFLOW_MIN_PARENT_AGE", c.Engine.MinParentAge)
	c.Engine.MaxExpansions = getEnvInt("GENEAFLOW_MAX_EXPANSIONS", c.Engine.MaxExpansions)

	c.Audit.Enabled = getEnvBool("GENEAFLOW_AUDIT_ENABLED", c.Audit.Enabled)
	c.Audit.Path = getEnv("GENEAFLOW_AUDIT_PATH", c.Audit.Path)

	c.Logging.Level = getEnv("GENEAFLOW_LOG_LEVEL", c.Logging.Level)
}

// Validate checks the configuration for logical errors.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid http port: %d", c.Server.Port)
	}
	if !c.Storage.InMemory && c.Storage.DataDir == "" {
		return fmt.Errorf("data directory required for persistent storage")
	}
	if c.Auth.Enabled && len(c.Auth.Secret) < 16 {
		return fmt.Errorf("auth secret must be at least 16 characters when auth is enabled")
	}
	if c.Engine.MinParentAge < 0 {
		return fmt.Errorf("invalid minimum parent age: %d", c.Engine.MinParentAge)
	}
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}
	return nil
}

// String returns a log-safe representation. The auth secret is never
// included.
func (c *Config) String() string {
	store := c.Storage.DataDir
	if c.Storage.InMemory {
		store = "memory"
	}
	return fmt.Sprintf("Config{HTTP: %s:%d, Storage: %s, Auth: %v, Audit: %v}",
		c.Server.Address, c.Server.Port, store, c.Auth.Enabled, c.Audit.Enabled)
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return defaultVal
	}
	return parsed
}

func getEnvInt(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return parsed
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	parsed, err := time.ParseDuration(val)
	if err != nil {
		return defaultVal
	}
	return parsed
}
