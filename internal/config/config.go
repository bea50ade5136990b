// Package config loads client configuration from YAML, .env and the environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/rcliao/data-assistant/internal/model"
)

// Config holds client settings.
type Config struct {
	APIURL       string        `yaml:"api_url"`
	DBPath       string        `yaml:"db_path"`
	DefaultUser  string        `yaml:"default_user"`
	QueryLimit   int           `yaml:"query_limit"`
	PreviewLimit int           `yaml:"preview_limit"`
	Timeout      time.Duration `yaml:"timeout"`
	LogLevel     string        `yaml:"log_level"`
}

// Dir is the per-user directory holding the config file and database.
func Dir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".data-assistant")
}

// DefaultPath is where Load looks when no path is given.
func DefaultPath() string {
	return filepath.Join(Dir(), "config.yaml")
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		APIURL:       "http://localhost:8000",
		DBPath:       filepath.Join(Dir(), "assistant.db"),
		DefaultUser:  model.DefaultIdentity,
		QueryLimit:   100,
		PreviewLimit: 20,
		Timeout:      60 * time.Second,
		LogLevel:     "info",
	}
}

// Load reads the YAML file at path (a missing file yields defaults), then
// .env, then environment overrides.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		path = DefaultPath()
	}
	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	// .env is optional
	_ = godotenv.Load()

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnvOverrides() error {
	if v := os.Getenv("DATA_ASSISTANT_API_URL"); v != "" {
		c.APIURL = v
	}
	if v := os.Getenv("DATA_ASSISTANT_DB"); v != "" {
		c.DBPath = v
	}
	if v := os.Getenv("DATA_ASSISTANT_DEFAULT_USER"); v != "" {
		c.DefaultUser = v
	}
	if v := os.Getenv("DATA_ASSISTANT_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("DATA_ASSISTANT_QUERY_LIMIT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("DATA_ASSISTANT_QUERY_LIMIT: %w", err)
		}
		c.QueryLimit = n
	}
	if v := os.Getenv("DATA_ASSISTANT_PREVIEW_LIMIT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("DATA_ASSISTANT_PREVIEW_LIMIT: %w", err)
		}
		c.PreviewLimit = n
	}
	if v := os.Getenv("DATA_ASSISTANT_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("DATA_ASSISTANT_TIMEOUT: %w", err)
		}
		c.Timeout = d
	}
	return nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.APIURL) == "" {
		return fmt.Errorf("api_url is required")
	}
	if strings.TrimSpace(c.DefaultUser) == "" {
		return fmt.Errorf("default_user is required")
	}
	if c.QueryLimit <= 0 {
		return fmt.Errorf("query_limit must be positive, got %d", c.QueryLimit)
	}
	if c.PreviewLimit <= 0 {
		return fmt.Errorf("preview_limit must be positive, got %d", c.PreviewLimit)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %s", c.Timeout)
	}
	return nil
}

// Save writes the configuration as YAML.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
