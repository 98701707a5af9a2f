// Package config loads client configuration from a YAML file with
// environment variable overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config holds the settings for the shelterq client.
type Config struct {
	// ServerURL is the base URL of the pets API.
	ServerURL string `yaml:"server_url"`
	// Token is the bearer token sent with every API request.
	Token string `yaml:"token"`
	// QueuePath is the path of the local queue database.
	QueuePath string `yaml:"queue_path"`
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`
}

// Default returns the configuration used when no file or overrides are present.
func Default() Config {
	return Config{
		ServerURL: "http://localhost:8080",
		LogLevel:  "info",
	}
}

// DefaultPath returns the default config file location,
// ~/.config/shelterq/config.yml.
func DefaultPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "shelterq", "config.yml"), nil
}

// Load reads the config file at path, falling back to defaults if the file
// does not exist, then applies SHELTERQ_* environment overrides.
// A file that exists but cannot be parsed is an error.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
	} else {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnv(&cfg)

	if cfg.QueuePath == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return Config{}, fmt.Errorf("failed to get home directory: %w", err)
		}
		cfg.QueuePath = filepath.Join(homeDir, ".cache", "shelterq", "queue.db")
	}

	return cfg, nil
}

// applyEnv overrides config fields from environment variables when set.
func applyEnv(cfg *Config) {
	if v, ok := os.LookupEnv("SHELTERQ_SERVER_URL"); ok {
		cfg.ServerURL = v
	}
	if v, ok := os.LookupEnv("SHELTERQ_TOKEN"); ok {
		cfg.Token = v
	}
	if v, ok := os.LookupEnv("SHELTERQ_QUEUE_PATH"); ok {
		cfg.QueuePath = v
	}
	if v, ok := os.LookupEnv("SHELTERQ_LOG_LEVEL"); ok {
		cfg.LogLevel = v
	}
}
