package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	// DBPath overrides the chat database location. Empty means the platform
	// default (~/Library/Messages/chat.db).
	DBPath string `yaml:"db_path"`

	// AttachmentsRoot overrides where attachment files are resolved from.
	// Empty means ~/Library/Messages/Attachments.
	AttachmentsRoot string `yaml:"attachments_root"`

	// DefaultLimit caps list commands when no --limit flag is given.
	// Zero means unlimited.
	DefaultLimit int `yaml:"default_limit"`

	LogLevel string `yaml:"log_level"`
}

func defaultConfig() *Config {
	return &Config{
		LogLevel: "warn",
	}
}

// loadConfig reads the YAML config file. A missing file is not an error; the
// defaults apply.
func loadConfig(path string) (*Config, error) {
	cfg := defaultConfig()
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	} else if err != nil {
		return nil, err
	}
	if err = yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "warn"
	}
	return cfg, nil
}
