// Package config handles CLI configuration loading and management.
package config

import (
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"
)

// Config represents the CLI configuration.
type Config struct {
	BaseURL      string `yaml:"base_url,omitempty"`
	DefaultModel string `yaml:"default_model,omitempty"`
	SystemPrompt string `yaml:"system_prompt,omitempty"`

	History   HistoryConfig   `yaml:"history"`
	Summarize SummarizeConfig `yaml:"summarize"`
}

// HistoryConfig controls conversation history kept between turns.
type HistoryConfig struct {
	// MaxMessages bounds in-memory history. 0 uses the built-in default.
	MaxMessages int `yaml:"max_messages,omitempty"`

	// Path, when set, persists history to a SQLite database file.
	Path string `yaml:"path,omitempty"`
}

// SummarizeConfig controls automatic history summarization.
type SummarizeConfig struct {
	Enabled   bool `yaml:"enabled"`
	Threshold int  `yaml:"threshold,omitempty"`
	KeepTail  int  `yaml:"keep_tail,omitempty"`
}

// DefaultConfigPath returns the default configuration file path for the current platform.
// - macOS/Linux: ~/.roraos/config.yaml
// - Windows: %USERPROFILE%\.roraos\config.yaml
func DefaultConfigPath() string {
	var homeDir string

	if runtime.GOOS == "windows" {
		homeDir = os.Getenv("USERPROFILE")
	} else {
		homeDir = os.Getenv("HOME")
	}

	if homeDir == "" {
		// Fallback to current directory
		return "config.yaml"
	}

	return filepath.Join(homeDir, ".roraos", "config.yaml")
}

// LoadConfig loads configuration from the specified path.
// If the file doesn't exist, returns an empty config without error.
// Returns an error only if the file exists but cannot be read or parsed.
func LoadConfig(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Missing config file is not an error
			return cfg, nil
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save writes the configuration to the specified path, creating the
// directory if needed.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600)
}
