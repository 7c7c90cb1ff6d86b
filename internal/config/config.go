// Package config
package config

import (
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	API     APIConfig     `yaml:"api"`
	Onboard OnboardConfig `yaml:"onboard"`
	Logging LoggingConfig `yaml:"logging"`
}

type APIConfig struct {
	BaseURL       string `yaml:"base_url"`
	Token         string `yaml:"token"`
	OrgID         string `yaml:"org_id"`
	RetryAttempts int    `yaml:"retry_attempts"`
	TimeoutMS     int    `yaml:"timeout_ms"`
}

type OnboardConfig struct {
	Workers          int `yaml:"workers"`
	SSHPort          int `yaml:"ssh_port"`
	ConnectTimeoutMS int `yaml:"connect_timeout_ms"`
	ApplyTimeoutMS   int `yaml:"apply_timeout_ms"`
	CommitTimeoutMS  int `yaml:"commit_timeout_ms"`
}

type LoggingConfig struct {
	Level          string `yaml:"level"`
	Format         string `yaml:"format"`
	FilePath       string `yaml:"file_path"`
	CommandFile    string `yaml:"command_file"`
	CommandConsole bool   `yaml:"command_console"`
}

// Default returns the configuration used when no config file is given.
// The API token and org ID still have to come from flags, the file, or
// the environment.
func Default() *Config {
	return &Config{
		API: APIConfig{
			BaseURL:       "https://api.mist.com",
			RetryAttempts: 3,
			TimeoutMS:     10000,
		},
		Onboard: OnboardConfig{
			Workers:          1,
			SSHPort:          22,
			ConnectTimeoutMS: 15000,
			ApplyTimeoutMS:   30000,
			CommitTimeoutMS:  60000,
		},
		Logging: LoggingConfig{
			Level:       "info",
			Format:      "text",
			FilePath:    "onboarder.log",
			CommandFile: "onboarder-commands.log",
		},
	}
}

// Load reads configuration from file and applies environment variable
// overrides. An empty path returns the defaults with overrides applied.
func Load(configPath string) (*Config, error) {
	cfg := Default()

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	return cfg, nil
}

// Validate ensures all required configuration values are set
func (c *Config) Validate() error {
	if c.API.Token == "" {
		return fmt.Errorf("API token is required (flag -t, api.token, or MIST_API_TOKEN)")
	}
	if c.API.OrgID == "" {
		return fmt.Errorf("organization ID is required (flag -o, api.org_id, or MIST_ORG_ID)")
	}
	if c.API.BaseURL == "" {
		return fmt.Errorf("api.base_url must not be empty")
	}
	if c.API.RetryAttempts < 0 {
		return fmt.Errorf("api.retry_attempts must not be negative")
	}
	if c.API.TimeoutMS <= 0 {
		return fmt.Errorf("api.timeout_ms must be positive")
	}
	if c.Onboard.Workers < 1 {
		return fmt.Errorf("onboard.workers must be at least 1")
	}
	if c.Onboard.ConnectTimeoutMS <= 0 {
		return fmt.Errorf("onboard.connect_timeout_ms must be positive")
	}
	if c.Onboard.ApplyTimeoutMS <= 0 {
		return fmt.Errorf("onboard.apply_timeout_ms must be positive")
	}
	if c.Onboard.CommitTimeoutMS <= 0 {
		return fmt.Errorf("onboard.commit_timeout_ms must be positive")
	}
	if c.Onboard.SSHPort < 1 || c.Onboard.SSHPort > 65535 {
		return fmt.Errorf("onboard.ssh_port must be a valid port number")
	}
	if !c.Logging.IsLogLevelValid() {
		return fmt.Errorf("logging.level must be one of debug, info, warn, error")
	}
	return nil
}

// applyEnvOverrides checks for environment variables with MIST_ prefix
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("MIST_API_TOKEN"); v != "" {
		cfg.API.Token = v
	}
	if v := os.Getenv("MIST_ORG_ID"); v != "" {
		cfg.API.OrgID = v
	}
	if v := os.Getenv("MIST_API_BASE_URL"); v != "" {
		cfg.API.BaseURL = v
	}
}

// GetTimeout returns the API request timeout as a duration
func (a *APIConfig) GetTimeout() time.Duration {
	return time.Duration(a.TimeoutMS) * time.Millisecond
}

// GetConnectTimeout returns the SSH connect timeout as a duration
func (o *OnboardConfig) GetConnectTimeout() time.Duration {
	return time.Duration(o.ConnectTimeoutMS) * time.Millisecond
}

// GetApplyTimeout returns the configuration staging timeout as a duration
func (o *OnboardConfig) GetApplyTimeout() time.Duration {
	return time.Duration(o.ApplyTimeoutMS) * time.Millisecond
}

// GetCommitTimeout returns the commit timeout as a duration
func (o *OnboardConfig) GetCommitTimeout() time.Duration {
	return time.Duration(o.CommitTimeoutMS) * time.Millisecond
}

// IsLogLevelValid checks if the log level is valid
func (l *LoggingConfig) IsLogLevelValid() bool {
	validLevels := []string{"debug", "info", "warn", "error"}
	return slices.Contains(validLevels, strings.ToLower(l.Level))
}
