// Package config provides YAML-based configuration loading for Switchboard.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the top-level Switchboard configuration, loaded from
// switchboard.yaml.
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	HTTP     HTTPConfig     `yaml:"http"`
	Notify   NotifyConfig   `yaml:"notify"`
	Tasks    TasksConfig    `yaml:"tasks"`
}

// DatabaseConfig holds settings for the SQLite store.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// HTTPConfig holds settings for the HTTP server (REST facade + RPC sessions).
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// NotifyConfig controls the shell command run for urgent mail.
type NotifyConfig struct {
	Command string `yaml:"command"`
}

// TasksConfig holds settings for the external task tracker integration.
type TasksConfig struct {
	Bin          string `yaml:"bin"`
	SyncSchedule string `yaml:"sync_schedule"`
}

// Load reads a YAML config file from path and returns a validated Config.
// A missing file yields the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Parse(nil)
		}
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse unmarshals YAML bytes into a validated Config.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyDefaults fills in default values.
func (c *Config) applyDefaults() {
	if c.Database.Path == "" {
		c.Database.Path = "data/switchboard.db"
	}
	if c.HTTP.Port == 0 {
		c.HTTP.Port = 8765
	}
	if c.Tasks.Bin == "" {
		c.Tasks.Bin = "bd"
	}
	if c.Tasks.SyncSchedule == "" {
		c.Tasks.SyncSchedule = "*/5 * * * *"
	}
}

// validate checks that all fields are consistent.
func (c *Config) validate() error {
	var errs []string
	if c.HTTP.Port < 0 || c.HTTP.Port > 65535 {
		errs = append(errs, fmt.Sprintf("http.port %d out of range", c.HTTP.Port))
	}
	if strings.ContainsAny(c.Database.Path, "?&") {
		errs = append(errs, "database.path must be a plain file path")
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
