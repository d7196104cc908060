package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"assetbank/internal/constants"
)

// Config holds all application configuration.
type Config struct {
	Port         int    `yaml:"port"`
	DatabasePath string `yaml:"database_path"`
	LogLevel     string `yaml:"log_level"`
	LogDir       string `yaml:"log_dir"`
	Roots        Roots  `yaml:"roots"`
}

// Roots maps each root type to its base directories on disk. The models root
// is bucketed by category (checkpoints, loras, vae, ...); input and output
// are flat directory lists.
type Roots struct {
	Models map[string][]string `yaml:"models"`
	Input  []string            `yaml:"input"`
	Output []string            `yaml:"output"`
}

// ApplyDefaults fills in zero-valued fields with defaults.
func (c *Config) ApplyDefaults() {
	if c.Port == 0 {
		c.Port = 8188
	}
	if c.LogLevel == "" {
		c.LogLevel = constants.DefaultLogLevel
	}
	if c.DatabasePath == "" {
		c.DatabasePath = constants.DatabaseFile
	}
}

// Validate checks that configured root directories are absolute paths.
func (c *Config) Validate() error {
	check := func(root, p string) error {
		if !filepath.IsAbs(p) {
			return fmt.Errorf("root %s: path %q is not absolute", root, p)
		}
		return nil
	}
	for bucket, paths := range c.Roots.Models {
		for _, p := range paths {
			if err := check("models/"+bucket, p); err != nil {
				return err
			}
		}
	}
	for _, p := range c.Roots.Input {
		if err := check("input", p); err != nil {
			return err
		}
	}
	for _, p := range c.Roots.Output {
		if err := check("output", p); err != nil {
			return err
		}
	}
	return nil
}

// GetConfigDir returns the directory holding the config file.
func GetConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return constants.ConfigDir
	}
	return filepath.Join(home, constants.ConfigDir)
}

// LoadConfig reads the config file, creating a default one on first run.
func LoadConfig() (*Config, error) {
	return LoadConfigFrom(filepath.Join(GetConfigDir(), constants.ConfigFile))
}

// LoadConfigFrom reads a config file from an explicit path.
func LoadConfigFrom(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		cfg := &Config{}
		cfg.ApplyDefaults()
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
