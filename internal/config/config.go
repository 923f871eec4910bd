// Copyright (c) 2025 dogwoodfire
// MouseEye - timelapse deploy orchestrator
// This source code is licensed under the MIT license found in the LICENSE file.

// package config loads the deploy configuration for a single run.
// Values are layered: built-in defaults, then a mouseye.yaml config file,
// then MOUSEYE_* environment variables, then command-line flags. The result
// is unmarshalled once into an immutable Config value that is threaded
// through every pipeline step; nothing reads ambient state mid-run.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/goccy/go-yaml"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Database holds the connection settings for the deploy-history store.
type Database struct {
	Type string `mapstructure:"type" yaml:"type"`
	DSN  string `mapstructure:"dsn" yaml:"dsn"`
}

// Config is the full configuration for one mousectl run. It is immutable for
// the duration of the run.
type Config struct {
	Host      string   `mapstructure:"host" yaml:"host"`
	User      string   `mapstructure:"user" yaml:"user"`
	RemoteDir string   `mapstructure:"remote_dir" yaml:"remote_dir"`
	Service   string   `mapstructure:"service" yaml:"service"`
	Branch    string   `mapstructure:"branch" yaml:"branch"`
	Message   string   `mapstructure:"message" yaml:"message"`
	KeyPath   string   `mapstructure:"key" yaml:"key"`
	Database  Database `mapstructure:"database" yaml:"database"`
	Language  string   `mapstructure:"language" yaml:"language"`
	Debug     bool     `mapstructure:"debug" yaml:"-"`
}

// Defaults returns the built-in default values, keyed the way viper expects.
func Defaults() map[string]any {
	return map[string]any{
		"host":          "raspberrypi.local",
		"user":          "pi",
		"remote_dir":    "/home/pi/timelapse",
		"service":       "timelapse.service",
		"branch":        "main",
		"message":       "quick deploy",
		"key":           "",
		"database.type": "sqlite",
		"database.dsn":  "./mouseye.db",
		"language":      "en",
	}
}

// getConfigPath returns the full path for the configuration file.
func getConfigPath(system bool) (string, error) {
	var configDir string
	var err error

	if system {
		// System-wide configuration paths
		switch runtime.GOOS {
		case "windows":
			configDir = filepath.Join(os.Getenv("ProgramData"), "MouseEye")
		default: // Linux, macOS, etc.
			configDir = "/etc/mouseye"
		}
	} else {
		// User-specific configuration paths
		configDir, err = os.UserConfigDir()
		if err != nil {
			return "", fmt.Errorf("could not get user config directory: %w", err)
		}
		configDir = filepath.Join(configDir, "mouseye")
	}

	return filepath.Join(configDir, "mouseye.yaml"), nil
}

// Load resolves the configuration for the given command invocation.
// An explicit config file path (from --config) takes precedence over the
// standard search locations.
func Load(cmd *cobra.Command, explicitFile string) (Config, error) {
	var c Config
	v := viper.New()

	for key, value := range Defaults() {
		v.SetDefault(key, value)
	}

	v.SetConfigName("mouseye")
	v.SetConfigType("yaml")

	if explicitFile != "" {
		v.SetConfigFile(explicitFile)
	}

	if userConfigPath, err := getConfigPath(false); err == nil {
		v.AddConfigPath(filepath.Dir(userConfigPath))
	}
	if systemConfigPath, err := getConfigPath(true); err == nil {
		v.AddConfigPath(filepath.Dir(systemConfigPath))
	}
	v.AddConfigPath(".") // Look for mouseye.yaml in current dir

	if err := v.ReadInConfig(); err != nil {
		// It's okay if the file is not found, but other errors are fatal.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return c, err
		}
	}

	v.AutomaticEnv()
	v.AllowEmptyEnv(true)
	v.SetEnvPrefix("mouseye")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if cmd != nil {
		if err := v.BindPFlags(cmd.Flags()); err != nil {
			return c, err
		}
		// Flags whose names differ from their config keys.
		for flag, key := range map[string]string{
			"remote-dir": "remote_dir",
			"db-type":    "database.type",
			"db-dsn":     "database.dsn",
			"lang":       "language",
		} {
			if f := cmd.Flags().Lookup(flag); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return c, err
				}
			}
		}
	}

	if err := v.Unmarshal(&c); err != nil {
		return c, err
	}

	return c, nil
}

// WriteConfigFile marshals the given configuration to the standard user or
// system config location, creating parent directories as needed.
func WriteConfigFile(c *Config, system bool) (string, error) {
	path, err := getConfigPath(system)
	if err != nil {
		return "", err
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return "", err
	}

	configDir := filepath.Dir(path)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return "", fmt.Errorf("could not create config directory %s: %w", configDir, err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return "", err
	}

	return path, nil
}
