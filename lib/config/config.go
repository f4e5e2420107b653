// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"slices"

	"gopkg.in/yaml.v3"
)

// EnvironmentVariable names the variable Load reads the config path
// from.
const EnvironmentVariable = "SECMGR_CONFIG"

// Environment represents the deployment environment.
type Environment string

const (
	// Development is for local development machines.
	Development Environment = "development"
	// Staging is for pre-production testing.
	Staging Environment = "staging"
	// Production is for production deployments.
	Production Environment = "production"
)

// Config is the security manager's configuration.
type Config struct {
	// Environment identifies the deployment type.
	Environment Environment `yaml:"environment"`

	// Paths configures directory locations.
	Paths PathsConfig `yaml:"paths"`

	// Database configures the privilege database.
	Database DatabaseConfig `yaml:"database"`

	// Policy configures how lifecycle events become policy rules.
	Policy PolicyConfig `yaml:"policy"`

	// Logging configures the structured logger.
	Logging LoggingConfig `yaml:"logging"`

	// Per-environment overrides, applied after the base config is
	// loaded when Environment matches.
	Development *ConfigOverrides `yaml:"development,omitempty"`
	Staging     *ConfigOverrides `yaml:"staging,omitempty"`
	Production  *ConfigOverrides `yaml:"production,omitempty"`
}

// ConfigOverrides contains fields that can be overridden per environment.
type ConfigOverrides struct {
	Paths    *PathsConfig     `yaml:"paths,omitempty"`
	Database *DatabaseConfig  `yaml:"database,omitempty"`
	Policy   *PolicyOverrides `yaml:"policy,omitempty"`
	Logging  *LoggingConfig   `yaml:"logging,omitempty"`
}

// PolicyOverrides mirrors PolicyConfig with optional fields, so an
// override can leave a boolean unset.
type PolicyOverrides struct {
	PackageLabelPrefix       string `yaml:"package_label_prefix,omitempty"`
	FetchDescriptionsOnStart *bool  `yaml:"fetch_descriptions_on_start,omitempty"`
}

// PathsConfig configures directory locations.
type PathsConfig struct {
	// Root is the base directory for security manager data.
	Root string `yaml:"root"`

	// State holds persistent state, the privilege database included.
	State string `yaml:"state"`
}

// DatabaseConfig configures the privilege database.
type DatabaseConfig struct {
	// Path is the SQLite file. Default: ${SECMGR_STATE}/privilege.db
	Path string `yaml:"path"`
}

// PolicyConfig configures rule generation.
type PolicyConfig struct {
	// PackageLabelPrefix is prepended to a package id to form the
	// client label of its rules. Default: User::Pkg::
	PackageLabelPrefix string `yaml:"package_label_prefix"`

	// FetchDescriptionsOnStart loads the store's policy description
	// table when the manager opens instead of on first use.
	FetchDescriptionsOnStart bool `yaml:"fetch_descriptions_on_start"`
}

// LoggingConfig configures the structured logger.
type LoggingConfig struct {
	// Level is debug, info, warn, or error.
	Level string `yaml:"level"`

	// Format is text or json.
	Format string `yaml:"format"`
}

// Default returns the default configuration, used as the base the
// config file is merged into.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	defaultRoot := filepath.Join(homeDir, ".cache", "secmgr")

	return &Config{
		Environment: Development,
		Paths: PathsConfig{
			Root:  defaultRoot,
			State: "${SECMGR_ROOT}/state",
		},
		Database: DatabaseConfig{
			Path: "${SECMGR_STATE}/privilege.db",
		},
		Policy: PolicyConfig{
			PackageLabelPrefix: "User::Pkg::",
		},
		Logging: LoggingConfig{
			Level:  "debug",
			Format: "text",
		},
	}
}

// Load loads configuration from the file named by SECMGR_CONFIG. There
// is no fallback: if the variable is unset, Load fails.
func Load() (*Config, error) {
	configPath := os.Getenv(EnvironmentVariable)
	if configPath == "" {
		return nil, fmt.Errorf("%s environment variable not set; "+
			"set it to the path of your secmgr.yaml config file", EnvironmentVariable)
	}

	return LoadFile(configPath)
}

// LoadFile loads configuration from path, applies the overrides for
// the configured environment, and expands path variables.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	if err := cfg.loadFile(path); err != nil {
		return nil, err
	}

	cfg.applyEnvironmentOverrides()
	cfg.expandVariables()

	return cfg, nil
}

// loadFile merges a single configuration file into c.
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}

// applyEnvironmentOverrides applies the environment-specific overrides.
func (c *Config) applyEnvironmentOverrides() {
	var overrides *ConfigOverrides

	switch c.Environment {
	case Development:
		overrides = c.Development
	case Staging:
		overrides = c.Staging
	case Production:
		overrides = c.Production
		// Production logs for machines unless the file says otherwise.
		if overrides == nil {
			overrides = &ConfigOverrides{
				Logging: &LoggingConfig{
					Level:  "info",
					Format: "json",
				},
			}
		}
	}

	if overrides == nil {
		return
	}

	if overrides.Paths != nil {
		if overrides.Paths.Root != "" {
			c.Paths.Root = overrides.Paths.Root
		}
		if overrides.Paths.State != "" {
			c.Paths.State = overrides.Paths.State
		}
	}

	if overrides.Database != nil && overrides.Database.Path != "" {
		c.Database.Path = overrides.Database.Path
	}

	if overrides.Policy != nil {
		if overrides.Policy.PackageLabelPrefix != "" {
			c.Policy.PackageLabelPrefix = overrides.Policy.PackageLabelPrefix
		}
		if overrides.Policy.FetchDescriptionsOnStart != nil {
			c.Policy.FetchDescriptionsOnStart = *overrides.Policy.FetchDescriptionsOnStart
		}
	}

	if overrides.Logging != nil {
		if overrides.Logging.Level != "" {
			c.Logging.Level = overrides.Logging.Level
		}
		if overrides.Logging.Format != "" {
			c.Logging.Format = overrides.Logging.Format
		}
	}
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in paths.
// SECMGR_ROOT and SECMGR_STATE refer to the configured directories.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"SECMGR_ROOT": c.Paths.Root,
		"HOME":        os.Getenv("HOME"),
	}

	c.Paths.Root = expandVars(c.Paths.Root, vars)
	vars["SECMGR_ROOT"] = c.Paths.Root

	c.Paths.State = expandVars(c.Paths.State, vars)
	vars["SECMGR_STATE"] = c.Paths.State

	c.Database.Path = expandVars(c.Database.Path, vars)
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandVars replaces each ${NAME} or ${NAME:-default} in s with the
// value from vars, then the process environment, then the default.
func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		name, defaultValue := parts[1], parts[2]

		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

var logFormats = []string{"text", "json"}

// Validate checks the configuration for errors, reporting all of them.
func (c *Config) Validate() error {
	var errs []error

	if c.Environment != Development && c.Environment != Staging && c.Environment != Production {
		errs = append(errs, fmt.Errorf("invalid environment: %s", c.Environment))
	}

	if c.Paths.Root == "" {
		errs = append(errs, errors.New("paths.root is required"))
	}

	if c.Database.Path == "" {
		errs = append(errs, errors.New("database.path is required"))
	}

	if c.Policy.PackageLabelPrefix == "" {
		errs = append(errs, errors.New("policy.package_label_prefix is required"))
	}

	if _, err := c.Logging.level(); err != nil {
		errs = append(errs, err)
	}
	if !slices.Contains(logFormats, c.Logging.Format) {
		errs = append(errs, fmt.Errorf("logging.format must be one of: %v", logFormats))
	}

	return errors.Join(errs...)
}

// EnsurePaths creates the configured directories and the directory of
// the database file.
func (c *Config) EnsurePaths() error {
	paths := []string{
		c.Paths.Root,
		c.Paths.State,
		filepath.Dir(c.Database.Path),
	}

	for _, path := range paths {
		if path == "" || path == "." {
			continue
		}
		if err := os.MkdirAll(path, 0o750); err != nil {
			return fmt.Errorf("creating %s: %w", path, err)
		}
	}

	return nil
}

func (l LoggingConfig) level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, fmt.Errorf("logging.level %q: %w", l.Level, err)
	}
	return level, nil
}

// NewLogger builds a logger writing to w with the configured level and
// format.
func (l LoggingConfig) NewLogger(w io.Writer) (*slog.Logger, error) {
	level, err := l.level()
	if err != nil {
		return nil, err
	}

	options := &slog.HandlerOptions{Level: level}
	switch l.Format {
	case "json":
		return slog.New(slog.NewJSONHandler(w, options)), nil
	case "text":
		return slog.New(slog.NewTextHandler(w, options)), nil
	default:
		return nil, fmt.Errorf("logging.format %q: must be one of %v", l.Format, logFormats)
	}
}
