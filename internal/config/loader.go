package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Load discovers a config file, merges it with defaults, applies environment
// variable overrides, validates the result, and returns the final config.
func Load() (*Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("getting working directory: %w", err)
	}
	return LoadFrom(cwd)
}

// LoadFrom loads config using the given directory as the project root for file
// discovery. Load() calls it with os.Getwd().
func LoadFrom(dir string) (*Config, error) {
	path, err := discoverConfigPath(dir)
	if err != nil {
		return nil, fmt.Errorf("config discovery: %w", err)
	}
	cfg, err := build(path)
	if err != nil {
		return nil, err
	}
	if cfg.Watch.Project == "" {
		cfg.Watch.Project = dir
	}
	return cfg, nil
}

// LoadFile loads an explicit config file (--config) instead of running discovery.
func LoadFile(path string) (*Config, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("config file: %w", err)
	}
	cfg, err := build(path)
	if err != nil {
		return nil, err
	}
	if cfg.Watch.Project == "" {
		if cwd, err := os.Getwd(); err == nil {
			cfg.Watch.Project = cwd
		}
	}
	return cfg, nil
}

func build(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		override, err := loadFromFile(path)
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", path, err)
		}
		merge(&cfg, override)
	}

	applyEnvOverrides(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return &cfg, nil
}

// discoverConfigPath searches the discovery chain and returns the first config
// file that exists. Returns empty string if none found (defaults-only mode).
func discoverConfigPath(dir string) (string, error) {
	candidates := []string{
		filepath.Join(dir, "devcompanion.yaml"),
		filepath.Join(dir, "devcompanion.toml"),
	}

	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates,
			filepath.Join(home, ".config", "devcompanion", "config.yaml"),
			filepath.Join(home, ".config", "devcompanion", "config.toml"),
		)
	}

	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c, nil
		}
	}
	return "", nil
}

// loadFromFile reads a YAML or TOML config file, chosen by extension.
func loadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}

	var cfg Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.Decode(string(data), &cfg); err != nil {
			return nil, fmt.Errorf("parsing TOML: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing YAML: %w", err)
		}
	}

	return &cfg, nil
}

// merge deep-merges override onto base. Scalar fields override when non-zero.
// Slices replace entirely when non-nil. Pointer-to-bool fields override when non-nil.
func merge(base *Config, override *Config) {
	// Watch
	if override.Watch.Dir != "" {
		base.Watch.Dir = override.Watch.Dir
	}
	if override.Watch.ClaudeHome != "" {
		base.Watch.ClaudeHome = override.Watch.ClaudeHome
	}
	if override.Watch.Project != "" {
		base.Watch.Project = override.Watch.Project
	}
	if override.Watch.Pattern != "" {
		base.Watch.Pattern = override.Watch.Pattern
	}
	if override.Watch.ScanIntervalMS != 0 {
		base.Watch.ScanIntervalMS = override.Watch.ScanIntervalMS
	}
	if override.Watch.IgnorePrefixes != nil {
		base.Watch.IgnorePrefixes = override.Watch.IgnorePrefixes
	}

	// Session
	if override.Session.DebounceMS != 0 {
		base.Session.DebounceMS = override.Session.DebounceMS
	}
	if override.Session.MaxStartBatchLines != 0 {
		base.Session.MaxStartBatchLines = override.Session.MaxStartBatchLines
	}
	if override.Session.PromptLimit != 0 {
		base.Session.PromptLimit = override.Session.PromptLimit
	}
	if override.Session.CollectGitInfo != nil {
		base.Session.CollectGitInfo = override.Session.CollectGitInfo
	}

	// API
	if override.API.BaseURL != "" {
		base.API.BaseURL = override.API.BaseURL
	}
	if override.API.StartPath != "" {
		base.API.StartPath = override.API.StartPath
	}
	if override.API.EndPath != "" {
		base.API.EndPath = override.API.EndPath
	}
	if override.API.Timeout != 0 {
		base.API.Timeout = override.API.Timeout
	}
	if override.API.Token != "" {
		base.API.Token = override.API.Token
	}
	if override.API.TokenEnv != "" {
		base.API.TokenEnv = override.API.TokenEnv
	}
	if override.API.TokenFile != "" {
		base.API.TokenFile = override.API.TokenFile
	}

	// Remote
	if override.Remote.Enabled != nil {
		base.Remote.Enabled = override.Remote.Enabled
	}
	if override.Remote.URL != "" {
		base.Remote.URL = override.Remote.URL
	}
	if override.Remote.DialTimeout != 0 {
		base.Remote.DialTimeout = override.Remote.DialTimeout
	}
	if override.Remote.ReadTimeout != 0 {
		base.Remote.ReadTimeout = override.Remote.ReadTimeout
	}

	// Executor
	if override.Executor.Timeout != 0 {
		base.Executor.Timeout = override.Executor.Timeout
	}
	if override.Executor.MaxTimeout != 0 {
		base.Executor.MaxTimeout = override.Executor.MaxTimeout
	}
	if override.Executor.MaxOutputSize != 0 {
		base.Executor.MaxOutputSize = override.Executor.MaxOutputSize
	}
	if override.Executor.WorkDir != "" {
		base.Executor.WorkDir = override.Executor.WorkDir
	}
	if override.Executor.Shell != "" {
		base.Executor.Shell = override.Executor.Shell
	}
	if override.Executor.BlockedPatterns != nil {
		base.Executor.BlockedPatterns = override.Executor.BlockedPatterns
	}

	// Log
	if override.Log.Level != "" {
		base.Log.Level = override.Log.Level
	}
	if override.Log.JSON != nil {
		base.Log.JSON = override.Log.JSON
	}
	if override.Log.File != "" {
		base.Log.File = override.Log.File
	}
	if override.Log.MaxSizeMB != 0 {
		base.Log.MaxSizeMB = override.Log.MaxSizeMB
	}
	if override.Log.MaxBackups != 0 {
		base.Log.MaxBackups = override.Log.MaxBackups
	}
	if override.Log.MaxAgeDays != 0 {
		base.Log.MaxAgeDays = override.Log.MaxAgeDays
	}
	if override.Log.Compress != nil {
		base.Log.Compress = override.Log.Compress
	}
}

// applyEnvOverrides applies DEV_COMPANION_* environment variables on top of the config.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DEV_COMPANION_API_BASE_URL"); v != "" {
		cfg.API.BaseURL = v
	}
	if v := os.Getenv("DEV_COMPANION_API_TOKEN"); v != "" {
		cfg.API.Token = v
	}
	if v := os.Getenv("DEV_COMPANION_WS_URL"); v != "" {
		cfg.Remote.URL = v
	}
	if v := os.Getenv("DEV_COMPANION_LOG_LEVEL"); v != "" {
		cfg.Log.Level = strings.ToLower(v)
	}
	if v := os.Getenv("DEV_COMPANION_CLAUDE_HOME"); v != "" {
		cfg.Watch.ClaudeHome = v
	}
	if v := os.Getenv("DEV_COMPANION_WATCH_DIR"); v != "" {
		cfg.Watch.Dir = v
	}
	if v := os.Getenv("DEV_COMPANION_PROJECT"); v != "" {
		cfg.Watch.Project = v
	}
	envInt("DEV_COMPANION_API_TIMEOUT", &cfg.API.Timeout)
	envInt("DEV_COMPANION_COMMAND_TIMEOUT", &cfg.Executor.Timeout)
	envInt("DEV_COMPANION_MAX_OUTPUT_SIZE", &cfg.Executor.MaxOutputSize)
	envInt("DEV_COMPANION_DEBOUNCE_MS", &cfg.Session.DebounceMS)
}

func envInt(key string, dst *int) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: %s=%q is not a valid integer, ignoring\n", key, v)
		return
	}
	*dst = n
}
