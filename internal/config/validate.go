package config

import (
	"fmt"
	"net/url"
	"path/filepath"
	"regexp"
	"strings"
)

// ValidationError collects multiple validation failures.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed:\n  - %s", strings.Join(e.Errors, "\n  - "))
}

// validate checks the config for internal consistency and returns a
// ValidationError if any checks fail. All checks run; errors are collected,
// not short-circuited.
func validate(cfg *Config) error {
	var errs []string

	if _, err := filepath.Match(cfg.Watch.Pattern, "x.jsonl"); err != nil || cfg.Watch.Pattern == "" {
		errs = append(errs, fmt.Sprintf("watch.pattern %q is not a valid glob", cfg.Watch.Pattern))
	}

	switch cfg.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Sprintf("log.level %q must be \"debug\", \"info\", \"warn\", or \"error\"", cfg.Log.Level))
	}

	if u, err := url.Parse(cfg.API.BaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		errs = append(errs, fmt.Sprintf("api.base_url %q must be an http(s) URL", cfg.API.BaseURL))
	}
	if cfg.RemoteEnabled() {
		if u, err := url.Parse(cfg.Remote.URL); err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
			errs = append(errs, fmt.Sprintf("remote.url %q must be a ws(s) URL", cfg.Remote.URL))
		}
	}

	// Positive value checks
	if cfg.Watch.ScanIntervalMS <= 0 {
		errs = append(errs, "watch.scan_interval_ms must be positive")
	}
	if cfg.Session.DebounceMS <= 0 {
		errs = append(errs, "session.debounce_ms must be positive")
	}
	if cfg.Session.MaxStartBatchLines <= 0 {
		errs = append(errs, "session.max_start_batch_lines must be positive")
	}
	if cfg.API.Timeout <= 0 {
		errs = append(errs, "api.timeout must be positive")
	}
	if cfg.Remote.DialTimeout <= 0 {
		errs = append(errs, "remote.dial_timeout must be positive")
	}
	if cfg.Remote.ReadTimeout <= 0 {
		errs = append(errs, "remote.read_timeout must be positive")
	}
	if cfg.Executor.Timeout <= 0 {
		errs = append(errs, "executor.timeout must be positive")
	}
	if cfg.Executor.MaxTimeout < cfg.Executor.Timeout {
		errs = append(errs, "executor.max_timeout must be at least executor.timeout")
	}
	if cfg.Executor.MaxOutputSize <= 0 {
		errs = append(errs, "executor.max_output_size must be positive")
	}

	// Safety patterns must be valid regex
	for i, pattern := range cfg.Executor.BlockedPatterns {
		if _, err := regexp.Compile(pattern); err != nil {
			errs = append(errs, fmt.Sprintf("executor.blocked_patterns[%d] %q is not valid regex: %v", i, pattern, err))
		}
	}

	if len(errs) > 0 {
		return &ValidationError{Errors: errs}
	}
	return nil
}
