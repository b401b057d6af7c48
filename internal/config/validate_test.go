package config

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if err := validate(&cfg); err != nil {
		t.Fatalf("DefaultConfig() should pass validation, got: %v", err)
	}
}

func TestValidateInvalidValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"log level", func(c *Config) { c.Log.Level = "verbose" }, "log.level"},
		{"api url scheme", func(c *Config) { c.API.BaseURL = "ftp://example.com" }, "api.base_url"},
		{"remote url scheme", func(c *Config) { c.Remote.URL = "http://example.com/ws" }, "remote.url"},
		{"glob", func(c *Config) { c.Watch.Pattern = "[" }, "watch.pattern"},
		{"debounce", func(c *Config) { c.Session.DebounceMS = 0 }, "session.debounce_ms"},
		{"batch lines", func(c *Config) { c.Session.MaxStartBatchLines = -1 }, "max_start_batch_lines"},
		{"max timeout", func(c *Config) { c.Executor.MaxTimeout = 5 }, "executor.max_timeout"},
		{"blocked regex", func(c *Config) { c.Executor.BlockedPatterns = []string{"("} }, "blocked_patterns[0]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)

			err := validate(&cfg)
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected error about %s, got: %v", tt.want, err)
			}
		})
	}
}

func TestValidateRemoteURLIgnoredWhenDisabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Remote.Enabled = boolPtr(false)
	cfg.Remote.URL = "not a url"

	if err := validate(&cfg); err != nil {
		t.Fatalf("expected no error with remote disabled, got: %v", err)
	}
}

func TestValidateCollectsAllErrors(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Log.Level = "loud"
	cfg.API.Timeout = 0
	cfg.Executor.MaxOutputSize = 0

	err := validate(&cfg)
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected *ValidationError, got %T", err)
	}
	if len(ve.Errors) != 3 {
		t.Errorf("expected 3 errors, got %d: %v", len(ve.Errors), ve.Errors)
	}
}
