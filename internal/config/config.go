package config

type Config struct {
	Watch    WatchConfig    `yaml:"watch" toml:"watch"`
	Session  SessionConfig  `yaml:"session" toml:"session"`
	API      APIConfig      `yaml:"api" toml:"api"`
	Remote   RemoteConfig   `yaml:"remote" toml:"remote"`
	Executor ExecutorConfig `yaml:"executor" toml:"executor"`
	Log      LogConfig      `yaml:"log" toml:"log"`
}

type WatchConfig struct {
	Dir            string   `yaml:"dir" toml:"dir"`
	ClaudeHome     string   `yaml:"claude_home" toml:"claude_home"`
	Project        string   `yaml:"project" toml:"project"`
	Pattern        string   `yaml:"pattern" toml:"pattern"`
	ScanIntervalMS int      `yaml:"scan_interval_ms" toml:"scan_interval_ms"`
	IgnorePrefixes []string `yaml:"ignore_prefixes" toml:"ignore_prefixes"`
}

type SessionConfig struct {
	DebounceMS         int   `yaml:"debounce_ms" toml:"debounce_ms"`
	MaxStartBatchLines int   `yaml:"max_start_batch_lines" toml:"max_start_batch_lines"`
	PromptLimit        int   `yaml:"prompt_limit" toml:"prompt_limit"`
	CollectGitInfo     *bool `yaml:"collect_git_info" toml:"collect_git_info"`
}

type APIConfig struct {
	BaseURL   string `yaml:"base_url" toml:"base_url"`
	StartPath string `yaml:"start_path" toml:"start_path"`
	EndPath   string `yaml:"end_path" toml:"end_path"`
	Timeout   int    `yaml:"timeout" toml:"timeout"`
	Token     string `yaml:"token" toml:"token"`
	TokenEnv  string `yaml:"token_env" toml:"token_env"`
	TokenFile string `yaml:"token_file" toml:"token_file"`
}

type RemoteConfig struct {
	Enabled     *bool  `yaml:"enabled" toml:"enabled"`
	URL         string `yaml:"url" toml:"url"`
	DialTimeout int    `yaml:"dial_timeout" toml:"dial_timeout"`
	ReadTimeout int    `yaml:"read_timeout" toml:"read_timeout"`
}

type ExecutorConfig struct {
	Timeout         int      `yaml:"timeout" toml:"timeout"`
	MaxTimeout      int      `yaml:"max_timeout" toml:"max_timeout"`
	MaxOutputSize   int      `yaml:"max_output_size" toml:"max_output_size"`
	WorkDir         string   `yaml:"work_dir" toml:"work_dir"`
	Shell           string   `yaml:"shell" toml:"shell"`
	BlockedPatterns []string `yaml:"blocked_patterns" toml:"blocked_patterns"`
}

type LogConfig struct {
	Level      string `yaml:"level" toml:"level"`
	JSON       *bool  `yaml:"json" toml:"json"`
	File       string `yaml:"file" toml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb" toml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups" toml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days" toml:"max_age_days"`
	Compress   *bool  `yaml:"compress" toml:"compress"`
}

// RemoteEnabled reports whether finished sessions open an execution connection.
func (c *Config) RemoteEnabled() bool {
	return c.Remote.Enabled == nil || *c.Remote.Enabled
}

// GitInfoEnabled reports whether end-of-session reports carry repository info.
func (c *Config) GitInfoEnabled() bool {
	return c.Session.CollectGitInfo == nil || *c.Session.CollectGitInfo
}
