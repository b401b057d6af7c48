package config

func boolPtr(b bool) *bool { return &b }

func DefaultConfig() Config {
	return Config{
		Watch: WatchConfig{
			ClaudeHome:     "~/.claude",
			Pattern:        "*.jsonl",
			ScanIntervalMS: 2000,
			IgnorePrefixes: []string{"agent-"},
		},
		Session: SessionConfig{
			DebounceMS:         10000,
			MaxStartBatchLines: 2,
			PromptLimit:        2000,
			CollectGitInfo:     boolPtr(true),
		},
		API: APIConfig{
			BaseURL:   "http://localhost:8000",
			StartPath: "/session/start",
			EndPath:   "/session/end",
			Timeout:   30,
			TokenEnv:  "DEV_COMPANION_API_TOKEN",
		},
		Remote: RemoteConfig{
			Enabled:     boolPtr(true),
			URL:         "ws://localhost:8000/ws/execute",
			DialTimeout: 15,
			ReadTimeout: 300,
		},
		Executor: ExecutorConfig{
			Timeout:       30,
			MaxTimeout:    600,
			MaxOutputSize: 10 * 1024 * 1024,
			Shell:         "/bin/sh",
			BlockedPatterns: []string{
				`rm\s+-[rf]+\s+/`,
				`git\s+push.*--force`,
				`(curl|wget).*\|\s*(sh|bash)`,
				`mkfs\.`,
				`\bdd\s+if=`,
				`:\(\)\s*\{.*\};`,
			},
		},
		Log: LogConfig{
			Level:      "info",
			JSON:       boolPtr(false),
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 14,
			Compress:   boolPtr(false),
		},
	}
}
