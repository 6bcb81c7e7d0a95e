package main

import "testing"

func TestLoadConfig_Defaults(t *testing.T) {
	for _, key := range []string{"PORT", "MAX_RUNS", "OPTIONS_FILE", "CLAUDE_CLI_PATH", "LOG_LEVEL"} {
		t.Setenv(key, "")
	}

	cfg := loadConfig()
	if cfg.Port != 8420 || cfg.MaxRuns != 4 || cfg.LogLevel != "info" {
		t.Errorf("unexpected defaults %+v", cfg)
	}
	if cfg.OptionsFile != "" || cfg.CLIPath != "" {
		t.Errorf("expected no options file or cli path, got %+v", cfg)
	}
}

func TestLoadConfig_Environment(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("MAX_RUNS", "2")
	t.Setenv("OPTIONS_FILE", "/etc/claude/relay.yaml")
	t.Setenv("CLAUDE_CLI_PATH", "/opt/claude/bin/claude")
	t.Setenv("LOG_LEVEL", "debug")

	cfg := loadConfig()
	want := Config{
		Port:        9000,
		MaxRuns:     2,
		OptionsFile: "/etc/claude/relay.yaml",
		CLIPath:     "/opt/claude/bin/claude",
		LogLevel:    "debug",
	}
	if cfg != want {
		t.Errorf("expected %+v, got %+v", want, cfg)
	}
}

func TestLoadConfig_InvalidNumbersIgnored(t *testing.T) {
	t.Setenv("PORT", "eighty")
	t.Setenv("MAX_RUNS", "")

	cfg := loadConfig()
	if cfg.Port != 8420 {
		t.Errorf("expected default port, got %d", cfg.Port)
	}
}

func TestParseFlags_OverridesEnvironment(t *testing.T) {
	base := Config{Port: 9000, MaxRuns: 2, LogLevel: "info"}

	cfg, err := parseFlags(base, []string{"--port", "9100", "--options-file", "relay.jsonc", "--log-level=warn"})
	if err != nil {
		t.Fatalf("parseFlags failed: %v", err)
	}
	if cfg.Port != 9100 || cfg.OptionsFile != "relay.jsonc" || cfg.LogLevel != "warn" {
		t.Errorf("flags not applied: %+v", cfg)
	}
	if cfg.MaxRuns != 2 {
		t.Errorf("expected unset flag to keep environment value, got %d", cfg.MaxRuns)
	}
}

func TestParseFlags_Rejects(t *testing.T) {
	base := Config{Port: 8420, MaxRuns: 4}
	for _, args := range [][]string{
		{"--max-runs", "0"},
		{"--port", "abc"},
		{"--unknown"},
		{"extra"},
	} {
		if _, err := parseFlags(base, args); err == nil {
			t.Errorf("parseFlags(%v): expected error", args)
		}
	}
}
