package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// DefaultPolicyPath is used when the config names no policy file.
const DefaultPolicyPath = ".baton/policy.yaml"

// DefaultSession is the tmux session name used when none is configured.
const DefaultSession = "baton"

// Config represents the flat baton project configuration stored in
// .baton/config.json. It pins per-project defaults so day-to-day
// invocations need no flags.
type Config struct {
	Version    string `json:"version"`
	PlanPath   string `json:"plan_path,omitempty"`   // default master plan for run/audit
	PolicyPath string `json:"policy_path,omitempty"` // execution policy file
	Session    string `json:"session,omitempty"`     // tmux session name for detached runs
}

// LoadConfig reads .baton/config.json from the specified directory.
// Resolution order: cwd only (no home fallback).
// Returns error if no config found - caller should handle accordingly.
func LoadConfig(dir string) (*Config, error) {
	path := filepath.Join(dir, ".baton", "config.json")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return &cfg, nil
}

// LoadOrDefault reads the project config, falling back to defaults when
// the file does not exist yet.
func LoadOrDefault(dir string) *Config {
	cfg, err := LoadConfig(dir)
	if err != nil {
		cfg = &Config{Version: "1"}
	}
	if cfg.PolicyPath == "" {
		cfg.PolicyPath = DefaultPolicyPath
	}
	if cfg.Session == "" {
		cfg.Session = DefaultSession
	}
	return cfg
}

// SaveConfig writes config.json to directory
func SaveConfig(dir string, cfg *Config) error {
	batonDir := filepath.Join(dir, ".baton")
	if err := os.MkdirAll(batonDir, 0755); err != nil {
		return fmt.Errorf("failed to create .baton dir: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	path := filepath.Join(batonDir, "config.json")
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}
