// Package config handles forgeloop configuration loading.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultSearchPaths returns the config file search order.
// An explicit path (from --config) is checked first.
// Then: ./forgeloop.yaml, ~/.config/forgeloop/config.yaml,
// /etc/forgeloop/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"forgeloop.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "forgeloop", "config.yaml"))
	}

	paths = append(paths, "/etc/forgeloop/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// Config holds all forgeloop configuration.
type Config struct {
	LLM      LLMConfig   `yaml:"llm"`
	Agent    AgentConfig `yaml:"agent"`
	Loop     LoopConfig  `yaml:"loop"`
	LogLevel string      `yaml:"log_level"`
}

// LLMConfig defines the chat-completion backend.
type LLMConfig struct {
	Provider string `yaml:"provider"` // openai, anthropic
	Model    string `yaml:"model"`
	APIKey   string `yaml:"api_key"`
}

// AgentConfig defines the agent's identity and task.
type AgentConfig struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Task        string `yaml:"task"`
}

// LoopConfig defines the proposal/execution loop limits.
type LoopConfig struct {
	// SendTokenLimit is the per-message token budget; oversized command
	// results are replaced past a third of it.
	SendTokenLimit int `yaml:"send_token_limit"`
	// ParseRetries bounds how many times a cycle retries after an
	// unparseable model reply.
	ParseRetries int `yaml:"parse_retries"`
	// DisabledCommands lists command names or aliases to remove.
	DisabledCommands []string `yaml:"disabled_commands"`
	// HistoryDB is the episodic history database path. Empty keeps history
	// in memory for the run.
	HistoryDB string `yaml:"history_db"`
	// HistoryTokenBudget bounds how much past history is replayed into
	// each prompt.
	HistoryTokenBudget int `yaml:"history_token_budget"`
}

// Default returns a default configuration.
func Default() *Config {
	return &Config{
		LLM: LLMConfig{
			Provider: "openai",
			Model:    "gpt-4o",
		},
		Loop: LoopConfig{
			SendTokenLimit:     120000,
			ParseRetries:       3,
			HistoryDB:          ":memory:",
			HistoryTokenBudget: 40000,
		},
		LogLevel: "info",
	}
}

// Load reads configuration from a YAML file. Environment variables in the
// file body are expanded, so api_key can be "${OPENAI_API_KEY}".
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for values the loop cannot run with.
func (c *Config) Validate() error {
	if c.LLM.Provider == "" {
		return fmt.Errorf("llm.provider is required")
	}
	if c.LLM.Model == "" {
		return fmt.Errorf("llm.model is required")
	}
	if c.Loop.SendTokenLimit <= 0 {
		return fmt.Errorf("loop.send_token_limit must be positive, got %d", c.Loop.SendTokenLimit)
	}
	if c.Loop.ParseRetries < 0 {
		return fmt.Errorf("loop.parse_retries must not be negative, got %d", c.Loop.ParseRetries)
	}
	return nil
}
