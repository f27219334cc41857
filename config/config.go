// Package config assembles runtime configuration from an optional YAML
// file and the environment. Provider credentials stay in the environment;
// the file carries routing rules, MCP servers, and sandbox settings.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/martinemde/conductor/mcp"
	"github.com/martinemde/conductor/router"
)

const appDirName = ".conductor"

// Config is the assembled runtime configuration.
type Config struct {
	DataDir          string             `yaml:"data_dir,omitempty"`
	SandboxRoot      string             `yaml:"sandbox_root,omitempty"`
	CommandWhitelist []string           `yaml:"command_whitelist,omitempty"`
	DefaultProvider  string             `yaml:"default_provider,omitempty"`
	RoutingRules     []router.Rule      `yaml:"routing_rules,omitempty"`
	MCPServers       []mcp.ServerConfig `yaml:"mcp_servers,omitempty"`
	MaxIterations    int                `yaml:"max_iterations,omitempty"`
	MaxToolCalls     int                `yaml:"max_tool_calls,omitempty"`
}

// Load reads the YAML file at path (missing file is fine) and applies
// environment overrides and defaults.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("config: parse %s: %w", path, err)
			}
		case !os.IsNotExist(err):
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	if provider := os.Getenv("DEFAULT_AI_PROVIDER"); provider != "" {
		cfg.DefaultProvider = provider
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	home := homeDir()
	if c.DataDir == "" {
		c.DataDir = filepath.Join(home, appDirName, "data")
	}
	if c.SandboxRoot == "" {
		wd, err := os.Getwd()
		if err != nil {
			wd = home
		}
		c.SandboxRoot = wd
	}
	if c.DefaultProvider == "" {
		c.DefaultProvider = "anthropic"
	}
	if c.MaxIterations <= 0 {
		c.MaxIterations = 20
	}
	if c.MaxToolCalls <= 0 {
		c.MaxToolCalls = 50
	}
}

// AuditPath is the SQLite audit store location.
func (c *Config) AuditPath() string {
	return filepath.Join(c.DataDir, "audit.db")
}

// MemoPath is the key/value overlay location.
func (c *Config) MemoPath() string {
	return filepath.Join(c.DataDir, "memo.json")
}

// JournalDir holds one JSONL file per run.
func (c *Config) JournalDir() string {
	return filepath.Join(homeDir(), appDirName, "journal")
}

// BackupsDir holds one artifact per reversible modify or delete.
func (c *Config) BackupsDir() string {
	return filepath.Join(homeDir(), appDirName, "backups")
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
