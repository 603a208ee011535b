// Package config loads the operator-tunable defaults for the team
// coordination substrate: an optional config.yaml file under the base
// directory, overridden by environment variables. Load and LoadWithEnv
// are split so environment lookups stay testable without mutating
// process-global state.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the resolved runtime defaults.
type Config struct {
	// DefaultLeadModel is used for team_create when no lead_model is given.
	DefaultLeadModel string `yaml:"default_lead_model"`
	// DefaultTeammateModel is used for spawn_teammate when no model is given.
	DefaultTeammateModel string `yaml:"default_teammate_model"`
	// DefaultSubagentType is used for spawn_teammate when no agent_type is given.
	DefaultSubagentType string `yaml:"default_subagent_type"`
	// Palette is the palette override returned by ResolvedPalette when
	// non-empty. Teammate color assignment (backend.AssignColor) does not
	// read it and always uses model.ColorPalette.
	Palette []string `yaml:"palette"`

	// OpencodeServerURL enables the opencode backend when set (OPENCODE_SERVER_URL).
	OpencodeServerURL string `yaml:"-"`
	// OpencodeDefaultModel overrides the default model for opencode spawns (OPENCODE_DEFAULT_MODEL).
	OpencodeDefaultModel string `yaml:"-"`
	// Backends restricts and orders the enabled backends (CLAUDE_TEAMS_BACKENDS).
	Backends []string `yaml:"-"`
	// UseTmuxWindows spawns teammates in a new tmux window instead of a split pane (USE_TMUX_WINDOWS).
	UseTmuxWindows bool `yaml:"-"`
}

// DefaultConfig returns the built-in fallback values.
func DefaultConfig() *Config {
	return &Config{
		DefaultLeadModel:     "claude-opus-4-6",
		DefaultTeammateModel: "sonnet",
		DefaultSubagentType:  "general-purpose",
		Backends:             []string{"claude", "opencode"},
	}
}

var knownBackends = map[string]bool{"claude": true, "opencode": true}

// Load loads configuration using the real environment and
// <baseDir>/config.yaml.
func Load(baseDir string) (*Config, error) {
	return LoadWithEnv(baseDir, os.Getenv)
}

// LoadWithEnv loads configuration using the provided environment
// lookup function, so tests can supply isolated values.
func LoadWithEnv(baseDir string, getenv func(string) string) (*Config, error) {
	cfg := DefaultConfig()

	configPath := filepath.Join(baseDir, "config.yaml")
	if data, err := os.ReadFile(configPath); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", configPath, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config file %s: %w", configPath, err)
	}

	cfg.OpencodeServerURL = getenv("OPENCODE_SERVER_URL")
	cfg.OpencodeDefaultModel = getenv("OPENCODE_DEFAULT_MODEL")
	cfg.UseTmuxWindows = getenv("USE_TMUX_WINDOWS") != ""

	if raw := getenv("CLAUDE_TEAMS_BACKENDS"); raw != "" {
		var ordered []string
		for _, part := range strings.Split(raw, ",") {
			name := strings.TrimSpace(part)
			if knownBackends[name] {
				ordered = append(ordered, name)
			}
		}
		if len(ordered) > 0 {
			cfg.Backends = ordered
		}
	}

	return cfg, nil
}

// DefaultBackend returns the first enabled backend, which is used
// whenever a spawn request doesn't name one explicitly.
func (c *Config) DefaultBackend() string {
	if len(c.Backends) == 0 {
		return "claude"
	}
	return c.Backends[0]
}

// BackendEnabled reports whether the named backend is in the enabled set.
func (c *Config) BackendEnabled(name string) bool {
	for _, b := range c.Backends {
		if b == name {
			return true
		}
	}
	return false
}

// ResolvedPalette returns the configured palette override, or the
// caller-supplied fallback when none is set.
func (c *Config) ResolvedPalette(fallback []string) []string {
	if len(c.Palette) > 0 {
		return c.Palette
	}
	return fallback
}
