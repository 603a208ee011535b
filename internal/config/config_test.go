package config

import (
	"os"
	"path/filepath"
	"testing"
)

func fakeEnv(values map[string]string) func(string) string {
	return func(key string) string { return values[key] }
}

func TestLoadWithEnvDefaults(t *testing.T) {
	cfg, err := LoadWithEnv(t.TempDir(), fakeEnv(nil))
	if err != nil {
		t.Fatalf("LoadWithEnv: %v", err)
	}
	if cfg.DefaultBackend() != "claude" {
		t.Errorf("expected claude as default backend, got %s", cfg.DefaultBackend())
	}
	if cfg.UseTmuxWindows {
		t.Errorf("expected UseTmuxWindows false by default")
	}
}

func TestLoadWithEnvFileAndOverrides(t *testing.T) {
	dir := t.TempDir()
	yaml := "default_lead_model: opus\ndefault_teammate_model: haiku\npalette: [red, blue]\n"
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644); err != nil {
		t.Fatalf("write config.yaml: %v", err)
	}

	cfg, err := LoadWithEnv(dir, fakeEnv(map[string]string{
		"OPENCODE_SERVER_URL":   "http://localhost:4096",
		"CLAUDE_TEAMS_BACKENDS": "opencode,bogus,claude",
		"USE_TMUX_WINDOWS":      "1",
	}))
	if err != nil {
		t.Fatalf("LoadWithEnv: %v", err)
	}

	if cfg.DefaultLeadModel != "opus" {
		t.Errorf("expected opus, got %s", cfg.DefaultLeadModel)
	}
	if cfg.OpencodeServerURL != "http://localhost:4096" {
		t.Errorf("expected opencode url to be set")
	}
	if !cfg.UseTmuxWindows {
		t.Errorf("expected UseTmuxWindows true")
	}
	if got := cfg.Backends; len(got) != 2 || got[0] != "opencode" || got[1] != "claude" {
		t.Errorf("expected [opencode claude] with unknown entries dropped, got %v", got)
	}
	if cfg.DefaultBackend() != "opencode" {
		t.Errorf("expected opencode as default backend (order defines default)")
	}
	if palette := cfg.ResolvedPalette([]string{"x"}); len(palette) != 2 || palette[0] != "red" {
		t.Errorf("expected palette override, got %v", palette)
	}
}
