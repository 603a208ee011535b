package store

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jg-phare/claude-teams/internal/model"
	"github.com/jg-phare/claude-teams/internal/teamserr"
)

func TestCreateTeamThenExists(t *testing.T) {
	r := NewRegistry(t.TempDir())

	if r.TeamExists("demo") {
		t.Fatal("team should not exist before creation")
	}

	cfg, err := r.CreateTeam("demo", "sess-1", "a demo team", "opus", 1000, "/work")
	if err != nil {
		t.Fatalf("CreateTeam: %v", err)
	}
	if len(cfg.Members) != 1 || !cfg.Members[0].IsLead() {
		t.Fatalf("expected single lead member, got %+v", cfg.Members)
	}
	if !r.TeamExists("demo") {
		t.Fatal("team should exist after creation")
	}
}

func TestCreateTeamInvalidName(t *testing.T) {
	r := NewRegistry(t.TempDir())
	_, err := r.CreateTeam("bad name!", "s", "", "m", 1, "/")
	if err == nil || err.Kind != teamserr.InvalidInput {
		t.Fatalf("expected invalid-input, got %v", err)
	}
}

func TestCreateTeamRejectsOverwrite(t *testing.T) {
	r := NewRegistry(t.TempDir())
	if _, err := r.CreateTeam("demo", "s", "", "m", 1, "/"); err != nil {
		t.Fatalf("first CreateTeam: %v", err)
	}
	_, err := r.CreateTeam("demo", "s", "", "m", 1, "/")
	if err == nil || err.Kind != teamserr.Precondition {
		t.Fatalf("expected precondition on overwrite, got %v", err)
	}
}

func TestDeleteTeamRejectsWithTeammates(t *testing.T) {
	r := NewRegistry(t.TempDir())
	if _, err := r.CreateTeam("demo", "s", "", "m", 1, "/"); err != nil {
		t.Fatalf("CreateTeam: %v", err)
	}
	mate := model.NewTeammate("w@demo", "w", "general-purpose", "sonnet", "go", "blue", 2, "/", model.BackendClaude)
	if err := r.AddMember("demo", mate); err != nil {
		t.Fatalf("AddMember: %v", err)
	}

	if err := r.DeleteTeam("demo"); err == nil || err.Kind != teamserr.Precondition {
		t.Fatalf("expected precondition, got %v", err)
	}

	if err := r.RemoveMember("demo", "w"); err != nil {
		t.Fatalf("RemoveMember: %v", err)
	}
	if err := r.DeleteTeam("demo"); err != nil {
		t.Fatalf("DeleteTeam after removing teammate: %v", err)
	}
	if r.TeamExists("demo") {
		t.Fatal("team should no longer exist")
	}
}

func TestAddMemberRejectsDuplicate(t *testing.T) {
	r := NewRegistry(t.TempDir())
	if _, err := r.CreateTeam("demo", "s", "", "m", 1, "/"); err != nil {
		t.Fatalf("CreateTeam: %v", err)
	}
	mate := model.NewTeammate("w@demo", "w", "general-purpose", "sonnet", "go", "blue", 2, "/", model.BackendClaude)
	if err := r.AddMember("demo", mate); err != nil {
		t.Fatalf("AddMember: %v", err)
	}
	if err := r.AddMember("demo", mate); err == nil || err.Kind != teamserr.Conflict {
		t.Fatalf("expected conflict on duplicate add, got %v", err)
	}
}

func TestRemoveMemberRejectsLead(t *testing.T) {
	r := NewRegistry(t.TempDir())
	if _, err := r.CreateTeam("demo", "s", "", "m", 1, "/"); err != nil {
		t.Fatalf("CreateTeam: %v", err)
	}
	if err := r.RemoveMember("demo", "team-lead"); err == nil || err.Kind != teamserr.InvalidInput {
		t.Fatalf("expected invalid-input removing team-lead, got %v", err)
	}
}

func TestWriteConfigLeavesNoTmpFiles(t *testing.T) {
	base := t.TempDir()
	r := NewRegistry(base)
	cfg, err := r.CreateTeam("demo", "s", "", "m", 1, "/")
	if err != nil {
		t.Fatalf("CreateTeam: %v", err)
	}
	for i := 0; i < 5; i++ {
		cfg.Description = cfg.Description + "!"
		if err := r.WriteConfig("demo", cfg); err != nil {
			t.Fatalf("WriteConfig: %v", err)
		}
	}
	entries, readErr := os.ReadDir(filepath.Join(base, "teams", "demo"))
	if readErr != nil {
		t.Fatalf("ReadDir: %v", readErr)
	}
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".tmp") {
			t.Fatalf("unexpected leftover temp file: %s", e.Name())
		}
	}
}
