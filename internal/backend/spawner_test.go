package backend

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jg-phare/claude-teams/internal/model"
	"github.com/jg-phare/claude-teams/internal/store"
	"github.com/jg-phare/claude-teams/internal/teamserr"
)

func newSpawnerFixture(t *testing.T) (*Spawner, *store.Registry) {
	t.Helper()
	base := t.TempDir()
	registry := store.NewRegistry(base)
	if _, err := registry.CreateTeam("demo", "sess", "", "opus", 1, "/work"); err != nil {
		t.Fatalf("CreateTeam: %v", err)
	}
	mailbox := store.NewMailbox(base)
	return NewSpawner(registry, mailbox, func() int64 { return 1000 }), registry
}

func TestAssignColorCyclesPalette(t *testing.T) {
	sp, registry := newSpawnerFixture(t)
	for i, want := range model.ColorPalette {
		color, err := AssignColor(registry, "demo")
		if err != nil {
			t.Fatalf("AssignColor: %v", err)
		}
		if color != want {
			t.Fatalf("teammate %d: expected %s, got %s", i, want, color)
		}
		mate := model.NewTeammate("w@demo", "w", "general-purpose", "sonnet", "p", color, int64(i), "/", model.BackendClaude)
		mate.Name = want // distinct names to avoid AddMember conflict
		if err := registry.AddMember("demo", mate); err != nil {
			t.Fatalf("AddMember: %v", err)
		}
	}
	_ = sp
}

func TestSpawnRejectsReservedName(t *testing.T) {
	sp, _ := newSpawnerFixture(t)
	_, err := sp.Spawn(context.Background(), SpawnOptions{
		Team: "demo", Name: "team-lead", Backend: model.BackendClaude, ClaudeBinary: "/bin/true",
	})
	if err == nil || err.Kind != teamserr.InvalidInput {
		t.Fatalf("expected invalid-input, got %v", err)
	}
}

func TestSpawnRejectsMissingClaudeBinary(t *testing.T) {
	sp, _ := newSpawnerFixture(t)
	_, err := sp.Spawn(context.Background(), SpawnOptions{
		Team: "demo", Name: "worker", Backend: model.BackendClaude, ClaudeBinary: "",
	})
	if err == nil || err.Kind != teamserr.Precondition {
		t.Fatalf("expected precondition, got %v", err)
	}
}

func TestSpawnRejectsMissingOpencodeServerURL(t *testing.T) {
	sp, _ := newSpawnerFixture(t)
	_, err := sp.Spawn(context.Background(), SpawnOptions{
		Team: "demo", Name: "worker", Backend: model.BackendOpencode, OpencodeBinary: "/bin/opencode",
	})
	if err == nil || err.Kind != teamserr.Precondition {
		t.Fatalf("expected precondition, got %v", err)
	}
}

func TestSpawnRejectsUnknownBackend(t *testing.T) {
	sp, _ := newSpawnerFixture(t)
	_, err := sp.Spawn(context.Background(), SpawnOptions{
		Team: "demo", Name: "worker", Backend: model.BackendKind("carrier-pigeon"),
	})
	if err == nil || err.Kind != teamserr.InvalidInput {
		t.Fatalf("expected invalid-input, got %v", err)
	}
}

func TestForceKillRemovesMember(t *testing.T) {
	sp, registry := newSpawnerFixture(t)
	mate := model.NewTeammate("w@demo", "w", "general-purpose", "sonnet", "p", "blue", 2, "/", model.BackendClaude)
	if err := registry.AddMember("demo", mate); err != nil {
		t.Fatalf("AddMember: %v", err)
	}
	if err := sp.ForceKill(context.Background(), "demo", "w", ""); err != nil {
		t.Fatalf("ForceKill: %v", err)
	}
	member, err := registry.FindMember("demo", "w")
	if err != nil {
		t.Fatalf("FindMember: %v", err)
	}
	if member != nil {
		t.Fatal("expected member removed")
	}
}

func TestForceKillUnknownMember(t *testing.T) {
	sp, _ := newSpawnerFixture(t)
	if err := sp.ForceKill(context.Background(), "demo", "ghost", ""); err == nil || err.Kind != teamserr.NotFound {
		t.Fatalf("expected not-found, got %v", err)
	}
}

func TestForceKillOpencodeBestEffortCleansRemoteSession(t *testing.T) {
	sp, registry := newSpawnerFixture(t)

	var hits []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits = append(hits, r.Method+" "+r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	sessionID := "sess-1"
	mate := model.NewTeammate("w@demo", "w", "general-purpose", "sonnet", "p", "blue", 2, "/", model.BackendOpencode)
	mate.RemoteSessionID = &sessionID
	if err := registry.AddMember("demo", mate); err != nil {
		t.Fatalf("AddMember: %v", err)
	}

	if err := sp.ForceKill(context.Background(), "demo", "w", server.URL); err != nil {
		t.Fatalf("ForceKill: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("expected abort and delete requests to the remote session, got %v", hits)
	}

	member, err := registry.FindMember("demo", "w")
	if err != nil {
		t.Fatalf("FindMember: %v", err)
	}
	if member != nil {
		t.Fatal("expected member removed")
	}
}
