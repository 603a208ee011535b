// Package boundary implements the tool-handler boundary: one active
// team per session, a uniform error envelope over the typed
// teamserr.Kind values, and the handler bodies a transport layer (MCP,
// CLI, HTTP) dispatches into.
package boundary

import (
	"sync"

	"github.com/google/uuid"

	"github.com/jg-phare/claude-teams/internal/backend"
	"github.com/jg-phare/claude-teams/internal/teamserr"
)

// Session holds the per-connection state a long-lived server process
// carries for its lifetime: the discovered claude binary, a session
// id minted once at startup, and the single team this session may
// create.
type Session struct {
	ClaudeBinary string
	SessionID    string

	mu         sync.Mutex
	activeTeam string
}

// NewSession discovers the claude binary on PATH and mints a fresh
// session id, mirroring app_lifespan's one-time setup.
func NewSession() *Session {
	return &Session{
		ClaudeBinary: backend.DiscoverBinary("claude"),
		SessionID:    uuid.NewString(),
	}
}

// ActiveTeam returns the team bound to this session, or "" if none.
func (s *Session) ActiveTeam() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeTeam
}

// BindTeam claims the session's single team slot. Fails if a team is
// already bound.
func (s *Session) BindTeam(name string) *teamserr.Error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.activeTeam != "" {
		return teamserr.New(teamserr.Precondition, "session already has active team: %s (one team per session)", s.activeTeam)
	}
	s.activeTeam = name
	return nil
}
