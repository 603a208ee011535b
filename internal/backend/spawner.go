package backend

import (
	"context"
	"log"
	"os/exec"

	"github.com/jg-phare/claude-teams/internal/model"
	"github.com/jg-phare/claude-teams/internal/store"
	"github.com/jg-phare/claude-teams/internal/teamserr"
)

// DiscoverBinary looks up name on PATH, returning "" if absent — the
// same not-found-is-not-an-error contract as shutil.which.
func DiscoverBinary(name string) string {
	path, err := exec.LookPath(name)
	if err != nil {
		return ""
	}
	return path
}

// AssignColor returns the color the next teammate to join team should
// receive: the nth teammate (0-indexed, lead excluded) gets
// ColorPalette[n % len(ColorPalette)].
func AssignColor(registry *store.Registry, team string) (string, *teamserr.Error) {
	cfg, err := registry.ReadConfig(team)
	if err != nil {
		return "", err
	}
	count := 0
	for _, m := range cfg.Members {
		if m.IsTeammate() {
			count++
		}
	}
	return model.ColorPalette[count%len(model.ColorPalette)], nil
}

// SpawnOptions configures a teammate spawn request.
type SpawnOptions struct {
	Team             string
	Name             string
	Prompt           string
	Model            string
	SubagentType     string
	CWD              string
	PlanModeRequired bool
	Backend          model.BackendKind

	ClaudeBinary    string
	LeadSessionID   string
	Windows         bool // USE_TMUX_WINDOWS

	OpencodeBinary    string
	OpencodeServerURL string
	OpencodeAgent     string
}

// Spawner owns the side effects of bringing a new teammate process (or
// remote session) online: registry/inbox bookkeeping plus process or
// HTTP launch, with rollback on any failure after the member was
// added.
type Spawner struct {
	Registry *store.Registry
	Mailbox  *store.Mailbox
	NowMS    func() int64
}

// NewSpawner returns a Spawner wired to the given stores.
func NewSpawner(registry *store.Registry, mailbox *store.Mailbox, nowMS func() int64) *Spawner {
	return &Spawner{Registry: registry, Mailbox: mailbox, NowMS: nowMS}
}

// Spawn validates inputs, registers the teammate, launches its
// process or remote session, and rolls every step back on failure —
// mirroring spawn_teammate's try/except cleanup.
func (s *Spawner) Spawn(ctx context.Context, opts SpawnOptions) (*model.Member, *teamserr.Error) {
	if err := store.ValidateName(opts.Name); err != nil {
		return nil, err
	}
	if opts.Name == "team-lead" {
		return nil, teamserr.New(teamserr.InvalidInput, "agent name 'team-lead' is reserved")
	}

	switch opts.Backend {
	case model.BackendOpencode:
		if opts.OpencodeBinary == "" {
			return nil, teamserr.New(teamserr.Precondition, "cannot spawn opencode teammate: 'opencode' binary not found on PATH")
		}
		if opts.OpencodeServerURL == "" {
			return nil, teamserr.New(teamserr.Precondition, "cannot spawn opencode teammate: OPENCODE_SERVER_URL is not set")
		}
	case model.BackendClaude:
		if opts.ClaudeBinary == "" {
			return nil, teamserr.New(teamserr.Precondition, "cannot spawn claude teammate: 'claude' binary not found on PATH")
		}
	default:
		return nil, teamserr.New(teamserr.InvalidInput, "unknown backend kind %q", opts.Backend)
	}

	var remote *RemoteClient
	var sessionID string
	if opts.Backend == model.BackendOpencode {
		remote = NewRemoteClient(opts.OpencodeServerURL)
		if err := remote.VerifyMCPConfigured(ctx); err != nil {
			return nil, err
		}
		sid, err := remote.CreateSession(ctx, opts.Name+"@"+opts.Team, []Permission{
			{Permission: "*", Pattern: "*", Action: "allow"},
		})
		if err != nil {
			return nil, err
		}
		sessionID = sid
	}

	memberAdded := false
	rollback := func() {
		if memberAdded {
			if rmErr := s.Registry.RemoveMember(opts.Team, opts.Name); rmErr != nil {
				log.Printf("spawn rollback: remove member %q from team %q: %v", opts.Name, opts.Team, rmErr)
			}
		}
		if opts.Backend == model.BackendOpencode && remote != nil && sessionID != "" {
			if abortErr := remote.AbortSession(ctx, sessionID); abortErr != nil {
				log.Printf("spawn rollback: abort remote session %s: %v", sessionID, abortErr)
			}
			if delErr := remote.DeleteSession(ctx, sessionID); delErr != nil {
				log.Printf("spawn rollback: delete remote session %s: %v", sessionID, delErr)
			}
		}
	}

	color, err := AssignColor(s.Registry, opts.Team)
	if err != nil {
		rollback()
		return nil, err
	}

	agentID := opts.Name + "@" + opts.Team
	nowMS := s.NowMS()
	member := model.NewTeammate(agentID, opts.Name, opts.SubagentType, opts.Model, opts.Prompt, color, nowMS, opts.CWD, opts.Backend)
	if sessionID != "" {
		member.RemoteSessionID = &sessionID
	}
	member.PlanModeRequired = opts.PlanModeRequired

	if addErr := s.Registry.AddMember(opts.Team, member); addErr != nil {
		rollback()
		return nil, addErr
	}
	memberAdded = true

	if ensureErr := s.Mailbox.EnsureInbox(opts.Team, opts.Name); ensureErr != nil {
		rollback()
		return nil, ensureErr
	}
	if sendErr := s.Mailbox.SendPlainMessage(opts.Team, "team-lead", opts.Name, opts.Prompt, "", nil); sendErr != nil {
		rollback()
		return nil, sendErr
	}

	var spawnCmd string
	if opts.Backend == model.BackendOpencode {
		wrapped := wrapOpencodePrompt(opts.Name, opts.Team, opts.Prompt)
		if sendErr := remote.SendPromptAsync(ctx, sessionID, wrapped, opts.OpencodeAgent); sendErr != nil {
			rollback()
			return nil, sendErr
		}
		spawnCmd = BuildOpencodeAttachCommand(opts.OpencodeBinary, opts.OpencodeServerURL, sessionID, opts.CWD)
	} else {
		spawnCmd = BuildClaudeSpawnCommand(opts.ClaudeBinary, agentID, opts.Name, opts.Team, color, opts.LeadSessionID, opts.SubagentType, opts.Model, opts.PlanModeRequired, opts.CWD)
	}

	targetID, runErr := RunTmuxSpawn(BuildTmuxSpawnArgs(spawnCmd, opts.Name, opts.Windows))
	if runErr != nil {
		rollback()
		return nil, teamserr.Wrap(teamserr.External, runErr, "spawn tmux target for %q", opts.Name)
	}

	member.MultiplexerTargetID = targetID
	cfg, readErr := s.Registry.ReadConfig(opts.Team)
	if readErr != nil {
		rollback()
		return nil, readErr
	}
	for i := range cfg.Members {
		if cfg.Members[i].IsTeammate() && cfg.Members[i].Name == opts.Name {
			cfg.Members[i].MultiplexerTargetID = targetID
			break
		}
	}
	if writeErr := s.Registry.WriteConfig(opts.Team, cfg); writeErr != nil {
		rollback()
		return nil, writeErr
	}

	return &member, nil
}

// ForceKill locates the teammate, best-effort aborts and deletes its
// remote session when it is opencode-backed, kills its multiplexer
// target when one was assigned, then removes it from the team
// registry — used when a teammate must be terminated outside the
// normal shutdown handshake. Remote and multiplexer cleanup failures
// are logged and swallowed: a teammate whose session or pane is
// already gone should not block removing it from the team.
func (s *Spawner) ForceKill(ctx context.Context, team, name, opencodeServerURL string) *teamserr.Error {
	member, err := s.Registry.FindMember(team, name)
	if err != nil {
		return err
	}
	if member == nil {
		return teamserr.New(teamserr.NotFound, "member %q not found in team %q", name, team)
	}
	if member.BackendKind == model.BackendOpencode && member.RemoteSessionID != nil && opencodeServerURL != "" {
		remote := NewRemoteClient(opencodeServerURL)
		if abortErr := remote.AbortSession(ctx, *member.RemoteSessionID); abortErr != nil {
			log.Printf("force-kill %q: abort remote session %s: %v", name, *member.RemoteSessionID, abortErr)
		}
		if delErr := remote.DeleteSession(ctx, *member.RemoteSessionID); delErr != nil {
			log.Printf("force-kill %q: delete remote session %s: %v", name, *member.RemoteSessionID, delErr)
		}
	}
	if member.MultiplexerTargetID != "" {
		if killErr := KillTmuxTarget(member.MultiplexerTargetID); killErr != nil {
			log.Printf("force-kill %q: kill tmux target %s: %v", name, member.MultiplexerTargetID, killErr)
		}
	}
	return s.Registry.RemoveMember(team, name)
}

func wrapOpencodePrompt(name, team, prompt string) string {
	return "You are team member '" + name + "' on team '" + team + "'.\n\n" +
		"You have MCP tools from the claude-teams server for team coordination:\n" +
		"- poll_inbox(team_name=\"" + team + "\", agent_name=\"" + name + "\") - Check for new messages\n" +
		"- send_message(team_name=\"" + team + "\", type=\"message\", sender=\"" + name + "\", recipient=\"team-lead\", content=\"...\", summary=\"...\") - Message teammates\n" +
		"- task_list(team_name=\"" + team + "\") - View team tasks\n" +
		"- task_update(team_name=\"" + team + "\", task_id=\"...\", status=\"...\") - Update task status\n" +
		"- task_get(team_name=\"" + team + "\", task_id=\"...\") - Get task details\n\n" +
		"IMPORTANT: Only read your own inbox (agent_name=\"" + name + "\"). Reading another agent's inbox marks their messages as read and effectively hides them from the intended recipient.\n\n" +
		"Start by reading your inbox for instructions.\n\n---\n\n" + prompt
}
