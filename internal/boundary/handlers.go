package boundary

import (
	"context"
	"log"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jg-phare/claude-teams/internal/backend"
	"github.com/jg-phare/claude-teams/internal/config"
	"github.com/jg-phare/claude-teams/internal/model"
	"github.com/jg-phare/claude-teams/internal/store"
	"github.com/jg-phare/claude-teams/internal/teamserr"
)

// Boundary wires the stores and spawner behind the handler methods a
// transport (MCP tool call, CLI subcommand, HTTP endpoint) invokes.
// Every method returns a *teamserr.Error on failure so the caller can
// map it through FromHTTPStatus-style classification into whatever
// envelope its transport uses, never a bare Go error.
type Boundary struct {
	Registry *store.Registry
	Mailbox  *store.Mailbox
	Tasks    *store.Tasks
	Spawner  *backend.Spawner
	Session  *Session
	Config   *config.Config

	NowMS        func() int64
	PollInterval time.Duration // default 500ms, overridable for tests
}

// NewBoundary wires a Boundary over a filesystem base directory,
// loading its operator-tunable defaults (backend selection, tmux
// window mode, opencode server) from baseDir/config.yaml and the
// process environment.
func NewBoundary(baseDir string, nowMS func() int64) (*Boundary, error) {
	cfg, err := config.Load(baseDir)
	if err != nil {
		return nil, err
	}
	registry := store.NewRegistry(baseDir)
	mailbox := store.NewMailbox(baseDir)
	return &Boundary{
		Registry:     registry,
		Mailbox:      mailbox,
		Tasks:        store.NewTasks(baseDir, registry),
		Spawner:      backend.NewSpawner(registry, mailbox, nowMS),
		Session:      NewSession(),
		Config:       cfg,
		NowMS:        nowMS,
		PollInterval: 500 * time.Millisecond,
	}, nil
}

const defaultLeadModel = "opus"

// TeamCreateResult is returned by TeamCreate.
type TeamCreateResult struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	LeadAgentID string `json:"leadAgentId"`
}

// TeamCreate creates the session's single team.
func (b *Boundary) TeamCreate(teamName, description, cwd string) (*TeamCreateResult, *teamserr.Error) {
	if err := b.Session.BindTeam(teamName); err != nil {
		return nil, err
	}
	leadModel := b.Config.DefaultLeadModel
	if leadModel == "" {
		leadModel = defaultLeadModel
	}
	cfg, err := b.Registry.CreateTeam(teamName, b.Session.SessionID, description, leadModel, b.NowMS(), cwd)
	if err != nil {
		return nil, err
	}
	return &TeamCreateResult{Name: cfg.Name, Description: cfg.Description, LeadAgentID: cfg.LeadAgentID}, nil
}

// TeamDelete removes a team, refusing if teammates remain.
func (b *Boundary) TeamDelete(teamName string) *teamserr.Error {
	return b.Registry.DeleteTeam(teamName)
}

// SpawnResult is returned by SpawnTeammate.
type SpawnResult struct {
	AgentID  string `json:"agentId"`
	Name     string `json:"name"`
	TeamName string `json:"teamName"`
}

// SpawnTeammateRequest carries a spawn_teammate call's parameters.
type SpawnTeammateRequest struct {
	TeamName         string
	Name             string
	Prompt           string
	Model            string
	SubagentType     string
	PlanModeRequired bool
	CWD              string
	Backend          model.BackendKind

	OpencodeBinary    string
	OpencodeServerURL string
	OpencodeAgent     string
}

// SpawnTeammate launches a new teammate process or remote session,
// filling in unset fields from the session's loaded Config: default
// backend and its per-backend default model, default subagent type,
// the opencode server URL, and tmux window-vs-pane mode.
func (b *Boundary) SpawnTeammate(ctx context.Context, req SpawnTeammateRequest) (*SpawnResult, *teamserr.Error) {
	if req.Backend == "" {
		req.Backend = model.BackendKind(b.Config.DefaultBackend())
	}
	if !b.Config.BackendEnabled(string(req.Backend)) {
		return nil, teamserr.New(teamserr.Precondition, "backend %q is not enabled (CLAUDE_TEAMS_BACKENDS)", req.Backend)
	}
	if req.Model == "" {
		if req.Backend == model.BackendOpencode && b.Config.OpencodeDefaultModel != "" {
			req.Model = b.Config.OpencodeDefaultModel
		} else {
			req.Model = b.Config.DefaultTeammateModel
		}
	}
	if req.SubagentType == "" {
		req.SubagentType = b.Config.DefaultSubagentType
	}
	opencodeServerURL := req.OpencodeServerURL
	if opencodeServerURL == "" {
		opencodeServerURL = b.Config.OpencodeServerURL
	}

	member, err := b.Spawner.Spawn(ctx, backend.SpawnOptions{
		Team:              req.TeamName,
		Name:              req.Name,
		Prompt:            req.Prompt,
		Model:             req.Model,
		SubagentType:      req.SubagentType,
		CWD:               req.CWD,
		PlanModeRequired:  req.PlanModeRequired,
		Backend:           req.Backend,
		ClaudeBinary:      b.Session.ClaudeBinary,
		LeadSessionID:     b.Session.SessionID,
		Windows:           b.Config.UseTmuxWindows,
		OpencodeBinary:    req.OpencodeBinary,
		OpencodeServerURL: opencodeServerURL,
		OpencodeAgent:     req.OpencodeAgent,
	})
	if err != nil {
		return nil, err
	}
	return &SpawnResult{AgentID: member.AgentID, Name: member.Name, TeamName: req.TeamName}, nil
}

// SendMessageRequest carries a send_message call's parameters; Sender
// defaults to "team-lead" when empty, matching the MCP tool default.
type SendMessageRequest struct {
	TeamName  string
	Type      string
	Recipient string
	Content   string
	Summary   string
	RequestID string
	Approve   *bool
	Sender    string
}

// SendMessageResult is returned by SendMessage.
type SendMessageResult struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	RequestID string `json:"requestId,omitempty"`
	Target    string `json:"target,omitempty"`
}

// SendMessage dispatches on req.Type into one of the five message
// protocols: plain message, broadcast, shutdown request/response, and
// plan approval response.
func (b *Boundary) SendMessage(ctx context.Context, req SendMessageRequest) (*SendMessageResult, *teamserr.Error) {
	if req.Sender == "" {
		req.Sender = "team-lead"
	}

	switch req.Type {
	case "message":
		if req.Content == "" || req.Summary == "" || req.Recipient == "" {
			return nil, teamserr.New(teamserr.InvalidInput, "message requires non-empty content, summary, and recipient")
		}
		if req.Sender == req.Recipient {
			return nil, teamserr.New(teamserr.InvalidInput, "sender and recipient must differ")
		}
		sender, err := b.resolveMember(req.TeamName, req.Sender)
		if err != nil {
			return nil, err
		}
		recipient, err := b.resolveMember(req.TeamName, req.Recipient)
		if err != nil {
			return nil, err
		}
		if sender.IsTeammate() && recipient.IsTeammate() {
			return nil, teamserr.New(teamserr.InvalidInput, "teammate-to-teammate messages are forbidden: one party must be team-lead")
		}
		var color *string
		if recipient.Color != "" {
			c := recipient.Color
			color = &c
		}
		if err := b.Mailbox.SendPlainMessage(req.TeamName, req.Sender, req.Recipient, req.Content, req.Summary, color); err != nil {
			return nil, err
		}
		b.pushRemoteBestEffort(ctx, recipient, req.Content)
		return &SendMessageResult{Success: true, Message: "Message sent to " + req.Recipient}, nil

	case "broadcast":
		if req.Sender != "team-lead" {
			return nil, teamserr.New(teamserr.InvalidInput, "only team-lead may broadcast")
		}
		cfg, err := b.Registry.ReadConfig(req.TeamName)
		if err != nil {
			return nil, err
		}
		var teammates []model.Member
		for _, m := range cfg.Members {
			if m.IsTeammate() {
				teammates = append(teammates, m)
			}
		}
		// Every inbox write for the team takes the shared
		// teams/<team>/inboxes/.lock, so fanning broadcast sends out
		// across teammates concurrently is safe; the appends themselves
		// are serialized by that lock.
		var g errgroup.Group
		for _, mate := range teammates {
			mate := mate
			g.Go(func() error {
				if sendErr := b.Mailbox.SendPlainMessage(req.TeamName, "team-lead", mate.Name, req.Content, req.Summary, nil); sendErr != nil {
					return sendErr
				}
				b.pushRemoteBestEffort(ctx, &mate, req.Content)
				return nil
			})
		}
		if waitErr := g.Wait(); waitErr != nil {
			return nil, toSendErr(waitErr)
		}
		return &SendMessageResult{Success: true, Message: fmtBroadcastMessage(len(teammates))}, nil

	case "shutdown_request":
		if req.Recipient == "team-lead" {
			return nil, teamserr.New(teamserr.InvalidInput, "cannot send shutdown_request to team-lead")
		}
		recipient, err := b.resolveMember(req.TeamName, req.Recipient)
		if err != nil {
			return nil, err
		}
		requestID, err := b.Mailbox.SendShutdownRequest(req.TeamName, req.Recipient, req.Content, b.NowMS())
		if err != nil {
			return nil, err
		}
		b.pushRemoteBestEffort(ctx, recipient, req.Content)
		return &SendMessageResult{Success: true, Message: "Shutdown request sent to " + req.Recipient, RequestID: requestID, Target: req.Recipient}, nil

	case "shutdown_response":
		return b.handleShutdownResponse(req)

	case "plan_approval_response":
		return b.handlePlanApprovalResponse(req)

	default:
		return nil, teamserr.New(teamserr.InvalidInput, "unknown message type: %s", req.Type)
	}
}

// resolveMember returns the named member, erroring with NotFound when
// it is absent from the team.
func (b *Boundary) resolveMember(teamName, name string) (*model.Member, *teamserr.Error) {
	member, err := b.Registry.FindMember(teamName, name)
	if err != nil {
		return nil, err
	}
	if member == nil {
		return nil, teamserr.New(teamserr.NotFound, "member %q not found in team %q", name, teamName)
	}
	return member, nil
}

// pushRemoteBestEffort forwards text into an opencode-backed
// recipient's remote session. Failures are logged and swallowed: the
// inbox delivery already happened and is the durable record.
func (b *Boundary) pushRemoteBestEffort(ctx context.Context, recipient *model.Member, text string) {
	if recipient == nil || recipient.BackendKind != model.BackendOpencode || recipient.RemoteSessionID == nil {
		return
	}
	serverURL := b.Config.OpencodeServerURL
	if serverURL == "" {
		return
	}
	remote := backend.NewRemoteClient(serverURL)
	if err := remote.SendPromptAsync(ctx, *recipient.RemoteSessionID, text, ""); err != nil {
		log.Printf("push message to remote session of %q: %v", recipient.Name, err)
	}
}

// toSendErr recovers the *teamserr.Error from an errgroup.Wait result,
// since g.Go's func() error boundary loses the concrete type.
func toSendErr(err error) *teamserr.Error {
	if te, ok := err.(*teamserr.Error); ok {
		return te
	}
	return teamserr.Wrap(teamserr.External, err, "broadcast failed")
}

func fmtBroadcastMessage(count int) string {
	if count == 1 {
		return "Broadcast sent to 1 teammate"
	}
	return "Broadcast sent to " + strconv.Itoa(count) + " teammates"
}

func (b *Boundary) handleShutdownResponse(req SendMessageRequest) (*SendMessageResult, *teamserr.Error) {
	sender, err := b.resolveMember(req.TeamName, req.Sender)
	if err != nil {
		return nil, err
	}
	if !sender.IsTeammate() {
		return nil, teamserr.New(teamserr.InvalidInput, "shutdown_response sender must be an existing teammate")
	}

	if req.Approve != nil && *req.Approve {
		payload := model.ShutdownApproved{
			Type:        "shutdown_approved",
			RequestID:   req.RequestID,
			From:        req.Sender,
			Timestamp:   store.NowISO(),
			PaneID:      sender.MultiplexerTargetID,
			BackendType: string(sender.BackendKind),
			SessionID:   sender.RemoteSessionID,
		}
		if err := b.Mailbox.SendStructuredMessage(req.TeamName, req.Sender, "team-lead", payload, nil); err != nil {
			return nil, err
		}
		return &SendMessageResult{Success: true, Message: "Shutdown approved for request " + req.RequestID}, nil
	}

	reason := req.Content
	if reason == "" {
		reason = "Shutdown rejected"
	}
	if err := b.Mailbox.SendPlainMessage(req.TeamName, req.Sender, "team-lead", reason, "shutdown_rejected", nil); err != nil {
		return nil, err
	}
	return &SendMessageResult{Success: true, Message: "Shutdown rejected for request " + req.RequestID}, nil
}

func (b *Boundary) handlePlanApprovalResponse(req SendMessageRequest) (*SendMessageResult, *teamserr.Error) {
	if _, err := b.resolveMember(req.TeamName, req.Recipient); err != nil {
		return nil, err
	}
	approved := req.Approve != nil && *req.Approve
	if approved {
		if err := b.Mailbox.SendStructuredMessage(req.TeamName, req.Sender, req.Recipient, model.NewPlanApproval(), nil); err != nil {
			return nil, err
		}
	} else {
		reason := req.Content
		if reason == "" {
			reason = "Plan rejected"
		}
		if err := b.Mailbox.SendPlainMessage(req.TeamName, req.Sender, req.Recipient, reason, "plan_rejected", nil); err != nil {
			return nil, err
		}
	}
	verb := "rejected"
	if approved {
		verb = "approved"
	}
	return &SendMessageResult{Success: true, Message: "Plan " + verb + " for " + req.Recipient}, nil
}

// TaskCreate creates a task under teamName.
func (b *Boundary) TaskCreate(teamName, subject, description, activeForm string, metadata map[string]any) (*model.Task, *teamserr.Error) {
	return b.Tasks.CreateTask(teamName, subject, description, activeForm, metadata)
}

// TaskUpdate mutates a task and, whenever the update sets an owner on
// a task that is not deleted, notifies that owner via inbox.
func (b *Boundary) TaskUpdate(teamName, taskID string, fields store.UpdateFields) (*model.Task, *teamserr.Error) {
	task, err := b.Tasks.UpdateTask(teamName, taskID, fields)
	if err != nil {
		return nil, err
	}
	if fields.Owner != nil && task.Owner != nil && task.Status != model.TaskDeleted {
		if sendErr := b.Mailbox.SendTaskAssignment(teamName, task, "team-lead"); sendErr != nil {
			return nil, sendErr
		}
	}
	return task, nil
}

// TaskList returns every task for a team.
func (b *Boundary) TaskList(teamName string) ([]model.Task, *teamserr.Error) {
	return b.Tasks.ListTasks(teamName)
}

// TaskGet returns a single task.
func (b *Boundary) TaskGet(teamName, taskID string) (*model.Task, *teamserr.Error) {
	return b.Tasks.GetTask(teamName, taskID)
}

// ReadInbox reads an agent's inbox.
func (b *Boundary) ReadInbox(teamName, agentName string, unreadOnly, markAsRead bool) ([]model.InboxMessage, *teamserr.Error) {
	return b.Mailbox.ReadInbox(teamName, agentName, unreadOnly, markAsRead)
}

// ReadConfig returns a team's full configuration.
func (b *Boundary) ReadConfig(teamName string) (*model.TeamConfig, *teamserr.Error) {
	return b.Registry.ReadConfig(teamName)
}

// ForceKillTeammate best-effort cleans up a teammate's remote session
// (opencode) and kills its multiplexer target, removes it from the
// registry, and resets any tasks it owned back to unowned.
func (b *Boundary) ForceKillTeammate(ctx context.Context, teamName, agentName string) *teamserr.Error {
	if err := b.Spawner.ForceKill(ctx, teamName, agentName, b.Config.OpencodeServerURL); err != nil {
		return err
	}
	return b.Tasks.ResetOwnerTasks(teamName, agentName)
}

// ProcessShutdownApproved finalizes a teammate shutdown the lead has
// already confirmed via its own inbox: best-effort cleans up its
// remote session when opencode-backed, kills its multiplexer target
// when one was assigned, removes the member, and resets its tasks.
func (b *Boundary) ProcessShutdownApproved(ctx context.Context, teamName, agentName string) *teamserr.Error {
	if agentName == "team-lead" {
		return teamserr.New(teamserr.InvalidInput, "cannot process shutdown for team-lead")
	}
	member, err := b.resolveMember(teamName, agentName)
	if err != nil {
		return err
	}
	if member.BackendKind == model.BackendOpencode && member.RemoteSessionID != nil && b.Config.OpencodeServerURL != "" {
		remote := backend.NewRemoteClient(b.Config.OpencodeServerURL)
		if abortErr := remote.AbortSession(ctx, *member.RemoteSessionID); abortErr != nil {
			log.Printf("shutdown %q: abort remote session %s: %v", agentName, *member.RemoteSessionID, abortErr)
		}
		if delErr := remote.DeleteSession(ctx, *member.RemoteSessionID); delErr != nil {
			log.Printf("shutdown %q: delete remote session %s: %v", agentName, *member.RemoteSessionID, delErr)
		}
	}
	if member.MultiplexerTargetID != "" {
		if killErr := backend.KillTmuxTarget(member.MultiplexerTargetID); killErr != nil {
			log.Printf("shutdown %q: kill tmux target %s: %v", agentName, member.MultiplexerTargetID, killErr)
		}
	}
	if err := b.Registry.RemoveMember(teamName, agentName); err != nil {
		return err
	}
	return b.Tasks.ResetOwnerTasks(teamName, agentName)
}

// PollInbox waits up to timeout for at least one unread message,
// sleeping in PollInterval slices between checks. Returns an empty
// slice (not an error) on timeout.
func (b *Boundary) PollInbox(ctx context.Context, teamName, agentName string, timeout time.Duration) ([]model.InboxMessage, *teamserr.Error) {
	interval := b.PollInterval
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	deadline := time.Now().Add(timeout)
	for {
		msgs, err := b.Mailbox.ReadInbox(teamName, agentName, true, true)
		if err != nil {
			return nil, err
		}
		if len(msgs) > 0 {
			return msgs, nil
		}
		if !time.Now().Before(deadline) {
			return []model.InboxMessage{}, nil
		}
		select {
		case <-ctx.Done():
			return nil, teamserr.Wrap(teamserr.External, ctx.Err(), "poll_inbox cancelled")
		case <-time.After(interval):
		}
	}
}
