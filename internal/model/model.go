// Package model holds the data types persisted under the team/task
// directory tree: team configs, tagged-union members, tasks, and the
// structured payloads carried inside inbox messages.
package model

// ColorPalette is the ordered set of colors assigned to teammates as
// they join a team. A spawn into a team that already has n teammates
// gets palette[n % len(palette)], so the first teammate gets palette[0].
var ColorPalette = []string{
	"blue", "green", "yellow", "purple",
	"orange", "pink", "cyan", "red",
}

// BackendKind identifies which external coding-agent implementation
// hosts a teammate.
type BackendKind string

const (
	BackendClaude   BackendKind = "claude"
	BackendOpencode BackendKind = "opencode"
)

// TeamConfig is the JSON-serialized contents of teams/<team>/config.json.
type TeamConfig struct {
	Name           string   `json:"name"`
	Description    string   `json:"description,omitempty"`
	CreatedAt      int64    `json:"createdAt"`
	LeadAgentID    string   `json:"leadAgentId"`
	LeadSessionID  string   `json:"leadSessionId"`
	Members        []Member `json:"members"`
}

// Member is the tagged union of LeadMember / TeammateMember. On disk
// the two variants can be distinguished implicitly by the presence of
// a "prompt" field; this type additionally writes an explicit "kind"
// discriminant so new writers don't depend on field sniffing, while
// still accepting the implicit (no "kind") form for compatibility with
// configs written by older or foreign tooling.
type Member struct {
	Kind string `json:"kind,omitempty"` // "lead" or "teammate"; inferred if absent

	AgentID              string   `json:"agentId"`
	Name                 string   `json:"name"`
	AgentType            string   `json:"agentType"`
	Model                string   `json:"model"`
	JoinedAt             int64    `json:"joinedAt"`
	MultiplexerTargetID  string   `json:"multiplexerTargetId"`
	CWD                  string   `json:"cwd"`
	Subscriptions        []string `json:"subscriptions,omitempty"`

	// Teammate-only fields. Absent (and omitted) on a lead.
	Prompt            *string      `json:"prompt,omitempty"`
	Color             string       `json:"color,omitempty"`
	PlanModeRequired  bool         `json:"planModeRequired,omitempty"`
	BackendKind       BackendKind  `json:"backendKind,omitempty"`
	RemoteSessionID   *string      `json:"remoteSessionId,omitempty"`
	IsActive          bool         `json:"isActive,omitempty"`
}

// IsLead reports whether m is the team-lead variant.
func (m Member) IsLead() bool {
	if m.Kind != "" {
		return m.Kind == "lead"
	}
	return m.Prompt == nil
}

// IsTeammate reports whether m is the teammate variant.
func (m Member) IsTeammate() bool {
	return !m.IsLead()
}

// NewLead constructs the lead member variant.
func NewLead(agentID, name, agentType, model string, joinedAt int64, cwd string) Member {
	return Member{
		Kind:      "lead",
		AgentID:   agentID,
		Name:      name,
		AgentType: agentType,
		Model:     model,
		JoinedAt:  joinedAt,
		CWD:       cwd,
	}
}

// NewTeammate constructs the teammate member variant.
func NewTeammate(agentID, name, agentType, model, prompt, color string, joinedAt int64, cwd string, backend BackendKind) Member {
	return Member{
		Kind:        "teammate",
		AgentID:     agentID,
		Name:        name,
		AgentType:   agentType,
		Model:       model,
		JoinedAt:    joinedAt,
		CWD:         cwd,
		Prompt:      &prompt,
		Color:       color,
		BackendKind: backend,
	}
}

// TaskStatus is the lifecycle state of a Task.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in_progress"
	TaskCompleted  TaskStatus = "completed"
	TaskDeleted    TaskStatus = "deleted"
)

// StatusRank gives the monotonicity ordering a task's status must
// only move forward through. "deleted" has no rank: it is reachable
// from any state and is terminal.
var StatusRank = map[TaskStatus]int{
	TaskPending:    0,
	TaskInProgress: 1,
	TaskCompleted:  2,
}

// Task is the JSON-serialized contents of tasks/<team>/<id>.json.
type Task struct {
	ID          string            `json:"id"`
	Subject     string            `json:"subject"`
	Description string            `json:"description"`
	ActiveForm  string            `json:"activeForm,omitempty"`
	Status      TaskStatus        `json:"status"`
	Blocks      []string          `json:"blocks"`
	BlockedBy   []string          `json:"blockedBy"`
	Owner       *string           `json:"owner,omitempty"`
	Metadata    map[string]any    `json:"metadata,omitempty"`
}

// InboxMessage is a single entry in an agent's append-only inbox array.
type InboxMessage struct {
	From      string  `json:"from"`
	Text      string  `json:"text"`
	Timestamp string  `json:"timestamp"` // ISO-8601 ms UTC, trailing "Z"
	Read      bool    `json:"read"`
	Summary   *string `json:"summary,omitempty"`
	Color     *string `json:"color,omitempty"`
}

// TaskAssignment is a structured payload carried inside InboxMessage.Text.
type TaskAssignment struct {
	Type        string `json:"type"`
	TaskID      string `json:"taskId"`
	Subject     string `json:"subject"`
	Description string `json:"description"`
	AssignedBy  string `json:"assignedBy"`
	Timestamp   string `json:"timestamp"`
}

// NewTaskAssignment builds a TaskAssignment payload.
func NewTaskAssignment(taskID, subject, description, assignedBy, timestamp string) TaskAssignment {
	return TaskAssignment{
		Type:        "task_assignment",
		TaskID:      taskID,
		Subject:     subject,
		Description: description,
		AssignedBy:  assignedBy,
		Timestamp:   timestamp,
	}
}

// ShutdownRequest is a structured payload carried inside InboxMessage.Text.
type ShutdownRequest struct {
	Type      string `json:"type"`
	RequestID string `json:"requestId"`
	From      string `json:"from"`
	Reason    string `json:"reason"`
	Timestamp string `json:"timestamp"`
}

// ShutdownApproved is a structured payload carried inside InboxMessage.Text.
type ShutdownApproved struct {
	Type        string  `json:"type"`
	RequestID   string  `json:"requestId"`
	From        string  `json:"from"`
	Timestamp   string  `json:"timestamp"`
	PaneID      string  `json:"paneId"`
	BackendType string  `json:"backendType"`
	SessionID   *string `json:"sessionId,omitempty"`
}

// IdleNotification is a structured payload carried inside InboxMessage.Text.
type IdleNotification struct {
	Type       string `json:"type"`
	From       string `json:"from"`
	Timestamp  string `json:"timestamp"`
	IdleReason string `json:"idleReason"`
}

// PlanApproval is the structured payload for an approved plan review.
// A rejection is sent as a plain-text reason instead.
type PlanApproval struct {
	Type     string `json:"type"`
	Approved bool   `json:"approved"`
}

// NewPlanApproval builds the fixed-shape plan approval payload.
func NewPlanApproval() PlanApproval {
	return PlanApproval{Type: "plan_approval", Approved: true}
}
