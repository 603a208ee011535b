// Package store implements the filesystem-backed team registry,
// inbox, and task engine: the on-disk stores that the tool-handler
// boundary drives.
package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"

	"github.com/jg-phare/claude-teams/internal/fslock"
	"github.com/jg-phare/claude-teams/internal/model"
	"github.com/jg-phare/claude-teams/internal/teamserr"
)

// Registry is the team registry rooted at a base directory (default
// <user-home>/.claude). It owns teams/<team>/config.json and the
// parallel tasks/<team>/ subtree's bootstrap.
type Registry struct {
	BaseDir string
}

// NewRegistry returns a Registry rooted at baseDir.
func NewRegistry(baseDir string) *Registry {
	return &Registry{BaseDir: baseDir}
}

var validNameRE = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// ValidateName enforces the shared name rule for team names and
// teammate names: ASCII letters, digits, underscore, and hyphen only.
func ValidateName(name string) *teamserr.Error {
	if !validNameRE.MatchString(name) {
		return teamserr.New(teamserr.InvalidInput, "invalid name %q: use only letters, numbers, hyphens, underscores", name)
	}
	if len(name) > 64 {
		return teamserr.New(teamserr.InvalidInput, "name too long (%d chars, max 64): %q", len(name), name)
	}
	return nil
}

func (r *Registry) teamDir(name string) string  { return filepath.Join(r.BaseDir, "teams", name) }
func (r *Registry) tasksDir(name string) string { return filepath.Join(r.BaseDir, "tasks", name) }
func (r *Registry) configPath(name string) string {
	return filepath.Join(r.teamDir(name), "config.json")
}
func (r *Registry) inboxesDir(name string) string {
	return filepath.Join(r.teamDir(name), "inboxes")
}

// TeamExists reports whether a team config file exists.
func (r *Registry) TeamExists(name string) bool {
	_, err := os.Stat(r.configPath(name))
	return err == nil
}

// CreateTeam validates the name, creates both the teams/<team>/ and
// tasks/<team>/ subtrees, touches tasks/<team>/.lock, and writes a
// fresh config containing only the lead. Fails if a config already
// exists (no silent overwrite).
func (r *Registry) CreateTeam(name, sessionID, description, leadModel string, nowMS int64, cwd string) (*model.TeamConfig, *teamserr.Error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	if r.TeamExists(name) {
		return nil, teamserr.New(teamserr.Precondition, "team %q already exists", name)
	}

	if err := os.MkdirAll(r.teamDir(name), 0o755); err != nil {
		return nil, teamserr.Wrap(teamserr.IO, err, "create team directory for %q", name)
	}
	if err := os.MkdirAll(r.inboxesDir(name), 0o755); err != nil {
		return nil, teamserr.Wrap(teamserr.IO, err, "create inboxes directory for %q", name)
	}
	taskDir := r.tasksDir(name)
	if err := os.MkdirAll(taskDir, 0o755); err != nil {
		return nil, teamserr.Wrap(teamserr.IO, err, "create tasks directory for %q", name)
	}
	lockPath := filepath.Join(taskDir, ".lock")
	if f, err := os.OpenFile(lockPath, os.O_CREATE, 0o644); err != nil {
		return nil, teamserr.Wrap(teamserr.IO, err, "create task lock file for %q", name)
	} else {
		f.Close()
	}

	leadAgentID := "team-lead@" + name
	lead := model.NewLead(leadAgentID, "team-lead", "team-lead", leadModel, nowMS, cwd)

	cfg := &model.TeamConfig{
		Name:          name,
		Description:   description,
		CreatedAt:     nowMS,
		LeadAgentID:   leadAgentID,
		LeadSessionID: sessionID,
		Members:       []model.Member{lead},
	}

	if err := r.writeConfigUnlocked(name, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// DeleteTeam removes both subtrees. Fails with Precondition if any
// teammate member is still present.
func (r *Registry) DeleteTeam(name string) *teamserr.Error {
	cfg, err := r.ReadConfig(name)
	if err != nil {
		return err
	}

	var nonLead int
	for _, m := range cfg.Members {
		if m.IsTeammate() {
			nonLead++
		}
	}
	if nonLead > 0 {
		return teamserr.New(teamserr.Precondition, "cannot delete team %q: %d non-lead member(s) still present", name, nonLead)
	}

	if rmErr := os.RemoveAll(r.teamDir(name)); rmErr != nil {
		return teamserr.Wrap(teamserr.IO, rmErr, "remove team directory for %q", name)
	}
	if rmErr := os.RemoveAll(r.tasksDir(name)); rmErr != nil {
		return teamserr.Wrap(teamserr.IO, rmErr, "remove tasks directory for %q", name)
	}
	return nil
}

// ReadConfig reads and parses a team's config.json.
func (r *Registry) ReadConfig(name string) (*model.TeamConfig, *teamserr.Error) {
	data, err := os.ReadFile(r.configPath(name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, teamserr.New(teamserr.NotFound, "team %q not found", name)
		}
		return nil, teamserr.Wrap(teamserr.IO, err, "read config for %q", name)
	}
	var cfg model.TeamConfig
	if jsonErr := json.Unmarshal(data, &cfg); jsonErr != nil {
		return nil, teamserr.Wrap(teamserr.IO, jsonErr, "parse config for %q", name)
	}
	return &cfg, nil
}

// WriteConfig atomically rewrites a team's config.json.
func (r *Registry) WriteConfig(name string, cfg *model.TeamConfig) *teamserr.Error {
	return r.writeConfigUnlocked(name, cfg)
}

func (r *Registry) writeConfigUnlocked(name string, cfg *model.TeamConfig) *teamserr.Error {
	data, jsonErr := json.MarshalIndent(cfg, "", "  ")
	if jsonErr != nil {
		return teamserr.Wrap(teamserr.IO, jsonErr, "marshal config for %q", name)
	}
	if err := fslock.WriteFileAtomic(r.configPath(name), data, 0o644); err != nil {
		return teamserr.Wrap(teamserr.IO, err, "write config for %q", name)
	}
	return nil
}

// configLock returns the lock guarding config.json mutations for a
// team. A dedicated teams/<team>/.lock is used rather than reusing the
// inbox lock file, keeping config mutations from contending with
// message traffic.
func (r *Registry) configLock(name string) *fslock.Lock {
	return fslock.New(filepath.Join(r.teamDir(name), ".lock"))
}

// AddMember appends member under the config lock, rejecting a
// duplicate name.
func (r *Registry) AddMember(name string, member model.Member) *teamserr.Error {
	lock := r.configLock(name)
	if lockErr := lock.Lock(); lockErr != nil {
		return teamserr.Wrap(teamserr.IO, lockErr, "lock config for %q", name)
	}
	defer lock.Unlock()

	cfg, err := r.ReadConfig(name)
	if err != nil {
		return err
	}
	for _, m := range cfg.Members {
		if m.Name == member.Name {
			return teamserr.New(teamserr.Conflict, "member %q already exists in team %q", member.Name, name)
		}
	}
	cfg.Members = append(cfg.Members, member)
	return r.writeConfigUnlocked(name, cfg)
}

// RemoveMember removes a member by name under the config lock.
// "team-lead" can never be removed.
func (r *Registry) RemoveMember(teamName, agentName string) *teamserr.Error {
	if agentName == "team-lead" {
		return teamserr.New(teamserr.InvalidInput, "cannot remove team-lead from team")
	}

	lock := r.configLock(teamName)
	if lockErr := lock.Lock(); lockErr != nil {
		return teamserr.Wrap(teamserr.IO, lockErr, "lock config for %q", teamName)
	}
	defer lock.Unlock()

	cfg, err := r.ReadConfig(teamName)
	if err != nil {
		return err
	}
	filtered := cfg.Members[:0]
	found := false
	for _, m := range cfg.Members {
		if m.Name == agentName {
			found = true
			continue
		}
		filtered = append(filtered, m)
	}
	if !found {
		return teamserr.New(teamserr.NotFound, "member %q not found in team %q", agentName, teamName)
	}
	cfg.Members = filtered
	return r.writeConfigUnlocked(teamName, cfg)
}

// FindMember returns the named member, or nil if absent.
func (r *Registry) FindMember(teamName, agentName string) (*model.Member, *teamserr.Error) {
	cfg, err := r.ReadConfig(teamName)
	if err != nil {
		return nil, err
	}
	for i := range cfg.Members {
		if cfg.Members[i].Name == agentName {
			return &cfg.Members[i], nil
		}
	}
	return nil, nil
}
