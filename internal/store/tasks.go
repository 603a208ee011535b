package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/jg-phare/claude-teams/internal/fslock"
	"github.com/jg-phare/claude-teams/internal/model"
	"github.com/jg-phare/claude-teams/internal/teamserr"
)

// Tasks implements the task dependency engine: one JSON file per task
// under tasks/<team>/<id>.json, guarded by a single tasks/<team>/.lock
// for the whole four-phase transaction.
type Tasks struct {
	BaseDir  string
	Registry *Registry
}

// NewTasks returns a Tasks store rooted at baseDir. CreateTask and
// ListTasks use Registry to confirm the team exists first; the other
// methods do not check.
func NewTasks(baseDir string, registry *Registry) *Tasks {
	return &Tasks{BaseDir: baseDir, Registry: registry}
}

func (ts *Tasks) teamDir(team string) string { return filepath.Join(ts.BaseDir, "tasks", team) }
func (ts *Tasks) taskPath(team, id string) string {
	return filepath.Join(ts.teamDir(team), id+".json")
}
func (ts *Tasks) lockPath(team string) string {
	return filepath.Join(ts.teamDir(team), ".lock")
}

// listTaskIDs globs numeric-named JSON files in the team's task
// directory, filtering to entries whose stem parses as an int. The
// match runs through doublestar over an os.DirFS of that directory.
func (ts *Tasks) listTaskIDs(team string) ([]string, *teamserr.Error) {
	dir := ts.teamDir(team)
	matches, err := doublestar.Glob(os.DirFS(dir), "*.json")
	if err != nil {
		return nil, teamserr.Wrap(teamserr.IO, err, "glob task files for %q", team)
	}
	var ids []string
	for _, m := range matches {
		stem := m[:len(m)-len(filepath.Ext(m))]
		if _, convErr := strconv.Atoi(stem); convErr != nil {
			continue
		}
		ids = append(ids, stem)
	}
	return ids, nil
}

// NextTaskID returns the successor of the maximum numeric filename
// under tasks/<team>/, or "1" if none exist. Gaps from deletion are
// never reused.
func (ts *Tasks) NextTaskID(team string) (string, *teamserr.Error) {
	ids, err := ts.listTaskIDs(team)
	if err != nil {
		return "", err
	}
	max := 0
	for _, id := range ids {
		n, _ := strconv.Atoi(id)
		if n > max {
			max = n
		}
	}
	return strconv.Itoa(max + 1), nil
}

func (ts *Tasks) readTask(team, id string) (*model.Task, *teamserr.Error) {
	data, err := os.ReadFile(ts.taskPath(team, id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, teamserr.New(teamserr.NotFound, "task %q not found in team %q", id, team)
		}
		return nil, teamserr.Wrap(teamserr.IO, err, "read task %q/%q", team, id)
	}
	var task model.Task
	if jsonErr := json.Unmarshal(data, &task); jsonErr != nil {
		return nil, teamserr.Wrap(teamserr.IO, jsonErr, "parse task %q/%q", team, id)
	}
	return &task, nil
}

func (ts *Tasks) writeTask(team string, task *model.Task) *teamserr.Error {
	data, err := json.Marshal(task)
	if err != nil {
		return teamserr.Wrap(teamserr.IO, err, "marshal task %q/%q", team, task.ID)
	}
	if err := os.WriteFile(ts.taskPath(team, task.ID), data, 0o644); err != nil {
		return teamserr.Wrap(teamserr.IO, err, "write task %q/%q", team, task.ID)
	}
	return nil
}

func (ts *Tasks) taskExists(team, id string) bool {
	_, err := os.Stat(ts.taskPath(team, id))
	return err == nil
}

// CreateTask creates a new task with an auto-assigned id under lock.
func (ts *Tasks) CreateTask(team, subject, description, activeForm string, metadata map[string]any) (*model.Task, *teamserr.Error) {
	if subject == "" {
		return nil, teamserr.New(teamserr.InvalidInput, "task subject must not be empty")
	}
	if !ts.Registry.TeamExists(team) {
		return nil, teamserr.New(teamserr.NotFound, "team %q does not exist", team)
	}
	if err := os.MkdirAll(ts.teamDir(team), 0o755); err != nil {
		return nil, teamserr.Wrap(teamserr.IO, err, "create tasks directory for %q", team)
	}

	var task *model.Task
	lockErr := fslock.WithLock(ts.lockPath(team), func() error {
		id, err := ts.NextTaskID(team)
		if err != nil {
			return err
		}
		task = &model.Task{
			ID:          id,
			Subject:     subject,
			Description: description,
			ActiveForm:  activeForm,
			Status:      model.TaskPending,
			Blocks:      []string{},
			BlockedBy:   []string{},
			Metadata:    metadata,
		}
		return ts.writeTask(team, task)
	})
	if lockErr != nil {
		return nil, toTeamsErr(lockErr)
	}
	return task, nil
}

// GetTask loads a single task file.
func (ts *Tasks) GetTask(team, id string) (*model.Task, *teamserr.Error) {
	return ts.readTask(team, id)
}

// ListTasks returns every task for a team, sorted by integer id.
func (ts *Tasks) ListTasks(team string) ([]model.Task, *teamserr.Error) {
	if !ts.Registry.TeamExists(team) {
		return nil, teamserr.New(teamserr.NotFound, "team %q does not exist", team)
	}
	ids, err := ts.listTaskIDs(team)
	if err != nil {
		return nil, err
	}
	tasks := make([]model.Task, 0, len(ids))
	for _, id := range ids {
		task, rErr := ts.readTask(team, id)
		if rErr != nil {
			continue // best-effort scan: skip unreadable task files rather than failing the whole list
		}
		tasks = append(tasks, *task)
	}
	sort.Slice(tasks, func(i, j int) bool {
		a, _ := strconv.Atoi(tasks[i].ID)
		b, _ := strconv.Atoi(tasks[j].ID)
		return a < b
	})
	return tasks, nil
}

// UpdateFields is the set of optional mutations accepted by UpdateTask.
// Pointer/slice fields left nil are left untouched.
type UpdateFields struct {
	Status       *model.TaskStatus
	Owner        *string
	Subject      *string
	Description  *string
	ActiveForm   *string
	AddBlocks    []string
	AddBlockedBy []string
	Metadata     map[string]any // nil value for a key removes that key
}

// wouldCreateCycle runs a BFS from toID through blocked_by edges
// (on-disk union pending) looking for fromID.
func (ts *Tasks) wouldCreateCycle(team, fromID, toID string, pendingEdges map[string]map[string]bool) (bool, *teamserr.Error) {
	visited := map[string]bool{}
	queue := []string{toID}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		if current == fromID {
			return true, nil
		}
		if visited[current] {
			continue
		}
		visited[current] = true

		if ts.taskExists(team, current) {
			task, err := ts.readTask(team, current)
			if err != nil {
				return false, err
			}
			for _, d := range task.BlockedBy {
				if !visited[d] {
					queue = append(queue, d)
				}
			}
		}
		for d := range pendingEdges[current] {
			if !visited[d] {
				queue = append(queue, d)
			}
		}
	}
	return false, nil
}

// UpdateTask runs the four-phase read-validate-mutate-write
// transaction under the team's task lock.
func (ts *Tasks) UpdateTask(team, taskID string, fields UpdateFields) (*model.Task, *teamserr.Error) {
	var result *model.Task
	lockErr := fslock.WithLock(ts.lockPath(team), func() error {
		task, err := ts.readTask(team, taskID)
		if err != nil {
			return err
		}

		// --- Phase 2: Validate ---
		pendingEdges := map[string]map[string]bool{}
		addPending := func(node, edge string) {
			if pendingEdges[node] == nil {
				pendingEdges[node] = map[string]bool{}
			}
			pendingEdges[node][edge] = true
		}

		for _, b := range fields.AddBlocks {
			if b == taskID {
				return teamserr.New(teamserr.Precondition, "task %s cannot block itself", taskID)
			}
			if !ts.taskExists(team, b) {
				return teamserr.New(teamserr.Precondition, "referenced task %q does not exist", b)
			}
		}
		for _, b := range fields.AddBlocks {
			addPending(b, taskID)
		}

		for _, b := range fields.AddBlockedBy {
			if b == taskID {
				return teamserr.New(teamserr.Precondition, "task %s cannot be blocked by itself", taskID)
			}
			if !ts.taskExists(team, b) {
				return teamserr.New(teamserr.Precondition, "referenced task %q does not exist", b)
			}
		}
		for _, b := range fields.AddBlockedBy {
			addPending(taskID, b)
		}

		for _, b := range fields.AddBlocks {
			cyclic, cErr := ts.wouldCreateCycle(team, b, taskID, pendingEdges)
			if cErr != nil {
				return cErr
			}
			if cyclic {
				return teamserr.New(teamserr.Precondition, "adding block %s -> %s would create a circular dependency", taskID, b)
			}
		}
		for _, b := range fields.AddBlockedBy {
			cyclic, cErr := ts.wouldCreateCycle(team, taskID, b, pendingEdges)
			if cErr != nil {
				return cErr
			}
			if cyclic {
				return teamserr.New(teamserr.Precondition, "adding dependency %s blocked_by %s would create a circular dependency", taskID, b)
			}
		}

		if fields.Status != nil && *fields.Status != model.TaskDeleted {
			curRank, ok := model.StatusRank[task.Status]
			if !ok {
				return teamserr.New(teamserr.Precondition, "task %s has unknown status %q", taskID, task.Status)
			}
			newRank, ok := model.StatusRank[*fields.Status]
			if !ok {
				return teamserr.New(teamserr.InvalidInput, "invalid status: %q", *fields.Status)
			}
			if newRank < curRank {
				return teamserr.New(teamserr.Precondition, "cannot transition from %q to %q", task.Status, *fields.Status)
			}

			if *fields.Status == model.TaskInProgress || *fields.Status == model.TaskCompleted {
				effectiveBlockedBy := map[string]bool{}
				for _, b := range task.BlockedBy {
					effectiveBlockedBy[b] = true
				}
				for _, b := range fields.AddBlockedBy {
					effectiveBlockedBy[b] = true
				}
				for blockerID := range effectiveBlockedBy {
					if !ts.taskExists(team, blockerID) {
						continue
					}
					blocker, bErr := ts.readTask(team, blockerID)
					if bErr != nil {
						return bErr
					}
					if blocker.Status != model.TaskCompleted {
						return teamserr.New(teamserr.Precondition, "cannot set status to %q: blocked by task %s (status: %q)", *fields.Status, blockerID, blocker.Status)
					}
				}
			}
		}

		// --- Phase 3: Mutate (in-memory only) ---
		pendingWrites := map[string]*model.Task{}
		getOther := func(id string) (*model.Task, error) {
			if t, ok := pendingWrites[id]; ok {
				return t, nil
			}
			t, rErr := ts.readTask(team, id)
			if rErr != nil {
				return nil, rErr
			}
			return t, nil
		}

		if fields.Subject != nil {
			task.Subject = *fields.Subject
		}
		if fields.Description != nil {
			task.Description = *fields.Description
		}
		if fields.ActiveForm != nil {
			task.ActiveForm = *fields.ActiveForm
		}
		if fields.Owner != nil {
			task.Owner = fields.Owner
		}

		for _, b := range fields.AddBlocks {
			if !containsStr(task.Blocks, b) {
				task.Blocks = append(task.Blocks, b)
			}
			other, gErr := getOther(b)
			if gErr != nil {
				return gErr
			}
			if !containsStr(other.BlockedBy, taskID) {
				other.BlockedBy = append(other.BlockedBy, taskID)
			}
			pendingWrites[b] = other
		}

		for _, b := range fields.AddBlockedBy {
			if !containsStr(task.BlockedBy, b) {
				task.BlockedBy = append(task.BlockedBy, b)
			}
			other, gErr := getOther(b)
			if gErr != nil {
				return gErr
			}
			if !containsStr(other.Blocks, taskID) {
				other.Blocks = append(other.Blocks, taskID)
			}
			pendingWrites[b] = other
		}

		if fields.Metadata != nil {
			current := task.Metadata
			if current == nil {
				current = map[string]any{}
			}
			for k, v := range fields.Metadata {
				if v == nil {
					delete(current, k)
				} else {
					current[k] = v
				}
			}
			if len(current) == 0 {
				task.Metadata = nil
			} else {
				task.Metadata = current
			}
		}

		if fields.Status != nil && *fields.Status != model.TaskDeleted {
			task.Status = *fields.Status
			if *fields.Status == model.TaskCompleted {
				ids, lErr := ts.listTaskIDs(team)
				if lErr != nil {
					return lErr
				}
				for _, id := range ids {
					if id == taskID {
						continue
					}
					other, gErr := getOther(id)
					if gErr != nil {
						return gErr
					}
					if containsStr(other.BlockedBy, taskID) {
						other.BlockedBy = removeStr(other.BlockedBy, taskID)
						pendingWrites[id] = other
					}
				}
			}
		}

		deleting := fields.Status != nil && *fields.Status == model.TaskDeleted
		if deleting {
			task.Status = model.TaskDeleted
			ids, lErr := ts.listTaskIDs(team)
			if lErr != nil {
				return lErr
			}
			for _, id := range ids {
				if id == taskID {
					continue
				}
				other, gErr := getOther(id)
				if gErr != nil {
					return gErr
				}
				changed := false
				if containsStr(other.BlockedBy, taskID) {
					other.BlockedBy = removeStr(other.BlockedBy, taskID)
					changed = true
				}
				if containsStr(other.Blocks, taskID) {
					other.Blocks = removeStr(other.Blocks, taskID)
					changed = true
				}
				if changed {
					pendingWrites[id] = other
				}
			}
		}

		// --- Phase 4: Write ---
		flush := func() *teamserr.Error {
			for id, other := range pendingWrites {
				if wErr := ts.writeTask(team, other); wErr != nil {
					_ = id
					return wErr
				}
			}
			return nil
		}

		if deleting {
			if fErr := flush(); fErr != nil {
				return fErr
			}
			if rmErr := os.Remove(ts.taskPath(team, taskID)); rmErr != nil && !os.IsNotExist(rmErr) {
				return teamserr.Wrap(teamserr.IO, rmErr, "unlink task %q/%q", team, taskID)
			}
		} else {
			if wErr := ts.writeTask(team, task); wErr != nil {
				return wErr
			}
			if fErr := flush(); fErr != nil {
				return fErr
			}
		}

		result = task
		return nil
	})
	if lockErr != nil {
		return nil, toTeamsErr(lockErr)
	}
	return result, nil
}

// ResetOwnerTasks clears ownership for every task owned by agent.
// Non-completed tasks revert to pending; completed tasks are left
// completed with owner cleared.
func (ts *Tasks) ResetOwnerTasks(team, agent string) *teamserr.Error {
	lockErr := fslock.WithLock(ts.lockPath(team), func() error {
		ids, err := ts.listTaskIDs(team)
		if err != nil {
			return err
		}
		for _, id := range ids {
			task, rErr := ts.readTask(team, id)
			if rErr != nil {
				return rErr
			}
			if task.Owner == nil || *task.Owner != agent {
				continue
			}
			task.Owner = nil
			if task.Status != model.TaskCompleted {
				task.Status = model.TaskPending
			}
			if wErr := ts.writeTask(team, task); wErr != nil {
				return wErr
			}
		}
		return nil
	})
	if lockErr != nil {
		return toTeamsErr(lockErr)
	}
	return nil
}

func containsStr(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func removeStr(list []string, v string) []string {
	out := list[:0]
	for _, s := range list {
		if s != v {
			out = append(out, s)
		}
	}
	return out
}

// toTeamsErr normalizes the error returned from inside a
// fslock.WithLock closure (which may already be a *teamserr.Error, or
// a plain lock-acquisition error) into a *teamserr.Error.
func toTeamsErr(err error) *teamserr.Error {
	if te, ok := err.(*teamserr.Error); ok {
		return te
	}
	return teamserr.Wrap(teamserr.IO, err, "task transaction failed")
}
