package store

import (
	"testing"

	"github.com/jg-phare/claude-teams/internal/model"
	"github.com/jg-phare/claude-teams/internal/teamserr"
)

func newTasksFixture(t *testing.T) (*Tasks, *Registry) {
	t.Helper()
	base := t.TempDir()
	reg := NewRegistry(base)
	if _, err := reg.CreateTeam("demo", "s", "", "m", 1, "/"); err != nil {
		t.Fatalf("CreateTeam: %v", err)
	}
	return NewTasks(base, reg), reg
}

func strp(s string) *string { return &s }

func TestCreateTaskAssignsSequentialIDs(t *testing.T) {
	ts, _ := newTasksFixture(t)
	first, err := ts.CreateTask("demo", "first", "d", "", nil)
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	second, err := ts.CreateTask("demo", "second", "d", "", nil)
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	if first.ID != "1" || second.ID != "2" {
		t.Fatalf("expected ids 1 and 2, got %s and %s", first.ID, second.ID)
	}
}

func TestCreateTaskUnknownTeam(t *testing.T) {
	ts, _ := newTasksFixture(t)
	if _, err := ts.CreateTask("ghost", "x", "d", "", nil); err == nil || err.Kind != teamserr.NotFound {
		t.Fatalf("expected not-found, got %v", err)
	}
}

// TestDependencyCycleRejected covers task B declaring blocked_by A,
// then adding A blocked_by B, which must be rejected.
func TestDependencyCycleRejected(t *testing.T) {
	ts, _ := newTasksFixture(t)
	a, err := ts.CreateTask("demo", "a", "d", "", nil)
	if err != nil {
		t.Fatalf("CreateTask a: %v", err)
	}
	b, err := ts.CreateTask("demo", "b", "d", "", nil)
	if err != nil {
		t.Fatalf("CreateTask b: %v", err)
	}

	if _, err := ts.UpdateTask("demo", b.ID, UpdateFields{AddBlockedBy: []string{a.ID}}); err != nil {
		t.Fatalf("UpdateTask b blocked_by a: %v", err)
	}

	if _, err := ts.UpdateTask("demo", a.ID, UpdateFields{AddBlockedBy: []string{b.ID}}); err == nil || err.Kind != teamserr.Precondition {
		t.Fatalf("expected precondition cycle rejection, got %v", err)
	}
}

// TestBlockedTaskCannotProgressUntilBlockerCompletes covers a task
// blocked_by an incomplete task: it cannot move to in_progress, but
// can once the blocker completes.
func TestBlockedTaskCannotProgressUntilBlockerCompletes(t *testing.T) {
	ts, _ := newTasksFixture(t)
	blocker, err := ts.CreateTask("demo", "blocker", "d", "", nil)
	if err != nil {
		t.Fatalf("CreateTask blocker: %v", err)
	}
	blocked, err := ts.CreateTask("demo", "blocked", "d", "", nil)
	if err != nil {
		t.Fatalf("CreateTask blocked: %v", err)
	}
	if _, err := ts.UpdateTask("demo", blocked.ID, UpdateFields{AddBlockedBy: []string{blocker.ID}}); err != nil {
		t.Fatalf("UpdateTask blocked_by: %v", err)
	}

	inProgress := model.TaskInProgress
	if _, err := ts.UpdateTask("demo", blocked.ID, UpdateFields{Status: &inProgress}); err == nil || err.Kind != teamserr.Precondition {
		t.Fatalf("expected precondition while blocker incomplete, got %v", err)
	}

	completed := model.TaskCompleted
	if _, err := ts.UpdateTask("demo", blocker.ID, UpdateFields{Status: &completed}); err != nil {
		t.Fatalf("complete blocker: %v", err)
	}

	updated, err := ts.UpdateTask("demo", blocked.ID, UpdateFields{Status: &inProgress})
	if err != nil {
		t.Fatalf("expected success once blocker completed: %v", err)
	}
	if updated.Status != model.TaskInProgress {
		t.Fatalf("expected in_progress, got %q", updated.Status)
	}
}

// TestDeleteCascadesUnlinksAndRewritesSiblings covers deleting a task:
// it removes its file and strips it from every sibling's
// blocks/blocked_by lists.
func TestDeleteCascadesUnlinksAndRewritesSiblings(t *testing.T) {
	ts, _ := newTasksFixture(t)
	a, err := ts.CreateTask("demo", "a", "d", "", nil)
	if err != nil {
		t.Fatalf("CreateTask a: %v", err)
	}
	b, err := ts.CreateTask("demo", "b", "d", "", nil)
	if err != nil {
		t.Fatalf("CreateTask b: %v", err)
	}
	if _, err := ts.UpdateTask("demo", b.ID, UpdateFields{AddBlockedBy: []string{a.ID}}); err != nil {
		t.Fatalf("UpdateTask blocked_by: %v", err)
	}

	deleted := model.TaskDeleted
	if _, err := ts.UpdateTask("demo", a.ID, UpdateFields{Status: &deleted}); err != nil {
		t.Fatalf("delete a: %v", err)
	}

	if _, err := ts.GetTask("demo", a.ID); err == nil || err.Kind != teamserr.NotFound {
		t.Fatalf("expected deleted task file to be gone, got %v", err)
	}

	bAfter, err := ts.GetTask("demo", b.ID)
	if err != nil {
		t.Fatalf("GetTask b: %v", err)
	}
	if len(bAfter.BlockedBy) != 0 {
		t.Fatalf("expected b's blocked_by to be cleared, got %v", bAfter.BlockedBy)
	}
}

func TestUpdateTaskRejectsBackwardTransition(t *testing.T) {
	ts, _ := newTasksFixture(t)
	task, err := ts.CreateTask("demo", "a", "d", "", nil)
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	completed := model.TaskCompleted
	if _, err := ts.UpdateTask("demo", task.ID, UpdateFields{Status: &completed}); err != nil {
		t.Fatalf("complete task: %v", err)
	}
	pending := model.TaskPending
	if _, err := ts.UpdateTask("demo", task.ID, UpdateFields{Status: &pending}); err == nil || err.Kind != teamserr.Precondition {
		t.Fatalf("expected precondition on backward transition, got %v", err)
	}
}

func TestUpdateTaskRejectsSelfBlock(t *testing.T) {
	ts, _ := newTasksFixture(t)
	task, err := ts.CreateTask("demo", "a", "d", "", nil)
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	if _, err := ts.UpdateTask("demo", task.ID, UpdateFields{AddBlocks: []string{task.ID}}); err == nil || err.Kind != teamserr.Precondition {
		t.Fatalf("expected precondition on self-block, got %v", err)
	}
}

func TestListTasksSortedByID(t *testing.T) {
	ts, _ := newTasksFixture(t)
	for i := 0; i < 3; i++ {
		if _, err := ts.CreateTask("demo", "t", "d", "", nil); err != nil {
			t.Fatalf("CreateTask: %v", err)
		}
	}
	list, err := ts.ListTasks("demo")
	if err != nil {
		t.Fatalf("ListTasks: %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("expected 3 tasks, got %d", len(list))
	}
	for i, want := range []string{"1", "2", "3"} {
		if list[i].ID != want {
			t.Fatalf("expected order 1,2,3, got %v", list)
		}
	}
}

func TestResetOwnerTasksRevertsNonCompleted(t *testing.T) {
	ts, _ := newTasksFixture(t)
	task, err := ts.CreateTask("demo", "a", "d", "", nil)
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	owner := strp("worker")
	inProgress := model.TaskInProgress
	if _, err := ts.UpdateTask("demo", task.ID, UpdateFields{Owner: owner, Status: &inProgress}); err != nil {
		t.Fatalf("UpdateTask: %v", err)
	}

	if err := ts.ResetOwnerTasks("demo", "worker"); err != nil {
		t.Fatalf("ResetOwnerTasks: %v", err)
	}

	reset, err := ts.GetTask("demo", task.ID)
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if reset.Owner != nil {
		t.Fatalf("expected owner cleared, got %v", *reset.Owner)
	}
	if reset.Status != model.TaskPending {
		t.Fatalf("expected reverted to pending, got %q", reset.Status)
	}
}

func TestResetOwnerTasksLeavesCompletedStatusAlone(t *testing.T) {
	ts, _ := newTasksFixture(t)
	task, err := ts.CreateTask("demo", "a", "d", "", nil)
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	owner := strp("worker")
	completed := model.TaskCompleted
	if _, err := ts.UpdateTask("demo", task.ID, UpdateFields{Owner: owner, Status: &completed}); err != nil {
		t.Fatalf("UpdateTask: %v", err)
	}

	if err := ts.ResetOwnerTasks("demo", "worker"); err != nil {
		t.Fatalf("ResetOwnerTasks: %v", err)
	}

	reset, err := ts.GetTask("demo", task.ID)
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if reset.Owner != nil {
		t.Fatalf("expected owner cleared even though completed, got %v", *reset.Owner)
	}
	if reset.Status != model.TaskCompleted {
		t.Fatalf("completed status must not revert, got %q", reset.Status)
	}
}
