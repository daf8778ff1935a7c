package engine_test

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"fieldline/internal/config"
	"fieldline/internal/db"
	"fieldline/internal/engine"
	"fieldline/internal/migrate"
	"fieldline/internal/repo"
	"fieldline/schedule/timeline"
)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	cfg := config.Default("proj-1", "Brand Tracker Wave 3")
	eng := engine.New(conn, cfg)
	eng.Now = func() time.Time { return time.Date(2025, 1, 28, 0, 0, 0, 0, time.UTC) }
	ctx := context.Background()
	if _, err := eng.InitProject(ctx, "proj-1", "Brand Tracker Wave 3", "", "tester"); err != nil {
		t.Fatalf("init project: %v", err)
	}
	return testEnv{Engine: eng, Ctx: ctx}
}

func setAnchors(t *testing.T, env testEnv) {
	t.Helper()
	_, err := env.Engine.SetAnchorDates(env.Ctx, engine.SetAnchorDatesOptions{
		ProjectID:      "proj-1",
		KODate:         "2025-01-06",
		FieldworkStart: "2025-01-20",
		FieldworkEnd:   "2025-02-14",
		ReportDue:      "2025-03-03",
		ActorID:        "tester",
	})
	if err != nil {
		t.Fatalf("set anchors: %v", err)
	}
}

func TestSetAnchorDatesBuildsSegments(t *testing.T) {
	env := newTestEnv(t)
	setAnchors(t, env)

	segs, err := env.Engine.Repo.ListSegments(env.Ctx, "proj-1")
	if err != nil {
		t.Fatalf("list segments: %v", err)
	}
	if len(segs) != 5 {
		t.Fatalf("expected 5 segments, got %d", len(segs))
	}
	if segs[0].Phase != "Kickoff" || segs[0].StartDate != "2025-01-06" || segs[0].EndDate != "2025-01-06" {
		t.Fatalf("kickoff segment wrong: %+v", segs[0])
	}
	if segs[2].Phase != "Fielding" || segs[2].StartDate != "2025-01-20" || segs[2].EndDate != "2025-02-14" {
		t.Fatalf("fielding segment wrong: %+v", segs[2])
	}
	if segs[4].Phase != "Reporting" || segs[4].EndDate != "2025-03-03" {
		t.Fatalf("reporting segment wrong: %+v", segs[4])
	}
}

func TestSetAnchorDatesRejectsInconsistentOrder(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.SetAnchorDates(env.Ctx, engine.SetAnchorDatesOptions{
		ProjectID:      "proj-1",
		KODate:         "2025-02-01",
		FieldworkStart: "2025-01-20",
		FieldworkEnd:   "2025-02-14",
		ReportDue:      "2025-03-03",
		ActorID:        "tester",
	})
	if err == nil {
		t.Fatalf("expected inconsistent anchors error")
	}
	if segs, _ := env.Engine.Repo.ListSegments(env.Ctx, "proj-1"); len(segs) != 0 {
		t.Fatalf("no segments should exist after rejected anchors, got %d", len(segs))
	}
}

func TestSetAnchorDatesIdempotent(t *testing.T) {
	env := newTestEnv(t)
	setAnchors(t, env)
	first, err := env.Engine.Repo.ListSegments(env.Ctx, "proj-1")
	if err != nil {
		t.Fatal(err)
	}
	setAnchors(t, env)
	second, err := env.Engine.Repo.ListSegments(env.Ctx, "proj-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(first) != len(second) {
		t.Fatalf("segment count changed: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("segment %d changed on identical anchors: %+v vs %+v", i, first[i], second[i])
		}
	}
}

func TestCreateTaskResolvesDueDate(t *testing.T) {
	env := newTestEnv(t)
	setAnchors(t, env)

	task, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
		ProjectID:   "proj-1",
		Description: "Finalize screener",
		DateRule:    "1 week prior to fieldwork start",
		ActorID:     "tester",
	})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	if task.DueDate == nil || *task.DueDate != "2025-01-13" {
		t.Fatalf("expected due 2025-01-13, got %v", task.DueDate)
	}
	if task.Status != "pending" {
		t.Fatalf("expected pending status, got %s", task.Status)
	}
}

func TestCreateTaskOngoingHasNoDueDate(t *testing.T) {
	env := newTestEnv(t)
	setAnchors(t, env)
	task, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
		ProjectID:   "proj-1",
		Description: "Monitor quotas",
		DateRule:    "ongoing",
		ActorID:     "tester",
	})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	if task.DueDate != nil {
		t.Fatalf("ongoing task must have no due date, got %v", *task.DueDate)
	}
}

func TestCreateTaskUnresolvableRuleLeavesTaskUndated(t *testing.T) {
	env := newTestEnv(t)
	setAnchors(t, env)
	task, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
		ProjectID:   "proj-1",
		Description: "Mystery deliverable",
		DateRule:    "whenever it feels right",
		ActorID:     "tester",
	})
	if err != nil {
		t.Fatalf("unresolvable rule must not fail task creation: %v", err)
	}
	if task.DueDate != nil {
		t.Fatalf("expected no due date, got %v", *task.DueDate)
	}
}

func TestCreateTaskRejectsManualDueWithRule(t *testing.T) {
	env := newTestEnv(t)
	setAnchors(t, env)
	due := "2025-02-01"
	_, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
		ProjectID:   "proj-1",
		Description: "Conflicted",
		DateRule:    "report due",
		DueDate:     &due,
		ActorID:     "tester",
	})
	if err == nil {
		t.Fatalf("expected error for manual due date alongside a rule")
	}
}

func TestSetAnchorDatesRecalculatesTaskDueDates(t *testing.T) {
	env := newTestEnv(t)
	setAnchors(t, env)
	task, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
		ProjectID:   "proj-1",
		Description: "Topline report",
		DateRule:    "report due date, final",
		ActorID:     "tester",
	})
	if err != nil {
		t.Fatal(err)
	}
	if task.DueDate == nil || *task.DueDate != "2025-03-03" {
		t.Fatalf("expected due 2025-03-03, got %v", task.DueDate)
	}

	_, err = env.Engine.SetAnchorDates(env.Ctx, engine.SetAnchorDatesOptions{
		ProjectID:      "proj-1",
		KODate:         "2025-01-06",
		FieldworkStart: "2025-01-20",
		FieldworkEnd:   "2025-02-14",
		ReportDue:      "2025-03-10",
		ActorID:        "tester",
	})
	if err != nil {
		t.Fatalf("move report due: %v", err)
	}
	got, err := env.Engine.Repo.GetTask(env.Ctx, task.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.DueDate == nil || *got.DueDate != "2025-03-10" {
		t.Fatalf("expected recomputed due 2025-03-10, got %v", got.DueDate)
	}
}

func TestShiftPhaseBoundaryPropagatesToNeighbor(t *testing.T) {
	env := newTestEnv(t)
	setAnchors(t, env)

	segs, err := env.Engine.ShiftPhaseBoundary(env.Ctx, "proj-1", timeline.PhaseFielding, timeline.EdgeEnd, "2025-02-18", "tester")
	if err != nil {
		t.Fatalf("shift boundary: %v", err)
	}
	var fielding, post string
	for _, s := range segs {
		switch s.Phase {
		case "Fielding":
			fielding = s.EndDate
		case "Post-Field Analysis":
			post = s.StartDate
		}
	}
	if fielding != "2025-02-18" {
		t.Fatalf("fielding end not moved: %s", fielding)
	}
	if post != "2025-02-19" {
		t.Fatalf("post-field start not re-pinned: %s", post)
	}
}

func TestShiftPhaseBoundaryRestampsKeyDates(t *testing.T) {
	env := newTestEnv(t)
	setAnchors(t, env)
	kd, err := env.Engine.AddKeyDate(env.Ctx, "proj-1", "Last day of fielding", "2025-02-14", "tester")
	if err != nil {
		t.Fatalf("add key date: %v", err)
	}
	if _, err := env.Engine.ShiftPhaseBoundary(env.Ctx, "proj-1", timeline.PhaseFielding, timeline.EdgeEnd, "2025-02-18", "tester"); err != nil {
		t.Fatal(err)
	}
	kds, err := env.Engine.Repo.ListKeyDates(env.Ctx, "proj-1")
	if err != nil {
		t.Fatal(err)
	}
	for _, got := range kds {
		if got.ID == kd.ID && got.Date != "2025-02-18" {
			t.Fatalf("key date not restamped: %s", got.Date)
		}
	}
}

func TestChangeMemberRoleScopedAssignment(t *testing.T) {
	env := newTestEnv(t)
	setAnchors(t, env)
	m, err := env.Engine.AddMember(env.Ctx, "proj-1", "Ada", []string{"Logistics"}, "tester")
	if err != nil {
		t.Fatalf("add member: %v", err)
	}
	logistics, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
		ProjectID: "proj-1", Description: "Book facility", Role: "Logistics", ActorID: "tester",
	})
	if err != nil {
		t.Fatal(err)
	}
	analyst, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
		ProjectID: "proj-1", Description: "Build crosstabs", Role: "Analyst", ActorID: "tester",
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(logistics.AssignedTo) != 1 || logistics.AssignedTo[0] != m.ID {
		t.Fatalf("logistics task should be assigned to %s, got %v", m.ID, logistics.AssignedTo)
	}

	// Granting Analyst touches only the Analyst task.
	if _, err := env.Engine.ChangeMemberRole(env.Ctx, m.ID, "Analyst", true, "tester"); err != nil {
		t.Fatalf("grant role: %v", err)
	}
	gotAnalyst, _ := env.Engine.Repo.GetTask(env.Ctx, analyst.ID)
	if len(gotAnalyst.AssignedTo) != 1 || gotAnalyst.AssignedTo[0] != m.ID {
		t.Fatalf("analyst task not assigned: %v", gotAnalyst.AssignedTo)
	}
	gotLogistics, _ := env.Engine.Repo.GetTask(env.Ctx, logistics.ID)
	if len(gotLogistics.AssignedTo) != 1 || gotLogistics.AssignedTo[0] != m.ID {
		t.Fatalf("logistics task must be untouched: %v", gotLogistics.AssignedTo)
	}

	// Revoking the last Logistics holder empties the assignee list.
	if _, err := env.Engine.ChangeMemberRole(env.Ctx, m.ID, "Logistics", false, "tester"); err != nil {
		t.Fatalf("revoke role: %v", err)
	}
	gotLogistics, _ = env.Engine.Repo.GetTask(env.Ctx, logistics.ID)
	if len(gotLogistics.AssignedTo) != 0 {
		t.Fatalf("expected empty assignees, got %v", gotLogistics.AssignedTo)
	}
	if gotLogistics.AssignedTo == nil {
		t.Fatalf("expected empty list, not nil")
	}
}

func TestChangeMemberRoleIdempotent(t *testing.T) {
	env := newTestEnv(t)
	m, err := env.Engine.AddMember(env.Ctx, "proj-1", "Bea", []string{}, "tester")
	if err != nil {
		t.Fatal(err)
	}
	task, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
		ProjectID: "proj-1", Description: "Moderate groups", Role: "Moderator", ActorID: "tester",
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.ChangeMemberRole(env.Ctx, m.ID, "Moderator", true, "tester"); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.ChangeMemberRole(env.Ctx, m.ID, "Moderator", true, "tester"); err != nil {
		t.Fatal(err)
	}
	got, _ := env.Engine.Repo.GetTask(env.Ctx, task.ID)
	if len(got.AssignedTo) != 1 {
		t.Fatalf("expected single assignee after repeated grant, got %v", got.AssignedTo)
	}
}

func TestReassignAll(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.AddMember(env.Ctx, "proj-1", "Cyd", []string{"Analyst"}, "tester"); err != nil {
		t.Fatal(err)
	}
	task, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
		ProjectID: "proj-1", Description: "Code verbatims", Role: "Analyst", ActorID: "tester",
	})
	if err != nil {
		t.Fatal(err)
	}
	// Clobber the assignment manually, then rebuild.
	tx, err := env.Engine.DB.BeginTx(env.Ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := env.Engine.Repo.UpdateTaskAssignees(env.Ctx, tx, task.ID, []string{}, "2025-01-28T00:00:00Z"); err != nil {
		t.Fatal(err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}
	changed, err := env.Engine.ReassignAll(env.Ctx, "proj-1", "tester")
	if err != nil {
		t.Fatalf("reassign all: %v", err)
	}
	if changed != 1 {
		t.Fatalf("expected 1 task changed, got %d", changed)
	}
}

func TestCurrentPhase(t *testing.T) {
	env := newTestEnv(t)
	setAnchors(t, env)

	// Injected clock says 2025-01-28, inside Fielding.
	seg, state, err := env.Engine.CurrentPhase(env.Ctx, "proj-1")
	if err != nil {
		t.Fatalf("current phase: %v", err)
	}
	if seg.Phase != "Fielding" || state != timeline.StateActive {
		t.Fatalf("expected active Fielding, got %s %s", seg.Phase, state)
	}

	env.Engine.Now = func() time.Time { return time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC) }
	seg, state, err = env.Engine.CurrentPhase(env.Ctx, "proj-1")
	if err != nil {
		t.Fatal(err)
	}
	if seg.Phase != "Reporting" || state != timeline.StateOverdue {
		t.Fatalf("expected overdue Reporting, got %s %s", seg.Phase, state)
	}
}

func TestUpdateTaskOngoingClearsDueDate(t *testing.T) {
	env := newTestEnv(t)
	setAnchors(t, env)
	task, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
		ProjectID: "proj-1", Description: "Field updates", DateRule: "first day of fieldwork", ActorID: "tester",
	})
	if err != nil {
		t.Fatal(err)
	}
	if task.DueDate == nil {
		t.Fatalf("expected resolved due date")
	}
	ongoing := true
	got, err := env.Engine.UpdateTask(env.Ctx, engine.TaskUpdateOptions{ID: task.ID, IsOngoing: &ongoing, ActorID: "tester"})
	if err != nil {
		t.Fatal(err)
	}
	if got.DueDate != nil {
		t.Fatalf("ongoing must clear due date, got %v", *got.DueDate)
	}
}

func TestEventAppendOnStateChanges(t *testing.T) {
	env := newTestEnv(t)
	setAnchors(t, env)
	if _, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
		ProjectID: "proj-1", Description: "Draft guide", ActorID: "tester",
	}); err != nil {
		t.Fatal(err)
	}
	evts, err := env.Engine.Repo.LatestEvents(env.Ctx, 50, "proj-1", "", "", "")
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	types := map[string]bool{}
	for _, e := range evts {
		types[e.Type] = true
	}
	for _, want := range []string{"project.created", "anchors.set", "timeline.rebuilt", "task.created"} {
		if !types[want] {
			t.Fatalf("missing event %s in %v", want, types)
		}
	}
}

func TestPreviewDueDates(t *testing.T) {
	env := newTestEnv(t)
	setAnchors(t, env)
	out, err := env.Engine.PreviewDueDates(env.Ctx, "proj-1", []timeline.TaskRule{
		{ID: "a", Rule: "KO date, 1 day before"},
		{ID: "b", Rule: "ongoing"},
	})
	if err != nil {
		t.Fatalf("preview: %v", err)
	}
	if out[0].Date == nil || *out[0].Date != "2025-01-03" {
		t.Fatalf("expected 2025-01-03, got %v", out[0].Date)
	}
	if out[1].Date != nil {
		t.Fatalf("ongoing must stay undated")
	}
}

func TestGetTaskNotFound(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.Repo.GetTask(env.Ctx, "missing"); err != repo.ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUnresolvableRuleEmitsDiagnostic(t *testing.T) {
	env := newTestEnv(t)
	setAnchors(t, env)
	var buf bytes.Buffer
	env.Engine.Log = zerolog.New(&buf)

	task, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
		ProjectID:   "proj-1",
		Description: "Confirm venue catering",
		DateRule:    "two moons after the gala",
		ActorID:     "tester",
	})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "two moons after the gala") {
		t.Fatalf("diagnostic must name the rule text, got %q", out)
	}
	if !strings.Contains(out, task.ID) {
		t.Fatalf("diagnostic must name the task id %s, got %q", task.ID, out)
	}
}

func TestUpdateTaskClearingRoleClearsAssignees(t *testing.T) {
	env := newTestEnv(t)
	m, err := env.Engine.AddMember(env.Ctx, "proj-1", "Cleo", []string{"Logistics"}, "tester")
	if err != nil {
		t.Fatal(err)
	}
	task, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
		ProjectID: "proj-1", Description: "Ship stimuli", Role: "Logistics", ActorID: "tester",
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(task.AssignedTo) != 1 || task.AssignedTo[0] != m.ID {
		t.Fatalf("task should start assigned to %s, got %v", m.ID, task.AssignedTo)
	}

	noRole := ""
	updated, err := env.Engine.UpdateTask(env.Ctx, engine.TaskUpdateOptions{
		ID: task.ID, Role: &noRole, ActorID: "tester",
	})
	if err != nil {
		t.Fatalf("update task: %v", err)
	}
	if len(updated.AssignedTo) != 0 {
		t.Fatalf("expected empty assignees after role removal, got %v", updated.AssignedTo)
	}
	if updated.AssignedTo == nil {
		t.Fatalf("expected empty list, not nil")
	}
}
