package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"fieldline/internal/config"
	"fieldline/internal/domain"
	"fieldline/internal/events"
	"fieldline/internal/repo"
	"fieldline/schedule/assign"
	"fieldline/schedule/daterule"
	"fieldline/schedule/timeline"
)

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Config *config.Config
	Log    zerolog.Logger
	Now    func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{DB: db},
		Config: cfg,
		Log:    zerolog.Nop(),
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) resolver() daterule.Resolver {
	r := daterule.New().WithLogger(e.Log)
	if e.Config != nil {
		r = r.WithVocabulary(e.Config.RuleVocabulary())
	}
	return r
}

// InitProject initializes a new project with migrations already run.
func (e Engine) InitProject(ctx context.Context, projectID, name, description, actorID string) (domain.Project, error) {
	if name == "" {
		name = projectID
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Project{}, err
	}
	defer tx.Rollback()

	p := domain.Project{
		ID:          projectID,
		Name:        name,
		Status:      "active",
		Description: description,
		CreatedAt:   e.now().UTC().Format(time.RFC3339),
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO projects(id,name,status,description,created_at) VALUES (?,?,?,?,?)`,
		p.ID, p.Name, p.Status, nullable(p.Description), p.CreatedAt); err != nil {
		return domain.Project{}, fmt.Errorf("insert project: %w", err)
	}
	if err := e.Repo.UpsertProjectConfigTx(ctx, tx, p.ID, config.Default(p.ID, p.Name)); err != nil {
		return domain.Project{}, fmt.Errorf("insert project config: %w", err)
	}
	if err := e.Events.Append(ctx, tx, events.TypeProjectCreated, p.ID, "project", p.ID, actorID, events.EventPayload{"status": p.Status}); err != nil {
		return domain.Project{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Project{}, err
	}
	return p, nil
}

// SetAnchorDatesOptions are parameters for pinning the four milestones.
type SetAnchorDatesOptions struct {
	ProjectID      string
	KODate         string
	FieldworkStart string
	FieldworkEnd   string
	ReportDue      string
	ActorID        string
}

// SetAnchorDates validates the anchors, rebuilds all five phase
// segments, re-resolves every rule-tagged task's due date and re-stamps
// the key dates. Setting identical anchors twice leaves the project in
// the same state.
func (e Engine) SetAnchorDates(ctx context.Context, opts SetAnchorDatesOptions) ([]domain.PhaseSegment, error) {
	anchors, err := daterule.ParseAnchors(opts.KODate, opts.FieldworkStart, opts.FieldworkEnd, opts.ReportDue)
	if err != nil {
		return nil, err
	}
	segs, err := timeline.BuildSegments(anchors)
	if err != nil {
		return nil, err
	}
	if _, err := e.Repo.GetProject(ctx, opts.ProjectID); err != nil {
		return nil, err
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	now := e.now().UTC().Format(time.RFC3339)
	a := domain.AnchorDates{
		ProjectID:      opts.ProjectID,
		KODate:         opts.KODate,
		FieldworkStart: opts.FieldworkStart,
		FieldworkEnd:   opts.FieldworkEnd,
		ReportDue:      opts.ReportDue,
		UpdatedAt:      now,
	}
	if err := e.Repo.UpsertAnchorDates(ctx, tx, a); err != nil {
		return nil, fmt.Errorf("upsert anchors: %w", err)
	}

	rows := segmentsToDomain(opts.ProjectID, segs)
	if err := e.Repo.ReplaceSegments(ctx, tx, opts.ProjectID, rows); err != nil {
		return nil, fmt.Errorf("replace segments: %w", err)
	}

	recalced, err := e.recalcDueDates(ctx, tx, opts.ProjectID, anchors, now)
	if err != nil {
		return nil, err
	}
	restamped, err := e.restampKeyDates(ctx, tx, opts.ProjectID, segs)
	if err != nil {
		return nil, err
	}

	if err := e.Events.Append(ctx, tx, events.TypeAnchorsSet, opts.ProjectID, "timeline", opts.ProjectID, opts.ActorID, events.EventPayload{
		"ko_date": opts.KODate, "fieldwork_start": opts.FieldworkStart,
		"fieldwork_end": opts.FieldworkEnd, "report_due": opts.ReportDue,
	}); err != nil {
		return nil, err
	}
	if err := e.Events.Append(ctx, tx, events.TypeTimelineRebuilt, opts.ProjectID, "timeline", opts.ProjectID, opts.ActorID, events.EventPayload{
		"tasks_recalculated": recalced, "key_dates_restamped": restamped,
	}); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return rows, nil
}

// recalcDueDates re-resolves the due date of every rule-tagged task in
// the project. Unresolvable rules clear the date and are logged, never
// fatal.
func (e Engine) recalcDueDates(ctx context.Context, tx *sql.Tx, projectID string, anchors daterule.Anchors, now string) (int, error) {
	tasks, err := e.Repo.ListTasksTx(ctx, tx, projectID)
	if err != nil {
		return 0, err
	}
	rules := make([]timeline.TaskRule, 0, len(tasks))
	for _, t := range tasks {
		if t.DateRule == "" && !t.IsOngoing {
			continue
		}
		rules = append(rules, timeline.TaskRule{ID: t.ID, Rule: t.DateRule, Ongoing: t.IsOngoing})
	}
	resolved := timeline.ApplyDueDates(rules, anchors, e.resolver())
	changed := 0
	for _, d := range resolved {
		if d.Err != nil {
			var ur *daterule.UnresolvableRuleError
			if !errors.As(d.Err, &ur) {
				return 0, d.Err
			}
			e.Log.Warn().Str("task_id", d.ID).Str("rule", ur.Rule).Msg("date rule unresolvable, due date cleared")
		}
		if err := e.Repo.UpdateTaskDueDate(ctx, tx, d.ID, d.Date, now); err != nil {
			return 0, err
		}
		changed++
	}
	return changed, nil
}

// restampKeyDates rewrites every phase-referencing key date from the
// current segments.
func (e Engine) restampKeyDates(ctx context.Context, tx *sql.Tx, projectID string, segs []timeline.Segment) (int, error) {
	rows, err := e.Repo.ListKeyDatesTx(ctx, tx, projectID)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}
	kds := make([]timeline.KeyDate, len(rows))
	for i, kd := range rows {
		d, err := daterule.ParseDate(kd.Date)
		if err != nil {
			return 0, fmt.Errorf("key date %s: %w", kd.ID, err)
		}
		kds[i] = timeline.KeyDate{ID: kd.ID, Label: kd.Label, Date: d}
	}
	restamped := timeline.RestampKeyDates(kds, segs)
	changed := 0
	for i, kd := range restamped {
		date := daterule.Format(kd.Date)
		if date == rows[i].Date {
			continue
		}
		rows[i].Date = date
		if err := e.Repo.UpdateKeyDate(ctx, tx, rows[i]); err != nil {
			return 0, err
		}
		changed++
	}
	return changed, nil
}

// ShiftPhaseBoundary moves one boundary of one phase and re-pins the
// immediate neighbor, then re-stamps key dates referencing any phase.
func (e Engine) ShiftPhaseBoundary(ctx context.Context, projectID string, phase timeline.Phase, edge timeline.Edge, date, actorID string) ([]domain.PhaseSegment, error) {
	d, err := daterule.ParseDate(date)
	if err != nil {
		return nil, fmt.Errorf("invalid date %q: %w", date, err)
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	rows, err := e.Repo.ListSegmentsTx(ctx, tx, projectID)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, repo.ErrNotFound
	}
	segs, err := segmentsFromDomain(rows)
	if err != nil {
		return nil, err
	}
	shifted, err := timeline.ShiftBoundary(segs, phase, edge, d)
	if err != nil {
		return nil, err
	}
	out := segmentsToDomain(projectID, shifted)
	if err := e.Repo.ReplaceSegments(ctx, tx, projectID, out); err != nil {
		return nil, err
	}
	restamped, err := e.restampKeyDates(ctx, tx, projectID, shifted)
	if err != nil {
		return nil, err
	}
	if err := e.Events.Append(ctx, tx, events.TypeBoundaryShifted, projectID, "timeline", projectID, actorID, events.EventPayload{
		"phase": string(phase), "edge": string(edge), "date": date, "key_dates_restamped": restamped,
	}); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return out, nil
}

// CurrentPhase reports the active segment for today, or the pending /
// overdue edge states outside the timeline.
func (e Engine) CurrentPhase(ctx context.Context, projectID string) (domain.PhaseSegment, timeline.State, error) {
	rows, err := e.Repo.ListSegments(ctx, projectID)
	if err != nil {
		return domain.PhaseSegment{}, "", err
	}
	if len(rows) == 0 {
		return domain.PhaseSegment{}, "", repo.ErrNotFound
	}
	segs, err := segmentsFromDomain(rows)
	if err != nil {
		return domain.PhaseSegment{}, "", err
	}
	today := e.now().UTC().Truncate(24 * time.Hour)
	seg, state, err := timeline.CurrentPhase(segs, today)
	if err != nil {
		return domain.PhaseSegment{}, "", err
	}
	for _, row := range rows {
		if row.Phase == string(seg.Phase) {
			return row, state, nil
		}
	}
	return domain.PhaseSegment{}, "", repo.ErrNotFound
}

// TaskCreateOptions are parameters for creating a task.
type TaskCreateOptions struct {
	ID          string
	ProjectID   string
	Description string
	Phase       string
	Role        string
	DateRule    string
	DueDate     *string
	IsOngoing   bool
	Notes       string
	ActorID     string
}

func (e Engine) CreateTask(ctx context.Context, opts TaskCreateOptions) (domain.Task, error) {
	if opts.Description == "" {
		return domain.Task{}, errors.New("description is required")
	}
	if opts.ProjectID == "" {
		return domain.Task{}, errors.New("project is required")
	}
	if opts.Phase != "" && !timeline.KnownPhase(timeline.Phase(opts.Phase)) {
		return domain.Task{}, fmt.Errorf("unknown phase %q", opts.Phase)
	}
	if opts.DateRule != "" && opts.DueDate != nil {
		return domain.Task{}, errors.New("due date is computed from the date rule; set one or the other")
	}
	if _, err := e.Repo.GetProject(ctx, opts.ProjectID); err != nil {
		return domain.Task{}, err
	}

	id := opts.ID
	if id == "" {
		id = uuid.NewString()
	}
	now := e.now().UTC().Format(time.RFC3339)
	t := domain.Task{
		ID:          id,
		ProjectID:   opts.ProjectID,
		Description: opts.Description,
		Phase:       opts.Phase,
		Role:        opts.Role,
		DateRule:    opts.DateRule,
		DueDate:     opts.DueDate,
		IsOngoing:   opts.IsOngoing,
		AssignedTo:  []string{},
		Status:      "pending",
		Notes:       opts.Notes,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if t.IsOngoing {
		t.DueDate = nil
	} else if t.DateRule != "" {
		due, err := e.resolveDueDate(ctx, opts.ProjectID, t.DateRule, t.ID)
		if err != nil {
			return domain.Task{}, err
		}
		t.DueDate = due
	}
	if t.Role != "" {
		members, err := e.Repo.ListMembers(ctx, opts.ProjectID)
		if err != nil {
			return domain.Task{}, err
		}
		tasks := assign.ReassignAll(rosterFromDomain(members), []assign.Task{{ID: t.ID, Role: t.Role, AssignedTo: t.AssignedTo}})
		t.AssignedTo = tasks[0].AssignedTo
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertTask(ctx, tx, t); err != nil {
		return domain.Task{}, fmt.Errorf("insert task: %w", err)
	}
	if err := e.Events.Append(ctx, tx, events.TypeTaskCreated, t.ProjectID, "task", t.ID, opts.ActorID, events.EventPayload{
		"description": t.Description, "role": t.Role, "due_date": t.DueDate,
	}); err != nil {
		return domain.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	return t, nil
}

// resolveDueDate resolves a rule against the project's stored anchors.
// A project without anchors, or a rule outside the vocabulary, yields
// no date rather than an error.
func (e Engine) resolveDueDate(ctx context.Context, projectID, rule, taskID string) (*string, error) {
	a, err := e.Repo.GetAnchorDates(ctx, projectID)
	if err == repo.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	anchors, err := daterule.ParseAnchors(a.KODate, a.FieldworkStart, a.FieldworkEnd, a.ReportDue)
	if err != nil {
		return nil, err
	}
	due, err := e.resolver().ResolveString(rule, anchors)
	if err != nil {
		var ur *daterule.UnresolvableRuleError
		if errors.As(err, &ur) {
			e.Log.Warn().Str("task_id", taskID).Str("rule", ur.Rule).Msg("date rule unresolvable, task left undated")
			return nil, nil
		}
		return nil, err
	}
	return due, nil
}

// TaskUpdateOptions carries the mutable task fields. Nil pointers leave
// the stored value alone.
type TaskUpdateOptions struct {
	ID          string
	Description *string
	Phase       *string
	Role        *string
	DateRule    *string
	DueDate     *string
	IsOngoing   *bool
	Status      *string
	Notes       *string
	ActorID     string
}

func (e Engine) UpdateTask(ctx context.Context, opts TaskUpdateOptions) (domain.Task, error) {
	t, err := e.Repo.GetTask(ctx, opts.ID)
	if err != nil {
		return domain.Task{}, err
	}
	if opts.Description != nil {
		if *opts.Description == "" {
			return domain.Task{}, errors.New("description cannot be empty")
		}
		t.Description = *opts.Description
	}
	if opts.Phase != nil {
		if *opts.Phase != "" && !timeline.KnownPhase(timeline.Phase(*opts.Phase)) {
			return domain.Task{}, fmt.Errorf("unknown phase %q", *opts.Phase)
		}
		t.Phase = *opts.Phase
	}
	if opts.Status != nil {
		switch *opts.Status {
		case "pending", "in_progress", "done", "skipped":
		default:
			return domain.Task{}, fmt.Errorf("unknown status %q", *opts.Status)
		}
		t.Status = *opts.Status
	}
	if opts.Notes != nil {
		t.Notes = *opts.Notes
	}
	if opts.IsOngoing != nil {
		t.IsOngoing = *opts.IsOngoing
	}
	if opts.DateRule != nil {
		t.DateRule = *opts.DateRule
	}
	if opts.DueDate != nil {
		if t.DateRule != "" {
			return domain.Task{}, errors.New("due date is computed from the date rule; clear the rule first")
		}
		t.DueDate = opts.DueDate
	}

	roleChanged := false
	if opts.Role != nil && *opts.Role != t.Role {
		t.Role = *opts.Role
		roleChanged = true
	}

	switch {
	case t.IsOngoing:
		t.DueDate = nil
	case opts.DateRule != nil || opts.IsOngoing != nil:
		if t.DateRule != "" {
			due, err := e.resolveDueDate(ctx, t.ProjectID, t.DateRule, t.ID)
			if err != nil {
				return domain.Task{}, err
			}
			t.DueDate = due
		}
	}
	if roleChanged {
		if t.Role == "" {
			// Role-based assignees do not survive the role itself.
			t.AssignedTo = []string{}
		} else {
			members, err := e.Repo.ListMembers(ctx, t.ProjectID)
			if err != nil {
				return domain.Task{}, err
			}
			tasks := assign.ReassignAll(rosterFromDomain(members), []assign.Task{{ID: t.ID, Role: t.Role, AssignedTo: t.AssignedTo}})
			t.AssignedTo = tasks[0].AssignedTo
		}
	}

	t.UpdatedAt = e.now().UTC().Format(time.RFC3339)

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateTask(ctx, tx, t); err != nil {
		return domain.Task{}, err
	}
	if err := e.Events.Append(ctx, tx, events.TypeTaskUpdated, t.ProjectID, "task", t.ID, opts.ActorID, events.EventPayload{
		"status": t.Status, "due_date": t.DueDate,
	}); err != nil {
		return domain.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	return t, nil
}

// AddMember adds a roster entry and runs the scoped assignment pass for
// each role the member holds.
func (e Engine) AddMember(ctx context.Context, projectID, name string, roles []string, actorID string) (domain.TeamMember, error) {
	if name == "" {
		return domain.TeamMember{}, errors.New("name is required")
	}
	if _, err := e.Repo.GetProject(ctx, projectID); err != nil {
		return domain.TeamMember{}, err
	}
	if roles == nil {
		roles = []string{}
	}
	m := domain.TeamMember{
		ID:        uuid.NewString(),
		ProjectID: projectID,
		Name:      name,
		Roles:     roles,
		CreatedAt: e.now().UTC().Format(time.RFC3339),
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.TeamMember{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertMember(ctx, tx, m); err != nil {
		return domain.TeamMember{}, fmt.Errorf("insert member: %w", err)
	}
	for _, role := range m.Roles {
		if _, err := e.applyRoleChange(ctx, tx, projectID, m.ID, role, true); err != nil {
			return domain.TeamMember{}, err
		}
	}
	if err := e.Events.Append(ctx, tx, events.TypeMemberAdded, projectID, "member", m.ID, actorID, events.EventPayload{
		"name": m.Name, "roles": m.Roles,
	}); err != nil {
		return domain.TeamMember{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.TeamMember{}, err
	}
	return m, nil
}

// ChangeMemberRole grants or revokes one role on one member and runs
// the scoped assignment pass over the project's role-tagged tasks.
// Tasks outside the changed role are never touched.
func (e Engine) ChangeMemberRole(ctx context.Context, memberID, role string, added bool, actorID string) (domain.TeamMember, error) {
	if role == "" {
		return domain.TeamMember{}, errors.New("role is required")
	}
	m, err := e.Repo.GetMember(ctx, memberID)
	if err != nil {
		return domain.TeamMember{}, err
	}

	roles := make([]string, 0, len(m.Roles)+1)
	had := false
	for _, r := range m.Roles {
		if r == role {
			had = true
			if !added {
				continue
			}
		}
		roles = append(roles, r)
	}
	if added && !had {
		roles = append(roles, role)
	}
	m.Roles = roles

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.TeamMember{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateMemberRoles(ctx, tx, m.ID, m.Roles); err != nil {
		return domain.TeamMember{}, err
	}
	changed, err := e.applyRoleChange(ctx, tx, m.ProjectID, m.ID, role, added)
	if err != nil {
		return domain.TeamMember{}, err
	}
	if err := e.Events.Append(ctx, tx, events.TypeMemberRoleChanged, m.ProjectID, "member", m.ID, actorID, events.EventPayload{
		"role": role, "added": added,
	}); err != nil {
		return domain.TeamMember{}, err
	}
	if changed > 0 {
		if err := e.Events.Append(ctx, tx, events.TypeAssignmentsUpdated, m.ProjectID, "member", m.ID, actorID, events.EventPayload{
			"role": role, "tasks_changed": changed,
		}); err != nil {
			return domain.TeamMember{}, err
		}
	}
	if err := tx.Commit(); err != nil {
		return domain.TeamMember{}, err
	}
	return m, nil
}

// applyRoleChange runs the scoped assignment pass inside the caller's
// transaction and persists only the tasks whose assignees changed.
func (e Engine) applyRoleChange(ctx context.Context, tx *sql.Tx, projectID, memberID, role string, added bool) (int, error) {
	members, err := e.Repo.ListMembersTx(ctx, tx, projectID)
	if err != nil {
		return 0, err
	}
	tasks, err := e.Repo.ListTasksTx(ctx, tx, projectID)
	if err != nil {
		return 0, err
	}
	updated := assign.OnRoleChanged(memberID, role, added, rosterFromDomain(members), assignTasksFromDomain(tasks))
	now := e.now().UTC().Format(time.RFC3339)
	changed := 0
	for i, u := range updated {
		if sameAssignees(tasks[i].AssignedTo, u.AssignedTo) {
			continue
		}
		if err := e.Repo.UpdateTaskAssignees(ctx, tx, u.ID, u.AssignedTo, now); err != nil {
			return 0, err
		}
		changed++
	}
	return changed, nil
}

// ReassignAll rewrites every role-tagged task's assignees from the
// roster. Meant for initial team formation; day-to-day roster edits go
// through ChangeMemberRole.
func (e Engine) ReassignAll(ctx context.Context, projectID, actorID string) (int, error) {
	if _, err := e.Repo.GetProject(ctx, projectID); err != nil {
		return 0, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	members, err := e.Repo.ListMembersTx(ctx, tx, projectID)
	if err != nil {
		return 0, err
	}
	tasks, err := e.Repo.ListTasksTx(ctx, tx, projectID)
	if err != nil {
		return 0, err
	}
	updated := assign.ReassignAll(rosterFromDomain(members), assignTasksFromDomain(tasks))
	now := e.now().UTC().Format(time.RFC3339)
	changed := 0
	for i, u := range updated {
		if sameAssignees(tasks[i].AssignedTo, u.AssignedTo) {
			continue
		}
		if err := e.Repo.UpdateTaskAssignees(ctx, tx, u.ID, u.AssignedTo, now); err != nil {
			return 0, err
		}
		changed++
	}
	if err := e.Events.Append(ctx, tx, events.TypeAssignmentsRebuilt, projectID, "project", projectID, actorID, events.EventPayload{
		"tasks_changed": changed,
	}); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return changed, nil
}

// AddKeyDate records a calendar milestone, stamped from the current
// segments when its label references a phase.
func (e Engine) AddKeyDate(ctx context.Context, projectID, label, date, actorID string) (domain.KeyDate, error) {
	if label == "" {
		return domain.KeyDate{}, errors.New("label is required")
	}
	if _, err := daterule.ParseDate(date); err != nil {
		return domain.KeyDate{}, fmt.Errorf("invalid date %q: %w", date, err)
	}
	if _, err := e.Repo.GetProject(ctx, projectID); err != nil {
		return domain.KeyDate{}, err
	}
	kd := domain.KeyDate{
		ID:        uuid.NewString(),
		ProjectID: projectID,
		Label:     label,
		Date:      date,
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.KeyDate{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertKeyDate(ctx, tx, kd); err != nil {
		return domain.KeyDate{}, err
	}
	rows, err := e.Repo.ListSegmentsTx(ctx, tx, projectID)
	if err != nil {
		return domain.KeyDate{}, err
	}
	if len(rows) > 0 {
		segs, err := segmentsFromDomain(rows)
		if err != nil {
			return domain.KeyDate{}, err
		}
		d, _ := daterule.ParseDate(kd.Date)
		stamped := timeline.RestampKeyDates([]timeline.KeyDate{{ID: kd.ID, Label: kd.Label, Date: d}}, segs)
		if stampedDate := daterule.Format(stamped[0].Date); stampedDate != kd.Date {
			kd.Date = stampedDate
			if err := e.Repo.UpdateKeyDate(ctx, tx, kd); err != nil {
				return domain.KeyDate{}, err
			}
		}
	}
	if err := e.Events.Append(ctx, tx, events.TypeKeyDateCreated, projectID, "key_date", kd.ID, actorID, events.EventPayload{
		"label": kd.Label, "date": kd.Date,
	}); err != nil {
		return domain.KeyDate{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.KeyDate{}, err
	}
	return kd, nil
}

// PreviewDueDates resolves rules for a caller-supplied batch without
// persisting anything.
func (e Engine) PreviewDueDates(ctx context.Context, projectID string, tasks []timeline.TaskRule) ([]timeline.DueDate, error) {
	a, err := e.Repo.GetAnchorDates(ctx, projectID)
	if err != nil {
		return nil, err
	}
	anchors, err := daterule.ParseAnchors(a.KODate, a.FieldworkStart, a.FieldworkEnd, a.ReportDue)
	if err != nil {
		return nil, err
	}
	return timeline.ApplyDueDates(tasks, anchors, e.resolver()), nil
}

func segmentsToDomain(projectID string, segs []timeline.Segment) []domain.PhaseSegment {
	rows := make([]domain.PhaseSegment, len(segs))
	for i, s := range segs {
		rows[i] = domain.PhaseSegment{
			ProjectID: projectID,
			Phase:     string(s.Phase),
			Position:  s.Position,
			StartDate: daterule.Format(s.Start),
			EndDate:   daterule.Format(s.End),
		}
	}
	return rows
}

func segmentsFromDomain(rows []domain.PhaseSegment) ([]timeline.Segment, error) {
	segs := make([]timeline.Segment, len(rows))
	for i, row := range rows {
		start, err := daterule.ParseDate(row.StartDate)
		if err != nil {
			return nil, fmt.Errorf("segment %s start: %w", row.Phase, err)
		}
		end, err := daterule.ParseDate(row.EndDate)
		if err != nil {
			return nil, fmt.Errorf("segment %s end: %w", row.Phase, err)
		}
		segs[i] = timeline.Segment{Phase: timeline.Phase(row.Phase), Position: row.Position, Start: start, End: end}
	}
	return segs, nil
}

func rosterFromDomain(members []domain.TeamMember) []assign.Member {
	roster := make([]assign.Member, len(members))
	for i, m := range members {
		roster[i] = assign.Member{ID: m.ID, Name: m.Name, Roles: m.Roles}
	}
	return roster
}

func assignTasksFromDomain(tasks []domain.Task) []assign.Task {
	out := make([]assign.Task, len(tasks))
	for i, t := range tasks {
		out[i] = assign.Task{ID: t.ID, Role: t.Role, AssignedTo: t.AssignedTo}
	}
	return out
}

func sameAssignees(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
