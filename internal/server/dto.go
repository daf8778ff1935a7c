package server

import (
	"fieldline/internal/domain"
)

// Request payloads

type CreateProjectRequest struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description *string `json:"description,omitempty"`
}

type SetAnchorsRequest struct {
	KODate         string `json:"ko_date" format:"date"`
	FieldworkStart string `json:"fieldwork_start" format:"date"`
	FieldworkEnd   string `json:"fieldwork_end" format:"date"`
	ReportDue      string `json:"report_due" format:"date"`
}

type ShiftBoundaryRequest struct {
	Edge string `json:"edge" enum:"start,end"`
	Date string `json:"date" format:"date"`
}

type CreateTaskRequest struct {
	ID          *string `json:"id,omitempty"`
	Description string  `json:"description"`
	Phase       *string `json:"phase,omitempty" enum:"Kickoff,Pre-Field,Fielding,Post-Field Analysis,Reporting"`
	Role        *string `json:"role,omitempty"`
	DateRule    *string `json:"date_rule,omitempty"`
	DueDate     *string `json:"due_date,omitempty" format:"date"`
	IsOngoing   *bool   `json:"is_ongoing,omitempty"`
	Notes       *string `json:"notes,omitempty"`
}

type UpdateTaskRequest struct {
	Description *string `json:"description,omitempty"`
	Phase       *string `json:"phase,omitempty" enum:"Kickoff,Pre-Field,Fielding,Post-Field Analysis,Reporting"`
	Role        *string `json:"role,omitempty"`
	DateRule    *string `json:"date_rule,omitempty"`
	DueDate     *string `json:"due_date,omitempty" format:"date"`
	IsOngoing   *bool   `json:"is_ongoing,omitempty"`
	Status      *string `json:"status,omitempty" enum:"pending,in_progress,done,skipped"`
	Notes       *string `json:"notes,omitempty"`
}

type PreviewDueDatesRequest struct {
	Tasks []PreviewTaskRequest `json:"tasks"`
}

type PreviewTaskRequest struct {
	ID        string `json:"id"`
	DateRule  string `json:"date_rule"`
	IsOngoing bool   `json:"is_ongoing,omitempty"`
}

type CreateMemberRequest struct {
	Name  string   `json:"name"`
	Roles []string `json:"roles,omitempty"`
}

type ChangeRoleRequest struct {
	Role  string `json:"role"`
	Added bool   `json:"added"`
}

type CreateKeyDateRequest struct {
	Label string `json:"label"`
	Date  string `json:"date" format:"date"`
}

// Response payloads

type ProjectResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Status      string `json:"status"`
	Description string `json:"description,omitempty"`
	CreatedAt   string `json:"created_at" format:"date-time"`
}

type SegmentResponse struct {
	Phase     string `json:"phase"`
	Position  int    `json:"position"`
	StartDate string `json:"start_date" format:"date"`
	EndDate   string `json:"end_date" format:"date"`
}

type TimelineResponse struct {
	ProjectID string            `json:"project_id"`
	Anchors   *AnchorsResponse  `json:"anchors,omitempty"`
	Segments  []SegmentResponse `json:"segments"`
}

type AnchorsResponse struct {
	KODate         string `json:"ko_date" format:"date"`
	FieldworkStart string `json:"fieldwork_start" format:"date"`
	FieldworkEnd   string `json:"fieldwork_end" format:"date"`
	ReportDue      string `json:"report_due" format:"date"`
	UpdatedAt      string `json:"updated_at" format:"date-time"`
}

type TaskResponse struct {
	ID          string   `json:"id"`
	ProjectID   string   `json:"project_id"`
	Description string   `json:"description"`
	Phase       string   `json:"phase,omitempty"`
	Role        string   `json:"role,omitempty"`
	DateRule    string   `json:"date_rule,omitempty"`
	DueDate     *string  `json:"due_date" format:"date"`
	IsOngoing   bool     `json:"is_ongoing"`
	AssignedTo  []string `json:"assigned_to"`
	Status      string   `json:"status" enum:"pending,in_progress,done,skipped"`
	Notes       string   `json:"notes,omitempty"`
	CreatedAt   string   `json:"created_at" format:"date-time"`
	UpdatedAt   string   `json:"updated_at" format:"date-time"`
}

type MemberResponse struct {
	ID        string   `json:"id"`
	ProjectID string   `json:"project_id"`
	Name      string   `json:"name"`
	Roles     []string `json:"roles"`
	CreatedAt string   `json:"created_at" format:"date-time"`
}

type KeyDateResponse struct {
	ID        string `json:"id"`
	ProjectID string `json:"project_id"`
	Label     string `json:"label"`
	Date      string `json:"date" format:"date"`
}

type DueDateResponse struct {
	TaskID  string  `json:"task_id"`
	DueDate *string `json:"due_date"`
	Error   string  `json:"error,omitempty"`
}

type EventResponse struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	ProjectID  string `json:"project_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

func projectResponse(p domain.Project) ProjectResponse {
	return ProjectResponse{
		ID:          p.ID,
		Name:        p.Name,
		Status:      p.Status,
		Description: p.Description,
		CreatedAt:   p.CreatedAt,
	}
}

func mapProjects(items []domain.Project) []ProjectResponse {
	res := make([]ProjectResponse, len(items))
	for i, p := range items {
		res[i] = projectResponse(p)
	}
	return res
}

func segmentResponse(s domain.PhaseSegment) SegmentResponse {
	return SegmentResponse{
		Phase:     s.Phase,
		Position:  s.Position,
		StartDate: s.StartDate,
		EndDate:   s.EndDate,
	}
}

func mapSegments(items []domain.PhaseSegment) []SegmentResponse {
	res := make([]SegmentResponse, len(items))
	for i, s := range items {
		res[i] = segmentResponse(s)
	}
	return res
}

func taskResponse(t domain.Task) TaskResponse {
	assigned := t.AssignedTo
	if assigned == nil {
		assigned = []string{}
	}
	return TaskResponse{
		ID:          t.ID,
		ProjectID:   t.ProjectID,
		Description: t.Description,
		Phase:       t.Phase,
		Role:        t.Role,
		DateRule:    t.DateRule,
		DueDate:     t.DueDate,
		IsOngoing:   t.IsOngoing,
		AssignedTo:  assigned,
		Status:      t.Status,
		Notes:       t.Notes,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}
}

func mapTasks(items []domain.Task) []TaskResponse {
	res := make([]TaskResponse, len(items))
	for i, t := range items {
		res[i] = taskResponse(t)
	}
	return res
}

func memberResponse(m domain.TeamMember) MemberResponse {
	roles := m.Roles
	if roles == nil {
		roles = []string{}
	}
	return MemberResponse{
		ID:        m.ID,
		ProjectID: m.ProjectID,
		Name:      m.Name,
		Roles:     roles,
		CreatedAt: m.CreatedAt,
	}
}

func mapMembers(items []domain.TeamMember) []MemberResponse {
	res := make([]MemberResponse, len(items))
	for i, m := range items {
		res[i] = memberResponse(m)
	}
	return res
}

func keyDateResponse(kd domain.KeyDate) KeyDateResponse {
	return KeyDateResponse{ID: kd.ID, ProjectID: kd.ProjectID, Label: kd.Label, Date: kd.Date}
}

func mapKeyDates(items []domain.KeyDate) []KeyDateResponse {
	res := make([]KeyDateResponse, len(items))
	for i, kd := range items {
		res[i] = keyDateResponse(kd)
	}
	return res
}

func mapEvents(items []domain.Event) []EventResponse {
	res := make([]EventResponse, len(items))
	for i, e := range items {
		res[i] = EventResponse{
			ID:         e.ID,
			TS:         e.TS,
			Type:       e.Type,
			ProjectID:  e.ProjectID,
			EntityKind: e.EntityKind,
			EntityID:   e.EntityID,
			ActorID:    e.ActorID,
			Payload:    e.Payload,
		}
	}
	return res
}
