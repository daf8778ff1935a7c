package domain

type Project struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Status      string `json:"status" enum:"active,paused,archived"`
	Description string `json:"description,omitempty"`
	CreatedAt   string `json:"created_at" format:"date-time"`
}

// AnchorDates are the four project milestones every computed date is
// expressed relative to. Dates are YYYY-MM-DD with no time component.
// Invariant: ko_date <= fieldwork_start <= fieldwork_end <= report_due.
type AnchorDates struct {
	ProjectID      string `json:"project_id"`
	KODate         string `json:"ko_date" format:"date"`
	FieldworkStart string `json:"fieldwork_start" format:"date"`
	FieldworkEnd   string `json:"fieldwork_end" format:"date"`
	ReportDue      string `json:"report_due" format:"date"`
	UpdatedAt      string `json:"updated_at" format:"date-time"`
}

// PhaseSegment is one contiguous calendar range assigned to a named
// project phase. A project owns exactly one segment per canonical phase.
type PhaseSegment struct {
	ProjectID string `json:"project_id"`
	Phase     string `json:"phase" enum:"Kickoff,Pre-Field,Fielding,Post-Field Analysis,Reporting"`
	Position  int    `json:"position"`
	StartDate string `json:"start_date" format:"date"`
	EndDate   string `json:"end_date" format:"date"`
}

type Task struct {
	ID          string   `json:"id"`
	ProjectID   string   `json:"project_id"`
	Description string   `json:"description"`
	Phase       string   `json:"phase,omitempty"`
	Role        string   `json:"role,omitempty"`
	DateRule    string   `json:"date_rule,omitempty"`
	DueDate     *string  `json:"due_date,omitempty" format:"date"`
	IsOngoing   bool     `json:"is_ongoing"`
	AssignedTo  []string `json:"assigned_to"`
	Status      string   `json:"status" enum:"pending,in_progress,done,skipped"`
	Notes       string   `json:"notes,omitempty"`
	CreatedAt   string   `json:"created_at" format:"date-time"`
	UpdatedAt   string   `json:"updated_at" format:"date-time"`
}

type TeamMember struct {
	ID        string   `json:"id"`
	ProjectID string   `json:"project_id"`
	Name      string   `json:"name"`
	Roles     []string `json:"roles"`
	CreatedAt string   `json:"created_at" format:"date-time"`
}

// KeyDate is a derived milestone row shown on the project calendar. Its
// label references a phase ("Fielding begins", "Reporting due") and is
// re-stamped whenever that phase's boundaries move.
type KeyDate struct {
	ID        string `json:"id"`
	ProjectID string `json:"project_id"`
	Label     string `json:"label"`
	Date      string `json:"date" format:"date"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	ProjectID  string `json:"project_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}
