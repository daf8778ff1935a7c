// Package schedule is the host-facing surface of the scheduling core.
// It accepts plain string-dated inputs, delegates to the daterule and
// timeline packages, and hands back the same JSON-friendly shapes, so a
// host can integrate without touching the inner types.
package schedule

import (
	"fieldline/schedule/daterule"
	"fieldline/schedule/timeline"
)

// Timeline carries the four anchor dates as YYYY-MM-DD strings.
type Timeline struct {
	KODate         string `json:"ko_date"`
	FieldworkStart string `json:"fieldwork_start"`
	FieldworkEnd   string `json:"fieldwork_end"`
	ReportDue      string `json:"report_due"`
}

// Task is the slice of a task the due-date contracts need.
type Task struct {
	ID        string `json:"id"`
	DateRule  string `json:"date_rule"`
	Phase     string `json:"phase,omitempty"`
	IsOngoing bool   `json:"is_ongoing,omitempty"`
}

// TaskDueDate is one batch outcome. DueDate is nil when the task
// carries no fixed date; Err is non-nil when the rule failed to
// resolve, so callers can tell "no date intended" from "rule did not
// match" without reading logs.
type TaskDueDate struct {
	TaskID  string  `json:"task_id"`
	DueDate *string `json:"due_date"`
	Err     error   `json:"-"`
}

// CalculateTaskDueDate resolves one task's date rule against the
// timeline. Returns (nil, nil) when the task is ongoing or its rule
// intends no fixed date.
func CalculateTaskDueDate(task Task, tl Timeline) (*string, error) {
	anchors, err := daterule.ParseAnchors(tl.KODate, tl.FieldworkStart, tl.FieldworkEnd, tl.ReportDue)
	if err != nil {
		return nil, err
	}
	if task.IsOngoing {
		return nil, nil
	}
	return daterule.New().ResolveString(task.DateRule, anchors)
}

// CalculateTaskDueDates is the batch form: order-preserving, one
// outcome per task, independent per task. A rule failure lands in that
// task's Err and never aborts the batch; anchors that fail to parse
// abort the whole call since no task could resolve against them.
func CalculateTaskDueDates(tasks []Task, tl Timeline) ([]TaskDueDate, error) {
	anchors, err := daterule.ParseAnchors(tl.KODate, tl.FieldworkStart, tl.FieldworkEnd, tl.ReportDue)
	if err != nil {
		return nil, err
	}
	rules := make([]timeline.TaskRule, len(tasks))
	for i, t := range tasks {
		rules[i] = timeline.TaskRule{ID: t.ID, Rule: t.DateRule, Ongoing: t.IsOngoing}
	}
	resolved := timeline.ApplyDueDates(rules, anchors, daterule.New())
	out := make([]TaskDueDate, len(resolved))
	for i, r := range resolved {
		out[i] = TaskDueDate{TaskID: r.ID, DueDate: r.Date, Err: r.Err}
	}
	return out, nil
}

// BuildSegments derives the five phase segments from string-dated
// anchors. Segment dates come back as YYYY-MM-DD strings in calendar
// order.
func BuildSegments(tl Timeline) ([]Segment, error) {
	anchors, err := daterule.ParseAnchors(tl.KODate, tl.FieldworkStart, tl.FieldworkEnd, tl.ReportDue)
	if err != nil {
		return nil, err
	}
	segs, err := timeline.BuildSegments(anchors)
	if err != nil {
		return nil, err
	}
	out := make([]Segment, len(segs))
	for i, s := range segs {
		out[i] = Segment{
			Phase:     string(s.Phase),
			Position:  s.Position,
			StartDate: daterule.Format(s.Start),
			EndDate:   daterule.Format(s.End),
		}
	}
	return out, nil
}

// Segment is the host-facing phase segment shape.
type Segment struct {
	Phase     string `json:"phase"`
	Position  int    `json:"position"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
}
