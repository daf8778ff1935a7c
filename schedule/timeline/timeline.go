// Package timeline derives the five contiguous project phase segments
// from the four anchor dates and keeps them consistent under manual
// boundary edits.
package timeline

import (
	"fmt"
	"strings"
	"time"

	"fieldline/schedule/daterule"
)

// Phase names one of the five canonical project phases.
type Phase string

const (
	PhaseKickoff   Phase = "Kickoff"
	PhasePreField  Phase = "Pre-Field"
	PhaseFielding  Phase = "Fielding"
	PhasePostField Phase = "Post-Field Analysis"
	PhaseReporting Phase = "Reporting"
)

// Phases lists the canonical phases in calendar order.
var Phases = []Phase{PhaseKickoff, PhasePreField, PhaseFielding, PhasePostField, PhaseReporting}

// KnownPhase reports whether name is a canonical phase.
func KnownPhase(name Phase) bool {
	for _, p := range Phases {
		if p == name {
			return true
		}
	}
	return false
}

// Segment is one contiguous calendar range owned by a phase. An empty
// segment (possible when adjacent anchors touch) has Start one day
// after End; lookups skip empty segments.
type Segment struct {
	Phase    Phase
	Position int
	Start    time.Time
	End      time.Time
}

// Empty reports whether the segment covers no calendar days.
func (s Segment) Empty() bool {
	return s.Start.After(s.End)
}

// Contains reports whether day falls inside the segment.
func (s Segment) Contains(day time.Time) bool {
	return !s.Empty() && !day.Before(s.Start) && !day.After(s.End)
}

// InconsistentAnchorsError reports an anchor pair that violates the
// ordering invariant ko_date <= fieldwork_start <= fieldwork_end <=
// report_due.
type InconsistentAnchorsError struct {
	Earlier daterule.Anchor
	Later   daterule.Anchor
}

func (e *InconsistentAnchorsError) Error() string {
	return fmt.Sprintf("inconsistent anchors: %s must not be after %s", e.Earlier, e.Later)
}

// BuildSegments derives the five phase segments from the anchors.
//
// Milestone phases are pinned to a single day and interval phases fill
// the gaps: Kickoff = [ko, ko], Pre-Field = [ko+1, fs-1], Fielding =
// [fs, fe], Post-Field Analysis = [fe+1, rd-1], Reporting = [rd, rd].
// The result is always contiguous; a gap phase whose anchors touch
// comes back empty rather than being dropped.
func BuildSegments(a daterule.Anchors) ([]Segment, error) {
	if a.KODate.After(a.FieldworkStart) {
		return nil, &InconsistentAnchorsError{Earlier: daterule.AnchorKODate, Later: daterule.AnchorFieldworkStart}
	}
	if a.FieldworkStart.After(a.FieldworkEnd) {
		return nil, &InconsistentAnchorsError{Earlier: daterule.AnchorFieldworkStart, Later: daterule.AnchorFieldworkEnd}
	}
	if a.FieldworkEnd.After(a.ReportDue) {
		return nil, &InconsistentAnchorsError{Earlier: daterule.AnchorFieldworkEnd, Later: daterule.AnchorReportDue}
	}
	return []Segment{
		{Phase: PhaseKickoff, Position: 0, Start: a.KODate, End: a.KODate},
		{Phase: PhasePreField, Position: 1, Start: a.KODate.AddDate(0, 0, 1), End: a.FieldworkStart.AddDate(0, 0, -1)},
		{Phase: PhaseFielding, Position: 2, Start: a.FieldworkStart, End: a.FieldworkEnd},
		{Phase: PhasePostField, Position: 3, Start: a.FieldworkEnd.AddDate(0, 0, 1), End: a.ReportDue.AddDate(0, 0, -1)},
		{Phase: PhaseReporting, Position: 4, Start: a.ReportDue, End: a.ReportDue},
	}, nil
}

// Find returns the segment owned by phase.
func Find(segments []Segment, phase Phase) (Segment, bool) {
	for _, s := range segments {
		if s.Phase == phase {
			return s, true
		}
	}
	return Segment{}, false
}

// Edge names which boundary of a segment a shift targets.
type Edge string

const (
	EdgeStart Edge = "start"
	EdgeEnd   Edge = "end"
)

// ShiftBoundary moves one boundary of the named phase and re-pins the
// immediate neighbor so the timeline stays contiguous: a new start
// re-pins the previous segment's end to date-1, a new end re-pins the
// next segment's start to date+1. No other segment is touched. The
// input slice is not modified.
func ShiftBoundary(segments []Segment, phase Phase, edge Edge, date time.Time) ([]Segment, error) {
	out := make([]Segment, len(segments))
	copy(out, segments)

	idx := -1
	for i, s := range out {
		if s.Phase == phase {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, fmt.Errorf("unknown phase %q", phase)
	}

	switch edge {
	case EdgeStart:
		out[idx].Start = date
		if idx > 0 {
			out[idx-1].End = date.AddDate(0, 0, -1)
		}
	case EdgeEnd:
		out[idx].End = date
		if idx < len(out)-1 {
			out[idx+1].Start = date.AddDate(0, 0, 1)
		}
	default:
		return nil, fmt.Errorf("unknown edge %q", edge)
	}
	return out, nil
}

// KeyDate is a derived calendar milestone whose label references a
// phase by name.
type KeyDate struct {
	ID    string
	Label string
	Date  time.Time
}

// Checked in order, most specific first, so "Pre-field kickoff"
// resolves to Pre-Field and never to Kickoff or Fielding.
var phaseLabelMatches = []struct {
	keyword string
	phase   Phase
}{
	{"post-field", PhasePostField},
	{"pre-field", PhasePreField},
	{"fielding", PhaseFielding},
	{"reporting", PhaseReporting},
	{"kickoff", PhaseKickoff},
}

// RestampKeyDates rewrites the date of every key date whose label
// textually references a phase, using that phase's current boundaries.
// Labels mentioning the end of the phase (end, last, final, due) get
// the segment end; all others get the segment start. Key dates naming
// no phase pass through untouched.
func RestampKeyDates(keyDates []KeyDate, segments []Segment) []KeyDate {
	out := make([]KeyDate, len(keyDates))
	copy(out, keyDates)
	for i, kd := range out {
		label := strings.ToLower(kd.Label)
		for _, m := range phaseLabelMatches {
			if !strings.Contains(label, m.keyword) {
				continue
			}
			seg, ok := Find(segments, m.phase)
			if !ok {
				break
			}
			if labelWantsEnd(label) {
				out[i].Date = seg.End
			} else {
				out[i].Date = seg.Start
			}
			break
		}
	}
	return out
}

func labelWantsEnd(label string) bool {
	for _, w := range []string{"end", "last", "final", "due"} {
		if strings.Contains(label, w) {
			return true
		}
	}
	return false
}

// State qualifies the current-phase lookup.
type State string

const (
	// StatePending means today precedes the whole timeline; the first
	// phase is reported as current.
	StatePending State = "pending"
	StateActive  State = "active"
	// StateOverdue means today is past the whole timeline; the last
	// phase is reported as current.
	StateOverdue State = "overdue"
)

// CurrentPhase returns the segment containing today and its state.
// Before the first covered day the first phase is current (pending);
// after the last covered day the last phase is current (overdue).
func CurrentPhase(segments []Segment, today time.Time) (Segment, State, error) {
	if len(segments) == 0 {
		return Segment{}, "", fmt.Errorf("no segments")
	}
	for _, s := range segments {
		if s.Contains(today) {
			return s, StateActive, nil
		}
	}
	if today.Before(segments[0].Start) {
		return segments[0], StatePending, nil
	}
	return segments[len(segments)-1], StateOverdue, nil
}

// TaskRule is the slice of a task the due-date pass needs.
type TaskRule struct {
	ID      string
	Rule    string
	Ongoing bool
}

// DueDate is the per-task outcome of a due-date pass. Date is nil when
// the task carries no fixed date; Err is set when the rule could not be
// resolved and is scoped to that task alone.
type DueDate struct {
	ID   string
	Date *string
	Err  error
}

// ApplyDueDates resolves every task's rule against the anchors. The
// result preserves input order and a failure on one task never aborts
// the rest of the batch.
func ApplyDueDates(tasks []TaskRule, anchors daterule.Anchors, r daterule.Resolver) []DueDate {
	out := make([]DueDate, len(tasks))
	for i, t := range tasks {
		out[i] = DueDate{ID: t.ID}
		if t.Ongoing {
			continue
		}
		d, ok, err := r.Resolve(t.Rule, anchors)
		if err != nil {
			out[i].Err = err
			continue
		}
		if ok {
			s := daterule.Format(d)
			out[i].Date = &s
		}
	}
	return out
}
