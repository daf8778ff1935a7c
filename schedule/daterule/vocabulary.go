package daterule

import "time"

// Compute names one of the fixed date computations a vocabulary rule may
// bind an anchor to.
type Compute string

const (
	// ComputeAnchor yields the anchor date itself, unmodified.
	ComputeAnchor Compute = "anchor"
	// ComputePrevBusinessDay yields the last weekday before the anchor.
	ComputePrevBusinessDay Compute = "prev_business_day"
	// ComputeNextBusinessDay yields the first weekday after the anchor.
	ComputeNextBusinessDay Compute = "next_business_day"
	// ComputeMinus7Days yields the anchor minus seven calendar days,
	// with no business-day adjustment.
	ComputeMinus7Days Compute = "minus_7_days"
)

// KnownCompute reports whether name is one of the fixed computations.
func KnownCompute(name Compute) bool {
	switch name {
	case ComputeAnchor, ComputePrevBusinessDay, ComputeNextBusinessDay, ComputeMinus7Days:
		return true
	}
	return false
}

// KnownAnchor reports whether name is one of the four anchors.
func KnownAnchor(name Anchor) bool {
	switch name {
	case AnchorKODate, AnchorFieldworkStart, AnchorFieldworkEnd, AnchorReportDue:
		return true
	}
	return false
}

func apply(c Compute, d time.Time) time.Time {
	switch c {
	case ComputePrevBusinessDay:
		return PrevBusinessDay(d)
	case ComputeNextBusinessDay:
		return NextBusinessDay(d)
	case ComputeMinus7Days:
		return d.AddDate(0, 0, -7)
	default:
		return d
	}
}

// Rule binds a modifier phrase to an anchor and a computation. An empty
// Modifier matches any rule text that already matched the group keyword.
type Rule struct {
	Modifier string
	Anchor   Anchor
	Compute  Compute
}

// Group is one keyword group tried in priority order. If a keyword is
// present but no rule's modifier matches, resolution falls through to
// the next group rather than failing.
type Group struct {
	Keywords []string
	Rules    []Rule
}

// Vocabulary is the ordered rule table. Order is load-bearing: earlier
// groups win when several keywords appear in the same rule text.
type Vocabulary []Group

// DefaultVocabulary returns the built-in rule table. Hosts may override
// it through project config; the group order here reproduces the
// historical resolution priority.
func DefaultVocabulary() Vocabulary {
	return Vocabulary{
		{
			Keywords: []string{"ko date"},
			Rules: []Rule{
				{Modifier: "1 day before", Anchor: AnchorKODate, Compute: ComputePrevBusinessDay},
				{Modifier: "1 day after", Anchor: AnchorKODate, Compute: ComputeNextBusinessDay},
				{Modifier: "first day of", Anchor: AnchorKODate, Compute: ComputeAnchor},
				{Modifier: "final", Anchor: AnchorKODate, Compute: ComputeAnchor},
			},
		},
		{
			Keywords: []string{"fieldwork start", "first day of fieldwork"},
			Rules: []Rule{
				{Modifier: "1 day before", Anchor: AnchorFieldworkStart, Compute: ComputePrevBusinessDay},
				{Modifier: "1 day after", Anchor: AnchorFieldworkStart, Compute: ComputeNextBusinessDay},
				{Modifier: "first day of", Anchor: AnchorFieldworkStart, Compute: ComputeAnchor},
			},
		},
		{
			Keywords: []string{"fieldwork ends", "last day of field"},
			Rules: []Rule{
				{Modifier: "1 day after", Anchor: AnchorFieldworkEnd, Compute: ComputeNextBusinessDay},
				{Modifier: "1 day before", Anchor: AnchorFieldworkEnd, Compute: ComputePrevBusinessDay},
				{Modifier: "last day of", Anchor: AnchorFieldworkEnd, Compute: ComputeAnchor},
			},
		},
		{
			// Pre-Field runs the week before fieldwork, so its first day
			// is fieldwork start minus seven calendar days.
			Keywords: []string{"pre-field"},
			Rules: []Rule{
				{Modifier: "first day of", Anchor: AnchorFieldworkStart, Compute: ComputeMinus7Days},
			},
		},
		{
			Keywords: []string{"1 week prior to fieldwork start"},
			Rules: []Rule{
				{Anchor: AnchorFieldworkStart, Compute: ComputeMinus7Days},
			},
		},
		{
			Keywords: []string{"first day of field"},
			Rules: []Rule{
				{Anchor: AnchorFieldworkStart, Compute: ComputeAnchor},
			},
		},
		{
			Keywords: []string{"post-field"},
			Rules: []Rule{
				{Modifier: "first day of", Anchor: AnchorFieldworkEnd, Compute: ComputeNextBusinessDay},
			},
		},
		{
			Keywords: []string{"report due date", "report due"},
			Rules: []Rule{
				{Modifier: "1 day before", Anchor: AnchorReportDue, Compute: ComputePrevBusinessDay},
				{Modifier: "final", Anchor: AnchorReportDue, Compute: ComputeAnchor},
				{Anchor: AnchorReportDue, Compute: ComputeAnchor},
			},
		},
	}
}
