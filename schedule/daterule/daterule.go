// Package daterule resolves free-text date-rule annotations on task
// templates into concrete calendar dates relative to a project's anchor
// dates. Matching is driven by an ordered vocabulary table so the
// priority between keyword groups stays auditable.
package daterule

import (
	"fmt"
	"time"
)

// DateFormat is the wire format for every computed date.
const DateFormat = "2006-01-02"

// Anchor names one of the four project milestones.
type Anchor string

const (
	AnchorKODate         Anchor = "ko_date"
	AnchorFieldworkStart Anchor = "fieldwork_start"
	AnchorFieldworkEnd   Anchor = "fieldwork_end"
	AnchorReportDue      Anchor = "report_due"
)

// Anchors holds the four milestone dates as UTC calendar days.
type Anchors struct {
	KODate         time.Time
	FieldworkStart time.Time
	FieldworkEnd   time.Time
	ReportDue      time.Time
}

// At returns the date pinned by the named anchor.
func (a Anchors) At(name Anchor) (time.Time, error) {
	switch name {
	case AnchorKODate:
		return a.KODate, nil
	case AnchorFieldworkStart:
		return a.FieldworkStart, nil
	case AnchorFieldworkEnd:
		return a.FieldworkEnd, nil
	case AnchorReportDue:
		return a.ReportDue, nil
	}
	return time.Time{}, fmt.Errorf("unknown anchor %q", name)
}

// ParseAnchors parses the four YYYY-MM-DD anchor strings. The first field
// that fails to parse is reported as an InvalidAnchorError.
func ParseAnchors(koDate, fieldworkStart, fieldworkEnd, reportDue string) (Anchors, error) {
	var (
		a   Anchors
		err error
	)
	if a.KODate, err = ParseDate(koDate); err != nil {
		return a, &InvalidAnchorError{Field: string(AnchorKODate), Value: koDate, Err: err}
	}
	if a.FieldworkStart, err = ParseDate(fieldworkStart); err != nil {
		return a, &InvalidAnchorError{Field: string(AnchorFieldworkStart), Value: fieldworkStart, Err: err}
	}
	if a.FieldworkEnd, err = ParseDate(fieldworkEnd); err != nil {
		return a, &InvalidAnchorError{Field: string(AnchorFieldworkEnd), Value: fieldworkEnd, Err: err}
	}
	if a.ReportDue, err = ParseDate(reportDue); err != nil {
		return a, &InvalidAnchorError{Field: string(AnchorReportDue), Value: reportDue, Err: err}
	}
	return a, nil
}

// ParseDate parses a YYYY-MM-DD string into a UTC calendar day.
func ParseDate(s string) (time.Time, error) {
	return time.ParseInLocation(DateFormat, s, time.UTC)
}

// Format renders a date as YYYY-MM-DD.
func Format(d time.Time) string {
	return d.Format(DateFormat)
}

// PrevBusinessDay returns the last weekday strictly before d. A naive
// previous day landing on Saturday steps back to Friday; Sunday steps
// back two days to Friday.
func PrevBusinessDay(d time.Time) time.Time {
	p := d.AddDate(0, 0, -1)
	switch p.Weekday() {
	case time.Saturday:
		p = p.AddDate(0, 0, -1)
	case time.Sunday:
		p = p.AddDate(0, 0, -2)
	}
	return p
}

// NextBusinessDay returns the first weekday strictly after d, skipping
// over weekends to Monday.
func NextBusinessDay(d time.Time) time.Time {
	n := d.AddDate(0, 0, 1)
	switch n.Weekday() {
	case time.Saturday:
		n = n.AddDate(0, 0, 2)
	case time.Sunday:
		n = n.AddDate(0, 0, 1)
	}
	return n
}
