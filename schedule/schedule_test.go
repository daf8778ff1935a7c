package schedule

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fieldline/schedule/daterule"
)

func testTimeline() Timeline {
	return Timeline{
		KODate:         "2025-01-06",
		FieldworkStart: "2025-01-20",
		FieldworkEnd:   "2025-02-14",
		ReportDue:      "2025-03-03",
	}
}

func TestCalculateTaskDueDate(t *testing.T) {
	got, err := CalculateTaskDueDate(Task{ID: "t1", DateRule: "1 week prior to fieldwork start"}, testTimeline())
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "2025-01-13", *got)

	got, err = CalculateTaskDueDate(Task{ID: "t2", DateRule: "report due date, final"}, testTimeline())
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "2025-03-03", *got)

	got, err = CalculateTaskDueDate(Task{ID: "t3", DateRule: "ongoing"}, testTimeline())
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = CalculateTaskDueDate(Task{ID: "t4", DateRule: "first day of fieldwork", IsOngoing: true}, testTimeline())
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestCalculateTaskDueDateBadAnchors(t *testing.T) {
	tl := testTimeline()
	tl.KODate = "06/01/2025"
	_, err := CalculateTaskDueDate(Task{ID: "t1", DateRule: "report due"}, tl)
	var ia *daterule.InvalidAnchorError
	require.ErrorAs(t, err, &ia)
}

func TestCalculateTaskDueDates(t *testing.T) {
	tasks := []Task{
		{ID: "a", DateRule: "KO date, 1 day before"},
		{ID: "b", DateRule: "ongoing"},
		{ID: "c", DateRule: "gibberish rule"},
	}
	out, err := CalculateTaskDueDates(tasks, testTimeline())
	require.NoError(t, err)
	require.Len(t, out, 3)

	assert.Equal(t, "a", out[0].TaskID)
	require.NotNil(t, out[0].DueDate)
	assert.Equal(t, "2025-01-03", *out[0].DueDate)

	assert.Nil(t, out[1].DueDate)
	assert.NoError(t, out[1].Err)

	assert.Nil(t, out[2].DueDate)
	var ur *daterule.UnresolvableRuleError
	assert.ErrorAs(t, out[2].Err, &ur)
}

func TestBuildSegments(t *testing.T) {
	segs, err := BuildSegments(testTimeline())
	require.NoError(t, err)
	require.Len(t, segs, 5)
	assert.Equal(t, "Kickoff", segs[0].Phase)
	assert.Equal(t, "2025-01-06", segs[0].StartDate)
	assert.Equal(t, "2025-01-06", segs[0].EndDate)
	assert.Equal(t, "Reporting", segs[4].Phase)
	assert.Equal(t, "2025-03-03", segs[4].EndDate)
}

func TestBuildSegmentsInconsistent(t *testing.T) {
	tl := testTimeline()
	tl.ReportDue = "2025-01-01"
	_, err := BuildSegments(tl)
	require.Error(t, err)
}
