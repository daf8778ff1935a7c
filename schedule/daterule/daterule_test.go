package daterule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(s string) time.Time {
	d, err := time.ParseInLocation(DateFormat, s, time.UTC)
	if err != nil {
		panic(err)
	}
	return d
}

func testAnchors() Anchors {
	return Anchors{
		KODate:         day("2025-03-10"), // Monday
		FieldworkStart: day("2025-03-24"), // Monday
		FieldworkEnd:   day("2025-04-04"), // Friday
		ReportDue:      day("2025-04-21"), // Monday
	}
}

func TestResolveOngoingAndEmpty(t *testing.T) {
	r := New()
	for _, rule := range []string{"", "   ", "ongoing", "Ongoing", " ONGOING "} {
		_, ok, err := r.Resolve(rule, testAnchors())
		require.NoError(t, err, "rule %q", rule)
		assert.False(t, ok, "rule %q must yield no date", rule)
	}
}

func TestResolveKODateRules(t *testing.T) {
	r := New()
	cases := []struct {
		rule string
		want string
	}{
		// 2025-03-10 is a Monday, so the prior business day is Friday.
		{"KO date, 1 day before", "2025-03-07"},
		{"1 day after KO date", "2025-03-11"},
		{"first day of KO date week", "2025-03-10"},
		{"KO date, final", "2025-03-10"},
	}
	for _, tc := range cases {
		got, ok, err := r.Resolve(tc.rule, testAnchors())
		require.NoError(t, err, "rule %q", tc.rule)
		require.True(t, ok, "rule %q", tc.rule)
		assert.Equal(t, tc.want, Format(got), "rule %q", tc.rule)
	}
}

func TestResolveFieldworkRules(t *testing.T) {
	r := New()
	cases := []struct {
		rule string
		want string
	}{
		{"1 day before fieldwork start", "2025-03-21"},
		{"1 day after fieldwork start", "2025-03-25"},
		{"first day of fieldwork", "2025-03-24"},
		// 2025-04-04 is a Friday, so the next business day is Monday.
		{"1 day after fieldwork ends", "2025-04-07"},
		{"1 day before fieldwork ends", "2025-04-03"},
		{"last day of field", "2025-04-04"},
		{"first day of field", "2025-03-24"},
	}
	for _, tc := range cases {
		got, ok, err := r.Resolve(tc.rule, testAnchors())
		require.NoError(t, err, "rule %q", tc.rule)
		require.True(t, ok, "rule %q", tc.rule)
		assert.Equal(t, tc.want, Format(got), "rule %q", tc.rule)
	}
}

func TestResolveWeekPriorFallsThroughFieldworkStartGroup(t *testing.T) {
	// "1 week prior to fieldwork start" contains the fieldwork start
	// keyword, but no modifier in that group matches. Resolution must
	// fall through to the dedicated minus-seven-days group.
	r := New()
	a := testAnchors()
	a.FieldworkStart = day("2025-01-20")
	got, ok, err := r.Resolve("1 week prior to fieldwork start", a)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "2025-01-13", Format(got))
}

func TestResolvePreAndPostField(t *testing.T) {
	r := New()
	got, ok, err := r.Resolve("first day of pre-field", testAnchors())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "2025-03-17", Format(got))

	got, ok, err = r.Resolve("first day of post-field analysis", testAnchors())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "2025-04-07", Format(got))
}

func TestResolveReportDueRules(t *testing.T) {
	r := New()
	cases := []struct {
		rule string
		want string
	}{
		{"1 day before report due date", "2025-04-18"},
		{"report due date, final", "2025-04-21"},
		{"report due", "2025-04-21"},
	}
	for _, tc := range cases {
		got, ok, err := r.Resolve(tc.rule, testAnchors())
		require.NoError(t, err, "rule %q", tc.rule)
		require.True(t, ok, "rule %q", tc.rule)
		assert.Equal(t, tc.want, Format(got), "rule %q", tc.rule)
	}
}

func TestResolveUnknownRule(t *testing.T) {
	r := New()
	_, ok, err := r.Resolve("when the stars align", testAnchors())
	assert.False(t, ok)
	var ur *UnresolvableRuleError
	require.ErrorAs(t, err, &ur)
	assert.Equal(t, "when the stars align", ur.Rule)
}

func TestResolveCaseAndWhitespaceInsensitive(t *testing.T) {
	r := New()
	got, ok, err := r.Resolve("  KO DATE, 1 Day Before  ", testAnchors())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "2025-03-07", Format(got))
}

func TestResolveCustomVocabulary(t *testing.T) {
	custom := Vocabulary{
		{
			Keywords: []string{"launch"},
			Rules: []Rule{
				{Modifier: "eve of", Anchor: AnchorKODate, Compute: ComputePrevBusinessDay},
				{Anchor: AnchorKODate, Compute: ComputeAnchor},
			},
		},
	}
	r := New().WithVocabulary(custom)

	got, ok, err := r.Resolve("eve of launch", testAnchors())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "2025-03-07", Format(got))

	// Default groups are replaced, not merged.
	_, ok, err = r.Resolve("report due", testAnchors())
	assert.False(t, ok)
	var ur *UnresolvableRuleError
	assert.ErrorAs(t, err, &ur)
}

func TestPrevBusinessDay(t *testing.T) {
	cases := []struct{ in, want string }{
		{"2025-03-10", "2025-03-07"}, // Monday -> Friday
		{"2025-03-11", "2025-03-10"}, // Tuesday -> Monday
		{"2025-03-09", "2025-03-07"}, // Sunday -> Friday
		{"2025-03-08", "2025-03-07"}, // Saturday -> Friday
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Format(PrevBusinessDay(day(tc.in))), "prev of %s", tc.in)
	}
}

func TestNextBusinessDay(t *testing.T) {
	cases := []struct{ in, want string }{
		{"2025-04-04", "2025-04-07"}, // Friday -> Monday
		{"2025-04-03", "2025-04-04"}, // Thursday -> Friday
		{"2025-04-05", "2025-04-07"}, // Saturday -> Monday
		{"2025-04-06", "2025-04-07"}, // Sunday -> Monday
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Format(NextBusinessDay(day(tc.in))), "next of %s", tc.in)
	}
}

func TestParseAnchors(t *testing.T) {
	a, err := ParseAnchors("2025-03-10", "2025-03-24", "2025-04-04", "2025-04-21")
	require.NoError(t, err)
	assert.Equal(t, day("2025-03-10"), a.KODate)
	assert.Equal(t, day("2025-04-21"), a.ReportDue)

	_, err = ParseAnchors("2025-03-10", "not-a-date", "2025-04-04", "2025-04-21")
	var ia *InvalidAnchorError
	require.ErrorAs(t, err, &ia)
	assert.Equal(t, string(AnchorFieldworkStart), ia.Field)
	assert.Equal(t, "not-a-date", ia.Value)
}

func TestAnchorsAtUnknown(t *testing.T) {
	_, err := testAnchors().At("budget_approved")
	require.Error(t, err)
}
