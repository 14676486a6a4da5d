package temporal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gtfsaudit.onebusaway.org/internal/audit"
	"gtfsaudit.onebusaway.org/internal/dataset"
)

var calendarHeader = []string{"service_id", "monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday", "start_date", "end_date"}

func calendar(rows ...[]any) *dataset.Table {
	return table(dataset.Calendar, calendarHeader, rows...)
}

func calendarDates(rows ...[]any) *dataset.Table {
	return table(dataset.CalendarDates, []string{"service_id", "date", "exception_type"}, rows...)
}

func table(name string, columns []string, rows ...[]any) *dataset.Table {
	out := make([]dataset.Row, 0, len(rows))
	for _, r := range rows {
		row := dataset.Row{}
		for i, c := range columns {
			row[c] = r[i]
		}
		out = append(out, row)
	}
	return dataset.NewTable(name, columns, out...)
}

func rule(t *testing.T, id string) audit.RuleDef {
	t.Helper()
	for _, r := range Rules() {
		if r.ID == id {
			return r
		}
	}
	t.Fatalf("rule %s not found", id)
	return audit.RuleDef{}
}

func TestRulesCatalogue(t *testing.T) {
	rules := Rules()
	require.Len(t, rules, 10)
	require.NoError(t, audit.NewRegistry().Register(rules...))
}

func TestMissingCalendarInputs(t *testing.T) {
	for _, r := range Rules() {
		if r.ID == "TC10" {
			continue
		}
		t.Run(r.ID, func(t *testing.T) {
			rep := r.Run(dataset.New(dataset.NewTable(dataset.FeedInfo, []string{"feed_start_date", "feed_end_date"},
				dataset.Row{"feed_start_date": "20240101", "feed_end_date": "20241231"})), nil)
			assert.Equal(t, audit.StatusError, rep.Status)
			assert.True(t, rep.HasIssue(audit.IssueMissingFile))
			assert.Equal(t, []string{dataset.Calendar, dataset.CalendarDates}, rep.Result["missing_files"])
		})
	}
}

func TestWindowValidity(t *testing.T) {
	ds := dataset.New(calendar(
		[]any{"OK", 1, 1, 1, 1, 1, 0, 0, "20240101", "20240630"},
		[]any{"INV", 1, 1, 1, 1, 1, 0, 0, "20240630", "20240101"},
		[]any{"BAD", 1, 1, 1, 1, 1, 0, 0, "2024-01-01", 20240630},
	))
	rep := rule(t, "TC01").Run(ds, nil)

	assert.Equal(t, []string{"INV"}, rep.Result["inverted_services"])
	assert.Equal(t, []string{"BAD"}, rep.Result["invalid_date_services"])
	assert.Equal(t, 3, rep.Result["windows_checked"])
	assert.True(t, rep.HasIssue(audit.IssueDataInconsistency))
	assert.True(t, rep.HasIssue(audit.IssueInvalidFormat))
	assert.NotEqual(t, audit.StatusSuccess, rep.Status)
}

func TestWindowValidityWithoutCalendar(t *testing.T) {
	ds := dataset.New(calendarDates([]any{"S1", "20240101", 1}))
	rep := rule(t, "TC01").Run(ds, nil)
	assert.Equal(t, audit.StatusSuccess, rep.Status)
	assert.Equal(t, true, rep.Result["not_applicable"])
}

func TestNeverActiveService(t *testing.T) {
	ds := dataset.New(
		calendar(
			[]any{"S1", 0, 0, 0, 0, 0, 0, 0, "20240101", "20240131"},
			[]any{"S3", 0, 0, 0, 0, 0, 0, 0, "20240101", "20240131"},
			[]any{"WK", 1, 1, 1, 1, 1, 0, 0, "20240101", "20240131"},
		),
		calendarDates(
			[]any{"S3", "20240110", 1},
			[]any{"WK", "20240115", 2},
		),
	)
	rep := rule(t, "TC02").Run(ds, nil)

	assert.Equal(t, []string{"S1", "S3"}, rep.Result["inactive_services"])
	assert.Equal(t, []string{"S1"}, rep.Result["never_active_services"])
	require.True(t, rep.HasIssue(audit.IssueDataInconsistency))
	assert.Equal(t, []string{"S1"}, rep.Issues[0].AffectedIDs)
}

func TestRemovalOnlyServiceIsNotNeverActive(t *testing.T) {
	ds := dataset.New(
		calendar([]any{"S4", 0, 0, 0, 0, 0, 0, 0, "20240101", "20240131"}),
		calendarDates([]any{"S4", "20240110", 2}),
	)
	rep := rule(t, "TC02").Run(ds, nil)

	assert.Equal(t, []string{"S4"}, rep.Result["inactive_services"])
	assert.Equal(t, []string{}, rep.Result["never_active_services"])
	assert.False(t, rep.HasIssue(audit.IssueDataInconsistency))
	assert.Equal(t, audit.StatusSuccess, rep.Status)
}

func TestNeverActiveWithoutCalendarDates(t *testing.T) {
	ds := dataset.New(calendar([]any{"S1", 0, 0, 0, 0, 0, 0, 0, "20240101", "20240131"}))
	rep := rule(t, "TC02").Run(ds, nil)
	assert.Equal(t, []string{"S1"}, rep.Result["never_active_services"])
}

func TestInvalidWeekdayFlags(t *testing.T) {
	ds := dataset.New(calendar([]any{"S1", 1, "yes", 1, 1, 1, 0, 0, "20240101", "20240131"}))
	rep := rule(t, "TC02").Run(ds, nil)
	assert.True(t, rep.HasIssue(audit.IssueInvalidFormat))
	assert.Equal(t, []string{}, rep.Result["never_active_services"])
}

func TestExcessiveDuration(t *testing.T) {
	ds := dataset.New(calendar(
		[]any{"SHORT", 1, 1, 1, 1, 1, 0, 0, "20240101", "20241231"},
		[]any{"LONG", 1, 1, 1, 1, 1, 0, 0, "20240101", "20991231"},
	))
	rep := rule(t, "TC03").Run(ds, nil)
	require.Len(t, rep.Issues, 1)
	assert.Equal(t, audit.IssueOutOfRange, rep.Issues[0].Type)
	assert.Equal(t, []string{"LONG"}, rep.Issues[0].AffectedIDs)
	assert.Equal(t, audit.StatusWarning, rep.Status)

	rep = rule(t, "TC03").Run(ds, audit.Params{OptMaxDurationDays: 100})
	assert.Equal(t, 2, rep.Issues[0].Count)
}

func TestCalendarDatesOnlyServices(t *testing.T) {
	ds := dataset.New(
		calendar([]any{"WK", 1, 1, 1, 1, 1, 0, 0, "20240101", "20241231"}),
		calendarDates([]any{"WK", "20240101", 2}, []any{"XMAS", "20241225", 1}),
	)
	rep := rule(t, "TC04").Run(ds, nil)
	assert.Equal(t, audit.StatusSuccess, rep.Status)
	assert.Empty(t, rep.Issues)
	assert.Equal(t, []string{"XMAS"}, rep.Result["calendar_dates_only_services"])
}

func TestServicesUnusedByTrips(t *testing.T) {
	ds := dataset.New(
		calendar(
			[]any{"WK", 1, 1, 1, 1, 1, 0, 0, "20240101", "20241231"},
			[]any{"SAT", 0, 0, 0, 0, 0, 1, 0, "20240101", "20241231"},
		),
		table(dataset.Trips, []string{"trip_id", "service_id"}, []any{"T1", "WK"}),
	)
	rep := rule(t, "TC05").Run(ds, nil)
	assert.Equal(t, []string{"SAT"}, rep.Result["unused_services"])
	assert.True(t, rep.HasIssue(audit.IssueUnusedData))

	rep = rule(t, "TC05").Run(dataset.New(calendar()), nil)
	assert.True(t, rep.HasIssue(audit.IssueMissingFile))
}

func TestExceptionsOutsideWindow(t *testing.T) {
	ds := dataset.New(
		calendar([]any{"WK", 1, 1, 1, 1, 1, 0, 0, "20240101", "20240131"}),
		calendarDates(
			[]any{"WK", "20240115", 2},
			[]any{"WK", "20240301", 1},
			[]any{"WK", "someday", 1},
			[]any{"OTHER", "20250101", 1},
		),
	)
	rep := rule(t, "TC06").Run(ds, nil)

	assert.Equal(t, []datedException{{ServiceID: "WK", Date: "20240301"}}, rep.Result["outside_window"])
	assert.Equal(t, 2, rep.Result["exceptions_checked"])
	assert.True(t, rep.HasIssue(audit.IssueInvalidFormat))
	assert.Equal(t, "WK:20240301", rep.Issues[0].AffectedIDs[0])
}

func TestConflictingExceptions(t *testing.T) {
	ds := dataset.New(calendarDates(
		[]any{"S2", "20240115", 1},
		[]any{"S2", "20240115", 2},
		[]any{"S2", "20240116", 1},
		[]any{"S4", "20240120", 2},
		[]any{"S4", "20240120", 2},
	))
	rep := rule(t, "TC07").Run(ds, nil)

	conflicts := rep.Result["conflicts"].([]exceptionConflict)
	require.Len(t, conflicts, 1)
	assert.Equal(t, exceptionConflict{ServiceID: "S2", Date: "20240115", Types: []int{1, 2}}, conflicts[0])
	assert.Equal(t, 1, rep.Result["conflict_count"])
	assert.Equal(t, []datedException{{ServiceID: "S4", Date: "20240120"}}, rep.Result["duplicates"])

	require.True(t, rep.HasIssue(audit.IssueDataInconsistency))
	assert.Equal(t, 1, rep.Issues[0].Count)
	assert.True(t, rep.HasIssue(audit.IssueDuplicateData))
	assert.NotEqual(t, audit.StatusSuccess, rep.Status)
}

func TestConflictsIgnoreDateFormatting(t *testing.T) {
	ds := dataset.New(calendarDates(
		[]any{"S2", 20240115, 1},
		[]any{"S2", "20240115", 2},
		[]any{"S2", "20240116", 7},
	))
	rep := rule(t, "TC07").Run(ds, nil)
	assert.Equal(t, 1, rep.Result["conflict_count"])
	assert.True(t, rep.HasIssue(audit.IssueInvalidFormat))
}

func TestInvalidSuppressions(t *testing.T) {
	ds := dataset.New(
		calendar([]any{"WK", 1, 1, 1, 1, 1, 0, 0, "20240101", "20241231"}),
		calendarDates(
			[]any{"WK", "20240115", 2}, // Monday, scheduled
			[]any{"WK", "20240113", 2}, // Saturday, never scheduled
			[]any{"GHOST", "20240116", 2},
			[]any{"WK", "20240114", 1},
		),
	)
	rep := rule(t, "TC08").Run(ds, nil)

	assert.Equal(t, 3, rep.Result["removals_checked"])
	assert.Equal(t, []suppression{{ServiceID: "WK", Date: "20240113", Weekday: "saturday"}}, rep.Result["inactive_weekday"])
	assert.Equal(t, []suppression{{ServiceID: "GHOST", Date: "20240116"}}, rep.Result["unknown_service"])
	require.Len(t, rep.Issues, 2)
	assert.Equal(t, "date", rep.Issues[0].Field)
	assert.Equal(t, "service_id", rep.Issues[1].Field)
}

func feedInfo(start, end any) *dataset.Table {
	return table(dataset.FeedInfo, []string{"feed_publisher_name", "feed_start_date", "feed_end_date"},
		[]any{"Metro", start, end})
}

func TestFeedCoverage(t *testing.T) {
	cal := calendar(
		// Mon-Fri in the first week of January 2024
		[]any{"WK", 1, 1, 1, 1, 1, 0, 0, "20240101", "20240107"},
		[]any{"SUN", 0, 0, 0, 0, 0, 0, 1, "20240101", "20240131"},
	)
	dates := calendarDates([]any{"XMAS", "20231225", 1})

	t.Run("covered", func(t *testing.T) {
		ds := dataset.New(cal, feedInfo("20240101", "20240131"))
		rep := rule(t, "TC09").Run(ds, nil)
		assert.Equal(t, audit.StatusSuccess, rep.Status)
		assert.Equal(t, 9, rep.Result["dates_checked"])
		assert.Equal(t, 0, rep.Result["uncovered_dates"])
	})

	t.Run("service and exceptions outside the window", func(t *testing.T) {
		ds := dataset.New(cal, dates, feedInfo("20240101", "20240115"))
		rep := rule(t, "TC09").Run(ds, nil)
		// Sundays 21 and 28 plus the Christmas exception
		assert.Equal(t, 3, rep.Result["uncovered_dates"])
		assert.Equal(t, []string{"SUN", "XMAS"}, rep.Result["uncovered_services"])
		assert.Equal(t, map[string]string{"first": "20231225", "last": "20240128"}, rep.Result["uncovered_range"])
		assert.True(t, rep.HasIssue(audit.IssueOutOfRange))
	})

	t.Run("missing feed_info is a precondition failure", func(t *testing.T) {
		rep := rule(t, "TC09").Run(dataset.New(cal), nil)
		assert.Equal(t, audit.StatusError, rep.Status)
		assert.True(t, rep.HasIssue(audit.IssueMissingFile))
	})

	t.Run("missing date columns", func(t *testing.T) {
		info := table(dataset.FeedInfo, []string{"feed_publisher_name"}, []any{"Metro"})
		rep := rule(t, "TC09").Run(dataset.New(cal, info), nil)
		assert.True(t, rep.HasIssue(audit.IssueMissingColumn))
	})

	t.Run("expansion cap", func(t *testing.T) {
		ds := dataset.New(cal, feedInfo("20240101", "20240131"))
		rep := rule(t, "TC09").Run(ds, audit.Params{OptMaxExpansionDays: 3})
		assert.Equal(t, []string{"WK", "SUN"}, rep.Result["truncated_services"])
	})
}

func TestFeedInfoValidity(t *testing.T) {
	ref := audit.Params{OptReferenceDate: "20240601"}

	tests := []struct {
		name       string
		start, end any
		wantStatus audit.Status
		wantState  string
		wantIssues int
	}{
		{name: "active", start: "20240101", end: "20241231", wantStatus: audit.StatusSuccess, wantState: "active"},
		{name: "expiring soon", start: "20240101", end: "20240603", wantStatus: audit.StatusWarning, wantState: "active", wantIssues: 1},
		{name: "expired", start: "20230101", end: "20240501", wantStatus: audit.StatusError, wantState: "expired", wantIssues: 1},
		{name: "short and future", start: "20240701", end: "20240710", wantStatus: audit.StatusWarning, wantState: "future", wantIssues: 1},
		{name: "inverted", start: "20241231", end: "20240701", wantStatus: audit.StatusError, wantState: "future", wantIssues: 1},
		{name: "int dates", start: 20240101, end: 20241231, wantStatus: audit.StatusSuccess, wantState: "active"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rep := rule(t, "TC10").Run(dataset.New(feedInfo(tt.start, tt.end)), ref)
			assert.Equal(t, tt.wantStatus, rep.Status)
			assert.Equal(t, tt.wantState, rep.Result["feed_status"])
			assert.Len(t, rep.Issues, tt.wantIssues)
		})
	}
}

func TestFeedInfoValidityAlternateColumns(t *testing.T) {
	info := table(dataset.FeedInfo, []string{"start_date", "end_date"}, []any{"20240101", "20241231"})
	rep := rule(t, "TC10").Run(dataset.New(info), audit.Params{OptReferenceDate: "20240601"})
	assert.Equal(t, audit.StatusSuccess, rep.Status)
	assert.Equal(t, 365, rep.Result["validity_period_days"])
}

func TestFeedInfoUnparseable(t *testing.T) {
	rep := rule(t, "TC10").Run(dataset.New(feedInfo("soon", "20241231")), nil)
	assert.Equal(t, audit.StatusError, rep.Status)
	assert.True(t, rep.HasIssue(audit.IssueInvalidFormat))
}

func TestTemporalIdempotent(t *testing.T) {
	ds := dataset.New(
		calendar([]any{"WK", 1, 1, 1, 1, 1, 0, 0, "20240101", "20241231"}),
		calendarDates([]any{"WK", "20240115", 1}, []any{"WK", "20240115", 2}),
		feedInfo("20240101", "20241231"),
	)
	params := audit.Params{OptReferenceDate: "20240601"}
	for _, r := range Rules() {
		assert.Equal(t, r.Run(ds, params), r.Run(ds, params), r.ID)
	}
}
