package temporal

import (
	"fmt"
	"sort"

	"gtfsaudit.onebusaway.org/internal/audit"
	"gtfsaudit.onebusaway.org/internal/dataset"
)

var windowValidityExp = audit.Explanation{
	Purpose: "Each service window in calendar.txt must have parseable dates with start_date on or before end_date.",
	Context: "start_date and end_date are YYYYMMDD dates bounding the service.",
	Impact:  "Inverted or unreadable windows make the service run on no dates at all.",
}

func checkWindowValidity(ds *dataset.Dataset, params audit.Params) audit.Report {
	cal, _, rep, ok := calendarInputs(ds, windowValidityExp, dataset.Calendar)
	if !ok {
		return rep
	}
	if rep, ok := requireColumns(cal, windowValidityExp, windowColumns...); !ok {
		return rep
	}

	limit := params.SampleLimit()
	services := parseServices(cal)
	var inverted, invalid []string
	type window struct {
		ServiceID string `json:"service_id"`
		StartDate string `json:"start_date"`
		EndDate   string `json:"end_date"`
	}
	var invertedWindows []window
	for _, s := range services {
		switch {
		case !s.windowOK():
			invalid = append(invalid, s.id)
		case s.inverted():
			inverted = append(inverted, s.id)
			invertedWindows = append(invertedWindows, window{
				ServiceID: s.id,
				StartDate: dataset.FormatDate(s.start),
				EndDate:   dataset.FormatDate(s.end),
			})
		}
	}

	out := audit.NewReport(windowValidityExp)
	if len(invalid) > 0 {
		out.AddIssue(audit.IssueInvalidFormat, "start_date,end_date", invalid, limit,
			audit.SampleMessage("services with unparseable dates", invalid, 5))
		out.Recommend("Write start_date and end_date as YYYYMMDD.")
	}
	if len(inverted) > 0 {
		out.AddIssue(audit.IssueDataInconsistency, "start_date", inverted, limit,
			audit.SampleMessage("services with start_date after end_date", inverted, 5))
		out.Recommend("Swap or correct the inverted service windows.")
	}
	if len(invertedWindows) > limit {
		invertedWindows = invertedWindows[:limit]
	}
	out.Result["windows_checked"] = len(services)
	out.Result["inverted_windows"] = append([]window{}, invertedWindows...)
	out.Result["inverted_services"] = audit.Sample(inverted, limit)
	out.Result["invalid_date_services"] = audit.Sample(invalid, limit)
	out.Grade(audit.Score(
		audit.Proportional(60, len(inverted), len(services)),
		audit.Proportional(60, len(invalid), len(services)),
	), audit.DefaultThresholds)
	return out
}

var inactiveExp = audit.Explanation{
	Purpose: "Services in calendar.txt should run on at least one weekday or be activated by calendar_dates.txt.",
	Context: "A service with every weekday flag 0 is inactive; if calendar_dates.txt has no entries for it either, it is never active.",
	Impact:  "Never-active services carry trips that will not appear in any timetable.",
}

func checkInactiveServices(ds *dataset.Dataset, params audit.Params) audit.Report {
	cal, dates, rep, ok := calendarInputs(ds, inactiveExp, dataset.Calendar)
	if !ok {
		return rep
	}
	if rep, ok := requireColumns(cal, inactiveExp, append([]string{"service_id"}, weekdayColumns[:]...)...); !ok {
		return rep
	}

	limit := params.SampleLimit()
	withExceptions := serviceIDs(dates)
	services := parseServices(cal)

	var inactive, never, badFlags []string
	for _, s := range services {
		if len(s.badFlags) > 0 {
			badFlags = append(badFlags, s.id)
		}
		if !s.neverScheduled() {
			continue
		}
		inactive = append(inactive, s.id)
		if _, ok := withExceptions[s.id]; !ok {
			never = append(never, s.id)
		}
	}

	out := audit.NewReport(inactiveExp)
	if len(never) > 0 {
		out.AddIssue(audit.IssueDataInconsistency, "service_id", never, limit,
			audit.SampleMessage("services never active", never, 5))
		out.Recommend("Set weekday flags or add calendar_dates.txt entries for never-active services, or remove them.")
	}
	if len(badFlags) > 0 {
		out.AddIssue(audit.IssueInvalidFormat, "weekday", badFlags, limit,
			audit.SampleMessage("services with weekday flags other than 0 or 1", badFlags, 5))
		out.Recommend("Use 0 or 1 for every weekday column.")
	}
	out.Result["services_checked"] = len(services)
	out.Result["inactive_services"] = audit.Sample(inactive, limit)
	out.Result["inactive_count"] = len(inactive)
	out.Result["never_active_services"] = audit.Sample(never, limit)
	out.Result["never_active_count"] = len(never)
	out.Grade(audit.Score(
		audit.Proportional(50, len(never), len(services)),
		audit.Proportional(30, len(badFlags), len(services)),
	), audit.DefaultThresholds)
	return out
}

var durationExp = audit.Explanation{
	Purpose: "Service windows should not span implausibly long periods.",
	Context: "Windows longer than max_duration_days usually come from placeholder end dates.",
	Impact:  "Overlong windows hide schedule changes and keep stale service alive.",
}

func checkExcessiveDuration(ds *dataset.Dataset, params audit.Params) audit.Report {
	cal, _, rep, ok := calendarInputs(ds, durationExp, dataset.Calendar)
	if !ok {
		return rep
	}
	if rep, ok := requireColumns(cal, durationExp, windowColumns...); !ok {
		return rep
	}

	limit := params.SampleLimit()
	maxDays := params.Int(OptMaxDurationDays, defaultMaxDurationDays)
	services := parseServices(cal)

	type longService struct {
		ServiceID string `json:"service_id"`
		Days      int    `json:"days"`
	}
	var long []longService
	var ids []string
	measured := 0
	for _, s := range services {
		if !s.windowOK() || s.inverted() {
			continue
		}
		measured++
		if d := s.durationDays(); d > maxDays {
			long = append(long, longService{ServiceID: s.id, Days: d})
			ids = append(ids, s.id)
		}
	}
	sort.SliceStable(long, func(i, j int) bool { return long[i].Days > long[j].Days })

	out := audit.NewReport(durationExp)
	if len(ids) > 0 {
		out.AddIssue(audit.IssueOutOfRange, "end_date", ids, limit,
			fmt.Sprintf("%s longer than %d days", audit.SampleMessage("services", ids, 5), maxDays))
		out.Recommend("Replace placeholder end dates with the real end of the timetable period.")
	}
	if len(long) > limit {
		long = long[:limit]
	}
	out.Result["max_duration_days"] = maxDays
	out.Result["windows_measured"] = measured
	out.Result["long_services"] = append([]longService{}, long...)
	out.Grade(audit.Score(audit.Proportional(40, len(ids), measured)), audit.AdvisoryThresholds)
	return out
}

var datesOnlyExp = audit.Explanation{
	Purpose: "List services defined only through calendar_dates.txt.",
	Context: "Such services have no weekly pattern; every operating date is an explicit exception.",
	Impact:  "Valid GTFS, but the pattern is harder to maintain and review.",
}

func checkDatesOnlyServices(ds *dataset.Dataset, params audit.Params) audit.Report {
	cal, dates, rep, ok := calendarInputs(ds, datesOnlyExp, dataset.CalendarDates)
	if !ok {
		return rep
	}
	if rep, ok := requireColumns(dates, datesOnlyExp, "service_id"); !ok {
		return rep
	}

	limit := params.SampleLimit()
	only := difference(serviceIDs(dates), serviceIDs(cal))

	out := audit.NewReport(datesOnlyExp)
	out.Result["calendar_dates_services"] = len(serviceIDs(dates))
	out.Result["calendar_dates_only_services"] = audit.Sample(only, limit)
	out.Result["calendar_dates_only_count"] = len(only)
	return out
}

var unusedServicesExp = audit.Explanation{
	Purpose: "Services defined in calendar.txt should be used by at least one trip.",
	Context: "A service_id absent from trips.service_id schedules nothing.",
	Impact:  "Unused services are dead weight and often signal an incomplete export.",
}

func checkServicesUnusedByTrips(ds *dataset.Dataset, params audit.Params) audit.Report {
	cal, _, rep, ok := calendarInputs(ds, unusedServicesExp, dataset.Calendar)
	if !ok {
		return rep
	}
	if rep, ok := requireColumns(cal, unusedServicesExp, "service_id"); !ok {
		return rep
	}
	trips, rep, ok := audit.Require(ds, unusedServicesExp, dataset.Trips, "service_id")
	if !ok {
		return rep
	}

	limit := params.SampleLimit()
	defined := serviceIDs(cal)
	used := serviceIDs(trips)
	unused := difference(defined, used)

	out := audit.NewReport(unusedServicesExp)
	if len(unused) > 0 {
		out.AddIssue(audit.IssueUnusedData, "service_id", unused, limit,
			audit.SampleMessage("calendar services without trips", unused, 5))
		out.Recommend("Remove unused services from calendar.txt or assign trips to them.")
	}
	out.Result["services_defined"] = len(defined)
	out.Result["unused_services"] = audit.Sample(unused, limit)
	out.Result["unused_count"] = len(unused)
	out.Grade(audit.Score(audit.Proportional(40, len(unused), len(defined))),
		audit.Thresholds{Success: 100, Warning: 50})
	return out
}

func difference(a, b map[string]struct{}) []string {
	var out []string
	for v := range a {
		if _, ok := b[v]; !ok {
			out = append(out, v)
		}
	}
	sort.Strings(out)
	return out
}
