package temporal

import (
	"fmt"
	"sort"

	"gtfsaudit.onebusaway.org/internal/audit"
	"gtfsaudit.onebusaway.org/internal/dataset"
)

type datedException struct {
	ServiceID string `json:"service_id"`
	Date      string `json:"date"`
}

func sortDated(ds []datedException) {
	sort.Slice(ds, func(i, j int) bool {
		if ds[i].ServiceID != ds[j].ServiceID {
			return ds[i].ServiceID < ds[j].ServiceID
		}
		return ds[i].Date < ds[j].Date
	})
}

func datedKeys(ds []datedException) []string {
	keys := make([]string, len(ds))
	for i, d := range ds {
		keys[i] = exceptionKey(d.ServiceID, d.Date)
	}
	return keys
}

func headDated(ds []datedException, limit int) []datedException {
	if len(ds) > limit {
		ds = ds[:limit]
	}
	return append([]datedException{}, ds...)
}

var outsideWindowExp = audit.Explanation{
	Purpose: "Exceptions for a calendar service should fall inside that service's window.",
	Context: "Each calendar_dates.txt date is compared with start_date and end_date of the same service in calendar.txt.",
	Impact:  "Exceptions outside the window usually belong to a previous timetable period.",
}

func checkExceptionsOutsideWindow(ds *dataset.Dataset, params audit.Params) audit.Report {
	cal, dates, rep, ok := calendarInputs(ds, outsideWindowExp, dataset.Calendar, dataset.CalendarDates)
	if !ok {
		return rep
	}
	if rep, ok := requireColumns(cal, outsideWindowExp, windowColumns...); !ok {
		return rep
	}
	if rep, ok := requireColumns(dates, outsideWindowExp, "service_id", "date"); !ok {
		return rep
	}

	limit := params.SampleLimit()
	services := serviceIndex(parseServices(cal))

	var outside []datedException
	var unparseable []string
	checked := 0
	for _, e := range parseExceptions(dates) {
		s, ok := services[e.serviceID]
		if !ok || !s.windowOK() {
			continue
		}
		if e.dateErr != nil {
			unparseable = append(unparseable, exceptionKey(e.serviceID, e.rawDate))
			continue
		}
		checked++
		if !s.contains(e.date) {
			outside = append(outside, datedException{ServiceID: e.serviceID, Date: e.dateKey()})
		}
	}
	sortDated(outside)

	out := audit.NewReport(outsideWindowExp)
	if len(outside) > 0 {
		ids := datedKeys(outside)
		out.AddIssue(audit.IssueDataInconsistency, "date", ids, limit,
			audit.SampleMessage("exceptions outside their service window", ids, 5))
		out.Recommend("Extend the service window or drop exceptions that belong to another period.")
	}
	if len(unparseable) > 0 {
		out.AddIssue(audit.IssueInvalidFormat, "date", unparseable, limit,
			audit.SampleMessage("exceptions with unparseable dates", unparseable, 5))
	}
	out.Result["exceptions_checked"] = checked
	out.Result["outside_window"] = headDated(outside, limit)
	out.Result["outside_count"] = len(outside)
	out.Grade(audit.Score(
		audit.Proportional(40, len(outside), checked),
		audit.Proportional(20, len(unparseable), checked+len(unparseable)),
	), audit.AdvisoryThresholds)
	return out
}

var conflictExp = audit.Explanation{
	Purpose: "A service must not be both added and removed on the same date.",
	Context: "Rows of calendar_dates.txt sharing service_id and date are grouped by exception_type.",
	Impact:  "Contradictory exceptions make the service's operation on that date undefined.",
}

type exceptionConflict struct {
	ServiceID string `json:"service_id"`
	Date      string `json:"date"`
	Types     []int  `json:"types"`
}

func checkConflictingExceptions(ds *dataset.Dataset, params audit.Params) audit.Report {
	_, dates, rep, ok := calendarInputs(ds, conflictExp, dataset.CalendarDates)
	if !ok {
		return rep
	}
	if rep, ok := requireColumns(dates, conflictExp, exceptionColumns...); !ok {
		return rep
	}

	limit := params.SampleLimit()
	exceptions := parseExceptions(dates)

	type pair struct{ service, date string }
	kinds := make(map[pair]map[int]int)
	var order []pair
	var badKinds []string
	for _, e := range exceptions {
		if !e.validKind() {
			badKinds = append(badKinds, exceptionKey(e.serviceID, e.dateKey()))
			continue
		}
		p := pair{e.serviceID, e.dateKey()}
		if kinds[p] == nil {
			kinds[p] = make(map[int]int)
			order = append(order, p)
		}
		kinds[p][e.kind]++
	}

	var conflicts []exceptionConflict
	var duplicates []datedException
	for _, p := range order {
		k := kinds[p]
		if len(k) > 1 {
			types := make([]int, 0, len(k))
			for t := range k {
				types = append(types, t)
			}
			sort.Ints(types)
			conflicts = append(conflicts, exceptionConflict{ServiceID: p.service, Date: p.date, Types: types})
			continue
		}
		for _, n := range k {
			if n > 1 {
				duplicates = append(duplicates, datedException{ServiceID: p.service, Date: p.date})
			}
		}
	}
	sort.Slice(conflicts, func(i, j int) bool {
		if conflicts[i].ServiceID != conflicts[j].ServiceID {
			return conflicts[i].ServiceID < conflicts[j].ServiceID
		}
		return conflicts[i].Date < conflicts[j].Date
	})
	sortDated(duplicates)

	out := audit.NewReport(conflictExp)
	if len(conflicts) > 0 {
		ids := make([]string, len(conflicts))
		for i, c := range conflicts {
			ids[i] = exceptionKey(c.ServiceID, c.Date)
		}
		out.AddIssue(audit.IssueDataInconsistency, "exception_type", ids, limit,
			audit.SampleMessage("service dates both added and removed", ids, 5))
		out.Recommend("Keep a single exception_type per service and date.")
	}
	if len(duplicates) > 0 {
		ids := datedKeys(duplicates)
		out.AddIssue(audit.IssueDuplicateData, "date", ids, limit,
			audit.SampleMessage("repeated exceptions", ids, 5))
		out.Recommend("Remove repeated calendar_dates.txt rows.")
	}
	if len(badKinds) > 0 {
		out.AddIssue(audit.IssueInvalidFormat, "exception_type", badKinds, limit,
			fmt.Sprintf("%d exceptions have an exception_type other than 1 or 2", len(badKinds)))
		out.Recommend("Use exception_type 1 to add a date and 2 to remove it.")
	}
	if len(conflicts) > limit {
		conflicts = conflicts[:limit]
	}
	out.Result["pairs_checked"] = len(order)
	out.Result["conflicts"] = append([]exceptionConflict{}, conflicts...)
	out.Result["conflict_count"] = countConflicts(kinds)
	out.Result["duplicates"] = headDated(duplicates, limit)
	out.Grade(audit.Score(
		audit.Proportional(60, countConflicts(kinds), len(order)),
		audit.Proportional(20, len(duplicates), len(order)),
		audit.Proportional(30, len(badKinds), len(exceptions)),
	), audit.DefaultThresholds)
	return out
}

func countConflicts[K comparable](kinds map[K]map[int]int) int {
	n := 0
	for _, k := range kinds {
		if len(k) > 1 {
			n++
		}
	}
	return n
}

var suppressionExp = audit.Explanation{
	Purpose: "Removal exceptions should only suppress service that was scheduled.",
	Context: "An exception_type 2 on a weekday the calendar.txt service never runs, or for a service with no calendar.txt row, removes nothing.",
	Impact:  "Pointless removals hint at a misunderstanding of the calendar and often hide a missing addition.",
}

type suppression struct {
	ServiceID string `json:"service_id"`
	Date      string `json:"date"`
	Weekday   string `json:"weekday,omitempty"`
}

func checkInvalidSuppressions(ds *dataset.Dataset, params audit.Params) audit.Report {
	cal, dates, rep, ok := calendarInputs(ds, suppressionExp, dataset.Calendar, dataset.CalendarDates)
	if !ok {
		return rep
	}
	if rep, ok := requireColumns(cal, suppressionExp, append([]string{"service_id"}, weekdayColumns[:]...)...); !ok {
		return rep
	}
	if rep, ok := requireColumns(dates, suppressionExp, exceptionColumns...); !ok {
		return rep
	}

	limit := params.SampleLimit()
	services := serviceIndex(parseServices(cal))

	var inactiveDay, unknown []suppression
	removals := 0
	for _, e := range parseExceptions(dates) {
		if e.kind != 2 || e.dateErr != nil {
			continue
		}
		removals++
		s, ok := services[e.serviceID]
		if !ok {
			unknown = append(unknown, suppression{ServiceID: e.serviceID, Date: e.dateKey()})
			continue
		}
		if wd := e.date.Weekday(); !s.days[wd] {
			inactiveDay = append(inactiveDay, suppression{
				ServiceID: e.serviceID,
				Date:      e.dateKey(),
				Weekday:   weekdayColumns[wd],
			})
		}
	}

	out := audit.NewReport(suppressionExp)
	if len(inactiveDay) > 0 {
		ids := suppressionKeys(inactiveDay)
		out.AddIssue(audit.IssueDataInconsistency, "date", ids, limit,
			audit.SampleMessage("removals on weekdays the service never runs", ids, 5))
		out.Recommend("Drop removals on weekdays the service does not run, or fix the weekday flags.")
	}
	if len(unknown) > 0 {
		ids := suppressionKeys(unknown)
		out.AddIssue(audit.IssueDataInconsistency, "service_id", ids, limit,
			audit.SampleMessage("removals for services without a calendar.txt row", ids, 5))
		out.Recommend("Drop removals for services that are never scheduled by calendar.txt.")
	}
	out.Result["removals_checked"] = removals
	out.Result["inactive_weekday"] = headSuppressions(inactiveDay, limit)
	out.Result["unknown_service"] = headSuppressions(unknown, limit)
	out.Grade(audit.Score(
		audit.Proportional(40, len(inactiveDay), removals),
		audit.Proportional(40, len(unknown), removals),
	), audit.DefaultThresholds)
	return out
}

func suppressionKeys(s []suppression) []string {
	keys := make([]string, len(s))
	for i, v := range s {
		keys[i] = exceptionKey(v.ServiceID, v.Date)
	}
	return keys
}

func headSuppressions(s []suppression, limit int) []suppression {
	if len(s) > limit {
		s = s[:limit]
	}
	return append([]suppression{}, s...)
}
