package temporal

import (
	"fmt"
	"time"

	"gtfsaudit.onebusaway.org/internal/audit"
	"gtfsaudit.onebusaway.org/internal/dataset"
)

// feedWindow is the validity window declared in feed_info.txt.
type feedWindow struct {
	start, end       time.Time
	rawStart, rawEnd string
	startErr, endErr error
}

// feedInfoColumns picks the date columns of feed_info.txt. Some producers
// write start_date/end_date instead of feed_start_date/feed_end_date.
func feedInfoColumns(t *dataset.Table) (string, string, bool) {
	if t.HasColumn("feed_start_date") && t.HasColumn("feed_end_date") {
		return "feed_start_date", "feed_end_date", true
	}
	if t.HasColumn("start_date") && t.HasColumn("end_date") {
		return "start_date", "end_date", true
	}
	return "", "", false
}

// readFeedWindow resolves feed_info.txt. The first row is authoritative.
func readFeedWindow(ds *dataset.Dataset, exp audit.Explanation) (feedWindow, audit.Report, bool) {
	info, ok := ds.Table(dataset.FeedInfo)
	if !ok {
		return feedWindow{}, audit.MissingFile(exp, dataset.FeedInfo), false
	}
	startCol, endCol, ok := feedInfoColumns(info)
	if !ok {
		return feedWindow{}, audit.MissingColumns(exp, dataset.FeedInfo,
			info.MissingColumns("feed_start_date", "feed_end_date")...), false
	}
	if info.Len() == 0 {
		rep := audit.NewReport(exp)
		rep.Issues = append(rep.Issues, audit.Issue{
			Type:        audit.IssueMissingData,
			Field:       dataset.FeedInfo,
			Count:       1,
			AffectedIDs: []string{dataset.FeedInfo + ".txt"},
			Message:     "feed_info.txt has no rows",
		})
		rep.Score = 0
		rep.Status = audit.StatusError
		rep.Recommend("Add a feed_info.txt row with feed_start_date and feed_end_date.")
		return feedWindow{}, rep, false
	}

	w := feedWindow{}
	w.rawStart, _ = info.Cell(0, startCol).Text()
	w.rawEnd, _ = info.Cell(0, endCol).Text()
	w.start, w.startErr = dataset.ParseDate(info.Cell(0, startCol))
	w.end, w.endErr = dataset.ParseDate(info.Cell(0, endCol))
	return w, audit.Report{}, true
}

func (w feedWindow) parsed() bool { return w.startErr == nil && w.endErr == nil }

func (w feedWindow) invalidFormatReport(exp audit.Explanation) audit.Report {
	rep := audit.NewReport(exp)
	var bad []string
	if w.startErr != nil {
		bad = append(bad, "start="+w.rawStart)
	}
	if w.endErr != nil {
		bad = append(bad, "end="+w.rawEnd)
	}
	rep.AddIssue(audit.IssueInvalidFormat, "feed_start_date,feed_end_date", bad, 0,
		"feed_info.txt validity dates are not YYYYMMDD")
	rep.Result["start_date_raw"] = w.rawStart
	rep.Result["end_date_raw"] = w.rawEnd
	rep.Score = 0
	rep.Status = audit.StatusError
	rep.Recommend("Write feed_start_date and feed_end_date as YYYYMMDD.")
	return rep
}

var coverageExp = audit.Explanation{
	Purpose: "Every service date should fall inside the feed validity window declared in feed_info.txt.",
	Context: "Calendar windows are expanded day by day on their active weekdays; calendar_dates.txt dates are checked as-is.",
	Impact:  "Service outside the declared window is dropped or misreported by consumers.",
}

func checkFeedCoverage(ds *dataset.Dataset, params audit.Params) audit.Report {
	cal, dates, rep, ok := calendarInputs(ds, coverageExp)
	if !ok {
		return rep
	}
	w, rep, ok := readFeedWindow(ds, coverageExp)
	if !ok {
		return rep
	}
	if !w.parsed() {
		return w.invalidFormatReport(coverageExp)
	}

	limit := params.SampleLimit()
	maxDays := params.Int(OptMaxExpansionDays, defaultMaxExpansionDays)

	uncoveredByService := make(map[string]int)
	var first, last time.Time
	checked, uncovered := 0, 0
	note := func(serviceID string, d time.Time) {
		checked++
		if !d.Before(w.start) && !d.After(w.end) {
			return
		}
		uncovered++
		uncoveredByService[serviceID]++
		if first.IsZero() || d.Before(first) {
			first = d
		}
		if last.IsZero() || d.After(last) {
			last = d
		}
	}

	var truncated []string
	if cal != nil && len(cal.MissingColumns(windowColumns...)) == 0 {
		for _, s := range parseServices(cal) {
			if !s.windowOK() || s.inverted() {
				continue
			}
			end := s.end
			if limitEnd := s.start.AddDate(0, 0, maxDays-1); end.After(limitEnd) {
				end = limitEnd
				truncated = append(truncated, s.id)
			}
			for d := s.start; !d.After(end); d = d.AddDate(0, 0, 1) {
				if s.days[d.Weekday()] {
					note(s.id, d)
				}
			}
		}
	}
	if dates != nil && len(dates.MissingColumns("service_id", "date")) == 0 {
		for _, e := range parseExceptions(dates) {
			if e.dateErr == nil {
				note(e.serviceID, e.date)
			}
		}
	}

	services := audit.SortedKeys(uncoveredByService)
	out := audit.NewReport(coverageExp)
	if uncovered > 0 {
		out.AddIssue(audit.IssueOutOfRange, "service_id", services, limit,
			fmt.Sprintf("%d service dates fall outside %s-%s: %s", uncovered,
				dataset.FormatDate(w.start), dataset.FormatDate(w.end),
				audit.SampleMessage("services affected", services, 5)))
		out.Recommend("Widen feed_info.txt validity or trim the service windows to match it.")
	}
	out.Result["feed_start_date"] = dataset.FormatDate(w.start)
	out.Result["feed_end_date"] = dataset.FormatDate(w.end)
	out.Result["dates_checked"] = checked
	out.Result["uncovered_dates"] = uncovered
	out.Result["uncovered_services"] = audit.Sample(services, limit)
	if uncovered > 0 {
		out.Result["uncovered_range"] = map[string]string{
			"first": dataset.FormatDate(first),
			"last":  dataset.FormatDate(last),
		}
	}
	if len(truncated) > 0 {
		out.Result["truncated_services"] = audit.Sample(truncated, limit)
		out.Result["max_expansion_days"] = maxDays
	}
	penalties := []float64{audit.Proportional(50, uncovered, checked)}
	if w.start.After(w.end) {
		out.AddIssue(audit.IssueDataInconsistency, "feed_start_date", []string{dataset.FeedInfo}, limit,
			"feed_info.txt start date is after its end date")
		penalties = append(penalties, 50)
	}
	out.Grade(audit.Score(penalties...), audit.DefaultThresholds)
	return out
}

var validityExp = audit.Explanation{
	Purpose: "The feed validity window in feed_info.txt should be well-formed, long enough and current.",
	Context: "The window is compared with reference_date, which defaults to today.",
	Impact:  "Expired or soon-expiring feeds stop producing trips for riders.",
}

// validityThresholds: inverted or expired windows are errors, short or
// expiring windows warnings.
var validityThresholds = audit.Thresholds{Success: 100, Warning: 60}

func checkFeedInfoValidity(ds *dataset.Dataset, params audit.Params) audit.Report {
	w, rep, ok := readFeedWindow(ds, validityExp)
	if !ok {
		return rep
	}
	if !w.parsed() {
		return w.invalidFormatReport(validityExp)
	}

	today := time.Now().UTC().Truncate(24 * time.Hour)
	ref := params.Date(OptReferenceDate, today)
	minDays := params.Int(OptMinValidityDays, defaultMinValidityDays)
	soonDays := params.Int(OptExpiringSoonDays, defaultExpiringSoonDays)

	validityDays := days(w.end.Sub(w.start))
	untilStart := days(w.start.Sub(ref))
	untilEnd := days(w.end.Sub(ref))

	out := audit.NewReport(validityExp)
	var penalties []float64
	if w.start.After(w.end) {
		out.AddIssue(audit.IssueDataInconsistency, "feed_start_date", []string{dataset.FeedInfo}, 0,
			fmt.Sprintf("start %s is after end %s", dataset.FormatDate(w.start), dataset.FormatDate(w.end)))
		out.Recommend("Correct the inverted feed_info.txt window.")
		penalties = append(penalties, 60)
	} else if validityDays < minDays {
		out.Issues = append(out.Issues, audit.Issue{
			Type:        audit.IssueOutOfRange,
			Field:       "validity_duration",
			Count:       validityDays,
			AffectedIDs: []string{},
			Message:     fmt.Sprintf("validity period is only %d days", validityDays),
		})
		out.Recommend(fmt.Sprintf("Extend the validity period to at least %d days.", minDays))
		penalties = append(penalties, 15)
	}
	switch {
	case untilEnd < 0:
		out.Issues = append(out.Issues, audit.Issue{
			Type:        audit.IssueOutOfRange,
			Field:       "feed_end_date",
			Count:       -untilEnd,
			AffectedIDs: []string{},
			Message:     fmt.Sprintf("feed expired %d days ago", -untilEnd),
		})
		out.Recommend("Publish an updated feed; this one has expired.")
		penalties = append(penalties, 50)
	case untilEnd < soonDays:
		out.Issues = append(out.Issues, audit.Issue{
			Type:        audit.IssueOutOfRange,
			Field:       "feed_end_date",
			Count:       untilEnd,
			AffectedIDs: []string{},
			Message:     fmt.Sprintf("feed expires in %d days", untilEnd),
		})
		out.Recommend("Schedule the next feed release before the current one expires.")
		penalties = append(penalties, 10)
	}

	state := "active"
	switch {
	case untilStart > 0:
		state = "future"
	case untilEnd < 0:
		state = "expired"
	}
	out.Result["feed_start_date"] = dataset.FormatDate(w.start)
	out.Result["feed_end_date"] = dataset.FormatDate(w.end)
	out.Result["reference_date"] = dataset.FormatDate(ref)
	out.Result["validity_period_days"] = validityDays
	out.Result["days_until_start"] = untilStart
	out.Result["days_until_end"] = untilEnd
	out.Result["feed_status"] = state
	out.Grade(audit.Score(penalties...), validityThresholds)
	return out
}

func days(d time.Duration) int {
	return int(d.Hours() / 24)
}
