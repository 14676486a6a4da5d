// Package temporal checks service calendars, calendar exceptions and the
// feed validity window.
package temporal

import (
	"fmt"

	"gtfsaudit.onebusaway.org/internal/audit"
	"gtfsaudit.onebusaway.org/internal/dataset"
)

const (
	Group    = "temporal"
	FileType = "calendar"
)

// Option keys.
const (
	OptMaxDurationDays  = "max_duration_days"
	OptReferenceDate    = "reference_date"
	OptMinValidityDays  = "min_validity_days"
	OptExpiringSoonDays = "expiring_soon_days"
	OptMaxExpansionDays = "max_expansion_days"
)

const (
	defaultMaxDurationDays  = 730
	defaultMinValidityDays  = 30
	defaultExpiringSoonDays = 7
	defaultMaxExpansionDays = 3660
)

// Rules returns the temporal rules in catalogue order.
func Rules() []audit.RuleDef {
	return []audit.RuleDef{
		def("TC01", "calendar_window_validity", windowValidityExp, checkWindowValidity),
		def("TC02", "inactive_services", inactiveExp, checkInactiveServices),
		def("TC03", "excessive_service_duration", durationExp, checkExcessiveDuration, OptMaxDurationDays),
		def("TC04", "calendar_dates_only_services", datesOnlyExp, checkDatesOnlyServices),
		def("TC05", "services_unused_by_trips", unusedServicesExp, checkServicesUnusedByTrips),
		def("TC06", "exceptions_outside_window", outsideWindowExp, checkExceptionsOutsideWindow),
		def("TC07", "conflicting_exceptions", conflictExp, checkConflictingExceptions),
		def("TC08", "invalid_suppressions", suppressionExp, checkInvalidSuppressions),
		def("TC09", "feed_date_coverage", coverageExp, checkFeedCoverage, OptMaxExpansionDays),
		def("TC10", "feed_info_validity", validityExp, checkFeedInfoValidity,
			OptReferenceDate, OptMinValidityDays, OptExpiringSoonDays),
	}
}

func def(id, name string, exp audit.Explanation, check audit.CheckFunc, keys ...string) audit.RuleDef {
	return audit.RuleDef{
		ID:          id,
		Name:        name,
		Group:       Group,
		FileType:    FileType,
		Description: exp.Purpose,
		ConfigKeys:  append([]string{audit.OptSampleLimit}, keys...),
		Check:       check,
	}
}

// calendarInputs resolves calendar.txt and calendar_dates.txt. With both
// absent there is nothing to analyse. A rule needing a table the feed
// legitimately omits is not applicable.
func calendarInputs(ds *dataset.Dataset, exp audit.Explanation, need ...string) (cal, dates *dataset.Table, rep audit.Report, ok bool) {
	cal, hasCal := ds.Table(dataset.Calendar)
	dates, hasDates := ds.Table(dataset.CalendarDates)
	if !hasCal && !hasDates {
		return nil, nil, audit.MissingFile(exp, dataset.Calendar, dataset.CalendarDates), false
	}
	for _, n := range need {
		switch {
		case n == dataset.Calendar && !hasCal:
			return nil, nil, audit.NotApplicable(exp, "calendar.txt is absent; services are defined by calendar_dates.txt"), false
		case n == dataset.CalendarDates && !hasDates:
			return nil, nil, audit.NotApplicable(exp, "calendar_dates.txt is absent; there are no exceptions"), false
		}
	}
	return cal, dates, audit.Report{}, true
}

func requireColumns(t *dataset.Table, exp audit.Explanation, columns ...string) (audit.Report, bool) {
	if missing := t.MissingColumns(columns...); len(missing) > 0 {
		return audit.MissingColumns(exp, t.Name, missing...), false
	}
	return audit.Report{}, true
}

func exceptionKey(serviceID, date string) string {
	return fmt.Sprintf("%s:%s", serviceID, date)
}
