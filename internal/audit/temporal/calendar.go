package temporal

import (
	"time"

	"gtfsaudit.onebusaway.org/internal/dataset"
)

// weekdayColumns is indexed by time.Weekday.
var weekdayColumns = [7]string{"sunday", "monday", "tuesday", "wednesday", "thursday", "friday", "saturday"}

var windowColumns = []string{"service_id", "start_date", "end_date"}

var exceptionColumns = []string{"service_id", "date", "exception_type"}

// service is one calendar.txt row.
type service struct {
	id       string
	row      int
	start    time.Time
	end      time.Time
	startErr error
	endErr   error
	days     [7]bool
	badFlags []string
}

func (s service) windowOK() bool { return s.startErr == nil && s.endErr == nil }

func (s service) inverted() bool { return s.windowOK() && s.start.After(s.end) }

func (s service) neverScheduled() bool {
	for _, d := range s.days {
		if d {
			return false
		}
	}
	return true
}

func (s service) contains(d time.Time) bool {
	return s.windowOK() && !d.Before(s.start) && !d.After(s.end)
}

// durationDays is the inclusive window length.
func (s service) durationDays() int {
	return int(s.end.Sub(s.start).Hours()/24) + 1
}

// parseServices reads calendar rows. Weekday columns are read only when all
// seven are present. Rows without a service_id are skipped.
func parseServices(t *dataset.Table) []service {
	starts := dataset.ParseColumn(t, "start_date", dataset.ParseDate)
	ends := dataset.ParseColumn(t, "end_date", dataset.ParseDate)
	withDays := len(t.MissingColumns(weekdayColumns[:]...)) == 0

	services := make([]service, 0, t.Len())
	for i := 0; i < t.Len(); i++ {
		id, ok := t.Cell(i, "service_id").Text()
		if !ok {
			continue
		}
		s := service{
			id:       id,
			row:      i,
			start:    starts[i].Value,
			end:      ends[i].Value,
			startErr: starts[i].Err,
			endErr:   ends[i].Err,
		}
		if withDays {
			for wd, col := range weekdayColumns {
				v, err := dataset.ParseInt(t.Cell(i, col))
				switch {
				case err == nil && v == 1:
					s.days[wd] = true
				case err == nil && v == 0:
				default:
					s.badFlags = append(s.badFlags, col)
				}
			}
		}
		services = append(services, s)
	}
	return services
}

// serviceIndex maps a service_id to its first calendar row.
func serviceIndex(services []service) map[string]service {
	idx := make(map[string]service, len(services))
	for _, s := range services {
		if _, dup := idx[s.id]; !dup {
			idx[s.id] = s
		}
	}
	return idx
}

// exception is one calendar_dates.txt row.
type exception struct {
	serviceID string
	row       int
	rawDate   string
	date      time.Time
	dateErr   error
	kind      int
}

func (e exception) dateKey() string {
	if e.dateErr == nil {
		return dataset.FormatDate(e.date)
	}
	return e.rawDate
}

// validKind reports whether exception_type is 1 (added) or 2 (removed).
func (e exception) validKind() bool { return e.kind == 1 || e.kind == 2 }

func parseExceptions(t *dataset.Table) []exception {
	dates := dataset.ParseColumn(t, "date", dataset.ParseDate)
	out := make([]exception, 0, t.Len())
	for i := 0; i < t.Len(); i++ {
		id, ok := t.Cell(i, "service_id").Text()
		if !ok {
			continue
		}
		raw, _ := t.Cell(i, "date").Text()
		e := exception{
			serviceID: id,
			row:       i,
			rawDate:   raw,
			date:      dates[i].Value,
			dateErr:   dates[i].Err,
		}
		if k, err := dataset.ParseInt(t.Cell(i, "exception_type")); err == nil {
			e.kind = int(k)
		}
		out = append(out, e)
	}
	return out
}

func serviceIDs(t *dataset.Table) map[string]struct{} {
	if t == nil {
		return map[string]struct{}{}
	}
	col, ok := t.Column("service_id")
	if !ok {
		return map[string]struct{}{}
	}
	return col.Set()
}
