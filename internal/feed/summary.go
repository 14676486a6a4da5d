package feed

import (
	"time"

	"github.com/jamespfennell/gtfs"

	"gtfsaudit.onebusaway.org/internal/dataset"
)

// Summary describes a feed independently of the audit: entity counts from a
// typed parse plus the raw table sizes.
type Summary struct {
	SizeBytes    int            `json:"size_bytes"`
	Agencies     int            `json:"agencies"`
	Routes       int            `json:"routes"`
	Stops        int            `json:"stops"`
	Trips        int            `json:"trips"`
	Services     int            `json:"services"`
	Shapes       int            `json:"shapes"`
	Transfers    int            `json:"transfers"`
	Warnings     int            `json:"warnings"`
	ServiceStart string         `json:"service_start,omitempty"`
	ServiceEnd   string         `json:"service_end,omitempty"`
	Tables       map[string]int `json:"tables"`
	ParseError   string         `json:"parse_error,omitempty"`
}

// Summarize parses the zipped feed with the typed GTFS parser. A feed the
// parser rejects still gets a summary; the audit reports why in detail.
func Summarize(b []byte) Summary {
	s := Summary{SizeBytes: len(b)}
	static, err := gtfs.ParseStatic(b, gtfs.ParseStaticOptions{})
	if err != nil {
		s.ParseError = err.Error()
		return s
	}

	s.Agencies = len(static.Agencies)
	s.Routes = len(static.Routes)
	s.Stops = len(static.Stops)
	s.Trips = len(static.Trips)
	s.Services = len(static.Services)
	s.Shapes = len(static.Shapes)
	s.Transfers = len(static.Transfers)
	s.Warnings = len(static.Warnings)

	var start, end time.Time
	for _, svc := range static.Services {
		if svc.StartDate.IsZero() || svc.EndDate.IsZero() {
			continue
		}
		if start.IsZero() || svc.StartDate.Before(start) {
			start = svc.StartDate
		}
		if svc.EndDate.After(end) {
			end = svc.EndDate
		}
	}
	if !start.IsZero() {
		s.ServiceStart = dataset.FormatDate(start)
		s.ServiceEnd = dataset.FormatDate(end)
	}
	return s
}

// SummarizeDataset counts rows when no archive is available for a typed
// parse.
func SummarizeDataset(ds *dataset.Dataset) Summary {
	counts := ds.RowCounts()
	return Summary{
		Agencies:  counts[dataset.Agency],
		Routes:    counts[dataset.Routes],
		Stops:     counts[dataset.Stops],
		Trips:     counts[dataset.Trips],
		Services:  counts[dataset.Calendar],
		Transfers: counts[dataset.Transfers],
		Tables:    counts,
	}
}
