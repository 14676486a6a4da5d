package referential

import (
	"fmt"
	"strings"

	"gtfsaudit.onebusaway.org/internal/audit"
	"gtfsaudit.onebusaway.org/internal/dataset"
)

type target struct {
	table  string
	column string
}

// reference describes source.columns -> union(targets). When optional is
// set, source columns may be absent from the header; blank cells are then
// "no reference" rather than a defect. requiredWhen turns an optional
// reference into a required one for datasets it matches.
type reference struct {
	source       string
	columns      []string
	optional     bool
	requiredWhen func(*dataset.Dataset) bool
	key          string
	targets      []target
	noun         string
	weight       float64
	th           audit.Thresholds
	exp          audit.Explanation
	recommend    string
}

func (ref reference) check(ds *dataset.Dataset, params audit.Params) audit.Report {
	src, ok := ds.Table(ref.source)
	if !ok {
		return audit.MissingFile(ref.exp, ref.source)
	}

	optional := ref.optional && (ref.requiredWhen == nil || !ref.requiredWhen(ds))

	var cols, absent []string
	for _, c := range ref.columns {
		if src.HasColumn(c) {
			cols = append(cols, c)
		} else {
			absent = append(absent, c)
		}
	}
	if !optional && len(absent) > 0 {
		return audit.MissingColumns(ref.exp, ref.source, absent...)
	}
	if len(cols) == 0 {
		return audit.NotApplicable(ref.exp,
			fmt.Sprintf("%s.txt has no %s column", ref.source, strings.Join(ref.columns, "/")))
	}

	limit := params.SampleLimit()
	rep := audit.NewReport(ref.exp)

	valid, targetIssues, resolved := ref.validSet(ds)
	if resolved == 0 {
		// every reference is dangling when nothing can resolve it
		rep.Issues = append(rep.Issues, targetIssues...)
	}

	referenced := make(map[string]struct{})
	missingAll := make(map[string]struct{})
	missingByColumn := make(map[string]int, len(cols))
	for _, c := range cols {
		col, _ := src.Column(c)
		set := col.Set()
		for v := range set {
			referenced[v] = struct{}{}
		}
		missing := difference(set, valid)
		missingByColumn[c] = len(missing)
		for _, m := range missing {
			missingAll[m] = struct{}{}
		}
		if len(missing) > 0 {
			rep.AddIssue(audit.IssueMissingReference, c, missing, limit,
				fmt.Sprintf("%s.%s: %s", ref.source, c, audit.SampleMessage("unresolved "+ref.noun, missing, 5)))
		}
	}

	var blank []string
	if !optional {
		for _, c := range cols {
			col, _ := src.Column(c)
			for _, i := range col.BlankRows() {
				blank = append(blank, rowLabel(src, ref.key, i))
			}
		}
		if len(blank) > 0 {
			rep.AddIssue(audit.IssueMissingData, strings.Join(cols, ","), blank, limit,
				fmt.Sprintf("%d %s rows have a blank %s", len(blank), ref.source, strings.Join(cols, "/")))
		}
	}

	missing := audit.SortedKeys(missingAll)
	rep.Result["source"] = ref.source + "." + strings.Join(cols, ",")
	rep.Result["rows_checked"] = src.Len()
	rep.Result["references_checked"] = len(referenced)
	rep.Result["missing_count"] = len(missing)
	rep.Result["missing_references"] = audit.Sample(missing, limit)
	if len(cols) > 1 {
		rep.Result["missing_by_column"] = missingByColumn
	}
	if !optional {
		rep.Result["blank_references"] = len(blank)
	}

	penalties := []float64{
		audit.Proportional(ref.weight, len(missing), len(referenced)),
		audit.Proportional(ref.weight/2, len(blank), src.Len()),
	}
	if resolved == 0 && len(referenced) > 0 {
		penalties = append(penalties, audit.MaxScore)
	}
	rep.Grade(audit.Score(penalties...), ref.th)
	if rep.Status != audit.StatusSuccess && ref.recommend != "" {
		rep.Recommend(ref.recommend)
	}
	return rep
}

// validSet unions the target columns that exist. The issues describe the
// targets that do not; callers report them only when nothing resolved.
func (ref reference) validSet(ds *dataset.Dataset) (map[string]struct{}, []audit.Issue, int) {
	valid := make(map[string]struct{})
	var issues []audit.Issue
	resolved := 0
	for _, tg := range ref.targets {
		t, ok := ds.Table(tg.table)
		if !ok {
			issues = append(issues, audit.Issue{
				Type:        audit.IssueMissingFile,
				Field:       tg.table,
				Count:       1,
				AffectedIDs: []string{tg.table + ".txt"},
				Message:     fmt.Sprintf("%s.txt is missing, so no %s can resolve", tg.table, ref.noun),
			})
			continue
		}
		col, ok := t.Column(tg.column)
		if !ok {
			issues = append(issues, audit.Issue{
				Type:        audit.IssueMissingColumn,
				Field:       tg.column,
				Count:       1,
				AffectedIDs: []string{tg.table + "." + tg.column},
				Message:     fmt.Sprintf("column %s is missing from %s.txt", tg.column, tg.table),
			})
			continue
		}
		resolved++
		for v := range col.Set() {
			valid[v] = struct{}{}
		}
	}
	return valid, issues, resolved
}

var references = []struct {
	id, name string
	ref      reference
}{
	{"RI01", "trip_route_reference", reference{
		source: dataset.Trips, columns: []string{"route_id"}, key: "trip_id",
		targets: []target{{dataset.Routes, "route_id"}},
		noun:    "route references", weight: 60, th: audit.DefaultThresholds,
		exp: audit.Explanation{
			Purpose: "Every trip must belong to a route defined in routes.txt.",
			Context: "trips.route_id is a required foreign key into routes.route_id.",
			Impact:  "Trips pointing at unknown routes cannot be displayed or grouped by consumers.",
		},
		recommend: "Add the missing routes to routes.txt or correct trips.route_id.",
	}},
	{"RI02", "trip_service_reference", reference{
		source: dataset.Trips, columns: []string{"service_id"}, key: "trip_id",
		targets: []target{{dataset.Calendar, "service_id"}, {dataset.CalendarDates, "service_id"}},
		noun:    "service references", weight: 60, th: audit.DefaultThresholds,
		exp: audit.Explanation{
			Purpose: "Every trip must run on a service defined in calendar.txt or calendar_dates.txt.",
			Context: "A service_id resolves if it appears in either calendar table.",
			Impact:  "Trips with unknown services never operate and disappear from journey planners.",
		},
		recommend: "Define the missing services in calendar.txt or calendar_dates.txt.",
	}},
	{"RI03", "stop_time_trip_reference", reference{
		source: dataset.StopTimes, columns: []string{"trip_id"},
		targets: []target{{dataset.Trips, "trip_id"}},
		noun:    "trip references", weight: 60, th: audit.DefaultThresholds,
		exp: audit.Explanation{
			Purpose: "Every stop time must belong to a trip defined in trips.txt.",
			Context: "stop_times.trip_id is a required foreign key into trips.trip_id.",
			Impact:  "Orphaned stop times are ignored by consumers and usually signal a truncated export.",
		},
		recommend: "Remove orphaned stop times or restore the missing trips.",
	}},
	{"RI04", "stop_time_stop_reference", reference{
		source: dataset.StopTimes, columns: []string{"stop_id"}, key: "trip_id",
		targets: []target{{dataset.Stops, "stop_id"}},
		noun:    "stop references", weight: 60, th: audit.DefaultThresholds,
		exp: audit.Explanation{
			Purpose: "Every stop time must reference a stop defined in stops.txt.",
			Context: "stop_times.stop_id is a required foreign key into stops.stop_id.",
			Impact:  "Unknown stops break timetables and trip geometry.",
		},
		recommend: "Add the missing stops to stops.txt or correct stop_times.stop_id.",
	}},
	{"RI05", "fare_rule_fare_reference", reference{
		source: dataset.FareRules, columns: []string{"fare_id"},
		targets: []target{{dataset.FareAttributes, "fare_id"}},
		noun:    "fare references", weight: 60, th: audit.DefaultThresholds,
		exp: audit.Explanation{
			Purpose: "Every fare rule must apply a fare defined in fare_attributes.txt.",
			Context: "fare_rules.fare_id is a required foreign key into fare_attributes.fare_id.",
			Impact:  "Rules for unknown fares cannot be priced.",
		},
		recommend: "Define the missing fares in fare_attributes.txt or remove the rules.",
	}},
	{"RI06", "fare_rule_route_reference", reference{
		source: dataset.FareRules, columns: []string{"route_id"}, optional: true,
		targets: []target{{dataset.Routes, "route_id"}},
		noun:    "route references", weight: 40, th: audit.DefaultThresholds,
		exp: audit.Explanation{
			Purpose: "Fare rules scoped to a route must name an existing route.",
			Context: "fare_rules.route_id is optional; when set it must match routes.route_id.",
			Impact:  "Fares scoped to unknown routes never apply.",
		},
		recommend: "Correct fare_rules.route_id or add the routes it names.",
	}},
	{"RI07", "fare_rule_zone_reference", reference{
		source: dataset.FareRules, columns: []string{"origin_id", "destination_id", "contains_id"}, optional: true,
		targets: []target{{dataset.Stops, "zone_id"}},
		noun:    "zone references", weight: 40, th: audit.DefaultThresholds,
		exp: audit.Explanation{
			Purpose: "Fare zones used by fare rules must be assigned to at least one stop.",
			Context: "origin_id, destination_id and contains_id refer to stops.zone_id.",
			Impact:  "Zone fares for zones without stops can never be matched to a journey.",
		},
		recommend: "Assign the zones to stops via stops.zone_id or correct the fare rules.",
	}},
	{"RI08", "frequency_trip_reference", reference{
		source: dataset.Frequencies, columns: []string{"trip_id"},
		targets: []target{{dataset.Trips, "trip_id"}},
		noun:    "trip references", weight: 60, th: audit.DefaultThresholds,
		exp: audit.Explanation{
			Purpose: "Every frequency entry must expand a trip defined in trips.txt.",
			Context: "frequencies.trip_id is a required foreign key into trips.trip_id.",
			Impact:  "Headway-based service for unknown trips is silently dropped.",
		},
		recommend: "Remove the frequency entries or restore the missing trips.",
	}},
	{"RI09", "transfer_stop_reference", reference{
		source: dataset.Transfers, columns: []string{"from_stop_id", "to_stop_id"},
		targets: []target{{dataset.Stops, "stop_id"}},
		noun:    "stop references", weight: 50, th: audit.DefaultThresholds,
		exp: audit.Explanation{
			Purpose: "Transfers must connect stops defined in stops.txt.",
			Context: "Both from_stop_id and to_stop_id refer to stops.stop_id.",
			Impact:  "Transfers between unknown stops are ignored by routing engines.",
		},
		recommend: "Correct the transfer endpoints or add the missing stops.",
	}},
	{"RI10", "trip_shape_reference", reference{
		source: dataset.Trips, columns: []string{"shape_id"}, optional: true,
		targets: []target{{dataset.Shapes, "shape_id"}},
		noun:    "shape references", weight: 40, th: audit.DefaultThresholds,
		exp: audit.Explanation{
			Purpose: "Trips that name a shape must name one defined in shapes.txt.",
			Context: "trips.shape_id is optional; when set it must match shapes.shape_id.",
			Impact:  "Maps fall back to straight lines between stops for unknown shapes.",
		},
		recommend: "Add the missing shapes or clear trips.shape_id.",
	}},
	{"RI11", "route_agency_reference", reference{
		source: dataset.Routes, columns: []string{"agency_id"}, key: "route_id",
		optional: true, requiredWhen: multiAgency,
		targets: []target{{dataset.Agency, "agency_id"}},
		noun:    "agency references", weight: 50, th: audit.DefaultThresholds,
		exp: audit.Explanation{
			Purpose: "Routes that name an agency must name one defined in agency.txt.",
			Context: "routes.agency_id may be omitted only in single-agency feeds.",
			Impact:  "Routes with unknown operators lose branding, fares and contact details.",
		},
		recommend: "Correct routes.agency_id or add the agencies to agency.txt.",
	}},
	{"RI12", "parent_station_reference", reference{
		source: dataset.Stops, columns: []string{"parent_station"}, optional: true,
		targets: []target{{dataset.Stops, "stop_id"}},
		noun:    "station references", weight: 40, th: audit.DefaultThresholds,
		exp: audit.Explanation{
			Purpose: "Stops grouped under a parent station must name an existing stop.",
			Context: "stops.parent_station refers to stops.stop_id of a station.",
			Impact:  "Broken station hierarchies split interchanges in trip planners.",
		},
		recommend: "Correct stops.parent_station or add the missing stations.",
	}},
}

// multiAgency reports whether agency.txt defines more than one agency.
func multiAgency(ds *dataset.Dataset) bool {
	t, ok := ds.Table(dataset.Agency)
	return ok && t.Len() > 1
}

func referenceRules() []audit.RuleDef {
	rules := make([]audit.RuleDef, 0, len(references))
	for _, r := range references {
		rules = append(rules, audit.RuleDef{
			ID:          r.id,
			Name:        r.name,
			Group:       Group,
			FileType:    FileType,
			Description: r.ref.exp.Purpose,
			ConfigKeys:  []string{audit.OptSampleLimit},
			Check:       r.ref.check,
		})
	}
	return rules
}
