package referential

import (
	"fmt"

	"gtfsaudit.onebusaway.org/internal/audit"
	"gtfsaudit.onebusaway.org/internal/dataset"
)

type absentPolicy int

const (
	// absentFails reports a precondition failure.
	absentFails absentPolicy = iota
	// absentIgnored treats the usage as empty.
	absentIgnored
	// absentNotApplicable makes the whole check not applicable.
	absentNotApplicable
)

type usage struct {
	table    string
	column   string
	onAbsent absentPolicy
	reason   string
}

// unused flags values of target.column that no usage references.
type unused struct {
	target    string
	column    string
	users     []usage
	skip      func(t *dataset.Table, i int) bool
	issue     audit.IssueType
	noun      string
	weight    float64
	th        audit.Thresholds
	exp       audit.Explanation
	recommend string
}

func (u unused) check(ds *dataset.Dataset, params audit.Params) audit.Report {
	tgt, rep, ok := audit.Require(ds, u.exp, u.target, u.column)
	if !ok {
		return rep
	}

	used := make(map[string]struct{})
	for _, us := range u.users {
		t, found := ds.Table(us.table)
		var col dataset.Column
		if found {
			col, found = t.Column(us.column)
		}
		if !found {
			switch us.onAbsent {
			case absentIgnored:
				continue
			case absentNotApplicable:
				return audit.NotApplicable(u.exp, us.reason)
			default:
				if t == nil {
					return audit.MissingFile(u.exp, us.table)
				}
				return audit.MissingColumns(u.exp, us.table, us.column)
			}
		}
		for v := range col.Set() {
			used[v] = struct{}{}
		}
	}

	candidates := make(map[string]struct{})
	for i := 0; i < tgt.Len(); i++ {
		if u.skip != nil && u.skip(tgt, i) {
			continue
		}
		if v, ok := tgt.Cell(i, u.column).Text(); ok {
			candidates[v] = struct{}{}
		}
	}

	limit := params.SampleLimit()
	out := audit.NewReport(u.exp)
	ids := difference(candidates, used)
	if len(ids) > 0 {
		out.AddIssue(u.issue, u.column, ids, limit,
			fmt.Sprintf("%s.%s: %s", u.target, u.column, audit.SampleMessage(u.noun, ids, 5)))
		out.Recommend(u.recommend)
	}
	out.Result["total"] = len(candidates)
	out.Result["unused_count"] = len(ids)
	out.Result["unused_ids"] = audit.Sample(ids, limit)
	out.Grade(audit.Score(audit.Proportional(u.weight, len(ids), len(candidates))), u.th)
	return out
}

// unusedThresholds keep unused entities a warning unless most are unused.
var unusedThresholds = audit.Thresholds{Success: 100, Warning: 50}

// nonBoardingStop excludes entrances, generic nodes and boarding areas, which
// are never served by stop times.
func nonBoardingStop(t *dataset.Table, i int) bool {
	lt, err := dataset.ParseInt(t.Cell(i, "location_type"))
	return err == nil && lt >= 2
}

var unusedChecks = []struct {
	id, name string
	u        unused
}{
	{"RI13", "unused_routes", unused{
		target: dataset.Routes, column: "route_id",
		users: []usage{{table: dataset.Trips, column: "route_id"}},
		issue: audit.IssueUnusedData, noun: "routes without trips", weight: 40, th: unusedThresholds,
		exp: audit.Explanation{
			Purpose: "Every route should be served by at least one trip.",
			Context: "A route_id present in routes.txt but absent from trips.route_id has no service.",
			Impact:  "Empty routes clutter route lists and confuse riders.",
		},
		recommend: "Remove routes without trips or add their trips.",
	}},
	{"RI14", "unused_stops", unused{
		target: dataset.Stops, column: "stop_id",
		users: []usage{
			{table: dataset.StopTimes, column: "stop_id"},
			{table: dataset.Stops, column: "parent_station", onAbsent: absentIgnored},
		},
		skip:  nonBoardingStop,
		issue: audit.IssueUnusedData, noun: "stops without service", weight: 30, th: unusedThresholds,
		exp: audit.Explanation{
			Purpose: "Every stop or station should be served by a stop time or act as a parent station.",
			Context: "Entrances, generic nodes and boarding areas are excluded.",
			Impact:  "Unserved stops appear on maps with no departures.",
		},
		recommend: "Remove unserved stops or verify that stop_times.txt is complete.",
	}},
	{"RI15", "unused_shapes", unused{
		target: dataset.Shapes, column: "shape_id",
		users: []usage{{table: dataset.Trips, column: "shape_id", onAbsent: absentIgnored}},
		issue: audit.IssueUnusedData, noun: "shapes without trips", weight: 30, th: unusedThresholds,
		exp: audit.Explanation{
			Purpose: "Every shape should be used by at least one trip.",
			Context: "A shape_id absent from trips.shape_id is never drawn.",
			Impact:  "Unused shapes inflate the feed and often indicate a stale export.",
		},
		recommend: "Remove unused shapes or link them from trips.shape_id.",
	}},
	{"RI16", "unused_fare_attributes", unused{
		target: dataset.FareAttributes, column: "fare_id",
		users: []usage{{
			table: dataset.FareRules, column: "fare_id", onAbsent: absentNotApplicable,
			reason: "fare_rules.txt is absent, so fares apply network-wide",
		}},
		issue: audit.IssueUnusedData, noun: "fares without rules", weight: 30, th: unusedThresholds,
		exp: audit.Explanation{
			Purpose: "Every fare should be applied by at least one fare rule.",
			Context: "When fare_rules.txt exists, a fare_id it never mentions applies nowhere.",
			Impact:  "Unreachable fares make fare calculation ambiguous.",
		},
		recommend: "Remove unused fares or add fare rules that apply them.",
	}},
	{"RI17", "trips_without_stop_times", unused{
		target: dataset.Trips, column: "trip_id",
		users: []usage{{table: dataset.StopTimes, column: "trip_id"}},
		issue: audit.IssueMissingData, noun: "trips without stop times", weight: 60, th: audit.DefaultThresholds,
		exp: audit.Explanation{
			Purpose: "Every trip must have stop times.",
			Context: "A trip_id absent from stop_times.trip_id has no timetable.",
			Impact:  "Trips without stop times cannot be scheduled or displayed.",
		},
		recommend: "Add stop times for these trips or remove them.",
	}},
}

func unusedRules() []audit.RuleDef {
	rules := make([]audit.RuleDef, 0, len(unusedChecks))
	for _, c := range unusedChecks {
		rules = append(rules, audit.RuleDef{
			ID:          c.id,
			Name:        c.name,
			Group:       Group,
			FileType:    FileType,
			Description: c.u.exp.Purpose,
			ConfigKeys:  []string{audit.OptSampleLimit},
			Check:       c.u.check,
		})
	}
	return rules
}
