package referential

import (
	"fmt"

	"gtfsaudit.onebusaway.org/internal/audit"
	"gtfsaudit.onebusaway.org/internal/dataset"
)

type key struct {
	table  string
	column string
	// singleRowOptional marks keys that may be omitted when the table has
	// one row, like agency_id in single-agency feeds.
	singleRowOptional bool
}

var primaryKeys = []key{
	{table: dataset.Agency, column: "agency_id", singleRowOptional: true},
	{table: dataset.Stops, column: "stop_id"},
	{table: dataset.Routes, column: "route_id"},
	{table: dataset.Trips, column: "trip_id"},
	{table: dataset.FareAttributes, column: "fare_id"},
}

var uniqueKeys = []key{
	{table: dataset.Routes, column: "route_id"},
	{table: dataset.Trips, column: "trip_id"},
	{table: dataset.Stops, column: "stop_id"},
	{table: dataset.FareAttributes, column: "fare_id"},
}

func keyTables(keys []key) []string {
	tables := make([]string, len(keys))
	for i, k := range keys {
		tables[i] = k.table
	}
	return tables
}

var primaryKeyExplanation = audit.Explanation{
	Purpose: "Every row of a keyed table must carry its identifier.",
	Context: "agency_id, stop_id, route_id, trip_id and fare_id identify rows that other tables reference.",
	Impact:  "Rows without identifiers cannot be referenced and are dropped by most consumers.",
}

func primaryKeyRule() audit.RuleDef {
	return audit.RuleDef{
		ID:          "RI18",
		Name:        "missing_primary_keys",
		Group:       Group,
		FileType:    FileType,
		Description: primaryKeyExplanation.Purpose,
		ConfigKeys:  []string{audit.OptSampleLimit},
		Check:       checkPrimaryKeys,
	}
}

func checkPrimaryKeys(ds *dataset.Dataset, params audit.Params) audit.Report {
	limit := params.SampleLimit()
	rep := audit.NewReport(primaryKeyExplanation)

	checked := 0
	blankByTable := make(map[string]int)
	var penalties []float64
	for _, k := range primaryKeys {
		t, ok := ds.Table(k.table)
		if !ok {
			continue
		}
		checked++
		col, ok := t.Column(k.column)
		if !ok {
			if k.singleRowOptional && t.Len() <= 1 {
				continue
			}
			rep.Issues = append(rep.Issues, audit.Issue{
				Type:        audit.IssueMissingColumn,
				Field:       k.column,
				Count:       1,
				AffectedIDs: []string{k.table + "." + k.column},
				Message:     fmt.Sprintf("column %s is missing from %s.txt", k.column, k.table),
			})
			penalties = append(penalties, 50)
			continue
		}
		var rows []string
		for _, i := range col.BlankRows() {
			rows = append(rows, rowLabel(t, "", i))
		}
		if k.singleRowOptional && t.Len() <= 1 {
			rows = nil
		}
		blankByTable[k.table] = len(rows)
		if len(rows) > 0 {
			rep.AddIssue(audit.IssueMissingData, k.column, rows, limit,
				fmt.Sprintf("%d rows in %s.txt have a blank %s", len(rows), k.table, k.column))
			penalties = append(penalties, audit.Proportional(50, len(rows), t.Len()))
		}
	}
	if checked == 0 {
		return audit.MissingFile(primaryKeyExplanation, keyTables(primaryKeys)...)
	}

	rep.Result["tables_checked"] = checked
	rep.Result["blank_keys"] = blankByTable
	rep.Grade(audit.Score(penalties...), audit.DefaultThresholds)
	if rep.Status != audit.StatusSuccess {
		rep.Recommend("Fill in every identifier and regenerate the feed.")
	}
	return rep
}

var duplicateExplanation = audit.Explanation{
	Purpose: "Identifiers expected to be unique must not repeat.",
	Context: "route_id, trip_id, stop_id and fare_id must each be unique within their table.",
	Impact:  "Duplicate identifiers make references ambiguous; consumers keep one row at random.",
}

func duplicateIdentifierRule() audit.RuleDef {
	return audit.RuleDef{
		ID:          "RI19",
		Name:        "duplicate_identifiers",
		Group:       Group,
		FileType:    FileType,
		Description: duplicateExplanation.Purpose,
		ConfigKeys:  []string{audit.OptSampleLimit},
		Check:       checkDuplicateIdentifiers,
	}
}

func checkDuplicateIdentifiers(ds *dataset.Dataset, params audit.Params) audit.Report {
	limit := params.SampleLimit()
	rep := audit.NewReport(duplicateExplanation)

	checked := 0
	duplicates := make(map[string]map[string]int)
	var penalties []float64
	for _, k := range uniqueKeys {
		t, ok := ds.Table(k.table)
		if !ok {
			continue
		}
		checked++
		col, ok := t.Column(k.column)
		if !ok {
			rep.Issues = append(rep.Issues, audit.Issue{
				Type:        audit.IssueMissingColumn,
				Field:       k.column,
				Count:       1,
				AffectedIDs: []string{k.table + "." + k.column},
				Message:     fmt.Sprintf("column %s is missing from %s.txt", k.column, k.table),
			})
			penalties = append(penalties, 50)
			continue
		}
		occurrences := make(map[string]int)
		for _, v := range col.Values() {
			occurrences[v]++
		}
		dups := make(map[string]int)
		for v, n := range occurrences {
			if n > 1 {
				dups[v] = n
			}
		}
		duplicates[k.table] = dups
		if len(dups) > 0 {
			ids := audit.SortedKeys(dups)
			rep.AddIssue(audit.IssueDuplicateData, k.column, ids, limit,
				fmt.Sprintf("%s.txt: %s", k.table, audit.SampleMessage("duplicated "+k.column+" values", ids, 5)))
			penalties = append(penalties, audit.Proportional(50, len(ids), len(occurrences)))
		}
	}
	if checked == 0 {
		return audit.MissingFile(duplicateExplanation, keyTables(uniqueKeys)...)
	}

	counts := make(map[string]int, len(duplicates))
	for table, dups := range duplicates {
		counts[table] = len(dups)
	}
	rep.Result["tables_checked"] = checked
	rep.Result["duplicate_counts"] = counts
	rep.Result["occurrences"] = sampleOccurrences(duplicates, limit)
	rep.Grade(audit.Score(penalties...), audit.StrictThresholds)
	if rep.Status != audit.StatusSuccess {
		rep.Recommend("Make each identifier unique; merge or renumber the repeated rows.")
	}
	return rep
}

// sampleOccurrences keeps at most limit ids per table, lowest first.
func sampleOccurrences(dups map[string]map[string]int, limit int) map[string]map[string]int {
	out := make(map[string]map[string]int, len(dups))
	for table, m := range dups {
		ids := audit.Sample(audit.SortedKeys(m), limit)
		sampled := make(map[string]int, len(ids))
		for _, id := range ids {
			sampled[id] = m[id]
		}
		out[table] = sampled
	}
	return out
}
