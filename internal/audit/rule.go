package audit

import (
	"fmt"
	"sort"
	"strings"

	"gtfsaudit.onebusaway.org/internal/dataset"
)

// CheckFunc is a rule body. It must be pure: read only ds and params and
// return a fresh report.
type CheckFunc func(ds *dataset.Dataset, params Params) Report

// RuleDef describes one rule of the catalogue.
type RuleDef struct {
	ID          string
	Name        string
	Group       string
	FileType    string
	Description string
	ConfigKeys  []string
	Check       CheckFunc
}

// RuleInfo is the serializable metadata of a rule.
type RuleInfo struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Group       string   `json:"group"`
	FileType    string   `json:"file_type"`
	Description string   `json:"description"`
	ConfigKeys  []string `json:"config_keys,omitempty"`
}

// Info returns the rule metadata.
func (r RuleDef) Info() RuleInfo {
	return RuleInfo{
		ID:          r.ID,
		Name:        r.Name,
		Group:       r.Group,
		FileType:    r.FileType,
		Description: r.Description,
		ConfigKeys:  r.ConfigKeys,
	}
}

// Run invokes the check and stamps the report with the rule identity. A
// panicking check yields an analysis_error report instead of unwinding into
// the caller.
func (r RuleDef) Run(ds *dataset.Dataset, params Params) (rep Report) {
	defer func() {
		if rec := recover(); rec != nil {
			rep = AnalysisError(Explanation{Purpose: r.Description}, fmt.Errorf("%s panicked: %v", r.ID, rec))
		}
		rep.RuleID = r.ID
		rep.Rule = r.Name
		if rep.FileType == "" {
			rep.FileType = r.FileType
		}
		normalize(&rep)
	}()

	if r.Check == nil {
		return AnalysisError(Explanation{Purpose: r.Description}, fmt.Errorf("rule %s has no check", r.ID))
	}
	if params == nil {
		params = Params{}
	}
	return r.Check(ds, params)
}

func normalize(rep *Report) {
	if rep.Issues == nil {
		rep.Issues = []Issue{}
	}
	if rep.Result == nil {
		rep.Result = map[string]any{}
	}
	if rep.Recommendations == nil {
		rep.Recommendations = []string{}
	}
	if rep.Status == "" {
		rep.Status = StatusSuccess
	}
}

// AnalysisError is the report for a computation that failed.
func AnalysisError(exp Explanation, err error) Report {
	rep := NewReport(exp)
	rep.Issues = append(rep.Issues, Issue{
		Type:        IssueAnalysisError,
		Count:       1,
		AffectedIDs: []string{},
		Message:     err.Error(),
	})
	rep.Score = 0
	rep.Status = StatusError
	rep.Recommend("Inspect the feed for malformed values and re-run the audit.")
	return rep
}

// MissingFile is the precondition report for absent tables.
func MissingFile(exp Explanation, tables ...string) Report {
	rep := NewReport(exp)
	for _, t := range tables {
		rep.Issues = append(rep.Issues, Issue{
			Type:        IssueMissingFile,
			Field:       t,
			Count:       1,
			AffectedIDs: []string{t + ".txt"},
			Message:     fmt.Sprintf("%s.txt is missing or empty", t),
		})
	}
	rep.Score = 0
	rep.Status = StatusError
	rep.Result["missing_files"] = append([]string{}, tables...)
	rep.Recommend(fmt.Sprintf("Add %s to the feed.", fileList(tables)))
	return rep
}

// MissingColumns is the precondition report for absent columns of table.
func MissingColumns(exp Explanation, table string, columns ...string) Report {
	rep := NewReport(exp)
	for _, c := range columns {
		rep.Issues = append(rep.Issues, Issue{
			Type:        IssueMissingColumn,
			Field:       c,
			Count:       1,
			AffectedIDs: []string{table + "." + c},
			Message:     fmt.Sprintf("column %s is missing from %s.txt", c, table),
		})
	}
	rep.Score = 0
	rep.Status = StatusError
	rep.Result["missing_columns"] = map[string][]string{table: append([]string{}, columns...)}
	rep.Recommend(fmt.Sprintf("Add the %s column(s) to %s.txt.", strings.Join(columns, ", "), table))
	return rep
}

// Require resolves a table and checks its columns. When ok is false the
// returned report is the precondition failure to hand back to the caller.
func Require(ds *dataset.Dataset, exp Explanation, table string, columns ...string) (*dataset.Table, Report, bool) {
	t, found := ds.Table(table)
	if !found {
		return nil, MissingFile(exp, table), false
	}
	if missing := t.MissingColumns(columns...); len(missing) > 0 {
		return nil, MissingColumns(exp, table, missing...), false
	}
	return t, Report{}, true
}

// NotApplicable is a success report for checks whose optional input is not
// part of the feed.
func NotApplicable(exp Explanation, reason string) Report {
	rep := NewReport(exp)
	rep.Result["not_applicable"] = true
	rep.Result["reason"] = reason
	return rep
}

func fileList(tables []string) string {
	files := make([]string, len(tables))
	for i, t := range tables {
		files[i] = t + ".txt"
	}
	return strings.Join(files, ", ")
}

// SortedKeys returns the keys of a string set in ascending order.
func SortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
