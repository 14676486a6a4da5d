package audit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gtfsaudit.onebusaway.org/internal/dataset"
)

func TestRunStampsIdentity(t *testing.T) {
	rule := RuleDef{
		ID:       "X01",
		Name:     "example",
		FileType: "routes",
		Check: func(ds *dataset.Dataset, params Params) Report {
			return Report{Status: StatusWarning, Score: 80}
		},
	}

	rep := rule.Run(dataset.New(), nil)
	assert.Equal(t, "X01", rep.RuleID)
	assert.Equal(t, "example", rep.Rule)
	assert.Equal(t, "routes", rep.FileType)
	assert.NotNil(t, rep.Issues)
	assert.NotNil(t, rep.Result)
	assert.NotNil(t, rep.Recommendations)
}

func TestRunRecoversPanics(t *testing.T) {
	rule := RuleDef{
		ID:   "X02",
		Name: "explodes",
		Check: func(ds *dataset.Dataset, params Params) Report {
			var tbl *dataset.Table
			_ = tbl.Rows[0]
			return Report{}
		},
	}

	rep := rule.Run(dataset.New(), Params{})
	assert.Equal(t, StatusError, rep.Status)
	assert.Equal(t, 0, rep.Score)
	require.Len(t, rep.Issues, 1)
	assert.Equal(t, IssueAnalysisError, rep.Issues[0].Type)
	assert.Contains(t, rep.Issues[0].Message, "X02 panicked")
	assert.Equal(t, "X02", rep.RuleID)
}

func TestRequire(t *testing.T) {
	exp := Explanation{Purpose: "p"}
	ds := dataset.New(dataset.NewTable(dataset.Trips, []string{"trip_id"}))

	_, rep, ok := Require(ds, exp, dataset.Routes, "route_id")
	require.False(t, ok)
	assert.Equal(t, StatusError, rep.Status)
	assert.True(t, rep.HasIssue(IssueMissingFile))

	_, rep, ok = Require(ds, exp, dataset.Trips, "trip_id", "route_id")
	require.False(t, ok)
	assert.True(t, rep.HasIssue(IssueMissingColumn))
	assert.Equal(t, "route_id", rep.Issues[0].Field)
	assert.Equal(t, 0, rep.Score)

	tbl, _, ok := Require(ds, exp, dataset.Trips, "trip_id")
	require.True(t, ok)
	assert.Equal(t, 0, tbl.Len())
}

func TestNotApplicable(t *testing.T) {
	rep := NotApplicable(Explanation{}, "no shapes")
	assert.Equal(t, StatusSuccess, rep.Status)
	assert.Equal(t, true, rep.Result["not_applicable"])
}
