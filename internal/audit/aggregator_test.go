package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gtfsaudit.onebusaway.org/internal/dataset"
	"gtfsaudit.onebusaway.org/internal/logging"
)

func fixedRule(id, fileType string, status Status, score int) RuleDef {
	return RuleDef{
		ID:       id,
		Name:     strings.ToLower(id),
		FileType: fileType,
		Check: func(ds *dataset.Dataset, params Params) Report {
			rep := NewReport(Explanation{})
			rep.Status = status
			rep.Score = score
			rep.Result["limit"] = params.SampleLimit()
			return rep
		},
	}
}

func TestAggregatorRun(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.NewStructuredLogger(&buf, slog.LevelDebug)

	rules := []RuleDef{
		fixedRule("R1", "routes", StatusSuccess, 100),
		fixedRule("R2", "shapes", StatusWarning, 80),
		fixedRule("R3", "routes", StatusError, 0),
		fixedRule("R4", "routes", StatusError, 0),
	}
	agg := NewAggregator(rules, Options{
		Workers:    2,
		Disabled:   []string{"r4"},
		Params:     Params{"sample_limit": 10},
		RuleParams: map[string]Params{"R2": {"sample_limit": 3}},
		Logger:     logger,
	})

	summary, err := agg.Run(context.Background(), dataset.New())
	require.NoError(t, err)

	require.Len(t, summary.Reports, 3)
	assert.Equal(t, []string{"R1", "R2", "R3"}, []string{summary.Reports[0].RuleID, summary.Reports[1].RuleID, summary.Reports[2].RuleID})
	assert.Equal(t, 60, summary.Score)
	assert.Equal(t, StatusError, summary.Status)
	assert.Equal(t, 1, summary.Counts[StatusWarning])
	assert.NotEmpty(t, summary.RunID)

	assert.Equal(t, 10, summary.Reports[0].Result["limit"])
	assert.Equal(t, 3, summary.Reports[1].Result["limit"])

	groups := GroupByFileType(summary.Reports)
	assert.Equal(t, []string{"routes", "shapes"}, FileTypes(groups))
	assert.Len(t, groups["routes"], 2)

	out := buf.String()
	assert.Contains(t, out, `"msg":"rule_completed"`)
	assert.Contains(t, out, `"msg":"audit_completed"`)
}

func TestAggregatorCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	agg := NewAggregator([]RuleDef{fixedRule("R1", "routes", StatusSuccess, 100)}, Options{})
	summary, err := agg.Run(ctx, dataset.New())
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, summary.Reports)
}

func TestRunIsIdempotent(t *testing.T) {
	ds := dataset.New(dataset.NewTable(dataset.Routes, []string{"route_id"}, dataset.Row{"route_id": "R1"}))
	agg := NewAggregator([]RuleDef{fixedRule("R1", "routes", StatusWarning, 90)}, Options{Workers: 1})

	a, err := agg.Run(context.Background(), ds)
	require.NoError(t, err)
	b, err := agg.Run(context.Background(), ds)
	require.NoError(t, err)

	ja, _ := json.Marshal(a.Reports)
	jb, _ := json.Marshal(b.Reports)
	assert.Equal(t, string(ja), string(jb))
}

func TestSummarizeEmpty(t *testing.T) {
	s := Summarize(nil)
	assert.Equal(t, MaxScore, s.Score)
	assert.Equal(t, StatusSuccess, s.Status)
}
