package audit

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScore(t *testing.T) {
	tests := []struct {
		name      string
		penalties []float64
		want      int
	}{
		{name: "no penalties", want: 100},
		{name: "sum", penalties: []float64{10, 15.4}, want: 75},
		{name: "floors at zero", penalties: []float64{80, 50}, want: 0},
		{name: "negative penalties ignored", penalties: []float64{-20, 5}, want: 95},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Score(tt.penalties...))
		})
	}
}

func TestProportional(t *testing.T) {
	assert.Equal(t, 0.0, Proportional(50, 0, 10))
	assert.Equal(t, 50.0, Proportional(50, 10, 10))
	assert.Equal(t, 25.0, Proportional(50, 5, 10))
	assert.Equal(t, 1.0, Proportional(50, 1, 1000), "a single finding costs at least a point")
	assert.Equal(t, 50.0, Proportional(50, 3, 0))
	assert.Equal(t, 20.0, Flat(20, 1))
	assert.Equal(t, 0.0, Flat(20, 0))
}

func TestThresholds(t *testing.T) {
	th := Thresholds{Success: 90, Warning: 60}
	assert.Equal(t, StatusSuccess, th.Status(90))
	assert.Equal(t, StatusWarning, th.Status(89))
	assert.Equal(t, StatusWarning, th.Status(60))
	assert.Equal(t, StatusError, th.Status(59))

	assert.Equal(t, StatusError, StrictThresholds.Status(99))
	assert.Equal(t, StatusWarning, AdvisoryThresholds.Status(0))
}

func TestSample(t *testing.T) {
	ids := make([]string, 250)
	for i := range ids {
		ids[i] = strconv.Itoa(i)
	}

	assert.Len(t, Sample(ids, 0), DefaultSampleLimit)
	assert.Len(t, Sample(ids, 5), 5)
	assert.Equal(t, []string{}, Sample(nil, 5))

	var rep Report
	rep.AddIssue(IssueUnusedData, "route_id", ids, 10, "unused")
	assert.Equal(t, 250, rep.Issues[0].Count)
	assert.Len(t, rep.Issues[0].AffectedIDs, 10)
}

func TestSampleMessage(t *testing.T) {
	assert.Equal(t, "3 unused routes: R1, R2 and 1 more", SampleMessage("unused routes", []string{"R1", "R2", "R3"}, 2))
	assert.Equal(t, "1 unused routes: R1", SampleMessage("unused routes", []string{"R1"}, 5))
	assert.Equal(t, "0 unused routes", SampleMessage("unused routes", nil, 5))
}

func TestWorse(t *testing.T) {
	assert.Equal(t, StatusWarning, Worse(StatusSuccess, StatusWarning))
	assert.Equal(t, StatusError, Worse(StatusError, StatusWarning))
	assert.Equal(t, StatusSuccess, Worse(StatusSuccess, StatusSuccess))
}
