package dataset

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cell(v any) Cell {
	return NewTable("t", []string{"v"}, Row{"v": v}).Cell(0, "v")
}

func TestParseDate(t *testing.T) {
	want := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		value   any
		wantErr bool
	}{
		{name: "string", value: "20240115"},
		{name: "int", value: 20240115},
		{name: "int64", value: int64(20240115)},
		{name: "float from a widened column", value: float64(20240115)},
		{name: "dashes", value: "2024-01-15", wantErr: true},
		{name: "impossible month", value: "20241315", wantErr: true},
		{name: "null", value: nil, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDate(cell(tt.value))
			if tt.wantErr {
				var pe *ParseError
				assert.ErrorAs(t, err, &pe)
				return
			}
			require.NoError(t, err)
			assert.True(t, want.Equal(got))
		})
	}
}

func TestParseFloatAndInt(t *testing.T) {
	f, err := ParseFloat(cell("47.25"))
	require.NoError(t, err)
	assert.InDelta(t, 47.25, f, 1e-9)

	f, err = ParseFloat(cell(3))
	require.NoError(t, err)
	assert.Equal(t, 3.0, f)

	_, err = ParseFloat(cell("north"))
	assert.Error(t, err)

	_, err = ParseFloat(cell("NaN"))
	assert.Error(t, err)

	n, err := ParseInt(cell("12"))
	require.NoError(t, err)
	assert.Equal(t, int64(12), n)

	n, err = ParseInt(cell(4.0))
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)

	_, err = ParseInt(cell(4.5))
	assert.Error(t, err)

	_, err = ParseInt(cell(""))
	assert.Error(t, err)
}

func TestParseColumnKeepsFailedRows(t *testing.T) {
	tbl := NewTable(Calendar, []string{"service_id", "start_date"},
		Row{"service_id": "S1", "start_date": "20240101"},
		Row{"service_id": "S2", "start_date": "soon"},
	)

	results := ParseColumn(tbl, "start_date", ParseDate)
	require.Len(t, results, 2)
	assert.NoError(t, results[0].Err)
	assert.Error(t, results[1].Err)

	var pe *ParseError
	require.ErrorAs(t, results[1].Err, &pe)
	assert.Equal(t, Calendar, pe.Table)
	assert.Equal(t, 1, pe.Row)
	assert.Equal(t, "start_date", pe.Column)
	assert.Equal(t, "soon", pe.Value)
	assert.Contains(t, pe.Error(), "calendar row 1")
}
