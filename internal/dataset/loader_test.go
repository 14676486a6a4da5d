package dataset_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gtfsaudit.onebusaway.org/internal/dataset"
	"gtfsaudit.onebusaway.org/internal/dataset/datasettest"
)

func TestLoadZip(t *testing.T) {
	files := datasettest.MinimalFeed()
	files["stops.txt"] = "\ufeffstop_id, stop_name ,stop_lat,stop_lon,zone_id\n" +
		"ST1, First ,47.6,-122.33,\n" +
		"ST2,Second,47.61,-122.34\n"
	files["notes/readme.md"] = "ignored"

	ds, err := dataset.LoadZip(datasettest.Zip(t, files))
	require.NoError(t, err)

	stops, ok := ds.Table(dataset.Stops)
	require.True(t, ok)
	assert.Equal(t, []string{"stop_id", "stop_name", "stop_lat", "stop_lon", "zone_id"}, stops.Columns)
	assert.Equal(t, 2, stops.Len())

	name, ok := stops.Cell(0, "stop_name").Text()
	assert.True(t, ok)
	assert.Equal(t, "First", name)
	assert.True(t, stops.Cell(0, "zone_id").IsNull())
	assert.True(t, stops.Cell(1, "zone_id").IsNull())

	assert.Equal(t, 1, ds.RowCounts()[dataset.Trips])
	assert.False(t, ds.Has("readme"))
}

func TestLoadZipNestedDirectory(t *testing.T) {
	b := datasettest.Zip(t, map[string]string{
		"feed/routes.txt": "route_id\nR1\n",
	})
	ds, err := dataset.LoadZip(b)
	require.NoError(t, err)
	assert.True(t, ds.Has(dataset.Routes))
}

func TestLoadZipRejectsNonArchive(t *testing.T) {
	_, err := dataset.LoadZip([]byte("route_id\nR1\n"))
	assert.ErrorIs(t, err, dataset.ErrNotZip)
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	for name, body := range datasettest.MinimalFeed() {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o600))
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "transfers.txt"), nil, 0o600))

	ds, err := dataset.LoadDir(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"agency", "calendar", "routes", "stop_times", "stops", "trips"}, ds.Names())
	assert.False(t, ds.Has(dataset.Transfers), "an empty file has no header")
}

func TestReadCSVQuotedFields(t *testing.T) {
	tbl, err := dataset.ReadCSV("agency", strings.NewReader(
		"agency_id,agency_name\nA1,\"Metro, King County\"\n"))
	require.NoError(t, err)
	v, _ := tbl.Cell(0, "agency_name").Text()
	assert.Equal(t, "Metro, King County", v)
}
