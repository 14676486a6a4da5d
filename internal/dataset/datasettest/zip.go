// Package datasettest builds feed fixtures for tests.
package datasettest

import (
	"archive/zip"
	"bytes"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"
)

// Zip returns an in-memory zip archive holding the given files. Names are
// written in sorted order so archives are reproducible.
func Zip(t testing.TB, files map[string]string) []byte {
	t.Helper()

	names := make([]string, 0, len(files))
	for n := range files {
		names = append(names, n)
	}
	sort.Strings(names)

	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for _, n := range names {
		f, err := w.Create(n)
		require.NoError(t, err)
		_, err = f.Write([]byte(files[n]))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}

// MinimalFeed is a small consistent feed: one agency, two stops, one route,
// one trip with two stop times and a calendar service.
func MinimalFeed() map[string]string {
	return map[string]string{
		"agency.txt": "agency_id,agency_name,agency_url,agency_timezone\n" +
			"A1,Metro,https://example.com,America/Los_Angeles\n",
		"stops.txt": "stop_id,stop_name,stop_lat,stop_lon\n" +
			"ST1,First,47.6000,-122.3300\n" +
			"ST2,Second,47.6100,-122.3400\n",
		"routes.txt": "route_id,agency_id,route_short_name,route_type\n" +
			"R1,A1,10,3\n",
		"trips.txt": "route_id,service_id,trip_id\n" +
			"R1,WK,T1\n",
		"stop_times.txt": "trip_id,arrival_time,departure_time,stop_id,stop_sequence\n" +
			"T1,08:00:00,08:00:00,ST1,1\n" +
			"T1,08:10:00,08:10:00,ST2,2\n",
		"calendar.txt": "service_id,monday,tuesday,wednesday,thursday,friday,saturday,sunday,start_date,end_date\n" +
			"WK,1,1,1,1,1,0,0,20240101,20241231\n",
	}
}
