package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gtfsaudit.onebusaway.org/internal/dataset"
	"gtfsaudit.onebusaway.org/internal/dataset/datasettest"
)

func TestLoadFromURL(t *testing.T) {
	body := datasettest.Zip(t, datasettest.MinimalFeed())
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/gtfs.zip" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	loaded, err := Load(context.Background(), srv.Client(), srv.URL+"/gtfs.zip")
	require.NoError(t, err)
	assert.True(t, loaded.Dataset.Has(dataset.StopTimes))
	assert.Equal(t, len(body), loaded.Summary.SizeBytes)
	assert.Equal(t, 2, loaded.Summary.Tables[dataset.Stops])

	_, err = Load(context.Background(), srv.Client(), srv.URL+"/missing.zip")
	assert.ErrorContains(t, err, "unexpected status")
}

func TestLoadFromFileAndDir(t *testing.T) {
	dir := t.TempDir()
	zipPath := filepath.Join(dir, "feed.zip")
	require.NoError(t, os.WriteFile(zipPath, datasettest.Zip(t, datasettest.MinimalFeed()), 0o600))

	loaded, err := Load(context.Background(), nil, zipPath)
	require.NoError(t, err)
	assert.Equal(t, zipPath, loaded.Source)
	assert.True(t, loaded.Dataset.Has(dataset.Routes))

	feedDir := filepath.Join(dir, "unpacked")
	require.NoError(t, os.Mkdir(feedDir, 0o700))
	for name, content := range datasettest.MinimalFeed() {
		require.NoError(t, os.WriteFile(filepath.Join(feedDir, name), []byte(content), 0o600))
	}
	loaded, err = Load(context.Background(), nil, feedDir)
	require.NoError(t, err)
	assert.Equal(t, 1, loaded.Summary.Routes)
	assert.Equal(t, 2, loaded.Summary.Stops)
}

func TestLocalFeedSizeCap(t *testing.T) {
	path := filepath.Join(t.TempDir(), "feed.zip")
	require.NoError(t, os.WriteFile(path, make([]byte, 64), 0o600))

	_, err := readLocal(path, 16)
	assert.ErrorIs(t, err, dataset.ErrTooLarge)

	b, err := readLocal(path, 64)
	require.NoError(t, err)
	assert.Len(t, b, 64)
}

func TestLoadRejectsNonZip(t *testing.T) {
	_, err := FromBytes("upload", []byte("not a zip"))
	assert.ErrorIs(t, err, dataset.ErrNotZip)
}

func TestSummarizeRecordsParseFailures(t *testing.T) {
	s := Summarize([]byte("garbage"))
	assert.NotEmpty(t, s.ParseError)
	assert.Equal(t, 7, s.SizeBytes)
}
