// Package feed resolves a feed location (URL, zip file or directory) into a
// dataset and a typed summary of its contents.
package feed

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"gtfsaudit.onebusaway.org/internal/dataset"
)

// DefaultTimeout bounds a single feed download.
const DefaultTimeout = 2 * time.Minute

// MaxFeedBytes caps downloads and uploads.
const MaxFeedBytes = 512 << 20

// IsURL reports whether location is an http(s) URL.
func IsURL(location string) bool {
	return strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://")
}

// Raw reads a zipped feed from a URL or a local file.
func Raw(ctx context.Context, client *http.Client, location string) ([]byte, error) {
	if !IsURL(location) {
		return readLocal(location, MaxFeedBytes)
	}

	if client == nil {
		client = &http.Client{Timeout: DefaultTimeout}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return nil, fmt.Errorf("error building GTFS request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error downloading GTFS data: %w", err)
	}
	defer resp.Body.Close() // nolint

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("error downloading GTFS data: unexpected status %s", resp.Status)
	}
	b, err := dataset.ReadLimited(resp.Body, MaxFeedBytes)
	if err != nil {
		return nil, fmt.Errorf("error reading GTFS data: %w", err)
	}
	return b, nil
}

func readLocal(location string, limit int64) ([]byte, error) {
	f, err := os.Open(location)
	if err != nil {
		return nil, fmt.Errorf("error reading local GTFS file: %w", err)
	}
	defer f.Close() // nolint

	b, err := dataset.ReadLimited(f, limit)
	if err != nil {
		return nil, fmt.Errorf("error reading local GTFS file: %w", err)
	}
	return b, nil
}

// Loaded is a resolved feed.
type Loaded struct {
	Source  string
	Dataset *dataset.Dataset
	Summary Summary
}

// Load resolves location into a dataset. Directories are read file by file;
// anything else is treated as a zip archive.
func Load(ctx context.Context, client *http.Client, location string) (*Loaded, error) {
	if !IsURL(location) {
		if fi, err := os.Stat(location); err == nil && fi.IsDir() {
			ds, err := dataset.LoadDir(location)
			if err != nil {
				return nil, err
			}
			return &Loaded{Source: location, Dataset: ds, Summary: SummarizeDataset(ds)}, nil
		}
	}

	b, err := Raw(ctx, client, location)
	if err != nil {
		return nil, err
	}
	return FromBytes(location, b)
}

// FromBytes loads a zipped feed already in memory.
func FromBytes(source string, b []byte) (*Loaded, error) {
	ds, err := dataset.LoadZip(b)
	if err != nil {
		return nil, fmt.Errorf("error loading %s: %w", source, err)
	}
	s := Summarize(b)
	s.Tables = ds.RowCounts()
	return &Loaded{Source: source, Dataset: ds, Summary: s}, nil
}
