package dataset

import (
	"archive/zip"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
)

// ErrNotZip is returned by LoadZip when the payload is not a zip archive.
var ErrNotZip = errors.New("feed is not a zip archive")

// ErrTooLarge is returned when a feed or one of its tables exceeds its cap.
var ErrTooLarge = errors.New("feed data exceeds size limit")

// MaxTableBytes caps the uncompressed size of one table file.
const MaxTableBytes = 512 << 20

const utf8BOM = "\ufeff"

// LoadZip reads every <table>.txt member of a zipped feed. Members inside a
// single top-level directory are accepted, as some producers nest them.
func LoadZip(b []byte) (*Dataset, error) {
	zr, err := zip.NewReader(bytes.NewReader(b), int64(len(b)))
	if err != nil {
		if errors.Is(err, zip.ErrFormat) {
			return nil, ErrNotZip
		}
		return nil, fmt.Errorf("error opening feed archive: %w", err)
	}

	var tables []*Table
	for _, f := range zr.File {
		if f.FileInfo().IsDir() || !strings.HasSuffix(f.Name, ".txt") {
			continue
		}
		name := strings.TrimSuffix(path.Base(f.Name), ".txt")
		if f.UncompressedSize64 > MaxTableBytes {
			return nil, fmt.Errorf("error reading %s: %w", f.Name, ErrTooLarge)
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("error opening %s: %w", f.Name, err)
		}
		t, err := readTable(name, rc, MaxTableBytes)
		_ = rc.Close()
		if err != nil {
			return nil, err
		}
		tables = append(tables, t)
	}
	return New(tables...), nil
}

// LoadDir reads every <table>.txt file in dir.
func LoadDir(dir string) (*Dataset, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("error reading feed directory: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	var tables []*Table
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".txt") {
			continue
		}
		f, err := os.Open(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("error opening %s: %w", e.Name(), err)
		}
		t, err := readTable(strings.TrimSuffix(e.Name(), ".txt"), f, MaxTableBytes)
		_ = f.Close()
		if err != nil {
			return nil, err
		}
		tables = append(tables, t)
	}
	return New(tables...), nil
}

// ReadLimited reads r to the end, failing with ErrTooLarge once more than
// limit bytes arrive. The size recorded in a zip header is not trusted.
func ReadLimited(r io.Reader, limit int64) ([]byte, error) {
	b, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(b)) > limit {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrTooLarge, limit)
	}
	return b, nil
}

func readTable(name string, r io.Reader, limit int64) (*Table, error) {
	b, err := ReadLimited(r, limit)
	if err != nil {
		return nil, fmt.Errorf("error reading %s: %w", name, err)
	}
	return ReadCSV(name, bytes.NewReader(b))
}

// ReadCSV reads one GTFS table. Cells are trimmed; blank cells become nil so
// they read as null. Short rows are padded with nil.
func ReadCSV(name string, r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		// empty file: no header, so the table reads as unavailable
		return &Table{Name: name}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error reading %s header: %w", name, err)
	}
	for i, h := range header {
		if i == 0 {
			h = strings.TrimPrefix(h, utf8BOM)
		}
		header[i] = strings.TrimSpace(h)
	}

	var rows []Row
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("error reading %s: %w", name, err)
		}
		if len(rec) == 1 && strings.TrimSpace(rec[0]) == "" {
			continue
		}
		row := make(Row, len(header))
		for i, col := range header {
			if i >= len(rec) {
				row[col] = nil
				continue
			}
			v := strings.TrimSpace(rec[i])
			if v == "" {
				row[col] = nil
			} else {
				row[col] = v
			}
		}
		rows = append(rows, row)
	}
	return NewTable(name, header, rows...), nil
}
