package dataset

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// DateLayout is the GTFS service date format.
const DateLayout = "20060102"

// ParseError describes one cell that could not be interpreted. It is kept
// alongside the row it came from so reports can name the affected entity.
type ParseError struct {
	Table  string
	Row    int
	Column string
	Value  string
	Reason string
}

func (e *ParseError) Error() string {
	if e.Table == "" {
		return fmt.Sprintf("%s %q: %s", e.Column, e.Value, e.Reason)
	}
	return fmt.Sprintf("%s row %d: %s %q: %s", e.Table, e.Row, e.Column, e.Value, e.Reason)
}

// Parsed is the per-row outcome of interpreting a cell: either a value or a
// parse error, never both.
type Parsed[T any] struct {
	Row   int
	Value T
	Err   error
}

// ParseColumn applies parse to every row of the column.
func ParseColumn[T any](t *Table, column string, parse func(Cell) (T, error)) []Parsed[T] {
	results := make([]Parsed[T], 0, t.Len())
	for i := 0; i < t.Len(); i++ {
		v, err := parse(t.Cell(i, column))
		if err != nil {
			var pe *ParseError
			if asParseError(err, &pe) {
				pe.Table = t.Name
				pe.Row = i
				pe.Column = column
			}
		}
		results = append(results, Parsed[T]{Row: i, Value: v, Err: err})
	}
	return results
}

func asParseError(err error, target **ParseError) bool {
	pe, ok := err.(*ParseError)
	if ok {
		*target = pe
	}
	return ok
}

func formatScalar(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		if x == math.Trunc(x) && math.Abs(x) < 1e15 {
			return strconv.FormatInt(int64(x), 10)
		}
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		if x {
			return "1"
		}
		return "0"
	default:
		return fmt.Sprint(x)
	}
}

func newParseError(c Cell, reason string) *ParseError {
	return &ParseError{Value: formatScalar(c.Value), Reason: reason}
}

// ParseDate interprets a YYYYMMDD string or integer as a UTC date.
func ParseDate(c Cell) (time.Time, error) {
	s, ok := c.Text()
	if !ok {
		return time.Time{}, newParseError(c, "missing date")
	}
	if len(s) != 8 {
		return time.Time{}, newParseError(c, "expected YYYYMMDD")
	}
	d, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, newParseError(c, "expected YYYYMMDD")
	}
	return d, nil
}

// ParseFloat interprets the cell as a finite float.
func ParseFloat(c Cell) (float64, error) {
	switch x := c.Value.(type) {
	case float64:
		if c.set && !math.IsNaN(x) && !math.IsInf(x, 0) {
			return x, nil
		}
	case int:
		return float64(x), nil
	case int64:
		return float64(x), nil
	}
	s, ok := c.Text()
	if !ok {
		return 0, newParseError(c, "missing number")
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, newParseError(c, "not a number")
	}
	return f, nil
}

// ParseInt interprets the cell as an integer. Floats with no fractional part
// are accepted since loaders sometimes widen integer columns.
func ParseInt(c Cell) (int64, error) {
	switch x := c.Value.(type) {
	case int:
		return int64(x), nil
	case int64:
		return x, nil
	case float64:
		if x == math.Trunc(x) {
			return int64(x), nil
		}
		return 0, newParseError(c, "not an integer")
	}
	s, ok := c.Text()
	if !ok {
		return 0, newParseError(c, "missing integer")
	}
	n, err := strconv.ParseInt(strings.TrimPrefix(s, "+"), 10, 64)
	if err != nil {
		return 0, newParseError(c, "not an integer")
	}
	return n, nil
}

// FormatDate renders a date in GTFS form.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}
