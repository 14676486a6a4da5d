// Package dataset holds the in-memory tabular representation of a GTFS feed
// that every audit rule reads from.
//
// A Dataset is built once per audit run and never mutated afterwards, so it
// can be shared by concurrently running rules without locking.
package dataset

import (
	"sort"
	"strings"
)

// Canonical GTFS table names.
const (
	Agency         = "agency"
	Routes         = "routes"
	Trips          = "trips"
	Stops          = "stops"
	StopTimes      = "stop_times"
	Calendar       = "calendar"
	CalendarDates  = "calendar_dates"
	FareAttributes = "fare_attributes"
	FareRules      = "fare_rules"
	Shapes         = "shapes"
	Frequencies    = "frequencies"
	Transfers      = "transfers"
	FeedInfo       = "feed_info"
)

// Row maps a column name to a scalar cell value: string, int, int64,
// float64 or nil.
type Row map[string]any

// Table is one named table with its declared header and rows.
type Table struct {
	Name    string
	Columns []string
	Rows    []Row

	columnSet map[string]struct{}
}

// NewTable builds a table. Columns declares the header; rows may omit
// columns, which then read as null cells.
func NewTable(name string, columns []string, rows ...Row) *Table {
	t := &Table{
		Name:    name,
		Columns: append([]string(nil), columns...),
		Rows:    rows,
	}
	t.index()
	return t
}

func (t *Table) index() {
	t.columnSet = make(map[string]struct{}, len(t.Columns))
	for _, c := range t.Columns {
		t.columnSet[c] = struct{}{}
	}
}

// Len returns the number of rows.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// HasColumn reports whether the column is declared in the header.
func (t *Table) HasColumn(name string) bool {
	if t == nil {
		return false
	}
	if t.columnSet == nil {
		// struct literals skip NewTable; scan rather than index lazily so
		// concurrent readers never write to the table
		for _, c := range t.Columns {
			if c == name {
				return true
			}
		}
		return false
	}
	_, ok := t.columnSet[name]
	return ok
}

// MissingColumns returns the requested columns absent from the header, in
// the order they were requested.
func (t *Table) MissingColumns(names ...string) []string {
	var missing []string
	for _, n := range names {
		if !t.HasColumn(n) {
			missing = append(missing, n)
		}
	}
	return missing
}

// Cell returns the cell at row i for the given column.
func (t *Table) Cell(i int, column string) Cell {
	if !t.HasColumn(column) {
		return Cell{}
	}
	v, ok := t.Rows[i][column]
	return Cell{Value: v, set: ok && v != nil}
}

// Column returns an accessor for a declared column. The boolean is false
// when the column is absent from the header, which callers must report
// differently from a present column with blank cells.
func (t *Table) Column(name string) (Column, bool) {
	if !t.HasColumn(name) {
		return Column{name: name}, false
	}
	return Column{name: name, table: t}, true
}

// Dataset maps table names to tables.
type Dataset struct {
	tables map[string]*Table
}

// New builds a dataset from tables. Later tables with the same name replace
// earlier ones.
func New(tables ...*Table) *Dataset {
	ds := &Dataset{tables: make(map[string]*Table, len(tables))}
	for _, t := range tables {
		if t == nil {
			continue
		}
		ds.tables[t.Name] = t
	}
	return ds
}

// Table returns the named table. ok is false when the table is absent, nil,
// or carries neither a header nor rows; all three mean "not available".
// A table with a header and zero rows is available and empty.
func (d *Dataset) Table(name string) (*Table, bool) {
	if d == nil {
		return nil, false
	}
	t, ok := d.tables[name]
	if !ok || t == nil {
		return nil, false
	}
	if len(t.Columns) == 0 && len(t.Rows) == 0 {
		return nil, false
	}
	return t, true
}

// Has reports whether the named table is available.
func (d *Dataset) Has(name string) bool {
	_, ok := d.Table(name)
	return ok
}

// Names returns the available table names in sorted order.
func (d *Dataset) Names() []string {
	if d == nil {
		return nil
	}
	names := make([]string, 0, len(d.tables))
	for n := range d.tables {
		if d.Has(n) {
			names = append(names, n)
		}
	}
	sort.Strings(names)
	return names
}

// RowCounts returns the number of rows per available table.
func (d *Dataset) RowCounts() map[string]int {
	counts := make(map[string]int)
	for _, n := range d.Names() {
		t, _ := d.Table(n)
		counts[n] = t.Len()
	}
	return counts
}

// Cell is one scalar value together with whether it is non-null.
type Cell struct {
	Value any
	set   bool
}

// IsNull reports whether the cell holds no value (absent column, nil, or a
// blank string).
func (c Cell) IsNull() bool {
	_, ok := c.Text()
	return !ok
}

// Text returns the trimmed textual form of the cell and false when the cell
// is null or blank.
func (c Cell) Text() (string, bool) {
	if !c.set {
		return "", false
	}
	s := strings.TrimSpace(formatScalar(c.Value))
	return s, s != ""
}

// Column is a read-only view over one declared column of a table.
type Column struct {
	name  string
	table *Table
}

// Name returns the column name.
func (c Column) Name() string { return c.name }

// Len returns the number of rows in the underlying table.
func (c Column) Len() int { return c.table.Len() }

// At returns the cell for row i.
func (c Column) At(i int) Cell {
	return c.table.Cell(i, c.name)
}

// Values returns the non-blank text values in row order, duplicates included.
func (c Column) Values() []string {
	values := make([]string, 0, c.Len())
	for i := 0; i < c.Len(); i++ {
		if s, ok := c.At(i).Text(); ok {
			values = append(values, s)
		}
	}
	return values
}

// Set returns the distinct non-blank text values.
func (c Column) Set() map[string]struct{} {
	set := make(map[string]struct{})
	for _, v := range c.Values() {
		set[v] = struct{}{}
	}
	return set
}

// BlankRows returns the indexes of rows whose cell is null or blank.
func (c Column) BlankRows() []int {
	var rows []int
	for i := 0; i < c.Len(); i++ {
		if c.At(i).IsNull() {
			rows = append(rows, i)
		}
	}
	return rows
}
