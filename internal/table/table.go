// Package table holds yearly statistic records keyed by GEOID and reads and
// writes them as flat CSV.
package table

import (
	"math"
	"sort"

	"github.com/rotisserie/eris"
)

// Reserved column names.
const (
	ColGEOID          = "GEOID"
	ColYear           = "year"
	ColName           = "name"
	ColParentLocation = "parent-location"
)

// Value is a nullable statistic. A cell that is carried as text has Valid
// false and Text set.
type Value struct {
	Float float64
	Valid bool
	Text  string
}

// Of returns a non-null value.
func Of(f float64) Value {
	if math.IsNaN(f) {
		return Value{}
	}
	return Value{Float: f, Valid: true}
}

// Null returns the null value.
func Null() Value { return Value{} }

// Text returns a value carried verbatim. The empty string is null.
func Text(s string) Value { return Value{Text: s} }

// IsText reports whether v is a non-numeric carried value.
func (v Value) IsText() bool { return !v.Valid && v.Text != "" }

// IsNull reports whether v holds neither a number nor text.
func (v Value) IsNull() bool { return !v.Valid && v.Text == "" }

// Key identifies a record.
type Key struct {
	GEOID string
	Year  int
}

// Record is one row of statistics for a location and year.
type Record struct {
	GEOID          string
	Year           int
	Name           string
	ParentLocation string
	Values         map[string]Value
}

// Key returns the record's (GEOID, year) key.
func (r Record) Key() Key { return Key{GEOID: r.GEOID, Year: r.Year} }

// Get returns the value of column c, null when absent.
func (r Record) Get(c string) Value {
	return r.Values[c]
}

// Clone returns a deep copy of the record.
func (r Record) Clone() Record {
	out := r
	out.Values = make(map[string]Value, len(r.Values))
	for k, v := range r.Values {
		out.Values[k] = v
	}
	return out
}

// Table is an ordered set of records sharing a column layout. Columns lists
// the statistic columns only; GEOID, year, name and parent-location are
// always present.
type Table struct {
	Columns []string
	Records []Record
}

// New returns an empty table with the given statistic columns.
func New(columns ...string) *Table {
	return &Table{Columns: append([]string(nil), columns...)}
}

// Append adds records to the table.
func (t *Table) Append(rs ...Record) {
	t.Records = append(t.Records, rs...)
}

// Len returns the number of records.
func (t *Table) Len() int { return len(t.Records) }

// HasColumn reports whether c is one of the statistic columns.
func (t *Table) HasColumn(c string) bool {
	for _, col := range t.Columns {
		if col == c {
			return true
		}
	}
	return false
}

// Sort orders records by GEOID then year. The sort is stable so records
// sharing a key keep their relative order.
func (t *Table) Sort() {
	sort.SliceStable(t.Records, func(i, j int) bool {
		a, b := t.Records[i], t.Records[j]
		if a.GEOID != b.GEOID {
			return a.GEOID < b.GEOID
		}
		return a.Year < b.Year
	})
}

// Total sums a column over all records with the given year, skipping nulls.
func (t *Table) Total(column string, year int) float64 {
	var sum float64
	for _, r := range t.Records {
		if r.Year != year {
			continue
		}
		if v := r.Get(column); v.Valid {
			sum += v.Float
		}
	}
	return sum
}

// CheckNumeric returns an error naming the first text cell found in any of
// the given columns.
func (t *Table) CheckNumeric(columns []string) error {
	for _, r := range t.Records {
		for _, c := range columns {
			if v := r.Get(c); v.IsText() {
				return eris.Errorf("table: %s %d column %s: %q is not numeric", r.GEOID, r.Year, c, v.Text)
			}
		}
	}
	return nil
}

// Years returns the distinct years in ascending order.
func (t *Table) Years() []int {
	seen := make(map[int]bool)
	var out []int
	for _, r := range t.Records {
		if !seen[r.Year] {
			seen[r.Year] = true
			out = append(out, r.Year)
		}
	}
	sort.Ints(out)
	return out
}

// Context is the display metadata carried for a GEOID.
type Context struct {
	Name           string
	ParentLocation string
}
