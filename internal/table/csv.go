package table

import (
	"context"
	"encoding/csv"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/crosswalk-cli/internal/fetcher"
)

// nullTokens are read as missing values.
var nullTokens = map[string]bool{
	"":     true,
	"na":   true,
	"nan":  true,
	"null": true,
	"none": true,
}

// ParseValue converts a cell to a nullable float.
func ParseValue(s string) (Value, error) {
	s = strings.TrimSpace(s)
	if nullTokens[strings.ToLower(s)] {
		return Null(), nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return Null(), eris.Errorf("table: %q is not numeric", s)
	}
	return Of(f), nil
}

// ParseCell converts a cell to a number when it parses as one and carries it
// as text otherwise.
func ParseCell(s string) Value {
	v, err := ParseValue(s)
	if err != nil {
		return Text(strings.TrimSpace(s))
	}
	return v
}

// FormatValue renders a value for CSV output. Null becomes an empty cell and
// text is written as read.
func FormatValue(v Value) string {
	if v.IsText() {
		return v.Text
	}
	if !v.Valid || math.IsNaN(v.Float) {
		return ""
	}
	return strconv.FormatFloat(v.Float, 'f', -1, 64)
}

// ReadOption configures how statistic cells are parsed.
type ReadOption func(*readOptions)

type readOptions struct {
	numeric func(column string) bool
}

// WithNumericColumns parses the columns selected by numeric strictly as
// numbers and carries every other column verbatim as text. Without it every
// cell that parses as a number is numeric and the rest are text.
func WithNumericColumns(numeric func(column string) bool) ReadOption {
	return func(o *readOptions) { o.numeric = numeric }
}

// ReadCSV parses a statistics table. GEOID is kept as a string so leading
// zeros survive.
func ReadCSV(ctx context.Context, r io.Reader, opts ...ReadOption) (*Table, error) {
	header, rows, err := fetcher.ReadCSV(ctx, r)
	if err != nil {
		return nil, eris.Wrap(err, "table: read csv")
	}
	return FromRows(header, rows, opts...)
}

// ReadFile parses a statistics table from a CSV, XLSX or ZIP file, or from
// stdin when path is "-".
func ReadFile(ctx context.Context, path string, opts ...ReadOption) (*Table, error) {
	header, rows, err := fetcher.ReadRows(ctx, path)
	if err != nil {
		return nil, eris.Wrapf(err, "table: read %s", path)
	}
	return FromRows(header, rows, opts...)
}

// FromRows builds a table from a header and string rows.
func FromRows(header []string, rows [][]string, opts ...ReadOption) (*Table, error) {
	var o readOptions
	for _, opt := range opts {
		opt(&o)
	}

	idx := fetcher.HeaderIndex(header)
	pos, err := fetcher.RequireColumns(idx, ColGEOID, ColYear)
	if err != nil {
		return nil, eris.Wrap(err, "table: header")
	}
	geoCol, yearCol := pos[0], pos[1]
	nameCol, hasName := idx[ColName]
	parentCol, hasParent := idx[ColParentLocation]

	t := &Table{}
	statCols := make(map[int]string)
	for i, h := range header {
		h = strings.TrimSpace(h)
		switch h {
		case ColGEOID, ColYear, ColName, ColParentLocation:
			continue
		}
		statCols[i] = h
		t.Columns = append(t.Columns, h)
	}

	for n, row := range rows {
		line := n + 2
		rec := Record{
			GEOID:  strings.TrimSpace(fetcher.Field(row, geoCol)),
			Values: make(map[string]Value, len(statCols)),
		}
		if rec.GEOID == "" {
			return nil, eris.Errorf("table: line %d: empty GEOID", line)
		}
		year, err := parseYear(fetcher.Field(row, yearCol))
		if err != nil {
			return nil, eris.Wrapf(err, "table: line %d", line)
		}
		rec.Year = year
		if hasName {
			rec.Name = fetcher.Field(row, nameCol)
		}
		if hasParent {
			rec.ParentLocation = fetcher.Field(row, parentCol)
		}
		for i, col := range statCols {
			cell := fetcher.Field(row, i)
			switch {
			case o.numeric == nil:
				rec.Values[col] = ParseCell(cell)
			case o.numeric(col):
				v, err := ParseValue(cell)
				if err != nil {
					return nil, eris.Wrapf(err, "table: line %d column %s", line, col)
				}
				rec.Values[col] = v
			default:
				rec.Values[col] = Text(cell)
			}
		}
		t.Records = append(t.Records, rec)
	}
	return t, nil
}

func parseYear(s string) (int, error) {
	s = strings.TrimSpace(s)
	if y, err := strconv.Atoi(s); err == nil {
		return y, nil
	}
	// Some exports write years as floats ("2000.0").
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != math.Trunc(f) {
		return 0, eris.Errorf("invalid year %q", s)
	}
	return int(f), nil
}

// WriteCSV writes the table with header GEOID,name,parent-location,year
// followed by the statistic columns.
func WriteCSV(w io.Writer, t *Table) error {
	cw := csv.NewWriter(w)
	header := append([]string{ColGEOID, ColName, ColParentLocation, ColYear}, t.Columns...)
	if err := cw.Write(header); err != nil {
		return eris.Wrap(err, "table: write header")
	}

	row := make([]string, len(header))
	for _, r := range t.Records {
		row[0] = r.GEOID
		row[1] = r.Name
		row[2] = r.ParentLocation
		row[3] = strconv.Itoa(r.Year)
		for i, c := range t.Columns {
			row[4+i] = FormatValue(r.Get(c))
		}
		if err := cw.Write(row); err != nil {
			return eris.Wrap(err, "table: write row")
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "table: flush")
}
