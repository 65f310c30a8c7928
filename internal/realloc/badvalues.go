package realloc

import (
	"context"
	"strconv"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/crosswalk-cli/internal/fetcher"
	"github.com/sells-group/crosswalk-cli/internal/table"
)

// BadValue flags one statistic as unusable.
type BadValue struct {
	GEOID  string
	Year   int
	Column string
}

// ParseBadValues reads a GEOID,year,value list where value names the column
// to null out.
func ParseBadValues(header []string, rows [][]string) ([]BadValue, error) {
	pos, err := fetcher.RequireColumns(fetcher.HeaderIndex(header), table.ColGEOID, table.ColYear, "value")
	if err != nil {
		return nil, eris.Wrap(err, "realloc: bad value header")
	}
	out := make([]BadValue, 0, len(rows))
	for n, row := range rows {
		year, err := strconv.Atoi(fetcher.Field(row, pos[1]))
		if err != nil {
			return nil, eris.Errorf("realloc: bad value line %d: invalid year %q", n+2, fetcher.Field(row, pos[1]))
		}
		out = append(out, BadValue{GEOID: fetcher.Field(row, pos[0]), Year: year, Column: fetcher.Field(row, pos[2])})
	}
	return out, nil
}

// ReadBadValues reads a bad value list from disk.
func ReadBadValues(ctx context.Context, path string) ([]BadValue, error) {
	header, rows, err := fetcher.ReadRows(ctx, path)
	if err != nil {
		return nil, eris.Wrapf(err, "realloc: read %s", path)
	}
	return ParseBadValues(header, rows)
}

// RemoveValues nulls each flagged statistic in place and returns how many
// values were cleared.
func RemoveValues(t *table.Table, bad []BadValue) int {
	if len(bad) == 0 {
		return 0
	}
	flagged := make(map[table.Key][]string)
	for _, b := range bad {
		k := table.Key{GEOID: b.GEOID, Year: b.Year}
		flagged[k] = append(flagged[k], b.Column)
	}

	var cleared int
	for i := range t.Records {
		cols, ok := flagged[t.Records[i].Key()]
		if !ok {
			continue
		}
		for _, c := range cols {
			if _, present := t.Records[i].Values[c]; present {
				t.Records[i].Values[c] = table.Null()
				cleared++
			}
		}
	}
	zap.L().Info("removed flagged values", zap.String("component", "realloc"), zap.Int("flagged", len(bad)), zap.Int("cleared", cleared))
	return cleared
}
