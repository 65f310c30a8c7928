package census

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/crosswalk-cli/internal/geoid"
	"github.com/sells-group/crosswalk-cli/internal/names"
	"github.com/sells-group/crosswalk-cli/internal/schema"
)

type fakeClient struct {
	mu      sync.Mutex
	queries []Query
	rows    func(q Query) []Row
}

func (f *fakeClient) Get(_ context.Context, q Query) ([]Row, error) {
	f.mu.Lock()
	f.queries = append(f.queries, q)
	f.mu.Unlock()
	return f.rows(q), nil
}

func TestClause(t *testing.T) {
	f, in, err := Clause(geoid.States, "", "")
	require.NoError(t, err)
	assert.Equal(t, "state:*", f)
	assert.Empty(t, in)

	f, in, err = Clause(geoid.BlockGroups, "01", "001")
	require.NoError(t, err)
	assert.Equal(t, "block group:*", f)
	assert.Equal(t, "state:01 county:001", in)

	_, _, err = Clause(geoid.Tracts, "", "")
	require.Error(t, err)
	_, _, err = Clause(geoid.Blocks, "01", "001")
	require.Error(t, err)
}

func TestComposeGEOID(t *testing.T) {
	assert.Equal(t, "01", ComposeGEOID(geoid.States, Row{"state": "1"}))
	assert.Equal(t, "01001", ComposeGEOID(geoid.Counties, Row{"state": "01", "county": "1"}))
	assert.Equal(t, "0100124", ComposeGEOID(geoid.Cities, Row{"state": "01", "place": "124"}))
	assert.Equal(t, "01001020100", ComposeGEOID(geoid.Tracts, Row{"state": "01", "county": "001", "tract": "20100"}))
	assert.Equal(t, "010010201002", ComposeGEOID(geoid.BlockGroups, Row{"state": "01", "county": "001", "tract": "020100", "block group": "2"}))
}

func TestToTable(t *testing.T) {
	rows := []Row{
		{"NAME": "Autauga County, Alabama", "B01003_001E": "49584", "B19013_001E": "-666666666", "state": "01", "county": "001"},
		{"NAME": "Adjuntas Municipio, Puerto Rico", "B01003_001E": "19483", "B19013_001E": "10000", "state": "72", "county": "001"},
	}

	tbl, err := ToTable(geoid.Counties, rows, schema.Default(), YearRange(2005, 2009))
	require.NoError(t, err)
	assert.Equal(t, []string{"median-household-income", "population"}, tbl.Columns)
	require.Equal(t, 5, tbl.Len())

	for i, rec := range tbl.Records {
		assert.Equal(t, "01001", rec.GEOID)
		assert.Equal(t, 2005+i, rec.Year)
		assert.Equal(t, "Autauga County, Alabama", rec.Name)
		assert.InDelta(t, 49584, rec.Get("population").Float, 1e-9)
		assert.False(t, rec.Get("median-household-income").Valid)
	}

	_, err = ToTable(geoid.Counties, rows, schema.Default(), nil)
	require.Error(t, err)

	_, err = ToTable(geoid.Counties, []Row{{"state": "01", "county": "x"}}, schema.Default(), []int{2000})
	require.Error(t, err)
}

func TestFetcherFetchByCounty(t *testing.T) {
	fc := &fakeClient{rows: func(q Query) []Row {
		parts := strings.Fields(q.In)
		state := strings.TrimPrefix(parts[0], "state:")
		county := strings.TrimPrefix(parts[1], "county:")
		return []Row{{"NAME": "Census Tract 201", "state": state, "county": county, "tract": "020100"}}
	}}

	rows, err := NewFetcher(fc).Fetch(context.Background(), geoid.Tracts,
		Query{Year: 2000, Dataset: DatasetSF1, Variables: []string{"NAME"}},
		[]string{"01001", "01003", "02013"})
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "01003020100", ComposeGEOID(geoid.Tracts, rows[1]))
	assert.Len(t, fc.queries, 3)
	for _, q := range fc.queries {
		assert.Equal(t, "tract:*", q.For)
	}

	_, err = NewFetcher(fc).Fetch(context.Background(), geoid.Tracts, Query{}, []string{"011"})
	require.Error(t, err)
}

func TestFetcherFetchNational(t *testing.T) {
	fc := &fakeClient{rows: func(Query) []Row { return []Row{{"state": "01"}} }}
	rows, err := NewFetcher(fc).Fetch(context.Background(), geoid.States, Query{Year: 2010, Dataset: DatasetSF1, Variables: []string{"NAME"}}, nil)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
	require.Len(t, fc.queries, 1)
	assert.Equal(t, "state:*", fc.queries[0].For)
}

func TestFetcherLookup(t *testing.T) {
	fc := &fakeClient{rows: func(q Query) []Row {
		if q.For == "state:*" {
			return []Row{{"NAME": "Alabama", "state": "01"}, {"NAME": "Puerto Rico", "state": "72"}}
		}
		return []Row{
			{"NAME": "Autauga County, Alabama", "state": "01", "county": "001"},
			{"NAME": "Adjuntas Municipio, Puerto Rico", "state": "72", "county": "001"},
		}
	}}

	l, err := NewFetcher(fc).Lookup(context.Background(), 2010, DatasetSF1)
	require.NoError(t, err)

	_, ok := l.State("72")
	assert.False(t, ok)
	name, ok := l.County("01001")
	assert.True(t, ok)
	assert.Equal(t, "Autauga County, Alabama", name)
	assert.Equal(t, []string{"01001"}, CountyCodes(l))
}

func TestCountyCodes(t *testing.T) {
	l := names.NewLookup(nil, map[string]string{"72001": "x", "01003": "b", "01001": "a"})
	assert.Equal(t, []string{"01001", "01003"}, CountyCodes(l))
}
