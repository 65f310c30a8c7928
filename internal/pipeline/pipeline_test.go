package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/crosswalk-cli/internal/geoid"
	"github.com/sells-group/crosswalk-cli/internal/schema"
	"github.com/sells-group/crosswalk-cli/internal/store"
	"github.com/sells-group/crosswalk-cli/internal/table"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func testSchema() *schema.Schema {
	return &schema.Schema{
		DefaultBase: "population",
		Columns: map[string]schema.Column{
			"population": {Kind: schema.Base},
			"income":     {Kind: schema.Rate},
		},
	}
}

func fixture(t *testing.T) Config {
	t.Helper()
	dir := t.TempDir()
	return Config{
		Level:     geoid.Tracts,
		Geocorr:   writeFile(t, dir, "geocorr.csv", "county,tract,bg,block,pop2k\n01001,0201.00,1,1000,60\n01001,0201.00,1,1001,40\n"),
		Crosswalk: writeFile(t, dir, "crosswalk.csv", "GEOID00,GEOID10,WEIGHT\n010010201001000,010010201011000,1\n010010201001001,010010201021000,1\n"),
		Input: writeFile(t, dir, "input.csv", "GEOID,year,population,income\n"+
			"01001020100,2000,100,50\n"+
			"01001020101,2010,5,70\n"),
		Output:          filepath.Join(dir, "out.csv"),
		Lookup:          writeFile(t, dir, "lookup.csv", "GEOID,name\n01,Alabama\n01001,Autauga County\n"),
		Schema:          testSchema(),
		PassThroughFrom: 2010,
		SourceVintage:   2000,
		TargetVintage:   2010,
	}
}

func find(t *testing.T, tbl *table.Table, id string, year int) table.Record {
	t.Helper()
	for _, r := range tbl.Records {
		if r.GEOID == id && r.Year == year {
			return r
		}
	}
	t.Fatalf("no record for %s/%d", id, year)
	return table.Record{}
}

func TestRun(t *testing.T) {
	cfg := fixture(t)

	res, err := New().Run(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Rows)
	assert.False(t, res.WeightsFromCache)
	assert.Equal(t, 1, res.Realloc.Weighted)
	assert.Equal(t, 1, res.Realloc.PassedThrough)
	require.Len(t, res.Phases, 7)
	assert.Equal(t, "1_weights", res.Phases[0].Name)
	assert.Equal(t, "5_derive", res.Phases[4].Name)
	assert.Equal(t, "7_write", res.Phases[6].Name)

	out, err := table.ReadFile(context.Background(), cfg.Output)
	require.NoError(t, err)
	require.Equal(t, 3, out.Len())

	a := find(t, out, "01001020101", 2000)
	assert.InDelta(t, 60, a.Get("population").Float, 1e-9)
	assert.InDelta(t, 50, a.Get("income").Float, 1e-9)
	assert.Equal(t, "201.01", a.Name)
	assert.Equal(t, "Autauga County", a.ParentLocation)

	b := find(t, out, "01001020102", 2000)
	assert.InDelta(t, 40, b.Get("population").Float, 1e-9)

	c := find(t, out, "01001020101", 2010)
	assert.InDelta(t, 5, c.Get("population").Float, 1e-9)
	assert.InDelta(t, 70, c.Get("income").Float, 1e-9)
}

func TestRunUsesCache(t *testing.T) {
	cache, err := store.NewSQLite(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { cache.Close() }) //nolint:errcheck
	require.NoError(t, cache.Migrate(context.Background()))

	p := New(WithCache(cache))
	cfg := fixture(t)

	first, err := p.Run(context.Background(), cfg)
	require.NoError(t, err)
	assert.False(t, first.WeightsFromCache)

	// The second run no longer needs the source files.
	cfg.Geocorr, cfg.Crosswalk = "", ""
	second, err := p.Run(context.Background(), cfg)
	require.NoError(t, err)
	assert.True(t, second.WeightsFromCache)
	assert.Equal(t, first.Rows, second.Rows)
}

func TestRunPrebuiltWeights(t *testing.T) {
	cfg := fixture(t)
	cfg.Geocorr, cfg.Crosswalk = "", ""
	cfg.Weights = writeFile(t, t.TempDir(), "weights.csv",
		"GEOID00,GEOID10,count_weight,rate_weight\n01001020100,01001020101,0.5,1\n01001020100,01001020102,0.5,1\n")
	cfg.Lookup = ""

	res, err := New().Run(context.Background(), cfg)
	require.NoError(t, err)
	assert.Len(t, res.Phases, 7)

	out, err := table.ReadFile(context.Background(), cfg.Output)
	require.NoError(t, err)
	b := find(t, out, "01001020102", 2000)
	assert.InDelta(t, 50, b.Get("population").Float, 1e-9)
	// Names are formatted from the GEOID even without a lookup.
	assert.Equal(t, "201.02", b.Name)
	assert.Empty(t, b.ParentLocation)
}

func TestRunCacheMissesWhenCorrespondenceChanges(t *testing.T) {
	cache, err := store.NewSQLite(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { cache.Close() }) //nolint:errcheck
	require.NoError(t, cache.Migrate(context.Background()))

	p := New(WithCache(cache))
	cfg := fixture(t)

	_, err = p.Run(context.Background(), cfg)
	require.NoError(t, err)

	again, err := p.Run(context.Background(), cfg)
	require.NoError(t, err)
	assert.True(t, again.WeightsFromCache)

	// Every block now maps to the first target.
	require.NoError(t, os.WriteFile(cfg.Crosswalk, []byte("GEOID00,GEOID10,WEIGHT\n010010201001000,010010201011000,1\n010010201001001,010010201011000,1\n"), 0o644))
	changed, err := p.Run(context.Background(), cfg)
	require.NoError(t, err)
	assert.False(t, changed.WeightsFromCache)

	out, err := table.ReadFile(context.Background(), cfg.Output)
	require.NoError(t, err)
	assert.InDelta(t, 100, find(t, out, "01001020101", 2000).Get("population").Float, 1e-9)
}

func TestRunCorrectedCountyKeepsWeightedRecords(t *testing.T) {
	cfg := fixture(t)
	dir := t.TempDir()
	cfg.Geocorr = writeFile(t, dir, "geocorr.csv", "county,tract,bg,block,pop2k\n02201,0001.00,1,1000,100\n")
	cfg.Crosswalk = writeFile(t, dir, "crosswalk.csv", "GEOID00,GEOID10,WEIGHT\n022010001001000,021980001001000,1\n")
	cfg.Input = writeFile(t, dir, "input.csv", "GEOID,year,population,income\n02201000100,2000,100,50\n")
	cfg.Lookup = writeFile(t, dir, "lookup.csv", "GEOID,name\n02,Alaska\n02198,Prince of Wales-Hyder Census Area\n")

	res, err := New().Run(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Realloc.Weighted)
	assert.Equal(t, 0, res.Realloc.Unmatched)
	assert.Equal(t, 1, res.Rows)

	out, err := table.ReadFile(context.Background(), cfg.Output)
	require.NoError(t, err)
	r := find(t, out, "02198000100", 2000)
	assert.InDelta(t, 100, r.Get("population").Float, 1e-9)
	assert.InDelta(t, 50, r.Get("income").Float, 1e-9)
}

func TestRunCarriesTextColumns(t *testing.T) {
	cfg := fixture(t)
	cfg.Input = writeFile(t, t.TempDir(), "input.csv", "GEOID,year,population,income,usps\n"+
		"01001020100,2000,100,50,AL\n"+
		"01001020101,2010,5,70,AL\n")

	res, err := New().Run(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Rows)

	out, err := table.ReadFile(context.Background(), cfg.Output)
	require.NoError(t, err)
	assert.Equal(t, []string{"population", "income"}, out.Columns)
}

func TestRunRejectsTextInNumericColumns(t *testing.T) {
	cfg := fixture(t)
	cfg.Input = writeFile(t, t.TempDir(), "input.csv", "GEOID,year,population,income\n01001020100,2000,lots,50\n")

	res, err := New().Run(context.Background(), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not numeric")
	assert.Equal(t, "2_input", res.Phases[len(res.Phases)-1].Name)
}

func TestRunDerivesPublishedLayout(t *testing.T) {
	cfg := fixture(t)
	places := 2
	cfg.Schema = testSchema()
	cfg.Schema.Columns["renters"] = schema.Column{Kind: schema.Count}
	cfg.Schema.Derived = []schema.Derived{{Name: "pct-renters", Numerator: "renters", Denominator: "population"}}
	cfg.Schema.Output = []string{"population", "pct-renters"}
	cfg.Schema.Round = &places
	cfg.Input = writeFile(t, t.TempDir(), "input.csv", "GEOID,year,population,income,renters\n"+
		"01001020100,2000,100,50,30\n")

	_, err := New().Run(context.Background(), cfg)
	require.NoError(t, err)

	out, err := table.ReadFile(context.Background(), cfg.Output)
	require.NoError(t, err)
	assert.Equal(t, []string{"population", "pct-renters"}, out.Columns)
	a := find(t, out, "01001020101", 2000)
	assert.InDelta(t, 60, a.Get("population").Float, 1e-9)
	assert.InDelta(t, 30, a.Get("pct-renters").Float, 1e-9)
}

func TestRunBadValuesAndCorrections(t *testing.T) {
	cfg := fixture(t)
	dir := t.TempDir()
	cfg.Input = writeFile(t, dir, "input.csv", "GEOID,year,population,income\n"+
		"01001020100,2000,100,50\n"+
		"02201000100,2010,7,\n")
	cfg.BadValues = writeFile(t, dir, "bad.csv", "GEOID,year,value\n01001020100,2000,50\n")
	cfg.Lookup = writeFile(t, dir, "lookup.csv", "GEOID,name\n01,Alabama\n01001,Autauga County\n02,Alaska\n")

	res, err := New().Run(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, 1, res.BadValues)
	assert.Equal(t, 1, res.Renamed)

	out, err := table.ReadFile(context.Background(), cfg.Output)
	require.NoError(t, err)
	a := find(t, out, "01001020101", 2000)
	assert.False(t, a.Get("income").Valid)

	ak := find(t, out, "02198000100", 2010)
	assert.Equal(t, "Prince of Wales-Hyder Census Area, Alaska", ak.ParentLocation)
}

func TestRunErrors(t *testing.T) {
	cfg := fixture(t)
	cfg.Level = geoid.Counties
	_, err := New().Run(context.Background(), cfg)
	require.Error(t, err)

	cfg = fixture(t)
	cfg.Output = ""
	_, err = New().Run(context.Background(), cfg)
	require.Error(t, err)

	cfg = fixture(t)
	cfg.Input = filepath.Join(t.TempDir(), "missing.csv")
	res, err := New().Run(context.Background(), cfg)
	require.Error(t, err)
	require.NotNil(t, res)
	assert.Equal(t, "2_input", res.Phases[len(res.Phases)-1].Name)
	_, statErr := os.Stat(cfg.Output)
	assert.True(t, os.IsNotExist(statErr))
}
